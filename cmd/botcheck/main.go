// botcheck verifies connectivity for the configured transport and store without
// starting the referee.
package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	appcfg "github.com/park285/groupchess-bot/internal/config"
	"github.com/park285/groupchess-bot/internal/chat"
	"github.com/park285/groupchess-bot/internal/obslog"
	"github.com/park285/groupchess-bot/internal/registry"
	"github.com/park285/groupchess-bot/internal/relay"
	"github.com/park285/groupchess-bot/internal/telegram"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		appcfg.Exitf("config error: %v", err)
	}
	if err := obslog.Init(obslog.Options{Level: "debug", Format: "console", Console: true}); err != nil {
		appcfg.Exitf("logger init error: %v", err)
	}
	defer obslog.Sync()
	log := obslog.L()

	ok := checkStore(cfg, log)
	switch cfg.Transport {
	case appcfg.TransportTelegram:
		ok = checkTelegram(cfg, log) && ok
	case appcfg.TransportRelay:
		ok = checkRelay(cfg, log) && ok
	}
	if !ok {
		obslog.Sync()
		appcfg.Exitf("botcheck failed")
	}
	log.Info("botcheck_ok")
}

func checkStore(cfg *appcfg.AppConfig, log *zap.Logger) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var (
		store registry.Store
		err   error
	)
	switch cfg.Store {
	case appcfg.StoreRedis:
		store, err = registry.NewRedisStore(ctx, cfg.RedisURL, cfg.KeyPrefix)
	case appcfg.StorePostgres:
		store, err = registry.NewPostgresStore(ctx, cfg.DatabaseURL)
	default:
		store = registry.NewMemoryStore()
	}
	if err != nil {
		log.Error("store_check_failed", zap.String("store", cfg.Store), zap.Error(err))
		return false
	}
	defer store.Close()
	if _, err := store.Load(ctx, "botcheck"); err != nil {
		log.Error("store_check_failed", zap.String("store", cfg.Store), zap.Error(err))
		return false
	}
	log.Info("store_ok", zap.String("store", cfg.Store))
	return true
}

func checkTelegram(cfg *appcfg.AppConfig, log *zap.Logger) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer cancel()
	client := telegram.NewClient(cfg.TelegramAPIURL, cfg.BotToken, telegram.WithTimeout(8*time.Second))
	me, err := client.GetMe(ctx)
	if err != nil {
		log.Error("telegram_check_failed", zap.Error(err))
		return false
	}
	log.Info("telegram_ok", zap.Int64("id", me.ID), zap.String("username", me.Username))
	return true
}

// checkRelay connects and prints inbound frames for a short window.
func checkRelay(cfg *appcfg.AppConfig, log *zap.Logger) bool {
	connected := false
	ws := relay.NewClient(cfg.RelayWSURL,
		relay.WithMaxReconnect(3),
		relay.WithHeaderProvider(func() map[string]string {
			return map[string]string{"Authorization": "Bearer " + cfg.BotToken, "X-Session-Id": cfg.RelaySession}
		}),
		relay.WithStateListener(func(s relay.State) {
			log.Info("relay_state", zap.String("state", string(s)))
			if s == relay.StateConnected {
				connected = true
			}
		}),
	)
	// Observe for a short window
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := ws.Run(ctx, printer{log: log}); err != nil {
		log.Error("relay_check_failed", zap.Error(err))
		return false
	}
	return connected
}

type printer struct{ log *zap.Logger }

func (p printer) HandleChallenge(_ context.Context, cmd chat.ChallengeCommand) {
	target := ""
	if cmd.Target != nil {
		target = cmd.Target.ID
	}
	p.log.Info("relay_command", zap.String("room", cmd.Conversation.String()), zap.String("from", cmd.Issuer.ID), zap.String("target", target))
}

func (p printer) HandlePress(_ context.Context, press chat.ActionPress) {
	p.log.Info("relay_press", zap.String("room", press.Conversation.String()), zap.String("from", press.Actor.ID), zap.String("data", press.Data))
}
