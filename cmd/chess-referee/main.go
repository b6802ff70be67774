package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	appcfg "github.com/park285/groupchess-bot/internal/config"
	"github.com/park285/groupchess-bot/internal/bot"
	"github.com/park285/groupchess-bot/internal/chat"
	"github.com/park285/groupchess-bot/internal/domain"
	"github.com/park285/groupchess-bot/internal/msgcat"
	"github.com/park285/groupchess-bot/internal/obslog"
	"github.com/park285/groupchess-bot/internal/referee"
	"github.com/park285/groupchess-bot/internal/registry"
	"github.com/park285/groupchess-bot/internal/relay"
	"github.com/park285/groupchess-bot/internal/render"
	"github.com/park285/groupchess-bot/internal/rules"
	"github.com/park285/groupchess-bot/internal/telegram"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		appcfg.Exitf("config error: %v", err)
	}
	if err := obslog.Init(obslog.Options{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Console: cfg.Log.Console,
		File:    cfg.Log.File,
		Caller:  cfg.Log.Caller,
	}); err != nil {
		appcfg.Exitf("logger init error: %v", err)
	}
	defer obslog.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		obslog.L().Error("referee_exit", zap.Error(err))
		obslog.Sync()
		appcfg.Exitf("fatal: %v", err)
	}
	obslog.L().Info("referee_stopped")
}

func run(ctx context.Context, cfg *appcfg.AppConfig) error {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	// 재시작 시 이전 상태는 버린다
	if err := store.Reset(ctx); err != nil {
		return fmt.Errorf("reset store: %w", err)
	}

	cat, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		return fmt.Errorf("load messages: %w", err)
	}

	reg := registry.New(store, registry.WithChallengeTTL(cfg.ChallengeTTL))
	ref := referee.New(reg, rules.NewEngine())

	transport, err := openTransport(cfg)
	if err != nil {
		return err
	}
	present := bot.NewPresenter(transport, cat, render.New(cfg.MovesPerRow), cfg.BoardImage)
	dispatcher := bot.NewDispatcher(ref, transport, cat, present,
		bot.WithChatFilter(func(c domain.ConversationID) bool { return cfg.ChatAllowed(c.String()) }),
	)

	obslog.L().Info("referee_start",
		zap.String("transport", cfg.Transport),
		zap.String("store", cfg.Store),
		zap.Duration("challenge_ttl", cfg.ChallengeTTL),
		zap.Int("moves_per_row", cfg.MovesPerRow),
		zap.Bool("board_image", cfg.BoardImage),
	)

	return transport.Run(ctx, dispatcher)
}

func openStore(ctx context.Context, cfg *appcfg.AppConfig) (registry.Store, error) {
	octx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	switch cfg.Store {
	case appcfg.StoreRedis:
		s, err := registry.NewRedisStore(octx, cfg.RedisURL, cfg.KeyPrefix)
		if err != nil {
			return nil, fmt.Errorf("redis store: %w", err)
		}
		return s, nil
	case appcfg.StorePostgres:
		s, err := registry.NewPostgresStore(octx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("postgres store: %w", err)
		}
		return s, nil
	default:
		return registry.NewMemoryStore(), nil
	}
}

func openTransport(cfg *appcfg.AppConfig) (chat.Runner, error) {
	switch cfg.Transport {
	case appcfg.TransportRelay:
		headers := func() map[string]string {
			return map[string]string{"Authorization": "Bearer " + cfg.BotToken, "X-Session-Id": cfg.RelaySession}
		}
		return relay.NewClient(cfg.RelayWSURL, relay.WithHeaderProvider(headers)), nil
	case appcfg.TransportTelegram:
		client := telegram.NewClient(cfg.TelegramAPIURL, cfg.BotToken)
		return telegram.NewBot(client, cfg.PollTimeout), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}
