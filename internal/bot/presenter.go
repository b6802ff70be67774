package bot

import (
	"context"

	"go.uber.org/zap"

	"github.com/park285/groupchess-bot/internal/action"
	"github.com/park285/groupchess-bot/internal/chat"
	"github.com/park285/groupchess-bot/internal/domain"
	"github.com/park285/groupchess-bot/internal/msgcat"
	"github.com/park285/groupchess-bot/internal/obslog"
	"github.com/park285/groupchess-bot/internal/referee"
	"github.com/park285/groupchess-bot/internal/render"
	"github.com/park285/groupchess-bot/internal/rules"
)

// Presenter delivers the board and the move keyboard without coupling to event handling.
type Presenter struct {
	tr       chat.Transport
	cat      *msgcat.Catalog
	renderer *render.Renderer
	images   bool
}

func NewPresenter(tr chat.Transport, cat *msgcat.Catalog, renderer *render.Renderer, images bool) *Presenter {
	return &Presenter{tr: tr, cat: cat, renderer: renderer, images: images}
}

// Board sends the position followed by the turn line carrying one button per legal move.
func (p *Presenter) Board(ctx context.Context, conv domain.ConversationID, g *domain.Game, b rules.Board, last *action.Move) {
	view := p.renderer.Render(b)
	turn := p.TurnText(g, view.Turn)

	if !p.images || !p.sendSnapshot(ctx, conv, b, last, turn) {
		if _, err := p.tr.SendText(ctx, conv, view.Board, chat.Monospace); err != nil {
			logTransport("send_board", conv, err)
			return
		}
	}
	if _, err := p.tr.SendWithActions(ctx, conv, turn, Buttons(view.Rows)); err != nil {
		logTransport("send_moves", conv, err)
	}
}

func (p *Presenter) sendSnapshot(ctx context.Context, conv domain.ConversationID, b rules.Board, last *action.Move, caption string) bool {
	png, err := render.Snapshot(ctx, b, render.SnapshotOptions{LastMove: last, Caption: caption})
	if err != nil {
		obslog.L().Warn("board_snapshot_failed", zap.String("conversation", conv.String()), zap.Error(err))
		return false
	}
	if _, err := p.tr.SendImage(ctx, conv, png, ""); err != nil {
		logTransport("send_image", conv, err)
		return false
	}
	return true
}

// TurnText names the side to move and its player.
func (p *Presenter) TurnText(g *domain.Game, turn domain.Color) string {
	return p.cat.Text("game.turn", map[string]string{
		"Color":  p.cat.Text("color."+string(turn), nil),
		"Player": g.Player(turn).Display(),
	})
}

// OutcomeText describes how a game ended.
func (p *Presenter) OutcomeText(o *referee.Outcome) string {
	data := map[string]string{}
	if o.Winner != nil {
		data["Winner"] = o.Winner.Display()
	}
	return p.cat.Text("game.over."+string(o.Reason), data)
}

// Buttons converts move rows into chat buttons labelled with the move.
func Buttons(rows [][]action.Move) [][]chat.Button {
	out := make([][]chat.Button, len(rows))
	for i, row := range rows {
		out[i] = make([]chat.Button, len(row))
		for j, m := range row {
			out[i][j] = chat.Button{Label: m.UCI(), Data: m.Encode()}
		}
	}
	return out
}
