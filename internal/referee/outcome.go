package referee

import (
	"github.com/park285/groupchess-bot/internal/domain"
	"github.com/park285/groupchess-bot/internal/rules"
)

type Reason string

const (
	ReasonCheckmate    Reason = "checkmate"
	ReasonStalemate    Reason = "stalemate"
	ReasonThreefold    Reason = "threefold"
	ReasonInsufficient Reason = "insufficient"
	ReasonDraw         Reason = "draw"
)

// Outcome ends a game. Winner is set only for checkmate.
type Outcome struct {
	Reason Reason
	Winner *domain.User
}

// Judge checks terminal conditions after mover's move, first match wins:
// checkmate, stalemate, threefold repetition, insufficient material, any other end.
func Judge(b rules.Board, mover domain.Color, g domain.Game) *Outcome {
	switch {
	case b.Checkmate():
		w := g.Player(mover)
		return &Outcome{Reason: ReasonCheckmate, Winner: &w}
	case b.Stalemate():
		return &Outcome{Reason: ReasonStalemate}
	case b.ThreefoldRepetition():
		return &Outcome{Reason: ReasonThreefold}
	case b.InsufficientMaterial():
		return &Outcome{Reason: ReasonInsufficient}
	case b.GameOver():
		return &Outcome{Reason: ReasonDraw}
	}
	return nil
}
