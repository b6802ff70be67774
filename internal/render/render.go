// Package render turns a board into what players see: the text board, whose
// turn it is, and one move button per legal from/to pair.
package render

import (
	"github.com/park285/groupchess-bot/internal/action"
	"github.com/park285/groupchess-bot/internal/domain"
	"github.com/park285/groupchess-bot/internal/rules"
)

// DefaultMovesPerRow matches the keyboard width used by the chat clients.
const DefaultMovesPerRow = 4

// View is regenerated from the board on every call and never cached.
type View struct {
	Board string
	Turn  domain.Color
	Rows  [][]action.Move
}

// Moves flattens Rows.
func (v View) Moves() []action.Move {
	var out []action.Move
	for _, row := range v.Rows {
		out = append(out, row...)
	}
	return out
}

type Renderer struct {
	MovesPerRow int
}

func New(movesPerRow int) *Renderer {
	if movesPerRow <= 0 {
		movesPerRow = DefaultMovesPerRow
	}
	return &Renderer{MovesPerRow: movesPerRow}
}

// Render builds the view for the side to move. Promotions collapse into one
// token per from/to pair since the referee always promotes to a queen.
func (r *Renderer) Render(b rules.Board) View {
	return View{
		Board: b.Render(),
		Turn:  b.Turn(),
		Rows:  Chunk(moveTokens(b.LegalMoves()), r.perRow()),
	}
}

func (r *Renderer) perRow() int {
	if r == nil || r.MovesPerRow <= 0 {
		return DefaultMovesPerRow
	}
	return r.MovesPerRow
}

func moveTokens(legal []rules.LegalMove) []action.Move {
	seen := make(map[string]struct{}, len(legal))
	out := make([]action.Move, 0, len(legal))
	for _, lm := range legal {
		m := action.Move{From: lm.From, To: lm.To}
		if _, dup := seen[m.UCI()]; dup {
			continue
		}
		seen[m.UCI()] = struct{}{}
		out = append(out, m)
	}
	return out
}

// Chunk splits moves into rows of n, preserving order. The last row may be shorter.
func Chunk(moves []action.Move, n int) [][]action.Move {
	if n <= 0 {
		n = DefaultMovesPerRow
	}
	rows := make([][]action.Move, 0, (len(moves)+n-1)/n)
	for i := 0; i < len(moves); i += n {
		end := min(i+n, len(moves))
		rows = append(rows, moves[i:end:end])
	}
	return rows
}
