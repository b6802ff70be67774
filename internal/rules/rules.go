// Package rules adapts github.com/corentings/chess/v2 to the small surface the
// referee needs: legal moves, move application, side to move, terminal checks and
// a text rendering.
package rules

import (
	"errors"

	"github.com/park285/groupchess-bot/internal/domain"
)

// ErrIllegal is returned by Board.Apply when from/to is not a legal move.
var ErrIllegal = errors.New("illegal move")

// LegalMove is one entry of the legal-move enumeration.
type LegalMove struct {
	From  string
	To    string
	Promo byte // 0, or 'q','r','b','n'
}

// UCI returns the move in long algebraic form, promotion letter included.
func (m LegalMove) UCI() string {
	s := m.From + m.To
	if m.Promo != 0 {
		s += string(m.Promo)
	}
	return s
}

// Board is a rules-engine position with its history.
type Board interface {
	LegalMoves() []LegalMove
	// Apply plays from->to for the side to move, promoting to a queen when needed.
	Apply(from, to string) error
	Turn() domain.Color
	Checkmate() bool
	Stalemate() bool
	ThreefoldRepetition() bool
	InsufficientMaterial() bool
	// GameOver also covers draws the predicates above do not name (fifty-move rule).
	GameOver() bool
	// Grid returns pieces as FEN letters, rank 8 first, file a first; 0 is empty.
	Grid() [8][8]byte
	Render() string
	FEN() string
	Moves() []string
}

// Engine creates boards.
type Engine interface {
	NewBoard() Board
	// Restore replays UCI moves from the standard start position.
	Restore(moves []string) (Board, error)
}
