package rules

import (
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"

	"github.com/park285/groupchess-bot/internal/domain"
)

var (
	ranks = []nchess.Rank{nchess.Rank8, nchess.Rank7, nchess.Rank6, nchess.Rank5, nchess.Rank4, nchess.Rank3, nchess.Rank2, nchess.Rank1}
	files = []nchess.File{nchess.FileA, nchess.FileB, nchess.FileC, nchess.FileD, nchess.FileE, nchess.FileF, nchess.FileG, nchess.FileH}
)

type engine struct{}

// NewEngine returns the corentings/chess backed engine.
func NewEngine() Engine { return engine{} }

func (engine) NewBoard() Board { return &board{game: nchess.NewGame()} }

func (engine) Restore(moves []string) (Board, error) {
	b := &board{game: nchess.NewGame()}
	for i, mv := range moves {
		if err := b.game.PushNotationMove(mv, nchess.UCINotation{}, nil); err != nil {
			return nil, fmt.Errorf("restore move %d %q: %w", i+1, mv, err)
		}
		b.moves = append(b.moves, mv)
	}
	return b, nil
}

type board struct {
	game  *nchess.Game
	moves []string
}

func (b *board) LegalMoves() []LegalMove {
	valid := b.game.ValidMoves()
	out := make([]LegalMove, 0, len(valid))
	for _, mv := range valid {
		out = append(out, LegalMove{
			From:  mv.S1().String(),
			To:    mv.S2().String(),
			Promo: promoLetter(mv.Promo()),
		})
	}
	return out
}

func (b *board) Apply(from, to string) error {
	from, to = strings.ToLower(from), strings.ToLower(to)
	var pick *LegalMove
	for _, lm := range b.LegalMoves() {
		if lm.From != from || lm.To != to {
			continue
		}
		if lm.Promo == 0 || lm.Promo == 'q' {
			m := lm
			pick = &m
			break
		}
	}
	if pick == nil {
		return fmt.Errorf("%s%s: %w", from, to, ErrIllegal)
	}
	uci := pick.UCI()
	if err := b.game.PushNotationMove(uci, nchess.UCINotation{}, nil); err != nil {
		return fmt.Errorf("%s: %w", uci, ErrIllegal)
	}
	b.moves = append(b.moves, uci)
	return nil
}

func (b *board) Turn() domain.Color {
	if b.game.Position().Turn() == nchess.White {
		return domain.White
	}
	return domain.Black
}

func (b *board) Checkmate() bool { return b.game.Method() == nchess.Checkmate }

func (b *board) Stalemate() bool { return b.game.Method() == nchess.Stalemate }

func (b *board) InsufficientMaterial() bool {
	return b.game.Method() == nchess.InsufficientMaterial
}

// ThreefoldRepetition is a claimable draw in corentings/chess; it is treated as final here.
func (b *board) ThreefoldRepetition() bool {
	switch b.game.Method() {
	case nchess.ThreefoldRepetition, nchess.FivefoldRepetition:
		return true
	}
	return b.eligible(nchess.ThreefoldRepetition)
}

func (b *board) GameOver() bool {
	if b.game.Outcome() != nchess.NoOutcome {
		return true
	}
	return b.eligible(nchess.ThreefoldRepetition) || b.eligible(nchess.FiftyMoveRule)
}

func (b *board) eligible(method nchess.Method) bool {
	if b.game.Outcome() != nchess.NoOutcome {
		return false
	}
	for _, m := range b.game.EligibleDraws() {
		if m == method {
			return true
		}
	}
	return false
}

func (b *board) Grid() [8][8]byte {
	var g [8][8]byte
	bd := b.game.Position().Board()
	for row, rank := range ranks {
		for col, file := range files {
			g[row][col] = pieceLetter(bd.Piece(nchess.NewSquare(file, rank)))
		}
	}
	return g
}

// Render draws the position as monospaced text, white at the bottom.
func (b *board) Render() string {
	g := b.Grid()
	var sb strings.Builder
	sb.WriteString("   +------------------------+\n")
	for row := 0; row < 8; row++ {
		fmt.Fprintf(&sb, " %d |", 8-row)
		for col := 0; col < 8; col++ {
			c := g[row][col]
			if c == 0 {
				c = '.'
			}
			sb.WriteByte(' ')
			sb.WriteByte(c)
			sb.WriteByte(' ')
		}
		sb.WriteString("|\n")
	}
	sb.WriteString("   +------------------------+\n")
	sb.WriteString("     a  b  c  d  e  f  g  h")
	return sb.String()
}

func (b *board) FEN() string { return b.game.FEN() }

func (b *board) Moves() []string { return append([]string(nil), b.moves...) }

func pieceLetter(p nchess.Piece) byte {
	if p == nchess.NoPiece {
		return 0
	}
	var c byte
	switch p.Type() {
	case nchess.King:
		c = 'k'
	case nchess.Queen:
		c = 'q'
	case nchess.Rook:
		c = 'r'
	case nchess.Bishop:
		c = 'b'
	case nchess.Knight:
		c = 'n'
	case nchess.Pawn:
		c = 'p'
	default:
		return 0
	}
	if p.Color() == nchess.White {
		c -= 'a' - 'A'
	}
	return c
}

func promoLetter(pt nchess.PieceType) byte {
	switch pt {
	case nchess.Queen:
		return 'q'
	case nchess.Rook:
		return 'r'
	case nchess.Bishop:
		return 'b'
	case nchess.Knight:
		return 'n'
	default:
		return 0
	}
}
