package render

import (
	"bytes"
	"context"
	"image/png"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/park285/groupchess-bot/internal/action"
	"github.com/park285/groupchess-bot/internal/domain"
	"github.com/park285/groupchess-bot/internal/rules"
)

func legalSet(b rules.Board) []string {
	seen := map[string]bool{}
	var out []string
	for _, lm := range b.LegalMoves() {
		k := lm.From + lm.To
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func tokenSet(v View) []string {
	var out []string
	for _, m := range v.Moves() {
		out = append(out, m.UCI())
	}
	sort.Strings(out)
	return out
}

func TestStartPosition(t *testing.T) {
	b := rules.NewEngine().NewBoard()
	v := New(0).Render(b)

	assert.Equal(t, domain.White, v.Turn)
	assert.Len(t, v.Moves(), 20)
	require.Len(t, v.Rows, 5)
	for _, row := range v.Rows {
		assert.Len(t, row, DefaultMovesPerRow)
	}
	assert.Equal(t, b.Render(), v.Board)
}

func TestTokensTrackLegalMovesEachPly(t *testing.T) {
	b := rules.NewEngine().NewBoard()
	r := New(4)
	for _, mv := range []string{"e2e4", "e7e5", "g1f3", "b8c6", "f1c4", "g8f6", "e1g1"} {
		v := r.Render(b)
		assert.Equal(t, legalSet(b), tokenSet(v), "before %s", mv)
		m, err := action.ParseMove(mv)
		require.NoError(t, err)
		require.NoError(t, b.Apply(m.From, m.To))
	}
}

func TestPromotionCollapsesToOneToken(t *testing.T) {
	b, err := rules.NewEngine().Restore([]string{"h2h4", "g7g5", "h4g5", "h7h6", "g5h6", "f8g7", "h6g7", "g8f6"})
	require.NoError(t, err)
	v := New(4).Render(b)
	count := 0
	for _, m := range v.Moves() {
		if m.UCI() == "g7h8" {
			count++
		}
	}
	assert.Equal(t, 1, count)
	assert.Equal(t, legalSet(b), tokenSet(v))
}

func TestChunk(t *testing.T) {
	moves := make([]action.Move, 7)
	for i := range moves {
		moves[i] = action.Move{From: "a2", To: string([]byte{'a', byte('3' + i%6)})}
	}
	rows := Chunk(moves, 3)
	require.Len(t, rows, 3)
	assert.Len(t, rows[0], 3)
	assert.Len(t, rows[2], 1)
	assert.Empty(t, Chunk(nil, 4))
	assert.Len(t, Chunk(moves, 0), 2)

	rows[0] = append(rows[0], action.Move{From: "h1", To: "h2"})
	assert.Equal(t, moves[3], rows[1][0], "appending to a row must not clobber the next row")
}

func TestSnapshotPNG(t *testing.T) {
	b, err := rules.NewEngine().Restore([]string{"e2e4"})
	require.NoError(t, err)
	raw, err := Snapshot(context.Background(), b, SnapshotOptions{
		LastMove: &action.Move{From: "e2", To: "e4"},
		Caption:  "Black to move",
	})
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, squareSize*8+margin*2, img.Bounds().Dx())
	assert.Equal(t, squareSize*8+margin*2+headerH, img.Bounds().Dy())
}

func TestSnapshotHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Snapshot(ctx, rules.NewEngine().NewBoard(), SnapshotOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPieceSVGColors(t *testing.T) {
	white, err := pieceSVG('Q')
	require.NoError(t, err)
	assert.Contains(t, white, `fill="#ffffff"`)
	black, err := pieceSVG('q')
	require.NoError(t, err)
	assert.Contains(t, black, `fill="#000000"`)
	_, err = pieceSVG('x')
	assert.Error(t, err)
}
