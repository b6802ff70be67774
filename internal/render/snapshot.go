package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/park285/groupchess-bot/internal/action"
	"github.com/park285/groupchess-bot/internal/rules"
)

// SnapshotOptions decorates the PNG board.
type SnapshotOptions struct {
	LastMove *action.Move
	Caption  string
}

const (
	squareSize = 64
	margin     = 28
	headerH    = 36
)

var (
	lightSquare     = color.RGBA{233, 207, 163, 255}
	darkSquare      = color.RGBA{187, 136, 96, 255}
	lastMoveFill    = color.NRGBA{R: 255, G: 228, B: 120, A: 140}
	backgroundColor = color.RGBA{28, 31, 46, 255}
	textColor       = color.RGBA{236, 239, 255, 255}
)

// Snapshot draws b as a PNG, white at the bottom.
func Snapshot(ctx context.Context, b rules.Board, opts SnapshotOptions) ([]byte, error) {
	if b == nil {
		return nil, fmt.Errorf("board is nil")
	}
	boardPx := squareSize * 8
	img := image.NewRGBA(image.Rect(0, 0, boardPx+margin*2, boardPx+margin*2+headerH))
	draw.Draw(img, img.Bounds(), image.NewUniform(backgroundColor), image.Point{}, draw.Src)
	origin := image.Pt(margin, margin+headerH)

	drawSquares(img, origin)
	if opts.LastMove != nil {
		for _, sq := range []string{opts.LastMove.From, opts.LastMove.To} {
			if r, ok := squareRect(sq, origin); ok {
				draw.Draw(img, r, image.NewUniform(lastMoveFill), image.Point{}, draw.Over)
			}
		}
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	grid := b.Grid()
	for row := 0; row < 8; row++ {
		for col := 0; col < 8; col++ {
			letter := grid[row][col]
			if letter == 0 {
				continue
			}
			piece, err := pieceImage(letter, squareSize)
			if err != nil {
				return nil, err
			}
			x, y := origin.X+col*squareSize, origin.Y+row*squareSize
			draw.Draw(img, image.Rect(x, y, x+squareSize, y+squareSize), piece, image.Point{}, draw.Over)
		}
	}

	drawer := &font.Drawer{Dst: img, Src: image.NewUniform(textColor), Face: basicfont.Face7x13}
	drawCoordinates(drawer, origin)
	if caption := strings.TrimSpace(opts.Caption); caption != "" {
		drawCentered(drawer, caption, img.Bounds().Dx()/2, margin+headerH/2)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func drawSquares(dst draw.Image, origin image.Point) {
	for row := 0; row < 8; row++ {
		for col := 0; col < 8; col++ {
			clr := lightSquare
			if (row+col)%2 == 1 {
				clr = darkSquare
			}
			x, y := origin.X+col*squareSize, origin.Y+row*squareSize
			draw.Draw(dst, image.Rect(x, y, x+squareSize, y+squareSize), image.NewUniform(clr), image.Point{}, draw.Src)
		}
	}
}

func drawCoordinates(d *font.Drawer, origin image.Point) {
	bottom := origin.Y + 8*squareSize
	for i := 0; i < 8; i++ {
		file := string(rune('a' + i))
		drawCentered(d, file, origin.X+i*squareSize+squareSize/2, bottom+margin/2)
		rank := string(rune('8' - i))
		drawCentered(d, rank, origin.X-margin/2, origin.Y+i*squareSize+squareSize/2)
	}
}

// drawCentered centers text horizontally on cx and vertically on cy.
func drawCentered(d *font.Drawer, text string, cx, cy int) {
	m := d.Face.Metrics()
	w := d.MeasureString(text).Round()
	d.Dot = fixed.P(cx-w/2, cy+(m.Ascent.Ceil()-m.Descent.Ceil())/2)
	d.DrawString(text)
}

// squareRect maps an algebraic square ("e4") to its pixel rectangle.
func squareRect(sq string, origin image.Point) (image.Rectangle, bool) {
	if !action.ValidSquare(sq) {
		return image.Rectangle{}, false
	}
	col := int(sq[0] - 'a')
	row := int('8' - sq[1])
	x, y := origin.X+col*squareSize, origin.Y+row*squareSize
	return image.Rect(x, y, x+squareSize, y+squareSize), true
}
