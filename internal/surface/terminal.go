package surface

import (
	"image"
	"io"
	"math"
	"strconv"
	"strings"
	"sync"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/term"
)

const (
	clearScreen = "\x1b[2J"
	cursorHome  = "\x1b[H"
	hideCursor  = "\x1b[?25l"
	showCursor  = "\x1b[?25h"
	resetANSI   = "\x1b[0m"
	upperHalf   = '▀'
)

var (
	fgCodes [256]string
	bgCodes [256]string
)

func init() {
	for i := range fgCodes {
		fgCodes[i] = "\x1b[38;5;" + strconv.Itoa(i) + "m"
		bgCodes[i] = "\x1b[48;5;" + strconv.Itoa(i) + "m"
	}
}

// Terminal presents frames as 256-color half blocks, or as glyphs when ANSI is off.
type Terminal struct {
	out     io.Writer
	fd      int
	ansi    bool
	palette []rune

	width  int
	height int

	mu     sync.Mutex
	status string
	cells  *image.RGBA
	buf    strings.Builder
	begun  bool
}

// NewTerminal creates a presenter writing to out. fd is used for size queries.
func NewTerminal(out io.Writer, fd int, ansi bool, paletteName string) *Terminal {
	return &Terminal{
		out:     out,
		fd:      fd,
		ansi:    ansi,
		palette: Palette(paletteName),
		width:   80,
		height:  24,
	}
}

// SetStatus sets the text shown on the bottom row.
func (t *Terminal) SetStatus(status string) {
	t.mu.Lock()
	t.status = status
	t.mu.Unlock()
}

func (t *Terminal) cellSize() (int, int) {
	cols, rows := t.width, t.height
	if w, h, err := term.GetSize(t.fd); err == nil && w > 0 && h > 0 {
		cols, rows = w, h
	}
	return cols, max(1, rows-1)
}

// Size returns the pixel grid one frame maps onto.
func (t *Terminal) Size() (int, int) {
	cols, rows := t.cellSize()
	if t.ansi {
		return cols, rows * 2
	}
	return cols, rows
}

func (t *Terminal) Present(frame *image.RGBA) error {
	cols, rows := t.cellSize()
	ph := rows
	if t.ansi {
		ph = rows * 2
	}
	if t.cells == nil || t.cells.Bounds().Dx() != cols || t.cells.Bounds().Dy() != ph {
		t.cells = image.NewRGBA(image.Rect(0, 0, cols, ph))
	}
	xdraw.ApproxBiLinear.Scale(t.cells, t.cells.Bounds(), frame, frame.Bounds(), xdraw.Src, nil)

	b := &t.buf
	b.Reset()
	if !t.begun {
		b.WriteString(hideCursor)
		b.WriteString(clearScreen)
		t.begun = true
	}
	b.WriteString(cursorHome)
	if t.ansi {
		t.writeHalfBlocks(b, cols, rows)
	} else {
		t.writeGlyphs(b, cols, rows)
	}

	t.mu.Lock()
	status := t.status
	t.mu.Unlock()
	if len(status) > cols {
		status = status[:cols]
	}
	b.WriteString(status)
	b.WriteString("\x1b[K")

	_, err := io.WriteString(t.out, b.String())
	return err
}

func (t *Terminal) writeHalfBlocks(b *strings.Builder, cols, rows int) {
	for y := 0; y < rows; y++ {
		lastFg, lastBg := -1, -1
		for x := 0; x < cols; x++ {
			fg := t.ansiAt(x, y*2)
			bg := t.ansiAt(x, y*2+1)
			if fg != lastFg {
				b.WriteString(fgCodes[fg])
				lastFg = fg
			}
			if bg != lastBg {
				b.WriteString(bgCodes[bg])
				lastBg = bg
			}
			b.WriteRune(upperHalf)
		}
		b.WriteString(resetANSI)
		b.WriteString("\r\n")
	}
}

func (t *Terminal) writeGlyphs(b *strings.Builder, cols, rows int) {
	last := len(t.palette) - 1
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			off := t.cells.PixOffset(x, y)
			p := t.cells.Pix[off : off+3 : off+3]
			lum := (0.2126*float64(p[0]) + 0.7152*float64(p[1]) + 0.0722*float64(p[2])) / 255
			b.WriteRune(t.palette[clampInt(int(lum*float64(last)+0.5), 0, last)])
		}
		b.WriteString("\r\n")
	}
}

func (t *Terminal) ansiAt(x, y int) int {
	off := t.cells.PixOffset(x, y)
	p := t.cells.Pix[off : off+3 : off+3]
	return rgbToANSI(float64(p[0])/255, float64(p[1])/255, float64(p[2])/255)
}

// Close restores the cursor.
func (t *Terminal) Close() error {
	if !t.begun {
		return nil
	}
	_, err := io.WriteString(t.out, resetANSI+showCursor+"\r\n")
	return err
}

func rgbToANSI(r, g, b float64) int {
	// near-gray colors use the 24-step ramp
	if math.Abs(r-g) < 0.02 && math.Abs(g-b) < 0.02 {
		return 232 + clampInt(int(math.Round(r*23)), 0, 23)
	}
	ri := clampInt(int(r*5+0.5), 0, 5)
	gi := clampInt(int(g*5+0.5), 0, 5)
	bi := clampInt(int(b*5+0.5), 0, 5)
	return 16 + 36*ri + 6*gi + bi
}
