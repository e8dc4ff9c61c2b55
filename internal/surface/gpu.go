package surface

import (
	"errors"
	"image"
	"image/color"
	"image/draw"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/guidoenr/presetdeck/internal/engine"
)

var (
	// ErrShaderUnavailable marks a failed upscale program build.
	ErrShaderUnavailable = errors.New("upscale shader unavailable")
	// ErrQuit is returned by Present once the output was closed by the user.
	ErrQuit = errors.New("surface closed")
	// ErrNoTarget is returned when the upscale target has not been allocated.
	ErrNoTarget = errors.New("upscale target not allocated")
)

// GPU is the drawing device a Surface paints through.
type GPU interface {
	OutputSize() (int, int)
	Resize(width, height int)
	Clear(c color.RGBA)
	Viewport(width, height int) engine.Target
	EnsureTarget(width, height int) error
	ReleaseTarget()
	HasTarget() bool
	CompileProgram() error
	ReleaseProgram()
	CopyToTarget(width, height int) error
	DrawUpscaled(width, height int, sharpness float64) error
	FillRect(r image.Rectangle, c color.RGBA)
	DrawText(x, y int, text string, c color.RGBA)
	MeasureText(text string) image.Rectangle
	Present() error
}

// Presenter shows a finished frame somewhere (terminal, window, nowhere).
type Presenter interface {
	Size() (int, int)
	Present(frame *image.RGBA) error
}

type canvas struct {
	img *image.RGBA
}

func (c canvas) Canvas() *image.RGBA { return c.img }

// Software is a CPU implementation of GPU backed by image.RGBA.
type Software struct {
	fb        *image.RGBA
	texture   *image.RGBA
	scratch   *image.RGBA
	program   bool
	presenter Presenter
	face      font.Face
}

// NewSoftware creates a CPU device. presenter may be nil for headless use.
func NewSoftware(width, height int, presenter Presenter) *Software {
	g := &Software{presenter: presenter, face: basicfont.Face7x13}
	if presenter != nil {
		if w, h := presenter.Size(); w > 0 && h > 0 {
			width, height = w, h
		}
	}
	g.Resize(width, height)
	return g
}

func (g *Software) OutputSize() (int, int) {
	if g.presenter != nil {
		if w, h := g.presenter.Size(); w > 0 && h > 0 {
			return w, h
		}
	}
	b := g.fb.Bounds()
	return b.Dx(), b.Dy()
}

func (g *Software) Resize(width, height int) {
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	if g.fb != nil && g.fb.Bounds().Dx() == width && g.fb.Bounds().Dy() == height {
		return
	}
	g.fb = image.NewRGBA(image.Rect(0, 0, width, height))
}

// Frame returns the default framebuffer.
func (g *Software) Frame() *image.RGBA {
	return g.fb
}

func (g *Software) Clear(c color.RGBA) {
	draw.Draw(g.fb, g.fb.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
}

func (g *Software) Viewport(width, height int) engine.Target {
	r := image.Rect(0, 0, width, height).Intersect(g.fb.Bounds())
	return canvas{img: g.fb.SubImage(r).(*image.RGBA)}
}

func (g *Software) EnsureTarget(width, height int) error {
	if width <= 0 || height <= 0 {
		g.ReleaseTarget()
		return ErrNoTarget
	}
	if g.texture != nil && g.texture.Bounds().Dx() == width && g.texture.Bounds().Dy() == height {
		return nil
	}
	g.texture = image.NewRGBA(image.Rect(0, 0, width, height))
	return nil
}

func (g *Software) ReleaseTarget() {
	g.texture = nil
	g.scratch = nil
}

func (g *Software) HasTarget() bool {
	return g.texture != nil
}

func (g *Software) CompileProgram() error {
	g.program = true
	return nil
}

func (g *Software) ReleaseProgram() {
	g.program = false
}

func (g *Software) CopyToTarget(width, height int) error {
	if g.texture == nil {
		return ErrNoTarget
	}
	draw.Draw(g.texture, image.Rect(0, 0, width, height), g.fb, image.Point{}, draw.Src)
	return nil
}

func (g *Software) DrawUpscaled(width, height int, sharpness float64) error {
	if g.texture == nil {
		return ErrNoTarget
	}
	if !g.program {
		return ErrShaderUnavailable
	}
	src := g.texture
	if sharpness > 0 {
		g.scratch = sharpen(g.scratch, g.texture, sharpness)
		src = g.scratch
	}
	dst := image.Rect(0, 0, width, height).Intersect(g.fb.Bounds())
	xdraw.BiLinear.Scale(g.fb, dst, src, src.Bounds(), xdraw.Src, nil)
	return nil
}

func (g *Software) FillRect(r image.Rectangle, c color.RGBA) {
	op := draw.Over
	if c.A == 0xff {
		op = draw.Src
	}
	draw.Draw(g.fb, r.Intersect(g.fb.Bounds()), image.NewUniform(c), image.Point{}, op)
}

// DrawText draws text with its baseline at y.
func (g *Software) DrawText(x, y int, text string, c color.RGBA) {
	d := font.Drawer{
		Dst:  g.fb,
		Src:  image.NewUniform(c),
		Face: g.face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

func (g *Software) MeasureText(text string) image.Rectangle {
	bounds, _ := font.BoundString(g.face, text)
	return image.Rect(bounds.Min.X.Floor(), bounds.Min.Y.Floor(), bounds.Max.X.Ceil(), bounds.Max.Y.Ceil())
}

func (g *Software) Present() error {
	if g.presenter == nil {
		return nil
	}
	return g.presenter.Present(g.fb)
}

// sharpen applies a 5-tap Laplacian: center - amount*(n+s+e+w-4*center).
func sharpen(dst, src *image.RGBA, amount float64) *image.RGBA {
	b := src.Bounds()
	if dst == nil || dst.Bounds() != b {
		dst = image.NewRGBA(b)
	}
	w, h := b.Dx(), b.Dy()
	at := func(x, y, ch int) float64 {
		if x < 0 {
			x = 0
		} else if x >= w {
			x = w - 1
		}
		if y < 0 {
			y = 0
		} else if y >= h {
			y = h - 1
		}
		return float64(src.Pix[y*src.Stride+x*4+ch])
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			off := y*dst.Stride + x*4
			for ch := 0; ch < 3; ch++ {
				c := at(x, y, ch)
				lap := at(x, y-1, ch) + at(x, y+1, ch) + at(x+1, y, ch) + at(x-1, y, ch) - 4*c
				v := c - amount*lap
				if v < 0 {
					v = 0
				} else if v > 255 {
					v = 255
				}
				dst.Pix[off+ch] = uint8(v + 0.5)
			}
			dst.Pix[off+3] = 0xff
		}
	}
	return dst
}
