package surface

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/guidoenr/presetdeck/internal/engine"
)

const (
	MinRenderScale          = 50
	MaxRenderScale          = 100
	DefaultUpscaleSharpness = 0.2
	FallbackBars            = 64
	DefaultOverlayDuration  = 3 * time.Second
	fpsWindow               = 500 * time.Millisecond
	fallbackText            = "Preview fallback (preset backend unavailable)"
	waitingText             = "Waiting for audio frames..."
)

var (
	background  = color.RGBA{R: 10, G: 13, B: 20, A: 255}
	fallbackInk = color.RGBA{R: 60, G: 170, B: 245, A: 255}
	waitingInk  = color.RGBA{R: 190, G: 190, B: 190, A: 255}
	barInk      = color.RGBA{R: 65, G: 180, B: 255, A: 255}
	fpsInk      = color.RGBA{R: 235, G: 235, B: 235, A: 255}
	bubbleFill  = color.RGBA{R: 10, G: 14, B: 20, A: 190}
	bubbleInk   = color.RGBA{R: 230, G: 240, B: 255, A: 255}
)

// RenderSize scales an output size by percent (clamped to [50,100]), never below 1x1.
func RenderSize(outputWidth, outputHeight, percent int) image.Point {
	percent = clampInt(percent, MinRenderScale, MaxRenderScale)
	w := int(math.Round(float64(outputWidth) * float64(percent) / 100.0))
	h := int(math.Round(float64(outputHeight) * float64(percent) / 100.0))
	return image.Pt(max(1, w), max(1, h))
}

// Surface paints engine output, upscaling from a reduced internal resolution
// when the render scale is below 100%.
type Surface struct {
	gpu    GPU
	engine *engine.Engine
	logger *zap.SugaredLogger

	width        int
	height       int
	scalePercent int
	sharpness    float64

	programReady  bool
	programFailed bool

	lastFrame []float32
	showFPS   bool

	fpsFrames int
	fpsStart  time.Time
	fps       float64

	overlayText     string
	overlayShown    time.Time
	overlayDuration time.Duration

	initialized  bool
	cleanupDone  bool
	lastRendered bool
}

// New binds a surface to a device and an optional engine.
func New(gpu GPU, eng *engine.Engine, logger *zap.SugaredLogger) *Surface {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	w, h := gpu.OutputSize()
	return &Surface{
		gpu:             gpu,
		engine:          eng,
		logger:          logger,
		width:           max(1, w),
		height:          max(1, h),
		scalePercent:    MaxRenderScale,
		sharpness:       DefaultUpscaleSharpness,
		overlayDuration: DefaultOverlayDuration,
	}
}

// Initialize creates the engine renderer at the current render size.
func (s *Surface) Initialize(now time.Time) bool {
	s.cleanupDone = false
	s.initialized = true
	s.fpsStart = now
	if s.engine == nil {
		return false
	}
	size := s.RenderSize()
	return s.engine.InitializeRenderer(size.X, size.Y)
}

// OutputSize returns the current output pixel size.
func (s *Surface) OutputSize() image.Point {
	return image.Pt(s.width, s.height)
}

// RenderSize returns the internal render size for the current output.
func (s *Surface) RenderSize() image.Point {
	return RenderSize(s.width, s.height, s.scalePercent)
}

// RenderScalePercent returns the clamped render scale.
func (s *Surface) RenderScalePercent() int {
	return s.scalePercent
}

// Sharpness returns the upscale sharpness.
func (s *Surface) Sharpness() float64 {
	return s.sharpness
}

// SetRenderScalePercent clamps percent to [50,100] and resizes the engine.
func (s *Surface) SetRenderScalePercent(percent int) {
	clamped := clampInt(percent, MinRenderScale, MaxRenderScale)
	if clamped == s.scalePercent {
		return
	}
	s.scalePercent = clamped
	if !s.initialized || s.cleanupDone {
		return
	}
	if s.engine != nil {
		size := s.RenderSize()
		s.engine.ResizeRenderer(size.X, size.Y)
	}
	if s.scalePercent >= MaxRenderScale {
		s.gpu.ReleaseTarget()
	}
}

// SetUpscaleSharpness clamps amount to [0,1].
func (s *Surface) SetUpscaleSharpness(amount float64) {
	s.sharpness = math.Max(0, math.Min(1, amount))
}

// SetFPSDisplay toggles the FPS counter.
func (s *Surface) SetFPSDisplay(enabled bool) {
	s.showFPS = enabled
}

// SetLastFrame stores the mono frame used by the fallback bars.
func (s *Surface) SetLastFrame(samples []float32) {
	s.lastFrame = samples
}

// Resize updates the output size.
func (s *Surface) Resize(width, height int) {
	width = max(1, width)
	height = max(1, height)
	if width == s.width && height == s.height {
		return
	}
	s.width = width
	s.height = height
	s.gpu.Resize(width, height)
	size := s.RenderSize()
	if s.engine != nil {
		s.engine.ResizeRenderer(size.X, size.Y)
	}
	if size.X == width && size.Y == height {
		s.gpu.ReleaseTarget()
	}
}

// ShowPresetOverlay displays the preset name for the overlay duration.
func (s *Surface) ShowPresetOverlay(presetPath string, now time.Time) {
	if presetPath == "" {
		return
	}
	base := filepath.Base(presetPath)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	if name == "" {
		name = base
	}
	s.overlayText = name
	s.overlayShown = now
}

// OverlayText returns the active overlay name, if any.
func (s *Surface) OverlayText() string {
	return s.overlayText
}

// FPS returns the last measured frame rate.
func (s *Surface) FPS() float64 {
	return s.fps
}

// LastRendered reports whether the last paint came from the engine.
func (s *Surface) LastRendered() bool {
	return s.lastRendered
}

// Paint draws one frame and presents it.
func (s *Surface) Paint(now time.Time) error {
	if w, h := s.gpu.OutputSize(); w != s.width || h != s.height {
		s.Resize(w, h)
	}
	out := s.OutputSize()
	size := s.RenderSize()
	useUpscale := size != out
	rendered := false

	s.gpu.Clear(background)

	if s.engine != nil && useUpscale && s.ensureProgram() {
		if err := s.gpu.EnsureTarget(size.X, size.Y); err == nil {
			s.engine.ResizeRenderer(size.X, size.Y)
			rendered = s.engine.RenderFrame(s.gpu.Viewport(size.X, size.Y))
			if rendered {
				if err := s.gpu.CopyToTarget(size.X, size.Y); err != nil {
					rendered = false
				} else {
					s.gpu.Clear(background)
					if err := s.gpu.DrawUpscaled(out.X, out.Y, s.sharpness); err != nil {
						s.logger.Debugw("upscale draw failed", "error", err)
						rendered = false
					}
				}
			}
		}
	} else if !useUpscale {
		s.gpu.ReleaseTarget()
	}

	if !rendered && s.engine != nil {
		s.engine.ResizeRenderer(out.X, out.Y)
		rendered = s.engine.RenderFrame(s.gpu.Viewport(out.X, out.Y))
	}
	s.lastRendered = rendered

	if !rendered {
		s.drawFallback()
	}

	s.fpsFrames++
	if s.fpsStart.IsZero() {
		s.fpsStart = now
	}
	if elapsed := now.Sub(s.fpsStart); elapsed >= fpsWindow {
		s.fps = float64(s.fpsFrames) / elapsed.Seconds()
		s.fpsFrames = 0
		s.fpsStart = now
	}
	if s.showFPS {
		text := fmt.Sprintf("FPS: %.1f", s.fps)
		bounds := s.gpu.MeasureText(text)
		s.gpu.DrawText(s.width-10-bounds.Dx(), 8+bounds.Dy(), text, fpsInk)
	}

	s.drawOverlay(now)
	return s.gpu.Present()
}

func (s *Surface) drawFallback() {
	s.gpu.DrawText(12, 22, fallbackText, fallbackInk)
	if len(s.lastFrame) == 0 {
		s.gpu.DrawText(12, 46, waitingText, waitingInk)
		return
	}

	h := s.height - 60
	w := s.width - 24
	if h <= 0 || w <= 0 {
		return
	}
	barW := max(2, w/FallbackBars)
	centerY := 40 + h/2
	for i := 0; i < FallbackBars; i++ {
		idx := i * len(s.lastFrame) / FallbackBars
		value := math.Abs(float64(s.lastFrame[idx]))
		amplitude := min(h/2, int(value*float64(h)*0.8))
		x := 12 + i*barW
		s.gpu.FillRect(image.Rect(x, centerY-amplitude, x+barW-1, centerY+amplitude), barInk)
	}
}

func (s *Surface) drawOverlay(now time.Time) {
	if s.overlayText == "" {
		return
	}
	if now.Sub(s.overlayShown) >= s.overlayDuration {
		s.overlayText = ""
		return
	}
	text := "Preset: " + s.overlayText
	tb := s.gpu.MeasureText(text)
	bubble := image.Rect(0, 0, tb.Dx()+20, tb.Dy()+12)
	bubble = bubble.Add(image.Pt(14, s.height-bubble.Dy()-18))
	s.gpu.FillRect(bubble, bubbleFill)
	s.gpu.DrawText(bubble.Min.X+10, bubble.Min.Y+6-tb.Min.Y, text, bubbleInk)
}

// ensureProgram compiles the upscale program once. A failure is sticky.
func (s *Surface) ensureProgram() bool {
	if s.programReady {
		return true
	}
	if s.programFailed {
		return false
	}
	if err := s.gpu.CompileProgram(); err != nil {
		s.programFailed = true
		s.logger.Warnw("upscale program unavailable, rendering at native resolution", "error", err)
		return false
	}
	s.programReady = true
	return true
}

// ProgramFailed reports whether the upscale program failed to build.
func (s *Surface) ProgramFailed() bool {
	return s.programFailed
}

// Cleanup releases the upscale target, the program and the engine renderer.
// Safe to call repeatedly and before Initialize.
func (s *Surface) Cleanup() {
	if s.cleanupDone {
		return
	}
	s.cleanupDone = true
	s.gpu.ReleaseTarget()
	if s.programReady {
		s.gpu.ReleaseProgram()
		s.programReady = false
	}
	if s.engine != nil {
		s.engine.ResetRenderer()
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
