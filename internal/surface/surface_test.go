package surface

import (
	"errors"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guidoenr/presetdeck/internal/engine"
)

type recordingGPU struct {
	*Software
	ops        []string
	compileErr error
	compiles   int
	texts      []string
}

func newRecordingGPU(w, h int) *recordingGPU {
	return &recordingGPU{Software: NewSoftware(w, h, nil)}
}

func (g *recordingGPU) CompileProgram() error {
	g.compiles++
	g.ops = append(g.ops, "compile")
	if g.compileErr != nil {
		return g.compileErr
	}
	return g.Software.CompileProgram()
}

func (g *recordingGPU) ReleaseTarget() {
	g.ops = append(g.ops, "releaseTarget")
	g.Software.ReleaseTarget()
}

func (g *recordingGPU) ReleaseProgram() {
	g.ops = append(g.ops, "releaseProgram")
	g.Software.ReleaseProgram()
}

func (g *recordingGPU) DrawUpscaled(w, h int, sharpness float64) error {
	g.ops = append(g.ops, "upscale")
	return g.Software.DrawUpscaled(w, h, sharpness)
}

func (g *recordingGPU) DrawText(x, y int, text string, c color.RGBA) {
	g.texts = append(g.texts, text)
	g.Software.DrawText(x, y, text, c)
}

type sizeBackend struct {
	sizes   []image.Point
	renders []image.Point
	closed  bool
}

func (b *sizeBackend) Resize(w, h int) { b.sizes = append(b.sizes, image.Pt(w, h)) }
func (b *sizeBackend) Apply(engine.Settings) {}
func (b *sizeBackend) SetTexturePath(string) {}
func (b *sizeBackend) LoadPreset(string, bool) error { return nil }
func (b *sizeBackend) AddPCM([]float32) {}
func (b *sizeBackend) Close() { b.closed = true }
func (b *sizeBackend) Render(dst *image.RGBA) {
	b.renders = append(b.renders, dst.Bounds().Size())
}

func newEngine(b *sizeBackend) *engine.Engine {
	return engine.New(func(int, int) (engine.Backend, error) { return b, nil }, nil)
}

func TestRenderSizeMonotonicAndPositive(t *testing.T) {
	outputs := []image.Point{{1, 1}, {3, 2}, {640, 360}, {1920, 1080}, {7, 1}}
	for _, out := range outputs {
		prev := image.Point{}
		for scale := MinRenderScale; scale <= MaxRenderScale; scale++ {
			got := RenderSize(out.X, out.Y, scale)
			if got.X < 1 || got.Y < 1 {
				t.Fatalf("RenderSize(%v,%d)=%v want>=1x1", out, scale, got)
			}
			if got.X < prev.X || got.Y < prev.Y {
				t.Fatalf("RenderSize(%v,%d)=%v shrank from %v", out, scale, got, prev)
			}
			prev = got
		}
	}
}

func TestRenderSizeClampsAndRounds(t *testing.T) {
	assert.Equal(t, image.Pt(500, 250), RenderSize(1000, 500, 10))
	assert.Equal(t, image.Pt(1000, 500), RenderSize(1000, 500, 150))
	assert.Equal(t, image.Pt(770, 385), RenderSize(1000, 500, 77))
	assert.Equal(t, image.Pt(2, 1), RenderSize(3, 1, 67))
}

func TestSetRenderScaleClamps(t *testing.T) {
	s := New(newRecordingGPU(100, 100), nil, nil)
	s.SetRenderScalePercent(20)
	assert.Equal(t, 50, s.RenderScalePercent())
	s.SetRenderScalePercent(400)
	assert.Equal(t, 100, s.RenderScalePercent())
	s.SetUpscaleSharpness(2)
	assert.Equal(t, 1.0, s.Sharpness())
	s.SetUpscaleSharpness(-1)
	assert.Equal(t, 0.0, s.Sharpness())
}

func TestPaintUpscalesBelowFullScale(t *testing.T) {
	gpu := newRecordingGPU(200, 100)
	backend := &sizeBackend{}
	s := New(gpu, newEngine(backend), nil)
	s.SetRenderScalePercent(50)
	require.True(t, s.Initialize(time.Unix(0, 0)))

	require.NoError(t, s.Paint(time.Unix(0, 0)))
	assert.True(t, s.LastRendered())
	assert.Equal(t, []image.Point{{100, 50}}, backend.renders)
	assert.Contains(t, gpu.ops, "upscale")
	assert.True(t, gpu.HasTarget())
}

func TestFullScaleReleasesTarget(t *testing.T) {
	gpu := newRecordingGPU(200, 100)
	backend := &sizeBackend{}
	s := New(gpu, newEngine(backend), nil)
	s.SetRenderScalePercent(50)
	s.Initialize(time.Unix(0, 0))
	require.NoError(t, s.Paint(time.Unix(0, 0)))
	require.True(t, gpu.HasTarget())

	s.SetRenderScalePercent(100)
	assert.False(t, gpu.HasTarget())
	require.NoError(t, s.Paint(time.Unix(1, 0)))
	assert.Equal(t, image.Pt(200, 100), backend.renders[len(backend.renders)-1])
}

func TestProgramFailureIsSticky(t *testing.T) {
	gpu := newRecordingGPU(200, 100)
	gpu.compileErr = errors.New("no glsl")
	backend := &sizeBackend{}
	s := New(gpu, newEngine(backend), nil)
	s.SetRenderScalePercent(60)
	s.Initialize(time.Unix(0, 0))

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Paint(time.Unix(int64(i), 0)))
	}
	assert.Equal(t, 1, gpu.compiles)
	assert.True(t, s.ProgramFailed())
	assert.True(t, s.LastRendered())
	for _, r := range backend.renders {
		assert.Equal(t, image.Pt(200, 100), r)
	}
}

func TestFallbackWithoutBackend(t *testing.T) {
	gpu := newRecordingGPU(320, 200)
	s := New(gpu, engine.New(nil, nil), nil)
	s.Initialize(time.Unix(0, 0))

	require.NoError(t, s.Paint(time.Unix(0, 0)))
	assert.False(t, s.LastRendered())
	assert.Equal(t, []string{fallbackText, waitingText}, gpu.texts)

	gpu.texts = nil
	frame := make([]float32, 512)
	for i := range frame {
		frame[i] = 0.5
	}
	s.SetLastFrame(frame)
	require.NoError(t, s.Paint(time.Unix(0, 0)))
	assert.Equal(t, []string{fallbackText}, gpu.texts)

	// bar pixels at the center row are painted in the bar color
	centerY := 40 + (200-60)/2
	assert.Equal(t, barInk, gpu.Frame().RGBAAt(13, centerY))
}

func TestOverlayExpires(t *testing.T) {
	gpu := newRecordingGPU(320, 200)
	s := New(gpu, nil, nil)
	start := time.Unix(100, 0)
	s.ShowPresetOverlay("/presets/Neon Tide.v2.milk", start)
	assert.Equal(t, "Neon Tide.v2", s.OverlayText())

	require.NoError(t, s.Paint(start.Add(time.Second)))
	assert.Contains(t, gpu.texts, "Preset: Neon Tide.v2")

	require.NoError(t, s.Paint(start.Add(DefaultOverlayDuration)))
	assert.Empty(t, s.OverlayText())

	s.ShowPresetOverlay("", start)
	assert.Empty(t, s.OverlayText())
}

func TestFPSRecomputedAfterWindow(t *testing.T) {
	s := New(newRecordingGPU(64, 64), nil, nil)
	start := time.Unix(0, 0)
	s.Initialize(start)
	for i := 1; i <= 30; i++ {
		require.NoError(t, s.Paint(start.Add(time.Duration(i)*20*time.Millisecond)))
	}
	assert.InDelta(t, 50.0, s.FPS(), 0.5)
}

func TestCleanupIsIdempotent(t *testing.T) {
	gpu := newRecordingGPU(200, 100)
	backend := &sizeBackend{}
	s := New(gpu, newEngine(backend), nil)
	s.Cleanup()
	s.Cleanup()

	gpu.ops = nil
	s2 := New(gpu, newEngine(backend), nil)
	s2.SetRenderScalePercent(50)
	s2.Initialize(time.Unix(0, 0))
	require.NoError(t, s2.Paint(time.Unix(0, 0)))
	gpu.ops = nil
	s2.Cleanup()
	s2.Cleanup()
	assert.Equal(t, []string{"releaseTarget", "releaseProgram"}, gpu.ops)
	assert.True(t, backend.closed)
}

func TestUpscalerPresetDetection(t *testing.T) {
	assert.Equal(t, PresetQuality, DetectUpscaler(85, 0.15))
	assert.Equal(t, PresetBalanced, DetectUpscaler(77, 0.2))
	assert.Equal(t, PresetPerformance, DetectUpscaler(67, 0.25))
	assert.Equal(t, PresetCustom, DetectUpscaler(67, 0.3))

	s := New(newRecordingGPU(10, 10), nil, nil)
	require.True(t, ApplyUpscaler(s, "Balanced"))
	assert.Equal(t, 77, s.RenderScalePercent())
	assert.False(t, ApplyUpscaler(s, "ultra"))
}

func TestSharpenKeepsFlatImage(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for i := range src.Pix {
		src.Pix[i] = 120
	}
	out := sharpen(nil, src, 0.5)
	assert.Equal(t, uint8(120), out.Pix[0])
	assert.Equal(t, uint8(255), out.Pix[3])
}
