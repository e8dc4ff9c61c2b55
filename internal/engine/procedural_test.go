package engine

import (
	"image"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookIsDeterministic(t *testing.T) {
	a := lookFor("/presets/one.milk")
	b := lookFor("/presets/one.milk")
	assert.Equal(t, a.patternName, b.patternName)
	assert.Equal(t, a.color, b.color)
	assert.Equal(t, a.hueOffset, b.hueOffset)
	assert.Equal(t, "one", a.name)
	assert.NotNil(t, a.pattern)
}

func TestProceduralRendersOpaquePixels(t *testing.T) {
	backend, err := NewProcedural(48_000)(32, 24)
	require.NoError(t, err)
	defer backend.Close()

	require.NoError(t, backend.LoadPreset("/presets/one.milk", true))
	pcm := make([]float32, 1024)
	for i := range pcm {
		pcm[i] = float32(0.5 * math.Sin(float64(i)*0.05))
	}
	backend.AddPCM(pcm)

	img := image.NewRGBA(image.Rect(0, 0, 32, 24))
	backend.Render(img)
	for i := 3; i < len(img.Pix); i += 4 {
		if img.Pix[i] != 0xff {
			t.Fatalf("alpha[%d]=%d want=255", i/4, img.Pix[i])
		}
	}
}

func TestProceduralRejectsEmptyPreset(t *testing.T) {
	backend, err := NewProcedural(48_000)(8, 8)
	require.NoError(t, err)
	assert.Error(t, backend.LoadPreset("", true))
}

func TestProceduralInvalidDimensions(t *testing.T) {
	_, err := NewProcedural(48_000)(0, 10)
	assert.Error(t, err)
}

func TestSoftCutBlendsThenSettles(t *testing.T) {
	b, err := NewProcedural(48_000)(16, 16)
	require.NoError(t, err)
	p := b.(*Procedural)
	p.Apply(Settings{MeshX: 8, MeshY: 6, TargetFPS: 10, BeatSensitivity: 1, HardCutEnabled: false})

	require.NoError(t, p.LoadPreset("/a.milk", true))
	require.NoError(t, p.LoadPreset("/b.milk", false))
	assert.NotNil(t, p.previous)

	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for i := 0; i < int(softCutSeconds*10)+1; i++ {
		p.Render(img)
	}
	assert.Nil(t, p.previous)
	assert.Equal(t, 1.0, p.blend)
}

func TestAddPCMIsBounded(t *testing.T) {
	b, err := NewProcedural(48_000)(8, 8)
	require.NoError(t, err)
	p := b.(*Procedural)
	p.AddPCM(make([]float32, maxPendingPCM*3))
	assert.Len(t, p.pcm, maxPendingPCM)
}

func TestSettingsNormalize(t *testing.T) {
	s := Settings{MeshX: 1, MeshY: 1000, TargetFPS: 0, BeatSensitivity: -1, HardCutDuration: -3}.Normalize()
	assert.Equal(t, 8, s.MeshX)
	assert.Equal(t, 256, s.MeshY)
	assert.Equal(t, 60, s.TargetFPS)
	assert.Equal(t, 1.0, s.BeatSensitivity)
	assert.Equal(t, 0.0, s.HardCutDuration)
}

func TestSpectrumSilenceDecays(t *testing.T) {
	s := NewSpectrum(48_000)
	b := s.Analyze(nil, 1)
	assert.Equal(t, Bands{}, b)
}

func TestSpectrumDetectsBassOnset(t *testing.T) {
	s := NewSpectrum(48_000)
	quiet := make([]float32, 1024)
	s.Analyze(quiet, 1)

	loud := make([]float32, 1024)
	for i := range loud {
		loud[i] = float32(0.9 * math.Sin(2*math.Pi*80*float64(i)/48_000))
	}
	b := s.Analyze(loud, 1)
	assert.Greater(t, b.Bass, 0.0)
	assert.Greater(t, b.Beat, 0.0)
}
