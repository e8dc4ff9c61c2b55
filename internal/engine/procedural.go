package engine

import (
	"errors"
	"fmt"
	"hash/fnv"
	"image"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
)

// Backend is the contract an external preset engine fulfils.
type Backend interface {
	Resize(width, height int)
	Apply(settings Settings)
	SetTexturePath(path string)
	LoadPreset(path string, hardCut bool) error
	AddPCM(samples []float32)
	Render(dst *image.RGBA)
	Close()
}

// Factory creates a backend sized for the first frame.
type Factory func(width, height int) (Backend, error)

const (
	softCutSeconds = 2.0
	maxPendingPCM  = 4096
)

// look is the visual identity derived from a preset path.
type look struct {
	name        string
	patternName string
	pattern     patternFunc
	color       colorMode
	hueOffset   float64
	zoom        float64
}

func lookFor(path string) look {
	h := fnv.New64a()
	_, _ = h.Write([]byte(path))
	sum := h.Sum64()

	names := PatternNames()
	name := names[sum%uint64(len(names))]
	return look{
		name:        strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		patternName: name,
		pattern:     patternRegistry[name],
		color:       colorModes[(sum>>8)%uint64(len(colorModes))],
		hueOffset:   float64((sum>>16)%360) / 360.0,
		zoom:        1.0 + float64((sum>>32)%50)/100.0,
	}
}

// Procedural renders audio-reactive patterns picked deterministically per preset.
// Preset files are never parsed; only their path seeds the look.
type Procedural struct {
	width    int
	height   int
	settings Settings

	spectrum *Spectrum
	motion   motion
	pcm      []float32

	current  look
	previous *look
	blend    float64
	sinceCut float64

	texturePath string

	mesh     []float64
	prevMesh []float64
}

// NewProcedural returns a Factory for the built-in procedural backend.
func NewProcedural(sampleRate float64) Factory {
	return func(width, height int) (Backend, error) {
		if width <= 0 || height <= 0 {
			return nil, fmt.Errorf("invalid dimensions: width=%d height=%d", width, height)
		}
		return &Procedural{
			width:    width,
			height:   height,
			settings: DefaultSettings(),
			spectrum: NewSpectrum(sampleRate),
			motion:   newMotion(),
			current:  lookFor(""),
			blend:    1,
		}, nil
	}
}

func (p *Procedural) Resize(width, height int) {
	if width > 0 {
		p.width = width
	}
	if height > 0 {
		p.height = height
	}
}

func (p *Procedural) Apply(settings Settings) {
	p.settings = settings.Normalize()
	p.mesh = nil
	p.prevMesh = nil
}

func (p *Procedural) SetTexturePath(path string) {
	p.texturePath = path
}

// TexturePath returns the directory last handed to SetTexturePath.
func (p *Procedural) TexturePath() string {
	return p.texturePath
}

// Pattern reports the pattern name of the active look.
func (p *Procedural) Pattern() string {
	return p.current.patternName
}

func (p *Procedural) LoadPreset(path string, hardCut bool) error {
	if path == "" {
		return errors.New("empty preset path")
	}
	next := lookFor(path)
	if hardCut {
		p.previous = nil
		p.blend = 1
	} else {
		prev := p.current
		p.previous = &prev
		p.blend = 0
	}
	p.current = next
	p.sinceCut = 0
	return nil
}

func (p *Procedural) AddPCM(samples []float32) {
	p.pcm = append(p.pcm, samples...)
	if over := len(p.pcm) - maxPendingPCM; over > 0 {
		p.pcm = append(p.pcm[:0], p.pcm[over:]...)
	}
}

func (p *Procedural) Render(dst *image.RGBA) {
	if dst == nil {
		return
	}
	dt := 1.0 / float64(p.settings.TargetFPS)
	bands := p.spectrum.Analyze(p.pcm, p.settings.BeatSensitivity)
	p.pcm = p.pcm[:0]
	p.motion.advance(bands, dt, p.settings.BeatSensitivity)
	p.advanceTransition(bands, dt)

	cols := p.settings.MeshX + 1
	rows := p.settings.MeshY + 1
	p.mesh = p.sampleMesh(p.mesh, p.current, cols, rows)
	if p.previous != nil {
		p.prevMesh = p.sampleMesh(p.prevMesh, *p.previous, cols, rows)
		for i := range p.mesh {
			p.mesh[i] = lerp(p.prevMesh[i], p.mesh[i], p.blend)
		}
	}
	p.rasterize(dst, cols, rows)
}

// advanceTransition progresses a soft cut. A strong beat finishes it early
// when hard cuts are enabled and enough time passed since the last one.
func (p *Procedural) advanceTransition(b Bands, dt float64) {
	p.sinceCut += dt
	if p.previous == nil {
		return
	}
	p.blend += dt / softCutSeconds
	if p.settings.HardCutEnabled && b.Beat > 0.9 && p.sinceCut >= p.settings.HardCutDuration {
		p.blend = 1
	}
	if p.blend >= 1 {
		p.blend = 1
		p.previous = nil
		p.sinceCut = 0
	}
}

func (p *Procedural) sampleMesh(buf []float64, l look, cols, rows int) []float64 {
	if len(buf) != cols*rows {
		buf = make([]float64, cols*rows)
	}
	zoom := l.zoom * p.motion.zoom
	for j := 0; j < rows; j++ {
		y := (float64(j)/float64(rows-1) - 0.5) * zoom
		for i := 0; i < cols; i++ {
			x := (float64(i)/float64(cols-1) - 0.5) * zoom
			if p.motion.warp > 0 {
				w := fractalNoise(x*2+p.motion.time*0.15, y*2-p.motion.time*0.12) * p.motion.warp * 0.3
				x += w
				y += w
			}
			buf[j*cols+i] = clamp(l.pattern(x, y, &p.motion), -1, 1)
		}
	}
	return buf
}

// rasterize bilinearly interpolates the mesh over every pixel, one row per job.
func (p *Procedural) rasterize(dst *image.RGBA, cols, rows int) {
	bounds := dst.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	if width <= 0 || height <= 0 {
		return
	}

	numWorkers := runtime.GOMAXPROCS(0)
	if numWorkers > height {
		numWorkers = height
	}

	var wg sync.WaitGroup
	rowJobs := make(chan int, numWorkers)
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for y := range rowJobs {
				fy := 0.0
				if height > 1 {
					fy = float64(y) / float64(height-1) * float64(rows-1)
				}
				j0 := int(fy)
				if j0 >= rows-1 {
					j0 = rows - 2
				}
				ty := fy - float64(j0)
				off := dst.PixOffset(bounds.Min.X, bounds.Min.Y+y)
				for x := 0; x < width; x++ {
					fx := 0.0
					if width > 1 {
						fx = float64(x) / float64(width-1) * float64(cols-1)
					}
					i0 := int(fx)
					if i0 >= cols-1 {
						i0 = cols - 2
					}
					tx := fx - float64(i0)
					top := lerp(p.mesh[j0*cols+i0], p.mesh[j0*cols+i0+1], tx)
					bottom := lerp(p.mesh[(j0+1)*cols+i0], p.mesh[(j0+1)*cols+i0+1], tx)
					r, g, b := shade(p.current.color, lerp(top, bottom, ty), p.current.hueOffset, &p.motion)
					dst.Pix[off+0] = r
					dst.Pix[off+1] = g
					dst.Pix[off+2] = b
					dst.Pix[off+3] = 0xff
					off += 4
				}
			}
		}()
	}
	for y := 0; y < height; y++ {
		rowJobs <- y
	}
	close(rowJobs)
	wg.Wait()
}

func (p *Procedural) Close() {
	p.pcm = nil
	p.mesh = nil
	p.prevMesh = nil
}
