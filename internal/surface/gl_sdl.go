//go:build sdl

package surface

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/go-gl/gl/v3.3-core/gl"
	"github.com/veandco/go-sdl2/sdl"
)

const upscaleVertexShader = `#version 330 core
out vec2 vUv;

void main() {
  vec2 pos;
  if (gl_VertexID == 0) {
    pos = vec2(-1.0, -1.0);
  } else if (gl_VertexID == 1) {
    pos = vec2(3.0, -1.0);
  } else {
    pos = vec2(-1.0, 3.0);
  }
  vUv = 0.5 * (pos + 1.0);
  gl_Position = vec4(pos, 0.0, 1.0);
}
` + "\x00"

const upscaleFragmentShader = `#version 330 core
in vec2 vUv;
out vec4 fragColor;

uniform sampler2D uSourceTex;
uniform vec2 uSourceInvSize;
uniform float uSharpness;

void main() {
  vec3 center = texture(uSourceTex, vUv).rgb;
  vec3 north = texture(uSourceTex, vUv + vec2(0.0, uSourceInvSize.y)).rgb;
  vec3 south = texture(uSourceTex, vUv - vec2(0.0, uSourceInvSize.y)).rgb;
  vec3 east = texture(uSourceTex, vUv + vec2(uSourceInvSize.x, 0.0)).rgb;
  vec3 west = texture(uSourceTex, vUv - vec2(uSourceInvSize.x, 0.0)).rgb;

  vec3 laplacian = (north + south + east + west) - (4.0 * center);
  fragColor = vec4(clamp(center - (uSharpness * laplacian), 0.0, 1.0), 1.0);
}
` + "\x00"

// GL composes on the CPU like Software, but runs the upscale pass as a
// GLSL program and presents through an SDL OpenGL window.
type GL struct {
	*Software

	window *sdl.Window
	ctx    sdl.GLContext

	source       uint32
	sourceWidth  int
	sourceHeight int

	program  uint32
	vao      uint32
	uTex     int32
	uInvSize int32
	uSharp   int32

	output       uint32
	outputFBO    uint32
	outputWidth  int
	outputHeight int

	present       uint32
	presentFBO    uint32
	presentWidth  int
	presentHeight int
}

// NewGL opens a window with a 3.3 core context. Must be called from the
// goroutine that will keep painting.
func NewGL(title string, width, height int) (*GL, error) {
	runtime.LockOSThread()
	if err := sdl.InitSubSystem(sdl.INIT_VIDEO); err != nil {
		return nil, fmt.Errorf("sdl init: %w", err)
	}
	_ = sdl.GLSetAttribute(sdl.GL_CONTEXT_MAJOR_VERSION, 3)
	_ = sdl.GLSetAttribute(sdl.GL_CONTEXT_MINOR_VERSION, 3)
	_ = sdl.GLSetAttribute(sdl.GL_CONTEXT_PROFILE_MASK, sdl.GL_CONTEXT_PROFILE_CORE)
	_ = sdl.GLSetAttribute(sdl.GL_DOUBLEBUFFER, 1)

	window, err := sdl.CreateWindow(title,
		sdl.WINDOWPOS_CENTERED, sdl.WINDOWPOS_CENTERED,
		int32(width), int32(height),
		sdl.WINDOW_OPENGL|sdl.WINDOW_RESIZABLE|sdl.WINDOW_SHOWN)
	if err != nil {
		sdl.QuitSubSystem(sdl.INIT_VIDEO)
		return nil, fmt.Errorf("create window: %w", err)
	}
	ctx, err := window.GLCreateContext()
	if err != nil {
		window.Destroy()
		sdl.QuitSubSystem(sdl.INIT_VIDEO)
		return nil, fmt.Errorf("create gl context: %w", err)
	}
	if err := gl.Init(); err != nil {
		sdl.GLDeleteContext(ctx)
		window.Destroy()
		sdl.QuitSubSystem(sdl.INIT_VIDEO)
		return nil, fmt.Errorf("gl init: %w", err)
	}
	_ = sdl.GLSetSwapInterval(1)

	g := &GL{window: window, ctx: ctx}
	w, h := g.drawableSize()
	g.Software = NewSoftware(w, h, nil)
	return g, nil
}

func (g *GL) drawableSize() (int, int) {
	w, h := g.window.GLGetDrawableSize()
	return max(1, int(w)), max(1, int(h))
}

func (g *GL) OutputSize() (int, int) {
	return g.drawableSize()
}

func (g *GL) EnsureTarget(width, height int) error {
	if width <= 0 || height <= 0 {
		g.ReleaseTarget()
		return ErrNoTarget
	}
	if g.source != 0 && g.sourceWidth == width && g.sourceHeight == height {
		return nil
	}
	g.ReleaseTarget()
	g.source = newTexture(width, height)
	g.sourceWidth = width
	g.sourceHeight = height
	return nil
}

func (g *GL) ReleaseTarget() {
	if g.source != 0 {
		gl.DeleteTextures(1, &g.source)
		g.source = 0
	}
	g.sourceWidth = 0
	g.sourceHeight = 0
}

func (g *GL) HasTarget() bool {
	return g.source != 0
}

func (g *GL) CompileProgram() error {
	if g.program != 0 {
		return nil
	}
	vs, err := compileShader(gl.VERTEX_SHADER, upscaleVertexShader)
	if err != nil {
		return err
	}
	fs, err := compileShader(gl.FRAGMENT_SHADER, upscaleFragmentShader)
	if err != nil {
		gl.DeleteShader(vs)
		return err
	}
	program := gl.CreateProgram()
	gl.AttachShader(program, vs)
	gl.AttachShader(program, fs)
	gl.LinkProgram(program)
	gl.DeleteShader(vs)
	gl.DeleteShader(fs)

	var linked int32
	gl.GetProgramiv(program, gl.LINK_STATUS, &linked)
	if linked == gl.FALSE {
		log := programLog(program)
		gl.DeleteProgram(program)
		return fmt.Errorf("%w: link: %s", ErrShaderUnavailable, log)
	}

	g.program = program
	g.uTex = gl.GetUniformLocation(program, gl.Str("uSourceTex\x00"))
	g.uInvSize = gl.GetUniformLocation(program, gl.Str("uSourceInvSize\x00"))
	g.uSharp = gl.GetUniformLocation(program, gl.Str("uSharpness\x00"))
	gl.GenVertexArrays(1, &g.vao)
	return nil
}

func (g *GL) ReleaseProgram() {
	if g.vao != 0 {
		gl.DeleteVertexArrays(1, &g.vao)
		g.vao = 0
	}
	if g.program != 0 {
		gl.DeleteProgram(g.program)
		g.program = 0
	}
	g.releaseOutput()
}

// CopyToTarget uploads the rendered viewport into the source texture.
func (g *GL) CopyToTarget(width, height int) error {
	if g.source == 0 {
		return ErrNoTarget
	}
	fb := g.Frame()
	gl.BindTexture(gl.TEXTURE_2D, g.source)
	gl.PixelStorei(gl.UNPACK_ROW_LENGTH, int32(fb.Stride/4))
	gl.TexSubImage2D(gl.TEXTURE_2D, 0, 0, 0, int32(width), int32(height), gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(fb.Pix))
	gl.PixelStorei(gl.UNPACK_ROW_LENGTH, 0)
	gl.BindTexture(gl.TEXTURE_2D, 0)
	return nil
}

// DrawUpscaled runs the sharpen pass into an offscreen target and reads the
// result back so CPU overlays compose on top of it.
func (g *GL) DrawUpscaled(width, height int, sharpness float64) error {
	if g.source == 0 {
		return ErrNoTarget
	}
	if g.program == 0 {
		return ErrShaderUnavailable
	}
	g.ensureOutput(width, height)

	gl.BindFramebuffer(gl.FRAMEBUFFER, g.outputFBO)
	gl.Viewport(0, 0, int32(width), int32(height))
	gl.Disable(gl.BLEND)
	gl.UseProgram(g.program)
	gl.ActiveTexture(gl.TEXTURE0)
	gl.BindTexture(gl.TEXTURE_2D, g.source)
	gl.Uniform1i(g.uTex, 0)
	gl.Uniform2f(g.uInvSize, 1/float32(g.sourceWidth), 1/float32(g.sourceHeight))
	gl.Uniform1f(g.uSharp, float32(sharpness))
	gl.BindVertexArray(g.vao)
	gl.DrawArrays(gl.TRIANGLES, 0, 3)
	gl.BindVertexArray(0)
	gl.BindTexture(gl.TEXTURE_2D, 0)
	gl.UseProgram(0)

	fb := g.Frame()
	gl.PixelStorei(gl.PACK_ROW_LENGTH, int32(fb.Stride/4))
	gl.ReadPixels(0, 0, int32(width), int32(height), gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(fb.Pix))
	gl.PixelStorei(gl.PACK_ROW_LENGTH, 0)
	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
	return nil
}

// Present blits the composed frame to the window and pumps SDL events.
func (g *GL) Present() error {
	fb := g.Frame()
	w, h := fb.Bounds().Dx(), fb.Bounds().Dy()
	if g.present == 0 || g.presentWidth != w || g.presentHeight != h {
		g.releasePresent()
		g.present = newTexture(w, h)
		gl.GenFramebuffers(1, &g.presentFBO)
		gl.BindFramebuffer(gl.READ_FRAMEBUFFER, g.presentFBO)
		gl.FramebufferTexture2D(gl.READ_FRAMEBUFFER, gl.COLOR_ATTACHMENT0, gl.TEXTURE_2D, g.present, 0)
		g.presentWidth = w
		g.presentHeight = h
	}
	gl.BindTexture(gl.TEXTURE_2D, g.present)
	gl.TexSubImage2D(gl.TEXTURE_2D, 0, 0, 0, int32(w), int32(h), gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(fb.Pix))
	gl.BindTexture(gl.TEXTURE_2D, 0)

	// row 0 of the frame is the top; flip while blitting
	gl.BindFramebuffer(gl.READ_FRAMEBUFFER, g.presentFBO)
	gl.BindFramebuffer(gl.DRAW_FRAMEBUFFER, 0)
	gl.BlitFramebuffer(0, 0, int32(w), int32(h), 0, int32(h), int32(w), 0, gl.COLOR_BUFFER_BIT, gl.NEAREST)
	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
	g.window.GLSwap()

	for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
		switch ev := event.(type) {
		case *sdl.QuitEvent:
			return ErrQuit
		case *sdl.KeyboardEvent:
			if ev.Type == sdl.KEYDOWN && ev.Keysym.Sym == sdl.K_ESCAPE {
				return ErrQuit
			}
		}
	}
	return nil
}

func (g *GL) ensureOutput(width, height int) {
	if g.output != 0 && g.outputWidth == width && g.outputHeight == height {
		return
	}
	g.releaseOutput()
	g.output = newTexture(width, height)
	gl.GenFramebuffers(1, &g.outputFBO)
	gl.BindFramebuffer(gl.FRAMEBUFFER, g.outputFBO)
	gl.FramebufferTexture2D(gl.FRAMEBUFFER, gl.COLOR_ATTACHMENT0, gl.TEXTURE_2D, g.output, 0)
	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
	g.outputWidth = width
	g.outputHeight = height
}

func (g *GL) releaseOutput() {
	if g.outputFBO != 0 {
		gl.DeleteFramebuffers(1, &g.outputFBO)
		g.outputFBO = 0
	}
	if g.output != 0 {
		gl.DeleteTextures(1, &g.output)
		g.output = 0
	}
	g.outputWidth = 0
	g.outputHeight = 0
}

func (g *GL) releasePresent() {
	if g.presentFBO != 0 {
		gl.DeleteFramebuffers(1, &g.presentFBO)
		g.presentFBO = 0
	}
	if g.present != 0 {
		gl.DeleteTextures(1, &g.present)
		g.present = 0
	}
}

// Close releases every GL object, the context and the window.
func (g *GL) Close() error {
	g.ReleaseTarget()
	g.ReleaseProgram()
	g.releasePresent()
	if g.ctx != nil {
		sdl.GLDeleteContext(g.ctx)
		g.ctx = nil
	}
	if g.window != nil {
		_ = g.window.Destroy()
		g.window = nil
	}
	sdl.QuitSubSystem(sdl.INIT_VIDEO)
	return nil
}

func newTexture(width, height int) uint32 {
	var tex uint32
	gl.GenTextures(1, &tex)
	gl.BindTexture(gl.TEXTURE_2D, tex)
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA8, int32(width), int32(height), 0, gl.RGBA, gl.UNSIGNED_BYTE, nil)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)
	gl.BindTexture(gl.TEXTURE_2D, 0)
	return tex
}

func compileShader(kind uint32, source string) (uint32, error) {
	shader := gl.CreateShader(kind)
	if shader == 0 {
		return 0, fmt.Errorf("%w: create shader", ErrShaderUnavailable)
	}
	csrc, free := gl.Strs(source)
	gl.ShaderSource(shader, 1, csrc, nil)
	free()
	gl.CompileShader(shader)

	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status == gl.TRUE {
		return shader, nil
	}
	var logLength int32
	gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &logLength)
	log := strings.Repeat("\x00", int(logLength+1))
	gl.GetShaderInfoLog(shader, logLength, nil, gl.Str(log))
	gl.DeleteShader(shader)
	return 0, fmt.Errorf("%w: compile: %s", ErrShaderUnavailable, strings.TrimRight(log, "\x00"))
}

func programLog(program uint32) string {
	var logLength int32
	gl.GetProgramiv(program, gl.INFO_LOG_LENGTH, &logLength)
	log := strings.Repeat("\x00", int(logLength+1))
	gl.GetProgramInfoLog(program, logLength, nil, gl.Str(log))
	return strings.TrimRight(log, "\x00")
}

// SupportsGL reports whether this build carries the OpenGL surface.
func SupportsGL() bool { return true }
