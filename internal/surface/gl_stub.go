//go:build !sdl

package surface

import "errors"

// GL is unavailable without the sdl build tag.
type GL struct {
	*Software
}

// NewGL always fails in builds without the sdl tag.
func NewGL(title string, width, height int) (*GL, error) {
	return nil, errors.New("SDL backend not enabled; rebuild with -tags sdl")
}

func (g *GL) Close() error { return nil }

// SupportsGL reports whether this build carries the OpenGL surface.
func SupportsGL() bool { return false }
