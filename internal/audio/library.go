package audio

import (
	"fmt"
	"sync"
)

// library brackets a process-wide client library with reference-counted init/deinit.
type library struct {
	name   string
	init   func() error
	deinit func() error

	mu   sync.Mutex
	refs int
}

// Guard releases one library reference. Release is idempotent.
type Guard struct {
	lib  *library
	once sync.Once
	err  error
}

func (l *library) acquire() (*Guard, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.refs == 0 && l.init != nil {
		if err := l.init(); err != nil {
			return nil, fmt.Errorf("%s init: %w", l.name, err)
		}
	}
	l.refs++
	return &Guard{lib: l}, nil
}

func (l *library) references() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.refs
}

// Release drops the reference and deinitializes the library when it was the last one.
func (g *Guard) Release() error {
	if g == nil {
		return nil
	}
	g.once.Do(func() {
		l := g.lib
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.refs == 0 {
			return
		}
		l.refs--
		if l.refs == 0 && l.deinit != nil {
			if err := l.deinit(); err != nil {
				g.err = fmt.Errorf("%s deinit: %w", l.name, err)
			}
		}
	})
	return g.err
}
