package audio

import (
	"fmt"

	"go.uber.org/multierr"
)

// teardown releases acquired resources in reverse acquisition order.
type teardown struct {
	steps []teardownStep
}

type teardownStep struct {
	name string
	fn   func() error
}

func (t *teardown) push(name string, fn func() error) {
	t.steps = append(t.steps, teardownStep{name: name, fn: fn})
}

// run unwinds every step, even when earlier ones fail, and empties the stack.
func (t *teardown) run() error {
	var err error
	for i := len(t.steps) - 1; i >= 0; i-- {
		step := t.steps[i]
		if stepErr := step.fn(); stepErr != nil {
			err = multierr.Append(err, fmt.Errorf("release %s: %w", step.name, stepErr))
		}
	}
	t.steps = nil
	return err
}

func (t *teardown) len() int {
	return len(t.steps)
}
