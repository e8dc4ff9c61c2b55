package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/eiannone/keyboard"

	"github.com/guidoenr/presetdeck/internal/playback"
)

type inputEvent int

const (
	inputToggle inputEvent = iota
	inputNext
	inputPrevious
	inputShuffle
	inputMode
	inputScaleUp
	inputScaleDown
	inputFPS
	inputQuit
)

// keyToInput maps a key press to a host action.
func keyToInput(char rune, key keyboard.Key) (inputEvent, bool) {
	switch key {
	case keyboard.KeyEsc, keyboard.KeyCtrlC:
		return inputQuit, true
	case keyboard.KeySpace:
		return inputToggle, true
	case keyboard.KeyArrowRight:
		return inputNext, true
	case keyboard.KeyArrowLeft:
		return inputPrevious, true
	}
	switch char {
	case 'q', 'Q':
		return inputQuit, true
	case ' ':
		return inputToggle, true
	case 'n', 'N':
		return inputNext, true
	case 'p', 'P':
		return inputPrevious, true
	case 's', 'S':
		return inputShuffle, true
	case 'm', 'M':
		return inputMode, true
	case '+', '=':
		return inputScaleUp, true
	case '-', '_':
		return inputScaleDown, true
	case 'f', 'F':
		return inputFPS, true
	}
	return 0, false
}

// handleInput applies a hotkey. It returns false when the app should quit.
func (a *App) handleInput(evt inputEvent, now time.Time) bool {
	var err error
	switch evt {
	case inputQuit:
		return false
	case inputToggle:
		err = a.coord.Toggle(now)
	case inputNext:
		err = a.coord.Next(now)
	case inputPrevious:
		err = a.coord.Previous(now)
	case inputShuffle:
		a.coord.SetShuffle(!a.coord.Shuffle())
		a.notify(onOff("Shuffle", a.coord.Shuffle()))
		a.saveSettings()
	case inputMode:
		a.coord.SetMode(a.coord.Mode().Next())
		a.notify("Auto-advance: " + a.coord.Mode().String())
		a.saveSettings()
	case inputScaleUp:
		a.surface.SetRenderScalePercent(a.surface.RenderScalePercent() + scaleStep)
		a.saveSettings()
	case inputScaleDown:
		a.surface.SetRenderScalePercent(a.surface.RenderScalePercent() - scaleStep)
		a.saveSettings()
	case inputFPS:
		a.showFPS = !a.showFPS
		a.surface.SetFPSDisplay(a.showFPS)
	}
	if err != nil && !errors.Is(err, playback.ErrEmptyPlaylist) && !errors.Is(err, playback.ErrLoadFailed) {
		a.log.Debugw("hotkey", "event", evt, "error", err)
	}
	return true
}

func onOff(label string, on bool) string {
	if on {
		return label + ": on"
	}
	return label + ": off"
}

func (a *App) startInputListener(ctx context.Context) {
	if err := keyboard.Open(); err != nil {
		a.log.Warnw("keyboard input disabled", "error", err)
		a.inputEvents = nil
		return
	}

	events := make(chan inputEvent, 16)
	a.inputEvents = events

	closeOnce := &sync.Once{}
	go func() {
		<-ctx.Done()
		closeOnce.Do(func() {
			_ = keyboard.Close()
		})
	}()

	go func() {
		defer close(events)
		defer closeOnce.Do(func() {
			_ = keyboard.Close()
		})
		for {
			char, key, err := keyboard.GetKey()
			if err != nil {
				return
			}
			select {
			case <-ctx.Done():
				return
			default:
			}
			evt, ok := keyToInput(char, key)
			if !ok {
				continue
			}
			if evt == inputQuit {
				events <- inputQuit
				return
			}
			select {
			case events <- evt:
			default:
			}
		}
	}()
}
