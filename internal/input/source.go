package input

import (
	"context"
	"fmt"
)

// Source is the interface for key event producers
type Source interface {
	// Start begins delivering events until ctx is cancelled or Stop is called
	Start(ctx context.Context) error

	// Stop releases the OS hook and closes the event channel
	Stop()

	// Events returns the channel of key transitions
	Events() <-chan Event
}

// DefaultBuffer is the event channel capacity used by the adapters.
const DefaultBuffer = 32

// NewSource creates the named input backend: "hook" for per-key events from a
// global keyboard hook, "hotkey" for OS hotkeys registered for each combo.
func NewSource(kind string, combos ...Combo) (Source, error) {
	switch kind {
	case "", "hook":
		return NewHookSource(DefaultBuffer), nil
	case "hotkey":
		return NewHotkeySource(combos, DefaultBuffer)
	default:
		return nil, fmt.Errorf("unknown input backend: %s", kind)
	}
}

// send delivers ev without blocking the OS callback goroutine.
func send(ch chan<- Event, ev Event) bool {
	select {
	case ch <- ev:
		return true
	default:
		return false
	}
}
