package input

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	hook "github.com/robotn/gohook"
)

// uiohook virtual key codes reported in hook.Event.Keycode
var hookKeycodes = map[uint16]Key{
	0x001D: ControlLeft,
	0x0E1D: ControlRight,
	0x002A: ShiftLeft,
	0x0036: ShiftRight,
	0x0038: AltLeft,
	0x0E38: AltRight,
	0x0E5B: MetaLeft,
	0x0E5C: MetaRight,
	0x0039: Space,
	0x001C: Enter,
	0x0001: Escape,
	0x000F: Tab,
	0x000E: Backspace,
	0x003A: CapsLock,

	0x003B: "F1", 0x003C: "F2", 0x003D: "F3", 0x003E: "F4",
	0x003F: "F5", 0x0040: "F6", 0x0041: "F7", 0x0042: "F8",
	0x0043: "F9", 0x0044: "F10", 0x0057: "F11", 0x0058: "F12",

	0x0002: "Digit1", 0x0003: "Digit2", 0x0004: "Digit3", 0x0005: "Digit4",
	0x0006: "Digit5", 0x0007: "Digit6", 0x0008: "Digit7", 0x0009: "Digit8",
	0x000A: "Digit9", 0x000B: "Digit0",

	0x001E: "KeyA", 0x0030: "KeyB", 0x002E: "KeyC", 0x0020: "KeyD",
	0x0012: "KeyE", 0x0021: "KeyF", 0x0022: "KeyG", 0x0023: "KeyH",
	0x0017: "KeyI", 0x0024: "KeyJ", 0x0025: "KeyK", 0x0026: "KeyL",
	0x0032: "KeyM", 0x0031: "KeyN", 0x0018: "KeyO", 0x0019: "KeyP",
	0x0010: "KeyQ", 0x0013: "KeyR", 0x001F: "KeyS", 0x0014: "KeyT",
	0x0016: "KeyU", 0x002F: "KeyV", 0x0011: "KeyW", 0x002D: "KeyX",
	0x0015: "KeyY", 0x002C: "KeyZ",
}

// HookSource reports every physical key press and release from a global
// keyboard hook.
type HookSource struct {
	mu      sync.Mutex
	events  chan Event
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewHookSource creates a hook source with an event buffer of the given size
func NewHookSource(buffer int) *HookSource {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &HookSource{events: make(chan Event, buffer)}
}

// Start installs the global hook
func (s *HookSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("keyboard hook already running")
	}

	raw := hook.Start()
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.running = true

	go func() {
		defer close(s.done)
		defer close(s.events)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-raw:
				if !ok {
					return
				}
				if e, ok := translateHookEvent(ev); ok {
					if !send(s.events, e) {
						slog.Warn("Key event dropped, consumer too slow", "key", e.Key, "edge", e.Edge)
					}
				}
			}
		}
	}()

	slog.Debug("Keyboard hook started")
	return nil
}

// Stop removes the global hook
func (s *HookSource) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	done := s.done
	s.mu.Unlock()

	hook.End()
	<-done
}

// Events returns the key event channel
func (s *HookSource) Events() <-chan Event {
	return s.events
}

// translateHookEvent maps a raw hook event to a key transition. KeyHold is
// the physical press (KeyDown is the typed-character event and is skipped).
func translateHookEvent(ev hook.Event) (Event, bool) {
	var edge Edge
	switch ev.Kind {
	case hook.KeyHold:
		edge = Down
	case hook.KeyUp:
		edge = Up
	default:
		return Event{}, false
	}

	key, ok := hookKeycodes[ev.Keycode]
	if !ok {
		return Event{}, false
	}
	return Event{Key: key, Edge: edge, Time: ev.When}, true
}
