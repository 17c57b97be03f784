package input

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.design/x/hotkey"
)

// HotkeySource registers each combination as an OS hotkey and expands the
// hotkey's down/up notifications into per-key events. It is the fallback for
// desktops where a global keyboard hook is not permitted; left and right
// modifiers are indistinguishable to the OS hotkey API.
type HotkeySource struct {
	mu      sync.Mutex
	combos  []Combo
	hks     []*hotkey.Hotkey
	events  chan Event
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewHotkeySource validates combos for registration
func NewHotkeySource(combos []Combo, buffer int) (*HotkeySource, error) {
	if len(combos) == 0 {
		return nil, fmt.Errorf("no key combination to register")
	}
	for _, c := range combos {
		if _, _, err := hotkeyFor(c); err != nil {
			return nil, fmt.Errorf("invalid hotkey %s: %w", c, err)
		}
	}
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &HotkeySource{combos: combos, events: make(chan Event, buffer)}, nil
}

// Start begins listening for hotkey events
func (h *HotkeySource) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running {
		return fmt.Errorf("hotkeys already registered")
	}

	for _, combo := range h.combos {
		mods, key, _ := hotkeyFor(combo)
		hk := hotkey.New(mods, key)
		if err := hk.Register(); err != nil {
			h.unregisterLocked()
			return fmt.Errorf("failed to register hotkey %s: %w", combo, err)
		}
		h.hks = append(h.hks, hk)
	}

	ctx, h.cancel = context.WithCancel(ctx)
	h.running = true

	for i, hk := range h.hks {
		h.wg.Add(1)
		go h.listen(ctx, hk, h.combos[i])
	}
	go func() {
		h.wg.Wait()
		close(h.events)
	}()

	slog.Debug("Hotkeys registered", "count", len(h.hks))
	return nil
}

func (h *HotkeySource) listen(ctx context.Context, hk *hotkey.Hotkey, combo Combo) {
	defer h.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-hk.Keydown():
			if !ok {
				return
			}
			now := time.Now()
			for _, k := range combo {
				h.emit(Event{Key: k, Edge: Down, Time: now})
			}
		case _, ok := <-hk.Keyup():
			if !ok {
				return
			}
			now := time.Now()
			for i := len(combo) - 1; i >= 0; i-- {
				h.emit(Event{Key: combo[i], Edge: Up, Time: now})
			}
		}
	}
}

func (h *HotkeySource) emit(ev Event) {
	if !send(h.events, ev) {
		slog.Warn("Key event dropped, consumer too slow", "key", ev.Key, "edge", ev.Edge)
	}
}

// Stop unregisters the hotkeys
func (h *HotkeySource) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	h.cancel()
	h.unregisterLocked()
	h.mu.Unlock()

	// Wait briefly for listeners to exit
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
	}
}

func (h *HotkeySource) unregisterLocked() {
	for _, hk := range h.hks {
		if err := hk.Unregister(); err != nil {
			slog.Debug("Hotkey unregister failed", "error", err)
		}
	}
	h.hks = nil
}

// Events returns the key event channel
func (h *HotkeySource) Events() <-chan Event {
	return h.events
}

// hotkeyFor splits a combination into OS modifiers and exactly one key
func hotkeyFor(c Combo) ([]hotkey.Modifier, hotkey.Key, error) {
	var mods []hotkey.Modifier
	var key hotkey.Key
	var keyFound bool

	for _, k := range c {
		switch k {
		case ControlLeft, ControlRight:
			mods = append(mods, hotkey.ModCtrl)
		case ShiftLeft, ShiftRight:
			mods = append(mods, hotkey.ModShift)
		case AltLeft, AltRight:
			mods = append(mods, modAlt())
		case MetaLeft, MetaRight:
			mods = append(mods, modSuper())
		default:
			if keyFound {
				return nil, 0, fmt.Errorf("multiple non-modifier keys specified")
			}
			hk, err := parseKey(keyName(k))
			if err != nil {
				return nil, 0, err
			}
			key = hk
			keyFound = true
		}
	}

	if !keyFound {
		return nil, 0, fmt.Errorf("no key specified")
	}

	return mods, key, nil
}

// keyName converts a canonical key to the short lower-case name parseKey uses
func keyName(k Key) string {
	s := string(k)
	switch {
	case strings.HasPrefix(s, "Key") && len(s) == 4:
		return strings.ToLower(s[3:])
	case strings.HasPrefix(s, "Digit") && len(s) == 6:
		return s[5:]
	case k == Enter:
		return "return"
	default:
		return strings.ToLower(s)
	}
}

// parseKey parses a key name to hotkey.Key
func parseKey(s string) (hotkey.Key, error) {
	switch s {
	case "space":
		return hotkey.KeySpace, nil
	case "return", "enter":
		return hotkey.KeyReturn, nil
	case "tab":
		return hotkey.KeyTab, nil
	case "escape", "esc":
		return hotkey.KeyEscape, nil
	case "a":
		return hotkey.KeyA, nil
	case "b":
		return hotkey.KeyB, nil
	case "c":
		return hotkey.KeyC, nil
	case "d":
		return hotkey.KeyD, nil
	case "e":
		return hotkey.KeyE, nil
	case "f":
		return hotkey.KeyF, nil
	case "g":
		return hotkey.KeyG, nil
	case "h":
		return hotkey.KeyH, nil
	case "i":
		return hotkey.KeyI, nil
	case "j":
		return hotkey.KeyJ, nil
	case "k":
		return hotkey.KeyK, nil
	case "l":
		return hotkey.KeyL, nil
	case "m":
		return hotkey.KeyM, nil
	case "n":
		return hotkey.KeyN, nil
	case "o":
		return hotkey.KeyO, nil
	case "p":
		return hotkey.KeyP, nil
	case "q":
		return hotkey.KeyQ, nil
	case "r":
		return hotkey.KeyR, nil
	case "s":
		return hotkey.KeyS, nil
	case "t":
		return hotkey.KeyT, nil
	case "u":
		return hotkey.KeyU, nil
	case "v":
		return hotkey.KeyV, nil
	case "w":
		return hotkey.KeyW, nil
	case "x":
		return hotkey.KeyX, nil
	case "y":
		return hotkey.KeyY, nil
	case "z":
		return hotkey.KeyZ, nil
	case "0":
		return hotkey.Key0, nil
	case "1":
		return hotkey.Key1, nil
	case "2":
		return hotkey.Key2, nil
	case "3":
		return hotkey.Key3, nil
	case "4":
		return hotkey.Key4, nil
	case "5":
		return hotkey.Key5, nil
	case "6":
		return hotkey.Key6, nil
	case "7":
		return hotkey.Key7, nil
	case "8":
		return hotkey.Key8, nil
	case "9":
		return hotkey.Key9, nil
	case "f1":
		return hotkey.KeyF1, nil
	case "f2":
		return hotkey.KeyF2, nil
	case "f3":
		return hotkey.KeyF3, nil
	case "f4":
		return hotkey.KeyF4, nil
	case "f5":
		return hotkey.KeyF5, nil
	case "f6":
		return hotkey.KeyF6, nil
	case "f7":
		return hotkey.KeyF7, nil
	case "f8":
		return hotkey.KeyF8, nil
	case "f9":
		return hotkey.KeyF9, nil
	case "f10":
		return hotkey.KeyF10, nil
	case "f11":
		return hotkey.KeyF11, nil
	case "f12":
		return hotkey.KeyF12, nil
	default:
		return 0, fmt.Errorf("unknown key: %s", s)
	}
}
