package output

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/atotto/clipboard"
	"github.com/micmonay/keybd_event"

	"github.com/emmett/whispering/internal/apperr"
)

// Clipboard holds text for pasting
type Clipboard interface {
	WriteAll(text string) error
}

// Keyboard injects key presses into the focused window
type Keyboard interface {
	// Paste sends the paste shortcut
	Paste() error
	// Enter sends Return
	Enter() error
}

// SystemClipboard is the OS clipboard
type SystemClipboard struct{}

func (SystemClipboard) WriteAll(text string) error {
	return clipboard.WriteAll(text)
}

// KeybdKeyboard injects keys with keybd_event. The virtual device is created
// once at startup; Linux needs it to settle before the first key press.
type KeybdKeyboard struct {
	mu    sync.Mutex
	kb    keybd_event.KeyBonding
	shift bool
}

// linuxSettle is how long uinput takes to register a new device
const linuxSettle = 2 * time.Second

// NewKeyboard creates the virtual keyboard. With shift the paste shortcut is
// Ctrl+Shift+V, which terminals accept as well as editors.
func NewKeyboard(shift bool) (*KeybdKeyboard, error) {
	kb, err := keybd_event.NewKeyBonding()
	if err != nil {
		return nil, err
	}
	if runtime.GOOS == "linux" {
		time.Sleep(linuxSettle)
	}
	return &KeybdKeyboard{kb: kb, shift: shift}, nil
}

func (k *KeybdKeyboard) Paste() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.kb.Clear()
	k.kb.HasCTRL(true)
	k.kb.HasSHIFT(k.shift)
	k.kb.SetKeys(keybd_event.VK_V)
	return k.kb.Launching()
}

func (k *KeybdKeyboard) Enter() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.kb.Clear()
	k.kb.SetKeys(keybd_event.VK_ENTER)
	return k.kb.Launching()
}

// DefaultSettle is the pause between writing the clipboard and pasting
const DefaultSettle = 80 * time.Millisecond

// PasteSink puts text on the clipboard and pastes it into the focused window
type PasteSink struct {
	clipboard Clipboard
	keyboard  Keyboard
	settle    time.Duration
}

// NewPasteSink creates a paste sink
func NewPasteSink(cb Clipboard, kb Keyboard) *PasteSink {
	return &PasteSink{clipboard: cb, keyboard: kb, settle: DefaultSettle}
}

// Deliver pastes text and presses Return when autosend is set. Empty text is
// not pasted.
func (p *PasteSink) Deliver(ctx context.Context, text string, autosend bool) error {
	if text == "" {
		return nil
	}

	if err := p.clipboard.WriteAll(text); err != nil {
		return apperr.Output("write clipboard", err)
	}

	select {
	case <-ctx.Done():
		return apperr.Output("paste", ctx.Err())
	case <-time.After(p.settle):
	}

	if err := p.keyboard.Paste(); err != nil {
		return apperr.Output("paste", err)
	}
	if autosend {
		if err := p.keyboard.Enter(); err != nil {
			return apperr.Output("autosend", err)
		}
	}

	slog.Debug("Pasted text", "chars", len(text), "autosend", autosend)
	return nil
}

func (p *PasteSink) Close() error {
	return nil
}
