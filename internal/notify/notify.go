// Package notify shows short status messages to the user.
package notify

import (
	"log/slog"

	"github.com/gen2brain/beeep"
)

// Labels shown for session transitions
const (
	Listening       = "Listening"
	Recording       = "Recording"
	Transcribing    = "Transcribing"
	NoVoiceDetected = "No voice detected"
)

// SummaryLength is how many characters of a transcription the label shows
const SummaryLength = 20

// Notifier shows a message. Implementations must not block the caller.
type Notifier interface {
	Notify(label, body string)
}

// Desktop posts OS notifications through beeep
type Desktop struct {
	notify func(title, message, appIcon string) error
}

// NewDesktop creates a desktop notifier
func NewDesktop() *Desktop {
	return &Desktop{notify: beeep.Notify}
}

// Notify posts in the background; failures are logged
func (d *Desktop) Notify(label, body string) {
	go func() {
		if err := d.notify(label, body, ""); err != nil {
			slog.Warn("Cannot show notification", "label", label, "error", err)
		}
	}()
}

// Disabled drops every message
type Disabled struct{}

func (Disabled) Notify(string, string) {}

// Summary shortens text for a notification label: the first SummaryLength
// characters followed by "..".
func Summary(text string) string {
	runes := []rune(text)
	if len(runes) <= SummaryLength {
		return text
	}
	return string(runes[:SummaryLength]) + ".."
}
