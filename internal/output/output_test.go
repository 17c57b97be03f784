package output

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/emmett/whispering/internal/apperr"
)

type fakeClipboard struct {
	text string
	err  error
}

func (f *fakeClipboard) WriteAll(text string) error {
	if f.err != nil {
		return f.err
	}
	f.text = text
	return nil
}

type fakeKeyboard struct {
	keys     []string
	pasteErr error
}

func (f *fakeKeyboard) Paste() error {
	if f.pasteErr != nil {
		return f.pasteErr
	}
	f.keys = append(f.keys, "paste")
	return nil
}

func (f *fakeKeyboard) Enter() error {
	f.keys = append(f.keys, "enter")
	return nil
}

func newTestPasteSink(cb Clipboard, kb Keyboard) *PasteSink {
	p := NewPasteSink(cb, kb)
	p.settle = 0
	return p
}

func TestPasteSink(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		autosend bool
		wantKeys []string
	}{
		{"paste", "hello world", false, []string{"paste"}},
		{"autosend", "ship it", true, []string{"paste", "enter"}},
		{"empty", "", true, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb := &fakeClipboard{}
			kb := &fakeKeyboard{}
			sink := newTestPasteSink(cb, kb)

			if err := sink.Deliver(context.Background(), tt.text, tt.autosend); err != nil {
				t.Fatalf("Deliver() error = %v", err)
			}
			if cb.text != tt.text {
				t.Errorf("clipboard = %q, want %q", cb.text, tt.text)
			}
			if strings.Join(kb.keys, ",") != strings.Join(tt.wantKeys, ",") {
				t.Errorf("keys = %v, want %v", kb.keys, tt.wantKeys)
			}
		})
	}
}

func TestPasteSinkErrorsAreOutputKind(t *testing.T) {
	tests := []struct {
		name string
		cb   *fakeClipboard
		kb   *fakeKeyboard
	}{
		{"clipboard", &fakeClipboard{err: errors.New("no display")}, &fakeKeyboard{}},
		{"keyboard", &fakeClipboard{}, &fakeKeyboard{pasteErr: errors.New("uinput denied")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := newTestPasteSink(tt.cb, tt.kb).Deliver(context.Background(), "text", true)
			if !apperr.Is(err, apperr.KindOutput) {
				t.Errorf("Deliver() error = %v, want output kind", err)
			}
			if len(tt.kb.keys) != 0 {
				t.Errorf("keys = %v, want none after failure", tt.kb.keys)
			}
		})
	}
}

func TestStreamSinkJSONLines(t *testing.T) {
	var buf bytes.Buffer
	sink, err := NewStreamSink("json", &buf, nil)
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	sink.Deliver(ctx, "first", false)
	sink.Event("session_started", "recording")
	sink.Deliver(ctx, "second", true)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3:\n%s", len(lines), buf.String())
	}

	var second TranscriptionResult
	if err := json.Unmarshal([]byte(lines[2]), &second); err != nil {
		t.Fatal(err)
	}
	if second.Index != 2 || second.Text != "second" || !second.Autosend || second.Type != "transcription" {
		t.Errorf("second = %+v, want index 2 text second autosend", second)
	}

	var ev Event
	if err := json.Unmarshal([]byte(lines[1]), &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Type != "session_started" {
		t.Errorf("event type = %q, want session_started", ev.Type)
	}
}

func TestStreamSinkText(t *testing.T) {
	var buf bytes.Buffer
	sink, err := NewStreamSink("text", &buf, nil)
	if err != nil {
		t.Fatal(err)
	}
	sink.Deliver(context.Background(), "hello", false)

	if !strings.HasSuffix(buf.String(), "] hello\n") {
		t.Errorf("output = %q, want timestamped line", buf.String())
	}
}

func TestNewFormatterUnknown(t *testing.T) {
	if _, err := NewFormatter("xml", &bytes.Buffer{}); err == nil {
		t.Error("NewFormatter(xml) error = nil, want error")
	}
}

func TestConsoleNotify(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsoleOutput(ConsoleConfig{Writer: &buf})
	c.Notify("Recording", "")
	c.Notify("hello world", "hello world")
	c.Notify("Transcription failed", "model crashed")

	want := "[*] Recording\n[*] hello world\n[*] Transcription failed: model crashed\n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}
}
