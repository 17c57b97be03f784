package output

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// TranscriptionResult represents a single delivered transcription
type TranscriptionResult struct {
	Index     int       `json:"index"`
	Text      string    `json:"text"`
	Autosend  bool      `json:"autosend,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
}

// Event represents a daemon event such as a session starting
type Event struct {
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Formatter is the interface for output formatters
type Formatter interface {
	// WriteResult writes a transcription result
	WriteResult(result TranscriptionResult) error

	// WriteEvent writes a daemon event
	WriteEvent(eventType, message string) error
}

// NewFormatter returns the formatter for "json" or "text"
func NewFormatter(format string, w io.Writer) (Formatter, error) {
	switch format {
	case "json", "":
		return NewJSONFormatter(w), nil
	case "text":
		return NewPlainTextFormatter(w), nil
	default:
		return nil, fmt.Errorf("unknown output format: %s", format)
	}
}

// JSONFormatter writes one JSON object per line
type JSONFormatter struct {
	encoder *json.Encoder
}

// NewJSONFormatter creates a new JSON formatter
func NewJSONFormatter(writer io.Writer) *JSONFormatter {
	return &JSONFormatter{encoder: json.NewEncoder(writer)}
}

// WriteResult writes a transcription result in JSON format
func (j *JSONFormatter) WriteResult(result TranscriptionResult) error {
	result.Type = "transcription"
	return j.encoder.Encode(result)
}

// WriteEvent writes a daemon event
func (j *JSONFormatter) WriteEvent(eventType, message string) error {
	event := Event{
		Type:      eventType,
		Message:   message,
		Timestamp: time.Now(),
	}
	return j.encoder.Encode(event)
}

// PlainTextFormatter outputs transcriptions in plain text format
type PlainTextFormatter struct {
	writer io.Writer
}

// NewPlainTextFormatter creates a new plain text formatter
func NewPlainTextFormatter(writer io.Writer) *PlainTextFormatter {
	return &PlainTextFormatter{
		writer: writer,
	}
}

// WriteResult writes a transcription result in plain text
func (p *PlainTextFormatter) WriteResult(result TranscriptionResult) error {
	timestamp := result.Timestamp.Format("15:04:05")
	_, err := fmt.Fprintf(p.writer, "[%s] %s\n", timestamp, result.Text)
	return err
}

// WriteEvent writes a daemon event
func (p *PlainTextFormatter) WriteEvent(eventType, message string) error {
	timestamp := time.Now().Format("15:04:05")
	_, err := fmt.Fprintf(p.writer, "[%s] [%s] %s\n", timestamp, eventType, message)
	return err
}
