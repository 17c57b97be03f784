package output

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// ConsoleOutput prints daemon status lines on a terminal. It satisfies
// notify.Notifier so a dry run shows the same labels a desktop notification
// would.
type ConsoleOutput struct {
	mu            sync.Mutex
	writer        io.Writer
	showTimestamp bool
}

// ConsoleConfig configures console output behavior
type ConsoleConfig struct {
	// ShowTimestamp prefixes each line with a timestamp
	ShowTimestamp bool

	// Writer is the output destination (default: os.Stderr)
	Writer io.Writer
}

// NewConsoleOutput creates a new console output handler
func NewConsoleOutput(config ConsoleConfig) *ConsoleOutput {
	writer := config.Writer
	if writer == nil {
		writer = os.Stderr
	}

	return &ConsoleOutput{
		writer:        writer,
		showTimestamp: config.ShowTimestamp,
	}
}

// Notify writes the label and, when present, the body on one line
func (c *ConsoleOutput) Notify(label, body string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.showTimestamp {
		fmt.Fprintf(c.writer, "[%s] ", time.Now().Format("15:04:05"))
	}
	if body == "" || body == label {
		fmt.Fprintf(c.writer, "[*] %s\n", label)
		return
	}
	fmt.Fprintf(c.writer, "[*] %s: %s\n", label, body)
}
