package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// EventLog is the process-wide structured event sink described by the
// pipe-delimited log format: a leading "[YYYY-MM-DD HH:MM:SS]" timestamp
// followed by a level and a variable number of pipe-separated fields, one
// line per record. A single mutex serialises writes so lines from
// concurrent handler goroutines never interleave, and every write is
// flushed immediately so a crash never loses a buffered record.
type EventLog struct {
	mu   sync.Mutex
	w    io.Writer
	file *os.File // nil when writing to a non-file sink (e.g. in tests)
}

// NewEventLog opens path in append mode and returns an EventLog writing to
// it. The file is created if it does not already exist.
func NewEventLog(path string) (*EventLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("event log: open %s: %w", path, err)
	}
	el := &EventLog{w: f, file: f}
	el.Logf("SYSTEM", "Logger initialized. Server starting.")
	return el, nil
}

// NewEventLogWriter wraps an arbitrary io.Writer as an EventLog, used by
// tests and by callers that want the event stream on stdout/stderr instead
// of a dedicated file.
func NewEventLogWriter(w io.Writer) *EventLog {
	return &EventLog{w: w}
}

// Close writes a final shutdown record and, if the sink is a file, closes
// it.
func (el *EventLog) Close() error {
	el.Logf("SYSTEM", "Server shutting down. Logger closing.")
	if el.file != nil {
		return el.file.Close()
	}
	return nil
}

// Logf writes one record: level, followed by fields joined with "|", each
// formatted with fmt.Sprint. A record with no fields is just the level.
//
// Example: el.Logf("INFO", "CLIENT", clientID, "CACHE_HIT", url) produces
// "[2024-01-02 15:04:05] INFO|CLIENT|7|CACHE_HIT|http://example.com/"
func (el *EventLog) Logf(level string, fields ...any) {
	var b strings.Builder
	b.WriteByte('[')
	b.WriteString(time.Now().Format("2006-01-02 15:04:05"))
	b.WriteString("] ")
	b.WriteString(level)
	for _, f := range fields {
		b.WriteByte('|')
		fmt.Fprint(&b, f)
	}
	b.WriteByte('\n')

	el.mu.Lock()
	defer el.mu.Unlock()
	io.WriteString(el.w, b.String())
	if el.file != nil {
		el.file.Sync()
	}
}

// Info logs a record at INFO level.
func (el *EventLog) Info(fields ...any) { el.Logf("INFO", fields...) }

// Warn logs a record at WARN level.
func (el *EventLog) Warn(fields ...any) { el.Logf("WARN", fields...) }

// Error logs a record at ERROR level.
func (el *EventLog) Error(fields ...any) { el.Logf("ERROR", fields...) }
