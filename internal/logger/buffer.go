package logger

import (
	"encoding/json"
	"io"
	"strings"
	"sync"
	"time"
)

// Entry is one captured log line.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Component string    `json:"component,omitempty"`
	Message   string    `json:"message"`
	Caller    string    `json:"caller,omitempty"`
}

// Buffer is a fixed-size ring of recent log entries. It backs the logs
// endpoint so operators can inspect recent activity without shell access.
type Buffer struct {
	mu      sync.RWMutex
	entries []Entry
	next    int
	count   int
}

var (
	globalBuffer *Buffer
	bufferOnce   sync.Once
)

// GetBuffer returns the process-wide log buffer.
func GetBuffer() *Buffer {
	bufferOnce.Do(func() {
		globalBuffer = NewBuffer(10000)
	})
	return globalBuffer
}

// NewBuffer creates a buffer holding up to size entries.
func NewBuffer(size int) *Buffer {
	return &Buffer{entries: make([]Entry, size)}
}

// Add appends an entry, evicting the oldest once the ring is full.
func (b *Buffer) Add(e Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries[b.next] = e
	b.next = (b.next + 1) % len(b.entries)
	if b.count < len(b.entries) {
		b.count++
	}
}

// Count returns the number of entries currently held.
func (b *Buffer) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// Recent returns up to limit entries newer than the since cutoff, most
// recent first. A non-empty level keeps only entries at that severity or
// above.
func (b *Buffer) Recent(limit int, level string, since time.Duration) []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if limit <= 0 || limit > b.count {
		limit = b.count
	}
	cutoff := time.Now().Add(-since)

	var out []Entry
	for i := 0; i < b.count && len(out) < limit; i++ {
		idx := (b.next - 1 - i + len(b.entries)) % len(b.entries)
		e := b.entries[idx]
		if e.Timestamp.Before(cutoff) {
			continue
		}
		if level != "" && !atLeastLevel(e.Level, level) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func levelRank(level string) (int, bool) {
	switch strings.ToLower(level) {
	case "debug":
		return 0, true
	case "info":
		return 1, true
	case "warn", "warning":
		return 2, true
	case "error":
		return 3, true
	case "fatal":
		return 4, true
	}
	return 0, false
}

func atLeastLevel(entryLevel, filter string) bool {
	er, ok1 := levelRank(entryLevel)
	fr, ok2 := levelRank(filter)
	if !ok1 || !ok2 {
		return strings.EqualFold(entryLevel, filter)
	}
	return er >= fr
}

// captureWriter tees zerolog's JSON output into the global buffer before
// forwarding it to the real destination.
type captureWriter struct {
	buffer *Buffer
	next   io.Writer
}

func newCaptureWriter(next io.Writer) *captureWriter {
	return &captureWriter{buffer: GetBuffer(), next: next}
}

func (w *captureWriter) Write(p []byte) (n int, err error) {
	if w.next != nil {
		n, err = w.next.Write(p)
	} else {
		n = len(p)
	}

	if e, ok := parseLine(p); ok {
		w.buffer.Add(e)
	}
	return n, err
}

func parseLine(p []byte) (Entry, bool) {
	var line struct {
		Level     string `json:"level"`
		Component string `json:"component"`
		Message   string `json:"message"`
		Caller    string `json:"caller"`
		Time      string `json:"time"`
	}
	if err := json.Unmarshal(p, &line); err != nil {
		return Entry{}, false
	}
	if line.Level == "" && line.Message == "" {
		return Entry{}, false
	}

	e := Entry{
		Timestamp: time.Now(),
		Level:     line.Level,
		Component: line.Component,
		Message:   line.Message,
		Caller:    line.Caller,
	}
	if t, err := time.Parse(time.RFC3339, line.Time); err == nil {
		e.Timestamp = t
	}
	return e, true
}
