// Package output collects the text a program produces during a run as one
// ordered sequence of channel-tagged records.
package output

import (
	"fmt"
	"strings"
	"sync"
)

// Channel identifies where a record came from.
type Channel int

const (
	// Normal is text the program wrote to stdout.
	Normal Channel = iota
	// Error is text the program wrote to stderr.
	Error
	// Exception is synthesized by the harness when staging or invocation fails.
	Exception
)

func (c Channel) String() string {
	switch c {
	case Normal:
		return "normal"
	case Error:
		return "error"
	case Exception:
		return "exception"
	default:
		return "unknown"
	}
}

// MarshalText renders the channel by name.
func (c Channel) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText parses a channel name.
func (c *Channel) UnmarshalText(b []byte) error {
	switch string(b) {
	case "normal":
		*c = Normal
	case "error":
		*c = Error
	case "exception":
		*c = Exception
	default:
		return fmt.Errorf("unknown output channel %q", b)
	}
	return nil
}

// Record is a single piece of captured output.
type Record struct {
	Channel Channel `json:"channel"`
	Text    string  `json:"text"`
}

// Sink accumulates records in emission order. It is safe for concurrent use
// so a presentation layer can read while a run is appending.
type Sink struct {
	mu      sync.Mutex
	records []Record
}

// NewSink returns an empty Sink.
func NewSink() *Sink {
	return &Sink{}
}

// Clear discards all records.
func (s *Sink) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
}

// Append adds a record after every record appended before it, regardless of channel.
func (s *Sink) Append(ch Channel, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, Record{Channel: ch, Text: text})
}

// Snapshot returns a copy of the records in order.
func (s *Sink) Snapshot() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// Len returns the number of records.
func (s *Sink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Text concatenates the text of every record.
func (s *Sink) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Join(s.records)
}

// Join concatenates the text of records.
func Join(records []Record) string {
	var b strings.Builder
	for _, r := range records {
		b.WriteString(r.Text)
	}
	return b.String()
}
