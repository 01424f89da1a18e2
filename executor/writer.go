package executor

import (
	"bytes"
	"sync"
)

// outputStreams line-buffers every output stream of one invocation behind a
// single lock, so callbacks fire in the order the guest wrote. A partial line
// is held until its newline arrives, another stream writes, or Flush.
type outputStreams struct {
	mu      sync.Mutex
	pending bytes.Buffer
	owner   *lineWriter
}

func newOutputStreams() *outputStreams {
	return &outputStreams{}
}

// writer returns an io.Writer for one stream; each complete line, newline
// included, goes to emit.
func (s *outputStreams) writer(emit func(string)) *lineWriter {
	if emit == nil {
		emit = func(string) {}
	}
	return &lineWriter{streams: s, emit: emit}
}

// Flush delivers any buffered partial line.
func (s *outputStreams) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushLocked()
}

func (s *outputStreams) flushLocked() {
	if s.pending.Len() > 0 {
		line := s.pending.String()
		s.pending.Reset()
		s.owner.emit(line)
	}
	s.owner = nil
}

type lineWriter struct {
	streams *outputStreams
	emit    func(string)
}

func (w *lineWriter) Write(data []byte) (int, error) {
	s := w.streams
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.owner != nil && s.owner != w {
		s.flushLocked()
	}
	s.owner = w

	s.pending.Write(data)
	for {
		idx := bytes.IndexByte(s.pending.Bytes(), '\n')
		if idx == -1 {
			break
		}
		w.emit(string(s.pending.Next(idx + 1)))
	}
	if s.pending.Len() == 0 {
		s.pending.Reset()
		s.owner = nil
	}
	return len(data), nil
}
