package httpapi

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/custodia-labs/docqa/internal/core/ports/driven"
)

// Ensure TokenStream implements the interface.
var _ driven.TokenStream = (*TokenStream)(nil)

// maxLine is the longest stream line accepted.
const maxLine = 1 << 20

// Framing selects how a streamed body is split into payloads.
type Framing int

// Stream framings.
const (
	// FramingSSE reads server-sent events and yields each "data:" payload.
	FramingSSE Framing = iota

	// FramingNDJSON yields each non-empty line.
	FramingNDJSON
)

// DecodeFunc turns one payload into a text fragment. done reports the
// provider's end-of-output marker.
type DecodeFunc func(payload []byte) (fragment string, done bool, err error)

// TokenStream adapts a streamed HTTP body to driven.TokenStream.
type TokenStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	framing Framing
	decode  DecodeFunc
	name    string

	mu   sync.Mutex
	done bool
	err  error

	closeOnce sync.Once
	closeErr  error
}

// NewTokenStream reads fragments from body. The stream owns body.
func NewTokenStream(name string, body io.ReadCloser, framing Framing, decode DecodeFunc) *TokenStream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)
	return &TokenStream{
		body:    body,
		scanner: scanner,
		framing: framing,
		decode:  decode,
		name:    name,
	}
}

// Next returns the next non-empty fragment, io.EOF after the end marker,
// or io.ErrUnexpectedEOF if the body ends without one.
func (s *TokenStream) Next() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done {
		return "", io.EOF
	}
	if s.err != nil {
		return "", s.err
	}

	for s.scanner.Scan() {
		payload, ok := s.payload(s.scanner.Bytes())
		if !ok {
			continue
		}
		fragment, done, err := s.decode(payload)
		if err != nil {
			s.err = fmt.Errorf("%s: %w", s.name, err)
			return "", s.err
		}
		if done {
			s.done = true
			if fragment != "" {
				return fragment, nil
			}
			return "", io.EOF
		}
		if fragment != "" {
			return fragment, nil
		}
	}

	if err := s.scanner.Err(); err != nil {
		s.err = fmt.Errorf("%s: read stream: %w", s.name, err)
	} else {
		s.err = fmt.Errorf("%s: stream ended before completion: %w", s.name, io.ErrUnexpectedEOF)
	}
	return "", s.err
}

// Close releases the connection. It is safe to call more than once.
func (s *TokenStream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.body.Close()
	})
	return s.closeErr
}

func (s *TokenStream) payload(line []byte) ([]byte, bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil, false
	}
	if s.framing == FramingNDJSON {
		return line, true
	}

	// SSE: only data lines carry payloads; event, id and comment lines
	// are skipped.
	data, ok := bytes.CutPrefix(line, []byte("data:"))
	if !ok {
		return nil, false
	}
	return bytes.TrimSpace(data), true
}
