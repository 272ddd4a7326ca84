package providers

import (
	"bufio"
	"bytes"
	"io"
)

const maxSSELine = 1024 * 1024

// SSEDone is the sentinel payload that ends an OpenAI-style stream.
const SSEDone = "[DONE]"

// SSEScanner scans the data lines of a Server-Sent Events stream. Comment,
// event and id lines are skipped.
type SSEScanner struct {
	scanner *bufio.Scanner
	data    string
	err     error
}

// NewSSEScanner creates a scanner over r.
func NewSSEScanner(r io.Reader) *SSEScanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxSSELine)
	return &SSEScanner{scanner: scanner}
}

// Scan advances to the next data line.
func (s *SSEScanner) Scan() bool {
	for s.scanner.Scan() {
		line := bytes.TrimRight(s.scanner.Bytes(), "\r")
		if !bytes.HasPrefix(line, []byte("data:")) {
			continue
		}
		payload := bytes.TrimPrefix(line, []byte("data:"))
		s.data = string(bytes.TrimPrefix(payload, []byte(" ")))
		return true
	}
	s.err = s.scanner.Err()
	return false
}

// Data returns the current payload.
func (s *SSEScanner) Data() string {
	return s.data
}

// Err returns the first non-EOF read error.
func (s *SSEScanner) Err() error {
	return s.err
}
