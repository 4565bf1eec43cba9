package agents

import (
	"bufio"
	"bytes"
	"io"
)

// maxLineBytes caps one native log line. A line past the cap is skipped and
// scanning continues, so a single runaway record cannot stall the records
// after it.
const maxLineBytes = 10 * 1024 * 1024

// lineScanner iterates newline-delimited lines like bufio.Scanner, except an
// oversized line yields nil from Bytes instead of ending the scan.
type lineScanner struct {
	br   *bufio.Reader
	max  int
	line []byte
	err  error
	done bool
}

func newLineScanner(r io.Reader, max int) *lineScanner {
	return &lineScanner{br: bufio.NewReaderSize(r, 64*1024), max: max}
}

// Scan advances to the next line, returning false at end of input or on a
// read error.
func (s *lineScanner) Scan() bool {
	if s.done || s.err != nil {
		return false
	}
	s.line = s.line[:0]
	oversized := false
	for {
		chunk, err := s.br.ReadSlice('\n')
		if !oversized {
			s.line = append(s.line, chunk...)
			if len(s.line) > s.max {
				oversized = true
			}
		}
		if err == bufio.ErrBufferFull {
			continue
		}
		if err == io.EOF {
			s.done = true
		} else if err != nil {
			s.err = err
			return false
		}
		if oversized {
			s.line = nil
			return true
		}
		s.line = bytes.TrimRight(s.line, "\r\n")
		if s.done && len(s.line) == 0 {
			return false
		}
		return true
	}
}

// Bytes returns the current line without its trailing newline, or nil when
// the line exceeded the cap.
func (s *lineScanner) Bytes() []byte { return s.line }

// Err returns the first read error other than end of input
func (s *lineScanner) Err() error { return s.err }
