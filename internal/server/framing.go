// Package server carries line-delimited JSON-RPC sessions over loopback TCP
// and stdio.
package server

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

// ErrLineTooLong is returned for a line longer than the reader's limit. The
// rest of the line has been discarded and the next ReadLine starts on the
// following line.
var ErrLineTooLong = errors.New("line exceeds maximum length")

const readBufferSize = 64 * 1024

// LineReader splits a stream into request lines of bounded length
type LineReader struct {
	r   *bufio.Reader
	max int
	buf []byte
}

// NewLineReader creates a reader that rejects lines over maxLine bytes,
// excluding the line terminator
func NewLineReader(r io.Reader, maxLine int) *LineReader {
	return &LineReader{r: bufio.NewReaderSize(r, readBufferSize), max: maxLine}
}

// ReadLine returns the next non-blank line without its terminator. A
// trailing carriage return is stripped. The returned slice is only valid
// until the next call.
func (lr *LineReader) ReadLine() ([]byte, error) {
	for {
		line, err := lr.readOne()
		if err != nil {
			return nil, err
		}
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		return line, nil
	}
}

func (lr *LineReader) readOne() ([]byte, error) {
	lr.buf = lr.buf[:0]
	tooLong := false

	for {
		chunk, err := lr.r.ReadSlice('\n')
		if !tooLong {
			// Allow room for "\r\n" before judging the length
			if len(lr.buf)+len(chunk) > lr.max+2 {
				tooLong = true
				lr.buf = lr.buf[:0]
			} else {
				lr.buf = append(lr.buf, chunk...)
			}
		}

		switch {
		case err == nil:
			if tooLong {
				return nil, ErrLineTooLong
			}
			return lr.finish()
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			if tooLong {
				return nil, ErrLineTooLong
			}
			if len(lr.buf) == 0 {
				return nil, io.EOF
			}
			return lr.finish()
		default:
			return nil, err
		}
	}
}

func (lr *LineReader) finish() ([]byte, error) {
	line := bytes.TrimSuffix(lr.buf, []byte("\n"))
	line = bytes.TrimSuffix(line, []byte("\r"))
	if len(line) > lr.max {
		return nil, ErrLineTooLong
	}
	return line, nil
}
