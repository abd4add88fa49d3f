// Package security screens file content before it reaches the parser
package security

import (
	"bytes"
	"errors"
	"fmt"
	"unicode/utf8"
)

var (
	// ErrBinaryContent means the file looks like binary data under a source extension
	ErrBinaryContent = errors.New("file appears to be binary")
	// ErrInvalidEncoding means the file is not valid UTF-8
	ErrInvalidEncoding = errors.New("file is not valid UTF-8")
)

// DefaultHeaderSize is how much of a file is sampled for binary detection
const DefaultHeaderSize = 64 * 1024

// SourceValidator rejects content that cannot be Rust source: binary data
// saved with a .rs extension, or text in another encoding
type SourceValidator struct {
	HeaderSize      int
	BinaryThreshold float64 // fraction of control bytes above which content is binary
}

// NewSourceValidator returns a validator with the default sampling
func NewSourceValidator() *SourceValidator {
	return &SourceValidator{HeaderSize: DefaultHeaderSize, BinaryThreshold: 0.3}
}

// Validate checks content and returns nil when it may be parsed
func (v *SourceValidator) Validate(content []byte) error {
	if len(content) == 0 {
		return nil
	}

	header := content
	if v.HeaderSize > 0 && len(header) > v.HeaderSize {
		header = header[:v.HeaderSize]
	}

	if bytes.IndexByte(header, 0) >= 0 {
		return fmt.Errorf("%w: contains NUL bytes", ErrBinaryContent)
	}
	if ratio := controlRatio(header); ratio > v.BinaryThreshold {
		return fmt.Errorf("%w: %.0f%% control bytes", ErrBinaryContent, ratio*100)
	}
	if !utf8.Valid(content) {
		return ErrInvalidEncoding
	}
	return nil
}

// controlRatio counts control characters other than tab, LF, VT, FF and CR
func controlRatio(data []byte) float64 {
	nonPrintable := 0
	for _, b := range data {
		if b < 9 || (b > 13 && b < 32) || b == 127 {
			nonPrintable++
		}
	}
	return float64(nonPrintable) / float64(len(data))
}
