package security

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSourceValidator(t *testing.T) {
	v := NewSourceValidator()

	tests := []struct {
		name    string
		content []byte
		want    error
	}{
		{"empty", nil, nil},
		{"rust source", []byte("pub fn main() {\n\tprintln!(\"héllo\");\n}\n"), nil},
		{"nul byte", []byte("fn a() {}\x00"), ErrBinaryContent},
		{"control bytes", bytes.Repeat([]byte{0x01, 0x02, 'a'}, 100), ErrBinaryContent},
		{"latin-1", []byte("// caf\xe9\nfn a() {}\n"), ErrInvalidEncoding},
		{"png header", []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x00}, ErrBinaryContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.content)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestSourceValidatorSamplesHeaderOnly(t *testing.T) {
	v := &SourceValidator{HeaderSize: 16, BinaryThreshold: 0.3}
	content := append([]byte("fn ok() {}\n// padding\n"), bytes.Repeat([]byte{0x01}, 8)...)
	assert.NoError(t, v.Validate(content))
}
