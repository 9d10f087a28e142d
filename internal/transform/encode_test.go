package transform

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectContentType(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	jpeg := []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}

	tests := []struct {
		name     string
		declared string
		data     []byte
		want     string
	}{
		{"declared type wins", "image/webp", png, "image/webp"},
		{"empty declared sniffs png", "", png, "image/png"},
		{"generic declared sniffs jpeg", "application/octet-stream", jpeg, "image/jpeg"},
		{"parameters dropped", "image/png; foo=bar", png, "image/png"},
		{"text sniff drops charset", "", []byte("hello"), "text/plain"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectContentType(tt.declared, tt.data))
		})
	}
}

func TestDataURI(t *testing.T) {
	data := []byte{0x00, 0x01, 0xfe, 0xff}
	uri := DataURI("image/png", data)

	require.True(t, strings.HasPrefix(uri, "data:image/png;base64,"))
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(uri, "data:image/png;base64,"))
	require.NoError(t, err)
	assert.Equal(t, data, decoded)
}
