package service

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 13, 'I', 'H', 'D', 'R'}

func TestSniffDetectsPNGByMagicBytes(t *testing.T) {
	s := NewSniffer()

	mime := s.Sniff(bytes.NewReader(pngHeader))
	assert.Equal(t, "image/png", mime)
}

func TestSniffDetectsZipContainer(t *testing.T) {
	s := NewSniffer()

	archive := buildZip(t, map[string][]byte{"a.txt": []byte("alpha")})
	mime := s.Sniff(bytes.NewReader(archive))

	assert.Equal(t, "application/zip", mime)
	assert.True(t, s.IsArchive(mime))
}

func TestSniffIgnoresFilename(t *testing.T) {
	s := NewSniffer()

	// A file named like a zip that contains plain text is plain text
	dir := t.TempDir()
	path := filepath.Join(dir, "photo.zip")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	mime := s.SniffFile(path)
	assert.Equal(t, "text/plain", mime)
	assert.False(t, s.IsArchive(mime))
}

func TestSniffIndeterminateFallsBackToBinary(t *testing.T) {
	s := NewSniffer()

	// Unreadable path: ingestion must still proceed with a generic type
	mime := s.SniffFile(filepath.Join(t.TempDir(), "does-not-exist"))
	assert.Equal(t, DefaultContentType, mime)
}

func TestSniffStripsMediaTypeParameters(t *testing.T) {
	s := NewSniffer()

	// Text detection carries a charset parameter; the stored
	// content type should not
	mime := s.SniffBytes([]byte("just some text content"))
	assert.Equal(t, "text/plain", mime)
}
