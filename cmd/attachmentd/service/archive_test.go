package service

import (
	"bytes"
	"errors"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildZip assembles a zip archive in memory. Keys ending in "/" become
// directory entries.
func buildZip(t *testing.T, members map[string][]byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range members {
		if name[len(name)-1] == '/' {
			_, err := w.Create(name)
			require.NoError(t, err)
			continue
		}
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestExpandFiltersDirectoryEntries(t *testing.T) {
	data := buildZip(t, map[string][]byte{
		"a.txt": []byte("alpha"),
		"dir/":  nil,
		"b.txt": []byte("beta"),
	})

	archive, err := Expand(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	names := make([]string, 0, archive.Len())
	for _, e := range archive.Entries() {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"a.txt", "b.txt"}, names)
}

func TestExpandEntryStreamsDecompressedBytes(t *testing.T) {
	content := bytes.Repeat([]byte("attachment payload "), 1000)
	data := buildZip(t, map[string][]byte{"big.txt": content})

	archive, err := Expand(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	require.Equal(t, 1, archive.Len())

	entry := archive.Entries()[0]
	assert.Equal(t, int64(len(content)), entry.UncompressedSize())

	var out bytes.Buffer
	n, err := entry.WriteTo(&out)
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), n)
	assert.Equal(t, content, out.Bytes())
}

func TestExpandKeepsPathLikeMemberNames(t *testing.T) {
	data := buildZip(t, map[string][]byte{"docs/notes/readme.md": []byte("# hi")})

	archive, err := Expand(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	require.Equal(t, 1, archive.Len())
	assert.Equal(t, "docs/notes/readme.md", archive.Entries()[0].Name())
}

func TestExpandRejectsNonArchive(t *testing.T) {
	data := []byte("this is definitely not a zip container")

	_, err := Expand(bytes.NewReader(data), int64(len(data)))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrArchiveOpen))
}

func TestExpandRejectsTruncatedArchive(t *testing.T) {
	data := buildZip(t, map[string][]byte{"a.txt": []byte("alpha")})
	truncated := data[:len(data)/2]

	_, err := Expand(bytes.NewReader(truncated), int64(len(truncated)))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrArchiveOpen))
}

func TestSniffHeaderReadsLeadingBytes(t *testing.T) {
	data := buildZip(t, map[string][]byte{"img.png": pngHeader})

	archive, err := Expand(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	header, err := archive.Entries()[0].SniffHeader(sniffHeaderLimit)
	require.NoError(t, err)
	assert.Equal(t, pngHeader, header)
}
