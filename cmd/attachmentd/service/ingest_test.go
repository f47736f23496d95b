package service

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/quillwiki/attachd/cmd/attachmentd/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIngestor(t *testing.T) (*Ingestor, *Store, *memRepo) {
	t.Helper()
	store, repo := newTestStore(t)
	ing := NewIngestor(NewSniffer(), store, nil, testLogger())
	return ing, store, repo
}

// spoolUpload writes content to a temp file the way the upload handler
// spools a request body
func spoolUpload(t *testing.T, name string, content []byte) Upload {
	t.Helper()

	path := filepath.Join(t.TempDir(), "spool")
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return Upload{Name: name, TempPath: path, Size: int64(len(content))}
}

// incompressible fills n bytes with a pattern deflate cannot shrink, so
// corrupting the archive's data region is predictable
func incompressible(n int) []byte {
	out := make([]byte, n)
	state := uint32(2463534242)
	for i := range out {
		state ^= state << 13
		state ^= state >> 17
		state ^= state << 5
		out[i] = byte(state)
	}
	return out
}

// corruptMember flips bytes inside the named member's compressed data
func corruptMember(t *testing.T, archive []byte, name string) []byte {
	t.Helper()

	idx := bytes.Index(archive, []byte(name))
	require.GreaterOrEqual(t, idx, 0)

	out := append([]byte(nil), archive...)
	start := idx + len(name) + 100
	for i := start; i < start+32; i++ {
		out[i] ^= 0xFF
	}
	return out
}

func TestIngestSingleFileCreatesOneAttachment(t *testing.T) {
	ing, store, repo := newTestIngestor(t)

	content := []byte("plain document body")
	up := spoolUpload(t, "doc.txt", content)

	result, err := ing.Ingest(context.Background(), "WikiStart", "alice", up)
	require.NoError(t, err)
	require.True(t, result.OK())
	require.Len(t, result.Created, 1)

	att := result.Created[0]
	assert.Equal(t, "doc.txt", att.Name)
	assert.Equal(t, "text/plain", att.ContentType)
	assert.Equal(t, "alice", att.CreatedBy)

	stored, err := os.ReadFile(store.BlobPath(att.ID))
	require.NoError(t, err)
	assert.Equal(t, content, stored)
	assert.Equal(t, 1, repo.count())
}

func TestIngestFakeZipIsTreatedAsPlainFile(t *testing.T) {
	ing, store, _ := newTestIngestor(t)

	// Named like a zip, but the content is five bytes of text: the
	// sniffer decides, the extension does not
	up := spoolUpload(t, "photo.zip", []byte("hello"))

	result, err := ing.Ingest(context.Background(), "WikiStart", "alice", up)
	require.NoError(t, err)
	require.Len(t, result.Created, 1)

	att := result.Created[0]
	assert.Equal(t, "photo.zip", att.Name)
	assert.Equal(t, "text/plain", att.ContentType)

	stored, err := os.ReadFile(store.BlobPath(att.ID))
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), stored)
}

func TestIngestArchiveCreatesOneAttachmentPerMember(t *testing.T) {
	ing, store, repo := newTestIngestor(t)

	data := buildZip(t, map[string][]byte{
		"a.txt": []byte("alpha"),
		"dir/":  nil,
		"b.txt": []byte("beta"),
	})
	up := spoolUpload(t, "bundle.zip", data)

	result, err := ing.Ingest(context.Background(), "WikiStart", "alice", up)
	require.NoError(t, err)
	require.True(t, result.OK())
	require.Len(t, result.Created, 2)
	assert.Equal(t, 2, repo.count())

	byName := make(map[string][]byte)
	for _, att := range result.Created {
		stored, err := os.ReadFile(store.BlobPath(att.ID))
		require.NoError(t, err)
		byName[att.Name] = stored
	}
	assert.Equal(t, []byte("alpha"), byName["a.txt"])
	assert.Equal(t, []byte("beta"), byName["b.txt"])
}

func TestIngestArchiveSniffsEachMember(t *testing.T) {
	ing, _, _ := newTestIngestor(t)

	data := buildZip(t, map[string][]byte{
		"image.dat": pngBytes(t, 8, 8),
		"notes.png": []byte("actually just text"),
	})
	up := spoolUpload(t, "mixed.zip", data)

	result, err := ing.Ingest(context.Background(), "WikiStart", "alice", up)
	require.NoError(t, err)

	types := make(map[string]string)
	for _, att := range result.Created {
		types[att.Name] = att.ContentType
	}
	assert.Equal(t, "image/png", types["image.dat"])
	assert.Equal(t, "text/plain", types["notes.png"])
}

func TestIngestArchiveWithCorruptMemberContinuesBatch(t *testing.T) {
	ing, _, repo := newTestIngestor(t)

	data := buildZip(t, map[string][]byte{
		"good1.txt": bytes.Repeat([]byte("good one "), 100),
		"bad.bin":   incompressible(4096),
		"good2.txt": bytes.Repeat([]byte("good two "), 100),
	})
	data = corruptMember(t, data, "bad.bin")
	up := spoolUpload(t, "bundle.zip", data)

	result, err := ing.Ingest(context.Background(), "WikiStart", "alice", up)
	require.NoError(t, err)

	// N-1 attachments land; the batch never aborts
	require.Len(t, result.Created, 2)
	require.Len(t, result.MemberErrors, 1)
	assert.Equal(t, "bad.bin", result.MemberErrors[0].Name)
	assert.Equal(t, 2, repo.count())

	names := []string{result.Created[0].Name, result.Created[1].Name}
	assert.ElementsMatch(t, []string{"good1.txt", "good2.txt"}, names)
}

func TestIngestUnopenableArchiveAbortsWholeRequest(t *testing.T) {
	ing, _, repo := newTestIngestor(t)

	// Valid zip magic, then garbage: sniffed as zip, unopenable
	data := append([]byte("PK\x03\x04"), incompressible(512)...)
	up := spoolUpload(t, "broken.zip", data)

	_, err := ing.Ingest(context.Background(), "WikiStart", "alice", up)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrArchiveOpen))

	// Nothing was ingested
	assert.Equal(t, 0, repo.count())
}

func TestIngestUnknownContentFallsBackToBinary(t *testing.T) {
	ing, _, _ := newTestIngestor(t)

	up := spoolUpload(t, "mystery", []byte{0x00, 0x01, 0x02, 0x03, 0xFE})

	result, err := ing.Ingest(context.Background(), "WikiStart", "alice", up)
	require.NoError(t, err)
	require.Len(t, result.Created, 1)
	assert.Equal(t, DefaultContentType, result.Created[0].ContentType)
}

func TestIngestPrewarmsImageThumbnails(t *testing.T) {
	store, _ := newTestStore(t)
	deriver := NewDeriver(store, 100, 640, 480, testLogger())
	prewarmer := NewPrewarmer(deriver, 1, 10, testLogger())
	ing := NewIngestor(NewSniffer(), store, prewarmer, testLogger())

	up := spoolUpload(t, "photo.png", pngBytes(t, 300, 300))

	result, err := ing.Ingest(context.Background(), "Gallery", "alice", up)
	require.NoError(t, err)
	require.Len(t, result.Created, 1)

	// Shutdown drains the queue, so the thumbnail must exist afterwards
	prewarmer.Shutdown()

	_, err = os.Stat(store.DerivedPath(result.Created[0].ID, models.KindThumbnail))
	assert.NoError(t, err)
}
