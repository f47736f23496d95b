package service

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/quillwiki/attachd/cmd/attachmentd/models"
	"github.com/quillwiki/attachd/cmd/attachmentd/repository"
	"github.com/quillwiki/attachd/common/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memRepo is an in-memory MetadataRepository
type memRepo struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]*models.Attachment
}

func newMemRepo() *memRepo {
	return &memRepo{rows: make(map[int64]*models.Attachment)}
}

func (r *memRepo) Create(ctx context.Context, att *models.Attachment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	att.ID = r.nextID
	att.CreatedAt = time.Now()
	stored := *att
	r.rows[att.ID] = &stored
	return nil
}

func (r *memRepo) GetByID(ctx context.Context, id int64) (*models.Attachment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	att, ok := r.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *att
	return &copied, nil
}

func (r *memRepo) ListByPage(ctx context.Context, page string) ([]*models.Attachment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Attachment, 0)
	for _, att := range r.rows {
		if att.Page == page {
			copied := *att
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *memRepo) Delete(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.rows, id)
	return nil
}

func (r *memRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

func testLogger() *logger.Logger {
	return logger.New("error", "json")
}

func newTestStore(t *testing.T) (*Store, *memRepo) {
	t.Helper()
	repo := newMemRepo()
	store, err := NewStore(repo, nil, t.TempDir(), time.Minute, testLogger())
	require.NoError(t, err)
	return store, repo
}

func writeTransfer(content []byte) TransferFunc {
	return func(dst string) error {
		return os.WriteFile(dst, content, 0o644)
	}
}

func TestStoreCreatePersistsBytesAndMetadata(t *testing.T) {
	store, repo := newTestStore(t)
	ctx := context.Background()

	content := []byte("stored attachment bytes")
	att, err := store.Create(ctx, "WikiStart", "notes.txt", "text/plain", int64(len(content)), "alice", writeTransfer(content))
	require.NoError(t, err)
	assert.Equal(t, int64(1), att.ID)
	assert.Equal(t, "WikiStart", att.Page)
	assert.Equal(t, "notes.txt", att.Name)

	// Stored bytes are byte-identical to the input
	stored, err := os.ReadFile(store.BlobPath(att.ID))
	require.NoError(t, err)
	assert.Equal(t, content, stored)

	assert.Equal(t, 1, repo.count())
}

func TestStoreCreateRollsBackOnTransferFailure(t *testing.T) {
	store, repo := newTestStore(t)
	ctx := context.Background()

	_, err := store.Create(ctx, "WikiStart", "bad.txt", "text/plain", 3, "alice", func(dst string) error {
		return errors.New("disk full")
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrWrite))

	// No orphaned metadata survives
	assert.Equal(t, 0, repo.count())
}

func TestStoreCreateRollsBackOnTransferPanic(t *testing.T) {
	store, repo := newTestStore(t)
	ctx := context.Background()

	_, err := store.Create(ctx, "WikiStart", "bad.txt", "text/plain", 3, "alice", func(dst string) error {
		panic("boom")
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrWrite))
	assert.Equal(t, 0, repo.count())
}

func TestStoreOpenStreamsStoredBytes(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	content := []byte("open me")
	att, err := store.Create(ctx, "WikiStart", "open.txt", "text/plain", int64(len(content)), "alice", writeTransfer(content))
	require.NoError(t, err)

	rc, meta, err := store.Open(ctx, att.ID)
	require.NoError(t, err)
	defer rc.Close()

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, content, got)
	assert.Equal(t, att.ID, meta.ID)
	assert.Equal(t, "text/plain", meta.ContentType)
}

func TestStoreOpenUnknownIDReturnsNotFound(t *testing.T) {
	store, _ := newTestStore(t)

	_, _, err := store.Open(context.Background(), 42)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestStoreOpenMissingBackingFileReturnsNotFound(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	att, err := store.Create(ctx, "WikiStart", "gone.txt", "text/plain", 4, "alice", writeTransfer([]byte("gone")))
	require.NoError(t, err)

	require.NoError(t, os.Remove(store.BlobPath(att.ID)))

	_, _, err = store.Open(ctx, att.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestStoreDeleteRemovesMetadataButKeepsBytes(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	content := []byte("keep my bytes")
	att, err := store.Create(ctx, "WikiStart", "keep.txt", "text/plain", int64(len(content)), "alice", writeTransfer(content))
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, att.ID))

	// Lookup now fails
	_, err = store.Get(ctx, att.ID)
	assert.True(t, errors.Is(err, ErrNotFound))

	// But the backing bytes stay on disk
	stored, err := os.ReadFile(store.BlobPath(att.ID))
	require.NoError(t, err)
	assert.Equal(t, content, stored)
}

func TestStoreDeleteUnknownIDReturnsNotFound(t *testing.T) {
	store, _ := newTestStore(t)

	err := store.Delete(context.Background(), 99)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestStoreDerivedPathIsCoLocated(t *testing.T) {
	store, _ := newTestStore(t)

	blob := store.BlobPath(7)
	assert.Equal(t, blob+".thumb", store.DerivedPath(7, models.KindThumbnail))
	assert.Equal(t, blob+".inline", store.DerivedPath(7, models.KindInline))
}
