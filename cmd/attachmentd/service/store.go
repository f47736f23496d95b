package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/quillwiki/attachd/cmd/attachmentd/models"
	"github.com/quillwiki/attachd/common/cache"
	"github.com/quillwiki/attachd/common/logger"
)

// TransferFunc deposits the final attachment bytes at dst. The store
// decides where the bytes live; the caller decides how they get there:
// a hard link for a co-located spool file, a plain copy, or streaming
// decompression for an archive member.
type TransferFunc func(dst string) error

// MetadataRepository is the database boundary for attachment metadata
type MetadataRepository interface {
	Create(ctx context.Context, att *models.Attachment) error
	GetByID(ctx context.Context, id int64) (*models.Attachment, error)
	ListByPage(ctx context.Context, page string) ([]*models.Attachment, error)
	Delete(ctx context.Context, id int64) error
}

// Store owns the attachment byte storage and keeps it paired with the
// metadata records. Primary bytes live at <root>/blobs/<id>; derived
// artifacts co-located at <root>/blobs/<id>.<kind>.
type Store struct {
	repo     MetadataRepository
	cache    cache.Cache
	root     string
	cacheTTL time.Duration
	log      *logger.Logger
}

// NewStore creates an attachment store rooted at root. cache may be nil
// to disable metadata caching.
func NewStore(repo MetadataRepository, metaCache cache.Cache, root string, cacheTTL time.Duration, log *logger.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(root, "blobs"), 0o755); err != nil {
		return nil, fmt.Errorf("create blob directory: %w", err)
	}

	return &Store{
		repo:     repo,
		cache:    metaCache,
		root:     root,
		cacheTTL: cacheTTL,
		log:      log,
	}, nil
}

// BlobPath returns the storage location of an attachment's primary
// bytes, derived deterministically from its identifier
func (s *Store) BlobPath(id int64) string {
	return filepath.Join(s.root, "blobs", strconv.FormatInt(id, 10))
}

// DerivedPath returns the storage location of a derived artifact,
// co-located with the primary bytes
func (s *Store) DerivedPath(id int64, kind models.DerivedKind) string {
	return s.BlobPath(id) + "." + string(kind)
}

// Create reserves an identifier for the attachment, invokes transfer
// with the destination path, and commits the metadata record only when
// the transfer succeeds. A failed or panicking transfer rolls the
// reservation back so no orphaned metadata survives.
func (s *Store) Create(ctx context.Context, page, name, contentType string, size int64, createdBy string, transfer TransferFunc) (*models.Attachment, error) {
	att := &models.Attachment{
		Page:        page,
		Name:        name,
		ContentType: contentType,
		SizeBytes:   size,
		CreatedBy:   createdBy,
	}

	// Reserve the identifier first; the blob path depends on it
	if err := s.repo.Create(ctx, att); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWrite, err)
	}

	dst := s.BlobPath(att.ID)
	if err := runTransfer(transfer, dst); err != nil {
		// Roll back the reservation and any partial file
		os.Remove(dst)
		if delErr := s.repo.Delete(ctx, att.ID); delErr != nil {
			s.log.Error("failed to roll back attachment reservation",
				"attachment_id", att.ID, "error", delErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrWrite, err)
	}

	s.log.Info("attachment created",
		"attachment_id", att.ID,
		"page", page,
		"name", name,
		"content_type", contentType,
		"size_bytes", size,
	)

	s.cacheSet(ctx, att)
	return att, nil
}

// Get retrieves attachment metadata by ID, consulting the cache first
func (s *Store) Get(ctx context.Context, id int64) (*models.Attachment, error) {
	if att, ok := s.cacheGet(ctx, id); ok {
		return att, nil
	}

	att, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cacheSet(ctx, att)
	return att, nil
}

// Open returns a stream over the attachment's stored bytes plus its
// metadata. A missing record or a missing backing file both resolve to
// ErrNotFound; the latter is an invariant violation worth logging.
func (s *Store) Open(ctx context.Context, id int64) (io.ReadCloser, *models.Attachment, error) {
	att, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	f, err := os.Open(s.BlobPath(id))
	if errors.Is(err, os.ErrNotExist) {
		s.log.Error("attachment metadata exists but backing file is missing",
			"attachment_id", id, "path", s.BlobPath(id))
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open attachment %d: %w", id, err)
	}

	return f, att, nil
}

// List returns all attachments of a page, newest first
func (s *Store) List(ctx context.Context, page string) ([]*models.Attachment, error) {
	return s.repo.ListByPage(ctx, page)
}

// Delete removes the metadata record. The backing bytes stay on disk on
// purpose: delete requests are ambiguous enough that destructive
// filesystem operations are not worth the risk.
func (s *Store) Delete(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	if s.cache != nil {
		if err := s.cache.Delete(ctx, metaCacheKey(id)); err != nil {
			s.log.Warn("failed to invalidate metadata cache", "attachment_id", id, "error", err)
		}
	}

	s.log.Info("attachment deleted", "attachment_id", id)
	return nil
}

// runTransfer shields the store from panicking transfer callbacks so
// the reservation rollback always runs
func runTransfer(transfer TransferFunc, dst string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("transfer panicked: %v", r)
		}
	}()
	return transfer(dst)
}

func metaCacheKey(id int64) string {
	return "attachment:" + strconv.FormatInt(id, 10)
}

func (s *Store) cacheGet(ctx context.Context, id int64) (*models.Attachment, bool) {
	if s.cache == nil {
		return nil, false
	}

	data, found, err := s.cache.Get(ctx, metaCacheKey(id))
	if err != nil || !found {
		return nil, false
	}

	att := &models.Attachment{}
	if err := json.Unmarshal(data, att); err != nil {
		return nil, false
	}
	return att, true
}

func (s *Store) cacheSet(ctx context.Context, att *models.Attachment) {
	if s.cache == nil {
		return
	}

	data, err := json.Marshal(att)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, metaCacheKey(att.ID), data, s.cacheTTL); err != nil {
		s.log.Warn("failed to cache attachment metadata", "attachment_id", att.ID, "error", err)
	}
}
