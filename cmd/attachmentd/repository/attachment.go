package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/quillwiki/attachd/cmd/attachmentd/models"
	"github.com/quillwiki/attachd/common/db"
)

// ErrNotFound is returned when an attachment id does not resolve
var ErrNotFound = errors.New("attachment not found")

// AttachmentRepository handles database operations for attachments
type AttachmentRepository struct {
	db *db.DB
}

// NewAttachmentRepository creates a new attachment repository
func NewAttachmentRepository(db *db.DB) *AttachmentRepository {
	return &AttachmentRepository{db: db}
}

// Create inserts a new attachment and fills in its assigned ID and
// creation timestamp
func (r *AttachmentRepository) Create(ctx context.Context, att *models.Attachment) error {
	query := `
		INSERT INTO attachment (page, name, content_type, size_bytes, created_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	err := r.db.QueryRow(ctx, query,
		att.Page,
		att.Name,
		att.ContentType,
		att.SizeBytes,
		att.CreatedBy,
	).Scan(&att.ID, &att.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create attachment: %w", err)
	}

	return nil
}

// GetByID retrieves an attachment by ID
func (r *AttachmentRepository) GetByID(ctx context.Context, id int64) (*models.Attachment, error) {
	query := `
		SELECT id, page, name, content_type, size_bytes, created_by, created_at
		FROM attachment
		WHERE id = $1
	`

	att := &models.Attachment{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&att.ID,
		&att.Page,
		&att.Name,
		&att.ContentType,
		&att.SizeBytes,
		&att.CreatedBy,
		&att.CreatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get attachment: %w", err)
	}

	return att, nil
}

// ListByPage retrieves all attachments for a page, newest first
func (r *AttachmentRepository) ListByPage(ctx context.Context, page string) ([]*models.Attachment, error) {
	query := `
		SELECT id, page, name, content_type, size_bytes, created_by, created_at
		FROM attachment
		WHERE page = $1
		ORDER BY created_at DESC, id DESC
	`

	rows, err := r.db.Query(ctx, query, page)
	if err != nil {
		return nil, fmt.Errorf("failed to list attachments: %w", err)
	}
	defer rows.Close()

	attachments := make([]*models.Attachment, 0)
	for rows.Next() {
		att := &models.Attachment{}
		if err := rows.Scan(
			&att.ID,
			&att.Page,
			&att.Name,
			&att.ContentType,
			&att.SizeBytes,
			&att.CreatedBy,
			&att.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan attachment: %w", err)
		}
		attachments = append(attachments, att)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate attachments: %w", err)
	}

	return attachments, nil
}

// Delete removes an attachment record by ID. The stored bytes are left
// on disk on purpose; only the metadata row goes away.
func (r *AttachmentRepository) Delete(ctx context.Context, id int64) error {
	query := `DELETE FROM attachment WHERE id = $1`

	result, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete attachment: %w", err)
	}

	rowsAffected := result.RowsAffected()
	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// Schema returns the DDL for the attachment table, applied at startup
// via the bootstrap DB init hook
func Schema() string {
	return `
		CREATE TABLE IF NOT EXISTS attachment (
			id            BIGSERIAL PRIMARY KEY,
			page          TEXT NOT NULL,
			name          TEXT NOT NULL,
			content_type  TEXT NOT NULL,
			size_bytes    BIGINT NOT NULL,
			created_by    TEXT NOT NULL DEFAULT '',
			created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS attachment_page_idx ON attachment (page, created_at DESC);
	`
}
