package models

import (
	"time"
)

// DerivedKind identifies a derived artifact variant of an attachment
type DerivedKind string

const (
	// KindThumbnail is the square gallery thumbnail
	KindThumbnail DerivedKind = "thumb"

	// KindInline is the variant resized to fit inline page rendering
	KindInline DerivedKind = "inline"
)

// Valid reports whether the kind is a known derived artifact kind
func (k DerivedKind) Valid() bool {
	switch k {
	case KindThumbnail, KindInline:
		return true
	}
	return false
}

// Attachment represents a file uploaded to a wiki page
// Maps to: attachment table
type Attachment struct {
	// Unique attachment ID, assigned by the database at creation
	ID int64 `db:"id" json:"id"`

	// Owning wiki page path
	Page string `db:"page" json:"page"`

	// Display name. Archive members keep their stored entry name,
	// which may contain path-like characters.
	Name string `db:"name" json:"name"`

	// MIME type determined by content sniffing, never by extension
	ContentType string `db:"content_type" json:"content_type"`

	// Size of the stored bytes
	SizeBytes int64 `db:"size_bytes" json:"size_bytes"`

	// Audit fields
	CreatedBy string    `db:"created_by" json:"created_by"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// IsImage reports whether the attachment can have derived image variants
func (a *Attachment) IsImage() bool {
	return len(a.ContentType) > 6 && a.ContentType[:6] == "image/"
}
