package service

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/quillwiki/attachd/cmd/attachmentd/models"
	"github.com/quillwiki/attachd/common/logger"
)

// sniffHeaderLimit bounds how much of an archive member is read for
// content sniffing
const sniffHeaderLimit = 3072

// Upload is one spooled upload request: the payload already sits in a
// temporary file on local disk
type Upload struct {
	// Client-declared display name. Never trusted for classification.
	Name string

	// Path of the spooled payload
	TempPath string

	// Payload size in bytes
	Size int64
}

// Result is the outcome of one ingestion request. Archive ingestion is
// batch-oriented: member failures are collected here instead of
// aborting the request, so a mostly-good archive still lands.
type Result struct {
	Created      []*models.Attachment
	MemberErrors []*MemberError
}

// OK reports whether every item ingested cleanly
func (r *Result) OK() bool {
	return len(r.MemberErrors) == 0
}

// ErrorMessages returns all member failure messages, in archive order
func (r *Result) ErrorMessages() []string {
	msgs := make([]string, 0, len(r.MemberErrors))
	for _, me := range r.MemberErrors {
		msgs = append(msgs, me.Error())
	}
	return msgs
}

// Ingestor drives one upload through classification, expansion and
// storage
type Ingestor struct {
	sniffer *Sniffer
	store   *Store
	prewarm *Prewarmer
	log     *logger.Logger
}

// NewIngestor creates an ingestor. prewarm may be nil to disable
// background thumbnail derivation.
func NewIngestor(sniffer *Sniffer, store *Store, prewarm *Prewarmer, log *logger.Logger) *Ingestor {
	return &Ingestor{
		sniffer: sniffer,
		store:   store,
		prewarm: prewarm,
		log:     log,
	}
}

// Ingest classifies the upload by magic bytes and registers one
// attachment for a plain file or one per member for a zip container.
// A payload that merely ends in ".zip" but is not a zip container is a
// plain file like any other.
func (ing *Ingestor) Ingest(ctx context.Context, page, createdBy string, up Upload) (*Result, error) {
	contentType := ing.sniffer.SniffFile(up.TempPath)

	ing.log.Info("ingesting upload",
		"page", page,
		"name", up.Name,
		"content_type", contentType,
		"size_bytes", up.Size,
	)

	if ing.sniffer.IsArchive(contentType) {
		return ing.ingestArchive(ctx, page, createdBy, up)
	}
	return ing.ingestSingle(ctx, page, createdBy, up, contentType)
}

// ingestSingle registers exactly one attachment. The transfer prefers a
// zero-copy hard link from the spool file. Failure aborts the request.
func (ing *Ingestor) ingestSingle(ctx context.Context, page, createdBy string, up Upload, contentType string) (*Result, error) {
	att, err := ing.store.Create(ctx, page, up.Name, contentType, up.Size, createdBy, LinkOrCopyTransfer(up.TempPath))
	if err != nil {
		return nil, err
	}

	ing.queuePrewarm(att)
	return &Result{Created: []*models.Attachment{att}}, nil
}

// ingestArchive registers one attachment per non-directory member.
// Failure to open the container aborts with ErrArchiveOpen and nothing
// is created; failure of an individual member is recorded and the batch
// keeps going.
func (ing *Ingestor) ingestArchive(ctx context.Context, page, createdBy string, up Upload) (*Result, error) {
	f, err := os.Open(up.TempPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArchiveOpen, err)
	}
	defer f.Close()

	archive, err := Expand(f, up.Size)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	for _, entry := range archive.Entries() {
		if ctx.Err() != nil {
			// Aborted request: remaining members are simply not
			// ingested, already-created attachments stay
			return result, ctx.Err()
		}

		att, err := ing.ingestMember(ctx, page, createdBy, entry)
		if err != nil {
			ing.log.Warn("archive member failed",
				"page", page,
				"member", entry.Name(),
				"error", err,
			)
			result.MemberErrors = append(result.MemberErrors, &MemberError{Name: entry.Name(), Err: err})
			continue
		}

		result.Created = append(result.Created, att)
		ing.queuePrewarm(att)
	}

	ing.log.Info("archive ingested",
		"page", page,
		"created", len(result.Created),
		"failed", len(result.MemberErrors),
	)
	return result, nil
}

func (ing *Ingestor) ingestMember(ctx context.Context, page, createdBy string, entry *ArchiveEntry) (*models.Attachment, error) {
	header, err := entry.SniffHeader(sniffHeaderLimit)
	if err != nil {
		return nil, err
	}
	contentType := ing.sniffer.SniffBytes(header)

	return ing.store.Create(ctx, page, entry.Name(), contentType, entry.UncompressedSize(), createdBy, ExtractTransfer(entry))
}

// queuePrewarm schedules background thumbnail derivation for image
// attachments so the first page render finds a warm cache
func (ing *Ingestor) queuePrewarm(att *models.Attachment) {
	if ing.prewarm == nil || !strings.HasPrefix(att.ContentType, "image/") {
		return
	}
	ing.prewarm.Queue(PrewarmJob{AttachmentID: att.ID, Kind: models.KindThumbnail})
}
