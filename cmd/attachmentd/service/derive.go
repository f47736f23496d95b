package service

import (
	"context"
	"fmt"
	"image"
	"io"
	"os"

	"github.com/disintegration/imaging"
	"github.com/quillwiki/attachd/cmd/attachmentd/models"
	"github.com/quillwiki/attachd/common/logger"
	"golang.org/x/sync/singleflight"
)

// Deriver produces and caches derived artifacts (thumbnails, inline
// variants) of image attachments. Presence of the derived file on disk
// is the cache-hit signal; there is no separate bookkeeping. Derivation
// is deterministic, so a lost race just recomputes identical bytes;
// the singleflight group only exists to avoid the wasted work within
// one process.
type Deriver struct {
	store *Store
	group singleflight.Group
	log   *logger.Logger

	thumbSize int
	inlineW   int
	inlineH   int
}

// NewDeriver creates a deriver over the given store
func NewDeriver(store *Store, thumbSize, inlineW, inlineH int, log *logger.Logger) *Deriver {
	return &Deriver{
		store:     store,
		log:       log,
		thumbSize: thumbSize,
		inlineW:   inlineW,
		inlineH:   inlineH,
	}
}

// GetOrCreate returns the derived artifact for (id, kind), computing
// and caching it on first access. The returned content type is the
// source attachment's. ErrDerivation when the source cannot be decoded
// as an image; ErrNotFound when the attachment does not resolve.
func (d *Deriver) GetOrCreate(ctx context.Context, id int64, kind models.DerivedKind) (io.ReadCloser, string, error) {
	if !kind.Valid() {
		return nil, "", fmt.Errorf("%w: unknown kind %q", ErrDerivation, kind)
	}

	path := d.store.DerivedPath(id, kind)

	// Cache hit: the file already exists
	if f, err := os.Open(path); err == nil {
		att, err := d.store.Get(ctx, id)
		if err != nil {
			f.Close()
			return nil, "", err
		}
		return f, att.ContentType, nil
	}

	key := fmt.Sprintf("%d.%s", id, kind)
	v, err, _ := d.group.Do(key, func() (interface{}, error) {
		return d.derive(ctx, id, kind, path)
	})
	if err != nil {
		return nil, "", err
	}
	contentType := v.(string)

	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("%w: reopen derived artifact: %v", ErrDerivation, err)
	}
	return f, contentType, nil
}

// derive computes the artifact and writes it to path. Returns the
// content type of the result.
func (d *Deriver) derive(ctx context.Context, id int64, kind models.DerivedKind, path string) (string, error) {
	src, att, err := d.store.Open(ctx, id)
	if err != nil {
		return "", err
	}
	defer src.Close()

	img, err := imaging.Decode(src, imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("%w: decode attachment %d: %v", ErrDerivation, id, err)
	}

	switch kind {
	case models.KindThumbnail:
		img = imaging.Fill(img, d.thumbSize, d.thumbSize, imaging.Center, imaging.Lanczos)
	case models.KindInline:
		img = imaging.Fit(img, d.inlineW, d.inlineH, imaging.Lanczos)
	}

	format, err := formatFor(att.ContentType)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDerivation, err)
	}

	// Write to a temp name, then rename. Concurrent writers across
	// processes may still race, but each writes identical bytes and
	// the rename keeps readers from ever seeing a partial file.
	tmp := path + ".tmp"
	if err := d.encode(tmp, img, format); err != nil {
		os.Remove(tmp)
		return "", err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("%w: publish derived artifact: %v", ErrDerivation, err)
	}

	d.log.Info("derived artifact created",
		"attachment_id", id,
		"kind", kind,
		"path", path,
	)
	return att.ContentType, nil
}

func (d *Deriver) encode(path string, img image.Image, format imaging.Format) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("%w: create derived artifact: %v", ErrDerivation, err)
	}

	if err := imaging.Encode(f, img, format, imaging.JPEGQuality(80)); err != nil {
		f.Close()
		return fmt.Errorf("%w: encode derived artifact: %v", ErrDerivation, err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: close derived artifact: %v", ErrDerivation, err)
	}
	return nil
}

func formatFor(contentType string) (imaging.Format, error) {
	switch contentType {
	case "image/jpeg":
		return imaging.JPEG, nil
	case "image/png":
		return imaging.PNG, nil
	case "image/gif":
		return imaging.GIF, nil
	case "image/bmp", "image/x-ms-bmp":
		return imaging.BMP, nil
	case "image/tiff":
		return imaging.TIFF, nil
	}
	return 0, fmt.Errorf("no derived encoding for %s", contentType)
}
