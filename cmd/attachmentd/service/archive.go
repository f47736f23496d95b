package service

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/zip"
)

// Archive is an opened zip container. Entries are exposed in archive
// order with directory entries already filtered out; each entry's bytes
// are decompressed on demand, never held in memory as a whole.
type Archive struct {
	entries []*ArchiveEntry
}

// ArchiveEntry is one non-directory member of an archive
type ArchiveEntry struct {
	file *zip.File
}

// Expand opens a zip container from ra. A corrupt or non-zip stream
// fails with ErrArchiveOpen; per-member corruption does not, it surfaces
// later when that member is extracted.
func Expand(ra io.ReaderAt, size int64) (*Archive, error) {
	zr, err := zip.NewReader(ra, size)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArchiveOpen, err)
	}

	entries := make([]*ArchiveEntry, 0, len(zr.File))
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		entries = append(entries, &ArchiveEntry{file: f})
	}

	return &Archive{entries: entries}, nil
}

// Entries returns the non-directory members in archive order
func (a *Archive) Entries() []*ArchiveEntry {
	return a.entries
}

// Len returns the number of non-directory members
func (a *Archive) Len() int {
	return len(a.entries)
}

// Name returns the member's stored name, path separators included
func (e *ArchiveEntry) Name() string {
	return e.file.Name
}

// UncompressedSize returns the member's declared decompressed size
func (e *ArchiveEntry) UncompressedSize() int64 {
	return int64(e.file.UncompressedSize64)
}

// Open returns a reader over the member's decompressed bytes
func (e *ArchiveEntry) Open() (io.ReadCloser, error) {
	rc, err := e.file.Open()
	if err != nil {
		return nil, fmt.Errorf("open member %q: %w", e.file.Name, err)
	}
	return rc, nil
}

// WriteTo streams the member's decompressed bytes into w. Decompression
// failures (bad CRC, truncated data) surface here, not at Expand time.
func (e *ArchiveEntry) WriteTo(w io.Writer) (int64, error) {
	rc, err := e.Open()
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	n, err := io.Copy(w, rc)
	if err != nil {
		return n, fmt.Errorf("extract member %q: %w", e.file.Name, err)
	}
	return n, nil
}

// SniffHeader reads up to limit leading bytes for content sniffing
func (e *ArchiveEntry) SniffHeader(limit int) ([]byte, error) {
	rc, err := e.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	header := make([]byte, limit)
	n, err := io.ReadFull(rc, header)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, fmt.Errorf("read member %q header: %w", e.file.Name, err)
	}
	return header[:n], nil
}
