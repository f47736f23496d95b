package service

import (
	"io"

	"github.com/gabriel-vasile/mimetype"
)

// DefaultContentType is reported when sniffing cannot determine a type.
// Ingestion proceeds anyway; an unknown payload is just a plain binary
// attachment.
const DefaultContentType = "application/octet-stream"

const zipContentType = "application/zip"

// Sniffer determines MIME types by magic-byte inspection. Filenames and
// extensions supplied by the client are never consulted.
type Sniffer struct{}

// NewSniffer creates a new content sniffer
func NewSniffer() *Sniffer {
	return &Sniffer{}
}

// Sniff inspects the leading bytes of r and returns the detected MIME
// type without parameters. Unreadable or unrecognizable input yields
// DefaultContentType.
func (s *Sniffer) Sniff(r io.Reader) string {
	mime, err := mimetype.DetectReader(r)
	if err != nil {
		return DefaultContentType
	}
	return baseType(mime.String())
}

// SniffFile inspects the leading bytes of the file at path
func (s *Sniffer) SniffFile(path string) string {
	mime, err := mimetype.DetectFile(path)
	if err != nil {
		return DefaultContentType
	}
	return baseType(mime.String())
}

// SniffBytes inspects an in-memory header
func (s *Sniffer) SniffBytes(b []byte) string {
	return baseType(mimetype.Detect(b).String())
}

// IsArchive reports whether the sniffed type is a zip container
func (s *Sniffer) IsArchive(contentType string) bool {
	return contentType == zipContentType
}

// baseType strips media type parameters ("text/plain; charset=utf-8")
func baseType(contentType string) string {
	for i := 0; i < len(contentType); i++ {
		if contentType[i] == ';' {
			return contentType[:i]
		}
	}
	return contentType
}
