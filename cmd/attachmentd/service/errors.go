package service

import (
	"errors"
	"fmt"

	"github.com/quillwiki/attachd/cmd/attachmentd/repository"
)

var (
	// ErrArchiveOpen means the upload was classified as a zip container
	// but could not be opened at all. Fatal for the whole request;
	// nothing is ingested.
	ErrArchiveOpen = errors.New("cannot open archive")

	// ErrWrite means the attachment bytes could not be deposited at
	// their storage location. The reserved metadata row is rolled back.
	ErrWrite = errors.New("attachment write failed")

	// ErrDerivation means a derived artifact could not be produced from
	// the source attachment. The original stays retrievable.
	ErrDerivation = errors.New("derivation failed")

	// ErrNotFound mirrors the repository sentinel so callers only need
	// the service package.
	ErrNotFound = repository.ErrNotFound
)

// MemberError records one failed archive member. Member failures never
// abort the batch; remaining entries keep processing.
type MemberError struct {
	Name string
	Err  error
}

func (e *MemberError) Error() string {
	return fmt.Sprintf("could not extract member %q: %v", e.Name, e.Err)
}

func (e *MemberError) Unwrap() error {
	return e.Err
}
