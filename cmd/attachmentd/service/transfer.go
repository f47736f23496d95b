package service

import (
	"fmt"
	"io"
	"os"
)

// LinkOrCopyTransfer moves a spooled upload into place. It prefers a
// zero-copy hard link; when that fails (cross-device spool directory,
// filesystem without link support) it falls back to a plain copy.
func LinkOrCopyTransfer(src string) TransferFunc {
	return func(dst string) error {
		if err := os.Link(src, dst); err == nil {
			return nil
		}
		return copyFile(src, dst)
	}
}

// ExtractTransfer decompresses one archive member straight into the
// destination file, bounding memory use for large members
func ExtractTransfer(entry *ArchiveEntry) TransferFunc {
	return func(dst string) error {
		f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
		if err != nil {
			return fmt.Errorf("create %s: %w", dst, err)
		}

		if _, err := entry.WriteTo(f); err != nil {
			f.Close()
			os.Remove(dst)
			return err
		}

		if err := f.Close(); err != nil {
			os.Remove(dst)
			return fmt.Errorf("close %s: %w", dst, err)
		}
		return nil
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("copy to %s: %w", dst, err)
	}

	if err := out.Close(); err != nil {
		os.Remove(dst)
		return fmt.Errorf("close %s: %w", dst, err)
	}
	return nil
}
