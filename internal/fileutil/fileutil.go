package fileutil

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
)

// partialSuffix marks a copy that has not been verified yet.
const partialSuffix = ".partial"

// CopyFile streams src to dst with 0o644 permissions.
func CopyFile(src, dst string) error {
	_, err := copyHashed(src, dst)
	return err
}

// LinkOrCopy places src at dst, preferring a hard link and falling back to a
// byte copy when linking is not possible.
func LinkOrCopy(src, dst string) error {
	if err := os.Link(src, dst); err == nil {
		return nil
	}
	if err := CopyFile(src, dst); err != nil {
		return fmt.Errorf("stage %s: %w", src, err)
	}
	return nil
}

// MoveFile renames src to dst. When the rename crosses filesystems the file is
// copied next to dst, verified, renamed into place, and src is removed.
func MoveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := CopyFileVerified(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}

// CopyFileVerified copies src to dst and re-reads the written file to compare
// its SHA-256 with the source. dst only appears once the copy matches.
func CopyFileVerified(src, dst string) error {
	tmp := dst + partialSuffix
	want, err := copyHashed(src, tmp)
	if err != nil {
		_ = os.Remove(tmp)
		return err
	}
	got, err := hashFile(tmp)
	if err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if !bytes.Equal(want, got) {
		_ = os.Remove(tmp)
		return fmt.Errorf("copy hash mismatch: %s corrupted during copy", dst)
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("finalize copy: %w", err)
	}
	return nil
}

func copyHashed(src, dst string) ([]byte, error) {
	in, err := os.Open(src)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	defer out.Close()

	hasher := sha256.New()
	if _, err := io.Copy(out, io.TeeReader(in, hasher)); err != nil {
		return nil, err
	}
	if err := out.Close(); err != nil {
		return nil, err
	}
	return hasher.Sum(nil), nil
}

func hashFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return nil, err
	}
	return hasher.Sum(nil), nil
}
