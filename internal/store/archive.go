package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// Archive writes a zstd-compressed copy of a snapshot or delta file
// into archiveDir, for an operator who wants cheap cold storage of
// older versions (spec §4.2 domain-stack addition — SPEC_FULL.md
// §4.2). It never touches, renames, or removes the live file: spec.md's
// Non-goals explicitly exclude expiry/garbage-collection of snapshots
// ("retention is operator policy"), so Archive only ever adds a copy.
// Deleting a live ".ax"/".ix.*" file, if ever wanted, is something an
// operator does directly against the store directory, not something
// this core decides on its own.
func Archive(archiveDir string, path string) (err error) {
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return err
	}

	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	dstPath := filepath.Join(archiveDir, filepath.Base(path)+".zst")
	tmp := dstPath + fmt.Sprintf(".%d.tmp", os.Getpid())
	dst, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			os.Remove(tmp)
		}
	}()

	enc, err := zstd.NewWriter(dst)
	if err != nil {
		dst.Close()
		return err
	}
	if _, err = Copy(enc, src); err != nil {
		enc.Close()
		dst.Close()
		return err
	}
	if err = enc.Close(); err != nil {
		dst.Close()
		return err
	}
	if err = dst.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, dstPath)
}
