// Tracelane - Vehicle Presence Ingestion and Correlation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracelane

package ingest

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"github.com/tomtom215/tracelane/internal/logging"
)

// CleanFilename strips directories from a client-supplied name. File rows
// record uploads under this name.
func CleanFilename(name string) string {
	base := filepath.Base(filepath.Clean("/" + name))
	if base == "/" || base == "." || base == ".." || base == "" {
		return "upload"
	}
	return base
}

// CaseDir is the permanent storage directory of a case.
func CaseDir(uploadDir string, caseID int64) string {
	return filepath.Join(uploadDir, fmt.Sprintf("case-%d", caseID))
}

// StoredName is the permanent name of a file row's upload. The file id
// prefix keeps every row's copy distinct within a case directory.
func StoredName(fileID int64, filename string) string {
	return fmt.Sprintf("%d-%s", fileID, CleanFilename(filename))
}

// storeUpload moves the temporary upload to
// <upload_dir>/case-<id>/<fileID>-<filename> and returns the new path. It
// never replaces an existing file.
func (p *Pipeline) storeUpload(job Job, fileID int64) (string, error) {
	dir := CaseDir(p.cfg.UploadDir, job.CaseID)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create case directory: %w", err)
	}
	dst := filepath.Join(dir, StoredName(fileID, job.Filename))
	if _, err := os.Lstat(dst); err == nil {
		return "", fmt.Errorf("failed to store %s: %w", job.Filename, os.ErrExist)
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("failed to store %s: %w", job.Filename, err)
	}
	if err := moveFile(job.TempPath, dst); err != nil {
		return "", fmt.Errorf("failed to store %s: %w", job.Filename, err)
	}
	return dst, nil
}

// moveFile renames src to dst, copying when they are on different devices.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src) //nolint:gosec // server-side temp file
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640) //nolint:gosec // dst is built from a sanitized name
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dst)
		return err
	}
	return os.Remove(src)
}

func removeTemp(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logging.Warn().Err(err).Str("path", path).Msg("Failed to remove temporary upload")
	}
}

func discardStored(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logging.Warn().Err(err).Str("path", path).Msg("Failed to remove stored upload")
	}
}

func fileSize(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return "unknown"
	}
	return humanize.Bytes(uint64(info.Size())) //nolint:gosec // size is never negative
}
