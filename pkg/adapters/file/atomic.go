package file

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// tempPrefix marks in-flight writes. validName forbids a leading dot, so no
// stored id can carry it.
const tempPrefix = ".tmp-"

// writeAtomic writes data to destPath via a synced temp file in the same
// directory followed by a rename, so readers never observe a partial file.
func writeAtomic(destPath string, data []byte) error {
	dir := filepath.Dir(destPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to ensure directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, tempPrefix+"*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}
	// Windows cannot rename an open file.
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// validName rejects ids that would escape the store directory or be taken
// for hidden or temporary files.
func validName(id string) error {
	if id == "" {
		return fmt.Errorf("id cannot be empty")
	}
	if id != filepath.Base(id) || strings.HasPrefix(id, ".") {
		return fmt.Errorf("invalid id %q", id)
	}
	return nil
}

// escapeName maps an arbitrary id to a single path element. The result never
// starts with a dot, and distinct ids never share one.
func escapeName(id string) string {
	esc := url.PathEscape(id)
	if strings.HasPrefix(esc, ".") {
		esc = "%2E" + esc[1:]
	}
	return esc
}
