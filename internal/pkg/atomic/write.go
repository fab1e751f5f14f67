// Package atomic provides write-temp-file-then-rename helpers used
// anywhere a file must never be observed in a half-written state:
// the deployment store snapshot and remote authorized_keys cleanup.
package atomic

import (
	"fmt"
	"os"
	"path/filepath"
)

// WriteFile writes data to path by first writing to a sibling temporary
// file and renaming it over path, so concurrent readers never see a
// partial write. perm is applied to the temporary file before rename.
func WriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, fmt.Sprintf(".%s.tmp-*", filepath.Base(path)))
	if err != nil {
		return fmt.Errorf("atomic: create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("atomic: write temp file: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("atomic: chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("atomic: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("atomic: rename temp file: %w", err)
	}
	return nil
}
