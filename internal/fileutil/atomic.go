package fileutil

import (
	"os"
	"path/filepath"
)

// AtomicWrite writes data to a file atomically using a tmp file + rename.
// The file is written to a temporary file in the same directory, synced to
// disk, then renamed over the target path, so readers never observe a
// partially written file.
func AtomicWrite(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)

	// The tmp file must live in the same directory for the rename to be atomic.
	tmp, err := os.CreateTemp(dir, ".bunstack-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}

	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpPath, perm); err != nil {
		return err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return err
	}

	success = true
	return nil
}
