package fileutil

import (
	"fmt"
	"os"
	"path/filepath"
)

// Transaction applies a set of file writes and removals together: either
// every staged operation lands, or the originals are restored. Used for
// multi-file state such as a token pair, where a partial write would leave
// the two halves inconsistent.
type Transaction struct {
	dir    string
	writes map[string][]byte
	remove []string
}

// NewTransaction creates a transaction rooted at dir. Paths passed to Write
// and Remove are relative to dir.
func NewTransaction(dir string) *Transaction {
	return &Transaction{dir: dir, writes: make(map[string][]byte)}
}

// Write stages a file write.
func (tx *Transaction) Write(name string, data []byte) {
	tx.writes[name] = data
}

// Remove stages a file removal. Missing files are not an error.
func (tx *Transaction) Remove(name string) {
	tx.remove = append(tx.remove, name)
}

// Commit applies the staged operations. On any failure the already-applied
// operations are rolled back from in-memory backups and the first error is
// returned.
func (tx *Transaction) Commit() error {
	type applied struct {
		path    string
		backup  []byte
		existed bool
	}
	var done []applied

	rollback := func() {
		for i := len(done) - 1; i >= 0; i-- {
			a := done[i]
			if a.existed {
				_ = os.WriteFile(a.path, a.backup, 0600)
			} else {
				_ = os.Remove(a.path)
			}
		}
	}

	stage := func(path string) (applied, error) {
		a := applied{path: path}
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			a.backup = data
			a.existed = true
		case !os.IsNotExist(err):
			return a, err
		}
		return a, nil
	}

	for name, data := range tx.writes {
		path := filepath.Join(tx.dir, name)
		a, err := stage(path)
		if err != nil {
			rollback()
			return fmt.Errorf("failed to back up %s: %w", name, err)
		}
		if err := AtomicWrite(path, data, 0600); err != nil {
			rollback()
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
		done = append(done, a)
	}

	for _, name := range tx.remove {
		path := filepath.Join(tx.dir, name)
		a, err := stage(path)
		if err != nil {
			rollback()
			return fmt.Errorf("failed to back up %s: %w", name, err)
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			rollback()
			return fmt.Errorf("failed to remove %s: %w", name, err)
		}
		done = append(done, a)
	}

	return nil
}
