package assets

import (
	"log/slog"
	"os"
	"time"
)

// Delete removes a committed asset given its path relative to the root.
// Paths that resolve outside the root are rejected before anything is
// touched. Deleting the same path twice yields a NotFound error the second
// time.
func (s *Store) Delete(rel string) error {
	start := time.Now()
	err := s.delete(rel)
	s.observer.RecordDelete(time.Since(start), err)
	return err
}

func (s *Store) delete(rel string) error {
	target, err := s.resolve(rel)
	if err != nil {
		return err
	}

	info, err := os.Lstat(target)
	if err != nil {
		if isNotExist(err) {
			return notFoundError()
		}
		return storageError("failed to stat file", err)
	}
	if info.IsDir() {
		return notFoundError()
	}

	if err := s.fs.Remove(target); err != nil {
		if isNotExist(err) {
			return notFoundError()
		}
		return storageError("failed to delete file", err)
	}

	slog.Debug("Deleted asset", "path", rel)
	return nil
}
