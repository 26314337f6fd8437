package assets

import (
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"
)

// filesystem holds the mutating calls the store makes so tests can inject
// failures.
type filesystem struct {
	MkdirAll func(path string, perm os.FileMode) error
	Rename   func(oldpath, newpath string) error
	Remove   func(name string) error
}

func osFilesystem() filesystem {
	return filesystem{
		MkdirAll: os.MkdirAll,
		Rename:   os.Rename,
		Remove:   os.Remove,
	}
}

// MoveFile renames srcPath to destPath. If the two live on different
// filesystems the contents are copied into a hidden temp file next to
// destPath which is then renamed into place, so readers of destPath never
// observe a partially written file.
func (f filesystem) MoveFile(srcPath string, destPath string) error {
	err := f.Rename(srcPath, destPath)
	if err == nil {
		return nil
	}

	var linkErr *os.LinkError
	if !errors.As(err, &linkErr) || !errors.Is(linkErr.Err, syscall.EXDEV) {
		return err
	}

	if err := copyIntoPlace(srcPath, destPath); err != nil {
		return err
	}

	// The copy is in place. A source that cannot be removed is left for the
	// staging sweep; failing here would orphan destPath instead.
	if rmErr := f.Remove(srcPath); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
		slog.Warn("Remove source after cross-device copy", "file", filepath.Base(srcPath), "err", rmErr)
	}
	return nil
}

func copyIntoPlace(srcPath string, destPath string) (err error) {
	srcFile, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	tmp, err := os.CreateTemp(filepath.Dir(destPath), ".move-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = io.Copy(tmp, srcFile); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), destPath)
}

// isNotExist treats a path whose parent is a regular file like a missing
// path.
func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR)
}
