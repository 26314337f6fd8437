package assets

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"
)

// URL returns the public URL for a committed relative path. It is a pure
// string operation and does not check that the file exists.
func (s *Store) URL(rel string) string {
	return strings.TrimRight(s.baseURL, "/") + "/" + strings.TrimLeft(filepath.ToSlash(rel), "/")
}

// ContentTypeFor maps a filename extension to the Content-Type used when
// serving it.
func ContentTypeFor(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return "application/pdf"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}

// Open resolves rel inside the store and opens it for reading. The caller
// must close the returned file.
func (s *Store) Open(rel string) (*os.File, fs.FileInfo, error) {
	target, err := s.resolve(rel)
	if err != nil {
		return nil, nil, err
	}

	f, err := os.Open(target)
	if err != nil {
		if isNotExist(err) {
			return nil, nil, notFoundError()
		}
		return nil, nil, storageError("failed to open file", err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, storageError("failed to stat file", err)
	}
	if !info.Mode().IsRegular() {
		_ = f.Close()
		return nil, nil, notFoundError()
	}

	return f, info, nil
}

// resolve turns a client supplied relative path into a canonical absolute
// path that is guaranteed to lie inside the committed asset tree. Symlinks
// are resolved before the containment check, so a link inside the root that
// points outside of it is rejected. The staging area and any other dot
// entries are not part of the asset tree.
func (s *Store) resolve(rel string) (string, error) {
	if strings.TrimSpace(rel) == "" {
		return "", validationError(CodeMissingFilePath, "filePath is required")
	}
	if strings.ContainsRune(rel, 0) {
		return "", pathTraversalError()
	}

	joined := filepath.Join(s.root, filepath.FromSlash(rel))
	target, err := canonicalize(joined)
	if err != nil {
		return "", storageError("failed to resolve path", err)
	}

	if !within(s.root, target) {
		return "", pathTraversalError()
	}

	relToRoot, err := filepath.Rel(s.root, target)
	if err != nil {
		return "", pathTraversalError()
	}
	for _, seg := range strings.Split(filepath.ToSlash(relToRoot), "/") {
		if strings.HasPrefix(seg, ".") {
			return "", pathTraversalError()
		}
	}

	return target, nil
}

// canonicalize resolves symlinks in the longest existing prefix of p and
// appends the remaining, not yet existing components unchanged.
func canonicalize(p string) (string, error) {
	p = filepath.Clean(p)

	var rest []string
	cur := p
	for {
		resolved, err := filepath.EvalSymlinks(cur)
		if err == nil {
			return filepath.Join(append([]string{resolved}, rest...)...), nil
		}
		if !errors.Is(err, fs.ErrNotExist) && !errors.Is(err, syscall.ENOTDIR) {
			return "", err
		}

		parent := filepath.Dir(cur)
		if parent == cur {
			return p, nil
		}
		rest = append([]string{filepath.Base(cur)}, rest...)
		cur = parent
	}
}

// within reports whether target is strictly inside root. Both must be
// canonical.
func within(root string, target string) bool {
	prefix := root
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(target, prefix)
}
