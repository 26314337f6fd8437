package assets

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

const (
	// StagingDirName is the directory under the root that holds uploads that
	// have not been committed yet. It is never served.
	StagingDirName = ".staging"

	sniffLen       = 3072
	copyBufferSize = 32 * 1024
)

var entityIDRegex = regexp.MustCompile(`^[A-Za-z0-9_-][A-Za-z0-9._-]{0,127}$`)

// Store owns the upload root: the staging area, the committed asset tree,
// and everything that moves files between them.
type Store struct {
	root       string
	stagingDir string
	baseURL    string
	observer   Observer
	now        func() time.Time
	token      func() string
	fs         filesystem
}

// Option configures a Store.
type Option func(*Store)

// WithObserver sets the telemetry sink.
func WithObserver(o Observer) Option {
	return func(s *Store) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithClock overrides the time source used for generated names.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New opens the store at root, creating the root, the staging directory and
// one directory per entity kind if they do not exist. baseURL is the public
// prefix committed paths are resolved against.
func New(root string, baseURL string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("storage root must not be empty")
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}

	// Containment checks compare canonical paths, so the root must be
	// canonical as well.
	canonical, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("canonicalize storage root: %w", err)
	}

	s := &Store{
		root:       canonical,
		stagingDir: filepath.Join(canonical, StagingDirName),
		baseURL:    baseURL,
		observer:   nopObserver{},
		now:        time.Now,
		token:      randomToken,
		fs:         osFilesystem(),
	}
	for _, opt := range opts {
		opt(s)
	}

	dirs := []string{s.stagingDir}
	for _, k := range EntityKinds {
		dirs = append(dirs, filepath.Join(s.root, k.Plural()))
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}

	return s, nil
}

// ValidEntityID reports whether id is safe to use as a single path segment.
func ValidEntityID(id string) bool {
	return entityIDRegex.MatchString(id)
}

// Root returns the canonical absolute storage root.
func (s *Store) Root() string {
	return s.root
}

// Upload is one incoming file as seen by Stage.
type Upload struct {
	// Category is empty when the form fields naming it have not been read
	// yet. The file is then staged under the permissive provisional rule and
	// checked against the real category at commit.
	Category     Category
	OriginalName string
	// MimeType is the declared type. When empty or generic the type is
	// detected from the leading bytes of Body.
	MimeType string
	// Size is the declared size, or -1 if unknown.
	Size int64
	Body io.Reader
}

// Stage validates an upload and streams it into the staging area under a
// freshly generated name. Nothing is written when validation fails, and on
// any later failure the partial staged file is removed before returning.
func (s *Store) Stage(ctx context.Context, up Upload) (*StagedAsset, error) {
	start := time.Now()
	staged, err := s.stage(ctx, up)
	var size int64
	if staged != nil {
		size = staged.Size
	}
	s.observer.RecordStage(time.Since(start), size, err)
	return staged, err
}

func (s *Store) stage(ctx context.Context, up Upload) (*StagedAsset, error) {
	rule := provisionalRule()
	if up.Category != "" {
		rule = RuleFor(up.Category)
	}

	body := up.Body
	if body == nil {
		body = bytes.NewReader(nil)
	}

	mimeType := normalizeMime(up.MimeType)
	if mimeType == "" || mimeType == "application/octet-stream" {
		head := make([]byte, sniffLen)
		n, err := io.ReadFull(body, head)
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, s.interrupted(ctx, err)
		}
		head = head[:n]
		mimeType = normalizeMime(mimetype.Detect(head).String())
		body = io.MultiReader(bytes.NewReader(head), body)
	}

	if err := rule.checkMime(up.Category, mimeType); err != nil {
		return nil, err
	}
	if up.Size >= 0 {
		if err := rule.checkSize(up.Size); err != nil {
			return nil, err
		}
	}

	sanitized := SanitizeFilename(up.OriginalName)
	generated := GenerateName(s.now(), s.token(), sanitized)
	tempPath := filepath.Join(s.stagingDir, generated)

	f, err := os.OpenFile(tempPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, storageError("failed to stage upload", err)
	}

	written, err := copyWithContext(ctx, f, body, rule.limit())
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = storageError("failed to stage upload", closeErr)
	}
	if err != nil {
		s.cleanup(tempPath)
		return nil, err
	}

	return &StagedAsset{
		TempPath:      tempPath,
		OriginalName:  up.OriginalName,
		SanitizedName: sanitized,
		GeneratedName: generated,
		Size:          written,
		MimeType:      mimeType,
		Category:      up.Category,
	}, nil
}

// copyWithContext copies src into dst, failing once more than limit bytes
// arrive or ctx is done.
func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader, limit int64) (int64, error) {
	src = io.LimitReader(src, limit+1)
	buf := make([]byte, copyBufferSize)

	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return written, interruptedError(err)
		}

		n, readErr := src.Read(buf)
		if n > 0 {
			if written+int64(n) > limit {
				return written, validationError(CodeFileTooLarge, "file is too large: exceeds the %d MiB limit", limit/MiB)
			}
			if _, err := dst.Write(buf[:n]); err != nil {
				return written, storageError("failed to stage upload", err)
			}
			written += int64(n)
		}

		if errors.Is(readErr, io.EOF) {
			return written, nil
		}
		if readErr != nil {
			if err := ctx.Err(); err != nil {
				return written, interruptedError(err)
			}
			return written, interruptedError(readErr)
		}
	}
}

func (s *Store) interrupted(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return interruptedError(ctxErr)
	}
	return interruptedError(err)
}

func interruptedError(err error) *Error {
	return &Error{Kind: ErrValidation, Code: CodeUploadInterrupted, Message: "upload was interrupted", Err: err}
}

// Commit moves a staged file to
// {root}/{kindPlural}/{entityId}/{subfolder}/{generatedName}. Directories are
// created as needed. On any failure the staged file is removed and the
// error is returned; nothing is left behind in either location.
func (s *Store) Commit(staged *StagedAsset, ref EntityRef) (*CommittedAsset, error) {
	start := time.Now()
	asset, err := s.commit(staged, ref)
	var size int64
	if staged != nil {
		size = staged.Size
	}
	s.observer.RecordCommit(time.Since(start), size, err)
	return asset, err
}

func (s *Store) commit(staged *StagedAsset, ref EntityRef) (*CommittedAsset, error) {
	if staged == nil {
		return nil, storageError("no staged file to commit", nil)
	}

	if strings.TrimSpace(ref.ID) == "" {
		s.Discard(staged)
		return nil, missingEntityError("entityId is required")
	}
	if _, ok := ParseEntityKind(string(ref.Kind)); !ok {
		s.Discard(staged)
		return nil, validationError(CodeInvalidEntity, "unknown entity type %q", ref.Kind)
	}
	if !ValidEntityID(ref.ID) {
		s.Discard(staged)
		return nil, validationError(CodeInvalidEntity, "invalid entityId %q", ref.ID)
	}

	category := staged.Category
	if category == "" {
		category = CategoryDocument
	}
	if err := Validate(category, staged.MimeType, staged.Size); err != nil {
		s.Discard(staged)
		return nil, err
	}

	kind, _ := ParseEntityKind(string(ref.Kind))
	rel := path.Join(kind.Plural(), ref.ID, category.Subfolder(), staged.GeneratedName)
	finalPath := filepath.Join(s.root, filepath.FromSlash(rel))

	if err := s.fs.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		s.Discard(staged)
		return nil, storageError("failed to prepare asset directory", err)
	}

	if err := s.fs.MoveFile(staged.TempPath, finalPath); err != nil {
		s.Discard(staged)
		return nil, storageError("failed to store file", err)
	}

	slog.Debug("Committed asset", "path", rel, "size", staged.Size, "mime", staged.MimeType)

	return &CommittedAsset{
		RelativePath: rel,
		PublicURL:    s.URL(rel),
		Size:         staged.Size,
		MimeType:     staged.MimeType,
		OriginalName: staged.OriginalName,
	}, nil
}

// Discard removes a staged file. It is safe to call after a successful
// commit, in which case there is nothing left to remove.
func (s *Store) Discard(staged *StagedAsset) {
	if staged == nil {
		return
	}
	s.cleanup(staged.TempPath)
}

// cleanup removes path on a best-effort basis. Failures are logged and
// counted, never returned, so they cannot mask the error that triggered
// the cleanup.
func (s *Store) cleanup(p string) {
	if p == "" {
		return
	}
	if err := s.fs.Remove(p); err != nil && !isNotExist(err) {
		slog.Warn("Remove staged file", "file", filepath.Base(p), "err", err)
		s.observer.RecordCleanupFailure()
	}
}

// SweepStaging removes staged files older than maxAge, which can only be
// left behind by a crash between staging and commit.
func (s *Store) SweepStaging(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.stagingDir)
	if err != nil {
		return 0, fmt.Errorf("read staging directory: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			if isNotExist(err) {
				continue
			}
			return removed, fmt.Errorf("stat staged file: %w", err)
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := s.fs.Remove(filepath.Join(s.stagingDir, entry.Name())); err != nil && !isNotExist(err) {
			slog.Warn("Remove stale staged file", "file", entry.Name(), "err", err)
			s.observer.RecordCleanupFailure()
			continue
		}
		removed++
	}

	return removed, nil
}
