package assets

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type countingObserver struct {
	nopObserver
	cleanupFailures int
	commitErrs      []error
}

func (c *countingObserver) RecordCleanupFailure() { c.cleanupFailures++ }

func (c *countingObserver) RecordCommit(_ time.Duration, _ int64, err error) {
	c.commitErrs = append(c.commitErrs, err)
}

func newInternalStore(t *testing.T, opts ...Option) *Store {
	t.Helper()

	s, err := New(t.TempDir(), "/uploads", opts...)
	require.NoError(t, err)
	return s
}

func stageBytes(t *testing.T, s *Store, data []byte) *StagedAsset {
	t.Helper()

	staged, err := s.Stage(context.Background(), Upload{
		Category:     CategoryLogo,
		OriginalName: "crest.png",
		MimeType:     "image/png",
		Size:         int64(len(data)),
		Body:         bytes.NewReader(data),
	})
	require.NoError(t, err)
	return staged
}

func requireStagingEmpty(t *testing.T, s *Store) {
	t.Helper()

	entries, err := os.ReadDir(s.stagingDir)
	require.NoError(t, err)
	require.Empty(t, entries, "staging area should be empty")
}

func TestCommitMkdirFailureCleansUp(t *testing.T) {
	t.Parallel()

	s := newInternalStore(t)
	s.fs.MkdirAll = func(string, os.FileMode) error { return syscall.EACCES }

	staged := stageBytes(t, s, []byte("png"))
	_, err := s.Commit(staged, EntityRef{Kind: EntityTeam, ID: "42"})
	require.ErrorIs(t, err, ErrStorage)
	require.ErrorIs(t, err, syscall.EACCES)

	var ae *Error
	require.ErrorAs(t, err, &ae)
	require.NotContains(t, ae.Message, s.root, "client message must not leak paths")
	requireStagingEmpty(t, s)
}

func TestCommitRenameFailureCleansUp(t *testing.T) {
	t.Parallel()

	s := newInternalStore(t)
	s.fs.Rename = func(string, string) error { return &os.LinkError{Op: "rename", Err: syscall.EIO} }

	staged := stageBytes(t, s, []byte("png"))
	_, err := s.Commit(staged, EntityRef{Kind: EntityTeam, ID: "42"})
	require.ErrorIs(t, err, ErrStorage)
	requireStagingEmpty(t, s)

	_, statErr := os.Stat(filepath.Join(s.root, "teams", "42", "logo", staged.GeneratedName))
	require.True(t, os.IsNotExist(statErr), "nothing should be committed")
}

func TestCommitCrossDeviceFallback(t *testing.T) {
	t.Parallel()

	s := newInternalStore(t)
	s.fs.Rename = func(oldpath, newpath string) error {
		if filepath.Dir(oldpath) == s.stagingDir {
			return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: syscall.EXDEV}
		}
		return os.Rename(oldpath, newpath)
	}

	staged := stageBytes(t, s, []byte("cross-device"))
	committed, err := s.Commit(staged, EntityRef{Kind: EntityPlayer, ID: "3"})
	require.NoError(t, err)

	finalDir := filepath.Join(s.root, "players", "3", "logo")
	got, err := os.ReadFile(filepath.Join(finalDir, staged.GeneratedName))
	require.NoError(t, err)
	require.Equal(t, "cross-device", string(got))
	require.Equal(t, "players/3/logo/"+staged.GeneratedName, committed.RelativePath)

	entries, err := os.ReadDir(finalDir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "no temp files left next to the committed asset")
	requireStagingEmpty(t, s)
}

func TestCleanupFailureIsSwallowed(t *testing.T) {
	t.Parallel()

	obs := &countingObserver{}
	s := newInternalStore(t, WithObserver(obs))
	s.fs.Remove = func(string) error { return syscall.EBUSY }

	staged := stageBytes(t, s, []byte("png"))
	_, err := s.Commit(staged, EntityRef{Kind: EntityTeam, ID: ""})

	// The caller sees the original error, not the cleanup failure.
	require.ErrorIs(t, err, ErrMissingEntity)
	require.False(t, errors.Is(err, syscall.EBUSY))
	require.Equal(t, 1, obs.cleanupFailures)
	require.Len(t, obs.commitErrs, 1)
}

func TestGeneratedNamesUseClock(t *testing.T) {
	t.Parallel()

	fixed := time.UnixMilli(1700000000123)
	s := newInternalStore(t, WithClock(func() time.Time { return fixed }))
	s.token = func() string { return "abcdef012345" }

	staged := stageBytes(t, s, []byte("png"))
	defer s.Discard(staged)
	require.Equal(t, "1700000000123-abcdef012345-crest.png", staged.GeneratedName)
}

func TestCanonicalizeMissingTail(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	canonicalDir, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)

	got, err := canonicalize(filepath.Join(dir, "a", "b", "c.png"))
	require.NoError(t, err)
	require.Equal(t, filepath.Join(canonicalDir, "a", "b", "c.png"), got)
}

func TestWithin(t *testing.T) {
	t.Parallel()

	require.True(t, within("/srv/uploads", "/srv/uploads/teams/1"))
	require.False(t, within("/srv/uploads", "/srv/uploads"))
	require.False(t, within("/srv/uploads", "/srv/uploads-evil/x"))
	require.False(t, within("/srv/uploads", "/etc/passwd"))
}
