package store

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFilesystem(t *testing.T) *Filesystem {
	t.Helper()
	s, err := NewFilesystem(t.TempDir(), slog.New(slog.NewTextHandler(os.Stderr, nil)))
	require.NoError(t, err)
	return s
}

func TestFilesystem_PutAndGetVerification(t *testing.T) {
	s := newTestFilesystem(t)
	ctx := context.Background()
	record := verificationFixture("ver-1", "user-1", time.Now().UTC())

	require.NoError(t, s.PutVerification(ctx, record))

	got, err := s.GetVerification(ctx, "ver-1")
	require.NoError(t, err)
	assert.Equal(t, record.UserID, got.UserID)
	assert.Equal(t, record.FileHash, got.FileHash)
}

func TestFilesystem_MetadataFileNaming(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFilesystem(dir, slog.New(slog.NewTextHandler(os.Stderr, nil)))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.PutVerification(ctx, verificationFixture("ver-1", "user-1", time.Now())))
	require.NoError(t, s.PutSimilarity(ctx, similarityFixture("chk-1", "user-1", time.Now())))

	assert.FileExists(t, filepath.Join(dir, "ver-1_metadata.json"))
	assert.FileExists(t, filepath.Join(dir, "chk-1_check_metadata.json"))
}

func TestFilesystem_PutVerification_DuplicateID(t *testing.T) {
	s := newTestFilesystem(t)
	ctx := context.Background()
	record := verificationFixture("ver-1", "user-1", time.Now())

	require.NoError(t, s.PutVerification(ctx, record))
	assert.ErrorIs(t, s.PutVerification(ctx, record), ErrDuplicateID)
}

func TestFilesystem_GetVerification_NotFound(t *testing.T) {
	s := newTestFilesystem(t)
	_, err := s.GetVerification(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFilesystem_FindLatestEnrollment(t *testing.T) {
	s := newTestFilesystem(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.PutVerification(ctx, verificationFixture("ver-old", "user-1", base)))
	require.NoError(t, s.PutVerification(ctx, verificationFixture("ver-new", "user-1", base.Add(time.Hour))))

	got, err := s.FindLatestEnrollment(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "ver-new", got.VerificationID)
}

func TestFilesystem_IndexSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	ctx := context.Background()

	s, err := NewFilesystem(dir, logger)
	require.NoError(t, err)
	require.NoError(t, s.PutVerification(ctx, verificationFixture("ver-1", "user-1", time.Now().UTC())))
	require.NoError(t, s.PutSimilarity(ctx, similarityFixture("chk-1", "user-1", time.Now().UTC())))

	reopened, err := NewFilesystem(dir, logger)
	require.NoError(t, err)

	verifications, err := reopened.ListVerificationsByUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, verifications, 1)

	similarities, err := reopened.ListSimilaritiesByUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, similarities, 1)
}

func TestFilesystem_ReopenSkipsCorruptRecords(t *testing.T) {
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	ctx := context.Background()

	s, err := NewFilesystem(dir, logger)
	require.NoError(t, err)
	require.NoError(t, s.PutVerification(ctx, verificationFixture("ver-1", "user-1", time.Now().UTC())))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ver-bad_metadata.json"), []byte("{not json"), 0o600))

	reopened, err := NewFilesystem(dir, logger)
	require.NoError(t, err)

	verifications, err := reopened.ListVerificationsByUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, verifications, 1)
}
