//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/rahimunlu/humanID/internal/biometrics/models"
	"github.com/rahimunlu/humanID/internal/biometrics/store"
	"github.com/rahimunlu/humanID/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.Postgres
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateAll(context.Background()))
}

func newVerification(userID string, createdAt time.Time) *models.VerificationRecord {
	return &models.VerificationRecord{
		VerificationID:        uuid.NewString(),
		UserID:                userID,
		ExternalKYCDocumentID: "doc-" + uuid.NewString(),
		HumanityScore:         0.912,
		OriginalFilename:      "profile.txt",
		FileHash:              "a3f5c7",
		FileSize:              2048,
		EncryptedPayloadRef:   "/vault/" + uuid.NewString() + ".enc",
		CreatedAt:             createdAt,
	}
}

func (s *PostgresStoreSuite) TestPutAndGetVerification() {
	ctx := context.Background()
	record := newVerification("user-1", time.Now().UTC().Truncate(time.Microsecond))

	s.Require().NoError(s.store.PutVerification(ctx, record))

	got, err := s.store.GetVerification(ctx, record.VerificationID)
	s.Require().NoError(err)
	s.Equal(record.UserID, got.UserID)
	s.Equal(record.FileHash, got.FileHash)
	s.True(record.CreatedAt.Equal(got.CreatedAt))
}

func (s *PostgresStoreSuite) TestPutVerification_DuplicateID() {
	ctx := context.Background()
	record := newVerification("user-1", time.Now().UTC())

	s.Require().NoError(s.store.PutVerification(ctx, record))
	s.ErrorIs(s.store.PutVerification(ctx, record), store.ErrDuplicateID)
}

func (s *PostgresStoreSuite) TestGetVerification_NotFound() {
	_, err := s.store.GetVerification(context.Background(), uuid.NewString())
	s.ErrorIs(err, store.ErrNotFound)
}

func (s *PostgresStoreSuite) TestFindLatestEnrollment() {
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour).Truncate(time.Microsecond)

	older := newVerification("user-1", base)
	newer := newVerification("user-1", base.Add(30*time.Minute))
	other := newVerification("user-2", base.Add(time.Hour))

	s.Require().NoError(s.store.PutVerification(ctx, older))
	s.Require().NoError(s.store.PutVerification(ctx, newer))
	s.Require().NoError(s.store.PutVerification(ctx, other))

	got, err := s.store.FindLatestEnrollment(ctx, "user-1")
	s.Require().NoError(err)
	s.Equal(newer.VerificationID, got.VerificationID)
}

func (s *PostgresStoreSuite) TestFindLatestEnrollment_NoEnrollments() {
	_, err := s.store.FindLatestEnrollment(context.Background(), "user-absent")
	s.ErrorIs(err, store.ErrNotFound)
}

func (s *PostgresStoreSuite) TestSimilarityRoundTrip() {
	ctx := context.Background()
	enrollment := newVerification("user-1", time.Now().UTC())
	s.Require().NoError(s.store.PutVerification(ctx, enrollment))

	check := &models.SimilarityRecord{
		CheckID:              uuid.NewString(),
		UserID:               "user-1",
		StoredVerificationID: enrollment.VerificationID,
		SimilarityResult:     models.RelatedPerson,
		ProbabilityScore:     0.75,
		NewFileHash:          "deadbeef",
		StoredFileHash:       enrollment.FileHash,
		CreatedAt:            time.Now().UTC().Truncate(time.Microsecond),
	}
	s.Require().NoError(s.store.PutSimilarity(ctx, check))
	s.ErrorIs(s.store.PutSimilarity(ctx, check), store.ErrDuplicateID)

	similarities, err := s.store.ListSimilaritiesByUser(ctx, "user-1")
	s.Require().NoError(err)
	s.Require().Len(similarities, 1)
	s.Equal(models.RelatedPerson, similarities[0].SimilarityResult)
	s.Equal(0.75, similarities[0].ProbabilityScore)
}

// TestListSimilaritiesByUser_CreationOrder inserts checks out of creation
// order and verifies the list comes back ordered by created_at, so the status
// join picks the same check on every backend.
func (s *PostgresStoreSuite) TestListSimilaritiesByUser_CreationOrder() {
	ctx := context.Background()
	enrollment := newVerification("user-1", time.Now().UTC())
	s.Require().NoError(s.store.PutVerification(ctx, enrollment))

	base := time.Now().UTC().Add(-time.Hour).Truncate(time.Microsecond)
	newCheck := func(result models.SimilarityResult, createdAt time.Time) *models.SimilarityRecord {
		return &models.SimilarityRecord{
			CheckID:              uuid.NewString(),
			UserID:               "user-1",
			StoredVerificationID: enrollment.VerificationID,
			SimilarityResult:     result,
			ProbabilityScore:     result.ProbabilityScore(),
			NewFileHash:          "cafe01",
			StoredFileHash:       enrollment.FileHash,
			CreatedAt:            createdAt,
		}
	}

	second := newCheck(models.UnrelatedPerson, base.Add(10*time.Minute))
	first := newCheck(models.SamePerson, base)

	// Inserted newest first on purpose.
	s.Require().NoError(s.store.PutSimilarity(ctx, second))
	s.Require().NoError(s.store.PutSimilarity(ctx, first))

	similarities, err := s.store.ListSimilaritiesByUser(ctx, "user-1")
	s.Require().NoError(err)
	s.Require().Len(similarities, 2)
	s.Equal(first.CheckID, similarities[0].CheckID)
	s.Equal(second.CheckID, similarities[1].CheckID)
}

func (s *PostgresStoreSuite) TestListVerificationsByUser() {
	ctx := context.Background()
	now := time.Now().UTC()

	s.Require().NoError(s.store.PutVerification(ctx, newVerification("user-1", now)))
	s.Require().NoError(s.store.PutVerification(ctx, newVerification("user-1", now.Add(time.Minute))))
	s.Require().NoError(s.store.PutVerification(ctx, newVerification("user-2", now)))

	records, err := s.store.ListVerificationsByUser(ctx, "user-1")
	s.Require().NoError(err)
	s.Len(records, 2)
}
