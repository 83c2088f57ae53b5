package store

import (
	"context"

	"github.com/rahimunlu/humanID/internal/biometrics/models"
	"github.com/rahimunlu/humanID/internal/sentinel"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = sentinel.ErrNotFound

// ErrDuplicateID is returned when a record with the same ID already exists.
// Record IDs are generator-assigned upstream; a collision is a caller bug.
var ErrDuplicateID = sentinel.ErrDuplicateID

// Store is the authoritative keyed storage for verification and similarity
// records. Records are immutable once written; there are no update or delete
// operations by design.
type Store interface {
	// PutVerification persists an enrollment record. Fails with ErrDuplicateID
	// if the verification ID is already taken.
	PutVerification(ctx context.Context, record *models.VerificationRecord) error

	// PutSimilarity persists a similarity check record. Fails with
	// ErrDuplicateID if the check ID is already taken.
	PutSimilarity(ctx context.Context, record *models.SimilarityRecord) error

	// GetVerification retrieves an enrollment record by its ID.
	GetVerification(ctx context.Context, verificationID string) (*models.VerificationRecord, error)

	// FindLatestEnrollment returns the enrollment with the greatest created_at
	// among all belonging to the user, or ErrNotFound if none exist. When
	// several records share the maximal timestamp any one of them may be
	// returned.
	FindLatestEnrollment(ctx context.Context, userID string) (*models.VerificationRecord, error)

	// ListVerificationsByUser returns all enrollment records for a user in
	// creation order.
	ListVerificationsByUser(ctx context.Context, userID string) ([]*models.VerificationRecord, error)

	// ListSimilaritiesByUser returns all similarity check records for a user
	// in creation order. Callers joining checks onto verifications rely on
	// this order being the same on every backend.
	ListSimilaritiesByUser(ctx context.Context, userID string) ([]*models.SimilarityRecord, error)
}
