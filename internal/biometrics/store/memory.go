package store

import (
	"context"
	"sync"

	"github.com/rahimunlu/humanID/internal/biometrics/models"
)

// InMemory stores records in memory for tests and local development.
type InMemory struct {
	mu            sync.RWMutex
	verifications map[string]*models.VerificationRecord
	similarities  map[string]*models.SimilarityRecord

	// user_id -> record IDs, so per-user lookups avoid full scans.
	userVerifications map[string][]string
	userSimilarities  map[string][]string
}

// NewInMemory creates an in-memory record store.
func NewInMemory() *InMemory {
	return &InMemory{
		verifications:     make(map[string]*models.VerificationRecord),
		similarities:      make(map[string]*models.SimilarityRecord),
		userVerifications: make(map[string][]string),
		userSimilarities:  make(map[string][]string),
	}
}

func (s *InMemory) PutVerification(_ context.Context, record *models.VerificationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.verifications[record.VerificationID]; exists {
		return ErrDuplicateID
	}
	copied := *record
	s.verifications[record.VerificationID] = &copied
	s.userVerifications[record.UserID] = append(s.userVerifications[record.UserID], record.VerificationID)
	return nil
}

func (s *InMemory) PutSimilarity(_ context.Context, record *models.SimilarityRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.similarities[record.CheckID]; exists {
		return ErrDuplicateID
	}
	copied := *record
	s.similarities[record.CheckID] = &copied
	s.userSimilarities[record.UserID] = append(s.userSimilarities[record.UserID], record.CheckID)
	return nil
}

func (s *InMemory) GetVerification(_ context.Context, verificationID string) (*models.VerificationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if record, ok := s.verifications[verificationID]; ok {
		copied := *record
		return &copied, nil
	}
	return nil, ErrNotFound
}

func (s *InMemory) FindLatestEnrollment(_ context.Context, userID string) (*models.VerificationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *models.VerificationRecord
	for _, id := range s.userVerifications[userID] {
		record := s.verifications[id]
		if latest == nil || record.CreatedAt.After(latest.CreatedAt) {
			latest = record
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	copied := *latest
	return &copied, nil
}

func (s *InMemory) ListVerificationsByUser(_ context.Context, userID string) ([]*models.VerificationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.userVerifications[userID]
	records := make([]*models.VerificationRecord, 0, len(ids))
	for _, id := range ids {
		copied := *s.verifications[id]
		records = append(records, &copied)
	}
	return records, nil
}

func (s *InMemory) ListSimilaritiesByUser(_ context.Context, userID string) ([]*models.SimilarityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.userSimilarities[userID]
	records := make([]*models.SimilarityRecord, 0, len(ids))
	for _, id := range ids {
		copied := *s.similarities[id]
		records = append(records, &copied)
	}
	return records, nil
}
