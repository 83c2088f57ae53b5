package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rahimunlu/humanID/internal/biometrics/models"
)

const (
	verificationSuffix = "_metadata.json"
	similaritySuffix   = "_check_metadata.json"
)

// Filesystem persists one JSON document per record under a data directory.
// A user_id index is built once at open and maintained on writes, so per-user
// lookups never rescan the directory.
type Filesystem struct {
	dir    string
	logger *slog.Logger

	mu                sync.RWMutex
	userVerifications map[string][]string
	userSimilarities  map[string][]string
}

// NewFilesystem opens (creating if needed) a filesystem-backed record store
// rooted at dir and indexes any records already present.
func NewFilesystem(dir string, logger *slog.Logger) (*Filesystem, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create record dir: %w", err)
	}
	s := &Filesystem{
		dir:               dir,
		logger:            logger,
		userVerifications: make(map[string][]string),
		userSimilarities:  make(map[string][]string),
	}
	if err := s.buildIndex(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Filesystem) buildIndex() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("scan record dir: %w", err)
	}
	for _, entry := range entries {
		name := entry.Name()
		switch {
		case strings.HasSuffix(name, similaritySuffix):
			var record models.SimilarityRecord
			if err := s.readJSON(name, &record); err != nil {
				s.logger.Warn("skipping unreadable similarity record", "file", name, "error", err)
				continue
			}
			s.userSimilarities[record.UserID] = append(s.userSimilarities[record.UserID], record.CheckID)
		case strings.HasSuffix(name, verificationSuffix):
			var record models.VerificationRecord
			if err := s.readJSON(name, &record); err != nil {
				s.logger.Warn("skipping unreadable verification record", "file", name, "error", err)
				continue
			}
			s.userVerifications[record.UserID] = append(s.userVerifications[record.UserID], record.VerificationID)
		}
	}
	return nil
}

func (s *Filesystem) PutVerification(_ context.Context, record *models.VerificationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := record.VerificationID + verificationSuffix
	if err := s.writeJSONExclusive(name, record); err != nil {
		return err
	}
	s.userVerifications[record.UserID] = append(s.userVerifications[record.UserID], record.VerificationID)
	return nil
}

func (s *Filesystem) PutSimilarity(_ context.Context, record *models.SimilarityRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := record.CheckID + similaritySuffix
	if err := s.writeJSONExclusive(name, record); err != nil {
		return err
	}
	s.userSimilarities[record.UserID] = append(s.userSimilarities[record.UserID], record.CheckID)
	return nil
}

func (s *Filesystem) GetVerification(_ context.Context, verificationID string) (*models.VerificationRecord, error) {
	var record models.VerificationRecord
	if err := s.readJSON(verificationID+verificationSuffix, &record); err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &record, nil
}

func (s *Filesystem) FindLatestEnrollment(ctx context.Context, userID string) (*models.VerificationRecord, error) {
	s.mu.RLock()
	ids := append([]string(nil), s.userVerifications[userID]...)
	s.mu.RUnlock()

	var latest *models.VerificationRecord
	for _, id := range ids {
		record, err := s.GetVerification(ctx, id)
		if err != nil {
			s.logger.Warn("indexed verification record missing on disk", "verification_id", id, "error", err)
			continue
		}
		if latest == nil || record.CreatedAt.After(latest.CreatedAt) {
			latest = record
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return latest, nil
}

func (s *Filesystem) ListVerificationsByUser(ctx context.Context, userID string) ([]*models.VerificationRecord, error) {
	s.mu.RLock()
	ids := append([]string(nil), s.userVerifications[userID]...)
	s.mu.RUnlock()

	records := make([]*models.VerificationRecord, 0, len(ids))
	for _, id := range ids {
		record, err := s.GetVerification(ctx, id)
		if err != nil {
			s.logger.Warn("indexed verification record missing on disk", "verification_id", id, "error", err)
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

func (s *Filesystem) ListSimilaritiesByUser(_ context.Context, userID string) ([]*models.SimilarityRecord, error) {
	s.mu.RLock()
	ids := append([]string(nil), s.userSimilarities[userID]...)
	s.mu.RUnlock()

	records := make([]*models.SimilarityRecord, 0, len(ids))
	for _, id := range ids {
		var record models.SimilarityRecord
		if err := s.readJSON(id+similaritySuffix, &record); err != nil {
			s.logger.Warn("indexed similarity record missing on disk", "check_id", id, "error", err)
			continue
		}
		records = append(records, &record)
	}
	return records, nil
}

func (s *Filesystem) readJSON(name string, v any) error {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// writeJSONExclusive writes the record atomically: the document is staged in a
// temp file and renamed into place, so a partially written record is never
// visible. An existing file means the ID is already taken.
func (s *Filesystem) writeJSONExclusive(name string, v any) error {
	target := filepath.Join(s.dir, name)
	if _, err := os.Stat(target); err == nil {
		return ErrDuplicateID
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat record: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, name+".tmp*")
	if err != nil {
		return fmt.Errorf("stage record: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("flush record: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("commit record: %w", err)
	}
	return nil
}
