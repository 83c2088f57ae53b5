// Package service orchestrates the verification pipeline: enrollment,
// similarity re-verification, and the read models over both the local store
// and the ledger mirror.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rahimunlu/humanID/internal/audit"
	"github.com/rahimunlu/humanID/internal/biometrics/matcher"
	"github.com/rahimunlu/humanID/internal/biometrics/models"
	"github.com/rahimunlu/humanID/internal/biometrics/score"
	"github.com/rahimunlu/humanID/internal/biometrics/store"
	"github.com/rahimunlu/humanID/internal/ledger"
	"github.com/rahimunlu/humanID/internal/platform/metrics"
	"github.com/rahimunlu/humanID/internal/sentinel"
	dErrors "github.com/rahimunlu/humanID/pkg/domain-errors"
)

// allowedExtensions are the accepted profile artifact types.
var allowedExtensions = map[string]bool{
	".txt":  true,
	".csv":  true,
	".json": true,
}

// Vault seals and opens encrypted profile payloads.
type Vault interface {
	Seal(name string, plaintext []byte) (string, error)
	Open(ref string) ([]byte, error)
}

// Mirror is the ledger side-channel. All calls are best-effort from the
// service's point of view.
type Mirror interface {
	PublishVerification(ctx context.Context, record *models.VerificationRecord) (string, error)
	PublishSimilarity(ctx context.Context, record *models.SimilarityRecord) (string, error)
	FetchLatest(ctx context.Context, recordType string) (map[string]any, error)
	FetchAll(ctx context.Context, recordType string) ([]map[string]any, error)
}

// Service implements the verification and similarity workflows.
type Service struct {
	store   store.Store
	vault   Vault
	matcher matcher.Matcher
	scorer  *score.Calculator
	mirror  Mirror // nil when the ledger is not configured
	audit   audit.Publisher
	metrics *metrics.Metrics
	logger  *slog.Logger
	workDir string
}

// New wires the service. mirror may be nil; every ledger interaction then
// reports golemdb_notified false.
func New(s store.Store, v Vault, m matcher.Matcher, scorer *score.Calculator, mirror Mirror, auditor audit.Publisher, mx *metrics.Metrics, logger *slog.Logger, workDir string) *Service {
	if auditor == nil {
		auditor = audit.Noop{}
	}
	return &Service{
		store:   s,
		vault:   v,
		matcher: m,
		scorer:  scorer,
		mirror:  mirror,
		audit:   auditor,
		metrics: mx,
		logger:  logger,
		workDir: workDir,
	}
}

// EnrollInput carries a first-verification upload.
type EnrollInput struct {
	UserID                string
	ExternalKYCDocumentID string
	Filename              string
	Payload               []byte
}

// EnrollResult is the enrollment outcome. LedgerNotified reports whether the
// best-effort ledger publish succeeded; it never affects success itself.
type EnrollResult struct {
	Record         *models.VerificationRecord
	LedgerNotified bool
}

// Enroll runs the enrollment pipeline. Record creation is the last mutating
// step: any failure before it leaves no partial record behind.
func (s *Service) Enroll(ctx context.Context, in EnrollInput) (*EnrollResult, error) {
	start := time.Now()

	if in.UserID == "" || in.ExternalKYCDocumentID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "user_id and external_kyc_document_id are required")
	}
	if err := validateExtension(in.Filename); err != nil {
		return nil, err
	}

	fileHash := hashBytes(in.Payload)
	humanityScore := s.scorer.Humanity(in.Payload)
	verificationID := uuid.NewString()

	ref, err := s.vault.Seal(verificationID, in.Payload)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeEncryption, "failed to encrypt profile payload")
	}

	record := &models.VerificationRecord{
		VerificationID:        verificationID,
		UserID:                in.UserID,
		ExternalKYCDocumentID: in.ExternalKYCDocumentID,
		HumanityScore:         humanityScore,
		OriginalFilename:      filepath.Base(in.Filename),
		FileHash:              fileHash,
		FileSize:              int64(len(in.Payload)),
		EncryptedPayloadRef:   ref,
		CreatedAt:             time.Now().UTC(),
	}

	if err := s.store.PutVerification(ctx, record); err != nil {
		if removeErr := os.Remove(ref); removeErr != nil {
			s.logger.Warn("failed to remove orphaned ciphertext", "path", ref, "error", removeErr)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to persist verification record")
	}

	notified := s.publishVerification(ctx, record)

	s.audit.Publish(audit.Event{
		Type:     audit.EventEnrollmentCompleted,
		UserID:   record.UserID,
		RecordID: record.VerificationID,
		Details: map[string]string{
			"humanity_score":   fmt.Sprintf("%.3f", record.HumanityScore),
			"file_hash":        record.FileHash,
			"golemdb_notified": fmt.Sprintf("%t", notified),
		},
	})
	s.metrics.IncrementEnrollments()
	s.metrics.ObserveEnrollmentLatency(time.Since(start).Seconds())
	s.logger.Info("enrollment completed",
		"verification_id", record.VerificationID,
		"user_id", record.UserID,
		"humanity_score", record.HumanityScore,
		"golemdb_notified", notified,
	)

	return &EnrollResult{Record: record, LedgerNotified: notified}, nil
}

// CheckInput carries a re-verification upload.
type CheckInput struct {
	UserID   string
	Filename string
	Payload  []byte
}

// CheckResult is the similarity check outcome.
type CheckResult struct {
	Record         *models.SimilarityRecord
	LedgerNotified bool
}

// Check matches a new sample against the user's latest enrollment. A user
// with no prior enrollment is a hard precondition failure; matcher errors are
// terminal and create no record. All temporary artifacts are removed on every
// exit path.
func (s *Service) Check(ctx context.Context, in CheckInput) (*CheckResult, error) {
	start := time.Now()

	if in.UserID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "user_id is required")
	}
	if err := validateExtension(in.Filename); err != nil {
		return nil, err
	}

	enrollment, err := s.store.FindLatestEnrollment(ctx, in.UserID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "no enrollment found for user")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to look up enrollment")
	}

	storedPayload, err := s.vault.Open(enrollment.EncryptedPayloadRef)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeDecryption, "failed to decrypt stored profile")
	}

	storedPath, err := s.writeTemp("stored", storedPayload)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to stage stored profile")
	}
	defer s.removeTemp(storedPath)

	newPath, err := s.writeTemp("new", in.Payload)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to stage uploaded profile")
	}
	defer s.removeTemp(newPath)

	matchStart := time.Now()
	result, err := s.matcher.Compare(ctx, storedPath, newPath)
	s.metrics.ObserveMatcherLatency(time.Since(matchStart).Seconds())
	if err != nil {
		return nil, err
	}

	record := &models.SimilarityRecord{
		CheckID:              uuid.NewString(),
		UserID:               in.UserID,
		StoredVerificationID: enrollment.VerificationID,
		SimilarityResult:     result,
		ProbabilityScore:     result.ProbabilityScore(),
		NewFileHash:          hashBytes(in.Payload),
		StoredFileHash:       enrollment.FileHash,
		CreatedAt:            time.Now().UTC(),
	}

	if err := s.store.PutSimilarity(ctx, record); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to persist similarity record")
	}

	notified := s.publishSimilarity(ctx, record)

	s.audit.Publish(audit.Event{
		Type:     audit.EventSimilarityCheckCompleted,
		UserID:   record.UserID,
		RecordID: record.CheckID,
		Details: map[string]string{
			"similarity_result":      string(record.SimilarityResult),
			"stored_verification_id": record.StoredVerificationID,
			"golemdb_notified":       fmt.Sprintf("%t", notified),
		},
	})
	s.metrics.IncrementSimilarityChecks(string(record.SimilarityResult))
	s.metrics.ObserveSimilarityLatency(time.Since(start).Seconds())
	s.logger.Info("similarity check completed",
		"check_id", record.CheckID,
		"user_id", record.UserID,
		"similarity_result", record.SimilarityResult,
		"golemdb_notified", notified,
	)

	return &CheckResult{Record: record, LedgerNotified: notified}, nil
}

// StatusForUser joins each enrollment with the similarity check that
// referenced it, newest enrollment first.
func (s *Service) StatusForUser(ctx context.Context, userID string) ([]*models.VerificationStatus, error) {
	if userID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "user_id is required")
	}

	verifications, err := s.store.ListVerificationsByUser(ctx, userID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to list verification records")
	}
	similarities, err := s.store.ListSimilaritiesByUser(ctx, userID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to list similarity records")
	}

	byVerification := make(map[string]*models.SimilarityRecord, len(similarities))
	for _, check := range similarities {
		if _, taken := byVerification[check.StoredVerificationID]; !taken {
			byVerification[check.StoredVerificationID] = check
		}
	}

	statuses := make([]*models.VerificationStatus, 0, len(verifications))
	for _, v := range verifications {
		status := &models.VerificationStatus{
			VerificationID:        v.VerificationID,
			UserID:                v.UserID,
			ExternalKYCDocumentID: v.ExternalKYCDocumentID,
			HumanityScore:         v.HumanityScore,
			Timestamp:             v.CreatedAt,
		}
		if check, ok := byVerification[v.VerificationID]; ok {
			result := check.SimilarityResult
			probability := check.ProbabilityScore
			status.SimilarityResult = &result
			status.ProbabilityScore = &probability
		}
		statuses = append(statuses, status)
	}

	// Newest first, so callers can treat index 0 as the latest enrollment.
	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].Timestamp.After(statuses[j].Timestamp)
	})
	return statuses, nil
}

// MergedView is the local-plus-ledger read model for a user's latest
// verification.
type MergedView struct {
	Verification map[string]any             `json:"verification"`
	Source       string                     `json:"source"`
	Local        *models.VerificationStatus `json:"local_biometrics_data"`
}

// MergedStatus returns the user's latest verification merged with its ledger
// counterpart. Local fields win; a missing or unreachable ledger degrades to
// a local-only view, never an error.
func (s *Service) MergedStatus(ctx context.Context, userID string) (*MergedView, error) {
	var statuses []*models.VerificationStatus
	var ledgerEntity map[string]any

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		statuses, err = s.StatusForUser(gctx, userID)
		return err
	})
	g.Go(func() error {
		if s.mirror == nil {
			return nil
		}
		entity, err := s.mirror.FetchLatest(gctx, ledger.RecordTypeVerification)
		if err != nil {
			s.logger.Warn("ledger fetch failed during merge, falling back to local view",
				"user_id", userID, "error", err)
			return nil
		}
		ledgerEntity = entity
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(statuses) == 0 {
		return nil, dErrors.New(dErrors.CodeNotFound, "no verifications found for user")
	}

	latest := statuses[0]
	local, err := ledger.AsMap(latest)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode verification")
	}

	merged := ledger.Merge(local, ledgerEntity)
	view := &MergedView{
		Verification: merged,
		Source:       merged["source"].(string),
		Local:        latest,
	}
	return view, nil
}

// LatestLedgerVerification returns the newest ledger-side verification entity.
func (s *Service) LatestLedgerVerification(ctx context.Context) (map[string]any, error) {
	if s.mirror == nil {
		return nil, dErrors.New(dErrors.CodeLedgerUnavailable, "ledger is not configured")
	}
	entity, err := s.mirror.FetchLatest(ctx, ledger.RecordTypeVerification)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "no verification found in ledger")
		}
		return nil, err
	}
	return entity, nil
}

// AllLedgerVerifications returns every ledger-side verification entity,
// newest first.
func (s *Service) AllLedgerVerifications(ctx context.Context) ([]map[string]any, error) {
	if s.mirror == nil {
		return nil, dErrors.New(dErrors.CodeLedgerUnavailable, "ledger is not configured")
	}
	return s.mirror.FetchAll(ctx, ledger.RecordTypeVerification)
}

func (s *Service) publishVerification(ctx context.Context, record *models.VerificationRecord) bool {
	if s.mirror == nil {
		return false
	}
	if _, err := s.mirror.PublishVerification(ctx, record); err != nil {
		s.logger.Warn("ledger publish failed", "verification_id", record.VerificationID, "error", err)
		s.metrics.IncrementLedgerPublishFailed()
		return false
	}
	return true
}

func (s *Service) publishSimilarity(ctx context.Context, record *models.SimilarityRecord) bool {
	if s.mirror == nil {
		return false
	}
	if _, err := s.mirror.PublishSimilarity(ctx, record); err != nil {
		s.logger.Warn("ledger publish failed", "check_id", record.CheckID, "error", err)
		s.metrics.IncrementLedgerPublishFailed()
		return false
	}
	return true
}

func (s *Service) writeTemp(prefix string, payload []byte) (string, error) {
	f, err := os.CreateTemp(s.workDir, prefix+"_*.txt")
	if err != nil {
		return "", err
	}
	if _, err := f.Write(payload); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

func (s *Service) removeTemp(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("failed to remove temporary artifact", "path", path, "error", err)
	}
}

func validateExtension(filename string) error {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExtensions[ext] {
		return dErrors.New(dErrors.CodeFileType, "file type not allowed, expected txt, csv or json")
	}
	return nil
}

func hashBytes(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
