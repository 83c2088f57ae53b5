package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/rahimunlu/humanID/internal/biometrics/models"
	"github.com/rahimunlu/humanID/internal/ledger/cache"
	"github.com/rahimunlu/humanID/internal/sentinel"
)

// Record types used as the recordType annotation on published entities.
const (
	RecordTypeVerification = "humanity_verification"
	RecordTypeSimilarity   = "similarity_check"

	schemaVerification = "humanity_verification_v1"
	schemaSimilarity   = "similarity_check_v1"

	verificationType = "first_humanity_verification"
)

// Mirror replicates records to the ledger and serves reconciliation reads.
// Publishing is bounded by publishTimeout; callers downgrade failures to a
// boolean flag, so no error from here may block or fail a primary operation.
type Mirror struct {
	client         Client
	cache          cache.Cache
	appTag         string
	publishTimeout time.Duration
	fetchTimeout   time.Duration
	logger         *slog.Logger
}

// NewMirror builds a mirror over the given client. cache may be nil, in
// which case every read goes to the ledger.
func NewMirror(client Client, c cache.Cache, appTag string, publishTimeout, fetchTimeout time.Duration, logger *slog.Logger) *Mirror {
	if publishTimeout <= 0 {
		publishTimeout = 30 * time.Second
	}
	if fetchTimeout <= 0 {
		fetchTimeout = 30 * time.Second
	}
	return &Mirror{
		client:         client,
		cache:          c,
		appTag:         appTag,
		publishTimeout: publishTimeout,
		fetchTimeout:   fetchTimeout,
		logger:         logger,
	}
}

// PublishVerification appends an enrollment record to the ledger and returns
// the assigned entity key.
func (m *Mirror) PublishVerification(ctx context.Context, record *models.VerificationRecord) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, m.publishTimeout)
	defer cancel()

	timestamp := record.CreatedAt.UTC().Format(time.RFC3339)
	payload, err := json.Marshal(map[string]any{
		"schema":                   schemaVerification,
		"verification_id":          record.VerificationID,
		"user_id":                  record.UserID,
		"external_kyc_document_id": record.ExternalKYCDocumentID,
		"humanity_score":           record.HumanityScore,
		"file_hash":                record.FileHash,
		"timestamp":                timestamp,
		"verification_type":        verificationType,
		"written_by":               m.client.Address(),
		"app":                      m.appTag,
		"record_type":              RecordTypeVerification,
	})
	if err != nil {
		return "", fmt.Errorf("encode verification entity: %w", err)
	}

	annotations := []Annotation{
		{Key: "app", Value: m.appTag},
		{Key: "recordType", Value: RecordTypeVerification},
		{Key: "schema", Value: schemaVerification},
		{Key: "user_id", Value: record.UserID},
		{Key: "verification_id", Value: record.VerificationID},
		{Key: "external_kyc_document_id", Value: record.ExternalKYCDocumentID},
		{Key: "verification_type", Value: verificationType},
		{Key: "timestamp", Value: timestamp},
		{Key: "humanity_score", Value: strconv.FormatFloat(record.HumanityScore, 'f', -1, 64)},
		{Key: "file_hash", Value: record.FileHash},
	}

	key, err := m.client.CreateEntity(ctx, payload, annotations)
	if err != nil {
		return "", err
	}
	m.logger.Info("verification mirrored to ledger", "verification_id", record.VerificationID, "entity_key", key)
	return key, nil
}

// PublishSimilarity appends a similarity check record to the ledger.
func (m *Mirror) PublishSimilarity(ctx context.Context, record *models.SimilarityRecord) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, m.publishTimeout)
	defer cancel()

	timestamp := record.CreatedAt.UTC().Format(time.RFC3339)
	payload, err := json.Marshal(map[string]any{
		"schema":                 schemaSimilarity,
		"check_id":               record.CheckID,
		"user_id":                record.UserID,
		"stored_verification_id": record.StoredVerificationID,
		"similarity_result":      string(record.SimilarityResult),
		"probability_score":      record.ProbabilityScore,
		"timestamp":              timestamp,
		"check_type":             RecordTypeSimilarity,
		"written_by":             m.client.Address(),
		"app":                    m.appTag,
		"record_type":            RecordTypeSimilarity,
	})
	if err != nil {
		return "", fmt.Errorf("encode similarity entity: %w", err)
	}

	annotations := []Annotation{
		{Key: "app", Value: m.appTag},
		{Key: "recordType", Value: RecordTypeSimilarity},
		{Key: "schema", Value: schemaSimilarity},
		{Key: "user_id", Value: record.UserID},
		{Key: "check_id", Value: record.CheckID},
		{Key: "stored_verification_id", Value: record.StoredVerificationID},
		{Key: "check_type", Value: RecordTypeSimilarity},
		{Key: "timestamp", Value: timestamp},
		{Key: "similarity_result", Value: string(record.SimilarityResult)},
		{Key: "probability_score", Value: strconv.FormatFloat(record.ProbabilityScore, 'f', -1, 64)},
	}

	key, err := m.client.CreateEntity(ctx, payload, annotations)
	if err != nil {
		return "", err
	}
	m.logger.Info("similarity check mirrored to ledger", "check_id", record.CheckID, "entity_key", key)
	return key, nil
}

// FetchLatest returns the newest ledger entity of the given record type,
// decoded to a map with the entity key added. Returns sentinel.ErrNotFound
// when the ledger holds no matching entities.
func (m *Mirror) FetchLatest(ctx context.Context, recordType string) (map[string]any, error) {
	all, err := m.FetchAll(ctx, recordType)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return all[0], nil
}

// FetchAll returns every ledger entity of the given record type written by
// this service, decoded and sorted by timestamp descending. Entities with
// unparsable timestamps are skipped, not fatal.
func (m *Mirror) FetchAll(ctx context.Context, recordType string) ([]map[string]any, error) {
	if snapshot, ok := m.cachedSnapshot(ctx, recordType); ok {
		return snapshot, nil
	}

	ctx, cancel := context.WithTimeout(ctx, m.fetchTimeout)
	defer cancel()

	entities, err := m.client.OwnedEntities(ctx)
	if err != nil {
		return nil, err
	}

	type dated struct {
		payload map[string]any
		at      time.Time
	}
	var matches []dated
	for _, entity := range entities {
		if entity.Annotations["recordType"] != recordType {
			continue
		}
		at, err := time.Parse(time.RFC3339, entity.Annotations["timestamp"])
		if err != nil {
			m.logger.Warn("skipping ledger entity with unparsable timestamp",
				"entity_key", entity.Key, "timestamp", entity.Annotations["timestamp"])
			continue
		}
		var payload map[string]any
		if err := json.Unmarshal(entity.Payload, &payload); err != nil {
			m.logger.Warn("skipping ledger entity with undecodable payload", "entity_key", entity.Key, "error", err)
			continue
		}
		payload["entity_key"] = entity.Key
		matches = append(matches, dated{payload: payload, at: at})
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].at.After(matches[j].at) })

	results := make([]map[string]any, 0, len(matches))
	for _, match := range matches {
		results = append(results, match.payload)
	}
	m.storeSnapshot(ctx, recordType, results)
	return results, nil
}

func (m *Mirror) cachedSnapshot(ctx context.Context, recordType string) ([]map[string]any, bool) {
	if m.cache == nil {
		return nil, false
	}
	raw, err := m.cache.Get(ctx, recordType)
	if err != nil {
		return nil, false
	}
	var snapshot []map[string]any
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return nil, false
	}
	return snapshot, true
}

func (m *Mirror) storeSnapshot(ctx context.Context, recordType string, snapshot []map[string]any) {
	if m.cache == nil {
		return
	}
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return
	}
	if err := m.cache.Set(ctx, recordType, raw); err != nil {
		m.logger.Warn("failed to cache ledger snapshot", "record_type", recordType, "error", err)
	}
}

// Merge combines a local record with its ledger counterpart. Local fields
// take precedence on overlapping keys; ledger-only fields (entity key,
// writer address) are carried over. A nil ledger entity yields the local
// view tagged source "local".
func Merge(local, ledgerEntity map[string]any) map[string]any {
	merged := make(map[string]any, len(local)+len(ledgerEntity)+1)
	if ledgerEntity == nil {
		for k, v := range local {
			merged[k] = v
		}
		merged["source"] = "local"
		return merged
	}
	for k, v := range ledgerEntity {
		merged[k] = v
	}
	for k, v := range local {
		merged[k] = v
	}
	merged["source"] = "golem_db"
	return merged
}

// AsMap converts a typed record to its JSON object form for merging.
func AsMap(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
