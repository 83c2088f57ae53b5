package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rahimunlu/humanID/internal/biometrics/models"
	"github.com/rahimunlu/humanID/internal/ledger/cache"
	"github.com/rahimunlu/humanID/internal/sentinel"
)

type fakeClient struct {
	entities    []Entity
	created     [][]Annotation
	createErr   error
	ownedErr    error
	ownedCalls  int
	createCalls int
}

func (f *fakeClient) CreateEntity(_ context.Context, payload []byte, annotations []Annotation) (string, error) {
	f.createCalls++
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created = append(f.created, annotations)
	return "0xentity", nil
}

func (f *fakeClient) OwnedEntities(_ context.Context) ([]Entity, error) {
	f.ownedCalls++
	if f.ownedErr != nil {
		return nil, f.ownedErr
	}
	return f.entities, nil
}

func (f *fakeClient) Address() string { return "0xwriter" }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestMirror(client Client, c cache.Cache) *Mirror {
	return NewMirror(client, c, "HumanID-Biometrics", time.Second, time.Second, testLogger())
}

func verificationEntity(key, verificationID string, at time.Time) Entity {
	timestamp := at.UTC().Format(time.RFC3339)
	payload, _ := json.Marshal(map[string]any{
		"schema":          schemaVerification,
		"verification_id": verificationID,
		"written_by":      "0xwriter",
	})
	return Entity{
		Key:     key,
		Payload: payload,
		Annotations: map[string]string{
			"recordType": RecordTypeVerification,
			"timestamp":  timestamp,
		},
	}
}

func TestPublishVerification_AnnotatesRecord(t *testing.T) {
	client := &fakeClient{}
	m := newTestMirror(client, nil)

	record := &models.VerificationRecord{
		VerificationID:        "ver-1",
		UserID:                "user-1",
		ExternalKYCDocumentID: "doc-1",
		HumanityScore:         0.91,
		FileHash:              "abc123",
		CreatedAt:             time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC),
	}

	key, err := m.PublishVerification(context.Background(), record)
	require.NoError(t, err)
	assert.Equal(t, "0xentity", key)

	require.Len(t, client.created, 1)
	annotations := map[string]string{}
	for _, a := range client.created[0] {
		annotations[a.Key] = a.Value
	}
	assert.Equal(t, RecordTypeVerification, annotations["recordType"])
	assert.Equal(t, schemaVerification, annotations["schema"])
	assert.Equal(t, "user-1", annotations["user_id"])
	assert.Equal(t, "ver-1", annotations["verification_id"])
	assert.Equal(t, "2026-05-01T10:00:00Z", annotations["timestamp"])
	assert.Equal(t, "0.91", annotations["humanity_score"])
}

func TestPublishSimilarity_AnnotatesRecord(t *testing.T) {
	client := &fakeClient{}
	m := newTestMirror(client, nil)

	record := &models.SimilarityRecord{
		CheckID:              "chk-1",
		UserID:               "user-1",
		StoredVerificationID: "ver-1",
		SimilarityResult:     models.SamePerson,
		ProbabilityScore:     0.99,
		CreatedAt:            time.Now(),
	}

	_, err := m.PublishSimilarity(context.Background(), record)
	require.NoError(t, err)

	require.Len(t, client.created, 1)
	annotations := map[string]string{}
	for _, a := range client.created[0] {
		annotations[a.Key] = a.Value
	}
	assert.Equal(t, RecordTypeSimilarity, annotations["recordType"])
	assert.Equal(t, "SAME_PERSON", annotations["similarity_result"])
	assert.Equal(t, "0.99", annotations["probability_score"])
}

func TestPublish_PropagatesClientFailure(t *testing.T) {
	client := &fakeClient{createErr: errors.New("rpc down")}
	m := newTestMirror(client, nil)

	_, err := m.PublishVerification(context.Background(), &models.VerificationRecord{CreatedAt: time.Now()})
	assert.Error(t, err)
}

func TestFetchLatest_PicksNewestTimestamp(t *testing.T) {
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	client := &fakeClient{entities: []Entity{
		verificationEntity("0xold", "ver-old", base),
		verificationEntity("0xnew", "ver-new", base.Add(time.Hour)),
	}}
	m := newTestMirror(client, nil)

	got, err := m.FetchLatest(context.Background(), RecordTypeVerification)
	require.NoError(t, err)
	assert.Equal(t, "ver-new", got["verification_id"])
	assert.Equal(t, "0xnew", got["entity_key"])
}

func TestFetchLatest_Empty(t *testing.T) {
	m := newTestMirror(&fakeClient{}, nil)

	_, err := m.FetchLatest(context.Background(), RecordTypeVerification)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestFetchAll_SkipsUnparsableTimestampsAndOtherTypes(t *testing.T) {
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	broken := verificationEntity("0xbroken", "ver-broken", base)
	broken.Annotations["timestamp"] = "yesterday-ish"
	other := verificationEntity("0xother", "chk-1", base)
	other.Annotations["recordType"] = RecordTypeSimilarity

	client := &fakeClient{entities: []Entity{
		verificationEntity("0xa", "ver-a", base.Add(time.Minute)),
		broken,
		other,
		verificationEntity("0xb", "ver-b", base.Add(2*time.Minute)),
	}}
	m := newTestMirror(client, nil)

	all, err := m.FetchAll(context.Background(), RecordTypeVerification)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "ver-b", all[0]["verification_id"])
	assert.Equal(t, "ver-a", all[1]["verification_id"])
}

func TestFetchAll_UsesCache(t *testing.T) {
	client := &fakeClient{entities: []Entity{
		verificationEntity("0xa", "ver-a", time.Now()),
	}}
	m := newTestMirror(client, cache.NewInMemory(time.Minute))
	ctx := context.Background()

	first, err := m.FetchAll(ctx, RecordTypeVerification)
	require.NoError(t, err)
	second, err := m.FetchAll(ctx, RecordTypeVerification)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, client.ownedCalls)
}

func TestMerge_LocalFieldsWin(t *testing.T) {
	local := map[string]any{"verification_id": "ver-1", "humanity_score": 0.91}
	ledgerEntity := map[string]any{
		"verification_id": "ver-1",
		"humanity_score":  0.5,
		"entity_key":      "0xentity",
		"written_by":      "0xwriter",
	}

	merged := Merge(local, ledgerEntity)
	assert.Equal(t, 0.91, merged["humanity_score"])
	assert.Equal(t, "0xentity", merged["entity_key"])
	assert.Equal(t, "0xwriter", merged["written_by"])
	assert.Equal(t, "golem_db", merged["source"])
}

func TestMerge_LedgerAbsentFallsBackToLocal(t *testing.T) {
	local := map[string]any{"verification_id": "ver-1"}

	merged := Merge(local, nil)
	assert.Equal(t, "ver-1", merged["verification_id"])
	assert.Equal(t, "local", merged["source"])
}
