package models

import "time"

// SimilarityResult classifies the relationship between two STR profiles.
type SimilarityResult string

const (
	SamePerson      SimilarityResult = "SAME_PERSON"
	RelatedPerson   SimilarityResult = "RELATED_PERSON"
	UnrelatedPerson SimilarityResult = "UNRELATED_PERSON"
)

// ProbabilityScore returns the fixed confidence value for a classified result.
// The mapping is part of the protocol and must not drift.
func (r SimilarityResult) ProbabilityScore() float64 {
	switch r {
	case SamePerson:
		return 0.99
	case RelatedPerson:
		return 0.75
	default:
		return 0.25
	}
}

// Valid reports whether r is one of the three protocol values.
func (r SimilarityResult) Valid() bool {
	switch r {
	case SamePerson, RelatedPerson, UnrelatedPerson:
		return true
	}
	return false
}

// VerificationRecord is the authoritative enrollment record. It is created
// exactly once and never mutated or deleted afterwards.
type VerificationRecord struct {
	VerificationID        string    `json:"verification_id"`
	UserID                string    `json:"user_id"`
	ExternalKYCDocumentID string    `json:"external_kyc_document_id"`
	HumanityScore         float64   `json:"humanity_score"`
	OriginalFilename      string    `json:"original_filename,omitempty"`
	FileHash              string    `json:"file_hash"`
	FileSize              int64     `json:"file_size,omitempty"`
	EncryptedPayloadRef   string    `json:"encrypted_path"`
	CreatedAt             time.Time `json:"timestamp"`
}

// SimilarityRecord captures the outcome of matching a new sample against a
// stored enrollment. Created only after a terminal matcher outcome.
type SimilarityRecord struct {
	CheckID              string           `json:"check_id"`
	UserID               string           `json:"user_id"`
	StoredVerificationID string           `json:"stored_verification_id"`
	SimilarityResult     SimilarityResult `json:"similarity_result"`
	ProbabilityScore     float64          `json:"probability_score"`
	NewFileHash          string           `json:"new_file_hash"`
	StoredFileHash       string           `json:"stored_file_hash"`
	CreatedAt            time.Time        `json:"timestamp"`
}

// VerificationStatus is a read-model row: an enrollment joined with the
// similarity check (if any) that referenced it.
type VerificationStatus struct {
	VerificationID        string            `json:"verification_id"`
	UserID                string            `json:"user_id"`
	ExternalKYCDocumentID string            `json:"external_kyc_document_id"`
	HumanityScore         float64           `json:"humanity_score"`
	Timestamp             time.Time         `json:"timestamp"`
	SimilarityResult      *SimilarityResult `json:"similarity_result,omitempty"`
	ProbabilityScore      *float64          `json:"probability_score,omitempty"`
}
