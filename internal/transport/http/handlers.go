// Package httptransport is the thin HTTP layer over the verification
// services. Handlers delegate to the service and translate domain errors to
// the JSON envelope; no business logic lives here.
package httptransport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rahimunlu/humanID/internal/biometrics/models"
	"github.com/rahimunlu/humanID/internal/biometrics/service"
	dErrors "github.com/rahimunlu/humanID/pkg/domain-errors"
	"github.com/rahimunlu/humanID/pkg/platform/httputil"
)

// BiometricsService is the service surface the transport depends on.
type BiometricsService interface {
	Enroll(ctx context.Context, in service.EnrollInput) (*service.EnrollResult, error)
	Check(ctx context.Context, in service.CheckInput) (*service.CheckResult, error)
	StatusForUser(ctx context.Context, userID string) ([]*models.VerificationStatus, error)
	MergedStatus(ctx context.Context, userID string) (*service.MergedView, error)
	LatestLedgerVerification(ctx context.Context) (map[string]any, error)
	AllLedgerVerifications(ctx context.Context) ([]map[string]any, error)
}

// Handler serves the verification endpoints.
type Handler struct {
	service        BiometricsService
	logger         *slog.Logger
	maxUploadBytes int64
}

// NewHandler builds the HTTP handler set.
func NewHandler(svc BiometricsService, logger *slog.Logger, maxUploadBytes int64) *Handler {
	return &Handler{
		service:        svc,
		logger:         logger,
		maxUploadBytes: maxUploadBytes,
	}
}

type enrollResponse struct {
	Success        bool           `json:"success"`
	VerificationID string         `json:"verification_id"`
	Message        string         `json:"message"`
	Metadata       enrollMetadata `json:"metadata"`
	GolemNotified  bool           `json:"golemdb_notified"`
}

type enrollMetadata struct {
	UserID                string    `json:"user_id"`
	ExternalKYCDocumentID string    `json:"external_kyc_document_id"`
	HumanityScore         float64   `json:"humanity_score"`
	FileHash              string    `json:"file_hash"`
	Timestamp             time.Time `json:"timestamp"`
}

func (h *Handler) handleEnroll(w http.ResponseWriter, r *http.Request) {
	payload, filename, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	result, err := h.service.Enroll(r.Context(), service.EnrollInput{
		UserID:                r.FormValue("user_id"),
		ExternalKYCDocumentID: r.FormValue("external_kyc_document_id"),
		Filename:              filename,
		Payload:               payload,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	record := result.Record
	httputil.WriteJSON(w, http.StatusOK, enrollResponse{
		Success:        true,
		VerificationID: record.VerificationID,
		Message:        "File uploaded, encrypted, and stored successfully",
		Metadata: enrollMetadata{
			UserID:                record.UserID,
			ExternalKYCDocumentID: record.ExternalKYCDocumentID,
			HumanityScore:         record.HumanityScore,
			FileHash:              record.FileHash,
			Timestamp:             record.CreatedAt,
		},
		GolemNotified: result.LedgerNotified,
	})
}

type checkResponse struct {
	Success          bool          `json:"success"`
	Message          string        `json:"message"`
	CheckID          string        `json:"check_id"`
	SimilarityResult string        `json:"similarity_result"`
	ProbabilityScore float64       `json:"probability_score"`
	Metadata         checkMetadata `json:"metadata"`
	GolemNotified    bool          `json:"golemdb_notified"`
}

type checkMetadata struct {
	UserID               string    `json:"user_id"`
	StoredVerificationID string    `json:"stored_verification_id"`
	NewFileHash          string    `json:"new_file_hash"`
	StoredFileHash       string    `json:"stored_file_hash"`
	Timestamp            time.Time `json:"timestamp"`
}

func (h *Handler) handleCheck(w http.ResponseWriter, r *http.Request) {
	payload, filename, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	result, err := h.service.Check(r.Context(), service.CheckInput{
		UserID:   r.FormValue("user_id"),
		Filename: filename,
		Payload:  payload,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	record := result.Record
	httputil.WriteJSON(w, http.StatusOK, checkResponse{
		Success:          true,
		Message:          "Similarity check completed successfully",
		CheckID:          record.CheckID,
		SimilarityResult: string(record.SimilarityResult),
		ProbabilityScore: record.ProbabilityScore,
		Metadata: checkMetadata{
			UserID:               record.UserID,
			StoredVerificationID: record.StoredVerificationID,
			NewFileHash:          record.NewFileHash,
			StoredFileHash:       record.StoredFileHash,
			Timestamp:            record.CreatedAt,
		},
		GolemNotified: result.LedgerNotified,
	})
}

type statusResponse struct {
	UserID        string                       `json:"user_id"`
	Verifications []*models.VerificationStatus `json:"verifications"`
	Count         int                          `json:"count"`
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")

	statuses, err := h.service.StatusForUser(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, statusResponse{
		UserID:        userID,
		Verifications: statuses,
		Count:         len(statuses),
	})
}

func (h *Handler) handleLatestVerification(w http.ResponseWriter, r *http.Request) {
	verification, err := h.service.LatestLedgerVerification(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"status":       "success",
		"verification": verification,
	})
}

func (h *Handler) handleAllVerifications(w http.ResponseWriter, r *http.Request) {
	verifications, err := h.service.AllLedgerVerifications(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if len(verifications) == 0 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "no verifications found in ledger"))
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"status":        "success",
		"verifications": verifications,
		"count":         len(verifications),
	})
}

func (h *Handler) handleMergedStatus(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")

	view, err := h.service.MergedStatus(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"status":                "success",
		"verification":          view.Verification,
		"source":                view.Source,
		"local_biometrics_data": view.Local,
	})
}

// readUpload extracts the multipart "file" part, enforcing the configured
// size bound. It writes the error response itself when the upload is bad.
func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeTooLarge, "uploaded file exceeds the size limit"))
			return nil, "", false
		}
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "multipart field 'file' is required"))
		return nil, "", false
	}
	defer file.Close()

	payload, err := io.ReadAll(file)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeTooLarge, "uploaded file exceeds the size limit"))
			return nil, "", false
		}
		h.logger.Error("failed to read upload", "error", err)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "failed to read upload"))
		return nil, "", false
	}

	return payload, header.Filename, true
}
