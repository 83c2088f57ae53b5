package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "github.com/rahimunlu/humanID/pkg/domain-errors"
)

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, response any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		// best-effort fallback; don't override status for the caller
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}

// WriteError centralizes domain error translation to HTTP responses.
// Internal errors omit the description so infrastructure detail stays in logs.
func WriteError(w http.ResponseWriter, err error) {
	var domainErr *dErrors.Error
	if !errors.As(err, &domainErr) {
		WriteJSON(w, http.StatusInternalServerError, map[string]string{
			"error": string(dErrors.CodeInternal),
		})
		return
	}

	response := map[string]string{
		"error": string(domainErr.Code),
	}
	if domainErr.Message != "" && domainErr.Code != dErrors.CodeInternal {
		response["error_description"] = domainErr.Message
	}
	WriteJSON(w, ToHTTPStatus(domainErr.Code), response)
}

// ToHTTPStatus translates domain error codes to HTTP status codes.
func ToHTTPStatus(code dErrors.Code) int {
	switch code {
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeBadRequest, dErrors.CodeValidation, dErrors.CodeFileType:
		return http.StatusBadRequest
	case dErrors.CodeConflict:
		return http.StatusConflict
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeTooLarge:
		return http.StatusRequestEntityTooLarge
	case dErrors.CodeMatchFailed, dErrors.CodeMatchTimeout,
		dErrors.CodeEncryption, dErrors.CodeDecryption, dErrors.CodeStorage:
		return http.StatusInternalServerError
	case dErrors.CodeLedgerUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
