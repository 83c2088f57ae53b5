// Package sdk lets third-party integrators request humanity verification
// against a HumanID network endpoint.
//
// Transactions are signed with ES256 over the request payload; the reported
// transaction hash is the SHA-256 digest of the compact JWS. This replaces
// the earlier hash-concatenation pseudo-signature while keeping the same
// sign(data) -> transaction_hash interface.
package sdk

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/asaskevich/govalidator"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Status is the lifecycle state of a verification request.
type Status string

const (
	StatusPending  Status = "pending"
	StatusVerified Status = "verified"
	StatusRejected Status = "rejected"
	StatusExpired  Status = "expired"
)

const (
	defaultEndpoint = "https://api.humanid.network"
	defaultTimeout  = 30 * time.Second
	userAgent       = "HumanitySDK/1.0.0"
)

// ValidationError reports invalid input; nothing was sent to the network.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// NetworkError reports a failed exchange with the network endpoint.
type NetworkError struct {
	Message string
	Err     error
}

func (e *NetworkError) Error() string { return e.Message }
func (e *NetworkError) Unwrap() error { return e.Err }

// Result is the outcome of a verification or confirmation request.
type Result struct {
	VerificationID  string   `json:"verification_id"`
	UserID          string   `json:"user_id"`
	Status          Status   `json:"status"`
	HumanityScore   *float64 `json:"humanity_score,omitempty"`
	TransactionHash string   `json:"transaction_hash,omitempty"`
	Timestamp       string   `json:"timestamp,omitempty"`
	ErrorMessage    string   `json:"error_message,omitempty"`
}

// Client talks to a HumanID network endpoint.
type Client struct {
	endpoint string
	http     *http.Client
}

// Option customizes a Client.
type Option func(*Client)

// WithTimeout overrides the default 30 second request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.http.Timeout = timeout
	}
}

// WithHTTPClient substitutes the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// New creates a Client. An empty endpoint falls back to the public network.
func New(endpoint string, opts ...Option) *Client {
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	c := &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		http:     &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// InitiateVerification starts the first humanity verification for a user.
// The organization's wallet key signs the request and covers transaction
// fees; only a masked form of it ever leaves the process.
func (c *Client) InitiateVerification(ctx context.Context, privateKey, userID, custodian, custodianEndpoint string) (*Result, error) {
	if err := validatePrivateKey(privateKey); err != nil {
		return nil, err
	}
	if err := validateUserID(userID); err != nil {
		return nil, err
	}
	if custodian == "" {
		return nil, &ValidationError{Message: "custodian must be a non-empty string"}
	}
	if err := validateEndpoint(custodianEndpoint); err != nil {
		return nil, err
	}

	verificationID := uuid.NewString()
	timestamp := time.Now().UTC().Format(time.RFC3339)

	payload := map[string]any{
		"verification_id":           verificationID,
		"user_id":                   userID,
		"custodian":                 custodian,
		"custodian_server_endpoint": custodianEndpoint,
		"timestamp":                 timestamp,
		"verification_type":         "first_humanity_verification",
		"organization_wallet":       maskKey(privateKey),
	}

	transactionHash, err := signTransaction(privateKey, payload)
	if err != nil {
		return nil, err
	}
	payload["transaction_hash"] = transactionHash

	response, err := c.post(ctx, "/api/v1/verification/initiate", payload)
	if err != nil {
		return nil, err
	}

	result := &Result{
		VerificationID:  verificationID,
		UserID:          userID,
		TransactionHash: transactionHash,
		Timestamp:       timestamp,
	}
	if success, _ := response["success"].(bool); success {
		result.Status = StatusPending
	} else {
		result.Status = StatusRejected
		result.ErrorMessage = errorMessage(response)
	}
	return result, nil
}

// ConfirmVerification confirms that a user completed verification through
// the network. On success the network reports the humanity score.
func (c *Client) ConfirmVerification(ctx context.Context, privateKey, userID, custodianEndpoint string) (*Result, error) {
	if err := validatePrivateKey(privateKey); err != nil {
		return nil, err
	}
	if err := validateUserID(userID); err != nil {
		return nil, err
	}
	if err := validateEndpoint(custodianEndpoint); err != nil {
		return nil, err
	}

	confirmationID := uuid.NewString()
	timestamp := time.Now().UTC().Format(time.RFC3339)

	payload := map[string]any{
		"confirmation_id":           confirmationID,
		"user_id":                   userID,
		"custodian_server_endpoint": custodianEndpoint,
		"timestamp":                 timestamp,
		"confirmation_type":         "humanity_confirmation",
		"organization_wallet":       maskKey(privateKey),
	}

	transactionHash, err := signTransaction(privateKey, payload)
	if err != nil {
		return nil, err
	}
	payload["transaction_hash"] = transactionHash

	response, err := c.post(ctx, "/api/v1/verification/confirm", payload)
	if err != nil {
		return nil, err
	}

	result := &Result{
		VerificationID:  confirmationID,
		UserID:          userID,
		TransactionHash: transactionHash,
		Timestamp:       timestamp,
	}
	if success, _ := response["success"].(bool); success {
		result.Status = StatusVerified
		if score, ok := response["humanity_score"].(float64); ok {
			result.HumanityScore = &score
		}
	} else {
		result.Status = StatusRejected
		result.ErrorMessage = errorMessage(response)
	}
	return result, nil
}

// VerificationStatus fetches the verification status view for a user.
func (c *Client) VerificationStatus(ctx context.Context, userID string) (map[string]any, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}
	return c.get(ctx, "/api/v1/verification/status/"+userID)
}

// Health reports whether the network is reachable. Unlike the other calls it
// never returns an error; an unreachable network yields an unhealthy status.
func (c *Client) Health(ctx context.Context) map[string]any {
	response, err := c.get(ctx, "/health")
	if err != nil {
		return map[string]any{
			"status":    "unhealthy",
			"error":     err.Error(),
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		}
	}
	return response
}

func (c *Client) post(ctx context.Context, path string, payload map[string]any) (map[string]any, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &NetworkError{Message: "failed to encode request", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, strings.NewReader(string(body)))
	if err != nil {
		return nil, &NetworkError{Message: "failed to build request", Err: err}
	}
	return c.do(req)
}

func (c *Client) get(ctx context.Context, path string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+path, nil)
	if err != nil {
		return nil, &NetworkError{Message: "failed to build request", Err: err}
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) (map[string]any, error) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &NetworkError{Message: "request timed out", Err: err}
		}
		return nil, &NetworkError{Message: "failed to connect to the network", Err: err}
	}
	defer resp.Body.Close()

	var response map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, &NetworkError{Message: "failed to decode network response", Err: err}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &NetworkError{Message: fmt.Sprintf("HTTP error %d: %s", resp.StatusCode, errorMessage(response))}
	}
	return response, nil
}

func errorMessage(response map[string]any) string {
	if msg, ok := response["error"].(string); ok && msg != "" {
		return msg
	}
	return "unknown error occurred"
}

func validatePrivateKey(privateKey string) error {
	if len(privateKey) != 64 {
		return &ValidationError{Message: "private key must be 64 characters (32 bytes)"}
	}
	if !govalidator.IsHexadecimal(privateKey) {
		return &ValidationError{Message: "private key must be a valid hexadecimal string"}
	}
	return nil
}

func validateUserID(userID string) error {
	if userID == "" {
		return &ValidationError{Message: "user ID must be a non-empty string"}
	}
	if !govalidator.IsByteLength(userID, 3, 100) {
		return &ValidationError{Message: "user ID must be between 3 and 100 characters"}
	}
	return nil
}

func validateEndpoint(endpoint string) error {
	if endpoint == "" {
		return &ValidationError{Message: "custodian server endpoint must be a non-empty string"}
	}
	if !govalidator.IsRequestURL(endpoint) {
		return &ValidationError{Message: "custodian server endpoint must be a valid URL"}
	}
	return nil
}

// maskKey keeps only the first and last eight characters of the wallet key.
func maskKey(privateKey string) string {
	return privateKey[:8] + "..." + privateKey[len(privateKey)-8:]
}

// signTransaction signs the payload as an ES256 JWS and returns the SHA-256
// digest of the compact serialization as the transaction hash.
func signTransaction(privateKeyHex string, payload map[string]any) (string, error) {
	key, err := parseP256Key(privateKeyHex)
	if err != nil {
		return "", err
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims(payload))
	signed, err := token.SignedString(key)
	if err != nil {
		return "", &ValidationError{Message: "failed to sign transaction: " + err.Error()}
	}

	digest := sha256.Sum256([]byte(signed))
	return hex.EncodeToString(digest[:]), nil
}

func parseP256Key(privateKeyHex string) (*ecdsa.PrivateKey, error) {
	raw, err := hex.DecodeString(privateKeyHex)
	if err != nil {
		return nil, &ValidationError{Message: "private key must be a valid hexadecimal string"}
	}

	curve := elliptic.P256()
	d := new(big.Int).SetBytes(raw)
	if d.Sign() == 0 || d.Cmp(curve.Params().N) >= 0 {
		return nil, &ValidationError{Message: "private key is out of range for the signing curve"}
	}

	key := &ecdsa.PrivateKey{D: d}
	key.Curve = curve
	key.X, key.Y = curve.ScalarBaseMult(d.Bytes())
	return key, nil
}
