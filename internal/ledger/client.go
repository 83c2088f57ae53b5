// Package ledger mirrors verification records to Golem DB, an external
// append-only, annotation-indexed store. Replication is best-effort: the
// authoritative copy always lives in the local record store.
package ledger

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/rahimunlu/humanID/internal/sentinel"
	dErrors "github.com/rahimunlu/humanID/pkg/domain-errors"
)

// Annotation is a string-valued, ledger-side indexable label on an entity.
type Annotation struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Entity is a ledger record: an opaque payload plus its annotations and the
// key assigned by the ledger on creation.
type Entity struct {
	Key         string            `json:"entity_key"`
	Payload     []byte            `json:"-"`
	Annotations map[string]string `json:"annotations"`
}

// Client is the transport to the ledger. Implementations must be safe for
// concurrent use.
type Client interface {
	// CreateEntity appends a payload with its annotations and returns the
	// assigned entity key.
	CreateEntity(ctx context.Context, payload []byte, annotations []Annotation) (string, error)

	// OwnedEntities returns every entity written by this client's identity.
	OwnedEntities(ctx context.Context) ([]Entity, error)

	// Address is the writer identity recorded on published entities.
	Address() string
}

// entityTTL is the block-time-to-live requested for created entities.
const entityTTL = 1_000_000

// RPCClient talks JSON-RPC to a Golem DB endpoint. It is constructed
// explicitly and injected into the mirror; its lifetime is owned by the
// caller, not by lazy global state.
type RPCClient struct {
	url     string
	address string
	http    *http.Client
	logger  *slog.Logger
	nextID  atomic.Int64
}

// NewRPC builds a ledger client. The private key is required: publishing
// without a writer identity is a configuration error, surfaced here rather
// than on first use.
func NewRPC(url, privateKeyHex string, logger *slog.Logger) (*RPCClient, error) {
	if url == "" {
		return nil, dErrors.New(dErrors.CodeLedgerUnavailable, "ledger RPC URL is required")
	}
	key, err := hex.DecodeString(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil || len(key) == 0 {
		return nil, dErrors.New(dErrors.CodeLedgerUnavailable, "ledger private key must be non-empty hex")
	}

	// Writer address: last 20 bytes of the key digest, Ethereum-shaped.
	digest := sha256.Sum256(key)
	address := "0x" + hex.EncodeToString(digest[len(digest)-20:])

	return &RPCClient{
		url:     url,
		address: address,
		http:    &http.Client{},
		logger:  logger,
	}, nil
}

func (c *RPCClient) Address() string {
	return c.address
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (c *RPCClient) call(ctx context.Context, method string, params any, result any) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("encode rpc request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build rpc request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		// Wrap the sentinel so callers can detect unavailability without
		// depending on the transport error.
		return dErrors.Wrap(fmt.Errorf("%w: %v", sentinel.ErrUnavailable, err),
			dErrors.CodeLedgerUnavailable, "ledger rpc transport failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return dErrors.New(dErrors.CodeLedgerUnavailable, fmt.Sprintf("ledger rpc returned status %d", resp.StatusCode))
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return dErrors.Wrap(err, dErrors.CodeLedgerUnavailable, "decode ledger rpc response")
	}
	if rpcResp.Error != nil {
		return dErrors.New(dErrors.CodeLedgerUnavailable,
			fmt.Sprintf("ledger rpc error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message))
	}
	if result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return dErrors.Wrap(err, dErrors.CodeLedgerUnavailable, "decode ledger rpc result")
		}
	}
	return nil
}

type createEntityParams struct {
	Owner             string       `json:"owner"`
	Data              string       `json:"data"`
	BTL               int          `json:"btl"`
	StringAnnotations []Annotation `json:"stringAnnotations"`
}

type createEntityResult struct {
	EntityKey string `json:"entityKey"`
}

func (c *RPCClient) CreateEntity(ctx context.Context, payload []byte, annotations []Annotation) (string, error) {
	params := []createEntityParams{{
		Owner:             c.address,
		Data:              base64.StdEncoding.EncodeToString(payload),
		BTL:               entityTTL,
		StringAnnotations: annotations,
	}}

	var results []createEntityResult
	if err := c.call(ctx, "golembase_createEntities", params, &results); err != nil {
		return "", err
	}
	if len(results) == 0 || results[0].EntityKey == "" {
		return "", dErrors.New(dErrors.CodeLedgerUnavailable, "ledger returned no entity key")
	}
	return results[0].EntityKey, nil
}

type ownedEntity struct {
	EntityKey         string       `json:"entityKey"`
	Data              string       `json:"data"`
	StringAnnotations []Annotation `json:"stringAnnotations"`
}

func (c *RPCClient) OwnedEntities(ctx context.Context) ([]Entity, error) {
	var raw []ownedEntity
	if err := c.call(ctx, "golembase_getEntitiesOfOwner", []string{c.address}, &raw); err != nil {
		return nil, err
	}

	entities := make([]Entity, 0, len(raw))
	for _, e := range raw {
		payload, err := base64.StdEncoding.DecodeString(e.Data)
		if err != nil {
			c.logger.Warn("skipping entity with undecodable payload", "entity_key", e.EntityKey, "error", err)
			continue
		}
		annotations := make(map[string]string, len(e.StringAnnotations))
		for _, a := range e.StringAnnotations {
			annotations[a.Key] = a.Value
		}
		entities = append(entities, Entity{
			Key:         e.EntityKey,
			Payload:     payload,
			Annotations: annotations,
		})
	}
	return entities, nil
}
