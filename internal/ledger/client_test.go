package ledger

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rahimunlu/humanID/internal/sentinel"
	dErrors "github.com/rahimunlu/humanID/pkg/domain-errors"
)

const testKey = "4bbbf85ce3377467afe5d46f804f221813b2bb87f24d81f60f1fcdbf7cbf4356"

func TestNewRPC_RequiresKeyAndURL(t *testing.T) {
	_, err := NewRPC("", testKey, testLogger())
	assert.Error(t, err)

	_, err = NewRPC("http://ledger.example", "", testLogger())
	assert.Error(t, err)

	_, err = NewRPC("http://ledger.example", "not-hex", testLogger())
	assert.Error(t, err)
}

func TestNewRPC_DerivesStableAddress(t *testing.T) {
	c1, err := NewRPC("http://ledger.example", testKey, testLogger())
	require.NoError(t, err)
	c2, err := NewRPC("http://ledger.example", "0x"+testKey, testLogger())
	require.NoError(t, err)

	assert.Equal(t, c1.Address(), c2.Address())
	assert.Len(t, c1.Address(), 42)
	assert.Equal(t, "0x", c1.Address()[:2])
}

func TestCreateEntity(t *testing.T) {
	var gotMethod string
	var gotParams []createEntityParams
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string              `json:"method"`
			Params []createEntityParams `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotMethod = req.Method
		gotParams = req.Params
		_ = json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      1,
			"result":  []map[string]string{{"entityKey": "0xabc"}},
		})
	}))
	defer server.Close()

	c, err := NewRPC(server.URL, testKey, testLogger())
	require.NoError(t, err)

	key, err := c.CreateEntity(context.Background(), []byte(`{"schema":"s"}`), []Annotation{{Key: "app", Value: "t"}})
	require.NoError(t, err)
	assert.Equal(t, "0xabc", key)
	assert.Equal(t, "golembase_createEntities", gotMethod)
	require.Len(t, gotParams, 1)
	assert.Equal(t, c.Address(), gotParams[0].Owner)

	payload, err := base64.StdEncoding.DecodeString(gotParams[0].Data)
	require.NoError(t, err)
	assert.JSONEq(t, `{"schema":"s"}`, string(payload))
}

func TestCreateEntity_RPCError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      1,
			"error":   map[string]any{"code": -32000, "message": "out of gas"},
		})
	}))
	defer server.Close()

	c, err := NewRPC(server.URL, testKey, testLogger())
	require.NoError(t, err)

	_, err = c.CreateEntity(context.Background(), []byte("{}"), nil)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeLedgerUnavailable))
}

func TestCreateEntity_TransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close() // connection refused from here on

	c, err := NewRPC(server.URL, testKey, testLogger())
	require.NoError(t, err)

	_, err = c.CreateEntity(context.Background(), []byte("{}"), nil)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeLedgerUnavailable))
	assert.ErrorIs(t, err, sentinel.ErrUnavailable)
}

func TestOwnedEntities_DecodesAndSkipsBadPayloads(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      1,
			"result": []map[string]any{
				{
					"entityKey": "0xgood",
					"data":      base64.StdEncoding.EncodeToString([]byte(`{"verification_id":"ver-1"}`)),
					"stringAnnotations": []map[string]string{
						{"key": "recordType", "value": "humanity_verification"},
					},
				},
				{
					"entityKey": "0xbad",
					"data":      "!!! not base64 !!!",
				},
			},
		})
	}))
	defer server.Close()

	c, err := NewRPC(server.URL, testKey, testLogger())
	require.NoError(t, err)

	entities, err := c.OwnedEntities(context.Background())
	require.NoError(t, err)
	require.Len(t, entities, 1)
	assert.Equal(t, "0xgood", entities[0].Key)
	assert.Equal(t, "humanity_verification", entities[0].Annotations["recordType"])
	assert.JSONEq(t, `{"verification_id":"ver-1"}`, string(entities[0].Payload))
}
