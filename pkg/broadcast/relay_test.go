package broadcast

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/relaymatch/matchcore/pkg/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTx() *types.Transaction {
	return types.NewTx(&types.LegacyTx{Nonce: 1, Gas: 21000})
}

func TestRelayBroadcaster_IncludedReportsSubmitted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("X-Relay-Signature"))
		_ = json.NewEncoder(w).Encode(bundleResponse{Included: true, TxHash: "0xabc"})
	}))
	defer srv.Close()

	signer, err := crypto.GenerateKey()
	require.NoError(t, err)

	b := NewRelayBroadcaster(srv.URL, signer)
	result, err := b.Broadcast(context.Background(), testTx(), Target{Block: 100})
	require.NoError(t, err)
	assert.Equal(t, StatusSubmitted, result.Status)
}

func TestRelayBroadcaster_DroppedReportsRejectedNotError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(bundleResponse{Included: false})
	}))
	defer srv.Close()

	signer, err := crypto.GenerateKey()
	require.NoError(t, err)

	b := NewRelayBroadcaster(srv.URL, signer)
	result, err := b.Broadcast(context.Background(), testTx(), Target{Block: 100})
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, result.Status)
}
