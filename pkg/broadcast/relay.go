package broadcast

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/go-resty/resty/v2"
	"github.com/relaymatch/matchcore/pkg/crypto"
)

func parseHash(s string) common.Hash {
	if s == "" {
		return common.Hash{}
	}
	return common.HexToHash(s)
}

// bundleRequest is the body posted to the relay's bundle-submission
// endpoint: a single signed transaction plus its target block.
type bundleRequest struct {
	Transactions []string `json:"txs"`
	TargetBlock  uint64   `json:"targetBlock"`
}

type bundleResponse struct {
	Included bool   `json:"included"`
	TxHash   string `json:"txHash"`
	Reason   string `json:"reason"`
}

// RelayBroadcaster submits a signed transaction as a single-tx bundle to a
// private relay (e.g. Flashbots) targeting one block. This is the
// Private Relay Bundle variant of spec.md §4.5 and the production
// behavior once a relay auth signer is configured (spec.md §9).
type RelayBroadcaster struct {
	http       *resty.Client
	authSigner *crypto.Signer
}

// NewRelayBroadcaster wires a RelayBroadcaster against the relay's base
// URL, authenticating each bundle submission with an X-Relay-Signature
// header carrying authSigner's address and its signature over the raw
// transaction bytes.
func NewRelayBroadcaster(baseURL string, authSigner *crypto.Signer) *RelayBroadcaster {
	http := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(5 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		SetHeader("Content-Type", "application/json")
	return &RelayBroadcaster{http: http, authSigner: authSigner}
}

// Broadcast posts tx as a bundle targeting target.Block. The relay
// simulates and either includes it or drops it silently; a drop is
// reported as StatusRejected, not an error, per spec.md §4.5.
func (b *RelayBroadcaster) Broadcast(ctx context.Context, tx *types.Transaction, target Target) (Result, error) {
	raw, err := tx.MarshalBinary()
	if err != nil {
		return Result{}, fmt.Errorf("encode transaction for bundle: %w", err)
	}

	body := bundleRequest{
		Transactions: []string{fmt.Sprintf("0x%x", raw)},
		TargetBlock:  target.Block,
	}
	sig, err := b.authSigner.SignMessage(raw)
	if err != nil {
		return Result{}, fmt.Errorf("sign bundle auth: %w", err)
	}

	var out bundleResponse
	resp, err := b.http.R().
		SetContext(ctx).
		SetHeader("X-Relay-Signature", fmt.Sprintf("%s:0x%x", b.authSigner.Address().Hex(), sig)).
		SetBody(body).
		SetResult(&out).
		Post("/bundle")
	if err != nil {
		return Result{}, fmt.Errorf("submit bundle: %w", err)
	}
	if resp.StatusCode() >= 500 {
		return Result{}, fmt.Errorf("submit bundle: status %d: %s", resp.StatusCode(), resp.String())
	}

	if !out.Included {
		return Result{Status: StatusRejected}, nil
	}
	return Result{Status: StatusSubmitted, TxHash: parseHash(out.TxHash)}, nil
}
