// Package order defines the normalized representation of a signed
// marketplace order and the derived attributes the rest of the relayer
// indexes and matches on.
package order

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Side is which side of the trade an order represents.
type Side uint8

const (
	Sell Side = iota
	Buy
)

func (s Side) String() string {
	if s == Buy {
		return "buy"
	}
	return "sell"
}

// Scope is the asset scope an order covers.
type Scope uint8

const (
	SingleToken Scope = iota
	CollectionWide
)

func (s Scope) String() string {
	if s == CollectionWide {
		return "collection-wide"
	}
	return "single-token"
}

// Status is the lifecycle state of an order. Terminal states are sticky:
// once Filled, Cancelled or Expired, an order never transitions again.
type Status uint8

const (
	Active Status = iota
	Filled
	Cancelled
	Expired
)

func (s Status) String() string {
	switch s {
	case Active:
		return "active"
	case Filled:
		return "filled"
	case Cancelled:
		return "cancelled"
	case Expired:
		return "expired"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status accepts no further transitions.
func (s Status) Terminal() bool {
	return s != Active
}

// CanTransitionTo reports whether moving from s to next is legal.
// active -> {filled, cancelled, expired}; every other state is sticky.
func (s Status) CanTransitionTo(next Status) bool {
	if s == Active {
		return next == Filled || next == Cancelled || next == Expired
	}
	return false
}

// Order is the normalized, post-ingestion representation of a signed
// marketplace order. Signature verification against the signer's wallet
// is assumed to have already happened upstream.
type Order struct {
	ID            common.Hash    `json:"id"`
	ChainID       uint64         `json:"chainId"`
	Side          Side           `json:"side"`
	Scope         Scope          `json:"scope"`
	Collection    common.Address `json:"collection"`
	TokenID       *big.Int       `json:"tokenId,omitempty"` // nil when Scope == CollectionWide
	Complication  common.Address `json:"complication"`
	Currency      common.Address `json:"currency"` // zero address = native
	StartPriceEth *big.Float     `json:"startPriceEth"`
	StartTime     int64          `json:"startTime"`
	EndTime       int64          `json:"endTime"`
	Signer        common.Address `json:"signer"`
	RawPayload    []byte         `json:"rawPayload"`

	Marketplace string `json:"marketplace"`
	Kind        string `json:"kind"`

	// AllowList optionally restricts a collection-wide buy to a specific
	// set of token ids it is willing to fill against. Nil/empty means the
	// bid is open to every token in the collection.
	AllowList []*big.Int `json:"allowList,omitempty"`

	// SignerOrderNonce is the per-signer nonce embedded in the order's
	// signed payload, independent of the Execution Engine's transaction
	// nonce. The Execution Engine compares it against the exchange
	// contract's userMinOrderNonce watermark before submission.
	SignerOrderNonce *big.Int `json:"signerOrderNonce,omitempty"`

	Status Status `json:"status"`
}

// orderJSON mirrors Order but swaps StartPriceEth for a decimal string,
// since *big.Float has no native JSON encoding.
type orderJSON struct {
	ID               common.Hash    `json:"id"`
	ChainID          uint64         `json:"chainId"`
	Side             Side           `json:"side"`
	Scope            Scope          `json:"scope"`
	Collection       common.Address `json:"collection"`
	TokenID          *big.Int       `json:"tokenId,omitempty"`
	Complication     common.Address `json:"complication"`
	Currency         common.Address `json:"currency"`
	StartPriceEth    string         `json:"startPriceEth"`
	StartTime        int64          `json:"startTime"`
	EndTime          int64          `json:"endTime"`
	Signer           common.Address `json:"signer"`
	RawPayload       []byte         `json:"rawPayload"`
	Marketplace      string         `json:"marketplace"`
	Kind             string         `json:"kind"`
	AllowList        []*big.Int     `json:"allowList,omitempty"`
	SignerOrderNonce *big.Int       `json:"signerOrderNonce,omitempty"`
	Status           Status         `json:"status"`
}

func (o *Order) MarshalJSON() ([]byte, error) {
	aux := orderJSON{
		ID: o.ID, ChainID: o.ChainID, Side: o.Side, Scope: o.Scope,
		Collection: o.Collection, TokenID: o.TokenID, Complication: o.Complication,
		Currency: o.Currency, StartTime: o.StartTime, EndTime: o.EndTime,
		Signer: o.Signer, RawPayload: o.RawPayload, Marketplace: o.Marketplace,
		Kind: o.Kind, AllowList: o.AllowList, SignerOrderNonce: o.SignerOrderNonce,
		Status: o.Status,
	}
	if o.StartPriceEth != nil {
		aux.StartPriceEth = o.StartPriceEth.Text('f', 18)
	}
	return json.Marshal(aux)
}

func (o *Order) UnmarshalJSON(data []byte) error {
	var aux orderJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*o = Order{
		ID: aux.ID, ChainID: aux.ChainID, Side: aux.Side, Scope: aux.Scope,
		Collection: aux.Collection, TokenID: aux.TokenID, Complication: aux.Complication,
		Currency: aux.Currency, StartTime: aux.StartTime, EndTime: aux.EndTime,
		Signer: aux.Signer, RawPayload: aux.RawPayload, Marketplace: aux.Marketplace,
		Kind: aux.Kind, AllowList: aux.AllowList, SignerOrderNonce: aux.SignerOrderNonce,
		Status: aux.Status,
	}
	if aux.StartPriceEth != "" {
		f, _, err := big.ParseFloat(aux.StartPriceEth, 10, 200, big.ToNearestEven)
		if err != nil {
			return fmt.Errorf("parse startPriceEth: %w", err)
		}
		o.StartPriceEth = f
	}
	return nil
}

// AllowsToken reports whether a collection-wide bid's allow-list (if any)
// permits matching against tokenID. An empty allow-list permits every
// token.
func (o *Order) AllowsToken(tokenID *big.Int) bool {
	if len(o.AllowList) == 0 {
		return true
	}
	for _, t := range o.AllowList {
		if t.Cmp(tokenID) == 0 {
			return true
		}
	}
	return false
}

// EffectivePrice is the order's price at instant now. The data model
// carries a single startPriceEth rather than a full dutch-auction price
// curve, so the effective price is flat over the order's active window;
// see DESIGN.md.
func (o *Order) EffectivePrice(now int64) *big.Float {
	return o.StartPriceEth
}

// Validate checks the invariants spec.md §3 places on an order, independent
// of any marketplace- or kind-specific payload rules.
func (o *Order) Validate() error {
	if o.StartPriceEth == nil || o.StartPriceEth.Sign() < 0 {
		return fmt.Errorf("order %s: startPriceEth must be >= 0", o.ID)
	}
	if o.StartTime > o.EndTime {
		return fmt.Errorf("order %s: startTime %d > endTime %d", o.ID, o.StartTime, o.EndTime)
	}
	if o.Scope == SingleToken && o.TokenID == nil {
		return fmt.Errorf("order %s: single-token scope requires tokenId", o.ID)
	}
	if o.Scope == CollectionWide && o.Side == Sell {
		return fmt.Errorf("order %s: collection-wide sell is unsupported", o.ID)
	}
	if (o.Collection == common.Address{}) {
		return fmt.Errorf("order %s: missing collection address", o.ID)
	}
	return nil
}

// ActiveAt reports whether the order's time window covers the instant now.
func (o *Order) ActiveAt(now int64) bool {
	return o.StartTime <= now && now <= o.EndTime
}

// CanonicalID computes the deterministic order id: keccak256 over a
// canonical field encoding. Two orders with identical (chain, side, scope,
// collection, tokenId, complication, currency, price, window, signer, raw
// payload, marketplace, kind) always produce the same id, mirroring the teacher's EIP-712
// digest-as-identity convention in pkg/crypto.
func CanonicalID(o *Order) common.Hash {
	var buf []byte
	buf = append(buf, byte(o.Side), byte(o.Scope))
	buf = appendUint64(buf, o.ChainID)
	buf = append(buf, o.Collection.Bytes()...)
	if o.TokenID != nil {
		buf = append(buf, o.TokenID.Bytes()...)
	}
	buf = append(buf, o.Complication.Bytes()...)
	buf = append(buf, o.Currency.Bytes()...)
	if o.StartPriceEth != nil {
		buf = append(buf, []byte(o.StartPriceEth.Text('f', 18))...)
	}
	buf = appendUint64(buf, uint64(o.StartTime))
	buf = appendUint64(buf, uint64(o.EndTime))
	buf = append(buf, o.Signer.Bytes()...)
	buf = append(buf, o.RawPayload...)
	buf = append(buf, []byte(o.Marketplace)...)
	buf = append(buf, []byte(o.Kind)...)
	return crypto.Keccak256Hash(buf)
}

func appendUint64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}
