package order

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Match is a proposed pairing of two compatible opposite-side orders.
type Match struct {
	ID            common.Hash `json:"id"`
	OrderA        common.Hash `json:"orderA"` // the smaller of the two ids, by convention
	OrderB        common.Hash `json:"orderB"` // the larger of the two ids
	MaxGasPrice   *big.Float  `json:"maxGasPriceEth"`
	ProposedAtSec int64       `json:"proposedAt"`
}

// matchJSON mirrors Match but swaps MaxGasPrice for a decimal string,
// since *big.Float has no native JSON encoding.
type matchJSON struct {
	ID            common.Hash `json:"id"`
	OrderA        common.Hash `json:"orderA"`
	OrderB        common.Hash `json:"orderB"`
	MaxGasPrice   string      `json:"maxGasPriceEth"`
	ProposedAtSec int64       `json:"proposedAt"`
}

func (m *Match) MarshalJSON() ([]byte, error) {
	aux := matchJSON{ID: m.ID, OrderA: m.OrderA, OrderB: m.OrderB, ProposedAtSec: m.ProposedAtSec}
	if m.MaxGasPrice != nil {
		aux.MaxGasPrice = m.MaxGasPrice.Text('f', 18)
	}
	return json.Marshal(aux)
}

func (m *Match) UnmarshalJSON(data []byte) error {
	var aux matchJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*m = Match{ID: aux.ID, OrderA: aux.OrderA, OrderB: aux.OrderB, ProposedAtSec: aux.ProposedAtSec}
	if aux.MaxGasPrice != "" {
		f, _, err := big.ParseFloat(aux.MaxGasPrice, 10, 200, big.ToNearestEven)
		if err != nil {
			return fmt.Errorf("parse maxGasPriceEth: %w", err)
		}
		m.MaxGasPrice = f
	}
	return nil
}

// Counterpart returns the id of the order on the other side of the match
// from id, and false if id does not belong to the match. Cascade cleanup
// (spec.md §9, first Open Question) uses this instead of re-deriving the
// counterpart from the match id: the ordered pair is stored directly on
// the match payload.
func (m *Match) Counterpart(id common.Hash) (common.Hash, bool) {
	switch id {
	case m.OrderA:
		return m.OrderB, true
	case m.OrderB:
		return m.OrderA, true
	default:
		return common.Hash{}, false
	}
}

// MatchID deterministically derives a match id from the unordered pair of
// order ids: hash(min(a,b) || max(a,b)). Returns the id together with the
// pair stored in canonical (min, max) order.
func MatchID(a, b common.Hash) (id common.Hash, lo common.Hash, hi common.Hash) {
	if bytes.Compare(a.Bytes(), b.Bytes()) <= 0 {
		lo, hi = a, b
	} else {
		lo, hi = b, a
	}
	buf := append(append([]byte{}, lo.Bytes()...), hi.Bytes()...)
	return crypto.Keccak256Hash(buf), lo, hi
}
