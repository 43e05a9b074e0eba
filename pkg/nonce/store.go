package nonce

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"
)

// Record is the persisted NonceRecord of spec.md §3, stored at document
// path matchExecutors/{account}/nonces/{exchange} (spec.md §6).
type Record struct {
	ChainID             uint64         `json:"chainId"`
	MatchExecutorAddress common.Address `json:"matchExecutorAddress"`
	ExchangeAddress     common.Address `json:"exchangeAddress"`
	Nonce               string         `json:"nonce"`
	UpdatedAt           int64          `json:"updatedAt"`
	CreatedAt           int64          `json:"createdAt"`
}

// DocumentStore persists and loads NonceRecords, keyed by (account,
// exchange). The nonce provider only consumes this interface; the
// document database itself is an external collaborator per spec.md §1.
type DocumentStore interface {
	Load(account, exchange common.Address) (*Record, error)
	Merge(rec *Record) error
}

// documentKey mirrors the teacher's pkg/storage/account_keys.go schema:
// a fixed prefix, then the address, then a suffix, so every nonce record
// sorts and scans alongside one account's other keys.
func documentKey(account, exchange common.Address) []byte {
	return []byte(fmt.Sprintf("matchExecutors/%s/nonces/%s", account.Hex(), exchange.Hex()))
}

// PebbleDocumentStore is the default DocumentStore, backed by
// cockroachdb/pebble exactly as the teacher's pkg/storage.PebbleStore backs
// account and position documents.
type PebbleDocumentStore struct {
	db *pebble.DB
}

// NewPebbleDocumentStore opens (creating if absent) a Pebble database at
// path.
func NewPebbleDocumentStore(path string) (*PebbleDocumentStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open nonce document store: %w", err)
	}
	return &PebbleDocumentStore{db: db}, nil
}

func (s *PebbleDocumentStore) Close() error { return s.db.Close() }

// Load returns the persisted record for (account, exchange), or nil if
// none exists yet.
func (s *PebbleDocumentStore) Load(account, exchange common.Address) (*Record, error) {
	key := documentKey(account, exchange)
	data, closer, err := s.db.Get(key)
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load nonce record: %w", err)
	}
	defer closer.Close()

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal nonce record: %w", err)
	}
	return &rec, nil
}

// Merge persists rec, overwriting whatever is at its (account, exchange)
// key. Debounced saves call this; a failure here is logged by the caller
// and does not block allocation, per spec.md §4.4 step 4.
func (s *PebbleDocumentStore) Merge(rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal nonce record: %w", err)
	}
	key := documentKey(rec.MatchExecutorAddress, rec.ExchangeAddress)
	if err := s.db.Set(key, data, pebble.Sync); err != nil {
		return fmt.Errorf("merge nonce record: %w", err)
	}
	return nil
}

// InMemoryDocumentStore is a DocumentStore for tests: no disk I/O, no
// debounce-failure injection.
type InMemoryDocumentStore struct {
	records map[string]*Record
}

func NewInMemoryDocumentStore() *InMemoryDocumentStore {
	return &InMemoryDocumentStore{records: make(map[string]*Record)}
}

func (s *InMemoryDocumentStore) Load(account, exchange common.Address) (*Record, error) {
	rec, ok := s.records[string(documentKey(account, exchange))]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (s *InMemoryDocumentStore) Merge(rec *Record) error {
	cp := *rec
	s.records[string(documentKey(rec.MatchExecutorAddress, rec.ExchangeAddress))] = &cp
	return nil
}
