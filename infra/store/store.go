// Package store persists market snapshots in pebble. A snapshot is
// written under structured keys in one atomic batch, replacing the
// previous one; startup loads it and replays the journal tail on top.
package store

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"

	"njord/domain/market"
)

const (
	keyMeta      = "snap/meta"
	prefixItem   = "snap/item/"
	prefixBook   = "snap/book/"
	prefixMaker  = "snap/maker/"
	prefixCoins  = "snap/coins/"
	prefixItems  = "snap/items/"
	prefixAll    = "snap/"
	prefixAllEnd = "snap0" // '0' is the byte after '/'
)

// meta carries everything that is not a per-entity row, plus the journal
// sequence the snapshot is consistent with.
type meta struct {
	Seq               uint64           `json:"seq"`
	NextOrderID       uint64           `json:"next_order_id"`
	MaxOrdersPerPrice uint32           `json:"max_orders_per_price"`
	Fees              market.FeeConfig `json:"fees"`
}

type Store struct {
	db *pebble.DB
}

func Open(dir string) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Save writes a snapshot taken at journal sequence seq, atomically
// replacing whatever snapshot was there before.
func (s *Store) Save(seq uint64, snap *market.Snapshot) error {
	b := s.db.NewBatch()
	defer b.Close()

	if err := b.DeleteRange([]byte(prefixAll), []byte(prefixAllEnd), nil); err != nil {
		return err
	}
	if err := setJSON(b, keyMeta, meta{
		Seq:               seq,
		NextOrderID:       snap.NextOrderID,
		MaxOrdersPerPrice: snap.MaxOrdersPerPrice,
		Fees:              snap.Fees,
	}); err != nil {
		return err
	}
	for _, e := range snap.Items {
		if err := setJSON(b, fmt.Sprintf("%s%020d", prefixItem, e.Item), e.Config); err != nil {
			return err
		}
	}
	for _, e := range snap.Books {
		if err := setJSON(b, fmt.Sprintf("%s%020d", prefixBook, e.Item), e); err != nil {
			return err
		}
	}
	for _, e := range snap.Makers {
		if err := setJSON(b, fmt.Sprintf("%s%020d", prefixMaker, e.OrderID), e.Maker); err != nil {
			return err
		}
	}
	for _, e := range snap.CoinsOwed {
		if err := setJSON(b, fmt.Sprintf("%s%020d", prefixCoins, e.OrderID), e.Amount); err != nil {
			return err
		}
	}
	for _, e := range snap.ItemsOwed {
		key := fmt.Sprintf("%s%020d/%020d", prefixItems, e.OrderID, e.Item)
		if err := setJSON(b, key, e.Quantity); err != nil {
			return err
		}
	}
	if err := s.db.Apply(b, pebble.Sync); err != nil {
		return fmt.Errorf("apply snapshot batch: %w", err)
	}
	return nil
}

// Load reads the stored snapshot. A store with no snapshot yet returns
// (nil, 0, nil).
func (s *Store) Load() (*market.Snapshot, uint64, error) {
	var m meta
	found, err := s.getJSON(keyMeta, &m)
	if err != nil {
		return nil, 0, err
	}
	if !found {
		return nil, 0, nil
	}

	snap := &market.Snapshot{
		NextOrderID:       m.NextOrderID,
		MaxOrdersPerPrice: m.MaxOrdersPerPrice,
		Fees:              m.Fees,
	}

	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefixAll),
		UpperBound: []byte(prefixAllEnd),
	})
	if err != nil {
		return nil, 0, err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		key := string(iter.Key())
		val := iter.Value()
		switch {
		case hasPrefix(key, prefixItem):
			var cfg market.ItemConfig
			var item market.ItemID
			if err := parseRow(key, prefixItem, val, &item, &cfg); err != nil {
				return nil, 0, err
			}
			snap.Items = append(snap.Items, market.ItemConfigEntry{Item: item, Config: cfg})
		case hasPrefix(key, prefixBook):
			var bs market.BookSnapshot
			if err := json.Unmarshal(val, &bs); err != nil {
				return nil, 0, err
			}
			snap.Books = append(snap.Books, bs)
		case hasPrefix(key, prefixMaker):
			var maker market.AccountID
			var id uint64
			if err := parseRow(key, prefixMaker, val, &id, &maker); err != nil {
				return nil, 0, err
			}
			snap.Makers = append(snap.Makers, market.MakerEntry{OrderID: id, Maker: maker})
		case hasPrefix(key, prefixCoins):
			var entry market.CoinsOwedEntry
			if err := parseRow(key, prefixCoins, val, &entry.OrderID, &entry.Amount); err != nil {
				return nil, 0, err
			}
			snap.CoinsOwed = append(snap.CoinsOwed, entry)
		case hasPrefix(key, prefixItems):
			var entry market.ItemsOwedEntry
			if _, err := fmt.Sscanf(key[len(prefixItems):], "%020d/%020d", &entry.OrderID, &entry.Item); err != nil {
				return nil, 0, fmt.Errorf("store key %q: %w", key, err)
			}
			if err := json.Unmarshal(val, &entry.Quantity); err != nil {
				return nil, 0, err
			}
			snap.ItemsOwed = append(snap.ItemsOwed, entry)
		}
	}
	if err := iter.Error(); err != nil {
		return nil, 0, err
	}
	return snap, m.Seq, nil
}

func setJSON(b *pebble.Batch, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Set([]byte(key), data, nil)
}

func (s *Store) getJSON(key string, v any) (bool, error) {
	val, closer, err := s.db.Get([]byte(key))
	if err == pebble.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer closer.Close()
	return true, json.Unmarshal(val, v)
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// parseRow decodes a "prefix/%020d" keyed row: the trailing number into
// id, the value into v.
func parseRow[I ~uint64, V any](key, prefix string, val []byte, id *I, v *V) error {
	var raw uint64
	if _, err := fmt.Sscanf(key[len(prefix):], "%020d", &raw); err != nil {
		return fmt.Errorf("store key %q: %w", key, err)
	}
	*id = I(raw)
	return json.Unmarshal(val, v)
}
