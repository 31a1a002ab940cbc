// Package book implements a two-sided limit order book with packed
// per-price storage. Each price level keeps its resting orders in
// fixed-width segments of four slots, one word per order, and the levels
// hang off red-black trees so best-price scans and cancels stay
// logarithmic.
package book

import (
	"encoding/json"
	"fmt"
	"math"
)

type Side uint8

const (
	Bid Side = iota
	Ask
)

func (s Side) String() string {
	if s == Bid {
		return "bid"
	}
	return "ask"
}

func (s Side) Opposite() Side {
	if s == Bid {
		return Ask
	}
	return Bid
}

// ParseSide maps the wire spelling of a side back to its value.
func ParseSide(s string) (Side, error) {
	switch s {
	case "bid":
		return Bid, nil
	case "ask":
		return Ask, nil
	default:
		return 0, fmt.Errorf("book: unknown side %q", s)
	}
}

// Sides travel as "bid"/"ask" strings in journal records and events.
func (s Side) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Side) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseSide(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Order is one resting order as seen through queries.
type Order struct {
	ID       uint64
	Quantity uint32
}

// Fill records one maker order consumed (fully or partially) by a taker.
type Fill struct {
	OrderID  uint64
	Price    uint64
	Quantity uint32
}

// NodeInfo describes the storage shape of one price level.
type NodeInfo struct {
	Price     uint64
	Tombstone uint32
	Segments  int
	Orders    int
}

// LevelSnapshot is the persistable form of one price level: the raw packed
// slot words plus the tombstone offset.
type LevelSnapshot struct {
	Price     uint64
	Tombstone uint32
	Segments  [][SlotsPerSegment]uint64
}

// Book is the order book of a single item: one price tree per side.
// It is not safe for concurrent use; the owning service serializes access.
type Book struct {
	bids *tree
	asks *tree
}

func NewBook() *Book {
	return &Book{bids: newTree(), asks: newTree()}
}

func (b *Book) sideTree(side Side) *tree {
	if side == Bid {
		return b.bids
	}
	return b.asks
}

// Insert rests an order at price, walking one tick per full level: bids
// step down, asks step up. It returns the price the order actually rested
// at, which differs from the requested price only when levels overflowed.
func (b *Book) Insert(side Side, price, orderID uint64, qty uint32, tick uint64, maxPerPrice uint32) (uint64, error) {
	tr := b.sideTree(side)
	p := price
	for {
		lvl := tr.find(p)
		if lvl == nil {
			tr.insert(newPriceLevel(p, orderID, qty))
			return p, nil
		}
		if !lvl.full(maxPerPrice) {
			lvl.push(orderID, qty)
			return p, nil
		}
		if side == Bid {
			if p <= tick {
				return 0, ErrPriceExhausted
			}
			p -= tick
		} else {
			if p > math.MaxUint64-tick {
				return 0, ErrPriceExhausted
			}
			p += tick
		}
	}
}

// Take consumes resting orders on the opposite side until qty is filled,
// the price limit stops being satisfied, or the book side runs dry. Bids
// consume asks from the lowest price up; asks consume bids from the
// highest price down. Time priority holds within a level.
//
// budget is the remaining match allowance of the enclosing call; when
// fills reach it the take fails with ErrTooManyMatches and the book is
// left mid-consume, so atomic callers must operate on a Clone.
func (b *Book) Take(taker Side, limit uint64, qty uint32, budget int) ([]Fill, uint32, error) {
	contra := b.asks
	if taker == Ask {
		contra = b.bids
	}

	var fills []Fill
	remaining := qty
	for remaining > 0 {
		var lvl *priceLevel
		if taker == Bid {
			lvl = contra.min()
			if lvl == nil || lvl.price > limit {
				break
			}
		} else {
			lvl = contra.max()
			if lvl == nil || lvl.price < limit {
				break
			}
		}
		freed, drained, err := lvl.consume(&remaining, budget, &fills)
		if err != nil {
			return nil, 0, err
		}
		if drained {
			contra.remove(lvl.price)
		} else {
			lvl.tombstone += freed
		}
	}
	return fills, remaining, nil
}

// Find returns the remaining quantity of a resting order.
func (b *Book) Find(side Side, price, orderID uint64) (uint32, error) {
	lvl := b.sideTree(side).find(price)
	if lvl == nil {
		return 0, ErrPriceNotFound
	}
	seg, off, ok := lvl.locate(orderID)
	if !ok {
		return 0, ErrOrderNotFound
	}
	return lvl.segments[seg][off].quantity(), nil
}

// Remove cancels a resting order and returns the quantity it still held.
// The level disappears from the tree when its last order goes.
func (b *Book) Remove(side Side, price, orderID uint64) (uint32, error) {
	tr := b.sideTree(side)
	lvl := tr.find(price)
	if lvl == nil {
		return 0, ErrPriceNotFound
	}
	seg, off, ok := lvl.locate(orderID)
	if !ok {
		return 0, ErrOrderNotFound
	}
	qty, emptied := lvl.removeAt(seg, off)
	if emptied {
		tr.remove(price)
	}
	return qty, nil
}

// BestBid returns the highest bid price, if any.
func (b *Book) BestBid() (uint64, bool) {
	if lvl := b.bids.max(); lvl != nil {
		return lvl.price, true
	}
	return 0, false
}

// BestAsk returns the lowest ask price, if any.
func (b *Book) BestAsk() (uint64, bool) {
	if lvl := b.asks.min(); lvl != nil {
		return lvl.price, true
	}
	return 0, false
}

// OrdersAt lists the live orders resting at a price in time priority, or
// nil when the level does not exist.
func (b *Book) OrdersAt(side Side, price uint64) []Order {
	lvl := b.sideTree(side).find(price)
	if lvl == nil {
		return nil
	}
	return lvl.orders()
}

// Node reports the storage shape of the level at a price.
func (b *Book) Node(side Side, price uint64) (NodeInfo, bool) {
	lvl := b.sideTree(side).find(price)
	if lvl == nil {
		return NodeInfo{}, false
	}
	return NodeInfo{
		Price:     lvl.price,
		Tombstone: lvl.tombstone,
		Segments:  len(lvl.segments),
		Orders:    len(lvl.orders()),
	}, true
}

// Prices lists the populated prices of a side in ascending order.
func (b *Book) Prices(side Side) []uint64 {
	var out []uint64
	b.sideTree(side).ascend(func(l *priceLevel) bool {
		out = append(out, l.price)
		return true
	})
	return out
}

// Levels snapshots every level of a side in ascending price order.
func (b *Book) Levels(side Side) []LevelSnapshot {
	var out []LevelSnapshot
	b.sideTree(side).ascend(func(l *priceLevel) bool {
		segs := make([][SlotsPerSegment]uint64, len(l.segments))
		for i, sg := range l.segments {
			for j, s := range sg {
				segs[i][j] = uint64(s)
			}
		}
		out = append(out, LevelSnapshot{Price: l.price, Tombstone: l.tombstone, Segments: segs})
		return true
	})
	return out
}

// RestoreLevel reinstates a snapshotted level. The price must not already
// be present on that side.
func (b *Book) RestoreLevel(side Side, snap LevelSnapshot) {
	segs := make([]segment, len(snap.Segments))
	for i, raw := range snap.Segments {
		for j, w := range raw {
			segs[i][j] = slot(w)
		}
	}
	b.sideTree(side).insert(&priceLevel{price: snap.Price, tombstone: snap.Tombstone, segments: segs})
}

// Clone deep copies the book. Takes and cancels on the copy leave the
// original untouched, which is what batch atomicity is built on.
func (b *Book) Clone() *Book {
	return &Book{bids: b.bids.clone(), asks: b.asks.clone()}
}

// Empty reports whether neither side has a level.
func (b *Book) Empty() bool {
	return b.bids.size == 0 && b.asks.size == 0
}

// Orders counts live orders on one side, all levels included.
func (b *Book) Orders(side Side) int {
	n := 0
	b.sideTree(side).ascend(func(l *priceLevel) bool {
		n += len(l.orders())
		return true
	})
	return n
}
