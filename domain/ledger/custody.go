package ledger

import (
	"fmt"
	"sync"

	"njord/domain/market"
)

// Custody is an in-memory item custody. Batch transfers are all-or-
// nothing: a short account leaves every balance untouched.
type Custody struct {
	mu       sync.Mutex
	holdings map[market.AccountID]map[market.ItemID]uint64
	escrow   map[market.ItemID]uint64
}

func NewCustody() *Custody {
	return &Custody{
		holdings: map[market.AccountID]map[market.ItemID]uint64{},
		escrow:   map[market.ItemID]uint64{},
	}
}

// Mint credits an account with items. Test and bootstrap helper.
func (c *Custody) Mint(a market.AccountID, item market.ItemID, qty uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.account(a)[item] += qty
}

func (c *Custody) account(a market.AccountID) map[market.ItemID]uint64 {
	inner, ok := c.holdings[a]
	if !ok {
		inner = map[market.ItemID]uint64{}
		c.holdings[a] = inner
	}
	return inner
}

// Holding returns an account's free quantity of one item.
func (c *Custody) Holding(a market.AccountID, item market.ItemID) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.holdings[a][item]
}

// Escrow returns the quantity of one item held by the engine.
func (c *Custody) Escrow(item market.ItemID) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.escrow[item]
}

func (c *Custody) TransferBatchToCore(from market.AccountID, items []market.ItemID, amounts []uint64) error {
	if len(items) != len(amounts) {
		return market.ErrLengthMismatch
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	acct := c.account(from)
	for i, item := range items {
		if acct[item] < amounts[i] {
			return fmt.Errorf("account %d has %d of item %d, needs %d: %w",
				from, acct[item], item, amounts[i], ErrInsufficientItems)
		}
	}
	for i, item := range items {
		acct[item] -= amounts[i]
		c.escrow[item] += amounts[i]
	}
	return nil
}

func (c *Custody) TransferBatchFromCore(to market.AccountID, items []market.ItemID, amounts []uint64) error {
	if len(items) != len(amounts) {
		return market.ErrLengthMismatch
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, item := range items {
		if c.escrow[item] < amounts[i] {
			return fmt.Errorf("escrow has %d of item %d, needs %d: %w",
				c.escrow[item], item, amounts[i], ErrInsufficientItems)
		}
	}
	acct := c.account(to)
	for i, item := range items {
		c.escrow[item] -= amounts[i]
		acct[item] += amounts[i]
	}
	return nil
}
