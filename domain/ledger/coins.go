// Package ledger provides in-memory implementations of the collaborators
// the engine moves value through: a coin ledger, an item custody, and a
// royalty oracle. Tests and single-process deployments use these;
// production deployments substitute their own.
package ledger

import (
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"njord/domain/market"
)

var (
	ErrInsufficientCoins = errors.New("ledger: insufficient coins")
	ErrInsufficientItems = errors.New("ledger: insufficient items")
)

// Coins is an in-memory coin ledger. The engine's escrow is tracked as
// its own balance so conservation is checkable from the outside.
type Coins struct {
	mu       sync.Mutex
	balances map[market.AccountID]decimal.Decimal
	escrow   decimal.Decimal
	burned   decimal.Decimal
}

func NewCoins() *Coins {
	return &Coins{
		balances: map[market.AccountID]decimal.Decimal{},
		escrow:   decimal.Zero,
		burned:   decimal.Zero,
	}
}

// Mint credits an account out of thin air. Test and bootstrap helper.
func (c *Coins) Mint(a market.AccountID, amount decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balances[a] = c.balance(a).Add(amount)
}

func (c *Coins) balance(a market.AccountID) decimal.Decimal {
	if v, ok := c.balances[a]; ok {
		return v
	}
	return decimal.Zero
}

// Balance returns an account's free balance.
func (c *Coins) Balance(a market.AccountID) decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.balance(a)
}

// Escrow returns the coins currently held by the engine.
func (c *Coins) Escrow() decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.escrow
}

// Burned returns the total destroyed so far.
func (c *Coins) Burned() decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.burned
}

func (c *Coins) TransferToCore(from market.AccountID, amount decimal.Decimal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	have := c.balance(from)
	if have.LessThan(amount) {
		return fmt.Errorf("account %d has %s, needs %s: %w", from, have, amount, ErrInsufficientCoins)
	}
	c.balances[from] = have.Sub(amount)
	c.escrow = c.escrow.Add(amount)
	return nil
}

func (c *Coins) TransferFromCore(to market.AccountID, amount decimal.Decimal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.escrow.LessThan(amount) {
		return fmt.Errorf("escrow has %s, needs %s: %w", c.escrow, amount, ErrInsufficientCoins)
	}
	c.escrow = c.escrow.Sub(amount)
	c.balances[to] = c.balance(to).Add(amount)
	return nil
}

func (c *Coins) Burn(amount decimal.Decimal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.escrow.LessThan(amount) {
		return fmt.Errorf("escrow has %s, cannot burn %s: %w", c.escrow, amount, ErrInsufficientCoins)
	}
	c.escrow = c.escrow.Sub(amount)
	c.burned = c.burned.Add(amount)
	return nil
}
