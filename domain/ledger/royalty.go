package ledger

import (
	"sync"

	"github.com/shopspring/decimal"

	"njord/domain/market"
)

// Royalty is a static royalty oracle: one recipient and one rate in
// basis points for the whole collection. Set may be called at runtime to
// model a registry update between two refreshes.
type Royalty struct {
	mu        sync.Mutex
	recipient market.AccountID
	rate      uint32
}

func NewRoyalty(recipient market.AccountID, rate uint32) *Royalty {
	return &Royalty{recipient: recipient, rate: rate}
}

// Set replaces the royalty terms.
func (r *Royalty) Set(recipient market.AccountID, rate uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recipient = recipient
	r.rate = rate
}

func (r *Royalty) Info(item market.ItemID, gross decimal.Decimal) (market.AccountID, decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	amount := gross.Mul(decimal.NewFromInt(int64(r.rate))).Div(decimal.NewFromInt(10000))
	return r.recipient, amount, nil
}
