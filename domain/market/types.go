package market

import (
	"github.com/shopspring/decimal"

	"njord/domain/book"
)

// AccountID identifies a participant. The zero id is reserved and never a
// valid counterparty.
type AccountID uint64

// ItemID identifies a semi-fungible asset class. Every item has its own
// independent book.
type ItemID uint64

const (
	// MaxMatchesPerCall caps how many resting orders a single limit order
	// may consume before the whole call fails.
	MaxMatchesPerCall = 500

	// MaxClaimOrders caps how many order ids one claim may sweep.
	MaxClaimOrders = 200

	// MaxBatchOrders caps how many orders one limit-order batch carries.
	MaxBatchOrders = 100

	// DefaultMaxOrdersPerPrice is the per-level cap until an admin sets
	// another; it must stay a multiple of book.SlotsPerSegment.
	DefaultMaxOrdersPerPrice uint32 = 100
)

// ItemConfig governs one item. Tick zero means the item is not registered;
// once registered the tick is immutable while MinQuantity may change.
type ItemConfig struct {
	Tick        uint64 `json:"tick"`
	MinQuantity uint64 `json:"min_quantity"`
}

// FeeConfig is the live fee schedule. Rates are basis points of 10000 and
// apply to coin proceeds on the selling side.
type FeeConfig struct {
	DevRecipient     AccountID `json:"dev_recipient"`
	DevRate          uint8     `json:"dev_rate"`
	BurnRate         uint32    `json:"burn_rate"`
	RoyaltyRecipient AccountID `json:"royalty_recipient"`
	RoyaltyRate      uint32    `json:"royalty_rate"`
}

// OrderRequest is one order inside a limit-order batch.
type OrderRequest struct {
	Side     book.Side `json:"side"`
	Item     ItemID    `json:"item_id"`
	Price    uint64    `json:"price"`
	Quantity uint32    `json:"quantity"`
}

// CancelRef locates a resting order for cancellation. The caller supplies
// the coordinates; the engine verifies them.
type CancelRef struct {
	Side  book.Side `json:"side"`
	Item  ItemID    `json:"item_id"`
	Price uint64    `json:"price"`
}

// OrderResult reports what one order in a batch did. OrderID is zero
// unless a remainder rested; RestingPrice is where the remainder actually
// landed after any overflow walk. Rejected flags a remainder below the
// item's minimum that was dropped instead of rested.
type OrderResult struct {
	Fills        []book.Fill     `json:"fills,omitempty"`
	Cost         decimal.Decimal `json:"cost"`
	Residual     uint32          `json:"residual"`
	OrderID      uint64          `json:"order_id,omitempty"`
	RestingPrice uint64          `json:"resting_price,omitempty"`
	Rejected     bool            `json:"rejected,omitempty"`
}

// OrderView is a resting order joined with its maker, as returned by
// queries.
type OrderView struct {
	ID       uint64    `json:"id"`
	Maker    AccountID `json:"maker"`
	Quantity uint32    `json:"quantity"`
}
