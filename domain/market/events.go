package market

import (
	"github.com/shopspring/decimal"

	"njord/domain/book"
)

// Event is a domain fact produced by a committed command. The service
// layer wraps events in a sequenced envelope and hands them to the outbox.
type Event interface {
	Kind() string
}

// OrderPlaced records a remainder resting on the book. Price is the level
// it actually landed on.
type OrderPlaced struct {
	OrderID  uint64    `json:"order_id"`
	Maker    AccountID `json:"maker"`
	Side     book.Side `json:"side"`
	Item     ItemID    `json:"item_id"`
	Price    uint64    `json:"price"`
	Quantity uint32    `json:"quantity"`
}

func (*OrderPlaced) Kind() string { return "order_placed" }

// OrderFilled records one resting order consumed by a taker, fully or in
// part. Side is the resting side.
type OrderFilled struct {
	OrderID  uint64    `json:"order_id"`
	Maker    AccountID `json:"maker"`
	Taker    AccountID `json:"taker"`
	Side     book.Side `json:"side"`
	Item     ItemID    `json:"item_id"`
	Price    uint64    `json:"price"`
	Quantity uint32    `json:"quantity"`
}

func (*OrderFilled) Kind() string { return "order_filled" }

// OrderRejected is the failed-to-add signal: a post-match remainder below
// the item's minimum quantity that was dropped instead of rested.
type OrderRejected struct {
	Maker    AccountID `json:"maker"`
	Side     book.Side `json:"side"`
	Item     ItemID    `json:"item_id"`
	Price    uint64    `json:"price"`
	Quantity uint32    `json:"quantity"`
}

func (*OrderRejected) Kind() string { return "order_rejected" }

// OrderCancelled records a maker pulling a resting order. Quantity is what
// was still unfilled and is what the refund is computed from.
type OrderCancelled struct {
	OrderID  uint64    `json:"order_id"`
	Maker    AccountID `json:"maker"`
	Side     book.Side `json:"side"`
	Item     ItemID    `json:"item_id"`
	Price    uint64    `json:"price"`
	Quantity uint32    `json:"quantity"`
}

func (*OrderCancelled) Kind() string { return "order_cancelled" }

// CoinsClaimed records a maker sweeping sell proceeds. Fees reflect the
// rates at claim time, not at match time.
type CoinsClaimed struct {
	Maker    AccountID       `json:"maker"`
	OrderIDs []uint64        `json:"order_ids"`
	Gross    decimal.Decimal `json:"gross"`
	Fees     decimal.Decimal `json:"fees"`
	Net      decimal.Decimal `json:"net"`
}

func (*CoinsClaimed) Kind() string { return "coins_claimed" }

// ItemsClaimed records a maker sweeping bought items. Quantities is
// parallel to OrderIDs and Items.
type ItemsClaimed struct {
	Maker      AccountID `json:"maker"`
	OrderIDs   []uint64  `json:"order_ids"`
	Items      []ItemID  `json:"item_ids"`
	Quantities []uint64  `json:"quantities"`
}

func (*ItemsClaimed) Kind() string { return "items_claimed" }

// ItemConfigured records an item registration or min-quantity change.
type ItemConfigured struct {
	Item        ItemID `json:"item_id"`
	Tick        uint64 `json:"tick"`
	MinQuantity uint64 `json:"min_quantity"`
}

func (*ItemConfigured) Kind() string { return "item_configured" }

// MaxOrdersUpdated records a change of the per-price order cap.
type MaxOrdersUpdated struct {
	Max uint32 `json:"max_orders_per_price"`
}

func (*MaxOrdersUpdated) Kind() string { return "max_orders_updated" }

// FeesUpdated records a dev/burn fee schedule change.
type FeesUpdated struct {
	DevRecipient AccountID `json:"dev_recipient"`
	DevRate      uint8     `json:"dev_rate"`
	BurnRate     uint32    `json:"burn_rate"`
}

func (*FeesUpdated) Kind() string { return "fees_updated" }

// RoyaltyUpdated records a refresh of the cached royalty terms.
type RoyaltyUpdated struct {
	Recipient AccountID `json:"recipient"`
	Rate      uint32    `json:"rate"`
}

func (*RoyaltyUpdated) Kind() string { return "royalty_updated" }
