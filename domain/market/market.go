// Package market is the matching engine behind the marketplace: per-item
// order books, maker and claim accounting, fee arithmetic, and the
// validation surface of every command. It owns no locks and no I/O; the
// service layer serializes commands and persists their effects.
package market

import (
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"njord/domain/book"
)

// Market is the aggregate state of one marketplace deployment.
type Market struct {
	log     *zap.Logger
	coins   CoinLedger
	items   ItemCustody
	royalty RoyaltyOracle

	maxOrdersPerPrice uint32
	fees              FeeConfig
	configs           map[ItemID]ItemConfig
	books             map[ItemID]*book.Book
	makers            map[uint64]AccountID
	coinsOwed         map[uint64]decimal.Decimal
	itemsOwed         map[uint64]map[ItemID]uint64
	nextOrderID       uint64

	replaying bool
}

func New(coins CoinLedger, items ItemCustody, royalty RoyaltyOracle, log *zap.Logger) *Market {
	return &Market{
		log:               log,
		coins:             coins,
		items:             items,
		royalty:           royalty,
		maxOrdersPerPrice: DefaultMaxOrdersPerPrice,
		configs:           map[ItemID]ItemConfig{},
		books:             map[ItemID]*book.Book{},
		makers:            map[uint64]AccountID{},
		coinsOwed:         map[uint64]decimal.Decimal{},
		itemsOwed:         map[uint64]map[ItemID]uint64{},
		nextOrderID:       1,
	}
}

// BeginReplay suppresses collaborator transfers while journaled commands
// are re-applied: the movements they describe already happened before the
// restart.
func (m *Market) BeginReplay() { m.replaying = true }

// EndReplay restores normal settlement.
func (m *Market) EndReplay() { m.replaying = false }

// LimitOrders places a batch of limit orders for one caller. Orders are
// processed in submission order; each matches against the resting book,
// then rests or drops its remainder. Any validation failure or match-cap
// hit aborts the whole batch with no state change. The only per-order
// failure that does not abort is a remainder below the item minimum,
// which is reported in the result and as an OrderRejected event.
func (m *Market) LimitOrders(caller AccountID, reqs []OrderRequest) ([]OrderResult, []Event, error) {
	if len(reqs) > MaxBatchOrders {
		return nil, nil, ErrBatchTooLarge
	}
	results := make([]OrderResult, 0, len(reqs))
	events, err := m.run(func(t *tx) error {
		for i := range reqs {
			res, err := t.limitOrder(caller, reqs[i])
			if err != nil {
				return fmt.Errorf("order %d: %w", i, err)
			}
			results = append(results, res)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return results, events, nil
}

func (t *tx) limitOrder(caller AccountID, req OrderRequest) (OrderResult, error) {
	if req.Quantity == 0 {
		return OrderResult{}, ErrNoQuantity
	}
	if req.Quantity > book.MaxQuantity {
		return OrderResult{}, ErrQuantityTooLarge
	}
	if req.Price == 0 {
		return OrderResult{}, ErrPriceZero
	}
	cfg := t.config(req.Item)
	if cfg.Tick == 0 {
		return OrderResult{}, ErrTokenDoesNotExist
	}
	if req.Price%cfg.Tick != 0 {
		return OrderResult{}, ErrPriceNotMultipleOfTick
	}

	bk := t.book(req.Item)
	fills, residual, err := bk.Take(req.Side, req.Price, req.Quantity, MaxMatchesPerCall)
	if err != nil {
		return OrderResult{}, err
	}

	cost := decimal.Zero
	for _, f := range fills {
		amount := coinValue(f.Quantity, f.Price)
		cost = cost.Add(amount)
		maker, _ := t.makerOf(f.OrderID)
		if req.Side == book.Bid {
			t.addOwedCoins(f.OrderID, amount)
		} else {
			t.addOwedItems(f.OrderID, req.Item, uint64(f.Quantity))
		}
		t.emit(&OrderFilled{
			OrderID:  f.OrderID,
			Maker:    maker,
			Taker:    caller,
			Side:     req.Side.Opposite(),
			Item:     req.Item,
			Price:    f.Price,
			Quantity: f.Quantity,
		})
	}

	res := OrderResult{Fills: fills, Cost: cost, Residual: residual}
	if residual > 0 {
		if uint64(residual) < cfg.MinQuantity {
			res.Rejected = true
			t.emit(&OrderRejected{
				Maker:    caller,
				Side:     req.Side,
				Item:     req.Item,
				Price:    req.Price,
				Quantity: residual,
			})
			t.m.log.Info("remainder below item minimum dropped",
				zap.Uint64("item", uint64(req.Item)),
				zap.Stringer("side", req.Side),
				zap.Uint64("price", req.Price),
				zap.Uint32("quantity", residual))
		} else {
			id, err := t.allocOrderID()
			if err != nil {
				return OrderResult{}, err
			}
			actual, err := bk.Insert(req.Side, req.Price, id, residual, cfg.Tick, t.maxPerPrice())
			if err != nil {
				return OrderResult{}, err
			}
			t.makers[id] = caller
			res.OrderID = id
			res.RestingPrice = actual
			t.emit(&OrderPlaced{
				OrderID:  id,
				Maker:    caller,
				Side:     req.Side,
				Item:     req.Item,
				Price:    actual,
				Quantity: residual,
			})
		}
	}

	// Settlement legs. Bids escrow coins at the price the remainder
	// actually rested at so a later cancel refunds exactly what was
	// taken; asks escrow the items themselves. Sell-taker proceeds pay
	// out net of fees immediately, while resting sells accrue gross
	// claimable and are fee'd at claim time.
	matched := req.Quantity - residual
	if req.Side == book.Bid {
		pay := cost
		if res.OrderID != 0 {
			pay = pay.Add(coinValue(residual, res.RestingPrice))
		}
		t.transfers.coinIn(caller, pay)
		if matched > 0 {
			t.transfers.itemOut(caller, req.Item, uint64(matched))
		}
	} else {
		take := uint64(matched)
		if res.OrderID != 0 {
			take += uint64(residual)
		}
		t.transfers.itemIn(caller, req.Item, take)
		if cost.IsPositive() {
			fees := splitFees(cost, t.feeConfig())
			t.transfers.coinOut(caller, cost.Sub(fees.total()))
			t.payFees(fees)
		}
	}
	return res, nil
}

// CancelOrders pulls a batch of the caller's resting orders and refunds
// their unfilled economics: escrowed coins for bids, escrowed items for
// asks. The id and ref arrays are parallel. Any failure aborts the batch.
func (m *Market) CancelOrders(caller AccountID, ids []uint64, refs []CancelRef) ([]Event, error) {
	if len(ids) != len(refs) {
		return nil, ErrLengthMismatch
	}
	return m.run(func(t *tx) error {
		for i, id := range ids {
			ref := refs[i]
			bk := t.book(ref.Item)
			qty, err := bk.Find(ref.Side, ref.Price, id)
			if err != nil {
				return fmt.Errorf("cancel %d: %w", id, err)
			}
			maker, ok := t.makerOf(id)
			if !ok || maker != caller {
				return fmt.Errorf("cancel %d: %w", id, ErrNotMaker)
			}
			if _, err := bk.Remove(ref.Side, ref.Price, id); err != nil {
				return fmt.Errorf("cancel %d: %w", id, err)
			}
			if ref.Side == book.Bid {
				t.transfers.coinOut(caller, coinValue(qty, ref.Price))
			} else {
				t.transfers.itemOut(caller, ref.Item, uint64(qty))
			}
			t.emit(&OrderCancelled{
				OrderID:  id,
				Maker:    caller,
				Side:     ref.Side,
				Item:     ref.Item,
				Price:    ref.Price,
				Quantity: qty,
			})
		}
		return nil
	})
}

/******************** Queries ********************/

// HighestBid returns the best bid price of an item's book.
func (m *Market) HighestBid(item ItemID) (uint64, bool) {
	bk, ok := m.books[item]
	if !ok {
		return 0, false
	}
	return bk.BestBid()
}

// LowestAsk returns the best ask price of an item's book.
func (m *Market) LowestAsk(item ItemID) (uint64, bool) {
	bk, ok := m.books[item]
	if !ok {
		return 0, false
	}
	return bk.BestAsk()
}

// OrdersAtPrice lists the live orders at a price in time priority, joined
// with their makers. Tombstoned segments are never visible here.
func (m *Market) OrdersAtPrice(side book.Side, item ItemID, price uint64) []OrderView {
	bk, ok := m.books[item]
	if !ok {
		return nil
	}
	orders := bk.OrdersAt(side, price)
	out := make([]OrderView, len(orders))
	for i, o := range orders {
		out[i] = OrderView{ID: o.ID, Maker: m.makers[o.ID], Quantity: o.Quantity}
	}
	return out
}

// LevelNode exposes the storage shape of a price level, tombstone offset
// included.
func (m *Market) LevelNode(side book.Side, item ItemID, price uint64) (book.NodeInfo, bool) {
	bk, ok := m.books[item]
	if !ok {
		return book.NodeInfo{}, false
	}
	return bk.Node(side, price)
}

// CoinsClaimable reports the claimable coins per order id, optionally net
// of fees at the current rates.
func (m *Market) CoinsClaimable(ids []uint64, applyFees bool) []decimal.Decimal {
	out := make([]decimal.Decimal, len(ids))
	for i, id := range ids {
		owed, ok := m.coinsOwed[id]
		if !ok {
			out[i] = decimal.Zero
			continue
		}
		if applyFees {
			owed = owed.Sub(splitFees(owed, m.fees).total())
		}
		out[i] = owed
	}
	return out
}

// ItemsClaimable reports the claimable item quantity for each (order id,
// item id) pair. The arrays are parallel.
func (m *Market) ItemsClaimable(ids []uint64, items []ItemID) ([]uint64, error) {
	if len(ids) != len(items) {
		return nil, ErrLengthMismatch
	}
	out := make([]uint64, len(ids))
	for i, id := range ids {
		if inner, ok := m.itemsOwed[id]; ok {
			out[i] = inner[items[i]]
		}
	}
	return out, nil
}

// MakerOf returns the maker an order id was assigned to.
func (m *Market) MakerOf(id uint64) (AccountID, bool) {
	a, ok := m.makers[id]
	return a, ok
}

// ItemConfigOf returns an item's configuration; ok is false for items
// never registered.
func (m *Market) ItemConfigOf(item ItemID) (ItemConfig, bool) {
	cfg, ok := m.configs[item]
	return cfg, ok
}

// FeeSchedule returns the live fee configuration.
func (m *Market) FeeSchedule() FeeConfig { return m.fees }

// MaxOrdersPerPrice returns the live per-level order cap.
func (m *Market) MaxOrdersPerPrice() uint32 { return m.maxOrdersPerPrice }

// NextOrderID returns the next id the engine would assign.
func (m *Market) NextOrderID() uint64 { return m.nextOrderID }
