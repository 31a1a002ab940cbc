package service

import (
	"github.com/shopspring/decimal"

	"njord/domain/book"
	"njord/domain/market"
	"njord/infra/wal"
)

// Journal record payloads. Every field a command needs to re-apply
// deterministically is here; notably the royalty refresh journals the
// resolved terms, never the oracle call.

type limitOrdersCmd struct {
	Caller market.AccountID      `json:"caller"`
	Orders []market.OrderRequest `json:"orders"`
}

type cancelOrdersCmd struct {
	Caller market.AccountID   `json:"caller"`
	IDs    []uint64           `json:"order_ids"`
	Refs   []market.CancelRef `json:"refs"`
}

type claimCoinsCmd struct {
	Caller market.AccountID `json:"caller"`
	IDs    []uint64         `json:"order_ids"`
}

type claimItemsCmd struct {
	Caller market.AccountID `json:"caller"`
	IDs    []uint64         `json:"order_ids"`
	Items  []market.ItemID  `json:"item_ids"`
}

type claimAllCmd struct {
	Caller       market.AccountID `json:"caller"`
	CoinIDs      []uint64         `json:"coin_order_ids"`
	ItemOrderIDs []uint64         `json:"item_order_ids"`
	ItemIDs      []market.ItemID  `json:"item_ids"`
}

type setItemConfigsCmd struct {
	Items   []market.ItemID     `json:"item_ids"`
	Configs []market.ItemConfig `json:"configs"`
}

type setMaxOrdersCmd struct {
	Max uint32 `json:"max_orders_per_price"`
}

type setFeesCmd struct {
	DevRecipient market.AccountID `json:"dev_recipient"`
	DevRate      uint32           `json:"dev_rate"`
	BurnRate     uint32           `json:"burn_rate"`
}

type setRoyaltyCmd struct {
	Recipient market.AccountID `json:"recipient"`
	Rate      uint32           `json:"rate"`
}

// LimitOrders submits one batch of limit orders for a caller.
func (s *Service) LimitOrders(caller market.AccountID, reqs []market.OrderRequest) ([]market.OrderResult, error) {
	var results []market.OrderResult
	cmd := limitOrdersCmd{Caller: caller, Orders: reqs}
	err := s.submit("limit_orders", wal.RecordLimitOrders, cmd, func() ([]market.Event, error) {
		res, events, err := s.market.LimitOrders(caller, reqs)
		if err != nil {
			return nil, err
		}
		results = res
		return events, nil
	})
	if err != nil {
		return nil, err
	}
	for _, r := range results {
		if r.Rejected {
			s.metrics.OrdersRejected.Inc()
		} else {
			s.metrics.OrdersAccepted.Inc()
		}
		s.metrics.Trades.Add(float64(len(r.Fills)))
		for _, f := range r.Fills {
			s.metrics.TradedQuantity.Add(float64(f.Quantity))
		}
	}
	return results, nil
}

// CancelOrders pulls the caller's resting orders and refunds them.
func (s *Service) CancelOrders(caller market.AccountID, ids []uint64, refs []market.CancelRef) error {
	cmd := cancelOrdersCmd{Caller: caller, IDs: ids, Refs: refs}
	err := s.submit("cancel_orders", wal.RecordCancelOrders, cmd, func() ([]market.Event, error) {
		return s.market.CancelOrders(caller, ids, refs)
	})
	if err != nil {
		return err
	}
	s.metrics.Cancellations.Add(float64(len(ids)))
	return nil
}

// ClaimCoins sweeps sell proceeds; returns the net amount paid out.
func (s *Service) ClaimCoins(caller market.AccountID, ids []uint64) (decimal.Decimal, error) {
	var net decimal.Decimal
	cmd := claimCoinsCmd{Caller: caller, IDs: ids}
	err := s.submit("claim_coins", wal.RecordClaimCoins, cmd, func() ([]market.Event, error) {
		paid, events, err := s.market.ClaimCoins(caller, ids)
		if err != nil {
			return nil, err
		}
		net = paid
		return events, nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	s.metrics.Claims.WithLabelValues("coins").Inc()
	return net, nil
}

// ClaimItems sweeps bought items.
func (s *Service) ClaimItems(caller market.AccountID, ids []uint64, items []market.ItemID) error {
	cmd := claimItemsCmd{Caller: caller, IDs: ids, Items: items}
	err := s.submit("claim_items", wal.RecordClaimItems, cmd, func() ([]market.Event, error) {
		return s.market.ClaimItems(caller, ids, items)
	})
	if err != nil {
		return err
	}
	s.metrics.Claims.WithLabelValues("items").Inc()
	return nil
}

// ClaimAll composes a coin claim and an item claim atomically.
func (s *Service) ClaimAll(caller market.AccountID, coinIDs, itemOrderIDs []uint64, itemIDs []market.ItemID) (decimal.Decimal, error) {
	var net decimal.Decimal
	cmd := claimAllCmd{Caller: caller, CoinIDs: coinIDs, ItemOrderIDs: itemOrderIDs, ItemIDs: itemIDs}
	err := s.submit("claim_all", wal.RecordClaimAll, cmd, func() ([]market.Event, error) {
		paid, events, err := s.market.ClaimAll(caller, coinIDs, itemOrderIDs, itemIDs)
		if err != nil {
			return nil, err
		}
		net = paid
		return events, nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	s.metrics.Claims.WithLabelValues("all").Inc()
	return net, nil
}

// SetItemConfigs registers items or updates their minimum quantity.
func (s *Service) SetItemConfigs(ids []market.ItemID, cfgs []market.ItemConfig) error {
	cmd := setItemConfigsCmd{Items: ids, Configs: cfgs}
	return s.submit("set_item_configs", wal.RecordSetItemConfigs, cmd, func() ([]market.Event, error) {
		return s.market.SetItemConfigs(ids, cfgs)
	})
}

// SetMaxOrdersPerPrice changes the per-level order cap.
func (s *Service) SetMaxOrdersPerPrice(n uint32) error {
	cmd := setMaxOrdersCmd{Max: n}
	return s.submit("set_max_orders", wal.RecordSetMaxOrders, cmd, func() ([]market.Event, error) {
		return s.market.SetMaxOrdersPerPrice(n)
	})
}

// SetFees changes the dev and burn legs of the fee schedule.
func (s *Service) SetFees(devRecipient market.AccountID, devRate, burnRate uint32) error {
	cmd := setFeesCmd{DevRecipient: devRecipient, DevRate: devRate, BurnRate: burnRate}
	return s.submit("set_fees", wal.RecordSetFees, cmd, func() ([]market.Event, error) {
		return s.market.SetFees(devRecipient, devRate, burnRate)
	})
}

// RefreshRoyalty re-queries the royalty oracle and caches the resolved
// terms. The oracle is consulted before the journal write, so replay
// reuses the journaled terms instead of asking again.
func (s *Service) RefreshRoyalty() error {
	recipient, rate, err := s.market.QueryRoyalty()
	if err != nil {
		return err
	}
	cmd := setRoyaltyCmd{Recipient: recipient, Rate: rate}
	return s.submit("set_royalty", wal.RecordSetRoyalty, cmd, func() ([]market.Event, error) {
		return s.market.SetRoyalty(recipient, rate)
	})
}

/******************** Queries ********************/

func (s *Service) HighestBid(item market.ItemID) (uint64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.market.HighestBid(item)
}

func (s *Service) LowestAsk(item market.ItemID) (uint64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.market.LowestAsk(item)
}

func (s *Service) OrdersAtPrice(side book.Side, item market.ItemID, price uint64) []market.OrderView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.market.OrdersAtPrice(side, item, price)
}

func (s *Service) LevelNode(side book.Side, item market.ItemID, price uint64) (book.NodeInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.market.LevelNode(side, item, price)
}

func (s *Service) CoinsClaimable(ids []uint64, applyFees bool) []decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.market.CoinsClaimable(ids, applyFees)
}

func (s *Service) ItemsClaimable(ids []uint64, items []market.ItemID) ([]uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.market.ItemsClaimable(ids, items)
}

func (s *Service) MakerOf(id uint64) (market.AccountID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.market.MakerOf(id)
}

func (s *Service) ItemConfigOf(item market.ItemID) (market.ItemConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.market.ItemConfigOf(item)
}

func (s *Service) FeeSchedule() market.FeeConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.market.FeeSchedule()
}
