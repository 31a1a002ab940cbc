package market

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ClaimCoins sweeps the coin proceeds of the caller's filled sell orders.
// Fees come off the summed gross at the rates in force now, which makes a
// schedule change retroactive against unclaimed pools. Returns the net
// amount paid out.
func (m *Market) ClaimCoins(caller AccountID, ids []uint64) (decimal.Decimal, []Event, error) {
	net := decimal.Zero
	events, err := m.run(func(t *tx) error {
		paid, err := t.claimCoins(caller, ids)
		if err != nil {
			return err
		}
		net = paid
		return nil
	})
	if err != nil {
		return decimal.Zero, nil, err
	}
	return net, events, nil
}

func (t *tx) claimCoins(caller AccountID, ids []uint64) (decimal.Decimal, error) {
	if len(ids) == 0 {
		return decimal.Zero, ErrNothingToClaim
	}
	if len(ids) > MaxClaimOrders {
		return decimal.Zero, ErrTooManyClaims
	}

	gross := decimal.Zero
	for _, id := range ids {
		maker, ok := t.makerOf(id)
		if !ok || maker != caller {
			return decimal.Zero, fmt.Errorf("claim coins %d: %w", id, ErrNotMaker)
		}
		owed := t.owedCoins(id)
		if !owed.IsPositive() {
			return decimal.Zero, fmt.Errorf("claim coins %d: %w", id, ErrNothingToClaim)
		}
		gross = gross.Add(owed)
		t.coinsOwed[id] = decimal.Zero
	}

	fees := splitFees(gross, t.feeConfig())
	net := gross.Sub(fees.total())
	t.transfers.coinOut(caller, net)
	t.payFees(fees)
	t.emit(&CoinsClaimed{
		Maker:    caller,
		OrderIDs: ids,
		Gross:    gross,
		Fees:     fees.total(),
		Net:      net,
	})
	return net, nil
}

// ClaimItems sweeps bought items for the caller. ids and items are
// parallel: entry i zeroes items_claimable[ids[i]][items[i]]. Items carry
// no fee.
func (m *Market) ClaimItems(caller AccountID, ids []uint64, items []ItemID) ([]Event, error) {
	return m.run(func(t *tx) error {
		return t.claimItems(caller, ids, items)
	})
}

func (t *tx) claimItems(caller AccountID, ids []uint64, items []ItemID) error {
	if len(ids) != len(items) {
		return ErrLengthMismatch
	}
	if len(ids) == 0 {
		return ErrNothingToClaim
	}
	if len(ids) > MaxClaimOrders {
		return ErrTooManyClaims
	}

	quantities := make([]uint64, len(ids))
	for i, id := range ids {
		item := items[i]
		maker, ok := t.makerOf(id)
		if !ok || maker != caller {
			return fmt.Errorf("claim items %d: %w", id, ErrNotMaker)
		}
		owed := t.owedItems(id, item)
		if owed == 0 {
			return fmt.Errorf("claim items %d: %w", id, ErrNothingToClaim)
		}
		quantities[i] = owed
		t.setOwedItems(id, item, 0)
		t.transfers.itemOut(caller, item, owed)
	}

	t.emit(&ItemsClaimed{
		Maker:      caller,
		OrderIDs:   ids,
		Items:      items,
		Quantities: quantities,
	})
	return nil
}

// ClaimAll composes a coin claim and an item claim into one atomic
// command. Either part may be empty, but not both.
func (m *Market) ClaimAll(caller AccountID, coinIDs []uint64, itemOrderIDs []uint64, itemIDs []ItemID) (decimal.Decimal, []Event, error) {
	if len(coinIDs) == 0 && len(itemOrderIDs) == 0 {
		return decimal.Zero, nil, ErrNothingToClaim
	}
	if len(itemOrderIDs) != len(itemIDs) {
		return decimal.Zero, nil, ErrLengthMismatch
	}
	net := decimal.Zero
	events, err := m.run(func(t *tx) error {
		if len(coinIDs) > 0 {
			paid, err := t.claimCoins(caller, coinIDs)
			if err != nil {
				return err
			}
			net = paid
		}
		if len(itemOrderIDs) > 0 {
			if err := t.claimItems(caller, itemOrderIDs, itemIDs); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return decimal.Zero, nil, err
	}
	return net, events, nil
}
