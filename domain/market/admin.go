package market

import (
	"fmt"

	"njord/domain/book"
)

// SetItemConfigs registers items or updates their minimum quantity. A
// registered item's tick is immutable: any change, zeroing included, is
// rejected. The arrays are parallel and the batch is atomic.
func (m *Market) SetItemConfigs(ids []ItemID, cfgs []ItemConfig) ([]Event, error) {
	if len(ids) != len(cfgs) {
		return nil, ErrLengthMismatch
	}
	return m.run(func(t *tx) error {
		for i, id := range ids {
			cur := t.config(id)
			next := cfgs[i]
			if cur.Tick != 0 && next.Tick != cur.Tick {
				return fmt.Errorf("item %d: %w", id, ErrTickCannotBeChanged)
			}
			t.configs[id] = next
			t.emit(&ItemConfigured{
				Item:        id,
				Tick:        next.Tick,
				MinQuantity: next.MinQuantity,
			})
		}
		return nil
	})
}

// SetMaxOrdersPerPrice changes the per-level order cap. The cap must be a
// positive multiple of the segment width so occupancy arithmetic stays on
// segment boundaries. Levels already above a lowered cap keep their
// orders; they just stop accepting new ones.
func (m *Market) SetMaxOrdersPerPrice(n uint32) ([]Event, error) {
	if n == 0 || n%book.SlotsPerSegment != 0 {
		return nil, ErrMaxOrdersNotMultiple
	}
	return m.run(func(t *tx) error {
		t.maxOrders = &n
		t.emit(&MaxOrdersUpdated{Max: n})
		return nil
	})
}

// SetFees changes the dev and burn legs of the schedule. The dev rate is
// stored in eight bits; a positive dev rate needs a real recipient; dev
// plus burn may not exceed the fee basis. Royalty terms are managed by
// SetRoyalty and carry over unchanged.
func (m *Market) SetFees(devRecipient AccountID, devRate, burnRate uint32) ([]Event, error) {
	if devRate > 255 {
		return nil, ErrDevFeeTooHigh
	}
	if devRate > 0 && devRecipient == 0 {
		return nil, ErrDevRecipientZero
	}
	if devRate+burnRate > feeBasis {
		return nil, ErrBurnFeeTooHigh
	}
	return m.run(func(t *tx) error {
		next := t.feeConfig()
		next.DevRecipient = devRecipient
		next.DevRate = uint8(devRate)
		next.BurnRate = burnRate
		t.fees = &next
		t.emit(&FeesUpdated{
			DevRecipient: devRecipient,
			DevRate:      uint8(devRate),
			BurnRate:     burnRate,
		})
		return nil
	})
}

// QueryRoyalty asks the oracle for the collection royalty terms. Passing
// the fee basis as the gross makes the returned amount read directly as a
// rate in basis points. The caller journals the resolved pair before
// applying it with SetRoyalty, keeping replay free of oracle calls.
func (m *Market) QueryRoyalty() (AccountID, uint32, error) {
	recipient, amount, err := m.royalty.Info(0, feeBasisDec)
	if err != nil {
		return 0, 0, fmt.Errorf("royalty oracle: %w", err)
	}
	rate := amount.Floor().IntPart()
	if rate < 0 {
		rate = 0
	}
	if rate > feeBasis {
		rate = feeBasis
	}
	return recipient, uint32(rate), nil
}

// SetRoyalty caches resolved royalty terms into the fee schedule.
func (m *Market) SetRoyalty(recipient AccountID, rate uint32) ([]Event, error) {
	if rate > feeBasis {
		rate = feeBasis
	}
	return m.run(func(t *tx) error {
		next := t.feeConfig()
		next.RoyaltyRecipient = recipient
		next.RoyaltyRate = rate
		t.fees = &next
		t.emit(&RoyaltyUpdated{Recipient: recipient, Rate: rate})
		return nil
	})
}
