package service

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"njord/infra/wal"
)

// Recover rebuilds state before the service accepts traffic: load the
// last snapshot, replay the journal tail on top, resume the sequence.
// Collaborator transfers are suppressed during replay; the movements the
// journal describes already happened. Events are not re-published
// either, the outbox survived on its own.
func (s *Service) Recover() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, snapSeq, err := s.store.Load()
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	if snap != nil {
		s.market.Restore(snap)
		s.log.Info("snapshot restored", zap.Uint64("seq", snapSeq))
	}

	s.market.BeginReplay()
	defer s.market.EndReplay()

	replayed := 0
	last, err := s.journal.Replay(snapSeq, func(rec *wal.Record) error {
		if err := s.applyRecord(rec); err != nil {
			// Journaled commands applied cleanly once; failing now
			// means the journal and snapshot disagree.
			return err
		}
		replayed++
		return nil
	})
	if err != nil {
		return fmt.Errorf("replay journal: %w", err)
	}
	s.seq.Reset(last)

	s.log.Info("recovery complete",
		zap.Uint64("snapshot_seq", snapSeq),
		zap.Uint64("last_seq", last),
		zap.Int("replayed", replayed))
	return nil
}

func (s *Service) applyRecord(rec *wal.Record) error {
	var err error
	switch rec.Type {
	case wal.RecordLimitOrders:
		var cmd limitOrdersCmd
		if err = json.Unmarshal(rec.Payload, &cmd); err == nil {
			_, _, err = s.market.LimitOrders(cmd.Caller, cmd.Orders)
		}
	case wal.RecordCancelOrders:
		var cmd cancelOrdersCmd
		if err = json.Unmarshal(rec.Payload, &cmd); err == nil {
			_, err = s.market.CancelOrders(cmd.Caller, cmd.IDs, cmd.Refs)
		}
	case wal.RecordClaimCoins:
		var cmd claimCoinsCmd
		if err = json.Unmarshal(rec.Payload, &cmd); err == nil {
			_, _, err = s.market.ClaimCoins(cmd.Caller, cmd.IDs)
		}
	case wal.RecordClaimItems:
		var cmd claimItemsCmd
		if err = json.Unmarshal(rec.Payload, &cmd); err == nil {
			_, err = s.market.ClaimItems(cmd.Caller, cmd.IDs, cmd.Items)
		}
	case wal.RecordClaimAll:
		var cmd claimAllCmd
		if err = json.Unmarshal(rec.Payload, &cmd); err == nil {
			_, _, err = s.market.ClaimAll(cmd.Caller, cmd.CoinIDs, cmd.ItemOrderIDs, cmd.ItemIDs)
		}
	case wal.RecordSetItemConfigs:
		var cmd setItemConfigsCmd
		if err = json.Unmarshal(rec.Payload, &cmd); err == nil {
			_, err = s.market.SetItemConfigs(cmd.Items, cmd.Configs)
		}
	case wal.RecordSetMaxOrders:
		var cmd setMaxOrdersCmd
		if err = json.Unmarshal(rec.Payload, &cmd); err == nil {
			_, err = s.market.SetMaxOrdersPerPrice(cmd.Max)
		}
	case wal.RecordSetFees:
		var cmd setFeesCmd
		if err = json.Unmarshal(rec.Payload, &cmd); err == nil {
			_, err = s.market.SetFees(cmd.DevRecipient, cmd.DevRate, cmd.BurnRate)
		}
	case wal.RecordSetRoyalty:
		var cmd setRoyaltyCmd
		if err = json.Unmarshal(rec.Payload, &cmd); err == nil {
			_, err = s.market.SetRoyalty(cmd.Recipient, cmd.Rate)
		}
	default:
		err = fmt.Errorf("unknown record type %d", rec.Type)
	}
	if err != nil {
		return fmt.Errorf("apply record type %d seq %d: %w", rec.Type, rec.Seq, err)
	}
	return nil
}
