package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// RunSnapshotJob snapshots the market on an interval until ctx ends.
func (s *Service) RunSnapshotJob(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.SnapshotNow(); err != nil {
				s.log.Error("snapshot failed", zap.Error(err))
			}
		}
	}
}

// SnapshotNow persists the current state, then retires journal segments
// and acked outbox entries the snapshot made redundant.
func (s *Service) SnapshotNow() error {
	s.mu.RLock()
	seq := s.seq.Current()
	snap := s.market.Snapshot()
	s.mu.RUnlock()

	start := time.Now()
	if err := s.store.Save(seq, snap); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	s.metrics.SnapshotDuration.Observe(time.Since(start).Seconds())

	// Journal truncation shares segment files with Append; take the
	// write lock for the cleanup legs.
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.journal.TruncateBefore(seq); err != nil {
		return fmt.Errorf("truncate journal: %w", err)
	}
	if err := s.outbox.PruneAcked(seq); err != nil {
		return fmt.Errorf("prune outbox: %w", err)
	}
	s.log.Info("snapshot written", zap.Uint64("seq", seq),
		zap.Duration("took", time.Since(start)))
	return nil
}
