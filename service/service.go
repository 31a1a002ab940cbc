// Package service is the single write entry point into the engine. Every
// command runs under one write lock: apply to the market, append to the
// command journal, hand the committed events to the outbox. Queries run
// under the read lock against the same state.
package service

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"njord/domain/market"
	"njord/infra/metrics"
	"njord/infra/outbox"
	"njord/infra/sequence"
	"njord/infra/store"
	"njord/infra/wal"
)

type Service struct {
	mu  sync.RWMutex
	log *zap.Logger

	market  *market.Market
	journal *wal.WAL
	store   *store.Store
	outbox  *outbox.Outbox
	seq     *sequence.Sequencer
	metrics *metrics.Metrics
}

func New(m *market.Market, journal *wal.WAL, st *store.Store, ob *outbox.Outbox, mx *metrics.Metrics, log *zap.Logger) *Service {
	return &Service{
		log:     log,
		market:  m,
		journal: journal,
		store:   st,
		outbox:  ob,
		seq:     sequence.New(0),
		metrics: mx,
	}
}

// Envelope wraps one domain event for publication.
type Envelope struct {
	ID    string       `json:"id"`
	Seq   uint64       `json:"seq"`
	Index uint32       `json:"index"`
	Kind  string       `json:"kind"`
	Time  time.Time    `json:"time"`
	Data  market.Event `json:"data"`
}

// submit runs one command end to end. Only commands that applied cleanly
// reach the journal, so replay is deterministic: every journaled record
// succeeds again, and no oracle or ledger call happens twice.
func (s *Service) submit(name string, rt wal.RecordType, cmd any, apply func() ([]market.Event, error)) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	start := time.Now()

	events, err := apply()
	if err != nil {
		s.metrics.CommandErrors.Inc()
		return err
	}

	seq := s.seq.Next()
	if err := s.journal.Append(wal.NewRecord(rt, seq, payload)); err != nil {
		// State is ahead of the journal now; nothing sane to do but
		// scream. The next snapshot heals the gap.
		s.log.Error("journal append failed after apply",
			zap.String("command", name), zap.Uint64("seq", seq), zap.Error(err))
		return err
	}
	s.metrics.WALAppends.Inc()

	s.publish(seq, events)
	s.metrics.CommandDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	return nil
}

func (s *Service) publish(seq uint64, events []market.Event) {
	for i, ev := range events {
		data, err := json.Marshal(Envelope{
			ID:    uuid.NewString(),
			Seq:   seq,
			Index: uint32(i),
			Kind:  ev.Kind(),
			Time:  time.Now().UTC(),
			Data:  ev,
		})
		if err != nil {
			s.log.Error("event encode failed", zap.Uint64("seq", seq), zap.Error(err))
			continue
		}
		if err := s.outbox.Put(seq, uint32(i), data); err != nil {
			s.log.Error("outbox write failed, event lost",
				zap.Uint64("seq", seq), zap.Int("index", i), zap.Error(err))
		}
	}
}

func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.journal.Close()
}
