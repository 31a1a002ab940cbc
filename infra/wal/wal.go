// Package wal is the engine's command journal: CRC-framed records in
// size- and age-rotated segment files. Startup replays the journal on
// top of the last snapshot; segments wholly below the snapshot sequence
// are truncated afterwards.
package wal

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
)

type Config struct {
	Dir             string
	SegmentSize     int64
	SegmentDuration time.Duration

	// SyncOnAppend fsyncs every append. Off, durability is whatever the
	// OS page cache gives; the snapshot job still bounds the loss window.
	SyncOnAppend bool
}

type WAL struct {
	cfg Config
	log *zap.Logger

	current      *segment
	nextIndex    int
	lastRotation time.Time
}

// Open starts a fresh segment after any existing ones. The previous tail
// is never appended to again, so a torn frame can only ever sit at the
// end of a closed segment.
func Open(cfg Config, log *zap.Logger) (*WAL, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, err
	}
	existing, err := listSegments(cfg.Dir)
	if err != nil {
		return nil, err
	}
	next := 0
	if len(existing) > 0 {
		next = existing[len(existing)-1] + 1
	}
	seg, err := openSegment(cfg.Dir, next)
	if err != nil {
		return nil, err
	}
	return &WAL{
		cfg:          cfg,
		log:          log,
		current:      seg,
		nextIndex:    next + 1,
		lastRotation: time.Now(),
	}, nil
}

// Append journals one record. The record is durable when Append returns
// if SyncOnAppend is set.
func (w *WAL) Append(r *Record) error {
	if err := w.current.append(r.encode()); err != nil {
		return fmt.Errorf("wal append: %w", err)
	}
	if w.cfg.SyncOnAppend {
		if err := w.current.sync(); err != nil {
			return fmt.Errorf("wal sync: %w", err)
		}
	}
	if w.shouldRotate() {
		return w.rotate()
	}
	return nil
}

func (w *WAL) shouldRotate() bool {
	return w.current.offset >= w.cfg.SegmentSize ||
		time.Since(w.lastRotation) >= w.cfg.SegmentDuration
}

func (w *WAL) rotate() error {
	if err := w.current.sync(); err != nil {
		return err
	}
	_ = w.current.close()
	seg, err := openSegment(w.cfg.Dir, w.nextIndex)
	if err != nil {
		return err
	}
	w.nextIndex++
	w.current = seg
	w.lastRotation = time.Now()
	return nil
}

// Replay walks every record with seq > after in journal order and
// returns the last sequence seen. A corrupt or truncated frame ends its
// segment: it is the torn tail of a write interrupted by a crash.
func (w *WAL) Replay(after uint64, fn func(*Record) error) (uint64, error) {
	indices, err := listSegments(w.cfg.Dir)
	if err != nil {
		return 0, err
	}
	last := after
	for _, idx := range indices {
		data, err := os.ReadFile(segmentPath(w.cfg.Dir, idx))
		if err != nil {
			return 0, err
		}
		for len(data) > 0 {
			rec, n, err := decodeRecord(data)
			if err != nil {
				w.log.Warn("wal segment ends in torn frame",
					zap.Int("segment", idx), zap.Int("bytes_left", len(data)))
				break
			}
			data = data[n:]
			if rec.Seq <= after {
				continue
			}
			if err := fn(rec); err != nil {
				return 0, fmt.Errorf("wal replay seq %d: %w", rec.Seq, err)
			}
			if rec.Seq > last {
				last = rec.Seq
			}
		}
	}
	return last, nil
}

// TruncateBefore removes closed segments whose every record has
// seq <= upTo. The current segment is never removed.
func (w *WAL) TruncateBefore(upTo uint64) error {
	indices, err := listSegments(w.cfg.Dir)
	if err != nil {
		return err
	}
	for _, idx := range indices {
		path := segmentPath(w.cfg.Dir, idx)
		if path == w.current.path {
			continue
		}
		max, ok := maxSeqIn(path)
		if !ok || max > upTo {
			continue
		}
		if err := os.Remove(path); err != nil {
			return err
		}
		w.log.Info("wal segment truncated", zap.Int("segment", idx), zap.Uint64("max_seq", max))
	}
	return nil
}

// maxSeqIn scans one segment for its highest sequence. ok is false for
// an empty segment, which is left alone.
func maxSeqIn(path string) (uint64, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	var max uint64
	seen := false
	for len(data) > 0 {
		rec, n, err := decodeRecord(data)
		if err != nil {
			break
		}
		data = data[n:]
		if rec.Seq > max {
			max = rec.Seq
		}
		seen = true
	}
	return max, seen
}

func (w *WAL) Close() error {
	if err := w.current.sync(); err != nil {
		return err
	}
	return w.current.close()
}
