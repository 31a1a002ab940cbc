package wal

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig(dir string) Config {
	return Config{
		Dir:             dir,
		SegmentSize:     1 << 20,
		SegmentDuration: time.Hour,
		SyncOnAppend:    false,
	}
}

func TestAppendReplayRoundTrip(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(testConfig(dir), zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, w.Append(NewRecord(RecordLimitOrders, 1, []byte(`{"a":1}`))))
	require.NoError(t, w.Append(NewRecord(RecordCancelOrders, 2, []byte(`{"b":2}`))))
	require.NoError(t, w.Append(NewRecord(RecordClaimCoins, 3, nil)))
	require.NoError(t, w.Close())

	w, err = Open(testConfig(dir), zap.NewNop())
	require.NoError(t, err)
	defer w.Close()

	var got []*Record
	last, err := w.Replay(0, func(r *Record) error {
		got = append(got, r)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, uint64(3), last)
	require.Len(t, got, 3)
	require.Equal(t, RecordLimitOrders, got[0].Type)
	require.Equal(t, []byte(`{"a":1}`), got[0].Payload)
	require.Equal(t, uint64(2), got[1].Seq)
	require.Empty(t, got[2].Payload)
}

func TestReplaySkipsUpToSnapshot(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(testConfig(dir), zap.NewNop())
	require.NoError(t, err)
	defer w.Close()

	for seq := uint64(1); seq <= 5; seq++ {
		require.NoError(t, w.Append(NewRecord(RecordLimitOrders, seq, nil)))
	}

	var seqs []uint64
	last, err := w.Replay(3, func(r *Record) error {
		seqs = append(seqs, r.Seq)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, uint64(5), last)
	require.Equal(t, []uint64{4, 5}, seqs)
}

func TestReplayStopsAtTornTail(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(testConfig(dir), zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, w.Append(NewRecord(RecordLimitOrders, 1, []byte("keep"))))
	require.NoError(t, w.Append(NewRecord(RecordLimitOrders, 2, []byte("torn"))))
	require.NoError(t, w.Close())

	// Chop bytes off the tail to model a crash mid-write.
	path := segmentPath(dir, 0)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data[:len(data)-3], 0o644))

	w, err = Open(testConfig(dir), zap.NewNop())
	require.NoError(t, err)
	defer w.Close()

	var seqs []uint64
	last, err := w.Replay(0, func(r *Record) error {
		seqs = append(seqs, r.Seq)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, uint64(1), last)
	require.Equal(t, []uint64{1}, seqs)
}

func TestRotationAndTruncate(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	cfg.SegmentSize = 64 // force a rotation every couple of records
	w, err := Open(cfg, zap.NewNop())
	require.NoError(t, err)
	defer w.Close()

	for seq := uint64(1); seq <= 20; seq++ {
		require.NoError(t, w.Append(NewRecord(RecordLimitOrders, seq, []byte("payload"))))
	}
	indices, err := listSegments(dir)
	require.NoError(t, err)
	require.Greater(t, len(indices), 1)

	require.NoError(t, w.TruncateBefore(10))

	var seqs []uint64
	_, err = w.Replay(0, func(r *Record) error {
		seqs = append(seqs, r.Seq)
		return nil
	})
	require.NoError(t, err)
	// Everything after the cutoff must survive; whole segments at or
	// below it are gone.
	require.NotEmpty(t, seqs)
	require.Equal(t, uint64(20), seqs[len(seqs)-1])
	for i := 1; i < len(seqs); i++ {
		require.Equal(t, seqs[i-1]+1, seqs[i])
	}
}

func TestCorruptFrameDetected(t *testing.T) {
	rec := NewRecord(RecordSetFees, 7, []byte("fees"))
	buf := rec.encode()
	buf[headerSize] ^= 0xff // flip a payload bit

	_, _, err := decodeRecord(buf)
	require.ErrorIs(t, err, errBadCRC)
}
