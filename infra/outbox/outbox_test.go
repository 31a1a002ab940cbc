package outbox

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func collectPending(t *testing.T, o *Outbox) []Entry {
	t.Helper()
	var out []Entry
	require.NoError(t, o.ScanPending(func(e *Entry) error {
		out = append(out, *e)
		return nil
	}))
	return out
}

func TestPutScanOrder(t *testing.T) {
	o, err := Open(t.TempDir())
	require.NoError(t, err)
	defer o.Close()

	require.NoError(t, o.Put(2, 0, []byte("c")))
	require.NoError(t, o.Put(1, 1, []byte("b")))
	require.NoError(t, o.Put(1, 0, []byte("a")))

	got := collectPending(t, o)
	require.Len(t, got, 3)
	require.Equal(t, []byte("a"), got[0].Payload)
	require.Equal(t, []byte("b"), got[1].Payload)
	require.Equal(t, []byte("c"), got[2].Payload)
	require.Equal(t, uint64(1), got[0].Seq)
	require.Equal(t, uint32(1), got[1].Index)
	require.Equal(t, StateNew, got[0].State)
}

func TestStateTransitions(t *testing.T) {
	o, err := Open(t.TempDir())
	require.NoError(t, err)
	defer o.Close()

	require.NoError(t, o.Put(1, 0, []byte("ev")))
	require.NoError(t, o.MarkSent(1, 0))

	got := collectPending(t, o)
	require.Len(t, got, 1)
	require.Equal(t, StateSent, got[0].State)
	require.Equal(t, uint32(1), got[0].Retries)

	// A second send attempt keeps counting.
	require.NoError(t, o.MarkSent(1, 0))
	got = collectPending(t, o)
	require.Equal(t, uint32(2), got[0].Retries)

	require.NoError(t, o.MarkAcked(1, 0))
	require.Empty(t, collectPending(t, o))
}

func TestPruneAcked(t *testing.T) {
	o, err := Open(t.TempDir())
	require.NoError(t, err)
	defer o.Close()

	require.NoError(t, o.Put(1, 0, []byte("old")))
	require.NoError(t, o.Put(2, 0, []byte("stuck")))
	require.NoError(t, o.Put(3, 0, []byte("acked-late")))
	require.NoError(t, o.MarkAcked(1, 0))
	require.NoError(t, o.MarkAcked(3, 0))

	// Only ACKED entries at or below the cutoff go away; the un-acked
	// entry at seq 2 and the acked one above the cutoff both stay.
	require.NoError(t, o.PruneAcked(2))

	pending := collectPending(t, o)
	require.Len(t, pending, 1)
	require.Equal(t, uint64(2), pending[0].Seq)

	require.NoError(t, o.PruneAcked(3))
	pending = collectPending(t, o)
	require.Len(t, pending, 1)
}
