package book

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func treePrices(t *tree) []uint64 {
	var out []uint64
	t.ascend(func(l *priceLevel) bool {
		out = append(out, l.price)
		return true
	})
	return out
}

func TestTreeInsertFindRemove(t *testing.T) {
	tr := newTree()
	prices := []uint64{50, 10, 90, 30, 70, 20, 80, 40, 60, 100}
	for i, p := range prices {
		require.Nil(t, tr.find(p))
		tr.insert(newPriceLevel(p, uint64(i+1), 5))
	}
	require.Equal(t, len(prices), tr.size)

	for _, p := range prices {
		lvl := tr.find(p)
		require.NotNil(t, lvl)
		require.Equal(t, p, lvl.price)
	}
	require.Nil(t, tr.find(55))

	require.Equal(t, uint64(10), tr.min().price)
	require.Equal(t, uint64(100), tr.max().price)

	require.True(t, tr.remove(10))
	require.False(t, tr.remove(10))
	require.Nil(t, tr.find(10))
	require.Equal(t, uint64(20), tr.min().price)
	require.Equal(t, len(prices)-1, tr.size)
}

func TestTreeIterationOrder(t *testing.T) {
	tr := newTree()
	want := []uint64{5, 15, 25, 35, 45, 55, 65}
	for i := len(want) - 1; i >= 0; i-- {
		tr.insert(newPriceLevel(want[i], uint64(i+1), 1))
	}
	require.Equal(t, want, treePrices(tr))

	var desc []uint64
	tr.descend(func(l *priceLevel) bool {
		desc = append(desc, l.price)
		return true
	})
	for i, p := range desc {
		require.Equal(t, want[len(want)-1-i], p)
	}

	// Early stop is honored.
	var first []uint64
	tr.ascend(func(l *priceLevel) bool {
		first = append(first, l.price)
		return len(first) < 3
	})
	require.Equal(t, want[:3], first)
}

func TestTreeRandomAgainstReference(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	tr := newTree()
	ref := map[uint64]bool{}

	for i := 0; i < 5000; i++ {
		p := uint64(rng.Intn(400) + 1)
		if ref[p] {
			if rng.Intn(2) == 0 {
				require.True(t, tr.remove(p))
				delete(ref, p)
			} else {
				require.NotNil(t, tr.find(p))
			}
		} else {
			require.Nil(t, tr.find(p))
			tr.insert(newPriceLevel(p, uint64(i+1), 1))
			ref[p] = true
		}
	}

	want := make([]uint64, 0, len(ref))
	for p := range ref {
		want = append(want, p)
	}
	sort.Slice(want, func(i, j int) bool { return want[i] < want[j] })
	require.Equal(t, want, treePrices(tr))
	require.Equal(t, len(ref), tr.size)
	if len(want) > 0 {
		require.Equal(t, want[0], tr.min().price)
		require.Equal(t, want[len(want)-1], tr.max().price)
	}
}

func TestTreeCloneIsIndependent(t *testing.T) {
	tr := newTree()
	for i, p := range []uint64{10, 20, 30} {
		tr.insert(newPriceLevel(p, uint64(i+1), 7))
	}
	cp := tr.clone()
	require.Equal(t, treePrices(tr), treePrices(cp))

	// Structural and payload edits on the copy stay on the copy.
	require.True(t, cp.remove(20))
	cp.insert(newPriceLevel(40, 9, 1))
	cp.find(10).tombstone = 3
	cp.find(10).push(99, 1)

	require.Equal(t, []uint64{10, 20, 30}, treePrices(tr))
	require.Equal(t, []uint64{10, 30, 40}, treePrices(cp))
	require.Equal(t, uint32(0), tr.find(10).tombstone)
	require.Len(t, tr.find(10).orders(), 1)
}
