package service_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"njord/domain/book"
	"njord/domain/ledger"
	"njord/domain/market"
	"njord/infra/metrics"
	"njord/infra/outbox"
	"njord/infra/store"
	"njord/infra/wal"
	"njord/service"
)

type env struct {
	svc     *service.Service
	coins   *ledger.Coins
	items   *ledger.Custody
	royalty *ledger.Royalty
	st      *store.Store
	ob      *outbox.Outbox

	walDir, storeDir, outboxDir string
}

func openEnv(t *testing.T, walDir, storeDir, outboxDir string, coins *ledger.Coins, items *ledger.Custody, royalty *ledger.Royalty) *env {
	t.Helper()
	log := zap.NewNop()

	journal, err := wal.Open(wal.Config{
		Dir:             walDir,
		SegmentSize:     1 << 20,
		SegmentDuration: time.Hour,
	}, log)
	require.NoError(t, err)

	st, err := store.Open(storeDir)
	require.NoError(t, err)
	ob, err := outbox.Open(outboxDir)
	require.NoError(t, err)

	m := market.New(coins, items, royalty, log)
	svc := service.New(m, journal, st, ob, metrics.New(prometheus.NewRegistry()), log)
	require.NoError(t, svc.Recover())

	return &env{
		svc: svc, coins: coins, items: items, royalty: royalty,
		st: st, ob: ob,
		walDir: walDir, storeDir: storeDir, outboxDir: outboxDir,
	}
}

func newEnv(t *testing.T) *env {
	t.Helper()
	coins := ledger.NewCoins()
	items := ledger.NewCustody()
	royalty := ledger.NewRoyalty(99, 0)
	return openEnv(t, t.TempDir(), t.TempDir(), t.TempDir(), coins, items, royalty)
}

func (e *env) close(t *testing.T) {
	t.Helper()
	require.NoError(t, e.svc.Close())
	require.NoError(t, e.st.Close())
	require.NoError(t, e.ob.Close())
}

// reopen simulates a restart over the same directories. Collaborator
// state carries over; journal replay must not move value again.
func (e *env) reopen(t *testing.T) *env {
	t.Helper()
	e.close(t)
	return openEnv(t, e.walDir, e.storeDir, e.outboxDir, e.coins, e.items, e.royalty)
}

func registerItem(t *testing.T, e *env, item market.ItemID, tick, minQty uint64) {
	t.Helper()
	require.NoError(t, e.svc.SetItemConfigs(
		[]market.ItemID{item},
		[]market.ItemConfig{{Tick: tick, MinQuantity: minQty}},
	))
}

func TestPlaceMatchClaimFlow(t *testing.T) {
	e := newEnv(t)
	defer e.close(t)
	registerItem(t, e, 1, 1, 1)

	seller, buyer := market.AccountID(10), market.AccountID(20)
	e.items.Mint(seller, 1, 10)
	e.coins.Mint(buyer, decimal.NewFromInt(10000))

	// Resting ask of 10 at 101.
	res, err := e.svc.LimitOrders(seller, []market.OrderRequest{
		{Side: book.Ask, Item: 1, Price: 101, Quantity: 10},
	})
	require.NoError(t, err)
	askID := res[0].OrderID
	require.NotZero(t, askID)
	require.Equal(t, uint64(0), e.items.Holding(seller, 1))

	// Buyer lifts 3 of them.
	res, err = e.svc.LimitOrders(buyer, []market.OrderRequest{
		{Side: book.Bid, Item: 1, Price: 101, Quantity: 3},
	})
	require.NoError(t, err)
	require.Equal(t, []book.Fill{{OrderID: askID, Price: 101, Quantity: 3}}, res[0].Fills)
	require.Equal(t, uint64(3), e.items.Holding(buyer, 1))
	require.True(t, e.coins.Balance(buyer).Equal(decimal.NewFromInt(10000-303)))

	claimable := e.svc.CoinsClaimable([]uint64{askID}, false)
	require.True(t, claimable[0].Equal(decimal.NewFromInt(303)))

	net, err := e.svc.ClaimCoins(seller, []uint64{askID})
	require.NoError(t, err)
	require.True(t, net.Equal(decimal.NewFromInt(303)))
	require.True(t, e.coins.Balance(seller).Equal(decimal.NewFromInt(303)))

	// The remaining 7 still rest.
	views := e.svc.OrdersAtPrice(book.Ask, 1, 101)
	require.Equal(t, []market.OrderView{{ID: askID, Maker: seller, Quantity: 7}}, views)
}

func TestRecoverReplaysJournal(t *testing.T) {
	e := newEnv(t)
	registerItem(t, e, 1, 1, 1)

	alice, bob := market.AccountID(1), market.AccountID(2)
	e.coins.Mint(alice, decimal.NewFromInt(100000))
	e.items.Mint(bob, 1, 100)

	_, err := e.svc.LimitOrders(alice, []market.OrderRequest{
		{Side: book.Bid, Item: 1, Price: 100, Quantity: 10},
		{Side: book.Bid, Item: 1, Price: 99, Quantity: 5},
	})
	require.NoError(t, err)
	_, err = e.svc.LimitOrders(bob, []market.OrderRequest{
		{Side: book.Ask, Item: 1, Price: 105, Quantity: 20},
	})
	require.NoError(t, err)

	escrowBefore := e.coins.Escrow()
	itemEscrowBefore := e.items.Escrow(1)

	e = e.reopen(t)
	defer e.close(t)

	// Book state is back and the ledgers were not charged twice.
	bid, ok := e.svc.HighestBid(1)
	require.True(t, ok)
	require.Equal(t, uint64(100), bid)
	ask, ok := e.svc.LowestAsk(1)
	require.True(t, ok)
	require.Equal(t, uint64(105), ask)
	require.True(t, e.coins.Escrow().Equal(escrowBefore))
	require.Equal(t, itemEscrowBefore, e.items.Escrow(1))

	maker, ok := e.svc.MakerOf(1)
	require.True(t, ok)
	require.Equal(t, alice, maker)

	// New orders keep the id sequence going instead of reusing ids.
	res, err := e.svc.LimitOrders(bob, []market.OrderRequest{
		{Side: book.Ask, Item: 1, Price: 110, Quantity: 5},
	})
	require.NoError(t, err)
	require.Equal(t, uint64(4), res[0].OrderID)
}

func TestSnapshotThenRecover(t *testing.T) {
	e := newEnv(t)
	registerItem(t, e, 1, 1, 1)

	alice := market.AccountID(1)
	e.coins.Mint(alice, decimal.NewFromInt(100000))
	_, err := e.svc.LimitOrders(alice, []market.OrderRequest{
		{Side: book.Bid, Item: 1, Price: 100, Quantity: 10},
	})
	require.NoError(t, err)

	require.NoError(t, e.svc.SnapshotNow())

	// Post-snapshot traffic lands in the journal tail.
	_, err = e.svc.LimitOrders(alice, []market.OrderRequest{
		{Side: book.Bid, Item: 1, Price: 98, Quantity: 4},
	})
	require.NoError(t, err)

	e = e.reopen(t)
	defer e.close(t)

	require.Equal(t, []market.OrderView{{ID: 1, Maker: alice, Quantity: 10}},
		e.svc.OrdersAtPrice(book.Bid, 1, 100))
	require.Equal(t, []market.OrderView{{ID: 2, Maker: alice, Quantity: 4}},
		e.svc.OrdersAtPrice(book.Bid, 1, 98))

	cfg, ok := e.svc.ItemConfigOf(1)
	require.True(t, ok)
	require.Equal(t, uint64(1), cfg.Tick)
}

func TestOutboxCarriesEnvelopes(t *testing.T) {
	e := newEnv(t)
	defer e.close(t)
	registerItem(t, e, 1, 1, 1)

	alice := market.AccountID(1)
	e.coins.Mint(alice, decimal.NewFromInt(10000))
	_, err := e.svc.LimitOrders(alice, []market.OrderRequest{
		{Side: book.Bid, Item: 1, Price: 100, Quantity: 5},
	})
	require.NoError(t, err)

	var kinds []string
	require.NoError(t, e.ob.ScanPending(func(entry *outbox.Entry) error {
		var raw struct {
			ID   string          `json:"id"`
			Kind string          `json:"kind"`
			Seq  uint64          `json:"seq"`
			Data json.RawMessage `json:"data"`
		}
		require.NoError(t, json.Unmarshal(entry.Payload, &raw))
		require.NotEmpty(t, raw.ID)
		require.NotZero(t, raw.Seq)
		kinds = append(kinds, raw.Kind)
		return nil
	}))
	require.Contains(t, kinds, "item_configured")
	require.Contains(t, kinds, "order_placed")
}

func TestFailedCommandLeavesNoTrace(t *testing.T) {
	e := newEnv(t)
	registerItem(t, e, 1, 1, 1)

	alice := market.AccountID(1)
	e.coins.Mint(alice, decimal.NewFromInt(1000))

	// Second order in the batch fails validation, so the whole batch
	// must vanish, journal included.
	_, err := e.svc.LimitOrders(alice, []market.OrderRequest{
		{Side: book.Bid, Item: 1, Price: 100, Quantity: 5},
		{Side: book.Bid, Item: 1, Price: 0, Quantity: 5},
	})
	require.ErrorIs(t, err, market.ErrPriceZero)
	_, ok := e.svc.HighestBid(1)
	require.False(t, ok)
	require.True(t, e.coins.Balance(alice).Equal(decimal.NewFromInt(1000)))

	e = e.reopen(t)
	defer e.close(t)
	_, ok = e.svc.HighestBid(1)
	require.False(t, ok)
}
