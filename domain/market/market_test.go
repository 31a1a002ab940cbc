package market_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"njord/domain/book"
	"njord/domain/ledger"
	"njord/domain/market"
)

type fixture struct {
	m       *market.Market
	coins   *ledger.Coins
	items   *ledger.Custody
	royalty *ledger.Royalty
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		coins:   ledger.NewCoins(),
		items:   ledger.NewCustody(),
		royalty: ledger.NewRoyalty(0, 0),
	}
	f.m = market.New(f.coins, f.items, f.royalty, zap.NewNop())
	return f
}

func (f *fixture) registerItem(t *testing.T, item market.ItemID, tick, minQty uint64) {
	t.Helper()
	_, err := f.m.SetItemConfigs(
		[]market.ItemID{item},
		[]market.ItemConfig{{Tick: tick, MinQuantity: minQty}},
	)
	require.NoError(t, err)
}

func (f *fixture) place(t *testing.T, caller market.AccountID, side book.Side, item market.ItemID, price uint64, qty uint32) market.OrderResult {
	t.Helper()
	res, _, err := f.m.LimitOrders(caller, []market.OrderRequest{
		{Side: side, Item: item, Price: price, Quantity: qty},
	})
	require.NoError(t, err)
	require.Len(t, res, 1)
	return res[0]
}

func coin(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestValidationErrors(t *testing.T) {
	f := newFixture(t)
	f.registerItem(t, 1, 5, 1)

	cases := []struct {
		name string
		req  market.OrderRequest
		want error
	}{
		{"zero quantity", market.OrderRequest{Side: book.Bid, Item: 1, Price: 5, Quantity: 0}, market.ErrNoQuantity},
		{"zero price", market.OrderRequest{Side: book.Bid, Item: 1, Price: 0, Quantity: 1}, market.ErrPriceZero},
		{"unregistered item", market.OrderRequest{Side: book.Bid, Item: 9, Price: 5, Quantity: 1}, market.ErrTokenDoesNotExist},
		{"off tick", market.OrderRequest{Side: book.Bid, Item: 1, Price: 7, Quantity: 1}, market.ErrPriceNotMultipleOfTick},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := f.m.LimitOrders(1, []market.OrderRequest{tc.req})
			require.ErrorIs(t, err, tc.want)
		})
	}
}

// Scenario: one bid at 100, one ask at 101; both rest.
func TestBestPricesAfterPlacement(t *testing.T) {
	f := newFixture(t)
	f.registerItem(t, 1, 1, 1)
	f.coins.Mint(1, coin(10000))
	f.items.Mint(2, 1, 10)

	f.place(t, 1, book.Bid, 1, 100, 10)
	f.place(t, 2, book.Ask, 1, 101, 10)

	bid, ok := f.m.HighestBid(1)
	require.True(t, ok)
	require.Equal(t, uint64(100), bid)
	ask, ok := f.m.LowestAsk(1)
	require.True(t, ok)
	require.Equal(t, uint64(101), ask)
}

// Scenario: buy 3 against a resting ask of 10 at 101.
func TestPartialTakeCreditsClaimable(t *testing.T) {
	f := newFixture(t)
	f.registerItem(t, 1, 1, 1)
	f.items.Mint(1, 1, 10)
	f.coins.Mint(2, coin(10000))

	askRes := f.place(t, 1, book.Ask, 1, 101, 10)
	askID := askRes.OrderID

	res := f.place(t, 2, book.Bid, 1, 101, 3)
	require.Equal(t, []book.Fill{{OrderID: askID, Price: 101, Quantity: 3}}, res.Fills)
	require.True(t, res.Cost.Equal(coin(303)))
	require.Zero(t, res.Residual)
	require.Zero(t, res.OrderID)

	claimable := f.m.CoinsClaimable([]uint64{askID}, false)
	require.True(t, claimable[0].Equal(coin(303)))

	views := f.m.OrdersAtPrice(book.Ask, 1, 101)
	require.Equal(t, []market.OrderView{{ID: askID, Maker: 1, Quantity: 7}}, views)

	// Buyer got the items, paid exactly the cost.
	require.Equal(t, uint64(3), f.items.Holding(2, 1))
	require.True(t, f.coins.Balance(2).Equal(coin(10000-303)))
}

// Scenario: four bids fill one segment; cancelling the second shifts the
// rest left, preserving id order 1, 3, 4.
func TestCancelMiddleOfSegment(t *testing.T) {
	f := newFixture(t)
	f.registerItem(t, 1, 1, 1)
	f.coins.Mint(1, coin(100000))

	for i := 0; i < 4; i++ {
		f.place(t, 1, book.Bid, 1, 100, 10)
	}

	balBefore := f.coins.Balance(1)
	_, err := f.m.CancelOrders(1, []uint64{2}, []market.CancelRef{
		{Side: book.Bid, Item: 1, Price: 100},
	})
	require.NoError(t, err)

	views := f.m.OrdersAtPrice(book.Bid, 1, 100)
	ids := make([]uint64, len(views))
	for i, v := range views {
		ids[i] = v.ID
	}
	require.Equal(t, []uint64{1, 3, 4}, ids)

	// The escrowed coins came back.
	require.True(t, f.coins.Balance(1).Equal(balBefore.Add(coin(1000))))
}

func TestCancelRequiresMakerAndPresence(t *testing.T) {
	f := newFixture(t)
	f.registerItem(t, 1, 1, 1)
	f.coins.Mint(1, coin(10000))
	f.place(t, 1, book.Bid, 1, 100, 5)

	_, err := f.m.CancelOrders(2, []uint64{1}, []market.CancelRef{{Side: book.Bid, Item: 1, Price: 100}})
	require.ErrorIs(t, err, market.ErrNotMaker)

	_, err = f.m.CancelOrders(1, []uint64{1}, []market.CancelRef{{Side: book.Bid, Item: 1, Price: 200}})
	require.ErrorIs(t, err, book.ErrPriceNotFound)

	_, err = f.m.CancelOrders(1, []uint64{99}, []market.CancelRef{{Side: book.Bid, Item: 1, Price: 100}})
	require.ErrorIs(t, err, book.ErrOrderNotFound)
}

func TestCancelAskRefundsItems(t *testing.T) {
	f := newFixture(t)
	f.registerItem(t, 1, 1, 1)
	f.items.Mint(1, 1, 10)

	f.place(t, 1, book.Ask, 1, 100, 10)
	require.Equal(t, uint64(0), f.items.Holding(1, 1))

	_, err := f.m.CancelOrders(1, []uint64{1}, []market.CancelRef{{Side: book.Ask, Item: 1, Price: 100}})
	require.NoError(t, err)
	require.Equal(t, uint64(10), f.items.Holding(1, 1))
	_, ok := f.m.LowestAsk(1)
	require.False(t, ok)
}

// Scenario: a full segment is consumed, the level disappears, and a new
// bid at the same price starts over with a fresh tombstone.
func TestConsumeThenReAdd(t *testing.T) {
	f := newFixture(t)
	f.registerItem(t, 1, 1, 1)
	f.coins.Mint(1, coin(100000))
	f.items.Mint(2, 1, 100)

	for i := 0; i < 4; i++ {
		f.place(t, 1, book.Bid, 1, 100, 10)
	}
	idBefore := f.m.NextOrderID()

	res := f.place(t, 2, book.Ask, 1, 100, 40)
	require.Len(t, res.Fills, 4)
	require.Zero(t, res.Residual)
	_, ok := f.m.HighestBid(1)
	require.False(t, ok)

	// A fully matched sell rests nothing, so it allocates no id.
	require.Equal(t, idBefore, f.m.NextOrderID())

	f.place(t, 1, book.Bid, 1, 100, 10)
	node, found := f.m.LevelNode(book.Bid, 1, 100)
	require.True(t, found)
	require.Zero(t, node.Tombstone)
	require.Equal(t, 1, node.Segments)
}

// Scenario: the 101st bid at a full price level walks one tick down.
func TestOverflowToNextTick(t *testing.T) {
	f := newFixture(t)
	f.registerItem(t, 1, 1, 1)
	f.coins.Mint(1, coin(1000000))

	reqs := make([]market.OrderRequest, 100)
	for i := range reqs {
		reqs[i] = market.OrderRequest{Side: book.Bid, Item: 1, Price: 100, Quantity: 1}
	}
	_, _, err := f.m.LimitOrders(1, reqs)
	require.NoError(t, err)
	require.Len(t, f.m.OrdersAtPrice(book.Bid, 1, 100), 100)

	res := f.place(t, 1, book.Bid, 1, 100, 1)
	require.Equal(t, uint64(99), res.RestingPrice)
	require.Len(t, f.m.OrdersAtPrice(book.Bid, 1, 100), 100)
	require.Len(t, f.m.OrdersAtPrice(book.Bid, 1, 99), 1)

	// Escrow was taken at the price the order landed on, so the refund
	// on cancel matches it exactly.
	balBefore := f.coins.Balance(1)
	_, err = f.m.CancelOrders(1, []uint64{res.OrderID}, []market.CancelRef{
		{Side: book.Bid, Item: 1, Price: 99},
	})
	require.NoError(t, err)
	require.True(t, f.coins.Balance(1).Equal(balBefore.Add(coin(99))))
}

// Scenario: a remainder below min_quantity is dropped, not rested.
func TestMinQuantityRejection(t *testing.T) {
	f := newFixture(t)
	f.registerItem(t, 1, 1, 20)
	f.items.Mint(1, 1, 10)

	res, events, err := f.m.LimitOrders(1, []market.OrderRequest{
		{Side: book.Ask, Item: 1, Price: 100, Quantity: 10},
	})
	require.NoError(t, err)
	require.True(t, res[0].Rejected)
	require.Equal(t, uint32(10), res[0].Residual)
	require.Zero(t, res[0].OrderID)

	_, ok := f.m.LowestAsk(1)
	require.False(t, ok)
	// Nothing was escrowed for the dropped remainder.
	require.Equal(t, uint64(10), f.items.Holding(1, 1))

	var rejected *market.OrderRejected
	for _, ev := range events {
		if r, ok := ev.(*market.OrderRejected); ok {
			rejected = r
		}
	}
	require.NotNil(t, rejected)
	require.Equal(t, uint32(10), rejected.Quantity)

	// The matched portion still stands when only the remainder is low.
	f.coins.Mint(2, coin(10000))
	_, _, err = f.m.LimitOrders(2, []market.OrderRequest{
		{Side: book.Bid, Item: 1, Price: 100, Quantity: 25},
	})
	require.NoError(t, err)
	res, _, err = f.m.LimitOrders(1, []market.OrderRequest{
		{Side: book.Ask, Item: 1, Price: 100, Quantity: 10},
	})
	require.NoError(t, err)
	require.Len(t, res[0].Fills, 1)
	require.False(t, res[0].Rejected)
}

func TestSellTakerPaysFeesImmediately(t *testing.T) {
	f := newFixture(t)
	f.registerItem(t, 1, 1, 1)
	_, err := f.m.SetFees(42, 100, 50) // dev 1%, burn 0.5%
	require.NoError(t, err)
	_, err = f.m.SetRoyalty(9, 250) // royalty 2.5%
	require.NoError(t, err)

	f.coins.Mint(1, coin(100000))
	f.items.Mint(2, 1, 100)
	f.place(t, 1, book.Bid, 1, 1000, 10)

	res := f.place(t, 2, book.Ask, 1, 1000, 10)
	require.True(t, res.Cost.Equal(coin(10000)))

	// Gross 10000: dev 100, burn 50, royalty 250, net 9600.
	require.True(t, f.coins.Balance(2).Equal(coin(9600)))
	require.True(t, f.coins.Balance(42).Equal(coin(100)))
	require.True(t, f.coins.Balance(9).Equal(coin(250)))
	require.True(t, f.coins.Burned().Equal(coin(50)))
}

func TestClaimCoinsUsesCurrentRates(t *testing.T) {
	f := newFixture(t)
	f.registerItem(t, 1, 1, 1)
	f.items.Mint(1, 1, 10)
	f.coins.Mint(2, coin(100000))

	f.place(t, 1, book.Ask, 1, 1000, 10)
	f.place(t, 2, book.Bid, 1, 1000, 10) // fills the ask; maker accrues 10000 gross

	// Rates change after the match; the claim pays at the new rates.
	_, err := f.m.SetFees(42, 100, 0)
	require.NoError(t, err)

	net := f.m.CoinsClaimable([]uint64{1}, true)
	require.True(t, net[0].Equal(coin(9900)))

	paid, _, err := f.m.ClaimCoins(1, []uint64{1})
	require.NoError(t, err)
	require.True(t, paid.Equal(coin(9900)))
	require.True(t, f.coins.Balance(1).Equal(coin(9900)))
	require.True(t, f.coins.Balance(42).Equal(coin(100)))

	// Claimable resets to zero and a second claim fails.
	_, _, err = f.m.ClaimCoins(1, []uint64{1})
	require.ErrorIs(t, err, market.ErrNothingToClaim)
}

func TestClaimItemsAndClaimAll(t *testing.T) {
	f := newFixture(t)
	f.registerItem(t, 1, 1, 1)
	f.coins.Mint(1, coin(100000))
	f.coins.Mint(2, coin(100000))
	f.items.Mint(1, 1, 50)
	f.items.Mint(2, 1, 50)

	f.place(t, 1, book.Bid, 1, 100, 10) // rests, id 1
	f.place(t, 2, book.Ask, 1, 100, 10) // fills bid 1; items claimable on id 1
	f.place(t, 1, book.Ask, 1, 200, 10) // rests, id 2
	f.place(t, 2, book.Bid, 1, 200, 10) // fills ask 2; coins claimable on id 2

	owed, err := f.m.ItemsClaimable([]uint64{1}, []market.ItemID{1})
	require.NoError(t, err)
	require.Equal(t, []uint64{10}, owed)

	// Claiming someone else's order fails and changes nothing.
	_, err = f.m.ClaimItems(2, []uint64{1}, []market.ItemID{1})
	require.ErrorIs(t, err, market.ErrNotMaker)

	// Both orders belong to account 1: coins from the filled ask, items
	// from the filled bid, in one command.
	net, _, err := f.m.ClaimAll(1, []uint64{2}, []uint64{1}, []market.ItemID{1})
	require.NoError(t, err)
	require.True(t, net.Equal(coin(2000)))
	require.Equal(t, uint64(50), f.items.Holding(1, 1)) // 50 - 10 sold + 10 claimed
	require.True(t, f.coins.Balance(1).Equal(coin(100000-1000+2000)))

	owed, err = f.m.ItemsClaimable([]uint64{1}, []market.ItemID{1})
	require.NoError(t, err)
	require.Equal(t, []uint64{0}, owed)
}

func TestClaimValidation(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.m.ClaimCoins(1, nil)
	require.ErrorIs(t, err, market.ErrNothingToClaim)

	_, err = f.m.ClaimItems(1, []uint64{1, 2}, []market.ItemID{1})
	require.ErrorIs(t, err, market.ErrLengthMismatch)

	ids := make([]uint64, market.MaxClaimOrders+1)
	_, _, err = f.m.ClaimCoins(1, ids)
	require.ErrorIs(t, err, market.ErrTooManyClaims)
}

func TestConservation(t *testing.T) {
	f := newFixture(t)
	f.registerItem(t, 1, 1, 1)
	f.coins.Mint(1, coin(100000))
	f.coins.Mint(3, coin(100000))
	f.items.Mint(2, 1, 100)

	f.place(t, 1, book.Bid, 1, 100, 10) // rests
	f.place(t, 3, book.Bid, 1, 95, 7)   // rests
	f.place(t, 2, book.Ask, 1, 100, 4)  // sells into bid 1
	f.place(t, 2, book.Ask, 1, 120, 20) // rests

	// Coin escrow covers exactly the resting bids; the sell-taker was
	// paid out at match time and no coin claims are pending.
	restingBids := coin(6*100 + 7*95)
	require.True(t, f.coins.Escrow().Equal(restingBids),
		"escrow %s, resting %s", f.coins.Escrow(), restingBids)

	// Item escrow covers the resting ask plus the undelivered fill.
	require.Equal(t, uint64(20+4), f.items.Escrow(1))

	// Sweep the claim and the item escrow shrinks to the resting ask.
	_, err := f.m.ClaimItems(1, []uint64{1}, []market.ItemID{1})
	require.NoError(t, err)
	require.Equal(t, uint64(20), f.items.Escrow(1))
}

func TestBatchAbortsAtomically(t *testing.T) {
	f := newFixture(t)
	f.registerItem(t, 1, 1, 1)
	f.coins.Mint(1, coin(10000))

	_, _, err := f.m.LimitOrders(1, []market.OrderRequest{
		{Side: book.Bid, Item: 1, Price: 100, Quantity: 5},
		{Side: book.Bid, Item: 1, Price: 3, Quantity: 0},
	})
	require.ErrorIs(t, err, market.ErrNoQuantity)

	_, ok := f.m.HighestBid(1)
	require.False(t, ok)
	require.True(t, f.coins.Balance(1).Equal(coin(10000)))
	require.Equal(t, uint64(1), f.m.NextOrderID())
}

func TestTooManyMatchesAborts(t *testing.T) {
	f := newFixture(t)
	f.registerItem(t, 1, 1, 1)
	f.items.Mint(1, 1, 1000)
	f.coins.Mint(2, coin(10000000))

	// 501 one-unit asks; the level cap walks them up from price 100.
	for batch := 0; batch < 6; batch++ {
		n := 100
		if batch == 5 {
			n = 1
		}
		reqs := make([]market.OrderRequest, n)
		for i := range reqs {
			reqs[i] = market.OrderRequest{Side: book.Ask, Item: 1, Price: 100, Quantity: 1}
		}
		_, _, err := f.m.LimitOrders(1, reqs)
		require.NoError(t, err)
	}

	_, _, err := f.m.LimitOrders(2, []market.OrderRequest{
		{Side: book.Bid, Item: 1, Price: 200, Quantity: 501},
	})
	require.ErrorIs(t, err, book.ErrTooManyMatches)

	// The abort left every ask on the book.
	total := 0
	for price := uint64(100); price <= 106; price++ {
		total += len(f.m.OrdersAtPrice(book.Ask, 1, price))
	}
	require.Equal(t, 501, total)
}

func TestAdminValidation(t *testing.T) {
	f := newFixture(t)
	f.registerItem(t, 1, 5, 1)

	// Tick is immutable once set; min quantity is not.
	_, err := f.m.SetItemConfigs([]market.ItemID{1}, []market.ItemConfig{{Tick: 10, MinQuantity: 1}})
	require.ErrorIs(t, err, market.ErrTickCannotBeChanged)
	_, err = f.m.SetItemConfigs([]market.ItemID{1}, []market.ItemConfig{{Tick: 5, MinQuantity: 30}})
	require.NoError(t, err)
	cfg, _ := f.m.ItemConfigOf(1)
	require.Equal(t, uint64(30), cfg.MinQuantity)

	_, err = f.m.SetMaxOrdersPerPrice(0)
	require.ErrorIs(t, err, market.ErrMaxOrdersNotMultiple)
	_, err = f.m.SetMaxOrdersPerPrice(50)
	require.ErrorIs(t, err, market.ErrMaxOrdersNotMultiple)
	_, err = f.m.SetMaxOrdersPerPrice(48)
	require.NoError(t, err)
	require.Equal(t, uint32(48), f.m.MaxOrdersPerPrice())

	_, err = f.m.SetFees(1, 256, 0)
	require.ErrorIs(t, err, market.ErrDevFeeTooHigh)
	_, err = f.m.SetFees(0, 10, 0)
	require.ErrorIs(t, err, market.ErrDevRecipientZero)
	_, err = f.m.SetFees(1, 255, 9750)
	require.ErrorIs(t, err, market.ErrBurnFeeTooHigh)
	_, err = f.m.SetFees(0, 0, 100)
	require.NoError(t, err)
}

func TestRoyaltyRefreshFromOracle(t *testing.T) {
	f := newFixture(t)
	f.royalty.Set(7, 300)

	recipient, rate, err := f.m.QueryRoyalty()
	require.NoError(t, err)
	require.Equal(t, market.AccountID(7), recipient)
	require.Equal(t, uint32(300), rate)

	_, err = f.m.SetRoyalty(recipient, rate)
	require.NoError(t, err)
	fees := f.m.FeeSchedule()
	require.Equal(t, market.AccountID(7), fees.RoyaltyRecipient)
	require.Equal(t, uint32(300), fees.RoyaltyRate)
}

func TestSnapshotRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.registerItem(t, 1, 1, 1)
	f.coins.Mint(1, coin(100000))
	f.items.Mint(2, 1, 100)

	f.place(t, 1, book.Bid, 1, 100, 10)
	f.place(t, 2, book.Ask, 1, 100, 4) // partial fill, claim pending
	f.place(t, 2, book.Ask, 1, 120, 5)

	snap := f.m.Snapshot()

	restored := market.New(f.coins, f.items, f.royalty, zap.NewNop())
	restored.Restore(snap)

	require.Equal(t, f.m.NextOrderID(), restored.NextOrderID())
	require.Equal(t, f.m.OrdersAtPrice(book.Bid, 1, 100), restored.OrdersAtPrice(book.Bid, 1, 100))
	require.Equal(t, f.m.OrdersAtPrice(book.Ask, 1, 120), restored.OrdersAtPrice(book.Ask, 1, 120))

	owedWant, err := f.m.ItemsClaimable([]uint64{1}, []market.ItemID{1})
	require.NoError(t, err)
	owedGot, err := restored.ItemsClaimable([]uint64{1}, []market.ItemID{1})
	require.NoError(t, err)
	require.Equal(t, owedWant, owedGot)
}
