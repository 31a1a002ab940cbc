package market

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"njord/domain/book"
)

// tx stages one command against copy-on-write overlays of the market
// state. Nothing is visible to readers, and no collaborator moves value,
// until the whole command has validated; commit then merges the overlays
// in one step, so a failing command leaves no trace.
type tx struct {
	m *Market

	books     map[ItemID]*book.Book
	configs   map[ItemID]ItemConfig
	makers    map[uint64]AccountID
	coinsOwed map[uint64]decimal.Decimal
	itemsOwed map[uint64]map[ItemID]uint64

	fees        *FeeConfig
	maxOrders   *uint32
	nextOrderID uint64

	events    []Event
	transfers transfers
}

func (m *Market) begin() *tx {
	return &tx{
		m:           m,
		books:       map[ItemID]*book.Book{},
		configs:     map[ItemID]ItemConfig{},
		makers:      map[uint64]AccountID{},
		coinsOwed:   map[uint64]decimal.Decimal{},
		itemsOwed:   map[uint64]map[ItemID]uint64{},
		nextOrderID: m.nextOrderID,
		transfers:   newTransfers(),
	}
}

// run executes one command: stage, settle with the collaborators, commit.
// Any error along the way discards the overlays untouched.
func (m *Market) run(op func(*tx) error) ([]Event, error) {
	t := m.begin()
	if err := op(t); err != nil {
		return nil, err
	}
	if err := t.transfers.flush(m); err != nil {
		return nil, err
	}
	t.commit()
	return t.events, nil
}

// book returns the transaction's private copy of an item's book, cloning
// the live one on first touch.
func (t *tx) book(item ItemID) *book.Book {
	if b, ok := t.books[item]; ok {
		return b
	}
	b, ok := t.m.books[item]
	if ok {
		b = b.Clone()
	} else {
		b = book.NewBook()
	}
	t.books[item] = b
	return b
}

func (t *tx) config(item ItemID) ItemConfig {
	if c, ok := t.configs[item]; ok {
		return c
	}
	return t.m.configs[item]
}

func (t *tx) makerOf(id uint64) (AccountID, bool) {
	if a, ok := t.makers[id]; ok {
		return a, true
	}
	a, ok := t.m.makers[id]
	return a, ok
}

func (t *tx) owedCoins(id uint64) decimal.Decimal {
	if v, ok := t.coinsOwed[id]; ok {
		return v
	}
	if v, ok := t.m.coinsOwed[id]; ok {
		return v
	}
	return decimal.Zero
}

func (t *tx) addOwedCoins(id uint64, amount decimal.Decimal) {
	t.coinsOwed[id] = t.owedCoins(id).Add(amount)
}

func (t *tx) owedItems(id uint64, item ItemID) uint64 {
	if inner, ok := t.itemsOwed[id]; ok {
		if v, ok := inner[item]; ok {
			return v
		}
	}
	if inner, ok := t.m.itemsOwed[id]; ok {
		return inner[item]
	}
	return 0
}

func (t *tx) setOwedItems(id uint64, item ItemID, v uint64) {
	inner, ok := t.itemsOwed[id]
	if !ok {
		inner = map[ItemID]uint64{}
		t.itemsOwed[id] = inner
	}
	inner[item] = v
}

func (t *tx) addOwedItems(id uint64, item ItemID, delta uint64) {
	t.setOwedItems(id, item, t.owedItems(id, item)+delta)
}

func (t *tx) feeConfig() FeeConfig {
	if t.fees != nil {
		return *t.fees
	}
	return t.m.fees
}

func (t *tx) maxPerPrice() uint32 {
	if t.maxOrders != nil {
		return *t.maxOrders
	}
	return t.m.maxOrdersPerPrice
}

func (t *tx) allocOrderID() (uint64, error) {
	if t.nextOrderID > book.MaxOrderID {
		return 0, ErrOrderIDExhausted
	}
	id := t.nextOrderID
	t.nextOrderID++
	return id, nil
}

func (t *tx) emit(ev Event) {
	t.events = append(t.events, ev)
}

// payFees routes a computed split to its recipients.
func (t *tx) payFees(f feeSplit) {
	cfg := t.feeConfig()
	if f.royalty.IsPositive() {
		t.transfers.coinOut(cfg.RoyaltyRecipient, f.royalty)
	}
	if f.dev.IsPositive() {
		t.transfers.coinOut(cfg.DevRecipient, f.dev)
	}
	if f.burn.IsPositive() {
		t.transfers.burn(f.burn)
	}
}

func (t *tx) commit() {
	m := t.m
	for item, b := range t.books {
		if b.Empty() {
			delete(m.books, item)
		} else {
			m.books[item] = b
		}
	}
	for item, cfg := range t.configs {
		m.configs[item] = cfg
	}
	for id, a := range t.makers {
		m.makers[id] = a
	}
	for id, v := range t.coinsOwed {
		if v.IsZero() {
			delete(m.coinsOwed, id)
		} else {
			m.coinsOwed[id] = v
		}
	}
	for id, inner := range t.itemsOwed {
		dst, ok := m.itemsOwed[id]
		if !ok {
			dst = map[ItemID]uint64{}
			m.itemsOwed[id] = dst
		}
		for item, v := range inner {
			if v == 0 {
				delete(dst, item)
			} else {
				dst[item] = v
			}
		}
		if len(dst) == 0 {
			delete(m.itemsOwed, id)
		}
	}
	if t.fees != nil {
		m.fees = *t.fees
	}
	if t.maxOrders != nil {
		m.maxOrdersPerPrice = *t.maxOrders
	}
	m.nextOrderID = t.nextOrderID
}

// transfers accumulates the net value movement of a command per account.
// Aggregating first keeps collaborator calls to a handful per command and
// makes the settlement order deterministic.
type transfers struct {
	coinsIn  map[AccountID]decimal.Decimal
	coinsOut map[AccountID]decimal.Decimal
	burned   decimal.Decimal
	itemsIn  map[AccountID]map[ItemID]uint64
	itemsOut map[AccountID]map[ItemID]uint64
}

func newTransfers() transfers {
	return transfers{
		coinsIn:  map[AccountID]decimal.Decimal{},
		coinsOut: map[AccountID]decimal.Decimal{},
		burned:   decimal.Zero,
		itemsIn:  map[AccountID]map[ItemID]uint64{},
		itemsOut: map[AccountID]map[ItemID]uint64{},
	}
}

func (tr *transfers) coinIn(a AccountID, amount decimal.Decimal) {
	if !amount.IsPositive() {
		return
	}
	cur, ok := tr.coinsIn[a]
	if !ok {
		cur = decimal.Zero
	}
	tr.coinsIn[a] = cur.Add(amount)
}

func (tr *transfers) coinOut(a AccountID, amount decimal.Decimal) {
	if !amount.IsPositive() {
		return
	}
	cur, ok := tr.coinsOut[a]
	if !ok {
		cur = decimal.Zero
	}
	tr.coinsOut[a] = cur.Add(amount)
}

func (tr *transfers) burn(amount decimal.Decimal) {
	if amount.IsPositive() {
		tr.burned = tr.burned.Add(amount)
	}
}

func (tr *transfers) itemIn(a AccountID, item ItemID, qty uint64) {
	if qty == 0 {
		return
	}
	inner, ok := tr.itemsIn[a]
	if !ok {
		inner = map[ItemID]uint64{}
		tr.itemsIn[a] = inner
	}
	inner[item] += qty
}

func (tr *transfers) itemOut(a AccountID, item ItemID, qty uint64) {
	if qty == 0 {
		return
	}
	inner, ok := tr.itemsOut[a]
	if !ok {
		inner = map[ItemID]uint64{}
		tr.itemsOut[a] = inner
	}
	inner[item] += qty
}

// flush settles the accumulated movement against the collaborators:
// inbound legs first so escrow is funded before anything pays out. A
// failed inbound leg is compensated by returning what earlier legs took;
// outbound legs draw on escrow that conservation guarantees, so an error
// there means a broken collaborator and surfaces as-is.
func (tr *transfers) flush(m *Market) error {
	if m.replaying {
		return nil
	}

	var tookCoins []AccountID
	for _, a := range sortedAccounts(tr.coinsIn) {
		if err := m.coins.TransferToCore(a, tr.coinsIn[a]); err != nil {
			tr.compensate(m, tookCoins, nil)
			return fmt.Errorf("collect coins from %d: %w", a, err)
		}
		tookCoins = append(tookCoins, a)
	}

	var tookItems []AccountID
	for _, a := range sortedAccounts(tr.itemsIn) {
		items, amounts := flattenItems(tr.itemsIn[a])
		if err := m.items.TransferBatchToCore(a, items, amounts); err != nil {
			tr.compensate(m, tookCoins, tookItems)
			return fmt.Errorf("collect items from %d: %w", a, err)
		}
		tookItems = append(tookItems, a)
	}

	for _, a := range sortedAccounts(tr.coinsOut) {
		if err := m.coins.TransferFromCore(a, tr.coinsOut[a]); err != nil {
			return fmt.Errorf("pay coins to %d: %w", a, err)
		}
	}
	for _, a := range sortedAccounts(tr.itemsOut) {
		items, amounts := flattenItems(tr.itemsOut[a])
		if err := m.items.TransferBatchFromCore(a, items, amounts); err != nil {
			return fmt.Errorf("deliver items to %d: %w", a, err)
		}
	}
	if tr.burned.IsPositive() {
		if err := m.coins.Burn(tr.burned); err != nil {
			return fmt.Errorf("burn coins: %w", err)
		}
	}
	return nil
}

func (tr *transfers) compensate(m *Market, coins, items []AccountID) {
	for _, a := range coins {
		if err := m.coins.TransferFromCore(a, tr.coinsIn[a]); err != nil {
			m.log.Error("compensating coin refund failed",
				zap.Uint64("account", uint64(a)), zap.Error(err))
		}
	}
	for _, a := range items {
		ids, amounts := flattenItems(tr.itemsIn[a])
		if err := m.items.TransferBatchFromCore(a, ids, amounts); err != nil {
			m.log.Error("compensating item refund failed",
				zap.Uint64("account", uint64(a)), zap.Error(err))
		}
	}
}

func sortedAccounts[V any](m map[AccountID]V) []AccountID {
	out := make([]AccountID, 0, len(m))
	for a := range m {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func flattenItems(m map[ItemID]uint64) ([]ItemID, []uint64) {
	items := make([]ItemID, 0, len(m))
	for item := range m {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i] < items[j] })
	amounts := make([]uint64, len(items))
	for i, item := range items {
		amounts[i] = m[item]
	}
	return items, amounts
}
