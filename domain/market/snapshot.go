package market

import (
	"sort"

	"github.com/shopspring/decimal"

	"njord/domain/book"
)

// Snapshot is the complete persistable state of a market, with every
// collection in a deterministic order so identical states serialize to
// identical bytes.
type Snapshot struct {
	NextOrderID       uint64            `json:"next_order_id"`
	MaxOrdersPerPrice uint32            `json:"max_orders_per_price"`
	Fees              FeeConfig         `json:"fees"`
	Items             []ItemConfigEntry `json:"items"`
	Books             []BookSnapshot    `json:"books"`
	Makers            []MakerEntry      `json:"makers"`
	CoinsOwed         []CoinsOwedEntry  `json:"coins_owed"`
	ItemsOwed         []ItemsOwedEntry  `json:"items_owed"`
}

type ItemConfigEntry struct {
	Item   ItemID     `json:"item_id"`
	Config ItemConfig `json:"config"`
}

type BookSnapshot struct {
	Item ItemID               `json:"item_id"`
	Bids []book.LevelSnapshot `json:"bids"`
	Asks []book.LevelSnapshot `json:"asks"`
}

type MakerEntry struct {
	OrderID uint64    `json:"order_id"`
	Maker   AccountID `json:"maker"`
}

type CoinsOwedEntry struct {
	OrderID uint64          `json:"order_id"`
	Amount  decimal.Decimal `json:"amount"`
}

type ItemsOwedEntry struct {
	OrderID  uint64 `json:"order_id"`
	Item     ItemID `json:"item_id"`
	Quantity uint64 `json:"quantity"`
}

// Snapshot captures the current state. The caller must hold whatever lock
// serializes commands; the result shares no memory with the market.
func (m *Market) Snapshot() *Snapshot {
	s := &Snapshot{
		NextOrderID:       m.nextOrderID,
		MaxOrdersPerPrice: m.maxOrdersPerPrice,
		Fees:              m.fees,
	}

	for item, cfg := range m.configs {
		s.Items = append(s.Items, ItemConfigEntry{Item: item, Config: cfg})
	}
	sort.Slice(s.Items, func(i, j int) bool { return s.Items[i].Item < s.Items[j].Item })

	for item, bk := range m.books {
		s.Books = append(s.Books, BookSnapshot{
			Item: item,
			Bids: bk.Levels(book.Bid),
			Asks: bk.Levels(book.Ask),
		})
	}
	sort.Slice(s.Books, func(i, j int) bool { return s.Books[i].Item < s.Books[j].Item })

	for id, maker := range m.makers {
		s.Makers = append(s.Makers, MakerEntry{OrderID: id, Maker: maker})
	}
	sort.Slice(s.Makers, func(i, j int) bool { return s.Makers[i].OrderID < s.Makers[j].OrderID })

	for id, amount := range m.coinsOwed {
		s.CoinsOwed = append(s.CoinsOwed, CoinsOwedEntry{OrderID: id, Amount: amount})
	}
	sort.Slice(s.CoinsOwed, func(i, j int) bool { return s.CoinsOwed[i].OrderID < s.CoinsOwed[j].OrderID })

	for id, inner := range m.itemsOwed {
		for item, qty := range inner {
			s.ItemsOwed = append(s.ItemsOwed, ItemsOwedEntry{OrderID: id, Item: item, Quantity: qty})
		}
	}
	sort.Slice(s.ItemsOwed, func(i, j int) bool {
		a, b := s.ItemsOwed[i], s.ItemsOwed[j]
		if a.OrderID != b.OrderID {
			return a.OrderID < b.OrderID
		}
		return a.Item < b.Item
	})

	return s
}

// Restore replaces the market state with a snapshot's contents.
func (m *Market) Restore(s *Snapshot) {
	m.nextOrderID = s.NextOrderID
	if m.nextOrderID == 0 {
		m.nextOrderID = 1
	}
	m.maxOrdersPerPrice = s.MaxOrdersPerPrice
	if m.maxOrdersPerPrice == 0 {
		m.maxOrdersPerPrice = DefaultMaxOrdersPerPrice
	}
	m.fees = s.Fees

	m.configs = make(map[ItemID]ItemConfig, len(s.Items))
	for _, e := range s.Items {
		m.configs[e.Item] = e.Config
	}

	m.books = make(map[ItemID]*book.Book, len(s.Books))
	for _, bs := range s.Books {
		bk := book.NewBook()
		for _, lvl := range bs.Bids {
			bk.RestoreLevel(book.Bid, lvl)
		}
		for _, lvl := range bs.Asks {
			bk.RestoreLevel(book.Ask, lvl)
		}
		if !bk.Empty() {
			m.books[bs.Item] = bk
		}
	}

	m.makers = make(map[uint64]AccountID, len(s.Makers))
	for _, e := range s.Makers {
		m.makers[e.OrderID] = e.Maker
	}

	m.coinsOwed = make(map[uint64]decimal.Decimal, len(s.CoinsOwed))
	for _, e := range s.CoinsOwed {
		if !e.Amount.IsZero() {
			m.coinsOwed[e.OrderID] = e.Amount
		}
	}

	m.itemsOwed = make(map[uint64]map[ItemID]uint64, len(s.ItemsOwed))
	for _, e := range s.ItemsOwed {
		if e.Quantity == 0 {
			continue
		}
		inner, ok := m.itemsOwed[e.OrderID]
		if !ok {
			inner = map[ItemID]uint64{}
			m.itemsOwed[e.OrderID] = inner
		}
		inner[e.Item] = e.Quantity
	}
}
