package book

const (
	// SlotsPerSegment is the number of packed order slots in one segment.
	SlotsPerSegment = 4

	orderIDBits = 40

	// MaxOrderID is the largest order id a slot can hold (40 bits).
	MaxOrderID uint64 = 1<<orderIDBits - 1
	// MaxQuantity is the largest remaining quantity a slot can hold (24 bits).
	MaxQuantity uint32 = 1<<24 - 1
)

// slot packs one resting order into a single word: low 40 bits carry the
// order id, high 24 bits the remaining quantity. A zero word is an empty
// slot; order ids start at 1 so no live order encodes to zero.
type slot uint64

func packSlot(orderID uint64, qty uint32) slot {
	return slot(uint64(qty)<<orderIDBits | orderID)
}

func (s slot) orderID() uint64 { return uint64(s) & MaxOrderID }

func (s slot) quantity() uint32 { return uint32(uint64(s) >> orderIDBits) }

func (s slot) empty() bool { return s == 0 }

// segment is a fixed block of slots filled left to right with no gaps.
type segment [SlotsPerSegment]slot

// count returns the number of occupied slots. Valid only while the segment
// is dense; during matching, holes are compacted before count is reused.
func (sg *segment) count() int {
	n := 0
	for _, s := range sg {
		if s.empty() {
			break
		}
		n++
	}
	return n
}

// lastOrderID returns the id in the rightmost occupied slot, or 0 when the
// segment is empty.
func (sg *segment) lastOrderID() uint64 {
	for i := SlotsPerSegment - 1; i >= 0; i-- {
		if !sg[i].empty() {
			return sg[i].orderID()
		}
	}
	return 0
}

// compact shifts occupied slots to the front, preserving their order.
func (sg *segment) compact() {
	out := 0
	for i := 0; i < SlotsPerSegment; i++ {
		if sg[i].empty() {
			continue
		}
		sg[out] = sg[i]
		out++
	}
	for ; out < SlotsPerSegment; out++ {
		sg[out] = 0
	}
}

// priceLevel stores the resting orders of one price as an array of packed
// segments. New orders append at the tail. Fully consumed leading segments
// are not rewritten; the tombstone offset skips over them, so the active
// window is segments[tombstone:].
type priceLevel struct {
	price     uint64
	tombstone uint32
	segments  []segment
}

func newPriceLevel(price, orderID uint64, qty uint32) *priceLevel {
	return &priceLevel{price: price, segments: []segment{{packSlot(orderID, qty)}}}
}

func (l *priceLevel) activeSegments() int { return len(l.segments) - int(l.tombstone) }

// full reports whether the level can take no more orders under the
// per-price cap. A level at the segment cap stays open while the final
// segment has trailing free slots.
func (l *priceLevel) full(maxPerPrice uint32) bool {
	occupied := uint32(l.activeSegments()) * SlotsPerSegment
	last := &l.segments[len(l.segments)-1]
	return occupied >= maxPerPrice && !last[SlotsPerSegment-1].empty()
}

// push appends an order to the first free slot of the final segment,
// growing the array when that segment is full. Callers check full first.
func (l *priceLevel) push(orderID uint64, qty uint32) {
	last := &l.segments[len(l.segments)-1]
	for i := range last {
		if last[i].empty() {
			last[i] = packSlot(orderID, qty)
			return
		}
	}
	l.segments = append(l.segments, segment{packSlot(orderID, qty)})
}

// locate binary searches the active segments for an order id. Ids come from
// a monotonic counter, so across a level they strictly increase in slot
// order and each segment spans a disjoint id range.
func (l *priceLevel) locate(orderID uint64) (seg, off int, ok bool) {
	lo, hi := int(l.tombstone), len(l.segments)-1
	for lo <= hi {
		mid := lo + (hi-lo)/2
		sg := &l.segments[mid]
		if orderID < sg[0].orderID() {
			hi = mid - 1
			continue
		}
		if orderID > sg.lastOrderID() {
			lo = mid + 1
			continue
		}
		for i := 0; i < SlotsPerSegment; i++ {
			if sg[i].orderID() == orderID {
				return mid, i, true
			}
		}
		return 0, 0, false
	}
	return 0, 0, false
}

// removeAt deletes a single slot. When the removed order is the only one in
// its segment the segment is cut from the array; otherwise the slots to its
// right shift left one place. Reports whether the level is now empty.
func (l *priceLevel) removeAt(seg, off int) (qty uint32, emptied bool) {
	sg := &l.segments[seg]
	qty = sg[off].quantity()
	if off == 0 && sg.count() == 1 {
		l.segments = append(l.segments[:seg], l.segments[seg+1:]...)
		return qty, len(l.segments) == int(l.tombstone)
	}
	for i := off; i < SlotsPerSegment-1; i++ {
		sg[i] = sg[i+1]
	}
	sg[SlotsPerSegment-1] = 0
	return qty, false
}

// consume fills the taker from this level in slot order. Fully consumed
// slots zero out; a partial fill rewrites the slot in place and ends the
// walk. Segments that were consumed end to end are counted in freed so the
// caller can advance the tombstone; drained reports that nothing active
// remains. Every fill counts against the shared match budget.
func (l *priceLevel) consume(remaining *uint32, budget int, fills *[]Fill) (freed uint32, drained bool, err error) {
	active := l.activeSegments()
	consumedSegs := 0
	for i := int(l.tombstone); i < len(l.segments) && *remaining > 0; i++ {
		sg := &l.segments[i]
		before := sg.count()
		consumed := 0
		for off := 0; off < SlotsPerSegment && *remaining > 0; off++ {
			s := sg[off]
			if s.empty() {
				break
			}
			q := s.quantity()
			fill := Fill{OrderID: s.orderID(), Price: l.price}
			if *remaining >= q {
				fill.Quantity = q
				sg[off] = 0
				consumed++
				*remaining -= q
			} else {
				fill.Quantity = *remaining
				sg[off] = packSlot(s.orderID(), q-*remaining)
				*remaining = 0
			}
			*fills = append(*fills, fill)
			if len(*fills) >= budget {
				return 0, false, ErrTooManyMatches
			}
		}
		if consumed == before {
			consumedSegs++
		} else if consumed > 0 {
			sg.compact()
		}
	}
	return uint32(consumedSegs), consumedSegs == active, nil
}

// orders lists the live orders of the level in time priority.
func (l *priceLevel) orders() []Order {
	out := make([]Order, 0, l.activeSegments()*SlotsPerSegment)
	for i := int(l.tombstone); i < len(l.segments); i++ {
		for _, s := range l.segments[i] {
			if s.empty() {
				continue
			}
			out = append(out, Order{ID: s.orderID(), Quantity: s.quantity()})
		}
	}
	return out
}

func (l *priceLevel) clone() *priceLevel {
	segs := make([]segment, len(l.segments))
	copy(segs, l.segments)
	return &priceLevel{price: l.price, tombstone: l.tombstone, segments: segs}
}
