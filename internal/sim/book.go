package sim

import (
	"sort"
	"sync"

	"github.com/nautilus-go/kernel/internal/order"
	"github.com/nautilus-go/kernel/internal/value"
)

// restingOrder is one order resting in a book's price-time priority queue.
// Its working price is the limit price once resting as a LIMIT order, or
// the trigger price for a stop that has not fired yet (see workingPrice).
type restingOrder struct {
	o   *order.Order
	seq uint64
}

// book holds one instrument's resting orders split by side, each kept in
// price-time priority (§4.12 "iterate resting orders in price-time
// priority"). A synthetic book — no depth beyond top-of-book is modeled,
// since the matching engine's counterparty is always the venue's current
// quote, never another resting order.
type book struct {
	mu   sync.Mutex
	buys  []*restingOrder
	sells []*restingOrder
	seq   uint64
}

func newBook() *book { return &book{} }

func (b *book) nextSeq() uint64 {
	b.seq++
	return b.seq
}

func (b *book) add(o *order.Order) *restingOrder {
	b.mu.Lock()
	defer b.mu.Unlock()
	ro := &restingOrder{o: o, seq: b.nextSeq()}
	if o.Side == value.Buy {
		b.buys = append(b.buys, ro)
		sortBuys(b.buys)
	} else {
		b.sells = append(b.sells, ro)
		sortSells(b.sells)
	}
	return ro
}

// remove drops an order from its resting side by client order id, used on
// cancel and on fill-to-completion.
func (b *book) remove(clOrdId value.ClientOrderId) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buys = removeFrom(b.buys, clOrdId)
	b.sells = removeFrom(b.sells, clOrdId)
}

func removeFrom(xs []*restingOrder, clOrdId value.ClientOrderId) []*restingOrder {
	out := xs[:0]
	for _, x := range xs {
		if x.o.ClientOrderId != clOrdId {
			out = append(out, x)
		}
	}
	return out
}

// snapshotSides returns copies of the current buy/sell queues for a match
// pass to iterate without holding the lock across fill callbacks (a fill
// callback may itself mutate the book via remove).
func (b *book) snapshotSides() (buys, sells []*restingOrder) {
	b.mu.Lock()
	defer b.mu.Unlock()
	buys = append([]*restingOrder(nil), b.buys...)
	sells = append([]*restingOrder(nil), b.sells...)
	return buys, sells
}

// sortBuys orders buy-side resting orders best-price-first (highest limit
// or trigger price first), earliest submission breaking ties.
func sortBuys(xs []*restingOrder) {
	sort.SliceStable(xs, func(i, j int) bool {
		pi, pj := workingPrice(xs[i].o), workingPrice(xs[j].o)
		if pi.Equal(pj) {
			return xs[i].seq < xs[j].seq
		}
		return pi.GreaterThan(pj)
	})
}

// sortSells orders sell-side resting orders best-price-first (lowest limit
// or trigger price first), earliest submission breaking ties.
func sortSells(xs []*restingOrder) {
	sort.SliceStable(xs, func(i, j int) bool {
		pi, pj := workingPrice(xs[i].o), workingPrice(xs[j].o)
		if pi.Equal(pj) {
			return xs[i].seq < xs[j].seq
		}
		return pi.LessThan(pj)
	})
}

// workingPrice is the price a resting order is currently keyed on: its
// limit price once working (including a triggered stop-limit), or its
// trigger price while still a dormant stop.
func workingPrice(o *order.Order) value.Price {
	if o.Type == value.StopMarket || o.Type == value.StopLimit {
		if o.Status == order.Triggered && o.Price != nil {
			return *o.Price
		}
		if o.TriggerPrice != nil {
			return *o.TriggerPrice
		}
	}
	if o.Price != nil {
		return *o.Price
	}
	return value.Price{}
}
