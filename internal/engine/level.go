package engine

import "fmt"

// Level is the FIFO queue of resting orders at one (symbol, side, price)
// triple. The queue is an intrusive doubly-linked list over the orders'
// next/prev fields so a known order can be unlinked in constant time.
// Volume is maintained incrementally, never recomputed by scanning.
//
// A level does not own its orders; the book's order index does. A level is
// removed from its ladder together with its last order, so an empty level is
// never reachable through a book.
type Level struct {
	price    uint64
	side     Side
	symbolID uint32
	volume   uint64

	head, tail *Order
	size       int
}

func newLevel(price uint64, side Side, symbolID uint32) *Level {
	return &Level{price: price, side: side, symbolID: symbolID}
}

func (l *Level) Price() uint64    { return l.price }
func (l *Level) Side() Side       { return l.side }
func (l *Level) SymbolID() uint32 { return l.symbolID }
func (l *Level) Volume() uint64   { return l.volume }
func (l *Level) Size() int        { return l.size }
func (l *Level) Empty() bool      { return l.size == 0 }

// Front returns the least recently added order, nil when the level is empty.
func (l *Level) Front() *Order { return l.head }

// addOrder appends an order to the back of the queue. The order must share
// the level's side, price and symbol.
func (l *Level) addOrder(o *Order) {
	o.prev = l.tail
	o.next = nil
	if l.tail != nil {
		l.tail.next = o
	} else {
		l.head = o
	}
	l.tail = o
	l.size++
	l.volume += o.openQuantity
}

// remove unlinks an order from anywhere in the queue and releases its
// remaining open quantity from the level volume.
func (l *Level) remove(o *Order) {
	if o.prev != nil {
		o.prev.next = o.next
	} else {
		l.head = o.next
	}
	if o.next != nil {
		o.next.prev = o.prev
	} else {
		l.tail = o.prev
	}
	o.next, o.prev = nil, nil
	l.size--
	l.volume -= o.openQuantity
}

// reduceVolume lowers the level volume after a partial fill of one of its
// orders. Requires amount <= volume.
func (l *Level) reduceVolume(amount uint64) {
	l.volume -= amount
}

// forEach visits the orders in FIFO position until fn returns false.
func (l *Level) forEach(fn func(*Order) bool) {
	for o := l.head; o != nil; o = o.next {
		if !fn(o) {
			return
		}
	}
}

func (l *Level) String() string {
	return fmt.Sprintf("%d X %d\n", l.price, l.volume)
}
