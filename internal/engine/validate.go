package engine

import "fmt"

// Validate walks the whole book and checks every structural invariant the
// matching algorithm relies on: an uncrossed book, no empty levels, levels
// internally consistent with their orders, level volume equal to the sum of
// open quantities, and a coherent order index. Returns the first violation
// found. Intended for tests and for books running with invariant checks on.
func (b *OrderBook) Validate() error {
	if b.BestAsk() <= b.BestBid() {
		return fmt.Errorf("book %d: crossed book, best ask %d <= best bid %d",
			b.symbolID, b.BestAsk(), b.BestBid())
	}
	if err := b.validateLadder(Bid); err != nil {
		return err
	}
	if err := b.validateLadder(Ask); err != nil {
		return err
	}
	for id, entry := range b.orders {
		if entry.order.id != id {
			return fmt.Errorf("book %d: index key %d maps to order %d",
				b.symbolID, id, entry.order.id)
		}
	}
	return nil
}

func (b *OrderBook) validateLadder(side Side) error {
	var err error
	b.ladder(side).Scan(func(l *Level) bool {
		err = b.validateLevel(side, l)
		return err == nil
	})
	return err
}

func (b *OrderBook) validateLevel(side Side, l *Level) error {
	if l.Empty() {
		return fmt.Errorf("book %d: empty level at %d on %v side", b.symbolID, l.price, side)
	}
	if l.side != side {
		return fmt.Errorf("book %d: level at %d has side %v but sits on the %v ladder",
			b.symbolID, l.price, l.side, side)
	}
	if l.symbolID != b.symbolID {
		return fmt.Errorf("book %d: level at %d carries symbol %d", b.symbolID, l.price, l.symbolID)
	}
	var volume uint64
	var err error
	l.forEach(func(o *Order) bool {
		switch {
		case o.typ != Limit:
			err = fmt.Errorf("book %d: non-limit order %d resting at %d", b.symbolID, o.id, l.price)
		case o.side != side:
			err = fmt.Errorf("book %d: order %d on wrong side of level %d", b.symbolID, o.id, l.price)
		case o.symbolID != b.symbolID:
			err = fmt.Errorf("book %d: order %d carries symbol %d", b.symbolID, o.id, o.symbolID)
		case o.price != l.price:
			err = fmt.Errorf("book %d: order %d priced %d inside level %d", b.symbolID, o.id, o.price, l.price)
		case o.IsFilled():
			err = fmt.Errorf("book %d: filled order %d still resting at %d", b.symbolID, o.id, l.price)
		}
		if err != nil {
			return false
		}
		entry, ok := b.orders[o.id]
		if !ok || entry.level != l {
			err = fmt.Errorf("book %d: order %d not indexed against its level %d", b.symbolID, o.id, l.price)
			return false
		}
		volume += o.openQuantity
		return true
	})
	if err != nil {
		return err
	}
	if volume != l.volume {
		return fmt.Errorf("book %d: level %d volume %d != sum of open quantities %d",
			b.symbolID, l.price, l.volume, volume)
	}
	return nil
}
