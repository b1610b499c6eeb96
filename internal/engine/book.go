package engine

import (
	"fmt"
	"math"
	"strings"

	"github.com/tidwall/btree"
)

// bookEntry ties an order to the level it rests in so deletion is O(1)
// given only an order ID.
type bookEntry struct {
	order *Order
	level *Level
}

// OrderBook is the matching core for one instrument: a price ladder per
// side, an order index, and the instrument's PnL ledger.
//
// A book is not safe for concurrent use. All operations on one symbol must
// come from a single logical thread of control; cross-symbol parallelism is
// layered on top (see the shard package).
type OrderBook struct {
	symbolID        uint32
	lastTradedPrice uint64

	// Both ladders sort their best level first (bids descending, asks
	// ascending), so Min is always top of book on either side.
	bids *btree.BTreeG[*Level]
	asks *btree.BTreeG[*Level]

	// Order ID -> order storage plus level back-reference. The index is
	// the authoritative owner of the orders.
	orders map[uint64]*bookEntry

	account *PnlAccount

	checkInvariants bool
}

func NewOrderBook(symbolID uint32, prevClosePrice, prevPosition uint64) *OrderBook {
	bids := btree.NewBTreeG(func(a, b *Level) bool {
		return a.price > b.price
	})
	asks := btree.NewBTreeG(func(a, b *Level) bool {
		return a.price < b.price
	})
	return &OrderBook{
		symbolID: symbolID,
		bids:     bids,
		asks:     asks,
		orders:   make(map[uint64]*bookEntry),
		account:  NewPnlAccount(prevClosePrice, prevPosition),
	}
}

// SetInvariantChecks enables a full structural validation after every
// mutating operation. Meant for tests and debugging; the hot path runs with
// checks off.
func (b *OrderBook) SetInvariantChecks(on bool) { b.checkInvariants = on }

func (b *OrderBook) SymbolID() uint32        { return b.symbolID }
func (b *OrderBook) LastTradedPrice() uint64 { return b.lastTradedPrice }
func (b *OrderBook) Account() *PnlAccount    { return b.account }
func (b *OrderBook) Empty() bool             { return len(b.orders) == 0 }

func (b *OrderBook) HasOrder(id uint64) bool {
	_, ok := b.orders[id]
	return ok
}

func (b *OrderBook) GetOrder(id uint64) (*Order, bool) {
	entry, ok := b.orders[id]
	if !ok {
		return nil, false
	}
	return entry.order, true
}

// BestBid returns the highest resting buy price, zero when the bid side is
// empty.
func (b *OrderBook) BestBid() uint64 {
	if best, ok := b.bids.Min(); ok {
		return best.price
	}
	return 0
}

// BestAsk returns the lowest resting sell price, MaxUint64 when the ask side
// is empty.
func (b *OrderBook) BestAsk() uint64 {
	if best, ok := b.asks.Min(); ok {
		return best.price
	}
	return math.MaxUint64
}

// BidLevels returns the bid ladder from best to worst.
func (b *OrderBook) BidLevels() []*Level { return b.bids.Items() }

// AskLevels returns the ask ladder from best to worst.
func (b *OrderBook) AskLevels() []*Level { return b.asks.Items() }

func (b *OrderBook) ladder(side Side) *btree.BTreeG[*Level] {
	if side == Bid {
		return b.bids
	}
	return b.asks
}

// AddOrder submits an order to the book: limit orders match and then rest,
// the market variants resolve a price first and never rest except through
// conversion to a limit order. A FOK order that cannot be fully matched is
// rejected with ErrRejection and leaves the book untouched.
func (b *OrderBook) AddOrder(o *Order) error {
	var err error
	switch o.typ {
	case Limit:
		err = b.addLimitOrder(o)
	case CounterpartyBest, SelfBest, Top5IOC, IOC, FOK:
		err = b.addMarketOrder(o)
	default:
		return fmt.Errorf("order %d: unknown order type %d", o.id, int(o.typ))
	}
	if err != nil {
		return err
	}
	return b.validateIfEnabled()
}

func (b *OrderBook) addLimitOrder(o *Order) error {
	// An arriving limit order can cross the book immediately.
	err := b.match(o)
	if !o.IsFilled() {
		b.insertLimitOrder(o)
	}
	return err
}

func (b *OrderBook) insertLimitOrder(o *Order) {
	ladder := b.ladder(o.side)
	level, ok := ladder.GetMut(&Level{price: o.price})
	if !ok {
		level = newLevel(o.price, o.side, b.symbolID)
		ladder.Set(level)
	}
	level.addOrder(o)
	b.orders[o.id] = &bookEntry{order: o, level: level}
}

func (b *OrderBook) addMarketOrder(o *Order) error {
	switch o.typ {
	case CounterpartyBest:
		best, ok := b.ladder(o.side.Opposite()).Min()
		if !ok {
			// No resting counterparty orders: auto-cancelled.
			return nil
		}
		o.typ = Limit
		o.price = best.price
		return b.addLimitOrder(o)
	case SelfBest:
		best, ok := b.ladder(o.side).Min()
		if !ok {
			// No resting orders on our own side: auto-cancelled.
			return nil
		}
		o.typ = Limit
		o.price = best.price
		return b.addLimitOrder(o)
	case Top5IOC:
		price := b.worstOfBestFive(o.side.Opposite())
		if price == 0 {
			return nil
		}
		o.price = price
		return b.match(o)
	default: // IOC, FOK
		if o.side == Ask {
			o.price = 0
		} else {
			o.price = math.MaxUint64
		}
		if o.typ == FOK && !b.canMatchOrder(o) {
			return ErrRejection
		}
		return b.match(o)
	}
}

// worstOfBestFive returns the price of the fifth-best level on the given
// side, the worst available price when fewer than five levels exist, and
// zero when the side is empty.
func (b *OrderBook) worstOfBestFive(side Side) uint64 {
	var price uint64
	count := 0
	b.ladder(side).Scan(func(l *Level) bool {
		price = l.price
		count++
		return count < 5
	})
	return price
}

// crosses reports whether an incoming order trades against a resting level
// at levelPrice.
func crosses(o *Order, levelPrice uint64) bool {
	if o.side == Ask {
		return levelPrice >= o.price
	}
	return levelPrice <= o.price
}

// match runs the price-time-priority matching loop for an incoming order:
// repeatedly take the front order of the best crossing level on the opposite
// side and trade at the resting order's price. The best level is re-fetched
// after every fill because a fill may remove the level entirely.
//
// Matched fills are final even when the matching loop later reports a ledger
// error; the first such error is returned after matching completes.
func (b *OrderBook) match(o *Order) error {
	var ledgerErr error
	opposite := b.ladder(o.side.Opposite())
	for !o.IsFilled() {
		level, ok := opposite.MinMut()
		if !ok || !crosses(o, level.price) {
			break
		}
		resting := level.Front()
		if err := b.executeOrders(resting, o, resting.price); err != nil && ledgerErr == nil {
			ledgerErr = err
		}
		level.reduceVolume(resting.lastExecutedQuantity)
		if resting.IsFilled() {
			b.removeEntry(b.orders[resting.id])
		}
	}
	return ledgerErr
}

// executeOrders fills both sides of one trade at the executing price. The
// matched quantity is the smaller open quantity; both orders, the last
// traded price, and the ledger are updated together. The ledger records the
// incoming (taker) side.
func (b *OrderBook) executeOrders(resting, incoming *Order, executingPrice uint64) error {
	matched := min(resting.openQuantity, incoming.openQuantity)
	resting.Execute(executingPrice, matched)
	incoming.Execute(executingPrice, matched)
	b.lastTradedPrice = executingPrice
	return b.account.UpdateAccount(incoming.side, executingPrice, matched)
}

// canMatchOrder reports whether the resting liquidity at or better than the
// order's price covers its full open quantity. Read-only; used to pre-check
// FOK orders.
func (b *OrderBook) canMatchOrder(o *Order) bool {
	required := o.openQuantity
	var available uint64
	b.ladder(o.side.Opposite()).Scan(func(l *Level) bool {
		if !crosses(o, l.price) {
			return false
		}
		available += min(l.volume, required-available)
		return available < required
	})
	return available >= required
}

// DeleteOrder cancels a resting order, removing it from its level and the
// index. The level volume drops by the order's remaining open quantity and
// the level itself disappears with its last order.
func (b *OrderBook) DeleteOrder(id uint64) error {
	entry, ok := b.orders[id]
	if !ok {
		return ErrOrderNotFound
	}
	b.removeEntry(entry)
	return b.validateIfEnabled()
}

func (b *OrderBook) removeEntry(entry *bookEntry) {
	entry.level.remove(entry.order)
	if entry.level.Empty() {
		b.ladder(entry.order.side).Delete(entry.level)
	}
	delete(b.orders, entry.order.id)
}

// ExecuteOrder applies an external fill record to a resting order at the
// given price. The quantity is clamped to the order's open quantity and the
// order is removed once filled.
func (b *OrderBook) ExecuteOrder(id, quantity, price uint64) error {
	if quantity == 0 {
		return ErrInvalidQuantity
	}
	entry, ok := b.orders[id]
	if !ok {
		return ErrOrderNotFound
	}
	return b.executeResting(entry, quantity, price)
}

// ExecuteOrderAtLimit is ExecuteOrder with the price implied by the order
// itself, so it only applies to limit orders.
func (b *OrderBook) ExecuteOrderAtLimit(id, quantity uint64) error {
	if quantity == 0 {
		return ErrInvalidQuantity
	}
	entry, ok := b.orders[id]
	if !ok {
		return ErrOrderNotFound
	}
	if entry.order.typ != Limit {
		return ErrNotLimitOrder
	}
	return b.executeResting(entry, quantity, entry.order.price)
}

func (b *OrderBook) executeResting(entry *bookEntry, quantity, price uint64) error {
	o := entry.order
	executing := min(quantity, o.openQuantity)
	o.Execute(price, executing)
	b.lastTradedPrice = price
	entry.level.reduceVolume(o.lastExecutedQuantity)
	ledgerErr := b.account.UpdateAccount(o.side, price, executing)
	if o.IsFilled() {
		b.removeEntry(entry)
	}
	if ledgerErr != nil {
		return ledgerErr
	}
	return b.validateIfEnabled()
}

// GetBasePrice returns the reference price used to turn price offsets into
// absolute limit prices: the best opposing price when one exists, otherwise
// the last traded price, otherwise the previous close.
func (b *OrderBook) GetBasePrice(side Side) uint64 {
	if best, ok := b.ladder(side.Opposite()).Min(); ok {
		return best.price
	}
	if b.lastTradedPrice != 0 {
		return b.lastTradedPrice
	}
	return b.account.prevClosePrice
}

// GetUpLimit returns the top of the daily price band, ten percent above the
// previous close, rounded half-up in ticks. Without a previous close there
// is no band and MaxUint64 is returned.
func (b *OrderBook) GetUpLimit() uint64 {
	pc := b.account.prevClosePrice
	if pc == 0 {
		return math.MaxUint64
	}
	return (pc*110 + 50) / 100
}

// GetDownLimit returns the bottom of the daily price band, ten percent below
// the previous close, rounded half-up in ticks. Zero without a previous
// close.
func (b *OrderBook) GetDownLimit() uint64 {
	pc := b.account.prevClosePrice
	if pc == 0 {
		return 0
	}
	return (pc*90 + 50) / 100
}

// IsPriceWithinAllowedRange reports whether a limit price sits inside the
// daily band.
func (b *OrderBook) IsPriceWithinAllowedRange(price uint64) bool {
	return price >= b.GetDownLimit() && price <= b.GetUpLimit()
}

func (b *OrderBook) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "SYMBOL ID : %d\n", b.symbolID)
	fmt.Fprintf(&sb, "LAST TRADED PRICE: %d\n", b.lastTradedPrice)
	sb.WriteString("BID ORDERS\n")
	b.bids.Scan(func(l *Level) bool {
		sb.WriteString(l.String())
		return true
	})
	sb.WriteString("ASK ORDERS\n")
	b.asks.Scan(func(l *Level) bool {
		sb.WriteString(l.String())
		return true
	})
	return sb.String()
}

func (b *OrderBook) validateIfEnabled() error {
	if !b.checkInvariants {
		return nil
	}
	return b.Validate()
}
