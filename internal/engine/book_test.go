package engine

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Setup & Helpers --------------------------------------------------------

const (
	testSymbol    = uint32(1)
	testPrevClose = uint64(10000) // 100.00
	testPrevPos   = uint64(100)
)

func newTestBook(t *testing.T) *OrderBook {
	t.Helper()
	book := NewOrderBook(testSymbol, testPrevClose, testPrevPos)
	book.SetInvariantChecks(true)
	return book
}

type orderFactory struct {
	t      *testing.T
	lastID uint64
}

func (f *orderFactory) order(typ OrderType, side Side, quantity, price uint64) *Order {
	f.t.Helper()
	f.lastID++
	o, err := NewOrder(typ, side, f.lastID, testSymbol, quantity, price)
	require.NoError(f.t, err)
	return o
}

func (f *orderFactory) limit(book *OrderBook, side Side, price uint64, quantities ...uint64) []*Order {
	f.t.Helper()
	orders := make([]*Order, len(quantities))
	for i, qty := range quantities {
		orders[i] = f.order(Limit, side, qty, price)
		require.NoError(f.t, book.AddOrder(orders[i]))
	}
	return orders
}

// flattenLevel lists the open quantities resting at a level in FIFO order.
func flattenLevel(l *Level) []uint64 {
	var quantities []uint64
	l.forEach(func(o *Order) bool {
		quantities = append(quantities, o.openQuantity)
		return true
	})
	return quantities
}

// --- Tests ------------------------------------------------------------------

func TestAddOrder_LimitRests(t *testing.T) {
	book := newTestBook(t)
	f := &orderFactory{t: t}

	f.limit(book, Bid, 9900, 100, 90, 80)
	f.limit(book, Ask, 10100, 60, 50)

	assert.Equal(t, uint64(9900), book.BestBid())
	assert.Equal(t, uint64(10100), book.BestAsk())

	bids := book.BidLevels()
	require.Len(t, bids, 1)
	assert.Equal(t, uint64(270), bids[0].Volume())
	assert.Equal(t, []uint64{100, 90, 80}, flattenLevel(bids[0]))

	asks := book.AskLevels()
	require.Len(t, asks, 1)
	assert.Equal(t, uint64(110), asks[0].Volume())
}

func TestAddOrder_MatchesAtRestingPrice(t *testing.T) {
	book := newTestBook(t)
	f := &orderFactory{t: t}

	f.limit(book, Ask, 10000, 50)

	// An aggressive bid trades at the resting ask's price, not its own.
	taker := f.order(Limit, Bid, 30, 10100)
	require.NoError(t, book.AddOrder(taker))

	assert.True(t, taker.IsFilled())
	assert.Equal(t, uint64(10000), taker.LastExecutedPrice())
	assert.Equal(t, uint64(10000), book.LastTradedPrice())
	assert.False(t, book.HasOrder(taker.ID()))

	asks := book.AskLevels()
	require.Len(t, asks, 1)
	assert.Equal(t, uint64(20), asks[0].Volume())

	assert.Equal(t, testPrevPos+30, book.Account().Position())
	assert.Equal(t, int64(-300000), book.Account().Cash())
}

func TestAddOrder_PartialFillRestsRemainder(t *testing.T) {
	book := newTestBook(t)
	f := &orderFactory{t: t}

	f.limit(book, Ask, 10000, 20)

	taker := f.order(Limit, Bid, 50, 10000)
	require.NoError(t, book.AddOrder(taker))

	assert.Equal(t, uint64(30), taker.OpenQuantity())
	assert.True(t, book.HasOrder(taker.ID()))
	assert.Equal(t, uint64(10000), book.BestBid())
	assert.Empty(t, book.AskLevels())
}

func TestMatch_PriceTimePriority(t *testing.T) {
	book := newTestBook(t)
	f := &orderFactory{t: t}

	resting := f.limit(book, Ask, 10000, 10, 10)

	taker := f.order(Limit, Bid, 15, 10000)
	require.NoError(t, book.AddOrder(taker))

	// The earlier resting order fills completely before the later one fills
	// at all.
	assert.True(t, resting[0].IsFilled())
	assert.Equal(t, uint64(5), resting[1].OpenQuantity())
	assert.False(t, book.HasOrder(resting[0].ID()))
	assert.True(t, book.HasOrder(resting[1].ID()))
}

func TestMatch_WalksLevels(t *testing.T) {
	book := newTestBook(t)
	f := &orderFactory{t: t}

	f.limit(book, Ask, 10000, 10)
	f.limit(book, Ask, 10100, 10)

	taker := f.order(Limit, Bid, 15, 10200)
	require.NoError(t, book.AddOrder(taker))

	assert.True(t, taker.IsFilled())
	assert.Equal(t, uint64(10100), book.LastTradedPrice())
	asks := book.AskLevels()
	require.Len(t, asks, 1)
	assert.Equal(t, uint64(10100), asks[0].Price())
	assert.Equal(t, uint64(5), asks[0].Volume())
}

func TestAddOrder_CounterpartyBest(t *testing.T) {
	book := newTestBook(t)
	f := &orderFactory{t: t}

	f.limit(book, Ask, 10000, 10)

	// Resolves to the best ask and immediately crosses it.
	o := f.order(CounterpartyBest, Bid, 10, 0)
	require.NoError(t, book.AddOrder(o))
	assert.True(t, o.IsFilled())
	assert.Equal(t, uint64(10000), o.LastExecutedPrice())
}

func TestAddOrder_CounterpartyBestEmptySide(t *testing.T) {
	book := newTestBook(t)
	f := &orderFactory{t: t}

	// No counterparty liquidity: auto-cancelled without error.
	o := f.order(CounterpartyBest, Bid, 10, 0)
	require.NoError(t, book.AddOrder(o))
	assert.False(t, book.HasOrder(o.ID()))
	assert.Empty(t, book.BidLevels())
}

func TestAddOrder_SelfBestJoinsOwnBest(t *testing.T) {
	book := newTestBook(t)
	f := &orderFactory{t: t}

	f.limit(book, Bid, 9900, 10)
	f.limit(book, Bid, 9800, 10)

	o := f.order(SelfBest, Bid, 5, 0)
	require.NoError(t, book.AddOrder(o))

	// Joins the back of the best bid level's queue.
	bids := book.BidLevels()
	require.Len(t, bids, 2)
	assert.Equal(t, uint64(9900), bids[0].Price())
	assert.Equal(t, []uint64{10, 5}, flattenLevel(bids[0]))
}

func TestAddOrder_SelfBestEmptySide(t *testing.T) {
	book := newTestBook(t)
	f := &orderFactory{t: t}

	o := f.order(SelfBest, Ask, 5, 0)
	require.NoError(t, book.AddOrder(o))
	assert.False(t, book.HasOrder(o.ID()))
	assert.Empty(t, book.AskLevels())
}

func TestAddOrder_Top5StopsAtWorstOfBestFive(t *testing.T) {
	book := newTestBook(t)
	f := &orderFactory{t: t}

	f.limit(book, Ask, 500, 10)
	f.limit(book, Ask, 600, 10)
	f.limit(book, Ask, 700, 10)

	// Fewer than five ask levels, so the limit is the worst of them all.
	o := f.order(Top5IOC, Bid, 40, 0)
	require.NoError(t, book.AddOrder(o))

	assert.Equal(t, uint64(30), o.ExecutedQuantity())
	// The unmatched remainder is cancelled, never rested.
	assert.False(t, book.HasOrder(o.ID()))
	assert.Empty(t, book.AskLevels())
	assert.Empty(t, book.BidLevels())
}

func TestAddOrder_Top5SixLevels(t *testing.T) {
	book := newTestBook(t)
	f := &orderFactory{t: t}

	for _, price := range []uint64{500, 600, 700, 800, 900, 1000} {
		f.limit(book, Ask, price, 10)
	}

	o := f.order(Top5IOC, Bid, 100, 0)
	require.NoError(t, book.AddOrder(o))

	// Eats through the fifth level at 900 and leaves the sixth untouched.
	assert.Equal(t, uint64(50), o.ExecutedQuantity())
	asks := book.AskLevels()
	require.Len(t, asks, 1)
	assert.Equal(t, uint64(1000), asks[0].Price())
}

func TestAddOrder_Top5DepthBoundaries(t *testing.T) {
	// 600 of ask depth split 100/200/300 across three levels.
	setup := func(f *orderFactory) (*OrderBook, []*Order) {
		book := newTestBook(t)
		var resting []*Order
		resting = append(resting, f.limit(book, Ask, 100, 100)...)
		resting = append(resting, f.limit(book, Ask, 101, 200)...)
		resting = append(resting, f.limit(book, Ask, 102, 300)...)
		return book, resting
	}

	t.Run("exact depth drains the book", func(t *testing.T) {
		f := &orderFactory{t: t}
		book, _ := setup(f)
		o := f.order(Top5IOC, Bid, 600, 0)
		require.NoError(t, book.AddOrder(o))
		assert.Equal(t, uint64(600), o.ExecutedQuantity())
		assert.Empty(t, book.AskLevels())
	})

	t.Run("partial depth leaves the deepest level short", func(t *testing.T) {
		f := &orderFactory{t: t}
		book, resting := setup(f)
		o := f.order(Top5IOC, Bid, 500, 0)
		require.NoError(t, book.AddOrder(o))

		asks := book.AskLevels()
		require.Len(t, asks, 1)
		assert.Equal(t, uint64(102), asks[0].Price())
		assert.Equal(t, uint64(100), asks[0].Volume())
		assert.Equal(t, uint64(200), resting[2].ExecutedQuantity())
		assert.Equal(t, uint64(102), resting[2].LastExecutedPrice())
	})

	t.Run("excess quantity is cancelled", func(t *testing.T) {
		f := &orderFactory{t: t}
		book, _ := setup(f)
		o := f.order(Top5IOC, Bid, 700, 0)
		require.NoError(t, book.AddOrder(o))
		assert.Equal(t, uint64(600), o.ExecutedQuantity())
		assert.Empty(t, book.AskLevels())
		assert.False(t, book.HasOrder(o.ID()))
	})
}

func TestAddOrder_Top5EmptySide(t *testing.T) {
	book := newTestBook(t)
	f := &orderFactory{t: t}

	o := f.order(Top5IOC, Bid, 10, 0)
	require.NoError(t, book.AddOrder(o))
	assert.Zero(t, o.ExecutedQuantity())
	assert.Empty(t, book.BidLevels())
}

func TestAddOrder_IOCDiscardsRemainder(t *testing.T) {
	book := newTestBook(t)
	f := &orderFactory{t: t}

	f.limit(book, Ask, 10000, 10)

	o := f.order(IOC, Bid, 25, 0)
	require.NoError(t, book.AddOrder(o))

	assert.Equal(t, uint64(10), o.ExecutedQuantity())
	assert.False(t, book.HasOrder(o.ID()))
	assert.Empty(t, book.BidLevels())
}

func TestAddOrder_FOKRejectsWithoutFullLiquidity(t *testing.T) {
	book := newTestBook(t)
	f := &orderFactory{t: t}

	f.limit(book, Ask, 10000, 10)
	f.limit(book, Ask, 10100, 5)

	o := f.order(FOK, Bid, 20, 0)
	assert.ErrorIs(t, book.AddOrder(o), ErrRejection)

	// Rejection leaves the book exactly as it was.
	assert.Zero(t, o.ExecutedQuantity())
	asks := book.AskLevels()
	require.Len(t, asks, 2)
	assert.Equal(t, uint64(10), asks[0].Volume())
	assert.Equal(t, uint64(5), asks[1].Volume())
}

func TestAddOrder_FOKFillsCompletely(t *testing.T) {
	book := newTestBook(t)
	f := &orderFactory{t: t}

	f.limit(book, Ask, 10000, 10)
	f.limit(book, Ask, 10100, 5)

	o := f.order(FOK, Bid, 15, 0)
	require.NoError(t, book.AddOrder(o))
	assert.True(t, o.IsFilled())
	assert.Empty(t, book.AskLevels())
}

func TestDeleteOrder(t *testing.T) {
	book := newTestBook(t)
	f := &orderFactory{t: t}

	orders := f.limit(book, Bid, 9900, 10, 20)

	require.NoError(t, book.DeleteOrder(orders[0].ID()))
	assert.False(t, book.HasOrder(orders[0].ID()))

	bids := book.BidLevels()
	require.Len(t, bids, 1)
	assert.Equal(t, uint64(20), bids[0].Volume())

	// Deleting the last order at a price removes the level itself.
	require.NoError(t, book.DeleteOrder(orders[1].ID()))
	assert.Empty(t, book.BidLevels())

	assert.ErrorIs(t, book.DeleteOrder(orders[0].ID()), ErrOrderNotFound)
}

func TestExecuteOrder_ClampsAndRemoves(t *testing.T) {
	book := newTestBook(t)
	f := &orderFactory{t: t}

	orders := f.limit(book, Ask, 10000, 10)

	// Requested quantity above the open quantity is clamped.
	require.NoError(t, book.ExecuteOrder(orders[0].ID(), 25, 10050))
	assert.True(t, orders[0].IsFilled())
	assert.Equal(t, uint64(10), orders[0].ExecutedQuantity())
	assert.Equal(t, uint64(10050), book.LastTradedPrice())
	assert.False(t, book.HasOrder(orders[0].ID()))

	assert.ErrorIs(t, book.ExecuteOrder(999, 1, 10000), ErrOrderNotFound)
	assert.ErrorIs(t, book.ExecuteOrder(orders[0].ID(), 0, 10000), ErrInvalidQuantity)
}

func TestExecuteOrderAtLimit(t *testing.T) {
	book := newTestBook(t)
	f := &orderFactory{t: t}

	orders := f.limit(book, Bid, 9900, 10)

	require.NoError(t, book.ExecuteOrderAtLimit(orders[0].ID(), 4))
	assert.Equal(t, uint64(6), orders[0].OpenQuantity())
	assert.Equal(t, uint64(9900), orders[0].LastExecutedPrice())
	assert.Equal(t, uint64(9900), book.LastTradedPrice())

	bids := book.BidLevels()
	require.Len(t, bids, 1)
	assert.Equal(t, uint64(6), bids[0].Volume())
}

func TestMatch_LedgerErrorDoesNotUnwindFills(t *testing.T) {
	// Zero starting position: an aggressive sell cannot be booked.
	book := NewOrderBook(testSymbol, testPrevClose, 0)
	book.SetInvariantChecks(true)
	f := &orderFactory{t: t}

	resting := f.limit(book, Bid, 10000, 10)

	taker := f.order(Limit, Ask, 10, 10000)
	assert.ErrorIs(t, book.AddOrder(taker), ErrInsufficientPosition)

	// The trade itself stands; only the ledger refused it.
	assert.True(t, resting[0].IsFilled())
	assert.True(t, taker.IsFilled())
	assert.Equal(t, uint64(10000), book.LastTradedPrice())
	assert.Zero(t, book.Account().Position())
	assert.Zero(t, book.Account().Cash())
}

func TestGetBasePrice_FallbackChain(t *testing.T) {
	book := newTestBook(t)
	f := &orderFactory{t: t}

	// Empty book, nothing traded: previous close.
	assert.Equal(t, testPrevClose, book.GetBasePrice(Bid))
	assert.Equal(t, testPrevClose, book.GetBasePrice(Ask))

	// Best opposing price wins once liquidity exists.
	asks := f.limit(book, Ask, 10200, 10)
	assert.Equal(t, uint64(10200), book.GetBasePrice(Bid))
	assert.Equal(t, testPrevClose, book.GetBasePrice(Ask))

	// Trade, then clear the book: last traded price wins.
	taker := f.order(Limit, Bid, 10, 10200)
	require.NoError(t, book.AddOrder(taker))
	require.False(t, book.HasOrder(asks[0].ID()))
	assert.Equal(t, uint64(10200), book.GetBasePrice(Bid))
	assert.Equal(t, uint64(10200), book.GetBasePrice(Ask))
}

func TestPriceBand(t *testing.T) {
	book := newTestBook(t)

	assert.Equal(t, uint64(11000), book.GetUpLimit())
	assert.Equal(t, uint64(9000), book.GetDownLimit())
	assert.True(t, book.IsPriceWithinAllowedRange(10000))
	assert.True(t, book.IsPriceWithinAllowedRange(9000))
	assert.True(t, book.IsPriceWithinAllowedRange(11000))
	assert.False(t, book.IsPriceWithinAllowedRange(8999))
	assert.False(t, book.IsPriceWithinAllowedRange(11001))

	// No previous close means no band.
	unseeded := NewOrderBook(testSymbol, 0, 0)
	assert.Equal(t, uint64(math.MaxUint64), unseeded.GetUpLimit())
	assert.Zero(t, unseeded.GetDownLimit())
}
