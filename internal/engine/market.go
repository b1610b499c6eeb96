package engine

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

// Market owns one order book per symbol and routes operations by symbol ID.
// Like the books it owns, a Market expects a single logical thread of
// control; see the shard package for cross-symbol parallelism.
type Market struct {
	books map[uint32]*OrderBook
	names map[uint32]string

	checkInvariants bool
}

func NewMarket() *Market {
	return &Market{
		books: make(map[uint32]*OrderBook),
		names: make(map[uint32]string),
	}
}

// SetInvariantChecks toggles per-operation validation on every book,
// existing and future.
func (m *Market) SetInvariantChecks(on bool) {
	m.checkInvariants = on
	for _, book := range m.books {
		book.SetInvariantChecks(on)
	}
}

// AddSymbol creates the order book for a new symbol, seeded with the
// previous session's close price and position.
func (m *Market) AddSymbol(symbolID uint32, name string, prevClosePrice, prevPosition uint64) error {
	if _, ok := m.books[symbolID]; ok {
		return fmt.Errorf("symbol %d (%s): %w", symbolID, name, ErrDuplicateSymbol)
	}
	book := NewOrderBook(symbolID, prevClosePrice, prevPosition)
	book.SetInvariantChecks(m.checkInvariants)
	m.books[symbolID] = book
	m.names[symbolID] = name
	return nil
}

// DeleteSymbol destroys a symbol's book, dropping any resting orders.
func (m *Market) DeleteSymbol(symbolID uint32) error {
	if _, ok := m.books[symbolID]; !ok {
		return fmt.Errorf("symbol %d: %w", symbolID, ErrSymbolNotFound)
	}
	delete(m.books, symbolID)
	delete(m.names, symbolID)
	return nil
}

func (m *Market) HasSymbol(symbolID uint32) bool {
	_, ok := m.books[symbolID]
	return ok
}

// SymbolName returns the instrument name registered for a symbol ID.
func (m *Market) SymbolName(symbolID uint32) (string, bool) {
	name, ok := m.names[symbolID]
	return name, ok
}

func (m *Market) book(symbolID uint32) (*OrderBook, error) {
	book, ok := m.books[symbolID]
	if !ok {
		return nil, fmt.Errorf("symbol %d: %w", symbolID, ErrSymbolNotFound)
	}
	return book, nil
}

// Book exposes a symbol's order book for read-side inspection.
func (m *Market) Book(symbolID uint32) (*OrderBook, error) {
	return m.book(symbolID)
}

func (m *Market) AddOrder(o *Order) error {
	book, err := m.book(o.symbolID)
	if err != nil {
		return err
	}
	return book.AddOrder(o)
}

func (m *Market) DeleteOrder(symbolID uint32, orderID uint64) error {
	book, err := m.book(symbolID)
	if err != nil {
		return err
	}
	return book.DeleteOrder(orderID)
}

func (m *Market) ExecuteOrder(symbolID uint32, orderID, quantity, price uint64) error {
	book, err := m.book(symbolID)
	if err != nil {
		return err
	}
	return book.ExecuteOrder(orderID, quantity, price)
}

func (m *Market) ExecuteOrderAtLimit(symbolID uint32, orderID, quantity uint64) error {
	book, err := m.book(symbolID)
	if err != nil {
		return err
	}
	return book.ExecuteOrderAtLimit(orderID, quantity)
}

func (m *Market) GetBasePrice(symbolID uint32, side Side) (uint64, error) {
	book, err := m.book(symbolID)
	if err != nil {
		return 0, err
	}
	return book.GetBasePrice(side), nil
}

func (m *Market) GetUpLimit(symbolID uint32) (uint64, error) {
	book, err := m.book(symbolID)
	if err != nil {
		return 0, err
	}
	return book.GetUpLimit(), nil
}

func (m *Market) GetDownLimit(symbolID uint32) (uint64, error) {
	book, err := m.book(symbolID)
	if err != nil {
		return 0, err
	}
	return book.GetDownLimit(), nil
}

// Account exposes a symbol's PnL ledger.
func (m *Market) Account(symbolID uint32) (*PnlAccount, error) {
	book, err := m.book(symbolID)
	if err != nil {
		return nil, err
	}
	return book.account, nil
}

// CalculatePnl values a symbol's ledger at its last traded price.
func (m *Market) CalculatePnl(symbolID uint32) (int64, error) {
	book, err := m.book(symbolID)
	if err != nil {
		return 0, err
	}
	return book.account.CalculatePnl(book.lastTradedPrice), nil
}

// String renders every book, ordered by symbol ID for determinism.
func (m *Market) String() string {
	ids := make([]uint32, 0, len(m.books))
	for id := range m.books {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var sb strings.Builder
	for _, id := range ids {
		sb.WriteString(m.books[id].String())
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Dump writes the market's textual representation to a file.
func (m *Market) Dump(path string) error {
	return os.WriteFile(path, []byte(m.String()), 0o644)
}
