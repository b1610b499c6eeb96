package engine

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMarket(t *testing.T) *Market {
	t.Helper()
	m := NewMarket()
	m.SetInvariantChecks(true)
	require.NoError(t, m.AddSymbol(1, "IF1601", 10000, 100))
	require.NoError(t, m.AddSymbol(2, "IF1602", 20000, 0))
	return m
}

func TestMarket_AddSymbol(t *testing.T) {
	m := newTestMarket(t)

	assert.ErrorIs(t, m.AddSymbol(1, "IF1601", 10000, 0), ErrDuplicateSymbol)
	assert.True(t, m.HasSymbol(1))
	assert.False(t, m.HasSymbol(9))

	name, ok := m.SymbolName(2)
	require.True(t, ok)
	assert.Equal(t, "IF1602", name)
}

func TestMarket_DeleteSymbol(t *testing.T) {
	m := newTestMarket(t)

	require.NoError(t, m.DeleteSymbol(2))
	assert.False(t, m.HasSymbol(2))
	assert.ErrorIs(t, m.DeleteSymbol(2), ErrSymbolNotFound)
}

func TestMarket_RoutesBySymbol(t *testing.T) {
	m := newTestMarket(t)

	o, err := NewOrder(Limit, Bid, 1, 1, 10, 9900)
	require.NoError(t, err)
	require.NoError(t, m.AddOrder(o))

	book1, err := m.Book(1)
	require.NoError(t, err)
	book2, err := m.Book(2)
	require.NoError(t, err)
	assert.True(t, book1.HasOrder(1))
	assert.False(t, book2.HasOrder(1))

	stray, err := NewOrder(Limit, Bid, 2, 9, 10, 9900)
	require.NoError(t, err)
	assert.ErrorIs(t, m.AddOrder(stray), ErrSymbolNotFound)

	require.NoError(t, m.DeleteOrder(1, 1))
	assert.False(t, book1.HasOrder(1))
}

func TestMarket_CalculatePnlUsesLastTradedPrice(t *testing.T) {
	m := newTestMarket(t)

	resting, err := NewOrder(Limit, Ask, 1, 1, 10, 10100)
	require.NoError(t, err)
	require.NoError(t, m.AddOrder(resting))
	taker, err := NewOrder(Limit, Bid, 2, 1, 10, 10100)
	require.NoError(t, err)
	require.NoError(t, m.AddOrder(taker))

	// 110 held at 101.00 against 100 seeded at 100.00, minus the cash paid.
	pnl, err := m.CalculatePnl(1)
	require.NoError(t, err)
	assert.Equal(t, int64(110*10100-100*10000-10*10100), pnl)

	_, err = m.CalculatePnl(9)
	assert.ErrorIs(t, err, ErrSymbolNotFound)
}

func TestMarket_Dump(t *testing.T) {
	m := newTestMarket(t)

	path := filepath.Join(t.TempDir(), "books")
	require.NoError(t, m.Dump(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, "SYMBOL ID : 1")
	assert.Contains(t, text, "SYMBOL ID : 2")
	// Books render in symbol order.
	assert.Less(t, strings.Index(text, "SYMBOL ID : 1"), strings.Index(text, "SYMBOL ID : 2"))
}
