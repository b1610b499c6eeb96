// Package shard fans a single-threaded market out across a fixed pool of
// workers. Symbols are partitioned statically: a symbol is pinned to one
// shard when it is added and never reassigned, so every operation on a
// given symbol serializes through the same worker and the books underneath
// need no locking.
package shard

import (
	"errors"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"kestrel/internal/engine"
)

const taskBacklog = 128

var ErrClosed = errors.New("sharded market is closed")

type task func(*engine.Market)

// Market is the sharded scale-out wrapper around N independent
// engine.Markets. Mutating operations are submitted to the owning shard and
// applied asynchronously; read operations block on a reply from the shard's
// worker. Reads that span shards (Dump) are assembled shard by shard and are
// not an atomic snapshot.
type Market struct {
	t       *tomb.Tomb
	markets []*engine.Market
	queues  []chan task

	mu    sync.Mutex
	index map[uint32]int // symbol ID -> pinned shard
	next  int            // round-robin cursor for new symbols
}

func New(shards int) *Market {
	if shards < 1 {
		shards = 1
	}
	m := &Market{
		t:       new(tomb.Tomb),
		markets: make([]*engine.Market, shards),
		queues:  make([]chan task, shards),
		index:   make(map[uint32]int),
	}
	for i := range m.markets {
		m.markets[i] = engine.NewMarket()
		m.queues[i] = make(chan task, taskBacklog)
		m.t.Go(m.worker(i))
	}
	return m
}

func (m *Market) worker(shard int) func() error {
	return func() error {
		mkt := m.markets[shard]
		for {
			select {
			case <-m.t.Dying():
				return nil
			case fn := <-m.queues[shard]:
				fn(mkt)
			}
		}
	}
}

// Close stops the workers and waits for them to exit. Queued tasks that have
// not been picked up are dropped.
func (m *Market) Close() error {
	m.t.Kill(nil)
	return m.t.Wait()
}

func (m *Market) submit(shard int, fn task) error {
	select {
	case <-m.t.Dying():
		return ErrClosed
	default:
	}
	select {
	case m.queues[shard] <- fn:
		return nil
	case <-m.t.Dying():
		return ErrClosed
	}
}

func (m *Market) shardOf(symbolID uint32) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	shard, ok := m.index[symbolID]
	if !ok {
		return 0, engine.ErrSymbolNotFound
	}
	return shard, nil
}

// AddSymbol pins the symbol to the next shard round-robin and creates its
// book there.
func (m *Market) AddSymbol(symbolID uint32, name string, prevClosePrice, prevPosition uint64) error {
	m.mu.Lock()
	if _, ok := m.index[symbolID]; ok {
		m.mu.Unlock()
		return engine.ErrDuplicateSymbol
	}
	shard := m.next
	m.next = (m.next + 1) % len(m.markets)
	m.index[symbolID] = shard
	m.mu.Unlock()

	return m.submit(shard, func(mkt *engine.Market) {
		if err := mkt.AddSymbol(symbolID, name, prevClosePrice, prevPosition); err != nil {
			log.Error().Err(err).Uint32("symbol", symbolID).Msg("add symbol failed")
		}
	})
}

// DeleteSymbol removes the symbol's book and unpins it from its shard.
func (m *Market) DeleteSymbol(symbolID uint32) error {
	m.mu.Lock()
	shard, ok := m.index[symbolID]
	if !ok {
		m.mu.Unlock()
		return engine.ErrSymbolNotFound
	}
	delete(m.index, symbolID)
	m.mu.Unlock()

	return m.submit(shard, func(mkt *engine.Market) {
		if err := mkt.DeleteSymbol(symbolID); err != nil {
			log.Error().Err(err).Uint32("symbol", symbolID).Msg("delete symbol failed")
		}
	})
}

func (m *Market) HasSymbol(symbolID uint32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.index[symbolID]
	return ok
}

// AddOrder routes the order to its symbol's shard. Matching errors are
// logged by the worker, not returned; the submission itself only fails for
// unknown symbols or a closed market.
func (m *Market) AddOrder(o *engine.Order) error {
	shard, err := m.shardOf(o.SymbolID())
	if err != nil {
		return err
	}
	return m.submit(shard, func(mkt *engine.Market) {
		if err := mkt.AddOrder(o); err != nil {
			log.Error().Err(err).
				Uint32("symbol", o.SymbolID()).
				Uint64("order", o.ID()).
				Msg("add order failed")
		}
	})
}

func (m *Market) DeleteOrder(symbolID uint32, orderID uint64) error {
	shard, err := m.shardOf(symbolID)
	if err != nil {
		return err
	}
	return m.submit(shard, func(mkt *engine.Market) {
		if err := mkt.DeleteOrder(symbolID, orderID); err != nil {
			log.Error().Err(err).
				Uint32("symbol", symbolID).
				Uint64("order", orderID).
				Msg("delete order failed")
		}
	})
}

func (m *Market) ExecuteOrder(symbolID uint32, orderID, quantity, price uint64) error {
	shard, err := m.shardOf(symbolID)
	if err != nil {
		return err
	}
	return m.submit(shard, func(mkt *engine.Market) {
		if err := mkt.ExecuteOrder(symbolID, orderID, quantity, price); err != nil {
			log.Error().Err(err).
				Uint32("symbol", symbolID).
				Uint64("order", orderID).
				Msg("execute order failed")
		}
	})
}

func (m *Market) ExecuteOrderAtLimit(symbolID uint32, orderID, quantity uint64) error {
	shard, err := m.shardOf(symbolID)
	if err != nil {
		return err
	}
	return m.submit(shard, func(mkt *engine.Market) {
		if err := mkt.ExecuteOrderAtLimit(symbolID, orderID, quantity); err != nil {
			log.Error().Err(err).
				Uint32("symbol", symbolID).
				Uint64("order", orderID).
				Msg("execute order failed")
		}
	})
}

// ask runs fn on the symbol's shard and waits for it, serializing the read
// behind every operation already queued for that symbol.
func (m *Market) ask(symbolID uint32, fn task) error {
	shard, err := m.shardOf(symbolID)
	if err != nil {
		return err
	}
	done := make(chan struct{})
	if err := m.submit(shard, func(mkt *engine.Market) {
		fn(mkt)
		close(done)
	}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-m.t.Dying():
		return ErrClosed
	}
}

func (m *Market) GetBasePrice(symbolID uint32, side engine.Side) (uint64, error) {
	var price uint64
	var opErr error
	err := m.ask(symbolID, func(mkt *engine.Market) {
		price, opErr = mkt.GetBasePrice(symbolID, side)
	})
	if err != nil {
		return 0, err
	}
	return price, opErr
}

// Position reports the symbol's current ledger position.
func (m *Market) Position(symbolID uint32) (uint64, error) {
	var position uint64
	var opErr error
	err := m.ask(symbolID, func(mkt *engine.Market) {
		account, err := mkt.Account(symbolID)
		if err != nil {
			opErr = err
			return
		}
		position = account.Position()
	})
	if err != nil {
		return 0, err
	}
	return position, opErr
}

func (m *Market) CalculatePnl(symbolID uint32) (int64, error) {
	var pnl int64
	var opErr error
	err := m.ask(symbolID, func(mkt *engine.Market) {
		pnl, opErr = mkt.CalculatePnl(symbolID)
	})
	if err != nil {
		return 0, err
	}
	return pnl, opErr
}

// Dump collects each shard's textual book dump behind its queued work and
// concatenates them. The result is consistent per shard but not across
// shards.
func (m *Market) Dump() (string, error) {
	parts := make([]string, len(m.markets))
	var wg sync.WaitGroup
	for i := range m.markets {
		shard := i
		done := make(chan struct{})
		if err := m.submit(shard, func(mkt *engine.Market) {
			parts[shard] = mkt.String()
			close(done)
		}); err != nil {
			return "", err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case <-done:
			case <-m.t.Dying():
			}
		}()
	}
	wg.Wait()
	select {
	case <-m.t.Dying():
		return "", ErrClosed
	default:
	}
	return strings.Join(parts, ""), nil
}
