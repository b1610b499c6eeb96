// Package replay feeds a day of recorded market events and position signals
// through the matching engine. Each session merges three time-ordered
// streams: historical orders, target-position signals, and the execution
// slices those signals spawn, then reports the schedule it traded and the
// per-instrument profit it ended with.
package replay

import (
	"bytes"
	"errors"
	"sort"

	"github.com/rs/zerolog"

	"kestrel/internal/config"
	"kestrel/internal/engine"
	"kestrel/internal/feed"
	"kestrel/internal/symbol"
)

// Market is the surface a session needs, satisfied by both the
// single-threaded engine market and the sharded one.
type Market interface {
	AddSymbol(symbolID uint32, name string, prevClosePrice, prevPosition uint64) error
	HasSymbol(symbolID uint32) bool
	AddOrder(o *engine.Order) error
	GetBasePrice(symbolID uint32, side engine.Side) (uint64, error)
	Position(symbolID uint32) (uint64, error)
	CalculatePnl(symbolID uint32) (int64, error)
}

// singleMarket adapts *engine.Market to the session surface.
type singleMarket struct{ *engine.Market }

func (m singleMarket) Position(symbolID uint32) (uint64, error) {
	account, err := m.Account(symbolID)
	if err != nil {
		return 0, err
	}
	return account.Position(), nil
}

// Wrap exposes an unsharded market as a session Market.
func Wrap(m *engine.Market) Market {
	return singleMarket{m}
}

// Result is one session's output: the execution schedule actually derived,
// and the closing position and profit per instrument.
type Result struct {
	Twap []feed.TwapOrder
	Pnl  []feed.PnlAndPos
}

// Session replays one pass of the day's streams with a given slicing
// policy. A session owns its order ID sequence; the market it drives must
// start empty.
type Session struct {
	spec   config.SessionSpec
	market Market
	reg    *symbol.Registry
	log    zerolog.Logger

	lastOrderID uint64
}

func NewSession(spec config.SessionSpec, m Market, logger zerolog.Logger) *Session {
	return &Session{
		spec:   spec,
		market: m,
		reg:    symbol.NewRegistry(),
		log:    logger.With().Str("session", spec.String()).Logger(),
	}
}

func (s *Session) nextOrderID() uint64 {
	s.lastOrderID++
	return s.lastOrderID
}

// Run seeds the market from the previous session's trade info, merges the
// order and signal streams in timestamp order, and collects the results.
// Ties go to order events first, then signals; a pending execution slice
// fires only when it is strictly earliest.
func (s *Session) Run(orders []feed.OrderLog, alphas []feed.Alpha, prev []feed.PrevTradeInfo) (Result, error) {
	seeded := make([]feed.PrevTradeInfo, 0, len(prev))
	for _, info := range prev {
		id := s.reg.GetSymbolID(info.InstrumentID)
		position := info.PrevPosition
		if position < 0 {
			s.log.Warn().
				Str("instrument", info.InstrumentID.Name()).
				Int32("position", position).
				Msg("negative previous position clamped to zero")
			position = 0
		}
		err := s.market.AddSymbol(id, info.InstrumentID.Name(), priceTicks(info.PrevClosePrice), uint64(position))
		if errors.Is(err, engine.ErrDuplicateSymbol) {
			s.log.Warn().Str("instrument", info.InstrumentID.Name()).Msg("duplicate instrument in previous trade info")
			continue
		}
		if err != nil {
			return Result{}, err
		}
		seeded = append(seeded, info)
	}

	var result Result
	var pending sliceHeap
	oi, ai := 0, 0
	for oi < len(orders) || ai < len(alphas) || pending.Len() > 0 {
		switch {
		case oi < len(orders) &&
			(ai >= len(alphas) || orders[oi].Timestamp <= alphas[ai].Timestamp) &&
			(pending.Len() == 0 || orders[oi].Timestamp <= pending.peek().Timestamp):
			s.applyOrderLog(orders[oi])
			oi++
		case ai < len(alphas) &&
			(pending.Len() == 0 || alphas[ai].Timestamp <= pending.peek().Timestamp):
			s.applyAlpha(alphas[ai], &pending)
			ai++
		default:
			result.Twap = append(result.Twap, s.applySlice(pending.pop()))
		}
	}

	for _, info := range seeded {
		id := s.reg.GetSymbolID(info.InstrumentID)
		position, err := s.market.Position(id)
		if err != nil {
			return Result{}, err
		}
		pnl, err := s.market.CalculatePnl(id)
		if err != nil {
			return Result{}, err
		}
		result.Pnl = append(result.Pnl, feed.PnlAndPos{
			InstrumentID: info.InstrumentID,
			Position:     int32(position),
			Pnl:          float64(pnl) / 100,
		})
	}

	sortResult(&result)
	return result, nil
}

// applyOrderLog converts a historical order event into an engine order and
// submits it. Limit prices are rebuilt from the side's base price plus the
// recorded tick offset; an offset that would push the price below zero
// drops the event.
func (s *Session) applyOrderLog(rec feed.OrderLog) {
	id := s.reg.GetSymbolID(rec.InstrumentID)
	if !s.market.HasSymbol(id) {
		s.log.Debug().Str("instrument", rec.InstrumentID.Name()).Msg("order for unseeded instrument dropped")
		return
	}
	typ, ok := orderTypeOf(rec.Type)
	if !ok {
		s.log.Warn().Int32("type", rec.Type).Msg("unknown order type in log")
		return
	}
	if rec.Volume <= 0 {
		s.log.Warn().Int32("volume", rec.Volume).Msg("non-positive order volume in log")
		return
	}
	side := sideOf(rec.Direction)

	var price uint64
	if typ == engine.Limit {
		base, err := s.market.GetBasePrice(id, side)
		if err != nil {
			s.log.Warn().Err(err).Str("instrument", rec.InstrumentID.Name()).Msg("base price lookup failed")
			return
		}
		off := offsetTicks(rec.PriceOffset)
		if off < 0 && base < uint64(-off) {
			s.log.Debug().
				Str("instrument", rec.InstrumentID.Name()).
				Uint64("base", base).
				Int64("offset", off).
				Msg("order dropped, offset undercuts zero")
			return
		}
		price = uint64(int64(base) + off)
	}

	o, err := engine.NewOrder(typ, side, s.nextOrderID(), id, uint64(rec.Volume), price)
	if err != nil {
		s.log.Warn().Err(err).Str("instrument", rec.InstrumentID.Name()).Msg("order log record rejected")
		return
	}
	if err := s.market.AddOrder(o); err != nil {
		if errors.Is(err, engine.ErrRejection) {
			s.log.Debug().Uint64("order", o.ID()).Msg("fill-or-kill order rejected")
			return
		}
		s.log.Warn().Err(err).Uint64("order", o.ID()).Msg("add order failed")
	}
}

// applyAlpha turns a target-position signal into evenly spread execution
// slices against the current position. A signal that matches the position
// exactly is a no-op.
func (s *Session) applyAlpha(rec feed.Alpha, pending *sliceHeap) {
	id := s.reg.GetSymbolID(rec.InstrumentID)
	position, err := s.market.Position(id)
	if err != nil {
		s.log.Warn().Str("instrument", rec.InstrumentID.Name()).Msg("signal for unseeded instrument dropped")
		return
	}
	diff := int64(rec.TargetVolume) - int64(position)
	if diff == 0 {
		return
	}
	direction := int32(1)
	if diff < 0 {
		direction = -1
		diff = -diff
	}
	interval := int64(s.spec.IntervalSec) * 1000
	for i, v := range SliceVolumes(diff, s.spec.Slices) {
		pending.push(feed.TwapOrder{
			InstrumentID: rec.InstrumentID,
			Timestamp:    rec.Timestamp + int64(i)*interval,
			Direction:    direction,
			Volume:       int32(v),
		})
	}
}

// applySlice fires one due execution slice: it stamps the slice with the
// base price at fire time and, for non-empty slices, submits the matching
// limit order. Every fired slice is recorded, empty or not.
func (s *Session) applySlice(rec feed.TwapOrder) feed.TwapOrder {
	id := s.reg.GetSymbolID(rec.InstrumentID)
	side := sideOf(rec.Direction)
	base, err := s.market.GetBasePrice(id, side)
	if err != nil {
		s.log.Warn().Err(err).Str("instrument", rec.InstrumentID.Name()).Msg("slice base price lookup failed")
		return rec
	}
	rec.Price = float64(base) / 100
	if rec.Volume == 0 {
		return rec
	}
	o, err := engine.NewOrder(engine.Limit, side, s.nextOrderID(), id, uint64(rec.Volume), base)
	if err == nil {
		err = s.market.AddOrder(o)
	}
	if err != nil && !errors.Is(err, engine.ErrRejection) {
		s.log.Warn().Err(err).Str("instrument", rec.InstrumentID.Name()).Msg("slice order failed")
	}
	return rec
}

func sortResult(r *Result) {
	sort.SliceStable(r.Twap, func(i, j int) bool {
		if r.Twap[i].Timestamp != r.Twap[j].Timestamp {
			return r.Twap[i].Timestamp < r.Twap[j].Timestamp
		}
		return bytes.Compare(r.Twap[i].InstrumentID[:], r.Twap[j].InstrumentID[:]) < 0
	})
	sort.SliceStable(r.Pnl, func(i, j int) bool {
		return bytes.Compare(r.Pnl[i].InstrumentID[:], r.Pnl[j].InstrumentID[:]) < 0
	})
}

func sideOf(direction int32) engine.Side {
	if direction == 1 {
		return engine.Bid
	}
	return engine.Ask
}

func orderTypeOf(t int32) (engine.OrderType, bool) {
	switch t {
	case 0:
		return engine.Limit, true
	case 1:
		return engine.CounterpartyBest, true
	case 2:
		return engine.SelfBest, true
	case 3:
		return engine.Top5IOC, true
	case 4:
		return engine.IOC, true
	case 5:
		return engine.FOK, true
	}
	return 0, false
}

// priceTicks converts a decimal price to fixed-point ticks, rounding half
// up.
func priceTicks(price float64) uint64 {
	return uint64(price*100 + 0.5)
}

// offsetTicks converts a signed decimal price offset to ticks, rounding
// half away from zero.
func offsetTicks(offset float64) int64 {
	scaled := offset * 100
	if scaled >= 0 {
		return int64(scaled + 0.5)
	}
	return int64(scaled - 0.5)
}
