// Package feed defines the fixed-width binary records exchanged with the
// replay datasets and the collection server, and the file readers/writers
// for them. Records are packed with no padding, multi-byte fields
// little-endian, matching the layout produced by the upstream data pipeline.
package feed

import (
	"encoding/binary"
	"math"

	"kestrel/internal/symbol"
)

// Packed record sizes in bytes.
const (
	OrderLogSize      = 36
	AlphaSize         = 20
	PrevTradeInfoSize = 20
	TwapOrderSize     = 32
	PnlAndPosSize     = 20
)

// OrderLog is one historical order event.
type OrderLog struct {
	InstrumentID symbol.InstrumentID
	Timestamp    int64
	Type         int32
	Direction    int32
	Volume       int32
	PriceOffset  float64
}

func decodeOrderLog(b []byte) OrderLog {
	var r OrderLog
	copy(r.InstrumentID[:], b[0:8])
	r.Timestamp = int64(binary.LittleEndian.Uint64(b[8:16]))
	r.Type = int32(binary.LittleEndian.Uint32(b[16:20]))
	r.Direction = int32(binary.LittleEndian.Uint32(b[20:24]))
	r.Volume = int32(binary.LittleEndian.Uint32(b[24:28]))
	r.PriceOffset = math.Float64frombits(binary.LittleEndian.Uint64(b[28:36]))
	return r
}

func (r OrderLog) encode(b []byte) {
	copy(b[0:8], r.InstrumentID[:])
	binary.LittleEndian.PutUint64(b[8:16], uint64(r.Timestamp))
	binary.LittleEndian.PutUint32(b[16:20], uint32(r.Type))
	binary.LittleEndian.PutUint32(b[20:24], uint32(r.Direction))
	binary.LittleEndian.PutUint32(b[24:28], uint32(r.Volume))
	binary.LittleEndian.PutUint64(b[28:36], math.Float64bits(r.PriceOffset))
}

// Alpha is one target-position signal.
type Alpha struct {
	InstrumentID symbol.InstrumentID
	Timestamp    int64
	TargetVolume int32
}

func decodeAlpha(b []byte) Alpha {
	var r Alpha
	copy(r.InstrumentID[:], b[0:8])
	r.Timestamp = int64(binary.LittleEndian.Uint64(b[8:16]))
	r.TargetVolume = int32(binary.LittleEndian.Uint32(b[16:20]))
	return r
}

func (r Alpha) encode(b []byte) {
	copy(b[0:8], r.InstrumentID[:])
	binary.LittleEndian.PutUint64(b[8:16], uint64(r.Timestamp))
	binary.LittleEndian.PutUint32(b[16:20], uint32(r.TargetVolume))
}

// PrevTradeInfo seeds an instrument at session open.
type PrevTradeInfo struct {
	InstrumentID   symbol.InstrumentID
	PrevClosePrice float64
	PrevPosition   int32
}

func decodePrevTradeInfo(b []byte) PrevTradeInfo {
	var r PrevTradeInfo
	copy(r.InstrumentID[:], b[0:8])
	r.PrevClosePrice = math.Float64frombits(binary.LittleEndian.Uint64(b[8:16]))
	r.PrevPosition = int32(binary.LittleEndian.Uint32(b[16:20]))
	return r
}

func (r PrevTradeInfo) encode(b []byte) {
	copy(b[0:8], r.InstrumentID[:])
	binary.LittleEndian.PutUint64(b[8:16], math.Float64bits(r.PrevClosePrice))
	binary.LittleEndian.PutUint32(b[16:20], uint32(r.PrevPosition))
}

// TwapOrder is one derived execution-schedule slice.
type TwapOrder struct {
	InstrumentID symbol.InstrumentID
	Timestamp    int64
	Direction    int32
	Volume       int32
	Price        float64
}

func decodeTwapOrder(b []byte) TwapOrder {
	var r TwapOrder
	copy(r.InstrumentID[:], b[0:8])
	r.Timestamp = int64(binary.LittleEndian.Uint64(b[8:16]))
	r.Direction = int32(binary.LittleEndian.Uint32(b[16:20]))
	r.Volume = int32(binary.LittleEndian.Uint32(b[20:24]))
	r.Price = math.Float64frombits(binary.LittleEndian.Uint64(b[24:32]))
	return r
}

func (r TwapOrder) encode(b []byte) {
	copy(b[0:8], r.InstrumentID[:])
	binary.LittleEndian.PutUint64(b[8:16], uint64(r.Timestamp))
	binary.LittleEndian.PutUint32(b[16:20], uint32(r.Direction))
	binary.LittleEndian.PutUint32(b[20:24], uint32(r.Volume))
	binary.LittleEndian.PutUint64(b[24:32], math.Float64bits(r.Price))
}

// PnlAndPos is one derived per-instrument result.
type PnlAndPos struct {
	InstrumentID symbol.InstrumentID
	Position     int32
	Pnl          float64
}

func decodePnlAndPos(b []byte) PnlAndPos {
	var r PnlAndPos
	copy(r.InstrumentID[:], b[0:8])
	r.Position = int32(binary.LittleEndian.Uint32(b[8:12]))
	r.Pnl = math.Float64frombits(binary.LittleEndian.Uint64(b[12:20]))
	return r
}

func (r PnlAndPos) encode(b []byte) {
	copy(b[0:8], r.InstrumentID[:])
	binary.LittleEndian.PutUint32(b[8:12], uint32(r.Position))
	binary.LittleEndian.PutUint64(b[12:20], math.Float64bits(r.Pnl))
}
