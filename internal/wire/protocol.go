// Package wire ships session results to the collection server over TCP and
// implements the server side. A message is a fixed header followed by the
// pnl payload and then the twap payload, all little-endian. The header
// carries explicit record counts so the receiver can frame the payloads and
// read several messages off one connection.
package wire

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"

	"kestrel/internal/feed"
)

const headerSize = 28

// Header frames one result message. Year, month, day and the session
// parameters identify the output file pair the payloads belong to.
type Header struct {
	Year      uint32
	Month     uint32
	Day       uint32
	Slices    uint32
	Interval  uint32
	PnlCount  uint32
	TwapCount uint32
}

// ParseName builds a header from a result file name of the form
// YYYYMMDD_slices_interval.
func ParseName(name string) (Header, error) {
	var h Header
	n, err := fmt.Sscanf(name, "%4d%2d%2d_%d_%d", &h.Year, &h.Month, &h.Day, &h.Slices, &h.Interval)
	if err != nil || n != 5 {
		return Header{}, fmt.Errorf("bad result name %q", name)
	}
	return h, nil
}

// Name is the inverse of ParseName.
func (h Header) Name() string {
	return fmt.Sprintf("%04d%02d%02d_%d_%d", h.Year, h.Month, h.Day, h.Slices, h.Interval)
}

func (h Header) encode(b []byte) {
	binary.LittleEndian.PutUint32(b[0:4], h.Year)
	binary.LittleEndian.PutUint32(b[4:8], h.Month)
	binary.LittleEndian.PutUint32(b[8:12], h.Day)
	binary.LittleEndian.PutUint32(b[12:16], h.Slices)
	binary.LittleEndian.PutUint32(b[16:20], h.Interval)
	binary.LittleEndian.PutUint32(b[20:24], h.PnlCount)
	binary.LittleEndian.PutUint32(b[24:28], h.TwapCount)
}

func decodeHeader(b []byte) Header {
	return Header{
		Year:      binary.LittleEndian.Uint32(b[0:4]),
		Month:     binary.LittleEndian.Uint32(b[4:8]),
		Day:       binary.LittleEndian.Uint32(b[8:12]),
		Slices:    binary.LittleEndian.Uint32(b[12:16]),
		Interval:  binary.LittleEndian.Uint32(b[16:20]),
		PnlCount:  binary.LittleEndian.Uint32(b[20:24]),
		TwapCount: binary.LittleEndian.Uint32(b[24:28]),
	}
}

// EncodeMessage renders the full wire image of one result message.
func EncodeMessage(h Header, pnl []feed.PnlAndPos, twap []feed.TwapOrder) []byte {
	h.PnlCount = uint32(len(pnl))
	h.TwapCount = uint32(len(twap))

	buf := make([]byte, 0, headerSize+len(pnl)*feed.PnlAndPosSize+len(twap)*feed.TwapOrderSize)
	var hdr [headerSize]byte
	h.encode(hdr[:])
	buf = append(buf, hdr[:]...)
	buf = append(buf, feed.EncodePnlAndPos(pnl)...)
	buf = append(buf, feed.EncodeTwapOrders(twap)...)
	return buf
}

// Send dials the collector and delivers one session's results. The name
// must be a valid result file name; it becomes the file pair the collector
// writes.
func Send(ctx context.Context, addr, name string, pnl []feed.PnlAndPos, twap []feed.TwapOrder) error {
	h, err := ParseName(name)
	if err != nil {
		return err
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial collector: %w", err)
	}
	defer conn.Close()

	if _, err := conn.Write(EncodeMessage(h, pnl, twap)); err != nil {
		return fmt.Errorf("send results: %w", err)
	}
	return nil
}
