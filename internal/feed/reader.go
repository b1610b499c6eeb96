package feed

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
)

const readBufferSize = 64 * 1024

// Dataset subdirectories. Input files live under the data directory, result
// files under the output directory, each named by dataset.
const (
	OrderLogDir      = "order_log"
	AlphaDir         = "alpha"
	PrevTradeInfoDir = "prev_trade_info"
	TwapOrderDir     = "twap_order"
	PnlAndPosDir     = "pnl_and_pos"
)

// readRecords streams a packed record file into memory. The file length
// must be an exact multiple of the record size.
func readRecords[T any](path string, size int, decode func([]byte) T) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open record file: %w", err)
	}
	defer f.Close()

	var out []T
	if st, err := f.Stat(); err == nil {
		out = make([]T, 0, st.Size()/int64(size))
	}

	r := bufio.NewReaderSize(f, readBufferSize)
	buf := make([]byte, size)
	for {
		_, err := io.ReadFull(r, buf)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%s: truncated record: %w", path, err)
		}
		out = append(out, decode(buf))
	}
}

func ReadOrderLogs(path string) ([]OrderLog, error) {
	return readRecords(path, OrderLogSize, decodeOrderLog)
}

func ReadAlphas(path string) ([]Alpha, error) {
	return readRecords(path, AlphaSize, decodeAlpha)
}

func ReadPrevTradeInfos(path string) ([]PrevTradeInfo, error) {
	return readRecords(path, PrevTradeInfoSize, decodePrevTradeInfo)
}

func ReadTwapOrders(path string) ([]TwapOrder, error) {
	return readRecords(path, TwapOrderSize, decodeTwapOrder)
}

func ReadPnlAndPos(path string) ([]PnlAndPos, error) {
	return readRecords(path, PnlAndPosSize, decodePnlAndPos)
}
