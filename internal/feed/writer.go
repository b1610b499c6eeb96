package feed

import (
	"fmt"
	"os"
)

// EncodeTwapOrders packs the records into one contiguous buffer, the exact
// byte image of a twap_order output file.
func EncodeTwapOrders(recs []TwapOrder) []byte {
	buf := make([]byte, len(recs)*TwapOrderSize)
	for i, rec := range recs {
		rec.encode(buf[i*TwapOrderSize:])
	}
	return buf
}

// EncodePnlAndPos packs the records into one contiguous buffer.
func EncodePnlAndPos(recs []PnlAndPos) []byte {
	buf := make([]byte, len(recs)*PnlAndPosSize)
	for i, rec := range recs {
		rec.encode(buf[i*PnlAndPosSize:])
	}
	return buf
}

func WriteTwapOrders(path string, recs []TwapOrder) error {
	if err := os.WriteFile(path, EncodeTwapOrders(recs), 0o644); err != nil {
		return fmt.Errorf("write twap orders: %w", err)
	}
	return nil
}

func WritePnlAndPos(path string, recs []PnlAndPos) error {
	if err := os.WriteFile(path, EncodePnlAndPos(recs), 0o644); err != nil {
		return fmt.Errorf("write pnl records: %w", err)
	}
	return nil
}
