package engine

import "fmt"

// PnlAccount is the per-instrument cash and position ledger, embedded in the
// instrument's order book and updated once per fill.
type PnlAccount struct {
	prevClosePrice uint64
	prevPosition   uint64
	position       uint64
	cash           int64
}

func NewPnlAccount(prevClosePrice, prevPosition uint64) *PnlAccount {
	return &PnlAccount{
		prevClosePrice: prevClosePrice,
		prevPosition:   prevPosition,
		position:       prevPosition,
	}
}

// UpdateAccount applies one fill to the ledger. A bid fill grows the position
// and pays cash, an ask fill shrinks the position and collects cash. The
// position can never go short: an ask fill larger than the current position
// leaves the account untouched and reports ErrInsufficientPosition.
func (a *PnlAccount) UpdateAccount(side Side, executedPrice, executedQuantity uint64) error {
	notional := int64(executedPrice) * int64(executedQuantity)
	if side == Bid {
		a.position += executedQuantity
		a.cash -= notional
		return nil
	}
	if a.position < executedQuantity {
		return ErrInsufficientPosition
	}
	a.position -= executedQuantity
	a.cash += notional
	return nil
}

// CalculatePnl values the account at currentPrice:
// position*current - prev_position*prev_close + cash.
func (a *PnlAccount) CalculatePnl(currentPrice uint64) int64 {
	current := int64(a.position) * int64(currentPrice)
	prev := int64(a.prevPosition) * int64(a.prevClosePrice)
	return current - prev + a.cash
}

func (a *PnlAccount) PreviousClosePrice() uint64 { return a.prevClosePrice }
func (a *PnlAccount) PrevPosition() uint64       { return a.prevPosition }
func (a *PnlAccount) Position() uint64           { return a.position }
func (a *PnlAccount) Cash() int64                { return a.cash }

func (a *PnlAccount) String() string {
	return fmt.Sprintf(
		"Previous Close Price: %d\nPosition: %d\nPrevious Position: %d\nCash: %d\n",
		a.prevClosePrice, a.position, a.prevPosition, a.cash,
	)
}
