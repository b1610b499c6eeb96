package engine

import "errors"

var (
	ErrInvalidQuantity      = errors.New("order quantity must be positive")
	ErrInvalidPrice         = errors.New("order type resolves its own price, price must be zero")
	ErrOrderNotFound        = errors.New("order not found")
	ErrSymbolNotFound       = errors.New("symbol not found")
	ErrDuplicateSymbol      = errors.New("symbol already exists")
	ErrRejection            = errors.New("order rejection")
	ErrInsufficientPosition = errors.New("cannot sell more than current position")
	ErrNotLimitOrder        = errors.New("price-less execution requires a limit order")
)

type Side int

const (
	Bid Side = iota
	Ask
)

func (s Side) String() string {
	switch s {
	case Bid:
		return "BID"
	case Ask:
		return "ASK"
	}
	return "UNKNOWN"
}

// Opposite returns the side an order of side s trades against.
func (s Side) Opposite() Side {
	if s == Bid {
		return Ask
	}
	return Bid
}

// OrderType selects how an order resolves its price and what happens to any
// unmatched remainder.
//
// Limit orders carry a caller-supplied price and may rest on the book.
// CounterpartyBest resolves to the best price on the opposite side at
// submission and then behaves as a limit order; SelfBest does the same with
// the best price on its own side. Both are silently dropped when the relevant
// side is empty. Top5IOC takes liquidity up to the worst price within the
// opposing best five levels, IOC takes anything available, and FOK takes
// anything available but only if the full quantity can be matched at once.
// None of the last three ever rest; their remainders are cancelled.
type OrderType int

const (
	Limit OrderType = iota
	CounterpartyBest
	SelfBest
	Top5IOC
	IOC
	FOK
)

func (t OrderType) String() string {
	switch t {
	case Limit:
		return "LIMIT"
	case CounterpartyBest:
		return "CPBP"
	case SelfBest:
		return "SBP"
	case Top5IOC:
		return "TOP5_IOC_CANCEL"
	case IOC:
		return "IOC_CANCEL"
	case FOK:
		return "FOK"
	}
	return "UNKNOWN"
}
