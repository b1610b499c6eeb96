package engine

import "fmt"

// Order is a single trading intent together with its execution state.
// Orders are created through NewOrder and mutated only by the book that
// owns them: price resolution on insertion and fills during matching.
type Order struct {
	typ      OrderType
	side     Side
	id       uint64
	symbolID uint32

	// Fixed-point price, real price x100. Zero until resolved for the
	// market order variants.
	price uint64

	quantity             uint64
	executedQuantity     uint64
	openQuantity         uint64
	lastExecutedPrice    uint64
	lastExecutedQuantity uint64

	// Intrusive FIFO links, spliced by the level the order rests in.
	next, prev *Order
}

// NewOrder validates and builds an order. Quantity must be positive. Only
// limit, self-best and counterparty-best orders may carry a price; the
// remaining market variants resolve their price during matching and must be
// submitted with price zero.
func NewOrder(typ OrderType, side Side, id uint64, symbolID uint32, quantity, price uint64) (*Order, error) {
	if quantity == 0 {
		return nil, ErrInvalidQuantity
	}
	if typ != Limit && typ != SelfBest && typ != CounterpartyBest && price != 0 {
		return nil, ErrInvalidPrice
	}
	return &Order{
		typ:          typ,
		side:         side,
		id:           id,
		symbolID:     symbolID,
		price:        price,
		quantity:     quantity,
		openQuantity: quantity,
	}, nil
}

// Execute applies a fill of qty at price. The caller guarantees
// qty <= OpenQuantity() and is responsible for the corresponding level
// volume and account updates.
func (o *Order) Execute(price, qty uint64) {
	o.openQuantity -= qty
	o.executedQuantity += qty
	o.lastExecutedPrice = price
	o.lastExecutedQuantity = qty
}

func (o *Order) Type() OrderType              { return o.typ }
func (o *Order) Side() Side                   { return o.side }
func (o *Order) ID() uint64                   { return o.id }
func (o *Order) SymbolID() uint32             { return o.symbolID }
func (o *Order) Price() uint64                { return o.price }
func (o *Order) Quantity() uint64             { return o.quantity }
func (o *Order) ExecutedQuantity() uint64     { return o.executedQuantity }
func (o *Order) OpenQuantity() uint64         { return o.openQuantity }
func (o *Order) LastExecutedPrice() uint64    { return o.lastExecutedPrice }
func (o *Order) LastExecutedQuantity() uint64 { return o.lastExecutedQuantity }

func (o *Order) IsFilled() bool { return o.openQuantity == 0 }
func (o *Order) IsBid() bool    { return o.side == Bid }
func (o *Order) IsAsk() bool    { return o.side == Ask }

func (o *Order) String() string {
	return fmt.Sprintf(
		`Symbol ID: %d
Order ID: %d
Type: %v
Side: %v
Price: %d
Quantity: %d
Open Quantity: %d`,
		o.symbolID, o.id, o.typ, o.side, o.price, o.quantity, o.openQuantity,
	)
}
