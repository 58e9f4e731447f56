package domain

import (
	"fmt"
	"time"
)

// Side indicates whether an order buys or sells.
type Side string

const (
	SideBuy  Side = "Buy"
	SideSell Side = "Sell"
)

// ParseSide accepts the wire spelling ("Buy"/"Sell") and the lowercase
// forms.
func ParseSide(s string) (Side, error) {
	switch s {
	case "Buy", "buy", "BUY":
		return SideBuy, nil
	case "Sell", "sell", "SELL":
		return SideSell, nil
	}
	return "", InvalidOrder(fmt.Sprintf("order_type must be 'Buy' or 'Sell', got %q", s))
}

// Opposite returns the side an order of this side matches against.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderStatus represents the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusOpen            OrderStatus = "open"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusCancelled       OrderStatus = "cancelled"
)

// Terminal reports whether no further transition is possible.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusFilled || s == OrderStatusCancelled
}

// ValidOrderStatuses lists all valid order status values for validation.
var ValidOrderStatuses = map[OrderStatus]bool{
	OrderStatusOpen:            true,
	OrderStatusPartiallyFilled: true,
	OrderStatusFilled:          true,
	OrderStatusCancelled:       true,
}

// Order is a limit buy or sell instruction submitted by a user.
type Order struct {
	OrderID           uint64
	UserID            string
	Side              Side
	Symbol            string
	Price             int64
	Quantity          int64
	FilledQuantity    int64
	RemainingQuantity int64
	CancelledQuantity int64
	Notional          int64 // sum of price × quantity over all fills
	Status            OrderStatus
	Seq               uint64
	CreatedAt         time.Time
	CancelledAt       *time.Time
}

// IsOpen reports whether the order can still trade.
func (o *Order) IsOpen() bool {
	return o.RemainingQuantity > 0 && !o.Status.Terminal()
}

// Fill records an execution of qty at price against the order and advances
// its status. The caller guarantees qty <= RemainingQuantity.
func (o *Order) Fill(qty, price int64) {
	o.RemainingQuantity -= qty
	o.FilledQuantity += qty
	o.Notional += qty * price
	if o.RemainingQuantity == 0 {
		o.Status = OrderStatusFilled
	} else {
		o.Status = OrderStatusPartiallyFilled
	}
}

// Cancel moves the remaining quantity to CancelledQuantity.
func (o *Order) Cancel(at time.Time) {
	o.CancelledQuantity = o.RemainingQuantity
	o.RemainingQuantity = 0
	o.Status = OrderStatusCancelled
	o.CancelledAt = &at
}

// AveragePrice computes the volume-weighted average execution price using
// integer arithmetic. Returns (0, false) when nothing has been filled.
func (o *Order) AveragePrice() (int64, bool) {
	if o.FilledQuantity == 0 {
		return 0, false
	}
	return o.Notional / o.FilledQuantity, true
}
