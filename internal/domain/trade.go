package domain

import "time"

// Trade represents a matched execution between a buy and a sell order.
// Trades are immutable once created.
type Trade struct {
	TradeID     uint64
	Symbol      string
	BuyOrderID  uint64
	SellOrderID uint64
	BuyerID     string
	SellerID    string
	Price       int64
	Quantity    int64
	Aggressor   Side
	ExecutedAt  time.Time
}

// CounterpartyOrderID returns the id of the other order in the trade, or 0
// when orderID took part on neither side.
func (t *Trade) CounterpartyOrderID(orderID uint64) uint64 {
	switch orderID {
	case t.BuyOrderID:
		return t.SellOrderID
	case t.SellOrderID:
		return t.BuyOrderID
	}
	return 0
}

// Involves reports whether orderID is one of the two sides of the trade.
func (t *Trade) Involves(orderID uint64) bool {
	return t.BuyOrderID == orderID || t.SellOrderID == orderID
}
