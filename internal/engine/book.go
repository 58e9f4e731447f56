package engine

import (
	"sort"
	"sync"
	"time"

	"github.com/google/btree"

	"github.com/efreitasn/minibroker/internal/domain"
)

// OrderBookEntry represents a single order resting on the book.
type OrderBookEntry struct {
	Price int64
	Seq   uint64
	Order *domain.Order
}

// PriceLevel represents an aggregated price level in the order book.
type PriceLevel struct {
	Price         int64
	TotalQuantity int64
	OrderCount    int
}

// bidLess orders the bid side by price descending, then sequence
// ascending. Min() returns the best bid.
func bidLess(a, b OrderBookEntry) bool {
	if a.Price != b.Price {
		return a.Price > b.Price
	}
	return a.Seq < b.Seq
}

// askLess orders the ask side by price ascending, then sequence
// ascending. Min() returns the best ask.
func askLess(a, b OrderBookEntry) bool {
	if a.Price != b.Price {
		return a.Price < b.Price
	}
	return a.Seq < b.Seq
}

// FillFunc settles one execution of qty at price between the incoming
// order and resting. A non-nil error leaves both orders untouched and stops
// matching.
type FillFunc func(resting *domain.Order, qty, price int64) error

// MatchResult reports what Match did besides filling.
type MatchResult struct {
	// Cancelled holds resting orders removed under SelfTradeCancelResting.
	Cancelled []*domain.Order
	// SelfTradeStopped is set when matching stopped at an order of the same
	// user under SelfTradeCancelIncoming.
	SelfTradeStopped bool
}

// OrderBook maintains the bid and ask sides for a single symbol using
// B-trees with a secondary index for O(log n) removal by order id.
//
// mu serializes placement, matching and cancellation for the symbol. The
// mutable fields of every order of the symbol are guarded by it.
type OrderBook struct {
	symbol string
	mu     sync.RWMutex
	bids   *btree.BTreeG[OrderBookEntry]
	asks   *btree.BTreeG[OrderBookEntry]
	index  map[uint64]OrderBookEntry // order_id → entry
}

// NewOrderBook creates an order book for the given symbol.
func NewOrderBook(symbol string) *OrderBook {
	const degree = 32
	return &OrderBook{
		symbol: symbol,
		bids:   btree.NewG[OrderBookEntry](degree, bidLess),
		asks:   btree.NewG[OrderBookEntry](degree, askLess),
		index:  make(map[uint64]OrderBookEntry),
	}
}

// Symbol returns the symbol the book trades.
func (ob *OrderBook) Symbol() string {
	return ob.symbol
}

// RLock acquires the read lock on the order book.
func (ob *OrderBook) RLock() {
	ob.mu.RLock()
}

// RUnlock releases the read lock on the order book.
func (ob *OrderBook) RUnlock() {
	ob.mu.RUnlock()
}

func (ob *OrderBook) side(s domain.Side) *btree.BTreeG[OrderBookEntry] {
	if s == domain.SideBuy {
		return ob.bids
	}
	return ob.asks
}

// Insert rests an order on its side of the book.
func (ob *OrderBook) Insert(o *domain.Order) {
	entry := OrderBookEntry{Price: o.Price, Seq: o.Seq, Order: o}
	ob.side(o.Side).ReplaceOrInsert(entry)
	ob.index[o.OrderID] = entry
}

// Remove deletes an order from the book by id. It reports whether the
// order was resting.
func (ob *OrderBook) Remove(orderID uint64) bool {
	entry, ok := ob.index[orderID]
	if !ok {
		return false
	}
	delete(ob.index, orderID)
	ob.side(entry.Order.Side).Delete(entry)
	return true
}

// Contains reports whether the order is resting on the book.
func (ob *OrderBook) Contains(orderID uint64) bool {
	_, ok := ob.index[orderID]
	return ok
}

// Cancel removes a resting order and marks it cancelled. It returns
// domain.ErrOrderAlreadyTerminal if the order is no longer open and
// domain.ErrOrderNotFound if it is not on this book.
func (ob *OrderBook) Cancel(orderID uint64, at time.Time) (*domain.Order, error) {
	entry, ok := ob.index[orderID]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	if !entry.Order.IsOpen() {
		return nil, domain.ErrOrderAlreadyTerminal
	}
	ob.Remove(orderID)
	entry.Order.Cancel(at)
	return entry.Order, nil
}

func crosses(incoming *domain.Order, resting OrderBookEntry) bool {
	if incoming.Side == domain.SideBuy {
		return incoming.Price >= resting.Price
	}
	return incoming.Price <= resting.Price
}

// Match executes incoming against the opposite side while the best resting
// order crosses and incoming has quantity left. Each execution is for
// min(incoming remaining, resting remaining) at the resting order's price,
// and both orders are only updated after fill succeeds. Fully filled
// resting orders leave the book. Match never rests incoming.
//
// Every iteration either removes a resting order or exhausts incoming, so
// the loop is bounded by the number of resting orders.
func (ob *OrderBook) Match(incoming *domain.Order, policy SelfTradePolicy, at time.Time, fill FillFunc) (MatchResult, error) {
	var res MatchResult
	opposite := ob.side(incoming.Side.Opposite())

	for incoming.RemainingQuantity > 0 {
		best, found := opposite.Min()
		if !found || !crosses(incoming, best) {
			break
		}
		resting := best.Order

		if resting.UserID == incoming.UserID {
			switch policy {
			case SelfTradeCancelResting:
				ob.Remove(resting.OrderID)
				resting.Cancel(at)
				res.Cancelled = append(res.Cancelled, resting)
				continue
			case SelfTradeCancelIncoming:
				res.SelfTradeStopped = true
				return res, nil
			}
		}

		qty := min(incoming.RemainingQuantity, resting.RemainingQuantity)
		price := resting.Price

		if err := fill(resting, qty, price); err != nil {
			return res, err
		}

		incoming.Fill(qty, price)
		resting.Fill(qty, price)
		if resting.RemainingQuantity == 0 {
			ob.Remove(resting.OrderID)
		}
	}
	return res, nil
}

// BestBid returns the highest-priority bid (highest price, lowest sequence).
func (ob *OrderBook) BestBid() (OrderBookEntry, bool) {
	return ob.bids.Min()
}

// BestAsk returns the highest-priority ask (lowest price, lowest sequence).
func (ob *OrderBook) BestAsk() (OrderBookEntry, bool) {
	return ob.asks.Min()
}

// TopBids returns up to n aggregated price levels from the bid side,
// ordered by price descending.
func (ob *OrderBook) TopBids(n int) []PriceLevel {
	return topLevels(ob.bids, n)
}

// TopAsks returns up to n aggregated price levels from the ask side,
// ordered by price ascending.
func (ob *OrderBook) TopAsks(n int) []PriceLevel {
	return topLevels(ob.asks, n)
}

// topLevels iterates the B-tree in order and aggregates entries into
// at most n price levels.
func topLevels(tree *btree.BTreeG[OrderBookEntry], n int) []PriceLevel {
	if n <= 0 {
		return nil
	}
	levels := make([]PriceLevel, 0, n)
	tree.Ascend(func(entry OrderBookEntry) bool {
		if len(levels) > 0 && levels[len(levels)-1].Price == entry.Price {
			levels[len(levels)-1].TotalQuantity += entry.Order.RemainingQuantity
			levels[len(levels)-1].OrderCount++
			return true
		}
		if len(levels) >= n {
			return false
		}
		levels = append(levels, PriceLevel{
			Price:         entry.Price,
			TotalQuantity: entry.Order.RemainingQuantity,
			OrderCount:    1,
		})
		return true
	})
	return levels
}

// WalkAsks iterates asks in priority order. The callback returns true to
// continue, false to stop.
func (ob *OrderBook) WalkAsks(fn func(OrderBookEntry) bool) {
	ob.asks.Ascend(fn)
}

// WalkBids iterates bids in priority order. The callback returns true to
// continue, false to stop.
func (ob *OrderBook) WalkBids(fn func(OrderBookEntry) bool) {
	ob.bids.Ascend(fn)
}

// BidCount returns the number of individual bid orders on the book.
func (ob *OrderBook) BidCount() int {
	return ob.bids.Len()
}

// AskCount returns the number of individual ask orders on the book.
func (ob *OrderBook) AskCount() int {
	return ob.asks.Len()
}

// BookManager is a thread-safe map of symbol → OrderBook.
type BookManager struct {
	mu    sync.RWMutex
	books map[string]*OrderBook
}

// NewBookManager creates a new BookManager.
func NewBookManager() *BookManager {
	return &BookManager{
		books: make(map[string]*OrderBook),
	}
}

// GetOrCreate returns the order book for the given symbol, creating
// one if it doesn't already exist.
func (bm *BookManager) GetOrCreate(symbol string) *OrderBook {
	bm.mu.RLock()
	book, ok := bm.books[symbol]
	bm.mu.RUnlock()
	if ok {
		return book
	}

	bm.mu.Lock()
	defer bm.mu.Unlock()
	// Double-check after acquiring write lock.
	if book, ok = bm.books[symbol]; ok {
		return book
	}
	book = NewOrderBook(symbol)
	bm.books[symbol] = book
	return book
}

// Get returns the order book for symbol if one was ever created.
func (bm *BookManager) Get(symbol string) (*OrderBook, bool) {
	bm.mu.RLock()
	defer bm.mu.RUnlock()

	book, ok := bm.books[symbol]
	return book, ok
}

// Symbols returns the symbols that have a book, sorted.
func (bm *BookManager) Symbols() []string {
	bm.mu.RLock()
	defer bm.mu.RUnlock()

	out := make([]string, 0, len(bm.books))
	for sym := range bm.books {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}
