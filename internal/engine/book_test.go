package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/efreitasn/minibroker/internal/domain"
)

var baseTime = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// makeOrder creates an open order whose sequence equals its id.
func makeOrder(id uint64, user string, side domain.Side, price, qty int64) *domain.Order {
	return &domain.Order{
		OrderID:           id,
		UserID:            user,
		Side:              side,
		Symbol:            "AAPL",
		Price:             price,
		Quantity:          qty,
		RemainingQuantity: qty,
		Status:            domain.OrderStatusOpen,
		Seq:               id,
		CreatedAt:         baseTime,
	}
}

func entry(price int64, seq uint64) OrderBookEntry {
	return OrderBookEntry{Price: price, Seq: seq}
}

func TestBidLess_PriceDescending(t *testing.T) {
	if !bidLess(entry(200, 2), entry(100, 1)) {
		t.Error("expected higher bid price to sort first")
	}
	if bidLess(entry(100, 1), entry(200, 2)) {
		t.Error("expected lower bid price to sort after")
	}
}

func TestBidLess_SeqAscending(t *testing.T) {
	if !bidLess(entry(100, 1), entry(100, 2)) {
		t.Error("expected earlier bid to sort first at the same price")
	}
}

func TestAskLess_PriceAscending(t *testing.T) {
	if !askLess(entry(100, 2), entry(200, 1)) {
		t.Error("expected lower ask price to sort first")
	}
}

func TestAskLess_SeqAscending(t *testing.T) {
	if !askLess(entry(100, 1), entry(100, 2)) {
		t.Error("expected earlier ask to sort first at the same price")
	}
}

func TestOrderBook_InsertAndBest(t *testing.T) {
	ob := NewOrderBook("AAPL")
	ob.Insert(makeOrder(1, "u", domain.SideBuy, 100, 10))
	ob.Insert(makeOrder(2, "u", domain.SideBuy, 200, 5))
	ob.Insert(makeOrder(3, "u", domain.SideSell, 300, 5))
	ob.Insert(makeOrder(4, "u", domain.SideSell, 250, 5))

	bid, ok := ob.BestBid()
	if !ok || bid.Order.OrderID != 2 {
		t.Errorf("expected best bid order 2, got %+v", bid)
	}
	ask, ok := ob.BestAsk()
	if !ok || ask.Order.OrderID != 4 {
		t.Errorf("expected best ask order 4, got %+v", ask)
	}
	if ob.BidCount() != 2 || ob.AskCount() != 2 {
		t.Errorf("expected 2/2 orders, got %d/%d", ob.BidCount(), ob.AskCount())
	}
}

func TestOrderBook_EmptyBest(t *testing.T) {
	ob := NewOrderBook("AAPL")
	if _, ok := ob.BestBid(); ok {
		t.Error("expected no best bid on empty book")
	}
	if _, ok := ob.BestAsk(); ok {
		t.Error("expected no best ask on empty book")
	}
}

func TestOrderBook_Remove(t *testing.T) {
	ob := NewOrderBook("AAPL")
	ob.Insert(makeOrder(1, "u", domain.SideBuy, 100, 10))
	ob.Insert(makeOrder(2, "u", domain.SideBuy, 200, 5))

	if !ob.Remove(2) {
		t.Fatal("expected order 2 to be removed")
	}
	best, ok := ob.BestBid()
	if !ok || best.Order.OrderID != 1 {
		t.Errorf("expected best bid 1 after removing 2, got %+v", best)
	}
	if ob.Remove(2) {
		t.Error("expected second removal to report false")
	}
	if ob.Contains(2) {
		t.Error("removed order still indexed")
	}
}

func TestOrderBook_Cancel(t *testing.T) {
	ob := NewOrderBook("AAPL")
	o := makeOrder(1, "u", domain.SideSell, 100, 10)
	ob.Insert(o)

	got, err := ob.Cancel(1, baseTime)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != domain.OrderStatusCancelled || got.CancelledQuantity != 10 || got.RemainingQuantity != 0 {
		t.Errorf("unexpected cancelled order %+v", got)
	}
	if ob.AskCount() != 0 {
		t.Errorf("expected empty ask side, got %d", ob.AskCount())
	}

	if _, err := ob.Cancel(1, baseTime); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Errorf("expected ErrOrderNotFound on second cancel, got %v", err)
	}
}

func TestOrderBook_Match_RestingPriceAndPriority(t *testing.T) {
	ob := NewOrderBook("AAPL")
	ob.Insert(makeOrder(1, "s1", domain.SideSell, 101, 5))
	ob.Insert(makeOrder(2, "s2", domain.SideSell, 100, 5))
	ob.Insert(makeOrder(3, "s3", domain.SideSell, 100, 5))
	ob.Insert(makeOrder(4, "s4", domain.SideSell, 105, 5))

	incoming := makeOrder(5, "b", domain.SideBuy, 102, 12)

	type fill struct {
		resting uint64
		qty     int64
		price   int64
	}
	var fills []fill
	_, err := ob.Match(incoming, SelfTradeAllow, baseTime, func(resting *domain.Order, qty, price int64) error {
		fills = append(fills, fill{resting.OrderID, qty, price})
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []fill{{2, 5, 100}, {3, 5, 100}, {1, 2, 101}}
	if len(fills) != len(want) {
		t.Fatalf("expected %d fills, got %v", len(want), fills)
	}
	for i := range want {
		if fills[i] != want[i] {
			t.Errorf("fill %d: expected %+v, got %+v", i, want[i], fills[i])
		}
	}
	if incoming.RemainingQuantity != 0 || incoming.Status != domain.OrderStatusFilled {
		t.Errorf("expected incoming filled, got %+v", incoming)
	}
	best, _ := ob.BestAsk()
	if best.Order.OrderID != 1 || best.Order.RemainingQuantity != 3 ||
		best.Order.Status != domain.OrderStatusPartiallyFilled {
		t.Errorf("expected order 1 partially filled at top, got %+v", best.Order)
	}
	if ob.AskCount() != 2 {
		t.Errorf("expected 2 asks left, got %d", ob.AskCount())
	}
}

func TestOrderBook_Match_NoCross(t *testing.T) {
	ob := NewOrderBook("AAPL")
	ob.Insert(makeOrder(1, "b", domain.SideBuy, 99, 5))

	incoming := makeOrder(2, "s", domain.SideSell, 100, 5)
	called := false
	_, err := ob.Match(incoming, SelfTradeAllow, baseTime, func(*domain.Order, int64, int64) error {
		called = true
		return nil
	})
	if err != nil || called {
		t.Fatalf("expected no fills, err=%v called=%v", err, called)
	}
	if incoming.RemainingQuantity != 5 {
		t.Errorf("expected remaining 5, got %d", incoming.RemainingQuantity)
	}
}

func TestOrderBook_Match_FillErrorLeavesOrders(t *testing.T) {
	ob := NewOrderBook("AAPL")
	resting := makeOrder(1, "b", domain.SideBuy, 100, 5)
	ob.Insert(resting)

	incoming := makeOrder(2, "s", domain.SideSell, 100, 5)
	boom := errors.New("boom")
	_, err := ob.Match(incoming, SelfTradeAllow, baseTime, func(*domain.Order, int64, int64) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fill error, got %v", err)
	}
	if incoming.RemainingQuantity != 5 || resting.RemainingQuantity != 5 {
		t.Errorf("orders mutated after failed fill: incoming=%d resting=%d",
			incoming.RemainingQuantity, resting.RemainingQuantity)
	}
	if !ob.Contains(1) {
		t.Error("resting order removed after failed fill")
	}
}

func TestOrderBook_Match_SelfTradeCancelResting(t *testing.T) {
	ob := NewOrderBook("AAPL")
	ob.Insert(makeOrder(1, "u", domain.SideSell, 100, 5))
	ob.Insert(makeOrder(2, "other", domain.SideSell, 101, 5))

	incoming := makeOrder(3, "u", domain.SideBuy, 101, 5)
	var filled []uint64
	res, err := ob.Match(incoming, SelfTradeCancelResting, baseTime, func(r *domain.Order, _, _ int64) error {
		filled = append(filled, r.OrderID)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Cancelled) != 1 || res.Cancelled[0].OrderID != 1 {
		t.Fatalf("expected order 1 cancelled, got %+v", res.Cancelled)
	}
	if res.Cancelled[0].Status != domain.OrderStatusCancelled {
		t.Errorf("expected cancelled status, got %s", res.Cancelled[0].Status)
	}
	if len(filled) != 1 || filled[0] != 2 {
		t.Errorf("expected fill against order 2 only, got %v", filled)
	}
}

func TestOrderBook_Match_SelfTradeCancelIncoming(t *testing.T) {
	ob := NewOrderBook("AAPL")
	ob.Insert(makeOrder(1, "u", domain.SideSell, 100, 5))

	incoming := makeOrder(2, "u", domain.SideBuy, 100, 5)
	res, err := ob.Match(incoming, SelfTradeCancelIncoming, baseTime, func(*domain.Order, int64, int64) error {
		t.Fatal("fill must not be called")
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.SelfTradeStopped {
		t.Error("expected SelfTradeStopped")
	}
	if !ob.Contains(1) {
		t.Error("resting order should stay on the book")
	}
}

func TestOrderBook_TopBids(t *testing.T) {
	ob := NewOrderBook("AAPL")
	// 3 bids at 2 price levels: 200 (2 orders) and 100 (1 order).
	ob.Insert(makeOrder(1, "u", domain.SideBuy, 200, 10))
	ob.Insert(makeOrder(2, "u", domain.SideBuy, 200, 5))
	ob.Insert(makeOrder(3, "u", domain.SideBuy, 100, 20))

	levels := ob.TopBids(5)
	if len(levels) != 2 {
		t.Fatalf("expected 2 price levels, got %d", len(levels))
	}
	if levels[0].Price != 200 || levels[0].TotalQuantity != 15 || levels[0].OrderCount != 2 {
		t.Errorf("level 0: got price=%d qty=%d count=%d", levels[0].Price, levels[0].TotalQuantity, levels[0].OrderCount)
	}
	if levels[1].Price != 100 || levels[1].TotalQuantity != 20 || levels[1].OrderCount != 1 {
		t.Errorf("level 1: got price=%d qty=%d count=%d", levels[1].Price, levels[1].TotalQuantity, levels[1].OrderCount)
	}

	if got := ob.TopBids(1); len(got) != 1 || got[0].Price != 200 {
		t.Errorf("expected single level at 200, got %v", got)
	}
}

func TestOrderBook_TopAsks(t *testing.T) {
	ob := NewOrderBook("AAPL")
	ob.Insert(makeOrder(1, "u", domain.SideSell, 100, 10))
	ob.Insert(makeOrder(2, "u", domain.SideSell, 100, 5))
	ob.Insert(makeOrder(3, "u", domain.SideSell, 200, 20))

	levels := ob.TopAsks(5)
	if len(levels) != 2 {
		t.Fatalf("expected 2 price levels, got %d", len(levels))
	}
	if levels[0].Price != 100 || levels[0].TotalQuantity != 15 || levels[0].OrderCount != 2 {
		t.Errorf("level 0: got price=%d qty=%d count=%d", levels[0].Price, levels[0].TotalQuantity, levels[0].OrderCount)
	}
	if ob.TopAsks(0) != nil {
		t.Error("expected nil for n=0")
	}
}

func TestOrderBook_WalkBids_StopEarly(t *testing.T) {
	ob := NewOrderBook("AAPL")
	ob.Insert(makeOrder(1, "u", domain.SideBuy, 100, 1))
	ob.Insert(makeOrder(2, "u", domain.SideBuy, 300, 1))
	ob.Insert(makeOrder(3, "u", domain.SideBuy, 200, 1))

	var prices []int64
	ob.WalkBids(func(e OrderBookEntry) bool {
		prices = append(prices, e.Price)
		return len(prices) < 2
	})
	if len(prices) != 2 || prices[0] != 300 || prices[1] != 200 {
		t.Errorf("expected [300 200], got %v", prices)
	}
}

func TestBookManager_GetOrCreate(t *testing.T) {
	bm := NewBookManager()
	book1 := bm.GetOrCreate("AAPL")
	if book1 == nil {
		t.Fatal("expected non-nil book")
	}
	if book1.Symbol() != "AAPL" {
		t.Errorf("expected symbol AAPL, got %s", book1.Symbol())
	}

	// Same symbol returns same book.
	if bm.GetOrCreate("AAPL") != book1 {
		t.Error("expected same book instance for same symbol")
	}
	if bm.GetOrCreate("GOOG") == book1 {
		t.Error("expected different book for different symbol")
	}

	syms := bm.Symbols()
	if len(syms) != 2 || syms[0] != "AAPL" || syms[1] != "GOOG" {
		t.Errorf("expected [AAPL GOOG], got %v", syms)
	}
	if _, ok := bm.Get("MSFT"); ok {
		t.Error("expected no book for MSFT")
	}
}

func TestBookManager_GetOrCreate_Concurrent(t *testing.T) {
	bm := NewBookManager()
	const goroutines = 50
	results := make(chan *OrderBook, goroutines)

	for i := 0; i < goroutines; i++ {
		go func() {
			results <- bm.GetOrCreate("AAPL")
		}()
	}

	var first *OrderBook
	for i := 0; i < goroutines; i++ {
		book := <-results
		if first == nil {
			first = book
		} else if book != first {
			t.Error("expected all goroutines to get the same book instance")
		}
	}
}

func TestSequencer_Monotonic(t *testing.T) {
	s := NewSequencer(0)
	if s.Current() != 0 {
		t.Fatalf("expected current 0, got %d", s.Current())
	}
	prev := s.Next()
	if prev != 1 {
		t.Fatalf("expected first id 1, got %d", prev)
	}
	for i := 0; i < 100; i++ {
		next := s.Next()
		if next <= prev {
			t.Fatalf("sequence went backwards: %d after %d", next, prev)
		}
		prev = next
	}
}

func TestParseSelfTradePolicy(t *testing.T) {
	cases := map[string]SelfTradePolicy{
		"":                "allow",
		"allow":           SelfTradeAllow,
		"cancel_resting":  SelfTradeCancelResting,
		"cancel_incoming": SelfTradeCancelIncoming,
	}
	for in, want := range cases {
		got, err := ParseSelfTradePolicy(in)
		if err != nil || got != want {
			t.Errorf("ParseSelfTradePolicy(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseSelfTradePolicy("reject"); err == nil {
		t.Error("expected error for unknown policy")
	}
}
