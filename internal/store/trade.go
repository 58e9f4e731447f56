package store

import (
	"sync"

	"github.com/efreitasn/minibroker/internal/domain"
)

// TradeStore is a thread-safe append-only registry of trades, indexed by
// trade id, by order id (both sides) and by symbol. All index slices are
// in execution order.
type TradeStore struct {
	mu       sync.RWMutex
	byID     map[uint64]*domain.Trade
	byOrder  map[uint64][]*domain.Trade
	bySymbol map[string][]*domain.Trade
}

// NewTradeStore creates an empty TradeStore.
func NewTradeStore() *TradeStore {
	return &TradeStore{
		byID:     make(map[uint64]*domain.Trade),
		byOrder:  make(map[uint64][]*domain.Trade),
		bySymbol: make(map[string][]*domain.Trade),
	}
}

// Append records a trade under every index.
func (s *TradeStore) Append(t *domain.Trade) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.byID[t.TradeID] = t
	s.byOrder[t.BuyOrderID] = append(s.byOrder[t.BuyOrderID], t)
	if t.SellOrderID != t.BuyOrderID {
		s.byOrder[t.SellOrderID] = append(s.byOrder[t.SellOrderID], t)
	}
	s.bySymbol[t.Symbol] = append(s.bySymbol[t.Symbol], t)
}

// Get retrieves a trade by id.
func (s *TradeStore) Get(id uint64) (*domain.Trade, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.byID[id]
	return t, ok
}

// ByOrder returns the trades an order took part in, in execution order.
// Returns an empty slice if there are none.
func (s *TradeStore) ByOrder(orderID uint64) []*domain.Trade {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.byOrder[orderID])
}

// BySymbol returns all trades for a symbol in chronological order.
// Returns an empty slice if no trades exist for the symbol.
func (s *TradeStore) BySymbol(symbol string) []*domain.Trade {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.bySymbol[symbol])
}

// Last returns the most recent trade for a symbol.
func (s *TradeStore) Last(symbol string) (*domain.Trade, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	trades := s.bySymbol[symbol]
	if len(trades) == 0 {
		return nil, false
	}
	return trades[len(trades)-1], true
}

// Len returns the number of trades ever recorded.
func (s *TradeStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// clone copies the slice so callers cannot mutate the internal index.
func clone(trades []*domain.Trade) []*domain.Trade {
	result := make([]*domain.Trade, len(trades))
	copy(result, trades)
	return result
}
