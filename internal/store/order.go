package store

import (
	"sync"

	"github.com/efreitasn/minibroker/internal/domain"
)

// OrderStore is a thread-safe in-memory registry of orders, with a
// primary index by order id and a secondary index by user id. Orders are
// never removed.
//
// The store hands out the live *domain.Order. Its mutable fields belong to
// the engine and are guarded by the owning symbol's book lock; only the
// immutable fields (id, user, side, symbol, price, quantity) may be read
// without it.
type OrderStore struct {
	mu         sync.RWMutex
	orders     map[uint64]*domain.Order
	userOrders map[string][]*domain.Order // user_id → orders (append-only)
}

// NewOrderStore creates an empty OrderStore.
func NewOrderStore() *OrderStore {
	return &OrderStore{
		orders:     make(map[uint64]*domain.Order),
		userOrders: make(map[string][]*domain.Order),
	}
}

// Create adds an order to the store and appends it to the user's
// secondary index.
func (s *OrderStore) Create(o *domain.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.orders[o.OrderID] = o
	s.userOrders[o.UserID] = append(s.userOrders[o.UserID], o)
}

// Get retrieves an order by id. It returns domain.ErrOrderNotFound if the
// order does not exist.
func (s *OrderStore) Get(id uint64) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return o, nil
}

// ListByUser returns the user's orders newest first.
func (s *OrderStore) ListByUser(userID string) []*domain.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.userOrders[userID]
	out := make([]*domain.Order, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		out = append(out, all[i])
	}
	return out
}

// Len returns the number of orders ever created.
func (s *OrderStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.orders)
}

// Page filters snapshots by status (when non-nil) and returns the 1-based
// page of them along with the total count of matching orders before
// pagination. Input order is preserved.
func Page(orders []domain.Order, status *domain.OrderStatus, page, limit int) ([]domain.Order, int) {
	filtered := make([]domain.Order, 0, len(orders))
	for _, o := range orders {
		if status != nil && o.Status != *status {
			continue
		}
		filtered = append(filtered, o)
	}

	total := len(filtered)

	start := (page - 1) * limit
	if start >= total {
		return []domain.Order{}, total
	}
	end := start + limit
	if end > total {
		end = total
	}
	return filtered[start:end], total
}
