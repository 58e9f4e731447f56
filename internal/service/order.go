package service

import (
	"fmt"

	"github.com/efreitasn/minibroker/internal/domain"
	"github.com/efreitasn/minibroker/internal/engine"
)

// PlaceOrderRequest is the transport-level order submission. OrderType is
// "Buy" or "Sell".
type PlaceOrderRequest struct {
	UserID    string
	OrderType string
	Symbol    string
	Price     int64
	Quantity  int64
}

// PlaceOrderResponse is the placed order and the trades it executed.
type PlaceOrderResponse struct {
	Order  domain.Order
	Trades []*domain.Trade
}

// OrderService handles order placement, retrieval, cancellation, and
// listing.
type OrderService struct {
	matcher *engine.Matcher
}

// NewOrderService creates a new OrderService.
func NewOrderService(matcher *engine.Matcher) *OrderService {
	return &OrderService{matcher: matcher}
}

// PlaceOrder parses the side and submits the order to the matching engine.
func (s *OrderService) PlaceOrder(req PlaceOrderRequest) (*PlaceOrderResponse, error) {
	side, err := domain.ParseSide(req.OrderType)
	if err != nil {
		return nil, err
	}
	if req.UserID == "" {
		return nil, domain.InvalidOrder("user_id is required")
	}

	order, trades, err := s.matcher.PlaceOrder(engine.PlaceOrderRequest{
		UserID:   req.UserID,
		Side:     side,
		Symbol:   req.Symbol,
		Price:    req.Price,
		Quantity: req.Quantity,
	})
	if err != nil {
		return nil, err
	}
	return &PlaceOrderResponse{Order: order, Trades: trades}, nil
}

// GetOrder retrieves a snapshot of an order.
func (s *OrderService) GetOrder(orderID uint64) (domain.Order, error) {
	return s.matcher.Order(orderID)
}

// OrderStatus reports whether the order is still open.
func (s *OrderService) OrderStatus(orderID uint64) (bool, error) {
	return s.matcher.OrderStatus(orderID)
}

// OrderTrades returns the order's trades in execution order.
func (s *OrderService) OrderTrades(orderID uint64) ([]*domain.Trade, error) {
	return s.matcher.OrderTrades(orderID)
}

// CancelOrder cancels an open or partially filled order.
func (s *OrderService) CancelOrder(orderID uint64) (domain.Order, error) {
	return s.matcher.CancelOrder(orderID)
}

// ListOrders returns a paginated list of a user's orders with optional
// status filtering.
func (s *OrderService) ListOrders(userID string, status *domain.OrderStatus, page, limit int) ([]domain.Order, int, error) {
	if status != nil && !domain.ValidOrderStatuses[*status] {
		return nil, 0, &domain.ValidationError{
			Kind:    domain.ErrInvalidOrder,
			Message: fmt.Sprintf("Invalid status filter: '%s'. Must be one of: open, partially_filled, filled, cancelled", *status),
		}
	}
	if page < 1 {
		return nil, 0, &domain.ValidationError{Kind: domain.ErrInvalidOrder, Message: "page must be >= 1"}
	}
	if limit < 1 || limit > 100 {
		return nil, 0, &domain.ValidationError{Kind: domain.ErrInvalidOrder, Message: "limit must be between 1 and 100"}
	}
	return s.matcher.ListOrders(userID, status, page, limit)
}
