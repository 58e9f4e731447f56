package handler

import (
	"net/http"

	"github.com/efreitasn/minibroker/internal/domain"
	"github.com/efreitasn/minibroker/internal/service"
)

// Orders is the order surface the order and user routes need.
type Orders interface {
	PlaceOrder(req service.PlaceOrderRequest) (*service.PlaceOrderResponse, error)
	GetOrder(orderID uint64) (domain.Order, error)
	OrderStatus(orderID uint64) (bool, error)
	OrderTrades(orderID uint64) ([]*domain.Trade, error)
	CancelOrder(orderID uint64) (domain.Order, error)
	ListOrders(userID string, status *domain.OrderStatus, page, limit int) ([]domain.Order, int, error)
}

// OrderHandler handles HTTP requests for order endpoints.
type OrderHandler struct {
	orders Orders
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(orders Orders) *OrderHandler {
	return &OrderHandler{orders: orders}
}

// placeOrderRequest is the JSON request body for POST /order/place.
type placeOrderRequest struct {
	UserID    string `json:"user_id"`
	OrderType string `json:"order_type"`
	Symbol    string `json:"symbol"`
	Price     int64  `json:"price"`
	Quantity  int64  `json:"quantity"`
}

// orderResponse is the JSON form of an order. Nullable fields use pointers.
type orderResponse struct {
	OrderID           uint64  `json:"order_id"`
	UserID            string  `json:"user_id"`
	OrderType         string  `json:"order_type"`
	Symbol            string  `json:"symbol"`
	Price             int64   `json:"price"`
	Quantity          int64   `json:"quantity"`
	FilledQuantity    int64   `json:"filled_quantity"`
	RemainingQuantity int64   `json:"remaining_quantity"`
	CancelledQuantity int64   `json:"cancelled_quantity"`
	Status            string  `json:"status"`
	AveragePrice      *int64  `json:"average_price"`
	CreatedAt         string  `json:"created_at"`
	CancelledAt       *string `json:"cancelled_at"`
}

// placeOrderResponse carries the "order" id key existing clients read.
type placeOrderResponse struct {
	Order uint64 `json:"order"`
	orderResponse
	Trades []tradeResponse `json:"trades"`
}

// tradeResponse is a single trade. CounterpartyOrderID is set when the
// trade is listed relative to one order.
type tradeResponse struct {
	TradeID             uint64  `json:"trade_id"`
	Symbol              string  `json:"symbol"`
	Price               int64   `json:"price"`
	Quantity            int64   `json:"quantity"`
	BuyOrderID          uint64  `json:"buy_order_id"`
	SellOrderID         uint64  `json:"sell_order_id"`
	CounterpartyOrderID *uint64 `json:"counterparty_order_id,omitempty"`
	Aggressor           string  `json:"aggressor"`
	ExecutedAt          string  `json:"executed_at"`
}

// Place handles POST /order/place.
func (h *OrderHandler) Place(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	resp, err := h.orders.PlaceOrder(service.PlaceOrderRequest{
		UserID:    req.UserID,
		OrderType: req.OrderType,
		Symbol:    req.Symbol,
		Price:     req.Price,
		Quantity:  req.Quantity,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, placeOrderResponse{
		Order:         resp.Order.OrderID,
		orderResponse: buildOrderResponse(&resp.Order),
		Trades:        buildTradeResponses(resp.Trades, resp.Order.OrderID),
	})
}

// Get handles GET /order/{order_id}.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := orderIDParam(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	o, err := h.orders.GetOrder(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildOrderResponse(&o))
}

// Status handles GET /order/status/{order_id}.
func (h *OrderHandler) Status(w http.ResponseWriter, r *http.Request) {
	id, err := orderIDParam(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	open, err := h.orders.OrderStatus(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]bool{"opened": open})
}

// Trades handles GET /order/trades/{order_id}.
func (h *OrderHandler) Trades(w http.ResponseWriter, r *http.Request) {
	id, err := orderIDParam(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	trades, err := h.orders.OrderTrades(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"trades": buildTradeResponses(trades, id)})
}

// Cancel handles POST /order/{order_id}/cancel.
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := orderIDParam(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	o, err := h.orders.CancelOrder(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildOrderResponse(&o))
}

func buildOrderResponse(o *domain.Order) orderResponse {
	resp := orderResponse{
		OrderID:           o.OrderID,
		UserID:            o.UserID,
		OrderType:         string(o.Side),
		Symbol:            o.Symbol,
		Price:             o.Price,
		Quantity:          o.Quantity,
		FilledQuantity:    o.FilledQuantity,
		RemainingQuantity: o.RemainingQuantity,
		CancelledQuantity: o.CancelledQuantity,
		Status:            string(o.Status),
		CreatedAt:         formatTime(o.CreatedAt),
	}
	if avg, ok := o.AveragePrice(); ok {
		resp.AveragePrice = &avg
	}
	if o.CancelledAt != nil {
		s := formatTime(*o.CancelledAt)
		resp.CancelledAt = &s
	}
	return resp
}

// buildTradeResponses converts domain trades to response trades. A non-zero
// orderID fills in the counterparty of each trade relative to that order.
func buildTradeResponses(trades []*domain.Trade, orderID uint64) []tradeResponse {
	result := make([]tradeResponse, len(trades))
	for i, t := range trades {
		result[i] = tradeResponse{
			TradeID:     t.TradeID,
			Symbol:      t.Symbol,
			Price:       t.Price,
			Quantity:    t.Quantity,
			BuyOrderID:  t.BuyOrderID,
			SellOrderID: t.SellOrderID,
			Aggressor:   string(t.Aggressor),
			ExecutedAt:  formatTime(t.ExecutedAt),
		}
		if orderID != 0 && t.Involves(orderID) {
			cp := t.CounterpartyOrderID(orderID)
			result[i].CounterpartyOrderID = &cp
		}
	}
	return result
}
