package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/efreitasn/minibroker/internal/domain"
	"github.com/efreitasn/minibroker/internal/service"
)

// Users is the account surface the user routes need.
type Users interface {
	CreateUser() (string, error)
	UserExists(userID string) bool
	AddBalance(userID string) (int64, error)
	RemoveBalance(userID string, amount int64) (int64, error)
	GetBalance(userID string) (*service.BalanceResponse, error)
	AddStock(userID, symbol string, amount int64) (int64, error)
	RemoveStock(userID, symbol string, amount int64) (int64, error)
	Stocks(userID string) (map[string]int64, error)
	Stock(userID, symbol string) (*service.StockBalance, error)
}

// UserHandler handles HTTP requests for user endpoints.
type UserHandler struct {
	users  Users
	orders Orders
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(users Users, orders Orders) *UserHandler {
	return &UserHandler{users: users, orders: orders}
}

type balanceResponse struct {
	Balance   int64 `json:"balance"`
	Reserved  int64 `json:"reserved"`
	Available int64 `json:"available"`
}

type stockResponse struct {
	Symbol    string `json:"symbol"`
	Balance   int64  `json:"balance"`
	Reserved  *int64 `json:"reserved,omitempty"`
	Available *int64 `json:"available,omitempty"`
}

// orderListResponse is the JSON response for GET /user/{user_id}/orders.
type orderListResponse struct {
	Orders []orderResponse `json:"orders"`
	Total  int             `json:"total"`
	Page   int             `json:"page"`
	Limit  int             `json:"limit"`
}

// Create handles POST /user.
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	id, err := h.users.CreateUser()
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"user_id": id})
}

// Exists handles GET /user/{user_id}/exists.
func (h *UserHandler) Exists(w http.ResponseWriter, r *http.Request) {
	exists := h.users.UserExists(chi.URLParam(r, "user_id"))
	WriteJSON(w, http.StatusOK, map[string]bool{"exists": exists})
}

// AddBalance handles POST /user/{user_id}/balance/add.
func (h *UserHandler) AddBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := h.users.AddBalance(chi.URLParam(r, "user_id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]int64{"balance": balance})
}

// RemoveBalance handles POST /user/{user_id}/balance/remove/{amount}.
func (h *UserHandler) RemoveBalance(w http.ResponseWriter, r *http.Request) {
	amount, err := amountParam(r, "amount")
	if err != nil {
		writeDomainError(w, err)
		return
	}
	balance, err := h.users.RemoveBalance(chi.URLParam(r, "user_id"), amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]int64{"balance": balance})
}

// GetBalance handles GET /user/{user_id}/balance.
func (h *UserHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	b, err := h.users.GetBalance(chi.URLParam(r, "user_id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, balanceResponse{
		Balance:   b.Balance,
		Reserved:  b.Reserved,
		Available: b.Available,
	})
}

// GetStocks handles GET /user/{user_id}/stocks.
func (h *UserHandler) GetStocks(w http.ResponseWriter, r *http.Request) {
	stocks, err := h.users.Stocks(chi.URLParam(r, "user_id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"stocks": stocks})
}

// GetStock handles GET /user/{user_id}/stocks/{symbol}.
func (h *UserHandler) GetStock(w http.ResponseWriter, r *http.Request) {
	s, err := h.users.Stock(chi.URLParam(r, "user_id"), chi.URLParam(r, "symbol"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, stockResponse{
		Symbol:    s.Symbol,
		Balance:   s.Balance,
		Reserved:  &s.Reserved,
		Available: &s.Available,
	})
}

// AddStock handles POST /user/{user_id}/stocks/{symbol}/add/{amount}.
func (h *UserHandler) AddStock(w http.ResponseWriter, r *http.Request) {
	amount, err := amountParam(r, "amount")
	if err != nil {
		writeDomainError(w, err)
		return
	}
	symbol := chi.URLParam(r, "symbol")
	balance, err := h.users.AddStock(chi.URLParam(r, "user_id"), symbol, amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, stockResponse{Symbol: symbol, Balance: balance})
}

// RemoveStock handles POST /user/{user_id}/stocks/{symbol}/remove/{amount}.
func (h *UserHandler) RemoveStock(w http.ResponseWriter, r *http.Request) {
	amount, err := amountParam(r, "amount")
	if err != nil {
		writeDomainError(w, err)
		return
	}
	symbol := chi.URLParam(r, "symbol")
	balance, err := h.users.RemoveStock(chi.URLParam(r, "user_id"), symbol, amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, stockResponse{Symbol: symbol, Balance: balance})
}

// ListOrders handles GET /user/{user_id}/orders.
func (h *UserHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")

	var status *domain.OrderStatus
	if s := r.URL.Query().Get("status"); s != "" {
		st := domain.OrderStatus(s)
		status = &st
	}

	page := 1
	if p := r.URL.Query().Get("page"); p != "" {
		v, err := strconv.Atoi(p)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "validation_error", "page must be a valid integer")
			return
		}
		page = v
	}

	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		v, err := strconv.Atoi(l)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "validation_error", "limit must be a valid integer")
			return
		}
		limit = v
	}

	orders, total, err := h.orders.ListOrders(userID, status, page, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := orderListResponse{
		Orders: make([]orderResponse, len(orders)),
		Total:  total,
		Page:   page,
		Limit:  limit,
	}
	for i := range orders {
		resp.Orders[i] = buildOrderResponse(&orders[i])
	}
	WriteJSON(w, http.StatusOK, resp)
}
