package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/efreitasn/minibroker/internal/domain"
	"github.com/efreitasn/minibroker/internal/engine"
	"github.com/efreitasn/minibroker/internal/service"
)

// Market is the market data surface the stock routes need.
type Market interface {
	LastPrice(symbol string) (*service.PriceResponse, error)
	SymbolTrades(symbol string) ([]*domain.Trade, error)
	Book(symbol string, depth int) (engine.DepthSnapshot, error)
	Symbols() []string
}

// MarketHandler handles HTTP requests for stock endpoints.
type MarketHandler struct {
	market       Market
	defaultDepth int
}

// NewMarketHandler creates a new MarketHandler. defaultDepth applies when
// the book request has no depth parameter.
func NewMarketHandler(market Market, defaultDepth int) *MarketHandler {
	if defaultDepth <= 0 {
		defaultDepth = 10
	}
	return &MarketHandler{market: market, defaultDepth: defaultDepth}
}

// priceResponse is the JSON response for GET /stocks/{symbol}/price.
type priceResponse struct {
	Symbol      string `json:"symbol"`
	Price       int64  `json:"price"`
	VWAP        *int64 `json:"vwap"`
	Window      string `json:"window"`
	TradesInWin int    `json:"trades_in_window"`
	LastTradeAt string `json:"last_trade_at"`
}

// bookLevelResponse is a single price level in the book response.
type bookLevelResponse struct {
	Price         int64 `json:"price"`
	TotalQuantity int64 `json:"total_quantity"`
	OrderCount    int   `json:"order_count"`
}

// bookResponse is the JSON response for GET /stocks/{symbol}/book.
type bookResponse struct {
	Symbol  string              `json:"symbol"`
	Bids    []bookLevelResponse `json:"bids"`
	Asks    []bookLevelResponse `json:"asks"`
	BestBid *int64              `json:"best_bid"`
	BestAsk *int64              `json:"best_ask"`
	Spread  *int64              `json:"spread"`
}

// Symbols handles GET /stocks.
func (h *MarketHandler) Symbols(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string][]string{"symbols": h.market.Symbols()})
}

// GetPrice handles GET /stocks/{symbol}/price.
func (h *MarketHandler) GetPrice(w http.ResponseWriter, r *http.Request) {
	price, err := h.market.LastPrice(chi.URLParam(r, "symbol"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, priceResponse{
		Symbol:      price.Symbol,
		Price:       price.Price,
		VWAP:        price.VWAP,
		Window:      price.Window,
		TradesInWin: price.TradesInWindow,
		LastTradeAt: formatTime(price.LastTradeAt),
	})
}

// GetTrades handles GET /stocks/{symbol}/trades.
func (h *MarketHandler) GetTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := h.market.SymbolTrades(chi.URLParam(r, "symbol"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"trades": buildTradeResponses(trades, 0)})
}

// GetBook handles GET /stocks/{symbol}/book.
func (h *MarketHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	depth := h.defaultDepth
	if d := r.URL.Query().Get("depth"); d != "" {
		var err error
		depth, err = strconv.Atoi(d)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "validation_error", "depth must be a valid integer")
			return
		}
	}

	book, err := h.market.Book(chi.URLParam(r, "symbol"), depth)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, bookResponse{
		Symbol:  book.Symbol,
		Bids:    buildLevels(book.Bids),
		Asks:    buildLevels(book.Asks),
		BestBid: book.BestBid,
		BestAsk: book.BestAsk,
		Spread:  book.Spread,
	})
}

func buildLevels(levels []engine.PriceLevel) []bookLevelResponse {
	out := make([]bookLevelResponse, len(levels))
	for i, l := range levels {
		out[i] = bookLevelResponse{
			Price:         l.Price,
			TotalQuantity: l.TotalQuantity,
			OrderCount:    l.OrderCount,
		}
	}
	return out
}
