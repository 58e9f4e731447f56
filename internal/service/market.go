package service

import (
	"fmt"
	"math/big"
	"time"

	"github.com/efreitasn/minibroker/internal/domain"
	"github.com/efreitasn/minibroker/internal/engine"
	"github.com/efreitasn/minibroker/internal/store"
)

// PriceResponse represents the response for GET /stocks/{symbol}/price.
type PriceResponse struct {
	Symbol         string
	Price          int64      // last trade price
	VWAP           *int64     // nil when no trades fall in the window
	Window         string     // e.g. "5m"
	TradesInWindow int
	LastTradeAt    time.Time
}

// MarketService answers market data queries: prices, trade history and
// book depth.
type MarketService struct {
	trades     *store.TradeStore
	matcher    *engine.Matcher
	symbols    *domain.SymbolRegistry
	vwapWindow time.Duration
	now        func() time.Time
}

// NewMarketService creates a MarketService.
func NewMarketService(trades *store.TradeStore, matcher *engine.Matcher, symbols *domain.SymbolRegistry, vwapWindow time.Duration) *MarketService {
	return &MarketService{
		trades:     trades,
		matcher:    matcher,
		symbols:    symbols,
		vwapWindow: vwapWindow,
		now:        time.Now,
	}
}

// LastPrice returns the price of the most recent trade for symbol along
// with the VWAP over the configured window. It returns
// domain.ErrSymbolNotFound when the symbol has never traded.
func (s *MarketService) LastPrice(symbol string) (*PriceResponse, error) {
	if !s.symbols.Exists(symbol) {
		return nil, domain.ErrSymbolNotFound
	}
	last, ok := s.trades.Last(symbol)
	if !ok {
		return nil, domain.ErrSymbolNotFound
	}

	resp := &PriceResponse{
		Symbol:      symbol,
		Price:       last.Price,
		Window:      formatDuration(s.vwapWindow),
		LastTradeAt: last.ExecutedAt,
	}

	// Walk back from the tail until executed_at leaves the window.
	windowStart := s.now().Add(-s.vwapWindow)
	trades := s.trades.BySymbol(symbol)
	// Each notional fits in int64 but their sum may not.
	sumPriceQty, sumQty := new(big.Int), new(big.Int)
	var notional big.Int
	for i := len(trades) - 1; i >= 0; i-- {
		t := trades[i]
		if t.ExecutedAt.Before(windowStart) {
			break
		}
		notional.Mul(big.NewInt(t.Price), big.NewInt(t.Quantity))
		sumPriceQty.Add(sumPriceQty, &notional)
		sumQty.Add(sumQty, big.NewInt(t.Quantity))
		resp.TradesInWindow++
	}
	if sumQty.Sign() > 0 {
		vwap := new(big.Int).Quo(sumPriceQty, sumQty).Int64()
		resp.VWAP = &vwap
	}
	return resp, nil
}

// SymbolTrades returns every trade for symbol in execution order.
func (s *MarketService) SymbolTrades(symbol string) ([]*domain.Trade, error) {
	if !s.symbols.Exists(symbol) {
		return nil, domain.ErrSymbolNotFound
	}
	return s.trades.BySymbol(symbol), nil
}

// Book returns the top depth price levels of both sides of the book.
func (s *MarketService) Book(symbol string, depth int) (engine.DepthSnapshot, error) {
	if depth < 1 || depth > 50 {
		return engine.DepthSnapshot{}, &domain.ValidationError{
			Kind:    domain.ErrInvalidOrder,
			Message: "depth must be between 1 and 50",
		}
	}
	return s.matcher.Depth(symbol, depth)
}

// Symbols lists every registered symbol.
func (s *MarketService) Symbols() []string {
	return s.symbols.List()
}

// formatDuration converts a time.Duration to a string like "5m".
func formatDuration(d time.Duration) string {
	if d == 0 {
		return "0s"
	}
	minutes := int(d.Minutes())
	if d == time.Duration(minutes)*time.Minute && minutes > 0 {
		return fmt.Sprintf("%dm", minutes)
	}
	return d.String()
}
