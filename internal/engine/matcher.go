package engine

import (
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/efreitasn/minibroker/internal/domain"
	"github.com/efreitasn/minibroker/internal/ledger"
	"github.com/efreitasn/minibroker/internal/store"
)

// TradePublisher receives the trades of a placement once the symbol lock
// has been released. Implementations must not block.
type TradePublisher interface {
	Publish(trades []*domain.Trade)
}

// PlaceOrderRequest is a validated-shape limit order submission.
type PlaceOrderRequest struct {
	UserID   string
	Side     domain.Side
	Symbol   string
	Price    int64
	Quantity int64
}

// Validate checks the request fields. All failures unwrap to
// domain.ErrInvalidOrder.
func (r PlaceOrderRequest) Validate() error {
	if r.Side != domain.SideBuy && r.Side != domain.SideSell {
		return domain.InvalidOrder(fmt.Sprintf("order_type must be 'Buy' or 'Sell', got %q", r.Side))
	}
	if err := domain.ValidateSymbol(r.Symbol); err != nil {
		return err
	}
	if r.Price <= 0 {
		return domain.InvalidOrder("price must be a positive integer")
	}
	if r.Quantity <= 0 {
		return domain.InvalidOrder("quantity must be a positive integer")
	}
	if r.Price > math.MaxInt64/r.Quantity {
		return domain.InvalidOrder("price × quantity overflows")
	}
	return nil
}

// DepthSnapshot is an aggregated view of one symbol's book.
type DepthSnapshot struct {
	Symbol  string
	Bids    []PriceLevel
	Asks    []PriceLevel
	BestBid *int64
	BestAsk *int64
	Spread  *int64
}

// Matcher is the matching engine. It owns order placement and
// cancellation for every symbol, settling each execution through the
// ledger before the trade is recorded.
type Matcher struct {
	books     *BookManager
	ledger    *ledger.Ledger
	orders    *store.OrderStore
	trades    *store.TradeStore
	symbols   *domain.SymbolRegistry
	orderSeq  *Sequencer
	tradeSeq  *Sequencer
	policy    SelfTradePolicy
	publisher TradePublisher
	logger    zerolog.Logger
	alarms    atomic.Uint64
	now       func() time.Time
}

// NewMatcher creates a new Matcher with the given dependencies. publisher
// may be nil.
func NewMatcher(
	books *BookManager,
	led *ledger.Ledger,
	orders *store.OrderStore,
	trades *store.TradeStore,
	symbols *domain.SymbolRegistry,
	policy SelfTradePolicy,
	publisher TradePublisher,
	logger zerolog.Logger,
) *Matcher {
	if policy == "" {
		policy = SelfTradeAllow
	}
	return &Matcher{
		books:     books,
		ledger:    led,
		orders:    orders,
		trades:    trades,
		symbols:   symbols,
		orderSeq:  NewSequencer(0),
		tradeSeq:  NewSequencer(0),
		policy:    policy,
		publisher: publisher,
		logger:    logger.With().Str("component", "matcher").Logger(),
		now:       time.Now,
	}
}

// PlaceOrder validates the request, reserves the balance backing it, and
// runs it against the opposite side of the symbol's book. Every fill is
// settled through the ledger and recorded in the trade store while the
// accounts are locked. Any unfilled remainder rests on the book.
//
// The returned order is a snapshot taken before the symbol lock is
// released. If a settlement fails the incoming remainder is cancelled and
// the error wraps domain.ErrSettlementFailed; the trades executed before
// the failure are still returned.
func (m *Matcher) PlaceOrder(req PlaceOrderRequest) (domain.Order, []*domain.Trade, error) {
	if err := req.Validate(); err != nil {
		return domain.Order{}, nil, err
	}
	if !m.ledger.Exists(req.UserID) {
		return domain.Order{}, nil, domain.ErrUserNotFound
	}

	book := m.books.GetOrCreate(req.Symbol)

	book.mu.Lock()
	snapshot, trades, err := m.place(book, req)
	book.mu.Unlock()

	if len(trades) > 0 && m.publisher != nil {
		m.publisher.Publish(trades)
	}
	return snapshot, trades, err
}

// place runs one placement. The caller holds book.mu.
func (m *Matcher) place(book *OrderBook, req PlaceOrderRequest) (domain.Order, []*domain.Trade, error) {
	if req.Side == domain.SideBuy {
		if err := m.ledger.ReserveCash(req.UserID, req.Price*req.Quantity); err != nil {
			return domain.Order{}, nil, err
		}
	} else {
		if err := m.ledger.ReserveStock(req.UserID, req.Symbol, req.Quantity); err != nil {
			return domain.Order{}, nil, err
		}
	}

	m.symbols.Register(req.Symbol)

	now := m.now()
	id := m.orderSeq.Next()
	order := &domain.Order{
		OrderID:           id,
		UserID:            req.UserID,
		Side:              req.Side,
		Symbol:            req.Symbol,
		Price:             req.Price,
		Quantity:          req.Quantity,
		RemainingQuantity: req.Quantity,
		Status:            domain.OrderStatusOpen,
		Seq:               id,
		CreatedAt:         now,
	}
	m.orders.Create(order)

	m.logger.Debug().
		Uint64("order_id", order.OrderID).
		Str("user_id", order.UserID).
		Str("side", string(order.Side)).
		Str("symbol", order.Symbol).
		Int64("price", order.Price).
		Int64("quantity", order.Quantity).
		Msg("order placed")

	var trades []*domain.Trade
	res, err := book.Match(order, m.policy, now, func(resting *domain.Order, qty, price int64) error {
		buy, sell := order, resting
		if order.Side == domain.SideSell {
			buy, sell = resting, order
		}
		return m.ledger.Settle(ledger.Settlement{
			BuyerID:    buy.UserID,
			SellerID:   sell.UserID,
			Symbol:     order.Symbol,
			Price:      price,
			Quantity:   qty,
			BuyerLimit: buy.Price,
		}, func() {
			t := &domain.Trade{
				TradeID:     m.tradeSeq.Next(),
				Symbol:      order.Symbol,
				BuyOrderID:  buy.OrderID,
				SellOrderID: sell.OrderID,
				BuyerID:     buy.UserID,
				SellerID:    sell.UserID,
				Price:       price,
				Quantity:    qty,
				Aggressor:   order.Side,
				ExecutedAt:  m.now(),
			}
			m.trades.Append(t)
			trades = append(trades, t)
		})
	})

	for _, c := range res.Cancelled {
		m.release(c)
		m.logger.Debug().
			Uint64("order_id", c.OrderID).
			Uint64("incoming_order_id", order.OrderID).
			Msg("resting order cancelled by self-trade policy")
	}

	for _, t := range trades {
		m.logger.Debug().
			Uint64("trade_id", t.TradeID).
			Str("symbol", t.Symbol).
			Uint64("buy_order_id", t.BuyOrderID).
			Uint64("sell_order_id", t.SellOrderID).
			Int64("price", t.Price).
			Int64("quantity", t.Quantity).
			Msg("trade executed")
	}

	switch {
	case err != nil:
		m.alarms.Add(1)
		m.logger.Error().
			Err(err).
			Uint64("order_id", order.OrderID).
			Str("symbol", order.Symbol).
			Int64("remaining_quantity", order.RemainingQuantity).
			Msg("consistency alarm: settlement failed, cancelling incoming remainder")
		m.cancelIncoming(order, now)
		return *order, trades, fmt.Errorf("order %d: %w", order.OrderID, err)
	case res.SelfTradeStopped:
		m.cancelIncoming(order, now)
	case order.RemainingQuantity > 0:
		book.Insert(order)
	}

	return *order, trades, nil
}

// cancelIncoming cancels an order that never rested and releases what is
// left of its reservation.
func (m *Matcher) cancelIncoming(order *domain.Order, at time.Time) {
	if order.RemainingQuantity == 0 {
		return
	}
	order.Cancel(at)
	m.release(order)
}

// release returns the reservation backing a cancelled order's cancelled
// quantity to the owner's available balance.
func (m *Matcher) release(o *domain.Order) {
	var err error
	if o.Side == domain.SideBuy {
		err = m.ledger.ReleaseCash(o.UserID, o.Price*o.CancelledQuantity)
	} else {
		err = m.ledger.ReleaseStock(o.UserID, o.Symbol, o.CancelledQuantity)
	}
	if err != nil {
		m.logger.Error().Err(err).Uint64("order_id", o.OrderID).Msg("failed to release reservation")
	}
}

// CancelOrder cancels an open or partially filled order, removes it from
// the book and releases its remaining reservation. The status check runs
// under the symbol lock.
//
// Returns domain.ErrOrderNotFound if the order does not exist and
// domain.ErrOrderAlreadyTerminal if it is filled or cancelled.
func (m *Matcher) CancelOrder(orderID uint64) (domain.Order, error) {
	order, err := m.orders.Get(orderID)
	if err != nil {
		return domain.Order{}, err
	}

	book := m.books.GetOrCreate(order.Symbol)
	book.mu.Lock()
	defer book.mu.Unlock()

	if order.Status.Terminal() {
		return domain.Order{}, domain.ErrOrderAlreadyTerminal
	}
	if _, err := book.Cancel(orderID, m.now()); err != nil {
		m.logger.Error().Err(err).Uint64("order_id", orderID).Msg("open order missing from book")
		return domain.Order{}, err
	}
	m.release(order)

	m.logger.Debug().
		Uint64("order_id", orderID).
		Int64("cancelled_quantity", order.CancelledQuantity).
		Msg("order cancelled")

	return *order, nil
}

// Order returns a consistent snapshot of an order.
func (m *Matcher) Order(orderID uint64) (domain.Order, error) {
	order, err := m.orders.Get(orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return m.snapshot(order), nil
}

func (m *Matcher) snapshot(order *domain.Order) domain.Order {
	book := m.books.GetOrCreate(order.Symbol)
	book.RLock()
	defer book.RUnlock()
	return *order
}

// OrderStatus reports whether the order can still trade.
func (m *Matcher) OrderStatus(orderID uint64) (bool, error) {
	o, err := m.Order(orderID)
	if err != nil {
		return false, err
	}
	return o.IsOpen(), nil
}

// OrderTrades returns the trades the order took part in, in execution
// order. The result is consistent with the order's filled quantity.
func (m *Matcher) OrderTrades(orderID uint64) ([]*domain.Trade, error) {
	order, err := m.orders.Get(orderID)
	if err != nil {
		return nil, err
	}
	book := m.books.GetOrCreate(order.Symbol)
	book.RLock()
	defer book.RUnlock()
	return m.trades.ByOrder(orderID), nil
}

// ListOrders returns snapshots of the user's orders newest first, filtered
// by status when non-nil, for the 1-based page. The second result is the
// number of matching orders before pagination.
func (m *Matcher) ListOrders(userID string, status *domain.OrderStatus, page, limit int) ([]domain.Order, int, error) {
	if !m.ledger.Exists(userID) {
		return nil, 0, domain.ErrUserNotFound
	}
	live := m.orders.ListByUser(userID)
	snaps := make([]domain.Order, 0, len(live))
	for _, o := range live {
		snaps = append(snaps, m.snapshot(o))
	}
	orders, total := store.Page(snaps, status, page, limit)
	return orders, total, nil
}

// Depth returns up to depth aggregated price levels per side of the
// symbol's book. It returns domain.ErrSymbolNotFound for symbols that were
// never registered.
func (m *Matcher) Depth(symbol string, depth int) (DepthSnapshot, error) {
	if !m.symbols.Exists(symbol) {
		return DepthSnapshot{}, domain.ErrSymbolNotFound
	}
	book := m.books.GetOrCreate(symbol)
	book.RLock()
	defer book.RUnlock()

	snap := DepthSnapshot{
		Symbol: symbol,
		Bids:   book.TopBids(depth),
		Asks:   book.TopAsks(depth),
	}
	if e, ok := book.BestBid(); ok {
		p := e.Price
		snap.BestBid = &p
	}
	if e, ok := book.BestAsk(); ok {
		p := e.Price
		snap.BestAsk = &p
	}
	if snap.BestBid != nil && snap.BestAsk != nil {
		spread := *snap.BestAsk - *snap.BestBid
		snap.Spread = &spread
	}
	return snap, nil
}

// ConsistencyAlarms returns how many settlements have failed since startup.
// Anything but zero means the reservation bookkeeping is broken.
func (m *Matcher) ConsistencyAlarms() uint64 {
	return m.alarms.Load()
}
