// Package ledger owns every user's cash and stock balances. Each account
// has its own lock; operations that touch two accounts lock them in
// ascending user id order.
package ledger

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/efreitasn/minibroker/internal/domain"
)

// Ledger is a thread-safe in-memory store of accounts keyed by user id.
type Ledger struct {
	mu       sync.RWMutex
	accounts map[string]*account
	logger   zerolog.Logger
	now      func() time.Time
}

// New creates an empty Ledger.
func New(logger zerolog.Logger) *Ledger {
	return &Ledger{
		accounts: make(map[string]*account),
		logger:   logger.With().Str("component", "ledger").Logger(),
		now:      time.Now,
	}
}

// Open creates an empty account. It returns domain.ErrUserAlreadyExists if
// the id is taken.
func (l *Ledger) Open(userID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.accounts[userID]; exists {
		return domain.ErrUserAlreadyExists
	}
	l.accounts[userID] = newAccount(userID, l.now())
	return nil
}

// Exists returns true if an account with the given id exists.
func (l *Ledger) Exists(userID string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	_, ok := l.accounts[userID]
	return ok
}

func (l *Ledger) get(userID string) (*account, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	a, ok := l.accounts[userID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return a, nil
}

func checkAmount(amount int64) error {
	if amount <= 0 {
		return domain.InvalidAmount("amount must be a positive integer")
	}
	return nil
}

func addChecked(balance, amount int64) (int64, error) {
	if balance > math.MaxInt64-amount {
		return 0, domain.InvalidAmount("amount overflows balance")
	}
	return balance + amount, nil
}

// CreditCash adds amount to the user's cash and returns the new balance.
func (l *Ledger) CreditCash(userID string, amount int64) (int64, error) {
	if err := checkAmount(amount); err != nil {
		return 0, err
	}
	a, err := l.get(userID)
	if err != nil {
		return 0, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	cash, err := addChecked(a.cash, amount)
	if err != nil {
		return 0, err
	}
	a.cash = cash
	return a.cash, nil
}

// DebitCash removes amount from the user's available cash and returns the
// new balance. Reserved cash cannot be withdrawn.
func (l *Ledger) DebitCash(userID string, amount int64) (int64, error) {
	if err := checkAmount(amount); err != nil {
		return 0, err
	}
	a, err := l.get(userID)
	if err != nil {
		return 0, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.availableCash() < amount {
		return 0, domain.ErrInsufficientFunds
	}
	a.cash -= amount
	return a.cash, nil
}

// CreditStock adds amount shares of symbol and returns the new quantity.
func (l *Ledger) CreditStock(userID, symbol string, amount int64) (int64, error) {
	if err := checkAmount(amount); err != nil {
		return 0, err
	}
	a, err := l.get(userID)
	if err != nil {
		return 0, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	h := a.holding(symbol)
	qty, err := addChecked(h.Quantity, amount)
	if err != nil {
		return 0, err
	}
	h.Quantity = qty
	return h.Quantity, nil
}

// DebitStock removes amount unreserved shares of symbol and returns the new
// quantity.
func (l *Ledger) DebitStock(userID, symbol string, amount int64) (int64, error) {
	if err := checkAmount(amount); err != nil {
		return 0, err
	}
	a, err := l.get(userID)
	if err != nil {
		return 0, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.availableQuantity(symbol) < amount {
		return 0, domain.ErrInsufficientStock
	}
	h := a.holdings[symbol]
	h.Quantity -= amount
	return h.Quantity, nil
}

// ReserveCash locks amount of available cash for a resting buy order.
func (l *Ledger) ReserveCash(userID string, amount int64) error {
	a, err := l.get(userID)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.availableCash() < amount {
		return domain.ErrInsufficientFunds
	}
	a.reservedCash += amount
	return nil
}

// ReleaseCash returns up to amount of reserved cash to the available
// balance.
func (l *Ledger) ReleaseCash(userID string, amount int64) error {
	a, err := l.get(userID)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if amount > a.reservedCash {
		l.logger.Error().
			Str("user_id", userID).
			Int64("amount", amount).
			Int64("reserved", a.reservedCash).
			Msg("cash release exceeds reservation")
		amount = a.reservedCash
	}
	a.reservedCash -= amount
	return nil
}

// ReserveStock locks amount of available shares for a resting sell order.
func (l *Ledger) ReserveStock(userID, symbol string, amount int64) error {
	a, err := l.get(userID)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.availableQuantity(symbol) < amount {
		return domain.ErrInsufficientStock
	}
	a.holdings[symbol].Reserved += amount
	return nil
}

// ReleaseStock returns up to amount reserved shares to the available
// quantity.
func (l *Ledger) ReleaseStock(userID, symbol string, amount int64) error {
	a, err := l.get(userID)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	h, ok := a.holdings[symbol]
	if !ok {
		return nil
	}
	if amount > h.Reserved {
		l.logger.Error().
			Str("user_id", userID).
			Str("symbol", symbol).
			Int64("amount", amount).
			Int64("reserved", h.Reserved).
			Msg("stock release exceeds reservation")
		amount = h.Reserved
	}
	h.Reserved -= amount
	return nil
}

// Cash returns the user's total cash balance, reserved part included.
func (l *Ledger) Cash(userID string) (int64, error) {
	a, err := l.get(userID)
	if err != nil {
		return 0, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cash, nil
}

// Stock returns the user's quantity of symbol, 0 when none is held.
func (l *Ledger) Stock(userID, symbol string) (int64, error) {
	a, err := l.get(userID)
	if err != nil {
		return 0, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if h, ok := a.holdings[symbol]; ok {
		return h.Quantity, nil
	}
	return 0, nil
}

// Stocks returns symbol → quantity for every symbol the user has held.
func (l *Ledger) Stocks(userID string) (map[string]int64, error) {
	a, err := l.get(userID)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	out := make(map[string]int64, len(a.holdings))
	for sym, h := range a.holdings {
		out[sym] = h.Quantity
	}
	return out, nil
}

// Account returns a snapshot of the user's balances and reservations.
func (l *Ledger) Account(userID string) (Account, error) {
	a, err := l.get(userID)
	if err != nil {
		return Account{}, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshot(), nil
}

// all returns the accounts sorted by user id, the global lock order.
func (l *Ledger) all() []*account {
	l.mu.RLock()
	out := make([]*account, 0, len(l.accounts))
	for _, a := range l.accounts {
		out = append(out, a)
	}
	l.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].userID < out[j].userID })
	return out
}

// TotalCash sums cash over all accounts. Accounts are read one at a time,
// so the sum is exact only while no settlement is in flight.
func (l *Ledger) TotalCash() int64 {
	var total int64
	for _, a := range l.all() {
		a.mu.Lock()
		total += a.cash
		a.mu.Unlock()
	}
	return total
}

// TotalStock sums the quantity of symbol over all accounts, with the same
// caveat as TotalCash.
func (l *Ledger) TotalStock(symbol string) int64 {
	var total int64
	for _, a := range l.all() {
		a.mu.Lock()
		if h, ok := a.holdings[symbol]; ok {
			total += h.Quantity
		}
		a.mu.Unlock()
	}
	return total
}

// Settlement describes the balance movement of one trade.
type Settlement struct {
	BuyerID  string
	SellerID string
	Symbol   string
	Price    int64 // execution price
	Quantity int64
	// BuyerLimit is the buy order's limit price, the rate at which its cash
	// was reserved. The difference to Price goes back to available cash.
	BuyerLimit int64
}

// Settle applies s atomically: buyer cash -Price×Quantity, seller cash
// +Price×Quantity, seller stock -Quantity, buyer stock +Quantity, and the
// reservations backing both orders are consumed. Every leg is checked
// before anything is mutated; on failure nothing changes and the error
// wraps domain.ErrSettlementFailed.
//
// commit, when non-nil, runs while both accounts are still locked.
func (l *Ledger) Settle(s Settlement, commit func()) error {
	if s.Quantity <= 0 || s.Price <= 0 || s.BuyerLimit < s.Price {
		return fmt.Errorf("%w: malformed settlement %+v", domain.ErrSettlementFailed, s)
	}
	if s.Price > math.MaxInt64/s.Quantity || s.BuyerLimit > math.MaxInt64/s.Quantity {
		return fmt.Errorf("%w: notional overflows", domain.ErrSettlementFailed)
	}

	buyer, err := l.get(s.BuyerID)
	if err != nil {
		return fmt.Errorf("%w: buyer %s: %v", domain.ErrSettlementFailed, s.BuyerID, err)
	}
	seller, err := l.get(s.SellerID)
	if err != nil {
		return fmt.Errorf("%w: seller %s: %v", domain.ErrSettlementFailed, s.SellerID, err)
	}

	unlock := lockPair(buyer, seller)
	defer unlock()

	cost := s.Price * s.Quantity
	reserved := s.BuyerLimit * s.Quantity

	if buyer.reservedCash < reserved {
		return fmt.Errorf("%w: buyer %s reserved cash %d below %d",
			domain.ErrSettlementFailed, s.BuyerID, buyer.reservedCash, reserved)
	}
	if buyer.cash < cost {
		return fmt.Errorf("%w: buyer %s cash %d below %d",
			domain.ErrSettlementFailed, s.BuyerID, buyer.cash, cost)
	}
	sh, ok := seller.holdings[s.Symbol]
	if !ok || sh.Reserved < s.Quantity || sh.Quantity < s.Quantity {
		return fmt.Errorf("%w: seller %s reserved %s below %d",
			domain.ErrSettlementFailed, s.SellerID, s.Symbol, s.Quantity)
	}
	if seller.cash > math.MaxInt64-cost {
		return fmt.Errorf("%w: seller %s cash overflows", domain.ErrSettlementFailed, s.SellerID)
	}

	buyer.reservedCash -= reserved
	buyer.cash -= cost
	seller.cash += cost
	sh.Reserved -= s.Quantity
	sh.Quantity -= s.Quantity
	buyer.holding(s.Symbol).Quantity += s.Quantity

	if commit != nil {
		commit()
	}
	return nil
}

// lockPair locks a and b in user id order and returns the matching unlock.
// A self-trade locks the single account once.
func lockPair(a, b *account) func() {
	if a == b {
		a.mu.Lock()
		return a.mu.Unlock
	}
	first, second := a, b
	if second.userID < first.userID {
		first, second = second, first
	}
	first.mu.Lock()
	second.mu.Lock()
	return func() {
		second.mu.Unlock()
		first.mu.Unlock()
	}
}
