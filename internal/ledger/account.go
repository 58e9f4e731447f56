package ledger

import (
	"sync"
	"time"
)

// Holding is a user's position in a single stock symbol.
type Holding struct {
	Quantity int64
	Reserved int64 // locked by resting sell orders
}

// Available returns the unreserved quantity.
func (h Holding) Available() int64 {
	return h.Quantity - h.Reserved
}

// account is the mutable per-user record. All fields after mu are guarded
// by it.
type account struct {
	mu           sync.Mutex
	userID       string
	cash         int64
	reservedCash int64 // locked by resting buy orders
	holdings     map[string]*Holding
	createdAt    time.Time
}

func newAccount(userID string, now time.Time) *account {
	return &account{
		userID:    userID,
		holdings:  make(map[string]*Holding),
		createdAt: now,
	}
}

func (a *account) availableCash() int64 {
	return a.cash - a.reservedCash
}

func (a *account) availableQuantity(symbol string) int64 {
	h, ok := a.holdings[symbol]
	if !ok {
		return 0
	}
	return h.Available()
}

// holding returns the holding for symbol, creating an empty one.
func (a *account) holding(symbol string) *Holding {
	h, ok := a.holdings[symbol]
	if !ok {
		h = &Holding{}
		a.holdings[symbol] = h
	}
	return h
}

// snapshot copies the account. Caller holds a.mu.
func (a *account) snapshot() Account {
	holdings := make(map[string]Holding, len(a.holdings))
	for sym, h := range a.holdings {
		holdings[sym] = *h
	}
	return Account{
		UserID:       a.userID,
		Cash:         a.cash,
		ReservedCash: a.reservedCash,
		Holdings:     holdings,
		CreatedAt:    a.createdAt,
	}
}

// Account is a point-in-time copy of a user's balances.
type Account struct {
	UserID       string
	Cash         int64
	ReservedCash int64
	Holdings     map[string]Holding
	CreatedAt    time.Time
}

// AvailableCash returns the unreserved cash balance.
func (a Account) AvailableCash() int64 {
	return a.Cash - a.ReservedCash
}

// AvailableQuantity returns the unreserved quantity for symbol, or 0 if the
// user holds none.
func (a Account) AvailableQuantity(symbol string) int64 {
	return a.Holdings[symbol].Available()
}
