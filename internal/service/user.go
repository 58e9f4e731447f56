package service

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/efreitasn/minibroker/internal/domain"
	"github.com/efreitasn/minibroker/internal/ledger"
)

// BalanceResponse is a user's cash position.
type BalanceResponse struct {
	UserID    string
	Balance   int64
	Reserved  int64
	Available int64
}

// StockBalance is a user's position in one symbol.
type StockBalance struct {
	Symbol    string
	Balance   int64
	Reserved  int64
	Available int64
}

// UserService handles account creation, deposits, withdrawals and balance
// queries.
type UserService struct {
	ledger  *ledger.Ledger
	symbols *domain.SymbolRegistry
	topUp   int64
	logger  zerolog.Logger
}

// NewUserService creates a UserService. topUp is the cash credited by each
// AddBalance call.
func NewUserService(led *ledger.Ledger, symbols *domain.SymbolRegistry, topUp int64, logger zerolog.Logger) *UserService {
	return &UserService{
		ledger:  led,
		symbols: symbols,
		topUp:   topUp,
		logger:  logger.With().Str("component", "users").Logger(),
	}
}

// CreateUser opens an empty account under a fresh UUID.
func (s *UserService) CreateUser() (string, error) {
	id := uuid.NewString()
	if err := s.ledger.Open(id); err != nil {
		return "", err
	}
	s.logger.Info().Str("user_id", id).Msg("user created")
	return id, nil
}

// UserExists reports whether the account exists.
func (s *UserService) UserExists(userID string) bool {
	return s.ledger.Exists(userID)
}

// AddBalance credits the configured top-up amount and returns the new cash
// balance.
func (s *UserService) AddBalance(userID string) (int64, error) {
	return s.ledger.CreditCash(userID, s.topUp)
}

// RemoveBalance withdraws amount from available cash and returns the new
// cash balance.
func (s *UserService) RemoveBalance(userID string, amount int64) (int64, error) {
	return s.ledger.DebitCash(userID, amount)
}

// GetBalance returns total, reserved and available cash.
func (s *UserService) GetBalance(userID string) (*BalanceResponse, error) {
	acct, err := s.ledger.Account(userID)
	if err != nil {
		return nil, err
	}
	return &BalanceResponse{
		UserID:    acct.UserID,
		Balance:   acct.Cash,
		Reserved:  acct.ReservedCash,
		Available: acct.AvailableCash(),
	}, nil
}

// AddStock credits amount shares of symbol and returns the new quantity.
func (s *UserService) AddStock(userID, symbol string, amount int64) (int64, error) {
	if err := domain.ValidateSymbol(symbol); err != nil {
		return 0, err
	}
	qty, err := s.ledger.CreditStock(userID, symbol, amount)
	if err != nil {
		return 0, err
	}
	s.symbols.Register(symbol)
	return qty, nil
}

// RemoveStock withdraws amount unreserved shares of symbol and returns the
// new quantity.
func (s *UserService) RemoveStock(userID, symbol string, amount int64) (int64, error) {
	if err := domain.ValidateSymbol(symbol); err != nil {
		return 0, err
	}
	return s.ledger.DebitStock(userID, symbol, amount)
}

// Stocks returns symbol → quantity for the user.
func (s *UserService) Stocks(userID string) (map[string]int64, error) {
	return s.ledger.Stocks(userID)
}

// Stock returns the user's position in symbol. A symbol never held reports
// zero.
func (s *UserService) Stock(userID, symbol string) (*StockBalance, error) {
	acct, err := s.ledger.Account(userID)
	if err != nil {
		return nil, err
	}
	h := acct.Holdings[symbol]
	return &StockBalance{
		Symbol:    symbol,
		Balance:   h.Quantity,
		Reserved:  h.Reserved,
		Available: h.Available(),
	}, nil
}
