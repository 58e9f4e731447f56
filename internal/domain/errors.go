package domain

import "errors"

// Sentinel errors for domain-level error handling.
// The handler layer maps these to HTTP status codes.
var (
	ErrInvalidOrder         = errors.New("invalid_order")
	ErrInvalidAmount        = errors.New("invalid_amount")
	ErrInsufficientFunds    = errors.New("insufficient_funds")
	ErrInsufficientStock    = errors.New("insufficient_stock")
	ErrOrderNotFound        = errors.New("order_not_found")
	ErrOrderAlreadyTerminal = errors.New("order_already_terminal")
	ErrUserNotFound         = errors.New("user_not_found")
	ErrUserAlreadyExists    = errors.New("user_already_exists")
	ErrSymbolNotFound       = errors.New("symbol_not_found")
	ErrSettlementFailed     = errors.New("settlement_failed")
)

// ValidationError represents a request validation failure. Kind is the
// sentinel the failure belongs to and is what errors.Is matches against.
type ValidationError struct {
	Kind    error
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Kind
}

// InvalidOrder returns a ValidationError of kind ErrInvalidOrder.
func InvalidOrder(msg string) error {
	return &ValidationError{Kind: ErrInvalidOrder, Message: msg}
}

// InvalidAmount returns a ValidationError of kind ErrInvalidAmount.
func InvalidAmount(msg string) error {
	return &ValidationError{Kind: ErrInvalidAmount, Message: msg}
}
