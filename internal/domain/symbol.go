package domain

import (
	"fmt"
	"regexp"
	"sort"
	"sync"
)

var symbolRegex = regexp.MustCompile(`^[A-Z]{1,10}$`)

// ValidateSymbol checks the ticker format. Failures are ErrInvalidOrder
// validation errors.
func ValidateSymbol(symbol string) error {
	if !symbolRegex.MatchString(symbol) {
		return InvalidOrder(fmt.Sprintf("symbol must match ^[A-Z]{1,10}$, got %q", symbol))
	}
	return nil
}

// SymbolRegistry tracks known stock symbols in a thread-safe manner.
// Symbols are registered when they first appear in an order or a stock
// credit.
type SymbolRegistry struct {
	mu      sync.RWMutex
	symbols map[string]bool
}

// NewSymbolRegistry creates an empty SymbolRegistry.
func NewSymbolRegistry() *SymbolRegistry {
	return &SymbolRegistry{
		symbols: make(map[string]bool),
	}
}

// Register adds a symbol to the registry. Safe for concurrent use.
func (r *SymbolRegistry) Register(symbol string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.symbols[symbol] = true
}

// Exists returns true if the symbol has been registered. Safe for concurrent use.
func (r *SymbolRegistry) Exists(symbol string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.symbols[symbol]
}

// List returns the registered symbols in lexical order.
func (r *SymbolRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.symbols))
	for s := range r.symbols {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
