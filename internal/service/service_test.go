package service

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/efreitasn/minibroker/internal/domain"
	"github.com/efreitasn/minibroker/internal/engine"
	"github.com/efreitasn/minibroker/internal/ledger"
	"github.com/efreitasn/minibroker/internal/store"
)

// testEnv bundles all dependencies needed for service tests.
type testEnv struct {
	ledger  *ledger.Ledger
	trades  *store.TradeStore
	symbols *domain.SymbolRegistry
	matcher *engine.Matcher
	users   *UserService
	orders  *OrderService
	market  *MarketService
}

func newTestEnv() *testEnv {
	led := ledger.New(zerolog.Nop())
	os := store.NewOrderStore()
	ts := store.NewTradeStore()
	sr := domain.NewSymbolRegistry()
	m := engine.NewMatcher(engine.NewBookManager(), led, os, ts, sr, engine.SelfTradeAllow, nil, zerolog.Nop())
	return &testEnv{
		ledger:  led,
		trades:  ts,
		symbols: sr,
		matcher: m,
		users:   NewUserService(led, sr, 100, zerolog.Nop()),
		orders:  NewOrderService(m),
		market:  NewMarketService(ts, m, sr, 5*time.Minute),
	}
}

// newUser creates a user and tops it up n times.
func (env *testEnv) newUser(t *testing.T, topUps int) string {
	t.Helper()
	id, err := env.users.CreateUser()
	require.NoError(t, err)
	for i := 0; i < topUps; i++ {
		_, err := env.users.AddBalance(id)
		require.NoError(t, err)
	}
	return id
}
