package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSide(t *testing.T) {
	tests := []struct {
		in      string
		want    Side
		wantErr bool
	}{
		{"Buy", SideBuy, false},
		{"buy", SideBuy, false},
		{"Sell", SideSell, false},
		{"SELL", SideSell, false},
		{"", "", true},
		{"Short", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSide(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidOrder)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSide_Opposite(t *testing.T) {
	assert.Equal(t, SideSell, SideBuy.Opposite())
	assert.Equal(t, SideBuy, SideSell.Opposite())
}

func TestOrder_FillTransitions(t *testing.T) {
	o := &Order{Quantity: 10, RemainingQuantity: 10, Status: OrderStatusOpen}

	o.Fill(4, 100)
	assert.Equal(t, OrderStatusPartiallyFilled, o.Status)
	assert.Equal(t, int64(6), o.RemainingQuantity)
	assert.True(t, o.IsOpen())

	o.Fill(6, 110)
	assert.Equal(t, OrderStatusFilled, o.Status)
	assert.Equal(t, int64(0), o.RemainingQuantity)
	assert.Equal(t, int64(10), o.FilledQuantity)
	assert.False(t, o.IsOpen())
	assert.True(t, o.Status.Terminal())
}

func TestOrder_Cancel(t *testing.T) {
	o := &Order{Quantity: 10, RemainingQuantity: 10, Status: OrderStatusOpen}
	o.Fill(3, 50)
	o.Cancel(time.Now())

	assert.Equal(t, OrderStatusCancelled, o.Status)
	assert.Equal(t, int64(7), o.CancelledQuantity)
	assert.Equal(t, int64(0), o.RemainingQuantity)
	assert.NotNil(t, o.CancelledAt)
	assert.False(t, o.IsOpen())
}

func TestOrder_AveragePrice(t *testing.T) {
	// 7 @ 148 + 3 @ 149 = 1036 + 447 = 1483 / 10 = 148
	o := &Order{Quantity: 10, RemainingQuantity: 10}
	_, ok := o.AveragePrice()
	assert.False(t, ok)

	o.Fill(7, 148)
	o.Fill(3, 149)
	avg, ok := o.AveragePrice()
	require.True(t, ok)
	assert.Equal(t, int64(148), avg)
}

func TestTrade_Counterparty(t *testing.T) {
	tr := &Trade{BuyOrderID: 1, SellOrderID: 2}
	assert.Equal(t, uint64(2), tr.CounterpartyOrderID(1))
	assert.Equal(t, uint64(1), tr.CounterpartyOrderID(2))
	assert.Equal(t, uint64(0), tr.CounterpartyOrderID(3))
	assert.True(t, tr.Involves(1))
	assert.False(t, tr.Involves(3))
}
