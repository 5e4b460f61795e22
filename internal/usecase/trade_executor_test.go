package usecase_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/crypto_market_maker/internal/domain"
	"github.com/vitos/crypto_market_maker/internal/usecase"
	"go.uber.org/zap"
)

func TestTradeExecutor_Execute(t *testing.T) {
	mockEx := &MockExchange{
		CancelErr: map[string]error{
			"gone":   &domain.ExchangeError{Kind: domain.ErrOrderNotFound, Op: "cancel order", Code: -2011},
			"broken": &domain.ExchangeError{Kind: domain.ErrTransport, Op: "cancel order", StatusCode: 502},
		},
		PlaceErr: map[float64]error{
			101: &domain.ExchangeError{Kind: domain.ErrExchangeRejection, Op: "place order", Code: -2010, Msg: "insufficient balance"},
		},
	}
	executor := usecase.NewTradeExecutor(mockEx, zap.NewNop())

	actions := []domain.Action{
		{Type: domain.ActionPlace, Side: domain.SideBuy, Symbol: "ETHUSDT", Price: 99, Quantity: 0.5},
		{Type: domain.ActionCancel, Side: domain.SideBuy, Symbol: "ETHUSDT", OrderID: "gone"},
		{Type: domain.ActionPlace, Side: domain.SideSell, Symbol: "ETHUSDT", Price: 101, Quantity: 0.5},
		{Type: domain.ActionCancel, Side: domain.SideSell, Symbol: "ETHUSDT", OrderID: "broken"},
		{Type: domain.ActionCancel, Side: domain.SideSell, Symbol: "ETHUSDT", OrderID: "ok"},
	}

	results := executor.Execute(context.Background(), actions, false)
	require.Len(t, results, 5)

	// cancels first, in order
	assert.Equal(t, "gone", results[0].OrderID)
	assert.Empty(t, results[0].Error, "unknown order counts as cancelled")
	assert.Equal(t, "broken", results[1].OrderID)
	assert.Contains(t, results[1].Error, "cancel order")
	assert.Equal(t, "ok", results[2].OrderID)
	assert.Empty(t, results[2].Error)

	assert.Equal(t, domain.ActionPlace, results[3].Type)
	assert.Equal(t, "new-1", results[3].OrderID)
	assert.Empty(t, results[3].Error)
	assert.Equal(t, domain.ActionPlace, results[4].Type)
	assert.NotEmpty(t, results[4].Error, "rejection is recorded, not fatal")

	assert.Equal(t, []string{"ok"}, mockEx.Cancelled)
	require.Len(t, mockEx.Placed, 1)
	assert.Equal(t, 99.0, mockEx.Placed[0].Price)
}

func TestTradeExecutor_DryRun(t *testing.T) {
	mockEx := &MockExchange{}
	executor := usecase.NewTradeExecutor(mockEx, zap.NewNop())

	actions := []domain.Action{
		{Type: domain.ActionPlace, Side: domain.SideBuy, Symbol: "ETHUSDT", Price: 99, Quantity: 0.5},
		{Type: domain.ActionCancel, Side: domain.SideBuy, Symbol: "ETHUSDT", OrderID: "x"},
	}
	results := executor.Execute(context.Background(), actions, true)

	require.Len(t, results, 2)
	for _, r := range results {
		assert.True(t, r.DryRun)
		assert.Empty(t, r.Error)
	}
	assert.Empty(t, mockEx.Placed)
	assert.Empty(t, mockEx.Cancelled)
}
