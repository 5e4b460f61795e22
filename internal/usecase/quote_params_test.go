package usecase_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/crypto_market_maker/internal/domain"
	"github.com/vitos/crypto_market_maker/internal/usecase"
)

func testSymbolConfig() domain.SymbolConfig {
	return domain.SymbolConfig{
		Symbol:             "ETHUSDT",
		BaseAsset:          "ETH",
		QuoteAsset:         "USDT",
		Enabled:            true,
		TickSize:           0.5,
		StepSize:           0.01,
		MinOrderQty:        0.1,
		MaxOrderQty:        1,
		PositionLimit:      10,
		LoTarget:           -4,
		HiTarget:           6,
		MeanReversionPrice: 100,
		TargetSlope:        -0.05,
		LoBand:             50,
		HiBand:             150,
		TaperLifetimeHours: 10,
		SkewFactor:         4,
		QuotaScale:         2,
		QuotaReferenceSize: 10,
		TouchDamping:       0.5,
		TimeScaleFactor:    1,
		DepthLevels:        5,
		TradeLookback:      24 * time.Hour,
		TradeLimit:         500,
		StatsWindow:        "1h",
	}
}

func TestTargetQuantity_SigmoidBoundary(t *testing.T) {
	cfg := testSymbolConfig()
	assert.InDelta(t, 0.5, usecase.Sigmoid(0), eps)
	assert.InDelta(t, cfg.LoTarget+(cfg.HiTarget-cfg.LoTarget)/2, usecase.TargetQuantity(cfg, cfg.MeanReversionPrice), eps)
}

func TestTargetQuantity_Shape(t *testing.T) {
	cfg := testSymbolConfig()

	cheap := usecase.TargetQuantity(cfg, 0)
	rich := usecase.TargetQuantity(cfg, 200)
	assert.InDelta(t, cfg.HiTarget, cheap, 0.1)
	assert.InDelta(t, cfg.LoTarget, rich, 0.1)

	prev := usecase.TargetQuantity(cfg, 0)
	for p := 5.0; p <= 300; p += 5 {
		cur := usecase.TargetQuantity(cfg, p)
		assert.LessOrEqual(t, cur, prev, "target must not grow with price for a negative slope")
		prev = cur
	}
}

func TestTaperedReferencePrice(t *testing.T) {
	tests := []struct {
		name     string
		age      time.Duration
		lifetime float64
		want     float64
	}{
		{"fresh trade anchors at trade price", 0, 10, 90},
		{"halfway blends", 5 * time.Hour, 10, 95},
		{"expired falls back to market", 10 * time.Hour, 10, 100},
		{"older than lifetime stays at market", 30 * time.Hour, 10, 100},
		{"no lifetime means market", time.Hour, 0, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, usecase.TaperedReferencePrice(90, tt.age, 100, tt.lifetime), eps)
		})
	}
}

func TestScaledOrderQuantity(t *testing.T) {
	cfg := testSymbolConfig()

	assert.InDelta(t, 1.0, usecase.ScaledOrderQuantity(cfg, 1000, 1000), eps)
	assert.InDelta(t, 0.5, usecase.ScaledOrderQuantity(cfg, 250, 1000), eps)
	// floored at the minimum
	assert.InDelta(t, 0.1, usecase.ScaledOrderQuantity(cfg, 0, 1000), eps)
	assert.InDelta(t, 0.1, usecase.ScaledOrderQuantity(cfg, 5, 0), eps)
	// rounded to step
	assert.InDelta(t, 0.71, usecase.ScaledOrderQuantity(cfg, 500, 1000), eps)
}

func TestRoundToStep(t *testing.T) {
	assert.Equal(t, 0.12, usecase.RoundToStep(0.1234, 0.01))
	assert.Equal(t, 0.3, usecase.RoundToStep(0.1+0.2, 0.1))
	assert.Equal(t, 3.0, usecase.RoundToStep(2.6, 0))
	assert.Equal(t, 1.25, usecase.RoundToStep(1.2, 0.25))
}

func TestCalculateParams(t *testing.T) {
	cfg := testSymbolConfig()
	balances := map[string]domain.Balance{
		"ETH":  {Asset: "ETH", Free: 2, Locked: 0},
		"USDT": {Asset: "USDT", Free: 600, Locked: 200},
	}
	stats := domain.PriceStats{Symbol: "ETHUSDT", LastPrice: 100, WeightedAveragePrice: 98}

	t.Run("long tapers the sell reference", func(t *testing.T) {
		pos := domain.Position{Quantity: 2, AveragePrice: 90, OpenAge: 5 * time.Hour}
		params, err := usecase.CalculateParams(cfg, balances, pos, stats)
		require.NoError(t, err)

		assert.Equal(t, "ETHUSDT", params.Symbol)
		assert.InDelta(t, 100.0, params.MarkPrice, eps)
		assert.InDelta(t, 1.0, params.TargetQuantity, eps)
		assert.InDelta(t, 0.1, params.Deviation, eps)
		assert.InDelta(t, 100.0, params.TaperedBuyReference, eps)
		assert.InDelta(t, 95.0, params.TaperedSellReference, eps)
		// total 1000, free 800
		assert.InDelta(t, 0.89, params.OrderQuantity, eps)
	})

	t.Run("short tapers the buy reference", func(t *testing.T) {
		pos := domain.Position{Quantity: -1, AveragePrice: 110, OpenAge: 0}
		params, err := usecase.CalculateParams(cfg, balances, pos, stats)
		require.NoError(t, err)
		assert.InDelta(t, 110.0, params.TaperedBuyReference, eps)
		assert.InDelta(t, 100.0, params.TaperedSellReference, eps)
		assert.InDelta(t, -0.2, params.Deviation, eps)
	})

	t.Run("flat quotes around the mark", func(t *testing.T) {
		params, err := usecase.CalculateParams(cfg, balances, domain.Position{}, stats)
		require.NoError(t, err)
		assert.InDelta(t, 100.0, params.TaperedBuyReference, eps)
		assert.InDelta(t, 100.0, params.TaperedSellReference, eps)
		assert.InDelta(t, 1.0, params.OrderQuantity, eps)
	})

	t.Run("falls back to the weighted average price", func(t *testing.T) {
		params, err := usecase.CalculateParams(cfg, balances, domain.Position{}, domain.PriceStats{WeightedAveragePrice: 98})
		require.NoError(t, err)
		assert.InDelta(t, 98.0, params.MarkPrice, eps)
	})

	t.Run("no price is insufficient data", func(t *testing.T) {
		_, err := usecase.CalculateParams(cfg, balances, domain.Position{}, domain.PriceStats{})
		assert.ErrorIs(t, err, domain.ErrInsufficientData)
	})
}
