package usecase

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vitos/crypto_market_maker/internal/domain"
)

func Sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// TargetQuantity is the S-shaped inventory target: close to HiTarget when price sits far
// below the mean reversion price and close to LoTarget far above it (for a negative slope).
func TargetQuantity(cfg domain.SymbolConfig, markPrice float64) float64 {
	score := cfg.TargetSlope * (markPrice - cfg.MeanReversionPrice)
	return cfg.LoTarget + (cfg.HiTarget-cfg.LoTarget)*Sigmoid(score)
}

// TaperedReferencePrice blends our own trade price into the market price as the trade ages.
// A fresh trade anchors the reference at tradePrice, a trade older than the lifetime at marketPrice.
func TaperedReferencePrice(tradePrice float64, tradeAge time.Duration, marketPrice, lifetimeHours float64) float64 {
	if lifetimeHours <= 0 {
		return marketPrice
	}
	s := clamp((lifetimeHours-tradeAge.Hours())/lifetimeHours, 0, 1)
	return s*tradePrice + (1-s)*marketPrice
}

// ScaledOrderQuantity shrinks the order size with the square root of the free capital ratio.
func ScaledOrderQuantity(cfg domain.SymbolConfig, freeCapital, totalCapital float64) float64 {
	scale := 0.0
	if totalCapital > 0 && freeCapital > 0 {
		scale = math.Sqrt(math.Min(freeCapital/totalCapital, 1))
	}
	qty := clamp(scale*cfg.MaxOrderQty, cfg.MinOrderQty, cfg.MaxOrderQty)
	return RoundToStep(qty, cfg.StepSize)
}

// RoundToStep rounds qty to the nearest multiple of step. A non-positive step rounds to an integer.
func RoundToStep(qty, step float64) float64 {
	if step <= 0 {
		step = 1
	}
	s := decimal.NewFromFloat(step)
	rounded := decimal.NewFromFloat(qty).Div(s).Round(0).Mul(s)
	f, _ := rounded.Float64()
	return f
}

// CalculateParams derives the quoting parameters for one invocation.
func CalculateParams(cfg domain.SymbolConfig, balances map[string]domain.Balance, pos domain.Position, stats domain.PriceStats) (domain.QuotingParams, error) {
	mark := stats.LastPrice
	if mark <= 0 {
		mark = stats.WeightedAveragePrice
	}
	if mark <= 0 {
		return domain.QuotingParams{}, fmt.Errorf("calculate params %s: no usable mark price: %w", cfg.Symbol, domain.ErrInsufficientData)
	}

	target := TargetQuantity(cfg, mark)
	deviation := 0.0
	if cfg.PositionLimit > 0 {
		deviation = (pos.Quantity - target) / cfg.PositionLimit
	}

	buyRef, sellRef := mark, mark
	switch {
	case pos.IsLong():
		sellRef = TaperedReferencePrice(pos.AveragePrice, pos.OpenAge, mark, cfg.TaperLifetimeHours)
	case pos.IsShort():
		buyRef = TaperedReferencePrice(pos.AveragePrice, pos.OpenAge, mark, cfg.TaperLifetimeHours)
	}

	base := balances[cfg.BaseAsset]
	quote := balances[cfg.QuoteAsset]
	totalCapital := quote.Total() + base.Total()*mark
	freeCapital := math.Max(totalCapital-math.Abs(pos.Quantity)*mark, 0)

	return domain.QuotingParams{
		Symbol:               cfg.Symbol,
		MarkPrice:            mark,
		TargetQuantity:       target,
		Deviation:            deviation,
		OrderQuantity:        ScaledOrderQuantity(cfg, freeCapital, totalCapital),
		TaperedBuyReference:  buyRef,
		TaperedSellReference: sellRef,
	}, nil
}
