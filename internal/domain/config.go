package domain

import (
	"fmt"
	"time"
)

// SymbolConfig holds every threshold the engines need for one trading pair.
// It is treated as immutable once loaded.
type SymbolConfig struct {
	Symbol     string `yaml:"symbol" json:"symbol"`
	BaseAsset  string `yaml:"base_asset" json:"base_asset"`
	QuoteAsset string `yaml:"quote_asset" json:"quote_asset"`
	Enabled    bool   `yaml:"enabled" json:"enabled"`

	TickSize    float64 `yaml:"tick_size" json:"tick_size"`
	StepSize    float64 `yaml:"step_size" json:"step_size"`
	MinOrderQty float64 `yaml:"min_order_qty" json:"min_order_qty"`
	MaxOrderQty float64 `yaml:"max_order_qty" json:"max_order_qty"`

	// Inventory policy
	PositionLimit      float64 `yaml:"position_limit" json:"position_limit"`
	LoTarget           float64 `yaml:"lo_target" json:"lo_target"`
	HiTarget           float64 `yaml:"hi_target" json:"hi_target"`
	MeanReversionPrice float64 `yaml:"mean_reversion_price" json:"mean_reversion_price"`
	TargetSlope        float64 `yaml:"target_slope" json:"target_slope"` // negative: target shrinks as price rises

	// Outer price band, hard clamp for both sides
	LoBand float64 `yaml:"lo_band" json:"lo_band"`
	HiBand float64 `yaml:"hi_band" json:"hi_band"`

	TaperLifetimeHours float64 `yaml:"taper_lifetime_hours" json:"taper_lifetime_hours"`
	SkewFactor         float64 `yaml:"skew_factor" json:"skew_factor"`
	QuotaScale         float64 `yaml:"quota_scale" json:"quota_scale"`
	QuotaReferenceSize float64 `yaml:"quota_reference_size" json:"quota_reference_size"`
	TouchDamping       float64 `yaml:"touch_damping" json:"touch_damping"`
	TimeScaleFactor    float64 `yaml:"time_scale_factor" json:"time_scale_factor"`

	DepthLevels   int           `yaml:"depth_levels" json:"depth_levels"`
	TradeLookback time.Duration `yaml:"trade_lookback" json:"trade_lookback"`
	TradeLimit    int           `yaml:"trade_limit" json:"trade_limit"`
	StatsWindow   string        `yaml:"stats_window" json:"stats_window"`
}

// WithDefaults fills optional fields that were left at their zero value.
func (c SymbolConfig) WithDefaults() SymbolConfig {
	if c.TouchDamping == 0 {
		c.TouchDamping = 0.5
	}
	if c.TimeScaleFactor == 0 {
		c.TimeScaleFactor = 1
	}
	if c.DepthLevels == 0 {
		c.DepthLevels = 20
	}
	if c.TradeLookback == 0 {
		c.TradeLookback = 7 * 24 * time.Hour
	}
	if c.TradeLimit == 0 {
		c.TradeLimit = 1000
	}
	if c.StatsWindow == "" {
		c.StatsWindow = "1h"
	}
	if c.StepSize == 0 {
		c.StepSize = 1
	}
	return c
}

func (c SymbolConfig) Validate() error {
	switch {
	case c.Symbol == "":
		return fmt.Errorf("%w: symbol is required", ErrInvalidConfig)
	case c.BaseAsset == "" || c.QuoteAsset == "":
		return fmt.Errorf("%w: %s: base and quote asset are required", ErrInvalidConfig, c.Symbol)
	case c.TickSize <= 0:
		return fmt.Errorf("%w: %s: tick_size must be positive", ErrInvalidConfig, c.Symbol)
	case c.StepSize < 0:
		return fmt.Errorf("%w: %s: step_size must not be negative", ErrInvalidConfig, c.Symbol)
	case c.MinOrderQty <= 0 || c.MaxOrderQty < c.MinOrderQty:
		return fmt.Errorf("%w: %s: need 0 < min_order_qty <= max_order_qty", ErrInvalidConfig, c.Symbol)
	case c.PositionLimit <= 0:
		return fmt.Errorf("%w: %s: position_limit must be positive", ErrInvalidConfig, c.Symbol)
	case c.HiTarget < c.LoTarget:
		return fmt.Errorf("%w: %s: hi_target below lo_target", ErrInvalidConfig, c.Symbol)
	case c.LoBand <= 0 || c.HiBand <= c.LoBand:
		return fmt.Errorf("%w: %s: need 0 < lo_band < hi_band", ErrInvalidConfig, c.Symbol)
	case c.QuotaReferenceSize <= 0:
		return fmt.Errorf("%w: %s: quota_reference_size must be positive", ErrInvalidConfig, c.Symbol)
	case c.TouchDamping < 0 || c.TouchDamping > 0.5:
		return fmt.Errorf("%w: %s: touch_damping must be within [0,0.5]", ErrInvalidConfig, c.Symbol)
	case c.TimeScaleFactor <= 0:
		return fmt.Errorf("%w: %s: time_scale_factor must be positive", ErrInvalidConfig, c.Symbol)
	}
	return nil
}
