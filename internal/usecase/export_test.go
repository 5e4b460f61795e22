package usecase

import (
	"time"

	"github.com/vitos/crypto_market_maker/internal/domain"
)

// SetPositionFunc replaces the trade replay used by Run.
func (d *StrategyDriver) SetPositionFunc(fn func([]domain.Trade, time.Time) (domain.Position, error)) {
	d.position = fn
}
