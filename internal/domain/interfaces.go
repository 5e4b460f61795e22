package domain

import (
	"context"
	"time"
)

// Exchange defines the interface for interacting with a spot crypto exchange.
type Exchange interface {
	FetchTrades(ctx context.Context, symbol string, since time.Time, limit int) ([]Trade, error)
	FetchOpenOrders(ctx context.Context, symbol string) ([]OpenOrder, error)
	FetchBalances(ctx context.Context) (map[string]Balance, error)
	FetchDepth(ctx context.Context, symbol string, levels int) (*Depth, error)
	FetchPriceStats(ctx context.Context, symbol string, window string) (*PriceStats, error)

	PlaceOrder(ctx context.Context, side Side, quantity float64, symbol string, price float64) (*OpenOrder, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
}

// RunRepository journals the outcome of each strategy invocation. The engines never read it back.
type RunRepository interface {
	SaveRun(ctx context.Context, report *RunReport) error
	ListRuns(ctx context.Context, symbol string, limit int) ([]*RunReport, error)
}

// Locker provides mutual exclusion per symbol. Acquire returns ErrLockHeld if another
// invocation holds the key.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}
