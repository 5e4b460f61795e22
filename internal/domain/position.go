package domain

import "time"

// Epsilon is the tolerance used for every comparison against zero in position math.
const Epsilon = 1e-8

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the other side of the book.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Trade is an executed fill of our own account. Quantity and QuoteQuantity are signed:
// positive for buys, negative for sells.
type Trade struct {
	ID              int64     `json:"id"`
	Symbol          string    `json:"symbol"`
	IsBuyer         bool      `json:"is_buyer"`
	Quantity        float64   `json:"quantity"`
	QuoteQuantity   float64   `json:"quote_quantity"`
	Price           float64   `json:"price"`
	Commission      float64   `json:"commission"`
	CommissionAsset string    `json:"commission_asset"`
	Time            time.Time `json:"time"`
}

// SidePosition aggregates every fill on one side of the book.
type SidePosition struct {
	Quantity      float64 `json:"quantity"`
	Consideration float64 `json:"consideration"`
	AveragePrice  float64 `json:"average_price"`
}

// Position is the running inventory derived from a trade history.
// Quantity is signed: + long, - short.
type Position struct {
	Symbol          string        `json:"symbol"`
	Quantity        float64       `json:"quantity"`
	AveragePrice    float64       `json:"average_price"`
	Cost            float64       `json:"cost"`
	RealizedPnL     float64       `json:"realized_pnl"`
	MatchedQuantity float64       `json:"matched_quantity"`
	Bought          SidePosition  `json:"bought"`
	Sold            SidePosition  `json:"sold"`
	OpenAge         time.Duration `json:"open_age"`
	TradeCount      int           `json:"trade_count"`
	AsOf            time.Time     `json:"as_of"`
}

func (p Position) IsLong() bool {
	return p.Quantity >= Epsilon
}

func (p Position) IsShort() bool {
	return p.Quantity <= -Epsilon
}

func (p Position) IsFlat() bool {
	return !p.IsLong() && !p.IsShort()
}

// UnrealizedPnL marks the open quantity against price.
func (p Position) UnrealizedPnL(price float64) float64 {
	if p.IsFlat() {
		return 0
	}
	return p.Quantity * (price - p.AveragePrice)
}
