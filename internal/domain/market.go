package domain

import "time"

type Balance struct {
	Asset  string  `json:"asset"`
	Free   float64 `json:"free"`
	Locked float64 `json:"locked"`
}

// Total is the tradable inventory used for risk sizing.
func (b Balance) Total() float64 {
	return b.Free + b.Locked
}

// PriceStats summarises the market over a lookback window.
type PriceStats struct {
	Symbol               string  `json:"symbol"`
	Window               string  `json:"window"`
	LastPrice            float64 `json:"last_price"`
	HighPrice            float64 `json:"high_price"`
	LowPrice             float64 `json:"low_price"`
	WeightedAveragePrice float64 `json:"weighted_average_price"`
}

// DepthLevel is one rung of a ladder. Index 0 of a ladder is the touch.
type DepthLevel struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
}

type Depth struct {
	Symbol    string       `json:"symbol"`
	Bids      []DepthLevel `json:"bids"`
	Asks      []DepthLevel `json:"asks"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Ladder returns the levels an order of the given side would rest on.
func (d *Depth) Ladder(side Side) []DepthLevel {
	if side == SideBuy {
		return d.Bids
	}
	return d.Asks
}

// OpenOrder is a point-in-time snapshot of one of our resting orders.
type OpenOrder struct {
	Symbol        string    `json:"symbol"`
	Side          Side      `json:"side"`
	OrderID       string    `json:"order_id"`
	ClientOrderID string    `json:"client_order_id,omitempty"`
	Time          time.Time `json:"time"`
	Price         float64   `json:"price"`
	Quantity      float64   `json:"quantity"`
}
