package domain

// QuotingParams is derived once per invocation from position, balances and price stats.
type QuotingParams struct {
	Symbol               string  `json:"symbol"`
	MarkPrice            float64 `json:"mark_price"`
	TargetQuantity       float64 `json:"target_quantity"`
	Deviation            float64 `json:"deviation"`
	OrderQuantity        float64 `json:"order_quantity"`
	TaperedBuyReference  float64 `json:"tapered_buy_reference"`
	TaperedSellReference float64 `json:"tapered_sell_reference"`
}

type ActionType string

const (
	ActionPlace  ActionType = "PLACE"
	ActionCancel ActionType = "CANCEL"
)

type ActionReason string

const (
	ReasonStale  ActionReason = "stale"
	ReasonExcess ActionReason = "excess"
	ReasonQuota  ActionReason = "quota"
)

// Action is a single order instruction produced by the quoting engine.
type Action struct {
	Type     ActionType   `json:"type"`
	Side     Side         `json:"side"`
	Symbol   string       `json:"symbol"`
	OrderID  string       `json:"order_id,omitempty"`
	Price    float64      `json:"price"`
	Quantity float64      `json:"quantity"`
	Level    int          `json:"level"`
	Reason   ActionReason `json:"reason"`
}
