package domain

import "time"

// ActionResult is an executed (or attempted) action.
type ActionResult struct {
	Action
	OrderID string `json:"result_order_id,omitempty"`
	Error   string `json:"error,omitempty"`
	DryRun  bool   `json:"dry_run,omitempty"`
}

// RunReport describes one strategy invocation for one symbol.
type RunReport struct {
	ID         int64          `json:"id"`
	Symbol     string         `json:"symbol"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Position   Position       `json:"position"`
	Summary    Position       `json:"summary"`
	Params     QuotingParams  `json:"params"`
	Results    []ActionResult `json:"results"`
	Errors     []string       `json:"errors,omitempty"`
}

// Failed counts actions that returned an error.
func (r *RunReport) Failed() int {
	n := 0
	for _, res := range r.Results {
		if res.Error != "" {
			n++
		}
	}
	return n
}
