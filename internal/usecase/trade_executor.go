package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/vitos/crypto_market_maker/internal/domain"
	"github.com/vitos/crypto_market_maker/internal/infrastructure/metrics"
	"go.uber.org/zap"
)

// TradeExecutor sends engine actions to the exchange. A failing action never stops
// the ones after it.
type TradeExecutor struct {
	exchange domain.Exchange
	logger   *zap.Logger
}

func NewTradeExecutor(exchange domain.Exchange, logger *zap.Logger) *TradeExecutor {
	return &TradeExecutor{
		exchange: exchange,
		logger:   logger,
	}
}

// Execute runs cancellations before placements so a side never briefly holds more
// orders than its quota allows.
func (e *TradeExecutor) Execute(ctx context.Context, actions []domain.Action, dryRun bool) []domain.ActionResult {
	results := make([]domain.ActionResult, 0, len(actions))
	for _, a := range actions {
		if a.Type == domain.ActionCancel {
			results = append(results, e.run(ctx, a, dryRun))
		}
	}
	for _, a := range actions {
		if a.Type == domain.ActionPlace {
			results = append(results, e.run(ctx, a, dryRun))
		}
	}
	return results
}

func (e *TradeExecutor) run(ctx context.Context, a domain.Action, dryRun bool) domain.ActionResult {
	res := domain.ActionResult{Action: a, DryRun: dryRun}
	if dryRun {
		e.logger.Info("Dry run action",
			zap.String("symbol", a.Symbol),
			zap.String("type", string(a.Type)),
			zap.String("side", string(a.Side)),
			zap.Float64("price", a.Price),
			zap.Float64("quantity", a.Quantity),
			zap.String("reason", string(a.Reason)))
		return res
	}

	var err error
	switch a.Type {
	case domain.ActionCancel:
		err = e.cancel(ctx, a)
		res.OrderID = a.OrderID
	case domain.ActionPlace:
		var order *domain.OpenOrder
		order, err = e.exchange.PlaceOrder(ctx, a.Side, a.Quantity, a.Symbol, a.Price)
		if err == nil && order != nil {
			res.OrderID = order.OrderID
		}
	default:
		err = fmt.Errorf("unknown action type %q", a.Type)
	}

	outcome := "ok"
	if err != nil {
		outcome = "error"
		res.Error = err.Error()
		e.logger.Error("Order action failed",
			zap.String("symbol", a.Symbol),
			zap.String("type", string(a.Type)),
			zap.String("side", string(a.Side)),
			zap.String("order_id", a.OrderID),
			zap.Float64("price", a.Price),
			zap.Error(err))
	} else {
		e.logger.Info("Order action done",
			zap.String("symbol", a.Symbol),
			zap.String("type", string(a.Type)),
			zap.String("side", string(a.Side)),
			zap.String("order_id", res.OrderID),
			zap.Float64("price", a.Price),
			zap.Float64("quantity", a.Quantity),
			zap.String("reason", string(a.Reason)))
	}
	metrics.OrderActions.WithLabelValues(a.Symbol, string(a.Type), string(a.Side), outcome).Inc()
	return res
}

func (e *TradeExecutor) cancel(ctx context.Context, a domain.Action) error {
	err := e.exchange.CancelOrder(ctx, a.Symbol, a.OrderID)
	if errors.Is(err, domain.ErrOrderNotFound) {
		// already filled or cancelled
		e.logger.Info("Cancel target already gone",
			zap.String("symbol", a.Symbol),
			zap.String("order_id", a.OrderID))
		return nil
	}
	return err
}
