package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/vitos/crypto_market_maker/internal/domain"
	"github.com/vitos/crypto_market_maker/internal/infrastructure/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const agreementTolerance = 1e-6

type DriverConfig struct {
	DryRun      bool
	CallTimeout time.Duration // bound for the whole fetch phase and for each action
	LockTTL     time.Duration // also the deadline for the whole run
}

// StrategyDriver runs one full invocation for a symbol: fetch, compute position and
// params, decide actions, execute and report.
type StrategyDriver struct {
	exchange domain.Exchange
	repo     domain.RunRepository
	locker   domain.Locker
	engine   *QuotingEngine
	executor *TradeExecutor
	cfg      DriverConfig
	logger   *zap.Logger
	timeNow  func() time.Time
	position func([]domain.Trade, time.Time) (domain.Position, error)

	mu     sync.RWMutex
	latest map[string]*domain.RunReport
}

func NewStrategyDriver(exchange domain.Exchange, repo domain.RunRepository, locker domain.Locker, engine *QuotingEngine, cfg DriverConfig, logger *zap.Logger) *StrategyDriver {
	if cfg.CallTimeout == 0 {
		cfg.CallTimeout = 15 * time.Second
	}
	if cfg.LockTTL == 0 {
		cfg.LockTTL = 2 * time.Minute
	}
	return &StrategyDriver{
		exchange: exchange,
		repo:     repo,
		locker:   locker,
		engine:   engine,
		executor: NewTradeExecutor(exchange, logger),
		cfg:      cfg,
		logger:   logger,
		timeNow:  time.Now,
		position: ComputePosition,
		latest:   make(map[string]*domain.RunReport),
	}
}

// SetActionLogger routes executed order actions to a separate journal logger.
func (d *StrategyDriver) SetActionLogger(logger *zap.Logger) {
	d.executor = NewTradeExecutor(d.exchange, logger)
}

type marketSnapshot struct {
	trades   []domain.Trade
	orders   []domain.OpenOrder
	balances map[string]domain.Balance
	depth    *domain.Depth
	stats    *domain.PriceStats
}

// Run executes one invocation. It returns domain.ErrLockHeld without doing anything
// when another invocation for the same symbol is still in flight.
func (d *StrategyDriver) Run(ctx context.Context, sc domain.SymbolConfig) (*domain.RunReport, error) {
	unlock, err := d.locker.Acquire(ctx, "quoter:"+sc.Symbol, d.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			metrics.Runs.WithLabelValues(sc.Symbol, "skipped").Inc()
		}
		return nil, err
	}
	defer unlock()

	// nothing may run past the lock lease
	runCtx, cancel := context.WithTimeout(ctx, d.cfg.LockTTL)
	defer cancel()

	started := d.timeNow()
	report := &domain.RunReport{Symbol: sc.Symbol, StartedAt: started}
	defer func() {
		metrics.RunDuration.WithLabelValues(sc.Symbol).Observe(time.Since(started).Seconds())
	}()

	err = d.run(runCtx, sc, report)
	report.FinishedAt = d.timeNow()
	if err != nil {
		report.Errors = append(report.Errors, err.Error())
		metrics.Runs.WithLabelValues(sc.Symbol, "error").Inc()
	} else {
		metrics.Runs.WithLabelValues(sc.Symbol, "ok").Inc()
	}
	d.record(ctx, report)
	return report, err
}

func (d *StrategyDriver) run(ctx context.Context, sc domain.SymbolConfig, report *domain.RunReport) error {
	now := report.StartedAt

	snap, err := d.snapshot(ctx, sc, now)
	if err != nil {
		return fmt.Errorf("snapshot %s: %w", sc.Symbol, err)
	}

	pos, err := d.position(snap.trades, now)
	switch {
	case errors.Is(err, domain.ErrInsufficientData):
		d.logger.Warn("No trades in lookback, quoting from a flat position", zap.String("symbol", sc.Symbol))
		pos = domain.Position{Symbol: sc.Symbol, AsOf: now}
	case errors.Is(err, domain.ErrConsistencyViolation):
		metrics.ConsistencyViolations.WithLabelValues(sc.Symbol).Inc()
		report.Position = pos
		return err
	case err != nil:
		return err
	}
	report.Position = pos

	if summary, err := SummarizePosition(snap.trades); err == nil {
		report.Summary = summary
		if math.Abs(pos.Quantity-summary.Quantity) > agreementTolerance {
			d.logger.Warn("Replay and closed-form positions disagree",
				zap.String("symbol", sc.Symbol),
				zap.Float64("replay_qty", pos.Quantity),
				zap.Float64("summary_qty", summary.Quantity),
				zap.Float64("replay_pnl", pos.RealizedPnL),
				zap.Float64("summary_pnl", summary.RealizedPnL))
		}
	}

	params, err := CalculateParams(sc, snap.balances, pos, *snap.stats)
	if err != nil {
		return err
	}
	report.Params = params

	metrics.PositionQuantity.WithLabelValues(sc.Symbol).Set(pos.Quantity)
	metrics.RealizedPnL.WithLabelValues(sc.Symbol).Set(pos.RealizedPnL)
	metrics.Deviation.WithLabelValues(sc.Symbol).Set(params.Deviation)
	metrics.TargetQuantity.WithLabelValues(sc.Symbol).Set(params.TargetQuantity)

	d.logger.Info("Quoting parameters",
		zap.String("symbol", sc.Symbol),
		zap.Float64("position", pos.Quantity),
		zap.Float64("avg_price", pos.AveragePrice),
		zap.Float64("realized_pnl", pos.RealizedPnL),
		zap.Duration("open_age", pos.OpenAge),
		zap.Float64("mark", params.MarkPrice),
		zap.Float64("target", params.TargetQuantity),
		zap.Float64("deviation", params.Deviation),
		zap.Float64("order_qty", params.OrderQuantity),
		zap.Float64("buy_ref", params.TaperedBuyReference),
		zap.Float64("sell_ref", params.TaperedSellReference))

	actions := d.engine.ManageOrders(sc, snap.depth, snap.orders, params)

	budget := d.cfg.CallTimeout * time.Duration(len(actions)+1)
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < budget {
		d.logger.Warn("Execution cut short by lock lease",
			zap.String("symbol", sc.Symbol),
			zap.Int("actions", len(actions)),
			zap.Duration("budget", budget),
			zap.Duration("remaining", time.Until(deadline)))
	}
	execCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()
	report.Results = d.executor.Execute(execCtx, actions, d.cfg.DryRun)
	return nil
}

// snapshot gathers the independent exchange reads concurrently.
func (d *StrategyDriver) snapshot(ctx context.Context, sc domain.SymbolConfig, now time.Time) (*marketSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.CallTimeout)
	defer cancel()

	snap := &marketSnapshot{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		trades, err := d.exchange.FetchTrades(gctx, sc.Symbol, now.Add(-sc.TradeLookback), sc.TradeLimit)
		snap.trades = trades
		return err
	})
	g.Go(func() error {
		orders, err := d.exchange.FetchOpenOrders(gctx, sc.Symbol)
		snap.orders = orders
		return err
	})
	g.Go(func() error {
		balances, err := d.exchange.FetchBalances(gctx)
		snap.balances = balances
		return err
	})
	g.Go(func() error {
		depth, err := d.exchange.FetchDepth(gctx, sc.Symbol, sc.DepthLevels)
		snap.depth = depth
		return err
	})
	g.Go(func() error {
		stats, err := d.exchange.FetchPriceStats(gctx, sc.Symbol, sc.StatsWindow)
		snap.stats = stats
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if snap.stats == nil {
		return nil, fmt.Errorf("price stats missing: %w", domain.ErrInsufficientData)
	}
	return snap, nil
}

func (d *StrategyDriver) record(ctx context.Context, report *domain.RunReport) {
	if d.repo != nil {
		if err := d.repo.SaveRun(ctx, report); err != nil {
			d.logger.Error("Failed to journal run", zap.String("symbol", report.Symbol), zap.Error(err))
		}
	}

	d.mu.Lock()
	d.latest[report.Symbol] = report
	d.mu.Unlock()
}

// LatestReport returns the most recent report for symbol, if any.
func (d *StrategyDriver) LatestReport(symbol string) (*domain.RunReport, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	r, ok := d.latest[symbol]
	return r, ok
}

// LatestReports returns the most recent report of every symbol that has run.
func (d *StrategyDriver) LatestReports() []*domain.RunReport {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*domain.RunReport, 0, len(d.latest))
	for _, r := range d.latest {
		out = append(out, r)
	}
	return out
}
