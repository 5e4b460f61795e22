package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vitos/crypto_market_maker/internal/domain"
	"go.uber.org/zap"
)

// Runner is the part of StrategyDriver the scheduler needs.
type Runner interface {
	Run(ctx context.Context, sc domain.SymbolConfig) (*domain.RunReport, error)
}

// Scheduler invokes the driver periodically, one loop per enabled symbol.
type Scheduler struct {
	runner   Runner
	symbols  []domain.SymbolConfig
	interval time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewScheduler(runner Runner, symbols []domain.SymbolConfig, interval time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		runner:   runner,
		symbols:  symbols,
		interval: interval,
		logger:   logger,
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}
	if s.interval <= 0 {
		return fmt.Errorf("scheduler interval must be positive, got %s", s.interval)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true

	for _, sc := range s.symbols {
		if !sc.Enabled {
			s.logger.Info("Symbol disabled, not scheduling", zap.String("symbol", sc.Symbol))
			continue
		}
		s.wg.Add(1)
		go s.loop(loopCtx, sc)
	}
	return nil
}

// Stop cancels every loop and waits for in-flight invocations to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, sc domain.SymbolConfig) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("Quoting loop started", zap.String("symbol", sc.Symbol), zap.Duration("interval", s.interval))
	for {
		s.tick(ctx, sc)

		select {
		case <-ticker.C:
		case <-ctx.Done():
			s.logger.Info("Quoting loop stopped", zap.String("symbol", sc.Symbol))
			return
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, sc domain.SymbolConfig) {
	report, err := s.runner.Run(ctx, sc)
	switch {
	case errors.Is(err, domain.ErrLockHeld):
		s.logger.Warn("Previous invocation still running, skipping", zap.String("symbol", sc.Symbol))
	case errors.Is(err, domain.ErrTransport):
		s.logger.Warn("Transport failure, retrying next tick", zap.String("symbol", sc.Symbol), zap.Error(err))
	case err != nil:
		s.logger.Error("Invocation failed", zap.String("symbol", sc.Symbol), zap.Error(err))
	case report != nil:
		s.logger.Info("Invocation finished",
			zap.String("symbol", sc.Symbol),
			zap.Int("actions", len(report.Results)),
			zap.Int("failed", report.Failed()),
			zap.Duration("took", report.FinishedAt.Sub(report.StartedAt)))
	}
}
