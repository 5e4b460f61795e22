package usecase

import (
	"math"
	"math/rand"
	"sort"

	"github.com/vitos/crypto_market_maker/internal/domain"
	"go.uber.org/zap"
)

// RandomSource feeds the stochastic placement gate. *rand.Rand satisfies it.
type RandomSource interface {
	Float64() float64
}

type globalRand struct{}

func (globalRand) Float64() float64 { return rand.Float64() }

// QuotingEngine decides, per side and per depth level, how many of our orders may rest
// there. It cancels stale and excess orders and places at most one order per side.
type QuotingEngine struct {
	rng    RandomSource
	logger *zap.Logger
}

func NewQuotingEngine(rng RandomSource, logger *zap.Logger) *QuotingEngine {
	if rng == nil {
		rng = globalRand{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QuotingEngine{rng: rng, logger: logger}
}

// ManageOrders returns the cancel and place actions for both sides of the book.
func (e *QuotingEngine) ManageOrders(cfg domain.SymbolConfig, depth *domain.Depth, open []domain.OpenOrder, params domain.QuotingParams) []domain.Action {
	var bids, asks []domain.OpenOrder
	for _, o := range open {
		if o.Symbol != "" && o.Symbol != cfg.Symbol {
			continue
		}
		if o.Side == domain.SideBuy {
			bids = append(bids, o)
		} else {
			asks = append(asks, o)
		}
	}

	var bidLadder, askLadder []domain.DepthLevel
	if depth != nil {
		bidLadder, askLadder = depth.Bids, depth.Asks
	}

	actions := e.ManageSide(cfg, domain.SideBuy, bidLadder, bids, params)
	return append(actions, e.ManageSide(cfg, domain.SideSell, askLadder, asks, params)...)
}

// ManageSide runs the level state machine for one side. orders must all belong to side.
func (e *QuotingEngine) ManageSide(cfg domain.SymbolConfig, side domain.Side, ladder []domain.DepthLevel, orders []domain.OpenOrder, params domain.QuotingParams) []domain.Action {
	var actions []domain.Action

	floor, ceiling, ok := PriceBand(cfg, side, ladder, params)
	live := make([]domain.OpenOrder, 0, len(orders))
	for _, o := range orders {
		if !ok || o.Price < floor-domain.Epsilon || o.Price > ceiling+domain.Epsilon {
			actions = append(actions, cancelAction(cfg.Symbol, o, -1, domain.ReasonStale))
			continue
		}
		live = append(live, o)
	}
	if !ok {
		return actions
	}

	limit := ceiling
	if side == domain.SideSell {
		limit = floor
	}

	placed := false
	for i := len(ladder) - 1; i >= 0; i-- {
		level := ladder[i]
		resting := ordersAtLevel(live, level.Price, cfg.TickSize)
		quota := LevelQuota(cfg, side, i, level, limit, params.Deviation)
		n := len(resting)

		if n > quota {
			for _, o := range resting[quota:] {
				actions = append(actions, cancelAction(cfg.Symbol, o, i, domain.ReasonExcess))
			}
			continue
		}
		if n >= quota || placed || params.OrderQuantity <= 0 {
			continue
		}

		x := e.rng.Float64()
		if x > PlacementProbability(cfg.TimeScaleFactor, n) {
			continue
		}
		placed = true
		actions = append(actions, domain.Action{
			Type:     domain.ActionPlace,
			Side:     side,
			Symbol:   cfg.Symbol,
			Price:    level.Price,
			Quantity: params.OrderQuantity,
			Level:    i,
			Reason:   domain.ReasonQuota,
		})
		e.logger.Debug("Placement gate passed",
			zap.String("symbol", cfg.Symbol),
			zap.String("side", string(side)),
			zap.Int("level", i),
			zap.Int("quota", quota),
			zap.Int("resting", n),
			zap.Float64("draw", x))
	}
	return actions
}

// PriceAdjustment is the cubic inventory penalty -k*tick*d^3.
func PriceAdjustment(cfg domain.SymbolConfig, deviation float64) float64 {
	return -cfg.SkewFactor * cfg.TickSize * deviation * deviation * deviation
}

// BidCeiling is the highest price we are willing to bid at.
func BidCeiling(cfg domain.SymbolConfig, params domain.QuotingParams) float64 {
	p := math.Min(params.TaperedBuyReference, params.MarkPrice) + math.Min(PriceAdjustment(cfg, params.Deviation), 0)
	return clamp(p, cfg.LoBand, cfg.HiBand)
}

// AskFloor is the lowest price we are willing to offer at.
func AskFloor(cfg domain.SymbolConfig, params domain.QuotingParams) float64 {
	p := math.Max(params.TaperedSellReference, params.MarkPrice) + math.Max(PriceAdjustment(cfg, params.Deviation), 0)
	return clamp(p, cfg.LoBand, cfg.HiBand)
}

// PriceBand returns the tolerated [floor, ceiling] for a side. The far edge is the worst
// visible ladder price; ok is false when the ladder is empty.
func PriceBand(cfg domain.SymbolConfig, side domain.Side, ladder []domain.DepthLevel, params domain.QuotingParams) (floor, ceiling float64, ok bool) {
	if len(ladder) == 0 {
		return 0, 0, false
	}
	worst := ladder[len(ladder)-1].Price
	if side == domain.SideBuy {
		return worst, BidCeiling(cfg, params), true
	}
	return AskFloor(cfg, params), worst, true
}

// LogQuota is scale*ln(size/reference), zero at or below the reference size.
func LogQuota(cfg domain.SymbolConfig, size float64) float64 {
	if cfg.QuotaReferenceSize <= 0 || size <= cfg.QuotaReferenceSize {
		return 0
	}
	return cfg.QuotaScale * math.Log(size/cfg.QuotaReferenceSize)
}

// ProximityFactor is 1 more than a tick inside the limit, 0 at or beyond it and linear in between.
func ProximityFactor(side domain.Side, price, limit, tick float64) float64 {
	if tick <= 0 {
		return 0
	}
	if side == domain.SideBuy {
		return clamp((limit-price)/tick, 0, 1)
	}
	return clamp((price-limit)/tick, 0, 1)
}

// TouchFactor damps the touch quota when the deviation already leans the same way as the side.
func TouchFactor(cfg domain.SymbolConfig, side domain.Side, deviation float64) float64 {
	if side == domain.SideSell {
		deviation = -deviation
	}
	return 1 - cfg.TouchDamping*clamp(deviation, 0, 1)
}

// LevelQuota is the number of our orders tolerated at ladder index i.
func LevelQuota(cfg domain.SymbolConfig, side domain.Side, i int, level domain.DepthLevel, limit, deviation float64) int {
	q := LogQuota(cfg, level.Quantity) * ProximityFactor(side, level.Price, limit, cfg.TickSize)
	if i == 0 {
		q *= TouchFactor(cfg, side, deviation)
	}
	if q <= 0 {
		return 0
	}
	return int(math.Floor(q + 1e-9))
}

// PlacementProbability is 1/(T*(1+n^1.5)) for n orders already resting at the level.
func PlacementProbability(timeScale float64, n int) float64 {
	if timeScale <= 0 {
		timeScale = 1
	}
	return 1 / (timeScale * (1 + math.Pow(float64(n), 1.5)))
}

// ordersAtLevel returns the orders resting at price, oldest first.
func ordersAtLevel(orders []domain.OpenOrder, price, tick float64) []domain.OpenOrder {
	tol := tick / 2
	if tol <= 0 {
		tol = domain.Epsilon
	}
	var out []domain.OpenOrder
	for _, o := range orders {
		if math.Abs(o.Price-price) < tol {
			out = append(out, o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Time.Equal(out[j].Time) {
			return out[i].Time.Before(out[j].Time)
		}
		return out[i].OrderID < out[j].OrderID
	})
	return out
}

func cancelAction(symbol string, o domain.OpenOrder, level int, reason domain.ActionReason) domain.Action {
	return domain.Action{
		Type:     domain.ActionCancel,
		Side:     o.Side,
		Symbol:   symbol,
		OrderID:  o.OrderID,
		Price:    o.Price,
		Quantity: o.Quantity,
		Level:    level,
		Reason:   reason,
	}
}
