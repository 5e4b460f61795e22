package usecase_test

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/crypto_market_maker/internal/domain"
	"github.com/vitos/crypto_market_maker/internal/usecase"
	"go.uber.org/zap"
)

// seqRand replays a fixed sequence of draws.
type seqRand struct {
	values []float64
	calls  int
}

func (s *seqRand) Float64() float64 {
	v := s.values[s.calls%len(s.values)]
	s.calls++
	return v
}

func neutralParams() domain.QuotingParams {
	return domain.QuotingParams{
		Symbol:               "ETHUSDT",
		MarkPrice:            100,
		OrderQuantity:        0.5,
		TaperedBuyReference:  100,
		TaperedSellReference: 100,
	}
}

func order(id string, side domain.Side, price float64, age time.Duration) domain.OpenOrder {
	return domain.OpenOrder{Symbol: "ETHUSDT", Side: side, OrderID: id, Price: price, Quantity: 0.5, Time: t0.Add(-age)}
}

func filterActions(actions []domain.Action, typ domain.ActionType, side domain.Side) []domain.Action {
	var out []domain.Action
	for _, a := range actions {
		if a.Type == typ && a.Side == side {
			out = append(out, a)
		}
	}
	return out
}

func TestLogQuota_Monotonic(t *testing.T) {
	cfg := testSymbolConfig()

	assert.Zero(t, usecase.LogQuota(cfg, 0))
	assert.Zero(t, usecase.LogQuota(cfg, 5))
	assert.Zero(t, usecase.LogQuota(cfg, cfg.QuotaReferenceSize))
	assert.InDelta(t, cfg.QuotaScale*math.Log(10), usecase.LogQuota(cfg, 100), eps)

	prev := 0.0
	for size := 0.0; size < 1000; size += 3.7 {
		q := usecase.LogQuota(cfg, size)
		assert.GreaterOrEqual(t, q, prev, "size %f", size)
		prev = q
	}
}

func TestPriceAdjustment_Cubic(t *testing.T) {
	cfg := testSymbolConfig()

	assert.InDelta(t, -0.25, usecase.PriceAdjustment(cfg, 0.5), eps)
	assert.InDelta(t, 0.25, usecase.PriceAdjustment(cfg, -0.5), eps)
	assert.InDelta(t, -2.0, usecase.PriceAdjustment(cfg, 1), eps)
	assert.Zero(t, usecase.PriceAdjustment(cfg, 0))
}

func TestBidCeilingAndAskFloor(t *testing.T) {
	cfg := testSymbolConfig()

	tests := []struct {
		name    string
		params  func(p *domain.QuotingParams)
		wantBid float64
		wantAsk float64
	}{
		{"neutral", func(p *domain.QuotingParams) {}, 100, 100},
		{"long pulls the bid down only", func(p *domain.QuotingParams) { p.Deviation = 0.5 }, 99.75, 100},
		{"short pushes the ask up only", func(p *domain.QuotingParams) { p.Deviation = -0.5 }, 100, 100.25},
		{"tapered references", func(p *domain.QuotingParams) {
			p.TaperedBuyReference = 97
			p.TaperedSellReference = 104
		}, 97, 104},
		{"reference on the wrong side of the mark is ignored", func(p *domain.QuotingParams) {
			p.TaperedBuyReference = 103
			p.TaperedSellReference = 96
		}, 100, 100},
		{"clamped to the band", func(p *domain.QuotingParams) {
			p.MarkPrice = 200
			p.TaperedBuyReference = 200
			p.TaperedSellReference = 20
		}, 150, 150},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := neutralParams()
			tt.params(&p)
			assert.InDelta(t, tt.wantBid, usecase.BidCeiling(cfg, p), eps)
			assert.InDelta(t, tt.wantAsk, usecase.AskFloor(cfg, p), eps)
		})
	}
}

func TestProximityFactor(t *testing.T) {
	assert.Equal(t, 1.0, usecase.ProximityFactor(domain.SideBuy, 99, 100, 0.5))
	assert.Equal(t, 0.5, usecase.ProximityFactor(domain.SideBuy, 99.75, 100, 0.5))
	assert.Equal(t, 0.0, usecase.ProximityFactor(domain.SideBuy, 100, 100, 0.5))
	assert.Equal(t, 0.0, usecase.ProximityFactor(domain.SideBuy, 101, 100, 0.5))

	assert.Equal(t, 1.0, usecase.ProximityFactor(domain.SideSell, 101, 100, 0.5))
	assert.Equal(t, 0.5, usecase.ProximityFactor(domain.SideSell, 100.25, 100, 0.5))
	assert.Equal(t, 0.0, usecase.ProximityFactor(domain.SideSell, 99, 100, 0.5))
}

func TestTouchFactor(t *testing.T) {
	cfg := testSymbolConfig()

	assert.InDelta(t, 0.6, usecase.TouchFactor(cfg, domain.SideBuy, 0.8), eps)
	assert.InDelta(t, 1.0, usecase.TouchFactor(cfg, domain.SideSell, 0.8), eps)
	assert.InDelta(t, 0.6, usecase.TouchFactor(cfg, domain.SideSell, -0.8), eps)
	assert.InDelta(t, 1.0, usecase.TouchFactor(cfg, domain.SideBuy, -0.8), eps)
	// capped at full damping
	assert.InDelta(t, 0.5, usecase.TouchFactor(cfg, domain.SideBuy, 3), eps)
}

func TestLevelQuota(t *testing.T) {
	cfg := testSymbolConfig()
	level := domain.DepthLevel{Price: 99, Quantity: 100} // 2*ln(10) = 4.6

	assert.Equal(t, 4, usecase.LevelQuota(cfg, domain.SideBuy, 3, level, 100, 0))
	// touch damping applies at index 0 only
	assert.Equal(t, 2, usecase.LevelQuota(cfg, domain.SideBuy, 0, level, 100, 1))
	assert.Equal(t, 4, usecase.LevelQuota(cfg, domain.SideBuy, 1, level, 100, 1))
	// half a tick inside the ceiling
	assert.Equal(t, 2, usecase.LevelQuota(cfg, domain.SideBuy, 2, domain.DepthLevel{Price: 99.75, Quantity: 100}, 100, 0))
	// thin level
	assert.Equal(t, 0, usecase.LevelQuota(cfg, domain.SideBuy, 2, domain.DepthLevel{Price: 99, Quantity: 9}, 100, 0))
}

func TestPlacementProbability(t *testing.T) {
	assert.InDelta(t, 1.0, usecase.PlacementProbability(1, 0), eps)
	assert.InDelta(t, 0.5, usecase.PlacementProbability(1, 1), eps)
	assert.InDelta(t, 1.0/9, usecase.PlacementProbability(1, 4), eps)
	assert.InDelta(t, 0.5, usecase.PlacementProbability(2, 0), eps)

	for n := 0; n < 10; n++ {
		assert.Greater(t, usecase.PlacementProbability(1, n), usecase.PlacementProbability(1, n+1))
	}
}

func TestManageOrders_ZeroQuotasPlaceNothing(t *testing.T) {
	cfg := testSymbolConfig()
	depth := &domain.Depth{
		Bids: []domain.DepthLevel{{Price: 99.5, Quantity: 5}, {Price: 99, Quantity: 8}, {Price: 98.5, Quantity: 10}},
		Asks: []domain.DepthLevel{{Price: 100.5, Quantity: 5}, {Price: 101, Quantity: 8}, {Price: 101.5, Quantity: 10}},
	}
	rng := &seqRand{values: []float64{0}}
	engine := usecase.NewQuotingEngine(rng, zap.NewNop())

	actions := engine.ManageOrders(cfg, depth, nil, neutralParams())
	assert.Empty(t, actions)
	assert.Zero(t, rng.calls)

	// Only the out-of-band order goes. The in-band one rests between ladder prices.
	open := []domain.OpenOrder{
		order("in-band", domain.SideBuy, 98.75, time.Hour),
		order("too-high", domain.SideBuy, 100.5, time.Hour),
	}
	actions = engine.ManageOrders(cfg, depth, open, neutralParams())
	require.Len(t, actions, 1)
	assert.Equal(t, domain.ActionCancel, actions[0].Type)
	assert.Equal(t, "too-high", actions[0].OrderID)
	assert.Equal(t, domain.ReasonStale, actions[0].Reason)
	assert.Equal(t, -1, actions[0].Level)
}

func TestManageOrders_CancelsNewestExcess(t *testing.T) {
	cfg := testSymbolConfig()
	// 2*ln(3.5) = 2.5, quota 2
	depth := &domain.Depth{Bids: []domain.DepthLevel{{Price: 99.5, Quantity: 35}}}
	require.Equal(t, 2, usecase.LevelQuota(cfg, domain.SideBuy, 0, depth.Bids[0], 100, 0))

	var open []domain.OpenOrder
	for i := 1; i <= 5; i++ {
		// o1 is the oldest
		open = append(open, order(fmt.Sprintf("o%d", i), domain.SideBuy, 99.5, time.Duration(10-i)*time.Minute))
	}
	// exchange returns them in arbitrary order
	open[0], open[4] = open[4], open[0]

	engine := usecase.NewQuotingEngine(&seqRand{values: []float64{0}}, zap.NewNop())
	actions := engine.ManageOrders(cfg, depth, open, neutralParams())

	require.Len(t, actions, 3)
	var ids []string
	for _, a := range actions {
		assert.Equal(t, domain.ActionCancel, a.Type)
		assert.Equal(t, domain.ReasonExcess, a.Reason)
		assert.Equal(t, 0, a.Level)
		ids = append(ids, a.OrderID)
	}
	assert.ElementsMatch(t, []string{"o3", "o4", "o5"}, ids)
}

func TestManageOrders_OnePlacementPerSideDeepestFirst(t *testing.T) {
	cfg := testSymbolConfig()
	depth := &domain.Depth{
		Bids: []domain.DepthLevel{{Price: 99.5, Quantity: 100}, {Price: 99, Quantity: 100}, {Price: 98.5, Quantity: 100}},
		Asks: []domain.DepthLevel{{Price: 100.5, Quantity: 100}, {Price: 101, Quantity: 100}, {Price: 101.5, Quantity: 100}},
	}
	engine := usecase.NewQuotingEngine(&seqRand{values: []float64{0}}, zap.NewNop())

	actions := engine.ManageOrders(cfg, depth, nil, neutralParams())

	bids := filterActions(actions, domain.ActionPlace, domain.SideBuy)
	asks := filterActions(actions, domain.ActionPlace, domain.SideSell)
	require.Len(t, bids, 1)
	require.Len(t, asks, 1)
	assert.Equal(t, 98.5, bids[0].Price)
	assert.Equal(t, 2, bids[0].Level)
	assert.Equal(t, 0.5, bids[0].Quantity)
	assert.Equal(t, 101.5, asks[0].Price)
	assert.Equal(t, domain.ReasonQuota, asks[0].Reason)
}

func TestManageOrders_PlacementGate(t *testing.T) {
	cfg := testSymbolConfig()
	depth := &domain.Depth{Bids: []domain.DepthLevel{{Price: 99.5, Quantity: 100}, {Price: 99, Quantity: 100}}}
	open := []domain.OpenOrder{order("a", domain.SideBuy, 99, time.Minute)}

	// Level 1 holds one order so its threshold is 0.5; level 0 is empty with threshold 1.
	rng := &seqRand{values: []float64{0.6, 0.6}}
	engine := usecase.NewQuotingEngine(rng, zap.NewNop())
	actions := engine.ManageOrders(cfg, depth, open, neutralParams())

	require.Len(t, actions, 1)
	assert.Equal(t, 99.5, actions[0].Price)
	assert.Equal(t, 2, rng.calls)

	// A draw exactly at the threshold still places.
	rng = &seqRand{values: []float64{0.5}}
	engine = usecase.NewQuotingEngine(rng, zap.NewNop())
	actions = engine.ManageOrders(cfg, depth, open, neutralParams())
	require.Len(t, actions, 1)
	assert.Equal(t, 99.0, actions[0].Price)
	assert.Equal(t, 1, rng.calls)
}

func TestManageOrders_QuotaBreachStillCheckedAfterPlacement(t *testing.T) {
	cfg := testSymbolConfig()
	depth := &domain.Depth{Bids: []domain.DepthLevel{{Price: 99.5, Quantity: 35}, {Price: 99, Quantity: 100}}}
	open := []domain.OpenOrder{
		order("old", domain.SideBuy, 99.5, 3*time.Minute),
		order("mid", domain.SideBuy, 99.5, 2*time.Minute),
		order("new", domain.SideBuy, 99.5, time.Minute),
	}
	engine := usecase.NewQuotingEngine(&seqRand{values: []float64{0}}, zap.NewNop())
	actions := engine.ManageOrders(cfg, depth, open, neutralParams())

	places := filterActions(actions, domain.ActionPlace, domain.SideBuy)
	cancels := filterActions(actions, domain.ActionCancel, domain.SideBuy)
	require.Len(t, places, 1)
	assert.Equal(t, 99.0, places[0].Price)
	require.Len(t, cancels, 1)
	assert.Equal(t, "new", cancels[0].OrderID)
}

func TestManageOrders_EmptyLadderPurgesSide(t *testing.T) {
	cfg := testSymbolConfig()
	depth := &domain.Depth{Bids: []domain.DepthLevel{{Price: 99.5, Quantity: 5}}}
	open := []domain.OpenOrder{
		order("ask-1", domain.SideSell, 101, time.Minute),
		order("ask-2", domain.SideSell, 100.5, 2*time.Minute),
		{Symbol: "BTCUSDT", Side: domain.SideSell, OrderID: "other", Price: 101},
	}
	engine := usecase.NewQuotingEngine(&seqRand{values: []float64{0}}, zap.NewNop())
	actions := engine.ManageOrders(cfg, depth, open, neutralParams())

	require.Len(t, actions, 2)
	for _, a := range actions {
		assert.Equal(t, domain.ActionCancel, a.Type)
		assert.Equal(t, domain.SideSell, a.Side)
		assert.Equal(t, domain.ReasonStale, a.Reason)
	}
	assert.ElementsMatch(t, []string{"ask-1", "ask-2"}, []string{actions[0].OrderID, actions[1].OrderID})
}

func TestManageOrders_NoOrderQuantityNoPlacement(t *testing.T) {
	cfg := testSymbolConfig()
	depth := &domain.Depth{Bids: []domain.DepthLevel{{Price: 99.5, Quantity: 100}}}
	params := neutralParams()
	params.OrderQuantity = 0

	engine := usecase.NewQuotingEngine(&seqRand{values: []float64{0}}, zap.NewNop())
	assert.Empty(t, engine.ManageOrders(cfg, depth, nil, params))
}
