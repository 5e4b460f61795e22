package usecase

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/vitos/crypto_market_maker/internal/domain"
)

type openLeg struct {
	qty float64
	at  time.Time
}

// ComputePosition replays trades in chronological order (ties broken by trade ID) and
// returns the resulting position. The input slice is not modified.
//
// An empty history yields a zero position together with domain.ErrInsufficientData.
// A flip whose closing leg does not zero the cost returns the position built so far
// together with domain.ErrConsistencyViolation.
func ComputePosition(trades []domain.Trade, now time.Time) (domain.Position, error) {
	pos := domain.Position{AsOf: now}
	if len(trades) == 0 {
		return pos, fmt.Errorf("compute position: no trades: %w", domain.ErrInsufficientData)
	}

	sorted := sortTrades(trades)
	pos.Symbol = sorted[0].Symbol

	var legs []openLeg
	for _, t := range sorted {
		if math.Abs(t.Quantity) < domain.Epsilon {
			continue
		}
		pos.TradeCount++
		accumulateSide(&pos, t)

		q := pos.Quantity
		newQty := q + t.Quantity

		switch {
		case sign(q) == 0 || sign(q) == sign(t.Quantity):
			// increase
			pos.Cost += t.Quantity * t.Price
			pos.AveragePrice = safeDiv(pos.Cost, newQty)
			legs = append(legs, openLeg{qty: math.Abs(t.Quantity), at: t.Time})

		case sign(newQty) == sign(q) || sign(newQty) == 0:
			// reduce, closes at the old average price
			pos.Cost += t.Quantity * pos.AveragePrice
			pos.RealizedPnL += t.Quantity * (pos.AveragePrice - t.Price)
			pos.MatchedQuantity += math.Abs(t.Quantity)
			legs = consumeLegs(legs, math.Abs(t.Quantity))
			if sign(newQty) == 0 {
				newQty = 0
				pos.Cost = 0
				pos.AveragePrice = 0
				legs = nil
			}

		default:
			// flip: close everything, then open the remainder at the trade price
			closing := q * pos.AveragePrice
			pos.Cost -= closing
			if math.Abs(pos.Cost) >= domain.Epsilon*math.Max(1, math.Abs(closing)) {
				return pos, fmt.Errorf("compute position: trade %d leaves cost %.12f after closing %.8f: %w",
					t.ID, pos.Cost, q, domain.ErrConsistencyViolation)
			}
			pos.Cost = 0
			pos.RealizedPnL -= q * (pos.AveragePrice - t.Price)
			pos.MatchedQuantity += math.Abs(q)
			pos.Cost += (t.Quantity + q) * t.Price
			pos.AveragePrice = safeDiv(pos.Cost, newQty)
			legs = []openLeg{{qty: math.Abs(newQty), at: t.Time}}
		}

		pos.Quantity = newQty
	}

	finishSides(&pos)
	pos.OpenAge = averageAge(legs, now)
	return pos, nil
}

// SummarizePosition computes the end-of-window position in closed form from the
// bought and sold aggregates. It always agrees with ComputePosition on quantity.
// Realized P&L agrees when the window ends flat; otherwise the closed form allocates
// it by window averages rather than in replay order.
func SummarizePosition(trades []domain.Trade) (domain.Position, error) {
	var pos domain.Position
	if len(trades) == 0 {
		return pos, fmt.Errorf("summarize position: no trades: %w", domain.ErrInsufficientData)
	}
	pos.Symbol = trades[0].Symbol
	for _, t := range trades {
		if math.Abs(t.Quantity) < domain.Epsilon {
			continue
		}
		pos.TradeCount++
		accumulateSide(&pos, t)
	}
	finishSides(&pos)

	pos.Quantity = pos.Bought.Quantity - pos.Sold.Quantity
	pos.MatchedQuantity = math.Min(pos.Bought.Quantity, pos.Sold.Quantity)
	pos.RealizedPnL = pos.MatchedQuantity * (pos.Sold.AveragePrice - pos.Bought.AveragePrice)
	if pos.Quantity >= 0 {
		pos.AveragePrice = pos.Bought.AveragePrice
	} else {
		pos.AveragePrice = pos.Sold.AveragePrice
	}
	if sign(pos.Quantity) == 0 {
		pos.Quantity = 0
		pos.AveragePrice = 0
	}
	pos.Cost = pos.Quantity * pos.AveragePrice
	return pos, nil
}

// PositionsAgree reports whether two positions match on quantity, realized P&L and
// matched quantity within tol.
func PositionsAgree(a, b domain.Position, tol float64) bool {
	return math.Abs(a.Quantity-b.Quantity) <= tol &&
		math.Abs(a.RealizedPnL-b.RealizedPnL) <= tol &&
		math.Abs(a.MatchedQuantity-b.MatchedQuantity) <= tol
}

func sortTrades(trades []domain.Trade) []domain.Trade {
	sorted := make([]domain.Trade, len(trades))
	copy(sorted, trades)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Time.Equal(sorted[j].Time) {
			return sorted[i].Time.Before(sorted[j].Time)
		}
		return sorted[i].ID < sorted[j].ID
	})
	return sorted
}

func accumulateSide(pos *domain.Position, t domain.Trade) {
	if t.Quantity > 0 {
		pos.Bought.Quantity += t.Quantity
		pos.Bought.Consideration += t.Quantity * t.Price
		return
	}
	pos.Sold.Quantity -= t.Quantity
	pos.Sold.Consideration -= t.Quantity * t.Price
}

func finishSides(pos *domain.Position) {
	pos.Bought.AveragePrice = safeDiv(pos.Bought.Consideration, pos.Bought.Quantity)
	pos.Sold.AveragePrice = safeDiv(pos.Sold.Consideration, pos.Sold.Quantity)
}

// consumeLegs closes qty against the oldest legs first.
func consumeLegs(legs []openLeg, qty float64) []openLeg {
	for len(legs) > 0 && qty >= domain.Epsilon {
		if legs[0].qty > qty+domain.Epsilon {
			legs[0].qty -= qty
			return legs
		}
		qty -= legs[0].qty
		legs = legs[1:]
	}
	return legs
}

func averageAge(legs []openLeg, now time.Time) time.Duration {
	var qty, weighted float64
	for _, l := range legs {
		age := now.Sub(l.at).Seconds()
		if age < 0 {
			age = 0
		}
		qty += l.qty
		weighted += l.qty * age
	}
	return time.Duration(safeDiv(weighted, qty) * float64(time.Second))
}

func sign(x float64) int {
	switch {
	case x >= domain.Epsilon:
		return 1
	case x <= -domain.Epsilon:
		return -1
	}
	return 0
}

// safeDiv returns 0 instead of dividing by a near-zero denominator.
func safeDiv(num, den float64) float64 {
	if math.Abs(den) < domain.Epsilon {
		return 0
	}
	return num / den
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}
