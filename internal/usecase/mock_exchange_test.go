package usecase_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vitos/crypto_market_maker/internal/domain"
)

type MockExchange struct {
	mu sync.Mutex

	Trades   []domain.Trade
	Orders   []domain.OpenOrder
	Balances map[string]domain.Balance
	Depth    *domain.Depth
	Stats    *domain.PriceStats

	FetchErr  error
	PlaceErr  map[float64]error
	CancelErr map[string]error

	Placed    []domain.Action
	Cancelled []string
	Deadlines []time.Time
	nextID    int
}

func (m *MockExchange) recordDeadline(ctx context.Context) {
	if deadline, ok := ctx.Deadline(); ok {
		m.Deadlines = append(m.Deadlines, deadline)
	}
}

func (m *MockExchange) FetchTrades(ctx context.Context, symbol string, since time.Time, limit int) ([]domain.Trade, error) {
	if m.FetchErr != nil {
		return nil, m.FetchErr
	}
	return m.Trades, nil
}

func (m *MockExchange) FetchOpenOrders(ctx context.Context, symbol string) ([]domain.OpenOrder, error) {
	return m.Orders, nil
}

func (m *MockExchange) FetchBalances(ctx context.Context) (map[string]domain.Balance, error) {
	return m.Balances, nil
}

func (m *MockExchange) FetchDepth(ctx context.Context, symbol string, levels int) (*domain.Depth, error) {
	return m.Depth, nil
}

func (m *MockExchange) FetchPriceStats(ctx context.Context, symbol string, window string) (*domain.PriceStats, error) {
	return m.Stats, nil
}

func (m *MockExchange) PlaceOrder(ctx context.Context, side domain.Side, quantity float64, symbol string, price float64) (*domain.OpenOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recordDeadline(ctx)

	if err := m.PlaceErr[price]; err != nil {
		return nil, err
	}
	m.nextID++
	m.Placed = append(m.Placed, domain.Action{Type: domain.ActionPlace, Side: side, Symbol: symbol, Price: price, Quantity: quantity})
	return &domain.OpenOrder{
		Symbol:   symbol,
		Side:     side,
		OrderID:  fmt.Sprintf("new-%d", m.nextID),
		Price:    price,
		Quantity: quantity,
	}, nil
}

func (m *MockExchange) CancelOrder(ctx context.Context, symbol, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recordDeadline(ctx)

	if err := m.CancelErr[orderID]; err != nil {
		return err
	}
	m.Cancelled = append(m.Cancelled, orderID)
	return nil
}
