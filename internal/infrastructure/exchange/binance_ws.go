package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vitos/crypto_market_maker/internal/domain"
	"go.uber.org/zap"
)

// DepthStream keeps the latest partial book of each subscribed symbol from the
// <symbol>@depth20@100ms streams.
type DepthStream struct {
	wsURL   string
	logger  *zap.Logger
	timeNow func() time.Time

	mu     sync.RWMutex
	conn   *websocket.Conn
	books  map[string]*domain.Depth
	byName map[string]string // stream name -> symbol
}

func NewDepthStream(wsURL string, logger *zap.Logger) *DepthStream {
	if wsURL == "" {
		wsURL = BinanceWSURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DepthStream{
		wsURL:   wsURL,
		logger:  logger,
		timeNow: time.Now,
		books:   make(map[string]*domain.Depth),
		byName:  make(map[string]string),
	}
}

func streamName(symbol string) string {
	return strings.ToLower(symbol) + "@depth20@100ms"
}

// Run connects and reads until ctx is done, reconnecting after read errors.
func (s *DepthStream) Run(ctx context.Context, symbols []string) {
	for {
		if err := s.connect(ctx, symbols); err != nil {
			s.logger.Warn("Depth stream connect failed", zap.Error(err))
		} else {
			s.readLoop(ctx)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(5 * time.Second):
		}
	}
}

func (s *DepthStream) connect(ctx context.Context, symbols []string) error {
	if len(symbols) == 0 {
		return fmt.Errorf("depth stream: no symbols")
	}
	names := make([]string, 0, len(symbols))
	s.mu.Lock()
	for _, sym := range symbols {
		name := streamName(sym)
		s.byName[name] = sym
		names = append(names, name)
	}
	s.mu.Unlock()

	c, _, err := websocket.DefaultDialer.DialContext(ctx, s.wsURL+"?streams="+strings.Join(names, "/"), nil)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.conn = c
	s.mu.Unlock()

	s.logger.Info("Depth stream connected", zap.Strings("streams", names))
	return nil
}

func (s *DepthStream) readLoop(ctx context.Context) {
	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	defer func() {
		conn.Close()
		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Warn("Depth stream read error", zap.Error(err))
			}
			return
		}
		if err := s.handleMessage(message); err != nil {
			s.logger.Debug("Depth stream message skipped", zap.Error(err))
		}
	}
}

func (s *DepthStream) handleMessage(message []byte) error {
	var event struct {
		Stream string `json:"stream"`
		Data   struct {
			Bids [][]string `json:"bids"`
			Asks [][]string `json:"asks"`
		} `json:"data"`
	}
	if err := json.Unmarshal(message, &event); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	symbol, ok := s.byName[event.Stream]
	if !ok {
		return fmt.Errorf("unknown stream %q", event.Stream)
	}
	s.books[symbol] = &domain.Depth{
		Symbol:    symbol,
		Bids:      parseLevels(event.Data.Bids),
		Asks:      parseLevels(event.Data.Asks),
		UpdatedAt: s.timeNow(),
	}
	return nil
}

// Latest returns the cached book for symbol when it is younger than maxAge.
func (s *DepthStream) Latest(symbol string, maxAge time.Duration) (*domain.Depth, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.books[symbol]
	if !ok || s.timeNow().Sub(d.UpdatedAt) > maxAge {
		return nil, false
	}
	return d, true
}
