package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vitos/crypto_market_maker/internal/domain"
	"go.uber.org/zap"
)

const (
	BinanceBaseURL = "https://api.binance.com"
	BinanceWSURL   = "wss://stream.binance.com:9443/stream"

	codeUnknownOrder = -2011
	maxTradesPage    = 1000
	tradesWindow     = 24 * time.Hour
)

// depth limits accepted by /api/v3/depth
var depthLimits = []int{5, 10, 20, 50, 100, 500, 1000, 5000}

// BinanceAdapter implements domain.Exchange against the Binance spot REST API.
type BinanceAdapter struct {
	apiKey     string
	apiSecret  string
	baseURL    string
	recvWindow int
	client     *http.Client
	stream     *DepthStream
	maxAge     time.Duration
	logger     *zap.Logger
	timeNow    func() time.Time
}

func NewBinanceAdapter(apiKey, apiSecret, baseURL string, logger *zap.Logger) *BinanceAdapter {
	if baseURL == "" {
		baseURL = BinanceBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BinanceAdapter{
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		baseURL:    strings.TrimRight(baseURL, "/"),
		recvWindow: 5000,
		client:     &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
		timeNow:    time.Now,
	}
}

// WithDepthStream lets FetchDepth answer from the websocket cache while it is fresher than maxAge.
func (b *BinanceAdapter) WithDepthStream(stream *DepthStream, maxAge time.Duration) *BinanceAdapter {
	b.stream = stream
	b.maxAge = maxAge
	return b
}

// --- REST API ---

func (b *BinanceAdapter) sign(query string) string {
	h := hmac.New(sha256.New, []byte(b.apiSecret))
	h.Write([]byte(query))
	return hex.EncodeToString(h.Sum(nil))
}

func (b *BinanceAdapter) sendRequest(ctx context.Context, op, method, path string, params url.Values, signed bool) ([]byte, error) {
	if params == nil {
		params = url.Values{}
	}
	query := params.Encode()
	if signed {
		params.Set("timestamp", strconv.FormatInt(b.timeNow().UnixMilli(), 10))
		params.Set("recvWindow", strconv.Itoa(b.recvWindow))
		query = params.Encode()
		query += "&signature=" + b.sign(query)
	}

	endpoint := b.baseURL + path
	if query != "" {
		endpoint += "?" + query
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return nil, &domain.ExchangeError{Kind: domain.ErrTransport, Op: op, Err: err}
	}
	if signed {
		req.Header.Set("X-MBX-APIKEY", b.apiKey)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, &domain.ExchangeError{Kind: domain.ErrTransport, Op: op, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.ExchangeError{Kind: domain.ErrTransport, Op: op, Err: err}
	}

	if resp.StatusCode >= 400 {
		return nil, classifyError(op, resp.StatusCode, respBody)
	}
	return respBody, nil
}

// classifyError maps an HTTP failure onto the domain error taxonomy. Server errors and
// rate limiting are transport failures, the driver retries them on the next tick.
func classifyError(op string, status int, body []byte) error {
	var apiErr struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	_ = json.Unmarshal(body, &apiErr)
	if apiErr.Msg == "" {
		apiErr.Msg = string(body)
	}

	kind := domain.ErrExchangeRejection
	switch {
	case apiErr.Code == codeUnknownOrder:
		kind = domain.ErrOrderNotFound
	case status >= 500, status == http.StatusTooManyRequests, status == http.StatusTeapot:
		kind = domain.ErrTransport
	}
	return &domain.ExchangeError{Kind: kind, Op: op, StatusCode: status, Code: apiErr.Code, Msg: apiErr.Msg}
}

func parseFloat(s string) float64 {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	f, _ := d.Float64()
	return f
}

func formatFloat(f float64) string {
	return decimal.NewFromFloat(f).String()
}

// FetchTrades returns the account fills in [since, now], oldest first. When
// more than limit fills exist only the newest limit are returned.
func (b *BinanceAdapter) FetchTrades(ctx context.Context, symbol string, since time.Time, limit int) ([]domain.Trade, error) {
	if limit <= 0 {
		limit = maxTradesPage
	}

	now := b.timeNow()
	if since.IsZero() {
		since = now.Add(-tradesWindow)
	}

	// myTrades only accepts windows up to 24h, walk backward from now
	var windows [][]domain.Trade
	total := 0
	end := now
	for end.After(since) && total < limit {
		start := end.Add(-tradesWindow)
		if start.Before(since) {
			start = since
		}
		page, err := b.fetchTradesWindow(ctx, symbol, start, end)
		if err != nil {
			return nil, err
		}
		windows = append(windows, page)
		total += len(page)
		end = start
	}

	seen := make(map[int64]struct{}, total)
	trades := make([]domain.Trade, 0, total)
	for i := len(windows) - 1; i >= 0; i-- {
		for _, t := range windows[i] {
			if _, dup := seen[t.ID]; dup {
				continue
			}
			seen[t.ID] = struct{}{}
			trades = append(trades, t)
		}
	}

	if len(trades) > limit || end.After(since) {
		b.logger.Warn("Trade history truncated to newest fills",
			zap.String("symbol", symbol),
			zap.Int("limit", limit),
			zap.Int("fetched", len(trades)),
			zap.Time("unfetched_before", end))
		if len(trades) > limit {
			trades = trades[len(trades)-limit:]
		}
	}
	return trades, nil
}

// fetchTradesWindow returns every fill in [start, end]. A full first page is
// followed by fromId pages, which Binance does not allow to carry a time range.
func (b *BinanceAdapter) fetchTradesWindow(ctx context.Context, symbol string, start, end time.Time) ([]domain.Trade, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("startTime", strconv.FormatInt(start.UnixMilli(), 10))
	params.Set("endTime", strconv.FormatInt(end.UnixMilli(), 10))
	params.Set("limit", strconv.Itoa(maxTradesPage))

	var trades []domain.Trade
	for {
		page, err := b.fetchTradesPage(ctx, params)
		if err != nil {
			return nil, err
		}
		for _, t := range page {
			if t.Time.After(end) {
				return trades, nil
			}
			trades = append(trades, t)
		}
		if len(page) < maxTradesPage {
			return trades, nil
		}

		params = url.Values{}
		params.Set("symbol", symbol)
		params.Set("fromId", strconv.FormatInt(page[len(page)-1].ID+1, 10))
		params.Set("limit", strconv.Itoa(maxTradesPage))
	}
}

func (b *BinanceAdapter) fetchTradesPage(ctx context.Context, params url.Values) ([]domain.Trade, error) {
	resp, err := b.sendRequest(ctx, "fetch trades", http.MethodGet, "/api/v3/myTrades", params, true)
	if err != nil {
		return nil, err
	}

	var raw []struct {
		Symbol          string `json:"symbol"`
		ID              int64  `json:"id"`
		Price           string `json:"price"`
		Qty             string `json:"qty"`
		QuoteQty        string `json:"quoteQty"`
		Commission      string `json:"commission"`
		CommissionAsset string `json:"commissionAsset"`
		Time            int64  `json:"time"`
		IsBuyer         bool   `json:"isBuyer"`
	}
	if err := json.Unmarshal(resp, &raw); err != nil {
		return nil, fmt.Errorf("fetch trades: decode: %w", err)
	}

	trades := make([]domain.Trade, 0, len(raw))
	for _, t := range raw {
		qty := parseFloat(t.Qty)
		quoteQty := parseFloat(t.QuoteQty)
		if !t.IsBuyer {
			qty, quoteQty = -qty, -quoteQty
		}
		trades = append(trades, domain.Trade{
			ID:              t.ID,
			Symbol:          t.Symbol,
			IsBuyer:         t.IsBuyer,
			Quantity:        qty,
			QuoteQuantity:   quoteQty,
			Price:           parseFloat(t.Price),
			Commission:      parseFloat(t.Commission),
			CommissionAsset: t.CommissionAsset,
			Time:            time.UnixMilli(t.Time),
		})
	}
	return trades, nil
}

func (b *BinanceAdapter) FetchOpenOrders(ctx context.Context, symbol string) ([]domain.OpenOrder, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	resp, err := b.sendRequest(ctx, "fetch open orders", http.MethodGet, "/api/v3/openOrders", params, true)
	if err != nil {
		return nil, err
	}

	var raw []struct {
		Symbol        string `json:"symbol"`
		OrderID       int64  `json:"orderId"`
		ClientOrderID string `json:"clientOrderId"`
		Price         string `json:"price"`
		OrigQty       string `json:"origQty"`
		ExecutedQty   string `json:"executedQty"`
		Side          string `json:"side"`
		Time          int64  `json:"time"`
	}
	if err := json.Unmarshal(resp, &raw); err != nil {
		return nil, fmt.Errorf("fetch open orders: decode: %w", err)
	}

	orders := make([]domain.OpenOrder, 0, len(raw))
	for _, o := range raw {
		remaining := parseFloat(o.OrigQty) - parseFloat(o.ExecutedQty)
		orders = append(orders, domain.OpenOrder{
			Symbol:        o.Symbol,
			Side:          domain.Side(o.Side),
			OrderID:       strconv.FormatInt(o.OrderID, 10),
			ClientOrderID: o.ClientOrderID,
			Time:          time.UnixMilli(o.Time),
			Price:         parseFloat(o.Price),
			Quantity:      remaining,
		})
	}
	return orders, nil
}

func (b *BinanceAdapter) FetchBalances(ctx context.Context) (map[string]domain.Balance, error) {
	params := url.Values{}
	params.Set("omitZeroBalances", "true")

	resp, err := b.sendRequest(ctx, "fetch balances", http.MethodGet, "/api/v3/account", params, true)
	if err != nil {
		return nil, err
	}

	var result struct {
		Balances []struct {
			Asset  string `json:"asset"`
			Free   string `json:"free"`
			Locked string `json:"locked"`
		} `json:"balances"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("fetch balances: decode: %w", err)
	}

	balances := make(map[string]domain.Balance, len(result.Balances))
	for _, bal := range result.Balances {
		balances[bal.Asset] = domain.Balance{
			Asset:  bal.Asset,
			Free:   parseFloat(bal.Free),
			Locked: parseFloat(bal.Locked),
		}
	}
	return balances, nil
}

func (b *BinanceAdapter) FetchDepth(ctx context.Context, symbol string, levels int) (*domain.Depth, error) {
	if b.stream != nil {
		if d, ok := b.stream.Latest(symbol, b.maxAge); ok && len(d.Bids) >= levels && len(d.Asks) >= levels {
			return trimDepth(d, levels), nil
		}
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("limit", strconv.Itoa(depthLimit(levels)))

	resp, err := b.sendRequest(ctx, "fetch depth", http.MethodGet, "/api/v3/depth", params, false)
	if err != nil {
		return nil, err
	}

	var result struct {
		Bids [][]string `json:"bids"`
		Asks [][]string `json:"asks"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("fetch depth: decode: %w", err)
	}

	d := &domain.Depth{
		Symbol:    symbol,
		Bids:      parseLevels(result.Bids),
		Asks:      parseLevels(result.Asks),
		UpdatedAt: b.timeNow(),
	}
	return trimDepth(d, levels), nil
}

func parseLevels(raw [][]string) []domain.DepthLevel {
	levels := make([]domain.DepthLevel, 0, len(raw))
	for _, l := range raw {
		if len(l) < 2 {
			continue
		}
		levels = append(levels, domain.DepthLevel{Price: parseFloat(l[0]), Quantity: parseFloat(l[1])})
	}
	return levels
}

func depthLimit(levels int) int {
	for _, l := range depthLimits {
		if l >= levels {
			return l
		}
	}
	return depthLimits[len(depthLimits)-1]
}

func trimDepth(d *domain.Depth, levels int) *domain.Depth {
	out := *d
	if levels > 0 && len(out.Bids) > levels {
		out.Bids = out.Bids[:levels]
	}
	if levels > 0 && len(out.Asks) > levels {
		out.Asks = out.Asks[:levels]
	}
	return &out
}

func (b *BinanceAdapter) FetchPriceStats(ctx context.Context, symbol string, window string) (*domain.PriceStats, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("windowSize", window)

	resp, err := b.sendRequest(ctx, "fetch price stats", http.MethodGet, "/api/v3/ticker", params, false)
	if err != nil {
		return nil, err
	}

	var result struct {
		Symbol           string `json:"symbol"`
		LastPrice        string `json:"lastPrice"`
		HighPrice        string `json:"highPrice"`
		LowPrice         string `json:"lowPrice"`
		WeightedAvgPrice string `json:"weightedAvgPrice"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("fetch price stats: decode: %w", err)
	}

	return &domain.PriceStats{
		Symbol:               symbol,
		Window:               window,
		LastPrice:            parseFloat(result.LastPrice),
		HighPrice:            parseFloat(result.HighPrice),
		LowPrice:             parseFloat(result.LowPrice),
		WeightedAveragePrice: parseFloat(result.WeightedAvgPrice),
	}, nil
}

// PlaceOrder submits a post-only limit order so a quote never takes liquidity.
func (b *BinanceAdapter) PlaceOrder(ctx context.Context, side domain.Side, quantity float64, symbol string, price float64) (*domain.OpenOrder, error) {
	if quantity <= 0 || price <= 0 {
		return nil, &domain.ExchangeError{
			Kind: domain.ErrExchangeRejection,
			Op:   "place order",
			Msg:  fmt.Sprintf("invalid price %v or quantity %v", price, quantity),
		}
	}

	clientID := "mm-" + strings.ReplaceAll(uuid.New().String(), "-", "")[:24]
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", string(side))
	params.Set("type", "LIMIT_MAKER")
	params.Set("quantity", formatFloat(quantity))
	params.Set("price", formatFloat(price))
	params.Set("newClientOrderId", clientID)
	params.Set("newOrderRespType", "ACK")

	resp, err := b.sendRequest(ctx, "place order", http.MethodPost, "/api/v3/order", params, true)
	if err != nil {
		return nil, err
	}

	var result struct {
		Symbol        string `json:"symbol"`
		OrderID       int64  `json:"orderId"`
		ClientOrderID string `json:"clientOrderId"`
		TransactTime  int64  `json:"transactTime"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("place order: decode: %w", err)
	}

	return &domain.OpenOrder{
		Symbol:        symbol,
		Side:          side,
		OrderID:       strconv.FormatInt(result.OrderID, 10),
		ClientOrderID: result.ClientOrderID,
		Time:          time.UnixMilli(result.TransactTime),
		Price:         price,
		Quantity:      quantity,
	}, nil
}

func (b *BinanceAdapter) CancelOrder(ctx context.Context, symbol, orderID string) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", orderID)

	_, err := b.sendRequest(ctx, "cancel order", http.MethodDelete, "/api/v3/order", params, true)
	var exErr *domain.ExchangeError
	if errors.As(err, &exErr) && exErr.Kind == domain.ErrOrderNotFound {
		b.logger.Debug("Cancel of unknown order", zap.String("symbol", symbol), zap.String("order_id", orderID))
	}
	return err
}

var _ domain.Exchange = (*BinanceAdapter)(nil)
