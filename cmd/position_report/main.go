package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/vitos/crypto_market_maker/internal/config"
	"github.com/vitos/crypto_market_maker/internal/domain"
	"github.com/vitos/crypto_market_maker/internal/infrastructure/exchange"
	"github.com/vitos/crypto_market_maker/internal/usecase"
)

// Prints the replayed position next to the closed-form summary for one symbol.
// Trades come from the exchange or, with -trades, from a JSON file of domain.Trade.
func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	symbol := flag.String("symbol", "", "symbol to report")
	lookback := flag.Duration("lookback", 7*24*time.Hour, "trade history window")
	tradesFile := flag.String("trades", "", "read trades from a JSON file instead of the exchange")
	flag.Parse()

	if *symbol == "" && *tradesFile == "" {
		fmt.Println("Usage: position_report -symbol ETHUSDT [-lookback 168h] | -trades trades.json")
		os.Exit(1)
	}

	var trades []domain.Trade
	var err error
	if *tradesFile != "" {
		trades, err = loadTrades(*tradesFile)
	} else {
		trades, err = fetchTrades(*configPath, *symbol, *lookback)
	}
	if err != nil {
		fmt.Printf("Error loading trades: %v\n", err)
		os.Exit(1)
	}

	now := time.Now()
	replay, err := usecase.ComputePosition(trades, now)
	if err != nil {
		fmt.Printf("Replay failed: %v\n", err)
		os.Exit(1)
	}
	summary, err := usecase.SummarizePosition(trades)
	if err != nil {
		fmt.Printf("Summary failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Trades: %d\n\n", replay.TradeCount)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FIELD\tREPLAY\tCLOSED FORM")
	fmt.Fprintf(w, "quantity\t%.8f\t%.8f\n", replay.Quantity, summary.Quantity)
	fmt.Fprintf(w, "average price\t%.8f\t%.8f\n", replay.AveragePrice, summary.AveragePrice)
	fmt.Fprintf(w, "cost\t%.8f\t%.8f\n", replay.Cost, summary.Cost)
	fmt.Fprintf(w, "realized pnl\t%.8f\t%.8f\n", replay.RealizedPnL, summary.RealizedPnL)
	fmt.Fprintf(w, "matched qty\t%.8f\t%.8f\n", replay.MatchedQuantity, summary.MatchedQuantity)
	fmt.Fprintf(w, "bought\t%.8f @ %.8f\t%.8f @ %.8f\n", replay.Bought.Quantity, replay.Bought.AveragePrice, summary.Bought.Quantity, summary.Bought.AveragePrice)
	fmt.Fprintf(w, "sold\t%.8f @ %.8f\t%.8f @ %.8f\n", replay.Sold.Quantity, replay.Sold.AveragePrice, summary.Sold.Quantity, summary.Sold.AveragePrice)
	fmt.Fprintf(w, "open age\t%s\t-\n", replay.OpenAge.Round(time.Minute))
	w.Flush()

	if usecase.PositionsAgree(replay, summary, 1e-6) {
		fmt.Println("\n✅ Replay and closed form agree")
	} else {
		fmt.Println("\n⚠️ Replay and closed form disagree")
	}
}

func loadTrades(path string) ([]domain.Trade, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var trades []domain.Trade
	if err := json.NewDecoder(f).Decode(&trades); err != nil {
		return nil, err
	}
	return trades, nil
}

func fetchTrades(configPath, symbol string, lookback time.Duration) ([]domain.Trade, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	limit := 1000
	for _, sc := range cfg.Symbols {
		if sc.Symbol == symbol && sc.TradeLimit > 0 {
			limit = sc.TradeLimit
		}
	}

	adapter := exchange.NewBinanceAdapter(cfg.Exchange.APIKey, cfg.Exchange.APISecret, cfg.Exchange.RESTEndpoint, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	return adapter.FetchTrades(ctx, symbol, time.Now().Add(-lookback), limit)
}
