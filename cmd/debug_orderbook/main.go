package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/vitos/crypto_market_maker/internal/config"
	"github.com/vitos/crypto_market_maker/internal/domain"
	"github.com/vitos/crypto_market_maker/internal/infrastructure/exchange"
	"github.com/vitos/crypto_market_maker/internal/infrastructure/lock"
	"github.com/vitos/crypto_market_maker/internal/usecase"
	"go.uber.org/zap"
)

// Prints the visible ladder for a configured symbol and the actions one invocation
// would take, without sending anything.
func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	symbol := flag.String("symbol", "", "configured symbol")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}
	cfg.DryRun = true
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	var sc *domain.SymbolConfig
	for i := range cfg.Symbols {
		if cfg.Symbols[i].Symbol == *symbol || *symbol == "" {
			sc = &cfg.Symbols[i]
			break
		}
	}
	if sc == nil {
		fmt.Printf("Symbol %s is not configured\n", *symbol)
		os.Exit(1)
	}

	adapter := exchange.NewBinanceAdapter(cfg.Exchange.APIKey, cfg.Exchange.APISecret, cfg.Exchange.RESTEndpoint, nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	fmt.Printf("Fetching order book for %s...\n", sc.Symbol)
	ob, err := adapter.FetchDepth(ctx, sc.Symbol, sc.DepthLevels)
	if err != nil {
		log.Fatalf("Error fetching order book: %v", err)
	}
	fmt.Printf("Order Book: %d Bids, %d Asks\n", len(ob.Bids), len(ob.Asks))
	if len(ob.Bids) > 0 {
		fmt.Printf("Best Bid: %.8f (Size: %.8f)\n", ob.Bids[0].Price, ob.Bids[0].Quantity)
	}
	if len(ob.Asks) > 0 {
		fmt.Printf("Best Ask: %.8f (Size: %.8f)\n", ob.Asks[0].Price, ob.Asks[0].Quantity)
	}

	driver := usecase.NewStrategyDriver(adapter, nil, lock.NewLocalLocker(), usecase.NewQuotingEngine(nil, zap.NewNop()),
		usecase.DriverConfig{DryRun: true}, zap.NewNop())
	report, err := driver.Run(ctx, *sc)
	if err != nil {
		log.Fatalf("Dry run failed: %v", err)
	}

	p := report.Params
	fmt.Printf("\nPosition: %.8f @ %.8f (realized %.8f, open age %s)\n",
		report.Position.Quantity, report.Position.AveragePrice, report.Position.RealizedPnL, report.Position.OpenAge.Round(time.Minute))
	fmt.Printf("Mark %.8f, target %.8f, deviation %.4f, order qty %.8f\n", p.MarkPrice, p.TargetQuantity, p.Deviation, p.OrderQuantity)
	fmt.Printf("Tapered refs: buy %.8f, sell %.8f\n", p.TaperedBuyReference, p.TaperedSellReference)

	fmt.Printf("\nPlanned actions: %d\n", len(report.Results))
	for _, r := range report.Results {
		fmt.Printf("  %-6s %-4s lvl=%-3d %.8f x %.8f %s %s\n", r.Type, r.Side, r.Level, r.Price, r.Quantity, r.Reason, r.Action.OrderID)
	}
}
