package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/vitos/crypto_market_maker/internal/config"
	"github.com/vitos/crypto_market_maker/internal/infrastructure/exchange"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	symbol := flag.String("symbol", "", "symbol to check (defaults to the first configured)")
	flag.Parse()

	// 1. Load Config
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *symbol == "" {
		if len(cfg.Symbols) == 0 {
			fmt.Println("No symbol given and none configured")
			os.Exit(1)
		}
		*symbol = cfg.Symbols[0].Symbol
	}

	redacted := cfg.Redacted()
	fmt.Printf("Testing %s interaction...\n", cfg.Exchange.Name)
	fmt.Printf("Endpoint: %s\n", cfg.Exchange.RESTEndpoint)
	fmt.Printf("API Key: %s\n", redacted.Exchange.APIKey)

	adapter := exchange.NewBinanceAdapter(cfg.Exchange.APIKey, cfg.Exchange.APISecret, cfg.Exchange.RESTEndpoint, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// 2. Public endpoints
	stats, err := adapter.FetchPriceStats(ctx, *symbol, "1h")
	if err != nil {
		fmt.Printf("❌ Failed to get price stats: %v\n", err)
	} else {
		fmt.Printf("✅ Price stats (%s, 1h): last=%f high=%f low=%f vwap=%f\n",
			*symbol, stats.LastPrice, stats.HighPrice, stats.LowPrice, stats.WeightedAveragePrice)
	}

	depth, err := adapter.FetchDepth(ctx, *symbol, 5)
	if err != nil {
		fmt.Printf("❌ Failed to get depth: %v\n", err)
	} else {
		fmt.Printf("✅ Depth (%s): %d bids, %d asks\n", *symbol, len(depth.Bids), len(depth.Asks))
		for i := 0; i < len(depth.Bids) && i < 5; i++ {
			fmt.Printf("   bid %f x %f\n", depth.Bids[i].Price, depth.Bids[i].Quantity)
		}
		for i := 0; i < len(depth.Asks) && i < 5; i++ {
			fmt.Printf("   ask %f x %f\n", depth.Asks[i].Price, depth.Asks[i].Quantity)
		}
	}

	// 3. Private endpoints
	balances, err := adapter.FetchBalances(ctx)
	if err != nil {
		fmt.Printf("❌ Failed to get balances: %v\n", err)
	} else {
		fmt.Printf("✅ Balances: %d assets\n", len(balances))
		for asset, b := range balances {
			fmt.Printf("   %s free=%f locked=%f\n", asset, b.Free, b.Locked)
		}
	}

	orders, err := adapter.FetchOpenOrders(ctx, *symbol)
	if err != nil {
		fmt.Printf("❌ Failed to get open orders: %v\n", err)
	} else {
		fmt.Printf("✅ Open orders (%s): %d\n", *symbol, len(orders))
		for _, o := range orders {
			fmt.Printf("   %s %s %f @ %f (%s)\n", o.OrderID, o.Side, o.Quantity, o.Price, o.Time.Format(time.RFC3339))
		}
	}
}
