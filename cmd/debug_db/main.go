package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/vitos/crypto_market_maker/internal/infrastructure/storage"
)

func main() {
	dbPath := flag.String("db", "quoter.db", "run journal path")
	symbol := flag.String("symbol", "", "symbol to list")
	limit := flag.Int("limit", 10, "number of runs")
	flag.Parse()

	if *symbol == "" {
		fmt.Println("Usage: debug_db -symbol ETHUSDT [-db quoter.db] [-limit 10]")
		os.Exit(1)
	}

	store, err := storage.NewSQLiteStore(*dbPath)
	if err != nil {
		fmt.Printf("Failed to init sqlite: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx := context.Background()
	runs, err := store.ListRuns(ctx, *symbol, *limit)
	if err != nil {
		fmt.Printf("Failed to list runs: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Found %d runs:\n", len(runs))
	for _, r := range runs {
		fmt.Printf("- Run %d at %s (%s): qty=%f avg=%f pnl=%f dev=%.4f\n",
			r.ID, r.StartedAt.Format(time.RFC3339), r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond),
			r.Position.Quantity, r.Position.AveragePrice, r.Position.RealizedPnL, r.Params.Deviation)
		for _, e := range r.Errors {
			fmt.Printf("  ❌ %s\n", e)
		}
		for _, a := range r.Results {
			status := "✅"
			if a.Error != "" {
				status = "❌"
			} else if a.DryRun {
				status = "📝"
			}
			fmt.Printf("  %s %s %s lvl=%d %f x %f (%s) %s %s\n",
				status, a.Type, a.Side, a.Level, a.Price, a.Quantity, a.Reason, a.OrderID, a.Error)
		}
	}
}
