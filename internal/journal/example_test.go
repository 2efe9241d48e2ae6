package journal_test

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mschirtzinger/tradejournal/internal/docstore/sqlite"
	"github.com/mschirtzinger/tradejournal/internal/journal"
	"github.com/mschirtzinger/tradejournal/internal/journal/paths"
	"github.com/mschirtzinger/tradejournal/internal/journal/schema"
)

func Example() {
	dir, err := os.MkdirTemp("", "journal-example")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	store, err := sqlite.Open(filepath.Join(dir, "journal.db"))
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	svc := journal.New(store)
	ctx := context.Background()

	trade, err := svc.SaveTrade(ctx, "u1", schema.Trade{
		Symbol: "EURUSD",
		PnL:    decimal.NewNullDecimal(decimal.RequireFromString("42.5")),
	})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(strings.HasPrefix(trade.ID, "trade_"))

	if err := svc.UpdateTrade(ctx, "u1", trade.ID, map[string]any{"pnl": 50}); err != nil {
		log.Fatal(err)
	}
	doc, err := store.Get(ctx, paths.Doc("u1", schema.KindTrade, trade.ID))
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(doc.Data["symbol"], doc.Data["pnl"])

	// Output:
	// true
	// EURUSD 50
}
