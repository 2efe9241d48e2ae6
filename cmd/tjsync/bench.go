package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/tradejournal/internal/loadtest"
	"github.com/mschirtzinger/tradejournal/internal/ui"
)

var benchOpts loadtest.Options

var benchCmd = &cobra.Command{
	Use:     "bench",
	GroupID: "advanced",
	Short:   "Measure write latency against the configured store",
	Long: `Simulate concurrent owners writing trades to the configured store and
report latency percentiles for saves, updates and backlog uploads.

Owners are named <prefix>-000, <prefix>-001, ... and their records are left
in the store. Point store.dsn at a scratch database.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		svc, store, err := openService(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		fmt.Printf("%s Running %d owners x %d writes (backlog %d)...\n",
			ui.RenderAccent("⏱"), benchOpts.Owners, benchOpts.Writes, benchOpts.Backlog)
		report, err := loadtest.Run(ctx, svc, benchOpts)
		if err != nil {
			return err
		}

		fmt.Println()
		for _, s := range []struct {
			title string
			stats *loadtest.LatencyStats
		}{
			{"Save", report.Save},
			{"Update", report.Update},
			{"Backlog upload", report.Upload},
		} {
			if s.stats.Count == 0 {
				continue
			}
			fmt.Print(ui.Section(s.title, latencyRows(s.stats)))
			fmt.Println()
		}
		if report.Errors > 0 {
			fmt.Printf("%s %d of %d owners failed: %v\n", ui.RenderFail("✗"), report.Errors, report.Owners, report.FirstErr)
		}
		fmt.Printf("Total: %v\n", report.Elapsed)
		return nil
	},
}

func init() {
	benchCmd.Flags().IntVar(&benchOpts.Owners, "owners", 10, "concurrent simulated owners")
	benchCmd.Flags().IntVar(&benchOpts.Writes, "writes", 20, "save+update pairs per owner")
	benchCmd.Flags().IntVar(&benchOpts.Backlog, "backlog", 0, "local trades each owner uploads first")
	benchCmd.Flags().StringVar(&benchOpts.OwnerPrefix, "prefix", "loadtest", "owner id prefix")
	benchCmd.Flags().Int64Var(&benchOpts.Seed, "seed", 42, "random seed")
}

func latencyRows(s *loadtest.LatencyStats) [][2]string {
	return [][2]string{
		{"count", fmt.Sprintf("%d", s.Count)},
		{"min", s.Min.String()},
		{"p50", s.P50.String()},
		{"mean", s.Mean.String()},
		{"p95", s.P95.String()},
		{"p99", s.P99.String()},
		{"max", s.Max.String()},
	}
}
