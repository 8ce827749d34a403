// Package main provides the orderlens-report binary: a one-shot batch
// evaluation of every derived view, written as JSON.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"orderlens/internal/services"
	"orderlens/internal/snapshot"
)

type reportOptions struct {
	transactionsCSV string
	itemsCSV        string
	sqliteFile      string
	month           string
	minOrders       int
	refundWindow    time.Duration
	outDir          string
}

func newRootCmd() *cobra.Command {
	opts := &reportOptions{}

	cmd := &cobra.Command{
		Use:           "orderlens-report",
		Short:         "Evaluate the purchase-analytics views over a snapshot and write them as JSON",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.transactionsCSV, "transactions", "transactions.csv", "transactions CSV path")
	cmd.Flags().StringVar(&opts.itemsCSV, "items", "items.csv", "items CSV path")
	cmd.Flags().StringVar(&opts.sqliteFile, "sqlite", "", "sqlite snapshot file (takes precedence over the CSV pair)")
	cmd.Flags().StringVar(&opts.month, "month", "2020-10", "target month for the active-store count (2006-01)")
	cmd.Flags().IntVar(&opts.minOrders, "min-orders", 5, "order threshold for the active-store count")
	cmd.Flags().DurationVar(&opts.refundWindow, "refund-window", 72*time.Hour, "inclusive refund-allowed window")
	cmd.Flags().StringVar(&opts.outDir, "out", "", "directory to write one JSON file per view (default: everything to stdout)")

	return cmd
}

func runReport(cmd *cobra.Command, opts *reportOptions) error {
	targetMonth, err := time.Parse("2006-01", opts.month)
	if err != nil {
		return fmt.Errorf("parse --month: %w", err)
	}
	if opts.minOrders <= 0 {
		return fmt.Errorf("--min-orders must be positive")
	}
	if opts.refundWindow <= 0 {
		return fmt.Errorf("--refund-window must be positive")
	}

	var src snapshot.Source
	if opts.sqliteFile != "" {
		src = snapshot.SQLiteSource{Path: opts.sqliteFile}
	} else {
		src = snapshot.CSVSource{
			TransactionsPath: opts.transactionsCSV,
			ItemsPath:        opts.itemsCSV,
		}
	}

	analytics := services.NewAnalytics(services.Params{
		TargetMonth:  targetMonth.UTC(),
		MinOrders:    opts.minOrders,
		RefundWindow: opts.refundWindow,
	})

	if err := analytics.Load(cmd.Context(), src); err != nil {
		return err
	}

	views := map[string]any{
		"monthly_purchases":     analytics.MonthlyPurchases(),
		"active_stores":         analytics.ActiveStores(),
		"refund_latency":        analytics.RefundLatencies(),
		"first_orders":          analytics.FirstOrders(),
		"top_first_item":        analytics.TopFirstPurchaseItem(),
		"refund_eligibility":    analytics.RefundEligibility(),
		"second_purchases":      analytics.SecondPurchases(),
		"second_purchase_times": analytics.SecondPurchaseTimes(),
	}

	if opts.outDir == "" {
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(views)
	}

	if err := os.MkdirAll(opts.outDir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	for name, view := range views {
		if err := writeViewFile(filepath.Join(opts.outDir, name+".json"), view); err != nil {
			return err
		}
	}

	cmd.Printf("wrote %d views to %s\n", len(views), opts.outDir)
	return nil
}

func writeViewFile(path string, view any) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(view); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
