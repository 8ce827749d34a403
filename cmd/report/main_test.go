package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

const testTransactionsCSV = `buyer_id,purchase_time,refund_time,store_id,item_id,gross_transaction_value
b1,2020-10-01 08:00:00,,s1,i1,19.99
b1,2020-10-02 09:00:00,2020-10-03 09:00:00,s1,i2,5.50
b1,2020-10-04 09:00:00,,s2,i1,42.00
b2,2020-11-01 10:00:00,,s1,i1,9.99
`

const testItemsCSV = `store_id,item_id,item_category,item_name
s1,i1,audio,headphones
s1,i2,audio,speaker
`

func writeSnapshotCSVs(t *testing.T) (string, string) {
	t.Helper()

	dir := t.TempDir()
	transactions := filepath.Join(dir, "transactions.csv")
	items := filepath.Join(dir, "items.csv")

	if err := os.WriteFile(transactions, []byte(testTransactionsCSV), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(items, []byte(testItemsCSV), 0644); err != nil {
		t.Fatal(err)
	}
	return transactions, items
}

func TestReport_Stdout(t *testing.T) {
	t.Chdir(t.TempDir())
	transactions, items := writeSnapshotCSVs(t)

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{
		"--transactions", transactions,
		"--items", items,
		"--month", "2020-10",
		"--min-orders", "2",
	})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	var report map[string]any
	if err := json.Unmarshal(out.Bytes(), &report); err != nil {
		t.Fatalf("report is not valid JSON: %v", err)
	}

	for _, view := range []string{
		"monthly_purchases", "active_stores", "refund_latency", "first_orders",
		"top_first_item", "refund_eligibility", "second_purchases", "second_purchase_times",
	} {
		if _, ok := report[view]; !ok {
			t.Errorf("report is missing view %q", view)
		}
	}

	active, ok := report["active_stores"].(map[string]any)
	if !ok {
		t.Fatal("active_stores should be an object")
	}
	// s1 has two October orders (one refunded, still counted); s2 has one
	if count, ok := active["store_count"].(float64); !ok || count != 1 {
		t.Errorf("store_count = %v, want 1", active["store_count"])
	}
}

func TestReport_OutDir(t *testing.T) {
	t.Chdir(t.TempDir())
	transactions, items := writeSnapshotCSVs(t)
	outDir := filepath.Join(t.TempDir(), "report")

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{
		"--transactions", transactions,
		"--items", items,
		"--out", outDir,
	})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	entries, err := os.ReadDir(outDir)
	if err != nil {
		t.Fatalf("read output directory: %v", err)
	}
	if len(entries) != 8 {
		t.Errorf("expected 8 view files, got %d", len(entries))
	}

	raw, err := os.ReadFile(filepath.Join(outDir, "monthly_purchases.json"))
	if err != nil {
		t.Fatal(err)
	}

	var monthly []map[string]any
	if err := json.Unmarshal(raw, &monthly); err != nil {
		t.Fatalf("monthly_purchases.json is not valid JSON: %v", err)
	}
	// October (2 non-refunded) and November (1)
	if len(monthly) != 2 {
		t.Errorf("expected 2 month buckets, got %d", len(monthly))
	}
}

func TestReport_InvalidFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"bad month", []string{"--month", "October"}},
		{"zero min orders", []string{"--min-orders", "0"}},
		{"negative window", []string{"--refund-window", "-1h"}},
		{"missing snapshot", []string{"--transactions", "nope.csv", "--items", "nope.csv"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())

			cmd := newRootCmd()
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetErr(&bytes.Buffer{})
			cmd.SetArgs(tt.args)

			if err := cmd.Execute(); err == nil {
				t.Error("Execute() should fail")
			}
		})
	}
}
