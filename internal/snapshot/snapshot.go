package snapshot

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"orderlens/internal/errors"
	"orderlens/internal/models"
)

const (
	batchSize  = 10000
	maxWorkers = 10
)

// Snapshot is the immutable two-relation input every view is computed from.
// Transaction order is preserved from the source and is the tie-break for
// equal purchase timestamps in the ranking views.
type Snapshot struct {
	Transactions []models.Transaction
	Items        []models.Item
}

// Source loads a complete snapshot. Loads are all-or-nothing: a malformed row
// fails the whole load rather than being skipped.
type Source interface {
	Load(ctx context.Context) (*Snapshot, error)
	// Fingerprint identifies the underlying source for cache keying.
	Fingerprint() string
	// ModTime is when the underlying source last changed, for cache
	// staleness checks.
	ModTime() (time.Time, error)
}

// timeLayouts accepted for purchase_time and refund_time, tried in order.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// CSVSource reads the snapshot from two headered CSV files.
//
// transactions: buyer_id,purchase_time,refund_time,store_id,item_id,gross_transaction_value
// items:        store_id,item_id,item_category,item_name
type CSVSource struct {
	TransactionsPath string
	ItemsPath        string
}

func (s CSVSource) Fingerprint() string {
	return s.TransactionsPath + "|" + s.ItemsPath
}

func (s CSVSource) ModTime() (time.Time, error) {
	var latest time.Time
	for _, path := range []string{s.TransactionsPath, s.ItemsPath} {
		info, err := os.Stat(path)
		if err != nil {
			return time.Time{}, err
		}
		if info.ModTime().After(latest) {
			latest = info.ModTime()
		}
	}
	return latest, nil
}

func (s CSVSource) Load(ctx context.Context) (*Snapshot, error) {
	transactions, err := loadTransactionsCSV(ctx, s.TransactionsPath)
	if err != nil {
		return nil, fmt.Errorf("load transactions: %w", err)
	}

	items, err := loadItemsCSV(ctx, s.ItemsPath)
	if err != nil {
		return nil, fmt.Errorf("load items: %w", err)
	}

	return &Snapshot{Transactions: transactions, Items: items}, nil
}

func loadTransactionsCSV(ctx context.Context, filename string) ([]models.Transaction, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 1024*1024), 10*1024*1024) // 10MB buffer

	// Skip header
	if !scanner.Scan() {
		return nil, errors.Validation("transactions file is empty")
	}

	var (
		transactions []models.Transaction
		batch        = make([]string, 0, batchSize)
		line         = 1 // header consumed
	)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		batch = append(batch, scanner.Text())

		if len(batch) >= batchSize {
			parsed, err := parseTransactionBatch(ctx, batch, line)
			if err != nil {
				return nil, err
			}
			transactions = append(transactions, parsed...)
			line += len(batch)
			batch = batch[:0]
		}
	}

	if len(batch) > 0 {
		parsed, err := parseTransactionBatch(ctx, batch, line)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, parsed...)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan error: %w", err)
	}

	return transactions, nil
}

// parseTransactionBatch parses one batch concurrently. Results are written by
// index so source order survives the parallel parse.
func parseTransactionBatch(ctx context.Context, batch []string, firstLine int) ([]models.Transaction, error) {
	var wg errgroup.Group
	wg.SetLimit(maxWorkers)

	parsed := make([]models.Transaction, len(batch))

	for i, row := range batch {
		wg.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			tx, err := parseTransaction(strings.Split(row, ","))
			if err != nil {
				return errors.ValidationWrap(err, fmt.Sprintf("transactions line %d", firstLine+i+1))
			}
			parsed[i] = tx
			return nil
		})
	}

	if err := wg.Wait(); err != nil {
		return nil, err
	}
	return parsed, nil
}

func parseTransaction(record []string) (models.Transaction, error) {
	if len(record) < 6 {
		return models.Transaction{}, fmt.Errorf("expected 6 columns, got %d", len(record))
	}

	purchaseTime, err := parseTime(record[1])
	if err != nil {
		return models.Transaction{}, fmt.Errorf("purchase_time: %w", err)
	}

	var refundTime *time.Time
	if raw := strings.TrimSpace(record[2]); raw != "" {
		ts, err := parseTime(raw)
		if err != nil {
			return models.Transaction{}, fmt.Errorf("refund_time: %w", err)
		}
		if ts.Before(purchaseTime) {
			return models.Transaction{}, fmt.Errorf("refund_time %s precedes purchase_time %s",
				ts.Format(time.RFC3339), purchaseTime.Format(time.RFC3339))
		}
		refundTime = &ts
	}

	gross, err := decimal.NewFromString(strings.TrimSpace(record[5]))
	if err != nil {
		return models.Transaction{}, fmt.Errorf("gross_transaction_value: %w", err)
	}

	return models.Transaction{
		BuyerID:      strings.TrimSpace(record[0]),
		PurchaseTime: purchaseTime,
		RefundTime:   refundTime,
		StoreID:      strings.TrimSpace(record[3]),
		ItemID:       strings.TrimSpace(record[4]),
		GrossValue:   gross,
	}, nil
}

func loadItemsCSV(ctx context.Context, filename string) ([]models.Item, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 1024*1024), 10*1024*1024)

	if !scanner.Scan() {
		return nil, errors.Validation("items file is empty")
	}

	var items []models.Item
	line := 1

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		line++
		record := strings.Split(scanner.Text(), ",")
		if len(record) < 4 {
			return nil, errors.Validation(fmt.Sprintf("items line %d: expected 4 columns, got %d", line, len(record)))
		}

		items = append(items, models.Item{
			StoreID:  strings.TrimSpace(record[0]),
			ItemID:   strings.TrimSpace(record[1]),
			Category: strings.TrimSpace(record[2]),
			Name:     strings.TrimSpace(record[3]),
		})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan error: %w", err)
	}

	return items, nil
}
