package snapshot

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"orderlens/internal/errors"
	"orderlens/internal/models"
)

// SQLiteSource reads the snapshot from a SQLite file holding the two tables:
//
//	transactions(buyer_id, purchase_time, refund_time, store_id, item_id, gross_transaction_value)
//	items(store_id, item_id, item_category, item_name)
//
// Timestamps are TEXT in any of the accepted layouts; refund_time NULL or ''
// means not refunded. Rows are read in rowid order so the ranking tie-break
// matches insertion order.
type SQLiteSource struct {
	Path string
}

func (s SQLiteSource) Fingerprint() string {
	return s.Path
}

func (s SQLiteSource) ModTime() (time.Time, error) {
	info, err := os.Stat(s.Path)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

func (s SQLiteSource) Load(ctx context.Context) (*Snapshot, error) {
	db, err := sql.Open("sqlite3", s.Path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	transactions, err := readTransactions(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("read transactions: %w", err)
	}

	items, err := readItems(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("read items: %w", err)
	}

	return &Snapshot{Transactions: transactions, Items: items}, nil
}

func readTransactions(ctx context.Context, db *sql.DB) ([]models.Transaction, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT buyer_id, purchase_time, refund_time, store_id, item_id, gross_transaction_value
		 FROM transactions ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []models.Transaction
	n := 0

	for rows.Next() {
		n++
		var (
			buyerID, purchaseRaw, storeID, itemID, grossRaw string
			refundRaw                                       sql.NullString
		)
		if err := rows.Scan(&buyerID, &purchaseRaw, &refundRaw, &storeID, &itemID, &grossRaw); err != nil {
			return nil, err
		}

		purchaseTime, err := parseTime(purchaseRaw)
		if err != nil {
			return nil, errors.ValidationWrap(err, fmt.Sprintf("transactions row %d: purchase_time", n))
		}

		var refundTime *time.Time
		if refundRaw.Valid && refundRaw.String != "" {
			ts, err := parseTime(refundRaw.String)
			if err != nil {
				return nil, errors.ValidationWrap(err, fmt.Sprintf("transactions row %d: refund_time", n))
			}
			if ts.Before(purchaseTime) {
				return nil, errors.Validation(fmt.Sprintf("transactions row %d: refund_time precedes purchase_time", n))
			}
			refundTime = &ts
		}

		gross, err := decimal.NewFromString(grossRaw)
		if err != nil {
			return nil, errors.ValidationWrap(err, fmt.Sprintf("transactions row %d: gross_transaction_value", n))
		}

		transactions = append(transactions, models.Transaction{
			BuyerID:      buyerID,
			PurchaseTime: purchaseTime,
			RefundTime:   refundTime,
			StoreID:      storeID,
			ItemID:       itemID,
			GrossValue:   gross,
		})
	}

	return transactions, rows.Err()
}

func readItems(ctx context.Context, db *sql.DB) ([]models.Item, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT store_id, item_id, item_category, item_name FROM items ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.Item
	for rows.Next() {
		var it models.Item
		if err := rows.Scan(&it.StoreID, &it.ItemID, &it.Category, &it.Name); err != nil {
			return nil, err
		}
		items = append(items, it)
	}

	return items, rows.Err()
}
