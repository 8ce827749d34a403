package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is one row of the transactions snapshot. RefundTime is nil when
// the order was never refunded.
type Transaction struct {
	BuyerID      string          `json:"buyer_id"`
	PurchaseTime time.Time       `json:"purchase_time"`
	RefundTime   *time.Time      `json:"refund_time,omitempty"`
	StoreID      string          `json:"store_id"`
	ItemID       string          `json:"item_id"`
	GrossValue   decimal.Decimal `json:"gross_transaction_value"`
}

// Refunded reports whether the transaction has a refund recorded.
func (t Transaction) Refunded() bool {
	return t.RefundTime != nil
}

// Item is one row of the items snapshot. The natural key is (store_id,
// item_id); transactions join on item_id alone.
type Item struct {
	StoreID  string `json:"store_id"`
	ItemID   string `json:"item_id"`
	Category string `json:"item_category"`
	Name     string `json:"item_name"`
}

type MonthlyPurchases struct {
	MonthStart time.Time `json:"month_start"`
	Count      int64     `json:"purchase_count"`
}

// ActiveStoreSummary is the store-count view for one month window: how many
// stores took at least MinOrders orders in [MonthStart, MonthStart+1month).
type ActiveStoreSummary struct {
	MonthStart time.Time `json:"month_start"`
	MinOrders  int       `json:"min_orders"`
	StoreCount int       `json:"store_count"`
}

type StoreRefundLatency struct {
	StoreID    string  `json:"store_id"`
	MinMinutes float64 `json:"min_refund_interval_minutes"`
}

type StoreFirstOrder struct {
	StoreID    string          `json:"store_id"`
	OrderTime  time.Time       `json:"first_order_time"`
	GrossValue decimal.Decimal `json:"first_order_gross_value"`
}

// FirstPurchaseItem is the most frequent item name among every buyer's first
// purchase, with the number of buyers whose first purchase matched it.
type FirstPurchaseItem struct {
	ItemName string `json:"item_name"`
	Buyers   int    `json:"buyer_count"`
}

// RefundEligibility is the three-way refund classification of a transaction.
type RefundEligibility string

const (
	RefundAllowed    RefundEligibility = "Refund_Allowed"
	RefundNotAllowed RefundEligibility = "Refund_Not_Allowed"
	NoRefund         RefundEligibility = "No_Refund"
)

// ClassifiedTransaction is a transaction row plus its refund-eligibility label.
type ClassifiedTransaction struct {
	Transaction
	Eligibility RefundEligibility `json:"refund_eligibility"`
}

type BuyerPurchaseTime struct {
	BuyerID      string    `json:"buyer_id"`
	PurchaseTime time.Time `json:"purchase_time"`
}
