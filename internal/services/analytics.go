package services

import (
	"context"
	"encoding/gob"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"orderlens/internal/models"
	"orderlens/internal/observability"
	"orderlens/internal/snapshot"
)

const (
	cacheVersion = "v1"
	cacheDir     = ".cache"
)

// Params are the knobs of the parameterized views.
type Params struct {
	// TargetMonth is the month window of the active-store count (first of
	// month, UTC).
	TargetMonth time.Time
	// MinOrders is the order threshold a store must reach inside TargetMonth
	// to count as active.
	MinOrders int
	// RefundWindow is the elapsed time up to which (inclusive) a refund is
	// classified as allowed.
	RefundWindow time.Duration
}

// key identifies this parameter set inside the cache filename. ActiveStores
// and RefundEligibility are functions of the params, so views computed under
// one parameter set must never be served from a cache written under another.
func (p Params) key() string {
	return fmt.Sprintf("%s_n%d_w%s", p.TargetMonth.Format("2006-01"), p.MinOrders, p.RefundWindow)
}

// PrecomputedData holds every derived view, computed once per snapshot load.
type PrecomputedData struct {
	MonthlyPurchases    []models.MonthlyPurchases       `json:"monthly_purchases"`
	ActiveStores        models.ActiveStoreSummary       `json:"active_stores"`
	RefundLatencies     []models.StoreRefundLatency     `json:"refund_latencies"`
	FirstOrders         []models.StoreFirstOrder        `json:"first_orders"`
	TopFirstItem        *models.FirstPurchaseItem       `json:"top_first_item,omitempty"`
	Eligibility         []models.ClassifiedTransaction  `json:"refund_eligibility"`
	SecondPurchases     []models.Transaction            `json:"second_purchases"`
	SecondPurchaseTimes []models.BuyerPurchaseTime      `json:"second_purchase_times"`
	LastModified        time.Time                       `json:"last_modified"`
	RecordCount         int64                           `json:"record_count"`
	ItemCount           int64                           `json:"item_count"`
}

// Analytics evaluates the derived views over one loaded snapshot. The
// snapshot is immutable once loaded; readers only ever see a fully computed
// result set.
type Analytics struct {
	mu          sync.RWMutex
	precomputed *PrecomputedData
	params      Params
	fingerprint string
	logger      *slog.Logger
}

func NewAnalytics(params Params) *Analytics {
	return &Analytics{
		precomputed: &PrecomputedData{},
		params:      params,
		logger:      slog.Default(),
	}
}

// SetData computes every view directly from in-memory relations.
func (a *Analytics) SetData(transactions []models.Transaction, items []models.Item) {
	precomputed := a.compute(&snapshot.Snapshot{Transactions: transactions, Items: items})

	a.mu.Lock()
	defer a.mu.Unlock()
	a.precomputed = precomputed
}

// Load reads the snapshot from src and recomputes every view, reusing the gob
// cache when it is newer than the source. The cache is keyed by source
// fingerprint and parameter set.
func (a *Analytics) Load(ctx context.Context, src snapshot.Source) error {
	a.fingerprint = src.Fingerprint()

	ctx, span := observability.StartSpan(ctx, "snapshot.load")
	defer span.Finish()
	span.SetTag("source", a.fingerprint)

	if cached, err := a.loadFromCache(); err == nil {
		if modTime, err := src.ModTime(); err == nil && modTime.Before(cached.LastModified) {
			a.mu.Lock()
			a.precomputed = cached
			a.mu.Unlock()
			span.SetTag("cache", "hit")
			span.SetCount("transactions", cached.RecordCount)
			a.logger.Info("loaded from cache", "records", cached.RecordCount)
			return nil
		}
	}

	start := time.Now()
	a.logger.Info("loading snapshot", "source", a.fingerprint)

	snap, err := src.Load(ctx)
	if err != nil {
		span.SetError(err)
		return fmt.Errorf("load snapshot: %w", err)
	}

	_, evalSpan := observability.StartSpan(ctx, "snapshot.evaluate")
	precomputed := a.compute(snap)
	evalSpan.SetCount("transactions", precomputed.RecordCount)
	evalSpan.Finish()

	span.SetCount("transactions", precomputed.RecordCount)
	span.SetCount("items", precomputed.ItemCount)

	a.mu.Lock()
	a.precomputed = precomputed
	a.mu.Unlock()

	if err := a.saveToCache(); err != nil {
		a.logger.Warn("failed to save cache", "error", err)
	}

	a.logger.Info("snapshot evaluated",
		"transactions", precomputed.RecordCount,
		"items", precomputed.ItemCount,
		"duration", time.Since(start))

	return nil
}

// compute derives every view. Each view is an independent pure function of
// the snapshot; none mutates it.
func (a *Analytics) compute(snap *snapshot.Snapshot) *PrecomputedData {
	return &PrecomputedData{
		MonthlyPurchases:    monthlyPurchases(snap.Transactions),
		ActiveStores:        activeStores(snap.Transactions, a.params.TargetMonth, a.params.MinOrders),
		RefundLatencies:     refundLatencies(snap.Transactions),
		FirstOrders:         firstOrders(snap.Transactions),
		TopFirstItem:        topFirstPurchaseItem(snap.Transactions, snap.Items),
		Eligibility:         classifyRefunds(snap.Transactions, a.params.RefundWindow),
		SecondPurchases:     secondPurchases(snap.Transactions),
		SecondPurchaseTimes: secondPurchaseTimes(snap.Transactions),
		LastModified:        time.Now(),
		RecordCount:         int64(len(snap.Transactions)),
		ItemCount:           int64(len(snap.Items)),
	}
}

// monthlyPurchases buckets non-refunded transactions by calendar month (UTC)
// of purchase_time, ascending.
func monthlyPurchases(transactions []models.Transaction) []models.MonthlyPurchases {
	counts := make(map[time.Time]int64)
	for _, tx := range transactions {
		if tx.Refunded() {
			continue
		}
		counts[monthStart(tx.PurchaseTime)]++
	}

	result := make([]models.MonthlyPurchases, 0, len(counts))
	for month, count := range counts {
		result = append(result, models.MonthlyPurchases{MonthStart: month, Count: count})
	}
	slices.SortFunc(result, func(a, b models.MonthlyPurchases) int {
		return a.MonthStart.Compare(b.MonthStart)
	})
	return result
}

// activeStores counts stores with at least minOrders orders inside the month
// window. Refunded orders count too; only the window and the order count
// matter here.
func activeStores(transactions []models.Transaction, month time.Time, minOrders int) models.ActiveStoreSummary {
	windowEnd := month.AddDate(0, 1, 0)

	orders := make(map[string]int)
	for _, tx := range transactions {
		if tx.PurchaseTime.Before(month) || !tx.PurchaseTime.Before(windowEnd) {
			continue
		}
		orders[tx.StoreID]++
	}

	count := 0
	for _, n := range orders {
		if n >= minOrders {
			count++
		}
	}

	return models.ActiveStoreSummary{MonthStart: month, MinOrders: minOrders, StoreCount: count}
}

// refundLatencies computes the minimum refund interval per store, in
// fractional minutes. Stores without refunds are absent.
func refundLatencies(transactions []models.Transaction) []models.StoreRefundLatency {
	minimums := make(map[string]float64)
	for _, tx := range transactions {
		if !tx.Refunded() {
			continue
		}
		minutes := tx.RefundTime.Sub(tx.PurchaseTime).Seconds() / 60
		if current, ok := minimums[tx.StoreID]; !ok || minutes < current {
			minimums[tx.StoreID] = minutes
		}
	}

	result := make([]models.StoreRefundLatency, 0, len(minimums))
	for storeID, minutes := range minimums {
		result = append(result, models.StoreRefundLatency{StoreID: storeID, MinMinutes: minutes})
	}
	slices.SortFunc(result, func(a, b models.StoreRefundLatency) int {
		return strings.Compare(a.StoreID, b.StoreID)
	})
	return result
}

// byPurchaseTime returns a copy sorted ascending by purchase_time. The sort
// is stable, so equal timestamps keep snapshot row order; that ordinal is the
// documented tie-break for every ranking view.
func byPurchaseTime(transactions []models.Transaction) []models.Transaction {
	sorted := slices.Clone(transactions)
	slices.SortStableFunc(sorted, func(a, b models.Transaction) int {
		return a.PurchaseTime.Compare(b.PurchaseTime)
	})
	return sorted
}

// firstOrders returns each store's earliest transaction, one row per store,
// ordered by store_id.
func firstOrders(transactions []models.Transaction) []models.StoreFirstOrder {
	seen := make(map[string]bool)
	var result []models.StoreFirstOrder

	for _, tx := range byPurchaseTime(transactions) {
		if seen[tx.StoreID] {
			continue
		}
		seen[tx.StoreID] = true
		result = append(result, models.StoreFirstOrder{
			StoreID:    tx.StoreID,
			OrderTime:  tx.PurchaseTime,
			GrossValue: tx.GrossValue,
		})
	}

	slices.SortFunc(result, func(a, b models.StoreFirstOrder) int {
		return strings.Compare(a.StoreID, b.StoreID)
	})
	return result
}

// topFirstPurchaseItem finds the most frequent item name among every buyer's
// first purchase. The join is by item_id alone, matching the source data's
// usage; a non-globally-unique item_id fans the count out across stores.
// Exactly one name is returned; count ties break to the lexicographically
// smallest name. Nil when nothing joins.
func topFirstPurchaseItem(transactions []models.Transaction, items []models.Item) *models.FirstPurchaseItem {
	byItemID := make(map[string][]models.Item)
	for _, it := range items {
		byItemID[it.ItemID] = append(byItemID[it.ItemID], it)
	}

	seen := make(map[string]bool)
	counts := make(map[string]int)

	for _, tx := range byPurchaseTime(transactions) {
		if seen[tx.BuyerID] {
			continue
		}
		seen[tx.BuyerID] = true
		for _, it := range byItemID[tx.ItemID] {
			counts[it.Name]++
		}
	}

	var top *models.FirstPurchaseItem
	for name, count := range counts {
		if top == nil || count > top.Buyers || (count == top.Buyers && name < top.ItemName) {
			top = &models.FirstPurchaseItem{ItemName: name, Buyers: count}
		}
	}
	return top
}

// classifyRefunds labels every transaction, ordered by purchase_time. The
// window boundary is non-strict: an interval of exactly the window is still
// allowed.
func classifyRefunds(transactions []models.Transaction, window time.Duration) []models.ClassifiedTransaction {
	result := make([]models.ClassifiedTransaction, 0, len(transactions))

	for _, tx := range byPurchaseTime(transactions) {
		label := models.NoRefund
		if tx.Refunded() {
			if tx.RefundTime.Sub(tx.PurchaseTime) <= window {
				label = models.RefundAllowed
			} else {
				label = models.RefundNotAllowed
			}
		}
		result = append(result, models.ClassifiedTransaction{Transaction: tx, Eligibility: label})
	}
	return result
}

// secondPurchases returns each buyer's rank-2 non-refunded transaction,
// ordered by buyer_id. Buyers with fewer than two non-refunded purchases are
// absent.
func secondPurchases(transactions []models.Transaction) []models.Transaction {
	kept := make([]models.Transaction, 0, len(transactions))
	for _, tx := range transactions {
		if !tx.Refunded() {
			kept = append(kept, tx)
		}
	}

	result := rankTwo(kept)
	slices.SortStableFunc(result, func(a, b models.Transaction) int {
		return strings.Compare(a.BuyerID, b.BuyerID)
	})
	return result
}

// secondPurchaseTimes is the companion projection: rank-2 purchase times per
// buyer over all transactions, refunds included.
func secondPurchaseTimes(transactions []models.Transaction) []models.BuyerPurchaseTime {
	ranked := rankTwo(transactions)

	result := make([]models.BuyerPurchaseTime, 0, len(ranked))
	for _, tx := range ranked {
		result = append(result, models.BuyerPurchaseTime{BuyerID: tx.BuyerID, PurchaseTime: tx.PurchaseTime})
	}
	slices.SortStableFunc(result, func(a, b models.BuyerPurchaseTime) int {
		return strings.Compare(a.BuyerID, b.BuyerID)
	})
	return result
}

// rankTwo selects the ordinal-2 transaction per buyer by ascending
// purchase_time.
func rankTwo(transactions []models.Transaction) []models.Transaction {
	ordinals := make(map[string]int)
	var result []models.Transaction

	for _, tx := range byPurchaseTime(transactions) {
		ordinals[tx.BuyerID]++
		if ordinals[tx.BuyerID] == 2 {
			result = append(result, tx)
		}
	}
	return result
}

func monthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// Cache management
func (a *Analytics) cacheFilename() string {
	source := strings.ReplaceAll(a.fingerprint, "/", "_")
	return fmt.Sprintf("%s/%s_%s_%s.gob", cacheDir, source, a.params.key(), cacheVersion)
}

func (a *Analytics) saveToCache() error {
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return err
	}

	file, err := os.Create(a.cacheFilename())
	if err != nil {
		return err
	}
	defer file.Close()

	a.mu.RLock()
	defer a.mu.RUnlock()

	encoder := gob.NewEncoder(file)
	return encoder.Encode(a.precomputed)
}

func (a *Analytics) loadFromCache() (*PrecomputedData, error) {
	file, err := os.Open(a.cacheFilename())
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var data PrecomputedData
	decoder := gob.NewDecoder(file)
	if err := decoder.Decode(&data); err != nil {
		return nil, err
	}

	return &data, nil
}

// Fast query methods - O(1) lookups from precomputed data
func (a *Analytics) MonthlyPurchases() []models.MonthlyPurchases {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.precomputed.MonthlyPurchases
}

func (a *Analytics) ActiveStores() models.ActiveStoreSummary {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.precomputed.ActiveStores
}

func (a *Analytics) RefundLatencies() []models.StoreRefundLatency {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.precomputed.RefundLatencies
}

func (a *Analytics) FirstOrders() []models.StoreFirstOrder {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.precomputed.FirstOrders
}

func (a *Analytics) TopFirstPurchaseItem() *models.FirstPurchaseItem {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.precomputed.TopFirstItem
}

func (a *Analytics) RefundEligibility() []models.ClassifiedTransaction {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.precomputed.Eligibility
}

func (a *Analytics) SecondPurchases() []models.Transaction {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.precomputed.SecondPurchases
}

func (a *Analytics) SecondPurchaseTimes() []models.BuyerPurchaseTime {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.precomputed.SecondPurchaseTimes
}

// Utility method for monitoring
func (a *Analytics) Stats() map[string]any {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return map[string]any{
		"record_count":     a.precomputed.RecordCount,
		"item_count":       a.precomputed.ItemCount,
		"last_processed":   a.precomputed.LastModified,
		"months":           len(a.precomputed.MonthlyPurchases),
		"stores_refunding": len(a.precomputed.RefundLatencies),
		"stores":           len(a.precomputed.FirstOrders),
		"second_purchases": len(a.precomputed.SecondPurchases),
	}
}
