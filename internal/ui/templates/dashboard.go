package templates

import (
	"context"
	"io"

	"github.com/a-h/templ"
)

const dashboardHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Orderlens Purchase Analytics</title>
<script type="module" src="https://cdn.jsdelivr.net/gh/starfederation/datastar@main/bundles/datastar.js"></script>
<style>
body { font-family: system-ui, sans-serif; margin: 0; background: #f5f6fa; color: #1f2430; }
header { background: #1f2430; color: #fff; padding: 1.5rem 2rem; }
header p { margin: 0.25rem 0 0; color: #a9b1c6; }
main { padding: 2rem; display: grid; gap: 1.5rem; grid-template-columns: repeat(auto-fit, minmax(360px, 1fr)); }
section { background: #fff; border-radius: 8px; padding: 1.25rem; box-shadow: 0 1px 3px rgba(0,0,0,0.08); }
section h2 { margin-top: 0; font-size: 1.05rem; }
.modern-table { width: 100%; border-collapse: collapse; }
.modern-table th, .modern-table td { text-align: left; padding: 0.4rem 0.6rem; border-bottom: 1px solid #e4e7ef; }
</style>
</head>
<body>
<header>
<h1>Orderlens Purchase Analytics</h1>
<p>Snapshot views over the transactions and items relations</p>
</header>
<main>
<section data-on-load="@get('/sse/monthly-purchases')">
<h2>Monthly Purchases (non-refunded)</h2>
<div id="monthly-content">Loading…</div>
</section>
<section data-signals="{activeStores: {}}">
<h2>Active Stores in Target Month</h2>
<div id="active-stores-content" data-text="$activeStores.store_count"></div>
</section>
<section data-on-load="@get('/sse/refund-latency')" data-signals="{latencyData: []}">
<h2>Minimum Refund Latency by Store</h2>
<div id="latency-content">Loading…</div>
</section>
<section data-on-load="@get('/sse/first-orders')" data-signals="{firstOrderData: []}">
<h2>First Order per Store</h2>
<div id="first-orders-content">Loading…</div>
</section>
<section data-signals="{topFirstItem: {}}">
<h2>Top First-Purchase Item</h2>
<div id="top-first-item-content" data-text="$topFirstItem.item_name"></div>
</section>
<section>
<h2>Refund Eligibility</h2>
<p><a href="/api/refund-eligibility">Full classified transaction list (JSON)</a></p>
</section>
<section>
<h2>Second Purchases per Buyer</h2>
<p><a href="/api/second-purchases">Rank-2 purchases, refunds excluded (JSON)</a></p>
</section>
</main>
<button data-on-click="@get('/sse/refresh-all')">Refresh all</button>
</body>
</html>`

// Dashboard is the analytics landing page.
func Dashboard() templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := io.WriteString(w, dashboardHTML)
		return err
	})
}
