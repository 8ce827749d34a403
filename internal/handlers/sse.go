package handlers

import (
	"encoding/json"
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"github.com/starfederation/datastar-go/datastar"

	"orderlens/internal/models"
	"orderlens/internal/services"
)

const maxTableRows = 50

var monthlyTableTemplate = template.Must(template.New("monthlyTable").Parse(`
<div id="monthly-content">
<table class="modern-table">
<thead><tr><th>Month</th><th>Purchases</th></tr></thead>
<tbody>
{{range $i, $row := .Data}}{{if lt $i $.MaxRows}}<tr>
<td>{{.MonthStart.Format "2006-01"}}</td>
<td><strong>{{.Count}}</strong></td>
</tr>{{end}}{{end}}
</tbody>
</table>
</div>`))

// SSEHandlers pushes precomputed views to the dashboard over datastar SSE.
type SSEHandlers struct {
	analytics *services.Analytics
	logger    *slog.Logger
}

func NewSSEHandlers(analytics *services.Analytics, logger *slog.Logger) *SSEHandlers {
	return &SSEHandlers{
		analytics: analytics,
		logger:    logger,
	}
}

type templateData struct {
	Data    any
	MaxRows int
}

func (h *SSEHandlers) renderMonthlyTable(data []models.MonthlyPurchases) (string, error) {
	var buf strings.Builder

	if len(data) > maxTableRows {
		data = data[:maxTableRows]
	}

	err := monthlyTableTemplate.Execute(&buf, templateData{Data: data, MaxRows: maxTableRows})
	return buf.String(), err
}

func (h *SSEHandlers) HandleMonthlyPurchases(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)

	html, err := h.renderMonthlyTable(h.analytics.MonthlyPurchases())
	if err != nil {
		h.logger.Error("render monthly table", "error", err)
		return
	}

	sse.PatchElements(html)

	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func (h *SSEHandlers) HandleRefundLatency(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)

	jsonData, err := json.Marshal(map[string]any{
		"latencyData": h.analytics.RefundLatencies(),
	})
	if err != nil {
		h.logger.Error("marshal latency data", "error", err)
		return
	}
	sse.PatchSignals(jsonData)

	sse.PatchElements(`<div id="latency-content">✅ Refund latency data loaded</div>`)

	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func (h *SSEHandlers) HandleFirstOrders(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)

	jsonData, err := json.Marshal(map[string]any{
		"firstOrderData": h.analytics.FirstOrders(),
	})
	if err != nil {
		h.logger.Error("marshal first order data", "error", err)
		return
	}
	sse.PatchSignals(jsonData)

	sse.PatchElements(`<div id="first-orders-content">✅ First order data loaded</div>`)

	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func (h *SSEHandlers) HandleRefreshAll(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)

	html, err := h.renderMonthlyTable(h.analytics.MonthlyPurchases())
	if err != nil {
		h.logger.Error("render monthly table", "error", err)
		return
	}
	sse.PatchElements(html)

	signals := map[string]any{
		"latencyData":    h.analytics.RefundLatencies(),
		"firstOrderData": h.analytics.FirstOrders(),
		"activeStores":   h.analytics.ActiveStores(),
	}
	if top := h.analytics.TopFirstPurchaseItem(); top != nil {
		signals["topFirstItem"] = top
	}

	allSignals, err := json.Marshal(signals)
	if err != nil {
		h.logger.Error("marshal all signals data", "error", err)
		return
	}
	sse.PatchSignals(allSignals)

	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}
