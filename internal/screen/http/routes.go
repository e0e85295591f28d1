package screenhttp

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
)

// MountRoutes registers report and invoice endpoints onto the router.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(30, time.Minute,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}),
	)

	r.Get("/reports", h.handleList)
	r.Get("/reports/{name}", h.handleView)
	r.Get("/reports/{name}/print", h.handlePrintPreview)
	r.Get("/invoices/{id}/print", h.handleInvoicePrint)
	r.Get("/invoices/{id}/qr", h.handleInvoiceQR)
	r.Get("/print-jobs/{id}", h.handleJob)
	r.Group(func(gr chi.Router) {
		gr.Use(limiter)
		gr.Get("/reports/{name}/export.xlsx", h.handleExportXLSX)
		gr.Get("/reports/{name}/export.csv", h.handleExportCSV)
		gr.Get("/reports/{name}/pdf", h.handlePDF)
		gr.Post("/reports/{name}/print", h.handlePrint)
		gr.Get("/invoices/{id}/pdf", h.handleInvoicePDF)
		gr.Post("/invoices/{id}/print", h.handleInvoicePrint)
		gr.Post("/invoices/{id}/receipt", h.handleInvoiceReceipt)
	})
}

func rateLimitKey(r *http.Request) (string, error) {
	if terminal := strings.TrimSpace(r.Header.Get(TerminalHeader)); terminal != "" {
		return "terminal:" + terminal, nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
