package server

import (
	"embed"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/brojonat/mintify/service/ledger"
	"github.com/brojonat/mintify/service/tokens"
)

//go:embed templates/*.html
var templatesFS embed.FS

// TemplateRenderer holds parsed HTML templates
type TemplateRenderer struct {
	templates *template.Template
	logger    *slog.Logger
}

// NewTemplateRenderer creates a new template renderer from embedded files
func NewTemplateRenderer(logger *slog.Logger) (*TemplateRenderer, error) {
	tmpl, err := template.New("").Funcs(template.FuncMap{
		"short": shortAddress,
	}).ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	return &TemplateRenderer{
		templates: tmpl,
		logger:    logger,
	}, nil
}

// Render renders a template with the given data
func (tr *TemplateRenderer) Render(w http.ResponseWriter, name string, data any) error {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return tr.templates.ExecuteTemplate(w, name, data)
}

type indexPage struct {
	Status        *tokens.Status
	StatusError   string
	History       []historyRow
	StreamEnabled bool
}

type historyRow struct {
	ledger.Record
	ExplorerURL string
}

// handleIndexPage serves the wallet page: connection status, balance, the
// create/mint/transfer forms and the operation history.
func handleIndexPage(renderer *TemplateRenderer, svc TokenService, streamEnabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data := indexPage{StreamEnabled: streamEnabled}
		for _, rec := range svc.ListHistory(r.Context()) {
			row := historyRow{Record: rec}
			if rec.Signature != "" {
				row.ExplorerURL = svc.ExplorerURL(rec.Signature)
			}
			data.History = append(data.History, row)
		}

		st, err := svc.Status(r.Context())
		if err != nil {
			renderer.logger.WarnContext(r.Context(), "failed to load status for page", "error", err)
			data.StatusError = err.Error()
		}
		data.Status = st

		if err := renderer.Render(w, "index.html", data); err != nil {
			renderer.logger.Error("failed to render template", "error", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
	}
}

const faviconSVG = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 32 32"><circle cx="16" cy="16" r="14" fill="#9945FF"/><text x="16" y="22" font-size="16" text-anchor="middle" fill="#fff" font-family="sans-serif">M</text></svg>`

// handleFavicon serves the site icon.
func handleFavicon() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/svg+xml")
		w.Header().Set("Cache-Control", "public, max-age=86400")
		w.Write([]byte(faviconSVG))
	}
}

func shortAddress(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:4] + "..." + addr[len(addr)-4:]
}
