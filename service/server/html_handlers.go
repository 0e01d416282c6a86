package server

import (
	"embed"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/slotrelay/service/db"
	"github.com/brojonat/slotrelay/service/relay"
)

//go:embed templates/*.html
var templatesFS embed.FS

const dashboardRows = 20

// TemplateRenderer holds parsed HTML templates
type TemplateRenderer struct {
	templates *template.Template
	logger    *slog.Logger
}

// NewTemplateRenderer creates a new template renderer from embedded files
func NewTemplateRenderer(logger *slog.Logger) (*TemplateRenderer, error) {
	tmpl, err := template.New("").Funcs(template.FuncMap{
		"ms": func(d time.Duration) int64 { return d.Milliseconds() },
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
func (tr *TemplateRenderer) Render(w http.ResponseWriter, name string, data interface{}) error {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return tr.templates.ExecuteTemplate(w, name, data)
}

type dashboardData struct {
	Runs        []*relay.BulkReport
	Comparisons []*relay.ComparisonResult
}

// handleDashboardPage serves recent runs and comparisons with a live stats feed.
func handleDashboardPage(renderer *TemplateRenderer, store RunStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runs, err := store.ListRuns(r.Context(), db.ListRunsParams{Limit: dashboardRows})
		if err != nil {
			renderer.logger.Error("failed to list runs for dashboard", "error", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		comparisons, err := store.ListComparisons(r.Context(), db.ListComparisonsParams{Limit: dashboardRows})
		if err != nil {
			renderer.logger.Error("failed to list comparisons for dashboard", "error", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		data := dashboardData{Runs: runs, Comparisons: comparisons}
		if err := renderer.Render(w, "dashboard.html", data); err != nil {
			renderer.logger.Error("failed to render template", "error", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
	}
}
