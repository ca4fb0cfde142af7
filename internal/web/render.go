package web

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"html/template"
	"io/fs"
	"net/http"

	"go.uber.org/zap"

	"github.com/hpungsan/gpsmap/internal/engine"
	"github.com/hpungsan/gpsmap/internal/errors"
)

// MapPageData is the template data for the map page.
type MapPageData struct {
	Title   string
	Dir     string
	Sources []string
	Offline bool

	// Set only for the offline page.
	Positions engine.Dataset
	Style     template.CSS
	Script    template.JS
}

// ReportPageData is the template data for the report page.
type ReportPageData struct {
	Title string
	Body  template.HTML
}

// Renderer manages template parsing and rendering.
type Renderer struct {
	templates map[string]*template.Template
	style     template.CSS
	script    template.JS
	logger    *zap.Logger
}

// NewRenderer parses the page templates from templateFS and reads the map
// assets from staticFS so the offline page can inline them.
func NewRenderer(templateFS, staticFS fs.FS, logger *zap.Logger) (*Renderer, error) {
	pages := map[string]string{
		"map":    "map.html",
		"report": "report.html",
	}

	templates := make(map[string]*template.Template, len(pages))
	for name, file := range pages {
		t, err := template.ParseFS(templateFS, file)
		if err != nil {
			return nil, err
		}
		templates[name] = t
	}

	style, err := fs.ReadFile(staticFS, "map.css")
	if err != nil {
		return nil, err
	}
	script, err := fs.ReadFile(staticFS, "map.js")
	if err != nil {
		return nil, err
	}

	return &Renderer{
		templates: templates,
		style:     template.CSS(style),
		script:    template.JS(script),
		logger:    logger,
	}, nil
}

// renderPage renders a named page template with the given data and HTTP 200 status.
func (r *Renderer) renderPage(w http.ResponseWriter, name string, data any) {
	t, ok := r.templates[name]
	if !ok {
		r.logger.Error("template not found", zap.String("template", name))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		r.logger.Error("template execution error", zap.String("template", name), zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// renderError writes err as a JSON error body with the error's status.
func (r *Renderer) renderError(w http.ResponseWriter, err error) {
	var gErr *errors.GPSMapError
	if !stderrors.As(err, &gErr) {
		gErr = errors.NewInternal(err)
	}
	if gErr.Status >= http.StatusInternalServerError {
		r.logger.Error("request failed", zap.String("code", string(gErr.Code)), zap.Error(err))
	}

	renderJSON(w, gErr.Status, map[string]any{
		"error": map[string]any{
			"code":    string(gErr.Code),
			"message": gErr.Message,
			"status":  gErr.Status,
		},
	})
}

// renderJSON writes a JSON response.
func renderJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
