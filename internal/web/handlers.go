package web

import (
	"net/http"
	"strconv"

	"github.com/hpungsan/gpsmap/internal/engine"
	"github.com/hpungsan/gpsmap/internal/errors"
	"github.com/hpungsan/gpsmap/internal/potfile"
	"github.com/hpungsan/gpsmap/internal/report"
)

// Handlers contains HTTP route handlers. The server owns one session, so
// /new delivers each position file once until /reset.
type Handlers struct {
	engine   *engine.Engine
	session  *engine.Session
	renderer *Renderer
}

// HandleIndex handles GET /: the map page.
func (h *Handlers) HandleIndex(w http.ResponseWriter, r *http.Request) {
	h.renderer.renderPage(w, "map", h.mapPage(false))
}

// HandleAll handles GET /all: every access point as JSON.
func (h *Handlers) HandleAll(w http.ResponseWriter, r *http.Request) {
	data, err := h.engine.Scan(r.Context(), h.session, false)
	if err != nil {
		h.renderer.renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, data)
}

// HandleNew handles GET /new: access points not yet delivered to this server's session.
func (h *Handlers) HandleNew(w http.ResponseWriter, r *http.Request) {
	data, err := h.engine.Scan(r.Context(), h.session, true)
	if err != nil {
		h.renderer.renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, data)
}

// HandleReset handles POST /reset: clears delivery state.
// With ?skipped=true the skipped set is cleared too.
func (h *Handlers) HandleReset(w http.ResponseWriter, r *http.Request) {
	clearSkipped, err := parseBoolParam(r, "skipped")
	if err != nil {
		h.renderer.renderError(w, err)
		return
	}
	h.session.Reset(clearSkipped)
	renderJSON(w, http.StatusOK, map[string]any{
		"session":       h.session.ID(),
		"reset":         true,
		"clear_skipped": clearSkipped,
	})
}

// HandleOfflineMap handles GET /offlinemap: a self-contained map page with
// the data inlined, served as a download. Delivery state is untouched.
func (h *Handlers) HandleOfflineMap(w http.ResponseWriter, r *http.Request) {
	data, err := h.engine.Scan(r.Context(), nil, false)
	if err != nil {
		h.renderer.renderError(w, err)
		return
	}
	page := h.mapPage(true)
	page.Positions = data
	page.Style = h.renderer.style
	page.Script = h.renderer.script

	w.Header().Set("Content-Disposition", `attachment; filename="webgpsmap.html"`)
	h.renderer.renderPage(w, "map", page)
}

// HandleReport handles GET /report: the summary as HTML, or as markdown with ?format=markdown.
func (h *Handlers) HandleReport(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format != "" && format != "html" && format != "markdown" {
		h.renderer.renderError(w, errors.NewInvalidRequest("format must be html or markdown"))
		return
	}

	s := engine.NewSession()
	data, err := h.engine.Scan(r.Context(), s, false)
	if err != nil {
		h.renderer.renderError(w, err)
		return
	}
	md := report.Summarize(h.engine.Dir(), data, s.Skipped(), h.engine.Credentials()).Markdown()

	if format == "markdown" {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(md))
		return
	}
	h.renderer.renderPage(w, "report", ReportPageData{
		Title: "gpsmap report",
		Body:  report.RenderHTML(md),
	})
}

// HandleSkipped handles GET /skipped: files the server session could not use.
func (h *Handlers) HandleSkipped(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, http.StatusOK, report.SkippedFiles(h.session.Skipped()))
}

func (h *Handlers) mapPage(offline bool) MapPageData {
	sources := make([]string, len(potfile.Layouts))
	for i, l := range potfile.Layouts {
		sources[i] = string(l.Source)
	}
	return MapPageData{
		Title:   "gpsmap",
		Dir:     h.engine.Dir(),
		Sources: sources,
		Offline: offline,
	}
}

// parseBoolParam reads a boolean query parameter; absent means false.
func parseBoolParam(r *http.Request, name string) (bool, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, errors.NewInvalidRequest(name + " must be a boolean")
	}
	return b, nil
}
