package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hpungsan/gpsmap/internal/engine"
	"github.com/hpungsan/gpsmap/internal/metrics"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0600); err != nil {
		t.Fatalf("WriteFile(%s): %v", name, err)
	}
}

// seedCapture writes a capture file and its .gps.json companion.
func seedCapture(t *testing.T, dir, base, position string) {
	t.Helper()
	writeFile(t, dir, base+".pcap", "pcap")
	writeFile(t, dir, base+".gps.json", position)
}

func setupTest(t *testing.T) (http.Handler, string) {
	t.Helper()
	dir := t.TempDir()
	m := metrics.New()
	e, err := engine.New(dir, engine.WithMetrics(m))
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	srv, err := NewServer(e, m, nil, "127.0.0.1", 0)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return srv.Handler, dir
}

func do(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeDataset(t *testing.T, rec *httptest.ResponseRecorder) engine.Dataset {
	t.Helper()
	var data engine.Dataset
	if err := json.NewDecoder(rec.Body).Decode(&data); err != nil {
		t.Fatalf("decode dataset: %v", err)
	}
	return data
}

// --- /all ---

func TestHandleAll(t *testing.T) {
	h, dir := setupTest(t)
	seedCapture(t, dir, "home_aabbccddeeff", `{"lat":48.1,"long":10.2,"ts":1700000000}`)
	writeFile(t, dir, "wpa-sec.cracked.potfile", "aa:bb:cc:dd:ee:ff:ESSID:home:secret123\n")

	rec := do(t, h, "GET", "/all")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	data := decodeDataset(t, rec)
	ap, ok := data["home_aabbccddeeff"]
	if !ok {
		t.Fatalf("missing home_aabbccddeeff in %v", data)
	}
	if ap.Pass == nil || *ap.Pass != "secret123" {
		t.Errorf("pass = %v, want secret123", ap.Pass)
	}
	if ap.LastSeen != 1700000000 {
		t.Errorf("ts_last = %d, want 1700000000", ap.LastSeen)
	}
}

func TestHandleAll_FieldNames(t *testing.T) {
	h, dir := setupTest(t)
	seedCapture(t, dir, "home_aabbccddeeff", `{"lat":48.1,"long":10.2}`)

	rec := do(t, h, "GET", "/all")
	var raw map[string]map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	ap := raw["home_aabbccddeeff"]
	for _, k := range []string{"ssid", "mac", "type", "lat", "lng", "acc", "ts_first", "ts_last", "pass", "pass_source"} {
		if _, ok := ap[k]; !ok {
			t.Errorf("field %q missing", k)
		}
	}
	if ap["pass"] != nil {
		t.Errorf("pass = %v, want null", ap["pass"])
	}
}

func TestHandleAll_MissingDirectory(t *testing.T) {
	h, dir := setupTest(t)
	if err := os.RemoveAll(dir); err != nil {
		t.Fatalf("RemoveAll: %v", err)
	}

	rec := do(t, h, "GET", "/all")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	var body struct {
		Error struct {
			Code   string `json:"code"`
			Status int    `json:"status"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Code != "NOT_FOUND" || body.Error.Status != 404 {
		t.Errorf("error = %+v, want NOT_FOUND/404", body.Error)
	}
}

// --- /new and /reset ---

func TestHandleNew_DeliversOnce(t *testing.T) {
	h, dir := setupTest(t)
	seedCapture(t, dir, "home_aabbccddeeff", `{"lat":1,"long":2}`)

	if data := decodeDataset(t, do(t, h, "GET", "/new")); len(data) != 1 {
		t.Fatalf("first /new returned %d records, want 1", len(data))
	}
	if data := decodeDataset(t, do(t, h, "GET", "/new")); len(data) != 0 {
		t.Fatalf("second /new returned %d records, want 0", len(data))
	}

	rec := do(t, h, "POST", "/reset")
	if rec.Code != http.StatusOK {
		t.Fatalf("reset status = %d, want 200", rec.Code)
	}
	if data := decodeDataset(t, do(t, h, "GET", "/new")); len(data) != 1 {
		t.Fatalf("/new after reset returned %d records, want 1", len(data))
	}
}

func TestHandleReset_ClearsSkipped(t *testing.T) {
	h, dir := setupTest(t)
	seedCapture(t, dir, "bad_aabbccddeeff", `{"lat":0,"long":2}`)
	do(t, h, "GET", "/all")

	var skipped []map[string]any
	if err := json.NewDecoder(do(t, h, "GET", "/skipped").Body).Decode(&skipped); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(skipped) != 1 || skipped[0]["code"] != "VALIDATION_ERROR" {
		t.Fatalf("skipped = %v, want one VALIDATION_ERROR", skipped)
	}

	do(t, h, "POST", "/reset")
	if body := do(t, h, "GET", "/skipped").Body.String(); strings.TrimSpace(body) == "[]" {
		t.Fatal("plain reset should keep skipped files")
	}

	do(t, h, "POST", "/reset?skipped=true")
	if body := do(t, h, "GET", "/skipped").Body.String(); strings.TrimSpace(body) != "[]" {
		t.Fatalf("skipped after reset = %s, want []", body)
	}
}

func TestHandleReset_InvalidParam(t *testing.T) {
	h, _ := setupTest(t)

	rec := do(t, h, "POST", "/reset?skipped=maybe")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleReset_MethodNotAllowed(t *testing.T) {
	h, _ := setupTest(t)

	rec := do(t, h, "GET", "/reset")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}

// --- pages ---

func TestHandleIndex(t *testing.T) {
	h, dir := setupTest(t)

	rec := do(t, h, "GET", "/")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, dir) {
		t.Error("expected handshakes directory in page")
	}
	if !strings.Contains(body, `src="/static/map.js"`) {
		t.Error("expected external map script")
	}
	if !strings.Contains(body, `value="wpa-sec"`) {
		t.Error("expected source filter options")
	}
	if csp := rec.Header().Get("Content-Security-Policy"); !strings.Contains(csp, "unpkg.com") {
		t.Errorf("CSP = %q, want leaflet CDN allowed", csp)
	}
	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("expected X-Frame-Options: DENY")
	}
}

func TestHandleOfflineMap(t *testing.T) {
	h, dir := setupTest(t)
	seedCapture(t, dir, "home_aabbccddeeff", `{"lat":48.1,"long":10.2}`)

	rec := do(t, h, "GET", "/offlinemap")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "webgpsmap.html") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "var offlinePositions =") {
		t.Error("expected inlined positions")
	}
	if !strings.Contains(body, "aabbccddeeff") {
		t.Error("expected dataset in page")
	}
	if strings.Contains(body, `src="/static/map.js"`) {
		t.Error("offline page must not reference server assets")
	}
	if !strings.Contains(body, "applyFilters") {
		t.Error("expected inlined map script")
	}

	// offline download does not consume the server session
	if data := decodeDataset(t, do(t, h, "GET", "/new")); len(data) != 1 {
		t.Fatalf("/new after offlinemap returned %d records, want 1", len(data))
	}
}

func TestHandleOfflineMap_EscapesSSID(t *testing.T) {
	h, dir := setupTest(t)
	seedCapture(t, dir, "<b>evil_aabbccddeeff", `{"lat":1,"long":2}`)

	body := do(t, h, "GET", "/offlinemap").Body.String()
	if strings.Contains(body, "<b>evil") {
		t.Error("SSID must be escaped inside the inline script")
	}
}

func TestHandleReport(t *testing.T) {
	h, dir := setupTest(t)
	seedCapture(t, dir, "home_aabbccddeeff", `{"lat":1,"long":2}`)
	seedCapture(t, dir, "bad_aabbccddee00", `{"lat":0,"long":2}`)

	rec := do(t, h, "GET", "/report")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "<h1>Handshake map report</h1>") {
		t.Error("expected rendered markdown heading")
	}
	if !strings.Contains(body, "bad_aabbccddee00.gps.json") {
		t.Error("expected skipped file in report")
	}

	rec = do(t, h, "GET", "/report?format=markdown")
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/markdown") {
		t.Errorf("Content-Type = %q, want text/markdown", ct)
	}
	if !strings.HasPrefix(rec.Body.String(), "# Handshake map report") {
		t.Error("expected raw markdown")
	}

	if rec := do(t, h, "GET", "/report?format=pdf"); rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestStaticAssets(t *testing.T) {
	h, _ := setupTest(t)

	for _, p := range []string{"/static/map.js", "/static/map.css"} {
		if rec := do(t, h, "GET", p); rec.Code != http.StatusOK {
			t.Errorf("%s status = %d, want 200", p, rec.Code)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h, dir := setupTest(t)
	seedCapture(t, dir, "home_aabbccddeeff", `{"lat":1,"long":2}`)
	do(t, h, "GET", "/all")

	rec := do(t, h, "GET", "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "gpsmap_scans_total") {
		t.Error("expected gpsmap_scans_total in exposition")
	}
}
