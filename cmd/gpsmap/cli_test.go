package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hpungsan/gpsmap/internal/config"
	"github.com/hpungsan/gpsmap/internal/engine"
)

// setupTestDir creates a handshakes directory with one usable and one
// unusable capture.
func setupTestDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"home_aabbccddeeff.pcap":     "pcap",
		"home_aabbccddeeff.gps.json": `{"lat":48.1,"long":10.2,"ts":1700000000}`,
		"bad_aabbccddee00.pcap":      "pcap",
		"bad_aabbccddee00.gps.json":  `{"lat":0,"long":10.2}`,
		"wpa-sec.cracked.potfile":    "aa:bb:cc:dd:ee:ff:ESSID:home:secret123\n",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0600); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}
	return dir
}

// testConfig returns a config pointing at dir.
func testConfig(dir string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.HandshakesDir = dir
	return cfg
}

// runApp runs the CLI with args and returns what it wrote to stdout.
func runApp(t *testing.T, cfg *config.Config, cfgPath string, args ...string) (string, error) {
	t.Helper()

	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("failed to create pipe: %v", err)
	}
	os.Stdout = w

	done := make(chan string)
	go func() {
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(r)
		done <- buf.String()
	}()

	runErr := newCLIApp(cfg, cfgPath).Run(append([]string{"gpsmap"}, args...))

	w.Close()
	os.Stdout = oldStdout
	return <-done, runErr
}

// TestIsCLIMode tests the CLI/MCP mode decision.
func TestIsCLIMode(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected bool
	}{
		{"no args", []string{"gpsmap"}, false},
		{"known command", []string{"gpsmap", "scan"}, true},
		{"config command", []string{"gpsmap", "config", "show"}, true},
		{"help flag", []string{"gpsmap", "--help"}, true},
		{"global flag first", []string{"gpsmap", "--dir", "/tmp", "scan"}, true},
		{"unknown word", []string{"gpsmap", "frobnicate"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isCLIMode(tt.args); got != tt.expected {
				t.Errorf("isCLIMode(%v) = %v, want %v", tt.args, got, tt.expected)
			}
		})
	}
}

// TestCLIScan tests the scan command.
func TestCLIScan(t *testing.T) {
	dir := setupTestDir(t)

	out, err := runApp(t, testConfig(dir), "", "scan")
	if err != nil {
		t.Fatalf("scan command failed: %v", err)
	}

	var data engine.Dataset
	if err := json.Unmarshal([]byte(out), &data); err != nil {
		t.Fatalf("failed to parse output: %v\nOutput: %s", err, out)
	}
	if len(data) != 1 {
		t.Fatalf("expected 1 access point, got %d", len(data))
	}
	ap := data["home_aabbccddeeff"]
	if ap.Pass == nil || *ap.Pass != "secret123" {
		t.Errorf("expected pass secret123, got %v", ap.Pass)
	}
}

func TestCLIScan_DirFlagOverridesConfig(t *testing.T) {
	dir := setupTestDir(t)
	cfg := testConfig(filepath.Join(t.TempDir(), "missing"))

	out, err := runApp(t, cfg, "", "--dir", dir, "scan", "--skipped")
	if err != nil {
		t.Fatalf("scan command failed: %v", err)
	}

	var output struct {
		Positions engine.Dataset   `json:"positions"`
		Skipped   []map[string]any `json:"skipped"`
	}
	if err := json.Unmarshal([]byte(out), &output); err != nil {
		t.Fatalf("failed to parse output: %v\nOutput: %s", err, out)
	}
	if len(output.Positions) != 1 {
		t.Errorf("expected 1 access point, got %d", len(output.Positions))
	}
	if len(output.Skipped) != 1 || output.Skipped[0]["code"] != "VALIDATION_ERROR" {
		t.Errorf("expected one VALIDATION_ERROR skip, got %v", output.Skipped)
	}
}

func TestCLIScan_MissingDirectory(t *testing.T) {
	cfg := testConfig(filepath.Join(t.TempDir(), "missing"))

	_, err := runApp(t, cfg, "", "scan")
	if err == nil {
		t.Fatal("expected error for missing directory")
	}
	if !strings.HasPrefix(err.Error(), "[NOT_FOUND]") {
		t.Errorf("expected [NOT_FOUND] prefix, got %q", err.Error())
	}
}

// TestCLIReport tests the report command.
func TestCLIReport(t *testing.T) {
	dir := setupTestDir(t)

	t.Run("markdown", func(t *testing.T) {
		out, err := runApp(t, testConfig(dir), "", "report")
		if err != nil {
			t.Fatalf("report command failed: %v", err)
		}
		if !strings.HasPrefix(out, "# Handshake map report") {
			t.Errorf("expected markdown heading, got %q", out)
		}
		if !strings.Contains(out, "bad_aabbccddee00.gps.json") {
			t.Error("expected skipped file in report")
		}
	})

	t.Run("html", func(t *testing.T) {
		out, err := runApp(t, testConfig(dir), "", "report", "--format", "html")
		if err != nil {
			t.Fatalf("report command failed: %v", err)
		}
		if !strings.Contains(out, "<h1>Handshake map report</h1>") {
			t.Errorf("expected html heading, got %q", out)
		}
	})

	t.Run("invalid format", func(t *testing.T) {
		_, err := runApp(t, testConfig(dir), "", "report", "--format", "pdf")
		if err == nil || !strings.Contains(err.Error(), "[INVALID_REQUEST]") {
			t.Errorf("expected INVALID_REQUEST, got %v", err)
		}
	})
}

// TestCLICredentials tests the credentials command.
func TestCLICredentials(t *testing.T) {
	dir := setupTestDir(t)

	out, err := runApp(t, testConfig(dir), "", "credentials")
	if err != nil {
		t.Fatalf("credentials command failed: %v", err)
	}

	var output struct {
		Count    int            `json:"count"`
		BySource map[string]int `json:"by_source"`
	}
	if err := json.Unmarshal([]byte(out), &output); err != nil {
		t.Fatalf("failed to parse output: %v\nOutput: %s", err, out)
	}
	if output.Count != 1 {
		t.Errorf("expected count 1, got %d", output.Count)
	}
	if output.BySource["wpa-sec"] != 1 {
		t.Errorf("expected 1 wpa-sec credential, got %v", output.BySource)
	}
}

// TestCLIAnalyze tests the analyze command on a folder without captures.
func TestCLIAnalyze(t *testing.T) {
	folder := t.TempDir()

	out, err := runApp(t, testConfig(folder), "", "analyze")
	if err != nil {
		t.Fatalf("analyze command failed: %v", err)
	}
	if !strings.Contains(out, "No .cap or .pcap files found in "+folder) {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestCLIAnalyze_MissingFolder(t *testing.T) {
	_, err := runApp(t, testConfig(t.TempDir()), "", "analyze", filepath.Join(t.TempDir(), "nope"))
	if err == nil || !strings.HasPrefix(err.Error(), "[NOT_FOUND]") {
		t.Errorf("expected [NOT_FOUND] error, got %v", err)
	}
}

// TestCLIConfig tests config set and show.
func TestCLIConfig(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), ".gpsmap", "config.json")
	cfg := config.DefaultConfig()

	out, err := runApp(t, cfg, cfgPath, "config", "set", "--dir", "/data/handshakes", "--port", "8080", "--watch")
	if err != nil {
		t.Fatalf("config set failed: %v", err)
	}
	if !strings.Contains(out, `"port": 8080`) {
		t.Errorf("expected updated port in output, got %s", out)
	}

	saved, err := config.Load(cfgPath)
	if err != nil {
		t.Fatalf("failed to reload config: %v", err)
	}
	if saved.HandshakesDir != "/data/handshakes" {
		t.Errorf("handshakes_dir = %q, want /data/handshakes", saved.HandshakesDir)
	}
	if saved.Port != 8080 || !saved.Watch {
		t.Errorf("port/watch = %d/%v, want 8080/true", saved.Port, saved.Watch)
	}
	if saved.Host != "127.0.0.1" {
		t.Errorf("host = %q, want default to be kept", saved.Host)
	}

	// --config loads the file before the command runs
	out, err = runApp(t, config.DefaultConfig(), "", "--config", cfgPath, "config", "show")
	if err != nil {
		t.Fatalf("config show failed: %v", err)
	}
	var shown config.Config
	if err := json.Unmarshal([]byte(out), &shown); err != nil {
		t.Fatalf("failed to parse output: %v\nOutput: %s", err, out)
	}
	if shown.HandshakesDir != "/data/handshakes" {
		t.Errorf("shown handshakes_dir = %q, want /data/handshakes", shown.HandshakesDir)
	}
}

func TestCLIConfig_InvalidPort(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.json")

	_, err := runApp(t, config.DefaultConfig(), cfgPath, "config", "set", "--port", "70000")
	if err == nil || !strings.Contains(err.Error(), "[INVALID_REQUEST]") {
		t.Errorf("expected INVALID_REQUEST, got %v", err)
	}
	if _, statErr := os.Stat(cfgPath); !os.IsNotExist(statErr) {
		t.Error("config file should not be written on invalid input")
	}
}

func TestCLIConfig_MalformedFile(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(cfgPath, []byte("{not json"), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	_, err := runApp(t, config.DefaultConfig(), "", "--config", cfgPath, "config", "show")
	if err == nil || !strings.Contains(err.Error(), "[CONFIG_ERROR]") {
		t.Errorf("expected CONFIG_ERROR, got %v", err)
	}
}
