// Package analyzer checks capture files against external cracking tools.
package analyzer

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/hpungsan/gpsmap/internal/errors"
)

// Tool names as invoked.
const (
	Aircrack = "aircrack-ng"
	HcxTool  = "hcxpcapngtool"
	Hashcat  = "hashcat"
	Cowpatty = "cowpatty"
	Capinfos = "capinfos"
)

const (
	hcSuffix = ".hc22000"
	wordlist = "wordlist.txt"
	noBSSID  = "BSSID_HERE"
	noESSID  = "ESSID_HERE"
	devNull  = "/dev/null"
)

var (
	handshakeRegex = regexp.MustCompile(`WPA.*\((\d+)\s+handshake`)
	bssidRegex     = regexp.MustCompile(`([0-9A-Fa-f]{2}:[0-9A-Fa-f]{2}:[0-9A-Fa-f]{2}:[0-9A-Fa-f]{2}:[0-9A-Fa-f]{2}:[0-9A-Fa-f]{2})`)
	packetsRegex   = regexp.MustCompile(`Number of packets:\s+(\d+)`)
	sizeRegex      = regexp.MustCompile(`File size:\s+(\d+)`)
)

// Compatibility names a tool that can use a file and a suggested command line.
type Compatibility struct {
	Tool    string `json:"tool"`
	Command string `json:"command"`
}

// FileReport is the outcome for one capture file.
type FileReport struct {
	Path        string          `json:"path"`
	Packets     *int64          `json:"packets,omitempty"`
	Size        *int64          `json:"size,omitempty"`
	Tools       []Compatibility `json:"tools"`
	Deleted     bool            `json:"deleted,omitempty"`
	DeleteError string          `json:"delete_error,omitempty"`
}

// Valid reports whether any tool can use the file.
func (f FileReport) Valid() bool {
	return len(f.Tools) > 0
}

// Report is the outcome for a folder.
type Report struct {
	Folder  string       `json:"folder"`
	Files   []FileReport `json:"files"`
	Valid   int          `json:"valid"`
	Invalid int          `json:"invalid"`
}

// Options control an analysis run.
type Options struct {
	// Delete removes files no tool can use.
	Delete bool
	// Verbose adds packet count and size from capinfos.
	Verbose bool
}

// Analyzer checks capture files with the installed tools.
type Analyzer struct {
	runner Runner
	logger *zap.Logger
}

// New creates an analyzer. A nil runner uses ExecRunner with DefaultTimeout.
func New(runner Runner, logger *zap.Logger) *Analyzer {
	if runner == nil {
		runner = ExecRunner{Timeout: DefaultTimeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{runner: runner, logger: logger.Named("analyzer")}
}

// Analyze checks every *.cap and *.pcap file in folder, in name order.
// Tools that are not installed are not consulted.
func (a *Analyzer) Analyze(ctx context.Context, folder string, opts Options) (*Report, error) {
	files, err := captureFiles(folder)
	if err != nil {
		return nil, err
	}

	installed := make(map[string]bool)
	for _, tool := range []string{Aircrack, HcxTool, Cowpatty, Capinfos} {
		if _, err := a.runner.LookPath(tool); err == nil {
			installed[tool] = true
		} else {
			a.logger.Debug("tool not installed", zap.String("tool", tool))
		}
	}

	if opts.Delete && !installed[Aircrack] && !installed[HcxTool] && !installed[Cowpatty] {
		return nil, errors.NewInvalidRequest("refusing to delete: none of aircrack-ng, hcxpcapngtool or cowpatty is installed")
	}

	report := &Report{Folder: folder, Files: make([]FileReport, 0, len(files))}
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fr := a.analyzeFile(ctx, path, installed, opts.Verbose)
		if fr.Valid() {
			report.Valid++
		} else {
			report.Invalid++
			if opts.Delete {
				if err := os.Remove(path); err != nil {
					fr.DeleteError = err.Error()
					a.logger.Error("deleting unusable capture", zap.String("path", path), zap.Error(err))
				} else {
					fr.Deleted = true
					a.logger.Info("deleted unusable capture", zap.String("path", path))
				}
			}
		}
		report.Files = append(report.Files, fr)
	}
	return report, nil
}

func (a *Analyzer) analyzeFile(ctx context.Context, path string, installed map[string]bool, verbose bool) FileReport {
	fr := FileReport{Path: path, Tools: []Compatibility{}}

	if verbose && installed[Capinfos] {
		fr.Packets, fr.Size = a.fileInfo(ctx, path)
	}
	if installed[Aircrack] {
		if c, ok := a.checkAircrack(ctx, path); ok {
			fr.Tools = append(fr.Tools, c)
		}
	}
	if installed[HcxTool] {
		if c, ok := a.checkHashcat(ctx, path); ok {
			fr.Tools = append(fr.Tools, c)
		}
	}
	if installed[Cowpatty] {
		if c, ok := a.checkCowpatty(ctx, path); ok {
			fr.Tools = append(fr.Tools, c)
		}
	}
	a.logger.Debug("analyzed capture", zap.String("path", path), zap.Int("tools", len(fr.Tools)))
	return fr
}

// checkAircrack needs at least one WPA handshake in aircrack-ng's listing.
func (a *Analyzer) checkAircrack(ctx context.Context, path string) (Compatibility, bool) {
	res := a.runner.Run(ctx, Aircrack, path)
	m := handshakeRegex.FindStringSubmatch(res.Stdout)
	if m == nil {
		return Compatibility{}, false
	}
	if n, err := strconv.Atoi(m[1]); err != nil || n == 0 {
		return Compatibility{}, false
	}
	bssid := noBSSID
	if b := bssidRegex.FindStringSubmatch(res.Stdout); b != nil {
		bssid = b[1]
	}
	return Compatibility{
		Tool:    Aircrack,
		Command: fmt.Sprintf("%s -w %s -b %s %q", Aircrack, wordlist, bssid, path),
	}, true
}

// checkHashcat converts to hashcat's 22000 format and needs a non-empty result.
// The converted file is always removed.
func (a *Analyzer) checkHashcat(ctx context.Context, path string) (Compatibility, bool) {
	hc := path + hcSuffix
	res := a.runner.Run(ctx, HcxTool, "-o", hc, path)
	defer func() { _ = os.Remove(hc) }()

	if res.ExitCode != 0 {
		return Compatibility{}, false
	}
	data, err := os.ReadFile(hc)
	if err != nil || len(strings.TrimSpace(string(data))) == 0 {
		return Compatibility{}, false
	}
	return Compatibility{
		Tool:    Hashcat,
		Command: fmt.Sprintf("%s -m 22000 %q %s", Hashcat, hc, wordlist),
	}, true
}

// checkCowpatty accepts the file when cowpatty only complains about the
// missing dictionary, not about the capture.
func (a *Analyzer) checkCowpatty(ctx context.Context, path string) (Compatibility, bool) {
	res := a.runner.Run(ctx, Cowpatty, "-r", path, "-f", devNull)
	stderr := strings.ToLower(res.Stderr)
	if strings.Contains(stderr, "invalid capture file") || strings.Contains(stderr, "no valid packets") {
		return Compatibility{}, false
	}
	if !strings.Contains(stderr, "specify dictionary file") && res.ExitCode != 1 {
		return Compatibility{}, false
	}
	return Compatibility{
		Tool:    Cowpatty,
		Command: fmt.Sprintf("%s -r %q -f %s -s %s", Cowpatty, path, wordlist, noESSID),
	}, true
}

func (a *Analyzer) fileInfo(ctx context.Context, path string) (packets, size *int64) {
	res := a.runner.Run(ctx, Capinfos, path)
	if res.ExitCode != 0 {
		return nil, nil
	}
	return matchInt(packetsRegex, res.Stdout), matchInt(sizeRegex, res.Stdout)
}

func matchInt(re *regexp.Regexp, s string) *int64 {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return nil
	}
	return &n
}

// captureFiles lists *.cap and *.pcap regular files in folder, sorted.
func captureFiles(folder string) ([]string, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, errors.NewNotFound(folder)
		}
		return nil, errors.NewIO(folder, err)
	}
	var out []string
	for _, de := range entries {
		if de.IsDir() {
			continue
		}
		switch filepath.Ext(de.Name()) {
		case ".cap", ".pcap":
			out = append(out, filepath.Join(folder, de.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

// WriteText prints the report for a terminal.
func (r *Report) WriteText(w io.Writer, verbose bool) {
	fmt.Fprintln(w, "Capture file analyzer")
	fmt.Fprintln(w, strings.Repeat("=", 50))
	if len(r.Files) == 0 {
		fmt.Fprintf(w, "No .cap or .pcap files found in %s\n", r.Folder)
		return
	}
	fmt.Fprintf(w, "Found %d capture files in %s\n\n", len(r.Files), r.Folder)

	for _, f := range r.Files {
		fmt.Fprintf(w, "%s\n", filepath.Base(f.Path))
		if verbose && (f.Packets != nil || f.Size != nil) {
			fmt.Fprintf(w, "   packets: %s, size: %s bytes\n", formatOptional(f.Packets), formatOptional(f.Size))
		}
		if f.Valid() {
			names := make([]string, len(f.Tools))
			for i, t := range f.Tools {
				names[i] = t.Tool
			}
			fmt.Fprintf(w, "   VALID - compatible with: %s\n", strings.Join(names, ", "))
			for _, t := range f.Tools {
				fmt.Fprintf(w, "   %s: %s\n", t.Tool, t.Command)
			}
		} else {
			fmt.Fprintln(w, "   INVALID - no tools can use this file")
		}
		switch {
		case f.Deleted:
			fmt.Fprintln(w, "   deleted")
		case f.DeleteError != "":
			fmt.Fprintf(w, "   failed to delete: %s\n", f.DeleteError)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, "Summary")
	fmt.Fprintln(w, strings.Repeat("=", 50))
	fmt.Fprintf(w, "Valid files: %d\n", r.Valid)
	fmt.Fprintf(w, "Invalid files: %d\n", r.Invalid)
}

func formatOptional(n *int64) string {
	if n == nil {
		return "unknown"
	}
	return strconv.FormatInt(*n, 10)
}
