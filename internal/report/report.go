// Package report summarizes a dataset as markdown and HTML.
package report

import (
	"bytes"
	"fmt"
	"html/template"
	"path/filepath"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/hpungsan/gpsmap/internal/engine"
	"github.com/hpungsan/gpsmap/internal/errors"
	"github.com/hpungsan/gpsmap/internal/potfile"
)

// SkippedFile is one position file the last scans could not use.
type SkippedFile struct {
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Summary is the aggregate view of one dataset.
type Summary struct {
	Dir         string         `json:"dir"`
	Total       int            `json:"total"`
	Cracked     int            `json:"cracked"`
	ByType      map[string]int `json:"by_type"`
	BySource    map[string]int `json:"by_source"`
	Credentials int            `json:"credentials"`
	Skipped     []SkippedFile  `json:"skipped"`
}

// Summarize counts the records in data and lists the skipped files.
// creds may be nil.
func Summarize(dir string, data engine.Dataset, skipped map[string]error, creds *potfile.Index) Summary {
	s := Summary{
		Dir:         dir,
		Total:       len(data),
		ByType:      make(map[string]int),
		BySource:    make(map[string]int),
		Credentials: creds.Len(),
		Skipped:     SkippedFiles(skipped),
	}
	for _, ap := range data {
		s.ByType[ap.Type]++
		if ap.Cracked() {
			s.Cracked++
			s.BySource[*ap.PassSource]++
		}
	}
	return s
}

// SkippedFiles flattens a session's skipped map, sorted by path.
func SkippedFiles(skipped map[string]error) []SkippedFile {
	out := make([]SkippedFile, 0, len(skipped))
	for path, err := range skipped {
		out = append(out, SkippedFile{
			Path:    path,
			Code:    string(errors.CodeOf(err)),
			Message: err.Error(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Markdown renders the summary.
func (s Summary) Markdown() string {
	var b strings.Builder

	b.WriteString("# Handshake map report\n\n")
	if s.Dir != "" {
		fmt.Fprintf(&b, "Directory: `%s`\n\n", s.Dir)
	}

	b.WriteString("| | Count |\n|---|---:|\n")
	fmt.Fprintf(&b, "| Access points | %s |\n", formatCount(s.Total))
	fmt.Fprintf(&b, "| Cracked | %s |\n", formatCount(s.Cracked))
	fmt.Fprintf(&b, "| Known passwords | %s |\n", formatCount(s.Credentials))
	fmt.Fprintf(&b, "| Skipped files | %s |\n", formatCount(len(s.Skipped)))

	if len(s.ByType) > 0 {
		b.WriteString("\n## Position sources\n\n| Type | Count |\n|---|---:|\n")
		for _, k := range sortedKeys(s.ByType) {
			fmt.Fprintf(&b, "| %s | %s |\n", k, formatCount(s.ByType[k]))
		}
	}

	if len(s.BySource) > 0 {
		b.WriteString("\n## Cracked by source\n\n| Source | Count |\n|---|---:|\n")
		for _, k := range sortedKeys(s.BySource) {
			fmt.Fprintf(&b, "| %s | %s |\n", k, formatCount(s.BySource[k]))
		}
	}

	if len(s.Skipped) > 0 {
		b.WriteString("\n## Skipped files\n\n| File | Code | Error |\n|---|---|---|\n")
		for _, f := range s.Skipped {
			fmt.Fprintf(&b, "| %s | %s | %s |\n",
				escapeCell(filepath.Base(f.Path)), f.Code, escapeCell(f.Message))
		}
	}
	return b.String()
}

var md = goldmark.New(goldmark.WithExtensions(extension.Table))

// RenderHTML converts markdown to HTML. On conversion failure the escaped
// source is returned.
func RenderHTML(src string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(src), &buf); err != nil {
		return template.HTML("<pre>" + template.HTMLEscapeString(src) + "</pre>")
	}
	return template.HTML(buf.String())
}

// formatCount formats n with comma thousands separators.
func formatCount(n int) string {
	if n < 0 {
		return "-" + formatCount(-n)
	}
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}

	var result strings.Builder
	remainder := len(s) % 3
	if remainder > 0 {
		result.WriteString(s[:remainder])
	}
	for i := remainder; i < len(s); i += 3 {
		if result.Len() > 0 {
			result.WriteByte(',')
		}
		result.WriteString(s[i : i+3])
	}
	return result.String()
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
