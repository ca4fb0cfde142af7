// Package potfile loads cracked-password logs from third-party cracking
// services and indexes them by BSSID and normalized SSID.
package potfile

import (
	"bufio"
	stderrors "errors"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/hpungsan/gpsmap/internal/errors"
)

// Source identifies the service a password was recovered by.
type Source string

const (
	SourcePwncrack       Source = "pwncrack"
	SourceWPASec         Source = "wpa-sec"
	SourceRemoteCracking Source = "remote_cracking"
)

// Layout describes the colon-delimited field positions of one potfile format.
type Layout struct {
	Filename  string
	Source    Source
	MinFields int
	BSSID     int
	SSID      int
	Password  int
}

// Layouts lists the recognised potfiles in load order.
// Earlier files win key collisions.
var Layouts = []Layout{
	{Filename: "cracked.pwncrack.potfile", Source: SourcePwncrack, MinFields: 5, BSSID: 1, SSID: 3, Password: 4},
	{Filename: "wpa-sec.cracked.potfile", Source: SourceWPASec, MinFields: 4, BSSID: 0, SSID: 2, Password: 3},
	{Filename: "remote_cracking.potfile", Source: SourceRemoteCracking, MinFields: 5, BSSID: 1, SSID: 3, Password: 4},
}

// IsPotfile reports whether name is one of the recognised potfile names.
func IsPotfile(name string) bool {
	for _, l := range Layouts {
		if l.Filename == name {
			return true
		}
	}
	return false
}

// Entry is one recovered password.
type Entry struct {
	BSSID          string // colon-stripped, uppercase
	NormalizedSSID string
	Password       string
	Source         Source
}

var nonAlnum = regexp.MustCompile(`[^a-zA-Z0-9]`)

// NormalizeSSID strips every non-alphanumeric character and lowercases the rest.
func NormalizeSSID(ssid string) string {
	return strings.ToLower(nonAlnum.ReplaceAllString(ssid, ""))
}

// Key builds the join key shared by potfile entries and position records.
func Key(bssid, ssid string) string {
	return strings.ToLower(strings.ReplaceAll(bssid, ":", "")) + "_" + NormalizeSSID(ssid)
}

// Index is an immutable lookup table of recovered passwords.
type Index struct {
	entries map[string]Entry
	counts  map[Source]int
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{
		entries: make(map[string]Entry),
		counts:  make(map[Source]int),
	}
}

// Lookup finds the password recorded for mac and ssid.
func (idx *Index) Lookup(mac, ssid string) (Entry, bool) {
	if idx == nil {
		return Entry{}, false
	}
	e, ok := idx.entries[Key(mac, ssid)]
	return e, ok
}

// Len returns the number of indexed entries.
func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.entries)
}

// Counts returns the number of indexed entries per source.
func (idx *Index) Counts() map[Source]int {
	out := make(map[Source]int, len(Layouts))
	if idx == nil {
		return out
	}
	for s, n := range idx.counts {
		out[s] = n
	}
	return out
}

// add inserts e under key unless the key is already taken.
func (idx *Index) add(key string, e Entry) bool {
	if _, exists := idx.entries[key]; exists {
		return false
	}
	idx.entries[key] = e
	idx.counts[e.Source]++
	return true
}

// Load reads every recognised potfile in dir. It never fails: a missing file
// is logged at debug level and an unreadable one at error level, and either
// contributes no entries.
func Load(dir string, logger *zap.Logger) *Index {
	if logger == nil {
		logger = zap.NewNop()
	}
	idx := NewIndex()
	for _, layout := range Layouts {
		path := filepath.Join(dir, layout.Filename)
		f, err := os.Open(path)
		if err != nil {
			if stderrors.Is(err, os.ErrNotExist) {
				logger.Debug("potfile not found", zap.String("file", layout.Filename))
				continue
			}
			logger.Error("cannot load potfile", zap.Error(errors.NewConfig(path, err)))
			continue
		}
		logger.Info("loading passwords", zap.String("file", layout.Filename))
		added, err := idx.read(f, layout, logger)
		f.Close()
		if err != nil {
			logger.Error("cannot load potfile", zap.Error(errors.NewConfig(path, err)))
		}
		logger.Debug("potfile loaded",
			zap.String("file", layout.Filename),
			zap.Int("entries", added))
	}
	return idx
}

// maxLineSize bounds one potfile line. Longer lines are skipped.
const maxLineSize = 1024 * 1024

// read scans r line by line using layout and returns how many entries were added.
// Entries read before an I/O error stay in the index.
func (idx *Index) read(r io.Reader, layout Layout, logger *zap.Logger) (int, error) {
	added := 0
	br := bufio.NewReaderSize(r, 64*1024)
	var buf []byte
	oversized := false
	for {
		chunk, isPrefix, err := br.ReadLine()
		if err != nil {
			if stderrors.Is(err, io.EOF) {
				return added, nil
			}
			return added, err
		}
		if !oversized {
			if len(buf)+len(chunk) > maxLineSize {
				oversized = true
				buf = buf[:0]
			} else {
				buf = append(buf, chunk...)
			}
		}
		if isPrefix {
			continue
		}
		if oversized {
			logger.Warn("skipping oversized line",
				zap.String("file", layout.Filename),
				zap.Int("max_bytes", maxLineSize))
			oversized = false
			continue
		}

		line := strings.TrimSpace(strings.ToValidUTF8(string(buf), ""))
		buf = buf[:0]
		if line == "" {
			continue
		}
		entry, ok := ParseLine(line, layout)
		if !ok {
			logger.Debug("skipping malformed line",
				zap.String("file", layout.Filename),
				zap.String("line", line))
			continue
		}
		if idx.add(strings.ToLower(entry.BSSID)+"_"+entry.NormalizedSSID, entry) {
			added++
		}
	}
}

// ParseLine splits one potfile line according to layout.
func ParseLine(line string, layout Layout) (Entry, bool) {
	parts := splitFields(line)
	if len(parts) < layout.MinFields {
		return Entry{}, false
	}
	return Entry{
		BSSID:          strings.ToUpper(strings.ReplaceAll(parts[layout.BSSID], ":", "")),
		NormalizedSSID: NormalizeSSID(parts[layout.SSID]),
		Password:       parts[layout.Password],
		Source:         layout.Source,
	}, true
}

// splitFields splits line on colons, folding colon-separated MAC addresses
// ("aa:bb:cc:dd:ee:ff") back into a single field.
func splitFields(line string) []string {
	raw := strings.Split(line, ":")
	fields := make([]string, 0, len(raw))
	for i := 0; i < len(raw); i++ {
		if i+6 <= len(raw) && isOctetRun(raw[i:i+6]) {
			fields = append(fields, strings.Join(raw[i:i+6], ":"))
			i += 5
			continue
		}
		fields = append(fields, raw[i])
	}
	return fields
}

func isOctetRun(parts []string) bool {
	for _, p := range parts {
		if len(p) != 2 || !isHex(p[0]) || !isHex(p[1]) {
			return false
		}
	}
	return true
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}
