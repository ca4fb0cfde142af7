package position

import (
	"regexp"
	"strings"
)

// Format identifies which upstream tool produced a position file.
type Format int

const (
	FormatGPS    Format = iota + 1 // bettercap / gpsd fix, *.gps.json
	FormatGEO                      // network geolocation, *.geo.json
	FormatPawGPS                   // paw-gps companion app, *.paw-gps.json
)

// DefaultAccuracy is the accuracy in meters assumed for device-class GPS fixes.
const DefaultAccuracy = 50.0

// Suffixes lists position-file suffixes in pairing priority order.
var Suffixes = []string{".gps.json", ".geo.json", ".paw-gps.json"}

var suffixFormats = map[string]Format{
	".gps.json":     FormatGPS,
	".geo.json":     FormatGEO,
	".paw-gps.json": FormatPawGPS,
}

// String returns the short type name used in the output dataset.
func (f Format) String() string {
	switch f {
	case FormatGPS:
		return "gps"
	case FormatGEO:
		return "geo"
	case FormatPawGPS:
		return "paw"
	default:
		return "unknown"
	}
}

// Record is one parsed and validated position file.
type Record struct {
	Format    Format
	SSID      string // may be empty
	MAC       string // 12 alphanumeric characters
	Latitude  float64
	Longitude float64
	Accuracy  *float64 // nil when the source carries none
	FirstSeen int64    // unix seconds
	LastSeen  int64    // unix seconds
	Path      string
}

var (
	macRegex  = regexp.MustCompile(`.*_?([a-zA-Z0-9]{12})\.(?:gps|geo|paw-gps)\.json`)
	ssidRegex = regexp.MustCompile(`(.+)_[a-zA-Z0-9]{12}\.(?:gps|geo|paw-gps)\.json`)
)

// FormatFromName returns the format encoded in a filename's suffix.
func FormatFromName(name string) (Format, bool) {
	for _, suffix := range Suffixes {
		if strings.HasSuffix(name, suffix) {
			return suffixFormats[suffix], true
		}
	}
	return 0, false
}

// IsPositionFile reports whether name carries one of the position suffixes.
func IsPositionFile(name string) bool {
	_, ok := FormatFromName(name)
	return ok
}

// MACFromName extracts the 12-character MAC token preceding the type suffix.
func MACFromName(name string) (string, bool) {
	m := macRegex.FindStringSubmatch(name)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// SSIDFromName extracts the SSID prefix preceding "_<mac>.<suffix>".
// Returns "" when the name does not match.
func SSIDFromName(name string) string {
	m := ssidRegex.FindStringSubmatch(name)
	if m == nil {
		return ""
	}
	return m[1]
}
