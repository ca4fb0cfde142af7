package engine

import (
	"sort"

	"github.com/hpungsan/gpsmap/internal/position"
	"github.com/hpungsan/gpsmap/internal/potfile"
)

// UnknownSSID replaces empty SSIDs in the output.
const UnknownSSID = "unknown"

// AccessPoint is one observed network in the output dataset.
// The JSON field names are consumed by the map page and must not change.
type AccessPoint struct {
	SSID       string   `json:"ssid"`
	MAC        string   `json:"mac"`
	Type       string   `json:"type"`
	Lat        float64  `json:"lat"`
	Lng        float64  `json:"lng"`
	Acc        *float64 `json:"acc"`
	FirstSeen  int64    `json:"ts_first"`
	LastSeen   int64    `json:"ts_last"`
	Pass       *string  `json:"pass"`
	PassSource *string  `json:"pass_source"`
}

// Cracked reports whether a password is attached.
func (ap AccessPoint) Cracked() bool {
	return ap.Pass != nil
}

// Dataset maps "<ssid>_<mac>" to its access point.
type Dataset map[string]AccessPoint

// Keys returns the dataset keys in sorted order.
func (d Dataset) Keys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// newAccessPoint builds the output record for rec, attaching a password from creds if one matches.
func newAccessPoint(rec position.Record, creds *potfile.Index) AccessPoint {
	ssid := rec.SSID
	if ssid == "" {
		ssid = UnknownSSID
	}
	ap := AccessPoint{
		SSID:      ssid,
		MAC:       rec.MAC,
		Type:      rec.Format.String(),
		Lat:       rec.Latitude,
		Lng:       rec.Longitude,
		Acc:       rec.Accuracy,
		FirstSeen: rec.FirstSeen,
		LastSeen:  rec.LastSeen,
	}
	if cred, ok := creds.Lookup(rec.MAC, ssid); ok {
		pass := cred.Password
		source := string(cred.Source)
		ap.Pass = &pass
		ap.PassSource = &source
	}
	return ap
}

// key returns the dataset key for ap.
func (ap AccessPoint) key() string {
	return ap.SSID + "_" + ap.MAC
}
