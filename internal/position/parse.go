package position

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/hpungsan/gpsmap/internal/errors"
)

// document holds every coordinate layout a position file may carry.
// Each *Set flag records whether the key was present, even when its value was null,
// because a present key overwrites values from keys checked earlier.
type document struct {
	latitude, longitude       *float64 // "Latitude" / "Longitude"
	latitudeSet, longitudeSet bool
	lat, long                 *float64 // legacy flat "lat" / "long"
	latSet, longSet           bool
	locLat, locLng            *float64 // nested "location.lat" / "location.lng"
	locLatSet, locLngSet      bool
	accuracy                  *float64
	ts                        *json.Number
	updated                   *string
}

// fix is the decoded position before validation.
type fix struct {
	lat, lng *float64
	acc      *float64
}

// decoders maps each format to its decoding function.
var decoders = map[Format]func(*document) fix{
	FormatGPS:    decodeGPS,
	FormatGEO:    decodeGEO,
	FormatPawGPS: decodePawGPS,
}

func decodeGPS(doc *document) fix {
	f := doc.coordinates()
	f.acc = ptr(DefaultAccuracy)
	return f
}

func decodeGEO(doc *document) fix {
	f := doc.coordinates()
	f.acc = doc.accuracy
	return f
}

func decodePawGPS(doc *document) fix {
	f := doc.coordinates()
	f.acc = ptr(DefaultAccuracy)
	return f
}

// coordinates resolves latitude and longitude. Keys are applied in the order
// Latitude/Longitude, lat/long, location.lat/location.lng; the last present key wins.
func (d *document) coordinates() fix {
	var f fix
	if d.latitudeSet {
		f.lat = d.latitude
	}
	if d.latSet {
		f.lat = d.lat
	}
	if d.locLatSet {
		f.lat = d.locLat
	}
	if d.longitudeSet {
		f.lng = d.longitude
	}
	if d.longSet {
		f.lng = d.long
	}
	if d.locLngSet {
		f.lng = d.locLng
	}
	return f
}

// Parse reads the position file at path and returns a validated Record.
// capturePath is the paired capture file whose creation time becomes FirstSeen;
// when empty, the position file's own creation time is used.
func Parse(path, capturePath string) (Record, error) {
	name := filepath.Base(path)
	format, ok := FormatFromName(name)
	if !ok {
		return Record{}, errors.NewValidation(path, "not a position file")
	}

	mac, ok := MACFromName(name)
	if !ok {
		return Record{}, errors.NewValidation(path, "mac can't be parsed from filename")
	}

	info, err := os.Stat(path)
	if err != nil {
		return Record{}, errors.NewIO(path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Record{}, errors.NewIO(path, err)
	}

	doc, err := decodeDocument(path, data)
	if err != nil {
		return Record{}, err
	}

	f := decoders[format](doc)
	if err := validate(path, f); err != nil {
		return Record{}, err
	}

	firstSeen := fileCreated(info)
	if capturePath != "" {
		capInfo, err := os.Stat(capturePath)
		if err != nil {
			return Record{}, errors.NewIO(capturePath, err)
		}
		firstSeen = fileCreated(capInfo)
	}

	lastSeen, err := doc.lastSeen(path, info)
	if err != nil {
		return Record{}, err
	}

	return Record{
		Format:    format,
		SSID:      SSIDFromName(name),
		MAC:       mac,
		Latitude:  *f.lat,
		Longitude: *f.lng,
		Accuracy:  f.acc,
		FirstSeen: unixRounded(firstSeen),
		LastSeen:  lastSeen,
		Path:      path,
	}, nil
}

// validate rejects missing or zero coordinates.
func validate(path string, f fix) error {
	switch {
	case f.lat == nil:
		return errors.NewValidation(path, "latitude is missing")
	case *f.lat == 0:
		return errors.NewValidation(path, "latitude is 0")
	case f.lng == nil:
		return errors.NewValidation(path, "longitude is missing")
	case *f.lng == 0:
		return errors.NewValidation(path, "longitude is 0")
	}
	return nil
}

// lastSeen prefers "ts" (unix epoch), then "Updated" (RFC 3339), then the file mtime.
func (d *document) lastSeen(path string, info os.FileInfo) (int64, error) {
	if d.ts != nil {
		v, err := d.ts.Float64()
		if err != nil {
			return 0, errors.NewValidation(path, fmt.Sprintf("ts is not a number (%s)", d.ts.String()))
		}
		r := math.RoundToEven(v)
		if r < math.MinInt64 || r >= math.MaxInt64 {
			return 0, errors.NewValidation(path, fmt.Sprintf("ts is out of range (%s)", d.ts.String()))
		}
		return int64(r), nil
	}
	if d.updated != nil {
		t, err := parseUpdated(*d.updated)
		if err != nil {
			return 0, errors.NewValidation(path, fmt.Sprintf("Updated is not a timestamp (%q)", *d.updated))
		}
		return unixRounded(t), nil
	}
	return unixRounded(info.ModTime()), nil
}

var updatedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// parseUpdated parses gpsd-style timestamps such as "2019-10-05T23:12:40.422996+01:00".
// Layouts without an offset are read as local time.
func parseUpdated(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range updatedLayouts {
		t, err := time.ParseInLocation(layout, s, time.Local)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// unixRounded converts t to unix seconds, rounding half to even.
func unixRounded(t time.Time) int64 {
	return int64(math.RoundToEven(float64(t.UnixNano()) / 1e9))
}

func ptr(v float64) *float64 { return &v }

// decodeDocument unmarshals data using exact key names.
func decodeDocument(path string, data []byte) (*document, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		var typeErr *json.UnmarshalTypeError
		if stderrors.As(err, &typeErr) {
			return nil, errors.NewValidation(path, "position data is not a JSON object")
		}
		return nil, errors.NewParse(path, err)
	}

	doc := &document{}
	var err error
	if doc.latitude, doc.latitudeSet, err = numberField(raw, "Latitude"); err != nil {
		return nil, errors.NewValidation(path, err.Error())
	}
	if doc.longitude, doc.longitudeSet, err = numberField(raw, "Longitude"); err != nil {
		return nil, errors.NewValidation(path, err.Error())
	}
	if doc.lat, doc.latSet, err = numberField(raw, "lat"); err != nil {
		return nil, errors.NewValidation(path, err.Error())
	}
	if doc.long, doc.longSet, err = numberField(raw, "long"); err != nil {
		return nil, errors.NewValidation(path, err.Error())
	}
	if loc, ok := raw["location"]; ok {
		var nested map[string]json.RawMessage
		// null or non-object locations carry no coordinates
		if json.Unmarshal(loc, &nested) == nil && nested != nil {
			if doc.locLat, doc.locLatSet, err = numberField(nested, "lat"); err != nil {
				return nil, errors.NewValidation(path, "location."+err.Error())
			}
			if doc.locLng, doc.locLngSet, err = numberField(nested, "lng"); err != nil {
				return nil, errors.NewValidation(path, "location."+err.Error())
			}
		}
	}
	if doc.accuracy, _, err = numberField(raw, "accuracy"); err != nil {
		return nil, errors.NewValidation(path, err.Error())
	}
	if v, ok := raw["ts"]; ok && !isNull(v) {
		n := json.Number(bytes.TrimSpace(v))
		doc.ts = &n
	}
	if v, ok := raw["Updated"]; ok && !isNull(v) {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return nil, errors.NewValidation(path, "Updated is not a string")
		}
		doc.updated = &s
	}
	return doc, nil
}

// numberField decodes raw[key] as a number. A present null yields (nil, true, nil).
func numberField(raw map[string]json.RawMessage, key string) (*float64, bool, error) {
	v, ok := raw[key]
	if !ok {
		return nil, false, nil
	}
	if isNull(v) {
		return nil, true, nil
	}
	var f float64
	if err := json.Unmarshal(v, &f); err != nil {
		return nil, true, fmt.Errorf("%s is not a number", key)
	}
	return &f, true, nil
}

func isNull(v json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}
