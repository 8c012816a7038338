// Package classify maps advertised peripheral names onto the set of
// wearable device families the product supports.
package classify

import (
	"regexp"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/xevox/wearlink/internal/device"
)

// Device type identifiers understood by the backend.
const (
	TypeET475          = "et475"
	TypeHBand          = "hband"
	TypeMiBand         = "mi_band"
	TypeAmazfit        = "amazfit"
	TypeVeePoo         = "veepoo"
	TypeSmartwatch     = "smartwatch"
	TypeFitnessTracker = "fitness_tracker"
)

// UnknownManufacturer is assigned when a name matched a generic pattern
// that maps to no particular brand.
const UnknownManufacturer = "Unknown"

// ClassifiedDevice is an immutable snapshot derived from one peripheral
// advertisement. One instance exists per distinct peripheral id for the
// lifetime of a scan session.
type ClassifiedDevice struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Address        string `json:"address"`
	Manufacturer   string `json:"manufacturer"`
	DeviceType     string `json:"device_type"`
	Supported      bool   `json:"supported"`
	SignalStrength int    `json:"signal_strength"`
	Connectable    bool   `json:"connectable"`
}

// pattern is one entry in the ordered classification table. The table is
// evaluated top-down and the first match wins; ties between overlapping
// patterns are broken by list order, not specificity. That ordering is a
// deliberate, documented simplification carried over from the shipped
// product, so more specific brand patterns are simply listed before the
// generic category terms.
type pattern struct {
	expr string
	re   *regexp.Regexp
}

type brandMeta struct {
	deviceType   string
	manufacturer string
}

var patterns []pattern

// brandTable assigns deviceType/manufacturer for a subset of the patterns.
// Matched names whose pattern has no entry here fall back to the
// fitness_tracker/Unknown defaults. Insertion order mirrors the pattern
// list so the dispatch stays aligned with first-match-wins.
var brandTable = orderedmap.New[string, brandMeta]()

func init() {
	entries := []struct {
		expr string
		meta *brandMeta
	}{
		// Brand families first.
		{`et[\s_-]?475`, &brandMeta{TypeET475, "VeePoo"}},
		{`veepoo`, &brandMeta{TypeVeePoo, "VeePoo"}},
		{`h[\s_-]?band`, &brandMeta{TypeHBand, "HBand"}},
		{`mi[\s_-]?band`, &brandMeta{TypeMiBand, "Xiaomi"}},
		{`amazfit`, &brandMeta{TypeAmazfit, "Amazfit"}},
		{`xiaomi`, &brandMeta{TypeFitnessTracker, "Xiaomi"}},
		{`huawei`, &brandMeta{TypeSmartwatch, "Huawei"}},
		{`samsung|galaxy\s?watch`, &brandMeta{TypeSmartwatch, "Samsung"}},
		{`garmin`, &brandMeta{TypeSmartwatch, "Garmin"}},
		{`fitbit`, &brandMeta{TypeFitnessTracker, "Fitbit"}},
		// Generic category terms. "watch" maps to the smartwatch type; the
		// remaining terms have no brand entry and take the defaults.
		{`smart\s?watch|watch`, &brandMeta{TypeSmartwatch, UnknownManufacturer}},
		{`smart\s?band|band`, nil},
		{`fitness\s?tracker|tracker`, nil},
		{`fitness`, nil},
		{`health`, nil},
		{`sport`, nil},
	}

	for _, e := range entries {
		patterns = append(patterns, pattern{expr: e.expr, re: regexp.MustCompile(e.expr)})
		if e.meta != nil {
			brandTable.Set(e.expr, *e.meta)
		}
	}
}

// Classify maps a discovered peripheral to a ClassifiedDevice, or nil for
// peripherals that are unnamed or match no known pattern. Unmatched
// peripherals are filtered out entirely rather than surfaced as
// "unsupported" entries.
//
// Pure function: deterministic for a given advertised name, no I/O.
func Classify(adv device.Advertisement) *ClassifiedDevice {
	name := strings.TrimSpace(adv.LocalName())
	if name == "" {
		return nil
	}

	matched, ok := matchName(name)
	if !ok {
		return nil
	}

	deviceType := TypeFitnessTracker
	manufacturer := UnknownManufacturer
	if meta, found := brandTable.Get(matched); found {
		deviceType = meta.deviceType
		manufacturer = meta.manufacturer
	}

	return &ClassifiedDevice{
		ID:             adv.ID(),
		Name:           name,
		Address:        adv.Addr(),
		Manufacturer:   manufacturer,
		DeviceType:     deviceType,
		Supported:      true,
		SignalStrength: adv.RSSI(),
		Connectable:    adv.Connectable(),
	}
}

// matchName returns the expression of the first pattern matching the
// normalized name.
func matchName(name string) (string, bool) {
	normalized := strings.ToLower(name)
	for _, p := range patterns {
		if p.re.MatchString(normalized) {
			return p.expr, true
		}
	}
	return "", false
}

// KnownDeviceType reports whether deviceType is one of the identifiers the
// backend accepts.
func KnownDeviceType(deviceType string) bool {
	switch strings.ToLower(deviceType) {
	case TypeET475, TypeHBand, TypeMiBand, TypeAmazfit, TypeVeePoo,
		TypeSmartwatch, TypeFitnessTracker:
		return true
	default:
		return false
	}
}
