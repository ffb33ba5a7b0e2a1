package area

import (
	"errors"
	"math"
	"strings"

	"site-attendance-backend/internal/geo"
	"site-attendance-backend/internal/model"
	"site-attendance-backend/internal/scancode"
)

// ErrNotRecognized is reported to callers when no matching strategy selects
// an area. Proceeding without an area is an explicit caller decision, never
// an automatic fallback.
var ErrNotRecognized = errors.New("area code not recognized")

// MatchKind records which strategy selected a work area.
type MatchKind string

const (
	MatchExplicitID MatchKind = "explicit_id"
	MatchScanCode   MatchKind = "scan_code"
	MatchScanID     MatchKind = "scan_id"
	MatchScanName   MatchKind = "scan_name"
	MatchNearest    MatchKind = "nearest"
)

// Resolved is the outcome of matching a decoded payload or an explicit
// selection against the project catalog.
type Resolved struct {
	Area      model.WorkArea `json:"area"`
	MatchedBy MatchKind      `json:"matched_by"`
}

// Resolve selects one work area from the catalog for a decoded scan payload.
// Strategies are tried in a fixed order and the first match wins: explicit
// area id hint, exact scan code, literal code as area id, then
// case-insensitive name or alias. A nil result means the code is not
// recognized; falling back to the nearest area is a separate, explicit mode
// (see Nearest), never automatic.
func Resolve(decoded scancode.Decoded, catalog []model.WorkArea) *Resolved {
	if decoded.AreaIDHint != "" {
		for i := range catalog {
			if catalog[i].ID == decoded.AreaIDHint {
				return &Resolved{Area: catalog[i], MatchedBy: MatchExplicitID}
			}
		}
	}

	if decoded.Code == "" {
		return nil
	}

	for i := range catalog {
		if catalog[i].ScanCode != "" && catalog[i].ScanCode == decoded.Code {
			return &Resolved{Area: catalog[i], MatchedBy: MatchScanCode}
		}
	}

	for i := range catalog {
		if catalog[i].ID == decoded.Code {
			return &Resolved{Area: catalog[i], MatchedBy: MatchScanID}
		}
	}

	for i := range catalog {
		if strings.EqualFold(catalog[i].Name, decoded.Code) {
			return &Resolved{Area: catalog[i], MatchedBy: MatchScanName}
		}
		for _, alias := range catalog[i].Aliases {
			if strings.EqualFold(alias.Alias, decoded.Code) {
				return &Resolved{Area: catalog[i], MatchedBy: MatchScanName}
			}
		}
	}

	return nil
}

// Nearest selects the catalog area whose center is closest to the given
// position. It is the manual selection mode used when no code was scanned;
// a nil result means the catalog is empty.
func Nearest(position geo.Coordinate, catalog []model.WorkArea) *Resolved {
	best := -1
	bestDistance := math.MaxFloat64
	for i := range catalog {
		if d := geo.Distance(position, catalog[i].Center()); d < bestDistance {
			best = i
			bestDistance = d
		}
	}
	if best < 0 {
		return nil
	}
	return &Resolved{Area: catalog[best], MatchedBy: MatchNearest}
}
