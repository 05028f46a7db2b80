package domain

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// UnitFamilyName groups units that can be compared with each other
type UnitFamilyName string

const (
	FamilyUnknown UnitFamilyName = ""
	FamilyLiquid  UnitFamilyName = "liquid"
	FamilyWeight  UnitFamilyName = "weight"
	FamilyCount   UnitFamilyName = "count"
)

// unitAliases maps receipt and model spellings to the canonical unit
var unitAliases = map[string]string{
	"g": "g", "gr": "g", "grammi": "g", "grammo": "g", "gram": "g", "grams": "g",
	"kg": "kg", "chilo": "kg", "chili": "kg", "kilo": "kg",
	"l": "L", "lt": "L", "litro": "L", "litri": "L", "liter": "L", "liters": "L",
	"ml": "ml", "millilitri": "ml",
	"cl": "cl", "centilitri": "cl",
	"pz": "pz", "pezzi": "pz", "pezzo": "pz", "pc": "pz", "pcs": "pz", "unit": "pz", "units": "pz",
}

var unitFamilies = map[string]UnitFamilyName{
	"L": FamilyLiquid, "ml": FamilyLiquid, "cl": FamilyLiquid,
	"kg": FamilyWeight, "g": FamilyWeight,
	"pz": FamilyCount,
}

// toBase converts a canonical unit into the family base unit (ml, g, pz)
var toBase = map[string]float64{
	"L": 1000, "ml": 1, "cl": 10,
	"kg": 1000, "g": 1,
	"pz": 1,
}

// NormalizeUnit returns the canonical spelling of unit, or "" when unknown
func NormalizeUnit(unit string) string {
	return unitAliases[strings.ToLower(strings.TrimSpace(unit))]
}

// UnitFamily returns the family of unit. Unknown or empty units map to FamilyUnknown.
func UnitFamily(unit string) UnitFamilyName {
	return unitFamilies[NormalizeUnit(unit)]
}

// FamilyUnits lists the canonical units sharing the family of unit, sorted.
// Unknown or empty units return nil.
func FamilyUnits(unit string) []string {
	family := UnitFamily(unit)
	if family == FamilyUnknown {
		return nil
	}
	var units []string
	for u, f := range unitFamilies {
		if f == family {
			units = append(units, u)
		}
	}
	sort.Strings(units)
	return units
}

// SameUnitFamily reports whether a and b may describe the same product.
// A missing or unknown unit on either side is compatible.
func SameUnitFamily(a, b string) bool {
	fa, fb := UnitFamily(a), UnitFamily(b)
	if fa == FamilyUnknown || fb == FamilyUnknown {
		return true
	}
	return fa == fb
}

var sizeRegex = regexp.MustCompile(`^(\d+(?:[.,]\d+)?)\s*([a-zA-Z]+)$`)

// ParseSize splits a size string like "1.5L" or "500 gr" into quantity and
// canonical unit. The quantity is returned as a numeric-only string.
func ParseSize(s string) (string, string, error) {
	m := sizeRegex.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return "", "", fmt.Errorf("%w: unparseable size %q", ErrInvalidRequest, s)
	}
	unit := NormalizeUnit(m[2])
	if unit == "" {
		return "", "", fmt.Errorf("%w: unknown unit %q", ErrInvalidRequest, m[2])
	}
	return strings.ReplaceAll(m[1], ",", "."), unit, nil
}

// ParseQuantity parses a numeric size string, accepting a comma decimal separator
func ParseQuantity(size string) (float64, bool) {
	size = strings.ReplaceAll(strings.TrimSpace(size), ",", ".")
	if size == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(size, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

// BaseQuantity converts size+unit into the family base unit.
// ok is false when the size is not numeric or the unit is unknown.
func BaseQuantity(size, unit string) (float64, UnitFamilyName, bool) {
	v, ok := ParseQuantity(size)
	if !ok {
		return 0, FamilyUnknown, false
	}
	canonical := NormalizeUnit(unit)
	factor, known := toBase[canonical]
	if !known {
		return 0, FamilyUnknown, false
	}
	return v * factor, unitFamilies[canonical], true
}

// RelativeSizeDiff returns |a-b|/a for two sizes, comparing base quantities
// when both units belong to the same family and raw numbers otherwise.
func RelativeSizeDiff(sizeA, unitA, sizeB, unitB string) (float64, bool) {
	a, fa, okA := BaseQuantity(sizeA, unitA)
	b, fb, okB := BaseQuantity(sizeB, unitB)
	if !okA || !okB || fa != fb {
		var okRawA, okRawB bool
		a, okRawA = ParseQuantity(sizeA)
		b, okRawB = ParseQuantity(sizeB)
		if !okRawA || !okRawB {
			return 0, false
		}
	}
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff / a, true
}

// SizeWithinTolerance reports whether a candidate size lies within the
// tolerance band of the wanted size. Missing sizes are always accepted.
func SizeWithinTolerance(wantSize, wantUnit, gotSize, gotUnit string, tolerance float64) bool {
	diff, ok := RelativeSizeDiff(wantSize, wantUnit, gotSize, gotUnit)
	if !ok {
		return true
	}
	return diff <= tolerance
}
