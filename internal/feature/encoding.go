package feature

import "strings"

// Merchant category and subtype encoding. Codes are frozen: they are the
// integer labels the model was trained on, so entries may be appended but
// never renumbered.

var categoryCodes = map[string]int{
	"RETAIL":        0,
	"GROCERY":       1,
	"DINING":        2,
	"TRAVEL":        3,
	"ENTERTAINMENT": 4,
	"UTILITIES":     5,
	"HEALTH":        6,
	"FUEL":          7,
	"SERVICES":      8,
	"EDUCATION":     9,
}

// subtypeCodes declares the valid subtype set per category. A subtype is
// only meaningful within its category.
var subtypeCodes = map[string]map[string]int{
	"RETAIL": {
		"ONLINE":      0,
		"IN_STORE":    1,
		"MARKETPLACE": 2,
	},
	"GROCERY": {
		"SUPERMARKET": 0,
		"CONVENIENCE": 1,
		"DELIVERY":    2,
	},
	"DINING": {
		"RESTAURANT":  0,
		"FAST_FOOD":   1,
		"COFFEE_SHOP": 2,
		"BAR":         3,
	},
	"TRAVEL": {
		"AIRLINE":   0,
		"HOTEL":     1,
		"CAR_HIRE":  2,
		"RAIL":      3,
		"RIDESHARE": 4,
	},
	"ENTERTAINMENT": {
		"STREAMING": 0,
		"TICKETS":   1,
		"GAMING":    2,
	},
	"UTILITIES": {
		"POWER":    0,
		"WATER":    1,
		"TELECOM":  2,
		"INTERNET": 3,
	},
	"HEALTH": {
		"PHARMACY": 0,
		"CLINIC":   1,
		"FITNESS":  2,
	},
	"FUEL": {
		"STATION":  0,
		"CHARGING": 1,
	},
	"SERVICES": {
		"ONLINE":       0,
		"PROFESSIONAL": 1,
		"REPAIR":       2,
	},
	"EDUCATION": {
		"TUITION": 0,
		"BOOKS":   1,
		"COURSES": 2,
	},
}

// EncodeCategory maps a merchant category label to its stable integer
// code. Lookup is case-insensitive; unknown labels are an error, never a
// default.
func EncodeCategory(category string) (int, error) {
	code, ok := categoryCodes[normalizeLabel(category)]
	if !ok {
		return 0, &UnknownCategoryError{Category: category}
	}
	return code, nil
}

// EncodeSubtype maps a merchant subtype label to its integer code within
// the given category. The subtype must belong to the category's declared
// set.
func EncodeSubtype(category, subtype string) (int, error) {
	cat := normalizeLabel(category)
	set, ok := subtypeCodes[cat]
	if !ok {
		return 0, &UnknownCategoryError{Category: category}
	}
	code, ok := set[normalizeLabel(subtype)]
	if !ok {
		return 0, &UnknownCategoryError{Category: category, Subtype: subtype}
	}
	return code, nil
}

// Categories returns the known category labels.
func Categories() []string {
	out := make([]string, 0, len(categoryCodes))
	for c := range categoryCodes {
		out = append(out, c)
	}
	return out
}

// normalizeLabel folds free-text labels ("coffee_shop", "Coffee Shop")
// onto the canonical uppercase underscore form.
func normalizeLabel(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, "-", "_")
	return strings.ToUpper(s)
}
