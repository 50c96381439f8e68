package referencesite

import "slices"

// Listing types a filter rule can be keyed by.
const (
	ListingIndex = "index"
	ListingAsset = "asset"
)

// FieldValues maps a listing field ("name", "country") to accepted values.
type FieldValues map[string][]string

// Rule is the include/exclude pair for one listing type.
type Rule struct {
	Include FieldValues `yaml:"include"`
	Exclude FieldValues `yaml:"exclude"`
}

// Filters holds one Rule per listing type. Missing types allow everything.
type Filters map[string]Rule

// Allowed decides whether l passes the rule for listingType:
// an include hit allows, then an exclude hit rejects. With no hit, the item
// is allowed only when both lists are empty.
func (f Filters) Allowed(listingType string, l Listing) bool {
	rule, ok := f[listingType]
	if !ok {
		return true
	}
	if rule.Include.matches(l) {
		return true
	}
	if rule.Exclude.matches(l) {
		return false
	}
	return rule.Include.empty() && rule.Exclude.empty()
}

func (fv FieldValues) empty() bool {
	for _, values := range fv {
		if len(values) > 0 {
			return false
		}
	}
	return true
}

func (fv FieldValues) matches(l Listing) bool {
	for field, values := range fv {
		if len(values) > 0 && slices.Contains(values, l.field(field)) {
			return true
		}
	}
	return false
}
