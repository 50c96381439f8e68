package domain

// DefaultPriceTolerance is the band factor used when none is configured.
const DefaultPriceTolerance = 0.9

// PricesConsistent reports whether a freshly fetched close agrees with the
// reference close: fetched*tolerance < reference < fetched/tolerance.
// The band is relative to the fetched price, not to the reference.
func PricesConsistent(fetched, reference, tolerance float64) bool {
	return fetched*tolerance < reference && fetched/tolerance > reference
}
