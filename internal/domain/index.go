package domain

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// Index is a market index and its component membership.
// Components holds instrument names; AssetID points at the Instrument
// carrying the index level itself.
type Index struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	AssetID    string    `json:"asset_id"`
	Country    string    `json:"country,omitempty"`
	InitSource string    `json:"init_source,omitempty"`
	Components []string  `json:"components"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func NewIndex(name, assetID, country string) Index {
	now := time.Now().UTC()
	return Index{
		ID:         uuid.New().String(),
		Name:       name,
		AssetID:    assetID,
		Country:    country,
		Components: []string{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// MembershipDiff returns the names present only in next (added) and only in
// prev (removed). Both empty means the sets are equal.
func MembershipDiff(prev, next []string) (added, removed []string) {
	for _, n := range next {
		if !slices.Contains(prev, n) && !slices.Contains(added, n) {
			added = append(added, n)
		}
	}
	for _, p := range prev {
		if !slices.Contains(next, p) && !slices.Contains(removed, p) {
			removed = append(removed, p)
		}
	}
	return added, removed
}
