package application

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/jmanzanog/price-reconciler/internal/domain"
	"github.com/jmanzanog/price-reconciler/internal/infrastructure/metrics"
	"github.com/jmanzanog/price-reconciler/internal/infrastructure/referencesite"
)

// InitSourceReferenceSite marks records created by the index sync.
const InitSourceReferenceSite = "reference_site"

// ReferenceSource is the metadata scraper the sync depends on.
type ReferenceSource interface {
	ListIndices(ctx context.Context, bypassFilter bool) ([]referencesite.Listing, error)
	ListComponents(ctx context.Context, indexLink string) ([]referencesite.Listing, error)
	GetAsset(ctx context.Context, link string) (*referencesite.Asset, error)
}

type SyncReport struct {
	Indices        int      `json:"indices"`
	Created        int      `json:"created"`
	Updated        int      `json:"updated"`
	UpToDate       int      `json:"up_to_date"`
	Failed         int      `json:"failed"`
	ChangedIndices []string `json:"changed_indices"`
	Errors         []string `json:"errors,omitempty"`
}

type IndexSyncService struct {
	repo    domain.InstrumentRepository
	source  ReferenceSource
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewIndexSyncService(repo domain.InstrumentRepository, source ReferenceSource, m *metrics.Metrics) *IndexSyncService {
	return &IndexSyncService{
		repo:    repo,
		source:  source,
		metrics: m,
		now:     time.Now,
	}
}

// ListIndices returns every index on the reference site, ignoring filters,
// sorted by country.
func (s *IndexSyncService) ListIndices(ctx context.Context) ([]referencesite.Listing, error) {
	indices, err := s.source.ListIndices(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list indices: %w", err)
	}
	slices.SortStableFunc(indices, func(a, b referencesite.Listing) int {
		return cmp.Compare(a.Country, b.Country)
	})
	return indices, nil
}

// SyncIndices upserts every filtered index, its asset and its components,
// and rewrites the membership of indices whose component set changed.
func (s *IndexSyncService) SyncIndices(ctx context.Context) (*SyncReport, error) {
	indices, err := s.source.ListIndices(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("failed to list indices: %w", err)
	}

	report := &SyncReport{ChangedIndices: []string{}}
	for _, listing := range indices {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("index sync interrupted: %w", err)
		}

		changed, err := s.syncIndex(ctx, listing, report)
		switch {
		case err != nil:
			slog.ErrorContext(ctx, "Failed to sync index", "index", listing.Name, "error", err)
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", listing.Name, err))
			s.metrics.ObserveIndexSync("failed")
		case changed:
			report.ChangedIndices = append(report.ChangedIndices, listing.Name)
			s.metrics.ObserveIndexSync("changed")
		default:
			s.metrics.ObserveIndexSync("unchanged")
		}
		report.Indices++
	}

	slog.InfoContext(ctx, "Index sync finished",
		"indices", report.Indices, "created", report.Created, "updated", report.Updated,
		"changed", len(report.ChangedIndices), "failed", report.Failed)
	return report, nil
}

func (s *IndexSyncService) syncIndex(ctx context.Context, listing referencesite.Listing, report *SyncReport) (bool, error) {
	asset, err := s.upsertAsset(ctx, listing, report)
	if err != nil {
		return false, fmt.Errorf("index asset: %w", err)
	}

	now := s.now().UTC()
	idx, err := s.repo.FindIndex(ctx, listing.Name)
	switch {
	case errors.Is(err, domain.ErrIndexNotFound):
		created := domain.NewIndex(listing.Name, asset.ID, listing.Country)
		created.InitSource = InitSourceReferenceSite
		if err := s.repo.CreateIndex(ctx, &created); err != nil {
			return false, err
		}
		slog.InfoContext(ctx, "Index created", "index", listing.Name)
	case err != nil:
		return false, err
	case idx.AssetID != asset.ID || idx.Country != listing.Country:
		idx.AssetID = asset.ID
		idx.Country = listing.Country
		idx.UpdatedAt = now
		if err := s.repo.UpdateIndex(ctx, idx); err != nil {
			return false, err
		}
		slog.InfoContext(ctx, "Index updated", "index", listing.Name)
	}

	components, err := s.source.ListComponents(ctx, listing.Link)
	if err != nil {
		return false, fmt.Errorf("components: %w", err)
	}

	names := make([]string, 0, len(components))
	for _, c := range components {
		inst, err := s.upsertAsset(ctx, c, report)
		if err != nil {
			slog.WarnContext(ctx, "Skipping component", "index", listing.Name, "component", c.Name, "error", err)
			continue
		}
		names = append(names, inst.Name)
	}

	prev, err := s.repo.IndexComponents(ctx, listing.Name)
	if err != nil {
		return false, err
	}
	added, removed := domain.MembershipDiff(prev, names)
	if len(added) == 0 && len(removed) == 0 {
		return false, nil
	}
	for _, name := range removed {
		slog.InfoContext(ctx, "Removing index component", "index", listing.Name, "component", name)
	}
	for _, name := range added {
		slog.InfoContext(ctx, "Adding index component", "index", listing.Name, "component", name)
	}
	if err := s.repo.SetIndexComponents(ctx, listing.Name, names); err != nil {
		return false, err
	}
	return true, nil
}

// upsertAsset creates or refreshes the instrument behind a listing. Records
// already updated today are returned without scraping. A failed scrape of a
// known instrument keeps the stored record.
func (s *IndexSyncService) upsertAsset(ctx context.Context, listing referencesite.Listing, report *SyncReport) (*domain.Instrument, error) {
	now := s.now().UTC()

	existing, err := s.repo.FindByName(ctx, listing.Name)
	if err != nil && !errors.Is(err, domain.ErrInstrumentNotFound) {
		return nil, err
	}
	if existing != nil && existing.UpToDate(now) {
		report.UpToDate++
		return existing, nil
	}

	asset, err := s.source.GetAsset(ctx, listing.Link)
	if err != nil {
		report.Failed++
		if existing != nil {
			slog.WarnContext(ctx, "Keeping stored asset after failed scrape", "asset", listing.Name, "error", err)
			return existing, nil
		}
		return nil, err
	}

	if existing == nil {
		inst := domain.NewInstrument(listing.Name, asset.Kind)
		applyAsset(&inst, listing, asset)
		inst.InitSource = InitSourceReferenceSite
		if err := s.repo.Create(ctx, &inst); err != nil {
			return nil, err
		}
		report.Created++
		slog.InfoContext(ctx, "Asset created", "asset", listing.Name, "kind", inst.Kind, "pending_ticker", inst.PendingTicker)
		return &inst, nil
	}

	applyAsset(existing, listing, asset)
	existing.UpdatedAt = now
	if err := s.repo.Update(ctx, existing); err != nil {
		return nil, err
	}
	report.Updated++
	slog.InfoContext(ctx, "Asset updated", "asset", listing.Name)
	return existing, nil
}

func applyAsset(inst *domain.Instrument, listing referencesite.Listing, asset *referencesite.Asset) {
	inst.Kind = asset.Kind
	inst.Link = listing.Link
	if listing.Country != "" {
		inst.Country = listing.Country
	}
	if asset.Currency != "" {
		inst.Currency = asset.Currency
	}
	if asset.PendingTicker != "" {
		inst.PendingTicker = asset.PendingTicker
	}
	inst.ReferenceClose = asset.PrevClose
	inst.Details = asset.Details
}
