package application

import (
	"context"

	"github.com/jmanzanog/price-reconciler/internal/domain"
	"github.com/jmanzanog/price-reconciler/internal/infrastructure/referencesite"
	"github.com/stretchr/testify/mock"
)

type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) Get(ctx context.Context, ticker string, kind domain.Kind) (domain.SourceID, domain.Series, error) {
	args := m.Called(ctx, ticker, kind)
	series, _ := args.Get(1).(domain.Series)
	return args.Get(0).(domain.SourceID), series, args.Error(2)
}

type mockSeriesRepository struct {
	mock.Mock
}

func (m *mockSeriesRepository) Load(ctx context.Context, name string) (domain.Series, error) {
	args := m.Called(ctx, name)
	series, _ := args.Get(0).(domain.Series)
	return series, args.Error(1)
}

func (m *mockSeriesRepository) Save(ctx context.Context, name string, source domain.SourceID, s domain.Series) error {
	return m.Called(ctx, name, source, s).Error(0)
}

func (m *mockSeriesRepository) Delete(ctx context.Context, name string) error {
	return m.Called(ctx, name).Error(0)
}

type mockReferenceSource struct {
	mock.Mock
}

func (m *mockReferenceSource) ListIndices(ctx context.Context, bypassFilter bool) ([]referencesite.Listing, error) {
	args := m.Called(ctx, bypassFilter)
	listings, _ := args.Get(0).([]referencesite.Listing)
	return listings, args.Error(1)
}

func (m *mockReferenceSource) ListComponents(ctx context.Context, indexLink string) ([]referencesite.Listing, error) {
	args := m.Called(ctx, indexLink)
	listings, _ := args.Get(0).([]referencesite.Listing)
	return listings, args.Error(1)
}

func (m *mockReferenceSource) GetAsset(ctx context.Context, link string) (*referencesite.Asset, error) {
	args := m.Called(ctx, link)
	asset, _ := args.Get(0).(*referencesite.Asset)
	return asset, args.Error(1)
}
