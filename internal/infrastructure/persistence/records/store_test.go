package records_test

import (
	"context"
	"testing"
	"time"

	"github.com/jmanzanog/price-reconciler/internal/domain"
	"github.com/jmanzanog/price-reconciler/internal/infrastructure/persistence/memory"
	"github.com/jmanzanog/price-reconciler/internal/infrastructure/persistence/records"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestSeriesStore_RoundTrip(t *testing.T) {
	store := records.NewSeriesStore(memory.NewRecordStore())
	ctx := context.Background()

	series := domain.Series{
		{Date: day(2024, 1, 2), Close: 101.5},
		{Date: day(2024, 1, 3), Close: 102.25},
	}
	require.NoError(t, store.Save(ctx, "Apple Inc", domain.SourceYahoo, series))

	loaded, err := store.Load(ctx, "Apple Inc")
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.True(t, loaded[0].Date.Equal(series[0].Date))
	assert.Equal(t, 102.25, loaded[1].Close)

	source, err := store.Source(ctx, "Apple Inc")
	require.NoError(t, err)
	assert.Equal(t, domain.SourceYahoo, source)

	names, err := store.Names(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Apple Inc"}, names)
}

func TestSeriesStore_LoadMissing(t *testing.T) {
	store := records.NewSeriesStore(memory.NewRecordStore())

	loaded, err := store.Load(context.Background(), "nothing")
	assert.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestSeriesStore_RejectsInvalidSeries(t *testing.T) {
	rs := memory.NewRecordStore()
	store := records.NewSeriesStore(rs)

	unordered := domain.Series{
		{Date: day(2024, 1, 3), Close: 1},
		{Date: day(2024, 1, 2), Close: 1},
	}
	err := store.Save(context.Background(), "x", domain.SourceYahoo, unordered)
	assert.Error(t, err)

	_, err = rs.Get(context.Background(), records.Key("x"))
	assert.ErrorIs(t, err, records.ErrRecordNotFound)
}

func TestSeriesStore_Delete(t *testing.T) {
	store := records.NewSeriesStore(memory.NewRecordStore())
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "x", domain.SourceBinance, domain.Series{{Date: day(2024, 1, 2), Close: 3}}))
	require.NoError(t, store.Delete(ctx, "x"))
	require.NoError(t, store.Delete(ctx, "x"))

	loaded, err := store.Load(ctx, "x")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}
