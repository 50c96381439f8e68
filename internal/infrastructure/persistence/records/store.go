// Package records persists close series as msgpack blobs in a key/value
// record store.
package records

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmanzanog/price-reconciler/internal/domain"
	"github.com/vmihailenco/msgpack/v5"
)

// ErrRecordNotFound is returned by a Store when the key does not exist.
var ErrRecordNotFound = errors.New("record not found")

// KeyPrefix namespaces series records inside the store.
const KeyPrefix = "timeseries:"

// Store is a flat key/value record store.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
}

type seriesRecord struct {
	Source  string         `msgpack:"source"`
	SavedAt time.Time      `msgpack:"saved_at"`
	Points  []domain.Point `msgpack:"points"`
}

// SeriesStore implements domain.SeriesRepository on top of a Store.
type SeriesStore struct {
	store Store
	now   func() time.Time
}

func NewSeriesStore(store Store) *SeriesStore {
	return &SeriesStore{store: store, now: time.Now}
}

func Key(name string) string {
	return KeyPrefix + name
}

func (s *SeriesStore) Load(ctx context.Context, name string) (domain.Series, error) {
	rec, err := s.load(ctx, name)
	if err != nil || rec == nil {
		return nil, err
	}
	return domain.Series(rec.Points), nil
}

// Source reports which provider produced the stored series, or "" when
// nothing is stored.
func (s *SeriesStore) Source(ctx context.Context, name string) (domain.SourceID, error) {
	rec, err := s.load(ctx, name)
	if err != nil || rec == nil {
		return "", err
	}
	return domain.SourceID(rec.Source), nil
}

func (s *SeriesStore) load(ctx context.Context, name string) (*seriesRecord, error) {
	raw, err := s.store.Get(ctx, Key(name))
	if errors.Is(err, ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load series %s: %w", name, err)
	}

	var rec seriesRecord
	if err := msgpack.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode series %s: %w", name, err)
	}
	for i := range rec.Points {
		rec.Points[i].Date = rec.Points[i].Date.UTC()
	}
	return &rec, nil
}

func (s *SeriesStore) Save(ctx context.Context, name string, source domain.SourceID, series domain.Series) error {
	if err := series.Validate(); err != nil {
		return fmt.Errorf("refusing to store series %s: %w", name, err)
	}

	raw, err := msgpack.Marshal(seriesRecord{
		Source:  string(source),
		SavedAt: s.now().UTC(),
		Points:  series,
	})
	if err != nil {
		return fmt.Errorf("failed to encode series %s: %w", name, err)
	}
	if err := s.store.Set(ctx, Key(name), raw); err != nil {
		return fmt.Errorf("failed to save series %s: %w", name, err)
	}
	return nil
}

func (s *SeriesStore) Delete(ctx context.Context, name string) error {
	if err := s.store.Delete(ctx, Key(name)); err != nil && !errors.Is(err, ErrRecordNotFound) {
		return fmt.Errorf("failed to delete series %s: %w", name, err)
	}
	return nil
}

// Names lists the instruments that have a stored series.
func (s *SeriesStore) Names(ctx context.Context) ([]string, error) {
	keys, err := s.store.Keys(ctx, KeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list series: %w", err)
	}
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		names = append(names, strings.TrimPrefix(k, KeyPrefix))
	}
	return names, nil
}
