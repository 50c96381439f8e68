package domain

import "context"

// InstrumentRepository stores instrument metadata and index membership.
type InstrumentRepository interface {
	FindByName(ctx context.Context, name string) (*Instrument, error)
	FindAll(ctx context.Context) ([]Instrument, error)
	Create(ctx context.Context, inst *Instrument) error
	Update(ctx context.Context, inst *Instrument) error

	FindIndex(ctx context.Context, name string) (*Index, error)
	FindAllIndices(ctx context.Context) ([]Index, error)
	CreateIndex(ctx context.Context, idx *Index) error
	UpdateIndex(ctx context.Context, idx *Index) error
	IndexComponents(ctx context.Context, indexName string) ([]string, error)
	SetIndexComponents(ctx context.Context, indexName string, components []string) error
}

// SeriesRepository stores close series keyed by instrument name. Load returns
// a nil series and no error when nothing is stored.
type SeriesRepository interface {
	Load(ctx context.Context, name string) (Series, error)
	Save(ctx context.Context, name string, source SourceID, s Series) error
	Delete(ctx context.Context, name string) error
}
