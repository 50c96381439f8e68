package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmanzanog/price-reconciler/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type instrumentModel struct {
	ID             string    `gorm:"primaryKey;size:36"`
	Name           string    `gorm:"uniqueIndex;size:255;not null"`
	Kind           string    `gorm:"size:1;not null"`
	Ticker         string    `gorm:"size:64"`
	PendingTicker  string    `gorm:"size:64"`
	InvalidTickers string    `gorm:"type:text;not null;default:'[]'"`
	Country        string    `gorm:"size:128"`
	Currency       string    `gorm:"size:16"`
	Link           string    `gorm:"size:512"`
	ReferenceClose string    `gorm:"type:text"`
	Dividend       string    `gorm:"type:text"`
	Beta           string    `gorm:"type:text"`
	EPS            string    `gorm:"column:eps;type:text"`
	Shares         string    `gorm:"type:text"`
	MarketCap      string    `gorm:"type:text"`
	InitSource     string    `gorm:"size:64"`
	DataSource     string    `gorm:"size:32"`
	CreatedAt      time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime:false"`
	LastRefresh    *time.Time
}

func (instrumentModel) TableName() string { return "instruments" }

type indexModel struct {
	ID         string    `gorm:"primaryKey;size:36"`
	Name       string    `gorm:"uniqueIndex;size:255;not null"`
	AssetID    string    `gorm:"size:36"`
	Country    string    `gorm:"size:128"`
	InitSource string    `gorm:"size:64"`
	CreatedAt  time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime:false"`
}

func (indexModel) TableName() string { return "indices" }

type componentModel struct {
	IndexName      string `gorm:"primaryKey;size:255"`
	InstrumentName string `gorm:"primaryKey;size:255"`
}

func (componentModel) TableName() string { return "index_components" }

// GormRepository implements domain.InstrumentRepository using GORM.
type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

// AutoMigrate applies schema changes to the database
func (r *GormRepository) AutoMigrate() error {
	return r.db.AutoMigrate(&instrumentModel{}, &indexModel{}, &componentModel{})
}

func (r *GormRepository) FindByName(ctx context.Context, name string) (*domain.Instrument, error) {
	var m instrumentModel
	if err := r.db.WithContext(ctx).Where("name = ?", name).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrInstrumentNotFound, name)
		}
		return nil, fmt.Errorf("failed to find instrument: %w", err)
	}
	return m.toDomain()
}

func (r *GormRepository) FindAll(ctx context.Context) ([]domain.Instrument, error) {
	var models []instrumentModel
	if err := r.db.WithContext(ctx).Order("name").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to find instruments: %w", err)
	}

	out := make([]domain.Instrument, 0, len(models))
	for i := range models {
		inst, err := models[i].toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, *inst)
	}
	return out, nil
}

func (r *GormRepository) Create(ctx context.Context, inst *domain.Instrument) error {
	return r.upsertInstrument(ctx, inst)
}

func (r *GormRepository) Update(ctx context.Context, inst *domain.Instrument) error {
	return r.upsertInstrument(ctx, inst)
}

func (r *GormRepository) upsertInstrument(ctx context.Context, inst *domain.Instrument) error {
	m, err := instrumentFromDomain(inst)
	if err != nil {
		return err
	}

	err = r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"kind", "ticker", "pending_ticker", "invalid_tickers", "country", "currency", "link",
			"reference_close", "dividend", "beta", "eps", "shares", "market_cap",
			"init_source", "data_source", "updated_at", "last_refresh",
		}),
	}).Create(m).Error
	if err != nil {
		slog.ErrorContext(ctx, "Failed to save instrument", "name", inst.Name, "error", err)
		return fmt.Errorf("failed to save instrument: %w", err)
	}
	return nil
}

func (r *GormRepository) FindIndex(ctx context.Context, name string) (*domain.Index, error) {
	var m indexModel
	if err := r.db.WithContext(ctx).Where("name = ?", name).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrIndexNotFound, name)
		}
		return nil, fmt.Errorf("failed to find index: %w", err)
	}

	idx := m.toDomain()
	components, err := r.IndexComponents(ctx, name)
	if err != nil {
		return nil, err
	}
	idx.Components = components
	return &idx, nil
}

func (r *GormRepository) FindAllIndices(ctx context.Context) ([]domain.Index, error) {
	var models []indexModel
	if err := r.db.WithContext(ctx).Order("country").Order("name").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to find indices: %w", err)
	}

	out := make([]domain.Index, 0, len(models))
	for _, m := range models {
		idx := m.toDomain()
		components, err := r.IndexComponents(ctx, m.Name)
		if err != nil {
			return nil, err
		}
		idx.Components = components
		out = append(out, idx)
	}
	return out, nil
}

func (r *GormRepository) CreateIndex(ctx context.Context, idx *domain.Index) error {
	return r.upsertIndex(ctx, idx)
}

func (r *GormRepository) UpdateIndex(ctx context.Context, idx *domain.Index) error {
	return r.upsertIndex(ctx, idx)
}

func (r *GormRepository) upsertIndex(ctx context.Context, idx *domain.Index) error {
	m := indexModel{
		ID:         idx.ID,
		Name:       idx.Name,
		AssetID:    idx.AssetID,
		Country:    idx.Country,
		InitSource: idx.InitSource,
		CreatedAt:  idx.CreatedAt,
		UpdatedAt:  idx.UpdatedAt,
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"asset_id", "country", "init_source", "updated_at"}),
	}).Create(&m).Error
	if err != nil {
		return fmt.Errorf("failed to save index: %w", err)
	}
	return nil
}

func (r *GormRepository) IndexComponents(ctx context.Context, indexName string) ([]string, error) {
	components := []string{}
	err := r.db.WithContext(ctx).Model(&componentModel{}).
		Where("index_name = ?", indexName).
		Order("instrument_name").
		Pluck("instrument_name", &components).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find components: %w", err)
	}
	return components, nil
}

func (r *GormRepository) SetIndexComponents(ctx context.Context, indexName string, components []string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("index_name = ?", indexName).Delete(&componentModel{}).Error; err != nil {
			return fmt.Errorf("failed to clear components: %w", err)
		}
		if len(components) == 0 {
			return nil
		}

		rows := make([]componentModel, 0, len(components))
		for _, name := range components {
			rows = append(rows, componentModel{IndexName: indexName, InstrumentName: name})
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error; err != nil {
			return fmt.Errorf("failed to insert components: %w", err)
		}
		return nil
	})
}

func instrumentFromDomain(inst *domain.Instrument) (*instrumentModel, error) {
	invalid := inst.InvalidTickers
	if invalid == nil {
		invalid = []string{}
	}
	encoded, err := json.Marshal(invalid)
	if err != nil {
		return nil, fmt.Errorf("encoding invalid tickers: %w", err)
	}

	m := &instrumentModel{
		ID:             inst.ID,
		Name:           inst.Name,
		Kind:           string(inst.Kind),
		Ticker:         inst.Ticker,
		PendingTicker:  inst.PendingTicker,
		InvalidTickers: string(encoded),
		Country:        inst.Country,
		Currency:       inst.Currency,
		Link:           inst.Link,
		ReferenceClose: inst.ReferenceClose.String(),
		Dividend:       inst.Details.Dividend.String(),
		Beta:           inst.Details.Beta.String(),
		EPS:            inst.Details.EPS.String(),
		Shares:         inst.Details.Shares.String(),
		MarketCap:      inst.Details.MarketCap.String(),
		InitSource:     inst.InitSource,
		DataSource:     string(inst.DataSource),
		CreatedAt:      inst.CreatedAt,
		UpdatedAt:      inst.UpdatedAt,
	}
	if !inst.LastRefresh.IsZero() {
		t := inst.LastRefresh
		m.LastRefresh = &t
	}
	return m, nil
}

func (m *instrumentModel) toDomain() (*domain.Instrument, error) {
	inst := &domain.Instrument{
		ID:            m.ID,
		Name:          m.Name,
		Kind:          domain.Kind(m.Kind),
		Ticker:        m.Ticker,
		PendingTicker: m.PendingTicker,
		Country:       m.Country,
		Currency:      m.Currency,
		Link:          m.Link,
		InitSource:    m.InitSource,
		DataSource:    domain.SourceID(m.DataSource),
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
	if m.LastRefresh != nil {
		inst.LastRefresh = *m.LastRefresh
	}

	inst.InvalidTickers = []string{}
	if m.InvalidTickers != "" {
		if err := json.Unmarshal([]byte(m.InvalidTickers), &inst.InvalidTickers); err != nil {
			return nil, fmt.Errorf("decoding invalid tickers of %s: %w", m.Name, err)
		}
	}

	for _, f := range []struct {
		raw string
		dst *domain.Decimal
	}{
		{m.ReferenceClose, &inst.ReferenceClose},
		{m.Dividend, &inst.Details.Dividend},
		{m.Beta, &inst.Details.Beta},
		{m.EPS, &inst.Details.EPS},
		{m.Shares, &inst.Details.Shares},
		{m.MarketCap, &inst.Details.MarketCap},
	} {
		if err := f.dst.Scan(f.raw); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", m.Name, err)
		}
	}
	return inst, nil
}

func (m indexModel) toDomain() domain.Index {
	return domain.Index{
		ID:         m.ID,
		Name:       m.Name,
		AssetID:    m.AssetID,
		Country:    m.Country,
		InitSource: m.InitSource,
		Components: []string{},
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}
