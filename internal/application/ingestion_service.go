package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jmanzanog/price-reconciler/internal/domain"
	"github.com/jmanzanog/price-reconciler/internal/infrastructure/metrics"
	"golang.org/x/sync/errgroup"
)

// Status is the terminal result of one instrument refresh.
type Status string

const (
	StatusUpToDate          Status = "up_to_date"
	StatusNoTicker          Status = "no_ticker"
	StatusStored            Status = "stored"
	StatusPriceMismatch     Status = "price_mismatch"
	StatusTickerInvalidated Status = "ticker_invalidated"
	StatusNoData            Status = "no_data"
	StatusSourceUnavailable Status = "source_unavailable"
	StatusNoReferencePrice  Status = "no_reference_price"
	StatusFailed            Status = "failed"
)

// DefaultFreshnessWindow is how recent the last stored close must be for a
// refresh to be skipped.
const DefaultFreshnessWindow = 72 * time.Hour

// SeriesFetcher returns the first usable series for a ticker, or an empty
// source when no provider had one.
type SeriesFetcher interface {
	Get(ctx context.Context, ticker string, kind domain.Kind) (domain.SourceID, domain.Series, error)
}

type Outcome struct {
	Name   string          `json:"name"`
	Status Status          `json:"status"`
	Ticker string          `json:"ticker,omitempty"`
	Source domain.SourceID `json:"source,omitempty"`
	Points int             `json:"points,omitempty"`
	Error  string          `json:"error,omitempty"`

	// fatal is set for errors that must stop a refresh cycle.
	fatal error
}

type Report struct {
	Outcomes []Outcome      `json:"outcomes"`
	Counts   map[Status]int `json:"counts"`
	Elapsed  time.Duration  `json:"elapsed"`
}

type IngestionOptions struct {
	Tolerance       float64
	FreshnessWindow time.Duration
	Concurrency     int
}

func (o IngestionOptions) withDefaults() IngestionOptions {
	if o.Tolerance <= 0 {
		o.Tolerance = domain.DefaultPriceTolerance
	}
	if o.FreshnessWindow <= 0 {
		o.FreshnessWindow = DefaultFreshnessWindow
	}
	if o.Concurrency < 1 {
		o.Concurrency = 1
	}
	return o
}

type IngestionService struct {
	instruments domain.InstrumentRepository
	series      domain.SeriesRepository
	fetcher     SeriesFetcher
	metrics     *metrics.Metrics
	opts        IngestionOptions
	locks       *keyedMutex
	now         func() time.Time
}

func NewIngestionService(
	instruments domain.InstrumentRepository,
	series domain.SeriesRepository,
	fetcher SeriesFetcher,
	m *metrics.Metrics,
	opts IngestionOptions,
) *IngestionService {
	return &IngestionService{
		instruments: instruments,
		series:      series,
		fetcher:     fetcher,
		metrics:     m,
		opts:        opts.withDefaults(),
		locks:       newKeyedMutex(),
		now:         time.Now,
	}
}

// RefreshInstrument runs one refresh of the named instrument and logs a
// single audit line with its terminal status.
func (s *IngestionService) RefreshInstrument(ctx context.Context, name string) Outcome {
	unlock := s.locks.Lock(name)
	defer unlock()

	out := s.refresh(ctx, name)

	attrs := []any{"instrument", out.Name, "status", out.Status}
	if out.Ticker != "" {
		attrs = append(attrs, "ticker", out.Ticker)
	}
	if out.Source != "" {
		attrs = append(attrs, "source", out.Source)
	}
	if out.Error != "" {
		attrs = append(attrs, "error", out.Error)
	}
	if out.fatal != nil {
		slog.ErrorContext(ctx, "Failed to refresh instrument", attrs...)
	} else {
		slog.InfoContext(ctx, "Instrument refreshed", attrs...)
	}
	s.metrics.ObserveRefresh(string(out.Status))

	return out
}

func (s *IngestionService) refresh(ctx context.Context, name string) Outcome {
	out := Outcome{Name: name}
	fail := func(err error) Outcome {
		out.Status = StatusFailed
		out.Error = err.Error()
		return out
	}

	inst, err := s.instruments.FindByName(ctx, name)
	if err != nil {
		return fail(err)
	}
	if !inst.IsValid() {
		out.fatal = fmt.Errorf("instrument %q has kind %q: %w", name, inst.Kind, domain.ErrKindRequired)
		return fail(out.fatal)
	}

	now := s.now().UTC()
	stored, err := s.series.Load(ctx, name)
	if err != nil {
		return fail(err)
	}
	if stored.Fresh(now, s.opts.FreshnessWindow) {
		out.Status = StatusUpToDate
		return out
	}

	ticker, pending, ok := inst.ResolveTicker()
	if !ok {
		out.Status = StatusNoTicker
		return out
	}
	out.Ticker = ticker

	source, series, err := s.fetcher.Get(ctx, ticker, inst.Kind)
	if err != nil {
		if errors.Is(err, domain.ErrSourceUnavailable) {
			out.Status = StatusSourceUnavailable
			out.Error = err.Error()
			return out
		}
		if errors.Is(err, domain.ErrKindRequired) {
			out.fatal = err
		}
		return fail(err)
	}
	out.Source = source

	if len(series) == 0 {
		if !pending {
			out.Status = StatusNoData
			return out
		}
		if err := s.invalidate(ctx, inst, ticker, now); err != nil {
			return fail(err)
		}
		out.Status = StatusTickerInvalidated
		return out
	}

	if pending {
		if inst.ReferenceClose.IsZero() {
			out.Status = StatusNoReferencePrice
			return out
		}
		last, _ := series.Last()
		if !domain.PricesConsistent(last.Close, inst.ReferenceClose.Float64(), s.opts.Tolerance) {
			slog.DebugContext(ctx, "Fetched price outside tolerance band",
				"instrument", name, "fetched", last.Close, "reference", inst.ReferenceClose.String())
			if err := s.invalidate(ctx, inst, ticker, now); err != nil {
				return fail(err)
			}
			out.Status = StatusPriceMismatch
			return out
		}
		inst.ConfirmTicker(ticker)
	}

	if err := s.series.Save(ctx, name, source, series); err != nil {
		return fail(err)
	}

	inst.DataSource = source
	inst.LastRefresh = now
	inst.UpdatedAt = now
	if err := s.instruments.Update(ctx, inst); err != nil {
		return fail(fmt.Errorf("series stored but instrument not updated: %w", err))
	}

	out.Status = StatusStored
	out.Points = len(series)
	return out
}

func (s *IngestionService) invalidate(ctx context.Context, inst *domain.Instrument, ticker string, now time.Time) error {
	if !inst.AddInvalidTicker(ticker) {
		return nil
	}
	inst.UpdatedAt = now
	return s.instruments.Update(ctx, inst)
}

// RefreshAll refreshes every instrument. A cancelled ctx stops the cycle
// between instruments; outcomes gathered so far are still returned.
func (s *IngestionService) RefreshAll(ctx context.Context) (*Report, error) {
	started := s.now()
	defer func() { s.metrics.ObserveCycle(s.now().Sub(started)) }()

	instruments, err := s.instruments.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list instruments: %w", err)
	}
	slog.InfoContext(ctx, "Refresh cycle started", "instruments", len(instruments), "concurrency", s.opts.Concurrency)

	outcomes := make([]Outcome, len(instruments))
	done := make([]bool, len(instruments))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)

	for i, inst := range instruments {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			outcomes[i] = s.RefreshInstrument(gctx, inst.Name)
			done[i] = true
			return outcomes[i].fatal
		})
	}
	fatal := g.Wait()

	report := &Report{Counts: make(map[Status]int)}
	for i, out := range outcomes {
		if !done[i] {
			continue
		}
		report.Outcomes = append(report.Outcomes, out)
		report.Counts[out.Status]++
	}
	report.Elapsed = s.now().Sub(started)

	slog.InfoContext(ctx, "Refresh cycle finished",
		"refreshed", len(report.Outcomes), "stored", report.Counts[StatusStored], "elapsed", report.Elapsed)

	if fatal != nil {
		return report, fmt.Errorf("refresh cycle aborted: %w", fatal)
	}
	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("refresh cycle interrupted: %w", err)
	}
	return report, nil
}

// keyedMutex serialises work per key.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedLock)}
}

func (k *keyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
