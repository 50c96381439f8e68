package marketdata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmanzanog/price-reconciler/internal/domain"
	"github.com/jmanzanog/price-reconciler/internal/infrastructure/metrics"
)

// Manager tries its providers in order and returns the first non-empty series.
type Manager struct {
	registrations []Registration
	metrics       *metrics.Metrics
}

func NewManager(m *metrics.Metrics, regs ...Registration) *Manager {
	return &Manager{registrations: regs, metrics: m}
}

// Ordered arranges regs by the given source order. Sources missing from
// order are dropped; unknown names in order are ignored.
func Ordered(order []domain.SourceID, regs ...Registration) []Registration {
	byName := make(map[domain.SourceID]Registration, len(regs))
	for _, r := range regs {
		byName[r.Provider.Name()] = r
	}
	out := make([]Registration, 0, len(order))
	for _, name := range order {
		if r, ok := byName[name]; ok {
			out = append(out, r)
			delete(byName, name)
		}
	}
	return out
}

// Sources lists the registered providers in order.
func (m *Manager) Sources() []domain.SourceID {
	out := make([]domain.SourceID, 0, len(m.registrations))
	for _, r := range m.registrations {
		out = append(out, r.Provider.Name())
	}
	return out
}

// Get returns the winning source and its series trimmed to MinSeriesDate.
// When every provider is exhausted it returns ("", nil, nil). If no provider
// succeeded and at least one was unreachable, it returns ErrSourceUnavailable
// so the caller retries later instead of blaming the ticker. A missing kind
// is returned as ErrKindRequired without consulting any provider.
func (m *Manager) Get(ctx context.Context, ticker string, kind domain.Kind) (domain.SourceID, domain.Series, error) {
	if kind == "" {
		return "", nil, fmt.Errorf("ticker %s: %w", ticker, domain.ErrKindRequired)
	}

	var unavailable error

	for _, reg := range m.registrations {
		if err := ctx.Err(); err != nil {
			return "", nil, err
		}

		name := reg.Provider.Name()
		if !reg.Kinds.Contains(kind) {
			continue
		}
		if a, ok := reg.Provider.(Availability); ok && !a.IsAvailable() {
			slog.DebugContext(ctx, "source in cooldown, skipping", "source", name, "ticker", ticker)
			m.metrics.ObserveSource(string(name), "cooldown", 0)
			continue
		}

		start := time.Now()
		series, err := reg.Provider.GetSeries(ctx, ticker, kind)
		m.metrics.ObserveSource(string(name), outcome(series, err), time.Since(start))

		switch {
		case err == nil && len(series) > 0:
			trimmed := series.TrimBefore(domain.MinSeriesDate)
			if len(trimmed) == 0 {
				slog.InfoContext(ctx, "source has only pre-1970 rows, trying next", "source", name, "ticker", ticker)
				continue
			}
			return name, trimmed, nil
		case err == nil:
			continue
		case errors.Is(err, domain.ErrKindRequired):
			slog.ErrorContext(ctx, "Failed to query source without asset kind", "source", name, "ticker", ticker, "error", err)
			return "", nil, err
		case errors.Is(err, domain.ErrNoDataAvailable),
			errors.Is(err, domain.ErrSymbolNotFound),
			errors.Is(err, domain.ErrQuotaExceeded):
			slog.InfoContext(ctx, "source has no series, trying next", "source", name, "ticker", ticker, "reason", err)
		case errors.Is(err, domain.ErrSourceUnavailable):
			slog.WarnContext(ctx, "source unavailable, trying next", "source", name, "ticker", ticker, "error", err)
			unavailable = err
		default:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", nil, ctxErr
			}
			slog.WarnContext(ctx, "unexpected source error, trying next", "source", name, "ticker", ticker, "error", err)
			unavailable = fmt.Errorf("%w: %v", domain.ErrSourceUnavailable, err)
		}
	}

	if unavailable != nil {
		return "", nil, unavailable
	}
	return "", nil, nil
}

func outcome(series domain.Series, err error) string {
	switch {
	case err == nil && len(series) > 0:
		return "success"
	case err == nil:
		return "skipped"
	case errors.Is(err, domain.ErrNoDataAvailable):
		return "no_data"
	case errors.Is(err, domain.ErrSymbolNotFound):
		return "symbol_not_found"
	case errors.Is(err, domain.ErrQuotaExceeded):
		return "quota_exceeded"
	default:
		return "unavailable"
	}
}
