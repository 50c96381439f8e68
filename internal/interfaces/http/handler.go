package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmanzanog/price-reconciler/internal/application"
	"github.com/jmanzanog/price-reconciler/internal/domain"
)

// InstrumentReader is the read side of the instrument store.
type InstrumentReader interface {
	FindByName(ctx context.Context, name string) (*domain.Instrument, error)
	FindAll(ctx context.Context) ([]domain.Instrument, error)
	FindAllIndices(ctx context.Context) ([]domain.Index, error)
}

type SeriesReader interface {
	Load(ctx context.Context, name string) (domain.Series, error)
}

type IngestionService interface {
	RefreshInstrument(ctx context.Context, name string) application.Outcome
	RefreshAll(ctx context.Context) (*application.Report, error)
}

type IndexSyncService interface {
	SyncIndices(ctx context.Context) (*application.SyncReport, error)
}

type Handler struct {
	instruments InstrumentReader
	series      SeriesReader
	ingestion   IngestionService
	indexSync   IndexSyncService
}

func NewHandler(instruments InstrumentReader, series SeriesReader, ingestion IngestionService, indexSync IndexSyncService) *Handler {
	return &Handler{
		instruments: instruments,
		series:      series,
		ingestion:   ingestion,
		indexSync:   indexSync,
	}
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type SeriesResponse struct {
	Name   string          `json:"name"`
	Source domain.SourceID `json:"source,omitempty"`
	Points domain.Series   `json:"points"`
}

func (h *Handler) ListInstruments(c *gin.Context) {
	instruments, err := h.instruments.FindAll(c.Request.Context())
	if err != nil {
		slog.ErrorContext(c.Request.Context(), "Failed to list instruments", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	if kind := c.Query("kind"); kind != "" {
		k, err := domain.ParseKind(kind)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
		filtered := instruments[:0]
		for _, inst := range instruments {
			if inst.Kind == k {
				filtered = append(filtered, inst)
			}
		}
		instruments = filtered
	}

	c.JSON(http.StatusOK, instruments)
}

func (h *Handler) GetInstrument(c *gin.Context) {
	name := c.Param("name")

	inst, err := h.instruments.FindByName(c.Request.Context(), name)
	if err != nil {
		h.instrumentError(c, name, err)
		return
	}

	c.JSON(http.StatusOK, inst)
}

func (h *Handler) GetSeries(c *gin.Context) {
	name := c.Param("name")

	inst, err := h.instruments.FindByName(c.Request.Context(), name)
	if err != nil {
		h.instrumentError(c, name, err)
		return
	}

	series, err := h.series.Load(c.Request.Context(), name)
	if err != nil {
		slog.ErrorContext(c.Request.Context(), "Failed to load series", "instrument", name, "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	if len(series) == 0 {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "no series stored for " + name})
		return
	}

	if from := c.Query("from"); from != "" {
		t, err := time.Parse(time.DateOnly, from)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid from date, expected YYYY-MM-DD"})
			return
		}
		series = series.TrimBefore(t)
	}

	c.JSON(http.StatusOK, SeriesResponse{Name: name, Source: inst.DataSource, Points: series})
}

func (h *Handler) RefreshInstrument(c *gin.Context) {
	name := c.Param("name")

	if _, err := h.instruments.FindByName(c.Request.Context(), name); err != nil {
		h.instrumentError(c, name, err)
		return
	}

	c.JSON(http.StatusOK, h.ingestion.RefreshInstrument(c.Request.Context(), name))
}

func (h *Handler) RefreshAll(c *gin.Context) {
	report, err := h.ingestion.RefreshAll(c.Request.Context())
	if err != nil {
		slog.ErrorContext(c.Request.Context(), "Failed to refresh series", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, report)
}

func (h *Handler) ListIndices(c *gin.Context) {
	indices, err := h.instruments.FindAllIndices(c.Request.Context())
	if err != nil {
		slog.ErrorContext(c.Request.Context(), "Failed to list indices", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, indices)
}

func (h *Handler) SyncIndices(c *gin.Context) {
	report, err := h.indexSync.SyncIndices(c.Request.Context())
	if err != nil {
		slog.ErrorContext(c.Request.Context(), "Failed to sync indices", "error", err)
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrSourceUnavailable) {
			status = http.StatusBadGateway
		}
		c.JSON(status, ErrorResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, report)
}

func (h *Handler) instrumentError(c *gin.Context, name string, err error) {
	if errors.Is(err, domain.ErrInstrumentNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
		return
	}
	slog.ErrorContext(c.Request.Context(), "Failed to get instrument", "instrument", name, "error", err)
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
}
