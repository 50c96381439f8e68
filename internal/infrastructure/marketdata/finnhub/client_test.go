package finnhub

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jmanzanog/price-reconciler/internal/domain"
	"github.com/jmanzanog/price-reconciler/internal/infrastructure/marketdata/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestServer(t *testing.T, handler http.HandlerFunc) (*Client, *ratelimit.FakeClock) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	clock := ratelimit.NewFakeClock(time.Date(2024, 4, 15, 12, 0, 0, 0, time.UTC))
	client := NewClientWithHTTPClient("test-api-key", server.Client(), ratelimit.NewGateWithClock(0, clock))
	client.SetBaseURL(server.URL)
	return client, clock
}

func TestForexSymbol(t *testing.T) {
	assert.Equal(t, "OANDA:EUR_USD", ForexSymbol("EUR/USD"))
	assert.Equal(t, "FXCM:EUR/USD", ForexSymbol("FXCM:EUR/USD"))
}

func TestGetSeries_Stock(t *testing.T) {
	client, _ := setupTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/stock/candle", r.URL.Path)
		assert.Equal(t, "AAPL", r.URL.Query().Get("symbol"))
		assert.Equal(t, "D", r.URL.Query().Get("resolution"))
		assert.Equal(t, "test-api-key", r.URL.Query().Get("token"))
		_, _ = w.Write([]byte(`{"c":[167.78,175.04,176.55],"t":[1712707200,1712793600,1712880000],"s":"ok"}`))
	})

	s, err := client.GetSeries(context.Background(), "AAPL", domain.KindStock)

	require.NoError(t, err)
	require.Len(t, s, 3)
	assert.NoError(t, s.Validate())
	last, _ := s.Last()
	assert.Equal(t, 176.55, last.Close)
}

func TestGetSeries_Forex(t *testing.T) {
	client, _ := setupTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/forex/candle", r.URL.Path)
		assert.Equal(t, "OANDA:EUR_USD", r.URL.Query().Get("symbol"))
		_, _ = w.Write([]byte(`{"c":[1.0642],"t":[1712880000],"s":"ok"}`))
	})

	s, err := client.GetSeries(context.Background(), "EUR/USD", domain.KindForex)
	require.NoError(t, err)
	assert.Len(t, s, 1)
}

func TestGetSeries_Errors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		expected error
	}{
		{"no data", http.StatusOK, `{"s":"no_data"}`, domain.ErrNoDataAvailable},
		{"plan limited", http.StatusForbidden, `{"error":"You don't have access to this resource."}`, domain.ErrSymbolNotFound},
		{"unauthorized", http.StatusUnauthorized, `{"error":"Invalid API key"}`, domain.ErrSymbolNotFound},
		{"error field", http.StatusOK, `{"error":"Symbol not supported"}`, domain.ErrSymbolNotFound},
		{"mismatched arrays", http.StatusOK, `{"c":[1,2],"t":[1712880000],"s":"ok"}`, domain.ErrNoDataAvailable},
		{"bad gateway", http.StatusBadGateway, `upstream`, domain.ErrSourceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := setupTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			s, err := client.GetSeries(context.Background(), "AAPL", domain.KindStock)
			assert.Nil(t, s)
			assert.ErrorIs(t, err, tt.expected)
		})
	}
}

func TestGetSeries_RateLimited(t *testing.T) {
	client, clock := setupTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.GetSeries(context.Background(), "AAPL", domain.KindStock)
	assert.ErrorIs(t, err, domain.ErrQuotaExceeded)
	assert.False(t, client.IsAvailable())

	clock.Advance(time.Minute)
	assert.True(t, client.IsAvailable())
}
