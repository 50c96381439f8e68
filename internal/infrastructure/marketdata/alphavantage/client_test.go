package alphavantage

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

var now = time.Date(2024, 4, 15, 18, 0, 0, 0, time.UTC)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *ratelimit.FakeClock, *int) {
	t.Helper()
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	clock := ratelimit.NewFakeClock(now)
	c := NewClientWithHTTPClient("demo", server.Client(), ratelimit.NewGateWithClock(DefaultMinInterval, clock))
	c.SetBaseURL(server.URL)
	return c, clock, &calls
}

func TestQueryURL(t *testing.T) {
	c := NewClientWithHTTPClient("KEY", http.DefaultClient, ratelimit.NewGate(0))
	c.SetBaseURL("https://av.example")

	tests := []struct {
		name     string
		symbol   string
		kind     domain.Kind
		freq     Frequency
		full     bool
		expected string
	}{
		{
			name:     "forex daily full",
			symbol:   "EUR/USD",
			kind:     domain.KindForex,
			freq:     Daily,
			full:     true,
			expected: "https://av.example/query?function=FX_DAILY&from_symbol=EUR&to_symbol=USD&outputsize=full&apikey=KEY",
		},
		{
			name:     "stock daily compact",
			symbol:   "IBM",
			kind:     domain.KindStock,
			freq:     Daily,
			full:     false,
			expected: "https://av.example/query?function=TIME_SERIES_DAILY_ADJUSTED&symbol=IBM&outputsize=compact&apikey=KEY",
		},
		{
			name:     "index weekly",
			symbol:   "^GSPC",
			kind:     domain.KindIndex,
			freq:     Weekly,
			full:     true,
			expected: "https://av.example/query?function=TIME_SERIES_WEEKLY_ADJUSTED&symbol=^GSPC&outputsize=full&apikey=KEY",
		},
		{
			name:     "stock intraday",
			symbol:   "IBM",
			kind:     domain.KindStock,
			freq:     Intraday,
			full:     true,
			expected: "https://av.example/query?function=TIME_SERIES_INTRADAY_ADJUSTED&symbol=IBM&outputsize=full&apikey=KEY&interval=60min",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c.Frequency = tt.freq
			c.Full = tt.full
			got, err := c.QueryURL(tt.symbol, tt.kind)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestQueryURL_Errors(t *testing.T) {
	c := NewClientWithHTTPClient("KEY", http.DefaultClient, ratelimit.NewGate(0))

	_, err := c.QueryURL("IBM", "")
	assert.ErrorIs(t, err, ErrKindRequired)

	_, err = c.QueryURL("BTC/USDT", domain.KindCrypto)
	assert.ErrorIs(t, err, domain.ErrNoDataAvailable)

	_, err = c.QueryURL("EURUSD", domain.KindForex)
	assert.ErrorIs(t, err, domain.ErrSymbolNotFound)
}

func TestGetSeries_Stock(t *testing.T) {
	c, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "TIME_SERIES_DAILY_ADJUSTED", r.URL.Query().Get("function"))
		_, _ = w.Write([]byte(`{
			"Meta Data": {"2. Symbol": "IBM"},
			"Time Series (Daily)": {
				"2024-04-12": {"1. open": "184.0", "4. close": "182.00", "5. adjusted close": "181.50", "6. volume": "100"},
				"2024-04-11": {"1. open": "185.0", "4. close": "185.90", "5. adjusted close": "185.40", "6. volume": "100"},
				"2024-04-10": {"1. open": "183.0", "4. close": "181.00", "5. adjusted close": "180.50", "6. volume": "100"}
			}
		}`))
	})

	s, err := c.GetSeries(context.Background(), "IBM", domain.KindStock)

	require.NoError(t, err)
	require.Len(t, s, 3)
	assert.NoError(t, s.Validate())
	assert.Equal(t, time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC), s[0].Date)
	last, _ := s.Last()
	assert.Equal(t, 181.50, last.Close)
}

func TestGetSeries_ForexFallsBackToClose(t *testing.T) {
	c, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "EUR", r.URL.Query().Get("from_symbol"))
		_, _ = w.Write([]byte(`{
			"Time Series FX (Daily)": {
				"2024-04-12": {"1. open": "1.07", "4. close": "1.0642"}
			}
		}`))
	})

	s, err := c.GetSeries(context.Background(), "EUR/USD", domain.KindForex)

	require.NoError(t, err)
	require.Len(t, s, 1)
	assert.Equal(t, 1.0642, s[0].Close)
}

func TestGetSeries_Classification(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		expected error
	}{
		{"http failure", http.StatusBadGateway, `oops`, domain.ErrSourceUnavailable},
		{"malformed json", http.StatusOK, `{not json`, domain.ErrSourceUnavailable},
		{"error message", http.StatusOK, `{"Error Message": "Invalid API call."}`, domain.ErrSymbolNotFound},
		{"missing series", http.StatusOK, `{"Meta Data": {}}`, domain.ErrNoDataAvailable},
		{"empty series", http.StatusOK, `{"Time Series (Daily)": {}}`, domain.ErrNoDataAvailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			s, err := c.GetSeries(context.Background(), "IBM", domain.KindStock)
			assert.Nil(t, s)
			assert.ErrorIs(t, err, tt.expected)
			assert.True(t, c.IsAvailable())
		})
	}
}

func TestGetSeries_QuotaSetsCooldownUntilNextDay(t *testing.T) {
	c, clock, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"Note": "Thank you for using Alpha Vantage! Our standard API call frequency is 5 calls per minute."}`))
	})

	_, err := c.GetSeries(context.Background(), "IBM", domain.KindStock)
	assert.ErrorIs(t, err, domain.ErrQuotaExceeded)
	assert.False(t, c.IsAvailable())
	assert.Equal(t, 1, *calls)

	s, err := c.GetSeries(context.Background(), "IBM", domain.KindStock)
	assert.NoError(t, err)
	assert.Nil(t, s)
	assert.Equal(t, 1, *calls, "no call while cooling down")

	clock.Advance(6 * time.Hour)
	assert.True(t, c.IsAvailable())
}

func TestGetSeries_SpacesCalls(t *testing.T) {
	c, clock, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"Time Series (Daily)": {"2024-04-12": {"5. adjusted close": "10"}}}`))
	})

	_, err := c.GetSeries(context.Background(), "IBM", domain.KindStock)
	require.NoError(t, err)
	clock.Advance(2 * time.Second)
	_, err = c.GetSeries(context.Background(), "MSFT", domain.KindStock)
	require.NoError(t, err)

	assert.Equal(t, []time.Duration{10 * time.Second}, clock.Sleeps())
}

func TestGetSeries_KindRequired(t *testing.T) {
	c, _, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})

	_, err := c.GetSeries(context.Background(), "IBM", "")
	assert.ErrorIs(t, err, ErrKindRequired)
	assert.Equal(t, 0, *calls)
}
