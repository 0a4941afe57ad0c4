package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Siberianok/arbitrage-telebot-sub000/internal/model"
)

func fastClient() *Client {
	return NewClient(ClientConfig{
		Timeout:      time.Second,
		MaxRetries:   1,
		RetryBackoff: time.Millisecond,
		RPS:          1000,
		Burst:        1000,
	})
}

func TestGetJSONFallsThroughOn404(t *testing.T) {
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer primary.Close()
	secondary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"value": 42}`))
	}))
	defer secondary.Close()

	var out struct {
		Value int `json:"value"`
	}
	err := fastClient().GetJSON(context.Background(), "test", []string{primary.URL, secondary.URL}, &out)
	require.NoError(t, err)
	assert.Equal(t, 42, out.Value)
}

func TestGetJSONStopsOnHardClientError(t *testing.T) {
	calls := 0
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer primary.Close()
	secondary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.Write([]byte(`{}`))
	}))
	defer secondary.Close()

	var out map[string]any
	err := fastClient().GetJSON(context.Background(), "test", []string{primary.URL, secondary.URL}, &out)
	require.Error(t, err)

	var se *model.SourceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.HTTPStatus)
	assert.Equal(t, 0, calls, "a 400 must not fall through to the next endpoint")
}

func TestGetJSONRetriesTransientServerError(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"ok": true}`))
	}))
	defer srv.Close()

	var out struct {
		OK bool `json:"ok"`
	}
	err := fastClient().GetJSON(context.Background(), "test", []string{srv.URL}, &out)
	require.NoError(t, err)
	assert.True(t, out.OK)
	assert.Equal(t, 2, attempts)
}

func TestGetJSONConnectionErrorFallsThrough(t *testing.T) {
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	dead.Close() // connection refused from here on

	alive := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"ok": true}`))
	}))
	defer alive.Close()

	var out struct {
		OK bool `json:"ok"`
	}
	err := fastClient().GetJSON(context.Background(), "test", []string{dead.URL, alive.URL}, &out)
	require.NoError(t, err)
	assert.True(t, out.OK)
}

func TestGetJSONBadBodyIsInvalidQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	var out map[string]any
	err := fastClient().GetJSON(context.Background(), "test", []string{srv.URL}, &out)
	require.Error(t, err)

	var se *model.SourceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, model.ErrCodeInvalidQuote, se.Code)
}

func TestNormalizeSymbols(t *testing.T) {
	c := fastClient()
	assert.Equal(t, "BTCUSDT", NewBinanceAdapter(c).NormalizeSymbol("BTC/USDT"))
	assert.Equal(t, "XBTUSDT", NewKrakenAdapter(c).NormalizeSymbol("BTC/USDT"))
	assert.Equal(t, "USDT", NewBinanceP2PAdapter(c, "ARS").NormalizeSymbol("USDT/ARS"))
}

func TestStaticAdapterServesCopies(t *testing.T) {
	s := NewStaticAdapter("offline")
	s.SetQuote("BTC/USDT", model.Quote{Bid: 100, Ask: 101})

	q1, err := s.FetchQuote(context.Background(), "btc/usdt")
	require.NoError(t, err)
	require.NotNil(t, q1)
	assert.Equal(t, "offline", q1.Venue)
	assert.Equal(t, model.KindOffline, q1.Kind)

	// Mutating the returned quote must not leak into the adapter.
	q1.Bid = 0
	q2, _ := s.FetchQuote(context.Background(), "BTC/USDT")
	assert.Equal(t, 100.0, q2.Bid)

	missing, err := s.FetchQuote(context.Background(), "ETH/USDT")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
