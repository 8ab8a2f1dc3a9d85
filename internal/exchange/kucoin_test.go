package exchange

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hekticxox/WatchDog/internal/config"
	"github.com/hekticxox/WatchDog/pkg/models"
)

func newTestClient(handler http.HandlerFunc) (*KuCoinClient, *httptest.Server) {
	server := httptest.NewServer(handler)
	client := NewKuCoinClient(config.KuCoinConfig{
		APIKey:        "key",
		APISecret:     "secret",
		APIPassphrase: "phrase",
		BaseURL:       server.URL,
	})
	return client, server
}

func envelope(data any) []byte {
	raw, _ := json.Marshal(map[string]any{"code": "200000", "data": data})
	return raw
}

func TestGetKlines(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/kline/query", r.URL.Path)
		require.Equal(t, "XBTUSDTM", r.URL.Query().Get("symbol"))
		require.Equal(t, "1", r.URL.Query().Get("granularity"))
		w.Write(envelope([][]float64{
			{1714000000000, 100, 110, 90, 105, 12.5},
			{1714000060000, 105, 112, 104, 111, 8},
		}))
	})
	defer server.Close()

	candles, err := client.GetKlines(context.Background(), "XBTUSDTM", 300)
	require.NoError(t, err)
	require.Len(t, candles, 2)

	c := candles[0]
	require.Equal(t, "XBTUSDTM", c.Symbol)
	require.Equal(t, 100.0, c.Open)
	require.Equal(t, 110.0, c.High)
	require.Equal(t, 90.0, c.Low)
	require.Equal(t, 105.0, c.Close)
	require.Equal(t, 12.5, c.Volume)
	require.Equal(t, int64(1714000000000), c.OpenTime.UnixMilli())
}

func TestRequestSigningHeaders(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "key", r.Header.Get("KC-API-KEY"))
		require.NotEmpty(t, r.Header.Get("KC-API-SIGN"))
		require.NotEmpty(t, r.Header.Get("KC-API-TIMESTAMP"))
		require.NotEmpty(t, r.Header.Get("KC-API-PASSPHRASE"))
		require.Equal(t, "2", r.Header.Get("KC-API-KEY-VERSION"))
		w.Write(envelope(map[string]any{"accountEquity": 123.45}))
	})
	defer server.Close()

	equity, err := client.GetAccountEquity(context.Background())
	require.NoError(t, err)
	require.Equal(t, 123.45, equity)
}

func TestAuthFailureCode(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"400005","msg":"Invalid KC-API-SIGN"}`))
	})
	defer server.Close()

	_, err := client.GetAccountEquity(context.Background())
	require.ErrorIs(t, err, models.ErrAuthFailure)
}

func TestAuthFailureStatus(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	defer server.Close()

	_, err := client.GetAccountEquity(context.Background())
	require.ErrorIs(t, err, models.ErrAuthFailure)
}

func TestBusinessErrorIsDataUnavailable(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"100001","msg":"contract not found"}`))
	})
	defer server.Close()

	_, err := client.GetKlines(context.Background(), "NOPEUSDTM", 300)
	require.ErrorIs(t, err, models.ErrDataUnavailable)
}

func TestGetOrderBook(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/level2/snapshot", r.URL.Path)
		w.Write(envelope(map[string]any{
			"bids": [][2]float64{{100, 5}, {99.5, 3}},
			"asks": [][2]float64{{100.5, 4}},
			"ts":   1714000000000000000,
		}))
	})
	defer server.Close()

	book, err := client.GetOrderBook(context.Background(), "XBTUSDTM")
	require.NoError(t, err)
	require.Len(t, book.Bids, 2)
	require.Len(t, book.Asks, 1)
	require.Equal(t, 100.0, book.Bids[0].Price)
	require.Equal(t, 5.0, book.Bids[0].Amount)
}

func TestGetActiveSymbols(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write(envelope([]map[string]any{
			{"symbol": "XBTUSDTM", "status": "Open"},
			{"symbol": "ETHUSDTM", "status": "Open"},
			{"symbol": "OLDUSDTM", "status": "Closed"},
			{"symbol": "XBTUSDM", "status": "Open"},
		}))
	})
	defer server.Close()

	symbols, err := client.GetActiveSymbols(context.Background(), "USDTM")
	require.NoError(t, err)
	require.Equal(t, []string{"XBTUSDTM", "ETHUSDTM"}, symbols)
}

func TestGetPositions(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write(envelope([]map[string]any{
			{
				"symbol": "XBTUSDTM", "currentQty": 3, "avgEntryPrice": 60000,
				"liquidationPrice": 55000, "posMargin": 36, "unrealisedPnl": 1.5,
				"unrealisedRoePcnt": 0.042, "isOpen": true,
			},
			{
				"symbol": "ETHUSDTM", "currentQty": -2, "avgEntryPrice": 3000,
				"isOpen": true,
			},
			{"symbol": "SOLUSDTM", "currentQty": 0, "isOpen": false},
		}))
	})
	defer server.Close()

	positions, err := client.GetPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 2)

	long := positions[0]
	require.Equal(t, models.SideBuy, long.Side)
	require.Equal(t, 3.0, long.Size)
	require.Equal(t, 60000.0, long.EntryPrice)
	require.InDelta(t, 4.2, long.ROI, 1e-9)

	short := positions[1]
	require.Equal(t, models.SideSell, short.Side)
	require.Equal(t, 2.0, short.Size)
}

func TestPlaceOrder(t *testing.T) {
	var body map[string]any
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v1/orders", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Write(envelope(map[string]any{"orderId": "o-123"}))
	})
	defer server.Close()

	result, err := client.PlaceOrder(context.Background(), models.OrderIntent{
		Symbol:     "XBTUSDTM",
		Side:       models.SideBuy,
		Size:       3,
		Leverage:   5,
		OrderType:  "limit",
		LimitPrice: 60000,
	}, "oid-1")
	require.NoError(t, err)
	require.True(t, result.Accepted)
	require.Equal(t, "o-123", result.ExchangeOrderID)

	require.Equal(t, "oid-1", body["clientOid"])
	require.Equal(t, "buy", body["side"])
	require.Equal(t, 3.0, body["size"])
	require.Equal(t, "5", body["leverage"])
	require.Equal(t, "60000", body["price"])
}

func TestPlaceOrderBusinessRejection(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"300000","msg":"Balance insufficient"}`))
	})
	defer server.Close()

	result, err := client.PlaceOrder(context.Background(), models.OrderIntent{
		Symbol: "XBTUSDTM", Side: models.SideBuy, Size: 1, Leverage: 5, OrderType: "market",
	}, "oid-2")
	require.NoError(t, err)
	require.False(t, result.Accepted)
	require.Equal(t, "Balance insufficient", result.Reason)
}

func TestGetFundingRate(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/contracts/XBTUSDTM", r.URL.Path)
		w.Write(envelope(map[string]any{
			"symbol": "XBTUSDTM", "fundingFeeRate": 0.0012, "openInterest": "12345",
		}))
	})
	defer server.Close()

	rate, err := client.GetFundingRate(context.Background(), "XBTUSDTM")
	require.NoError(t, err)
	require.Equal(t, 0.0012, rate.Rate)

	oi, err := client.GetOpenInterest(context.Background(), "XBTUSDTM")
	require.NoError(t, err)
	require.Equal(t, 12345.0, oi)
}

func TestToBinanceSymbol(t *testing.T) {
	require.Equal(t, "BTCUSDT", ToBinanceSymbol("XBTUSDTM"))
	require.Equal(t, "ETHUSDT", ToBinanceSymbol("ETHUSDTM"))
	require.Equal(t, "DOGEUSDT", ToBinanceSymbol("DOGEUSDTM"))
}
