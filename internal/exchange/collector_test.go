package exchange

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hekticxox/WatchDog/pkg/models"
)

func candleAt(symbol string, minute int, close float64) *models.Candle {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return &models.Candle{
		Symbol:   symbol,
		OpenTime: start.Add(time.Duration(minute) * time.Minute),
		Close:    close,
	}
}

func TestMarketCacheAppendCandle(t *testing.T) {
	cache := NewMarketCache(100)

	cache.AppendCandle(candleAt("XBTUSDTM", 0, 100))
	cache.AppendCandle(candleAt("XBTUSDTM", 1, 101))
	require.Len(t, cache.Candles("XBTUSDTM"), 2)

	// Свеча с тем же временем открытия заменяет последнюю
	cache.AppendCandle(candleAt("XBTUSDTM", 1, 102))
	series := cache.Candles("XBTUSDTM")
	require.Len(t, series, 2)
	require.Equal(t, 102.0, series[1].Close)
}

func TestMarketCacheRing(t *testing.T) {
	cache := NewMarketCache(3)

	for i := 0; i < 5; i++ {
		cache.AppendCandle(candleAt("XBTUSDTM", i, float64(i)))
	}

	series := cache.Candles("XBTUSDTM")
	require.Len(t, series, 3)
	require.Equal(t, 2.0, series[0].Close)
	require.Equal(t, 4.0, series[2].Close)
}

func TestMarketCacheSetCandlesTrims(t *testing.T) {
	cache := NewMarketCache(2)

	cache.SetCandles("XBTUSDTM", []*models.Candle{
		candleAt("XBTUSDTM", 0, 1),
		candleAt("XBTUSDTM", 1, 2),
		candleAt("XBTUSDTM", 2, 3),
	})

	series := cache.Candles("XBTUSDTM")
	require.Len(t, series, 2)
	require.Equal(t, 2.0, series[0].Close)
}

func TestMarketCacheBookAndFunding(t *testing.T) {
	cache := NewMarketCache(10)

	_, ok := cache.OrderBook("XBTUSDTM")
	require.False(t, ok)

	cache.SetOrderBook(&models.OrderBook{Symbol: "XBTUSDTM"})
	book, ok := cache.OrderBook("XBTUSDTM")
	require.True(t, ok)
	require.Equal(t, "XBTUSDTM", book.Symbol)

	cache.SetFunding(&models.FundingRate{Symbol: "XBTUSDTM", Rate: 0.001})
	rate, ok := cache.Funding("XBTUSDTM")
	require.True(t, ok)
	require.Equal(t, 0.001, rate.Rate)
}
