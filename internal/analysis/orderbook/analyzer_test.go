package orderbook

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hekticxox/WatchDog/internal/config"
	"github.com/hekticxox/WatchDog/pkg/models"
)

func testBook() *models.OrderBook {
	return &models.OrderBook{
		Symbol:    "XBTUSDTM",
		Timestamp: time.Now(),
		Bids: []models.OrderBookLevel{
			{Price: 100.0, Amount: 10},
			{Price: 99.5, Amount: 25},
			{Price: 99.0, Amount: 5},
		},
		Asks: []models.OrderBookLevel{
			{Price: 100.5, Amount: 8},
			{Price: 101.0, Amount: 12},
			{Price: 101.5, Amount: 4},
		},
	}
}

func TestImbalance(t *testing.T) {
	book := testBook()
	// bid 40, ask 24: (40-24)/64
	require.InDelta(t, 16.0/64.0, Imbalance(book), 1e-6)
}

func TestImbalanceEmptyBook(t *testing.T) {
	require.Equal(t, 0.0, Imbalance(&models.OrderBook{}))
}

func TestSpreadAndMid(t *testing.T) {
	book := testBook()
	require.InDelta(t, 0.5, Spread(book), 1e-9)
	require.InDelta(t, 100.25, MidPrice(book), 1e-9)

	require.Equal(t, 0.0, Spread(&models.OrderBook{}))
	require.Equal(t, 0.0, MidPrice(&models.OrderBook{}))
}

func TestLargestWall(t *testing.T) {
	book := testBook()

	price, size := LargestWall(book.Bids)
	require.Equal(t, 99.5, price)
	require.Equal(t, 25.0, size)

	price, size = LargestWall(book.Asks)
	require.Equal(t, 101.0, price)
	require.Equal(t, 12.0, size)

	price, size = LargestWall(nil)
	require.Equal(t, 0.0, price)
	require.Equal(t, 0.0, size)
}

func TestCumulativeDepth(t *testing.T) {
	book := testBook()
	// mid 100.25, окно 1%: [99.2475, 101.2525] - бид 99.0 и аск 101.5 снаружи
	bidLiq, askLiq := CumulativeDepth(book, 1.0)
	require.InDelta(t, 35.0, bidLiq, 1e-9)
	require.InDelta(t, 20.0, askLiq, 1e-9)
}

func TestSlope(t *testing.T) {
	// Кумулятивный объем растет вместе с ценой - наклон асков положительный
	asks := []models.OrderBookLevel{
		{Price: 100, Amount: 5},
		{Price: 101, Amount: 5},
		{Price: 102, Amount: 5},
	}
	require.Greater(t, Slope(asks, 3), 0.0)

	// У бидов цена убывает при росте кумулятивного объема - наклон отрицательный
	bids := []models.OrderBookLevel{
		{Price: 100, Amount: 5},
		{Price: 99, Amount: 5},
		{Price: 98, Amount: 5},
	}
	require.Less(t, Slope(bids, 3), 0.0)

	require.Equal(t, 0.0, Slope(asks, 1))
	require.Equal(t, 0.0, Slope(nil, 5))
}

func TestSlopeEqualPrices(t *testing.T) {
	levels := []models.OrderBookLevel{
		{Price: 100, Amount: 5},
		{Price: 100, Amount: 5},
	}
	require.Equal(t, 0.0, Slope(levels, 2))
}

func TestNormalize(t *testing.T) {
	book := &models.OrderBook{
		Bids: []models.OrderBookLevel{
			{Price: 99.0, Amount: 1},
			{Price: 100.0, Amount: 1},
		},
		Asks: []models.OrderBookLevel{
			{Price: 101.0, Amount: 1},
			{Price: 100.5, Amount: 1},
		},
	}

	Normalize(book)
	require.Equal(t, 100.0, book.Bids[0].Price)
	require.Equal(t, 100.5, book.Asks[0].Price)
}

func TestAnalyze(t *testing.T) {
	analyzer := NewAnalyzer(config.OrderBookConfig{
		Depth:       100,
		DepthPct:    1.0,
		SlopeLevels: 3,
	})

	m := analyzer.Analyze(testBook())
	require.InDelta(t, 16.0/64.0, m.Imbalance, 1e-6)
	require.InDelta(t, 0.5, m.Spread, 1e-9)
	require.Equal(t, 99.5, m.BidWallPrice)
	require.Equal(t, 101.0, m.AskWallPrice)
	require.InDelta(t, 35.0, m.BidLiquidity, 1e-9)
	require.InDelta(t, 20.0, m.AskLiquidity, 1e-9)
	require.Less(t, m.BidSlope, 0.0)
	require.Greater(t, m.AskSlope, 0.0)
}
