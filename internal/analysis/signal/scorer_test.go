package signal

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hekticxox/WatchDog/internal/analysis/indicators"
	"github.com/hekticxox/WatchDog/internal/config"
	"github.com/hekticxox/WatchDog/pkg/models"
)

func newTestScorer() *Scorer {
	cfg := config.Default().Analysis
	lib := indicators.NewLibrary(cfg.Indicators)
	return NewScorer(cfg.Scorer, lib)
}

func nanSnapshot() models.IndicatorSnapshot {
	return models.IndicatorSnapshot{
		RSI: math.NaN(), MACD: math.NaN(), MACDSignal: math.NaN(),
		BBUpper: math.NaN(), BBLower: math.NaN(), ATR: math.NaN(),
		StochK: math.NaN(), StochD: math.NaN(), VWAP: math.NaN(),
		EMAFast: math.NaN(), SMASlow: math.NaN(),
	}
}

// flatCandles серия с постоянной ценой и объемом
func flatCandles(n int, close, volume float64) []*models.Candle {
	candles := make([]*models.Candle, n)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		candles[i] = &models.Candle{
			Symbol:   "XBTUSDTM",
			OpenTime: start.Add(time.Duration(i) * time.Minute),
			Open:     close, High: close + 0.1, Low: close - 0.1,
			Close: close, Volume: volume,
		}
	}
	return candles
}

func TestVoteBuy(t *testing.T) {
	s := newTestScorer()

	snap := nanSnapshot()
	snap.RSI = 20          // перепроданность
	snap.MACD = 1.5        // бычий MACD
	snap.BBLower = 105     // закрытие ниже нижней полосы
	snap.StochK, snap.StochD = 10, 12

	require.Equal(t, models.DirectionBuy, s.vote(snap, 100))
}

func TestVoteSell(t *testing.T) {
	s := newTestScorer()

	snap := nanSnapshot()
	snap.RSI = 80
	snap.MACD = -1.5
	snap.BBUpper = 95 // закрытие выше верхней полосы
	snap.StochK, snap.StochD = 90, 88

	require.Equal(t, models.DirectionSell, s.vote(snap, 100))
}

func TestVoteHoldOnNaN(t *testing.T) {
	s := newTestScorer()
	require.Equal(t, models.DirectionHold, s.vote(nanSnapshot(), 100))
}

func TestVoteBelowThreshold(t *testing.T) {
	s := newTestScorer()

	// Только две проверки за покупку - порога в три голоса нет
	snap := nanSnapshot()
	snap.RSI = 20
	snap.MACD = 1.5

	require.Equal(t, models.DirectionHold, s.vote(snap, 100))
}

func TestConfluenceVolSpikeAndBreakout(t *testing.T) {
	s := newTestScorer()

	candles := flatCandles(25, 100, 10)
	last := candles[len(candles)-1]
	last.Volume = 50  // всплеск против среднего 10
	last.Close = 150  // пробой максимума окна
	last.High = 151

	points, total, reasons := s.confluence(candles, Extras{})
	require.Equal(t, 5, total)
	require.GreaterOrEqual(t, points, 2)
	require.Contains(t, reasons, "VolSpike")
	require.Contains(t, reasons, "Breakout")
}

func TestConfluenceOptionalExtras(t *testing.T) {
	s := newTestScorer()
	candles := flatCandles(25, 100, 10)

	// Без внешних данных шкала из пяти проверок
	_, total, _ := s.confluence(candles, Extras{})
	require.Equal(t, 5, total)

	// Поданные funding и дисбаланс расширяют шкалу и дают очки
	points, total, reasons := s.confluence(candles, Extras{
		FundingRate: 0.002, HasFunding: true,
		Imbalance: 0.5, HasImbalance: true,
	})
	require.Equal(t, 7, total)
	require.GreaterOrEqual(t, points, 2)
	require.Contains(t, reasons, "Funding")
	require.Contains(t, reasons, "OBImb")
}

func TestConfluenceExtrasBelowThresholds(t *testing.T) {
	s := newTestScorer()
	candles := flatCandles(25, 100, 10)

	points, total, reasons := s.confluence(candles, Extras{
		FundingRate: 0.0001, HasFunding: true,
		Imbalance: 0.05, HasImbalance: true,
	})
	require.Equal(t, 7, total)
	require.Equal(t, 0, points)
	require.Empty(t, reasons)
}

func TestConfluenceShortSeriesNoPoints(t *testing.T) {
	s := newTestScorer()

	points, total, reasons := s.confluence(flatCandles(3, 100, 10), Extras{})
	require.Equal(t, 5, total)
	require.Equal(t, 0, points)
	require.Empty(t, reasons)
}

func TestScoreDowngradesWithoutConfluence(t *testing.T) {
	s := newTestScorer()

	// Голосование за покупку, но конфлюэнса на плоской серии нет
	snap := nanSnapshot()
	snap.RSI = 20
	snap.MACD = 1.5
	snap.StochK, snap.StochD = 10, 12

	result := s.Score("XBTUSDTM", snap, flatCandles(25, 100, 10), Extras{})
	require.Equal(t, models.DirectionHold, result.Direction)
	require.Less(t, result.ConfluencePoints, s.config.MinConfluence)
}

func TestScoreBuyWithConfluence(t *testing.T) {
	s := newTestScorer()

	candles := flatCandles(25, 100, 10)
	last := candles[len(candles)-1]
	last.Volume = 50
	last.Close = 150
	last.High = 151

	snap := nanSnapshot()
	snap.RSI = 20
	snap.MACD = 1.5
	snap.BBLower = 200 // закрытие 150 ниже полосы
	snap.StochK, snap.StochD = 10, 12

	result := s.Score("XBTUSDTM", snap, candles, Extras{
		FundingRate: 0.002, HasFunding: true,
		Imbalance: 0.5, HasImbalance: true,
	})

	require.Equal(t, models.DirectionBuy, result.Direction)
	require.GreaterOrEqual(t, result.ConfluencePoints, s.config.MinConfluence)
	require.Equal(t, 7, result.TotalPossiblePoints)
	require.Equal(t, 150.0, result.CurrentPrice)
	require.Equal(t, 0.002, result.FundingRate)
}

func TestScoreEmptySeries(t *testing.T) {
	s := newTestScorer()

	result := s.Score("XBTUSDTM", nanSnapshot(), nil, Extras{})
	require.Equal(t, models.DirectionHold, result.Direction)
	require.Equal(t, 0, result.ConfluencePoints)
	require.Equal(t, 5, result.TotalPossiblePoints)
}
