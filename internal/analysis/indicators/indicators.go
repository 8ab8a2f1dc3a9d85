package indicators

import (
	"math"

	"github.com/markcheno/go-talib"

	"github.com/hekticxox/WatchDog/internal/config"
	"github.com/hekticxox/WatchDog/pkg/models"
)

// Library считает технические индикаторы по упорядоченной серии свечей.
// Все методы без состояния: вход - свечи по возрастанию времени.
type Library struct {
	config config.IndicatorConfig
}

// NewLibrary создает библиотеку индикаторов
func NewLibrary(cfg config.IndicatorConfig) *Library {
	return &Library{
		config: cfg,
	}
}

// Config возвращает периоды индикаторов (нужно скореру для проверок длины серии)
func (l *Library) Config() config.IndicatorConfig {
	return l.config
}

// Series раскладывает свечи на массивы для talib
func Series(candles []*models.Candle) (opens, highs, lows, closes, volumes []float64) {
	opens = make([]float64, len(candles))
	highs = make([]float64, len(candles))
	lows = make([]float64, len(candles))
	closes = make([]float64, len(candles))
	volumes = make([]float64, len(candles))
	for i, c := range candles {
		opens[i] = c.Open
		highs[i] = c.High
		lows[i] = c.Low
		closes[i] = c.Close
		volumes[i] = c.Volume
	}
	return
}

// RSI возвращает серию RSI
func (l *Library) RSI(closes []float64) []float64 {
	return talib.Rsi(closes, l.config.RSIPeriod)
}

// MACD возвращает линию MACD, сигнальную линию и гистограмму
func (l *Library) MACD(closes []float64) (macd, signal, hist []float64) {
	return talib.Macd(closes, l.config.MACDFast, l.config.MACDSlow, l.config.MACDSignal)
}

// Bollinger возвращает верхнюю, среднюю и нижнюю полосы Боллинджера
func (l *Library) Bollinger(closes []float64) (upper, middle, lower []float64) {
	return talib.BBands(closes, l.config.BBPeriod, 2.0, 2.0, talib.SMA)
}

// ATR возвращает серию Average True Range
func (l *Library) ATR(highs, lows, closes []float64) []float64 {
	return talib.Atr(highs, lows, closes, l.config.ATRPeriod)
}

// Stochastic возвращает %K и %D стохастического осциллятора
func (l *Library) Stochastic(highs, lows, closes []float64) (k, d []float64) {
	return talib.Stoch(highs, lows, closes,
		l.config.StochPeriod, l.config.StochSmooth, talib.SMA,
		l.config.StochSmooth, talib.SMA)
}

// EMA возвращает экспоненциальную скользящую среднюю
func (l *Library) EMA(closes []float64) []float64 {
	return talib.Ema(closes, l.config.EMAFast)
}

// SMA возвращает простую скользящую среднюю
func (l *Library) SMA(closes []float64) []float64 {
	return talib.Sma(closes, l.config.SMASlow)
}

// VWAP кумулятивная средневзвешенная по объему цена.
// В talib нет VWAP, считаем как sum(close*vol)/sum(vol).
func VWAP(closes, volumes []float64) []float64 {
	result := make([]float64, len(closes))
	var pvSum, vSum float64
	for i := range closes {
		pvSum += closes[i] * volumes[i]
		vSum += volumes[i]
		if vSum == 0 {
			result[i] = math.NaN()
			continue
		}
		result[i] = pvSum / vSum
	}
	return result
}

// Snapshot собирает последние значения всех индикаторов по серии свечей.
// Индикатор, для которого не хватает истории, остается NaN - скоринг такие
// поля пропускает. Менее двух свечей - данных нет совсем.
func (l *Library) Snapshot(candles []*models.Candle) (models.IndicatorSnapshot, error) {
	snap := models.IndicatorSnapshot{
		RSI:        math.NaN(),
		MACD:       math.NaN(),
		MACDSignal: math.NaN(),
		BBUpper:    math.NaN(),
		BBLower:    math.NaN(),
		ATR:        math.NaN(),
		StochK:     math.NaN(),
		StochD:     math.NaN(),
		VWAP:       math.NaN(),
		EMAFast:    math.NaN(),
		SMASlow:    math.NaN(),
	}

	if len(candles) < 2 {
		return snap, models.ErrInsufficientHistory
	}

	_, highs, lows, closes, volumes := Series(candles)
	n := len(closes)

	if n > l.config.RSIPeriod {
		rsi := l.RSI(closes)
		snap.RSI = rsi[n-1]
	}
	if n >= l.config.MACDSlow+l.config.MACDSignal {
		macd, signal, _ := l.MACD(closes)
		snap.MACD = macd[n-1]
		snap.MACDSignal = signal[n-1]
	}
	if n >= l.config.BBPeriod {
		upper, _, lower := l.Bollinger(closes)
		snap.BBUpper = upper[n-1]
		snap.BBLower = lower[n-1]
	}
	if n > l.config.ATRPeriod {
		atr := l.ATR(highs, lows, closes)
		snap.ATR = atr[n-1]
	}
	if n > l.config.StochPeriod+l.config.StochSmooth {
		k, d := l.Stochastic(highs, lows, closes)
		snap.StochK = k[n-1]
		snap.StochD = d[n-1]
	}
	if n >= l.config.EMAFast {
		ema := l.EMA(closes)
		snap.EMAFast = ema[n-1]
	}
	if n >= l.config.SMASlow {
		sma := l.SMA(closes)
		snap.SMASlow = sma[n-1]
	}

	vwap := VWAP(closes, volumes)
	snap.VWAP = vwap[n-1]

	return snap, nil
}

// LastATR последнее значение ATR или NaN, утилита для трейлинг-стопа и сетки
func (l *Library) LastATR(candles []*models.Candle) float64 {
	if len(candles) <= l.config.ATRPeriod {
		return math.NaN()
	}
	_, highs, lows, closes, _ := Series(candles)
	atr := l.ATR(highs, lows, closes)
	return atr[len(atr)-1]
}
