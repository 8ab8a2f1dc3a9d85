package signal

import (
	"math"
	"time"

	"github.com/hekticxox/WatchDog/internal/analysis/indicators"
	"github.com/hekticxox/WatchDog/internal/config"
	"github.com/hekticxox/WatchDog/pkg/models"
)

// Уровни возврата RSI для проверки разворота
const (
	rsiReversalLow  = 30
	rsiReversalHigh = 70
)

// Scorer решающее ядро: сводит индикаторы в направление сделки
// и счет конфлюэнса. Два независимых трека:
//   - первичное голосование (4 бинарных проверки на сторону) дает направление;
//   - вторичный счет конфлюэнса фильтрует слабые сигналы.
//
// Отсутствующий индикатор (NaN) очков не дает и ошибкой не является.
type Scorer struct {
	config config.ScorerConfig
	lib    *indicators.Library
}

// NewScorer создает скорер сигналов
func NewScorer(cfg config.ScorerConfig, lib *indicators.Library) *Scorer {
	return &Scorer{
		config: cfg,
		lib:    lib,
	}
}

// Extras необязательные внешние данные для дополнительных очков конфлюэнса
type Extras struct {
	FundingRate  float64
	HasFunding   bool
	Imbalance    float64
	HasImbalance bool
}

// Score оценивает снимок индикаторов и серию свечей.
// candles нужны вторичному треку (объемы, пробои, кроссы); допускается
// короткая серия - несработавшие проверки очков не дают.
func (s *Scorer) Score(symbol string, snap models.IndicatorSnapshot, candles []*models.Candle, extras Extras) models.SignalResult {
	result := models.SignalResult{
		Symbol:     symbol,
		Timestamp:  time.Now(),
		Direction:  models.DirectionHold,
		Indicators: snap,
	}
	if len(candles) > 0 {
		result.CurrentPrice = candles[len(candles)-1].Close
	}
	if extras.HasFunding {
		result.FundingRate = extras.FundingRate
	}

	direction := s.vote(snap, result.CurrentPrice)

	points, total, reasons := s.confluence(candles, extras)
	result.ConfluencePoints = points
	result.TotalPossiblePoints = total
	result.Reasons = reasons

	// Направление без подтверждения конфлюэнсом понижается до hold
	if direction != models.DirectionHold && points < s.config.MinConfluence {
		direction = models.DirectionHold
	}
	result.Direction = direction

	return result
}

// vote первичное голосование: по одному очку за каждую сработавшую проверку.
// Покупка проверяется первой, при равенстве счетов выигрывает buy.
func (s *Scorer) vote(snap models.IndicatorSnapshot, lastClose float64) models.Direction {
	buyScore := 0
	sellScore := 0

	if !math.IsNaN(snap.RSI) {
		if snap.RSI < s.config.RSIBuyBelow {
			buyScore++
		}
		if snap.RSI > s.config.RSISellAbove {
			sellScore++
		}
	}
	if !math.IsNaN(snap.MACD) {
		if snap.MACD > 0 {
			buyScore++
		}
		if snap.MACD < 0 {
			sellScore++
		}
	}
	if lastClose > 0 {
		if !math.IsNaN(snap.BBLower) && lastClose < snap.BBLower {
			buyScore++
		}
		if !math.IsNaN(snap.BBUpper) && lastClose > snap.BBUpper {
			sellScore++
		}
	}
	if !math.IsNaN(snap.StochK) && !math.IsNaN(snap.StochD) {
		if snap.StochK < s.config.StochBuyBelow && snap.StochD < s.config.StochBuyBelow {
			buyScore++
		}
		if snap.StochK > s.config.StochSellAbove && snap.StochD > s.config.StochSellAbove {
			sellScore++
		}
	}

	if buyScore >= s.config.MinVotes {
		return models.DirectionBuy
	}
	if sellScore >= s.config.MinVotes {
		return models.DirectionSell
	}
	return models.DirectionHold
}

// confluence вторичный счет: независимая шкала из 5 базовых проверок
// плюс до двух опциональных при наличии данных
func (s *Scorer) confluence(candles []*models.Candle, extras Extras) (points, total int, reasons []string) {
	lookback := s.config.LookbackBars
	n := len(candles)
	_, highs, lows, closes, volumes := indicators.Series(candles)

	// 1. Всплеск объема: текущий объем против скользящего среднего за окно
	total++
	if n >= lookback {
		var volSum float64
		for i := n - lookback; i < n; i++ {
			volSum += volumes[i]
		}
		mean := volSum / float64(lookback)
		if mean > 0 && volumes[n-1] > mean*s.config.VolSpikeFactor {
			points++
			reasons = append(reasons, "VolSpike")
		}
	}

	// 2. Пробой экстремума окна, не считая текущий бар
	total++
	if n >= lookback+1 {
		prevHigh := math.Inf(-1)
		prevLow := math.Inf(1)
		for i := n - 1 - lookback; i < n-1; i++ {
			if highs[i] > prevHigh {
				prevHigh = highs[i]
			}
			if lows[i] < prevLow {
				prevLow = lows[i]
			}
		}
		close := closes[n-1]
		if close > prevHigh || close < prevLow {
			points++
			reasons = append(reasons, "Breakout")
		}
	}

	ind := s.lib.Config()

	// 3. Конфлюэнс скользящих: закрытие по одну сторону от EMA и SMA
	total++
	if n >= ind.SMASlow && n >= ind.EMAFast {
		ema := s.lib.EMA(closes)
		sma := s.lib.SMA(closes)
		lastEMA := ema[n-1]
		lastSMA := sma[n-1]
		close := closes[n-1]
		if !math.IsNaN(lastEMA) && !math.IsNaN(lastSMA) && lastEMA != 0 && lastSMA != 0 {
			if (close > lastEMA && close > lastSMA) || (close < lastEMA && close < lastSMA) {
				points++
				reasons = append(reasons, "MA")
			}
		}
	}

	// 4. Пересечение линии MACD и сигнальной между предыдущим и текущим баром
	total++
	if n >= ind.MACDSlow+ind.MACDSignal+1 {
		macd, signal, _ := s.lib.MACD(closes)
		prevM, curM := macd[n-2], macd[n-1]
		prevS, curS := signal[n-2], signal[n-1]
		if !math.IsNaN(prevM) && !math.IsNaN(curM) && !math.IsNaN(prevS) && !math.IsNaN(curS) &&
			(curM != 0 || curS != 0) {
			crossUp := prevM < prevS && curM > curS
			crossDown := prevM > prevS && curM < curS
			if crossUp || crossDown {
				points++
				reasons = append(reasons, "MACDcross")
			}
		}
	}

	// 5. Разворот RSI: возврат из зоны перепроданности/перекупленности
	total++
	if n >= ind.RSIPeriod+2 {
		rsi := s.lib.RSI(closes)
		prev, cur := rsi[n-2], rsi[n-1]
		if !math.IsNaN(prev) && !math.IsNaN(cur) && prev != 0 {
			revUp := prev < rsiReversalLow && cur > rsiReversalLow
			revDown := prev > rsiReversalHigh && cur < rsiReversalHigh
			if revUp || revDown {
				points++
				reasons = append(reasons, "RSIrev")
			}
		}
	}

	// 6. Экстремальная ставка финансирования (если данные поданы)
	if extras.HasFunding {
		total++
		if math.Abs(extras.FundingRate) > s.config.FundingThreshold {
			points++
			reasons = append(reasons, "Funding")
		}
	}

	// 7. Дисбаланс стакана (если данные поданы)
	if extras.HasImbalance {
		total++
		if math.Abs(extras.Imbalance) > s.config.ImbThreshold {
			points++
			reasons = append(reasons, "OBImb")
		}
	}

	return points, total, reasons
}
