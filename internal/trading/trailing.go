package trading

import (
	"math"

	"go.uber.org/zap"

	"github.com/hekticxox/WatchDog/internal/config"
	"github.com/hekticxox/WatchDog/pkg/logger"
	"github.com/hekticxox/WatchDog/pkg/models"
)

// TrailingStop состояние стопа по одной позиции.
// Цена стопа монотонна в пользу держателя: для лонга только растет,
// для шорта только падает.
type TrailingStop struct {
	Symbol string
	Side   models.Side
	Price  float64
}

// TrailingEngine ведет трейлинг-стопы по открытым позициям.
// Состояние живет только в памяти процесса: после рестарта стоп
// выводится заново от цены входа.
type TrailingEngine struct {
	config config.TrailingConfig
	stops  map[string]*TrailingStop
}

// NewTrailingEngine создает движок трейлинг-стопов
func NewTrailingEngine(cfg config.TrailingConfig) *TrailingEngine {
	return &TrailingEngine{
		config: cfg,
		stops:  make(map[string]*TrailingStop),
	}
}

// Arm ставит позицию на сопровождение.
// Начальный стоп: entry -+ множитель*ATR, но не дальше процентного пола
// от входа (защита от аномально большого ATR).
func (e *TrailingEngine) Arm(pos *models.Position, atr float64) *TrailingStop {
	var stopPrice float64
	if pos.Side == models.SideBuy {
		stopPrice = pos.EntryPrice - e.config.ATRMultiplier*atr
		floor := pos.EntryPrice * (1 - e.config.EntryFloorPct)
		if math.IsNaN(stopPrice) || stopPrice < floor {
			stopPrice = floor
		}
	} else {
		stopPrice = pos.EntryPrice + e.config.ATRMultiplier*atr
		ceil := pos.EntryPrice * (1 + e.config.EntryFloorPct)
		if math.IsNaN(stopPrice) || stopPrice > ceil {
			stopPrice = ceil
		}
	}

	stop := &TrailingStop{
		Symbol: pos.Symbol,
		Side:   pos.Side,
		Price:  stopPrice,
	}
	e.stops[pos.Symbol] = stop

	logger.Info("Трейлинг-стоп установлен",
		zap.String("symbol", pos.Symbol),
		zap.String("side", string(pos.Side)),
		zap.Float64("stop", stopPrice))

	return stop
}

// Tracked возвращает true, если позиция уже на сопровождении
func (e *TrailingEngine) Tracked(symbol string) bool {
	_, ok := e.stops[symbol]
	return ok
}

// Get возвращает текущий стоп по символу
func (e *TrailingEngine) Get(symbol string) (*TrailingStop, bool) {
	stop, ok := e.stops[symbol]
	return stop, ok
}

// Symbols возвращает все сопровождаемые символы
func (e *TrailingEngine) Symbols() []string {
	symbols := make([]string, 0, len(e.stops))
	for symbol := range e.stops {
		symbols = append(symbols, symbol)
	}
	return symbols
}

// Remove снимает позицию с сопровождения (терминальное состояние)
func (e *TrailingEngine) Remove(symbol string) {
	delete(e.stops, symbol)
}

// Update пересчитывает стоп по свежей цене и ATR.
// Кандидат price -+ множитель*ATR принимается только если он выгоднее
// текущего. Затем проверяется срабатывание: цена пересекла стоп против
// держателя - позицию пора закрывать.
func (e *TrailingEngine) Update(symbol string, price, atr float64) (stopPrice float64, triggered bool) {
	stop, ok := e.stops[symbol]
	if !ok {
		return 0, false
	}

	if !math.IsNaN(atr) {
		if stop.Side == models.SideBuy {
			candidate := price - e.config.ATRMultiplier*atr
			if candidate > stop.Price {
				stop.Price = candidate
			}
		} else {
			candidate := price + e.config.ATRMultiplier*atr
			if candidate < stop.Price {
				stop.Price = candidate
			}
		}
	}

	if stop.Side == models.SideBuy {
		triggered = price <= stop.Price
	} else {
		triggered = price >= stop.Price
	}

	return stop.Price, triggered
}

// LockedProfit зафиксированная стопом прибыль в процентах и USDT
func LockedProfit(stop *TrailingStop, entry, size float64) (pct, usdt float64) {
	if entry == 0 {
		return 0, 0
	}
	if stop.Side == models.SideBuy {
		pct = (stop.Price - entry) / entry * 100
		usdt = (stop.Price - entry) * size
	} else {
		pct = (entry - stop.Price) / entry * 100
		usdt = (entry - stop.Price) * size
	}
	return pct, usdt
}
