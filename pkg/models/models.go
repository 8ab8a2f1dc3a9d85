package models

import (
	"errors"
	"fmt"
	"time"
)

// Ошибки верхнего уровня, по которым сканер решает судьбу символа в цикле
var (
	// ErrDataUnavailable - временный сбой запроса данных,
	// символ пропускается в этом цикле
	ErrDataUnavailable = errors.New("данные недоступны")
	// ErrInsufficientHistory - истории свечей стабильно не хватает ни на одной
	// бирже, символ отправляется в черный список. Оборачивает
	// ErrDataUnavailable, чтобы общие проверки доступности продолжали работать.
	ErrInsufficientHistory = fmt.Errorf("недостаточно истории свечей: %w", ErrDataUnavailable)
	// ErrAuthFailure - биржа отклонила подпись/ключ, фатально для оператора
	ErrAuthFailure = errors.New("ошибка авторизации на бирже")
	// ErrSizingInfeasible - нет размера ордера, удовлетворяющего минимальному
	// нотионалу и марже
	ErrSizingInfeasible = errors.New("невозможно подобрать размер позиции")
)

// Candle представляет свечу
type Candle struct {
	Symbol    string
	Interval  string
	OpenTime  time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	CloseTime time.Time
}

// OrderBookLevel представляет уровень стакана
type OrderBookLevel struct {
	Price  float64
	Amount float64
}

// OrderBook представляет стакан заявок.
// Биды отсортированы по убыванию цены, аски по возрастанию.
type OrderBook struct {
	Symbol    string
	Timestamp time.Time
	Bids      []OrderBookLevel
	Asks      []OrderBookLevel
}

// Side сторона позиции/ордера
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Opposite возвращает противоположную сторону (для закрытия позиции)
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Direction итоговое направление сигнала
type Direction string

const (
	DirectionBuy  Direction = "buy"
	DirectionSell Direction = "sell"
	DirectionHold Direction = "hold"
)

// FundingRate представляет ставку финансирования
type FundingRate struct {
	Symbol    string
	Rate      float64
	Timestamp time.Time
}

// Position снимок открытой позиции, принадлежит бирже
type Position struct {
	Symbol           string
	Side             Side
	Size             float64
	EntryPrice       float64
	LiquidationPrice float64
	Margin           float64
	UnrealizedPnl    float64
	ROI              float64
}

// IndicatorSnapshot последние значения индикаторов по символу.
// Поля NaN, пока не накоплено достаточно свечей.
type IndicatorSnapshot struct {
	RSI        float64
	MACD       float64
	MACDSignal float64
	BBUpper    float64
	BBLower    float64
	ATR        float64
	StochK     float64
	StochD     float64
	VWAP       float64
	EMAFast    float64
	SMASlow    float64
}

// SignalResult представляет результат сигнала
type SignalResult struct {
	Symbol              string
	Timestamp           time.Time
	Direction           Direction
	ConfluencePoints    int
	TotalPossiblePoints int
	Reasons             []string
	Indicators          IndicatorSnapshot
	FundingRate         float64
	CurrentPrice        float64
}

// OrderIntent намерение выставить ордер
type OrderIntent struct {
	Symbol     string
	Side       Side
	Size       float64
	Leverage   int
	OrderType  string // "market" или "limit"
	LimitPrice float64
	ReduceOnly bool
}

// OrderResult ответ биржи на выставление ордера
type OrderResult struct {
	Accepted        bool
	ExchangeOrderID string
	Reason          string
}

// GridLevel один уровень сетки
type GridLevel struct {
	Side  Side
	Price float64
	Size  float64
}

// GridPlan лестница лимитных ордеров вокруг опорной цены
type GridPlan struct {
	Symbol    string
	Reference float64
	Spacing   float64
	Levels    []GridLevel
}
