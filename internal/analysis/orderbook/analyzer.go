package orderbook

import (
	"math"
	"sort"

	"github.com/hekticxox/WatchDog/internal/config"
	"github.com/hekticxox/WatchDog/pkg/models"
)

// Analyzer реализует аналитику стакана заявок.
// Все расчеты по последнему снимку, истории стакан не хранит.
type Analyzer struct {
	config config.OrderBookConfig
}

// NewAnalyzer создает новый анализатор стакана заявок
func NewAnalyzer(cfg config.OrderBookConfig) *Analyzer {
	return &Analyzer{
		config: cfg,
	}
}

// Metrics сводка метрик стакана по одному снимку
type Metrics struct {
	Imbalance    float64
	Spread       float64
	BidWallPrice float64
	BidWallSize  float64
	AskWallPrice float64
	AskWallSize  float64
	BidLiquidity float64
	AskLiquidity float64
	BidSlope     float64
	AskSlope     float64
}

// Analyze рассчитывает все метрики стакана
func (a *Analyzer) Analyze(book *models.OrderBook) Metrics {
	Normalize(book)

	m := Metrics{
		Imbalance: Imbalance(book),
		Spread:    Spread(book),
		BidSlope:  Slope(book.Bids, a.config.SlopeLevels),
		AskSlope:  Slope(book.Asks, a.config.SlopeLevels),
	}
	m.BidWallPrice, m.BidWallSize = LargestWall(book.Bids)
	m.AskWallPrice, m.AskWallSize = LargestWall(book.Asks)
	m.BidLiquidity, m.AskLiquidity = CumulativeDepth(book, a.config.DepthPct)
	return m
}

// Normalize приводит стакан к инварианту сортировки:
// биды по убыванию цены, аски по возрастанию
func Normalize(book *models.OrderBook) {
	sort.Slice(book.Bids, func(i, j int) bool {
		return book.Bids[i].Price > book.Bids[j].Price
	})
	sort.Slice(book.Asks, func(i, j int) bool {
		return book.Asks[i].Price < book.Asks[j].Price
	})
}

// Imbalance дисбаланс спроса и предложения в диапазоне [-1, 1].
// Положительные значения - преобладание покупателей.
func Imbalance(book *models.OrderBook) float64 {
	var bidVol, askVol float64
	for _, b := range book.Bids {
		bidVol += b.Amount
	}
	for _, a := range book.Asks {
		askVol += a.Amount
	}
	total := bidVol + askVol
	if total <= 0 {
		return 0
	}
	return (bidVol - askVol) / (total + 1e-9)
}

// Spread разница между лучшим аском и лучшим бидом
func Spread(book *models.OrderBook) float64 {
	if len(book.Bids) == 0 || len(book.Asks) == 0 {
		return 0
	}
	return book.Asks[0].Price - book.Bids[0].Price
}

// MidPrice средняя цена между лучшим бидом и аском
func MidPrice(book *models.OrderBook) float64 {
	if len(book.Bids) == 0 || len(book.Asks) == 0 {
		return 0
	}
	return (book.Bids[0].Price + book.Asks[0].Price) / 2
}

// LargestWall находит уровень с максимальным объемом (стену)
func LargestWall(levels []models.OrderBookLevel) (price, size float64) {
	for _, level := range levels {
		if level.Amount > size {
			price = level.Price
			size = level.Amount
		}
	}
	return price, size
}

// CumulativeDepth суммарная ликвидность бидов и асков в пределах
// pct процентов от средней цены (pct=0.1 означает 0.1%)
func CumulativeDepth(book *models.OrderBook, pct float64) (bidLiq, askLiq float64) {
	mid := MidPrice(book)
	if mid == 0 {
		return 0, 0
	}
	lower := mid * (1 - pct/100)
	upper := mid * (1 + pct/100)

	for _, b := range book.Bids {
		if b.Price >= lower {
			bidLiq += b.Amount
		}
	}
	for _, a := range book.Asks {
		if a.Price <= upper {
			askLiq += a.Amount
		}
	}
	return bidLiq, askLiq
}

// Slope наклон кумулятивного объема по цене на верхних levels уровнях.
// Линейная регрессия методом наименьших квадратов.
func Slope(levels []models.OrderBookLevel, count int) float64 {
	if count > len(levels) {
		count = len(levels)
	}
	if count < 2 {
		return 0
	}

	prices := make([]float64, count)
	cumVolumes := make([]float64, count)
	var cum float64
	for i := 0; i < count; i++ {
		prices[i] = levels[i].Price
		cum += levels[i].Amount
		cumVolumes[i] = cum
	}

	n := float64(count)
	var sumX, sumY, sumXY, sumXX float64
	for i := 0; i < count; i++ {
		sumX += prices[i]
		sumY += cumVolumes[i]
		sumXY += prices[i] * cumVolumes[i]
		sumXX += prices[i] * prices[i]
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	slope := (n*sumXY - sumX*sumY) / denom
	if math.IsNaN(slope) {
		return 0
	}
	return slope
}
