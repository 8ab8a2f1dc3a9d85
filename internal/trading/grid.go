package trading

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/hekticxox/WatchDog/internal/config"
	"github.com/hekticxox/WatchDog/pkg/models"
)

// PriceWindow скользящее окно последних цен для оценки волатильности
type PriceWindow struct {
	size   int
	prices []float64
}

// NewPriceWindow создает окно на size наблюдений
func NewPriceWindow(size int) *PriceWindow {
	return &PriceWindow{
		size:   size,
		prices: make([]float64, 0, size),
	}
}

// Push добавляет цену, вытесняя самую старую
func (w *PriceWindow) Push(price float64) {
	w.prices = append(w.prices, price)
	if len(w.prices) > w.size {
		w.prices = w.prices[1:]
	}
}

// Len количество накопленных наблюдений
func (w *PriceWindow) Len() int {
	return len(w.prices)
}

// SpacingFraction коэффициент вариации окна (stddev/mean).
// Меньше двух наблюдений - возвращается fallback.
func (w *PriceWindow) SpacingFraction(fallback float64) float64 {
	if len(w.prices) < 2 {
		return fallback
	}

	var sum float64
	for _, p := range w.prices {
		sum += p
	}
	mean := sum / float64(len(w.prices))
	if mean == 0 {
		return fallback
	}

	// Выборочное стандартное отклонение (n-1)
	var sq float64
	for _, p := range w.prices {
		d := p - mean
		sq += d * d
	}
	stddev := math.Sqrt(sq / float64(len(w.prices)-1))

	return stddev / mean
}

// GridPlanner строит симметричную лестницу лимитных ордеров
// вокруг опорной цены с шагом, выведенным из волатильности
type GridPlanner struct {
	config config.GridConfig
}

// NewGridPlanner создает планировщик сетки
func NewGridPlanner(cfg config.GridConfig) *GridPlanner {
	return &GridPlanner{
		config: cfg,
	}
}

// Plan строит план сетки: на каждом уровне i по одному buy ниже и sell выше
// опорной цены на i*шаг. Цены округляются до тиковой точности инструмента;
// шаг не меньше одного тика, поэтому расстояние строго растет с уровнем.
func (p *GridPlanner) Plan(symbol string, reference, spacingFraction, orderSize float64) models.GridPlan {
	tick := decimal.New(1, -p.config.TickPrecision)

	spacing := decimal.NewFromFloat(spacingFraction * reference).Round(p.config.TickPrecision)
	if spacing.LessThan(tick) {
		spacing = tick
	}

	ref := decimal.NewFromFloat(reference).Round(p.config.TickPrecision)

	plan := models.GridPlan{
		Symbol:    symbol,
		Reference: reference,
		Spacing:   spacing.InexactFloat64(),
		Levels:    make([]models.GridLevel, 0, 2*p.config.Levels),
	}

	for i := 1; i <= p.config.Levels; i++ {
		offset := spacing.Mul(decimal.NewFromInt(int64(i)))
		buyPrice, _ := ref.Sub(offset).Float64()
		sellPrice, _ := ref.Add(offset).Float64()

		plan.Levels = append(plan.Levels,
			models.GridLevel{Side: models.SideBuy, Price: buyPrice, Size: orderSize},
			models.GridLevel{Side: models.SideSell, Price: sellPrice, Size: orderSize},
		)
	}

	return plan
}

// Divisor на сколько частей делится бюджет сетки:
// по одному buy и sell на каждый уровень
func (p *GridPlanner) Divisor() int {
	return 2 * p.config.Levels
}
