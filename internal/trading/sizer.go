package trading

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/hekticxox/WatchDog/internal/config"
	"github.com/hekticxox/WatchDog/pkg/logger"
	"github.com/hekticxox/WatchDog/pkg/models"
)

// Sizer переводит бюджет в исполнимый размер ордера с учетом
// минимального нотионала биржи и доступной маржи
type Sizer struct {
	config config.TradingConfig
}

// NewSizer создает калькулятор размера позиции
func NewSizer(cfg config.TradingConfig) *Sizer {
	return &Sizer{
		config: cfg,
	}
}

// Size рассчитывает количество по бюджету, плечу и цене.
// divisor - на сколько частей делится бюджет (2*уровни для сетки, 1 для
// одиночного ордера). Если нотионал ниже минимума биржи, размер поднимается
// до минимально допустимого - об этом сообщает adjusted.
func (s *Sizer) Size(budgetUSDT float64, leverage int, price float64, divisor int) (qty float64, adjusted bool, err error) {
	if price <= 0 {
		return 0, false, fmt.Errorf("некорректная цена %f: %w", price, models.ErrSizingInfeasible)
	}
	if budgetUSDT <= 0 || leverage <= 0 || divisor <= 0 {
		return 0, false, fmt.Errorf("некорректные параметры размера: %w", models.ErrSizingInfeasible)
	}

	qty = (budgetUSDT / float64(divisor) * float64(leverage)) / price

	minQty := s.config.MinNotionalUSDT / price
	if qty < minQty {
		qty = minQty
		adjusted = true
		logger.Warn("Размер ордера увеличен до минимального нотионала",
			zap.Float64("qty", qty),
			zap.Float64("min_notional", s.config.MinNotionalUSDT))
	}

	return qty, adjusted, nil
}

// RequiredMargin маржа, необходимая для позиции
func RequiredMargin(qty, price float64, leverage int) float64 {
	return qty * price / float64(leverage)
}

// FitMargin подгоняет количество под доступный капитал.
// Количество уменьшается по единице до пола: целое число контрактов,
// не опускающее нотионал ниже минимума биржи, но не меньше одного.
// Если маржа все равно не помещается - размер подобрать невозможно.
func (s *Sizer) FitMargin(qty, price float64, leverage int, equity float64) (float64, error) {
	if equity <= s.config.MinEquityUSDT {
		return 0, fmt.Errorf("капитал %.2f USDT ниже порога %.2f: %w",
			equity, s.config.MinEquityUSDT, models.ErrSizingInfeasible)
	}

	if RequiredMargin(qty, price, leverage) <= equity {
		return qty, nil
	}

	logger.Warn("Требуемая маржа превышает капитал, уменьшаем размер",
		zap.Float64("margin", RequiredMargin(qty, price, leverage)),
		zap.Float64("equity", equity))

	// Снижаем размер целыми контрактами, как это делает биржа
	floor := math.Max(1, math.Ceil(s.config.MinNotionalUSDT/price))
	for fitted := math.Floor(qty); fitted >= floor; fitted-- {
		if RequiredMargin(fitted, price, leverage) <= equity {
			return fitted, nil
		}
	}

	return 0, fmt.Errorf("маржа не помещается в капитал %.2f USDT: %w",
		equity, models.ErrSizingInfeasible)
}
