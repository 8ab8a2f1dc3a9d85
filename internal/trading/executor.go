package trading

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hekticxox/WatchDog/pkg/logger"
	"github.com/hekticxox/WatchDog/pkg/models"
)

// Gateway канал выставления ордеров на бирже.
// clientOID - уникальный токен запроса, единственная гарантия идемпотентности.
type Gateway interface {
	PlaceOrder(ctx context.Context, intent models.OrderIntent, clientOID string) (models.OrderResult, error)
}

// Executor отправляет торговые намерения на биржу.
// Отправка fire-and-forget: неудача логируется и пропускается, повторов нет.
type Executor struct {
	gateway Gateway
}

// NewExecutor создает исполнителя ордеров
func NewExecutor(gateway Gateway) *Executor {
	return &Executor{
		gateway: gateway,
	}
}

// Submit выставляет ордер по намерению
func (e *Executor) Submit(ctx context.Context, intent models.OrderIntent) (models.OrderResult, error) {
	if intent.Size <= 0 {
		return models.OrderResult{}, fmt.Errorf("нулевой размер ордера для %s: %w",
			intent.Symbol, models.ErrSizingInfeasible)
	}

	clientOID := uuid.NewString()
	result, err := e.gateway.PlaceOrder(ctx, intent, clientOID)
	if err != nil {
		logger.Error("Ошибка выставления ордера",
			zap.String("symbol", intent.Symbol),
			zap.String("side", string(intent.Side)),
			zap.Error(err))
		return models.OrderResult{}, err
	}

	if result.Accepted {
		logger.Info("Ордер принят биржей",
			zap.String("symbol", intent.Symbol),
			zap.String("side", string(intent.Side)),
			zap.Float64("size", intent.Size),
			zap.String("order_id", result.ExchangeOrderID))
	} else {
		logger.Warn("Ордер отклонен биржей",
			zap.String("symbol", intent.Symbol),
			zap.String("reason", result.Reason))
	}

	return result, nil
}

// ClosePosition закрывает позицию встречным рыночным ордером на полный размер
func (e *Executor) ClosePosition(ctx context.Context, symbol string, side models.Side, size float64, leverage int) (models.OrderResult, error) {
	intent := models.OrderIntent{
		Symbol:     symbol,
		Side:       side.Opposite(),
		Size:       size,
		Leverage:   leverage,
		OrderType:  "market",
		ReduceOnly: true,
	}
	return e.Submit(ctx, intent)
}
