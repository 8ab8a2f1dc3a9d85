package trading

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hekticxox/WatchDog/pkg/models"
)

// fakeGateway записывает выставленные ордера
type fakeGateway struct {
	intents []models.OrderIntent
	oids    []string
	result  models.OrderResult
	err     error
}

func (g *fakeGateway) PlaceOrder(ctx context.Context, intent models.OrderIntent, clientOID string) (models.OrderResult, error) {
	g.intents = append(g.intents, intent)
	g.oids = append(g.oids, clientOID)
	return g.result, g.err
}

func TestSubmit(t *testing.T) {
	gw := &fakeGateway{result: models.OrderResult{Accepted: true, ExchangeOrderID: "abc"}}
	e := NewExecutor(gw)

	result, err := e.Submit(context.Background(), models.OrderIntent{
		Symbol: "XBTUSDTM", Side: models.SideBuy, Size: 1, Leverage: 5, OrderType: "market",
	})
	require.NoError(t, err)
	require.True(t, result.Accepted)
	require.Equal(t, "abc", result.ExchangeOrderID)
	require.Len(t, gw.oids, 1)
	require.NotEmpty(t, gw.oids[0])
}

func TestSubmitUniqueClientOIDs(t *testing.T) {
	gw := &fakeGateway{result: models.OrderResult{Accepted: true}}
	e := NewExecutor(gw)

	intent := models.OrderIntent{Symbol: "XBTUSDTM", Side: models.SideBuy, Size: 1, OrderType: "market"}
	_, err := e.Submit(context.Background(), intent)
	require.NoError(t, err)
	_, err = e.Submit(context.Background(), intent)
	require.NoError(t, err)

	require.NotEqual(t, gw.oids[0], gw.oids[1])
}

func TestSubmitZeroSize(t *testing.T) {
	gw := &fakeGateway{}
	e := NewExecutor(gw)

	_, err := e.Submit(context.Background(), models.OrderIntent{Symbol: "XBTUSDTM", Side: models.SideBuy})
	require.ErrorIs(t, err, models.ErrSizingInfeasible)
	require.Empty(t, gw.intents)
}

func TestSubmitGatewayError(t *testing.T) {
	gwErr := errors.New("сеть недоступна")
	gw := &fakeGateway{err: gwErr}
	e := NewExecutor(gw)

	_, err := e.Submit(context.Background(), models.OrderIntent{
		Symbol: "XBTUSDTM", Side: models.SideBuy, Size: 1,
	})
	require.ErrorIs(t, err, gwErr)
}

func TestClosePosition(t *testing.T) {
	gw := &fakeGateway{result: models.OrderResult{Accepted: true}}
	e := NewExecutor(gw)

	_, err := e.ClosePosition(context.Background(), "XBTUSDTM", models.SideBuy, 3, 5)
	require.NoError(t, err)
	require.Len(t, gw.intents, 1)

	intent := gw.intents[0]
	require.Equal(t, models.SideSell, intent.Side)
	require.Equal(t, 3.0, intent.Size)
	require.Equal(t, "market", intent.OrderType)
	require.True(t, intent.ReduceOnly)
}
