package exchange

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2/futures"

	"github.com/hekticxox/WatchDog/pkg/models"
)

// BinanceClient запасной источник истории свечей: у молодых контрактов
// KuCoin история короткая, Binance отдает полную
type BinanceClient struct {
	futures *futures.Client
}

// NewBinanceClient создает клиент Binance Futures.
// Ключи не нужны - используются только публичные данные.
func NewBinanceClient() *BinanceClient {
	return &BinanceClient{
		futures: futures.NewClient("", ""),
	}
}

// ToBinanceSymbol переводит символ контракта KuCoin в тикер Binance:
// XBTUSDTM -> BTCUSDT
func ToBinanceSymbol(symbol string) string {
	s := strings.TrimSuffix(symbol, "M")
	if strings.HasPrefix(s, "XBT") {
		s = "BTC" + s[3:]
	}
	return s
}

// GetKlines получает минутные свечи с Binance Futures
func (c *BinanceClient) GetKlines(ctx context.Context, symbol string, limit int) ([]*models.Candle, error) {
	klines, err := c.futures.NewKlinesService().
		Symbol(ToBinanceSymbol(symbol)).
		Interval("1m").
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения свечей с Binance: %w", err)
	}

	candles := make([]*models.Candle, 0, len(klines))
	for _, k := range klines {
		open, err1 := strconv.ParseFloat(k.Open, 64)
		high, err2 := strconv.ParseFloat(k.High, 64)
		low, err3 := strconv.ParseFloat(k.Low, 64)
		closePrice, err4 := strconv.ParseFloat(k.Close, 64)
		volume, err5 := strconv.ParseFloat(k.Volume, 64)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
			continue
		}
		candles = append(candles, &models.Candle{
			Symbol:    symbol,
			Interval:  "1min",
			OpenTime:  time.UnixMilli(k.OpenTime),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePrice,
			Volume:    volume,
			CloseTime: time.UnixMilli(k.CloseTime),
		})
	}

	return candles, nil
}

// FallbackThreshold минимум свечей KuCoin, ниже которого история
// считается неполной
const FallbackThreshold = 20

// KlinesWithFallback берет историю с KuCoin, а при слишком короткой
// серии добирает ее с Binance
func KlinesWithFallback(ctx context.Context, kucoin *KuCoinClient, binance *BinanceClient, symbol string, minutes int) ([]*models.Candle, error) {
	candles, err := kucoin.GetKlines(ctx, symbol, minutes)
	if err == nil && len(candles) >= FallbackThreshold {
		return candles, nil
	}

	fallback, fbErr := binance.GetKlines(ctx, symbol, minutes)
	if fbErr != nil || len(fallback) < FallbackThreshold {
		if err != nil {
			return nil, fmt.Errorf("история %s недоступна на обеих биржах: %w", symbol, models.ErrDataUnavailable)
		}
		return nil, fmt.Errorf("история %s слишком короткая (%d свечей): %w", symbol, len(candles), models.ErrInsufficientHistory)
	}

	return fallback, nil
}
