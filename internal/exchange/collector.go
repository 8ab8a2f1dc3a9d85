package exchange

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hekticxox/WatchDog/pkg/logger"
	"github.com/hekticxox/WatchDog/pkg/models"
)

// DataCollector фоновой сборщик рыночных данных
type DataCollector interface {
	Start(ctx context.Context) error
	Stop()
}

// MarketCache потокобезопасный кэш последних рыночных данных.
// Наполняется сборщиками и websocket-потоком, читается сканером и UI.
type MarketCache struct {
	mu        sync.RWMutex
	maxSeries int
	candles   map[string][]*models.Candle
	books     map[string]*models.OrderBook
	funding   map[string]*models.FundingRate
}

// NewMarketCache создает кэш, хранящий не более maxSeries свечей на символ
func NewMarketCache(maxSeries int) *MarketCache {
	return &MarketCache{
		maxSeries: maxSeries,
		candles:   make(map[string][]*models.Candle),
		books:     make(map[string]*models.OrderBook),
		funding:   make(map[string]*models.FundingRate),
	}
}

// SetCandles заменяет серию свечей символа
func (c *MarketCache) SetCandles(symbol string, candles []*models.Candle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(candles) > c.maxSeries {
		candles = candles[len(candles)-c.maxSeries:]
	}
	c.candles[symbol] = candles
}

// AppendCandle добавляет свечу; свеча с тем же временем открытия
// заменяет последнюю (обновление незакрытого бара)
func (c *MarketCache) AppendCandle(candle *models.Candle) {
	c.mu.Lock()
	defer c.mu.Unlock()

	series := c.candles[candle.Symbol]
	if n := len(series); n > 0 && series[n-1].OpenTime.Equal(candle.OpenTime) {
		series[n-1] = candle
	} else {
		series = append(series, candle)
		if len(series) > c.maxSeries {
			series = series[1:]
		}
	}
	c.candles[candle.Symbol] = series
}

// Candles возвращает копию серии свечей символа
func (c *MarketCache) Candles(symbol string) []*models.Candle {
	c.mu.RLock()
	defer c.mu.RUnlock()
	series := c.candles[symbol]
	out := make([]*models.Candle, len(series))
	copy(out, series)
	return out
}

// SetOrderBook обновляет снимок стакана
func (c *MarketCache) SetOrderBook(book *models.OrderBook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.books[book.Symbol] = book
}

// OrderBook возвращает последний снимок стакана символа
func (c *MarketCache) OrderBook(symbol string) (*models.OrderBook, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	book, ok := c.books[symbol]
	return book, ok
}

// SetFunding обновляет ставку финансирования
func (c *MarketCache) SetFunding(rate *models.FundingRate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.funding[rate.Symbol] = rate
}

// Funding возвращает последнюю ставку финансирования символа
func (c *MarketCache) Funding(symbol string) (*models.FundingRate, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rate, ok := c.funding[symbol]
	return rate, ok
}

// CandleCollector периодически подтягивает историю свечей в кэш
type CandleCollector struct {
	kucoin   *KuCoinClient
	binance  *BinanceClient
	cache    *MarketCache
	symbols  []string
	minutes  int
	interval time.Duration
}

// NewCandleCollector создает сборщик свечей
func NewCandleCollector(kucoin *KuCoinClient, binance *BinanceClient, cache *MarketCache, symbols []string, minutes, intervalSec int) *CandleCollector {
	return &CandleCollector{
		kucoin:   kucoin,
		binance:  binance,
		cache:    cache,
		symbols:  symbols,
		minutes:  minutes,
		interval: time.Duration(intervalSec) * time.Second,
	}
}

// Start запускает цикл сбора до отмены контекста
func (c *CandleCollector) Start(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.collect(ctx)
	for {
		select {
		case <-ticker.C:
			c.collect(ctx)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *CandleCollector) collect(ctx context.Context) {
	for _, symbol := range c.symbols {
		candles, err := KlinesWithFallback(ctx, c.kucoin, c.binance, symbol, c.minutes)
		if err != nil {
			logger.Debug("Свечи недоступны", zap.String("symbol", symbol), zap.Error(err))
			continue
		}
		c.cache.SetCandles(symbol, candles)
	}
}

// Stop завершает работу сборщика
func (c *CandleCollector) Stop() {}

// OrderBookCollector периодически обновляет снимки стакана в кэше
type OrderBookCollector struct {
	kucoin   *KuCoinClient
	cache    *MarketCache
	symbols  []string
	interval time.Duration
}

// NewOrderBookCollector создает сборщик стаканов
func NewOrderBookCollector(kucoin *KuCoinClient, cache *MarketCache, symbols []string, intervalSec int) *OrderBookCollector {
	return &OrderBookCollector{
		kucoin:   kucoin,
		cache:    cache,
		symbols:  symbols,
		interval: time.Duration(intervalSec) * time.Second,
	}
}

// Start запускает цикл сбора до отмены контекста
func (c *OrderBookCollector) Start(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.collect(ctx)
	for {
		select {
		case <-ticker.C:
			c.collect(ctx)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *OrderBookCollector) collect(ctx context.Context) {
	for _, symbol := range c.symbols {
		book, err := c.kucoin.GetOrderBook(ctx, symbol)
		if err != nil {
			logger.Debug("Стакан недоступен", zap.String("symbol", symbol), zap.Error(err))
			continue
		}
		c.cache.SetOrderBook(book)
	}
}

// Stop завершает работу сборщика
func (c *OrderBookCollector) Stop() {}

// FundingRateCollector периодически обновляет ставки финансирования в кэше
type FundingRateCollector struct {
	kucoin   *KuCoinClient
	cache    *MarketCache
	symbols  []string
	interval time.Duration
}

// NewFundingRateCollector создает сборщик ставок финансирования
func NewFundingRateCollector(kucoin *KuCoinClient, cache *MarketCache, symbols []string, intervalSec int) *FundingRateCollector {
	return &FundingRateCollector{
		kucoin:   kucoin,
		cache:    cache,
		symbols:  symbols,
		interval: time.Duration(intervalSec) * time.Second,
	}
}

// Start запускает цикл сбора до отмены контекста
func (c *FundingRateCollector) Start(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.collect(ctx)
	for {
		select {
		case <-ticker.C:
			c.collect(ctx)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *FundingRateCollector) collect(ctx context.Context) {
	for _, symbol := range c.symbols {
		rate, err := c.kucoin.GetFundingRate(ctx, symbol)
		if err != nil {
			logger.Debug("Ставка финансирования недоступна", zap.String("symbol", symbol), zap.Error(err))
			continue
		}
		c.cache.SetFunding(rate)
	}
}

// Stop завершает работу сборщика
func (c *FundingRateCollector) Stop() {}
