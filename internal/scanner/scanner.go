package scanner

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/hekticxox/WatchDog/internal/analysis/indicators"
	"github.com/hekticxox/WatchDog/internal/analysis/orderbook"
	"github.com/hekticxox/WatchDog/internal/analysis/signal"
	"github.com/hekticxox/WatchDog/internal/config"
	"github.com/hekticxox/WatchDog/internal/exchange"
	"github.com/hekticxox/WatchDog/internal/storage"
	"github.com/hekticxox/WatchDog/internal/trading"
	"github.com/hekticxox/WatchDog/pkg/logger"
	"github.com/hekticxox/WatchDog/pkg/models"
)

// Mode режим работы сканера
type Mode string

const (
	ModeTrade    Mode = "trade"    // полный цикл: скоринг, отбор, выставление ордеров
	ModeMonitor  Mode = "monitor"  // только открытые позиции, без новых входов
	ModeTrailing Mode = "trailing" // сопровождение позиций трейлинг-стопами
	ModeGrid     Mode = "grid"     // сеточная торговля вокруг текущей цены
)

// ParseMode разбирает режим из аргумента командной строки
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeTrade, ModeMonitor, ModeTrailing, ModeGrid:
		return Mode(s), nil
	}
	return "", fmt.Errorf("неизвестный режим %q (допустимы trade, monitor, trailing, grid)", s)
}

// Scanner единый конвейер оценки символов, параметризованный режимом.
// Все зависимости передаются явно при создании.
type Scanner struct {
	config    *config.Config
	kucoin    *exchange.KuCoinClient
	binance   *exchange.BinanceClient
	lib       *indicators.Library
	books     *orderbook.Analyzer
	scorer    *signal.Scorer
	sizer     *trading.Sizer
	trailing  *trading.TrailingEngine
	grid      *trading.GridPlanner
	executor  *trading.Executor
	store     *storage.FileStore
	confirmer Confirmer

	cache   *exchange.MarketCache
	bad     map[string]bool
	windows map[string]*trading.PriceWindow
}

// WithCache переводит сканер на чтение рыночных данных из кэша,
// наполняемого потоком и сборщиками. REST остается запасным путем.
func (s *Scanner) WithCache(cache *exchange.MarketCache) *Scanner {
	s.cache = cache
	return s
}

// NewScanner создает сканер. Черный список символов загружается сразу.
func NewScanner(
	cfg *config.Config,
	kucoin *exchange.KuCoinClient,
	binance *exchange.BinanceClient,
	store *storage.FileStore,
	executor *trading.Executor,
	confirmer Confirmer,
) *Scanner {
	lib := indicators.NewLibrary(cfg.Analysis.Indicators)

	bad, err := store.LoadBadSymbols()
	if err != nil {
		logger.Warn("Черный список не загружен", zap.Error(err))
		bad = make(map[string]bool)
	}

	return &Scanner{
		config:    cfg,
		kucoin:    kucoin,
		binance:   binance,
		lib:       lib,
		books:     orderbook.NewAnalyzer(cfg.Analysis.OrderBook),
		scorer:    signal.NewScorer(cfg.Analysis.Scorer, lib),
		sizer:     trading.NewSizer(cfg.Trading),
		trailing:  trading.NewTrailingEngine(cfg.Trailing),
		grid:      trading.NewGridPlanner(cfg.Grid),
		executor:  executor,
		store:     store,
		confirmer: confirmer,
		bad:       bad,
		windows:   make(map[string]*trading.PriceWindow),
	}
}

// Trailing возвращает движок трейлинг-стопов (для панели позиций)
func (s *Scanner) Trailing() *trading.TrailingEngine {
	return s.trailing
}

// Run крутит циклы выбранного режима до отмены контекста.
// Фатальна только ошибка авторизации - остальное логируется и пропускается.
func (s *Scanner) Run(ctx context.Context, mode Mode) error {
	interval := time.Duration(s.config.Trading.ScanIntervalSec) * time.Second
	switch mode {
	case ModeTrailing:
		interval = time.Duration(s.config.Trailing.IntervalSeconds) * time.Second
	case ModeGrid:
		interval = time.Duration(s.config.Grid.IntervalSeconds) * time.Second
	}

	logger.Info("Сканер запущен",
		zap.String("mode", string(mode)),
		zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		var err error
		switch mode {
		case ModeTrade:
			err = s.tradeCycle(ctx)
		case ModeMonitor:
			err = s.monitorCycle(ctx)
		case ModeTrailing:
			err = s.trailingCycle(ctx)
		case ModeGrid:
			err = s.gridCycle(ctx)
		}
		if err != nil {
			if errors.Is(err, models.ErrAuthFailure) {
				return err
			}
			logger.Error("Ошибка цикла сканера", zap.String("mode", string(mode)), zap.Error(err))
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// evaluate полный скоринг одного символа: свечи, индикаторы, стакан,
// финансирование. Результат пишется в журнал сигналов.
func (s *Scanner) evaluate(ctx context.Context, symbol string) (models.SignalResult, error) {
	candles, err := s.candles(ctx, symbol)
	if err != nil {
		return models.SignalResult{}, err
	}

	snap, err := s.lib.Snapshot(candles)
	if err != nil {
		return models.SignalResult{}, fmt.Errorf("индикаторы %s: %w", symbol, err)
	}

	extras := signal.Extras{}
	if book, err := s.orderBook(ctx, symbol); err == nil {
		metrics := s.books.Analyze(book)
		extras.Imbalance = metrics.Imbalance
		extras.HasImbalance = true
	}
	if rate, err := s.fundingRate(ctx, symbol); err == nil {
		extras.FundingRate = rate.Rate
		extras.HasFunding = true
	}

	result := s.scorer.Score(symbol, snap, candles, extras)

	if err := s.store.AppendSignal(result); err != nil {
		logger.Warn("Сигнал не записан в журнал", zap.String("symbol", symbol), zap.Error(err))
	}

	return result, nil
}

// candles берет серию из кэша, если она накоплена, иначе с бирж
func (s *Scanner) candles(ctx context.Context, symbol string) ([]*models.Candle, error) {
	if s.cache != nil {
		if series := s.cache.Candles(symbol); len(series) >= exchange.FallbackThreshold {
			return series, nil
		}
	}
	return exchange.KlinesWithFallback(ctx, s.kucoin, s.binance, symbol, s.config.Trading.HistoryMinutes)
}

// orderBook берет стакан из кэша, если он там есть, иначе с биржи
func (s *Scanner) orderBook(ctx context.Context, symbol string) (*models.OrderBook, error) {
	if s.cache != nil {
		if book, ok := s.cache.OrderBook(symbol); ok {
			return book, nil
		}
	}
	return s.kucoin.GetOrderBook(ctx, symbol)
}

// fundingRate берет ставку из кэша, если она там есть, иначе с биржи
func (s *Scanner) fundingRate(ctx context.Context, symbol string) (*models.FundingRate, error) {
	if s.cache != nil {
		if rate, ok := s.cache.Funding(symbol); ok {
			return rate, nil
		}
	}
	return s.kucoin.GetFundingRate(ctx, symbol)
}

// tradeCycle полный торговый цикл: скоринг всех символов, закрытие позиций
// по встречному сигналу, отбор и выставление новых ордеров
func (s *Scanner) tradeCycle(ctx context.Context) error {
	symbols, err := s.kucoin.GetActiveSymbols(ctx, s.config.Trading.SymbolSuffix)
	if err != nil {
		return fmt.Errorf("список символов: %w", err)
	}

	positions, err := s.kucoin.GetPositions(ctx)
	if err != nil {
		return fmt.Errorf("позиции: %w", err)
	}
	bySymbol := make(map[string]*models.Position, len(positions))
	for _, pos := range positions {
		bySymbol[pos.Symbol] = pos
	}

	var buys, sells []models.SignalResult
	for _, symbol := range symbols {
		if s.bad[symbol] {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		result, err := s.evaluate(ctx, symbol)
		if err != nil {
			if errors.Is(err, models.ErrAuthFailure) {
				return err
			}
			s.skipSymbol(symbol, err)
			continue
		}

		// Встречный сигнал по открытой позиции - закрываем
		if pos, ok := bySymbol[result.Symbol]; ok && opposes(result.Direction, pos.Side) {
			s.closeOnSignal(ctx, pos, result)
			continue
		}

		switch result.Direction {
		case models.DirectionBuy:
			buys = append(buys, result)
		case models.DirectionSell:
			sells = append(sells, result)
		}
	}

	// Покупки по возрастанию RSI (самые перепроданные первыми),
	// продажи по убыванию (самые перекупленные первыми)
	sort.Slice(buys, func(i, j int) bool {
		return buys[i].Indicators.RSI < buys[j].Indicators.RSI
	})
	sort.Slice(sells, func(i, j int) bool {
		return sells[i].Indicators.RSI > sells[j].Indicators.RSI
	})

	top := s.config.Trading.TopCandidates
	candidates := append(firstN(buys, top), firstN(sells, top)...)

	if err := s.store.WriteTopCandidates(candidates); err != nil {
		logger.Warn("Файл кандидатов не записан", zap.Error(err))
	}

	for _, candidate := range candidates {
		if _, open := bySymbol[candidate.Symbol]; open {
			continue
		}
		if err := s.enter(ctx, candidate); err != nil {
			if errors.Is(err, models.ErrAuthFailure) {
				return err
			}
			logger.Warn("Вход пропущен",
				zap.String("symbol", candidate.Symbol),
				zap.Error(err))
		}
	}

	return nil
}

// enter подбирает размер и выставляет рыночный ордер по кандидату
func (s *Scanner) enter(ctx context.Context, candidate models.SignalResult) error {
	equity, err := s.kucoin.GetAccountEquity(ctx)
	if err != nil {
		return fmt.Errorf("баланс счета: %w", err)
	}

	price := candidate.CurrentPrice
	qty, adjusted, err := s.sizer.Size(s.config.Trading.BudgetUSDT, s.config.Trading.Leverage, price, 1)
	if err != nil {
		return err
	}
	if adjusted {
		logger.Info("Размер поднят до минимального нотионала", zap.String("symbol", candidate.Symbol))
	}

	qty, err = s.sizer.FitMargin(qty, price, s.config.Trading.Leverage, equity)
	if err != nil {
		return err
	}

	ok, err := s.confirmer.Confirm(ctx, candidate, qty)
	if err != nil {
		return fmt.Errorf("подтверждение: %w", err)
	}
	if !ok {
		logger.Info("Вход отклонен оператором", zap.String("symbol", candidate.Symbol))
		return nil
	}

	_, err = s.executor.Submit(ctx, models.OrderIntent{
		Symbol:    candidate.Symbol,
		Side:      models.Side(candidate.Direction),
		Size:      qty,
		Leverage:  s.config.Trading.Leverage,
		OrderType: "market",
	})
	return err
}

// monitorCycle оценивает только символы открытых позиций.
// Встречный сигнал закрывает позицию при включенном auto_close_monitor,
// иначе лишь логируется.
func (s *Scanner) monitorCycle(ctx context.Context) error {
	positions, err := s.kucoin.GetPositions(ctx)
	if err != nil {
		return fmt.Errorf("позиции: %w", err)
	}

	for _, pos := range positions {
		result, err := s.evaluate(ctx, pos.Symbol)
		if err != nil {
			if errors.Is(err, models.ErrAuthFailure) {
				return err
			}
			logger.Warn("Позиция не оценена", zap.String("symbol", pos.Symbol), zap.Error(err))
			continue
		}

		if opposes(result.Direction, pos.Side) {
			if s.config.Trading.AutoCloseMonitor {
				s.closeOnSignal(ctx, pos, result)
			} else {
				logger.Warn("Встречный сигнал по открытой позиции",
					zap.String("symbol", pos.Symbol),
					zap.String("side", string(pos.Side)),
					zap.String("signal", string(result.Direction)),
					zap.Int("points", result.ConfluencePoints))
			}
		}
	}

	return nil
}

// trailingCycle сопровождает открытые позиции трейлинг-стопами
func (s *Scanner) trailingCycle(ctx context.Context) error {
	positions, err := s.kucoin.GetPositions(ctx)
	if err != nil {
		return fmt.Errorf("позиции: %w", err)
	}

	open := make(map[string]bool, len(positions))
	for _, pos := range positions {
		open[pos.Symbol] = true

		candles, err := exchange.KlinesWithFallback(ctx, s.kucoin, s.binance, pos.Symbol, s.config.Trading.HistoryMinutes)
		if err != nil {
			logger.Warn("Свечи для трейлинга недоступны", zap.String("symbol", pos.Symbol), zap.Error(err))
			continue
		}
		atr := s.lib.LastATR(candles)

		if !s.trailing.Tracked(pos.Symbol) {
			s.trailing.Arm(pos, atr)
			continue
		}

		price, err := s.kucoin.GetMarkPrice(ctx, pos.Symbol)
		if err != nil {
			logger.Warn("Цена для трейлинга недоступна", zap.String("symbol", pos.Symbol), zap.Error(err))
			continue
		}

		stopPrice, triggered := s.trailing.Update(pos.Symbol, price, atr)
		if !triggered {
			continue
		}

		stop, _ := s.trailing.Get(pos.Symbol)
		pct, usdt := trading.LockedProfit(stop, pos.EntryPrice, pos.Size)
		logger.Info("Трейлинг-стоп сработал",
			zap.String("symbol", pos.Symbol),
			zap.Float64("stop", stopPrice),
			zap.Float64("price", price),
			zap.Float64("locked_pct", pct),
			zap.Float64("locked_usdt", usdt))

		if _, err := s.executor.ClosePosition(ctx, pos.Symbol, pos.Side, pos.Size, s.config.Trading.Leverage); err != nil {
			logger.Error("Закрытие по стопу не выполнено", zap.String("symbol", pos.Symbol), zap.Error(err))
			continue
		}
		s.trailing.Remove(pos.Symbol)
	}

	// Позиции, закрытые извне, снимаем с сопровождения
	for _, symbol := range s.trailingOrphans(open) {
		logger.Info("Позиция закрыта извне, стоп снят", zap.String("symbol", symbol))
		s.trailing.Remove(symbol)
	}

	return nil
}

func (s *Scanner) trailingOrphans(open map[string]bool) []string {
	var orphans []string
	for _, symbol := range s.trailing.Symbols() {
		if !open[symbol] {
			orphans = append(orphans, symbol)
		}
	}
	return orphans
}

// gridCycle выбирает самый волатильный символ и перестраивает вокруг
// текущей цены симметричную сетку лимитных ордеров
func (s *Scanner) gridCycle(ctx context.Context) error {
	symbol, err := s.pickGridSymbol(ctx)
	if err != nil {
		return err
	}

	price, err := s.kucoin.GetMarkPrice(ctx, symbol)
	if err != nil {
		return fmt.Errorf("цена %s: %w", symbol, err)
	}

	window, ok := s.windows[symbol]
	if !ok {
		window = trading.NewPriceWindow(s.config.Grid.WindowSize)
		s.windows[symbol] = window
	}
	window.Push(price)

	spacing := window.SpacingFraction(s.config.Grid.DefaultSpacing)

	orderSize, _, err := s.sizer.Size(s.config.Grid.BudgetUSDT, s.config.Grid.Leverage, price, s.grid.Divisor())
	if err != nil {
		return err
	}

	plan := s.grid.Plan(symbol, price, spacing, orderSize)
	logger.Info("Сетка перестроена",
		zap.String("symbol", symbol),
		zap.Float64("reference", plan.Reference),
		zap.Float64("spacing", plan.Spacing),
		zap.Int("levels", len(plan.Levels)))

	for _, level := range plan.Levels {
		_, err := s.executor.Submit(ctx, models.OrderIntent{
			Symbol:     symbol,
			Side:       level.Side,
			Size:       level.Size,
			Leverage:   s.config.Grid.Leverage,
			OrderType:  "limit",
			LimitPrice: level.Price,
		})
		if err != nil {
			if errors.Is(err, models.ErrAuthFailure) {
				return err
			}
			logger.Warn("Уровень сетки не выставлен",
				zap.String("symbol", symbol),
				zap.Float64("price", level.Price),
				zap.Error(err))
		}
	}

	return nil
}

// pickGridSymbol ранжирует активные символы по относительной волатильности
// ATR/close и возвращает лучший
func (s *Scanner) pickGridSymbol(ctx context.Context) (string, error) {
	symbols, err := s.kucoin.GetActiveSymbols(ctx, s.config.Trading.SymbolSuffix)
	if err != nil {
		return "", fmt.Errorf("список символов: %w", err)
	}

	best := ""
	bestScore := -1.0
	for _, symbol := range symbols {
		if s.bad[symbol] {
			continue
		}
		candles, err := exchange.KlinesWithFallback(ctx, s.kucoin, s.binance, symbol, s.config.Trading.HistoryMinutes)
		if err != nil {
			continue
		}
		atr := s.lib.LastATR(candles)
		last := candles[len(candles)-1].Close
		if math.IsNaN(atr) || last <= 0 {
			continue
		}
		if score := atr / last; score > bestScore {
			bestScore = score
			best = symbol
		}
	}

	if best == "" {
		return "", fmt.Errorf("нет символа для сетки: %w", models.ErrDataUnavailable)
	}
	return best, nil
}

// skipSymbol логирует пропуск. В черный список уходит только символ без
// достаточной истории свечей; временные сбои API пропускают символ лишь
// в текущем цикле.
func (s *Scanner) skipSymbol(symbol string, err error) {
	logger.Warn("Символ пропущен", zap.String("symbol", symbol), zap.Error(err))
	if errors.Is(err, models.ErrInsufficientHistory) {
		s.bad[symbol] = true
		if err := s.store.MarkBadSymbol(symbol); err != nil {
			logger.Warn("Черный список не обновлен", zap.Error(err))
		}
	}
}

// closeOnSignal закрывает позицию по встречному сигналу
func (s *Scanner) closeOnSignal(ctx context.Context, pos *models.Position, result models.SignalResult) {
	logger.Info("Закрытие позиции по встречному сигналу",
		zap.String("symbol", pos.Symbol),
		zap.String("side", string(pos.Side)),
		zap.String("signal", string(result.Direction)),
		zap.Int("points", result.ConfluencePoints))

	if _, err := s.executor.ClosePosition(ctx, pos.Symbol, pos.Side, pos.Size, s.config.Trading.Leverage); err != nil {
		logger.Error("Позиция не закрыта", zap.String("symbol", pos.Symbol), zap.Error(err))
	}
}

// opposes true, если сигнал направлен против стороны позиции
func opposes(direction models.Direction, side models.Side) bool {
	return (direction == models.DirectionBuy && side == models.SideSell) ||
		(direction == models.DirectionSell && side == models.SideBuy)
}

func firstN(results []models.SignalResult, n int) []models.SignalResult {
	if len(results) > n {
		return results[:n]
	}
	return results
}
