package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hekticxox/WatchDog/internal/config"
	"github.com/hekticxox/WatchDog/internal/exchange"
	"github.com/hekticxox/WatchDog/internal/scanner"
	"github.com/hekticxox/WatchDog/internal/storage"
	"github.com/hekticxox/WatchDog/internal/trading"
	"github.com/hekticxox/WatchDog/internal/ui"
	"github.com/hekticxox/WatchDog/pkg/logger"
)

func main() {
	logger.Init()
	defer logger.Sync()

	// Обработка флагов командной строки
	configPath := flag.String("config", "config.yaml", "путь к файлу конфигурации")
	modeFlag := flag.String("mode", "monitor", "режим работы: trade, monitor, trailing, grid")
	uiFlag := flag.String("ui", "auto", "дашборд: auto, none, positions, signals")
	streamFlag := flag.Bool("stream", false, "наполнять данные через websocket вместо опроса REST")
	flag.Parse()

	mode, err := scanner.ParseMode(*modeFlag)
	if err != nil {
		logger.Fatal("Некорректный режим", zap.Error(err))
	}

	// Загружаем конфигурацию; без файла работаем на значениях по умолчанию
	cfg := config.Default()
	if _, err := os.Stat(*configPath); err == nil {
		cfg, err = config.Load(*configPath)
		if err != nil {
			logger.Fatal("Ошибка загрузки конфигурации", zap.Error(err))
		}
		logger.Info("Конфигурация загружена", zap.String("path", *configPath))
	} else {
		logger.Warn("Файл конфигурации не найден, используются значения по умолчанию",
			zap.String("path", *configPath))
	}

	// Создаем контекст с возможностью отмены через горутину
	ctx, cancel := context.WithCancel(context.Background())

	// Настраиваем обработку сигналов завершения
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nЗавершение работы...")
		cancel()
		time.Sleep(5 * time.Second) // Даем горутинам время на завершение
		os.Exit(0)
	}()

	// Инициализируем хранилище и клиентов бирж
	store := storage.NewFileStore(cfg.Storage)
	kucoin := exchange.NewKuCoinClient(cfg.KuCoin)
	binance := exchange.NewBinanceClient()
	executor := trading.NewExecutor(kucoin)

	dashboard := pickDashboard(*uiFlag, mode)

	// Интерактивное подтверждение только без дашборда - bubbletea и stdin
	// не делят терминал
	var confirmer scanner.Confirmer = scanner.AutoConfirmer{}
	if mode == scanner.ModeTrade && dashboard == "none" && cfg.Trading.ConfirmTimeout > 0 {
		confirmer = scanner.NewPromptConfirmer(os.Stdin, os.Stdout,
			time.Duration(cfg.Trading.ConfirmTimeout)*time.Second)
	}

	scan := scanner.NewScanner(cfg, kucoin, binance, store, executor, confirmer)

	// Потоковый режим: websocket + сборщики наполняют кэш, сканер читает его
	if *streamFlag {
		cache := exchange.NewMarketCache(cfg.Stream.BufferSize)
		scan = scan.WithCache(cache)
		go runStream(ctx, cfg, kucoin, binance, cache)
	}

	trailing := scan.Trailing()

	runScanner := func() {
		if err := scan.Run(ctx, mode); err != nil && ctx.Err() == nil {
			logger.Fatal("Сканер остановлен", zap.Error(err))
		}
	}

	// Дашборд занимает основной поток, сканер уходит в горутину
	switch dashboard {
	case "positions":
		go runScanner()
		ui.NewPositionsUI(cfg.UI, kucoin, trailing).Start()
	case "signals":
		go runScanner()
		if err := ui.NewSignalsUI(cfg.UI, store).Start(); err != nil {
			logger.Fatal("Ошибка дашборда", zap.Error(err))
		}
	default:
		runScanner()
	}
}

// pickDashboard выбирает дашборд: trailing и monitor смотрят на позиции,
// торговые режимы по умолчанию работают без дашборда
func pickDashboard(choice string, mode scanner.Mode) string {
	if choice != "auto" {
		return choice
	}
	switch mode {
	case scanner.ModeMonitor, scanner.ModeTrailing:
		return "positions"
	default:
		return "none"
	}
}

// runStream поднимает websocket-поток и фоновые сборщики
func runStream(ctx context.Context, cfg *config.Config, kucoin *exchange.KuCoinClient, binance *exchange.BinanceClient, cache *exchange.MarketCache) {
	symbols, err := kucoin.GetActiveSymbols(ctx, cfg.Trading.SymbolSuffix)
	if err != nil {
		logger.Error("Список символов для потока недоступен", zap.Error(err))
		return
	}

	collectors := []exchange.DataCollector{
		exchange.NewCandleCollector(kucoin, binance, cache, symbols,
			cfg.Trading.HistoryMinutes, cfg.Trading.ScanIntervalSec),
		exchange.NewOrderBookCollector(kucoin, cache, symbols, cfg.Trading.ScanIntervalSec),
		exchange.NewFundingRateCollector(kucoin, cache, symbols, cfg.Trading.ScanIntervalSec),
	}
	for _, collector := range collectors {
		collector := collector
		go func() {
			defer collector.Stop()
			if err := collector.Start(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("Сборщик данных остановлен", zap.Error(err))
			}
		}()
	}

	streamer := exchange.NewStreamer(kucoin, cache, cfg.Stream)
	if err := streamer.Run(ctx, symbols); err != nil && ctx.Err() == nil {
		logger.Error("Поток websocket остановлен", zap.Error(err))
	}
}
