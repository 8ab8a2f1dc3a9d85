package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Config представляет полную конфигурацию приложения
type Config struct {
	KuCoin   KuCoinConfig   `yaml:"kucoin"`
	Trading  TradingConfig  `yaml:"trading"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Trailing TrailingConfig `yaml:"trailing"`
	Grid     GridConfig     `yaml:"grid"`
	Stream   StreamConfig   `yaml:"stream"`
	Storage  StorageConfig  `yaml:"storage"`
	UI       UIConfig       `yaml:"ui"`
}

// KuCoinConfig содержит настройки подключения к KuCoin Futures
type KuCoinConfig struct {
	APIKey        string `yaml:"api_key"`
	APISecret     string `yaml:"api_secret"`
	APIPassphrase string `yaml:"api_passphrase"`
	BaseURL       string `yaml:"base_url"`
	WSEndpoint    string `yaml:"ws_endpoint"`
}

// TradingConfig содержит настройки торговли
type TradingConfig struct {
	Interval         string  `yaml:"interval"`
	Leverage         int     `yaml:"leverage"`
	BudgetUSDT       float64 `yaml:"budget_usdt"`
	MinNotionalUSDT  float64 `yaml:"min_notional_usdt"`
	MinEquityUSDT    float64 `yaml:"min_equity_usdt"`
	ScanIntervalSec  int     `yaml:"scan_interval_seconds"`
	ConfirmTimeout   int     `yaml:"confirm_timeout_seconds"`
	HistoryMinutes   int     `yaml:"history_minutes"`
	SymbolSuffix     string  `yaml:"symbol_suffix"`
	TopCandidates    int     `yaml:"top_candidates"`
	AutoCloseMonitor bool    `yaml:"auto_close_monitor"`
}

// AnalysisConfig содержит настройки скоринга сигналов
type AnalysisConfig struct {
	Indicators IndicatorConfig `yaml:"indicators"`
	Scorer     ScorerConfig    `yaml:"scorer"`
	OrderBook  OrderBookConfig `yaml:"orderbook"`
}

// IndicatorConfig периоды индикаторов
type IndicatorConfig struct {
	RSIPeriod   int `yaml:"rsi_period"`
	MACDFast    int `yaml:"macd_fast"`
	MACDSlow    int `yaml:"macd_slow"`
	MACDSignal  int `yaml:"macd_signal"`
	BBPeriod    int `yaml:"bb_period"`
	ATRPeriod   int `yaml:"atr_period"`
	StochPeriod int `yaml:"stoch_period"`
	StochSmooth int `yaml:"stoch_smooth"`
	EMAFast     int `yaml:"ema_fast"`
	SMASlow     int `yaml:"sma_slow"`
}

// ScorerConfig пороги голосования и конфлюэнса
type ScorerConfig struct {
	RSIBuyBelow      float64 `yaml:"rsi_buy_below"`
	RSISellAbove     float64 `yaml:"rsi_sell_above"`
	StochBuyBelow    float64 `yaml:"stoch_buy_below"`
	StochSellAbove   float64 `yaml:"stoch_sell_above"`
	MinVotes         int     `yaml:"min_votes"`
	MinConfluence    int     `yaml:"min_confluence"`
	VolSpikeFactor   float64 `yaml:"vol_spike_factor"`
	LookbackBars     int     `yaml:"lookback_bars"`
	FundingThreshold float64 `yaml:"funding_threshold"`
	ImbThreshold     float64 `yaml:"imbalance_threshold"`
}

// OrderBookConfig настройки анализа стакана
type OrderBookConfig struct {
	Depth       int     `yaml:"depth"`
	DepthPct    float64 `yaml:"depth_pct"`
	SlopeLevels int     `yaml:"slope_levels"`
}

// TrailingConfig настройки трейлинг-стопа
type TrailingConfig struct {
	ATRMultiplier   float64 `yaml:"atr_multiplier"`
	IntervalSeconds int     `yaml:"interval_seconds"`
	EntryFloorPct   float64 `yaml:"entry_floor_pct"`
}

// GridConfig настройки сеточного режима
type GridConfig struct {
	Levels          int     `yaml:"levels"`
	Leverage        int     `yaml:"leverage"`
	BudgetUSDT      float64 `yaml:"budget_usdt"`
	IntervalSeconds int     `yaml:"interval_seconds"`
	WindowSize      int     `yaml:"window_size"`
	DefaultSpacing  float64 `yaml:"default_spacing"`
	TickPrecision   int32   `yaml:"tick_precision"`
}

// StreamConfig настройки потокового режима (websocket)
type StreamConfig struct {
	MaxWorkers     int `yaml:"max_workers"`
	BufferSize     int `yaml:"buffer_size"`
	SubscribeDelay int `yaml:"subscribe_delay_ms"`
}

// StorageConfig пути плоских файлов
type StorageConfig struct {
	SignalLog     string `yaml:"signal_log"`
	BadSymbols    string `yaml:"bad_symbols"`
	TopCandidates string `yaml:"top_candidates"`
}

// UIConfig настройки пользовательского интерфейса
type UIConfig struct {
	RefreshRate int `yaml:"refresh_rate_ms"`
}

// Load загружает конфигурацию из файла
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения файла конфигурации: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("ошибка разбора файла конфигурации: %w", err)
	}

	return config, nil
}

// Default возвращает конфигурацию с наблюдаемыми в проде значениями
func Default() *Config {
	return &Config{
		KuCoin: KuCoinConfig{
			BaseURL:    "https://api-futures.kucoin.com",
			WSEndpoint: "wss://ws-api-futures.kucoin.com/",
		},
		Trading: TradingConfig{
			Interval:        "1min",
			Leverage:        5,
			BudgetUSDT:      10,
			MinNotionalUSDT: 5,
			MinEquityUSDT:   5,
			ScanIntervalSec: 60,
			ConfirmTimeout:  30,
			HistoryMinutes:  300,
			SymbolSuffix:    "USDTM",
			TopCandidates:   5,
		},
		Analysis: AnalysisConfig{
			Indicators: IndicatorConfig{
				RSIPeriod:   14,
				MACDFast:    12,
				MACDSlow:    26,
				MACDSignal:  9,
				BBPeriod:    20,
				ATRPeriod:   14,
				StochPeriod: 14,
				StochSmooth: 3,
				EMAFast:     21,
				SMASlow:     50,
			},
			Scorer: ScorerConfig{
				RSIBuyBelow:      35,
				RSISellAbove:     65,
				StochBuyBelow:    20,
				StochSellAbove:   80,
				MinVotes:         3,
				MinConfluence:    3,
				VolSpikeFactor:   2,
				LookbackBars:     20,
				FundingThreshold: 0.001,
				ImbThreshold:     0.2,
			},
			OrderBook: OrderBookConfig{
				Depth:       100,
				DepthPct:    0.1,
				SlopeLevels: 10,
			},
		},
		Trailing: TrailingConfig{
			ATRMultiplier:   2,
			IntervalSeconds: 10,
			EntryFloorPct:   0.05,
		},
		Grid: GridConfig{
			Levels:          10,
			Leverage:        5,
			BudgetUSDT:      100,
			IntervalSeconds: 10,
			WindowSize:      10,
			DefaultSpacing:  0.005,
			TickPrecision:   6,
		},
		Stream: StreamConfig{
			MaxWorkers:     5,
			BufferSize:     100,
			SubscribeDelay: 100,
		},
		Storage: StorageConfig{
			SignalLog:     "signal_log.csv",
			BadSymbols:    "bad_symbols.txt",
			TopCandidates: "top_candidates.txt",
		},
		UI: UIConfig{
			RefreshRate: 2000,
		},
	}
}
