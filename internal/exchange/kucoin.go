package exchange

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hekticxox/WatchDog/internal/config"
	"github.com/hekticxox/WatchDog/pkg/models"
)

// KuCoinClient клиент KuCoin Futures REST API (подпись v2)
type KuCoinClient struct {
	config config.KuCoinConfig
	http   *http.Client
}

// NewKuCoinClient создает новый клиент KuCoin Futures
func NewKuCoinClient(cfg config.KuCoinConfig) *KuCoinClient {
	return &KuCoinClient{
		config: cfg,
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// apiResponse общий конверт ответов KuCoin
type apiResponse struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// request выполняет подписанный запрос и разворачивает конверт ответа.
// endpoint включает query string - она входит в подписываемую строку.
func (c *KuCoinClient) request(ctx context.Context, method, endpoint string, body any) (json.RawMessage, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("ошибка сериализации тела запроса: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("ошибка создания запроса: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if c.config.APIKey != "" {
		timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
		signPayload := timestamp + method + endpoint + string(payload)
		req.Header.Set("KC-API-KEY", c.config.APIKey)
		req.Header.Set("KC-API-SIGN", c.sign(signPayload))
		req.Header.Set("KC-API-TIMESTAMP", timestamp)
		req.Header.Set("KC-API-PASSPHRASE", c.sign(c.config.APIPassphrase))
		req.Header.Set("KC-API-KEY-VERSION", "2")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса %s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения ответа: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("биржа вернула %d: %w", resp.StatusCode, models.ErrAuthFailure)
	}

	var envelope apiResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("ошибка разбора ответа: %w", err)
	}

	if envelope.Code != "200000" {
		return nil, &apiError{Code: envelope.Code, Msg: envelope.Msg}
	}

	return envelope.Data, nil
}

// apiError ошибка уровня API KuCoin с кодом из конверта ответа
type apiError struct {
	Code string
	Msg  string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("код %s: %s", e.Code, e.Msg)
}

// Unwrap относит ошибку к таксономии: коды 400001-400005 - ключ/подпись/
// passphrase, остальное для цикла сканера равносильно недоступным данным
func (e *apiError) Unwrap() error {
	if strings.HasPrefix(e.Code, "40000") {
		return models.ErrAuthFailure
	}
	return models.ErrDataUnavailable
}

// sign подписывает строку секретом: base64(HMAC-SHA256)
func (c *KuCoinClient) sign(payload string) string {
	mac := hmac.New(sha256.New, []byte(c.config.APISecret))
	mac.Write([]byte(payload))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// GetKlines получает минутные свечи за последние minutes минут
func (c *KuCoinClient) GetKlines(ctx context.Context, symbol string, minutes int) ([]*models.Candle, error) {
	to := time.Now()
	from := to.Add(-time.Duration(minutes) * time.Minute)

	query := url.Values{}
	query.Set("symbol", symbol)
	query.Set("granularity", "1")
	query.Set("from", strconv.FormatInt(from.UnixMilli(), 10))
	query.Set("to", strconv.FormatInt(to.UnixMilli(), 10))

	data, err := c.request(ctx, http.MethodGet, "/api/v1/kline/query?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения свечей %s: %w", symbol, err)
	}

	// Строка свечи: [time, open, high, low, close, volume]
	var rows [][]float64
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("ошибка разбора свечей %s: %w", symbol, err)
	}

	candles := make([]*models.Candle, 0, len(rows))
	for _, row := range rows {
		if len(row) < 6 {
			continue
		}
		openTime := time.UnixMilli(int64(row[0]))
		candles = append(candles, &models.Candle{
			Symbol:    symbol,
			Interval:  "1min",
			OpenTime:  openTime,
			Open:      row[1],
			High:      row[2],
			Low:       row[3],
			Close:     row[4],
			Volume:    row[5],
			CloseTime: openTime.Add(time.Minute),
		})
	}

	return candles, nil
}

// GetOrderBook получает полный снимок стакана level2
func (c *KuCoinClient) GetOrderBook(ctx context.Context, symbol string) (*models.OrderBook, error) {
	query := url.Values{}
	query.Set("symbol", symbol)

	data, err := c.request(ctx, http.MethodGet, "/api/v1/level2/snapshot?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения стакана %s: %w", symbol, err)
	}

	var snapshot struct {
		Bids [][2]float64 `json:"bids"`
		Asks [][2]float64 `json:"asks"`
		Ts   int64        `json:"ts"`
	}
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("ошибка разбора стакана %s: %w", symbol, err)
	}

	book := &models.OrderBook{
		Symbol:    symbol,
		Timestamp: time.Unix(0, snapshot.Ts),
		Bids:      make([]models.OrderBookLevel, len(snapshot.Bids)),
		Asks:      make([]models.OrderBookLevel, len(snapshot.Asks)),
	}
	for i, bid := range snapshot.Bids {
		book.Bids[i] = models.OrderBookLevel{Price: bid[0], Amount: bid[1]}
	}
	for i, ask := range snapshot.Asks {
		book.Asks[i] = models.OrderBookLevel{Price: ask[0], Amount: ask[1]}
	}

	return book, nil
}

// contractDetail нужные поля карточки контракта
type contractDetail struct {
	Symbol         string  `json:"symbol"`
	FundingFeeRate float64 `json:"fundingFeeRate"`
	OpenInterest   string  `json:"openInterest"`
	TickSize       float64 `json:"tickSize"`
	LotSize        float64 `json:"lotSize"`
	Status         string  `json:"status"`
}

// GetFundingRate получает текущую ставку финансирования контракта
func (c *KuCoinClient) GetFundingRate(ctx context.Context, symbol string) (*models.FundingRate, error) {
	data, err := c.request(ctx, http.MethodGet, "/api/v1/contracts/"+symbol, nil)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения ставки финансирования %s: %w", symbol, err)
	}

	var detail contractDetail
	if err := json.Unmarshal(data, &detail); err != nil {
		return nil, fmt.Errorf("ошибка разбора контракта %s: %w", symbol, err)
	}

	return &models.FundingRate{
		Symbol:    symbol,
		Rate:      detail.FundingFeeRate,
		Timestamp: time.Now(),
	}, nil
}

// GetOpenInterest возвращает открытый интерес контракта в лотах
func (c *KuCoinClient) GetOpenInterest(ctx context.Context, symbol string) (float64, error) {
	data, err := c.request(ctx, http.MethodGet, "/api/v1/contracts/"+symbol, nil)
	if err != nil {
		return 0, fmt.Errorf("ошибка получения открытого интереса %s: %w", symbol, err)
	}

	var detail contractDetail
	if err := json.Unmarshal(data, &detail); err != nil {
		return 0, fmt.Errorf("ошибка разбора контракта %s: %w", symbol, err)
	}

	oi, err := strconv.ParseFloat(detail.OpenInterest, 64)
	if err != nil {
		return 0, fmt.Errorf("ошибка разбора открытого интереса %s: %w", symbol, err)
	}
	return oi, nil
}

// GetActiveSymbols возвращает открытые контракты с заданным суффиксом
func (c *KuCoinClient) GetActiveSymbols(ctx context.Context, suffix string) ([]string, error) {
	data, err := c.request(ctx, http.MethodGet, "/api/v1/contracts/active", nil)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка контрактов: %w", err)
	}

	var contracts []contractDetail
	if err := json.Unmarshal(data, &contracts); err != nil {
		return nil, fmt.Errorf("ошибка разбора списка контрактов: %w", err)
	}

	symbols := make([]string, 0, len(contracts))
	for _, contract := range contracts {
		if contract.Status == "Open" && strings.HasSuffix(contract.Symbol, suffix) {
			symbols = append(symbols, contract.Symbol)
		}
	}

	return symbols, nil
}

// GetAccountEquity возвращает капитал фьючерсного счета в USDT
func (c *KuCoinClient) GetAccountEquity(ctx context.Context) (float64, error) {
	data, err := c.request(ctx, http.MethodGet, "/api/v1/account-overview?currency=USDT", nil)
	if err != nil {
		return 0, fmt.Errorf("ошибка получения баланса счета: %w", err)
	}

	var overview struct {
		AccountEquity    float64 `json:"accountEquity"`
		AvailableBalance float64 `json:"availableBalance"`
	}
	if err := json.Unmarshal(data, &overview); err != nil {
		return 0, fmt.Errorf("ошибка разбора баланса счета: %w", err)
	}

	return overview.AccountEquity, nil
}

// kucoinPosition позиция в терминах биржи.
// currentQty со знаком: положительный - лонг, отрицательный - шорт.
type kucoinPosition struct {
	Symbol            string  `json:"symbol"`
	CurrentQty        float64 `json:"currentQty"`
	AvgEntryPrice     float64 `json:"avgEntryPrice"`
	LiquidationPrice  float64 `json:"liquidationPrice"`
	PosMargin         float64 `json:"posMargin"`
	UnrealisedPnl     float64 `json:"unrealisedPnl"`
	UnrealisedRoePcnt float64 `json:"unrealisedRoePcnt"`
	IsOpen            bool    `json:"isOpen"`
}

// GetPositions возвращает открытые позиции счета
func (c *KuCoinClient) GetPositions(ctx context.Context) ([]*models.Position, error) {
	data, err := c.request(ctx, http.MethodGet, "/api/v1/positions", nil)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения позиций: %w", err)
	}

	var raw []kucoinPosition
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("ошибка разбора позиций: %w", err)
	}

	positions := make([]*models.Position, 0, len(raw))
	for _, p := range raw {
		if !p.IsOpen || p.CurrentQty == 0 {
			continue
		}
		side := models.SideBuy
		size := p.CurrentQty
		if size < 0 {
			side = models.SideSell
			size = -size
		}
		positions = append(positions, &models.Position{
			Symbol:           p.Symbol,
			Side:             side,
			Size:             size,
			EntryPrice:       p.AvgEntryPrice,
			LiquidationPrice: p.LiquidationPrice,
			Margin:           p.PosMargin,
			UnrealizedPnl:    p.UnrealisedPnl,
			ROI:              p.UnrealisedRoePcnt * 100,
		})
	}

	return positions, nil
}

// PlaceOrder выставляет ордер. Реализует trading.Gateway.
func (c *KuCoinClient) PlaceOrder(ctx context.Context, intent models.OrderIntent, clientOID string) (models.OrderResult, error) {
	body := map[string]any{
		"clientOid":  clientOID,
		"symbol":     intent.Symbol,
		"side":       string(intent.Side),
		"type":       intent.OrderType,
		"leverage":   strconv.Itoa(intent.Leverage),
		"size":       intent.Size,
		"reduceOnly": intent.ReduceOnly,
	}
	if intent.OrderType == "limit" {
		body["price"] = strconv.FormatFloat(intent.LimitPrice, 'f', -1, 64)
	}

	data, err := c.request(ctx, http.MethodPost, "/api/v1/orders", body)
	if err != nil {
		// Бизнес-отказ биржи (недостаточно маржи и т.п.) - не ошибка транспорта
		var apiErr *apiError
		if errors.As(err, &apiErr) && !errors.Is(err, models.ErrAuthFailure) {
			return models.OrderResult{Accepted: false, Reason: apiErr.Msg}, nil
		}
		return models.OrderResult{}, err
	}

	var placed struct {
		OrderID string `json:"orderId"`
	}
	if err := json.Unmarshal(data, &placed); err != nil {
		return models.OrderResult{}, fmt.Errorf("ошибка разбора ответа ордера: %w", err)
	}

	return models.OrderResult{Accepted: true, ExchangeOrderID: placed.OrderID}, nil
}

// GetMarkPrice возвращает текущую отметочную цену контракта
func (c *KuCoinClient) GetMarkPrice(ctx context.Context, symbol string) (float64, error) {
	data, err := c.request(ctx, http.MethodGet, "/api/v1/mark-price/"+symbol+"/current", nil)
	if err != nil {
		return 0, fmt.Errorf("ошибка получения цены %s: %w", symbol, err)
	}

	var mark struct {
		Value float64 `json:"value"`
	}
	if err := json.Unmarshal(data, &mark); err != nil {
		return 0, fmt.Errorf("ошибка разбора цены %s: %w", symbol, err)
	}

	return mark.Value, nil
}

// wsToken токен подключения к websocket
type wsToken struct {
	Token     string
	Endpoint  string
	PingEvery time.Duration
}

// GetWSToken запрашивает публичный токен для websocket-подключения
func (c *KuCoinClient) GetWSToken(ctx context.Context) (*wsToken, error) {
	data, err := c.request(ctx, http.MethodPost, "/api/v1/bullet-public", nil)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения ws-токена: %w", err)
	}

	var bullet struct {
		Token           string `json:"token"`
		InstanceServers []struct {
			Endpoint     string `json:"endpoint"`
			PingInterval int64  `json:"pingInterval"`
		} `json:"instanceServers"`
	}
	if err := json.Unmarshal(data, &bullet); err != nil {
		return nil, fmt.Errorf("ошибка разбора ws-токена: %w", err)
	}
	if len(bullet.InstanceServers) == 0 {
		return nil, fmt.Errorf("пустой список ws-серверов: %w", models.ErrDataUnavailable)
	}

	return &wsToken{
		Token:     bullet.Token,
		Endpoint:  bullet.InstanceServers[0].Endpoint,
		PingEvery: time.Duration(bullet.InstanceServers[0].PingInterval) * time.Millisecond,
	}, nil
}
