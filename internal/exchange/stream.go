package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hekticxox/WatchDog/internal/config"
	"github.com/hekticxox/WatchDog/pkg/logger"
	"github.com/hekticxox/WatchDog/pkg/models"
)

// Streamer держит пул websocket-подключений к KuCoin и наполняет кэш
// свечами и стаканами в реальном времени. Символы делятся между
// воркерами поровну, каждый воркер ведет одно подключение.
type Streamer struct {
	kucoin *KuCoinClient
	cache  *MarketCache
	config config.StreamConfig
}

// NewStreamer создает потоковый сборщик
func NewStreamer(kucoin *KuCoinClient, cache *MarketCache, cfg config.StreamConfig) *Streamer {
	return &Streamer{
		kucoin: kucoin,
		cache:  cache,
		config: cfg,
	}
}

// Run блокируется до отмены контекста. Каждый воркер самостоятельно
// переподключается с экспоненциальной задержкой.
func (s *Streamer) Run(ctx context.Context, symbols []string) error {
	workers := s.config.MaxWorkers
	if workers < 1 {
		workers = 1
	}
	if workers > len(symbols) {
		workers = len(symbols)
	}

	group, ctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		batch := make([]string, 0, len(symbols)/workers+1)
		for j := i; j < len(symbols); j += workers {
			batch = append(batch, symbols[j])
		}
		group.Go(func() error {
			return s.worker(ctx, batch)
		})
	}

	return group.Wait()
}

// worker цикл подключения одной партии символов
func (s *Streamer) worker(ctx context.Context, symbols []string) error {
	retry := &backoff.Backoff{
		Min:    time.Second,
		Max:    time.Minute,
		Factor: 2,
		Jitter: true,
	}

	for {
		err := s.connectAndListen(ctx, symbols)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		delay := retry.Duration()
		logger.Warn("Соединение websocket потеряно, переподключение",
			zap.Duration("delay", delay),
			zap.Error(err))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// wsMessage общий конверт сообщений KuCoin websocket
type wsMessage struct {
	Type  string          `json:"type"`
	Topic string          `json:"topic"`
	Data  json.RawMessage `json:"data"`
}

func (s *Streamer) connectAndListen(ctx context.Context, symbols []string) error {
	token, err := s.kucoin.GetWSToken(ctx)
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s?token=%s", token.Endpoint, token.Token)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("ошибка подключения websocket: %w", err)
	}
	defer conn.Close()

	if err := s.subscribe(conn, symbols); err != nil {
		return err
	}

	// Пинг и закрытие по отмене контекста - в отдельной горутине,
	// читатель блокируется на ReadMessage
	pingDone := make(chan struct{})
	defer close(pingDone)
	go func() {
		ticker := time.NewTicker(token.PingEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				ping, _ := json.Marshal(map[string]string{
					"id":   strconv.FormatInt(time.Now().UnixNano(), 10),
					"type": "ping",
				})
				if err := conn.WriteMessage(websocket.TextMessage, ping); err != nil {
					return
				}
			case <-ctx.Done():
				conn.Close()
				return
			case <-pingDone:
				return
			}
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("ошибка чтения websocket: %w", err)
		}

		var msg wsMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		if msg.Type != "message" {
			continue
		}

		s.dispatch(msg)
	}
}

// subscribe подписывает соединение на свечи и стаканы партии символов.
// Между подписками пауза - KuCoin ограничивает частоту команд.
func (s *Streamer) subscribe(conn *websocket.Conn, symbols []string) error {
	delay := time.Duration(s.config.SubscribeDelay) * time.Millisecond

	for _, symbol := range symbols {
		topics := []string{
			"/contractMarket/limitCandle:" + symbol + "_1min",
			"/contractMarket/level2Depth50:" + symbol,
		}
		for _, topic := range topics {
			sub, _ := json.Marshal(map[string]any{
				"id":       strconv.FormatInt(time.Now().UnixNano(), 10),
				"type":     "subscribe",
				"topic":    topic,
				"response": false,
			})
			if err := conn.WriteMessage(websocket.TextMessage, sub); err != nil {
				return fmt.Errorf("ошибка подписки на %s: %w", topic, err)
			}
			time.Sleep(delay)
		}
	}

	return nil
}

// dispatch разбирает сообщение по топику и кладет результат в кэш
func (s *Streamer) dispatch(msg wsMessage) {
	switch {
	case hasTopicPrefix(msg.Topic, "/contractMarket/limitCandle:"):
		s.handleCandle(msg.Data)
	case hasTopicPrefix(msg.Topic, "/contractMarket/level2Depth50:"):
		s.handleDepth(msg.Topic, msg.Data)
	}
}

func hasTopicPrefix(topic, prefix string) bool {
	return len(topic) > len(prefix) && topic[:len(prefix)] == prefix
}

// handleCandle обрабатывает обновление свечи.
// Порядок полей KuCoin: [time, open, close, high, low, volume, turnover].
func (s *Streamer) handleCandle(data json.RawMessage) {
	var payload struct {
		Symbol  string   `json:"symbol"`
		Candles []string `json:"candles"`
	}
	if err := json.Unmarshal(data, &payload); err != nil || len(payload.Candles) < 6 {
		return
	}

	values := make([]float64, 6)
	for i := 0; i < 6; i++ {
		v, err := strconv.ParseFloat(payload.Candles[i], 64)
		if err != nil {
			return
		}
		values[i] = v
	}

	openTime := time.Unix(int64(values[0]), 0)
	s.cache.AppendCandle(&models.Candle{
		Symbol:    payload.Symbol,
		Interval:  "1min",
		OpenTime:  openTime,
		Open:      values[1],
		Close:     values[2],
		High:      values[3],
		Low:       values[4],
		Volume:    values[5],
		CloseTime: openTime.Add(time.Minute),
	})
}

// handleDepth обрабатывает снимок стакана level2Depth50
func (s *Streamer) handleDepth(topic string, data json.RawMessage) {
	var payload struct {
		Bids [][2]json.Number `json:"bids"`
		Asks [][2]json.Number `json:"asks"`
		Ts   int64            `json:"ts"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return
	}

	symbol := topic[len("/contractMarket/level2Depth50:"):]
	book := &models.OrderBook{
		Symbol:    symbol,
		Timestamp: time.Unix(0, payload.Ts),
		Bids:      make([]models.OrderBookLevel, 0, len(payload.Bids)),
		Asks:      make([]models.OrderBookLevel, 0, len(payload.Asks)),
	}

	for _, level := range payload.Bids {
		price, err1 := level[0].Float64()
		amount, err2 := level[1].Float64()
		if err1 != nil || err2 != nil {
			continue
		}
		book.Bids = append(book.Bids, models.OrderBookLevel{Price: price, Amount: amount})
	}
	for _, level := range payload.Asks {
		price, err1 := level[0].Float64()
		amount, err2 := level[1].Float64()
		if err1 != nil || err2 != nil {
			continue
		}
		book.Asks = append(book.Asks, models.OrderBookLevel{Price: price, Amount: amount})
	}

	s.cache.SetOrderBook(book)
}
