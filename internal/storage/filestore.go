package storage

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hekticxox/WatchDog/internal/config"
	"github.com/hekticxox/WatchDog/pkg/models"
)

// Заголовок журнала сигналов
var signalHeader = []string{
	"timestamp", "symbol", "direction", "points", "total",
	"price", "rsi", "macd", "funding", "reasons",
}

// FileStore плоское файловое хранилище: журнал сигналов, черный список
// символов и срез лучших кандидатов. Никаких БД.
type FileStore struct {
	config config.StorageConfig
}

// NewFileStore создает файловое хранилище
func NewFileStore(cfg config.StorageConfig) *FileStore {
	return &FileStore{
		config: cfg,
	}
}

// AppendSignal дописывает сигнал в CSV-журнал, создавая файл с заголовком
// при первом обращении
func (s *FileStore) AppendSignal(result models.SignalResult) error {
	_, statErr := os.Stat(s.config.SignalLog)
	newFile := os.IsNotExist(statErr)

	f, err := os.OpenFile(s.config.SignalLog, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("ошибка открытия журнала сигналов: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if newFile {
		if err := w.Write(signalHeader); err != nil {
			return fmt.Errorf("ошибка записи заголовка журнала: %w", err)
		}
	}

	row := []string{
		result.Timestamp.Format(time.RFC3339),
		result.Symbol,
		string(result.Direction),
		strconv.Itoa(result.ConfluencePoints),
		strconv.Itoa(result.TotalPossiblePoints),
		strconv.FormatFloat(result.CurrentPrice, 'f', -1, 64),
		strconv.FormatFloat(result.Indicators.RSI, 'f', 2, 64),
		strconv.FormatFloat(result.Indicators.MACD, 'f', 6, 64),
		strconv.FormatFloat(result.FundingRate, 'f', 6, 64),
		strings.Join(result.Reasons, ";"),
	}
	if err := w.Write(row); err != nil {
		return fmt.Errorf("ошибка записи сигнала: %w", err)
	}

	w.Flush()
	return w.Error()
}

// SignalRecord строка журнала сигналов для отображения
type SignalRecord struct {
	Timestamp time.Time
	Symbol    string
	Direction models.Direction
	Points    int
	Total     int
	Price     float64
	RSI       float64
	Funding   float64
	Reasons   []string
}

// ReadSignals возвращает последние limit записей журнала (новые в начале)
func (s *FileStore) ReadSignals(limit int) ([]SignalRecord, error) {
	f, err := os.Open(s.config.SignalLog)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("ошибка открытия журнала сигналов: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения журнала сигналов: %w", err)
	}

	records := make([]SignalRecord, 0, limit)
	// Обходим с конца, пропуская заголовок
	for i := len(rows) - 1; i >= 1 && len(records) < limit; i-- {
		row := rows[i]
		if len(row) < len(signalHeader) {
			continue
		}
		ts, _ := time.Parse(time.RFC3339, row[0])
		points, _ := strconv.Atoi(row[3])
		total, _ := strconv.Atoi(row[4])
		price, _ := strconv.ParseFloat(row[5], 64)
		rsi, _ := strconv.ParseFloat(row[6], 64)
		funding, _ := strconv.ParseFloat(row[8], 64)

		var reasons []string
		if row[9] != "" {
			reasons = strings.Split(row[9], ";")
		}

		records = append(records, SignalRecord{
			Timestamp: ts,
			Symbol:    row[1],
			Direction: models.Direction(row[2]),
			Points:    points,
			Total:     total,
			Price:     price,
			RSI:       rsi,
			Funding:   funding,
			Reasons:   reasons,
		})
	}

	return records, nil
}

// LoadBadSymbols читает черный список символов (по одному на строку)
func (s *FileStore) LoadBadSymbols() (map[string]bool, error) {
	f, err := os.Open(s.config.BadSymbols)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]bool), nil
		}
		return nil, fmt.Errorf("ошибка открытия черного списка: %w", err)
	}
	defer f.Close()

	bad := make(map[string]bool)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		symbol := strings.TrimSpace(scanner.Text())
		if symbol != "" {
			bad[symbol] = true
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения черного списка: %w", err)
	}

	return bad, nil
}

// MarkBadSymbol дописывает символ в черный список
func (s *FileStore) MarkBadSymbol(symbol string) error {
	f, err := os.OpenFile(s.config.BadSymbols, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("ошибка открытия черного списка: %w", err)
	}
	defer f.Close()

	if _, err := fmt.Fprintln(f, symbol); err != nil {
		return fmt.Errorf("ошибка записи в черный список: %w", err)
	}
	return nil
}

// WriteTopCandidates перезаписывает файл лучших кандидатов цикла
func (s *FileStore) WriteTopCandidates(results []models.SignalResult) error {
	f, err := os.Create(s.config.TopCandidates)
	if err != nil {
		return fmt.Errorf("ошибка создания файла кандидатов: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "# %s\n", time.Now().Format(time.RFC3339))
	for _, r := range results {
		fmt.Fprintf(w, "%s %s %d/%d rsi=%.2f price=%.6f %s\n",
			r.Symbol, r.Direction, r.ConfluencePoints, r.TotalPossiblePoints,
			r.Indicators.RSI, r.CurrentPrice, strings.Join(r.Reasons, ","))
	}

	if err := w.Flush(); err != nil {
		return fmt.Errorf("ошибка записи файла кандидатов: %w", err)
	}
	return nil
}
