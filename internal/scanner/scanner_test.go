package scanner

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hekticxox/WatchDog/internal/config"
	"github.com/hekticxox/WatchDog/internal/storage"
	"github.com/hekticxox/WatchDog/pkg/models"
)

func TestParseMode(t *testing.T) {
	for _, valid := range []string{"trade", "monitor", "trailing", "grid"} {
		mode, err := ParseMode(valid)
		require.NoError(t, err)
		require.Equal(t, Mode(valid), mode)
	}

	_, err := ParseMode("yolo")
	require.Error(t, err)
}

func TestOpposes(t *testing.T) {
	require.True(t, opposes(models.DirectionBuy, models.SideSell))
	require.True(t, opposes(models.DirectionSell, models.SideBuy))
	require.False(t, opposes(models.DirectionBuy, models.SideBuy))
	require.False(t, opposes(models.DirectionSell, models.SideSell))
	require.False(t, opposes(models.DirectionHold, models.SideBuy))
	require.False(t, opposes(models.DirectionHold, models.SideSell))
}

func TestFirstN(t *testing.T) {
	results := []models.SignalResult{
		{Symbol: "A"}, {Symbol: "B"}, {Symbol: "C"},
	}

	require.Len(t, firstN(results, 2), 2)
	require.Len(t, firstN(results, 5), 3)
	require.Empty(t, firstN(nil, 5))
}

func newSkipScanner(t *testing.T) *Scanner {
	dir := t.TempDir()
	store := storage.NewFileStore(config.StorageConfig{
		SignalLog:     filepath.Join(dir, "signal_log.csv"),
		BadSymbols:    filepath.Join(dir, "bad_symbols.txt"),
		TopCandidates: filepath.Join(dir, "top_candidates.txt"),
	})
	return &Scanner{store: store, bad: make(map[string]bool)}
}

func TestSkipSymbolBlacklistsShortHistory(t *testing.T) {
	s := newSkipScanner(t)

	s.skipSymbol("NEWUSDTM", fmt.Errorf("история NEWUSDTM слишком короткая: %w", models.ErrInsufficientHistory))
	require.True(t, s.bad["NEWUSDTM"])

	// Черный список сохраняется на диск
	bad, err := s.store.LoadBadSymbols()
	require.NoError(t, err)
	require.True(t, bad["NEWUSDTM"])
}

func TestSkipSymbolTransientErrorNotBlacklisted(t *testing.T) {
	s := newSkipScanner(t)

	// Временный сбой API - пропуск только в текущем цикле
	s.skipSymbol("XBTUSDTM", fmt.Errorf("свечи XBTUSDTM: %w", models.ErrDataUnavailable))
	require.False(t, s.bad["XBTUSDTM"])

	bad, err := s.store.LoadBadSymbols()
	require.NoError(t, err)
	require.False(t, bad["XBTUSDTM"])
}

func TestAutoConfirmer(t *testing.T) {
	ok, err := AutoConfirmer{}.Confirm(context.Background(), models.SignalResult{}, 1)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestPromptConfirmerYes(t *testing.T) {
	c := NewPromptConfirmer(strings.NewReader("y\n"), io.Discard, time.Second)

	ok, err := c.Confirm(context.Background(), models.SignalResult{Symbol: "XBTUSDTM"}, 1)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestPromptConfirmerNo(t *testing.T) {
	c := NewPromptConfirmer(strings.NewReader("n\n"), io.Discard, time.Second)

	ok, err := c.Confirm(context.Background(), models.SignalResult{Symbol: "XBTUSDTM"}, 1)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPromptConfirmerTimeout(t *testing.T) {
	// Пустой блокирующийся ввод: молчание оператора - отказ
	pr, _ := io.Pipe()
	c := NewPromptConfirmer(pr, io.Discard, 50*time.Millisecond)

	start := time.Now()
	ok, err := c.Confirm(context.Background(), models.SignalResult{Symbol: "XBTUSDTM"}, 1)
	require.NoError(t, err)
	require.False(t, ok)
	require.Less(t, time.Since(start), time.Second)
}

func TestPromptConfirmerContextCancel(t *testing.T) {
	pr, _ := io.Pipe()
	c := NewPromptConfirmer(pr, io.Discard, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := c.Confirm(ctx, models.SignalResult{Symbol: "XBTUSDTM"}, 1)
	require.ErrorIs(t, err, context.Canceled)
}
