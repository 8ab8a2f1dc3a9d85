package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/hekticxox/WatchDog/internal/config"
	"github.com/hekticxox/WatchDog/internal/storage"
	"github.com/hekticxox/WatchDog/pkg/models"
)

// Сколько последних сигналов показывать в таблице
const signalTableRows = 40

// SignalsUI табличная панель журнала сигналов на tview:
// последние записи signal_log.csv с подсветкой направления
type SignalsUI struct {
	app    *tview.Application
	table  *tview.Table
	store  *storage.FileStore
	config config.UIConfig
}

// NewSignalsUI создает панель журнала сигналов
func NewSignalsUI(cfg config.UIConfig, store *storage.FileStore) *SignalsUI {
	table := tview.NewTable().
		SetBorders(false).
		SetFixed(1, 0)
	table.SetBorder(true).SetTitle(" WatchDog - журнал сигналов (Q - выход) ")

	app := tview.NewApplication().SetRoot(table, true)
	app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Rune() == 'q' || event.Rune() == 'Q' || event.Key() == tcell.KeyCtrlC {
			app.Stop()
			return nil
		}
		return event
	})

	return &SignalsUI{
		app:    app,
		table:  table,
		store:  store,
		config: cfg,
	}
}

// Start запускает UI, блокируется до выхода оператора
func (ui *SignalsUI) Start() error {
	go func() {
		ticker := time.NewTicker(time.Duration(ui.config.RefreshRate) * time.Millisecond)
		defer ticker.Stop()
		for range ticker.C {
			records, err := ui.store.ReadSignals(signalTableRows)
			if err != nil {
				continue
			}
			ui.app.QueueUpdateDraw(func() {
				ui.render(records)
			})
		}
	}()

	return ui.app.Run()
}

func (ui *SignalsUI) render(records []storage.SignalRecord) {
	ui.table.Clear()

	headers := []string{"Время", "Символ", "Сигнал", "Очки", "Цена", "RSI", "Funding", "Причины"}
	for col, h := range headers {
		ui.table.SetCell(0, col, tview.NewTableCell(h).
			SetTextColor(tcell.ColorYellow).
			SetAttributes(tcell.AttrBold).
			SetSelectable(false))
	}

	for row, rec := range records {
		color := tcell.ColorWhite
		switch rec.Direction {
		case models.DirectionBuy:
			color = tcell.ColorGreen
		case models.DirectionSell:
			color = tcell.ColorRed
		}

		cells := []string{
			rec.Timestamp.Format("15:04:05"),
			rec.Symbol,
			string(rec.Direction),
			fmt.Sprintf("%d/%d", rec.Points, rec.Total),
			fmt.Sprintf("%.6f", rec.Price),
			fmt.Sprintf("%.2f", rec.RSI),
			fmt.Sprintf("%.6f", rec.Funding),
			strings.Join(rec.Reasons, ","),
		}
		for col, text := range cells {
			ui.table.SetCell(row+1, col, tview.NewTableCell(text).SetTextColor(color))
		}
	}
}
