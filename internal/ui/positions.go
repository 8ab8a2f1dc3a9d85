package ui

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/hekticxox/WatchDog/internal/config"
	"github.com/hekticxox/WatchDog/internal/trading"
	"github.com/hekticxox/WatchDog/pkg/logger"
	"github.com/hekticxox/WatchDog/pkg/models"
)

// Стили UI
var (
	primaryColor = lipgloss.Color("#0077cc")
	dimColor     = lipgloss.Color("#333333")
	errorColor   = lipgloss.Color("#cc3300")
	successColor = lipgloss.Color("#33cc33")
	warningColor = lipgloss.Color("#cccc00")

	appStyle = lipgloss.NewStyle().
			Padding(1, 2).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor)
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#ffffff")).
			Background(primaryColor).
			Padding(0, 1).
			Align(lipgloss.Center)
	sectionHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("#ffffff")).
				Background(dimColor).
				Padding(0, 1)
	sectionStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(dimColor).
			Padding(0, 1)
	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#999999")).
			Padding(0, 1)
)

// PositionSource источник снимков открытых позиций
type PositionSource interface {
	GetPositions(ctx context.Context) ([]*models.Position, error)
}

// PositionsUI терминальная панель открытых позиций: размер, вход, uPnL,
// ROI, цена ликвидации, текущий трейлинг-стоп и зафиксированная им прибыль
type PositionsUI struct {
	source   PositionSource
	trailing *trading.TrailingEngine
	config   config.UIConfig

	positionsMutex sync.RWMutex
	positions      []*models.Position

	logsMutex sync.RWMutex
	logs      []string

	program       *tea.Program
	selectedIndex int
	width         int
	height        int
	lastErr       string
}

// Сообщения для обновления UI
type tickMsg struct{}
type positionsMsg struct {
	positions []*models.Position
	err       error
}

// positionsModel модель для bubbletea
type positionsModel struct {
	ui *PositionsUI
}

// NewPositionsUI создает панель позиций
func NewPositionsUI(cfg config.UIConfig, source PositionSource, trailing *trading.TrailingEngine) *PositionsUI {
	ui := &PositionsUI{
		source:   source,
		trailing: trailing,
		config:   cfg,
		logs:     []string{"WatchDog запущен. Ожидание данных..."},
		width:    120,
		height:   40,
	}

	// Пополнение панели логов из JSON-файла логгера
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for range ticker.C {
			ui.loadLogsFromFile()
		}
	}()

	return ui
}

// Start запускает UI, блокируется до выхода оператора
func (ui *PositionsUI) Start() {
	model := positionsModel{ui: ui}
	ui.program = tea.NewProgram(model, tea.WithAltScreen())

	if _, err := ui.program.Run(); err != nil {
		fmt.Printf("Ошибка запуска UI: %v\n", err)
	}
}

// loadLogsFromFile перечитывает последние строки JSON-лога для панели логов
func (ui *PositionsUI) loadLogsFromFile() {
	file, err := os.Open(logger.JSONLogFile)
	if err != nil {
		return
	}
	defer file.Close()

	ansiRegex := regexp.MustCompile(`\x1b\[[0-9;]*m`)

	var logs []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()

		var zapLog map[string]interface{}
		if err := json.Unmarshal([]byte(line), &zapLog); err == nil {
			level, _ := zapLog["level"].(string)
			ts, _ := zapLog["ts"].(string)
			msg, _ := zapLog["msg"].(string)

			level = ansiRegex.ReplaceAllString(level, "")

			timestamp := ""
			if t, err := time.Parse("02.01.2006 - 15:04:05.999999999Z07:00", ts); err == nil {
				timestamp = t.Format("15:04:05")
			}

			formatted := fmt.Sprintf("[%s] [%s] %s", timestamp, level, msg)
			for k, v := range zapLog {
				if k != "level" && k != "ts" && k != "msg" && k != "caller" {
					formatted += fmt.Sprintf(" (%s: %v)", k, v)
				}
			}
			logs = append(logs, formatted)
		} else {
			logs = append(logs, line)
		}

		if len(logs) > 50 {
			logs = logs[1:]
		}
	}

	if len(logs) == 0 {
		return
	}

	ui.logsMutex.Lock()
	ui.logs = logs
	ui.logsMutex.Unlock()
}

// Методы для bubbletea
func (m positionsModel) Init() tea.Cmd {
	return tea.Batch(m.fetchPositions(), m.tick())
}

func (m positionsModel) tick() tea.Cmd {
	return tea.Tick(time.Duration(m.ui.config.RefreshRate)*time.Millisecond, func(time.Time) tea.Msg {
		return tickMsg{}
	})
}

func (m positionsModel) fetchPositions() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		positions, err := m.ui.source.GetPositions(ctx)
		return positionsMsg{positions: positions, err: err}
	}
}

func (m positionsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "up":
			if m.ui.selectedIndex > 0 {
				m.ui.selectedIndex--
			}
		case "down":
			m.ui.positionsMutex.RLock()
			last := len(m.ui.positions) - 1
			m.ui.positionsMutex.RUnlock()
			if m.ui.selectedIndex < last {
				m.ui.selectedIndex++
			}
		}

	case tea.WindowSizeMsg:
		m.ui.width = msg.Width
		m.ui.height = msg.Height

	case tickMsg:
		return m, tea.Batch(m.fetchPositions(), m.tick())

	case positionsMsg:
		if msg.err != nil {
			m.ui.lastErr = msg.err.Error()
			return m, nil
		}
		m.ui.lastErr = ""
		sort.Slice(msg.positions, func(i, j int) bool {
			return msg.positions[i].Symbol < msg.positions[j].Symbol
		})
		m.ui.positionsMutex.Lock()
		m.ui.positions = msg.positions
		m.ui.positionsMutex.Unlock()
	}

	return m, nil
}

func (m positionsModel) View() string {
	m.ui.positionsMutex.RLock()
	m.ui.logsMutex.RLock()
	defer m.ui.positionsMutex.RUnlock()
	defer m.ui.logsMutex.RUnlock()

	title := titleStyle.Render("WatchDog - позиции KuCoin Futures")
	positions := m.renderPositionsSection()
	logs := renderLogsSection(m.ui.logs)
	footer := footerStyle.Render("Клавиши: ↑/↓ - навигация, Q - выход")

	return appStyle.Render(
		lipgloss.JoinVertical(lipgloss.Left,
			title,
			"\n",
			positions,
			"\n",
			logs,
			"\n",
			footer,
		),
	)
}

func (m positionsModel) renderPositionsSection() string {
	header := sectionHeaderStyle.Render("ПОЗИЦИИ")
	content := strings.Builder{}

	if m.ui.lastErr != "" {
		content.WriteString("  " + lipgloss.NewStyle().Foreground(errorColor).Render(m.ui.lastErr) + "\n")
	}

	if len(m.ui.positions) == 0 {
		content.WriteString("  Нет открытых позиций\n")
	} else {
		for i, pos := range m.ui.positions {
			pnlStyle := lipgloss.NewStyle().Foreground(successColor)
			if pos.UnrealizedPnl < 0 {
				pnlStyle = lipgloss.NewStyle().Foreground(errorColor)
			}

			line := fmt.Sprintf("  %-14s %-4s x%.0f вход %.6f ликв %.6f %s",
				pos.Symbol, pos.Side, pos.Size, pos.EntryPrice, pos.LiquidationPrice,
				pnlStyle.Render(fmt.Sprintf("uPnL %.2f USDT (ROI %.2f%%)", pos.UnrealizedPnl, pos.ROI)))

			if stop, ok := m.ui.trailing.Get(pos.Symbol); ok {
				pct, usdt := trading.LockedProfit(stop, pos.EntryPrice, pos.Size)
				line += lipgloss.NewStyle().Foreground(warningColor).Render(
					fmt.Sprintf(" стоп %.6f (%.2f%% / %.2f USDT)", stop.Price, pct, usdt))
			}

			if i == m.ui.selectedIndex {
				line = "> " + line[2:]
				line = lipgloss.NewStyle().Background(lipgloss.Color("#222222")).Render(line)
			}

			content.WriteString(line + "\n")
		}
	}

	return sectionStyle.Render(
		lipgloss.JoinVertical(lipgloss.Left,
			header,
			content.String(),
		),
	)
}

func renderLogsSection(logs []string) string {
	header := sectionHeaderStyle.Render("ЛОГИ")
	content := strings.Builder{}

	maxLogsToShow := 50
	if sectionStyle.GetHeight() > 8 {
		maxLogsToShow = sectionStyle.GetHeight() - 2
	}

	start := 0
	if len(logs) > maxLogsToShow {
		start = len(logs) - maxLogsToShow
	}

	for i := start; i < len(logs); i++ {
		log := logs[i]

		if strings.Contains(log, "[ERROR]") {
			log = lipgloss.NewStyle().Foreground(errorColor).Render(log)
		} else if strings.Contains(log, "[INFO]") {
			log = lipgloss.NewStyle().Foreground(successColor).Render(log)
		} else if strings.Contains(log, "[WARN]") {
			log = lipgloss.NewStyle().Foreground(warningColor).Render(log)
		} else if strings.Contains(log, "[DEBUG]") {
			log = lipgloss.NewStyle().Foreground(lipgloss.Color("#9999ff")).Render(log)
		}

		content.WriteString("  " + log + "\n")
	}

	return sectionStyle.Render(
		lipgloss.JoinVertical(lipgloss.Left,
			header,
			content.String(),
		),
	)
}
