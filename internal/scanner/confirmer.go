package scanner

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hekticxox/WatchDog/pkg/logger"
	"github.com/hekticxox/WatchDog/pkg/models"
)

// Confirmer решает, входить ли по кандидату. Реализация обязана
// вернуться не позже своего дедлайна - ядро сканера никогда не
// блокируется на операторе.
type Confirmer interface {
	Confirm(ctx context.Context, candidate models.SignalResult, qty float64) (bool, error)
}

// AutoConfirmer одобряет все кандидаты без участия оператора
type AutoConfirmer struct{}

// Confirm всегда возвращает согласие
func (AutoConfirmer) Confirm(ctx context.Context, candidate models.SignalResult, qty float64) (bool, error) {
	return true, nil
}

// PromptConfirmer спрашивает оператора y/n. Молчание до истечения
// таймаута считается отказом.
type PromptConfirmer struct {
	in      io.Reader
	out     io.Writer
	timeout time.Duration
	answers chan string
	started bool
}

// NewPromptConfirmer создает интерактивный подтверждатель
func NewPromptConfirmer(in io.Reader, out io.Writer, timeout time.Duration) *PromptConfirmer {
	return &PromptConfirmer{
		in:      in,
		out:     out,
		timeout: timeout,
		answers: make(chan string),
	}
}

// Confirm печатает кандидата и ждет ответа до таймаута
func (p *PromptConfirmer) Confirm(ctx context.Context, candidate models.SignalResult, qty float64) (bool, error) {
	// Читатель stdin стартует лениво и живет между вызовами:
	// незавершенный ReadString нельзя отменить
	if !p.started {
		p.started = true
		go p.readLoop()
	}

	// Ответы, пришедшие после таймаута прошлого вопроса, не в счет
	for {
		select {
		case <-p.answers:
			continue
		default:
		}
		break
	}

	fmt.Fprintf(p.out, "Вход %s %s, размер %.4f, очки %d/%d [y/N, %s на ответ]: ",
		candidate.Direction, candidate.Symbol, qty,
		candidate.ConfluencePoints, candidate.TotalPossiblePoints, p.timeout)

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	select {
	case answer := <-p.answers:
		return strings.EqualFold(answer, "y") || strings.EqualFold(answer, "yes"), nil
	case <-timer.C:
		fmt.Fprintln(p.out)
		logger.Info("Подтверждение не получено, вход отклонен",
			zap.String("symbol", candidate.Symbol),
			zap.Duration("timeout", p.timeout))
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (p *PromptConfirmer) readLoop() {
	reader := bufio.NewReader(p.in)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		p.answers <- strings.TrimSpace(line)
	}
}
