// Package telegram delivers reminders and operator alerts through the
// Telegram Bot API.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"vocabremind/internal/delivery"
	logx "vocabremind/pkg/logx"
)

const telegramTextLimit = 4096

type Config struct {
	Token string
	// HTTPTimeout bounds each Bot API call. Defaults to 10s.
	HTTPTimeout time.Duration
}

// poster is the subset of *tele.Bot the sender uses.
type poster interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Sender sends to the chat whose numeric id is the message destination.
type Sender struct {
	bot poster
	log logx.Logger
}

func New(cfg Config, log logx.Logger) (*Sender, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		Client:  &http.Client{Timeout: timeout},
		Offline: true,
	})
	if err != nil {
		return nil, err
	}
	return newSender(b, log), nil
}

func newSender(b poster, log logx.Logger) *Sender {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Sender{bot: b, log: log}
}

// Send renders the title in bold above the body.
func (s *Sender) Send(ctx context.Context, m delivery.Message) error {
	chatID, err := parseChatID(m.Destination)
	if err != nil {
		return err
	}
	text := "<b>" + html.EscapeString(m.Title) + "</b>"
	if m.Body != "" {
		text += "\n" + html.EscapeString(m.Body)
	}
	return s.sendText(ctx, chatID, text, tele.ModeHTML)
}

// SendAlert implements logx.AlertSender.
func (s *Sender) SendAlert(ctx context.Context, chat, text string) error {
	chatID, err := parseChatID(chat)
	if err != nil {
		return err
	}
	return s.sendText(ctx, chatID, text, "")
}

func (s *Sender) sendText(ctx context.Context, chatID int64, text string, mode tele.ParseMode) error {
	chat := &tele.Chat{ID: chatID}
	for _, chunk := range splitText(text, telegramTextLimit, string(mode)) {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, err := s.bot.Send(chat, chunk, &tele.SendOptions{
			ParseMode:             mode,
			DisableWebPagePreview: true,
		})
		if err != nil {
			return fmt.Errorf("telegram send: %w", err)
		}
	}
	return nil
}

func parseChatID(dest string) (int64, error) {
	dest = strings.TrimSpace(dest)
	if dest == "" {
		return 0, delivery.ErrNoDestination
	}
	id, err := strconv.ParseInt(dest, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("telegram: destination %q is not a chat id: %w", dest, err)
	}
	return id, nil
}

// splitText cuts s into chunks of at most limit runes, preferring newline
// boundaries and never cutting inside an HTML tag when mode is HTML.
func splitText(s string, limit int, mode string) []string {
	if limit <= 0 {
		limit = telegramTextLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := min(start+limit, len(rs))

		if end < len(rs) {
			for i := end - 1; i > start; i-- {
				if rs[i] == '\n' && i-start >= limit/3 {
					end = i + 1
					break
				}
			}
		}

		if strings.EqualFold(mode, "HTML") && end < len(rs) {
			lastOpen, lastClose := -1, -1
			for i := start; i < end; i++ {
				switch rs[i] {
				case '<':
					lastOpen = i
				case '>':
					lastClose = i
				}
			}
			if lastOpen > lastClose && lastOpen > start+1 {
				end = lastOpen
			}
		}

		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))
		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}
