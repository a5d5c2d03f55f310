// Package delivery defines the outbound message contract used when a
// reminder fires.
package delivery

import (
	"context"
	"errors"
	"strings"

	logx "vocabremind/pkg/logx"
)

var ErrNoDestination = errors.New("delivery: destination is empty")

// Message is one rendered reminder. Destination is opaque to the scheduler;
// each Sender interprets it.
type Message struct {
	Destination string `json:"destination"`
	Title       string `json:"title"`
	Body        string `json:"body"`
}

type Sender interface {
	Send(ctx context.Context, m Message) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, m Message) error

func (f SenderFunc) Send(ctx context.Context, m Message) error { return f(ctx, m) }

// LogSender writes messages to the log instead of delivering them.
type LogSender struct {
	Log logx.Logger
}

func (s LogSender) Send(ctx context.Context, m Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(m.Destination) == "" {
		return ErrNoDestination
	}
	log := s.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	log.Info("reminder delivered (log driver)",
		logx.String("destination", m.Destination),
		logx.String("title", m.Title),
		logx.String("body", m.Body),
	)
	return nil
}
