// Package dispatch turns a firing into a delivered message: it resolves the
// reminder's content, throttles sends, retries when configured and reports
// the outcome. Failures never leave the dispatcher.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"vocabremind/internal/delivery"
	"vocabremind/internal/eventbus"
	"vocabremind/internal/reminder"
	"vocabremind/internal/vocabulary"
	logx "vocabremind/pkg/logx"
)

type Config struct {
	// RatePerSec caps sends across all reminders. Defaults to 10.
	RatePerSec int
	// RetryMax is the number of extra attempts after a failed send. 0 logs
	// the failure and gives up.
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	// SendTimeout bounds one delivery call. Defaults to 10s.
	SendTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.RatePerSec <= 0 {
		c.RatePerSec = 10
	}
	if c.RetryMax < 0 {
		c.RetryMax = 0
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 500 * time.Millisecond
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 10 * time.Second
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 10 * time.Second
	}
	return c
}

// DeliveryEvent is the payload of delivery.* events.
type DeliveryEvent struct {
	Reminder    string    `json:"reminder"`
	Destination string    `json:"destination"`
	Attempts    int       `json:"attempts"`
	At          time.Time `json:"at"`
	Error       string    `json:"error,omitempty"`
}

// Dispatcher is safe for concurrent use.
type Dispatcher struct {
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter

	sender delivery.Sender
	picker *vocabulary.Selector
	log    logx.Logger
	bus    eventbus.Bus
}

func New(cfg Config, sender delivery.Sender, picker *vocabulary.Selector, log logx.Logger, bus eventbus.Bus) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	if picker == nil {
		picker = vocabulary.NewSelector()
	}
	d := &Dispatcher{sender: sender, picker: picker, log: log, bus: bus}
	d.applyLocked(cfg)
	return d
}

func (d *Dispatcher) Apply(cfg Config) {
	d.mu.Lock()
	d.applyLocked(cfg)
	d.mu.Unlock()
}

func (d *Dispatcher) applyLocked(cfg Config) {
	cfg = cfg.withDefaults()
	d.cfg = cfg
	// burst = rate so a batch of reminders sharing a firing time is not
	// serialized needlessly.
	d.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// Compose renders content for r. A vocabulary entry becomes
// "Name IPA" / "Meaning\nExample"; anything else falls back to the
// reminder's title and body.
func (d *Dispatcher) Compose(r reminder.Reminder, content reminder.Content) delivery.Message {
	m := delivery.Message{Destination: r.DeviceToken, Title: r.Title, Body: r.Body}
	switch c := content.(type) {
	case reminder.RandomVocabulary:
		e, err := d.picker.Pick(c.Entries)
		if err != nil {
			d.log.Warn("vocabulary pick failed; using reminder text",
				logx.String("reminder", r.ID), logx.Err(err))
			return m
		}
		m.Title = e.Name + " " + e.IPA
		m.Body = e.Meaning + "\n" + e.Example
	case reminder.FixedContent:
		m.Title, m.Body = c.Title, c.Body
	}
	return m
}

// Dispatch delivers one firing. It always returns nil: a failed delivery is
// logged and published, and must not disturb the trigger.
func (d *Dispatcher) Dispatch(ctx context.Context, r reminder.Reminder, content reminder.Content) error {
	d.mu.Lock()
	cfg := d.cfg
	lim := d.limiter
	d.mu.Unlock()

	msg := d.Compose(r, content)
	if d.sender == nil {
		d.log.Warn("no delivery sender configured", logx.String("reminder", r.ID))
		return nil
	}

	attempts, err := d.sendWithRetry(ctx, cfg, lim, msg)
	ev := DeliveryEvent{Reminder: r.ID, Destination: msg.Destination, Attempts: attempts, At: time.Now()}
	if err != nil {
		ev.Error = err.Error()
		eventbus.Publish(d.bus, eventbus.TypeDeliveryFailed, ev)
		d.log.Error("reminder delivery failed",
			logx.String("reminder", r.ID),
			logx.String("user", r.UserID),
			logx.Int("attempts", attempts),
			logx.Err(err),
		)
		return nil
	}
	eventbus.Publish(d.bus, eventbus.TypeDeliverySent, ev)
	d.log.Info("reminder delivered",
		logx.String("reminder", r.ID),
		logx.String("title", msg.Title),
		logx.Int("attempts", attempts),
	)
	return nil
}

func (d *Dispatcher) sendWithRetry(ctx context.Context, cfg Config, lim *rate.Limiter, msg delivery.Message) (int, error) {
	maxAttempts := 1 + cfg.RetryMax

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if lim != nil {
			if err := lim.Wait(ctx); err != nil {
				if lastErr == nil {
					lastErr = err
				}
				return attempt - 1, lastErr
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
		err := d.sendGuarded(callCtx, msg)
		cancel()
		if err == nil {
			return attempt, nil
		}
		lastErr = err
		d.log.Debug("delivery attempt failed", logx.Err(err), logx.Int("attempt", attempt), logx.Int("max", maxAttempts))

		if attempt >= maxAttempts || errors.Is(err, delivery.ErrNoDestination) {
			return attempt, lastErr
		}

		delay := retryDelay(cfg, attempt)
		if delay <= 0 {
			continue
		}
		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return attempt, lastErr
		}
	}
	return maxAttempts, lastErr
}

// sendGuarded converts a panicking sender into an error.
func (d *Dispatcher) sendGuarded(ctx context.Context, msg delivery.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{v: r}
		}
	}()
	return d.sender.Send(ctx, msg)
}

type panicError struct{ v any }

func (e *panicError) Error() string { return fmt.Sprintf("delivery panic: %v", e.v) }

// retryDelay is the wait before attempt+1: base*2^(attempt-1), capped, with
// 0.7..1.3 jitter.
func retryDelay(cfg Config, attempt int) time.Duration {
	base := cfg.RetryBase
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	maxD := cfg.RetryMaxDelay
	if maxD <= 0 {
		maxD = 10 * time.Second
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxD {
			d = maxD
			break
		}
	}
	j := 0.7 + rand.Float64()*0.6
	d = time.Duration(float64(d) * j)
	if d < 0 {
		return 0
	}
	return min(d, maxD)
}
