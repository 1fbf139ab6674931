// Package dispatch fans an admitted handoff out to the notification
// channels. Channels run concurrently, each under its own timeout and
// circuit breaker; one channel failing never affects another.
package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hurttlocker/intake/internal/config"
	"github.com/hurttlocker/intake/internal/handoff"
)

// Default per-channel timeouts.
const (
	WebhookTimeout = 8 * time.Second
	EmailTimeout   = 10 * time.Second
	StoreTimeout   = 5 * time.Second
)

// Submission is one admitted handoff together with its conversation context.
type Submission struct {
	ConversationID string
	VisitorID      string
	SessionID      string
	Source         map[string]any
	Meta           map[string]any

	Brand  config.Brand
	Kind   string
	Origin handoff.Source
	Hash   string
	Record handoff.Record
	At     time.Time
}

// Channel delivers a submission to one collaborator.
type Channel interface {
	Name() string
	Send(ctx context.Context, s Submission) error
}

// Recorder counts dispatch outcomes. *metrics.Collector satisfies it.
type Recorder interface {
	RecordDispatch(channel string, err error)
}

// Result is the outcome of one channel.
type Result struct {
	Channel  string
	Err      error
	Duration time.Duration
}

type boundChannel struct {
	ch      Channel
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker
}

// Dispatcher runs every registered channel for each submission.
type Dispatcher struct {
	channels []*boundChannel
	log      *zap.Logger
	rec      Recorder
}

// New creates an empty dispatcher. rec may be nil.
func New(log *zap.Logger, rec Recorder) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{log: log, rec: rec}
}

// Add registers a channel with its timeout.
func (d *Dispatcher) Add(ch Channel, timeout time.Duration) *Dispatcher {
	name := ch.Name()
	d.channels = append(d.channels, &boundChannel{
		ch:      ch,
		timeout: timeout,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Interval:    5 * time.Minute,
			Timeout:     time.Minute,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				d.log.Warn("dispatch breaker state changed",
					zap.String("channel", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		}),
	})
	return d
}

// Channels lists the registered channel names in registration order.
func (d *Dispatcher) Channels() []string {
	names := make([]string, len(d.channels))
	for i, bc := range d.channels {
		names[i] = bc.ch.Name()
	}
	return names
}

// Dispatch sends s to every channel and waits for all of them. Results are
// in registration order. Errors are logged and counted, never returned.
func (d *Dispatcher) Dispatch(ctx context.Context, s Submission) []Result {
	results := make([]Result, len(d.channels))

	var g errgroup.Group
	for i, bc := range d.channels {
		g.Go(func() error {
			results[i] = d.send(ctx, bc, s)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (d *Dispatcher) send(ctx context.Context, bc *boundChannel, s Submission) Result {
	name := bc.ch.Name()
	start := time.Now()

	cctx, cancel := context.WithTimeout(ctx, bc.timeout)
	defer cancel()

	_, err := bc.breaker.Execute(func() (any, error) {
		return nil, bc.ch.Send(cctx, s)
	})
	res := Result{Channel: name, Err: err, Duration: time.Since(start)}

	fields := []zap.Field{
		zap.String("stage", "dispatch"),
		zap.String("channel", name),
		zap.String("conversation_id", s.ConversationID),
		zap.String("brand", s.Brand.Key),
		zap.Duration("took", res.Duration),
	}
	switch {
	case err == nil:
		d.log.Info("handoff delivered", fields...)
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		d.log.Warn("dispatch skipped, breaker open", append(fields, zap.Error(err))...)
	default:
		d.log.Error("dispatch failed", append(fields, zap.Error(err))...)
	}
	if d.rec != nil {
		d.rec.RecordDispatch(name, err)
	}
	return res
}
