// Package poller drives a backend task from submission to a terminal
// outcome by fetching its status on a fixed cadence.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/AaronLay10/SceneReel/internal/backend"
	"github.com/AaronLay10/SceneReel/internal/events"
	"github.com/AaronLay10/SceneReel/internal/scene"
)

const (
	// DefaultInterval is the delay between a settled fetch and the next one.
	DefaultInterval = 2000 * time.Millisecond
	// DefaultMaxConsecutiveFailures is five minutes of retries at the
	// default interval.
	DefaultMaxConsecutiveFailures = 150
)

var (
	// ErrAlreadyPolling is returned by Start while a task is being polled.
	ErrAlreadyPolling = errors.New("poller: already polling")
	// ErrPollRetriesExhausted ends polling after too many consecutive
	// transient failures.
	ErrPollRetriesExhausted = errors.New("poller: retries exhausted")
)

// TerminalTaskError is a failure reported by the backend for the task.
type TerminalTaskError struct {
	TaskID  string
	Message string
}

func (e *TerminalTaskError) Error() string {
	return fmt.Sprintf("task %s failed: %s", e.TaskID, e.Message)
}

// Fetcher is the part of the backend the poller needs.
type Fetcher interface {
	TaskStatus(ctx context.Context, taskID string) (backend.TaskStatus, error)
	Scenes(ctx context.Context, taskID string) (*scene.List, error)
}

// State is the lifecycle of one polling run.
type State string

const (
	Idle      State = "idle"
	Polling   State = "polling"
	Completed State = "completed"
	Failed    State = "failed"
	Cancelled State = "cancelled"
)

// Handlers receive results. They run on the poller goroutine.
type Handlers struct {
	OnProgress  func(taskID string, st backend.TaskStatus)
	OnCompleted func(taskID string, scenes *scene.List)
	OnFailed    func(taskID string, err error)
}

// Options tunes the cadence and retry budget.
type Options struct {
	Interval time.Duration
	// MaxConsecutiveFailures bounds transient retries. Zero means
	// DefaultMaxConsecutiveFailures; negative is unbounded.
	MaxConsecutiveFailures int
	// BackoffMultiplier grows the delay after each consecutive failure.
	// 1 keeps the delay fixed.
	BackoffMultiplier float64
	MaxDelay          time.Duration
	Meter             metric.Meter
}

// Stats are the counters of the current or last run.
type Stats struct {
	TaskID              string `json:"task_id"`
	State               State  `json:"state"`
	Fetches             int    `json:"fetches"`
	Retries             int    `json:"retries"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
	Progress            int    `json:"progress"`
	Message             string `json:"message"`
}

// Poller polls one task at a time.
type Poller struct {
	fetcher  Fetcher
	opts     Options
	handlers Handlers

	mu     sync.Mutex
	stats  Stats
	cancel context.CancelFunc
	done   chan struct{}

	fetchCounter metric.Int64Counter
	retryCounter metric.Int64Counter
}

// New creates an idle poller.
func New(f Fetcher, opts Options, h Handlers) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.MaxConsecutiveFailures == 0 {
		opts.MaxConsecutiveFailures = DefaultMaxConsecutiveFailures
	}
	if opts.BackoffMultiplier < 1 {
		opts.BackoffMultiplier = 1
	}
	if opts.MaxDelay < opts.Interval {
		opts.MaxDelay = opts.Interval
	}
	if opts.Meter == nil {
		opts.Meter = otel.Meter("scenereel/poller")
	}

	p := &Poller{
		fetcher:  f,
		opts:     opts,
		handlers: h,
		stats:    Stats{State: Idle},
	}

	var err error
	p.fetchCounter, err = opts.Meter.Int64Counter("scenereel.poll.fetches",
		metric.WithDescription("Status and scene fetches by outcome"))
	if err != nil {
		log.Printf("[poller] failed to create fetch counter: %v", err)
	}
	p.retryCounter, err = opts.Meter.Int64Counter("scenereel.poll.retries",
		metric.WithDescription("Transient fetch failures that were retried"))
	if err != nil {
		log.Printf("[poller] failed to create retry counter: %v", err)
	}
	return p
}

// Start begins polling taskID. The first fetch is issued immediately.
func (p *Poller) Start(ctx context.Context, taskID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stats.State == Polling {
		return ErrAlreadyPolling
	}

	if p.cancel != nil {
		p.cancel()
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.stats = Stats{TaskID: taskID, State: Polling}

	events.Emit("info", "poll.started", "", map[string]interface{}{"task_id": taskID})
	go p.run(runCtx, taskID, p.done)
	return nil
}

// Stop cancels the run and waits for its goroutine. No handler is
// invoked after Stop returns, so handlers must not call Stop.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Done is closed when the current run ends. Nil before the first Start.
func (p *Poller) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

// Stats returns the counters of the current or last run.
func (p *Poller) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

func (p *Poller) update(fn func(*Stats)) {
	p.mu.Lock()
	fn(&p.stats)
	p.mu.Unlock()
}

func (p *Poller) run(ctx context.Context, taskID string, done chan struct{}) {
	defer close(done)

	delay := p.opts.Interval
	failures := 0
	completed := false

	for {
		var err error
		if !completed {
			var st backend.TaskStatus
			st, err = p.fetchStatus(ctx, taskID)
			if ctx.Err() != nil {
				p.cancelled(taskID)
				return
			}
			if err == nil {
				p.update(func(s *Stats) {
					s.Progress = st.Progress
					s.Message = st.Message
				})
				if p.handlers.OnProgress != nil {
					p.handlers.OnProgress(taskID, st)
				}
				events.Emit("info", "poll.progress", st.Message, map[string]interface{}{
					"task_id":  taskID,
					"progress": st.Progress,
					"status":   string(st.State),
				})

				switch st.State {
				case backend.TaskFailed:
					p.fail(taskID, &TerminalTaskError{TaskID: taskID, Message: st.Message})
					return
				case backend.TaskCompleted:
					completed = true
				}
			}
		}

		if err == nil && completed {
			var list *scene.List
			list, err = p.fetchScenes(ctx, taskID)
			if ctx.Err() != nil {
				p.cancelled(taskID)
				return
			}
			if err == nil {
				p.complete(taskID, list)
				return
			}
		}

		if err != nil {
			if !backend.IsTransient(err) {
				p.fail(taskID, err)
				return
			}
			failures++
			p.update(func(s *Stats) {
				s.Retries++
				s.ConsecutiveFailures = failures
			})
			if p.retryCounter != nil {
				p.retryCounter.Add(ctx, 1)
			}
			log.Printf("[poller] transient failure %d for task %s: %v", failures, taskID, err)
			events.Emit("warn", "poll.retry", err.Error(), map[string]interface{}{
				"task_id":  taskID,
				"failures": failures,
			})

			if limit := p.opts.MaxConsecutiveFailures; limit >= 0 && failures > limit {
				events.Emit("error", "poll.exhausted", err.Error(), map[string]interface{}{"task_id": taskID})
				p.fail(taskID, fmt.Errorf("%w after %d failures: %v", ErrPollRetriesExhausted, failures, err))
				return
			}
			if failures > 1 {
				delay = time.Duration(float64(delay) * p.opts.BackoffMultiplier)
				if delay > p.opts.MaxDelay {
					delay = p.opts.MaxDelay
				}
			}
		} else {
			failures = 0
			delay = p.opts.Interval
			p.update(func(s *Stats) { s.ConsecutiveFailures = 0 })
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			p.cancelled(taskID)
			return
		case <-timer.C:
		}
	}
}

func (p *Poller) fetchStatus(ctx context.Context, taskID string) (backend.TaskStatus, error) {
	st, err := p.fetcher.TaskStatus(ctx, taskID)
	p.count(ctx, "status", err)
	return st, err
}

func (p *Poller) fetchScenes(ctx context.Context, taskID string) (*scene.List, error) {
	list, err := p.fetcher.Scenes(ctx, taskID)
	p.count(ctx, "scenes", err)
	if err == nil && (list == nil || len(list.Scenes) == 0) {
		err = fmt.Errorf("task %s completed with no scenes", taskID)
	}
	return list, err
}

func (p *Poller) count(ctx context.Context, kind string, err error) {
	p.update(func(s *Stats) { s.Fetches++ })
	if p.fetchCounter == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	p.fetchCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("outcome", outcome),
	))
}

func (p *Poller) complete(taskID string, list *scene.List) {
	p.update(func(s *Stats) {
		s.State = Completed
		s.Progress = 100
	})
	events.Emit("info", "poll.completed", "", map[string]interface{}{
		"task_id": taskID,
		"scenes":  len(list.Scenes),
	})
	if p.handlers.OnCompleted != nil {
		p.handlers.OnCompleted(taskID, list)
	}
}

func (p *Poller) fail(taskID string, err error) {
	p.update(func(s *Stats) { s.State = Failed })
	events.Emit("error", "poll.failed", err.Error(), map[string]interface{}{"task_id": taskID})
	if p.handlers.OnFailed != nil {
		p.handlers.OnFailed(taskID, err)
	}
}

func (p *Poller) cancelled(taskID string) {
	p.update(func(s *Stats) { s.State = Cancelled })
	events.Emit("info", "poll.cancelled", "", map[string]interface{}{"task_id": taskID})
}
