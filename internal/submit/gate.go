// Package submit validates a submission, runs the payment precheck and
// dispatches exactly one task creation request.
package submit

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/AaronLay10/SceneReel/internal/backend"
	"github.com/AaronLay10/SceneReel/internal/events"
)

// Phase is where the submission UI currently is.
type Phase string

const (
	// PhaseIdle is the pre-submission state.
	PhaseIdle            Phase = "idle"
	PhaseCheckingPayment Phase = "checking_payment"
	PhaseAwaitingPayment Phase = "awaiting_payment"
	PhaseUploading       Phase = "uploading"
	PhaseSubmitted       Phase = "submitted"
)

// Config carries the provider, credential and generation flags.
type Config struct {
	Provider      string
	Credential    string
	EnableVideo   bool
	UseStoryboard bool
	CustomPrompt  string
}

// Handle identifies a created task.
type Handle struct {
	TaskID    string `json:"task_id"`
	WordCount int    `json:"word_count"`
	Filename  string `json:"filename"`
}

// Backend is the part of the backend the gate calls.
type Backend interface {
	CheckPayment(ctx context.Context, wordCount int) (backend.PaymentCheck, error)
	CreateTask(ctx context.Context, req backend.CreateRequest) (string, error)
}

// Prompter asks the user once whether to pay and proceed.
type Prompter interface {
	Confirm(ctx context.Context, check backend.PaymentCheck, wordCount int) (bool, error)
}

// PromptFunc adapts a function to Prompter.
type PromptFunc func(ctx context.Context, check backend.PaymentCheck, wordCount int) (bool, error)

func (f PromptFunc) Confirm(ctx context.Context, check backend.PaymentCheck, wordCount int) (bool, error) {
	return f(ctx, check, wordCount)
}

// Navigator moves the user to another screen.
type Navigator interface {
	ToSettings()
	ToLogin()
}

// Gate is the single entry point for creating tasks.
type Gate struct {
	backend  Backend
	prompter Prompter
	nav      Navigator

	mu      sync.Mutex
	phase   Phase
	onPhase func(Phase)

	submissions metric.Int64Counter
}

// NewGate creates a gate. A nil prompter declines every payment; a nil
// navigator drops redirects.
func NewGate(b Backend, p Prompter, nav Navigator) *Gate {
	counter, err := otel.Meter("scenereel/submit").Int64Counter("scenereel.submissions",
		metric.WithDescription("Submission attempts by outcome"))
	if err != nil {
		log.Printf("[submit] failed to create counter: %v", err)
	}
	return &Gate{
		backend:     b,
		prompter:    p,
		nav:         nav,
		phase:       PhaseIdle,
		submissions: counter,
	}
}

// OnPhase registers a callback for phase changes.
func (g *Gate) OnPhase(fn func(Phase)) {
	g.mu.Lock()
	g.onPhase = fn
	g.mu.Unlock()
}

// Phase returns the current phase.
func (g *Gate) Phase() Phase {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.phase
}

func (g *Gate) setPhase(p Phase) {
	g.mu.Lock()
	g.phase = p
	fn := g.onPhase
	g.mu.Unlock()
	if fn != nil {
		fn(p)
	}
}

// Reset returns a submitted gate to idle for the next submission.
func (g *Gate) Reset() {
	g.mu.Lock()
	busy := g.phase != PhaseIdle && g.phase != PhaseSubmitted
	g.mu.Unlock()
	if !busy {
		g.setPhase(PhaseIdle)
	}
}

// Submit runs one gate pass. On any failure, a declined payment
// included, the phase is back to what it was before the call.
func (g *Gate) Submit(ctx context.Context, src Source, cfg Config) (Handle, error) {
	g.mu.Lock()
	prior := g.phase
	if prior != PhaseIdle && prior != PhaseSubmitted {
		g.mu.Unlock()
		return Handle{}, ErrBusy
	}
	g.phase = PhaseCheckingPayment
	g.mu.Unlock()

	h, err := g.submit(ctx, src, cfg)
	if err != nil {
		g.setPhase(prior)
		g.count(outcomeOf(err))
		return Handle{}, err
	}
	g.setPhase(PhaseSubmitted)
	g.count("created")
	return h, nil
}

func (g *Gate) submit(ctx context.Context, src Source, cfg Config) (Handle, error) {
	text, err := src.normalize()
	if err != nil {
		return Handle{}, g.invalid(err)
	}
	if strings.TrimSpace(text) == "" {
		return Handle{}, g.invalid(&ValidationError{Err: ErrEmptyContent})
	}
	if cfg.Credential == "" {
		err := g.invalid(&ValidationError{Err: ErrMissingCredential})
		g.redirect("settings")
		return Handle{}, err
	}

	words := wordCount(text)
	g.setPhase(PhaseCheckingPayment)
	check, err := g.backend.CheckPayment(ctx, words)
	if err != nil {
		return Handle{}, g.rejected(err)
	}
	events.Emit("info", "payment.checked", "", map[string]interface{}{
		"word_count":       words,
		"requires_payment": check.RequiresPayment,
		"amount":           check.PaymentAmount,
	})

	if check.RequiresPayment {
		g.setPhase(PhaseAwaitingPayment)
		events.Emit("info", "payment.prompted", "", map[string]interface{}{"amount": check.PaymentAmount})

		proceed := false
		if g.prompter != nil {
			proceed, err = g.prompter.Confirm(ctx, check, words)
			if err != nil {
				return Handle{}, err
			}
		}
		if !proceed {
			events.Emit("info", "payment.cancelled", "", nil)
			return Handle{}, ErrCancelled
		}
		events.Emit("info", "payment.accepted", "", nil)
	}

	filename := src.Filename
	if filename == "" {
		filename = TypedFilename
	}

	g.setPhase(PhaseUploading)
	events.Emit("info", "task.submitted", "", map[string]interface{}{
		"filename":   filename,
		"word_count": words,
		"provider":   cfg.Provider,
	})
	taskID, err := g.backend.CreateTask(ctx, backend.CreateRequest{
		Filename:      filename,
		Content:       []byte(text),
		APIKey:        cfg.Credential,
		Provider:      cfg.Provider,
		EnableVideo:   cfg.EnableVideo,
		UseStoryboard: cfg.UseStoryboard,
		CustomPrompt:  cfg.CustomPrompt,
	})
	if err != nil {
		return Handle{}, g.rejected(err)
	}

	events.Emit("info", "task.created", "", map[string]interface{}{"task_id": taskID})
	return Handle{TaskID: taskID, WordCount: words, Filename: filename}, nil
}

func (g *Gate) invalid(err error) error {
	events.Emit("warn", "task.validation_failed", err.Error(), nil)
	return err
}

func (g *Gate) rejected(err error) error {
	if errors.Is(err, backend.ErrUnauthenticated) {
		g.redirect("login")
	}
	events.Emit("warn", "task.rejected", err.Error(), nil)
	return err
}

func (g *Gate) redirect(target string) {
	events.Emit("info", "session.redirect", "", map[string]interface{}{"target": target})
	if g.nav == nil {
		return
	}
	switch target {
	case "settings":
		g.nav.ToSettings()
	case "login":
		g.nav.ToLogin()
	}
}

func (g *Gate) count(outcome string) {
	if g.submissions == nil {
		return
	}
	g.submissions.Add(context.Background(), 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func outcomeOf(err error) string {
	var ve *ValidationError
	var ae *backend.APIError
	switch {
	case errors.As(err, &ve):
		return "invalid"
	case errors.Is(err, ErrCancelled):
		return "cancelled"
	case errors.Is(err, backend.ErrUnauthenticated):
		return "unauthenticated"
	case errors.As(err, &ae):
		return "rejected"
	default:
		return "error"
	}
}
