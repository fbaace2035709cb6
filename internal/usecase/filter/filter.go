package filter

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"runtime/debug"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"fcfilter/internal/domain"
	"fcfilter/internal/infra/tracer"
	"fcfilter/internal/usecase/scheduling"
)

// Outcome summarizes what an inlet call did to the body.
type Outcome string

const (
	OutcomeSkipped     Outcome = "skipped"
	OutcomeNoSelection Outcome = "no_selection"
	OutcomeNoResult    Outcome = "no_result"
	OutcomeInjected    Outcome = "injected"
	OutcomeFailed      Outcome = "failed"
)

const keepWarmJob = "keep-warm"

// Warmer loads the task model ahead of use.
type Warmer interface {
	Warmup(ctx context.Context) error
}

// Deps holds injected dependencies for the filter.
type Deps struct {
	Aux             domain.LLMProvider
	Tools           domain.ToolExecutor
	Logger          *slog.Logger
	Model           string
	Template        string
	HistoryTurns    int
	MaxContextBytes int
	Warmer          Warmer // optional, nil = no warmup or keep-warm
	KeepWarm        string // cron expression or duration, "" = off
	WarmupOnStart   bool
	OnClose         []func() // run by OnShutdown, e.g. MCP connections
}

// Filter is the inlet stage: it asks the task model whether a tool should
// run and, when one produces output, grounds the conversation with it.
// Inlet never returns an error; every failure hands back the original body.
type Filter struct {
	deps     Deps
	injector *Injector

	mu        sync.Mutex
	scheduler *scheduling.Scheduler
}

// New creates a filter.
func New(deps Deps) *Filter {
	if deps.HistoryTurns < 0 {
		deps.HistoryTurns = DefaultHistoryTurns
	}
	return &Filter{
		deps:     deps,
		injector: NewInjector(deps.Template, deps.MaxContextBytes),
	}
}

// Inlet processes one inbound chat body. user is only used for logging.
func (f *Filter) Inlet(ctx context.Context, body *domain.ChatBody, user map[string]any) (out *domain.ChatBody, outcome Outcome) {
	ctx = domain.ContextWithRequestID(ctx, newRequestID())
	ctx, span := tracer.StartSpan(ctx, "filter.inlet")
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			f.deps.Logger.ErrorContext(ctx, "inlet panicked",
				"panic", r,
				"stack", string(debug.Stack()),
			)
			tracer.RecordError(span, fmt.Errorf("panic: %v", r))
			out, outcome = body, OutcomeFailed
		}
		span.SetAttributes(tracer.StringAttr("filter.outcome", string(outcome)))
		span.End()
		f.deps.Logger.InfoContext(ctx, "inlet completed",
			"outcome", string(outcome),
			"user", userLabel(user),
			"duration", time.Since(start),
		)
	}()

	if body.IsTitleRequest() {
		return body, OutcomeSkipped
	}
	query, ok := body.LastUserMessage()
	if !ok {
		return body, OutcomeSkipped
	}
	return f.run(ctx, body, query)
}

func (f *Filter) run(ctx context.Context, body *domain.ChatBody, query string) (*domain.ChatBody, Outcome) {
	prompt, err := BuildPrompt(f.deps.Tools.Specs(), body.Messages, query, f.deps.HistoryTurns)
	if err != nil {
		f.deps.Logger.WarnContext(ctx, "build selection prompt", "error", err)
		return body, OutcomeFailed
	}

	resp, err := f.deps.Aux.Chat(ctx, domain.ChatRequest{Model: f.deps.Model, Messages: prompt})
	if err != nil {
		f.deps.Logger.WarnContext(ctx, "task model unavailable, passing body through",
			"provider", f.deps.Aux.Name(),
			"error", err,
			"error_code", string(domain.ErrorCodeOf(err)),
		)
		return body, OutcomeFailed
	}

	sel, ok := ParseSelection(resp.Content)
	if !ok {
		f.deps.Logger.DebugContext(ctx, "no tool selected", "reply", truncate(resp.Content, 200))
		return body, OutcomeNoSelection
	}

	result, err := f.deps.Tools.Invoke(ctx, sel)
	if err != nil {
		f.deps.Logger.WarnContext(ctx, "tool invocation failed",
			"tool", sel.Name,
			"error", err,
			"error_code", string(domain.ErrorCodeOf(err)),
		)
		return body, OutcomeNoResult
	}
	if result == "" {
		f.deps.Logger.DebugContext(ctx, "tool returned nothing", "tool", sel.Name)
		return body, OutcomeNoResult
	}

	f.deps.Logger.DebugContext(ctx, "injecting tool context", "tool", sel.Name, "bytes", len(result))
	return f.injector.Inject(body, result), OutcomeInjected
}

// OnStartup warms the task model and starts the keep-warm schedule. Warmup
// failures are logged only; a bad schedule is an error.
func (f *Filter) OnStartup(ctx context.Context) error {
	if f.deps.Warmer == nil {
		return nil
	}
	if f.deps.WarmupOnStart {
		if err := f.deps.Warmer.Warmup(ctx); err != nil {
			f.deps.Logger.Warn("task model warmup failed", "error", err)
		}
	}
	if f.deps.KeepWarm == "" {
		return nil
	}

	s := scheduling.New(f.deps.Logger)
	if err := s.Add(scheduling.Job{
		Name:     keepWarmJob,
		Schedule: f.deps.KeepWarm,
		Run:      f.deps.Warmer.Warmup,
	}); err != nil {
		return domain.WrapOp("Filter.OnStartup", err)
	}
	s.Start(context.WithoutCancel(ctx))

	f.mu.Lock()
	f.scheduler = s
	f.mu.Unlock()
	return nil
}

// OnShutdown stops the keep-warm schedule and releases owned resources.
func (f *Filter) OnShutdown(context.Context) error {
	f.mu.Lock()
	s := f.scheduler
	f.scheduler = nil
	f.mu.Unlock()

	if s != nil {
		s.Stop()
	}
	for _, fn := range f.deps.OnClose {
		fn()
	}
	return nil
}

func newRequestID() string {
	t := time.Now()
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

func userLabel(user map[string]any) string {
	for _, key := range []string{"id", "email", "name"} {
		if v, ok := user[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
