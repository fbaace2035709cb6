package tool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"fcfilter/internal/domain"
	"fcfilter/internal/infra/tracer"
)

const defaultToolTimeout = 30 * time.Second

// Invoker resolves a selection against the registry and runs the tool.
// Failures never escape as panics; every failure is an error wrapping one of
// ErrToolNotFound, ErrInvalidInput, ErrTimeout or ErrToolFailure.
type Invoker struct {
	registry *Registry
	timeout  time.Duration
	logger   *slog.Logger
}

var _ domain.ToolExecutor = (*Invoker)(nil)

// NewInvoker creates an invoker with a per-call timeout.
func NewInvoker(registry *Registry, timeout time.Duration, logger *slog.Logger) *Invoker {
	if timeout <= 0 {
		timeout = defaultToolTimeout
	}
	return &Invoker{registry: registry, timeout: timeout, logger: logger}
}

// Specs implements domain.ToolExecutor.
func (i *Invoker) Specs() []domain.ToolSpec { return i.registry.Specs() }

// Invoke implements domain.ToolExecutor. A blank tool output is returned as
// "" with a nil error.
func (i *Invoker) Invoke(ctx context.Context, sel domain.ToolSelection) (result string, err error) {
	ctx, span := tracer.StartSpan(ctx, "tool.invoke",
		trace.WithAttributes(tracer.StringAttr("tool.name", sel.Name)),
	)
	defer func() { tracer.Finish(span, err) }()

	spec, err := i.registry.Get(sel.Name)
	if err != nil {
		return "", err
	}
	if err := spec.Validate(sel.Parameters); err != nil {
		return "", err
	}

	start := time.Now()
	result, err = i.run(ctx, spec, domain.ToolArgs(sel.Parameters))
	span.SetAttributes(tracer.IntAttr("tool.result_bytes", len(result)))
	if err != nil {
		return "", err
	}

	i.logger.DebugContext(ctx, "tool invoked",
		"tool", sel.Name,
		"duration", time.Since(start),
		"bytes", len(result),
	)
	if strings.TrimSpace(result) == "" {
		return "", nil
	}
	return result, nil
}

type runResult struct {
	out string
	err error
}

// run executes the handler on its own goroutine so a handler that ignores
// its context cannot hold the request past the timeout.
func (i *Invoker) run(ctx context.Context, spec *Spec, args domain.ToolArgs) (string, error) {
	ctx, span := tracer.StartSpan(ctx, "tool."+spec.Name())
	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	done := make(chan runResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				i.logger.ErrorContext(ctx, "tool panicked",
					"tool", spec.Name(),
					"panic", r,
					"stack", string(debug.Stack()),
				)
				done <- runResult{err: domain.NewDomainError("Invoker.run", domain.ErrToolFailure, fmt.Sprintf("tool %q panicked: %v", spec.Name(), r))}
			}
		}()
		out, err := spec.Invoke(ctx, args)
		done <- runResult{out: out, err: err}
	}()

	var res runResult
	select {
	case res = <-done:
	case <-ctx.Done():
		res.err = ctx.Err()
	}

	if res.err != nil {
		res.err = classify(spec.Name(), res.err)
	}
	tracer.Finish(span, res.err)
	return res.out, res.err
}

func classify(name string, err error) error {
	switch {
	case errors.Is(err, domain.ErrToolFailure):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return domain.NewDomainError("Invoker.run", domain.ErrTimeout, fmt.Sprintf("tool %q", name))
	default:
		return fmt.Errorf("%w: tool %q: %w", domain.ErrToolFailure, name, err)
	}
}
