package provider

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/KaranKendre11/VibeOPS/internal/core/ports"
)

// TracedCompleter wraps a completer with a per-call deadline and a span.
type TracedCompleter struct {
	inner   ports.Completer
	name    string
	timeout time.Duration
}

// NewTracedCompleter wraps inner. A zero timeout leaves the caller's
// context untouched.
func NewTracedCompleter(inner ports.Completer, name string, timeout time.Duration) *TracedCompleter {
	return &TracedCompleter{inner: inner, name: name, timeout: timeout}
}

func (c *TracedCompleter) GenerateStructured(ctx context.Context, prompt string) (map[string]any, error) {
	ctx, span := otel.Tracer("vibeops/provider").Start(ctx, "completion.generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.provider", c.name),
		attribute.Int("llm.prompt_chars", len(prompt)),
	)

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	out, err := c.inner.GenerateStructured(ctx, prompt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return out, nil
}

// Unwrap returns the wrapped completer.
func (c *TracedCompleter) Unwrap() ports.Completer { return c.inner }
