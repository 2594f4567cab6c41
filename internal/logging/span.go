package logging

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Span represents a logical unit of work tied to a request trace.
type Span struct {
	name   string
	logger *slog.Logger
	start  time.Time

	mu    sync.Mutex
	attrs []any
	err   error
}

// StartSpan derives a child span from the provided context, enriching the logger
// with tracing metadata. It returns the derived context and the span handle.
func StartSpan(ctx context.Context, name string) (context.Context, *Span) {
	if ctx == nil {
		ctx = context.Background()
	}

	// Child spans start from the logger their parent was derived from so
	// span keys appear once per entry.
	base, ok := ctx.Value(spanBaseKey).(*slog.Logger)
	if !ok || base == nil {
		base = FromContext(ctx)
	}

	if TraceIDFromContext(ctx) == "" {
		traceID := RequestIDFromContext(ctx)
		if traceID == "" {
			traceID = uuid.NewString()
		}
		ctx = WithTraceID(ctx, traceID)
		base = base.With(slog.String("trace_id", traceID))
	}

	parentSpanID := SpanIDFromContext(ctx)
	spanID := uuid.NewString()

	logger := base.With(
		slog.String("span_id", spanID),
		slog.String("span_name", name),
	)
	if parentSpanID != "" {
		logger = logger.With(slog.String("parent_span_id", parentSpanID))
	}

	ctx = context.WithValue(ctx, spanBaseKey, base)
	ctx = WithLogger(ctx, logger)
	ctx = WithSpanID(ctx, spanID)

	return ctx, &Span{name: name, logger: logger, start: time.Now()}
}

// SetAttr attaches a key/value pair to the completion entry.
func (s *Span) SetAttr(key string, value any) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.attrs = append(s.attrs, key, value)
	s.mu.Unlock()
}

// Fail records err as the span outcome. The last non-nil error wins.
func (s *Span) Fail(err error) {
	if s == nil || err == nil {
		return
	}
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// End finalizes the span and emits a completion log entry, at warn level
// when the span failed.
func (s *Span) End() {
	if s == nil {
		return
	}
	s.mu.Lock()
	args := append([]any{slog.Duration("duration", time.Since(s.start))}, s.attrs...)
	err := s.err
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("span failed", append(args, slog.Any("error", err))...)
		return
	}
	s.logger.Info("span completed", args...)
}
