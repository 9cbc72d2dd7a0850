// Package tracing times nested phases of a long operation. Spans travel in
// contexts, form a tree under the root, and are written to a slog logger
// once the root ends.
package tracing

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type spanKey struct{}

// Span is one timed phase.
type Span struct {
	Name      string
	TraceID   string
	StartTime time.Time
	Duration  time.Duration

	mu       sync.Mutex
	ended    bool
	attrs    []slog.Attr
	children []*Span
}

// StartSpan begins a root span.
func StartSpan(ctx context.Context, name string, traceID string) (context.Context, *Span) {
	span := &Span{Name: name, TraceID: traceID, StartTime: time.Now()}
	return context.WithValue(ctx, spanKey{}, span), span
}

// StartChildSpan begins a span under the one in ctx. Without a parent the
// span is detached and never logged.
func StartChildSpan(ctx context.Context, name string) (context.Context, *Span) {
	child := &Span{Name: name, StartTime: time.Now()}
	if parent := SpanFromContext(ctx); parent != nil {
		child.TraceID = parent.TraceID
		parent.mu.Lock()
		parent.children = append(parent.children, child)
		parent.mu.Unlock()
	}
	return context.WithValue(ctx, spanKey{}, child), child
}

// End fixes the duration. Later calls are no-ops.
func (s *Span) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.ended = true
	s.Duration = time.Since(s.StartTime)
}

// SetAttr records key=value, replacing an earlier value for key.
func (s *Span) SetAttr(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.attrs {
		if s.attrs[i].Key == key {
			s.attrs[i].Value = slog.AnyValue(value)
			return
		}
	}
	s.attrs = append(s.attrs, slog.Any(key, value))
}

// Attr returns the value recorded for key.
func (s *Span) Attr(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.attrs {
		if a.Key == key {
			return a.Value.Any(), true
		}
	}
	return nil, false
}

// Children returns the direct children in start order.
func (s *Span) Children() []*Span {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Span(nil), s.children...)
}

func SpanFromContext(ctx context.Context) *Span {
	span, _ := ctx.Value(spanKey{}).(*Span)
	return span
}

// Log writes the tree depth-first, one record per span.
func (s *Span) Log(logger *slog.Logger) {
	s.log(logger, 0)
}

func (s *Span) log(logger *slog.Logger, depth int) {
	s.mu.Lock()
	args := make([]any, 0, 4+len(s.attrs))
	args = append(args,
		slog.String("trace_id", s.TraceID),
		slog.String("span", s.Name),
		slog.Int64("duration_ms", s.Duration.Milliseconds()),
		slog.Int("depth", depth),
	)
	for _, a := range s.attrs {
		args = append(args, a)
	}
	children := append([]*Span(nil), s.children...)
	s.mu.Unlock()

	logger.Info("span", args...)
	for _, child := range children {
		child.log(logger, depth+1)
	}
}
