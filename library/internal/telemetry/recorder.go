// Package telemetry is the process-wide handle the borrowing workflow reports to.
// Every Recorder method is fire-and-forget: implementations never block the caller
// and never return or propagate failures.
package telemetry

import (
	"context"
)

// StatusOK ends a span successfully. Any other status marks it as failed.
const StatusOK = "ok"

type Span interface {
	End(status string, attrs map[string]string)
}

type Recorder interface {
	RecordEvent(ctx context.Context, name string, attrs map[string]string)
	RecordDuration(ctx context.Context, histogram string, ms float64)
	IncrementCounter(ctx context.Context, counter string, attrs map[string]string)
	StartSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, Span)
}

type Nop struct{}

func (Nop) RecordEvent(context.Context, string, map[string]string)      {}
func (Nop) RecordDuration(context.Context, string, float64)             {}
func (Nop) IncrementCounter(context.Context, string, map[string]string) {}
func (Nop) StartSpan(ctx context.Context, _ string, _ map[string]string) (context.Context, Span) {
	return ctx, nopSpan{}
}

type nopSpan struct{}

func (nopSpan) End(string, map[string]string) {}

var _ Recorder = Nop{}

type multi []Recorder

// Multi fans every call out to all recorders.
func Multi(recorders ...Recorder) Recorder {
	out := make(multi, 0, len(recorders))
	for _, r := range recorders {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

func (m multi) RecordEvent(ctx context.Context, name string, attrs map[string]string) {
	for _, r := range m {
		r.RecordEvent(ctx, name, attrs)
	}
}

func (m multi) RecordDuration(ctx context.Context, histogram string, ms float64) {
	for _, r := range m {
		r.RecordDuration(ctx, histogram, ms)
	}
}

func (m multi) IncrementCounter(ctx context.Context, counter string, attrs map[string]string) {
	for _, r := range m {
		r.IncrementCounter(ctx, counter, attrs)
	}
}

func (m multi) StartSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, Span) {
	spans := make(multiSpan, 0, len(m))
	for _, r := range m {
		var s Span
		ctx, s = r.StartSpan(ctx, name, attrs)
		spans = append(spans, s)
	}
	return ctx, spans
}

type multiSpan []Span

func (ms multiSpan) End(status string, attrs map[string]string) {
	for _, s := range ms {
		s.End(status, attrs)
	}
}
