package otel

import (
	"context"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"coffee-shop-demo/internal/telemetry"
)

// recordEmitter is the subset of otellog.Logger the adapter uses.
type recordEmitter interface {
	Emit(ctx context.Context, record otellog.Record)
}

// NewEventEmitter returns an EventEmitter that sends events as OTel log records via provider.
// If provider is nil, returns a no-op emitter.
func NewEventEmitter(provider *sdklog.LoggerProvider) telemetry.EventEmitter {
	if provider == nil {
		return noopEmitter{}
	}
	return NewEventEmitterWithLogger(provider.Logger("coffeeshop.telemetry"))
}

// NewEventEmitterWithLogger wraps an existing logger (tests pass a capture).
func NewEventEmitterWithLogger(logger recordEmitter) telemetry.EventEmitter {
	return &otelEmitter{logger: logger}
}

type noopEmitter struct{}

func (noopEmitter) Emit(context.Context, *telemetry.Event) error { return nil }

type otelEmitter struct {
	logger recordEmitter
}

// Emit converts the event to an OTel log record.
func (e *otelEmitter) Emit(ctx context.Context, event *telemetry.Event) error {
	if event == nil {
		return nil
	}
	rec := otellog.Record{}
	ts := event.CreatedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	rec.SetTimestamp(ts)
	rec.SetSeverity(otellog.SeverityInfo)
	if event.Type == telemetry.EventAuthRejected {
		rec.SetSeverity(otellog.SeverityWarn)
	}
	rec.SetBody(otellog.StringValue(event.Type))
	attrs := []struct{ k, v string }{
		{"event_type", event.Type},
		{"source", event.Source},
		{"subject", event.Subject},
		{"path", event.Path},
		{"client_ip", event.ClientIP},
		{"reason", event.Reason},
	}
	for _, a := range attrs {
		if a.v != "" {
			rec.AddAttributes(otellog.String(a.k, a.v))
		}
	}
	e.logger.Emit(ctx, rec)
	return nil
}
