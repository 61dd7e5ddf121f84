package battle

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"showdown-mirror/parser"
)

const instrumentationName = "showdown-mirror/battle"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

type metrics struct {
	lines       metric.Int64Counter
	unhandled   metric.Int64Counter
	diagnostics metric.Int64Counter
	frames      metric.Int64Counter
}

// newMetrics uses the global OTel meter, which is a no-op unless the process
// installs a provider.
func newMetrics() (*metrics, error) {
	m := meter()
	var (
		out metrics
		err error
	)
	out.lines, err = m.Int64Counter("battle.lines.dispatched",
		metric.WithDescription("Protocol lines applied by the dispatcher"))
	if err != nil {
		return nil, fmt.Errorf("creating dispatched counter: %w", err)
	}
	out.unhandled, err = m.Int64Counter("battle.lines.ignored",
		metric.WithDescription("Protocol lines with keywords the client does not mirror"))
	if err != nil {
		return nil, fmt.Errorf("creating ignored counter: %w", err)
	}
	out.diagnostics, err = m.Int64Counter("battle.diagnostics",
		metric.WithDescription("Protocol fields dropped as undecodable"))
	if err != nil {
		return nil, fmt.Errorf("creating diagnostics counter: %w", err)
	}
	out.frames, err = m.Int64Counter("battle.frames",
		metric.WithDescription("Transport frames drained by the session"))
	if err != nil {
		return nil, fmt.Errorf("creating frames counter: %w", err)
	}
	return &out, nil
}

func (m *metrics) dispatched(keyword string) {
	m.lines.Add(context.Background(), 1, metric.WithAttributes(attribute.String("keyword", keyword)))
}

func (m *metrics) ignored() {
	m.unhandled.Add(context.Background(), 1)
}

func (m *metrics) diagnosed(keyword string, reason parser.Reason) {
	m.diagnostics.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("keyword", keyword),
		attribute.String("reason", string(reason)),
	))
}

func (m *metrics) frame() {
	m.frames.Add(context.Background(), 1)
}
