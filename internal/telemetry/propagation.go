package telemetry

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// Propagator carries W3C trace context and baggage.
func Propagator() propagation.TextMapPropagator {
	return propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{})
}

// InitPropagation installs Propagator as the global text map propagator so
// outbound messages carry the caller's trace context and baggage.
func InitPropagation() {
	otel.SetTextMapPropagator(Propagator())
}
