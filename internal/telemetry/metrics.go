package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/americansport/gymgate"
)

// Metrics holds the gate's OpenTelemetry instruments.
type Metrics struct {
	FlowsStarted     metric.Int64Counter
	ProofsSubmitted  metric.Int64Counter
	Rejections       metric.Int64Counter
	EventsRecorded   metric.Int64Counter
	SessionsSwept    metric.Int64Counter
	LedgerReadErrors metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the process-wide instruments, creating them against
// the global meter provider on first use.
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.FlowsStarted, _ = meter.Int64Counter(
		"gymgate.flows.started.total",
		metric.WithDescription("Gate flows begun with credentials"),
		metric.WithUnit("{flow}"),
	)

	m.ProofsSubmitted, _ = meter.Int64Counter(
		"gymgate.flows.proofs.total",
		metric.WithDescription("Access tokens submitted as proof"),
		metric.WithUnit("{proof}"),
	)

	m.Rejections, _ = meter.Int64Counter(
		"gymgate.flows.rejections.total",
		metric.WithDescription("Gate flow rejections by reason"),
		metric.WithUnit("{rejection}"),
	)

	m.EventsRecorded, _ = meter.Int64Counter(
		"gymgate.attendance.recorded.total",
		metric.WithDescription("Attendance events appended to the ledger"),
		metric.WithUnit("{event}"),
	)

	m.SessionsSwept, _ = meter.Int64Counter(
		"gymgate.attendance.swept.total",
		metric.WithDescription("Open sessions closed by the end-of-day sweep"),
		metric.WithUnit("{session}"),
	)

	m.LedgerReadErrors, _ = meter.Int64Counter(
		"gymgate.attendance.read_errors.total",
		metric.WithDescription("Failed reads of the attendance ledger"),
		metric.WithUnit("{error}"),
	)

	return m
}
