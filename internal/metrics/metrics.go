// Package metrics defines the minimal instrumentation seam the
// pipeline emits through. The core depends only on Backend; concrete
// backends (Datadog, nop) live in subpackages or here.
package metrics

// Labels are free-form metric dimensions, e.g. {"status": "SUCCESS"}.
type Labels map[string]string

// Backend receives pipeline measurements.
//
// Implementations must be safe for concurrent use and must never block
// the caller on network I/O; buffer and flush instead.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
}

// Metric names emitted by the pipeline.
const (
	RunsTotal          = "sparkload_runs_total"           // labels: status
	RecordsTotal       = "sparkload_records_total"        // labels: table
	WarningsTotal      = "sparkload_warnings_total"       // no labels
	RunDurationSeconds = "sparkload_run_duration_seconds" // labels: status
)

// Nop discards all measurements. It is the default backend so library
// callers get no instrumentation overhead unless they ask for it.
type Nop struct{}

func (Nop) IncCounter(string, float64, Labels)       {}
func (Nop) ObserveHistogram(string, float64, Labels) {}

var _ Backend = Nop{}
