package datadog

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"

	"sparkload/internal/metrics"
)

// fakeSubmitter records payloads instead of talking to Datadog.
type fakeSubmitter struct {
	mu       sync.Mutex
	payloads []datadogV2.MetricPayload
}

func (f *fakeSubmitter) SubmitMetrics(_ context.Context, body datadogV2.MetricPayload, _ ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, body)
	return datadogV2.IntakePayloadAccepted{}, nil, nil
}

func (f *fakeSubmitter) seriesNames() map[string]bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]bool{}
	for _, p := range f.payloads {
		for _, s := range p.Series {
			out[s.Metric] = true
		}
	}
	return out
}

func newTestBackend(t *testing.T) (*Backend, *fakeSubmitter) {
	t.Helper()
	fake := &fakeSubmitter{}
	b, err := NewBackend(context.Background(), Options{
		JobName: "test",
		// long enough that only Close() flushes during the test
		FlushEvery: time.Hour,
		now:        func() time.Time { return time.Unix(1700000000, 0) },
		submitter:  fake,
	})
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	return b, fake
}

func TestBackend_BuffersAndFlushesOnClose(t *testing.T) {
	t.Parallel()

	b, fake := newTestBackend(t)

	b.IncCounter(metrics.RunsTotal, 1, metrics.Labels{"status": "SUCCESS"})
	b.IncCounter(metrics.RecordsTotal, 42, metrics.Labels{"table": "naming_keys"})
	b.IncCounter(metrics.WarningsTotal, 3, nil)
	b.ObserveHistogram(metrics.RunDurationSeconds, 1.25, metrics.Labels{"status": "SUCCESS"})

	if len(fake.payloads) != 0 {
		t.Fatal("nothing should be submitted before flush")
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	names := fake.seriesNames()
	for _, want := range []string{
		"sparkload.runs.total",
		"sparkload.records.total",
		"sparkload.warnings.total",
		"sparkload.run.duration_seconds.p50",
		"sparkload.run.duration_seconds.max",
	} {
		if !names[want] {
			t.Fatalf("missing series %q in %v", want, names)
		}
	}
}

func TestBackend_IgnoresUnknownMetricsAndEmptyFlush(t *testing.T) {
	t.Parallel()

	b, fake := newTestBackend(t)
	b.IncCounter("unrelated_metric", 1, nil)
	b.ObserveHistogram("unrelated_histogram", 1, nil)

	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(fake.payloads) != 0 {
		t.Fatalf("unknown metrics must not produce a submission: %v", fake.payloads)
	}
}

func TestParseTagsCSV(t *testing.T) {
	t.Parallel()

	got := ParseTagsCSV(" env:prod , team:media ,, ")
	if len(got) != 2 || got[0] != "env:prod" || got[1] != "team:media" {
		t.Fatalf("ParseTagsCSV = %v", got)
	}
	if ParseTagsCSV("") != nil {
		t.Fatal("empty input should return nil")
	}
}
