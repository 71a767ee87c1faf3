package metrics

import (
	"testing"

	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c interface{ Write(*dto.Metric) error }) float64 {
	t.Helper()
	metric := &dto.Metric{}
	if err := c.Write(metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	return metric.Counter.GetValue()
}

func TestRecordGeneration(t *testing.T) {
	generationsTotal.Reset()

	RecordGeneration("stream", "success")
	RecordGeneration("stream", "success")
	RecordGeneration("blocking", "UPSTREAM_TIMEOUT")

	if v := counterValue(t, generationsTotal.WithLabelValues("stream", "success")); v != 2 {
		t.Errorf("Expected counter value 2, got %f", v)
	}
	if v := counterValue(t, generationsTotal.WithLabelValues("blocking", "UPSTREAM_TIMEOUT")); v != 1 {
		t.Errorf("Expected counter value 1, got %f", v)
	}
}

func TestRecordLLMRequest(t *testing.T) {
	llmRequestsTotal.Reset()
	llmRequestDuration.Reset()

	RecordLLMRequest("blocking", "success", 1.5)

	if v := counterValue(t, llmRequestsTotal.WithLabelValues("blocking", "success")); v != 1 {
		t.Errorf("Expected counter value 1, got %f", v)
	}

	metric := &dto.Metric{}
	observer := llmRequestDuration.WithLabelValues("blocking")
	if err := observer.(interface{ Write(*dto.Metric) error }).Write(metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if metric.Histogram.GetSampleCount() != 1 {
		t.Errorf("Expected 1 sample, got %d", metric.Histogram.GetSampleCount())
	}
}

func TestRecordPersistedRowAndStreamEvent(t *testing.T) {
	persistedRowsTotal.Reset()
	streamEventsTotal.Reset()

	RecordPersistedRow("modules")
	RecordPersistedRow("tasks")
	RecordPersistedRow("tasks")
	RecordStreamEvent("chunk")

	if v := counterValue(t, persistedRowsTotal.WithLabelValues("tasks")); v != 2 {
		t.Errorf("Expected counter value 2, got %f", v)
	}
	if v := counterValue(t, streamEventsTotal.WithLabelValues("chunk")); v != 1 {
		t.Errorf("Expected counter value 1, got %f", v)
	}
}
