package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// findMetric はレジストリから指定名・ラベルのメトリクスを探す。
// labelが空の場合は最初のメトリクスを返す。
func findMetric(t *testing.T, reg *prometheus.Registry, name, labelName, labelValue string) *dto.Metric {
	t.Helper()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelName == "" {
				return m
			}
			for _, lp := range m.GetLabel() {
				if lp.GetName() == labelName && lp.GetValue() == labelValue {
					return m
				}
			}
		}
	}
	return nil
}

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	if c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

func TestCollector_ImplementsInterface(t *testing.T) {
	var _ MetricsCollector = (*Collector)(nil)
}

// TestRecordSubmissionFlattened_CountsSubmissionsAndReplies は投稿数と返信数が加算されることを検証する。
func TestRecordSubmissionFlattened_CountsSubmissionsAndReplies(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordSubmissionFlattened(3)
	c.RecordSubmissionFlattened(0)

	m := findMetric(t, reg, "threadflat_submissions_flattened_total", "", "")
	if m == nil {
		t.Fatal("threadflat_submissions_flattened_total metric not found")
	}
	if v := m.GetCounter().GetValue(); v != 2 {
		t.Errorf("submissions_flattened_total = %v, want 2", v)
	}

	m = findMetric(t, reg, "threadflat_replies_flattened_total", "", "")
	if m == nil {
		t.Fatal("threadflat_replies_flattened_total metric not found")
	}
	if v := m.GetCounter().GetValue(); v != 3 {
		t.Errorf("replies_flattened_total = %v, want 3", v)
	}
}

func TestRecordSubmissionSkipped_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordSubmissionSkipped()

	m := findMetric(t, reg, "threadflat_submissions_skipped_total", "", "")
	if m == nil {
		t.Fatal("threadflat_submissions_skipped_total metric not found")
	}
	if v := m.GetCounter().GetValue(); v != 1 {
		t.Errorf("submissions_skipped_total = %v, want 1", v)
	}
}

// TestRecordSubmissionFailed_LabelsReason は失敗理由がラベルとして記録されることを検証する。
func TestRecordSubmissionFailed_LabelsReason(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordSubmissionFailed(ReasonTooLarge)
	c.RecordSubmissionFailed(ReasonTooLarge)
	c.RecordSubmissionFailed(ReasonPanic)

	tests := []struct {
		reason string
		want   float64
	}{
		{ReasonTooLarge, 2},
		{ReasonPanic, 1},
	}
	for _, tt := range tests {
		m := findMetric(t, reg, "threadflat_submissions_failed_total", "reason", tt.reason)
		if m == nil {
			t.Fatalf("failed_total{reason=%q} not found", tt.reason)
		}
		if v := m.GetCounter().GetValue(); v != tt.want {
			t.Errorf("failed_total{reason=%q} = %v, want %v", tt.reason, v, tt.want)
		}
	}
}

// TestRecordAnomaly_IgnoresZero は0件の異常が系列を作らないことを検証する。
func TestRecordAnomaly_IgnoresZero(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordAnomaly("self_edge", 0)
	c.RecordAnomaly("duplicate_id", 4)

	if m := findMetric(t, reg, "threadflat_graph_anomalies_total", "kind", "self_edge"); m != nil {
		t.Error("zero anomaly count should not create a series")
	}
	m := findMetric(t, reg, "threadflat_graph_anomalies_total", "kind", "duplicate_id")
	if m == nil {
		t.Fatal("anomalies_total{kind=duplicate_id} not found")
	}
	if v := m.GetCounter().GetValue(); v != 4 {
		t.Errorf("anomalies_total{kind=duplicate_id} = %v, want 4", v)
	}
}

func TestRecordFlattenLatency_ObservesHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordFlattenLatency(150 * time.Millisecond)

	m := findMetric(t, reg, "threadflat_flatten_latency_seconds", "", "")
	if m == nil {
		t.Fatal("threadflat_flatten_latency_seconds metric not found")
	}
	h := m.GetHistogram()
	if h.GetSampleCount() != 1 {
		t.Errorf("sample count = %d, want 1", h.GetSampleCount())
	}
	if h.GetSampleSum() < 0.14 || h.GetSampleSum() > 0.16 {
		t.Errorf("sample sum = %v, want ~0.15", h.GetSampleSum())
	}
}

func TestRecordRecords_IngestedAndRejected(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRecordsIngested("comments", 1000)
	c.RecordRecordsIngested("comments", 5)
	c.RecordRecordRejected("submissions")

	m := findMetric(t, reg, "threadflat_records_ingested_total", "kind", "comments")
	if m == nil {
		t.Fatal("records_ingested_total{kind=comments} not found")
	}
	if v := m.GetCounter().GetValue(); v != 1005 {
		t.Errorf("records_ingested_total = %v, want 1005", v)
	}

	m = findMetric(t, reg, "threadflat_records_rejected_total", "kind", "submissions")
	if m == nil {
		t.Fatal("records_rejected_total{kind=submissions} not found")
	}
	if v := m.GetCounter().GetValue(); v != 1 {
		t.Errorf("records_rejected_total = %v, want 1", v)
	}
}

func TestRecordHTTPStatus_LabelsStatusCode(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPStatus(404)

	m := findMetric(t, reg, "threadflat_http_status_total", "status_code", "404")
	if m == nil {
		t.Fatal("http_status_total{status_code=404} not found")
	}
	if v := m.GetCounter().GetValue(); v != 1 {
		t.Errorf("http_status_total = %v, want 1", v)
	}
}
