package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/hitoshi/ideafeed/internal/channel"
	"github.com/hitoshi/ideafeed/internal/model"
	"github.com/hitoshi/ideafeed/internal/session"
)

// Collectorがセッションと会話のメトリクス記録先を満たすことを検証
func TestCollector_ImplementsRecorders(t *testing.T) {
	var _ MetricsCollector = (*Collector)(nil)
	var _ session.Recorder = (*Collector)(nil)
	var _ channel.Recorder = (*Collector)(nil)
}

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	if c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// findMetric はラベルが一致するメトリクスを返す。
func findMetric(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) *dto.Metric {
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
			if labelsMatch(m, labels) {
				return m
			}
		}
	}
	t.Fatalf("%s%v metric not found", name, labels)
	return nil
}

func labelsMatch(m *dto.Metric, labels map[string]string) bool {
	matched := 0
	for _, lp := range m.GetLabel() {
		if v, ok := labels[lp.GetName()]; ok {
			if v != lp.GetValue() {
				return false
			}
			matched++
		}
	}
	return matched == len(labels)
}

// TestRecordRefresh_IncrementsCounterPerTriggerAndResult は契機と結果ごとに集計されることを検証する。
func TestRecordRefresh_IncrementsCounterPerTriggerAndResult(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRefresh("backoff", true)
	c.RecordRefresh("backoff", true)
	c.RecordRefresh("connectivity", false)

	m := findMetric(t, reg, "ideafeed_refresh_total", map[string]string{"trigger": "backoff", "result": "success"})
	if got := m.GetCounter().GetValue(); got != 2 {
		t.Errorf("refresh_total{backoff,success} = %v, want 2", got)
	}
	m = findMetric(t, reg, "ideafeed_refresh_total", map[string]string{"trigger": "connectivity", "result": "failure"})
	if got := m.GetCounter().GetValue(); got != 1 {
		t.Errorf("refresh_total{connectivity,failure} = %v, want 1", got)
	}
}

// TestRecordRetry はリトライの予約と打ち切りが記録されることを検証する。
func TestRecordRetry(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	for attempt := 1; attempt <= 4; attempt++ {
		c.RecordRetryScheduled(attempt)
	}
	c.RecordRetryExhausted()

	m := findMetric(t, reg, "ideafeed_retry_scheduled_total", map[string]string{"attempt": "4"})
	if got := m.GetCounter().GetValue(); got != 1 {
		t.Errorf("retry_scheduled_total{attempt=4} = %v, want 1", got)
	}
	m = findMetric(t, reg, "ideafeed_retry_exhausted_total", nil)
	if got := m.GetCounter().GetValue(); got != 1 {
		t.Errorf("retry_exhausted_total = %v, want 1", got)
	}
}

// TestRecordVoteAndSend は投票と送信の結果が記録されることを検証する。
func TestRecordVoteAndSend(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordVote(false)
	c.RecordSend(channel.OutcomeRejected)

	m := findMetric(t, reg, "ideafeed_votes_total", map[string]string{"result": "failure"})
	if got := m.GetCounter().GetValue(); got != 1 {
		t.Errorf("votes_total{failure} = %v, want 1", got)
	}
	m = findMetric(t, reg, "ideafeed_messages_sent_total", map[string]string{"outcome": channel.OutcomeRejected})
	if got := m.GetCounter().GetValue(); got != 1 {
		t.Errorf("messages_sent_total{rejected} = %v, want 1", got)
	}
}

// TestRecordHTTPStatus_IncrementsByStatusCode はステータスコード別カウンタが増加することを検証する。
func TestRecordHTTPStatus_IncrementsByStatusCode(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(429)

	m := findMetric(t, reg, "ideafeed_http_status_total", map[string]string{"status_code": "200"})
	if got := m.GetCounter().GetValue(); got != 2 {
		t.Errorf("http_status_total{200} = %v, want 2", got)
	}
}

// stubSource はテスト用のItemSource。
type stubSource struct {
	items []model.Idea
	err   error
}

func (s *stubSource) FetchItems(ctx context.Context) ([]model.Idea, error) {
	return s.items, s.err
}

// TestInstrumentSource はレイテンシと取得件数が記録されることを検証する。
func TestInstrumentSource(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	src := InstrumentSource(&stubSource{items: []model.Idea{{ID: "a"}, {ID: "b"}}}, c)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	calls := 0
	src.(*instrumentedSource).now = func() time.Time {
		calls++
		return start.Add(time.Duration(calls-1) * 250 * time.Millisecond)
	}

	items, err := src.FetchItems(context.Background())
	if err != nil || len(items) != 2 {
		t.Fatalf("FetchItems = %v, %v", items, err)
	}

	m := findMetric(t, reg, "ideafeed_source_fetch_latency_seconds", nil)
	if got := m.GetHistogram().GetSampleSum(); got != 0.25 {
		t.Errorf("fetch latency sum = %v, want 0.25", got)
	}
	m = findMetric(t, reg, "ideafeed_source_items_fetched", nil)
	if got := m.GetHistogram().GetSampleSum(); got != 2 {
		t.Errorf("items fetched sum = %v, want 2", got)
	}
}

// TestInstrumentSource_ErrorSkipsItemCount は失敗時に件数を記録しないことを検証する。
func TestInstrumentSource_ErrorSkipsItemCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	fetchErr := errors.New("unavailable")
	_, err := InstrumentSource(&stubSource{err: fetchErr}, c).FetchItems(context.Background())
	if !errors.Is(err, fetchErr) {
		t.Fatalf("エラーがそのまま返されていません: %v", err)
	}

	m := findMetric(t, reg, "ideafeed_source_items_fetched", nil)
	if got := m.GetHistogram().GetSampleCount(); got != 0 {
		t.Errorf("items fetched count = %v, want 0", got)
	}
	m = findMetric(t, reg, "ideafeed_source_fetch_latency_seconds", nil)
	if got := m.GetHistogram().GetSampleCount(); got != 1 {
		t.Errorf("fetch latency count = %v, want 1", got)
	}
}
