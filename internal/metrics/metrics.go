// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hitoshi/ideafeed/internal/model"
	"github.com/hitoshi/ideafeed/internal/source"
)

// MetricsCollector はメトリクス収集のインターフェース。
// セッション、会話、HTTP層から利用する。
type MetricsCollector interface {
	RecordRefresh(trigger string, success bool)
	RecordRetryScheduled(attempt int)
	RecordRetryExhausted()
	RecordVote(success bool)
	RecordSend(outcome string)
	RecordHTTPStatus(statusCode int)
	RecordFetchLatency(duration time.Duration)
	RecordItemsFetched(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	refreshes      *prometheus.CounterVec
	retryScheduled *prometheus.CounterVec
	retryExhausted prometheus.Counter
	votes          *prometheus.CounterVec
	sends          *prometheus.CounterVec
	httpStatus     *prometheus.CounterVec
	fetchLatency   prometheus.Histogram
	itemsFetched   prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ideafeed_refresh_total",
			Help: "フィード再取得の合計数（契機・結果別）",
		}, []string{"trigger", "result"}),
		retryScheduled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ideafeed_retry_scheduled_total",
			Help: "空の結果に対して予約した自動リトライの合計数（試行回数別）",
		}, []string{"attempt"}),
		retryExhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ideafeed_retry_exhausted_total",
			Help: "自動リトライを上限回数で打ち切った合計数",
		}),
		votes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ideafeed_votes_total",
			Help: "投票の合計数（結果別）",
		}, []string{"result"}),
		sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ideafeed_messages_sent_total",
			Help: "メッセージ送信の合計数（結果別）",
		}, []string{"outcome"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ideafeed_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		fetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ideafeed_source_fetch_latency_seconds",
			Help:    "アイデア取得元からの取得レイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		itemsFetched: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ideafeed_source_items_fetched",
			Help:    "1回の取得で得たアイデア数",
			Buckets: []float64{0, 1, 10, 50, 100, 500, 1000, 5000},
		}),
	}

	reg.MustRegister(
		c.refreshes,
		c.retryScheduled,
		c.retryExhausted,
		c.votes,
		c.sends,
		c.httpStatus,
		c.fetchLatency,
		c.itemsFetched,
	)

	return c
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// RecordRefresh は再取得の完了を記録する。
func (c *Collector) RecordRefresh(trigger string, success bool) {
	c.refreshes.WithLabelValues(trigger, resultLabel(success)).Inc()
}

// RecordRetryScheduled は自動リトライの予約を記録する。
func (c *Collector) RecordRetryScheduled(attempt int) {
	c.retryScheduled.WithLabelValues(strconv.Itoa(attempt)).Inc()
}

// RecordRetryExhausted は自動リトライの打ち切りを記録する。
func (c *Collector) RecordRetryExhausted() {
	c.retryExhausted.Inc()
}

// RecordVote は投票の結果を記録する。
func (c *Collector) RecordVote(success bool) {
	c.votes.WithLabelValues(resultLabel(success)).Inc()
}

// RecordSend はメッセージ送信の結果を記録する。
func (c *Collector) RecordSend(outcome string) {
	c.sends.WithLabelValues(outcome).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordFetchLatency は取得のレイテンシを記録する。
func (c *Collector) RecordFetchLatency(duration time.Duration) {
	c.fetchLatency.Observe(duration.Seconds())
}

// RecordItemsFetched は取得したアイデア数を記録する。
func (c *Collector) RecordItemsFetched(count int) {
	c.itemsFetched.Observe(float64(count))
}

// InstrumentSource は取得のレイテンシと件数を記録するItemSourceを返す。
func InstrumentSource(src source.ItemSource, c MetricsCollector) source.ItemSource {
	return &instrumentedSource{src: src, metrics: c, now: time.Now}
}

type instrumentedSource struct {
	src     source.ItemSource
	metrics MetricsCollector
	now     func() time.Time
}

func (s *instrumentedSource) FetchItems(ctx context.Context) ([]model.Idea, error) {
	start := s.now()
	items, err := s.src.FetchItems(ctx)
	s.metrics.RecordFetchLatency(s.now().Sub(start))
	if err == nil {
		s.metrics.RecordItemsFetched(len(items))
	}
	return items, err
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

