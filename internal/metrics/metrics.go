// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ワーカーやハンドラーから利用する。
type MetricsCollector interface {
	RecordSubmissionFlattened(replyCount int)
	RecordSubmissionSkipped()
	RecordSubmissionFailed(reason string)
	RecordAnomaly(kind string, count int)
	RecordFlattenLatency(duration time.Duration)
	RecordRecordsIngested(kind string, count int)
	RecordRecordRejected(kind string)
	RecordHTTPStatus(statusCode int)
}

// 失敗理由のラベル値。
const (
	ReasonRepository = "repository"
	ReasonTooLarge   = "too_large"
	ReasonPanic      = "panic"
	ReasonSink       = "sink"
)

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	submissionsFlattened prometheus.Counter
	submissionsSkipped   prometheus.Counter
	submissionsFailed    *prometheus.CounterVec
	repliesFlattened     prometheus.Counter
	anomalies            *prometheus.CounterVec
	flattenLatency       prometheus.Histogram
	recordsIngested      *prometheus.CounterVec
	recordsRejected      *prometheus.CounterVec
	httpStatus           *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		submissionsFlattened: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "threadflat_submissions_flattened_total",
			Help: "文書を出力した投稿の合計数",
		}),
		submissionsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "threadflat_submissions_skipped_total",
			Help: "返信数・本文長の条件で除外した投稿の合計数",
		}),
		submissionsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "threadflat_submissions_failed_total",
			Help: "処理に失敗した投稿の理由別の合計数",
		}, []string{"reason"}),
		repliesFlattened: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "threadflat_replies_flattened_total",
			Help: "文書に含めた返信本文の合計数",
		}),
		anomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "threadflat_graph_anomalies_total",
			Help: "返信グラフの異常（重複ID・重複辺・自己参照・他投稿の親）の種類別合計数",
		}, []string{"kind"}),
		flattenLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "threadflat_flatten_latency_seconds",
			Help:    "投稿1件の木構築と平坦化のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		recordsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "threadflat_records_ingested_total",
			Help: "ストアに取り込んだレコードの種類別合計数",
		}, []string{"kind"}),
		recordsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "threadflat_records_rejected_total",
			Help: "不正な行または必須フィールド欠落で除外したレコードの種類別合計数",
		}, []string{"kind"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "threadflat_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.submissionsFlattened,
		c.submissionsSkipped,
		c.submissionsFailed,
		c.repliesFlattened,
		c.anomalies,
		c.flattenLatency,
		c.recordsIngested,
		c.recordsRejected,
		c.httpStatus,
	)

	return c
}

// RecordSubmissionFlattened は文書を出力した投稿と、含めた返信数を記録する。
func (c *Collector) RecordSubmissionFlattened(replyCount int) {
	c.submissionsFlattened.Inc()
	c.repliesFlattened.Add(float64(replyCount))
}

// RecordSubmissionSkipped は除外した投稿を記録する。
func (c *Collector) RecordSubmissionSkipped() {
	c.submissionsSkipped.Inc()
}

// RecordSubmissionFailed は処理に失敗した投稿を理由付きで記録する。
func (c *Collector) RecordSubmissionFailed(reason string) {
	c.submissionsFailed.WithLabelValues(reason).Inc()
}

// RecordAnomaly はグラフ構築時に検出した異常の件数を記録する。0件は記録しない。
func (c *Collector) RecordAnomaly(kind string, count int) {
	if count <= 0 {
		return
	}
	c.anomalies.WithLabelValues(kind).Add(float64(count))
}

// RecordFlattenLatency は木構築と平坦化のレイテンシを記録する。
func (c *Collector) RecordFlattenLatency(duration time.Duration) {
	c.flattenLatency.Observe(duration.Seconds())
}

// RecordRecordsIngested は取り込んだレコード数を記録する。
func (c *Collector) RecordRecordsIngested(kind string, count int) {
	c.recordsIngested.WithLabelValues(kind).Add(float64(count))
}

// RecordRecordRejected は除外したレコードを記録する。
func (c *Collector) RecordRecordRejected(kind string) {
	c.recordsRejected.WithLabelValues(kind).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// バッチ実行中のスクレイプ用に、METRICS_ADDRで単独のサーバーとして起動する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
