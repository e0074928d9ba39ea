// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ワーカーやサービス層から利用する。
type MetricsCollector interface {
	RecordBatchGenerated(itemCount int)
	RecordGenerationSuppressed(reason string)
	RecordComposeFailure()
	RecordGenerationLatency(duration time.Duration)
	RecordItemSent()
	RecordItemSkipped()
	RecordBatchesExpired(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	batchesGenerated  prometheus.Counter
	itemsGenerated    prometheus.Counter
	suppressed        *prometheus.CounterVec
	composeFail       prometheus.Counter
	generationLatency prometheus.Histogram
	itemsSent         prometheus.Counter
	itemsSkipped      prometheus.Counter
	batchesExpired    prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		batchesGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sendclaw_batches_generated_total",
			Help: "生成されたアウトリーチバッチの合計数",
		}),
		itemsGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sendclaw_items_generated_total",
			Help: "生成されたアウトリーチアイテムの合計数",
		}),
		suppressed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sendclaw_generation_suppressed_total",
			Help: "抑止されたバッチ生成の理由別合計数",
		}, []string{"reason"}),
		composeFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sendclaw_compose_fail_total",
			Help: "コンポーザーAPI呼び出し失敗の合計数",
		}),
		generationLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sendclaw_generation_latency_seconds",
			Help:    "バッチ生成のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		itemsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sendclaw_items_sent_total",
			Help: "送信済みに遷移したアイテムの合計数",
		}),
		itemsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sendclaw_items_skipped_total",
			Help: "スキップに遷移したアイテムの合計数",
		}),
		batchesExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sendclaw_batches_expired_total",
			Help: "失効処理されたバッチの合計数",
		}),
	}

	reg.MustRegister(
		c.batchesGenerated,
		c.itemsGenerated,
		c.suppressed,
		c.composeFail,
		c.generationLatency,
		c.itemsSent,
		c.itemsSkipped,
		c.batchesExpired,
	)

	return c
}

// RecordBatchGenerated はバッチ生成成功とアイテム数を記録する。
func (c *Collector) RecordBatchGenerated(itemCount int) {
	c.batchesGenerated.Inc()
	c.itemsGenerated.Add(float64(itemCount))
}

// RecordGenerationSuppressed は抑止された生成を理由付きで記録する。
func (c *Collector) RecordGenerationSuppressed(reason string) {
	c.suppressed.WithLabelValues(reason).Inc()
}

// RecordComposeFailure はコンポーザー呼び出し失敗を記録する。
func (c *Collector) RecordComposeFailure() {
	c.composeFail.Inc()
}

// RecordGenerationLatency はバッチ生成のレイテンシを記録する。
func (c *Collector) RecordGenerationLatency(duration time.Duration) {
	c.generationLatency.Observe(duration.Seconds())
}

// RecordItemSent は送信済み遷移を記録する。
func (c *Collector) RecordItemSent() {
	c.itemsSent.Inc()
}

// RecordItemSkipped はスキップ遷移を記録する。
func (c *Collector) RecordItemSkipped() {
	c.itemsSkipped.Inc()
}

// RecordBatchesExpired は失効処理されたバッチ数を記録する。
func (c *Collector) RecordBatchesExpired(count int64) {
	c.batchesExpired.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
