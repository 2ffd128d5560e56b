package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/veraxlabs/verax/logx"
)

type enginePromMetrics struct {
	engineUpUnixSeconds prometheus.Gauge
	tipHeight           prometheus.Gauge
	finalizedHeight     prometheus.Gauge
	forestSize          prometheus.Gauge
	mempoolSize         prometheus.Gauge
	committedBlockCount prometheus.Counter
	rejectedBlockCount  *prometheus.CounterVec
	orphanedBlockCount  prometheus.Counter
	reorgCount          prometheus.Counter
	verifyDuration      prometheus.Histogram
	blockSizeBytes      prometheus.Histogram
	txInBlock           prometheus.Histogram
}

func newEnginePromMetrics() *enginePromMetrics {
	return &enginePromMetrics{
		engineUpUnixSeconds: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "verax_engine_up_timestamp_unix_seconds",
				Help: "Unix timestamp of engine start",
			},
		),
		tipHeight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "verax_engine_tip_height",
				Help: "Height of the current best chain tip",
			},
		),
		finalizedHeight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "verax_engine_finalized_height",
				Help: "Height of the finalized tip",
			},
		),
		forestSize: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "verax_engine_forest_size",
				Help: "Number of unfinalized blocks tracked across candidate chains",
			},
		),
		mempoolSize: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "verax_engine_mempool_size",
				Help: "The total pending transactions queued in the mempool",
			},
		),
		committedBlockCount: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "verax_engine_committed_block_count",
				Help: "The total number of blocks committed to candidate chains",
			},
		),
		rejectedBlockCount: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "verax_engine_rejected_block_count",
				Help: "The total number of blocks rejected by verification",
			},
			[]string{"code"},
		),
		orphanedBlockCount: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "verax_engine_orphaned_block_count",
				Help: "The total number of blocks parked waiting for their parent",
			},
		),
		reorgCount: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "verax_engine_reorg_count",
				Help: "The total number of best-chain tip switches",
			},
		),
		verifyDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name: "verax_engine_verify_duration_seconds",
				Help: "Duration in seconds of full block verification",
			},
		),
		blockSizeBytes: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name: "verax_engine_block_size_bytes",
				Help: "The committed block size in bytes",
			},
		),
		txInBlock: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name: "verax_engine_tx_in_block",
				Help: "Number of tx in committed blocks",
			},
		),
	}
}

var (
	metricsOnce   sync.Once
	engineMetrics *enginePromMetrics
)

// metrics returns the engine metrics, registering them on first use. The
// engine is embeddable as a library, so recording must work without any
// explicit setup call.
func metrics() *enginePromMetrics {
	metricsOnce.Do(func() {
		engineMetrics = newEnginePromMetrics()
	})
	return engineMetrics
}

// InitMetrics initializes engine metrics and stamps the process start
// time, but does not expose them yet.
func InitMetrics() {
	metrics().engineUpUnixSeconds.SetToCurrentTime()
}

func RegisterMetrics(mux *http.ServeMux) {
	logx.Info("MONITORING", "Registering prometheus metrics")
	mux.Handle("/metrics", promhttp.Handler())
}

func SetTipHeight(height uint64) {
	metrics().tipHeight.Set(float64(height))
}

func SetFinalizedHeight(height uint64) {
	metrics().finalizedHeight.Set(float64(height))
}

func SetForestSize(size int) {
	metrics().forestSize.Set(float64(size))
}

func SetMempoolSize(size int) {
	metrics().mempoolSize.Set(float64(size))
}

func IncreaseCommittedBlockCount() {
	metrics().committedBlockCount.Inc()
}

func RecordRejectedBlock(code string) {
	metrics().rejectedBlockCount.With(prometheus.Labels{
		"code": code,
	}).Inc()
}

func IncreaseOrphanedBlockCount() {
	metrics().orphanedBlockCount.Inc()
}

func IncreaseReorgCount() {
	metrics().reorgCount.Inc()
}

func RecordVerifyDuration(duration time.Duration) {
	metrics().verifyDuration.Observe(duration.Seconds())
}

func RecordBlockSizeBytes(sizeBytes int) {
	metrics().blockSizeBytes.Observe(float64(sizeBytes))
}

func RecordTxInBlock(txCount int) {
	metrics().txInBlock.Observe(float64(txCount))
}
