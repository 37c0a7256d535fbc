package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mezonai/blockfs/logx"
)

// IOErrorOp labels ioErrorCount with the operation that failed
type IOErrorOp string

var (
	IOOpAppend  IOErrorOp = "append"
	IOOpFlush   IOErrorOp = "flush"
	IOOpClose   IOErrorOp = "close"
	IOOpRead    IOErrorOp = "read"
	IOOpDelete  IOErrorOp = "delete"
	IOOpCatalog IOErrorOp = "catalog"
)

type storePromMetrics struct {
	storeUpUnixSeconds prometheus.Gauge
	blocksCreated      prometheus.Counter
	blocksDeleted      prometheus.Counter
	blocksReclaimed    prometheus.Counter
	orphansRemoved     prometheus.Counter
	bytesAppended      prometheus.Counter
	blockSizeBytes     prometheus.Histogram
	closeDuration      prometheus.Histogram
	ioErrorCount       *prometheus.CounterVec
	openReaders        prometheus.Gauge
	openWriters        prometheus.Gauge
	flushesInflight    prometheus.Gauge
	panicCount         prometheus.Counter
}

func newStorePromMetrics() *storePromMetrics {
	return &storePromMetrics{
		storeUpUnixSeconds: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "blockfs_store_up_timestamp_unix_seconds",
				Help: "Unix timestamp at which the block store was opened",
			},
		),
		blocksCreated: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "blockfs_blocks_created_total",
				Help: "Writable blocks created since the store was opened",
			},
		),
		blocksDeleted: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "blockfs_blocks_deleted_total",
				Help: "Blocks logically deleted (tombstoned) since the store was opened",
			},
		),
		blocksReclaimed: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "blockfs_blocks_reclaimed_total",
				Help: "Blocks whose on-disk space has been physically reclaimed",
			},
		),
		orphansRemoved: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "blockfs_orphan_extents_removed_total",
				Help: "Orphaned extents removed during repository recovery",
			},
		),
		bytesAppended: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "blockfs_bytes_appended_total",
				Help: "Bytes successfully appended across all writable blocks",
			},
		),
		blockSizeBytes: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "blockfs_block_size_bytes",
				Help:    "Final size of blocks at close time",
				Buckets: prometheus.ExponentialBuckets(256, 4, 12),
			},
		),
		closeDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "blockfs_block_close_duration_seconds",
				Help:    "Wall-clock latency of WritableBlock.Close, including flush waits",
				Buckets: prometheus.DefBuckets,
			},
		),
		ioErrorCount: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blockfs_io_errors_total",
				Help: "I/O failures surfaced to callers, by operation",
			},
			[]string{"op"},
		),
		openReaders: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "blockfs_open_readers",
				Help: "Readable block handles currently open",
			},
		),
		openWriters: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "blockfs_open_writers",
				Help: "Writable block handles currently open",
			},
		),
		flushesInflight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "blockfs_flushes_inflight",
				Help: "Asynchronous flush operations currently outstanding",
			},
		),
		panicCount: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "blockfs_panic_total",
				Help: "Panics recovered inside background goroutines",
			},
		),
	}
}

var storeMetrics *storePromMetrics

// InitMetrics initializes metrics collectors but does not expose them yet.
// Record functions are no-ops until this is called, so library embedders
// that do not want collectors pay nothing.
func InitMetrics() {
	storeMetrics = newStorePromMetrics()
	storeMetrics.storeUpUnixSeconds.SetToCurrentTime()
}

func RegisterMetrics(mux *http.ServeMux) {
	logx.Info("MONITORING", "Registering prometheus metrics")
	mux.Handle("/metrics", promhttp.Handler())
}

// Serve exposes /metrics on addr and blocks. Callers run it under
// exception.SafeGo when they want it in the background.
func Serve(addr string) error {
	mux := http.NewServeMux()
	RegisterMetrics(mux)
	logx.Info("MONITORING", "Serving metrics on ", addr)
	return http.ListenAndServe(addr, mux)
}

func IncreaseBlocksCreated() {
	if storeMetrics != nil {
		storeMetrics.blocksCreated.Inc()
	}
}

func IncreaseBlocksDeleted() {
	if storeMetrics != nil {
		storeMetrics.blocksDeleted.Inc()
	}
}

func IncreaseBlocksReclaimed() {
	if storeMetrics != nil {
		storeMetrics.blocksReclaimed.Inc()
	}
}

func IncreaseOrphansRemoved() {
	if storeMetrics != nil {
		storeMetrics.orphansRemoved.Inc()
	}
}

func RecordBytesAppended(n int) {
	if storeMetrics != nil {
		storeMetrics.bytesAppended.Add(float64(n))
	}
}

func RecordBlockSizeBytes(sizeBytes uint64) {
	if storeMetrics != nil {
		storeMetrics.blockSizeBytes.Observe(float64(sizeBytes))
	}
}

func RecordCloseDuration(duration time.Duration) {
	if storeMetrics != nil {
		storeMetrics.closeDuration.Observe(duration.Seconds())
	}
}

func RecordIOError(op IOErrorOp) {
	if storeMetrics != nil {
		storeMetrics.ioErrorCount.With(prometheus.Labels{
			"op": string(op),
		}).Inc()
	}
}

func AddOpenReaders(delta int) {
	if storeMetrics != nil {
		storeMetrics.openReaders.Add(float64(delta))
	}
}

func AddOpenWriters(delta int) {
	if storeMetrics != nil {
		storeMetrics.openWriters.Add(float64(delta))
	}
}

func AddFlushesInflight(delta int) {
	if storeMetrics != nil {
		storeMetrics.flushesInflight.Add(float64(delta))
	}
}

func IncreasePanicCount() {
	if storeMetrics != nil {
		storeMetrics.panicCount.Inc()
	}
}
