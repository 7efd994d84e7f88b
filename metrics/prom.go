package metrics
import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)
var (
	PasteCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "thoth_paste_created_total",
		Help: "no. of pastes created",
	})
	PasteRetrieved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thoth_paste_retrieved_total",
			Help: "no. of paste reads by resource",
		},
		[]string{"resource"},
	)
	PasteDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "thoth_paste_deleted_total",
		Help: "no. of pastes removed by an operator",
	})
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thoth_cache_hits_total",
			Help: "no. of cache hits",
		},
		[]string{"tier"},
	)
	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "thoth_cache_misses_total",
		Help: "no. of reads that reached sqlite",
	})
	FilesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "thoth_files_written_total",
		Help: "no. of attachments written to disk",
	})
	BytesStored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "thoth_attachment_bytes_total",
		Help: "attachment bytes written to disk",
	})
	IDCollisions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "thoth_id_collisions_total",
		Help: "no. of paste id candidates that were already taken",
	})
	CorruptReads = promauto.NewCounter(prometheus.CounterOpts{
		Name: "thoth_corrupt_metadata_reads_total",
		Help: "no. of environment reads failed by an undecodable blob",
	})
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "thoth_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "status"},
	)
	PruneCycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "thoth_orphan_sweep_cycles_total",
		Help: "no. of orphan sweep cycles",
	})
	OrphansRemoved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "thoth_orphans_removed_total",
		Help: "no. of unreferenced paste directories removed",
	})
)
