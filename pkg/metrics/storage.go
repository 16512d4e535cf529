package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// StorageMetrics collects metrics about storage adapter operations:
//   - Operation counts by storage, operation and status
//   - Operation latency
//   - Bytes read and written
//   - Multipart upload parts
//
// A nil *StorageMetrics is valid and records nothing.
type StorageMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	bytesTransferred  *prometheus.CounterVec
	multipartParts    *prometheus.CounterVec
	multipartBytes    *prometheus.CounterVec
}

// NewStorageMetrics creates a StorageMetrics registered on the global registry.
//
// Returns nil if metrics are not enabled (InitRegistry not called), which
// makes Instrument return the adapter unchanged.
func NewStorageMetrics() *StorageMetrics {
	if !IsEnabled() {
		return nil
	}
	return NewStorageMetricsWith(GetRegistry())
}

// NewStorageMetricsWith creates a StorageMetrics registered on reg.
func NewStorageMetricsWith(reg prometheus.Registerer) *StorageMetrics {
	return &StorageMetrics{
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "omnifs_storage_operations_total",
				Help: "Total number of storage operations by storage, operation type and status",
			},
			[]string{"storage", "operation", "status"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "omnifs_storage_operation_duration_seconds",
				Help: "Duration of storage operations in seconds",
				Buckets: []float64{
					0.001, // 1ms
					0.01,  // 10ms
					0.05,  // 50ms
					0.1,   // 100ms
					0.25,  // 250ms
					0.5,   // 500ms
					1.0,   // 1s
					2.5,   // 2.5s
					5.0,   // 5s
					10.0,  // 10s
					30.0,  // 30s
				},
			},
			[]string{"storage", "operation"},
		),
		bytesTransferred: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "omnifs_storage_bytes_transferred_total",
				Help: "Total bytes transferred by storage and direction",
			},
			[]string{"storage", "direction"}, // read or write
		),
		multipartParts: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "omnifs_storage_multipart_parts_total",
				Help: "Total number of multipart upload parts by storage and status",
			},
			[]string{"storage", "status"},
		),
		multipartBytes: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "omnifs_storage_multipart_bytes_total",
				Help: "Total bytes uploaded in successful multipart parts",
			},
			[]string{"storage"},
		),
	}
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// ObserveOperation records one adapter call.
func (m *StorageMetrics) ObserveOperation(storage, operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.operationsTotal.WithLabelValues(storage, operation, statusOf(err)).Inc()
	m.operationDuration.WithLabelValues(storage, operation).Observe(duration.Seconds())
}

// RecordBytes adds n bytes to the read or write counter of storage.
func (m *StorageMetrics) RecordBytes(storage, direction string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.bytesTransferred.WithLabelValues(storage, direction).Add(float64(n))
}

// ForStorage returns a multipart observer labelled with storage. It satisfies
// the Metrics hooks of the s3 and gcs adapters. The result is nil when m is
// nil, so the adapters keep their built-in no-op.
func (m *StorageMetrics) ForStorage(storage string) *PartObserver {
	if m == nil {
		return nil
	}
	return &PartObserver{metrics: m, storage: storage}
}

// PartObserver reports multipart parts for a single storage.
type PartObserver struct {
	metrics *StorageMetrics
	storage string
}

// ObservePart records the upload of one multipart part.
func (p *PartObserver) ObservePart(partNumber int32, bytes int64, duration time.Duration, err error) {
	if p == nil {
		return
	}
	p.metrics.multipartParts.WithLabelValues(p.storage, statusOf(err)).Inc()
	p.metrics.operationDuration.WithLabelValues(p.storage, "upload_part").Observe(duration.Seconds())
	if err == nil {
		p.metrics.multipartBytes.WithLabelValues(p.storage).Add(float64(bytes))
	}
}
