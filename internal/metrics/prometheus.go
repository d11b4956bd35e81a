package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once     sync.Once
	registry *Registry
)

// Registry holds all migration metrics. It owns its own prometheus
// registry so a run can be dumped to a node_exporter textfile.
type Registry struct {
	reg *prometheus.Registry

	// Ingest
	ObjectsIngested   *prometheus.CounterVec
	RecordsSkipped    *prometheus.CounterVec
	UnresolvedMembers prometheus.Counter
	RangeBlocks       prometheus.Counter

	// Export
	ObjectsSubmitted *prometheus.CounterVec

	// NAT remediation
	NATObjectsSynthesized prometheus.Counter
	RulesRewritten        *prometheus.CounterVec

	// Device API
	DeviceRequests *prometheus.CounterVec
	DeviceLatency  *prometheus.HistogramVec

	LastRun prometheus.Gauge
}

// Get returns the global metrics registry, creating it if necessary.
func Get() *Registry {
	once.Do(func() {
		registry = New()
	})
	return registry
}

// New returns a fresh registry. Tests use it to avoid sharing counters.
func New() *Registry {
	r := &Registry{reg: prometheus.NewRegistry()}
	f := promauto.With(r.reg)

	r.ObjectsIngested = f.NewCounterVec(prometheus.CounterOpts{
		Name: "cpmigrate_objects_ingested_total",
		Help: "Objects built from the Check Point export, by kind",
	}, []string{"kind"})

	r.RecordsSkipped = f.NewCounterVec(prometheus.CounterOpts{
		Name: "cpmigrate_records_skipped_total",
		Help: "Export records skipped because their type is not converted or they carry no IPv4 address",
	}, []string{"type"})

	r.UnresolvedMembers = f.NewCounter(prometheus.CounterOpts{
		Name: "cpmigrate_unresolved_members_total",
		Help: "Group member identifiers that matched no object",
	})

	r.RangeBlocks = f.NewCounter(prometheus.CounterOpts{
		Name: "cpmigrate_range_blocks_total",
		Help: "CIDR blocks produced from group address ranges",
	})

	r.ObjectsSubmitted = f.NewCounterVec(prometheus.CounterOpts{
		Name: "cpmigrate_objects_submitted_total",
		Help: "Deduplicated objects submitted to the device, by xpath",
	}, []string{"xpath"})

	r.NATObjectsSynthesized = f.NewCounter(prometheus.CounterOpts{
		Name: "cpmigrate_nat_objects_synthesized_total",
		Help: "NAT_ address objects created during remediation",
	})

	r.RulesRewritten = f.NewCounterVec(prometheus.CounterOpts{
		Name: "cpmigrate_rules_rewritten_total",
		Help: "Rules updated by NAT remediation, by pass",
	}, []string{"pass"})

	r.DeviceRequests = f.NewCounterVec(prometheus.CounterOpts{
		Name: "cpmigrate_device_requests_total",
		Help: "XML API requests sent to the device",
	}, []string{"action", "status"})

	r.DeviceLatency = f.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cpmigrate_device_request_duration_seconds",
		Help:    "XML API request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"action"})

	r.LastRun = f.NewGauge(prometheus.GaugeOpts{
		Name: "cpmigrate_last_run_timestamp_seconds",
		Help: "Unix time the last run finished",
	})

	return r
}

// RecordDeviceRequest records one XML API call.
func (r *Registry) RecordDeviceRequest(action string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
	}
	r.DeviceRequests.WithLabelValues(action, status).Inc()
	r.DeviceLatency.WithLabelValues(action).Observe(d.Seconds())
}

// Gatherer exposes the underlying registry.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// WriteTextfile stamps the run time and writes all metrics in the text
// exposition format to path.
func (r *Registry) WriteTextfile(path string, now time.Time) error {
	r.LastRun.Set(float64(now.Unix()))
	if err := prometheus.WriteToTextfile(path, r.reg); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
