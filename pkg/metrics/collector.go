package metrics

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gonum.org/v1/gonum/stat"

	"github.com/dbehnke/oqpsk-sink/pkg/sink"
)

const namespace = "oqpsk"

// Collector records receiver metrics. It implements sink.Observer so the
// sink reports synchronization events directly, and keeps plain counters
// alongside the Prometheus series for the status API.
type Collector struct {
	registry *prometheus.Registry

	syncs        prometheus.Counter
	desyncs      *prometheus.CounterVec
	frames       prometheus.Counter
	frameLengths prometheus.Histogram
	fcs          *prometheus.CounterVec
	dropped      prometheus.Counter
	samples      prometheus.Counter
	batches      prometheus.Counter
	sampleMean   prometheus.Gauge
	sampleStdDev prometheus.Gauge
	queueDepth   prometheus.Gauge

	nSyncs   atomic.Uint64
	nFrames  atomic.Uint64
	nSamples atomic.Uint64
	nDropped atomic.Uint64
	nFCSOK   atomic.Uint64
	nFCSBad  atomic.Uint64

	mu          sync.RWMutex
	desyncCount map[sink.Reason]uint64
	lastMean    float64
	lastStdDev  float64
}

// Snapshot is a point-in-time copy of the counters
type Snapshot struct {
	Syncs        uint64            `json:"syncs"`
	Desyncs      map[string]uint64 `json:"desyncs"`
	Frames       uint64            `json:"frames"`
	FCSValid     uint64            `json:"fcs_valid"`
	FCSInvalid   uint64            `json:"fcs_invalid"`
	Dropped      uint64            `json:"dropped"`
	Samples      uint64            `json:"samples"`
	SampleMean   float64           `json:"sample_mean"`
	SampleStdDev float64           `json:"sample_stddev"`
}

// NewCollector creates a collector with its own registry
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	c := &Collector{
		registry:    reg,
		desyncCount: make(map[sink.Reason]uint64),
		syncs: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "syncs_total",
			Help:      "Start-of-frame delimiters acquired",
		}),
		desyncs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "desyncs_total",
			Help:      "Synchronization attempts abandoned, by reason",
		}, []string{"reason"}),
		frames: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Frames the packet sink handed to the queue",
		}),
		frameLengths: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "frame_length_bytes",
			Help:      "Declared length of emitted frames",
			Buckets:   prometheus.LinearBuckets(0, 16, 9),
		}),
		fcs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fcs_checks_total",
			Help:      "Frame check sequence results for parsed frames",
		}, []string{"result"}),
		dropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Frames rejected by the queue",
		}),
		samples: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_total",
			Help:      "Samples processed",
		}),
		batches: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Sample batches processed",
		}),
		sampleMean: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sample_mean",
			Help:      "Mean amplitude of the last batch (DC offset)",
		}),
		sampleStdDev: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sample_stddev",
			Help:      "Amplitude standard deviation of the last batch",
		}),
		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Frames waiting for dispatch",
		}),
	}

	for _, r := range []sink.Reason{sink.ReasonPreamble, sink.ReasonSFD, sink.ReasonInvalidSymbol, sink.ReasonLength} {
		c.desyncs.WithLabelValues(string(r))
	}
	return c
}

// Registry returns the registry backing the collector
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Synced records an SFD acquisition
func (c *Collector) Synced() {
	c.syncs.Inc()
	c.nSyncs.Add(1)
}

// Desync records an abandoned synchronization attempt
func (c *Collector) Desync(reason sink.Reason) {
	c.desyncs.WithLabelValues(string(reason)).Inc()
	c.mu.Lock()
	c.desyncCount[reason]++
	c.mu.Unlock()
}

// FrameEmitted records a completed frame
func (c *Collector) FrameEmitted(length int) {
	c.frames.Inc()
	c.frameLengths.Observe(float64(length))
	c.nFrames.Add(1)
}

// FCSChecked records the result of verifying a frame's checksum
func (c *Collector) FCSChecked(valid bool) {
	if valid {
		c.fcs.WithLabelValues("valid").Inc()
		c.nFCSOK.Add(1)
		return
	}
	c.fcs.WithLabelValues("invalid").Inc()
	c.nFCSBad.Add(1)
}

// FrameDropped records a frame the queue could not accept
func (c *Collector) FrameDropped() {
	c.dropped.Inc()
	c.nDropped.Add(1)
}

// QueueDepth sets the pending frame gauge
func (c *Collector) QueueDepth(n int) {
	c.queueDepth.Set(float64(n))
}

// ObserveBatch records the size and amplitude statistics of a batch
func (c *Collector) ObserveBatch(samples []float32) {
	if len(samples) == 0 {
		return
	}
	c.batches.Inc()
	c.samples.Add(float64(len(samples)))
	c.nSamples.Add(uint64(len(samples)))

	values := make([]float64, len(samples))
	for i, s := range samples {
		values[i] = float64(s)
	}
	mean, std := stat.PopMeanStdDev(values, nil)
	if math.IsNaN(std) {
		std = 0
	}

	c.sampleMean.Set(mean)
	c.sampleStdDev.Set(std)
	c.mu.Lock()
	c.lastMean, c.lastStdDev = mean, std
	c.mu.Unlock()
}

// Snapshot returns the current counters
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	desyncs := make(map[string]uint64, len(c.desyncCount))
	for r, n := range c.desyncCount {
		desyncs[string(r)] = n
	}
	mean, std := c.lastMean, c.lastStdDev
	c.mu.RUnlock()

	return Snapshot{
		Syncs:        c.nSyncs.Load(),
		Desyncs:      desyncs,
		Frames:       c.nFrames.Load(),
		FCSValid:     c.nFCSOK.Load(),
		FCSInvalid:   c.nFCSBad.Load(),
		Dropped:      c.nDropped.Load(),
		Samples:      c.nSamples.Load(),
		SampleMean:   mean,
		SampleStdDev: std,
	}
}

var _ sink.Observer = (*Collector)(nil)
