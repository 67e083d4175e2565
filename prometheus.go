package edi

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusConfig is a config of the Prometheus metrics provided by the stream.
//
// An instance can be created only by the [Prometheus] function. The zero value is invalid.
type PrometheusConfig struct {
	// Namespace of the metrics.
	Namespace string
	// Subsystem of the metrics.
	Subsystem string
	// Options for the decoded segments counter.
	SegmentsDecoded prometheus.CounterOpts
	// Options for the failed segments counter.
	SegmentsFailed prometheus.CounterOpts
	// Options for the read bytes counter.
	BytesRead prometheus.CounterOpts
	// Options for the read errors counter.
	ReadErrors prometheus.CounterOpts
	// Options for the segment size histogram.
	SegmentSize prometheus.HistogramOpts

	registerer prometheus.Registerer
	once       sync.Once
	metrics    *metrics
}

// Prometheus returns a [PrometheusConfig] with the provided registerer. If registerer is nil,
// metrics will not be registered. Many default parameters can be configured by passing
// configuration functions.
//
// Metrics are created and registered once, on first use, so one config may be shared by many
// streams to aggregate their metrics.
func Prometheus(
	registerer prometheus.Registerer,
	configFuncs ...func(c *PrometheusConfig),
) *PrometheusConfig {
	const (
		namespace = "edi"
		subsystem = "stream"
	)

	c := PrometheusConfig{
		registerer: registerer,
		Namespace:  namespace,
		Subsystem:  subsystem,
		SegmentsDecoded: prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "segments_decoded",
			Help:      "Number of successfully decoded segments",
		},
		SegmentsFailed: prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "segments_failed",
			Help:      "Number of segments that failed to decode",
		},
		BytesRead: prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "bytes_read",
			Help:      "Number of bytes read from sources",
		},
		ReadErrors: prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "read_errors",
			Help:      "Number of failed reads from sources",
		},
		SegmentSize: prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "segment_size",
			Help:      "Size of raw segments in bytes",
			Buckets:   prometheus.ExponentialBuckets(4, 2, 10),
		},
	}

	for _, cf := range configFuncs {
		if cf != nil {
			cf(&c)
		}
	}

	return &c
}

func (c *PrometheusConfig) get() *metrics {
	c.once.Do(c.init)
	return c.metrics
}

func (c *PrometheusConfig) init() {
	m := metrics{
		segmentsDecoded: prometheus.NewCounter(c.SegmentsDecoded),
		segmentsFailed:  prometheus.NewCounter(c.SegmentsFailed),
		bytesRead:       prometheus.NewCounter(c.BytesRead),
		readErrors:      prometheus.NewCounter(c.ReadErrors),
		segmentSize:     prometheus.NewHistogram(c.SegmentSize),
	}

	if c.registerer != nil {
		c.registerer.MustRegister(
			m.segmentsDecoded,
			m.segmentsFailed,
			m.bytesRead,
			m.readErrors,
			m.segmentSize,
		)
	}

	c.metrics = &m
}

type metrics struct {
	segmentsDecoded prometheus.Counter
	segmentsFailed  prometheus.Counter
	bytesRead       prometheus.Counter
	readErrors      prometheus.Counter
	segmentSize     prometheus.Histogram
}
