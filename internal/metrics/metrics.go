// Package metrics exposes Prometheus collectors for the capture pipeline.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"nutriflow/internal/capture"
	"nutriflow/internal/frames"
)

const namespace = "nutriflow"

// Collector implements capture.Observer and records pipeline metrics on its
// own registry.
type Collector struct {
	registry *prometheus.Registry

	cycles          *prometheus.CounterVec
	itemsTaken      prometheus.Counter
	allergyWarnings *prometheus.CounterVec
	mealRequests    *prometheus.CounterVec
	mealTime        prometheus.Histogram
	detections      *prometheus.CounterVec
	detectionTime   *prometheus.HistogramVec
	frames          prometheus.Counter
	frameBytes      prometheus.Gauge
	cameraActive    prometheus.Gauge
	monitoring      prometheus.Gauge
	beforeItems     prometheus.Gauge
}

// New registers all collectors. Runtime collectors are added when
// withRuntime is set.
func New(withRuntime bool) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_cycles_total",
			Help:      "Completed capture cycles by source and outcome.",
		}, []string{"source", "outcome"}),
		itemsTaken: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_taken_total",
			Help:      "Individual items detected as taken out of the fridge.",
		}),
		allergyWarnings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "allergy_warnings_total",
			Help:      "Allergy warnings raised for taken items by matching rule.",
		}, []string{"rule"}),
		mealRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "meal_requests_total",
			Help:      "Meal service requests by result kind.",
		}, []string{"kind"}),
		mealTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "meal_request_duration_seconds",
			Help:      "Meal service request latency.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30},
		}),
		detections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detections_total",
			Help:      "Object detection calls by phase and result.",
		}, []string{"phase", "result"}),
		detectionTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "detection_duration_seconds",
			Help:      "Object detection latency.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
		}, []string{"phase"}),
		frames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_acquired_total",
			Help:      "Camera frames stored in the current-frame slot.",
		}),
		frameBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "frame_bytes",
			Help:      "Encoded size of the latest frame.",
		}),
		cameraActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "camera_active",
			Help:      "1 when the camera is delivering frames.",
		}),
		monitoring: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "monitoring",
			Help:      "1 while a before snapshot is held and the after frame is polled.",
		}),
		beforeItems: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "before_items",
			Help:      "Items in the current before snapshot.",
		}),
	}
	c.registry.MustRegister(
		c.cycles, c.itemsTaken, c.allergyWarnings, c.mealRequests, c.mealTime,
		c.detections, c.detectionTime, c.frames, c.frameBytes,
		c.cameraActive, c.monitoring, c.beforeItems,
	)
	if withRuntime {
		c.registry.MustRegister(collectors.NewGoCollector())
		c.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// ObserveFrame is a frames.Source hook.
func (c *Collector) ObserveFrame(f frames.Frame) {
	c.frames.Inc()
	c.frameBytes.Set(float64(len(f.Data)))
}

// SetCameraActive records camera availability.
func (c *Collector) SetCameraActive(active bool) {
	c.cameraActive.Set(boolGauge(active))
}

func (c *Collector) CycleFinished(_ context.Context, r capture.Result) {
	c.cycles.WithLabelValues(string(r.Source), string(r.Outcome)).Inc()
	c.itemsTaken.Add(float64(r.Taken.Total()))
	for _, w := range r.Warnings {
		c.allergyWarnings.WithLabelValues(string(w.Rule)).Inc()
	}
	if r.Meal != nil {
		c.mealRequests.WithLabelValues(string(r.Meal.Kind)).Inc()
		c.mealTime.Observe(r.Meal.Duration.Seconds())
	}
}

func (c *Collector) StateChanged(_ context.Context, s capture.Status) {
	c.monitoring.Set(boolGauge(s.State == capture.StateMonitoring))
	c.beforeItems.Set(float64(s.BeforeItemsCount))
	c.cameraActive.Set(boolGauge(s.CameraActive))
}

func (c *Collector) DetectionFinished(phase capture.Phase, _ int, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.detections.WithLabelValues(string(phase), result).Inc()
	c.detectionTime.WithLabelValues(string(phase)).Observe(d.Seconds())
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
