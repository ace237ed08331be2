package telemetry

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector captures telemetry events emitted by the tools.
//
// Implementations may forward metrics to Prometheus or discard them. They
// should be inexpensive to call because hooks run inline with bus traffic.
type Collector interface {
	IncFrameSent()
	IncFrameReceived()
	IncReceiveTimeout()
	IncSettingApplied(node uint8)
	IncSettingSkipped(node uint8)
	IncSettingFailed(node uint8)
	ObserveCalibration(node uint8, success bool)
	SetNodeMetric(node uint8, metric string, value float64)
	IncMetricMiss(node uint8, metric string)
}

type noopCollector struct{}

// Noop returns a collector that discards all metrics.
func Noop() Collector {
	return noopCollector{}
}

func (noopCollector) IncFrameSent()                        {}
func (noopCollector) IncFrameReceived()                    {}
func (noopCollector) IncReceiveTimeout()                   {}
func (noopCollector) IncSettingApplied(uint8)              {}
func (noopCollector) IncSettingSkipped(uint8)              {}
func (noopCollector) IncSettingFailed(uint8)               {}
func (noopCollector) ObserveCalibration(uint8, bool)       {}
func (noopCollector) SetNodeMetric(uint8, string, float64) {}
func (noopCollector) IncMetricMiss(uint8, string)          {}

// PrometheusCollector exposes the counters via Prometheus.
type PrometheusCollector struct {
	framesSent      prometheus.Counter
	framesReceived  prometheus.Counter
	receiveTimeouts prometheus.Counter
	settings        *prometheus.CounterVec
	calibrations    *prometheus.CounterVec
	nodeMetrics     *prometheus.GaugeVec
	metricMisses    *prometheus.CounterVec
}

// NewPrometheusCollector registers the metrics with the provided registerer.
// A nil registerer falls back to the default one. Metrics that are already
// registered (a second collector on the same registry) are reused.
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &PrometheusCollector{}

	framesSent, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "odrive_can_frames_sent_total",
		Help: "Number of CAN frames transmitted on the bus.",
	}))
	if err != nil {
		return nil, err
	}
	c.framesSent = framesSent

	framesReceived, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "odrive_can_frames_received_total",
		Help: "Number of CAN frames consumed from the bus.",
	}))
	if err != nil {
		return nil, err
	}
	c.framesReceived = framesReceived

	receiveTimeouts, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "odrive_can_receive_timeouts_total",
		Help: "Number of bounded receive windows that elapsed without a frame.",
	}))
	if err != nil {
		return nil, err
	}
	c.receiveTimeouts = receiveTimeouts

	settings, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odrive_config_settings_total",
		Help: "Configuration settings processed per node and outcome.",
	}, []string{"node", "outcome"}))
	if err != nil {
		return nil, err
	}
	c.settings = settings

	calibrations, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odrive_calibrations_total",
		Help: "Calibration attempts per node and outcome.",
	}, []string{"node", "outcome"}))
	if err != nil {
		return nil, err
	}
	c.calibrations = calibrations

	nodeMetrics, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "odrive_node_metric",
		Help: "Last sampled value of a node's live metric endpoints.",
	}, []string{"node", "metric"}))
	if err != nil {
		return nil, err
	}
	c.nodeMetrics = nodeMetrics

	metricMisses, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odrive_node_metric_misses_total",
		Help: "Metric endpoint reads that timed out per node and metric.",
	}, []string{"node", "metric"}))
	if err != nil {
		return nil, err
	}
	c.metricMisses = metricMisses

	return c, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
		}
		return nil, err
	}
	return counter, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
		}
		return nil, err
	}
	return vec, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
		}
		return nil, err
	}
	return vec, nil
}

func nodeLabel(node uint8) string {
	return strconv.Itoa(int(node))
}

// IncFrameSent counts a transmitted frame.
func (p *PrometheusCollector) IncFrameSent() {
	if p == nil || p.framesSent == nil {
		return
	}
	p.framesSent.Inc()
}

// IncFrameReceived counts a consumed frame.
func (p *PrometheusCollector) IncFrameReceived() {
	if p == nil || p.framesReceived == nil {
		return
	}
	p.framesReceived.Inc()
}

// IncReceiveTimeout counts an elapsed receive window.
func (p *PrometheusCollector) IncReceiveTimeout() {
	if p == nil || p.receiveTimeouts == nil {
		return
	}
	p.receiveTimeouts.Inc()
}

// IncSettingApplied counts a written-and-validated setting.
func (p *PrometheusCollector) IncSettingApplied(node uint8) {
	if p == nil || p.settings == nil {
		return
	}
	p.settings.WithLabelValues(nodeLabel(node), "applied").Inc()
}

// IncSettingSkipped counts a setting that was already in place.
func (p *PrometheusCollector) IncSettingSkipped(node uint8) {
	if p == nil || p.settings == nil {
		return
	}
	p.settings.WithLabelValues(nodeLabel(node), "skipped").Inc()
}

// IncSettingFailed counts a setting that aborted a batch.
func (p *PrometheusCollector) IncSettingFailed(node uint8) {
	if p == nil || p.settings == nil {
		return
	}
	p.settings.WithLabelValues(nodeLabel(node), "failed").Inc()
}

// ObserveCalibration counts a finished calibration attempt.
func (p *PrometheusCollector) ObserveCalibration(node uint8, success bool) {
	if p == nil || p.calibrations == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	p.calibrations.WithLabelValues(nodeLabel(node), outcome).Inc()
}

// SetNodeMetric publishes a sampled metric endpoint value.
func (p *PrometheusCollector) SetNodeMetric(node uint8, metric string, value float64) {
	if p == nil || p.nodeMetrics == nil {
		return
	}
	p.nodeMetrics.WithLabelValues(nodeLabel(node), metric).Set(value)
}

// IncMetricMiss counts a metric endpoint read that returned nothing.
func (p *PrometheusCollector) IncMetricMiss(node uint8, metric string) {
	if p == nil || p.metricMisses == nil {
		return
	}
	p.metricMisses.WithLabelValues(nodeLabel(node), metric).Inc()
}
