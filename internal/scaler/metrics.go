package scaler

import "github.com/prometheus/client_golang/prometheus"

// Metrics is the five-counter observability surface, pre-bound to one
// cluster_id label so a process hosting several ScalerLoops (one per
// cluster) reports distinct series per cluster rather than one shared set.
type Metrics struct {
	numScaleRuleTrigger   prometheus.Counter
	numScaleUp            prometheus.Counter
	numScaleDown          prometheus.Counter
	numReachScaleMaxLimit prometheus.Counter
	numReachScaleMinLimit prometheus.Counter
}

var (
	scaleRuleTriggerVec = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "resourcescaler",
		Name:      "scale_rule_trigger_total",
		Help:      "Usage responses processed by the scaler loop.",
	}, []string{"cluster_id"})

	scaleUpVec = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "resourcescaler",
		Name:      "scale_up_total",
		Help:      "ScaleUp decisions forwarded to the provisioner.",
	}, []string{"cluster_id"})

	scaleDownVec = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "resourcescaler",
		Name:      "scale_down_total",
		Help:      "ScaleDown decisions forwarded to the provisioner.",
	}, []string{"cluster_id"})

	reachScaleMaxLimitVec = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "resourcescaler",
		Name:      "reach_scale_max_limit_total",
		Help:      "Decisions that saturated at a rule's maxSize.",
	}, []string{"cluster_id"})

	reachScaleMinLimitVec = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "resourcescaler",
		Name:      "reach_scale_min_limit_total",
		Help:      "Decisions that saturated at a rule's minSize.",
	}, []string{"cluster_id"})
)

// MustRegisterMetrics registers all counter vectors against reg. Call once
// per process (typically from cmd/resourcescaler/main.go), regardless of
// how many ScalerLoops (clusters) are created afterwards.
func MustRegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(
		scaleRuleTriggerVec,
		scaleUpVec,
		scaleDownVec,
		reachScaleMaxLimitVec,
		reachScaleMinLimitVec,
	)
}

// NewMetrics returns a handle with all five counters pre-bound to clusterID.
func NewMetrics(clusterID ClusterID) *Metrics {
	labels := prometheus.Labels{"cluster_id": string(clusterID)}
	return &Metrics{
		numScaleRuleTrigger:   scaleRuleTriggerVec.With(labels),
		numScaleUp:            scaleUpVec.With(labels),
		numScaleDown:          scaleDownVec.With(labels),
		numReachScaleMaxLimit: reachScaleMaxLimitVec.With(labels),
		numReachScaleMinLimit: reachScaleMinLimitVec.With(labels),
	}
}

func (m *Metrics) IncScaleRuleTrigger()   { m.numScaleRuleTrigger.Inc() }
func (m *Metrics) IncScaleUp()            { m.numScaleUp.Inc() }
func (m *Metrics) IncScaleDown()          { m.numScaleDown.Inc() }
func (m *Metrics) IncReachScaleMaxLimit() { m.numReachScaleMaxLimit.Inc() }
func (m *Metrics) IncReachScaleMinLimit() { m.numReachScaleMinLimit.Inc() }
