package report

import (
	"github.com/Sumatoshi-tech/fillspc/pkg/alg/stats"
	"github.com/Sumatoshi-tech/fillspc/pkg/metrics"
	"github.com/Sumatoshi-tech/fillspc/pkg/pipeline"
)

// NoReject is reported as the most common reject type when no observation
// carries one.
const NoReject = "N/A"

const percent = 100

// KPIs are the headline figures of a (filtered) run.
type KPIs struct {
	TotalParts       int     `json:"total_parts"        yaml:"total_parts"`
	TotalAnomalies   int     `json:"total_anomalies"    yaml:"total_anomalies"`
	AnomalyPercent   float64 `json:"anomaly_percent"    yaml:"anomaly_percent"`
	MostCommonReject string  `json:"most_common_reject" yaml:"most_common_reject"`
	T2Flags          int     `json:"T2_flags"           yaml:"T2_flags"`
	QFlags           int     `json:"Q_flags"            yaml:"Q_flags"`
}

// Observations is the input every KPI metric is computed over.
type Observations = []pipeline.ScoredObservation

var (
	totalParts = metrics.Func[Observations, int]{
		Meta: metrics.Meta{
			MetricName:        "total_parts",
			MetricDisplayName: "Total Parts",
			MetricDescription: "Number of observations after filtering.",
			MetricKind:        metrics.KindCount,
		},
		Fn: func(obs Observations) int { return len(obs) },
	}

	totalAnomalies = metrics.Func[Observations, int]{
		Meta: metrics.Meta{
			MetricName:        "total_anomalies",
			MetricDisplayName: "Total Anomalies",
			MetricDescription: "Observations beyond the T² or Q control limit.",
			MetricKind:        metrics.KindCount,
		},
		Fn: func(obs Observations) int {
			return countWhere(obs, func(o *pipeline.ScoredObservation) bool { return o.Anomaly })
		},
	}

	anomalyPercent = metrics.Func[Observations, float64]{
		Meta: metrics.Meta{
			MetricName:        "anomaly_percent",
			MetricDisplayName: "% Out of Control",
			MetricDescription: "Share of anomalous observations; 0 for an empty selection.",
			MetricKind:        metrics.KindPercent,
		},
		Fn: func(obs Observations) float64 {
			if len(obs) == 0 {
				return 0
			}

			return float64(totalAnomalies.Compute(obs)) / float64(len(obs)) * percent
		},
	}

	mostCommonReject = metrics.Func[Observations, string]{
		Meta: metrics.Meta{
			MetricName:        "most_common_reject",
			MetricDisplayName: "Most Common Reject",
			MetricDescription: "Most frequent non-empty reject type, N/A when there is none.",
			MetricKind:        metrics.KindCategory,
		},
		Fn: func(obs Observations) string {
			rejects := make([]string, 0, len(obs))

			for i := range obs {
				if obs[i].RejectType != "" {
					rejects = append(rejects, obs[i].RejectType)
				}
			}

			mode, count := stats.Mode(rejects)
			if count == 0 {
				return NoReject
			}

			return mode
		},
	}

	t2Flags = metrics.Func[Observations, int]{
		Meta: metrics.Meta{
			MetricName:        "T2_flags",
			MetricDisplayName: "T² Flags",
			MetricDescription: "Observations beyond the T² limit.",
			MetricKind:        metrics.KindCount,
		},
		Fn: func(obs Observations) int {
			return countWhere(obs, func(o *pipeline.ScoredObservation) bool { return o.T2Flag })
		},
	}

	qFlags = metrics.Func[Observations, int]{
		Meta: metrics.Meta{
			MetricName:        "Q_flags",
			MetricDisplayName: "Q Flags",
			MetricDescription: "Observations beyond the Q limit.",
			MetricKind:        metrics.KindCount,
		},
		Fn: func(obs Observations) int {
			return countWhere(obs, func(o *pipeline.ScoredObservation) bool { return o.QFlag })
		},
	}
)

// KPISet returns the KPI metrics in display order.
func KPISet() *metrics.Set[Observations] {
	set := metrics.NewSet[Observations]()
	metrics.Add[Observations, int](set, totalParts)
	metrics.Add[Observations, int](set, totalAnomalies)
	metrics.Add[Observations, float64](set, anomalyPercent)
	metrics.Add[Observations, string](set, mostCommonReject)
	metrics.Add[Observations, int](set, t2Flags)
	metrics.Add[Observations, int](set, qFlags)

	return set
}

// ComputeKPIs computes the KPIs of observations.
func ComputeKPIs(observations Observations) KPIs {
	return KPIs{
		TotalParts:       totalParts.Compute(observations),
		TotalAnomalies:   totalAnomalies.Compute(observations),
		AnomalyPercent:   anomalyPercent.Compute(observations),
		MostCommonReject: mostCommonReject.Compute(observations),
		T2Flags:          t2Flags.Compute(observations),
		QFlags:           qFlags.Compute(observations),
	}
}

// Values labels k with the KPI metadata, in display order.
func (k KPIs) Values() []metrics.Value {
	return []metrics.Value{
		labeled(totalParts.Meta, k.TotalParts),
		labeled(totalAnomalies.Meta, k.TotalAnomalies),
		labeled(anomalyPercent.Meta, k.AnomalyPercent),
		labeled(mostCommonReject.Meta, k.MostCommonReject),
		labeled(t2Flags.Meta, k.T2Flags),
		labeled(qFlags.Meta, k.QFlags),
	}
}

func labeled(m metrics.Meta, v any) metrics.Value {
	return metrics.Value{Name: m.Name(), DisplayName: m.DisplayName(), Kind: m.Kind(), Value: v}
}

func countWhere(obs Observations, pred func(*pipeline.ScoredObservation) bool) int {
	n := 0

	for i := range obs {
		if pred(&obs[i]) {
			n++
		}
	}

	return n
}
