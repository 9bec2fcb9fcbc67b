package spc

import "fmt"

// Flags is the classification of one observation.
type Flags struct {
	T2      bool `json:"T2_flag"`
	Q       bool `json:"Q_flag"`
	Anomaly bool `json:"anomaly"`
}

// Classify flags a statistic when it strictly exceeds its limit.
func Classify(t2, q float64, limits Limits) Flags {
	f := Flags{
		T2: t2 > limits.T2,
		Q:  q > limits.Q,
	}
	f.Anomaly = f.T2 || f.Q

	return f
}

// ClassifyAll classifies paired T² and Q values.
func ClassifyAll(t2, q []float64, limits *Limits) ([]Flags, error) {
	if limits == nil {
		return nil, ErrMissingLimits
	}

	if len(t2) != len(q) {
		return nil, fmt.Errorf("%w: %d T2 values, %d Q values", ErrDimensionMismatch, len(t2), len(q))
	}

	flags := make([]Flags, len(t2))
	for i := range t2 {
		flags[i] = Classify(t2[i], q[i], *limits)
	}

	return flags, nil
}

// Counts summarises a set of flags.
type Counts struct {
	T2        int `json:"T2_flags"`
	Q         int `json:"Q_flags"`
	Anomalies int `json:"anomalies"`
}

// Count tallies flags.
func Count(flags []Flags) Counts {
	var c Counts

	for _, f := range flags {
		if f.T2 {
			c.T2++
		}

		if f.Q {
			c.Q++
		}

		if f.Anomaly {
			c.Anomalies++
		}
	}

	return c
}
