package pinger

import "math"

// RTTStatistics are in milliseconds.
type RTTStatistics struct {
	Min    float64 `json:"min_ms"`
	Max    float64 `json:"max_ms"`
	Mean   float64 `json:"mean_ms"`
	StdDev float64 `json:"stddev_ms"`
}

type Summary struct {
	Transmitted int     `json:"transmitted"`
	Received    int     `json:"received"`
	LossPercent float64 `json:"loss_percent"`

	// RTT is nil when nothing was received.
	RTT *RTTStatistics `json:"rtt,omitempty"`
}

func (s Summary) Lost() int {
	return s.Transmitted - s.Received
}

// Summarize aggregates probe results. The standard deviation is the
// population one, i.e. divided by the number of samples.
func Summarize(results []ProbeResult) Summary {
	summary := Summary{Transmitted: len(results)}

	samples := make([]float64, 0, len(results))
	for _, result := range results {
		if result.RTTMilliseconds != nil {
			samples = append(samples, *result.RTTMilliseconds)
		}
	}
	summary.Received = len(samples)

	if summary.Transmitted == 0 {
		summary.LossPercent = 100
	} else {
		summary.LossPercent = float64(summary.Transmitted-summary.Received) / float64(summary.Transmitted) * 100
	}

	if len(samples) == 0 {
		return summary
	}

	stats := &RTTStatistics{Min: samples[0], Max: samples[0]}
	var total float64
	for _, x := range samples {
		stats.Min = math.Min(stats.Min, x)
		stats.Max = math.Max(stats.Max, x)
		total += x
	}
	stats.Mean = total / float64(len(samples))

	var sqDiffs float64
	for _, x := range samples {
		sqDiffs += (x - stats.Mean) * (x - stats.Mean)
	}
	stats.StdDev = math.Sqrt(sqDiffs / float64(len(samples)))

	summary.RTT = stats
	return summary
}
