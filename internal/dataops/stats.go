package dataops

import (
	"math"
	"sort"
)

// Statistics is the descriptive-statistics summary of one numeric field.
// An empty input yields the zero value, never an error.
type Statistics struct {
	Count  int
	Sum    float64
	Avg    float64
	Min    float64
	Max    float64
	Median float64
	Mode   float64
	// StdDev is the population standard deviation.
	StdDev float64
	P25    float64
	P75    float64
}

// AsRecord renders the summary as a record so it can flow through further
// data operations.
func (s Statistics) AsRecord() Record {
	return Record{
		"count":  float64(s.Count),
		"sum":    s.Sum,
		"avg":    s.Avg,
		"min":    s.Min,
		"max":    s.Max,
		"median": s.Median,
		"mode":   s.Mode,
		"stddev": s.StdDev,
		"p25":    s.P25,
		"p75":    s.P75,
	}
}

// Statistics summarizes the given field across data. Null fields are
// skipped; non-numeric values fall under the coercion rule (0 plus a
// recorded warning).
func (e *Engine) Statistics(data []Record, field string) Statistics {
	vals := e.numericValues(data, field)
	if len(vals) == 0 {
		return Statistics{}
	}

	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)

	sum := 0.0
	for _, v := range sorted {
		sum += v
	}
	avg := sum / float64(len(sorted))

	variance := 0.0
	for _, v := range sorted {
		d := v - avg
		variance += d * d
	}
	variance /= float64(len(sorted))

	return Statistics{
		Count:  len(vals),
		Sum:    sum,
		Avg:    avg,
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		Median: percentile(sorted, 50),
		Mode:   mode(sorted),
		StdDev: math.Sqrt(variance),
		P25:    percentile(sorted, 25),
		P75:    percentile(sorted, 75),
	}
}

// percentile computes the p-th percentile of sorted values using linear
// interpolation between closest ranks.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// mode returns the most frequent value; ties resolve to the smallest value,
// which the sorted input guarantees.
func mode(sorted []float64) float64 {
	best := sorted[0]
	bestCount := 0
	i := 0
	for i < len(sorted) {
		j := i
		for j < len(sorted) && sorted[j] == sorted[i] {
			j++
		}
		if j-i > bestCount {
			bestCount = j - i
			best = sorted[i]
		}
		i = j
	}
	return best
}
