package metrics

import "sort"

// DefaultPercentiles are the percentiles the runner requests for its
// final report (spec.md §4.7 step 7).
var DefaultPercentiles = []int{50, 90, 95, 99}

// TrendReport is the per-tag summary of a trend's observations.
type TrendReport struct {
	Min         float64         `json:"min"`
	Max         float64         `json:"max"`
	Avg         float64         `json:"avg"`
	Percentiles map[int]float64 `json:"percentiles"`
	Total       int             `json:"total"`
}

// Report is the full aggregated view of a RegistryObj: every trend's
// per-tag summary, and every counter copied verbatim.
type Report struct {
	Trends   map[string]map[string]TrendReport `json:"trends"`
	Counters map[string]map[string]float64     `json:"counters"`
}

// BuildReport computes a Report from a (typically merged) RegistryObj at
// the given percentiles.
func BuildReport(obj RegistryObj, percentiles []int) Report {
	report := Report{
		Trends:   make(map[string]map[string]TrendReport, len(obj.Trends)),
		Counters: make(map[string]map[string]float64, len(obj.Counters)),
	}

	for name, tags := range obj.Trends {
		tagReports := make(map[string]TrendReport, len(tags))
		for tag, values := range tags {
			tagReports[tag] = summarize(values, percentiles)
		}
		report.Trends[name] = tagReports
	}

	for name, tags := range obj.Counters {
		cp := make(map[string]float64, len(tags))
		for tag, v := range tags {
			cp[tag] = v
		}
		report.Counters[name] = cp
	}

	return report
}

// summarize implements spec.md §4.1's report algorithm: sort a copy
// ascending, then min/max/avg, and per-percentile linear interpolation
// between adjacent order statistics.
func summarize(values []float64, percentiles []int) TrendReport {
	result := TrendReport{Percentiles: make(map[int]float64, len(percentiles))}

	if len(values) == 0 {
		for _, p := range percentiles {
			result.Percentiles[p] = 0
		}
		return result
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	n := len(sorted)
	result.Min = sorted[0]
	result.Max = sorted[n-1]
	result.Total = n

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	result.Avg = sum / float64(n)

	for _, p := range percentiles {
		result.Percentiles[p] = percentile(sorted, p)
	}

	return result
}

// percentile assumes sorted is ascending and non-empty.
func percentile(sorted []float64, p int) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}

	idx := float64(p) / 100 * float64(n-1)
	lo := int(idx)
	if float64(lo) == idx {
		return sorted[lo]
	}

	hi := lo + 1
	frac := idx - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}
