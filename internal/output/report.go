package output

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/fatih/color"

	"github.com/surgeload/surge/internal/metrics"
)

// PrintReport writes the final formatted metrics table to w: every
// trend's per-tag min/max/avg/percentiles/total, then every counter.
// Printed unconditionally per spec.md §4.7 step 9 and §8 scenario S6 —
// regardless of whether the threshold passed.
func PrintReport(w io.Writer, report metrics.Report) {
	for _, name := range sortedKeys(report.Trends) {
		fmt.Fprintf(w, "%s\n", color.New(color.Bold).Sprint(name))
		tags := report.Trends[name]
		for _, tag := range sortedKeys(tags) {
			t := tags[tag]
			fmt.Fprintf(w, "  %-12s min=%.2fms max=%.2fms avg=%.2fms total=%d %s\n",
				tag, t.Min, t.Max, t.Avg, t.Total, formatPercentiles(t.Percentiles))
		}
	}

	if len(report.Counters) > 0 {
		fmt.Fprintln(w)
		for _, name := range sortedKeys(report.Counters) {
			fmt.Fprintf(w, "%s\n", color.New(color.Bold).Sprint(name))
			tags := report.Counters[name]
			for _, tag := range sortedKeys(tags) {
				fmt.Fprintf(w, "  %-12s %.0f\n", tag, tags[tag])
			}
		}
	}
}

// PrintVerdict prints the final pass/fail line.
func PrintVerdict(w io.Writer, passed bool, elapsed time.Duration) {
	if passed {
		fmt.Fprintf(w, "%s in %s\n", color.GreenString("PASS"), elapsed.Round(time.Millisecond))
		return
	}
	fmt.Fprintf(w, "%s in %s\n", color.RedString("FAIL"), elapsed.Round(time.Millisecond))
}

func formatPercentiles(p map[int]float64) string {
	out := ""
	for _, k := range sortedIntKeys(p) {
		out += fmt.Sprintf("p%d=%.2fms ", k, p[k])
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedIntKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
