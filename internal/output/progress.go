package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

const barWidth = 50

// ScenarioProgress is one scenario's line in the live display: the
// {percentage, extraInfos, aborted} triple an Executor reports, paired
// with the scenario's name.
type ScenarioProgress struct {
	Name       string
	Percentage float64
	Aborted    bool
	ExtraInfo  string
}

// Printer renders the live progress display described in spec.md §6 and
// redraws it in place on a TTY. It also feeds every completed
// iteration's duration into a non-authoritative HDR histogram for the
// live P95 figure in the summary line; the authoritative report always
// comes from metrics.Report (see SPEC_FULL.md §4.1).
type Printer struct {
	writer io.Writer
	isTTY  bool

	mu          sync.Mutex
	linesOutput int
	startTime   time.Time
	hist        *hdrhistogram.Histogram
}

// New creates a Printer writing to w. Progress redraw (cursor-up +
// clear) only happens when w is a terminal; otherwise Render falls back
// to appending plain lines, matching the teacher's
// PrintNonInteractiveUpdate behavior for piped/CI output.
func New(w io.Writer) *Printer {
	isTTY := false
	if f, ok := w.(*os.File); ok {
		isTTY = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &Printer{
		writer: w,
		isTTY:  isTTY,
		hist:   hdrhistogram.New(1, 60_000, 3),
	}
}

// Start records the run's start time, used for the elapsed-time header.
func (p *Printer) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.startTime = time.Now()
}

// Observe feeds one completed iteration's duration (in milliseconds)
// into the live-preview histogram. Not the authoritative report path.
func (p *Printer) Observe(elapsedMs float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hist.RecordValue(int64(elapsedMs))
}

// Render redraws the summary line and one line per scenario. currentVUs
// and maxVUs sum every scenario's CurrentVUs/MaxVUs; completedIterations
// is the total success+fail count across every scenario's merged state.
func (p *Printer) Render(currentVUs, maxVUs int, completedIterations int64, scenarios []ScenarioProgress) {
	p.mu.Lock()
	defer p.mu.Unlock()

	lines := p.renderLines(currentVUs, maxVUs, completedIterations, scenarios)

	if p.isTTY && p.linesOutput > 0 {
		fmt.Fprintf(p.writer, "\033[%dA", p.linesOutput)
		for range lines {
			fmt.Fprint(p.writer, "\033[2K\n")
		}
		fmt.Fprintf(p.writer, "\033[%dA", len(lines))
	}

	for _, line := range lines {
		fmt.Fprintln(p.writer, line)
	}
	p.linesOutput = len(lines)
}

// Clear erases the live display's screen region, leaving the cursor
// where the display used to start. Called once the run finishes, before
// the final report table is printed.
func (p *Printer) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.isTTY && p.linesOutput > 0 {
		fmt.Fprintf(p.writer, "\033[%dA", p.linesOutput)
		for i := 0; i < p.linesOutput; i++ {
			fmt.Fprint(p.writer, "\033[2K\n")
		}
		fmt.Fprintf(p.writer, "\033[%dA", p.linesOutput)
	}
	p.linesOutput = 0
}

func (p *Printer) renderLines(currentVUs, maxVUs int, completedIterations int64, scenarios []ScenarioProgress) []string {
	elapsed := time.Duration(0)
	if !p.startTime.IsZero() {
		elapsed = time.Since(p.startTime)
	}

	p95 := time.Duration(p.hist.ValueAtQuantile(95)) * time.Millisecond

	summary := fmt.Sprintf("running (%s) [%d/%d VUs] [%d iterations] p95=%s",
		formatElapsed(elapsed), currentVUs, maxVUs, completedIterations, p95)

	lines := make([]string, 0, len(scenarios)+1)
	lines = append(lines, summary)

	for _, s := range scenarios {
		lines = append(lines, renderScenarioLine(s))
	}
	return lines
}

// renderScenarioLine formats "<name> <mark> [<bar>] <extra>" per
// spec.md §6.
func renderScenarioLine(s ScenarioProgress) string {
	mark := " "
	switch {
	case s.Aborted:
		mark = color.RedString("✗")
	case s.Percentage >= 100:
		mark = color.GreenString("✓")
	}

	line := fmt.Sprintf("%s %s [%s]", s.Name, mark, renderBar(s.Percentage))
	if s.ExtraInfo != "" {
		line += " " + s.ExtraInfo
	}
	return line
}

// renderBar draws a barWidth-wide bar, '=' filled proportionally to
// percentage and '-' empty for the rest.
func renderBar(percentage float64) string {
	if percentage < 0 {
		percentage = 0
	}
	if percentage > 100 {
		percentage = 100
	}
	filled := int(percentage / 100 * float64(barWidth))
	if filled > barWidth {
		filled = barWidth
	}
	return strings.Repeat("=", filled) + strings.Repeat("-", barWidth-filled)
}

// formatElapsed renders a duration as "MMmSSs".
func formatElapsed(d time.Duration) string {
	total := int(d.Seconds())
	return fmt.Sprintf("%02dm%02ds", total/60, total%60)
}
