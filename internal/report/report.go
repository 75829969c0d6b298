/*
PURPOSE:
  Turns an ordered list of outcomes into human-readable reports:
  the per-configuration table, the images/s throughput figure, the
  cross-backend comparison and a short summary.

REQUIREMENTS:
  User-specified:
  - One table row per outcome; failures print a single error line and
    never shift the alignment of later rows.
  - Throughput = 1 / preprocess seconds, 0 for a zero duration.
  - Comparison groups successful results by (variant, device) and only
    shows groups with two or more results. Any variant names are allowed.

  Implementation-discovered:
  - Column widths must be computed from display width, not byte length
    (backend and variant names are user supplied).

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine/run.go, internal/cli (report, demo)
  - Consumes: internal/model

ERROR HANDLING:
  - None. Pure functions over values.

RELATED FILES:
  - internal/report/compare.go
*/

package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/daryltucker/vlm-bench/internal/model"
)

var tableHeader = []string{"Backend", "Variant", "Device", "Load Time", "Process Time", "Generate Time", "Total Time"}

// minWidths keeps the timing columns stable across runs with short values.
var minWidths = []int{10, 8, 6, 15, 15, 15, 15}

// Throughput returns images per second derived from the preprocess phase.
func Throughput(r model.Result) float64 {
	s := r.PreprocessDuration.Seconds()
	if s > 0 {
		return 1 / s
	}
	return 0
}

// FormatDuration renders d rounded to a readable precision.
func FormatDuration(d time.Duration) string {
	switch {
	case d >= time.Second:
		return d.Round(time.Millisecond).String()
	case d >= time.Millisecond:
		return d.Round(time.Microsecond).String()
	default:
		return d.String()
	}
}

// RenderTable renders one row per outcome in the given order.
func RenderTable(outcomes []model.Outcome) string {
	rows := make([][]string, 0, len(outcomes))
	for _, o := range outcomes {
		if !o.OK() {
			rows = append(rows, nil)
			continue
		}
		r := o.Result
		rows = append(rows, []string{
			r.Config.Backend,
			r.Config.Variant,
			r.Config.Device.String(),
			FormatDuration(r.LoadDuration),
			FormatDuration(r.PreprocessDuration),
			FormatDuration(r.GenerateDuration),
			FormatDuration(r.Total()),
		})
	}

	widths := make([]int, len(tableHeader))
	copy(widths, minWidths)
	for _, row := range append([][]string{tableHeader}, rows...) {
		for i, cell := range row {
			widths[i] = max(widths[i], runewidth.StringWidth(cell))
		}
	}

	var sb strings.Builder
	writeRow(&sb, tableHeader, widths)
	total := len(widths) - 1
	for _, w := range widths {
		total += w
	}
	sb.WriteString(strings.Repeat("-", total))
	sb.WriteByte('\n')

	for i, row := range rows {
		if row == nil {
			sb.WriteString(errorLine(outcomes[i]))
			sb.WriteByte('\n')
			continue
		}
		writeRow(&sb, row, widths)
	}
	return sb.String()
}

func writeRow(sb *strings.Builder, cells []string, widths []int) {
	for i, cell := range cells {
		if i == len(cells)-1 {
			sb.WriteString(cell)
			break
		}
		sb.WriteString(runewidth.FillRight(cell, widths[i]))
		sb.WriteByte(' ')
	}
	sb.WriteByte('\n')
}

// errorLine is a single line so multi-line causes cannot break the table.
func errorLine(o model.Outcome) string {
	msg := "unknown error"
	if o.Err != nil {
		msg = fmt.Sprintf("%v: %v", o.Err.Kind(), o.Err.Cause)
	}
	msg = strings.Join(strings.Fields(msg), " ")
	return fmt.Sprintf("Error: %s: %s", o.Config, msg)
}

// Summary counts a run's outcomes.
type Summary struct {
	Attempted int
	Succeeded int
	Failed    int
	// Fastest is the successful result with the lowest total, if any.
	Fastest *model.Result
}

// Summarize computes a Summary. Ties keep the earliest result.
func Summarize(outcomes []model.Outcome) Summary {
	var s Summary
	for _, o := range outcomes {
		s.Attempted++
		if !o.OK() {
			s.Failed++
			continue
		}
		s.Succeeded++
		if s.Fastest == nil || o.Result.Total() < s.Fastest.Total() {
			s.Fastest = o.Result
		}
	}
	return s
}

func (s Summary) String() string {
	line := fmt.Sprintf("%d configurations: %d succeeded, %d failed", s.Attempted, s.Succeeded, s.Failed)
	if s.Fastest != nil {
		line += fmt.Sprintf("; fastest %s in %s", s.Fastest.Config, FormatDuration(s.Fastest.Total()))
	}
	return line
}
