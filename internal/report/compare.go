package report

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/daryltucker/vlm-bench/internal/model"
)

type groupKey struct {
	variant string
	device  model.Device
}

// Group is the set of successful results sharing a variant and device.
type Group struct {
	Variant string
	Device  model.Device
	Results []model.Result
}

// GroupResults groups successful outcomes by (variant, device). Groups are
// ordered by first appearance; results keep their outcome order.
func GroupResults(outcomes []model.Outcome) []Group {
	index := make(map[groupKey]int)
	var groups []Group
	for _, o := range outcomes {
		if !o.OK() {
			continue
		}
		r := *o.Result
		k := groupKey{variant: r.Config.Variant, device: r.Config.Device}
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			groups = append(groups, Group{Variant: k.variant, Device: k.device})
		}
		groups[i].Results = append(groups[i].Results, r)
	}
	return groups
}

// RenderComparison renders every group with at least two successful results
// side by side, followed by the raw generated texts. It returns "" when no
// group qualifies.
func RenderComparison(outcomes []model.Outcome) string {
	var buf bytes.Buffer
	for _, g := range GroupResults(outcomes) {
		if len(g.Results) < 2 {
			continue
		}
		fmt.Fprintf(&buf, "\n=== %s on %s ===\n", g.Variant, g.Device)

		table := tablewriter.NewWriter(&buf)
		table.SetHeader([]string{"Backend", "Process", "Generate", "Total", "Images/s"})
		table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
		table.SetAlignment(tablewriter.ALIGN_LEFT)
		table.SetAutoFormatHeaders(false)
		table.SetBorder(false)
		table.SetHeaderLine(false)
		table.SetNoWhiteSpace(true)
		table.SetTablePadding("    ")
		for _, r := range g.Results {
			table.Append([]string{
				r.Config.Backend,
				FormatDuration(r.PreprocessDuration),
				FormatDuration(r.GenerateDuration),
				FormatDuration(r.Total()),
				fmt.Sprintf("%.2f", Throughput(r)),
			})
		}
		table.Render()

		buf.WriteString("\nOutputs:\n")
		for _, r := range g.Results {
			fmt.Fprintf(&buf, "%s: %s\n", r.Config.Backend, strings.TrimSpace(r.Output))
		}
	}
	return buf.String()
}
