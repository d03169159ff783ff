package exporter

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"

	"gamepulse/internal/aggregate"
	"gamepulse/internal/concentration"
)

// RenderSummaryTable prints the per-group concentration summary as a text
// table. Undefined concentration renders as "n/a" so a sparse group is never
// mistaken for a perfectly equal one.
func RenderSummaryTable(w io.Writer, market concentration.Result, groups []aggregate.Group, topNs []int) {
	ns := sortedTopNs(topNs)

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(w)

	header := table.Row{"Group", "Members", "Ranked", "Total", "Gini", "HHI", "Band"}
	for _, n := range ns {
		header = append(header, fmt.Sprintf("Top%d", n))
	}
	t.AppendHeader(header)

	appendResult := func(name string, members, ranked string, total float64, res concentration.Result) {
		row := table.Row{name, members, ranked, formatFloat(total)}
		if res.Defined {
			row = append(row, formatRatio(res.Gini), formatRatio(res.HHI), res.Band)
			for _, n := range ns {
				row = append(row, formatRatio(res.TopShare[n]))
			}
		} else {
			row = append(row, "n/a", "n/a", "n/a")
			for range ns {
				row = append(row, "n/a")
			}
		}
		t.AppendRow(row)
	}

	for _, group := range groups {
		appendResult(group.Key, formatInt(len(group.Members)), formatInt(len(group.Rankings)), group.Total, group.Concentration)
	}
	appendResult("market", formatInt(market.N), "", market.Total, market)

	t.Render()
}

// RenderDeltaTable prints period-over-period rank movement for one group.
func RenderDeltaTable(w io.Writer, delta aggregate.GroupDelta) {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(w)
	t.SetTitle(delta.Key)

	t.AppendHeader(table.Row{"CanonicalID", "Rank", "Change", "Value Change"})
	for _, ed := range delta.Entities {
		change := fmt.Sprintf("%+d", ed.RankChange)
		if ed.NewEntrant {
			change = "new"
		}
		t.AppendRow(table.Row{ed.CanonicalID, ed.CurrentRank, change, formatFloat(ed.Value.Absolute)})
	}
	for _, id := range delta.Departed {
		t.AppendRow(table.Row{id, "-", "departed", ""})
	}

	t.Render()
}
