package assignment

import (
	"fmt"
	"io"
	"text/tabwriter"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// titler renders column headers title-cased, not shouted caps.
var titler = cases.Title(language.English)

// PrintSummary writes a per-iteration capacity-gap report to w.
func PrintSummary(w io.Writer, s *RunSummary) {
	tw := tabwriter.NewWriter(w, 0, 2, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
		titler.String("iteration"), titler.String("requests searched"),
		titler.String("assigned"), titler.String("arrived"),
		titler.String("capacity gap pct"), titler.String("bumped"))
	for _, it := range s.Iterations {
		fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%.2f\t%d\n",
			it.Iteration, it.RequestsSearched, it.Assigned, it.Arrived, it.CapacityGapPct, it.Bumped)
	}
	tw.Flush()
}
