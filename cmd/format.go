package main

import (
	"io"
	"text/tabwriter"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/rooftop-cli/internal/aggregate"
	"github.com/sells-group/rooftop-cli/internal/containment"
	"github.com/sells-group/rooftop-cli/internal/postgis"
	"github.com/sells-group/rooftop-cli/internal/stats"
)

// printer groups digits in counts and areas.
var printer = message.NewPrinter(language.English)

// formatRegions writes one line per region with both providers' totals.
func formatRegions(out io.Writer, regions []stats.RegionalRollup) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	_, _ = printer.Fprintln(w, "REGION\tMUNICIPALITIES\tA COUNT\tA KM²\tA TOP\tB COUNT\tB KM²\tB TOP\t")
	for _, r := range regions {
		_, _ = printer.Fprintf(w, "%s\t%d\t%d\t%.2f\t%s\t%d\t%.2f\t%s\t\n",
			r.RegionName,
			r.Municipalities,
			r.A.TotalCount, r.A.TotalAreaKm2, r.A.Top.Name,
			r.B.TotalCount, r.B.TotalAreaKm2, r.B.Top.Name,
		)
	}
	_ = w.Flush()
}

// formatProfiles writes what the policy learned about each provider.
func formatProfiles(out io.Writer, profiles []containment.Profile) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = printer.Fprintln(w, "PROVIDER\tFOOTPRINTS\tCENTROID INDEX")
	for _, p := range profiles {
		_, _ = printer.Fprintf(w, "%s\t%d\t%t\n", p.Provider, p.Size, p.Indexed)
	}
	_ = w.Flush()
}

// formatDegradations lists every degraded pair.
func formatDegradations(out io.Writer, ds []aggregate.Degradation) {
	if len(ds) == 0 {
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = printer.Fprintln(w, "CODE\tNAME\tPROVIDER\tREASON\tCLASS")
	for _, d := range ds {
		_, _ = printer.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", d.Code, d.Name, d.Provider, d.Reason, d.Class)
	}
	_ = w.Flush()
}

// formatStatus writes the PostGIS table counts.
func formatStatus(out io.Writer, st postgis.Status) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = printer.Fprintf(w, "boundaries\t%d\t(%d invalid)\n", st.Boundaries, st.InvalidBoundaries)
	for _, t := range st.Buildings {
		_, _ = printer.Fprintf(w, "%s\t%d\t(%.1f%% with centroid)\n", t.Table, t.Rows, 100*t.CentroidCoverage())
	}
	_, _ = printer.Fprintf(w, "results\t%d\t\n", st.Results)
	_ = w.Flush()
}
