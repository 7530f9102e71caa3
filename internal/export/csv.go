package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/rooftop-cli/internal/stats"
)

// utf8BOM lets spreadsheet tools detect the encoding of accented names.
const utf8BOM = "\ufeff"

var providerHeader = []string{
	"provider", "strategy", "count", "avg_area_m2", "total_area_km2", "total_estimated",
	"total_stderr_km2", "sample_size", "upper_bound", "useful_area_km2", "density_per_km2",
	"coverage_pct", "degraded", "degrade_reason",
}

// Header is the municipality table header shared by CSV and XLSX.
var Header = func() []string {
	h := []string{"code", "municipality", "department", "region_code", "region", "subregion", "area_km2"}
	for _, prefix := range []string{"a_", "b_"} {
		for _, f := range providerHeader {
			h = append(h, prefix+f)
		}
	}
	return append(h, "diff_count", "diff_pct", "agreement_score", "run_id")
}()

func providerRecord(p stats.ProviderStats) []string {
	return []string{
		p.Provider,
		p.Strategy,
		strconv.FormatInt(p.Count, 10),
		num(m2(p.AvgAreaM2)),
		num(km2(p.TotalAreaKm2())),
		strconv.FormatBool(p.TotalAreaEstimated),
		num(km2(p.TotalAreaStdErrM2 / 1e6)),
		strconv.Itoa(p.SampleSize),
		strconv.FormatBool(p.UpperBound),
		num(km2(p.UsefulAreaKm2())),
		num(m2(p.DensityPerKm2)),
		num(km2(p.CoveragePct)),
		strconv.FormatBool(p.Degraded),
		p.DegradeReason,
	}
}

// Record renders one municipality in Header order, rounded.
func Record(m stats.MunicipalityStats) []string {
	rec := []string{m.Code, m.Name, m.DeptName, m.RegionCode, m.RegionName, m.Subregion, num(km2(m.AreaKm2))}
	rec = append(rec, providerRecord(m.A)...)
	rec = append(rec, providerRecord(m.B)...)
	return append(rec,
		strconv.FormatInt(m.DiffCount, 10),
		num(m2(m.DiffPct)),
		num(km2(m.AgreementScore)),
		m.RunID,
	)
}

// WriteCSV writes the municipality table, sorted by region then name,
// prefixed with a UTF-8 byte order mark.
func WriteCSV(w io.Writer, rows []stats.MunicipalityStats) error {
	return writeTable(w, Header, func(cw *csv.Writer) error {
		for _, m := range sortForReport(rows) {
			if err := cw.Write(Record(m)); err != nil {
				return eris.Wrapf(err, "export: write csv row %s", m.Code)
			}
		}
		return nil
	})
}

// WriteRegionsCSV writes the regional summary in rollup order, with the same
// columns as the regions sheet of the workbook.
func WriteRegionsCSV(w io.Writer, regions []stats.RegionalRollup) error {
	return writeTable(w, regionHeader, func(cw *csv.Writer) error {
		for _, r := range regions {
			if err := cw.Write(regionRecord(r)); err != nil {
				return eris.Wrapf(err, "export: write csv region %s", r.RegionCode)
			}
		}
		return nil
	})
}

func writeTable(w io.Writer, header []string, body func(*csv.Writer) error) error {
	if _, err := io.WriteString(w, utf8BOM); err != nil {
		return eris.Wrap(err, "export: write BOM")
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return eris.Wrap(err, "export: write csv header")
	}
	if err := body(cw); err != nil {
		return err
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush csv")
}
