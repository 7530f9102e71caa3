package export

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/rooftop-cli/internal/stats"
)

var regionHeader = []string{
	"region_code", "region", "municipalities",
	"a_total_count", "a_total_area_km2", "a_useful_area_km2", "a_avg_count", "a_top_code", "a_top_name", "a_top_count",
	"b_total_count", "b_total_area_km2", "b_useful_area_km2", "b_avg_count", "b_top_code", "b_top_name", "b_top_count",
}

func regionRecord(r stats.RegionalRollup) []string {
	rec := []string{r.RegionCode, r.RegionName, strconv.Itoa(r.Municipalities)}
	for _, p := range []stats.ProviderRollup{r.A, r.B} {
		rec = append(rec,
			strconv.FormatInt(p.TotalCount, 10),
			num(km2(p.TotalAreaKm2)),
			num(km2(p.UsefulAreaKm2)),
			num(m2(p.AvgCount)),
			p.Top.Code,
			p.Top.Name,
			strconv.FormatInt(p.Top.Count, 10),
		)
	}
	return rec
}

// WriteXLSX writes a workbook with a municipalities sheet and a regions sheet.
func WriteXLSX(path string, rows []stats.MunicipalityStats, regions []stats.RegionalRollup) error {
	f := xlsx.NewFile()

	muni, err := f.AddSheet("municipalities")
	if err != nil {
		return eris.Wrap(err, "export: add municipalities sheet")
	}
	addRow(muni, Header, Header)
	for _, m := range sortForReport(rows) {
		addRow(muni, Header, Record(m))
	}

	reg, err := f.AddSheet("regions")
	if err != nil {
		return eris.Wrap(err, "export: add regions sheet")
	}
	addRow(reg, regionHeader, regionHeader)
	for _, r := range regions {
		addRow(reg, regionHeader, regionRecord(r))
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "export: save %s", path)
	}
	return nil
}

// addRow writes numeric cells as numbers so spreadsheets can sum them.
// Code and name columns stay text.
func addRow(sheet *xlsx.Sheet, header, values []string) {
	row := sheet.AddRow()
	for i, v := range values {
		cell := row.AddCell()
		if !textColumn(header[i]) {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				cell.SetFloat(f)
				continue
			}
		}
		cell.SetString(v)
	}
}

func textColumn(name string) bool {
	return strings.HasSuffix(name, "code") || strings.HasSuffix(name, "name") ||
		strings.HasSuffix(name, "provider") || name == "run_id"
}
