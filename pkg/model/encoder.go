// Package model implements the per-site decomposition: a linear trend over
// the ordinal time index, a calendar-effect fit on the detrended residual,
// and the recombined prediction.
package model

import (
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/sitecast/sitecast/pkg/dataset"
)

// Intercept is the variable name of the design matrix intercept column.
const Intercept = "const"

// Design is a numeric design matrix with stable column names. The first
// column is always the intercept.
type Design struct {
	Names []string
	X     *mat.Dense
}

// nominalAttr couples an attribute name with its per-record accessor.
// The attribute order here fixes the column order of every design matrix.
type nominalAttr struct {
	name  string
	value func(dataset.CalendarAttributes) string
}

type boolAttr struct {
	name  string
	value func(dataset.CalendarAttributes) bool
}

var nominalAttrs = []nominalAttr{
	{"zone_week_type", func(c dataset.CalendarAttributes) string { return c.ZoneWeekType }},
	{"holiday_type", func(c dataset.CalendarAttributes) string { return c.HolidayType }},
	{"payroll_type", func(c dataset.CalendarAttributes) string { return c.PayrollType }},
	{"site_zone", func(c dataset.CalendarAttributes) string { return c.SiteZone }},
}

var boolAttrs = []boolAttr{
	{"holiday_week", func(c dataset.CalendarAttributes) bool { return c.HolidayWeek }},
	{"pre_holiday_week", func(c dataset.CalendarAttributes) bool { return c.PreHolidayWeek }},
	{"post_holiday_week", func(c dataset.CalendarAttributes) bool { return c.PostHolidayWeek }},
}

// EncodeCalendar one-hot encodes the calendar attributes of a site series
// into a design matrix with an intercept column prepended.
//
// For each nominal attribute the levels observed within this series are
// sorted alphabetically, the first becomes the reference and is dropped, and
// each remaining level emits one 0/1 column named "<attr>_<level>". Boolean
// flags emit a single 0/1 column named after the attribute. Columns that are
// constant over the whole series are dropped (a flag never raised, a nominal
// attribute with one observed level, the per-site zone). The result is fully
// deterministic given the observed attribute values, which keeps coefficient
// exports diffable across runs.
func EncodeCalendar(series dataset.SiteSeries) Design {
	n := len(series.Records)
	if n == 0 {
		return Design{Names: []string{Intercept}, X: mat.NewDense(1, 1, []float64{1})}
	}

	type column struct {
		name   string
		values []float64
	}
	var cols []column

	appendIfVarying := func(name string, values []float64) {
		first := values[0]
		for _, v := range values[1:] {
			if v != first {
				cols = append(cols, column{name: name, values: values})
				return
			}
		}
	}

	for _, attr := range boolAttrs {
		values := make([]float64, n)
		for i, r := range series.Records {
			if attr.value(r.Calendar) {
				values[i] = 1
			}
		}
		appendIfVarying(attr.name, values)
	}

	for _, attr := range nominalAttrs {
		for _, level := range observedLevels(series, attr.value)[1:] {
			values := make([]float64, n)
			for i, r := range series.Records {
				if attr.value(r.Calendar) == level {
					values[i] = 1
				}
			}
			appendIfVarying(attr.name+"_"+level, values)
		}
	}

	names := make([]string, 0, len(cols)+1)
	names = append(names, Intercept)
	x := mat.NewDense(n, len(cols)+1, nil)
	for i := range n {
		x.Set(i, 0, 1)
	}
	for j, col := range cols {
		names = append(names, col.name)
		for i, v := range col.values {
			x.Set(i, j+1, v)
		}
	}

	return Design{Names: names, X: x}
}

// observedLevels returns the sorted distinct levels of a nominal attribute
// within the series. The first returned level is the reference.
func observedLevels(series dataset.SiteSeries, value func(dataset.CalendarAttributes) string) []string {
	seen := make(map[string]struct{})
	for _, r := range series.Records {
		seen[value(r.Calendar)] = struct{}{}
	}
	levels := make([]string, 0, len(seen))
	for level := range seen {
		levels = append(levels, level)
	}
	sort.Strings(levels)
	return levels
}
