// Package dataset defines the tabular entities flowing through the pipeline
// and the join that produces per-site weekly series from the three ingested
// inputs (demand history, holiday calendar, payroll calendar).
//
// All entities are immutable once built: the modeling layer receives its own
// SiteSeries slice per site and never mutates shared state.
package dataset

import (
	"sort"
)

// Observation is one raw demand reading from the history input:
// a site, a period label ("YYYY-WW", zero-padded week), and a non-negative
// integer demand.
type Observation struct {
	Site   string
	Period string
	Demand int
}

// CalendarAttributes are the calendar-driven fields attached to one weekly
// record. ZoneWeekType, HolidayType and PayrollType are nominal categories;
// the three holiday flags are boolean.
//
// SiteZone is resolved per site through the site→zone lookup, so it is
// constant over a site's history. It still participates in encoding, where
// the constant-column rule removes it; it is kept here so results can report
// which zone a site belongs to.
type CalendarAttributes struct {
	ZoneWeekType    string `json:"zoneWeekType"`
	HolidayWeek     bool   `json:"holidayWeek"`
	PreHolidayWeek  bool   `json:"preHolidayWeek"`
	PostHolidayWeek bool   `json:"postHolidayWeek"`
	HolidayType     string `json:"holidayType"`
	PayrollType     string `json:"payrollType"`
	SiteZone        string `json:"siteZone"`
}

// WeekCalendar is one system-wide calendar row, keyed by period label.
type WeekCalendar struct {
	ZoneWeekType    string
	HolidayWeek     bool
	PreHolidayWeek  bool
	PostHolidayWeek bool
	HolidayType     string
}

// WeeklyRecord is one row of a SiteSeries: an observation with its calendar
// attributes joined on.
type WeeklyRecord struct {
	Site     string             `json:"site"`
	Period   string             `json:"period"`
	Demand   int                `json:"demand"`
	Calendar CalendarAttributes `json:"calendar"`
}

// SiteSeries is the ordered weekly history of one site. Records are sorted
// ascending by period label and the slice position is the ordinal time index:
// a contiguous 0..n-1 sequence regardless of gaps in the calendar.
type SiteSeries struct {
	Site    string
	Records []WeeklyRecord
}

// NewSiteSeries sorts the records by period label and returns the indexed
// series. Lexicographic order on "YYYY-WW" labels is chronological because
// week numbers are zero-padded. A single-record series is valid.
func NewSiteSeries(site string, records []WeeklyRecord) SiteSeries {
	sorted := make([]WeeklyRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Period < sorted[j].Period
	})
	return SiteSeries{Site: site, Records: sorted}
}

// TimeIndex returns the ordinal time index of the series as a float slice,
// ready to use as a regressor.
func (s SiteSeries) TimeIndex() []float64 {
	idx := make([]float64, len(s.Records))
	for i := range idx {
		idx[i] = float64(i)
	}
	return idx
}

// Demand returns the observed demand series as floats, aligned with TimeIndex.
func (s SiteSeries) Demand() []float64 {
	out := make([]float64, len(s.Records))
	for i, r := range s.Records {
		out[i] = float64(r.Demand)
	}
	return out
}

// Zone returns the site's resolved zone category. Empty for an empty series.
func (s SiteSeries) Zone() string {
	if len(s.Records) == 0 {
		return ""
	}
	return s.Records[0].Calendar.SiteZone
}
