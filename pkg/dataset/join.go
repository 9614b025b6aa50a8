package dataset

import (
	"log/slog"
	"sort"
)

// Defaults are the fallback categories applied during the join. They are
// explicit configuration, not ambient state: an unmapped site gets Zone, a
// period missing from the payroll calendar gets PayrollType, and a period
// missing from the holiday calendar entirely gets HolidayType with all flags
// false.
type Defaults struct {
	Zone        string
	PayrollType string
	HolidayType string
}

// Builder joins demand history with the holiday and payroll calendars and
// groups the result into per-site series.
type Builder struct {
	zoneMap  map[string]string
	defaults Defaults
	logger   *slog.Logger
}

// NewBuilder creates a Builder. zoneMap maps site identifier to zone category;
// sites absent from the map resolve to defaults.Zone.
func NewBuilder(zoneMap map[string]string, defaults Defaults, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{zoneMap: zoneMap, defaults: defaults, logger: logger}
}

// Build joins the three inputs and returns one indexed series per site,
// sorted by site identifier. calendar and payroll are keyed by period label;
// both joins are left joins from the history side, so every observation
// produces exactly one weekly record.
func (b *Builder) Build(history []Observation, calendar map[string]WeekCalendar, payroll map[string]string) []SiteSeries {
	bySite := make(map[string][]WeeklyRecord)
	missingCalendar := 0

	for _, obs := range history {
		attrs := b.attributesFor(obs, calendar, payroll)
		if _, ok := calendar[obs.Period]; !ok {
			missingCalendar++
		}
		bySite[obs.Site] = append(bySite[obs.Site], WeeklyRecord{
			Site:     obs.Site,
			Period:   obs.Period,
			Demand:   obs.Demand,
			Calendar: attrs,
		})
	}

	if missingCalendar > 0 {
		b.logger.Warn("observations without calendar coverage, defaults applied",
			"rows", missingCalendar,
		)
	}

	sites := make([]string, 0, len(bySite))
	for site := range bySite {
		sites = append(sites, site)
	}
	sort.Strings(sites)

	series := make([]SiteSeries, 0, len(sites))
	for _, site := range sites {
		series = append(series, NewSiteSeries(site, bySite[site]))
	}

	b.logger.Info("built dataset",
		"sites", len(series),
		"rows", len(history),
	)
	return series
}

func (b *Builder) attributesFor(obs Observation, calendar map[string]WeekCalendar, payroll map[string]string) CalendarAttributes {
	attrs := CalendarAttributes{
		HolidayType: b.defaults.HolidayType,
		PayrollType: b.defaults.PayrollType,
		SiteZone:    b.defaults.Zone,
	}

	if week, ok := calendar[obs.Period]; ok {
		attrs.ZoneWeekType = week.ZoneWeekType
		attrs.HolidayWeek = week.HolidayWeek
		attrs.PreHolidayWeek = week.PreHolidayWeek
		attrs.PostHolidayWeek = week.PostHolidayWeek
		if week.HolidayType != "" {
			attrs.HolidayType = week.HolidayType
		}
	}

	if pay, ok := payroll[obs.Period]; ok && pay != "" {
		attrs.PayrollType = pay
	}

	if zone, ok := b.zoneMap[obs.Site]; ok {
		attrs.SiteZone = zone
	}

	return attrs
}
