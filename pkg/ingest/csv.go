package ingest

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/sitecast/sitecast/pkg/dataset"
)

// CSVSource reads the three inputs from local semicolon-separated files with
// a header row. Expected columns:
//
//	history:  site;period;demand
//	calendar: period;zone_week_type;holiday_week;pre_holiday_week;post_holiday_week;holiday_type
//	payroll:  period;payroll_week_type
//
// Column order is free; lookup is by header name. Extra columns are ignored.
type CSVSource struct {
	HistoryPath  string
	CalendarPath string
	PayrollPath  string

	// Separator defaults to ';' when zero.
	Separator rune
}

func (s *CSVSource) Name() string { return "csv" }

// Fetch parses the three files. The context is checked between files so a
// canceled run does not keep reading.
func (s *CSVSource) Fetch(ctx context.Context) (*Inputs, error) {
	if s.HistoryPath == "" || s.CalendarPath == "" || s.PayrollPath == "" {
		return nil, fmt.Errorf("ingest: csv source requires history, calendar and payroll paths")
	}

	inputs := &Inputs{
		Calendar: make(map[string]dataset.WeekCalendar),
		Payroll:  make(map[string]string),
	}

	if err := s.readFile(ctx, s.HistoryPath, func(get func(string) string) error {
		demand, err := parseDemand(get("demand"))
		if err != nil {
			return err
		}
		inputs.History = append(inputs.History, dataset.Observation{
			Site:   get("site"),
			Period: get("period"),
			Demand: demand,
		})
		return nil
	}); err != nil {
		return nil, err
	}

	if err := s.readFile(ctx, s.CalendarPath, func(get func(string) string) error {
		period := get("period")
		if _, seen := inputs.Calendar[period]; seen {
			return nil
		}
		inputs.Calendar[period] = dataset.WeekCalendar{
			ZoneWeekType:    get("zone_week_type"),
			HolidayWeek:     parseBool(get("holiday_week")),
			PreHolidayWeek:  parseBool(get("pre_holiday_week")),
			PostHolidayWeek: parseBool(get("post_holiday_week")),
			HolidayType:     get("holiday_type"),
		}
		return nil
	}); err != nil {
		return nil, err
	}

	if err := s.readFile(ctx, s.PayrollPath, func(get func(string) string) error {
		period := get("period")
		if _, seen := inputs.Payroll[period]; seen {
			return nil
		}
		inputs.Payroll[period] = get("payroll_week_type")
		return nil
	}); err != nil {
		return nil, err
	}

	return inputs, nil
}

// readFile streams one CSV file, calling row for each record with a
// header-name accessor.
func (s *CSVSource) readFile(ctx context.Context, path string, row func(get func(string) string) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("ingest: open %q: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = s.Separator
	if r.Comma == 0 {
		r.Comma = ';'
	}
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return fmt.Errorf("ingest: read header of %q: %w", path, err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[name] = i
	}

	line := 1
	for {
		record, err := r.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("ingest: read %q line %d: %w", path, line+1, err)
		}
		line++

		get := func(name string) string {
			i, ok := index[name]
			if !ok || i >= len(record) {
				return ""
			}
			return record[i]
		}
		if err := row(get); err != nil {
			return fmt.Errorf("ingest: %q line %d: %w", path, line, err)
		}
	}
}
