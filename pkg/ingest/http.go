package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"github.com/sitecast/sitecast/pkg/dataset"
)

// HTTPSource fetches the three inputs from REST endpoints returning JSON.
//
// Each endpoint must return an array of row objects, either at the document
// root or under RowsPath (gjson syntax). Field names match the CSV column
// names; booleans may be JSON booleans or the upstream string spellings.
//
// Example history response:
//
//	{"rows": [{"site": "lyon", "period": "2024-01", "demand": 120}, ...]}
type HTTPSource struct {
	HistoryURL  string
	CalendarURL string
	PayrollURL  string

	// RowsPath locates the row array within each response. Empty means the
	// response body itself is the array.
	RowsPath string

	// Headers are added to every request, e.g. an Authorization token.
	Headers map[string]string

	// HTTPClient is optional; if nil a default client with timeout is used.
	HTTPClient *http.Client
}

func (s *HTTPSource) Name() string { return "http" }

// Fetch retrieves and parses the three endpoints sequentially.
func (s *HTTPSource) Fetch(ctx context.Context) (*Inputs, error) {
	if s.HistoryURL == "" || s.CalendarURL == "" || s.PayrollURL == "" {
		return nil, fmt.Errorf("ingest: http source requires history, calendar and payroll URLs")
	}

	inputs := &Inputs{
		Calendar: make(map[string]dataset.WeekCalendar),
		Payroll:  make(map[string]string),
	}

	history, err := s.fetchRows(ctx, s.HistoryURL)
	if err != nil {
		return nil, err
	}
	for _, row := range history {
		demand, err := parseDemand(row.Get("demand").String())
		if err != nil {
			return nil, fmt.Errorf("ingest: history row: %w", err)
		}
		inputs.History = append(inputs.History, dataset.Observation{
			Site:   row.Get("site").String(),
			Period: row.Get("period").String(),
			Demand: demand,
		})
	}

	calendar, err := s.fetchRows(ctx, s.CalendarURL)
	if err != nil {
		return nil, err
	}
	for _, row := range calendar {
		period := row.Get("period").String()
		if _, seen := inputs.Calendar[period]; seen {
			continue
		}
		inputs.Calendar[period] = dataset.WeekCalendar{
			ZoneWeekType:    row.Get("zone_week_type").String(),
			HolidayWeek:     jsonBool(row.Get("holiday_week")),
			PreHolidayWeek:  jsonBool(row.Get("pre_holiday_week")),
			PostHolidayWeek: jsonBool(row.Get("post_holiday_week")),
			HolidayType:     row.Get("holiday_type").String(),
		}
	}

	payroll, err := s.fetchRows(ctx, s.PayrollURL)
	if err != nil {
		return nil, err
	}
	for _, row := range payroll {
		period := row.Get("period").String()
		if _, seen := inputs.Payroll[period]; seen {
			continue
		}
		inputs.Payroll[period] = row.Get("payroll_week_type").String()
	}

	return inputs, nil
}

func (s *HTTPSource) fetchRows(ctx context.Context, url string) ([]gjson.Result, error) {
	cli := s.HTTPClient
	if cli == nil {
		cli = &http.Client{Timeout: 30 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("ingest: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range s.Headers {
		req.Header.Set(k, v)
	}

	resp, err := cli.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ingest: fetch %q: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("ingest: %q returned status %d: %s", url, resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ingest: read %q response: %w", url, err)
	}

	doc := gjson.ParseBytes(body)
	if s.RowsPath != "" {
		doc = doc.Get(s.RowsPath)
	}
	if !doc.Exists() || !doc.IsArray() {
		return nil, fmt.Errorf("ingest: %q response has no row array at path %q", url, s.RowsPath)
	}
	return doc.Array(), nil
}

// jsonBool accepts JSON booleans, numbers and the upstream string spellings.
func jsonBool(r gjson.Result) bool {
	switch r.Type {
	case gjson.True:
		return true
	case gjson.String:
		return parseBool(r.String())
	case gjson.Number:
		return r.Float() != 0
	default:
		return false
	}
}
