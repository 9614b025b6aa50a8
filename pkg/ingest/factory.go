package ingest

import (
	"encoding/json"
	"fmt"
)

// New creates a source from a kind and generic configuration map. This is
// the extension point for additional source types.
//
// Supported kinds:
//   - "csv":  config keys history, calendar, payroll (file paths), separator
//   - "http": config keys history, calendar, payroll (URLs), rowsPath,
//     headers (JSON object)
//
// Returns an error if kind is unknown or required keys are missing.
func New(kind string, config map[string]string) (Source, error) {
	switch kind {
	case "csv":
		return newCSV(config)
	case "http":
		return newHTTP(config)
	default:
		return nil, fmt.Errorf("ingest: unknown source kind %q (must be csv or http)", kind)
	}
}

func newCSV(config map[string]string) (Source, error) {
	src := &CSVSource{
		HistoryPath:  config["history"],
		CalendarPath: config["calendar"],
		PayrollPath:  config["payroll"],
	}
	if src.HistoryPath == "" || src.CalendarPath == "" || src.PayrollPath == "" {
		return nil, fmt.Errorf("ingest: csv source requires 'history', 'calendar' and 'payroll' config")
	}
	if sep := config["separator"]; sep != "" {
		src.Separator = rune(sep[0])
	}
	return src, nil
}

func newHTTP(config map[string]string) (Source, error) {
	src := &HTTPSource{
		HistoryURL:  config["history"],
		CalendarURL: config["calendar"],
		PayrollURL:  config["payroll"],
		RowsPath:    config["rowsPath"],
	}
	if src.HistoryURL == "" || src.CalendarURL == "" || src.PayrollURL == "" {
		return nil, fmt.Errorf("ingest: http source requires 'history', 'calendar' and 'payroll' config")
	}
	if headersJSON := config["headers"]; headersJSON != "" {
		if err := json.Unmarshal([]byte(headersJSON), &src.Headers); err != nil {
			return nil, fmt.Errorf("ingest: invalid 'headers' JSON: %w", err)
		}
	}
	return src, nil
}
