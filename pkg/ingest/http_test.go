package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPSource_Fetch(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/history":
			w.Write([]byte(`{"rows":[
				{"site":"lyon","period":"2024-01","demand":120},
				{"site":"lyon","period":"2024-02","demand":"98,7"}
			]}`))
		case "/calendar":
			w.Write([]byte(`{"rows":[
				{"period":"2024-01","zone_week_type":"A+B","holiday_week":true,"holiday_type":"NOEL"},
				{"period":"2024-02","holiday_week":"VRAI"}
			]}`))
		case "/payroll":
			w.Write([]byte(`{"rows":[{"period":"2024-01","payroll_week_type":"S_PAYE"}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	src := &HTTPSource{
		HistoryURL:  server.URL + "/history",
		CalendarURL: server.URL + "/calendar",
		PayrollURL:  server.URL + "/payroll",
		RowsPath:    "rows",
		Headers:     map[string]string{"Authorization": "Bearer token123"},
	}

	inputs, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	if gotAuth != "Bearer token123" {
		t.Errorf("Authorization header = %q, want Bearer token123", gotAuth)
	}
	if len(inputs.History) != 2 {
		t.Fatalf("len(History) = %d, want 2", len(inputs.History))
	}
	if inputs.History[0].Demand != 120 || inputs.History[1].Demand != 98 {
		t.Errorf("demands = [%d %d], want [120 98]", inputs.History[0].Demand, inputs.History[1].Demand)
	}
	if !inputs.Calendar["2024-01"].HolidayWeek {
		t.Error("Calendar[2024-01].HolidayWeek = false, want true (JSON bool)")
	}
	if !inputs.Calendar["2024-02"].HolidayWeek {
		t.Error("Calendar[2024-02].HolidayWeek = false, want true (string spelling)")
	}
	if inputs.Payroll["2024-01"] != "S_PAYE" {
		t.Errorf("Payroll[2024-01] = %q, want S_PAYE", inputs.Payroll["2024-01"])
	}
}

func TestHTTPSource_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	src := &HTTPSource{
		HistoryURL:  server.URL,
		CalendarURL: server.URL,
		PayrollURL:  server.URL,
	}
	if _, err := src.Fetch(context.Background()); err == nil {
		t.Error("Fetch() with 500 response, want error")
	}
}

func TestHTTPSource_BadRowsPath(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[]}`))
	}))
	defer server.Close()

	src := &HTTPSource{
		HistoryURL:  server.URL,
		CalendarURL: server.URL,
		PayrollURL:  server.URL,
		RowsPath:    "rows",
	}
	if _, err := src.Fetch(context.Background()); err == nil {
		t.Error("Fetch() with missing rows path, want error")
	}
}
