package storage

import (
	"context"
	"encoding/json"
	"math"
	"sync"
	"testing"
	"time"
)

func sampleSnapshot(runID string) Snapshot {
	return Snapshot{
		RunID:       runID,
		GeneratedAt: time.Now(),
		EvalYear:    "2024",
		Sites: []SiteResult{
			{
				Site:           "lyon",
				Zone:           "A",
				Weeks:          104,
				TrendIntercept: 100,
				TrendSlope:     1.5,
				InSample:       ScoreSet{R2: 0.98, MAE: 3.2, MAPE: 0.04},
				Holdout:        ScoreSet{R2: 0.95, MAE: 4.1, MAPE: 0.05},
			},
		},
		Coefficients: []CoefficientEntry{
			{Site: "lyon", Variable: "const", Coef: 0.2},
			{Site: "lyon", Variable: "holiday_week", Coef: 48.5},
		},
		WideColumns: []string{"const", "holiday_week"},
	}
}

func TestMemoryStore_PutLatest(t *testing.T) {
	store := NewMemoryStore()

	_, found, err := store.Latest(context.Background())
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if found {
		t.Error("Latest() found = true on empty store, want false")
	}

	snap := sampleSnapshot("run-1")
	if err := store.Put(context.Background(), snap); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, found, err := store.Latest(context.Background())
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if !found {
		t.Fatal("Latest() found = false after Put, want true")
	}
	if got.RunID != "run-1" {
		t.Errorf("RunID = %q, want %q", got.RunID, "run-1")
	}
	if got.EvalYear != "2024" {
		t.Errorf("EvalYear = %q, want %q", got.EvalYear, "2024")
	}
	if len(got.Sites) != 1 || got.Sites[0].Site != "lyon" {
		t.Errorf("Sites = %+v, want one result for lyon", got.Sites)
	}
}

func TestMemoryStore_Put_EmptyRunID(t *testing.T) {
	store := NewMemoryStore()

	err := store.Put(context.Background(), Snapshot{})
	if err == nil {
		t.Error("Put() with empty run id should fail")
	}
}

func TestMemoryStore_Put_Replaces(t *testing.T) {
	store := NewMemoryStore()

	if err := store.Put(context.Background(), sampleSnapshot("run-1")); err != nil {
		t.Fatalf("Put() first snapshot error = %v", err)
	}
	if err := store.Put(context.Background(), sampleSnapshot("run-2")); err != nil {
		t.Fatalf("Put() second snapshot error = %v", err)
	}

	got, found, err := store.Latest(context.Background())
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if !found {
		t.Fatal("Latest() found = false, want true")
	}
	if got.RunID != "run-2" {
		t.Errorf("RunID = %q after replace, want %q", got.RunID, "run-2")
	}
}

func TestMemoryStore_CanceledContext(t *testing.T) {
	store := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := store.Put(ctx, sampleSnapshot("run-1")); err == nil {
		t.Error("Put() with canceled context should fail")
	}
	if _, _, err := store.Latest(ctx); err == nil {
		t.Error("Latest() with canceled context should fail")
	}
}

func TestMemoryStore_Concurrent(t *testing.T) {
	store := NewMemoryStore()

	numGoroutines := 50
	numOperations := 50

	var wg sync.WaitGroup

	wg.Add(numGoroutines)
	for i := range numGoroutines {
		go func(id int) {
			defer wg.Done()
			for j := range numOperations {
				snap := sampleSnapshot("run-concurrent")
				snap.Sites[0].Weeks = id*numOperations + j
				if err := store.Put(context.Background(), snap); err != nil {
					t.Errorf("Concurrent Put() error = %v", err)
				}
			}
		}(i)
	}

	wg.Add(numGoroutines)
	for range numGoroutines {
		go func() {
			defer wg.Done()
			for range numOperations {
				if _, _, err := store.Latest(context.Background()); err != nil {
					t.Errorf("Concurrent Latest() error = %v", err)
				}
			}
		}()
	}

	wg.Wait()

	snap, found, err := store.Latest(context.Background())
	if err != nil {
		t.Errorf("Final Latest() error = %v", err)
	}
	if !found {
		t.Error("Final Latest() found = false after concurrent operations")
	}
	if snap.RunID != "run-concurrent" {
		t.Errorf("Final snapshot has run id %q, want %q", snap.RunID, "run-concurrent")
	}
}

func TestMemoryStore_Clear(t *testing.T) {
	store := NewMemoryStore()

	if store.Clear() {
		t.Error("Clear() on empty store returned true, want false")
	}

	if err := store.Put(context.Background(), sampleSnapshot("run-1")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if !store.Clear() {
		t.Error("Clear() returned false, want true for stored snapshot")
	}

	_, found, _ := store.Latest(context.Background())
	if found {
		t.Error("Latest() found = true after Clear, want false")
	}
}

func TestMemoryStoreWithTTL_Expiration(t *testing.T) {
	ttl := 100 * time.Millisecond
	cleanupInterval := 50 * time.Millisecond
	store := NewMemoryStoreWithTTL(ttl, cleanupInterval)
	defer store.Stop()

	if err := store.Put(context.Background(), sampleSnapshot("run-ttl")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	_, found, _ := store.Latest(context.Background())
	if !found {
		t.Fatal("Snapshot should exist immediately after Put")
	}

	time.Sleep(ttl + cleanupInterval + 50*time.Millisecond)

	_, found, _ = store.Latest(context.Background())
	if found {
		t.Error("Snapshot should be removed after TTL expiration")
	}
}

func TestMemoryStoreWithTTL_Stop(t *testing.T) {
	store := NewMemoryStoreWithTTL(time.Minute, time.Second)

	if err := store.Put(context.Background(), sampleSnapshot("run-stop")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	done := make(chan struct{})
	go func() {
		store.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop() did not complete within timeout")
	}

	// Calling Stop again should be safe.
	store.Stop()
}

func TestMemoryStore_StopWithoutTTL(t *testing.T) {
	store := NewMemoryStore()
	store.Stop()

	if err := store.Put(context.Background(), sampleSnapshot("run-1")); err != nil {
		t.Errorf("Put() after Stop() error = %v", err)
	}
}

func TestMemoryStoreWithTTL_PanicOnInvalidTTL(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewMemoryStoreWithTTL should panic with zero TTL")
		}
	}()

	NewMemoryStoreWithTTL(0, time.Second)
}

func TestValue_JSONRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		value   float64
		encoded string
	}{
		{"finite", 1.5, "1.5"},
		{"zero", 0, "0"},
		{"negative", -48.25, "-48.25"},
		{"nan", math.NaN(), "null"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(Value(tt.value))
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}
			if string(data) != tt.encoded {
				t.Errorf("Marshal() = %s, want %s", data, tt.encoded)
			}

			var decoded Value
			if err := json.Unmarshal(data, &decoded); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			got := float64(decoded)
			if math.IsNaN(tt.value) {
				if !math.IsNaN(got) {
					t.Errorf("Unmarshal() = %v, want NaN", got)
				}
				return
			}
			if got != tt.value {
				t.Errorf("Unmarshal() = %v, want %v", got, tt.value)
			}
		})
	}
}

func TestSnapshot_JSONPreservesNaN(t *testing.T) {
	nan := Value(math.NaN())
	snap := sampleSnapshot("run-nan")
	snap.Sites[0].TrendIntercept = nan
	snap.Sites[0].TrendSlope = nan
	snap.Sites[0].RankDeficient = true
	snap.Sites[0].InSample = ScoreSet{R2: nan, MAE: nan, MAPE: nan}
	snap.Coefficients = []CoefficientEntry{{Site: "lyon", Variable: "const", Coef: nan}}

	data, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var decoded Snapshot
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	site := decoded.Sites[0]
	if !math.IsNaN(float64(site.TrendSlope)) {
		t.Errorf("TrendSlope = %v after round trip, want NaN", site.TrendSlope)
	}
	if !math.IsNaN(float64(site.InSample.R2)) {
		t.Errorf("InSample.R2 = %v after round trip, want NaN", site.InSample.R2)
	}
	if !site.RankDeficient {
		t.Error("RankDeficient flag lost in round trip")
	}
	if !math.IsNaN(float64(decoded.Coefficients[0].Coef)) {
		t.Errorf("Coef = %v after round trip, want NaN", decoded.Coefficients[0].Coef)
	}
}
