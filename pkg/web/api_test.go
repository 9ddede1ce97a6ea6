package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/dbehnke/oqpsk-sink/pkg/database"
	"github.com/dbehnke/oqpsk-sink/pkg/metrics"
	"github.com/dbehnke/oqpsk-sink/pkg/pipeline"
	"github.com/dbehnke/oqpsk-sink/pkg/sink"
)

type fakeStatus struct{}

func (fakeStatus) Session() string       { return "session-xyz" }
func (fakeStatus) Uptime() time.Duration { return 90 * time.Second }
func (fakeStatus) Stats() pipeline.Stats { return pipeline.Stats{Samples: 1000, Frames: 3} }

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.NewDB(database.Config{Path: filepath.Join(t.TempDir(), "web.db")}, nil)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func get(t *testing.T, h http.HandlerFunc, target string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	w := httptest.NewRecorder()
	h(w, req)
	return w.Result()
}

func TestAPI_Status(t *testing.T) {
	prev := CurrentBuildInfo()
	SetBuildInfo(BuildInfo{Version: "1.2.3", Commit: "abc123", BuildTime: "today"})
	defer SetBuildInfo(prev)

	api := NewAPI(nil, fakeStatus{}, nil, nil)
	resp := get(t, api.HandleStatus, "/api/status")
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if result["status"] != "running" {
		t.Errorf("Unexpected status field: %v", result["status"])
	}
	if result["session"] != "session-xyz" {
		t.Errorf("Unexpected session: %v", result["session"])
	}
	if result["uptime_seconds"] != float64(90) {
		t.Errorf("Unexpected uptime: %v", result["uptime_seconds"])
	}
	if result["version"] != "1.2.3" || result["commit"] != "abc123" {
		t.Errorf("Unexpected build info: %v %v", result["version"], result["commit"])
	}
}

func TestAPI_MethodNotAllowed(t *testing.T) {
	api := NewAPI(nil, nil, nil, nil)
	handlers := map[string]http.HandlerFunc{
		"/api/status": api.HandleStatus,
		"/api/stats":  api.HandleStats,
		"/api/frames": api.HandleFrames,
		"/api/nodes":  api.HandleNodes,
	}
	for path, h := range handlers {
		t.Run(path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, path, nil)
			w := httptest.NewRecorder()
			h(w, req)
			if w.Code != http.StatusMethodNotAllowed {
				t.Errorf("Expected 405, got %d", w.Code)
			}
		})
	}
}

func TestAPI_Stats(t *testing.T) {
	t.Run("unavailable", func(t *testing.T) {
		resp := get(t, NewAPI(nil, nil, nil, nil).HandleStats, "/api/stats")
		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("Expected 503, got %d", resp.StatusCode)
		}
	})

	t.Run("snapshot", func(t *testing.T) {
		c := metrics.NewCollector()
		c.Synced()
		c.Desync(sink.ReasonInvalidSymbol)
		c.FrameEmitted(10)

		resp := get(t, NewAPI(nil, nil, c, nil).HandleStats, "/api/stats")
		defer func() { _ = resp.Body.Close() }()

		var snap metrics.Snapshot
		if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
			t.Fatalf("Failed to decode: %v", err)
		}
		if snap.Syncs != 1 || snap.Frames != 1 || snap.Desyncs["invalid_symbol"] != 1 {
			t.Errorf("Unexpected snapshot: %+v", snap)
		}
	})
}

func seed(t *testing.T, db *database.DB, n int) {
	t.Helper()
	repo := database.NewFrameRepository(db.GetDB())
	base := time.Now().Add(-time.Hour)
	for i := 0; i < n; i++ {
		f := &database.ReceivedFrame{
			FrameID:    fmt.Sprintf("f%d", i),
			Length:     i,
			Parsed:     true,
			SrcAddr:    fmt.Sprintf("1aaa/%04x", i%2),
			ReceivedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := repo.Create(f); err != nil {
			t.Fatalf("Failed to seed: %v", err)
		}
	}
	nodes := database.NewNodeRepository(db.GetDB())
	if err := nodes.Touch("1aaa/0001", 0x1AAA, 1, true, time.Now()); err != nil {
		t.Fatalf("Failed to seed node: %v", err)
	}
}

func TestAPI_Frames(t *testing.T) {
	db := newTestDB(t)
	seed(t, db, 8)
	api := NewAPI(nil, nil, nil, db)

	tests := []struct {
		name      string
		target    string
		status    int
		wantLen   int
		wantFirst string
	}{
		{"default limit", "/api/frames", http.StatusOK, 8, "f7"},
		{"limit", "/api/frames?limit=3", http.StatusOK, 3, "f7"},
		{"by source", "/api/frames?source=1aaa/0000", http.StatusOK, 4, "f6"},
		{"paged", "/api/frames?page=2&limit=3", http.StatusOK, 3, "f4"},
		{"bad limit", "/api/frames?limit=abc", http.StatusBadRequest, 0, ""},
		{"zero limit", "/api/frames?limit=0", http.StatusBadRequest, 0, ""},
		{"bad page", "/api/frames?page=0", http.StatusBadRequest, 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := get(t, api.HandleFrames, tt.target)
			defer func() { _ = resp.Body.Close() }()

			if resp.StatusCode != tt.status {
				t.Fatalf("Expected status %d, got %d", tt.status, resp.StatusCode)
			}
			if tt.status != http.StatusOK {
				return
			}
			var frames []database.ReceivedFrame
			if err := json.NewDecoder(resp.Body).Decode(&frames); err != nil {
				t.Fatalf("Failed to decode: %v", err)
			}
			if len(frames) != tt.wantLen {
				t.Fatalf("Expected %d frames, got %d", tt.wantLen, len(frames))
			}
			if frames[0].FrameID != tt.wantFirst {
				t.Errorf("Expected first %s, got %s", tt.wantFirst, frames[0].FrameID)
			}
		})
	}
}

func TestAPI_FramesPaginationHeader(t *testing.T) {
	db := newTestDB(t)
	seed(t, db, 5)
	resp := get(t, NewAPI(nil, nil, nil, db).HandleFrames, "/api/frames?page=1&limit=2")
	if got := resp.Header.Get("X-Total-Count"); got != "5" {
		t.Errorf("Expected X-Total-Count 5, got %q", got)
	}
}

func TestAPI_NoDatabase(t *testing.T) {
	api := NewAPI(nil, nil, nil, nil)
	for _, h := range []http.HandlerFunc{api.HandleFrames, api.HandleNodes} {
		resp := get(t, h, "/")
		var result []interface{}
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			t.Fatalf("Expected empty JSON array: %v", err)
		}
		if len(result) != 0 {
			t.Errorf("Expected empty result, got %v", result)
		}
	}
}

func TestAPI_Nodes(t *testing.T) {
	db := newTestDB(t)
	seed(t, db, 1)
	resp := get(t, NewAPI(nil, nil, nil, db).HandleNodes, "/api/nodes")
	defer func() { _ = resp.Body.Close() }()

	var nodes []database.Node
	if err := json.NewDecoder(resp.Body).Decode(&nodes); err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if len(nodes) != 1 || nodes[0].Address != "1aaa/0001" {
		t.Errorf("Unexpected nodes: %+v", nodes)
	}
}

func TestParseLimit(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"", defaultFrameLimit, false},
		{"10", 10, false},
		{"100000", maxFrameLimit, false},
		{"-1", 0, true},
		{"x", 0, true},
	}
	for _, tt := range tests {
		got, err := parseLimit(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("parseLimit(%q) = %d, %v", tt.in, got, err)
		}
	}
}
