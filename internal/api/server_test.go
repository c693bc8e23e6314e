package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kestrel-forensics/kestrel/internal/ingest"
	"github.com/kestrel-forensics/kestrel/internal/parser"
)

const kikFixture = `msg_id,sender_jid,receiver_jid,chat_type,msg,sent_at
m1,alice_x7@talk.kik.com,bob_q2@talk.kik.com,chat,hey,2023-05-01T10:00:00Z
m2,bob_q2@talk.kik.com,alice_x7@talk.kik.com,chat,hi back,2023-05-01T10:01:00Z
`

func testServer() *Server {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := parser.DefaultRegistry(parser.Owners{})
	runner := ingest.NewRunner(ingest.Config{CaseName: "test-case"}, reg, nil, nil, logger)
	return NewServer(8750, reg, runner, nil)
}

func writeFixture(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestHealthEndpoint(t *testing.T) {
	srv := testServer()

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %q", body["status"])
	}
}

func TestListParsersEndpoint(t *testing.T) {
	srv := testServer()

	req := httptest.NewRequest("GET", "/api/v1/parsers", nil)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var parsers []ParserInfo
	if err := json.NewDecoder(w.Body).Decode(&parsers); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(parsers) != 3 {
		t.Fatalf("expected 3 parsers, got %d", len(parsers))
	}
	if parsers[0].Platform != "Twitter DM" {
		t.Errorf("first parser = %q, registration order must hold", parsers[0].Platform)
	}
}

func TestListFiltersEndpoint(t *testing.T) {
	srv := testServer()

	req := httptest.NewRequest("GET", "/api/v1/filters", nil)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var filters []parser.FileFilter
	if err := json.NewDecoder(w.Body).Decode(&filters); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(filters) == 0 || filters[0].Description != "All supported formats" {
		t.Errorf("filters = %+v", filters)
	}
}

func TestPreviewEndpoint(t *testing.T) {
	srv := testServer()
	path := writeFixture(t, "kik.csv", kikFixture)

	body := `{"path": "` + path + `"}`
	req := httptest.NewRequest("POST", "/api/v1/preview", strings.NewReader(body))
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp PreviewResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Platform != "Kik Messenger" {
		t.Errorf("platform = %q", resp.Platform)
	}
	if len(resp.Conversations) != 1 {
		t.Fatalf("expected 1 conversation, got %d", len(resp.Conversations))
	}
	if resp.Stats.TotalMessages != 2 {
		t.Errorf("stats total = %d, want 2", resp.Stats.TotalMessages)
	}
	if resp.SkippedRows != 0 {
		t.Errorf("skipped rows = %d, want 0 for a clean export", resp.SkippedRows)
	}
}

func TestPreviewEndpoint_SkippedRowReported(t *testing.T) {
	srv := testServer()
	path := writeFixture(t, "kik.csv", kikFixture+"m3,carol_z1@talk.kik.com\n")

	body := `{"path": "` + path + `"}`
	req := httptest.NewRequest("POST", "/api/v1/preview", strings.NewReader(body))
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp PreviewResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.SkippedRows != 1 {
		t.Errorf("skipped rows = %d, want 1 for the short row", resp.SkippedRows)
	}
	if resp.Stats.TotalMessages != 2 {
		t.Errorf("stats total = %d, want the 2 complete rows", resp.Stats.TotalMessages)
	}
}

func TestPreviewEndpoint_ExplicitParser(t *testing.T) {
	srv := testServer()
	path := writeFixture(t, "export.csv", kikFixture)

	body := `{"path": "` + path + `", "parser": "kik messenger"}`
	req := httptest.NewRequest("POST", "/api/v1/preview", strings.NewReader(body))
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestPreviewEndpoint_Unrecognized(t *testing.T) {
	srv := testServer()
	path := writeFixture(t, "notes.txt", "shopping list\n")

	body := `{"path": "` + path + `"}`
	req := httptest.NewRequest("POST", "/api/v1/preview", strings.NewReader(body))
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d", w.Code)
	}
}

func TestPreviewEndpoint_MissingPath(t *testing.T) {
	srv := testServer()

	req := httptest.NewRequest("POST", "/api/v1/preview", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestIngestEndpoint(t *testing.T) {
	srv := testServer()
	path := writeFixture(t, "kik.csv", kikFixture)

	body := `{"path": "` + path + `"}`
	req := httptest.NewRequest("POST", "/api/v1/ingest", strings.NewReader(body))
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var res ingest.FileResult
	if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if res.Platform != "Kik Messenger" || res.Persisted {
		t.Errorf("result = %+v", res)
	}
}

func TestStoreBackedRoutesWithoutDatabase(t *testing.T) {
	srv := testServer()

	routes := []struct {
		method string
		path   string
		body   string
	}{
		{"GET", "/api/v1/conversations", ""},
		{"GET", "/api/v1/conversations/alice-bob", ""},
		{"POST", "/api/v1/tags/assign", `{"conversation_id":"a-b","message_id":"m1","tag":"Evidence"}`},
		{"GET", "/api/v1/tags/alice-bob", ""},
	}
	for _, tc := range routes {
		var body io.Reader
		if tc.body != "" {
			body = strings.NewReader(tc.body)
		}
		req := httptest.NewRequest(tc.method, tc.path, body)
		w := httptest.NewRecorder()
		srv.router.ServeHTTP(w, req)

		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("%s %s: expected 503, got %d", tc.method, tc.path, w.Code)
		}
	}
}

func TestNotFoundEndpoint(t *testing.T) {
	srv := testServer()

	req := httptest.NewRequest("GET", "/nonexistent", nil)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}
