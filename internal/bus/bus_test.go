package bus

import (
	"encoding/json"
	"testing"
)

func TestExportIngestedParsing(t *testing.T) {
	raw := `{
		"run_id": "3f2b8d1a",
		"case_name": "operation-lantern",
		"path": "/cases/lantern/inbox/dms.txt",
		"platform": "Twitter DM",
		"conversations": 4,
		"messages": 120,
		"error_conversations": 1,
		"skipped_rows": 0,
		"persisted": true,
		"ingested_at": "2023-05-01T10:00:00Z"
	}`

	var ev ExportIngested
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		t.Fatalf("failed to parse ExportIngested: %v", err)
	}

	if ev.CaseName != "operation-lantern" {
		t.Errorf("expected case_name 'operation-lantern', got '%s'", ev.CaseName)
	}
	if ev.Platform != "Twitter DM" {
		t.Errorf("expected platform 'Twitter DM', got '%s'", ev.Platform)
	}
	if ev.Conversations != 4 || ev.Messages != 120 || ev.ErrorConversations != 1 {
		t.Errorf("unexpected counts: %+v", ev)
	}
	if !ev.Persisted {
		t.Error("expected persisted true")
	}
}

func TestSubjectExportIngestedConstant(t *testing.T) {
	if SubjectExportIngested != "casework.export.ingested" {
		t.Errorf("expected subject 'casework.export.ingested', got '%s'", SubjectExportIngested)
	}
}
