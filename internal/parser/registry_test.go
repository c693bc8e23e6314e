package parser

import (
	"strings"
	"testing"
)

func testRegistry() *Registry {
	return DefaultRegistry(Owners{})
}

func TestRegistry_AvailableParsers(t *testing.T) {
	reg := testRegistry()
	parsers := reg.AvailableParsers()
	if len(parsers) != 3 {
		t.Fatalf("expected 3 parsers, got %d", len(parsers))
	}

	// The returned slice is a copy; mutating it must not affect the
	// registry.
	parsers[0] = nil
	if reg.AvailableParsers()[0] == nil {
		t.Error("AvailableParsers leaked the internal slice")
	}
}

func TestRegistry_ParserByName(t *testing.T) {
	reg := testRegistry()

	if p := reg.ParserByName("Twitter DM"); p == nil {
		t.Error("exact name lookup failed")
	}
	if p := reg.ParserByName("kik messenger"); p == nil {
		t.Error("lookup must be case-insensitive")
	}
	if p := reg.ParserByName("SNAPCHAT"); p == nil {
		t.Error("lookup must be case-insensitive")
	}
	if p := reg.ParserByName("Signal"); p != nil {
		t.Errorf("unknown platform should return nil, got %s", p.PlatformName())
	}
}

func TestRegistry_DetectParser(t *testing.T) {
	reg := testRegistry()

	twitterPath := writeExport(t, "dms.txt", twitterFixture)
	kikPath := writeExport(t, "kik.csv", kikHeader+"\nm1,a@kik,b@kik,chat,hi,2023-05-01T10:00:00Z\n")
	snapPath := writeExport(t, "snap.csv", snapchatFixture(
		"TEXT,text,conv-1,user_a,user_b,hello,true,true,Sat Dec 24 18:37:19 UTC 2022,sm1,,,"))

	cases := []struct {
		path string
		want string
	}{
		{twitterPath, "Twitter DM"},
		{kikPath, "Kik Messenger"},
		{snapPath, "Snapchat"},
	}
	for _, tc := range cases {
		p := reg.DetectParser(tc.path)
		if p == nil {
			t.Errorf("no parser detected for %s", tc.path)
			continue
		}
		if p.PlatformName() != tc.want {
			t.Errorf("detected %s for %s, want %s", p.PlatformName(), tc.path, tc.want)
		}

		// Detection is deterministic: a second call returns the same
		// parser.
		if again := reg.DetectParser(tc.path); again != p {
			t.Errorf("detection not deterministic for %s", tc.path)
		}
	}
}

func TestRegistry_DetectParser_Unrecognized(t *testing.T) {
	reg := testRegistry()
	path := writeExport(t, "notes.txt", "shopping list\nmilk\neggs\n")
	if p := reg.DetectParser(path); p != nil {
		t.Errorf("expected nil for unrecognized content, got %s", p.PlatformName())
	}
}

func TestRegistry_DetectParser_MissingFile(t *testing.T) {
	reg := testRegistry()
	// Detection is advisory; unreadable files yield nil, not an error.
	if p := reg.DetectParser("/nonexistent/export.txt"); p != nil {
		t.Errorf("expected nil for missing file, got %s", p.PlatformName())
	}
}

func TestRegistry_FileFilters(t *testing.T) {
	filters := testRegistry().FileFilters()

	if len(filters) != 5 {
		t.Fatalf("expected 5 filters (all-supported + 3 parsers + all-files), got %d", len(filters))
	}
	first := filters[0]
	if first.Description != "All supported formats" {
		t.Errorf("first filter = %q, want All supported formats", first.Description)
	}
	if !strings.Contains(first.Pattern, "*.csv") || !strings.Contains(first.Pattern, "*.txt") {
		t.Errorf("aggregated pattern = %q, want both extensions", first.Pattern)
	}
	last := filters[len(filters)-1]
	if last.Description != "All files" || last.Pattern != "*.*" {
		t.Errorf("last filter = %+v, want All files / *.*", last)
	}
}

func TestConversationID_Deterministic(t *testing.T) {
	a := conversationID([]string{"bob", "alice"})
	b := conversationID([]string{"alice", "bob"})
	if a != b {
		t.Errorf("conversation id depends on participant order: %q vs %q", a, b)
	}
	if a != "alice-bob" {
		t.Errorf("conversation id = %q, want alice-bob", a)
	}
}

func TestDecodeText_UTF16BOM(t *testing.T) {
	// "hi" in UTF-16LE with BOM.
	raw := []byte{0xFF, 0xFE, 'h', 0x00, 'i', 0x00}
	got, err := decodeText(raw)
	if err != nil {
		t.Fatal(err)
	}
	if got != "hi" {
		t.Errorf("decoded %q, want hi", got)
	}
}

func TestDecodeText_PlainUTF8(t *testing.T) {
	got, err := decodeText([]byte("héllo"))
	if err != nil {
		t.Fatal(err)
	}
	if got != "héllo" {
		t.Errorf("decoded %q, want héllo", got)
	}
}

func TestDecodeText_Windows1252(t *testing.T) {
	// 0x93/0x94 are smart quotes in CP1252 and invalid UTF-8.
	raw := []byte{0x93, 'o', 'k', 0x94}
	got, err := decodeText(raw)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, "ok") {
		t.Errorf("decoded %q, want smart-quoted ok", got)
	}
}
