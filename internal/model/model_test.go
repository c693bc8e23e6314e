package model

import (
	"testing"
	"time"
)

func TestNewMessage_SlicesNeverNil(t *testing.T) {
	m := NewMessage("1", "a", "b", "hi", time.Now(), 1)
	if m.MediaURLs == nil || m.URLs == nil {
		t.Error("media/url slices must be empty, never nil")
	}
	if len(m.MediaURLs) != 0 || len(m.URLs) != 0 {
		t.Error("expected empty slices on a fresh message")
	}
}

func TestConversation_Failed(t *testing.T) {
	ok := Conversation{ID: "c1"}
	if ok.Failed() {
		t.Error("conversation without error metadata reported as failed")
	}
	bad := Conversation{ID: "c2", Metadata: map[string]string{MetaError: "decode failed"}}
	if !bad.Failed() {
		t.Error("conversation with error metadata not reported as failed")
	}
}

func TestConversation_SenderCounts(t *testing.T) {
	c := Conversation{
		Messages: []Message{
			NewMessage("1", "a", "b", "x", time.Unix(1, 0), 1),
			NewMessage("2", "a", "b", "y", time.Unix(2, 0), 2),
			NewMessage("3", "b", "a", "z", time.Unix(3, 0), 3),
		},
	}
	counts := c.SenderCounts()
	if counts["a"] != 2 || counts["b"] != 1 {
		t.Errorf("sender counts = %v, want a:2 b:1", counts)
	}
}

func TestConversation_FirstTimestamp(t *testing.T) {
	var empty Conversation
	if !empty.FirstTimestamp().IsZero() {
		t.Error("empty conversation should report the zero time")
	}

	ts := time.Date(2023, 1, 2, 3, 4, 5, 0, time.UTC)
	c := Conversation{Messages: []Message{NewMessage("1", "a", "b", "x", ts, 1)}}
	if !c.FirstTimestamp().Equal(ts) {
		t.Errorf("first timestamp = %v, want %v", c.FirstTimestamp(), ts)
	}
}
