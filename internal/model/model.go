// Package model holds the normalized conversation model shared by all
// format parsers and their consumers. Values are built once per parse and
// never mutated afterwards.
package model

import "time"

// Message is one delivered unit of communication, normalized across
// platforms. Text may be a synthesized placeholder (e.g. "[Media]") for
// media-only messages.
type Message struct {
	ID          string    `json:"id"`
	SenderID    string    `json:"sender_id"`
	RecipientID string    `json:"recipient_id"`
	Text        string    `json:"text"`
	Timestamp   time.Time `json:"timestamp"`
	// LineNumber is the 1-based offset into the source file, used by
	// consumers to cite provenance.
	LineNumber int      `json:"source_line_number"`
	MediaURLs  []string `json:"media_urls"`
	URLs       []string `json:"urls"`
}

// Conversation is a reconstructed thread. Messages are ordered ascending
// by timestamp; ties keep their original encounter order.
type Conversation struct {
	ID           string    `json:"id"`
	Participants []string  `json:"participants"`
	Messages     []Message `json:"messages"`
	// LineNumber is the first line in the source file where this
	// conversation's data begins.
	LineNumber int `json:"source_line_number"`
	// Metadata carries per-format extras and recoverable-error details
	// (keys "error" and "raw_content").
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Metadata keys used by parsers.
const (
	MetaError        = "error"
	MetaRawContent   = "raw_content"
	MetaIsGroup      = "is_group"
	MetaTitle        = "title"
	MetaPlatformConv = "platform_conversation_id"
)

// NewMessage returns a Message with media/URL slices materialized, so
// consumers never see nil where the model promises an empty list.
func NewMessage(id, sender, recipient, text string, ts time.Time, line int) Message {
	return Message{
		ID:          id,
		SenderID:    sender,
		RecipientID: recipient,
		Text:        text,
		Timestamp:   ts,
		LineNumber:  line,
		MediaURLs:   []string{},
		URLs:        []string{},
	}
}

// Failed reports whether the conversation is an error placeholder produced
// when a conversation unit could not be decoded.
func (c Conversation) Failed() bool {
	return c.Metadata[MetaError] != ""
}

// SenderCounts returns the number of messages authored by each participant.
func (c Conversation) SenderCounts() map[string]int {
	counts := make(map[string]int, len(c.Participants))
	for _, m := range c.Messages {
		counts[m.SenderID]++
	}
	return counts
}

// FirstTimestamp returns the timestamp of the earliest message, or the zero
// time for an empty (error) conversation.
func (c Conversation) FirstTimestamp() time.Time {
	if len(c.Messages) == 0 {
		return time.Time{}
	}
	return c.Messages[0].Timestamp
}
