// Package parser implements format detection and parsing of third-party
// message-export files into the normalized conversation model. One parser
// exists per supported platform; the Registry picks the right one by
// sniffing file content.
//
// Fault handling follows two tiers: unreadable files and unrecognized
// formats fail the whole parse with a *ParseError, while a single corrupted
// conversation unit or row degrades to an error conversation or a skipped
// row so the rest of the export survives.
package parser

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/kestrel-forensics/kestrel/internal/model"
)

// ErrUnrecognizedFormat is returned when no registered parser accepts a
// file's content sample.
var ErrUnrecognizedFormat = errors.New("no suitable parser for file")

// ParseError is a fatal failure for an entire file: unreadable input or
// content the parser cannot treat as its format at all.
type ParseError struct {
	Path   string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("parse %s: %s", e.Path, e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ParseResult is the outcome of one ParseFile call.
type ParseResult struct {
	Conversations []model.Conversation
	// Lines is the decoded raw line list kept for provenance citation;
	// message and conversation line numbers are 1-based indexes into it.
	Lines []string
	// SkippedRows counts data rows dropped for missing or unparseable
	// columns. Corrupted conversation units are not counted here; they
	// surface as error conversations.
	SkippedRows int
}

// Parser is the capability set every format parser implements.
type Parser interface {
	// PlatformName is the stable display identity, e.g. "Twitter DM".
	PlatformName() string
	// FileExtensions lists supported extensions including the dot.
	FileExtensions() []string
	// FileDescription is the human-readable file-dialog label.
	FileDescription() string
	// CanParse reports whether this parser can handle the file. It is a
	// pure predicate over a bounded content sample which may be truncated
	// mid-rune; it must not read the file itself.
	CanParse(path string, sample []byte) bool
	// ParseFile reads the whole file and reconstructs conversations.
	ParseFile(path string) (*ParseResult, error)
	// PrimarySender infers which participant is the account owner. The
	// inference is best-effort: export formats do not label the owner.
	PrimarySender(conv model.Conversation) string
}

// primarySender applies the shared owner-disambiguation heuristics, in
// order: a caller-configured owner id, the sender of the chronologically
// first message when exactly two participants exist, then whichever
// participant authored the most messages.
func primarySender(conv model.Conversation, owner string) string {
	if len(conv.Messages) == 0 {
		return ""
	}

	if owner != "" {
		for _, m := range conv.Messages {
			if m.SenderID == owner {
				return owner
			}
		}
	}

	if len(conv.Participants) == 2 {
		return conv.Messages[0].SenderID
	}

	return mostProlificSender(conv)
}

// mostProlificSender returns the participant with the most authored
// messages, breaking ties by identifier order for determinism.
func mostProlificSender(conv model.Conversation) string {
	counts := conv.SenderCounts()
	senders := make([]string, 0, len(counts))
	for s := range counts {
		senders = append(senders, s)
	}
	sort.Strings(senders)

	best := ""
	bestCount := -1
	for _, s := range senders {
		if counts[s] > bestCount {
			best = s
			bestCount = counts[s]
		}
	}
	return best
}

// sortMessages orders messages ascending by timestamp, keeping the
// original encounter order for ties.
func sortMessages(msgs []model.Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})
}

// sortConversations orders conversations by the timestamp of their
// earliest message; error conversations (no messages) sort first.
func sortConversations(convs []model.Conversation) {
	sort.SliceStable(convs, func(i, j int) bool {
		return convs[i].FirstTimestamp().Before(convs[j].FirstTimestamp())
	})
}

// conversationID derives a deterministic conversation id from a participant
// set: the sorted join of its members. Identical participant sets always
// collapse to the same id regardless of row order.
func conversationID(participants []string) string {
	sorted := make([]string, len(participants))
	copy(sorted, participants)
	sort.Strings(sorted)
	return strings.Join(sorted, "-")
}

// snippet bounds a diagnostic payload for recoverable-error metadata.
func snippet(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
