package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/kestrel-forensics/kestrel/internal/model"
)

const (
	pgpBeginMarker     = "-----BEGIN PGP SIGNED MESSAGE-----"
	pgpSignatureMarker = "-----BEGIN PGP SIGNATURE-----"

	// rawContentLimit bounds the diagnostic snippet attached to a
	// conversation that failed to decode.
	rawContentLimit = 500
)

var (
	convMarkerRe = regexp.MustCompile(`\*\*\*\* conversationId: ([^\s]+) \*\*\*\*`)

	// trailingCommaRe matches a comma immediately before a closing
	// bracket/brace, an observed corruption in real exports.
	trailingCommaRe = regexp.MustCompile(`,(\s*[}\]])`)

	// controlCharRe matches C0/C1 control characters except the
	// whitespace JSON tolerates inside strings we want to keep.
	controlCharRe = regexp.MustCompile("[\\x00-\\x08\\x0b\\x0c\\x0e-\\x1f\\x7f-\\x9f]")

	// brokenQuoteRe matches a quoted key whose quoted value lost its
	// closing quote before a trailing comma.
	brokenQuoteRe = regexp.MustCompile(`"([^"]+)"\s*:\s*"([^"]*),\s*$`)
)

// twitterDoc mirrors the JSON object that follows each conversation
// delimiter in the export.
type twitterDoc struct {
	DMConversation struct {
		Messages []struct {
			MessageCreate *struct {
				ID          string   `json:"id"`
				SenderID    string   `json:"senderId"`
				RecipientID string   `json:"recipientId"`
				Text        string   `json:"text"`
				CreatedAt   string   `json:"createdAt"`
				MediaURLs   []string `json:"mediaUrls"`
				URLs        []struct {
					URL      string `json:"url"`
					Expanded string `json:"expanded"`
				} `json:"urls"`
			} `json:"messageCreate"`
		} `json:"messages"`
	} `json:"dmConversation"`
}

// TwitterParser parses PGP-wrapped Twitter DM export files.
type TwitterParser struct{}

func NewTwitterParser() *TwitterParser { return &TwitterParser{} }

func (p *TwitterParser) PlatformName() string     { return "Twitter DM" }
func (p *TwitterParser) FileExtensions() []string { return []string{".txt"} }
func (p *TwitterParser) FileDescription() string  { return "Twitter DM Export Files" }

func (p *TwitterParser) CanParse(path string, sample []byte) bool {
	return bytes.Contains(sample, []byte(pgpBeginMarker)) &&
		bytes.Contains(sample, []byte("**** conversationId:")) &&
		bytes.Contains(sample, []byte(`"dmConversation"`))
}

// ParseFile parses the export. A corrupted conversation unit never aborts
// the file: it becomes an error conversation and parsing continues with
// the next unit.
func (p *TwitterParser) ParseFile(path string) (*ParseResult, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{Path: path, Reason: "read file", Err: err}
	}
	content, err := decodeText(raw)
	if err != nil {
		return nil, &ParseError{Path: path, Reason: "decode file", Err: err}
	}
	lines := splitLines(content)

	// Locate the PGP envelope. Without both markers no partial file is
	// usable.
	beginLine, sigLine := -1, -1
	for i, line := range lines {
		if strings.Contains(line, pgpBeginMarker) && beginLine == -1 {
			beginLine = i
		} else if strings.Contains(line, pgpSignatureMarker) {
			sigLine = i
			break
		}
	}
	if beginLine == -1 || sigLine == -1 {
		return nil, &ParseError{Path: path, Reason: "no PGP signed content found"}
	}

	body := strings.Join(lines[beginLine:sigLine], "\n")
	conversations := p.parseConversations(body, beginLine, lines)
	return &ParseResult{Conversations: conversations, Lines: lines}, nil
}

func (p *TwitterParser) parseConversations(body string, startLine int, lines []string) []model.Conversation {
	var conversations []model.Conversation

	for _, match := range convMarkerRe.FindAllStringSubmatchIndex(body, -1) {
		convID := body[match[2]:match[3]]
		markerOffset := match[0]
		lineNum := startLine + strings.Count(body[:markerOffset], "\n") + 1

		span := extractJSONSpan(body, markerOffset)
		if span == "" {
			continue
		}

		doc, err := decodeConversation(span)
		if err != nil {
			conversations = append(conversations, model.Conversation{
				ID:           convID,
				Participants: []string{"Parse Error"},
				Messages:     []model.Message{},
				LineNumber:   lineNum,
				Metadata: map[string]string{
					model.MetaError:      err.Error(),
					model.MetaRawContent: snippet(span, rawContentLimit),
				},
			})
			continue
		}

		conversations = append(conversations, p.buildConversation(convID, doc, lineNum, lines))
	}

	return conversations
}

// extractJSONSpan returns the JSON object following the delimiter at
// offset, located by depth-counted brace scanning. The embedded JSON
// cannot be assumed well-formed, so a structural scan stands in for a
// parser-friendly wrapper.
func extractJSONSpan(body string, offset int) string {
	start := strings.Index(body[offset:], "{")
	if start == -1 {
		return ""
	}
	start += offset

	depth := 0
	for i := start; i < len(body); i++ {
		switch body[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return body[start : i+1]
			}
		}
	}
	// Truncated span: return the unbalanced remainder so the caller can
	// attach it as a diagnostic.
	return body[start:]
}

// decodeConversation cleans and decodes one conversation's JSON span,
// applying a targeted repair pass before giving up.
func decodeConversation(span string) (*twitterDoc, error) {
	cleaned := cleanJSON(span)

	var doc twitterDoc
	if err := json.Unmarshal([]byte(cleaned), &doc); err != nil {
		repaired := repairJSON(cleaned)
		if err2 := json.Unmarshal([]byte(repaired), &doc); err2 != nil {
			return nil, fmt.Errorf("decode conversation JSON: %w", err)
		}
	}
	return &doc, nil
}

// cleanJSON strips control characters and trailing commas, both observed
// forms of corruption in real exports.
func cleanJSON(s string) string {
	s = trailingCommaRe.ReplaceAllString(s, "$1")
	return controlCharRe.ReplaceAllString(s, "")
}

// repairJSON re-balances quote-count parity faults on fragile fields, the
// typical case being an id value truncated before its closing quote with a
// trailing comma left behind.
func repairJSON(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if strings.Count(line, `"`)%2 == 0 {
			continue
		}
		if !strings.HasSuffix(strings.TrimSpace(line), ",") {
			continue
		}
		if m := brokenQuoteRe.FindStringSubmatch(line); m != nil {
			indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
			lines[i] = fmt.Sprintf(`%s"%s" : "%s",`, indent, m[1], m[2])
		}
	}
	return strings.Join(lines, "\n")
}

func (p *TwitterParser) buildConversation(convID string, doc *twitterDoc, lineNum int, lines []string) model.Conversation {
	var participants []string
	seen := make(map[string]bool)
	addParticipant := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			participants = append(participants, id)
		}
	}

	var ids []string
	for _, entry := range doc.DMConversation.Messages {
		if entry.MessageCreate != nil && entry.MessageCreate.ID != "" {
			ids = append(ids, entry.MessageCreate.ID)
		}
	}
	lineOf := indexMessageLines(lines, ids)

	var messages []model.Message
	for _, entry := range doc.DMConversation.Messages {
		mc := entry.MessageCreate
		if mc == nil {
			continue
		}

		addParticipant(mc.SenderID)
		addParticipant(mc.RecipientID)

		ts, err := time.Parse(time.RFC3339, mc.CreatedAt)
		if err != nil {
			// A bad timestamp should not drop the message.
			ts = time.Now().UTC()
		}

		msg := model.NewMessage(mc.ID, mc.SenderID, mc.RecipientID, mc.Text, ts, lineOf[mc.ID])
		if len(mc.MediaURLs) > 0 {
			msg.MediaURLs = append(msg.MediaURLs, mc.MediaURLs...)
		}
		for _, u := range mc.URLs {
			if u.Expanded != "" {
				msg.URLs = append(msg.URLs, u.Expanded)
			} else {
				msg.URLs = append(msg.URLs, u.URL)
			}
		}
		messages = append(messages, msg)
	}

	sortMessages(messages)

	if messages == nil {
		messages = []model.Message{}
	}
	return model.Conversation{
		ID:           convID,
		Participants: participants,
		Messages:     messages,
		LineNumber:   lineNum,
	}
}

// indexMessageLines resolves every message id to the first 1-based line
// containing it in a single pass over the raw line list, instead of a
// per-message rescan.
func indexMessageLines(lines []string, ids []string) map[string]int {
	lineOf := make(map[string]int, len(ids))
	pending := make(map[string]bool, len(ids))
	for _, id := range ids {
		pending[id] = true
	}

	for i, line := range lines {
		if len(pending) == 0 {
			break
		}
		for id := range pending {
			if strings.Contains(line, id) {
				lineOf[id] = i + 1
				delete(pending, id)
			}
		}
	}
	return lineOf
}

// PrimarySender uses the default most-messages heuristic; Twitter exports
// carry no owner hint beyond message volume.
func (p *TwitterParser) PrimarySender(conv model.Conversation) string {
	if len(conv.Messages) == 0 {
		return ""
	}
	return mostProlificSender(conv)
}
