package parser

import (
	"encoding/csv"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/kestrel-forensics/kestrel/internal/model"
)

// kikColumns are the columns a Kik CSV export must carry.
var kikColumns = []string{"msg_id", "sender_jid", "receiver_jid", "chat_type", "msg", "sent_at"}

// KikParser parses Kik Messenger CSV exports. The export is a flat log of
// one row per message event with no conversation boundaries; conversations
// are reconstructed from the unordered {sender, receiver} pair.
type KikParser struct {
	owner  string
	logger *slog.Logger
}

// NewKikParser builds the parser. owner is the caller-supplied account
// owner identifier (may be empty) used by the primary-sender heuristics.
func NewKikParser(owner string) *KikParser {
	return &KikParser{owner: owner, logger: slog.Default()}
}

func (p *KikParser) PlatformName() string     { return "Kik Messenger" }
func (p *KikParser) FileExtensions() []string { return []string{".csv"} }
func (p *KikParser) FileDescription() string  { return "Kik Messenger CSV Export" }

func (p *KikParser) CanParse(path string, sample []byte) bool {
	text := string(sample)
	for _, col := range kikColumns {
		if !strings.Contains(text, col) {
			return false
		}
	}
	return true
}

func (p *KikParser) ParseFile(path string) (*ParseResult, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{Path: path, Reason: "read file", Err: err}
	}
	content, err := decodeText(raw)
	if err != nil {
		return nil, &ParseError{Path: path, Reason: "decode file", Err: err}
	}
	lines := splitLines(content)

	headerIdx, colIdx := findCSVHeader(lines, kikColumns)
	if headerIdx == -1 {
		return nil, &ParseError{Path: path, Reason: "no Kik CSV header found"}
	}

	grouped := newConversationGrouper()
	skipped := 0

	for i := headerIdx + 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "" {
			continue
		}
		row, err := parseCSVRow(lines[i])
		if err != nil {
			p.logger.Warn("skipping unparseable row", "platform", p.PlatformName(), "line", i+1, "error", err)
			skipped++
			continue
		}

		sender, okS := fieldAt(row, colIdx, "sender_jid")
		receiver, okR := fieldAt(row, colIdx, "receiver_jid")
		msgID, okID := fieldAt(row, colIdx, "msg_id")
		text, okT := fieldAt(row, colIdx, "msg")
		sentAt, okTS := fieldAt(row, colIdx, "sent_at")
		if !okS || !okR || !okID || !okT || !okTS {
			p.logger.Warn("skipping row with missing column", "platform", p.PlatformName(), "line", i+1)
			skipped++
			continue
		}

		msg := model.NewMessage(msgID, sender, receiver, text, parseISOTimestamp(sentAt), i+1)
		grouped.add([]string{sender, receiver}, nil, msg, i+1)
	}

	return &ParseResult{Conversations: grouped.conversations(), Lines: lines, SkippedRows: skipped}, nil
}

// PrimarySender applies the shared heuristics with the configured owner.
// The two-party "first chronological sender" step is a directionality
// assumption, not ground truth; treat the result as best-effort.
func (p *KikParser) PrimarySender(conv model.Conversation) string {
	return primarySender(conv, p.owner)
}

// parseISOTimestamp parses ISO-8601 timestamps with an optional Z suffix,
// falling back to "now" rather than dropping the message.
func parseISOTimestamp(s string) time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts
		}
	}
	return time.Now().UTC()
}

// findCSVHeader scans forward for the first line carrying every required
// column name with a plausible comma count. Some exports prepend a
// free-text legend, so line 1 cannot be assumed to be the header.
func findCSVHeader(lines []string, required []string) (int, map[string]int) {
	for i, line := range lines {
		ok := true
		for _, col := range required {
			if !strings.Contains(line, col) {
				ok = false
				break
			}
		}
		if !ok || strings.Count(line, ",") < len(required)-1 {
			continue
		}

		fields, err := parseCSVRow(line)
		if err != nil {
			continue
		}
		colIdx := make(map[string]int, len(fields))
		for j, name := range fields {
			colIdx[strings.TrimSpace(name)] = j
		}
		return i, colIdx
	}
	return -1, nil
}

// parseCSVRow parses a single CSV line. The export formats here keep one
// row per line, which lets line numbers map 1:1 onto rows for provenance.
func parseCSVRow(line string) ([]string, error) {
	r := csv.NewReader(strings.NewReader(line))
	r.FieldsPerRecord = -1
	return r.Read()
}

// fieldAt returns the named column from a row, reporting absence when the
// header lacks the column or the row is too short.
func fieldAt(row []string, colIdx map[string]int, name string) (string, bool) {
	idx, ok := colIdx[name]
	if !ok || idx >= len(row) {
		return "", false
	}
	return row[idx], true
}

// conversationGrouper accumulates rows into conversations keyed by the
// unordered participant set. It is local to one ParseFile call; no state
// survives the call.
type conversationGrouper struct {
	order     []string
	messages  map[string][]model.Message
	members   map[string][]string
	seen      map[string]map[string]bool
	firstLine map[string]int
	extras    map[string]map[string]string
}

func newConversationGrouper() *conversationGrouper {
	return &conversationGrouper{
		messages:  make(map[string][]model.Message),
		members:   make(map[string][]string),
		seen:      make(map[string]map[string]bool),
		firstLine: make(map[string]int),
		extras:    make(map[string]map[string]string),
	}
}

// add records a message under the grouping key derived from participants.
// extraParticipants (e.g. group members) join the participant set without
// affecting the grouping key.
func (g *conversationGrouper) add(participants, extraParticipants []string, msg model.Message, line int) {
	key := conversationID(participants)

	if _, ok := g.messages[key]; !ok {
		g.order = append(g.order, key)
		g.seen[key] = make(map[string]bool)
		g.firstLine[key] = line
	}
	g.messages[key] = append(g.messages[key], msg)

	for _, id := range participants {
		g.addMember(key, id)
	}
	for _, id := range extraParticipants {
		g.addMember(key, id)
	}
}

func (g *conversationGrouper) addMember(key, id string) {
	if id == "" || g.seen[key][id] {
		return
	}
	g.seen[key][id] = true
	g.members[key] = append(g.members[key], id)
}

// setMetadata attaches format extras to the conversation for key.
func (g *conversationGrouper) setMetadata(key, name, value string) {
	if g.extras[key] == nil {
		g.extras[key] = make(map[string]string)
	}
	g.extras[key][name] = value
}

// conversations materializes the grouped rows: messages sorted by
// timestamp within each conversation, conversations sorted by earliest
// message.
func (g *conversationGrouper) conversations() []model.Conversation {
	convs := make([]model.Conversation, 0, len(g.order))
	for _, key := range g.order {
		msgs := g.messages[key]
		sortMessages(msgs)
		convs = append(convs, model.Conversation{
			ID:           key,
			Participants: g.members[key],
			Messages:     msgs,
			LineNumber:   g.firstLine[key],
			Metadata:     g.extras[key],
		})
	}
	sortConversations(convs)
	return convs
}
