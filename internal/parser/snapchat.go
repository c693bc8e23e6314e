package parser

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kestrel-forensics/kestrel/internal/model"
)

// snapchatRequired are the columns detection and header location insist on.
// The remaining expected columns (sender_username, recipient_username,
// text, is_saved, is_one_on_one, ...) are read leniently per row.
var snapchatRequired = []string{"content_type", "message_type", "conversation_id", "timestamp"}

// snapchatDetectColumns is the wider set sniffed during detection.
var snapchatDetectColumns = []string{
	"content_type", "message_type", "conversation_id",
	"sender_username", "recipient_username", "text",
	"is_saved", "is_one_on_one", "timestamp",
}

// snapchatTimeLayout matches timestamps like "Sat Dec 24 18:37:19 UTC 2022".
const snapchatTimeLayout = "Mon Jan 2 15:04:05 MST 2006"

// SnapchatParser parses Snapchat CSV exports. The export prepends a
// free-text legend before the header row and is frequently saved in a
// non-UTF-8 encoding, so both header location and decoding are defensive.
type SnapchatParser struct {
	owner  string
	logger *slog.Logger
}

// NewSnapchatParser builds the parser. owner is the caller-supplied
// account owner identifier; the export itself never states one.
func NewSnapchatParser(owner string) *SnapchatParser {
	return &SnapchatParser{owner: owner, logger: slog.Default()}
}

func (p *SnapchatParser) PlatformName() string     { return "Snapchat" }
func (p *SnapchatParser) FileExtensions() []string { return []string{".csv"} }
func (p *SnapchatParser) FileDescription() string  { return "Snapchat CSV Export" }

// CanParse accepts when most of the characteristic columns appear in the
// sample; the legend means the header may sit anywhere in the prefix.
func (p *SnapchatParser) CanParse(path string, sample []byte) bool {
	text := string(sample)
	found := 0
	for _, col := range snapchatDetectColumns {
		if strings.Contains(text, col) {
			found++
		}
	}
	return found >= 7
}

func (p *SnapchatParser) ParseFile(path string) (*ParseResult, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{Path: path, Reason: "read file", Err: err}
	}
	content, err := decodeText(raw)
	if err != nil {
		return nil, &ParseError{Path: path, Reason: "decode file", Err: err}
	}
	lines := splitLines(content)

	headerIdx, colIdx := findCSVHeader(lines, snapchatRequired)
	if headerIdx == -1 {
		return nil, &ParseError{Path: path, Reason: "no Snapchat CSV header found"}
	}

	grouped := newConversationGrouper()
	rowNum := 0
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
		rowNum++

		sender, okS := fieldAt(row, colIdx, "sender_username")
		recipient, okR := fieldAt(row, colIdx, "recipient_username")
		timestampStr, okTS := fieldAt(row, colIdx, "timestamp")
		if !okS || !okR || !okTS {
			p.logger.Warn("skipping row with missing column", "platform", p.PlatformName(), "line", i+1)
			skipped++
			continue
		}

		ts, err := time.Parse(snapchatTimeLayout, timestampStr)
		if err != nil {
			ts = time.Now().UTC()
		}

		text, _ := fieldAt(row, colIdx, "text")
		if text == "" {
			contentType, _ := fieldAt(row, colIdx, "content_type")
			text = mediaPlaceholder(contentType)
		}

		msgID, _ := fieldAt(row, colIdx, "message_id")
		if msgID == "" {
			// The export omits message ids for some row types; a
			// synthetic sequence index keeps ids unique per file.
			msgID = strconv.Itoa(rowNum)
		}

		msg := model.NewMessage(msgID, sender, recipient, text, ts, i+1)
		if mediaID, _ := fieldAt(row, colIdx, "media_id"); mediaID != "" {
			// Media ids exist in the export but the URLs do not.
			msg.MediaURLs = append(msg.MediaURLs, "[Media content]")
		}

		// Group-chat member lists join the participant set without
		// affecting the grouping key.
		var extra []string
		if members, _ := fieldAt(row, colIdx, "group_member_usernames"); members != "" {
			for _, m := range strings.Split(members, ";") {
				if m = strings.TrimSpace(m); m != "" {
					extra = append(extra, m)
				}
			}
		}

		key := []string{sender, recipient}
		grouped.add(key, extra, msg, i+1)

		groupKey := conversationID(key)
		if platformConv, _ := fieldAt(row, colIdx, "conversation_id"); platformConv != "" {
			grouped.setMetadata(groupKey, model.MetaPlatformConv, platformConv)
		}
		if oneOnOne, ok := fieldAt(row, colIdx, "is_one_on_one"); ok {
			grouped.setMetadata(groupKey, model.MetaIsGroup, strconv.FormatBool(!strings.EqualFold(oneOnOne, "true")))
		}
		if title, _ := fieldAt(row, colIdx, "conversation_title"); title != "" {
			grouped.setMetadata(groupKey, model.MetaTitle, title)
		}
	}

	return &ParseResult{Conversations: grouped.conversations(), Lines: lines, SkippedRows: skipped}, nil
}

// PrimarySender applies the shared heuristics with the configured owner.
// There is no hard-coded fallback identifier: when no owner is configured
// the chronological and volume heuristics decide.
func (p *SnapchatParser) PrimarySender(conv model.Conversation) string {
	return primarySender(conv, p.owner)
}

// mediaPlaceholder synthesizes a display description for media-only rows.
func mediaPlaceholder(contentType string) string {
	switch contentType {
	case "ExternalMedia":
		return "[Media]"
	case "AudioSnap":
		return "[Audio Message]"
	case "SilentSnap":
		return "[Silent Snap]"
	case "VoiceNote":
		return "[Voice Note]"
	case "Sticker":
		return "[Sticker]"
	case "":
		return "[Unknown]"
	default:
		return "[" + contentType + "]"
	}
}
