package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kestrel-forensics/kestrel/internal/model"
)

// ExportRecord summarizes one persisted export.
type ExportRecord struct {
	ID                uuid.UUID `json:"id"`
	CaseName          string    `json:"case_name"`
	Path              string    `json:"path"`
	Platform          string    `json:"platform"`
	ConversationCount int       `json:"conversation_count"`
	MessageCount      int       `json:"message_count"`
	ErrorCount        int       `json:"error_count"`
	IngestedAt        time.Time `json:"ingested_at"`
}

// ConversationRow is the stored shape of a conversation, without its
// messages.
type ConversationRow struct {
	ID              uuid.UUID         `json:"id"`
	ExportID        uuid.UUID         `json:"export_id"`
	ConversationKey string            `json:"conversation_key"`
	Platform        string            `json:"platform"`
	Participants    []string          `json:"participants"`
	PrimarySender   string            `json:"primary_sender"`
	SourceLine      int               `json:"source_line"`
	Error           string            `json:"error"`
	Metadata        map[string]string `json:"metadata"`
}

// WriteExport writes an export and all its conversations and messages in
// one transaction.
// Tables: exports, conversations, messages.
func (s *Store) WriteExport(ctx context.Context, caseName, path, platform string, convs []model.Conversation, primary func(model.Conversation) string) (uuid.UUID, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	messageCount := 0
	errorCount := 0
	for _, c := range convs {
		messageCount += len(c.Messages)
		if c.Failed() {
			errorCount++
		}
	}

	exportID := uuid.New()
	_, err = tx.Exec(ctx, `
		INSERT INTO exports (id, case_name, path, platform, conversation_count, message_count, error_count, ingested_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())`,
		exportID, caseName, path, platform, len(convs), messageCount, errorCount,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert export: %w", err)
	}

	for _, c := range convs {
		meta, err := json.Marshal(metadataOrEmpty(c.Metadata))
		if err != nil {
			return uuid.Nil, fmt.Errorf("encode metadata: %w", err)
		}

		convID := uuid.New()
		_, err = tx.Exec(ctx, `
			INSERT INTO conversations (id, export_id, conversation_key, platform, participants, primary_sender, source_line, error, metadata)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			convID, exportID, c.ID, platform, c.Participants, primary(c), c.LineNumber, c.Metadata[model.MetaError], meta,
		)
		if err != nil {
			return uuid.Nil, fmt.Errorf("insert conversation: %w", err)
		}

		for _, m := range c.Messages {
			_, err = tx.Exec(ctx, `
				INSERT INTO messages (id, conversation_id, platform_message_id, sender_id, recipient_id, body, sent_at, source_line, media_urls, urls)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
				uuid.New(), convID, m.ID, m.SenderID, m.RecipientID, m.Text, m.Timestamp, m.LineNumber, m.MediaURLs, m.URLs,
			)
			if err != nil {
				return uuid.Nil, fmt.Errorf("insert message: %w", err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("commit: %w", err)
	}

	return exportID, nil
}

// ListConversations returns stored conversations, newest export first.
func (s *Store) ListConversations(ctx context.Context, limit int) ([]ConversationRow, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT c.id, c.export_id, c.conversation_key, c.platform, c.participants, c.primary_sender, c.source_line, c.error, c.metadata
		FROM conversations c
		JOIN exports e ON e.id = c.export_id
		ORDER BY e.ingested_at DESC, c.conversation_key
		LIMIT $1`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	var out []ConversationRow
	for rows.Next() {
		var r ConversationRow
		var meta []byte
		if err := rows.Scan(&r.ID, &r.ExportID, &r.ConversationKey, &r.Platform, &r.Participants, &r.PrimarySender, &r.SourceLine, &r.Error, &meta); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		if err := json.Unmarshal(meta, &r.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetConversation fetches one conversation with its messages, by the
// platform-level conversation key.
func (s *Store) GetConversation(ctx context.Context, conversationKey string) (*ConversationRow, []model.Message, error) {
	var r ConversationRow
	var meta []byte
	err := s.pool.QueryRow(ctx, `
		SELECT c.id, c.export_id, c.conversation_key, c.platform, c.participants, c.primary_sender, c.source_line, c.error, c.metadata
		FROM conversations c
		JOIN exports e ON e.id = c.export_id
		WHERE c.conversation_key = $1
		ORDER BY e.ingested_at DESC
		LIMIT 1`, conversationKey,
	).Scan(&r.ID, &r.ExportID, &r.ConversationKey, &r.Platform, &r.Participants, &r.PrimarySender, &r.SourceLine, &r.Error, &meta)
	if err != nil {
		return nil, nil, fmt.Errorf("query conversation: %w", err)
	}
	if err := json.Unmarshal(meta, &r.Metadata); err != nil {
		return nil, nil, fmt.Errorf("decode metadata: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT platform_message_id, sender_id, recipient_id, body, sent_at, source_line, media_urls, urls
		FROM messages
		WHERE conversation_id = $1
		ORDER BY sent_at, source_line`, r.ID,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var msgs []model.Message
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.SenderID, &m.RecipientID, &m.Text, &m.Timestamp, &m.LineNumber, &m.MediaURLs, &m.URLs); err != nil {
			return nil, nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return &r, msgs, rows.Err()
}

// ListExports returns export summaries, newest first.
func (s *Store) ListExports(ctx context.Context, limit int) ([]ExportRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, case_name, path, platform, conversation_count, message_count, error_count, ingested_at
		FROM exports
		ORDER BY ingested_at DESC
		LIMIT $1`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query exports: %w", err)
	}
	defer rows.Close()

	var out []ExportRecord
	for rows.Next() {
		var r ExportRecord
		if err := rows.Scan(&r.ID, &r.CaseName, &r.Path, &r.Platform, &r.ConversationCount, &r.MessageCount, &r.ErrorCount, &r.IngestedAt); err != nil {
			return nil, fmt.Errorf("scan export: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func metadataOrEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
