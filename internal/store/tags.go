package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kestrel-forensics/kestrel/internal/casefile"
)

// ErrTagNotAssigned is returned when removing a tag assignment that does
// not exist.
var ErrTagNotAssigned = errors.New("tag not assigned")

// TagAssignment is one tag applied to one message.
type TagAssignment struct {
	ID                uuid.UUID `json:"id"`
	ConversationKey   string    `json:"conversation_key"`
	PlatformMessageID string    `json:"platform_message_id"`
	TagName           string    `json:"tag_name"`
	Color             string    `json:"color"`
	TaggedAt          time.Time `json:"tagged_at"`
}

// SeedTags upserts the case's tag palette. Existing names keep their
// assignments and take the palette's current color and shortcut.
func (s *Store) SeedTags(ctx context.Context, tags []casefile.Tag) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, t := range tags {
		_, err := tx.Exec(ctx, `
			INSERT INTO tags (name, color, shortcut, description)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (name) DO UPDATE
			SET color = EXCLUDED.color, shortcut = EXCLUDED.shortcut, description = EXCLUDED.description`,
			t.Name, t.Color, t.Shortcut, t.Description,
		)
		if err != nil {
			return fmt.Errorf("upsert tag %s: %w", t.Name, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// AssignMessageTag tags a message, keyed by the platform-level
// conversation key and message id so assignments survive re-ingests.
func (s *Store) AssignMessageTag(ctx context.Context, conversationKey, messageID, tagName string) (uuid.UUID, error) {
	id := uuid.New()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO message_tags (id, conversation_key, platform_message_id, tag_name, tagged_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (conversation_key, platform_message_id, tag_name) DO NOTHING`,
		id, conversationKey, messageID, tagName,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("assign tag: %w", err)
	}
	return id, nil
}

// RemoveMessageTag removes one tag assignment.
func (s *Store) RemoveMessageTag(ctx context.Context, conversationKey, messageID, tagName string) error {
	ct, err := s.pool.Exec(ctx, `
		DELETE FROM message_tags
		WHERE conversation_key = $1 AND platform_message_id = $2 AND tag_name = $3`,
		conversationKey, messageID, tagName,
	)
	if err != nil {
		return fmt.Errorf("remove tag: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrTagNotAssigned
	}
	return nil
}

// ListConversationTags returns every tag assignment in a conversation.
func (s *Store) ListConversationTags(ctx context.Context, conversationKey string) ([]TagAssignment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT mt.id, mt.conversation_key, mt.platform_message_id, mt.tag_name, t.color, mt.tagged_at
		FROM message_tags mt
		JOIN tags t ON t.name = mt.tag_name
		WHERE mt.conversation_key = $1
		ORDER BY mt.tagged_at`, conversationKey,
	)
	if err != nil {
		return nil, fmt.Errorf("query tags: %w", err)
	}
	defer rows.Close()

	var out []TagAssignment
	for rows.Next() {
		var a TagAssignment
		if err := rows.Scan(&a.ID, &a.ConversationKey, &a.PlatformMessageID, &a.TagName, &a.Color, &a.TaggedAt); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ListTags returns the stored tag palette.
func (s *Store) ListTags(ctx context.Context) ([]casefile.Tag, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT name, color, shortcut, description FROM tags ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("query tag palette: %w", err)
	}
	defer rows.Close()

	var out []casefile.Tag
	for rows.Next() {
		var t casefile.Tag
		if err := rows.Scan(&t.Name, &t.Color, &t.Shortcut, &t.Description); err != nil {
			return nil, fmt.Errorf("scan tag palette: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
