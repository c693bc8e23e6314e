// Package store persists ingested exports to Postgres so tagging and
// review outlive the parse call.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// EnsureSchema creates the tables if they do not exist. The tool runs on
// analyst workstations without a migration pipeline, so the schema ships
// with the binary.
func (s *Store) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS exports (
			id UUID PRIMARY KEY,
			case_name TEXT NOT NULL DEFAULT '',
			path TEXT NOT NULL,
			platform TEXT NOT NULL,
			conversation_count INT NOT NULL,
			message_count INT NOT NULL,
			error_count INT NOT NULL,
			ingested_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS conversations (
			id UUID PRIMARY KEY,
			export_id UUID NOT NULL REFERENCES exports(id) ON DELETE CASCADE,
			conversation_key TEXT NOT NULL,
			platform TEXT NOT NULL,
			participants TEXT[] NOT NULL,
			primary_sender TEXT NOT NULL DEFAULT '',
			source_line INT NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT '',
			metadata JSONB NOT NULL DEFAULT '{}'
		)`,
		`CREATE INDEX IF NOT EXISTS conversations_key_idx ON conversations (conversation_key)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id UUID PRIMARY KEY,
			conversation_id UUID NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			platform_message_id TEXT NOT NULL,
			sender_id TEXT NOT NULL,
			recipient_id TEXT NOT NULL,
			body TEXT NOT NULL,
			sent_at TIMESTAMPTZ NOT NULL,
			source_line INT NOT NULL,
			media_urls TEXT[] NOT NULL DEFAULT '{}',
			urls TEXT[] NOT NULL DEFAULT '{}'
		)`,
		`CREATE INDEX IF NOT EXISTS messages_conversation_idx ON messages (conversation_id, sent_at)`,
		`CREATE TABLE IF NOT EXISTS tags (
			name TEXT PRIMARY KEY,
			color TEXT NOT NULL,
			shortcut TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS message_tags (
			id UUID PRIMARY KEY,
			conversation_key TEXT NOT NULL,
			platform_message_id TEXT NOT NULL,
			tag_name TEXT NOT NULL REFERENCES tags(name) ON DELETE CASCADE,
			tagged_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (conversation_key, platform_message_id, tag_name)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
