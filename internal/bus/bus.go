// Package bus publishes ingest events over NATS so downstream viewers
// and dashboards can react to newly processed exports.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// SubjectExportIngested is the NATS subject for completed ingests.
const SubjectExportIngested = "casework.export.ingested"

// ExportIngested is emitted after an export has been parsed and, when a
// database is configured, persisted.
type ExportIngested struct {
	RunID              string    `json:"run_id"`
	CaseName           string    `json:"case_name"`
	Path               string    `json:"path"`
	Platform           string    `json:"platform"`
	Conversations      int       `json:"conversations"`
	Messages           int       `json:"messages"`
	ErrorConversations int       `json:"error_conversations"`
	SkippedRows        int       `json:"skipped_rows"`
	Persisted          bool      `json:"persisted"`
	IngestedAt         time.Time `json:"ingested_at"`
}

type Client struct {
	conn *nats.Conn
}

func NewClient(ctx context.Context, url, token string, logger *slog.Logger) (*Client, error) {
	opts := []nats.Option{
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	return &Client{conn: nc}, nil
}

func (c *Client) Publish(subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return c.conn.Publish(subject, payload)
}

func (c *Client) Close() {
	c.conn.Close()
}
