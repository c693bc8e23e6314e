// Package ingest orchestrates export processing: discovery, format
// detection, parsing, persistence, and event publishing.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kestrel-forensics/kestrel/internal/bus"
	"github.com/kestrel-forensics/kestrel/internal/model"
	"github.com/kestrel-forensics/kestrel/internal/parser"
	"github.com/kestrel-forensics/kestrel/internal/stats"
	"github.com/kestrel-forensics/kestrel/internal/store"
)

// Config holds the ingest run configuration.
type Config struct {
	CaseName   string
	Inbox      string // directory walked for export files
	SingleFile string // process a single file only
	DryRun     bool   // parse and summarize without DB writes
}

// FileResult summarizes one processed export file.
type FileResult struct {
	RunID              string               `json:"run_id"`
	Path               string               `json:"path"`
	Platform           string               `json:"platform"`
	Conversations      []model.Conversation `json:"conversations"`
	ErrorConversations int                  `json:"error_conversations"`
	SkippedRows        int                  `json:"skipped_rows"`
	Persisted          bool                 `json:"persisted"`
	Stats              stats.Stats          `json:"stats"`
}

// MessageCount sums messages across the result's conversations.
func (r FileResult) MessageCount() int {
	n := 0
	for _, c := range r.Conversations {
		n += len(c.Messages)
	}
	return n
}

// Runner orchestrates the ingest process. Store and bus are optional;
// without them the runner still parses and summarizes.
type Runner struct {
	cfg      Config
	registry *parser.Registry
	store    *store.Store
	bus      *bus.Client
	logger   *slog.Logger
}

// NewRunner creates an ingest runner.
func NewRunner(cfg Config, reg *parser.Registry, s *store.Store, b *bus.Client, logger *slog.Logger) *Runner {
	return &Runner{
		cfg:      cfg,
		registry: reg,
		store:    s,
		bus:      b,
		logger:   logger,
	}
}

// Run discovers and processes export files. Files no parser recognizes
// are logged and skipped; a parse failure on one file does not stop the
// others.
func (r *Runner) Run(ctx context.Context) ([]FileResult, error) {
	files, err := r.discoverFiles()
	if err != nil {
		return nil, fmt.Errorf("discover files: %w", err)
	}

	r.logger.Info("files discovered", "count", len(files))

	var results []FileResult
	for _, path := range files {
		select {
		case <-ctx.Done():
			return results, ctx.Err()
		default:
		}

		res, err := r.ProcessFile(ctx, path)
		if err != nil {
			r.logger.Warn("failed to process file", "path", path, "error", err)
			continue
		}
		results = append(results, *res)
	}

	total := 0
	for _, res := range results {
		total += res.MessageCount()
	}
	r.logger.Info("ingest complete",
		"files_processed", len(results),
		"messages", total,
		"dry_run", r.cfg.DryRun,
	)

	return results, nil
}

// ProcessFile detects, parses, and (when configured) persists one export
// file, then publishes an ingest event.
func (r *Runner) ProcessFile(ctx context.Context, path string) (*FileResult, error) {
	p := r.registry.DetectParser(path)
	if p == nil {
		return nil, fmt.Errorf("%s: %w", path, parser.ErrUnrecognizedFormat)
	}

	r.logger.Info("processing file", "path", path, "platform", p.PlatformName())

	parsed, err := p.ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	convs := parsed.Conversations

	res := &FileResult{
		RunID:         uuid.New().String()[:8],
		Path:          path,
		Platform:      p.PlatformName(),
		Conversations: convs,
		SkippedRows:   parsed.SkippedRows,
		Stats:         stats.Calculate(convs),
	}
	for _, c := range convs {
		if c.Failed() {
			res.ErrorConversations++
			r.logger.Warn("conversation failed to parse",
				"path", path,
				"conversation", c.ID,
				"error", c.Metadata[model.MetaError],
			)
		}
	}

	if r.store != nil && !r.cfg.DryRun {
		if _, err := r.store.WriteExport(ctx, r.cfg.CaseName, path, p.PlatformName(), convs, p.PrimarySender); err != nil {
			return nil, fmt.Errorf("persist %s: %w", path, err)
		}
		res.Persisted = true
	}

	r.publish(res)

	r.logger.Info("file processed",
		"path", path,
		"platform", res.Platform,
		"conversations", len(convs),
		"messages", res.MessageCount(),
		"errors", res.ErrorConversations,
		"skipped_rows", res.SkippedRows,
		"persisted", res.Persisted,
	)

	return res, nil
}

func (r *Runner) publish(res *FileResult) {
	if r.bus == nil {
		return
	}
	ev := bus.ExportIngested{
		RunID:              res.RunID,
		CaseName:           r.cfg.CaseName,
		Path:               res.Path,
		Platform:           res.Platform,
		Conversations:      len(res.Conversations),
		Messages:           res.MessageCount(),
		ErrorConversations: res.ErrorConversations,
		SkippedRows:        res.SkippedRows,
		Persisted:          res.Persisted,
		IngestedAt:         time.Now().UTC(),
	}
	if err := r.bus.Publish(bus.SubjectExportIngested, ev); err != nil {
		r.logger.Warn("failed to publish ingest event", "error", err)
	}
}

func (r *Runner) discoverFiles() ([]string, error) {
	if r.cfg.SingleFile != "" {
		if _, err := os.Stat(r.cfg.SingleFile); err != nil {
			return nil, fmt.Errorf("single file not found: %s", r.cfg.SingleFile)
		}
		return []string{r.cfg.SingleFile}, nil
	}

	if r.cfg.Inbox == "" {
		return nil, nil
	}

	exts := r.supportedExtensions()
	var files []string
	err := filepath.Walk(r.cfg.Inbox, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // skip errors
		}
		if !info.IsDir() && exts[strings.ToLower(filepath.Ext(path))] {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		r.logger.Warn("error walking inbox", "dir", r.cfg.Inbox, "error", err)
	}
	return files, nil
}

// supportedExtensions aggregates the registered parsers' extensions as a
// lowercase ".ext" set.
func (r *Runner) supportedExtensions() map[string]bool {
	exts := make(map[string]bool)
	for _, p := range r.registry.AvailableParsers() {
		for _, ext := range p.FileExtensions() {
			exts["."+strings.ToLower(strings.TrimPrefix(ext, "."))] = true
		}
	}
	return exts
}
