package parser

import (
	"io"
	"os"
	"sort"
	"strings"
)

// sniffSize is how much of a file's prefix detection reads.
const sniffSize = 8192

// FileFilter is file-open-dialog metadata: a description plus a
// space-joined glob pattern ("*.csv *.txt").
type FileFilter struct {
	Description string `json:"description"`
	Pattern     string `json:"pattern"`
}

// Registry owns the set of available parsers. The parser set is an
// explicit list built at startup; registration order is detection order,
// so ambiguous samples resolve reproducibly.
type Registry struct {
	parsers []Parser
}

// NewRegistry builds a registry over the given parsers, tried in order.
func NewRegistry(parsers ...Parser) *Registry {
	return &Registry{parsers: parsers}
}

// Owners carries caller-supplied account-owner identifiers per platform.
// The export formats never label the owner, so the primary-sender
// heuristics lean on these when the case configuration provides them.
type Owners struct {
	Kik      string
	Snapchat string
}

// DefaultRegistry returns the registry with all supported platforms in
// their canonical detection order.
func DefaultRegistry(owners Owners) *Registry {
	return NewRegistry(
		NewTwitterParser(),
		NewKikParser(owners.Kik),
		NewSnapchatParser(owners.Snapchat),
	)
}

// AvailableParsers returns a copy of the parser list.
func (r *Registry) AvailableParsers() []Parser {
	out := make([]Parser, len(r.parsers))
	copy(out, r.parsers)
	return out
}

// ParserByName returns the parser whose platform name matches
// case-insensitively, or nil.
func (r *Registry) ParserByName(name string) Parser {
	for _, p := range r.parsers {
		if strings.EqualFold(p.PlatformName(), name) {
			return p
		}
	}
	return nil
}

// DetectParser samples the file's leading bytes and returns the first
// parser that accepts them, or nil. Detection is advisory: unreadable
// files yield nil rather than an error.
func (r *Registry) DetectParser(path string) Parser {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	sample := make([]byte, sniffSize)
	n, err := f.Read(sample)
	if err != nil && err != io.EOF {
		return nil
	}
	sample = sample[:n]

	for _, p := range r.parsers {
		if p.CanParse(path, sample) {
			return p
		}
	}
	return nil
}

// FileFilters aggregates file-dialog filters for all parsers, with a
// synthesized "All supported formats" entry first and "All files" last.
func (r *Registry) FileFilters() []FileFilter {
	var filters []FileFilter
	extSet := make(map[string]bool)

	for _, p := range r.parsers {
		patterns := make([]string, 0, len(p.FileExtensions()))
		for _, ext := range p.FileExtensions() {
			patterns = append(patterns, "*"+ext)
			extSet[ext] = true
		}
		filters = append(filters, FileFilter{
			Description: p.FileDescription(),
			Pattern:     strings.Join(patterns, " "),
		})
	}

	if len(extSet) > 0 {
		exts := make([]string, 0, len(extSet))
		for ext := range extSet {
			exts = append(exts, "*"+ext)
		}
		sort.Strings(exts)
		all := FileFilter{Description: "All supported formats", Pattern: strings.Join(exts, " ")}
		filters = append([]FileFilter{all}, filters...)
	}

	return append(filters, FileFilter{Description: "All files", Pattern: "*.*"})
}
