// Package casefile loads the per-case TOML configuration an analyst keeps
// next to the exports under examination: account-owner identifiers per
// platform, the tag palette, and an optional inbox directory.
//
// The owner identifiers exist because no export format labels which
// participant is the account owner; the case file is the authoritative,
// caller-supplied answer the parsers prefer over their heuristics.
package casefile

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/kestrel-forensics/kestrel/internal/parser"
)

// Case is the full case configuration.
type Case struct {
	// Name identifies the case in logs and events.
	Name string `toml:"name"`
	// Inbox optionally overrides the inbox directory watched for
	// newly dropped exports.
	Inbox string `toml:"inbox"`
	// Owners maps platform owners; keys match the [owners] table.
	Owners OwnerConfig `toml:"owners"`
	// Tags is the tag palette seeded into the store at startup.
	Tags []Tag `toml:"tags"`
}

// OwnerConfig holds per-platform account-owner identifiers.
type OwnerConfig struct {
	Kik      string `toml:"kik"`
	Snapchat string `toml:"snapchat"`
}

// Tag is one entry of the tagging palette.
type Tag struct {
	Key         string `toml:"key"`
	Name        string `toml:"name"`
	Color       string `toml:"color"`
	Shortcut    string `toml:"shortcut"`
	Description string `toml:"description"`
}

// Load reads and decodes a case file.
func Load(path string) (*Case, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read case file: %w", err)
	}
	var c Case
	if err := toml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("decode case file: %w", err)
	}
	if len(c.Tags) == 0 {
		c.Tags = DefaultTags()
	}
	return &c, nil
}

// Default returns the configuration used when no case file is given: no
// owners, the default tag palette.
func Default() *Case {
	return &Case{Tags: DefaultTags()}
}

// ParserOwners converts the case owners into the registry's option type.
func (c *Case) ParserOwners() parser.Owners {
	return parser.Owners{
		Kik:      c.Owners.Kik,
		Snapchat: c.Owners.Snapchat,
	}
}

// DefaultTags is the built-in tag palette applied when a case file does
// not define its own.
func DefaultTags() []Tag {
	return []Tag{
		{Key: "0", Name: "Bookmark", Color: "#44ff44", Shortcut: "ctrl+1", Description: "Important messages to bookmark"},
		{Key: "1", Name: "Evidence", Color: "#ff4444", Shortcut: "ctrl+2", Description: "Evidence or proof related content"},
		{Key: "2", Name: "Of interest", Color: "#ffcc44", Shortcut: "ctrl+3", Description: "Messages of particular interest"},
		{Key: "3", Name: "Exceptions", Color: "#ff8844", Shortcut: "ctrl+4", Description: "Exceptional or unusual content"},
	}
}
