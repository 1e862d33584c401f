// Package catalog loads the seed list of activities.
package catalog

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"example.com/mergington/internal/domain"
)

//go:embed activities.yaml
var defaultCatalog []byte

// Entry is the on-disk shape of one catalog activity.
type Entry struct {
	Name            string   `yaml:"name"`
	Description     string   `yaml:"description"`
	Schedule        string   `yaml:"schedule"`
	MaxParticipants int      `yaml:"max_participants"`
	Participants    []string `yaml:"participants"`
}

// Default returns the built-in school catalog.
func Default() ([]domain.Activity, error) {
	return Parse(bytes.NewReader(defaultCatalog))
}

// LoadFile reads a catalog from a YAML file. An empty path yields the built-in catalog.
func LoadFile(path string) ([]domain.Activity, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes and validates a YAML catalog.
func Parse(r io.Reader) ([]domain.Activity, error) {
	var entries []Entry
	if err := yaml.NewDecoder(r).Decode(&entries); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	out := make([]domain.Activity, 0, len(entries))
	seen := make(map[string]struct{}, len(entries))
	for i, entry := range entries {
		if err := entry.Validate(); err != nil {
			return nil, fmt.Errorf("catalog entry %d: %w", i, err)
		}
		if _, dup := seen[entry.Name]; dup {
			return nil, fmt.Errorf("catalog entry %d: duplicate name %q", i, entry.Name)
		}
		seen[entry.Name] = struct{}{}
		out = append(out, domain.Activity{
			Name:            entry.Name,
			Description:     entry.Description,
			Schedule:        entry.Schedule,
			MaxParticipants: entry.MaxParticipants,
			Participants:    domain.NewRoster(entry.Participants...),
		})
	}
	return out, nil
}

// Validate checks the invariants a seeded activity must already satisfy.
func (e Entry) Validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return errors.New("name is required")
	}
	if e.MaxParticipants <= 0 {
		return errors.New("max_participants must be > 0")
	}
	if roster := domain.NewRoster(e.Participants...); roster.Len() != len(e.Participants) {
		return errors.New("participants contain duplicates")
	}
	if len(e.Participants) > e.MaxParticipants {
		return errors.New("participants exceed max_participants")
	}
	return nil
}
