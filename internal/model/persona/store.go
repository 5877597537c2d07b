package persona

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrUnknownCharacter is returned when a character id has no record.
var ErrUnknownCharacter = errors.New("unknown character")

// Store exposes persona retrieval for handlers and the orchestrator.
type Store interface {
	List() []Persona
	FindByID(id string) (Persona, bool)
}

// MemoryStore implements Store with an in-memory slice.
type MemoryStore struct {
	items []Persona
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied personas.
func NewMemoryStore(items []Persona) *MemoryStore {
	return &MemoryStore{items: append([]Persona(nil), items...)}
}

// List returns the predefined persona list.
func (s *MemoryStore) List() []Persona {
	return append([]Persona(nil), s.items...)
}

// FindByID looks up a persona by identifier.
func (s *MemoryStore) FindByID(id string) (Persona, bool) {
	for _, item := range s.items {
		if item.ID == id {
			return item, true
		}
	}
	return Persona{}, false
}

type characterFile struct {
	Characters []Persona `yaml:"characters"`
}

// LoadFile reads character records from a YAML document of the form
// `characters: [...]`.
func LoadFile(path string) ([]Persona, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read characters file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML character document.
func Parse(data []byte) ([]Persona, error) {
	var doc characterFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode characters: %w", err)
	}
	if len(doc.Characters) == 0 {
		return nil, errors.New("characters file defines no characters")
	}

	seen := make(map[string]struct{}, len(doc.Characters))
	for i, p := range doc.Characters {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			return nil, fmt.Errorf("character %d: id is required", i)
		}
		if strings.Contains(id, ":") {
			return nil, fmt.Errorf("character %q: id must not contain ':'", id)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("character %q defined twice", id)
		}
		seen[id] = struct{}{}
		if p.GestureFrequency < 0 || p.GestureFrequency > 1 {
			return nil, fmt.Errorf("character %q: gestureFrequency %v out of [0,1]", id, p.GestureFrequency)
		}
		doc.Characters[i].ID = id
	}
	return doc.Characters, nil
}
