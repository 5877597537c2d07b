package persona

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSeedIsValid(t *testing.T) {
	store := NewMemoryStore(Seed())
	if len(store.List()) != 3 {
		t.Fatalf("expected 3 seeded tutors, got %d", len(store.List()))
	}
	sofia, ok := store.FindByID("sofia")
	if !ok {
		t.Fatalf("sofia should be seeded")
	}
	if sofia.TargetLanguage != "es" || sofia.SpokenLanguage() != "en" {
		t.Fatalf("unexpected languages: %+v", sofia)
	}
	if _, ok := store.FindByID("nobody"); ok {
		t.Fatalf("unknown id should not resolve")
	}
}

func TestFallbackLines(t *testing.T) {
	p := Persona{}
	if p.Fallback() != defaultFallbackLine || p.Apology() != defaultErrorLine {
		t.Fatalf("expected default lines")
	}
	p.FallbackLine = "  custom  "
	if p.Fallback() != "custom" {
		t.Fatalf("expected trimmed custom fallback, got %q", p.Fallback())
	}
}

func TestLoadFile(t *testing.T) {
	doc := `
characters:
  - id: lucia
    name: Lucía
    targetLanguage: es
    instructionLanguage: en
    gestureFrequency: 0.4
    learningFocus: [subjunctive]
`
	path := filepath.Join(t.TempDir(), "characters.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	items, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile returned error: %v", err)
	}
	if len(items) != 1 || items[0].ID != "lucia" || items[0].GestureFrequency != 0.4 {
		t.Fatalf("unexpected characters %+v", items)
	}
	if len(items[0].LearningFocus) != 1 || items[0].LearningFocus[0] != "subjunctive" {
		t.Fatalf("unexpected learning focus %v", items[0].LearningFocus)
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"empty":     "characters: []",
		"no id":     "characters:\n  - name: x\n",
		"duplicate": "characters:\n  - id: a\n  - id: a\n",
		"colon":     "characters:\n  - id: a:b\n",
		"frequency": "characters:\n  - id: a\n    gestureFrequency: 2\n",
	}
	for name, doc := range cases {
		if _, err := Parse([]byte(doc)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}
