package translit

import "testing"

func TestDetect(t *testing.T) {
	cases := []struct {
		word   string
		source string
		ok     bool
	}{
		{"konnichiwa", "ja", true},
		{"Arigatou!", "ja", true},
		{"nǐhǎo", "zh", true},
		{"ni3", "zh", true},
		{"xiexie", "zh", true},
		{"namaste", "hi", true},
		{"tabemashita", "ja", true},
		{"hello", "", false},
		{"mp3", "", false},
		{"banana", "", false},
	}
	for _, tc := range cases {
		m, ok := Detect(tc.word)
		if ok != tc.ok || m.Source != tc.source {
			t.Errorf("Detect(%q) = %+v %v, want source %q ok %v", tc.word, m, ok, tc.source, tc.ok)
		}
		if ok && (m.Confidence <= 0 || m.Confidence > 1) {
			t.Errorf("Detect(%q) confidence out of range: %v", tc.word, m.Confidence)
		}
	}
}

func TestDetectPhrase(t *testing.T) {
	if m, ok := DetectPhrase([]string{"arigatou", "sensei"}); !ok || m.Source != "ja" {
		t.Fatalf("expected japanese phrase, got %+v %v", m, ok)
	}
	if _, ok := DetectPhrase([]string{"arigatou", "namaste"}); ok {
		t.Fatalf("mixed sources should not match")
	}
	if _, ok := DetectPhrase(nil); ok {
		t.Fatalf("empty phrase should not match")
	}
}

func TestToHiragana(t *testing.T) {
	cases := map[string]string{
		"konnichiwa": "こんにちわ",
		"arigatou":   "ありがとう",
		"sensei":     "せんせい",
		"kitte":      "きって",
		"matcha":     "まっちゃ",
		"tōkyō":      "とうきょう",
		"shinbun":    "しんぶん",
	}
	for in, want := range cases {
		got, ok := ToHiragana(in)
		if !ok || got != want {
			t.Errorf("ToHiragana(%q) = %q %v, want %q", in, got, ok, want)
		}
	}
	if _, ok := ToHiragana("xyz"); ok {
		t.Fatalf("invalid romaji should fail")
	}
}
