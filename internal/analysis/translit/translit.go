// Package translit recognises romanized Japanese, Mandarin and Hindi words and
// converts Hepburn romaji into hiragana.
package translit

import (
	"strings"
	"unicode"
)

// Match describes a recognised romanization.
type Match struct {
	// Source is the language the word was romanized from.
	Source     string
	Confidence float64
}

var romajiWords = set(
	"konnichiwa", "konbanwa", "ohayou", "ohayo", "oyasumi", "arigatou", "arigato", "sayounara", "sayonara",
	"sensei", "sugoi", "kawaii", "itadakimasu", "gochisousama", "gomennasai", "gomen", "sumimasen", "hai",
	"iie", "desu", "desu ka", "watashi", "anata", "tomodachi", "nihongo", "daijoubu", "daijobu", "wakarimasen",
	"wakarimashita", "onegai", "onegaishimasu", "kudasai", "genki", "oishii", "taberu", "nomu", "ikimasu",
	"naruhodo", "ganbatte", "yoroshiku", "hajimemashite", "mata", "ne", "yatta",
)

var pinyinWords = set(
	"nihao", "ni hao", "xiexie", "xie xie", "zaijian", "laoshi", "pengyou", "duibuqi", "meiyou", "shenme",
	"zhongguo", "putonghua", "hanyu", "mingtian", "jintian", "zuotian", "keyi", "xihuan", "peng you", "hao",
	"bukeqi", "mei guanxi", "jiayou", "wo", "women", "tamen", "xuesheng", "zhidao",
)

var hindiWords = set(
	"namaste", "dhanyavaad", "dhanyavad", "shukriya", "accha", "acha", "achha", "theek", "thik", "nahi",
	"nahin", "kya", "kaise", "kaisa", "bahut", "haan", "yaar", "chalo", "bilkul", "matlab", "samajh",
)

const (
	toneMarked = "āáǎàēéěèīíǐìōóǒòūúǔùǖǘǚǜ"
	toneBases  = "aaaaeeeeiiiioooouuuuvvvv"
	// tone marks no European orthography uses
	pinyinOnly = "āǎēěīǐōǒūǔǖǘǚǜ"
)

// Detect checks a single word.
func Detect(word string) (Match, bool) {
	w := strings.ToLower(strings.Trim(word, "'’.,!?;:"))
	if w == "" {
		return Match{}, false
	}

	if strings.ContainsAny(w, pinyinOnly) {
		return Match{Source: "zh", Confidence: 0.9}, true
	}
	if hasNumericTone(w) {
		return Match{Source: "zh", Confidence: 0.85}, true
	}

	if _, ok := romajiWords[w]; ok {
		return Match{Source: "ja", Confidence: 0.85}, true
	}
	if _, ok := pinyinWords[stripTones(w)]; ok {
		return Match{Source: "zh", Confidence: 0.8}, true
	}
	if _, ok := hindiWords[w]; ok {
		return Match{Source: "hi", Confidence: 0.8}, true
	}

	if len(w) >= 7 && isRomajiSequence(w) && hasRomajiEnding(w) {
		return Match{Source: "ja", Confidence: 0.6}, true
	}
	return Match{}, false
}

// DetectPhrase checks a multi-word phrase; every word must agree on a source.
func DetectPhrase(words []string) (Match, bool) {
	if len(words) == 0 {
		return Match{}, false
	}
	if m, ok := Detect(strings.Join(words, " ")); ok && len(words) > 1 {
		return m, true
	}

	var source string
	total := 0.0
	for _, w := range words {
		m, ok := Detect(w)
		if !ok {
			return Match{}, false
		}
		if source != "" && m.Source != source {
			return Match{}, false
		}
		source = m.Source
		total += m.Confidence
	}
	return Match{Source: source, Confidence: total / float64(len(words))}, true
}

func hasNumericTone(w string) bool {
	// ni3, hao3, xie4xie5
	last := w[len(w)-1]
	if last < '1' || last > '5' || len(w) < 2 {
		return false
	}
	body := strings.TrimRight(w, "12345")
	if body == "" {
		return false
	}
	for _, r := range body {
		if r > unicode.MaxASCII || !unicode.IsLetter(r) && (r < '1' || r > '5') {
			return false
		}
	}
	return isPinyinSequence(strings.Map(func(r rune) rune {
		if r >= '1' && r <= '5' {
			return -1
		}
		return r
	}, body))
}

func stripTones(w string) string {
	var b strings.Builder
	for _, r := range w {
		if i := toneIndex(r); i >= 0 {
			b.WriteByte(toneBases[i])
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func toneIndex(r rune) int {
	i := 0
	for _, t := range toneMarked {
		if t == r {
			return i
		}
		i++
	}
	return -1
}

var pinyinInitials = []string{"zh", "ch", "sh", "b", "p", "m", "f", "d", "t", "n", "l", "g", "k", "h", "j", "q", "x", "r", "z", "c", "s", "y", "w", ""}

var pinyinFinals = []string{
	"iang", "iong", "uang", "ang", "eng", "ing", "ong", "ian", "iao", "uai", "uan", "ai", "ei", "ao", "ou",
	"an", "en", "in", "un", "er", "ia", "ie", "iu", "ua", "uo", "ui", "ve", "a", "o", "e", "i", "u", "v",
}

func isPinyinSequence(w string) bool {
	if w == "" {
		return false
	}
	for _, ini := range pinyinInitials {
		if !strings.HasPrefix(w, ini) {
			continue
		}
		rest := w[len(ini):]
		for _, fin := range pinyinFinals {
			if strings.HasPrefix(rest, fin) {
				tail := rest[len(fin):]
				if tail == "" || isPinyinSequence(tail) {
					return true
				}
			}
		}
	}
	return false
}

func isRomajiSequence(w string) bool {
	_, ok := ToHiragana(w)
	return ok
}

func hasRomajiEnding(w string) bool {
	for _, suffix := range []string{"masu", "mashita", "masen", "desu", "shii", "tte", "nai"} {
		if strings.HasSuffix(w, suffix) {
			return true
		}
	}
	return false
}

func set(items ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(items))
	for _, item := range items {
		m[item] = struct{}{}
	}
	return m
}
