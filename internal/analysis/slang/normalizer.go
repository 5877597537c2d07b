// Package slang rewrites casual spellings and idioms into standard forms.
package slang

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// Replacement records one rewrite.
type Replacement struct {
	Original   string
	Normalized string
	Language   string
	Idiom      bool
}

var casual = map[string]map[string]string{
	"en": {
		"gonna": "going to", "wanna": "want to", "gotta": "got to", "kinda": "kind of", "sorta": "sort of",
		"y'all": "you all", "ain't": "is not", "lemme": "let me", "gimme": "give me", "dunno": "don't know",
		"u": "you", "ur": "your", "thx": "thanks", "pls": "please", "plz": "please", "idk": "I don't know",
		"btw": "by the way", "tbh": "to be honest", "imo": "in my opinion", "cuz": "because", "tho": "though",
	},
	"es": {
		"pa'": "para", "pa": "para", "q": "que", "xq": "porque", "pq": "porque", "tb": "también",
		"tmb": "también", "na'": "nada", "to'": "todo", "toy": "estoy", "porfa": "por favor", "finde": "fin de semana",
		"profe": "profesor", "bici": "bicicleta", "peli": "película",
	},
	"fr": {
		"chui": "je suis", "jsp": "je ne sais pas", "stp": "s'il te plaît", "svp": "s'il vous plaît", "mdr": "mort de rire",
	},
	"pt": {
		"vc": "você", "tbm": "também", "blz": "beleza", "pq": "porque",
	},
}

var idioms = map[string]map[string]string{
	"en": {
		"break a leg":           "good luck",
		"piece of cake":         "very easy",
		"hit the books":         "study hard",
		"under the weather":     "slightly ill",
		"on cloud nine":         "very happy",
		"cost an arm and a leg": "be very expensive",
	},
	"es": {
		"estar en las nubes":          "estar distraído",
		"ser pan comido":              "ser muy fácil",
		"pan comido":                  "muy fácil",
		"tomar el pelo":               "bromear",
		"no tener pelos en la lengua": "hablar con franqueza",
	},
}

type idiomRule struct {
	re         *regexp.Regexp
	normalized string
	language   string
}

var idiomRules = compileIdioms()

func compileIdioms() []idiomRule {
	var rules []idiomRule
	for lang, table := range idioms {
		phrases := make([]string, 0, len(table))
		for phrase := range table {
			phrases = append(phrases, phrase)
		}
		// longest first so "ser pan comido" wins over "pan comido"
		sort.Slice(phrases, func(i, j int) bool {
			if len(phrases[i]) != len(phrases[j]) {
				return len(phrases[i]) > len(phrases[j])
			}
			return phrases[i] < phrases[j]
		})
		for _, phrase := range phrases {
			rules = append(rules, idiomRule{
				re:         regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(phrase) + `\b`),
				normalized: table[phrase],
				language:   lang,
			})
		}
	}
	sort.SliceStable(rules, func(i, j int) bool { return rules[i].language < rules[j].language })
	return rules
}

// Normalize rewrites casual words and idioms for lang; an empty lang applies
// every table. The returned replacements are in text order for words, then idioms.
func Normalize(text, lang string) (string, []Replacement) {
	if strings.TrimSpace(text) == "" {
		return text, nil
	}

	var replacements []Replacement
	out := text
	for _, rule := range idiomRules {
		if lang != "" && rule.language != lang {
			continue
		}
		out = rule.re.ReplaceAllStringFunc(out, func(match string) string {
			replacements = append(replacements, Replacement{Original: match, Normalized: rule.normalized, Language: rule.language, Idiom: true})
			return rule.normalized
		})
	}

	var b strings.Builder
	var words []Replacement
	for _, tok := range tokenize(out) {
		if !tok.word {
			b.WriteString(tok.text)
			continue
		}
		norm, language, ok := lookup(strings.ToLower(tok.text), lang)
		if !ok {
			b.WriteString(tok.text)
			continue
		}
		words = append(words, Replacement{Original: tok.text, Normalized: norm, Language: language})
		b.WriteString(norm)
	}
	return b.String(), append(words, replacements...)
}

// Lookup returns the standard form of a single casual word.
func Lookup(word, lang string) (string, bool) {
	norm, _, ok := lookup(strings.ToLower(word), lang)
	return norm, ok
}

func lookup(word, lang string) (string, string, bool) {
	if lang != "" {
		norm, ok := casual[lang][word]
		return norm, lang, ok
	}
	for _, l := range []string{"en", "es", "fr", "pt"} {
		if norm, ok := casual[l][word]; ok {
			return norm, l, true
		}
	}
	return "", "", false
}

type token struct {
	text string
	word bool
}

// tokenize splits on word boundaries; apostrophes stay inside words so that
// contractions like "pa'" and "y'all" survive.
func tokenize(text string) []token {
	var tokens []token
	start := 0
	inWord := false
	for i, r := range text {
		isWord := unicode.IsLetter(r) || unicode.IsDigit(r) || (inWord && (r == '\'' || r == '’'))
		if isWord != inWord && i > start {
			tokens = append(tokens, token{text: text[start:i], word: inWord})
			start = i
		}
		inWord = isWord
	}
	if start < len(text) {
		tokens = append(tokens, token{text: text[start:], word: inWord})
	}
	return tokens
}
