// Package langmix segments mixed-language text and classifies how the
// languages alternate.
package langmix

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/zhouzirui/z-tutor/backend/internal/analysis/slang"
	"github.com/zhouzirui/z-tutor/backend/internal/analysis/translit"
	"github.com/zhouzirui/z-tutor/backend/internal/model/language"
)

const (
	confScript    = 0.95
	confLexicon   = 0.9
	confAmbiguous = 0.75
	confLoanword  = 0.7
	confInherited = 0.5
	confSpanish   = 0.7
)

type token struct {
	text       string
	start, end int
	script     language.Script
	lang       string
	conf       float64
	sentence   int
	words      int
	candidates []string
	function   bool
	loanword   bool
	translit   bool
	invertedQ  bool
}

// Analyze segments text relative to the speaker's primary language.
func Analyze(text, primary string) language.MixRecord {
	primary = NormalizeTag(primary)
	record := language.MixRecord{PrimaryLanguage: primary, Pattern: language.Monolingual}

	tokens := tokenize(text)
	if len(tokens) == 0 {
		return record
	}

	hasKana := strings.IndexFunc(text, isKana) >= 0
	for i := range tokens {
		assign(&tokens[i], hasKana)
	}
	resolveAmbiguous(tokens, primary)
	resolveUnknown(tokens, primary)

	segments, meta := segment(text, tokens, primary)
	record.Segments = segments
	record.Languages = languagesOf(segments)
	record.Pattern = classifyPattern(segments, meta, primary)
	record.Normalizations = normalizations(record.Segments)
	record.Corrections = corrections(record, primary)
	return record
}

// NormalizeTag reduces a BCP-47 tag like "es-MX" to its language subtag.
func NormalizeTag(tag string) string {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if i := strings.IndexAny(tag, "-_"); i > 0 {
		tag = tag[:i]
	}
	if tag == "" {
		return "en"
	}
	return tag
}

// Notes turns a record into short learning notes.
func Notes(record language.MixRecord) []string {
	var notes []string
	for _, c := range record.Corrections {
		notes = append(notes, fmt.Sprintf("%s: %q -> %q", c.Reason, c.Original, c.Suggestion))
	}
	for _, seg := range record.Segments {
		if seg.Kind == language.KindCodeSwitching {
			notes = append(notes, fmt.Sprintf("switched to %s: %q", seg.Language, seg.Text))
		}
	}
	return notes
}

func tokenize(text string) []token {
	var (
		tokens       []token
		cur          *token
		curGroup     string
		sentence     int
		pendingBreak bool
		inverted     bool
	)

	flush := func(end int) {
		if cur == nil {
			return
		}
		cur.end = end
		cur.text = text[cur.start:end]
		tokens = append(tokens, *cur)
		cur = nil
	}

	for i, r := range text {
		group := groupOf(r)
		continues := cur != nil && (group == curGroup || unicode.Is(unicode.Mn, r) ||
			(curGroup == "latin" && (r == '\'' || r == '’') && nextIsLetter(text, i)))
		if continues {
			continue
		}

		flush(i)
		if group == "" {
			switch r {
			case '.', '!', '?', '。', '！', '？', '…':
				pendingBreak = true
			case '¿', '¡':
				inverted = true
			}
			continue
		}

		if pendingBreak && len(tokens) > 0 {
			sentence++
		}
		pendingBreak = false
		cur = &token{start: i, sentence: sentence, invertedQ: inverted}
		curGroup = group
		inverted = false
	}
	flush(len(text))
	return tokens
}

func nextIsLetter(text string, i int) bool {
	for _, r := range text[i:] {
		if r == '\'' || r == '’' {
			continue
		}
		return unicode.IsLetter(r)
	}
	return false
}

func groupOf(r rune) string {
	switch {
	case unicode.Is(unicode.Han, r), isKana(r), r == 'ー', r == '々':
		return "cjk"
	case unicode.Is(unicode.Latin, r):
		return "latin"
	case unicode.IsLetter(r):
		return string(scriptOf(r))
	}
	return ""
}

func isKana(r rune) bool {
	return unicode.Is(unicode.Hiragana, r) || unicode.Is(unicode.Katakana, r)
}

func scriptOf(r rune) language.Script {
	switch {
	case unicode.Is(unicode.Han, r):
		return language.ScriptHan
	case unicode.Is(unicode.Hiragana, r):
		return language.ScriptHiragana
	case unicode.Is(unicode.Katakana, r):
		return language.ScriptKatakana
	case unicode.Is(unicode.Hangul, r):
		return language.ScriptHangul
	case unicode.Is(unicode.Cyrillic, r):
		return language.ScriptCyrillic
	case unicode.Is(unicode.Arabic, r):
		return language.ScriptArabic
	case unicode.Is(unicode.Devanagari, r):
		return language.ScriptDevanagari
	case unicode.Is(unicode.Greek, r):
		return language.ScriptGreek
	case unicode.Is(unicode.Latin, r):
		return language.ScriptLatin
	}
	return language.ScriptCommon
}

var scriptLanguage = map[language.Script]string{
	language.ScriptHangul:     "ko",
	language.ScriptCyrillic:   "ru",
	language.ScriptArabic:     "ar",
	language.ScriptDevanagari: "hi",
	language.ScriptGreek:      "el",
}

func assign(t *token, textHasKana bool) {
	t.words = 1
	first, _ := firstLetter(t.text)

	if groupOf(first) == "cjk" {
		assignCJK(t, textHasKana)
		return
	}

	t.script = scriptOf(first)
	if t.script != language.ScriptLatin {
		t.lang = scriptLanguage[t.script]
		if t.lang == "" {
			t.lang = "und"
		}
		t.conf = confScript
		return
	}

	word := strings.ToLower(t.text)
	if lang, ok := loanwords[word]; ok {
		t.lang, t.conf, t.loanword = lang, confLoanword, true
		return
	}
	if e, ok := lexicon[word]; ok {
		t.candidates = e.langs
		if len(e.langs) == 1 {
			t.lang, t.conf = e.langs[0], confLexicon
			t.function = e.function[t.lang]
		}
		return
	}
	if m, ok := translit.Detect(word); ok {
		t.lang, t.conf, t.translit = m.Source, m.Confidence, true
		return
	}
	if t.invertedQ {
		t.lang, t.conf = "es", confSpanish
		return
	}
	if lang, conf, ok := diacriticHint(word); ok {
		t.lang, t.conf = lang, conf
	}
}

func assignCJK(t *token, textHasKana bool) {
	counts := map[language.Script]int{}
	runes := 0
	for _, r := range t.text {
		runes++
		switch {
		case unicode.Is(unicode.Hiragana, r):
			counts[language.ScriptHiragana]++
		case unicode.Is(unicode.Katakana, r), r == 'ー':
			counts[language.ScriptKatakana]++
		default:
			counts[language.ScriptHan]++
		}
	}
	// roughly two characters per word
	t.words = (runes + 1) / 2

	t.script = language.ScriptHan
	best := counts[language.ScriptHan]
	for _, s := range []language.Script{language.ScriptHiragana, language.ScriptKatakana} {
		if counts[s] > best {
			t.script, best = s, counts[s]
		}
	}

	switch {
	case counts[language.ScriptHiragana]+counts[language.ScriptKatakana] > 0:
		t.lang, t.conf = "ja", confScript
	case textHasKana:
		t.lang, t.conf = "ja", confAmbiguous
	default:
		t.lang, t.conf = "zh", confLexicon
	}
}

func firstLetter(s string) (rune, bool) {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return r, true
		}
	}
	return 0, false
}

// resolveAmbiguous picks a language for words found in several lexicons,
// preferring the nearest unambiguous neighbour in the same sentence.
func resolveAmbiguous(tokens []token, primary string) {
	for i := range tokens {
		t := &tokens[i]
		if t.lang != "" || len(t.candidates) < 2 {
			continue
		}

		var choice string
		switch lang := nearestAnchor(tokens, i); {
		case lang != "" && contains(t.candidates, lang):
			choice = lang
		case contains(t.candidates, primary):
			choice = primary
		default:
			choice = t.candidates[0]
		}
		t.lang, t.conf = choice, confAmbiguous
		t.function = lexicon[strings.ToLower(t.text)].function[choice]
	}
}

// resolveUnknown gives words found nowhere the language of their context.
func resolveUnknown(tokens []token, primary string) {
	for i := range tokens {
		t := &tokens[i]
		if t.lang != "" {
			continue
		}
		t.lang, t.conf = primary, confInherited
		if lang := nearestAnchor(tokens, i); lang != "" {
			t.lang = lang
		}
	}
}

// nearestAnchor looks backwards, then forwards, within the sentence for a word
// whose language is certain.
func nearestAnchor(tokens []token, i int) string {
	sentence := tokens[i].sentence
	for j := i - 1; j >= 0 && tokens[j].sentence == sentence; j-- {
		if isAnchor(tokens[j]) {
			return tokens[j].lang
		}
	}
	for j := i + 1; j < len(tokens) && tokens[j].sentence == sentence; j++ {
		if isAnchor(tokens[j]) {
			return tokens[j].lang
		}
	}
	return ""
}

func isAnchor(t token) bool {
	return t.lang != "" && len(t.candidates) < 2 && !t.translit && !t.loanword && t.conf > confInherited
}

type span struct {
	tokens []token
}

func (s span) words() int {
	n := 0
	for _, t := range s.tokens {
		n += t.words
	}
	return n
}

type segmentMeta struct {
	sentence int
	words    int
	loanword bool
}

func segment(text string, tokens []token, primary string) ([]language.Segment, []segmentMeta) {
	var spans []span
	for _, t := range tokens {
		if n := len(spans); n > 0 {
			last := spans[n-1].tokens[len(spans[n-1].tokens)-1]
			if last.sentence == t.sentence && last.lang == t.lang && last.translit == t.translit && !last.loanword && !t.loanword {
				spans[n-1].tokens = append(spans[n-1].tokens, t)
				continue
			}
		}
		spans = append(spans, span{tokens: []token{t}})
	}

	segments := make([]language.Segment, 0, len(spans))
	meta := make([]segmentMeta, 0, len(spans))
	for _, s := range spans {
		first, last := s.tokens[0], s.tokens[len(s.tokens)-1]
		conf := 0.0
		for _, t := range s.tokens {
			conf += t.conf
		}
		seg := language.Segment{
			Text:       text[first.start:last.end],
			Start:      first.start,
			End:        last.end,
			Language:   first.lang,
			Confidence: conf / float64(len(s.tokens)),
			Script:     first.script,
		}
		if seg.Language != primary {
			seg.Kind = classifySpan(s)
			if seg.Kind == language.KindTransliteration {
				seg.Source = seg.Language
			}
		}
		segments = append(segments, seg)
		meta = append(meta, segmentMeta{sentence: first.sentence, words: s.words(), loanword: first.loanword})
	}
	return segments, meta
}

func classifySpan(s span) language.SpanKind {
	allTranslit := true
	for _, t := range s.tokens {
		if !t.translit {
			allTranslit = false
			break
		}
	}
	switch {
	case allTranslit:
		return language.KindTransliteration
	case len(s.tokens) == 1 && s.tokens[0].loanword:
		return language.KindBorrowing
	case s.words() >= 2:
		return language.KindCodeSwitching
	case s.tokens[0].function:
		return language.KindInterference
	default:
		return language.KindBorrowing
	}
}

func languagesOf(segments []language.Segment) []string {
	var langs []string
	for _, seg := range segments {
		if !contains(langs, seg.Language) {
			langs = append(langs, seg.Language)
		}
	}
	return langs
}

// classifyPattern decides the overall switching pattern. A sentence mixing
// languages makes the text intra-sentential unless each foreign span in it is a
// short tag at the sentence edge.
func classifyPattern(all []language.Segment, allMeta []segmentMeta, primary string) language.Pattern {
	// loanwords do not count as switching
	var (
		segments []language.Segment
		meta     []segmentMeta
	)
	for i, seg := range all {
		if allMeta[i].loanword {
			continue
		}
		segments = append(segments, seg)
		meta = append(meta, allMeta[i])
	}
	if len(languagesOf(segments)) < 2 {
		return language.Monolingual
	}

	mixed := false
	tagsOnly := true
	for _, group := range groupSentences(segments, meta) {
		if len(languagesOf(group.segments)) < 2 {
			continue
		}
		mixed = true
		dominant := dominantLanguage(group, primary)
		for i, seg := range group.segments {
			if seg.Language == dominant {
				continue
			}
			edge := i == 0 || i == len(group.segments)-1
			if !edge || group.words[i] > 2 {
				tagsOnly = false
			}
		}
	}

	switch {
	case !mixed:
		return language.InterSentential
	case tagsOnly:
		return language.TagSwitching
	default:
		return language.IntraSentential
	}
}

type sentenceGroup struct {
	segments []language.Segment
	words    []int
}

func groupSentences(segments []language.Segment, meta []segmentMeta) []sentenceGroup {
	var groups []sentenceGroup
	for i, seg := range segments {
		if i == 0 || meta[i].sentence != meta[i-1].sentence {
			groups = append(groups, sentenceGroup{})
		}
		g := &groups[len(groups)-1]
		g.segments = append(g.segments, seg)
		g.words = append(g.words, meta[i].words)
	}
	return groups
}

func dominantLanguage(group sentenceGroup, primary string) string {
	counts := map[string]int{}
	for i, seg := range group.segments {
		counts[seg.Language] += group.words[i]
	}
	best, bestCount := primary, counts[primary]
	for _, seg := range group.segments {
		if c := counts[seg.Language]; c > bestCount {
			best, bestCount = seg.Language, c
		}
	}
	return best
}

func normalizations(segments []language.Segment) []language.Normalization {
	var out []language.Normalization
	for _, seg := range segments {
		if seg.Script != language.ScriptLatin || seg.Kind == language.KindTransliteration {
			continue
		}
		_, reps := slang.Normalize(seg.Text, seg.Language)
		for _, r := range reps {
			out = append(out, language.Normalization{Original: r.Original, Normalized: r.Normalized, Language: r.Language, Idiom: r.Idiom})
		}
	}
	return out
}

func corrections(record language.MixRecord, primary string) []language.Correction {
	var out []language.Correction
	for _, n := range record.Normalizations {
		reason := "casual form"
		if n.Idiom {
			reason = "idiom"
		}
		out = append(out, language.Correction{Original: n.Original, Suggestion: n.Normalized, Reason: reason})
	}

	for _, seg := range record.Segments {
		switch seg.Kind {
		case language.KindTransliteration:
			if seg.Source != "ja" {
				continue
			}
			if kana, ok := translit.ToHiragana(seg.Text); ok {
				out = append(out, language.Correction{Original: seg.Text, Suggestion: kana, Reason: "romaji in hiragana"})
			}
		case language.KindInterference:
			word := strings.ToLower(seg.Text)
			if gloss, ok := functionGloss[seg.Language][word]; ok && primary == "en" {
				out = append(out, language.Correction{
					Original:   seg.Text,
					Suggestion: gloss,
					Reason:     fmt.Sprintf("%s function word in a %s sentence", seg.Language, primary),
				})
			}
		}
	}
	return out
}
