package language

// Script is an ISO 15924 script code.
type Script string

const (
	ScriptLatin      Script = "Latn"
	ScriptHan        Script = "Hani"
	ScriptHiragana   Script = "Hira"
	ScriptKatakana   Script = "Kana"
	ScriptHangul     Script = "Hang"
	ScriptCyrillic   Script = "Cyrl"
	ScriptArabic     Script = "Arab"
	ScriptDevanagari Script = "Deva"
	ScriptGreek      Script = "Grek"
	ScriptCommon     Script = "Zyyy"
)

// Pattern describes how languages alternate across a whole message.
type Pattern string

const (
	Monolingual     Pattern = "monolingual"
	IntraSentential Pattern = "intra-sentential"
	InterSentential Pattern = "inter-sentential"
	TagSwitching    Pattern = "tag-switching"
)

// SpanKind classifies a span written outside the primary language.
type SpanKind string

const (
	KindPrimary         SpanKind = ""
	KindCodeSwitching   SpanKind = "code-switching"
	KindBorrowing       SpanKind = "lexical-borrowing"
	KindTransliteration SpanKind = "transliteration"
	KindInterference    SpanKind = "interference"
)

// Segment is a contiguous run of text attributed to one language.
type Segment struct {
	Text       string   `json:"text"`
	Start      int      `json:"start"`
	End        int      `json:"end"`
	Language   string   `json:"language"`
	Confidence float64  `json:"confidence"`
	Script     Script   `json:"script"`
	Kind       SpanKind `json:"kind,omitempty"`
	// Source is the language a transliterated span was romanized from.
	Source string `json:"source,omitempty"`
}

// Normalization records a casual form rewritten to its standard form.
type Normalization struct {
	Original   string `json:"original"`
	Normalized string `json:"normalized"`
	Language   string `json:"language"`
	Idiom      bool   `json:"idiom,omitempty"`
}

// Correction is a suggestion surfaced to the learner.
type Correction struct {
	Original   string `json:"original"`
	Suggestion string `json:"suggestion"`
	Reason     string `json:"reason"`
}

// MixRecord is the per-turn analysis of mixed-language text.
type MixRecord struct {
	PrimaryLanguage string          `json:"primaryLanguage"`
	Pattern         Pattern         `json:"pattern"`
	Languages       []string        `json:"languages"`
	Segments        []Segment       `json:"segments"`
	Normalizations  []Normalization `json:"normalizations,omitempty"`
	Corrections     []Correction    `json:"corrections,omitempty"`
}

// IsMixed reports whether more than one language was detected.
func (m MixRecord) IsMixed() bool {
	return m.Pattern != Monolingual && len(m.Languages) > 1
}
