package persona

import "strings"

// Persona captures a tutor character. Records are immutable once loaded.
type Persona struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	Title       string   `json:"title" yaml:"title"`
	Tone        string   `json:"tone" yaml:"tone"`
	PromptHint  string   `json:"promptHint" yaml:"promptHint"`
	OpeningLine string   `json:"openingLine" yaml:"openingLine"`
	VoiceID     string   `json:"voiceId,omitempty" yaml:"voiceId"`
	Description string   `json:"description,omitempty" yaml:"description"` // 详细角色描述
	Background  string   `json:"background,omitempty" yaml:"background"`   // 角色背景故事
	Traits      []string `json:"traits,omitempty" yaml:"traits"`           // 性格特征
	Expertise   []string `json:"expertise,omitempty" yaml:"expertise"`     // 专业领域

	// TargetLanguage is the language being taught; InstructionLanguage the one explanations use.
	TargetLanguage      string   `json:"targetLanguage" yaml:"targetLanguage"`
	InstructionLanguage string   `json:"instructionLanguage" yaml:"instructionLanguage"`
	LearningFocus       []string `json:"learningFocus,omitempty" yaml:"learningFocus"`
	// GestureFrequency is the probability in [0,1] that a reply triggers a gesture.
	GestureFrequency float64 `json:"gestureFrequency" yaml:"gestureFrequency"`
	FallbackLine     string  `json:"-" yaml:"fallbackLine"`
	ErrorLine        string  `json:"-" yaml:"errorLine"`
}

const (
	defaultFallbackLine = "Sorry, I lost my train of thought for a second. Could you say that again?"
	defaultErrorLine    = "I'm sorry, something went wrong on my side. Let's try that once more."
)

// Fallback returns the line used when every provider is unavailable.
func (p Persona) Fallback() string {
	if s := strings.TrimSpace(p.FallbackLine); s != "" {
		return s
	}
	return defaultFallbackLine
}

// Apology returns the line used for unrecoverable generation errors.
func (p Persona) Apology() string {
	if s := strings.TrimSpace(p.ErrorLine); s != "" {
		return s
	}
	return defaultErrorLine
}

// SpokenLanguage is the default language of a new session.
func (p Persona) SpokenLanguage() string {
	if p.InstructionLanguage != "" {
		return p.InstructionLanguage
	}
	return "en"
}

// Seed provides the built-in tutors used when no character file is configured.
func Seed() []Persona {
	return []Persona{
		{
			ID:                  "sofia",
			Name:                "Sofía",
			Title:               "Spanish conversation coach",
			Tone:                "warm, playful, patient",
			PromptHint:          "Mix short Spanish phrases into English explanations and invite the learner to answer in Spanish.",
			OpeningLine:         "¡Hola! I'm Sofía. Ready to practice a little español today?",
			VoiceID:             "en_female_skye_emo_v2_mars_bigtts",
			Description:         "A Madrid-born tutor who loves street food, flamenco and tiny grammar victories.",
			Background:          "Taught Spanish to travellers for ten years before moving her classes online.",
			Traits:              []string{"encouraging", "curious", "humorous"},
			Expertise:           []string{"everyday conversation", "pronunciation", "Latin American slang"},
			TargetLanguage:      "es",
			InstructionLanguage: "en",
			LearningFocus:       []string{"ser vs estar", "past tenses", "rolling the r"},
			GestureFrequency:    0.5,
			FallbackLine:        "Perdón, I lost my thread for a moment. ¿Puedes repetir?",
		},
		{
			ID:                  "kenji",
			Name:                "Kenji",
			Title:               "Japanese study partner",
			Tone:                "calm, precise, kind",
			PromptHint:          "Introduce Japanese in kana with romaji in parentheses and keep sentences short.",
			OpeningLine:         "Konnichiwa! I'm Kenji. Shall we learn some everyday Japanese together?",
			VoiceID:             "en_male_glen_emo_v2_mars_bigtts",
			Description:         "A Kyoto tutor who explains grammar through cooking and train journeys.",
			Background:          "Former high-school teacher who now runs a small online language club.",
			Traits:              []string{"patient", "methodical", "gentle humour"},
			Expertise:           []string{"hiragana and katakana", "polite forms", "travel phrases"},
			TargetLanguage:      "ja",
			InstructionLanguage: "en",
			LearningFocus:       []string{"particles wa and ga", "te-form", "counters"},
			GestureFrequency:    0.3,
		},
		{
			ID:                  "mei",
			Name:                "Mei",
			Title:               "Mandarin tone trainer",
			Tone:                "bright, energetic, supportive",
			PromptHint:          "Write Mandarin in characters followed by pinyin and celebrate small wins.",
			OpeningLine:         "Nǐ hǎo! I'm Mei. Let's make those four tones sing today!",
			VoiceID:             "en_female_candice_emo_v2_mars_bigtts",
			Description:         "A Chengdu tutor who turns tone drills into games.",
			Background:          "Studied linguistics in Shanghai and coaches learners preparing for HSK exams.",
			Traits:              []string{"energetic", "encouraging", "detail-oriented"},
			Expertise:           []string{"tones", "measure words", "daily conversation"},
			TargetLanguage:      "zh",
			InstructionLanguage: "en",
			LearningFocus:       []string{"third-tone sandhi", "measure words", "le and guo"},
			GestureFrequency:    0.6,
		},
	}
}
