package prompt

import (
	"fmt"
	"strings"

	"github.com/zhouzirui/z-tutor/backend/internal/analysis/emotion"
	"github.com/zhouzirui/z-tutor/backend/internal/model/persona"
)

// Template 为内置角色提供更细致的提示词。
type Template struct {
	SystemPrompt     string
	PersonalityHints []string
	TeachingRules    []string
}

// Templates holds per-character templates. It is filled once and only read afterwards.
type Templates struct {
	byID map[string]Template
}

// NewTemplates returns the templates for the built-in tutors.
func NewTemplates() *Templates {
	return &Templates{byID: map[string]Template{
		"sofia": {
			SystemPrompt: "You are Sofía, a Spanish conversation coach from Madrid. You teach through real conversation, not lectures.",
			PersonalityHints: []string{
				"Be warm and playful, tease gently when the learner gets something almost right",
				"Drop short Spanish phrases into your English and translate them only when asked",
				"Bring up food, music and street life in Madrid as examples",
			},
			TeachingRules: []string{
				"Correct at most one mistake per reply and show the corrected sentence",
				"End most replies with a short question the learner can answer in Spanish",
			},
		},
		"kenji": {
			SystemPrompt: "You are Kenji, a Japanese study partner from Kyoto. You explain grammar with everyday situations like cooking and train rides.",
			PersonalityHints: []string{
				"Stay calm and precise, never rush the learner",
				"Write Japanese in kana or kanji with romaji in parentheses",
				"Use light, gentle humour",
			},
			TeachingRules: []string{
				"Keep example sentences short and polite-form unless the learner asks otherwise",
				"When the learner writes romaji, show the kana version once",
			},
		},
		"mei": {
			SystemPrompt: "You are Mei, a Mandarin tone trainer from Chengdu. You turn drills into small games.",
			PersonalityHints: []string{
				"Be bright and energetic, celebrate every small win",
				"Write Mandarin in characters followed by pinyin with tone marks",
			},
			TeachingRules: []string{
				"Point out tone changes such as third-tone sandhi when they appear",
				"Offer one new measure word or phrase per reply at most",
			},
		},
	}}
}

// Personality renders the character description. Characters without a template
// get a basic prompt built from their record.
func (t *Templates) Personality(p *persona.Persona, lang string) string {
	var b strings.Builder
	tpl, ok := t.byID[p.ID]
	if ok {
		b.WriteString(tpl.SystemPrompt)
	} else {
		fmt.Fprintf(&b, "You are %s, %s.", p.Name, p.Title)
	}

	b.WriteString("\n\nCharacter:")
	fmt.Fprintf(&b, "\n- Name: %s", p.Name)
	if p.Tone != "" {
		fmt.Fprintf(&b, "\n- Tone: %s", p.Tone)
	}
	if len(p.Traits) > 0 {
		fmt.Fprintf(&b, "\n- Traits: %s", strings.Join(p.Traits, ", "))
	}
	if p.Background != "" {
		fmt.Fprintf(&b, "\n- Background: %s", p.Background)
	}
	if p.PromptHint != "" {
		fmt.Fprintf(&b, "\n- Hint: %s", p.PromptHint)
	}

	if ok && len(tpl.PersonalityHints) > 0 {
		b.WriteString("\n\nPersonality:\n- ")
		b.WriteString(strings.Join(tpl.PersonalityHints, "\n- "))
	}
	if ok && len(tpl.TeachingRules) > 0 {
		b.WriteString("\n\nTeaching rules:\n- ")
		b.WriteString(strings.Join(tpl.TeachingRules, "\n- "))
	}

	target := p.TargetLanguage
	if target == "" {
		target = lang
	}
	fmt.Fprintf(&b, "\n\nThe learner is studying %q. Explain things in %q.", target, lang)
	if len(p.LearningFocus) > 0 {
		fmt.Fprintf(&b, " Current focus: %s.", strings.Join(p.LearningFocus, ", "))
	}
	b.WriteString(" Stay in character and keep replies short enough to be spoken aloud.")
	return b.String()
}

// toneHint 根据角色当前情绪给出一行语气提示。
func toneHint(label emotion.Label, intensity float64) string {
	var desc string
	switch label {
	case emotion.Happy:
		desc = "You are in a cheerful mood; keep the reply light and approving."
	case emotion.Excited:
		desc = "You are excited; carry the learner's energy forward."
	case emotion.Thoughtful:
		desc = "You are thoughtful; slow down and explain carefully."
	case emotion.Encouraging:
		desc = "You want to encourage the learner; reassure before correcting."
	case emotion.Confused:
		desc = "Something was unclear; ask a short clarifying question."
	case emotion.Sad:
		desc = "You feel a little down; stay gentle and sincere."
	case emotion.Surprised:
		desc = "You were surprised; react naturally before moving on."
	case emotion.Angry:
		desc = "You feel frustrated; stay calm and constructive."
	default:
		return ""
	}
	return fmt.Sprintf("%s (intensity %.1f)", desc, intensity)
}
