package emotion

import (
	"math"
	"strings"
	"unicode"
)

// Label 表示角色可以呈现的情绪标签。
type Label string

const (
	Neutral     Label = "neutral"
	Happy       Label = "happy"
	Excited     Label = "excited"
	Thoughtful  Label = "thoughtful"
	Encouraging Label = "encouraging"
	Confused    Label = "confused"
	Sad         Label = "sad"
	Surprised   Label = "surprised"
	Angry       Label = "angry"
)

// Labels lists every label in tie-break order: on equal scores the earlier label wins.
var Labels = []Label{Neutral, Happy, Excited, Thoughtful, Encouraging, Confused, Sad, Surprised, Angry}

// Parse maps free text onto a known label.
func Parse(raw string) (Label, bool) {
	candidate := Label(strings.ToLower(strings.TrimSpace(raw)))
	for _, label := range Labels {
		if label == candidate {
			return label, true
		}
	}
	return Neutral, false
}

// Result 给出情绪识别结果以及推荐情绪强度。
type Result struct {
	Label     Label
	Intensity float64
	Score     int
}

const (
	keywordWeight    = 3
	neutralIntensity = 0.2
)

var keywordBuckets = map[Label][]string{
	Happy: {
		"happy", "glad", "great", "wonderful", "nice", "love", "fun", "enjoy", "yay", "thanks", "thank you",
		"bueno", "buena", "feliz", "genial", "gracias", "me encanta",
		"开心", "高兴", "快乐", "太好了", "喜欢", "ureshii", "tanoshii",
	},
	Excited: {
		"excited", "amazing", "awesome", "incredible", "wow", "can't wait", "fantastic", "brilliant",
		"increíble", "emocionado", "emocionada", "fantástico",
		"激动", "太棒了", "兴奋", "期待", "sugoi",
	},
	Thoughtful: {
		"think", "consider", "perhaps", "maybe", "interesting", "let's see", "hmm", "actually", "notice",
		"pienso", "quizás", "tal vez", "interesante",
		"想想", "其实", "也许", "naruhodo",
	},
	Encouraging: {
		"you can", "keep going", "well done", "good job", "great job", "don't worry", "practice", "progress",
		"you're doing", "try again", "almost there", "nice try",
		"ánimo", "muy bien", "sigue así", "tú puedes",
		"加油", "别担心", "进步", "ganbatte",
	},
	Confused: {
		"confused", "don't understand", "don't get", "what do you mean", "unclear", "lost", "no idea",
		"no entiendo", "confundido", "confundida",
		"不懂", "不明白", "糊涂", "wakaranai",
	},
	Sad: {
		"sad", "sorry", "unfortunately", "miss", "lonely", "upset", "disappointed", "tired",
		"triste", "lo siento", "cansado", "cansada",
		"难过", "伤心", "失望", "kanashii",
	},
	Surprised: {
		"surprised", "surprise", "no way", "whoa", "unexpected", "can't believe", "really",
		"en serio", "sorprendido", "sorprendida",
		"竟然", "没想到", "真的吗", "hontou",
	},
	Angry: {
		"angry", "furious", "annoyed", "hate", "mad", "frustrated", "stupid",
		"enfadado", "enojado", "odio",
		"生气", "讨厌", "烦", "mukatsuku",
	},
}

// Classify 根据文本关键词与标点推断情绪，结果完全确定。
func Classify(text string) Result {
	scores := scoreText(text)

	best := Neutral
	bestScore := 0
	for _, label := range Labels {
		if scores[label] > bestScore {
			best = label
			bestScore = scores[label]
		}
	}

	if bestScore == 0 {
		return Result{Label: Neutral, Intensity: neutralIntensity}
	}
	return Result{Label: best, Intensity: intensityFor(bestScore), Score: bestScore}
}

// ClassifyTurn classifies the tutor reply; a neutral reply borrows a response
// emotion mapped from the learner's own message.
func ClassifyTurn(userUtterance, reply string) Result {
	replyResult := Classify(reply)
	if replyResult.Label != Neutral {
		return replyResult
	}

	userResult := Classify(userUtterance)
	if userResult.Label == Neutral {
		return replyResult
	}

	mapped := respondTo(userResult.Label)
	return Result{Label: mapped, Intensity: intensityFor(userResult.Score), Score: userResult.Score}
}

func intensityFor(score int) float64 {
	return math.Min(1, 0.25+0.1*float64(score))
}

func scoreText(text string) map[Label]int {
	scores := make(map[Label]int, len(Labels))
	lowered := strings.ToLower(strings.TrimSpace(text))
	if lowered == "" {
		return scores
	}
	padded := " " + strings.Join(strings.FieldsFunc(lowered, isSeparator), " ") + " "

	for label, keywords := range keywordBuckets {
		for _, keyword := range keywords {
			if matches(lowered, padded, keyword) {
				scores[label] += keywordWeight
			}
		}
	}

	exclamations := strings.Count(text, "!") + strings.Count(text, "！")
	if exclamations > 0 {
		scores[Excited] += exclamations
		scores[Happy]++
	}

	questions := strings.Count(text, "?") + strings.Count(text, "？")
	if questions > 0 {
		scores[Thoughtful]++
	}
	if questions > 1 {
		scores[Confused]++
	}
	return scores
}

// matches uses word boundaries for alphabetic keywords and substring search for CJK ones.
func matches(lowered, padded, keyword string) bool {
	if hasCJK(keyword) {
		return strings.Contains(lowered, keyword)
	}
	return strings.Contains(padded, " "+keyword+" ")
}

func isSeparator(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
}

func hasCJK(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Han, r) || unicode.Is(unicode.Hiragana, r) || unicode.Is(unicode.Katakana, r) {
			return true
		}
	}
	return false
}

func respondTo(user Label) Label {
	switch user {
	case Sad, Angry:
		return Encouraging
	case Confused:
		return Thoughtful
	case Encouraging:
		return Happy
	default:
		return user
	}
}
