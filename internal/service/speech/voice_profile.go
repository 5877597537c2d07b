package speech

import (
	"strings"

	"github.com/zhouzirui/z-tutor/backend/internal/analysis/emotion"
)

// 情绪标签到火山引擎情感音色参数的映射；没有对应项的标签不启用情感合成。
var ttsEmotions = map[emotion.Label]string{
	emotion.Happy:       "happy",
	emotion.Excited:     "excited",
	emotion.Encouraging: "happy",
	emotion.Thoughtful:  "tender",
	emotion.Sad:         "sad",
	emotion.Angry:       "angry",
	emotion.Surprised:   "surprise",
}

var voiceAliases = map[string]string{
	"sofia":   "en_female_skye_emo_v2_mars_bigtts",
	"kenji":   "en_male_glen_emo_v2_mars_bigtts",
	"mei":     "en_female_candice_emo_v2_mars_bigtts",
	"default": "en_female_skye_emo_v2_mars_bigtts",
}

// NormalizeVoiceAlias maps a character alias to a concrete speaker.
func NormalizeVoiceAlias(voice string) string {
	voice = strings.TrimSpace(voice)
	if mapped, ok := voiceAliases[strings.ToLower(voice)]; ok {
		return mapped
	}
	return voice
}

// EmotionParameters 计算情感合成参数。scale 在 1-5 之间，随强度线性增长。
func EmotionParameters(voice string, label emotion.Label, intensity float64) (enable bool, name string, scale float32) {
	if label == emotion.Neutral || intensity <= 0 || !supportsEmotion(voice) {
		return false, "", 0
	}
	name, ok := ttsEmotions[label]
	if !ok {
		return false, "", 0
	}
	scale = float32(1 + 4*min(intensity, 1))
	return true, name, scale
}

func supportsEmotion(voice string) bool {
	normalized := strings.ToLower(strings.TrimSpace(voice))
	return normalized != "" && strings.Contains(normalized, "_emo")
}
