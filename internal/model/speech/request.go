package speech

// TTSRequest 语音合成请求
type TTSRequest struct {
	SessionID string  `json:"sessionId"`
	Text      string  `json:"text"`
	Voice     string  `json:"voice"`    // 声音类型
	Speed     float32 `json:"speed"`    // 语速倍率 0.5-2.0
	Volume    float32 `json:"volume"`   // 音量 0.0-1.0
	Format    string  `json:"format"`   // mp3, pcm
	Language  string  `json:"language"` // zh-CN, en-US, etc.

	// 情绪参数，仅对支持情绪的音色生效
	EnableEmotion bool    `json:"enableEmotion,omitempty"`
	Emotion       string  `json:"emotion,omitempty"`
	EmotionScale  float32 `json:"emotionScale,omitempty"`
}
