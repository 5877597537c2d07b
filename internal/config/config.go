package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"

	speechmodel "github.com/zhouzirui/z-tutor/backend/internal/model/speech"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server     ServerConfig
	Log        LogConfig
	AI         AIConfig
	Secondary  SecondaryAIConfig
	Generation GenerationConfig
	Prompt     PromptConfig
	Session    SessionConfig
	Animation  AnimationConfig
	Speech     SpeechConfig
	Voice      VoiceConfig
	Store      StoreConfig
	// CharactersFile 指向角色 YAML 文件，为空时使用内置角色。
	CharactersFile string
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	generation, err := loadGenerationConfig()
	if err != nil {
		return nil, err
	}

	prompt, err := loadPromptConfig()
	if err != nil {
		return nil, err
	}

	session, err := loadSessionConfig()
	if err != nil {
		return nil, err
	}

	animation, err := loadAnimationConfig()
	if err != nil {
		return nil, err
	}

	speech, err := loadSpeechConfig()
	if err != nil {
		return nil, err
	}

	voice, err := loadVoiceConfig()
	if err != nil {
		return nil, err
	}

	store, err := loadStoreConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:         server,
		Log:            loadLogConfig(),
		AI:             ai,
		Secondary:      loadSecondaryAIConfig(),
		Generation:     generation,
		Prompt:         prompt,
		Session:        session,
		Animation:      animation,
		Speech:         speech,
		Voice:          voice,
		Store:          store,
		CharactersFile: strings.TrimSpace(os.Getenv("CHARACTERS_FILE")),
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// LogConfig 描述日志输出。
type LogConfig struct {
	Level  string
	Format string
}

func loadLogConfig() LogConfig {
	return LogConfig{
		Level:  strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info")),
		Format: strings.ToLower(getEnvOrDefault("LOG_FORMAT", "console")),
	}
}

// AIConfig 描述主模型（Ark）相关配置。
type AIConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("ark credentials or model missing: provide ARK_API_KEY + Model or an AK/SK pair")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:       strings.TrimSpace(os.Getenv("Model")),
		BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxTokens,
	}, nil
}

// SecondaryAIConfig 描述备用的 OpenAI 兼容模型。
type SecondaryAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// Enabled 表示备用模型是否可用。
func (c SecondaryAIConfig) Enabled() bool {
	return c.APIKey != "" && c.Model != ""
}

func loadSecondaryAIConfig() SecondaryAIConfig {
	return SecondaryAIConfig{
		APIKey:  strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		Model:   getEnvOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
		BaseURL: strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")),
	}
}

// GenerationConfig 控制流式生成的重试与节奏。
type GenerationConfig struct {
	MaxRetries     int
	RetryInitial   time.Duration
	RetryMax       time.Duration
	ChunkInterval  time.Duration
	MaxChunkRunes  int
	AttemptTimeout time.Duration
}

func loadGenerationConfig() (GenerationConfig, error) {
	cfg := GenerationConfig{
		MaxRetries:     2,
		RetryInitial:   250 * time.Millisecond,
		RetryMax:       2 * time.Second,
		ChunkInterval:  60 * time.Millisecond,
		MaxChunkRunes:  240,
		AttemptTimeout: 45 * time.Second,
	}

	if v, err := parseOptionalIntEnv("GEN_MAX_RETRIES"); err != nil {
		return cfg, err
	} else if v != nil {
		cfg.MaxRetries = max(*v, 0)
	}
	if v, err := parseDurationMillisEnv("GEN_RETRY_INITIAL_MS"); err != nil {
		return cfg, err
	} else if v != nil {
		cfg.RetryInitial = *v
	}
	if v, err := parseDurationMillisEnv("GEN_RETRY_MAX_MS"); err != nil {
		return cfg, err
	} else if v != nil {
		cfg.RetryMax = *v
	}
	if v, err := parseDurationMillisEnv("GEN_CHUNK_INTERVAL_MS"); err != nil {
		return cfg, err
	} else if v != nil {
		cfg.ChunkInterval = *v
	}
	if v, err := parseOptionalIntEnv("GEN_MAX_CHUNK_RUNES"); err != nil {
		return cfg, err
	} else if v != nil && *v > 0 {
		cfg.MaxChunkRunes = *v
	}
	if v, err := parseOptionalIntEnv("GEN_ATTEMPT_TIMEOUT_S"); err != nil {
		return cfg, err
	} else if v != nil && *v > 0 {
		cfg.AttemptTimeout = time.Duration(*v) * time.Second
	}
	return cfg, nil
}

// PromptConfig 描述提示词各部分的 token 预算。
type PromptConfig struct {
	TotalTokens       int
	PersonalityTokens int
	HistoryTokens     int
	LearningTokens    int
}

func loadPromptConfig() (PromptConfig, error) {
	cfg := PromptConfig{
		TotalTokens:       3000,
		PersonalityTokens: 800,
		HistoryTokens:     1600,
		LearningTokens:    300,
	}
	fields := []struct {
		key string
		dst *int
	}{
		{"PROMPT_TOTAL_TOKENS", &cfg.TotalTokens},
		{"PROMPT_PERSONALITY_TOKENS", &cfg.PersonalityTokens},
		{"PROMPT_HISTORY_TOKENS", &cfg.HistoryTokens},
		{"PROMPT_LEARNING_TOKENS", &cfg.LearningTokens},
	}
	for _, f := range fields {
		v, err := parseOptionalIntEnv(f.key)
		if err != nil {
			return cfg, err
		}
		if v != nil {
			if *v <= 0 {
				return cfg, fmt.Errorf("invalid %s value %d: must be positive", f.key, *v)
			}
			*f.dst = *v
		}
	}
	return cfg, nil
}

// SessionConfig 描述会话级别的并发与历史策略。
type SessionConfig struct {
	AllowInterrupt  bool
	HistoryTokens   int
	MaxHistoryTurns int
	MaxNotes        int
	SlowResponse    time.Duration
	OutboxSize      int
}

func loadSessionConfig() (SessionConfig, error) {
	cfg := SessionConfig{
		AllowInterrupt:  true,
		HistoryTokens:   4000,
		MaxHistoryTurns: 60,
		MaxNotes:        12,
		SlowResponse:    5 * time.Second,
		OutboxSize:      64,
	}

	allow, err := parseBoolEnv("SESSION_ALLOW_INTERRUPT", true)
	if err != nil {
		return cfg, err
	}
	cfg.AllowInterrupt = allow

	if v, err := parseOptionalIntEnv("SESSION_HISTORY_TOKENS"); err != nil {
		return cfg, err
	} else if v != nil && *v > 0 {
		cfg.HistoryTokens = *v
	}
	if v, err := parseOptionalIntEnv("SESSION_HISTORY_MAX_TURNS"); err != nil {
		return cfg, err
	} else if v != nil && *v > 0 {
		cfg.MaxHistoryTurns = *v
	}
	if v, err := parseOptionalIntEnv("SESSION_MAX_NOTES"); err != nil {
		return cfg, err
	} else if v != nil && *v >= 0 {
		cfg.MaxNotes = *v
	}
	if v, err := parseDurationMillisEnv("SESSION_SLOW_RESPONSE_MS"); err != nil {
		return cfg, err
	} else if v != nil {
		cfg.SlowResponse = *v
	}
	if v, err := parseOptionalIntEnv("SESSION_OUTBOX_SIZE"); err != nil {
		return cfg, err
	} else if v != nil && *v > 0 {
		cfg.OutboxSize = *v
	}
	return cfg, nil
}

// AnimationConfig 描述表情与动画状态机的参数。
type AnimationConfig struct {
	TransitionSpeed float64
	SnapThreshold   float64
	DecayRate       float64
	AutoDecay       bool
	IdleTick        time.Duration
	IdleWindow      time.Duration
	BlinkInterval   time.Duration
}

func loadAnimationConfig() (AnimationConfig, error) {
	cfg := AnimationConfig{
		TransitionSpeed: 0.35,
		SnapThreshold:   0.5,
		DecayRate:       0.05,
		AutoDecay:       true,
		IdleTick:        500 * time.Millisecond,
		IdleWindow:      8 * time.Second,
		BlinkInterval:   4 * time.Second,
	}

	floats := []struct {
		key string
		dst *float64
	}{
		{"ANIM_TRANSITION_SPEED", &cfg.TransitionSpeed},
		{"ANIM_SNAP_THRESHOLD", &cfg.SnapThreshold},
		{"EMOTION_DECAY_RATE", &cfg.DecayRate},
	}
	for _, f := range floats {
		v, err := parseOptionalFloatEnv(f.key)
		if err != nil {
			return cfg, err
		}
		if v != nil {
			if *v < 0 || *v > 1 {
				return cfg, fmt.Errorf("invalid %s value %v: must be within [0,1]", f.key, *v)
			}
			*f.dst = *v
		}
	}

	auto, err := parseBoolEnv("EMOTION_AUTO_DECAY", true)
	if err != nil {
		return cfg, err
	}
	cfg.AutoDecay = auto

	if v, err := parseDurationMillisEnv("ANIM_IDLE_TICK_MS"); err != nil {
		return cfg, err
	} else if v != nil && *v > 0 {
		cfg.IdleTick = *v
	}
	if v, err := parseOptionalIntEnv("ANIM_IDLE_WINDOW_S"); err != nil {
		return cfg, err
	} else if v != nil && *v > 0 {
		cfg.IdleWindow = time.Duration(*v) * time.Second
	}
	if v, err := parseOptionalIntEnv("ANIM_BLINK_INTERVAL_S"); err != nil {
		return cfg, err
	} else if v != nil && *v > 0 {
		cfg.BlinkInterval = time.Duration(*v) * time.Second
	}
	return cfg, nil
}

// SpeechConfig 描述语音合成服务相关配置
type SpeechConfig struct {
	AppID       string
	AccessToken string
	APIKey      string
	BaseURL     string
	ResourceID  string
	TTSVoice    string
	TTSSpeed    float32
	TTSVolume   float32
	TTSLanguage string
	Timeout     int
	Enabled     bool
}

// Client 转换为语音合成客户端使用的配置。
func (c SpeechConfig) Client() *speechmodel.SpeechConfig {
	return &speechmodel.SpeechConfig{
		AppID:       c.AppID,
		AccessToken: c.AccessToken,
		APIKey:      c.APIKey,
		BaseURL:     c.BaseURL,
		ResourceID:  c.ResourceID,
		TTSVoice:    c.TTSVoice,
		TTSSpeed:    c.TTSSpeed,
		TTSVolume:   c.TTSVolume,
		TTSLanguage: c.TTSLanguage,
		Timeout:     c.Timeout,
	}
}

func loadSpeechConfig() (SpeechConfig, error) {
	// 解析超时设置
	timeout, err := parseOptionalIntEnv("SPEECH_TIMEOUT")
	if err != nil {
		return SpeechConfig{}, err
	}
	timeoutSeconds := 30 // 默认30秒
	if timeout != nil {
		timeoutSeconds = *timeout
	}

	speed, err := parseOptionalFloat32Env("SPEECH_TTS_SPEED")
	if err != nil {
		return SpeechConfig{}, err
	}
	ttsSpeed := float32(1.0)
	if speed != nil {
		ttsSpeed = *speed
	}

	volume, err := parseOptionalFloat32Env("SPEECH_TTS_VOLUME")
	if err != nil {
		return SpeechConfig{}, err
	}
	ttsVolume := float32(1.0)
	if volume != nil {
		ttsVolume = *volume
	}

	appID := strings.TrimSpace(os.Getenv("SPEECH_APP_ID"))

	accessToken := strings.TrimSpace(os.Getenv("SPEECH_ACCESS_TOKEN"))
	apiKey := strings.TrimSpace(os.Getenv("SPEECH_API_KEY"))
	if accessToken == "" {
		accessToken = apiKey
	}

	enabled := appID != "" && accessToken != ""

	return SpeechConfig{
		AppID:       appID,
		AccessToken: accessToken,
		APIKey:      apiKey,
		BaseURL:     getEnvOrDefault("SPEECH_BASE_URL", ""),
		ResourceID:  getEnvOrDefault("SPEECH_TTS_RESOURCE_ID", ""),
		TTSVoice:    getEnvOrDefault("SPEECH_TTS_VOICE", ""),
		TTSSpeed:    ttsSpeed,
		TTSVolume:   ttsVolume,
		TTSLanguage: getEnvOrDefault("SPEECH_TTS_LANGUAGE", "en-US"),
		Timeout:     timeoutSeconds,
		Enabled:     enabled,
	}, nil
}

// VoiceConfig 描述合成音频的存储与口型时间线。
type VoiceConfig struct {
	AudioDir     string
	AudioBaseURL string
	BitrateKbps  int
	VisemeWindow time.Duration
}

func loadVoiceConfig() (VoiceConfig, error) {
	cfg := VoiceConfig{
		AudioDir:     getEnvOrDefault("VOICE_AUDIO_DIR", filepath.Join(os.TempDir(), "z-tutor-audio")),
		AudioBaseURL: strings.TrimRight(getEnvOrDefault("VOICE_AUDIO_BASE_URL", "/audio"), "/"),
		BitrateKbps:  128,
		VisemeWindow: 100 * time.Millisecond,
	}
	if v, err := parseOptionalIntEnv("VOICE_BITRATE_KBPS"); err != nil {
		return cfg, err
	} else if v != nil && *v > 0 {
		cfg.BitrateKbps = *v
	}
	if v, err := parseDurationMillisEnv("VOICE_VISEME_WINDOW_MS"); err != nil {
		return cfg, err
	} else if v != nil && *v > 0 {
		cfg.VisemeWindow = *v
	}
	return cfg, nil
}

// StoreConfig 描述会话持久化后端，RedisAddr 为空时使用内存存储。
type StoreConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	KeyPrefix     string
}

func loadStoreConfig() (StoreConfig, error) {
	cfg := StoreConfig{
		RedisAddr:     strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		KeyPrefix:     getEnvOrDefault("REDIS_KEY_PREFIX", "tutor"),
	}
	db, err := parseOptionalIntEnv("REDIS_DB")
	if err != nil {
		return cfg, err
	}
	if db != nil {
		cfg.RedisDB = *db
	}
	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseDurationMillisEnv(key string) (*time.Duration, error) {
	ms, err := parseOptionalIntEnv(key)
	if err != nil || ms == nil {
		return nil, err
	}
	if *ms < 0 {
		return nil, fmt.Errorf("invalid %s value %d: must not be negative", key, *ms)
	}
	d := time.Duration(*ms) * time.Millisecond
	return &d, nil
}

func parseOptionalFloat32Env(key string) (*float32, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	result := float32(val)
	return &result, nil
}
