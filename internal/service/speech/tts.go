// Package speech synthesizes character speech through the Volcengine
// streaming TTS websocket API.
package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/z-tutor/backend/internal/model/speech"
)

const defaultTTSURL = "wss://openspeech.bytedance.com/api/v3/tts/unidirectional/stream"

// ErrEmptyAudio is returned when the server finishes without sending audio.
var ErrEmptyAudio = errors.New("tts audio is empty")

// TTSClient 火山引擎 TTS WebSocket 客户端
type TTSClient struct {
	config *speech.SpeechConfig
	dialer *websocket.Dialer
	url    string
}

// NewTTSClient creates a client. BaseURL overrides the official endpoint.
func NewTTSClient(cfg *speech.SpeechConfig) *TTSClient {
	url := strings.TrimSpace(cfg.BaseURL)
	if url == "" {
		url = defaultTTSURL
	}
	timeout := 30 * time.Second
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}
	return &TTSClient{
		config: cfg,
		dialer: &websocket.Dialer{HandshakeTimeout: timeout},
		url:    url,
	}
}

type ttsServerMessage struct {
	ReqID    string `json:"reqid"`
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Sequence int    `json:"sequence"`
	Data     string `json:"data"`
	Addition struct {
		Duration string `json:"duration,omitempty"`
	} `json:"addition,omitempty"`
}

type ttsRequest struct {
	User struct {
		UID string `json:"uid"`
	} `json:"user"`
	ReqParams struct {
		Speaker     string         `json:"speaker"`
		Text        string         `json:"text"`
		AudioParams ttsAudioParams `json:"audio_params"`
		Additions   string         `json:"additions,omitempty"`
		Language    string         `json:"language,omitempty"`
	} `json:"req_params"`
}

type ttsAudioParams struct {
	Format          string  `json:"format"`
	SampleRate      int     `json:"sample_rate"`
	EnableTimestamp bool    `json:"enable_timestamp"`
	SpeedRatio      float32 `json:"speed_ratio,omitempty"`
	VolumeRatio     float32 `json:"volume_ratio,omitempty"`
	Emotion         string  `json:"emotion,omitempty"`
	EmotionScale    float32 `json:"emotion_scale,omitempty"`
}

// Synthesize 合成一段语音。遇到音色与资源不匹配时依次尝试候选资源和音色。
func (c *TTSClient) Synthesize(ctx context.Context, req *speech.TTSRequest) (*speech.TTSResponse, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, errors.New("tts text is empty")
	}
	appKey, accessKey, err := c.credentials()
	if err != nil {
		return nil, err
	}

	encoding := strings.TrimSpace(req.Format)
	if encoding == "" || encoding == "wav" {
		encoding = "mp3"
	}

	speakers := speakerCandidates(req.Voice, c.config.TTSVoice)
	var lastMismatch error
	for _, speaker := range speakers {
		for _, resourceID := range c.resourceCandidates(speaker) {
			resp, err := c.synthesizeOnce(ctx, req, appKey, accessKey, speaker, encoding, resourceID)
			if err == nil {
				return resp, nil
			}
			if !isResourceMismatch(err) {
				return nil, err
			}
			log.Debug().Str("speaker", speaker).Str("resource", resourceID).Msg("tts resource mismatch")
			lastMismatch = err
		}
	}
	if lastMismatch != nil {
		return nil, lastMismatch
	}
	return nil, fmt.Errorf("tts: no usable speaker among %v", speakers)
}

func (c *TTSClient) credentials() (string, string, error) {
	appID := strings.TrimSpace(c.config.AppID)
	token := strings.TrimSpace(c.config.AccessToken)
	if token == "" {
		token = strings.TrimSpace(c.config.APIKey)
	}
	if appID == "" || token == "" {
		return "", "", errors.New("火山引擎语音配置缺少 AppID 或 AccessToken")
	}
	return appID, token, nil
}

func (c *TTSClient) synthesizeOnce(ctx context.Context, req *speech.TTSRequest, appKey, accessKey, speaker, encoding, resourceID string) (*speech.TTSResponse, error) {
	connectID := uuid.NewString()
	header := http.Header{}
	header.Set("X-Api-App-Key", appKey)
	header.Set("X-Api-Access-Key", accessKey)
	header.Set("X-Api-Resource-Id", resourceID)
	header.Set("X-Api-Connect-Id", connectID)

	conn, httpResp, err := c.dialer.DialContext(ctx, c.url, header)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to tts websocket: %w", err)
	}
	defer conn.Close()
	if httpResp != nil {
		if logID := httpResp.Header.Get("X-Tt-Logid"); logID != "" {
			log.Debug().Str("logid", logID).Str("session", req.SessionID).Msg("tts connected")
		}
	}

	// 读阻塞时通过关闭连接响应取消
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	payload, err := json.Marshal(c.buildRequest(req, speaker, encoding))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tts request: %w", err)
	}
	frame, err := NewRequestFrame(payload, GzipCompression).MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to encode tts request: %w", err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return nil, fmt.Errorf("failed to send tts request: %w", err)
	}

	var (
		audio    bytes.Buffer
		reqID    string
		duration int64
	)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("failed to read tts response: %w", err)
		}
		msg, err := ReadFrame(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to decode tts frame: %w", err)
		}

		switch msg.Type {
		case ErrorMessage:
			return nil, fmt.Errorf("tts error %d: %s", msg.ErrorCode, string(msg.Payload))

		case AudioOnlyServerResponse:
			audio.Write(msg.Payload)
			if !msg.Last() {
				continue
			}

		case FullServerResponse:
			var server ttsServerMessage
			if len(msg.Payload) > 0 {
				if err := json.Unmarshal(msg.Payload, &server); err != nil {
					log.Warn().Err(err).Msg("tts: unparseable server payload")
				}
			}
			if server.Code != 0 && server.Code != 3000 {
				return nil, fmt.Errorf("tts api error %d: %s", server.Code, server.Message)
			}
			if server.ReqID != "" {
				reqID = server.ReqID
			}
			if ms, err := strconv.ParseInt(server.Addition.Duration, 10, 64); err == nil {
				duration = ms
			}
			if server.Data != "" {
				chunk, err := base64.StdEncoding.DecodeString(server.Data)
				if err != nil {
					return nil, fmt.Errorf("failed to decode audio chunk: %w", err)
				}
				audio.Write(chunk)
			}
			finished := msg.hasEvent() && msg.Event == EventSessionFinished
			if !finished && !msg.Last() && server.Sequence >= 0 {
				continue
			}

		default:
			log.Debug().Int("type", int(msg.Type)).Msg("tts: unexpected frame")
			continue
		}

		// 到这里说明服务端已经发送最后一包
		if audio.Len() == 0 {
			return nil, ErrEmptyAudio
		}
		if reqID == "" {
			reqID = connectID
		}
		return &speech.TTSResponse{
			SessionID: req.SessionID,
			AudioData: audio.Bytes(),
			Duration:  duration,
			Format:    encoding,
			RequestID: reqID,
			CreatedAt: time.Now(),
		}, nil
	}
}

func (c *TTSClient) buildRequest(req *speech.TTSRequest, speaker, encoding string) *ttsRequest {
	out := &ttsRequest{}
	out.User.UID = req.SessionID
	if out.User.UID == "" {
		out.User.UID = uuid.NewString()
	}
	out.ReqParams.Speaker = speaker
	out.ReqParams.Text = req.Text
	out.ReqParams.AudioParams = ttsAudioParams{
		Format:          encoding,
		SampleRate:      24000,
		EnableTimestamp: true,
	}

	speed := req.Speed
	if speed <= 0 {
		speed = c.config.TTSSpeed
	}
	if speed > 0 && speed != 1 {
		out.ReqParams.AudioParams.SpeedRatio = speed
	}
	volume := req.Volume
	if volume <= 0 {
		volume = c.config.TTSVolume
	}
	if volume > 0 && volume != 1 {
		out.ReqParams.AudioParams.VolumeRatio = volume
	}
	if req.EnableEmotion && req.Emotion != "" {
		out.ReqParams.AudioParams.Emotion = req.Emotion
		out.ReqParams.AudioParams.EmotionScale = req.EmotionScale
	}

	language := strings.TrimSpace(req.Language)
	if language == "" {
		language = strings.TrimSpace(c.config.TTSLanguage)
	}
	out.ReqParams.Language = language
	out.ReqParams.Additions = `{"disable_markdown_filter":false}`
	return out
}

func (c *TTSClient) resourceCandidates(speaker string) []string {
	if id := strings.TrimSpace(c.config.ResourceID); id != "" {
		return []string{id}
	}
	return resourceCandidates(speaker)
}

func resourceCandidates(voice string) []string {
	const (
		standard = "volc.service_type.10029"
		mega     = "volc.megatts.default"
		seed     = "seed-tts-2.0"
	)
	voice = strings.TrimSpace(voice)
	switch {
	case voice == "":
		return []string{standard, seed}
	case strings.HasPrefix(voice, "S_"):
		return []string{mega}
	}
	lower := strings.ToLower(voice)
	for _, hint := range []string{"bigtts", "seed", "megatts", "uranus", "venus", "jupiter", "mars"} {
		if strings.Contains(lower, hint) {
			return []string{seed, standard}
		}
	}
	return []string{standard, seed}
}

func speakerCandidates(requested, fallback string) []string {
	var out []string
	for _, s := range []string{requested, fallback} {
		s = NormalizeVoiceAlias(s)
		if s == "" {
			continue
		}
		dup := false
		for _, existing := range out {
			if strings.EqualFold(existing, s) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, s)
		}
	}
	return out
}

func isResourceMismatch(err error) bool {
	return err != nil && strings.Contains(err.Error(), "resource ID is mismatched with speaker related resource")
}
