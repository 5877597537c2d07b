// Command tutorprobe 手动联调工具：通过 WebSocket 与角色对话，或直接测试语音合成。
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/z-tutor/backend/internal/config"
	speechmodel "github.com/zhouzirui/z-tutor/backend/internal/model/speech"
	"github.com/zhouzirui/z-tutor/backend/internal/service/speech"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"})

	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("无法加载 .env，改用系统环境变量")
	}

	mode := flag.String("mode", "chat", "测试模式: chat 或 tts")
	server := flag.String("server", "ws://localhost:8080/api/ws", "WebSocket 地址 (chat)")
	user := flag.String("user", "probe", "用户 ID (chat)")
	character := flag.String("character", "", "角色 ID (chat)")
	text := flag.String("text", "", "发送的消息或待合成文本")
	language := flag.String("lang", "", "语言代码")
	voice := flag.String("voice", "", "TTS 声音 ID，默认使用配置中的 TTSVoice")
	waitVoice := flag.Bool("wait-voice", false, "chat 模式下等待 voice_audio 事件")
	outputPath := flag.String("out", "", "TTS 输出音频文件路径")
	timeout := flag.Duration("timeout", 45*time.Second, "请求超时时间")
	flag.Parse()

	if strings.TrimSpace(*text) == "" {
		flag.Usage()
		log.Fatal().Msg("请通过 -text 提供内容")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	switch *mode {
	case "chat":
		if *character == "" {
			log.Fatal().Msg("chat 模式需要通过 -character 指定角色")
		}
		if err := runChat(ctx, *server, *user, *character, *language, *text, *waitVoice); err != nil {
			log.Fatal().Err(err).Msg("对话测试失败")
		}
	case "tts":
		if err := runTTS(ctx, *text, *voice, *language, *outputPath); err != nil {
			log.Fatal().Err(err).Msg("TTS 测试失败")
		}
	default:
		flag.Usage()
		log.Fatal().Str("mode", *mode).Msg("请通过 -mode=chat 或 -mode=tts 指定测试模式")
	}
}

type frame struct {
	Event  string          `json:"event"`
	TurnID string          `json:"turnId,omitempty"`
	Data   json.RawMessage `json:"data"`
}

func runChat(ctx context.Context, server, user, character, language, text string, waitVoice bool) error {
	u, err := url.Parse(server)
	if err != nil {
		return fmt.Errorf("parse server url: %w", err)
	}
	q := u.Query()
	q.Set("userId", user)
	q.Set("characterId", character)
	if language != "" {
		q.Set("language", language)
	}
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", u.Redacted(), err)
	}
	defer conn.Close()
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	start := time.Now()
	if err := conn.WriteJSON(map[string]any{
		"event": "send_message",
		"data":  map[string]string{"text": text},
	}); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	log.Info().Str("session", user+":"+character).Str("text", text).Msg("消息已发送")

	var reply strings.Builder
	responded := false
	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read event: %w", err)
		}
		elapsed := time.Since(start)

		switch f.Event {
		case "character_stream":
			var chunk struct {
				Text string `json:"text"`
			}
			_ = json.Unmarshal(f.Data, &chunk)
			reply.WriteString(chunk.Text)
			log.Debug().Dur("elapsed", elapsed).Str("chunk", chunk.Text).Msg(f.Event)
		case "character_response":
			responded = true
			log.Info().Dur("elapsed", elapsed).RawJSON("data", f.Data).Msg(f.Event)
			fmt.Println(reply.String())
			if !waitVoice {
				return nil
			}
		case "voice_audio":
			log.Info().Dur("elapsed", elapsed).RawJSON("data", f.Data).Msg(f.Event)
			if responded {
				return nil
			}
		case "error":
			log.Warn().RawJSON("data", f.Data).Msg(f.Event)
		default:
			log.Info().Dur("elapsed", elapsed).Str("turn", f.TurnID).RawJSON("data", f.Data).Msg(f.Event)
		}
	}
}

func runTTS(ctx context.Context, text, voice, language, outputPath string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("配置加载失败: %w", err)
	}
	if !cfg.Speech.Enabled {
		return fmt.Errorf("语音服务未启用，请先在环境变量中配置 SPEECH_*")
	}

	if voice == "" {
		voice = cfg.Speech.TTSVoice
	}
	if language == "" {
		language = cfg.Speech.TTSLanguage
	}
	if outputPath == "" {
		outputPath = fmt.Sprintf("tts-output-%d.mp3", time.Now().Unix())
	}

	client := speech.NewTTSClient(cfg.Speech.Client())
	req := &speechmodel.TTSRequest{
		SessionID: fmt.Sprintf("manual-%d", time.Now().UnixNano()),
		Text:      text,
		Voice:     speech.NormalizeVoiceAlias(voice),
		Format:    "mp3",
		Language:  language,
	}
	log.Info().Str("voice", req.Voice).Str("language", language).Msg("开始进行 TTS 测试")

	resp, err := client.Synthesize(ctx, req)
	if err != nil {
		return err
	}
	if err := os.WriteFile(outputPath, resp.AudioData, 0o644); err != nil {
		return fmt.Errorf("写入音频文件失败: %w", err)
	}
	log.Info().Str("file", outputPath).Int64("duration_ms", resp.Duration).Int("bytes", len(resp.AudioData)).Msg("TTS 合成成功")
	return nil
}
