package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/z-tutor/backend/internal/config"
	"github.com/zhouzirui/z-tutor/backend/internal/handler"
	"github.com/zhouzirui/z-tutor/backend/internal/handler/realtime"
	"github.com/zhouzirui/z-tutor/backend/internal/logging"
	"github.com/zhouzirui/z-tutor/backend/internal/model/persona"
	"github.com/zhouzirui/z-tutor/backend/internal/service/ai"
	"github.com/zhouzirui/z-tutor/backend/internal/service/avatar"
	"github.com/zhouzirui/z-tutor/backend/internal/service/generation"
	"github.com/zhouzirui/z-tutor/backend/internal/service/orchestrator"
	"github.com/zhouzirui/z-tutor/backend/internal/service/prompt"
	"github.com/zhouzirui/z-tutor/backend/internal/service/speech"
	"github.com/zhouzirui/z-tutor/backend/internal/service/voice"
	"github.com/zhouzirui/z-tutor/backend/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	logging.Setup(cfg.Log)
	if envErr != nil {
		log.Warn().Err(envErr).Msg("未找到 .env 文件，仅使用系统环境变量")
	}

	personas := persona.Seed()
	if cfg.CharactersFile != "" {
		personas, err = persona.LoadFile(cfg.CharactersFile)
		if err != nil {
			log.Fatal().Err(err).Str("file", cfg.CharactersFile).Msg("failed to load characters")
		}
	}
	personaStore := persona.NewMemoryStore(personas)
	log.Info().Int("count", len(personas)).Msg("characters loaded")

	sessions, err := newStore(cfg.Store)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open session store")
	}
	defer func() {
		if err := sessions.Close(); err != nil {
			log.Warn().Err(err).Msg("session store close failed")
		}
	}()

	primary, secondary := newProviders(ctx, cfg)
	if primary == nil && secondary == nil {
		log.Warn().Msg("没有可用的模型，所有回复都会使用角色的兜底台词")
	}

	var voiceSvc orchestrator.VoiceSynthesizer
	if cfg.Speech.Enabled {
		audio, err := voice.NewFileStore(cfg.Voice.AudioDir, cfg.Voice.AudioBaseURL)
		if err != nil {
			log.Warn().Err(err).Msg("audio directory unavailable, voice disabled")
		} else {
			voiceSvc = voice.NewCoordinator(speech.NewTTSClient(cfg.Speech.Client()), audio, cfg.Voice)
			log.Info().Str("dir", audio.Dir()).Msg("voice synthesis enabled")
		}
	} else {
		log.Info().Msg("语音服务凭证未配置，跳过语音功能初始化")
	}

	orch := orchestrator.New(orchestrator.Options{
		Session:   cfg.Session,
		Animation: cfg.Animation,
		Personas:  personaStore,
		Store:     sessions,
		Builder:   prompt.NewBuilder(cfg.Prompt),
		Generator: generation.NewManager(cfg.Generation, primary, secondary),
		Machine:   avatar.NewMachine(cfg.Animation, nil),
		Voice:     voiceSvc,
	})
	defer orch.Shutdown()

	deps := handler.Dependencies{
		Personas:      personaStore,
		Conversations: orch,
		Realtime:      realtime.New(orch, cfg.Session.OutboxSize),
	}
	if voiceSvc != nil {
		deps.AudioDir = cfg.Voice.AudioDir
	}

	startServer(ctx, cfg.Server, handler.NewRouter(deps))
}

func newStore(cfg config.StoreConfig) (store.Store, error) {
	if cfg.RedisAddr == "" {
		log.Info().Msg("using in-memory session store")
		return store.NewMemoryStore(), nil
	}
	s, err := store.NewRedisStore(cfg)
	if err != nil {
		return nil, err
	}
	log.Info().Str("addr", cfg.RedisAddr).Msg("using redis session store")
	return s, nil
}

// newProviders returns untyped nil for any provider that is not configured.
func newProviders(ctx context.Context, cfg *config.Config) (ai.Provider, ai.Provider) {
	var primary, secondary ai.Provider

	if cfg.AI.Enabled() {
		chatModel, err := cfg.AI.NewChatModel(ctx)
		if err == nil {
			var p *ai.EinoProvider
			p, err = ai.NewEinoProvider(ctx, "ark", chatModel)
			if err == nil {
				primary = p
			}
		}
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize primary model, 请检查 Ark 模型相关环境变量")
		} else {
			log.Info().Str("model", cfg.AI.Model).Msg("primary model initialized")
		}
	} else {
		log.Info().Msg("Ark 凭证未配置，跳过主模型初始化")
	}

	if cfg.Secondary.Enabled() {
		p, err := ai.NewOpenAIProvider(cfg.Secondary, cfg.Generation.AttemptTimeout)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize secondary model")
		} else {
			secondary = p
			log.Info().Str("model", cfg.Secondary.Model).Msg("secondary model initialized")
		}
	}

	return primary, secondary
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Info().Str("addr", addr).Msg("Z Tutor backend listening")
	if err := runServer(ctx, srv); err != nil {
		log.Error().Err(err).Msg("server error")
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
