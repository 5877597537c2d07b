package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zhouzirui/z-tutor/backend/internal/handler/chat"
	"github.com/zhouzirui/z-tutor/backend/internal/handler/persona"
	"github.com/zhouzirui/z-tutor/backend/internal/handler/realtime"
	"github.com/zhouzirui/z-tutor/backend/internal/metrics"
	personaModel "github.com/zhouzirui/z-tutor/backend/internal/model/persona"
	"github.com/zhouzirui/z-tutor/backend/pkg/utils"
)

// Dependencies are the services the HTTP surface exposes.
type Dependencies struct {
	Personas      personaModel.Store
	Conversations chat.Conversations
	Realtime      *realtime.Handler
	// AudioDir is served under /audio when set.
	AudioDir string
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Requested-With"},
		MaxAge:         300,
	}))
	r.Use(metrics.Instrument)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	if deps.AudioDir != "" {
		r.Handle("/audio/*", http.StripPrefix("/audio/", http.FileServer(http.Dir(deps.AudioDir))))
	}

	r.Route("/api", func(api chi.Router) {
		persona.New(deps.Personas).RegisterRoutes(api)
		if deps.Conversations != nil {
			chat.New(deps.Conversations).RegisterRoutes(api)
		}
		if deps.Realtime != nil {
			deps.Realtime.RegisterRoutes(api)
		}
	})

	return r
}
