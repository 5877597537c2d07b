package persona

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/z-tutor/backend/internal/model/persona"
	"github.com/zhouzirui/z-tutor/backend/pkg/utils"
)

// Handler 角色列表的HTTP处理器
type Handler struct {
	personas persona.Store
}

// New 创建角色处理器
func New(personas persona.Store) *Handler {
	return &Handler{personas: personas}
}

// RegisterRoutes 注册角色相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/characters", h.handleList)
	r.Get("/characters/{characterID}", h.handleGet)
}

func (h *Handler) handleList(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.personas.List())
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	p, ok := h.personas.FindByID(chi.URLParam(r, "characterID"))
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "character not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, p)
}
