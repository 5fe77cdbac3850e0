package chat

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/rasa-chat/backend/internal/model/chat"
	"github.com/zhouzirui/rasa-chat/backend/internal/service/session"
	"github.com/zhouzirui/rasa-chat/backend/pkg/utils"
)

// Handler exposes the widget session over REST.
type Handler struct {
	sessions *session.Registry
}

// New creates the session handler.
func New(sessions *session.Registry) *Handler {
	return &Handler{sessions: sessions}
}

// RegisterRoutes mounts the session routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/session", h.handleMount)
	r.Route("/session/{sessionID}", func(r chi.Router) {
		r.Get("/", h.handleView)
		r.Delete("/", h.handleUnmount)
		r.Put("/composer", h.handleUpdateComposer)
		r.Post("/submit", h.handleSubmit)
	})
}

// SubmitResponse reports whether a submission was accepted, plus the resulting view.
type SubmitResponse struct {
	Accepted bool      `json:"accepted"`
	View     chat.View `json:"view"`
}

func (h *Handler) handleMount(w http.ResponseWriter, r *http.Request) {
	ctrl, err := h.sessions.Mount(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("mount session failed")
		utils.RespondError(w, http.StatusServiceUnavailable, "session unavailable")
		return
	}
	utils.RespondJSON(w, http.StatusCreated, ctrl.View())
}

func (h *Handler) handleView(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.lookup(w, r)
	if !ok {
		return
	}
	utils.RespondJSON(w, http.StatusOK, ctrl.View())
}

func (h *Handler) handleUnmount(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Unmount(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		respondSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleUpdateComposer(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var payload struct {
		Text *string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Text == nil {
		utils.RespondError(w, http.StatusBadRequest, "text is required")
		return
	}

	ctrl.UpdateComposer(*payload.Text)
	utils.RespondJSON(w, http.StatusOK, ctrl.View())
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.lookup(w, r)
	if !ok {
		return
	}

	accepted := ctrl.Submit()
	status := http.StatusOK
	if accepted {
		status = http.StatusAccepted
	}
	utils.RespondJSON(w, status, SubmitResponse{Accepted: accepted, View: ctrl.View()})
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (*session.Controller, bool) {
	ctrl, err := h.sessions.Get(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		respondSessionError(w, err)
		return nil, false
	}
	return ctrl, true
}

func respondSessionError(w http.ResponseWriter, err error) {
	if errors.Is(err, session.ErrSessionNotFound) {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}
	utils.RespondError(w, http.StatusInternalServerError, err.Error())
}
