package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/rasa-chat/backend/internal/service/session"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second
)

// Handler drives a widget session over a WebSocket.
type Handler struct {
	sessions *session.Registry
	upgrader websocket.Upgrader
}

// New creates the WebSocket handler.
func New(sessions *session.Registry) *Handler {
	return &Handler{
		sessions: sessions,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes mounts the WebSocket endpoint.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/{sessionID}", h.handleWebSocket)
}

type inboundMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// ComposerMessage carries the current input text.
type ComposerMessage struct {
	Text string `json:"text"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	ctrl, err := h.sessions.Get(r.Context(), sessionID)
	if err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("component", "websocket").Msg("upgrade failed")
		return
	}
	defer conn.Close()

	logger := log.With().Str("component", "websocket").Str("session_id", sessionID).Logger()
	logger.Debug().Msg("connection opened")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	updates, unsubscribe := ctrl.Subscribe()
	defer unsubscribe()

	// The writer goroutine owns every write on conn.
	errs := make(chan string, 8)
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.writeLoop(ctx, conn, ctrl, updates, errs, logger)
		// unblocks ReadJSON when the writer stops first
		conn.Close()
	}()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug().Err(err).Msg("read error")
			}
			break
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		if msg.SessionID != "" && msg.SessionID != sessionID {
			report(errs, "session mismatch")
			continue
		}
		if problem := h.handleMessage(ctrl, &msg); problem != "" {
			report(errs, problem)
		}
	}

	cancel()
	<-done
	logger.Debug().Msg("connection closed")
}

// handleMessage applies one inbound command and returns a user-facing problem, if any.
func (h *Handler) handleMessage(ctrl *session.Controller, msg *inboundMessage) string {
	switch msg.Type {
	case "composer":
		var composer ComposerMessage
		if err := json.Unmarshal(msg.Data, &composer); err != nil {
			return "invalid composer payload"
		}
		ctrl.UpdateComposer(composer.Text)
	case "submit":
		// A rejected submit is silent; the view already tells the client why.
		ctrl.Submit()
	default:
		return "unsupported message type: " + msg.Type
	}
	return ""
}

func report(errs chan<- string, problem string) {
	select {
	case errs <- problem:
	default:
	}
}

func (h *Handler) writeLoop(ctx context.Context, conn *websocket.Conn, ctrl *session.Controller, updates <-chan struct{}, errs <-chan string, logger zerolog.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	write := func(msg outgoingMessage) bool {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(msg); err != nil {
			logger.Debug().Err(err).Msg("write failed")
			return false
		}
		return true
	}

	if !write(viewMessage(ctrl)) {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case _, open := <-updates:
			if !open {
				write(outgoingMessage{Type: "closed", SessionID: ctrl.ID(), Timestamp: time.Now().Unix()})
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"))
				return
			}
			if !write(viewMessage(ctrl)) {
				return
			}
		case problem := <-errs:
			if !write(outgoingMessage{
				Type:      "error",
				Data:      map[string]string{"message": problem},
				Timestamp: time.Now().Unix(),
			}) {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func viewMessage(ctrl *session.Controller) outgoingMessage {
	return outgoingMessage{
		Type:      "view",
		SessionID: ctrl.ID(),
		Data:      ctrl.View(),
		Timestamp: time.Now().Unix(),
	}
}
