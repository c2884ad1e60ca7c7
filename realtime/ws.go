package realtime

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"loadboard/auth"
	"loadboard/load"
)

// TokenVerifier authenticates a bearer token into an identity and role.
type TokenVerifier interface {
	VerifyToken(token string) (string, auth.Role, error)
}

// LocationPublisher persists a carrier position and triggers fan-out. The
// implementation rejects publishers that are not the assigned carrier.
type LocationPublisher interface {
	PublishLocation(ctx context.Context, carrierID, loadID string, lat, lng float64) (load.Load, error)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// clientFrame is what connected clients send: channel management or a
// carrier location report.
type clientFrame struct {
	Action    string  `json:"action"`
	LoadID    string  `json:"loadId"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Handler upgrades HTTP requests to websocket connections attached to the hub.
type Handler struct {
	hub       *Hub
	verifier  TokenVerifier
	publisher LocationPublisher
	logger    *slog.Logger
}

func NewHandler(hub *Hub, verifier TokenVerifier, publisher LocationPublisher, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		hub:       hub,
		verifier:  verifier,
		publisher: publisher,
		logger:    logger,
	}
}

// ServeHTTP authenticates the connection, registers it with the hub, and runs
// the read/write pumps until the client goes away.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, role, err := h.authenticate(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	sub := h.hub.Register()
	defer sub.Close()
	defer conn.Close()

	go h.writePump(conn, sub)
	h.readPump(r.Context(), conn, sub, userID, role)
}

func (h *Handler) authenticate(r *http.Request) (string, auth.Role, error) {
	token := r.URL.Query().Get("token")
	if token == "" {
		header := r.Header.Get("Authorization")
		token = strings.TrimPrefix(header, "Bearer ")
		if token == header {
			token = ""
		}
	}
	if token == "" {
		return "", "", errors.New("realtime: missing token")
	}
	return h.verifier.VerifyToken(token)
}

func (h *Handler) readPump(ctx context.Context, conn *websocket.Conn, sub *Subscription, userID string, role auth.Role) {
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var frame clientFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read ended", "user_id", userID, "error", err)
			}
			return
		}

		switch frame.Action {
		case "subscribe":
			sub.Join(frame.LoadID)
		case "unsubscribe":
			sub.Leave(frame.LoadID)
		case "updateCarrierLocation":
			h.handleLocation(ctx, sub, frame, userID, role)
		default:
			sub.send(Event{Name: "error", Payload: "unknown action " + frame.Action})
		}
	}
}

// handleLocation persists then broadcasts. Only the assigned carrier's report
// is accepted; everyone else gets an error event and nothing is stored or
// fanned out.
func (h *Handler) handleLocation(ctx context.Context, sub *Subscription, frame clientFrame, userID string, role auth.Role) {
	if role != auth.RoleCarrier {
		sub.send(Event{Name: "error", LoadID: frame.LoadID, Payload: "only carriers can publish location"})
		return
	}

	if _, err := h.publisher.PublishLocation(ctx, userID, frame.LoadID, frame.Latitude, frame.Longitude); err != nil {
		switch {
		case errors.Is(err, load.ErrNotFound):
			sub.send(Event{Name: "error", LoadID: frame.LoadID, Payload: "load not found"})
		case errors.Is(err, load.ErrNotAssigned):
			sub.send(Event{Name: "error", LoadID: frame.LoadID, Payload: "load is not assigned to you"})
		case errors.Is(err, load.ErrValidation):
			sub.send(Event{Name: "error", LoadID: frame.LoadID, Payload: "invalid coordinates"})
		default:
			h.logger.Error("location publish failed", "load_id", frame.LoadID, "error", err)
			sub.send(Event{Name: "error", LoadID: frame.LoadID, Payload: "location update failed"})
		}
	}
}

func (h *Handler) writePump(conn *websocket.Conn, sub *Subscription) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-sub.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				conn.Close()
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close()
				return
			}
		}
	}
}
