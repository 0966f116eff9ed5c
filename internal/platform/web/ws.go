package web

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/datavista/launchsim/internal/domain"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true }, // dashboard frontend may be served elsewhere
}

// wsHub holds the single active duplex connection. The session.Gate decides
// admission; the hub only owns the socket so finished job results can be
// pushed to whoever is connected.
type wsHub struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (h *wsHub) set(conn *websocket.Conn) {
	h.mu.Lock()
	h.conn = conn
	h.mu.Unlock()
}

func (h *wsHub) clear(conn *websocket.Conn) {
	h.mu.Lock()
	if h.conn == conn {
		h.conn = nil
	}
	h.mu.Unlock()
}

// push writes msg to the active connection, reporting whether anyone was
// there to receive it.
func (h *wsHub) push(msg string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conn == nil {
		return false
	}
	if err := h.conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		slog.Error("Failed to write to websocket", "error", err)
		return false
	}
	return true
}

// handleWS runs the duplex channel. The connect event maps onto the upgrade
// request (refused with 409 while a session is active), ready fires once the
// socket is up, each inbound message is a data event answered with the echo
// reply, and the read loop ending is the close event.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	id := uuid.New().String()
	if !s.Gate.Admit(id) {
		slog.Warn("Rejected duplex connect, session already active", "remoteAddr", r.RemoteAddr)
		http.Error(w, "a session is already active", http.StatusConflict)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		s.Gate.OnClose()
		return
	}

	s.hub.set(conn)
	slog.Info("Duplex session opened", "sessionID", id, "remoteAddr", conn.RemoteAddr())

	defer func() {
		s.hub.clear(conn)
		s.Gate.OnClose()
		conn.Close()
		slog.Info("Duplex session closed", "sessionID", id)
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		slog.Info("Client msg", "sessionID", id, "payload", string(payload))
		reply := s.Gate.OnData(payload)
		if err := conn.WriteMessage(websocket.TextMessage, []byte(reply)); err != nil {
			return
		}
	}
}

// ForwardResult pushes a finished queued job's summary and log to the active
// duplex session, if any. Used by the result broadcaster.
func (s *Server) ForwardResult(res domain.JobResult) {
	msg := fmt.Sprintf("job %s for user %s finished: %s\n%s", res.JobID, res.User, res.Outcome, res.Log)
	if !s.hub.push(msg) {
		slog.Info("No active session for job result", "jobID", res.JobID)
	}
}
