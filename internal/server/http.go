package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/muurk/rmlink/internal/logging"
	"github.com/muurk/rmlink/internal/version"
	"go.uber.org/zap"
)

// Bridge endpoints
const (
	PathWebSocket = "/ws"
	PathDevices   = "/devices"
	PathHealth    = "/healthz"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(*http.Request) bool { return true },
}

// Handler returns the bridge's HTTP handler
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+PathWebSocket, s.serveWebSocket)
	mux.HandleFunc("GET "+PathDevices, s.serveDevices)
	mux.HandleFunc("GET "+PathHealth, s.serveHealth)
	return mux
}

func (s *Server) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an error response
		logging.Warn("WebSocket upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}

	c := s.hub.add(conn)
	go s.hub.writePump(c)
	go s.hub.readPump(c, s.handle)
}

func (s *Server) serveDevices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.DeviceInfos())
}

func (s *Server) serveHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": version.Version,
		"devices": s.table.Len(),
		"clients": s.hub.Len(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Debug("Failed to write response", zap.Error(err))
	}
}
