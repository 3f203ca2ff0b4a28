// Package server exposes a session over a JSON HTTP API and a WebSocket
// snapshot feed for browser front ends.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tessro/stctl/internal/session"
)

const shutdownTimeout = 5 * time.Second

// Server serves the HTTP API for one session.
type Server struct {
	sess     *session.Session
	hub      *Hub
	router   *mux.Router
	log      *zap.Logger
	upgrader websocket.Upgrader
}

// New creates a server for sess.
func New(sess *session.Session, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		sess: sess,
		hub:  NewHub(log),
		log:  log.With(zap.String("component", "server")),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.router = s.routes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start runs the hub and feeds it store changes until the returned func
// is called.
func (s *Server) Start(ctx context.Context) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	unlisten := s.sess.Store().Listen(s.hub.OnChange)
	go s.hub.Run(ctx)
	return func() {
		unlisten()
		cancel()
	}
}

// Run starts the hub and serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	stop := s.Start(ctx)
	defer stop()

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
		defer done()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.requestID, s.logRequests)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.handleWS)

	api := r.PathPrefix("/api").Subrouter()

	api.Handle("/devices", handler(s.listDevices)).Methods(http.MethodGet)
	api.Handle("/devices", handler(s.addDevice)).Methods(http.MethodPost)
	api.Handle("/devices/discover", handler(s.discover)).Methods(http.MethodPost)
	api.Handle("/devices/{id}", handler(s.getDevice)).Methods(http.MethodGet)
	api.Handle("/devices/{id}", handler(s.forgetDevice)).Methods(http.MethodDelete)
	api.Handle("/devices/{id}/refresh", handler(s.refreshDevice)).Methods(http.MethodPost)
	api.Handle("/devices/{id}/volume", handler(s.setVolume)).Methods(http.MethodPost)
	api.Handle("/devices/{id}/mute", handler(s.setMute)).Methods(http.MethodPost)
	api.Handle("/devices/{id}/bass", handler(s.setBass)).Methods(http.MethodPost)
	api.Handle("/devices/{id}/key", handler(s.sendKey)).Methods(http.MethodPost)
	api.Handle("/devices/{id}/preset", handler(s.selectPreset)).Methods(http.MethodPost)
	api.Handle("/devices/{id}/source", handler(s.selectSource)).Methods(http.MethodPost)

	api.Handle("/zones", handler(s.createZone)).Methods(http.MethodPost)
	api.Handle("/zones/{id}", handler(s.getZone)).Methods(http.MethodGet)
	api.Handle("/zones/{id}", handler(s.dissolveZone)).Methods(http.MethodDelete)
	api.Handle("/zones/{id}/members", handler(s.addZoneMember)).Methods(http.MethodPost)
	api.Handle("/zones/{id}/members/{member}", handler(s.removeZoneMember)).Methods(http.MethodDelete)
	api.Handle("/zones/{id}/everywhere", handler(s.playEverywhere)).Methods(http.MethodPost)
	api.Handle("/zones/{id}/volume", handler(s.setZoneVolume)).Methods(http.MethodPost)

	return r
}

type requestIDKey struct{}

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		id, _ := r.Context().Value(requestIDKey{}).(string)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", id),
			zap.Duration("elapsed", time.Since(start)))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"devices": len(s.sess.Devices()),
		"clients": s.hub.Clients(),
	})
}

// handleWS upgrades the request and sends the full device list before any
// change message.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := newWSClient(s.hub, conn)
	initMsg, err := json.Marshal(envelope{Type: MessageDevices, Ts: time.Now().UTC(), Data: s.deviceStates()})
	if err == nil {
		c.send <- initMsg
	}
	s.hub.register <- c

	// The request context ends when this handler returns.
	go c.writePump()
	go c.readPump()
}

func (s *Server) deviceStates() []DeviceState {
	devices := s.sess.Devices()
	out := make([]DeviceState, 0, len(devices))
	for _, d := range devices {
		snap, ok := s.sess.Snapshot(d.ID)
		if !ok {
			continue
		}
		out = append(out, DeviceState{Device: d, Snapshot: snap})
	}
	return out
}
