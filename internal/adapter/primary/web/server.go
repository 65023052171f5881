package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"audiodev-manager/internal/domain"
	"audiodev-manager/internal/logging"
	"audiodev-manager/internal/usecase"
)

//go:embed static/*
var rawStatic embed.FS
var staticContent fs.FS

func init() {
	var err error
	staticContent, err = fs.Sub(rawStatic, "static")
	if err != nil {
		panic(err)
	}
}

// Server is a primary adapter that exposes the engine over HTTP, with a websocket
// stream of volume-change events. It depends on the use case (primary port).
type Server struct {
	usecase  usecase.AudioManagerUseCase
	server   *http.Server
	upgrader websocket.Upgrader
	hub      *eventHub

	mu           sync.Mutex
	eventsActive bool
}

// NewServer creates the HTTP server bound to addr.
func NewServer(uc usecase.AudioManagerUseCase, addr string) *Server {
	srv := &Server{
		usecase: uc,
		hub:     newEventHub(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// The server binds to loopback by default; non-browser clients send no Origin.
				return true
			},
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/devices", srv.handleDevices)
	mux.HandleFunc("GET /api/default", srv.handleGetDefault)
	mux.HandleFunc("PUT /api/default", srv.handleSwitchDefault)
	mux.HandleFunc("GET /api/devices/{name}/volume", srv.handleGetVolume)
	mux.HandleFunc("PUT /api/devices/{name}/volume", srv.handleSetVolume)
	mux.HandleFunc("GET /api/devices/{name}/mute", srv.handleGetMute)
	mux.HandleFunc("PUT /api/devices/{name}/mute", srv.handleSetMute)
	mux.HandleFunc("PUT /api/devices/{name}/custom-property", srv.handleSetCustomProperty)
	mux.HandleFunc("GET /api/monitor", srv.handleMonitor)
	mux.HandleFunc("GET /api/events", srv.handleEvents)
	mux.Handle("GET /", http.FileServer(http.FS(staticContent)))

	srv.server = &http.Server{
		Addr:    addr,
		Handler: loggingMiddleware(mux),
	}
	return srv
}

// Handler exposes the routed handler (used by tests and embedding).
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// StartEvents takes the engine's monitoring subscription and fans it out to
// websocket clients.
func (s *Server) StartEvents() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.eventsActive {
		return nil
	}
	s.hub.reopen()
	if _, err := s.usecase.StartVolumeMonitoring(s.hub.publish); err != nil {
		return err
	}
	s.eventsActive = true
	return nil
}

// StopEvents releases the monitoring subscription and disconnects stream clients.
func (s *Server) StopEvents() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.eventsActive {
		return nil
	}
	s.eventsActive = false
	err := s.usecase.StopVolumeMonitoring()
	s.hub.closeAll()
	return err
}

// Start blocks and serves HTTP traffic.
func (s *Server) Start() error {
	if err := s.StartEvents(); err != nil {
		logging.Warnf("event stream disabled: %v", err)
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	evErr := s.StopEvents()
	if err := s.server.Shutdown(ctx); err != nil {
		return err
	}
	return evErr
}

type deviceView struct {
	Name    string   `json:"name"`
	Default bool     `json:"default"`
	Volume  *float64 `json:"volume,omitempty"`
	Muted   *bool    `json:"muted,omitempty"`
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	names, err := s.usecase.ListOutputDeviceNames()
	if err != nil {
		respondError(w, err)
		return
	}
	def, err := s.usecase.DefaultDeviceName()
	if err != nil {
		logging.Debugf("default device unavailable: %v", err)
	}

	views := make([]deviceView, 0, len(names))
	for _, name := range names {
		view := deviceView{Name: name, Default: name == def}
		if v, err := s.usecase.Volume(name); err == nil {
			view.Volume = &v
		}
		if m, err := s.usecase.MuteState(name); err == nil {
			view.Muted = &m
		}
		views = append(views, view)
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"devices": views,
		"default": def,
	})
}

func (s *Server) handleGetDefault(w http.ResponseWriter, r *http.Request) {
	name, err := s.usecase.DefaultDeviceName()
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"device": name})
}

func (s *Server) handleSwitchDefault(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Device string `json:"device"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Device == "" {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if err := s.usecase.SwitchDefaultDevice(req.Device); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"device": req.Device})
}

func (s *Server) handleGetVolume(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	v, err := s.usecase.Volume(name)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"device": name, "volume": v})
}

func (s *Server) handleSetVolume(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	var req struct {
		Volume *float64 `json:"volume"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Volume == nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if err := s.usecase.SetVolume(name, *req.Volume); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"device": name, "volume": *req.Volume})
}

func (s *Server) handleGetMute(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	muted, err := s.usecase.MuteState(name)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"device": name, "muted": muted})
}

func (s *Server) handleSetMute(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	var req struct {
		Muted *bool `json:"muted"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Muted == nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if err := s.usecase.SetMuteState(name, *req.Muted); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"device": name, "muted": *req.Muted})
}

func (s *Server) handleSetCustomProperty(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	var req struct {
		Value *string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Value == nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if err := s.usecase.SetVirtualDeviceCustomProperty(name, *req.Value); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"device": name, "value": *req.Value})
}

func (s *Server) handleMonitor(w http.ResponseWriter, r *http.Request) {
	sub, ok := s.usecase.MonitoringSubscription()
	view := map[string]any{
		"active":  ok,
		"clients": s.hub.count(),
	}
	if ok {
		view["subscription"] = sub.ID.String()
		view["devices"] = sub.Devices
		view["startedAt"] = sub.StartedAt
	}
	respondJSON(w, http.StatusOK, view)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	active := s.eventsActive
	s.mu.Unlock()
	if !active {
		http.Error(w, "volume monitoring is not active", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade: %v", err)
		return
	}
	defer conn.Close()

	events := s.hub.subscribe()
	defer s.hub.unsubscribe(events)

	// Drain client frames so close and pong are processed.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logging.Debugf("websocket read: %v", err)
				}
				return
			}
		}
	}()

	const writeDeadline = 10 * time.Second
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "monitoring stopped"),
					time.Now().Add(time.Second))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := conn.WriteJSON(ev); err != nil {
				logging.Debugf("websocket write: %v", err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeDeadline)); err != nil {
				return
			}
		case <-gone:
			return
		}
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrDeviceNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidVolume):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrPropertyUnsupported):
		return http.StatusConflict
	case errors.Is(err, domain.ErrPlatformUnsupported):
		return http.StatusNotImplemented
	case errors.Is(err, domain.ErrDeviceQuery):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respondError(w http.ResponseWriter, err error) {
	respondJSON(w, statusFor(err), map[string]any{"error": err.Error()})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode JSON: %v", err)
	}
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logging.Infof("%s %s %s", r.Method, r.URL.Path, time.Since(start))
	})
}
