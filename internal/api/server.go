package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/kdscrypto/yamo-cameroon-rendezvous-hub-sub002/internal/alerts"
	"github.com/kdscrypto/yamo-cameroon-rendezvous-hub-sub002/internal/config"
	"github.com/kdscrypto/yamo-cameroon-rendezvous-hub-sub002/internal/engine"
	"github.com/kdscrypto/yamo-cameroon-rendezvous-hub-sub002/internal/model"
	"github.com/kdscrypto/yamo-cameroon-rendezvous-hub-sub002/internal/presence"
	"github.com/kdscrypto/yamo-cameroon-rendezvous-hub-sub002/internal/stats"
)

type Server struct {
	cfg      *config.Manager
	engine   *engine.Engine
	alerts   *alerts.Store
	center   *alerts.Center
	presence *presence.Tracker
	stats    *stats.Store
	logger   *slog.Logger
	version  string
}

type statusResponse struct {
	Status      string         `json:"status"`
	Time        string         `json:"time"`
	Version     string         `json:"version"`
	ConfigPath  string         `json:"config_path"`
	EngineStats engine.Stats   `json:"engine"`
	Presence    presence.Stats `json:"presence"`
}

func Start(ctx context.Context, cfg *config.Manager, eng *engine.Engine, alertStore *alerts.Store, center *alerts.Center, tracker *presence.Tracker, statsStore *stats.Store, logger *slog.Logger, version string) *http.Server {
	if cfg == nil {
		return nil
	}
	current := cfg.Get().API
	if !current.Enabled {
		if logger != nil {
			logger.Info("api disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("api enabled", "addr", current.Addr)
	}
	server := &Server{
		cfg:      cfg,
		engine:   eng,
		alerts:   alertStore,
		center:   center,
		presence: tracker,
		stats:    statsStore,
		logger:   logger,
		version:  version,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/status", server.handleStatus)
	mux.HandleFunc("/stats", server.handleStats)
	mux.HandleFunc("/alerts", server.handleAlerts)
	mux.HandleFunc("/alerts/dismiss", server.handleAlertDismiss)
	mux.HandleFunc("/notifications", server.handleNotifications)
	mux.HandleFunc("/notifications/read", server.handleNotificationRead)
	mux.HandleFunc("/notifications/read-all", server.handleNotificationReadAll)
	mux.HandleFunc("/notifications/remove", server.handleNotificationRemove)
	mux.HandleFunc("/notifications/clear", server.handleNotificationClear)
	mux.HandleFunc("/presence", server.handlePresence)
	mux.HandleFunc("/presence/stats", server.handlePresenceStats)
	mux.HandleFunc("/presence/stream", server.handlePresenceStream)
	mux.HandleFunc("/presence/connect", server.handlePresenceSignal)
	mux.HandleFunc("/presence/activity", server.handlePresenceSignal)
	mux.HandleFunc("/presence/visibility", server.handlePresenceSignal)
	mux.HandleFunc("/presence/heartbeat", server.handlePresenceSignal)
	mux.HandleFunc("/presence/disconnect", server.handlePresenceSignal)
	mux.HandleFunc("/test-alert", server.handleTestAlert)
	mux.HandleFunc("/admin/clear", server.handleClear)

	httpServer := &http.Server{Addr: current.Addr, Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if logger != nil {
				logger.Error("api server error", "err", err)
			}
		}
	}()
	return httpServer
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	resp := statusResponse{
		Status:      "ok",
		Time:        time.Now().UTC().Format(time.RFC3339Nano),
		Version:     s.version,
		ConfigPath:  s.cfg.Path(),
		EngineStats: s.engine.Stats(),
		Presence:    s.presence.Stats(),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"engine":   s.engine.Stats(),
		"pipeline": s.stats.Snapshot(),
	})
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	sinceStr := r.URL.Query().Get("since")
	var list []model.Alert
	if sinceStr != "" {
		ts, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		list = s.alerts.Since(ts)
	} else {
		list = s.alerts.List(limit)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": list,
		"count":  len(list),
	})
}

func (s *Server) handleAlertDismiss(w http.ResponseWriter, r *http.Request) {
	id, ok := postedID(w, r)
	if !ok {
		return
	}
	if !s.alerts.Dismiss(id) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"notifications": s.center.List(),
		"unread_count":  s.center.UnreadCount(),
	})
}

func (s *Server) handleNotificationRead(w http.ResponseWriter, r *http.Request) {
	id, ok := postedID(w, r)
	if !ok {
		return
	}
	s.center.MarkRead(id)
	writeJSON(w, http.StatusOK, map[string]any{"unread_count": s.center.UnreadCount()})
}

func (s *Server) handleNotificationReadAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	s.center.MarkAllRead()
	writeJSON(w, http.StatusOK, map[string]any{"unread_count": s.center.UnreadCount()})
}

func (s *Server) handleNotificationRemove(w http.ResponseWriter, r *http.Request) {
	id, ok := postedID(w, r)
	if !ok {
		return
	}
	s.center.Remove(id)
	writeJSON(w, http.StatusOK, map[string]any{"unread_count": s.center.UnreadCount()})
}

func (s *Server) handleNotificationClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	s.center.ClearAll()
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handlePresence(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if userID := r.URL.Query().Get("user_id"); userID != "" {
		p, ok := s.presence.Get(userID)
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, p)
		return
	}
	list := s.presence.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"presence": list,
		"count":    len(list),
	})
}

func (s *Server) handlePresenceStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.presence.Stats())
}

type presenceSignal struct {
	UserID string `json:"user_id"`
	ConnID string `json:"conn_id"`
	Page   string `json:"page"`
	Hidden bool   `json:"hidden"`
}

func (s *Server) handlePresenceSignal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	var sig presenceSignal
	if err := json.Unmarshal(body, &sig); err != nil || sig.ConnID == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	switch r.URL.Path {
	case "/presence/connect":
		if sig.UserID == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		s.presence.Connect(sig.UserID, sig.ConnID, sig.Page)
	case "/presence/activity":
		s.presence.Activity(sig.ConnID, sig.Page)
	case "/presence/visibility":
		if sig.Hidden {
			s.presence.SetHidden(sig.ConnID)
		} else {
			s.presence.SetVisible(sig.ConnID)
		}
	case "/presence/heartbeat":
		s.presence.Heartbeat(sig.ConnID)
	case "/presence/disconnect":
		s.presence.Disconnect(sig.ConnID)
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// handlePresenceStream pushes aggregated presence records over SSE so
// dashboards converge without polling.
func (s *Server) handlePresenceStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := s.presence.Subscribe()
	defer s.presence.Unsubscribe(ch)
	for {
		select {
		case p, open := <-ch:
			if !open {
				return
			}
			data, err := json.Marshal(p)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) handleTestAlert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	report, ok := s.engine.TriggerTestAlert(r.Context())
	if !ok {
		writeJSON(w, http.StatusConflict, map[string]any{"error": "no enabled rules"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"report": report})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, _ := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	var req struct {
		Target string `json:"target"`
	}
	_ = json.Unmarshal(body, &req)
	switch req.Target {
	case "", "all":
		s.alerts.Clear()
		s.center.ClearAll()
		s.engine.Reset()
	case "alerts":
		s.alerts.Clear()
	case "notifications":
		s.center.ClearAll()
	case "counters":
		s.engine.Reset()
	default:
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func postedID(w http.ResponseWriter, r *http.Request) (string, bool) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return "", false
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return "", false
	}
	var req struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &req); err != nil || req.ID == "" {
		w.WriteHeader(http.StatusBadRequest)
		return "", false
	}
	return req.ID, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
