package ingest

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/kdscrypto/yamo-cameroon-rendezvous-hub-sub002/internal/analyze"
	"github.com/kdscrypto/yamo-cameroon-rendezvous-hub-sub002/internal/config"
	"github.com/kdscrypto/yamo-cameroon-rendezvous-hub-sub002/internal/model"
	"github.com/kdscrypto/yamo-cameroon-rendezvous-hub-sub002/internal/normalize"
	"github.com/kdscrypto/yamo-cameroon-rendezvous-hub-sub002/internal/stats"
)

type RESTServer struct {
	cfg      *config.Manager
	out      chan<- model.SecurityEvent
	analyzer *analyze.Analyzer
	counters *stats.Store
	logger   *slog.Logger
}

func StartREST(ctx context.Context, cfg *config.Manager, out chan<- model.SecurityEvent, analyzer *analyze.Analyzer, counters *stats.Store, logger *slog.Logger) *http.Server {
	current := cfg.Get().Ingest.REST
	if !current.Enabled {
		if logger != nil {
			logger.Info("rest ingest disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("rest ingest enabled", "addr", current.Addr)
	}
	server := &RESTServer{cfg: cfg, out: out, analyzer: analyzer, counters: counters, logger: logger}
	mux := http.NewServeMux()
	mux.HandleFunc("/events", server.handleEvents)
	mux.HandleFunc("/analyze", server.handleAnalyze)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
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
				logger.Error("rest ingest server error", "err", err)
			}
		}
	}()
	return httpServer
}

func (s *RESTServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 2<<20))
	if err != nil || len(body) == 0 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	var records []normalize.ChangeRecord
	trimmed := trimSpace(body)
	if len(trimmed) == 0 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &records); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
	} else {
		var rec normalize.ChangeRecord
		if err := json.Unmarshal(trimmed, &rec); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		records = append(records, rec)
	}

	accepted := 0
	failed := 0
	for _, rec := range records {
		ev, err := normalize.FromChange(rec)
		if err != nil {
			if s.counters != nil {
				s.counters.RecordDrop()
			}
			if s.logger != nil {
				s.logger.Warn("rest record dropped", "err", err)
			}
			failed++
			continue
		}
		SendNonBlocking(r.Context(), s.out, ev, s.logger)
		accepted++
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"accepted": accepted,
		"failed":   failed,
	})
}

func (s *RESTServer) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 2<<20))
	if err != nil || len(body) == 0 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	var desc model.RequestDescriptor
	if err := json.Unmarshal(body, &desc); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if desc.IP == "" {
		desc.IP = remoteIP(r)
	}
	findings := s.analyzer.Analyze(desc)
	if len(findings) > 0 {
		if ev, err := normalize.FromRequest(desc, findings); err == nil {
			SendNonBlocking(r.Context(), s.out, ev, s.logger)
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"findings":   findings,
		"suspicious": len(findings) > 0,
	})
}

func remoteIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}

func trimSpace(b []byte) []byte {
	start := 0
	for start < len(b) && (b[start] == ' ' || b[start] == '\n' || b[start] == '\r' || b[start] == '\t') {
		start++
	}
	end := len(b)
	for end > start && (b[end-1] == ' ' || b[end-1] == '\n' || b[end-1] == '\r' || b[end-1] == '\t') {
		end--
	}
	return b[start:end]
}
