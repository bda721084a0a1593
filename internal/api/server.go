package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"notigate/internal/config"
	"notigate/internal/results"
)

// EngineControl is the slice of the pipeline the API needs.
type EngineControl interface {
	ClearBehaviorCache(userID string)
	CachedUsers() int
}

type Server struct {
	cfg     *config.Manager
	history *results.History
	stats   *results.UserStats
	engine  EngineControl
	logger  *slog.Logger
	version string
}

type statusResponse struct {
	Status      string         `json:"status"`
	Time        string         `json:"time"`
	Version     string         `json:"version"`
	ConfigPath  string         `json:"config_path"`
	Pipeline    pipelineStatus `json:"pipeline"`
	Ingest      ingestStatus   `json:"ingest"`
	CachedUsers int            `json:"cached_users"`
}

type pipelineStatus struct {
	MinConfidenceThreshold  float64 `json:"min_confidence_threshold"`
	MaxNotificationsPerHour int     `json:"max_notifications_per_hour"`
	MLFiltering             bool    `json:"ml_filtering"`
	ContextFiltering        bool    `json:"context_filtering"`
	BehaviorAnalysis        bool    `json:"behavior_analysis"`
	AdaptiveFiltering       bool    `json:"adaptive_filtering"`
}

type ingestStatus struct {
	REST  bool `json:"rest"`
	Kafka bool `json:"kafka"`
}

func Start(ctx context.Context, cfg *config.Manager, history *results.History, stats *results.UserStats, engine EngineControl, logger *slog.Logger, version string) *http.Server {
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
		cfg:     cfg,
		history: history,
		stats:   stats,
		engine:  engine,
		logger:  logger,
		version: version,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/status", server.handleStatus)
	mux.HandleFunc("/decisions", server.handleDecisions)
	mux.HandleFunc("/users/", server.handleUserStats)
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
	cfg := s.cfg.Get()
	cached := 0
	if s.engine != nil {
		cached = s.engine.CachedUsers()
	}
	resp := statusResponse{
		Status:     "ok",
		Time:       time.Now().UTC().Format(time.RFC3339Nano),
		Version:    s.version,
		ConfigPath: s.cfg.Path(),
		Pipeline: pipelineStatus{
			MinConfidenceThreshold:  cfg.Pipeline.MinConfidenceThreshold,
			MaxNotificationsPerHour: cfg.Pipeline.MaxNotificationsPerHour,
			MLFiltering:             cfg.Pipeline.EnableMLFiltering,
			ContextFiltering:        cfg.Pipeline.EnableContextFiltering,
			BehaviorAnalysis:        cfg.Pipeline.EnableBehaviorAnalysis,
			AdaptiveFiltering:       cfg.Pipeline.EnableAdaptiveFiltering,
		},
		Ingest: ingestStatus{
			REST:  cfg.Ingest.REST.Enabled,
			Kafka: cfg.Ingest.Kafka.Enabled,
		},
		CachedUsers: cached,
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDecisions(w http.ResponseWriter, r *http.Request) {
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
	var list []results.Decision
	if sinceStr != "" {
		ts, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		list = s.history.Since(ts)
	} else {
		list = s.history.List(limit)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"decisions": list,
		"count":     len(list),
	})
}

func (s *Server) handleUserStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	userID := strings.TrimPrefix(r.URL.Path, "/users/")
	userID = strings.TrimSuffix(userID, "/stats")
	if userID == "" {
		all := s.stats.GetAll()
		writeJSON(w, http.StatusOK, map[string]any{
			"users": all,
			"count": len(all),
		})
		return
	}
	stats, updated, ok := s.stats.Get(userID)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":    userID,
		"updated_at": updated.Format(time.RFC3339Nano),
		"stats":      stats,
	})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, _ := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	var req struct {
		Target string `json:"target"`
		UserID string `json:"user_id"`
	}
	_ = json.Unmarshal(body, &req)
	target := strings.ToLower(strings.TrimSpace(req.Target))
	if target == "" {
		target = "all"
	}
	switch target {
	case "all":
		if s.history != nil {
			s.history.Clear()
		}
		if s.stats != nil {
			s.stats.Clear()
		}
		if s.engine != nil {
			s.engine.ClearBehaviorCache("")
		}
	case "decisions", "history":
		if s.history != nil {
			s.history.Clear()
		}
	case "stats":
		if s.stats != nil {
			s.stats.Clear()
		}
	case "behavior":
		if s.engine != nil {
			s.engine.ClearBehaviorCache(req.UserID)
		}
	default:
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
