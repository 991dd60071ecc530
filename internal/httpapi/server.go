package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/cashium/finchat/internal/chat"
	"github.com/cashium/finchat/internal/config"
	"github.com/cashium/finchat/internal/i18n"
	"github.com/cashium/finchat/internal/observability"
	"github.com/cashium/finchat/internal/pipeline"
)

// TurnProcessor is the pipeline entry point the API drives.
type TurnProcessor interface {
	ProcessTurn(ctx context.Context, req pipeline.TurnRequest) (pipeline.Result, error)
}

type Server struct {
	cfg      config.Config
	turns    TurnProcessor
	store    chat.Store
	metrics  *observability.Metrics
	window   *observability.StageWindow
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func New(cfg config.Config, logger *slog.Logger, turns TurnProcessor, store chat.Store, metrics *observability.Metrics, window *observability.StageWindow) *Server {
	return &Server{
		cfg:     cfg,
		turns:   turns,
		store:   store,
		metrics: metrics,
		window:  window,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only allow browser websocket connections from the same
				// origin unless explicitly opened up.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})
	r.Get("/v1/perf/latency", s.handlePerfLatency)
	r.Post("/v1/perf/reset", s.handlePerfReset)

	r.Route("/api/ai", func(r chi.Router) {
		r.Post("/message", s.handleMessage)
		r.Post("/history", s.handleHistory)
		r.Post("/chats", s.handleChats)
		r.Post("/report", s.handleReport)
		r.Post("/public", s.handlePublic)
		r.Get("/countries", s.handleCountries)
		r.Get("/ws", s.handleTurnWS)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handlePerfLatency(w http.ResponseWriter, _ *http.Request) {
	if s.window == nil {
		respondJSON(w, http.StatusOK, observability.StageSnapshot{Stages: []observability.StageStats{}})
		return
	}
	respondJSON(w, http.StatusOK, s.window.Snapshot())
}

func (s *Server) handlePerfReset(w http.ResponseWriter, _ *http.Request) {
	s.window.Reset()
	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleCountries(w http.ResponseWriter, _ *http.Request) {
	type countryInfo struct {
		Code     string `json:"code"`
		ID       int    `json:"id"`
		Provider int    `json:"provider"`
		Lang     string `json:"lang"`
	}
	out := make([]countryInfo, 0, len(i18n.Countries))
	for _, c := range i18n.Countries {
		out = append(out, countryInfo{Code: c.Code, ID: c.ID, Provider: c.Provider, Lang: c.Lang.Code()})
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"countries": out,
		"languages": i18n.SupportedLanguageCodes(),
	})
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
