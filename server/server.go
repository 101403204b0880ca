package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/nv4re/pumpbot/core"
	"github.com/nv4re/pumpbot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// HTTP CONTROL SURFACE - Inspect state, mutate the whitelisted knobs
// ═══════════════════════════════════════════════════════════════════════════════
//
// Reads expose the full engine state tree. Writes are limited to: clearing
// bans, setting a single ban entry, assigning a whitelisted setting, switching
// the run state and muting notifications.
//
// ═══════════════════════════════════════════════════════════════════════════════

// Engine is the surface the server needs.
type Engine interface {
	State() core.State
	SetActive(active bool)
	SetMuted(muted bool)
	SetSetting(name string, value decimal.Decimal) error
	ClearBans()
	ClearBan(market string)
	SetBan(market string, entry types.BanEntry)
}

// Server exposes the control surface over HTTP.
type Server struct {
	engine Engine
	http   *http.Server
}

// New builds the server on the given listen address.
func New(addr string, engine Engine) *Server {
	s := &Server{engine: engine}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /", s.handleState)
	mux.HandleFunc("GET /orders", s.handleKey("orders"))
	mux.HandleFunc("GET /history", s.handleKey("history"))
	mux.HandleFunc("GET /banned", s.handleKey("banned"))
	mux.HandleFunc("GET /rising", s.handleKey("rising"))
	mux.HandleFunc("GET /results", s.handleKey("results"))
	mux.HandleFunc("GET /settings", s.handleKey("settings"))
	mux.HandleFunc("GET /runstate", s.handleKey("runstate"))

	mux.HandleFunc("DELETE /banned", s.handleClearBans)
	mux.HandleFunc("DELETE /banned/{market}", s.handleClearBan)
	mux.HandleFunc("PUT /banned/{market}", s.handleSetBan)
	mux.HandleFunc("PUT /settings/{name}", s.handleSetSetting)
	mux.HandleFunc("PUT /runstate", s.handleRunState)
	mux.HandleFunc("PUT /mute", s.handleMute)

	s.http = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Start begins serving in the background.
func (s *Server) Start() {
	go func() {
		log.Info().Str("addr", s.http.Addr).Msg("🌐 HTTP interface available")
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// ─── Read handlers ─────────────────────────────────────────────────────────────

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, s.engine.State())
}

func (s *Server) handleKey(key string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := s.engine.State()
		switch key {
		case "orders":
			writeJSON(w, http.StatusOK, state.Orders)
		case "history":
			writeJSON(w, http.StatusOK, state.History)
		case "banned":
			writeJSON(w, http.StatusOK, state.Banned)
		case "rising":
			writeJSON(w, http.StatusOK, state.Rising)
		case "results":
			writeJSON(w, http.StatusOK, state.Results)
		case "settings":
			writeJSON(w, http.StatusOK, state.Settings)
		case "runstate":
			writeJSON(w, http.StatusOK, map[string]string{"runState": state.RunState})
		default:
			http.NotFound(w, r)
		}
	}
}

// ─── Write handlers ────────────────────────────────────────────────────────────

func (s *Server) handleClearBans(w http.ResponseWriter, r *http.Request) {
	s.engine.ClearBans()
	writeJSON(w, http.StatusOK, s.engine.State().Banned)
}

func (s *Server) handleClearBan(w http.ResponseWriter, r *http.Request) {
	market := r.PathValue("market")
	s.engine.ClearBan(market)
	writeJSON(w, http.StatusOK, s.engine.State().Banned)
}

func (s *Server) handleSetBan(w http.ResponseWriter, r *http.Request) {
	market := r.PathValue("market")

	var body struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if body.Count < 0 {
		writeError(w, http.StatusBadRequest, "count must be non-negative")
		return
	}

	s.engine.SetBan(market, types.BanEntry{Count: body.Count})
	writeJSON(w, http.StatusOK, s.engine.State().Banned)
}

func (s *Server) handleSetSetting(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	var body struct {
		Value decimal.Decimal `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	if err := s.engine.SetSetting(name, body.Value); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.engine.State().Settings)
}

func (s *Server) handleRunState(w http.ResponseWriter, r *http.Request) {
	var body struct {
		State string `json:"state"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	switch body.State {
	case core.RunStateActive:
		s.engine.SetActive(true)
	case core.RunStatePaused:
		s.engine.SetActive(false)
	default:
		writeError(w, http.StatusBadRequest, "state must be active or paused")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"runState": body.State})
}

func (s *Server) handleMute(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Muted bool `json:"muted"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	s.engine.SetMuted(body.Muted)
	writeJSON(w, http.StatusOK, map[string]bool{"muted": body.Muted})
}

// ─── JSON helpers ──────────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
