// Package api serves the simulation over HTTP.
// GET endpoints are public read-only observation. POST endpoints drive
// triggers and require the admin bearer token.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/talgya/kindred/internal/config"
	"github.com/talgya/kindred/internal/engine"
	"github.com/talgya/kindred/internal/persistence"
	"github.com/talgya/kindred/internal/world"
)

// Server serves the simulation state.
type Server struct {
	Sim      *engine.Simulation
	Eng      *engine.Engine
	DB       *persistence.DB // optional; enables chronicle queries and snapshots
	AdminKey string          // empty disables POST endpoints

	maxStreams int32
	streams    atomic.Int32
	limiter    *RateLimiter
	upgrader   websocket.Upgrader
	router     chi.Router
}

// New builds a server. ctx bounds the rate limiter's sweeper.
func New(ctx context.Context, sim *engine.Simulation, eng *engine.Engine, db *persistence.DB, cfg config.HTTPConfig) *Server {
	s := &Server{
		Sim:        sim,
		Eng:        eng,
		DB:         db,
		AdminKey:   cfg.AdminKey,
		maxStreams: int32(cfg.MaxStreams),
		limiter:    NewRateLimiter(ctx, cfg.RateLimit, cfg.RateWindow),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/groups", s.handleGroups)
		r.Get("/groups/{id}", s.handleGroup)
		r.Get("/groups/{id}/memory", s.handleGroupMemory)
		r.Get("/groups/{id}/hierarchy", s.handleGroupHierarchy)
		r.Get("/groups/{id}/learning", s.handleGroupLearning)
		r.Get("/alliances", s.handleAlliances)
		r.Get("/negotiations", s.handleNegotiations)
		r.Get("/settlements", s.handleSettlements)
		r.Get("/migrations", s.handleMigrations)
		r.Get("/rituals", s.handleRituals)
		r.Get("/events", s.handleSpecialEvents)
		r.Get("/gatherings", s.handleGatherings)
		r.Get("/reputation", s.handleReputation)
		r.Get("/reputation/{actor}", s.handleActorReputation)
		r.Get("/chronicle", s.handleChronicle)
		r.Get("/stream", s.handleStream)

		r.Group(func(r chi.Router) {
			r.Use(s.adminOnly)
			r.Use(s.limiter.Middleware)
			r.Post("/alliances", s.handleProposeAlliance)
			r.Post("/negotiations", s.handleStartNegotiation)
			r.Post("/marriages", s.handleArrangeMarriage)
			r.Post("/rituals", s.handleStartRitual)
			r.Post("/events", s.handleTriggerEvent)
			r.Post("/migrations", s.handlePlanMigration)
			r.Post("/memories", s.handleRecordMemory)
			r.Post("/crimes", s.handleRecordCrime)
			r.Post("/deeds", s.handleRecordDeed)
			r.Post("/combat", s.handleRecordCombat)
			r.Post("/interactions", s.handleRecordInteraction)
			r.Post("/conflicts", s.handleResolveConflict)
			r.Post("/learning/outcomes", s.handleRecordOutcome)
			r.Post("/learning/shares", s.handleShareBehavior)
			r.Post("/alliances/{id}/breaches", s.handleReportBreach)
			r.Post("/alliances/{id}/traditions", s.handleShareTraditions)
			r.Post("/alliances/{id}/events", s.handleDiplomaticEvent)
			r.Post("/negotiations/{id}/terms", s.handleProposeTerm)
			r.Post("/negotiations/{id}/offers", s.handleMakeOffer)
			r.Post("/negotiations/{id}/responses", s.handleRespond)
			r.Post("/negotiations/{id}/mediator", s.handleAssignMediator)
			r.Post("/gatherings", s.handleOrganizeGathering)
			r.Post("/groups/{id}/gatherings", s.handleFamilyGathering)
			r.Post("/groups/{id}/traditions", s.handlePassTradition)
			r.Post("/groups/{id}/members", s.handleJoinGroup)
			r.Post("/groups/{id}/mediations", s.handleMediate)
			r.Post("/groups/{id}/ranks", s.handleSetRank)
			r.Delete("/negotiations/{id}", s.handleCancelNegotiation)
			r.Delete("/rituals/{group}", s.handleCancelRitual)
			r.Delete("/events/{id}", s.handleCancelEvent)
			r.Delete("/migrations/{group}", s.handleCancelMigration)
			r.Delete("/gatherings/{id}", s.handleCancelGathering)
			r.Post("/speed", s.handleSpeed)
			r.Post("/snapshot", s.handleSaveSnapshot)
		})
	})

	s.router = r
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "")
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdown)
	}
}

func (s *Server) adminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.AdminKey == "" {
			writeError(w, http.StatusForbidden, "admin endpoints disabled (no admin key set)")
			return
		}
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != s.AdminKey {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeFailure maps subsystem errors onto HTTP statuses.
func writeFailure(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, world.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, world.ErrInvalidTransition):
		status = http.StatusConflict
	case errors.Is(err, world.ErrIneligible):
		status = http.StatusUnprocessableEntity
	}
	writeError(w, status, err.Error())
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}
