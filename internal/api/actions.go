package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/talgya/kindred/internal/diplomacy"
	"github.com/talgya/kindred/internal/gathering"
	"github.com/talgya/kindred/internal/hierarchy"
	"github.com/talgya/kindred/internal/learning"
	"github.com/talgya/kindred/internal/social"
	"github.com/talgya/kindred/internal/world"
)

type actorPair struct {
	A        world.ActorID `json:"a"`
	B        world.ActorID `json:"b"`
	Friendly bool          `json:"friendly"`
}

func (s *Server) handleRecordInteraction(w http.ResponseWriter, r *http.Request) {
	var req actorPair
	if !decode(w, r, &req) {
		return
	}
	var err error
	s.Eng.Do(func() { err = s.Sim.RecordInteraction(req.A, req.B, req.Friendly) })
	done(w, err)
}

func (s *Server) handleResolveConflict(w http.ResponseWriter, r *http.Request) {
	var req actorPair
	if !decode(w, r, &req) {
		return
	}
	var (
		med world.ActorID
		err error
	)
	s.Eng.Do(func() { med, err = s.Sim.ResolveFamilyConflict(req.A, req.B) })
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"mediator": med})
}

func (s *Server) handleRecordOutcome(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Group    world.GroupID `json:"group"`
		Behavior string        `json:"behavior"`
		Category string        `json:"category"`
		Success  bool          `json:"success"`
	}
	if !decode(w, r, &req) {
		return
	}
	var err error
	if req.Behavior == "" {
		c, ok := learning.ParseCategory(req.Category)
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown category "+strconv.Quote(req.Category))
			return
		}
		s.Eng.Do(func() { err = s.Sim.RecordCategoryOutcome(req.Group, c, req.Success) })
	} else {
		s.Eng.Do(func() { err = s.Sim.RecordOutcome(req.Group, req.Behavior, req.Success) })
	}
	done(w, err)
}

func (s *Server) handleShareBehavior(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Source   world.GroupID `json:"source"`
		Target   world.GroupID `json:"target"`
		Behavior string        `json:"behavior"`
	}
	if !decode(w, r, &req) {
		return
	}
	var err error
	s.Eng.Do(func() { err = s.Sim.ShareBehavior(req.Source, req.Target, req.Behavior) })
	done(w, err)
}

func (s *Server) handleReportBreach(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Obligation string `json:"obligation"`
	}
	if !decode(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	var err error
	s.Eng.Do(func() { err = s.Sim.ReportBreach(id, req.Obligation) })
	done(w, err)
}

func (s *Server) handleShareTraditions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var err error
	s.Eng.Do(func() { err = s.Sim.ShareTraditions(id) })
	done(w, err)
}

func (s *Server) handleDiplomaticEvent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Event string `json:"event"`
	}
	if !decode(w, r, &req) {
		return
	}
	ev, ok := diplomacy.ParseEvent(req.Event)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown diplomatic event "+strconv.Quote(req.Event))
		return
	}
	id := chi.URLParam(r, "id")
	var err error
	s.Eng.Do(func() { err = s.Sim.HandleDiplomaticEvent(id, ev) })
	done(w, err)
}

func (s *Server) handleProposeTerm(w http.ResponseWriter, r *http.Request) {
	var term diplomacy.Term
	if !decode(w, r, &term) {
		return
	}
	if term.Name == "" {
		writeError(w, http.StatusBadRequest, "term needs a name")
		return
	}
	id := chi.URLParam(r, "id")
	var err error
	s.Eng.Do(func() { err = s.Sim.ProposeTerm(id, term) })
	done(w, err)
}

func (s *Server) handleMakeOffer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		From  world.GroupID    `json:"from"`
		Terms []diplomacy.Term `json:"terms"`
	}
	if !decode(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	var err error
	s.Eng.Do(func() { err = s.Sim.MakeOffer(id, req.From, req.Terms) })
	done(w, err)
}

func (s *Server) handleRespond(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Group  world.GroupID `json:"group"`
		Accept bool          `json:"accept"`
	}
	if !decode(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	var err error
	s.Eng.Do(func() { err = s.Sim.RespondToOffer(id, req.Group, req.Accept) })
	done(w, err)
}

func (s *Server) handleAssignMediator(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mediator world.GroupID `json:"mediator"`
	}
	if !decode(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	var err error
	s.Eng.Do(func() { err = s.Sim.AssignMediator(id, req.Mediator) })
	done(w, err)
}

func (s *Server) handleOrganizeGathering(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Kind   string          `json:"kind"`
		Groups []world.GroupID `json:"groups"`
	}
	if !decode(w, r, &req) {
		return
	}
	kind, ok := gathering.ParseKind(req.Kind)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown gathering "+strconv.Quote(req.Kind))
		return
	}
	var (
		id  string
		err error
	)
	s.Eng.Do(func() { id, err = s.Sim.OrganizeGathering(kind, req.Groups) })
	created(w, id, err)
}

func (s *Server) handleFamilyGathering(w http.ResponseWriter, r *http.Request) {
	group := world.GroupID(chi.URLParam(r, "id"))
	var (
		id  string
		err error
	)
	s.Eng.Do(func() { id, err = s.Sim.FamilyGathering(group) })
	created(w, id, err)
}

func (s *Server) handlePassTradition(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Tradition string `json:"tradition"`
	}
	if !decode(w, r, &req) {
		return
	}
	group := world.GroupID(chi.URLParam(r, "id"))
	var (
		id  string
		err error
	)
	s.Eng.Do(func() { id, err = s.Sim.PassTradition(group, req.Tradition) })
	created(w, id, err)
}

func (s *Server) handleJoinGroup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Actor world.ActorID `json:"actor"`
		Role  string        `json:"role"`
	}
	if !decode(w, r, &req) {
		return
	}
	role := social.RoleKin
	if req.Role != "" {
		var ok bool
		if role, ok = social.ParseRole(req.Role); !ok {
			writeError(w, http.StatusBadRequest, "unknown role "+strconv.Quote(req.Role))
			return
		}
	}
	group := world.GroupID(chi.URLParam(r, "id"))
	var err error
	s.Eng.Do(func() { err = s.Sim.JoinGroup(group, req.Actor, role) })
	done(w, err)
}

func (s *Server) handleMediate(w http.ResponseWriter, r *http.Request) {
	var req actorPair
	if !decode(w, r, &req) {
		return
	}
	group := world.GroupID(chi.URLParam(r, "id"))
	var (
		med world.ActorID
		err error
	)
	s.Eng.Do(func() { med, err = s.Sim.Mediate(group, req.A, req.B) })
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"mediator": med})
}

func (s *Server) handleSetRank(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Actor world.ActorID `json:"actor"`
		Rank  string        `json:"rank"`
	}
	if !decode(w, r, &req) {
		return
	}
	rank, ok := hierarchy.ParseRank(req.Rank)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown rank "+strconv.Quote(req.Rank))
		return
	}
	group := world.GroupID(chi.URLParam(r, "id"))
	var err error
	s.Eng.Do(func() { err = s.Sim.SetRank(group, req.Actor, rank) })
	done(w, err)
}

func (s *Server) handleCancelNegotiation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var err error
	s.Eng.Do(func() { err = s.Sim.CancelNegotiation(id) })
	done(w, err)
}

func (s *Server) handleCancelRitual(w http.ResponseWriter, r *http.Request) {
	group := world.GroupID(chi.URLParam(r, "group"))
	var err error
	s.Eng.Do(func() { err = s.Sim.CancelRitual(group) })
	done(w, err)
}

func (s *Server) handleCancelEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var err error
	s.Eng.Do(func() { err = s.Sim.CancelEvent(id) })
	done(w, err)
}

func (s *Server) handleCancelMigration(w http.ResponseWriter, r *http.Request) {
	group := world.GroupID(chi.URLParam(r, "group"))
	var err error
	s.Eng.Do(func() { err = s.Sim.CancelMigration(group) })
	done(w, err)
}

func (s *Server) handleCancelGathering(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var err error
	s.Eng.Do(func() { err = s.Sim.CancelGathering(id) })
	done(w, err)
}

// done answers a trigger that creates nothing addressable.
func done(w http.ResponseWriter, err error) {
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
