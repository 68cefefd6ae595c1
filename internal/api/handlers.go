package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/talgya/kindred/internal/diplomacy"
	"github.com/talgya/kindred/internal/engine"
	"github.com/talgya/kindred/internal/events"
	"github.com/talgya/kindred/internal/hierarchy"
	"github.com/talgya/kindred/internal/learning"
	"github.com/talgya/kindred/internal/memory"
	"github.com/talgya/kindred/internal/migration"
	"github.com/talgya/kindred/internal/reputation"
	"github.com/talgya/kindred/internal/rituals"
	"github.com/talgya/kindred/internal/social"
	"github.com/talgya/kindred/internal/world"
)

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.Sim.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"name":     "kindred",
		"tick":     snap.Tick,
		"sim_time": snap.SimTime,
		"clock":    snap.Clock.String(),
		"season":   snap.Season,
		"weather":  snap.Weather,
		"speed":    s.Eng.Speed(),
		"running":  s.Eng.Running(),
		"stats":    snap.Stats,
	})
}

func (s *Server) handleGroups(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Sim.Snapshot().Groups)
}

func (s *Server) handleGroup(w http.ResponseWriter, r *http.Request) {
	id := world.GroupID(chi.URLParam(r, "id"))
	var (
		g       social.Group
		tension float64
		leader  world.ActorID
		err     error
	)
	s.Eng.Do(func() {
		var live *social.Group
		if live, err = s.Sim.Groups.Lookup(id); err != nil {
			return
		}
		g = *live
		g.Members = append([]social.Member(nil), live.Members...)
		g.Traditions = append([]string(nil), live.Traditions...)
		tension = s.Sim.Memory.Tension(id)
		leader, _ = s.Sim.Hierarchy.Leader(id)
	})
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"group":   g,
		"tension": tension,
		"leader":  leader,
	})
}

func (s *Server) handleGroupMemory(w http.ResponseWriter, r *http.Request) {
	id := world.GroupID(chi.URLParam(r, "id"))
	limit := queryInt(r, "limit", 20)
	var (
		recent  []memory.Event
		tension float64
		ok      bool
	)
	s.Eng.Do(func() {
		_, ok = s.Sim.Groups.Get(id)
		recent = s.Sim.Memory.Recent(id, limit)
		tension = s.Sim.Memory.Tension(id)
	})
	if !ok {
		writeFailure(w, fmt.Errorf("group %s: %w", id, world.ErrNotFound))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"group":   id,
		"tension": tension,
		"recent":  recent,
	})
}

func (s *Server) handleGroupHierarchy(w http.ResponseWriter, r *http.Request) {
	id := world.GroupID(chi.URLParam(r, "id"))
	var nodes []hierarchy.Node
	s.Eng.Do(func() { nodes = s.Sim.Hierarchy.Nodes(id) })
	if len(nodes) == 0 {
		writeFailure(w, fmt.Errorf("hierarchy %s: %w", id, world.ErrNotFound))
		return
	}
	writeJSON(w, http.StatusOK, nodes)
}

func (s *Server) handleGroupLearning(w http.ResponseWriter, r *http.Request) {
	id := world.GroupID(chi.URLParam(r, "id"))
	var (
		table learning.Table
		ok    bool
	)
	s.Eng.Do(func() { table, ok = s.Sim.Learning.Table(id) })
	if !ok {
		writeFailure(w, fmt.Errorf("behavior table %s: %w", id, world.ErrNotFound))
		return
	}
	writeJSON(w, http.StatusOK, table)
}

func (s *Server) handleAlliances(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Sim.Snapshot().Alliances)
}

func (s *Server) handleNegotiations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Sim.Snapshot().Negotiations)
}

func (s *Server) handleSettlements(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Sim.Snapshot().Settlements)
}

func (s *Server) handleMigrations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Sim.Snapshot().Migrations)
}

func (s *Server) handleRituals(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Sim.Snapshot().Rituals)
}

func (s *Server) handleSpecialEvents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Sim.Snapshot().Events)
}

func (s *Server) handleGatherings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Sim.Snapshot().Gatherings)
}

func (s *Server) handleReputation(w http.ResponseWriter, r *http.Request) {
	var recs []reputation.Record
	s.Eng.Do(func() { recs = s.Sim.Reputation.Records() })
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleActorReputation(w http.ResponseWriter, r *http.Request) {
	actor, err := strconv.ParseUint(chi.URLParam(r, "actor"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid actor id")
		return
	}
	var (
		rec reputation.Record
		ok  bool
	)
	s.Eng.Do(func() { rec, ok = s.Sim.Reputation.Get(world.ActorID(actor)) })
	if !ok {
		writeFailure(w, fmt.Errorf("actor %d: %w", actor, world.ErrNotFound))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleChronicle serves recent events. A category filter, or a limit
// beyond the in-memory ring, is answered from the database when one is
// attached.
func (s *Server) handleChronicle(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	category := r.URL.Query().Get("category")

	if s.DB != nil && (category != "" || limit > s.Sim.Config().ChronicleSize) {
		var (
			evs []engine.Event
			err error
		)
		if category != "" {
			evs, err = s.DB.EventsByCategory(category, limit)
		} else {
			evs, err = s.DB.RecentEvents(limit)
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, evs)
		return
	}

	var all []engine.Event
	s.Eng.Do(func() { all = s.Sim.Chronicle() })
	out := make([]engine.Event, 0, limit)
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		if category == "" || all[i].Category == category {
			out = append(out, all[i])
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v <= 0 {
		return def
	}
	if v > 1000 {
		return 1000
	}
	return v
}

type pairRequest struct {
	A     world.GroupID `json:"a"`
	B     world.GroupID `json:"b"`
	Type  string        `json:"type"`
	Topic string        `json:"topic"`
}

func (s *Server) handleProposeAlliance(w http.ResponseWriter, r *http.Request) {
	var req pairRequest
	if !decode(w, r, &req) {
		return
	}
	t, ok := diplomacy.ParseAllianceType(req.Type)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown alliance type "+strconv.Quote(req.Type))
		return
	}
	var (
		id  string
		err error
	)
	s.Eng.Do(func() { id, err = s.Sim.ProposeAlliance(req.A, req.B, t) })
	created(w, id, err)
}

func (s *Server) handleStartNegotiation(w http.ResponseWriter, r *http.Request) {
	var req pairRequest
	if !decode(w, r, &req) {
		return
	}
	topic, ok := diplomacy.ParseTopic(req.Topic)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown topic "+strconv.Quote(req.Topic))
		return
	}
	var (
		id  string
		err error
	)
	s.Eng.Do(func() { id, err = s.Sim.StartNegotiation(req.A, req.B, topic) })
	created(w, id, err)
}

func (s *Server) handleArrangeMarriage(w http.ResponseWriter, r *http.Request) {
	var req pairRequest
	if !decode(w, r, &req) {
		return
	}
	var (
		wed diplomacy.Wedding
		err error
	)
	s.Eng.Do(func() { wed, err = s.Sim.ArrangeMarriage(req.A, req.B) })
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":       wed.AllianceID,
		"couple":   wed.Couple,
		"location": wed.Location,
	})
}

func (s *Server) handleStartRitual(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Group        world.GroupID   `json:"group"`
		Kind         string          `json:"kind"`
		Participants []world.ActorID `json:"participants"`
	}
	if !decode(w, r, &req) {
		return
	}
	kind, ok := rituals.ParseKind(req.Kind)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown ritual "+strconv.Quote(req.Kind))
		return
	}
	var (
		id  string
		err error
	)
	s.Eng.Do(func() { id, err = s.Sim.StartRitual(req.Group, kind, req.Participants) })
	created(w, id, err)
}

func (s *Server) handleTriggerEvent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Kind   string     `json:"kind"`
		At     world.Vec3 `json:"at"`
		Radius float64    `json:"radius"`
	}
	if !decode(w, r, &req) {
		return
	}
	kind, ok := events.ParseKind(req.Kind)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown event "+strconv.Quote(req.Kind))
		return
	}
	var (
		id  string
		err error
	)
	s.Eng.Do(func() { id, err = s.Sim.TriggerSpecialEvent(kind, req.At, req.Radius) })
	created(w, id, err)
}

func (s *Server) handlePlanMigration(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Group  world.GroupID `json:"group"`
		Policy string        `json:"policy"`
	}
	if !decode(w, r, &req) {
		return
	}
	policy, ok := migration.ParsePolicy(req.Policy)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown policy "+strconv.Quote(req.Policy))
		return
	}
	var (
		id  string
		err error
	)
	s.Eng.Do(func() { id, err = s.Sim.PlanMigration(req.Group, policy) })
	created(w, id, err)
}

func (s *Server) handleRecordMemory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Group      world.GroupID   `json:"group"`
		Kind       string          `json:"kind"`
		Importance float64         `json:"importance"`
		Location   world.Vec3      `json:"location"`
		Tag        string          `json:"tag"`
		Actors     []world.ActorID `json:"actors"`
	}
	if !decode(w, r, &req) {
		return
	}
	kind, ok := memory.ParseKind(req.Kind)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown memory kind "+strconv.Quote(req.Kind))
		return
	}
	ev := memory.New(kind, req.Importance, req.Location, req.Tag, req.Actors...)
	var err error
	s.Eng.Do(func() { err = s.Sim.RecordEvent(req.Group, ev) })
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "ok"})
}

type deedRequest struct {
	Actor  world.ActorID `json:"actor"`
	Weight float64       `json:"weight"`
}

func (s *Server) handleRecordCrime(w http.ResponseWriter, r *http.Request) {
	var req deedRequest
	if !decode(w, r, &req) {
		return
	}
	var (
		reactions []reputation.Reaction
		err       error
	)
	s.Eng.Do(func() { reactions, err = s.Sim.RecordCrime(req.Actor, req.Weight) })
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"reactions": reactions})
}

func (s *Server) handleRecordDeed(w http.ResponseWriter, r *http.Request) {
	var req deedRequest
	if !decode(w, r, &req) {
		return
	}
	var err error
	s.Eng.Do(func() { err = s.Sim.RecordGoodDeed(req.Actor, req.Weight) })
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "ok"})
}

func (s *Server) handleRecordCombat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Attacker world.ActorID `json:"attacker"`
		Victim   world.ActorID `json:"victim"`
	}
	if !decode(w, r, &req) {
		return
	}
	var (
		id  string
		err error
	)
	s.Eng.Do(func() { id, err = s.Sim.RecordCombat(req.Attacker, req.Victim) })
	created(w, id, err)
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Speed float64 `json:"speed"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Speed < 0 || req.Speed > 1000 {
		writeError(w, http.StatusBadRequest, "speed must be 0-1000")
		return
	}
	s.Eng.SetSpeed(req.Speed)
	writeJSON(w, http.StatusOK, map[string]float64{"speed": s.Eng.Speed()})
}

func (s *Server) handleSaveSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		writeError(w, http.StatusServiceUnavailable, "no database attached")
		return
	}
	snap := s.Sim.Snapshot()
	if err := s.DB.SaveSnapshot(snap); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]uint64{"tick": snap.Tick})
}

func created(w http.ResponseWriter, id string, err error) {
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}
