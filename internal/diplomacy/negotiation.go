package diplomacy

import (
	"fmt"
	"log/slog"
	"math"
	"slices"
	"time"

	"github.com/talgya/kindred/internal/bounded"
	"github.com/talgya/kindred/internal/memory"
	"github.com/talgya/kindred/internal/world"
)

// Topic is what a negotiation is about.
type Topic uint8

const (
	TopicAlliance Topic = iota
	TopicTrade
	TopicPeace
	TopicMarriage
	TopicTerritory
)

func (t Topic) String() string {
	switch t {
	case TopicAlliance:
		return "alliance"
	case TopicTrade:
		return "trade"
	case TopicPeace:
		return "peace"
	case TopicMarriage:
		return "marriage"
	case TopicTerritory:
		return "territory"
	default:
		return "unknown"
	}
}

// ParseTopic maps a name back to a Topic.
func ParseTopic(s string) (Topic, bool) {
	for t := TopicAlliance; t <= TopicTerritory; t++ {
		if t.String() == s {
			return t, true
		}
	}
	return 0, false
}

// Stage is the negotiation lifecycle stage. Stages only move forward.
type Stage uint8

const (
	StageProposed Stage = iota
	StageDiscussing
	StageBargaining
	StageFinalizing
	StageAccepted
	StageRejected
)

func (s Stage) String() string {
	switch s {
	case StageProposed:
		return "proposed"
	case StageDiscussing:
		return "discussing"
	case StageBargaining:
		return "bargaining"
	case StageFinalizing:
		return "finalizing"
	case StageAccepted:
		return "accepted"
	case StageRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Terminal reports whether the stage is final.
func (s Stage) Terminal() bool { return s == StageAccepted || s == StageRejected }

// Both marks a term whose beneficiary or provider is every participant.
const Both world.GroupID = "*"

// Term is one clause under negotiation.
type Term struct {
	Name          string        `json:"name"`
	Value         float64       `json:"value"`
	Beneficiary   world.GroupID `json:"beneficiary"`
	Provider      world.GroupID `json:"provider"`
	NonNegotiable bool          `json:"non_negotiable,omitempty"`
}

// Negotiation is a multi-stage bargaining process between groups.
type Negotiation struct {
	ID               string          `json:"id"`
	Topic            Topic           `json:"topic"`
	Participants     []world.GroupID `json:"participants"`
	Stage            Stage           `json:"stage"`
	Terms            []Term          `json:"terms"`
	Tension          float64         `json:"tension"`
	Progress         float64         `json:"progress"`
	StartedAt        time.Duration   `json:"started_at"`
	Deadline         time.Duration   `json:"deadline"`
	Mediator         world.GroupID   `json:"mediator,omitempty"`
	RequiresMediator bool            `json:"requires_mediator,omitempty"`
	Reason           string          `json:"reason,omitempty"`
	AllianceID       string          `json:"alliance_id,omitempty"`
}

// Includes reports whether g is a participant.
func (n *Negotiation) Includes(g world.GroupID) bool {
	return slices.Contains(n.Participants, g)
}

// StartNegotiation opens a negotiation with the default terms of its topic.
func (e *Engine) StartNegotiation(initiator, other world.GroupID, topic Topic) (string, error) {
	if initiator == other {
		return "", fmt.Errorf("negotiation %s with itself: %w", initiator, world.ErrInvalidTransition)
	}
	for _, g := range []world.GroupID{initiator, other} {
		if _, err := e.groups.Lookup(g); err != nil {
			return "", err
		}
	}
	now := e.w.Now()
	n := &Negotiation{
		ID:           e.rng.NewID(),
		Topic:        topic,
		Participants: []world.GroupID{initiator, other},
		Stage:        StageProposed,
		Tension:      e.cfg.InitialTension,
		StartedAt:    now,
		Deadline:     now + e.cfg.Deadline,
	}
	switch topic {
	case TopicAlliance:
		n.Terms = append(n.Terms, Term{Name: "mutual_protection", Value: 0.7, Beneficiary: Both, Provider: Both, NonNegotiable: true})
	case TopicPeace:
		n.Terms = append(n.Terms, Term{Name: "cease_hostilities", Value: 1.0, Beneficiary: Both, Provider: Both, NonNegotiable: true})
		n.RequiresMediator = true
		n.Tension = 0.8
	case TopicTrade, TopicMarriage, TopicTerritory:
	}
	e.negotiations[n.ID] = n
	e.negotiationOrder = append(e.negotiationOrder, n.ID)
	slog.Info("negotiation started", "id", n.ID, "topic", topic, "from", initiator, "to", other)
	return n.ID, nil
}

func (e *Engine) negotiation(id string) (*Negotiation, error) {
	n, ok := e.negotiations[id]
	if !ok {
		return nil, fmt.Errorf("negotiation %s: %w", id, world.ErrNotFound)
	}
	return n, nil
}

// advanceTo moves n forward. Skipping stages is allowed, going back is not.
func (e *Engine) advanceTo(n *Negotiation, to Stage) {
	if n.Stage.Terminal() || to <= n.Stage {
		return
	}
	slog.Debug("negotiation stage", "id", n.ID, "from", n.Stage, "to", to)
	n.Stage = to
}

// ProposeTerm adds a term while the negotiation is still open to new terms.
func (e *Engine) ProposeTerm(id string, t Term) error {
	n, err := e.negotiation(id)
	if err != nil {
		return err
	}
	if n.Stage >= StageFinalizing {
		return fmt.Errorf("negotiation %s is %s: %w", id, n.Stage, world.ErrInvalidTransition)
	}
	t.Value = bounded.Unit(t.Value)
	n.Terms = append(n.Terms, t)
	if t.Beneficiary == t.Provider && t.Beneficiary != Both {
		n.Tension = bounded.Unit(n.Tension + 0.05)
	}
	if e.matchesObligation(n, t.Name) {
		n.Progress = bounded.Unit(n.Progress + 0.1)
	}
	if n.Stage == StageProposed {
		e.advanceTo(n, StageDiscussing)
	} else {
		e.advanceTo(n, StageBargaining)
	}
	return e.conclude(n)
}

func (e *Engine) matchesObligation(n *Negotiation, name string) bool {
	if len(n.Participants) < 2 {
		return false
	}
	for _, al := range e.Between(n.Participants[0], n.Participants[1]) {
		if al.HasObligation(name) {
			return true
		}
	}
	return false
}

// MakeOffer evaluates a bundle of terms proposed by one side. A balanced
// offer is added to the table and moves things along; a lopsided one only
// raises tension.
func (e *Engine) MakeOffer(id string, from world.GroupID, terms []Term) error {
	n, err := e.negotiation(id)
	if err != nil {
		return err
	}
	if !n.Includes(from) {
		return fmt.Errorf("negotiation %s participant %s: %w", id, from, world.ErrNotFound)
	}
	if n.Stage.Terminal() {
		return fmt.Errorf("negotiation %s is %s: %w", id, n.Stage, world.ErrInvalidTransition)
	}
	var gain, give float64
	for _, t := range terms {
		v := bounded.Unit(t.Value)
		if t.Beneficiary == from {
			gain += v
		}
		if t.Provider == from {
			give += v
		}
	}
	if imbalance := math.Abs(gain - give); imbalance > 0.5 {
		n.Tension = bounded.Unit(n.Tension + imbalance*0.2)
	} else {
		for _, t := range terms {
			t.Value = bounded.Unit(t.Value)
			n.Terms = append(n.Terms, t)
		}
		n.Progress = bounded.Unit(n.Progress + 0.1)
	}
	return e.conclude(n)
}

// Respond records a participant's acceptance or refusal of the current
// table.
func (e *Engine) Respond(id string, g world.GroupID, accept bool) error {
	n, err := e.negotiation(id)
	if err != nil {
		return err
	}
	if !n.Includes(g) {
		return fmt.Errorf("negotiation %s participant %s: %w", id, g, world.ErrNotFound)
	}
	if n.Stage.Terminal() {
		return fmt.Errorf("negotiation %s is %s: %w", id, n.Stage, world.ErrInvalidTransition)
	}
	if accept {
		n.Progress = bounded.Unit(n.Progress + 0.25)
	} else {
		n.Tension = bounded.Unit(n.Tension + 0.25)
	}
	return e.conclude(n)
}

// AssignMediator brings in a third group. Only honorable groups may
// mediate.
func (e *Engine) AssignMediator(id string, mediator world.GroupID) error {
	n, err := e.negotiation(id)
	if err != nil {
		return err
	}
	grp, err := e.groups.Lookup(mediator)
	if err != nil {
		return err
	}
	switch {
	case n.Stage.Terminal():
		return fmt.Errorf("negotiation %s is %s: %w", id, n.Stage, world.ErrInvalidTransition)
	case n.Mediator != "":
		return fmt.Errorf("negotiation %s already mediated by %s: %w", id, n.Mediator, world.ErrInvalidTransition)
	case n.Includes(mediator):
		return fmt.Errorf("participant %s cannot mediate: %w", mediator, world.ErrIneligible)
	case grp.Honor < e.cfg.MediatorHonor:
		return fmt.Errorf("mediator %s honor %.2f: %w", mediator, grp.Honor, world.ErrIneligible)
	}
	n.Mediator = mediator
	n.Tension = bounded.Unit(n.Tension * 0.8)
	n.Terms = append(n.Terms, Term{Name: "mediated_resolution", Value: 0.5, Beneficiary: Both, Provider: Both, NonNegotiable: true})
	slog.Info("negotiation mediated", "id", id, "mediator", mediator)
	return nil
}

// Cancel ends a negotiation without agreement.
func (e *Engine) Cancel(id string) error {
	n, err := e.negotiation(id)
	if err != nil {
		return err
	}
	if n.Stage.Terminal() {
		return fmt.Errorf("negotiation %s is %s: %w", id, n.Stage, world.ErrInvalidTransition)
	}
	e.reject(n, "cancelled")
	return nil
}

// threshold is the value a term must exceed for evaluator to accept it.
func (e *Engine) threshold(evaluator world.GroupID) float64 {
	t := 0.3
	if grp, ok := e.groups.Get(evaluator); ok {
		t += grp.Honor * 0.2
	}
	for _, al := range e.AlliancesOf(evaluator) {
		if al.Trust > e.cfg.HighTrust {
			t -= 0.1
		}
	}
	for _, ev := range e.mem.Recent(evaluator, e.cfg.RecentMemories) {
		switch ev.Kind {
		case memory.Negative, memory.Threat:
			t += 0.1
		case memory.Positive, memory.Neutral, memory.Alliance:
			t -= 0.05
		}
	}
	return t
}

// acceptable reports whether evaluator would agree to t.
func (e *Engine) acceptable(t Term, evaluator world.GroupID) bool {
	if t.NonNegotiable {
		return true
	}
	v := t.Value
	if t.Provider == evaluator {
		v = -v
	}
	return v > e.threshold(evaluator)
}

func (e *Engine) acceptableToAll(n *Negotiation, t Term) bool {
	for _, g := range n.Participants {
		if !e.acceptable(t, g) {
			return false
		}
	}
	return true
}

func (e *Engine) averageHonor(n *Negotiation) float64 {
	var sum float64
	var count int
	for _, g := range n.Participants {
		if grp, ok := e.groups.Get(g); ok {
			sum += grp.Honor
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// UpdateNegotiation runs one step of a negotiation.
func (e *Engine) UpdateNegotiation(id string, dt time.Duration) error {
	n, err := e.negotiation(id)
	if err != nil {
		return err
	}
	if n.Stage.Terminal() {
		return fmt.Errorf("negotiation %s is %s: %w", id, n.Stage, world.ErrInvalidTransition)
	}
	now := e.w.Now()
	e.advanceTo(n, StageDiscussing)
	if !n.RequiresMediator || n.Mediator != "" {
		honor := e.averageHonor(n)
		for _, t := range n.Terms {
			if e.acceptableToAll(n, t) {
				n.Progress = bounded.Unit(n.Progress + bounded.Step(0.1*honor, dt))
			} else {
				n.Tension = bounded.Unit(n.Tension + bounded.Step(0.05, dt))
			}
		}
	}
	remaining := n.Deadline - now
	if remaining <= 0 && n.Progress < 1 {
		e.reject(n, "deadline")
		return nil
	}
	if remaining < e.cfg.DeadlineWarning {
		n.Tension = bounded.Unit(n.Tension + bounded.Step(0.1, dt))
	}
	switch {
	case n.Stage == StageDiscussing && n.Progress >= 0.3:
		e.advanceTo(n, StageBargaining)
	case n.Stage == StageBargaining && n.Progress >= 0.7:
		e.advanceTo(n, StageFinalizing)
	}
	return e.conclude(n)
}

// conclude moves a negotiation to its terminal stage once progress or
// tension saturates. Agreement wins a tie.
func (e *Engine) conclude(n *Negotiation) error {
	switch {
	case n.Stage.Terminal():
		return nil
	case n.Progress >= 1:
		return e.accept(n)
	case n.Tension >= 1:
		e.reject(n, "tension")
	}
	return nil
}

func (e *Engine) accept(n *Negotiation) error {
	e.advanceTo(n, StageAccepted)
	a, b := n.Participants[0], n.Participants[1]
	var err error
	switch n.Topic {
	case TopicAlliance, TopicTrade, TopicMarriage:
		t := map[Topic]AllianceType{TopicAlliance: Military, TopicTrade: Trade, TopicMarriage: Marriage}[n.Topic]
		var id string
		if id, err = e.InitializeAlliance(a, b, t); err == nil {
			if err = e.Activate(id); err == nil {
				n.AllianceID = id
			}
		}
	case TopicPeace:
		for _, g := range n.Participants {
			e.out.Remember(g, memory.New(memory.Positive, 0.8, e.home(g), "peace_accord"))
		}
	case TopicTerritory:
		for _, g := range n.Participants {
			e.out.Remember(g, memory.New(memory.Positive, 0.6, e.home(g), "territory_settled"))
		}
	}
	e.out.Chronicle("diplomacy", fmt.Sprintf("%s negotiation between %s concluded", n.Topic, joinGroups(n.Participants)))
	slog.Info("negotiation accepted", "id", n.ID, "topic", n.Topic, "alliance", n.AllianceID)
	e.archiveNegotiation(n)
	return err
}

func (e *Engine) reject(n *Negotiation, reason string) {
	e.advanceTo(n, StageRejected)
	n.Reason = reason
	if reason != "cancelled" {
		for _, g := range n.Participants {
			e.out.Remember(g, memory.New(memory.Negative, 0.5, e.home(g), "negotiation_failed"))
		}
	}
	e.out.Chronicle("diplomacy", fmt.Sprintf("%s negotiation between %s failed: %s", n.Topic, joinGroups(n.Participants), reason))
	slog.Info("negotiation rejected", "id", n.ID, "reason", reason)
	e.archiveNegotiation(n)
}

func (e *Engine) archiveNegotiation(n *Negotiation) {
	delete(e.negotiations, n.ID)
	e.negotiationOrder = slices.DeleteFunc(e.negotiationOrder, func(id string) bool { return id == n.ID })
	e.concluded = append(e.concluded, cloneNegotiation(n))
	if limit := e.cfg.ArchiveSize; limit > 0 && len(e.concluded) > limit {
		e.concluded = e.concluded[len(e.concluded)-limit:]
	}
}

func (e *Engine) updateNegotiations(_ time.Duration, dt time.Duration) {
	for _, id := range slices.Clone(e.negotiationOrder) {
		if _, ok := e.negotiations[id]; ok {
			e.logErr(e.UpdateNegotiation(id, dt))
		}
	}
}

// Negotiation returns a copy of an open or recently concluded negotiation.
func (e *Engine) Negotiation(id string) (Negotiation, bool) {
	if n, ok := e.negotiations[id]; ok {
		return cloneNegotiation(n), true
	}
	for _, n := range e.concluded {
		if n.ID == id {
			return n, true
		}
	}
	return Negotiation{}, false
}

// Negotiations returns copies of open negotiations.
func (e *Engine) Negotiations() []Negotiation {
	out := make([]Negotiation, 0, len(e.negotiationOrder))
	for _, id := range e.negotiationOrder {
		out = append(out, cloneNegotiation(e.negotiations[id]))
	}
	return out
}

// Concluded returns recently finished negotiations, oldest first.
func (e *Engine) Concluded() []Negotiation {
	return slices.Clone(e.concluded)
}

func cloneNegotiation(n *Negotiation) Negotiation {
	c := *n
	c.Participants = slices.Clone(n.Participants)
	c.Terms = slices.Clone(n.Terms)
	return c
}
