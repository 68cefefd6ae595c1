package diplomacy

import (
	"fmt"
	"log/slog"
	"math"
	"slices"
	"time"

	"github.com/talgya/kindred/internal/bounded"
	"github.com/talgya/kindred/internal/effect"
	"github.com/talgya/kindred/internal/entropy"
	"github.com/talgya/kindred/internal/memory"
	"github.com/talgya/kindred/internal/social"
	"github.com/talgya/kindred/internal/world"
)

// Engine owns alliances and negotiations. It reads groups and memories
// and queues every write to them on the outbox.
type Engine struct {
	cfg    Config
	w      world.World
	p      world.Personalities
	groups *social.Registry
	mem    *memory.Store
	rng    *entropy.Source
	out    *effect.Outbox

	alliances     map[string]*Alliance
	allianceOrder []string
	archived      []Alliance

	negotiations     map[string]*Negotiation
	negotiationOrder []string
	concluded        []Negotiation
}

// New creates a diplomacy engine.
func New(w world.World, p world.Personalities, groups *social.Registry, mem *memory.Store, rng *entropy.Source, out *effect.Outbox, cfg Config) *Engine {
	return &Engine{
		cfg:          cfg,
		w:            w,
		p:            p,
		groups:       groups,
		mem:          mem,
		rng:          rng,
		out:          out,
		alliances:    make(map[string]*Alliance),
		negotiations: make(map[string]*Negotiation),
	}
}

// InitializeAlliance creates a Proposed alliance between two groups with
// the fixed terms of its type.
func (e *Engine) InitializeAlliance(a, b world.GroupID, t AllianceType) (string, error) {
	if a == b {
		return "", fmt.Errorf("alliance %s with itself: %w", a, world.ErrInvalidTransition)
	}
	for _, g := range []world.GroupID{a, b} {
		if _, err := e.groups.Lookup(g); err != nil {
			return "", err
		}
	}
	for _, id := range e.allianceOrder {
		al := e.alliances[id]
		if al.Type == t && al.Includes(a) && al.Includes(b) {
			return "", fmt.Errorf("%s alliance %s/%s exists as %s: %w", t, a, b, al.ID, world.ErrInvalidTransition)
		}
	}
	strength := e.cfg.DefaultStrength
	if t == Marriage {
		strength = e.cfg.MarriageStrength
	}
	al := &Alliance{
		ID:         e.rng.NewID(),
		Type:       t,
		Members:    []world.GroupID{a, b},
		Status:     Proposed,
		Strength:   strength,
		Trust:      e.cfg.DefaultTrust,
		Terms:      termsFor(t, e.cfg),
		ProposedAt: e.w.Now(),
		breaches:   make(map[string]int),
	}
	e.alliances[al.ID] = al
	e.allianceOrder = append(e.allianceOrder, al.ID)
	return al.ID, nil
}

// ProposeAlliance puts an alliance on the table. Members accept or decline
// on their own during subsequent updates.
func (e *Engine) ProposeAlliance(a, b world.GroupID, t AllianceType) (string, error) {
	id, err := e.InitializeAlliance(a, b, t)
	if err != nil {
		return "", err
	}
	slog.Info("alliance proposed", "id", id, "type", t, "from", a, "to", b)
	return id, nil
}

func (e *Engine) get(id string) (*Alliance, error) {
	al, ok := e.alliances[id]
	if !ok {
		return nil, fmt.Errorf("alliance %s: %w", id, world.ErrNotFound)
	}
	return al, nil
}

func (e *Engine) move(al *Alliance, to AllianceStatus) error {
	if !canMove(al.Status, to) {
		return fmt.Errorf("alliance %s %s→%s: %w", al.ID, al.Status, to, world.ErrInvalidTransition)
	}
	slog.Debug("alliance status", "id", al.ID, "from", al.Status, "to", to)
	al.Status = to
	return nil
}

// Activate puts a proposed alliance into force.
func (e *Engine) Activate(id string) error {
	al, err := e.get(id)
	if err != nil {
		return err
	}
	if err := e.move(al, Active); err != nil {
		return err
	}
	al.FormedAt = e.w.Now()
	for _, g := range al.Members {
		e.out.Remember(g, memory.New(memory.Positive, 0.9, e.home(g), "alliance_formation"))
	}
	e.out.Chronicle("diplomacy", fmt.Sprintf("%s alliance formed between %s", al.Type, joinGroups(al.Members)))
	slog.Info("alliance formed", "id", al.ID, "type", al.Type, "members", al.Members)
	return nil
}

// Break ends an alliance for reason and archives it.
func (e *Engine) Break(id, reason string) error {
	al, err := e.get(id)
	if err != nil {
		return err
	}
	wasLive := al.Status.Live()
	if err := e.move(al, Broken); err != nil {
		return err
	}
	al.Reason = reason
	if wasLive {
		for _, g := range al.Members {
			e.out.Remember(g, memory.New(memory.Negative, 0.7, e.home(g), "alliance_broken"))
		}
	}
	e.out.Chronicle("diplomacy", fmt.Sprintf("%s alliance between %s ended: %s", al.Type, joinGroups(al.Members), reason))
	slog.Info("alliance broken", "id", al.ID, "reason", reason)
	e.archiveAlliance(al)
	return nil
}

func (e *Engine) archiveAlliance(al *Alliance) {
	delete(e.alliances, al.ID)
	e.allianceOrder = slices.DeleteFunc(e.allianceOrder, func(id string) bool { return id == al.ID })
	e.archived = append(e.archived, cloneAlliance(al))
	if n := e.cfg.ArchiveSize; n > 0 && len(e.archived) > n {
		e.archived = e.archived[len(e.archived)-n:]
	}
}

// ReportBreach marks an obligation as unmet for the current update.
func (e *Engine) ReportBreach(id, obligation string) error {
	al, err := e.get(id)
	if err != nil {
		return err
	}
	if !al.HasObligation(obligation) {
		return fmt.Errorf("alliance %s obligation %q: %w", id, obligation, world.ErrNotFound)
	}
	al.breaches[obligation]++
	return nil
}

// UpdateAllianceStrength applies obligation fulfilment and the members'
// honor over dt, then moves the alliance along its lifecycle.
func (e *Engine) UpdateAllianceStrength(id string, dt time.Duration) error {
	al, err := e.get(id)
	if err != nil {
		return err
	}
	if !al.Status.Live() {
		return fmt.Errorf("alliance %s is %s: %w", id, al.Status, world.ErrInvalidTransition)
	}
	var ds, dtr float64
	for _, o := range al.Terms.Obligations {
		if al.breaches[o] > 0 {
			ds -= 0.02
			dtr -= 0.01
		} else {
			ds += 0.01
			dtr += 0.005
		}
	}
	for _, g := range al.Members {
		if grp, ok := e.groups.Get(g); ok {
			ds += (grp.Honor - 0.5) * 0.01
			dtr += (grp.Honor - 0.5) * 0.005
		}
	}
	clear(al.breaches)
	al.Strength = bounded.Unit(al.Strength + bounded.Step(ds, dt))
	al.Trust = bounded.Unit(al.Trust + bounded.Step(dtr, dt))
	return e.review(al)
}

// review applies the threshold rules after any change to strength or trust.
func (e *Engine) review(al *Alliance) error {
	if al.Strength < e.cfg.BreakBelow || al.Trust < e.cfg.BreakBelow {
		return e.Break(al.ID, "alliance_deteriorated")
	}
	switch al.Status {
	case Active:
		if al.Strength < e.cfg.StrainBelow {
			return e.move(al, Strained)
		}
	case Strained:
		if al.Strength >= e.cfg.RenewStrength && al.Trust >= e.cfg.RenewTrust {
			return e.move(al, Renewed)
		}
	case Proposed, Broken, Renewed:
	}
	return nil
}

// HandleEvent applies a betrayal or cooperation shock and records it in
// every member group.
func (e *Engine) HandleEvent(id string, ev Event) error {
	al, err := e.get(id)
	if err != nil {
		return err
	}
	if !al.Status.Live() {
		return fmt.Errorf("alliance %s is %s: %w", id, al.Status, world.ErrInvalidTransition)
	}
	tag := "alliance_" + ev.String()
	switch ev {
	case Betrayal:
		al.Trust = bounded.Unit(al.Trust * 0.5)
		al.Strength = bounded.Unit(al.Strength * 0.7)
		for _, g := range al.Members {
			e.out.Remember(g, memory.New(memory.Negative, 0.8, e.home(g), tag))
		}
		if al.Trust < e.cfg.BreakBelow {
			return e.Break(id, "trust_broken")
		}
	case Cooperation:
		al.Trust = bounded.Unit(al.Trust + 0.1)
		al.Strength = bounded.Unit(al.Strength + 0.05)
		for _, g := range al.Members {
			e.out.Remember(g, memory.New(memory.Alliance, 0.8, e.home(g), tag))
			e.out.Push(effect.AdjustGroup{Group: g, Honor: 0.05})
		}
	default:
		return fmt.Errorf("alliance event %d: %w", ev, world.ErrInvalidTransition)
	}
	return e.review(al)
}

// ShareTraditions merges every member's traditions into all members.
func (e *Engine) ShareTraditions(id string) error {
	al, err := e.get(id)
	if err != nil {
		return err
	}
	if !al.Status.Live() {
		return fmt.Errorf("alliance %s is %s: %w", id, al.Status, world.ErrInvalidTransition)
	}
	var union []string
	for _, g := range al.Members {
		if grp, ok := e.groups.Get(g); ok {
			union = append(union, grp.Traditions...)
		}
	}
	slices.Sort(union)
	union = slices.Compact(union)
	for _, g := range al.Members {
		e.out.Push(effect.AddTraditions{Group: g, Traditions: slices.Clone(union)})
	}
	al.Strength = bounded.Unit(al.Strength + 0.1)
	al.Trust = bounded.Unit(al.Trust + 0.05)
	return e.review(al)
}

// Wedding is the outcome of an arranged marriage.
type Wedding struct {
	AllianceID string
	Couple     [2]world.ActorID
	Location   world.Vec3
}

// ArrangeMarriage pairs the first compatible members of two groups and
// binds the families in an active marriage alliance.
func (e *Engine) ArrangeMarriage(a, b world.GroupID) (Wedding, error) {
	ga, err := e.groups.Lookup(a)
	if err != nil {
		return Wedding{}, err
	}
	gb, err := e.groups.Lookup(b)
	if err != nil {
		return Wedding{}, err
	}
	couple, ok := e.match(ga, gb)
	if !ok {
		return Wedding{}, fmt.Errorf("marriage %s/%s: no compatible pair: %w", a, b, world.ErrIneligible)
	}
	id, err := e.InitializeAlliance(a, b, Marriage)
	if err != nil {
		return Wedding{}, err
	}
	if err := e.Activate(id); err != nil {
		return Wedding{}, err
	}
	at := ga.Home.Lerp(gb.Home, 0.5)
	at.Z = e.w.GroundZ(at.X, at.Y)
	return Wedding{AllianceID: id, Couple: couple, Location: at}, nil
}

func (e *Engine) match(ga, gb *social.Group) ([2]world.ActorID, bool) {
	tried := 0
	for _, ma := range ga.Members {
		ta, ok := e.p.Traits(ma.Actor)
		if !ok {
			continue
		}
		for _, mb := range gb.Members {
			if tried >= e.cfg.MarriagePairs {
				return [2]world.ActorID{}, false
			}
			tb, ok := e.p.Traits(mb.Actor)
			if !ok {
				continue
			}
			tried++
			compat := 1 - (math.Abs(ta.Sociability-tb.Sociability)+math.Abs(ta.Charisma-tb.Charisma))/2
			if compat > e.cfg.Compatibility {
				return [2]world.ActorID{ma.Actor, mb.Actor}, true
			}
		}
	}
	return [2]world.ActorID{}, false
}

// updateAlliances evaluates proposals, applies strength dynamics and
// enforces term expiry.
func (e *Engine) updateAlliances(now time.Duration, dt time.Duration) {
	for _, id := range slices.Clone(e.allianceOrder) {
		al, ok := e.alliances[id]
		if !ok {
			continue
		}
		switch al.Status {
		case Proposed:
			if e.willing(al) {
				e.logErr(e.Activate(id))
			} else if now-al.ProposedAt >= e.cfg.ProposalTimeout {
				e.logErr(e.Break(id, "proposal_declined"))
			}
		case Active, Strained, Renewed:
			e.logErr(e.UpdateAllianceStrength(id, dt))
			if al.Status == Broken || al.Terms.Duration <= 0 || now-al.FormedAt < al.Terms.Duration {
				continue
			}
			if al.Trust >= e.cfg.RenewTrust {
				al.FormedAt = now
				e.out.Chronicle("diplomacy", fmt.Sprintf("%s alliance between %s extended", al.Type, joinGroups(al.Members)))
			} else {
				e.logErr(e.Break(id, "terms_expired"))
			}
		case Broken:
		}
	}
}

// willing reports whether every member currently accepts the proposal.
func (e *Engine) willing(al *Alliance) bool {
	for _, g := range al.Members {
		grp, ok := e.groups.Get(g)
		if !ok {
			return false
		}
		score := grp.Honor*0.5 + grp.Stability*0.3 + (1-e.mem.Tension(g))*0.2
		if score < e.cfg.Willingness {
			return false
		}
	}
	return true
}

// Update advances every alliance and negotiation by dt.
func (e *Engine) Update(dt time.Duration) {
	now := e.w.Now()
	e.updateAlliances(now, dt)
	e.updateNegotiations(now, dt)
}

// Alliance returns a copy of a current alliance.
func (e *Engine) Alliance(id string) (Alliance, bool) {
	al, ok := e.alliances[id]
	if !ok {
		for _, a := range e.archived {
			if a.ID == id {
				return a, true
			}
		}
		return Alliance{}, false
	}
	return cloneAlliance(al), true
}

// Alliances returns copies of proposed and live alliances.
func (e *Engine) Alliances() []Alliance {
	out := make([]Alliance, 0, len(e.allianceOrder))
	for _, id := range e.allianceOrder {
		out = append(out, cloneAlliance(e.alliances[id]))
	}
	return out
}

// Archived returns recently broken alliances, oldest first.
func (e *Engine) Archived() []Alliance {
	return slices.Clone(e.archived)
}

// AlliancesOf returns live alliances a group belongs to.
func (e *Engine) AlliancesOf(g world.GroupID) []Alliance {
	var out []Alliance
	for _, id := range e.allianceOrder {
		if al := e.alliances[id]; al.Status.Live() && al.Includes(g) {
			out = append(out, cloneAlliance(al))
		}
	}
	return out
}

// Between returns the live alliances joining a and b.
func (e *Engine) Between(a, b world.GroupID) []Alliance {
	var out []Alliance
	for _, al := range e.AlliancesOf(a) {
		if al.Includes(b) {
			out = append(out, al)
		}
	}
	return out
}

func (e *Engine) home(g world.GroupID) world.Vec3 {
	if grp, ok := e.groups.Get(g); ok {
		return grp.Home
	}
	return world.Vec3{}
}

func (e *Engine) logErr(err error) {
	if err != nil {
		slog.Debug("diplomacy step skipped", "error", err)
	}
}

func cloneAlliance(al *Alliance) Alliance {
	c := *al
	c.Members = slices.Clone(al.Members)
	c.Terms.Obligations = slices.Clone(al.Terms.Obligations)
	c.Terms.Benefits = slices.Clone(al.Terms.Benefits)
	c.breaches = nil
	return c
}

func joinGroups(gs []world.GroupID) string {
	s := ""
	for i, g := range gs {
		if i > 0 {
			s += " and "
		}
		s += string(g)
	}
	return s
}
