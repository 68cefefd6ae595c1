// Package hierarchy keeps each group's chain of command: ranks, authority,
// succession and mediation. Nodes live in one arena and refer to each
// other by NodeID, never by pointer.
package hierarchy

import (
	"time"

	"github.com/talgya/kindred/internal/world"
)

// Rank is a node's place in the chain of command.
type Rank uint8

const (
	Leader Rank = iota
	Elder
	Veteran
	Member
	Initiate
	Outsider
)

func (r Rank) String() string {
	switch r {
	case Leader:
		return "leader"
	case Elder:
		return "elder"
	case Veteran:
		return "veteran"
	case Member:
		return "member"
	case Initiate:
		return "initiate"
	case Outsider:
		return "outsider"
	default:
		return "unknown"
	}
}

// ParseRank maps a name back to a Rank.
func ParseRank(s string) (Rank, bool) {
	for r := Leader; r <= Outsider; r++ {
		if r.String() == s {
			return r, true
		}
	}
	return 0, false
}

// Role is a duty carried alongside rank.
type Role uint8

const (
	NoRole Role = iota
	Mediator
	Enforcer
)

func (r Role) String() string {
	switch r {
	case NoRole:
		return "none"
	case Mediator:
		return "mediator"
	case Enforcer:
		return "enforcer"
	default:
		return "unknown"
	}
}

// NodeID indexes the arena. Zero means no node.
type NodeID uint32

// Node is one actor's position in its group's hierarchy. Superior and
// Subordinates are lookups, not ownership.
type Node struct {
	ID           NodeID          `json:"id"`
	Actor        world.ActorID   `json:"actor"`
	Group        world.GroupID   `json:"group"`
	Rank         Rank            `json:"rank"`
	Role         Role            `json:"role"`
	Authority    float64         `json:"authority"`
	Respect      float64         `json:"respect"`
	Superior     NodeID          `json:"superior"`
	Subordinates []NodeID        `json:"subordinates,omitempty"`
	Mentees      []world.ActorID `json:"mentees,omitempty"`

	removed bool
}

// Config holds hierarchy tuning.
type Config struct {
	Inertia           float64       `yaml:"inertia"`
	SubordinateWeight float64       `yaml:"subordinate_weight"`
	CharismaWeight    float64       `yaml:"charisma_weight"`
	RespectWeight     float64       `yaml:"respect_weight"`
	SubordinateCap    float64       `yaml:"subordinate_cap"`
	ImbalanceAbove    float64       `yaml:"imbalance_above"`
	ShedTo            float64       `yaml:"shed_to"`
	ElderAbove        float64       `yaml:"elder_above"`
	VeteranAbove      float64       `yaml:"veteran_above"`
	EnforcerBravery   float64       `yaml:"enforcer_bravery"`
	DirectiveInterval time.Duration `yaml:"directive_interval"`
	PatrolRadius      float64       `yaml:"patrol_radius"`
	RespectLoss       float64       `yaml:"respect_loss"`
	RespectGain       float64       `yaml:"respect_gain"`
}

// DefaultConfig returns the standard hierarchy constants.
func DefaultConfig() Config {
	return Config{
		Inertia:           0.8,
		SubordinateWeight: 0.1,
		CharismaWeight:    0.1,
		RespectWeight:     0.1,
		SubordinateCap:    0.8,
		ImbalanceAbove:    2.0,
		ShedTo:            1.5,
		ElderAbove:        0.7,
		VeteranAbove:      0.55,
		EnforcerBravery:   0.7,
		DirectiveInterval: 30 * time.Second,
		PatrolRadius:      25,
		RespectLoss:       0.9,
		RespectGain:       1.1,
	}
}

// leaderScore weighs who should lead.
func leaderScore(t world.Traits) float64 {
	return t.Charisma*0.4 + t.Intelligence*0.3 + t.Bravery*0.3
}
