// Package diplomacy runs agreements between groups: alliances with their
// strength and trust, and the negotiations that produce them.
package diplomacy

import (
	"time"

	"github.com/talgya/kindred/internal/world"
)

// AllianceType selects the obligations and benefits of an alliance.
type AllianceType uint8

const (
	Marriage AllianceType = iota
	Trade
	Military
)

func (t AllianceType) String() string {
	switch t {
	case Marriage:
		return "marriage"
	case Trade:
		return "trade"
	case Military:
		return "military"
	default:
		return "unknown"
	}
}

// ParseAllianceType maps a name back to an AllianceType.
func ParseAllianceType(s string) (AllianceType, bool) {
	for t := Marriage; t <= Military; t++ {
		if t.String() == s {
			return t, true
		}
	}
	return 0, false
}

// AllianceStatus is the alliance lifecycle stage.
type AllianceStatus uint8

const (
	Proposed AllianceStatus = iota
	Active
	Strained
	Broken
	Renewed
)

func (s AllianceStatus) String() string {
	switch s {
	case Proposed:
		return "proposed"
	case Active:
		return "active"
	case Strained:
		return "strained"
	case Broken:
		return "broken"
	case Renewed:
		return "renewed"
	default:
		return "unknown"
	}
}

// Live reports whether the alliance is in force.
func (s AllianceStatus) Live() bool {
	switch s {
	case Active, Strained, Renewed:
		return true
	case Proposed, Broken:
		return false
	default:
		return false
	}
}

// canMove lists the permitted alliance transitions. Strained→Renewed is the
// only recovery edge.
func canMove(from, to AllianceStatus) bool {
	switch from {
	case Proposed:
		return to == Active || to == Broken
	case Active:
		return to == Strained || to == Broken
	case Strained:
		return to == Renewed || to == Broken
	case Renewed:
		return to == Broken
	case Broken:
		return false
	default:
		return false
	}
}

// Terms are what an alliance binds its members to.
type Terms struct {
	Obligations []string      `json:"obligations"`
	Benefits    []string      `json:"benefits"`
	Duration    time.Duration `json:"duration"`
	Penalty     float64       `json:"penalty"`
}

// Alliance is an agreement between groups.
type Alliance struct {
	ID         string          `json:"id"`
	Type       AllianceType    `json:"type"`
	Members    []world.GroupID `json:"members"`
	Status     AllianceStatus  `json:"status"`
	Strength   float64         `json:"strength"`
	Trust      float64         `json:"trust"`
	Terms      Terms           `json:"terms"`
	ProposedAt time.Duration   `json:"proposed_at"`
	FormedAt   time.Duration   `json:"formed_at"`
	Reason     string          `json:"reason,omitempty"`

	breaches map[string]int
}

// Includes reports whether g is a member.
func (a *Alliance) Includes(g world.GroupID) bool {
	for _, m := range a.Members {
		if m == g {
			return true
		}
	}
	return false
}

// HasObligation reports whether the terms bind members to name.
func (a *Alliance) HasObligation(name string) bool {
	for _, o := range a.Terms.Obligations {
		if o == name {
			return true
		}
	}
	return false
}

// Event is a discrete diplomatic shock.
type Event uint8

const (
	Betrayal Event = iota
	Cooperation
)

func (e Event) String() string {
	switch e {
	case Betrayal:
		return "betrayal"
	case Cooperation:
		return "cooperation"
	default:
		return "unknown"
	}
}

// ParseEvent maps a name back to an Event.
func ParseEvent(s string) (Event, bool) {
	for e := Betrayal; e <= Cooperation; e++ {
		if e.String() == s {
			return e, true
		}
	}
	return 0, false
}

// Config holds diplomacy tuning.
type Config struct {
	DefaultStrength  float64       `yaml:"default_strength"`
	MarriageStrength float64       `yaml:"marriage_strength"`
	DefaultTrust     float64       `yaml:"default_trust"`
	Duration         time.Duration `yaml:"duration"`
	Penalty          float64       `yaml:"penalty"`
	ProposalTimeout  time.Duration `yaml:"proposal_timeout"`
	Willingness      float64       `yaml:"willingness"`
	BreakBelow       float64       `yaml:"break_below"`
	StrainBelow      float64       `yaml:"strain_below"`
	RenewStrength    float64       `yaml:"renew_strength"`
	RenewTrust       float64       `yaml:"renew_trust"`
	Compatibility    float64       `yaml:"compatibility"`
	MarriagePairs    int           `yaml:"marriage_pairs"`
	ArchiveSize      int           `yaml:"archive_size"`
	InitialTension   float64       `yaml:"initial_tension"`
	Deadline         time.Duration `yaml:"deadline"`
	DeadlineWarning  time.Duration `yaml:"deadline_warning"`
	MediatorHonor    float64       `yaml:"mediator_honor"`
	RecentMemories   int           `yaml:"recent_memories"`
	HighTrust        float64       `yaml:"high_trust"`
}

// DefaultConfig returns the standard diplomacy constants.
func DefaultConfig() Config {
	return Config{
		DefaultStrength:  0.5,
		MarriageStrength: 0.8,
		DefaultTrust:     0.5,
		Duration:         3600 * time.Second,
		Penalty:          0.2,
		ProposalTimeout:  300 * time.Second,
		Willingness:      0.5,
		BreakBelow:       0.2,
		StrainBelow:      0.4,
		RenewStrength:    0.6,
		RenewTrust:       0.5,
		Compatibility:    0.7,
		MarriagePairs:    50,
		ArchiveSize:      64,
		InitialTension:   0.3,
		Deadline:         3600 * time.Second,
		DeadlineWarning:  600 * time.Second,
		MediatorHonor:    0.7,
		RecentMemories:   5,
		HighTrust:        0.7,
	}
}

// termsFor returns the fixed terms of an alliance type.
func termsFor(t AllianceType, cfg Config) Terms {
	terms := Terms{Duration: cfg.Duration, Penalty: cfg.Penalty}
	switch t {
	case Marriage:
		terms.Obligations = []string{"protect_family", "share_resources", "attend_ceremonies"}
		terms.Benefits = []string{"shared_territory", "mutual_aid", "combined_strength"}
	case Trade:
		terms.Obligations = []string{"fair_trade", "protect_merchants"}
		terms.Benefits = []string{"shared_resources", "economic_growth"}
	case Military:
		terms.Obligations = []string{"defend_allies", "share_intel", "joint_training"}
		terms.Benefits = []string{"increased_security", "shared_territory"}
	}
	return terms
}
