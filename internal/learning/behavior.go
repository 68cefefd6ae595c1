// Package learning keeps each group's table of learned behaviors and
// evolves it from outcomes, events and weather.
package learning

import (
	"time"

	"github.com/talgya/kindred/internal/memory"
	"github.com/talgya/kindred/internal/world"
)

// Category groups behaviors by what they are for.
type Category uint8

const (
	Combat Category = iota
	Social
	Survival
	Territory
	Resources
	Tactics
)

func (c Category) String() string {
	switch c {
	case Combat:
		return "combat"
	case Social:
		return "social"
	case Survival:
		return "survival"
	case Territory:
		return "territory"
	case Resources:
		return "resources"
	case Tactics:
		return "tactics"
	default:
		return "unknown"
	}
}

// ParseCategory maps a name back to a Category.
func ParseCategory(s string) (Category, bool) {
	for c := Combat; c <= Tactics; c++ {
		if c.String() == s {
			return c, true
		}
	}
	return 0, false
}

// downweight is the effectiveness multiplier for a failing behavior.
func (c Category) downweight() float64 {
	switch c {
	case Combat:
		return 0.8
	case Social:
		return 0.95
	case Survival:
		return 0.9
	case Territory:
		return 0.85
	case Resources:
		return 0.95
	case Tactics:
		return 0.85
	default:
		return 1
	}
}

// CategoryFor maps a memory kind to the category of behavior it teaches.
func CategoryFor(k memory.Kind) Category {
	switch k {
	case memory.Threat:
		return Survival
	case memory.Negative:
		return Combat
	case memory.Positive:
		return Social
	case memory.Alliance:
		return Tactics
	case memory.Neutral:
		return Territory
	default:
		return Territory
	}
}

// Behavior is one entry of a group's table.
type Behavior struct {
	Name          string          `json:"name"`
	Category      Category        `json:"category"`
	SuccessRate   float64         `json:"success_rate"`
	Uses          int             `json:"uses"`
	Effectiveness float64         `json:"effectiveness"`
	LastLocation  world.Vec3      `json:"last_location"`
	Teachers      []world.ActorID `json:"teachers,omitempty"`
}

// Table is a read-only view of a group's knowledge.
type Table struct {
	Group              world.GroupID `json:"group"`
	Adaptability       float64       `json:"adaptability"`
	Generation         int           `json:"generation"`
	Behaviors          []Behavior    `json:"behaviors"`
	StrategicLocations []world.Vec3  `json:"strategic_locations,omitempty"`
}

// Config holds learning tuning.
type Config struct {
	LearningRate        float64       `yaml:"learning_rate"`
	PruneUses           int           `yaml:"prune_uses"`
	PruneBelow          float64       `yaml:"prune_below"`
	CombineAbove        float64       `yaml:"combine_above"`
	CombineUses         int           `yaml:"combine_uses"`
	TeacherIntelligence float64       `yaml:"teacher_intelligence"`
	TeachRating         float64       `yaml:"teach_rating"`
	RatingGain          float64       `yaml:"rating_gain"`
	MaxBehaviors        int           `yaml:"max_behaviors"`
	StrategicAbove      float64       `yaml:"strategic_above"`
	MaxLocations        int           `yaml:"max_locations"`
	EvolveInterval      time.Duration `yaml:"evolve_interval"`
}

// DefaultConfig returns the standard learning constants.
func DefaultConfig() Config {
	return Config{
		LearningRate:        0.1,
		PruneUses:           10,
		PruneBelow:          0.3,
		CombineAbove:        0.7,
		CombineUses:         5,
		TeacherIntelligence: 0.7,
		TeachRating:         0.6,
		RatingGain:          0.1,
		MaxBehaviors:        64,
		StrategicAbove:      0.7,
		MaxLocations:        16,
		EvolveInterval:      60 * time.Second,
	}
}
