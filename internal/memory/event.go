// Package memory is the per-group collective memory: an event log whose
// importance decays with age, spreads once to nearby groups, marks
// significant places, and derives the group's tension.
package memory

import (
	"time"

	"github.com/talgya/kindred/internal/world"
)

// Kind classifies a remembered event.
type Kind uint8

const (
	Positive Kind = iota
	Negative
	Neutral
	Threat
	Alliance
)

func (k Kind) String() string {
	switch k {
	case Positive:
		return "positive"
	case Negative:
		return "negative"
	case Neutral:
		return "neutral"
	case Threat:
		return "threat"
	case Alliance:
		return "alliance"
	default:
		return "unknown"
	}
}

// ParseKind maps a name back to its Kind.
func ParseKind(s string) (Kind, bool) {
	for k := Positive; k <= Alliance; k++ {
		if k.String() == s {
			return k, true
		}
	}
	return 0, false
}

// Event is one remembered occurrence. Importance starts at Initial and only
// decreases afterwards.
type Event struct {
	Kind       Kind            `json:"kind"`
	Initial    float64         `json:"initial"`
	Importance float64         `json:"importance"`
	At         time.Duration   `json:"at"`
	Location   world.Vec3      `json:"location"`
	Actors     []world.ActorID `json:"actors,omitempty"`
	Tag        string          `json:"tag"`

	// Origin is the group the event was first recorded in. Propagated
	// copies keep it and never spread further.
	Origin     world.GroupID `json:"origin"`
	Propagated bool          `json:"propagated,omitempty"`
	// Local events stay in the group they were written to.
	Local bool `json:"local,omitempty"`
}

// New builds an event for recording. Importance is clamped on write.
func New(kind Kind, importance float64, at world.Vec3, tag string, actors ...world.ActorID) Event {
	return Event{
		Kind:       kind,
		Importance: importance,
		Location:   at,
		Tag:        tag,
		Actors:     actors,
	}
}

// Riot is raised when a group's tension crosses the riot threshold.
type Riot struct {
	Group    world.GroupID `json:"group"`
	Location world.Vec3    `json:"location"`
	Tension  float64       `json:"tension"`
}

// Config holds memory tuning.
type Config struct {
	Lifetime          time.Duration `yaml:"lifetime"`
	PruneBelow        float64       `yaml:"prune_below"`
	SignificantAbove  float64       `yaml:"significant_above"`
	PropagationRadius float64       `yaml:"propagation_radius"`
	PropagationFactor float64       `yaml:"propagation_factor"`
	RiotThreshold     float64       `yaml:"riot_threshold"`
	MaxEvents         int           `yaml:"max_events"`
	MaxSignificant    int           `yaml:"max_significant"`
	WeatherImportance float64       `yaml:"weather_importance"`
	WeatherWindow     time.Duration `yaml:"weather_window"`
	WeatherRadius     float64       `yaml:"weather_radius"`
	WeatherLog        int           `yaml:"weather_log"`
}

// DefaultConfig returns the standard memory constants.
func DefaultConfig() Config {
	return Config{
		Lifetime:          3600 * time.Second,
		PruneBelow:        0.1,
		SignificantAbove:  0.7,
		PropagationRadius: 100,
		PropagationFactor: 0.8,
		RiotThreshold:     0.8,
		MaxEvents:         200,
		MaxSignificant:    32,
		WeatherImportance: 0.7,
		WeatherWindow:     300 * time.Second,
		WeatherRadius:     100,
		WeatherLog:        64,
	}
}
