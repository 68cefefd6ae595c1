// Package migration moves groups between settlements along scored paths.
package migration

import (
	"time"

	"github.com/talgya/kindred/internal/world"
)

// Terrain is the ground type of a settlement.
type Terrain uint8

const (
	Plains Terrain = iota
	Forest
	Mountain
	Urban
	Coastal
	Desert
)

func (t Terrain) String() string {
	switch t {
	case Plains:
		return "plains"
	case Forest:
		return "forest"
	case Mountain:
		return "mountain"
	case Urban:
		return "urban"
	case Coastal:
		return "coastal"
	case Desert:
		return "desert"
	default:
		return "unknown"
	}
}

// ParseTerrain maps a name back to a Terrain.
func ParseTerrain(s string) (Terrain, bool) {
	for t := Plains; t <= Desert; t++ {
		if t.String() == s {
			return t, true
		}
	}
	return 0, false
}

type profile struct {
	capacity  int
	resources float64
	seasonal  bool
	hardship  float64
}

func (t Terrain) profile() profile {
	switch t {
	case Plains:
		return profile{capacity: 150, resources: 100, hardship: 1}
	case Forest:
		return profile{capacity: 120, resources: 85, hardship: 1}
	case Mountain:
		return profile{capacity: 50, resources: 70, seasonal: true, hardship: 1.5}
	case Urban:
		return profile{capacity: 200, resources: 60, hardship: 1}
	case Coastal:
		return profile{capacity: 100, resources: 90, hardship: 1}
	case Desert:
		return profile{capacity: 40, resources: 30, hardship: 1.3}
	default:
		return profile{hardship: 1}
	}
}

// Settlement is a place groups live in. Capacity counts members.
type Settlement struct {
	ID        string          `json:"id"`
	Location  world.Vec3      `json:"location"`
	Terrain   Terrain         `json:"terrain"`
	Capacity  int             `json:"capacity"`
	Resources float64         `json:"resources"`
	Residents []world.GroupID `json:"residents"`
	Seasonal  bool            `json:"seasonal"`
}

// Policy decides where a migrating group goes.
type Policy uint8

const (
	Seasonal Policy = iota
	ResourceDriven
	ConflictEscape
	Opportunity
	Forced
)

func (p Policy) String() string {
	switch p {
	case Seasonal:
		return "seasonal"
	case ResourceDriven:
		return "resource_driven"
	case ConflictEscape:
		return "conflict_escape"
	case Opportunity:
		return "opportunity"
	case Forced:
		return "forced"
	default:
		return "unknown"
	}
}

// ParsePolicy maps a name back to a Policy.
func ParsePolicy(s string) (Policy, bool) {
	for p := Seasonal; p <= Forced; p++ {
		if p.String() == s {
			return p, true
		}
	}
	return 0, false
}

// Path is the route between two settlements.
type Path struct {
	Waypoints  []world.Vec3 `json:"waypoints"`
	Terrain    Terrain      `json:"terrain"`
	Difficulty float64      `json:"difficulty"`
	Distance   float64      `json:"distance"`
}

// Plan is one group's migration.
type Plan struct {
	ID          string          `json:"id"`
	Group       world.GroupID   `json:"group"`
	Policy      Policy          `json:"policy"`
	Origin      string          `json:"origin"`
	Destination string          `json:"destination"`
	Path        Path            `json:"path"`
	Progress    float64         `json:"progress"`
	Active      bool            `json:"active"`
	Members     []world.ActorID `json:"members"`
	StartedAt   time.Duration   `json:"started_at"`
	Reason      string          `json:"reason,omitempty"`

	waypoint int
}

// Config holds migration tuning.
type Config struct {
	ProgressRate   float64 `yaml:"progress_rate"`
	Segments       int     `yaml:"segments"`
	ObstacleRadius float64 `yaml:"obstacle_radius"`
	MaxObstacles   int     `yaml:"max_obstacles"`
	CloseAbove     float64 `yaml:"close_above"`
	MinDifficulty  float64 `yaml:"min_difficulty"`
	MountainAbove  float64 `yaml:"mountain_above"`
	SharedWithin   float64 `yaml:"shared_within"`
	ArchiveSize    int     `yaml:"archive_size"`
}

// DefaultConfig returns the standard migration constants.
func DefaultConfig() Config {
	return Config{
		ProgressRate:   0.01,
		Segments:       5,
		ObstacleRadius: 5,
		MaxObstacles:   10,
		CloseAbove:     0.8,
		MinDifficulty:  0.05,
		MountainAbove:  100,
		SharedWithin:   10,
		ArchiveSize:    64,
	}
}
