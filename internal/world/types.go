// Package world defines the boundary between the social core and the host
// game world: actor handles, geometry, clock and weather enums, and the
// World and Personalities collaborators the core reads and commands.
package world

import (
	"errors"
	"fmt"
	"math"
)

// ActorID is an opaque handle for an actor owned by the host world.
type ActorID uint64

// GroupID names a family or faction.
type GroupID string

// Sentinel errors shared by every subsystem.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrIneligible        = errors.New("ineligible")
)

// Vec3 is a point in world space. Z is height.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Dist returns the euclidean distance between two points.
func (v Vec3) Dist(o Vec3) float64 {
	dx, dy, dz := v.X-o.X, v.Y-o.Y, v.Z-o.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Dist2D ignores height.
func (v Vec3) Dist2D(o Vec3) float64 {
	dx, dy := v.X-o.X, v.Y-o.Y
	return math.Sqrt(dx*dx + dy*dy)
}

func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z}
}

// Lerp interpolates from v toward o by t in [0,1].
func (v Vec3) Lerp(o Vec3, t float64) Vec3 {
	return Vec3{
		X: v.X + (o.X-v.X)*t,
		Y: v.Y + (o.Y-v.Y)*t,
		Z: v.Z + (o.Z-v.Z)*t,
	}
}

func (v Vec3) String() string {
	return fmt.Sprintf("(%.1f, %.1f, %.1f)", v.X, v.Y, v.Z)
}

// Season of the simulated year.
type Season uint8

const (
	Spring Season = iota
	Summer
	Autumn
	Winter
)

// String returns a human-readable season name.
func (s Season) String() string {
	switch s {
	case Spring:
		return "Spring"
	case Summer:
		return "Summer"
	case Autumn:
		return "Autumn"
	case Winter:
		return "Winter"
	default:
		return "Unknown"
	}
}

// Weather is the current sky condition reported by the host.
type Weather uint8

const (
	Clear Weather = iota
	Clouds
	Rain
	Thunder
	Fog
	Snow
)

func (w Weather) String() string {
	switch w {
	case Clear:
		return "clear"
	case Clouds:
		return "clouds"
	case Rain:
		return "rain"
	case Thunder:
		return "thunder"
	case Fog:
		return "fog"
	case Snow:
		return "snow"
	default:
		return "unknown"
	}
}

// Wet reports whether the weather drives people indoors.
func (w Weather) Wet() bool {
	switch w {
	case Rain, Thunder:
		return true
	case Clear, Clouds, Fog, Snow:
		return false
	default:
		return false
	}
}

// Traits is the personality bundle the core reads and occasionally adjusts.
// All values are in [0,1].
type Traits struct {
	Bravery      float64 `json:"bravery"`
	Sociability  float64 `json:"sociability"`
	Aggression   float64 `json:"aggression"`
	Intelligence float64 `json:"intelligence"`
	Leadership   float64 `json:"leadership"`
	Charisma     float64 `json:"charisma"`
}

// Attributes are the host-owned properties of a live actor.
type Attributes struct {
	Position Vec3    `json:"position"`
	Health   float64 `json:"health"`
	Armed    bool    `json:"armed"`
}

// Flag is a world-facing marker driven by social status.
type Flag uint8

const (
	FlagUntargetable Flag = iota + 1
	FlagAvoided
)
