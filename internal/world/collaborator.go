package world

import "time"

// World is the host game world as seen by the social core. Every query is
// bounded: limit caps the number of results and truncation is silent.
type World interface {
	// ActorsNear returns up to limit live actors within radius of center,
	// nearest first.
	ActorsNear(center Vec3, radius float64, limit int) []ActorID
	Exists(id ActorID) bool
	Attributes(id ActorID) (Attributes, bool)

	// GroundZ projects a map coordinate onto the terrain surface.
	GroundZ(x, y float64) float64
	// ObstaclesNear counts obstacles within radius of p, at most limit.
	ObstaclesNear(p Vec3, radius float64, limit int) int

	// Now is the simulated time since session start.
	Now() time.Duration
	Weather() Weather
	Season() Season

	Dispatch(id ActorID, t Task)
	SetFlag(id ActorID, f Flag, on bool)
	Effect(name string, at Vec3)
}

// Personalities exposes per-actor trait bundles.
type Personalities interface {
	Traits(id ActorID) (Traits, bool)
	SetTraits(id ActorID, t Traits)
}
