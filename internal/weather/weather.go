// Package weather drives the sky over the sandbox world: a seeded,
// season-weighted Markov chain of conditions plus the travel modifiers
// those conditions imply.
package weather

import (
	"log/slog"

	"github.com/talgya/kindred/internal/entropy"
	"github.com/talgya/kindred/internal/world"
)

// Cycle advances weather one step at a time.
type Cycle struct {
	rng     *entropy.Source
	current world.Weather
}

// NewCycle starts a cycle at the given condition.
func NewCycle(rng *entropy.Source, start world.Weather) *Cycle {
	return &Cycle{rng: rng, current: start}
}

// Current returns the latest condition.
func (c *Cycle) Current() world.Weather {
	return c.current
}

// Set pins the current condition.
func (c *Cycle) Set(w world.Weather) {
	c.current = w
}

// Next draws the following condition. Conditions tend to persist; the
// season shapes what the sky turns into.
func (c *Cycle) Next(season world.Season) world.Weather {
	if c.rng.Chance(0.6) {
		return c.current
	}
	weights := seasonWeights(season)
	var total float64
	for _, w := range weights {
		total += w
	}
	roll := c.rng.Float() * total
	next := world.Clear
	for i, w := range weights {
		if roll < w {
			next = world.Weather(i)
			break
		}
		roll -= w
	}
	if next != c.current {
		slog.Debug("weather changed", "from", c.current, "to", next, "season", season)
	}
	c.current = next
	return next
}

// seasonWeights is indexed by world.Weather.
func seasonWeights(s world.Season) [6]float64 {
	switch s {
	case world.Spring:
		return [6]float64{4, 3, 3, 1, 1, 0}
	case world.Summer:
		return [6]float64{6, 2, 1, 1.5, 0.5, 0}
	case world.Autumn:
		return [6]float64{3, 3, 3, 1, 2, 0.5}
	case world.Winter:
		return [6]float64{2, 3, 1, 0.5, 2, 3}
	default:
		return [6]float64{1, 0, 0, 0, 0, 0}
	}
}

// Modifiers are the simulation-facing consequences of a condition.
type Modifiers struct {
	TravelPenalty float64 // Multiplier on travel time
	Visibility    float64 // 0 blind to 1 clear
	Description   string
}

// For maps a condition to its modifiers.
func For(w world.Weather, season world.Season) Modifiers {
	switch w {
	case world.Clear:
		return Modifiers{TravelPenalty: 1.0, Visibility: 1.0, Description: seasonDefault(season)}
	case world.Clouds:
		return Modifiers{TravelPenalty: 1.0, Visibility: 0.9, Description: "overcast skies"}
	case world.Rain:
		return Modifiers{TravelPenalty: 1.2, Visibility: 0.7, Description: "steady rain"}
	case world.Thunder:
		return Modifiers{TravelPenalty: 2.0, Visibility: 0.5, Description: "thunderstorm"}
	case world.Fog:
		return Modifiers{TravelPenalty: 1.3, Visibility: 0.3, Description: "thick fog"}
	case world.Snow:
		return Modifiers{TravelPenalty: 1.5, Visibility: 0.6, Description: "falling snow"}
	default:
		return Modifiers{TravelPenalty: 1.0, Visibility: 1.0, Description: "fair weather"}
	}
}

func seasonDefault(season world.Season) string {
	switch season {
	case world.Spring:
		return "mild spring weather"
	case world.Summer:
		return "warm summer sun"
	case world.Autumn:
		return "cool autumn breeze"
	case world.Winter:
		return "cold winter chill"
	default:
		return "fair weather"
	}
}
