package sandbox

import (
	"math"

	opensimplex "github.com/ojrac/opensimplex-go"
)

// Terrain samples ground height and obstacle density from layered simplex
// noise. Relief 0 yields a flat plane at height 0.
type Terrain struct {
	relief    float64
	threshold float64
	elev      opensimplex.Noise
	clutter   opensimplex.Noise
}

// NewTerrain builds terrain from seed.
func NewTerrain(seed int64, relief, obstacleThreshold float64) *Terrain {
	return &Terrain{
		relief:    relief,
		threshold: obstacleThreshold,
		elev:      opensimplex.NewNormalized(seed),
		clutter:   opensimplex.NewNormalized(seed + 1),
	}
}

// Height returns ground height at (x, y).
func (t *Terrain) Height(x, y float64) float64 {
	if t.relief == 0 {
		return 0
	}
	return octaveNoise(t.elev, x, y, 4, 0.002, 0.5) * t.relief
}

// Obstacle reports whether the unit cell at (x, y) is blocked.
func (t *Terrain) Obstacle(x, y float64) bool {
	if t.threshold >= 1 {
		return false
	}
	return t.clutter.Eval2(math.Floor(x)*0.37, math.Floor(y)*0.37) > t.threshold
}

// octaveNoise generates fractal noise by layering multiple frequencies.
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}
