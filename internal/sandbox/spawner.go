package sandbox

import (
	"fmt"
	"math"

	"github.com/talgya/kindred/internal/bounded"
	"github.com/talgya/kindred/internal/entropy"
	"github.com/talgya/kindred/internal/social"
	"github.com/talgya/kindred/internal/world"
)

// Spawner populates a sandbox with families.
type Spawner struct {
	rng *entropy.Source
	w   *World
}

// NewSpawner creates a spawner with its own stream derived from seed.
func NewSpawner(w *World, seed int64) *Spawner {
	return &Spawner{rng: entropy.New(seed + 300), w: w}
}

// Family spawns size members around home and returns the registered-ready
// group. The first member heads the family; the oldest-minded is its elder.
func (s *Spawner) Family(id world.GroupID, home world.Vec3, size int) *social.Group {
	surname := lastNames[s.rng.Intn(len(lastNames))]
	g := social.NewGroup(id, surname, home)
	g.Honor = 0.4 + s.rng.Float()*0.4
	g.Stability = 0.4 + s.rng.Float()*0.4
	g.AddTraditions(traditions[s.rng.Intn(len(traditions))])

	for i := 0; i < size; i++ {
		angle := s.rng.Float() * 2 * math.Pi
		r := 3 + s.rng.Float()*12
		p := world.Vec3{X: home.X + math.Cos(angle)*r, Y: home.Y + math.Sin(angle)*r}
		name := fmt.Sprintf("%s %s", s.firstName(), surname)
		actor := s.w.Spawn(name, p, s.traits())
		if s.rng.Chance(0.3) {
			s.w.Arm(actor, true)
		}

		role := social.RoleKin
		switch {
		case i == 0:
			role = social.RoleHead
		case i == 1:
			role = social.RoleSpouse
		case i == size-1 && size > 3:
			role = social.RoleElder
		case s.rng.Chance(0.1):
			role = social.RoleMediator
		case i < 4:
			role = social.RoleChild
		}
		g.Members = append(g.Members, social.Member{Actor: actor, Role: role})
	}
	return g
}

// Populate spawns n families spread around the origin and registers them.
func (s *Spawner) Populate(reg *social.Registry, n, size int, spread float64) error {
	for i := 0; i < n; i++ {
		angle := float64(i) / float64(max(n, 1)) * 2 * math.Pi
		home := world.Vec3{X: math.Cos(angle) * spread, Y: math.Sin(angle) * spread}
		home.Z = s.w.GroundZ(home.X, home.Y)
		g := s.Family(world.GroupID(fmt.Sprintf("fam_%d", i+1)), home, size)
		if err := reg.Add(g); err != nil {
			return err
		}
	}
	return nil
}

// traits draws a personality. Most people are middling; a few stand out.
func (s *Spawner) traits() world.Traits {
	trait := func() float64 {
		v := 0.5 + (s.rng.Float()-0.5)*0.6
		if s.rng.Chance(0.15) {
			v += (s.rng.Float() - 0.5) * 0.8
		}
		return bounded.Unit(v)
	}
	return world.Traits{
		Bravery:      trait(),
		Sociability:  trait(),
		Aggression:   trait(),
		Intelligence: trait(),
		Leadership:   trait(),
		Charisma:     trait(),
	}
}

func (s *Spawner) firstName() string {
	if s.rng.Chance(0.5) {
		return maleNames[s.rng.Intn(len(maleNames))]
	}
	return femaleNames[s.rng.Intn(len(femaleNames))]
}

var traditions = []string{
	"harvest_feast", "ancestor_vigil", "river_blessing", "hunting_moon",
	"forge_oath", "storm_songs", "winter_fires",
}

// Name pools for procedural generation.
var maleNames = []string{
	"Aldric", "Bram", "Cedric", "Doran", "Erik", "Finn", "Gareth",
	"Halvard", "Ivan", "Jasper", "Kael", "Leif", "Magnus", "Nils",
	"Oswin", "Per", "Quinn", "Rowan", "Stellan", "Theron", "Ulric",
}

var femaleNames = []string{
	"Astrid", "Brenna", "Calla", "Daria", "Elara", "Freya", "Greta",
	"Helene", "Iris", "Juno", "Kira", "Lena", "Mira", "Nessa",
	"Olwen", "Petra", "Runa", "Senna", "Thea", "Una", "Vera",
}

var lastNames = []string{
	"Voss", "Thornwood", "Blackwood", "Ashford", "Ironhand", "Dunmore",
	"Greenvale", "Stormcrow", "Frostborn", "Hearthstone", "Millward",
	"Copperfield", "Ravenmoor", "Silverdale", "Wolfsbane", "Stoneheart",
	"Deepwell", "Brightwater", "Redforge", "Windholm", "Holloway",
}
