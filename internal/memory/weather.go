package memory

import (
	"strings"
	"time"

	"github.com/talgya/kindred/internal/world"
)

// RecordWeather logs a weather change globally and writes it into every
// group as a local neutral event.
func (s *Store) RecordWeather(w world.Weather, at world.Vec3, now time.Duration) {
	s.weather = append(s.weather, WeatherRecord{Weather: w, At: now, Location: at})
	if n := s.cfg.WeatherLog; n > 0 && len(s.weather) > n {
		s.weather = s.weather[len(s.weather)-n:]
	}
	ev := New(Neutral, s.cfg.WeatherImportance, at, "weather_"+w.String())
	ev.Local = true
	for _, id := range s.order {
		_ = s.Record(id, ev, now)
	}
}

// WeatherLog returns the global weather log, oldest first.
func (s *Store) WeatherLog() []WeatherRecord {
	out := make([]WeatherRecord, len(s.weather))
	copy(out, s.weather)
	return out
}

// ShouldReactToWeather reports whether the group remembers a weather event
// recent and close enough to matter at p.
func (s *Store) ShouldReactToWeather(group world.GroupID, p world.Vec3, now time.Duration) bool {
	m, ok := s.groups[group]
	if !ok {
		return false
	}
	for i := len(m.Events) - 1; i >= 0; i-- {
		ev := m.Events[i]
		if ev.Kind != Neutral || !strings.HasPrefix(ev.Tag, "weather_") {
			continue
		}
		if now-ev.At > s.cfg.WeatherWindow {
			return false
		}
		if ev.Location.Dist(p) <= s.cfg.WeatherRadius {
			return true
		}
	}
	return false
}
