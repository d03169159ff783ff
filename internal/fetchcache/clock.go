package fetchcache

import "time"

// Clock supplies the current time. Staleness policy never reads the wall
// clock directly; tests inject a fixed clock to pin day boundaries.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the production clock.
var SystemClock Clock = systemClock{}
