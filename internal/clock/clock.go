// Package clock defines the master clock oracle collaborator: the
// conversion from a stream timestamp to a wall-clock display instant at
// the current playback rate (spec §6).
package clock

import "time"

// DefaultRate is the playback-speed unit meaning normal speed (spec
// glossary "Rate").
const DefaultRate = 1000

// Oracle converts stream timestamps to wall-clock instants given the
// current playback rate. Convert may reject a conversion that would
// exceed bound wall-clock duration from now.
type Oracle interface {
	Convert(rateOut int, ts int64, bound time.Duration) (wallClock int64, ok bool)
	GetRate() int
}

// Identity is a reference Oracle used by tests and the demo CLI: it treats
// stream timestamps as already being in wall-clock microseconds, i.e.
// playback runs at DefaultRate with no bound enforcement. It rejects only
// negative timestamps (which includes codecapi.InvalidTS). Real embedders supply their own Oracle backed by the actual
// master clock.
type Identity struct {
	Rate int
}

// NewIdentity returns an Identity oracle running at DefaultRate.
func NewIdentity() *Identity { return &Identity{Rate: DefaultRate} }

func (o *Identity) Convert(rateOut int, ts int64, bound time.Duration) (int64, bool) {
	if ts < 0 {
		return 0, false
	}
	return ts, true
}

func (o *Identity) GetRate() int {
	if o.Rate == 0 {
		return DefaultRate
	}
	return o.Rate
}
