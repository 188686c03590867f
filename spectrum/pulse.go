package spectrum

import (
	"math"
	"time"
)

// PulsePeriod is the time constant of the thinking pulse.
const PulsePeriod = 500 * time.Millisecond

// Pulse is the deterministic shape drawn while waiting for an answer.
type Pulse struct {
	Phase   float64 // in [0,1]
	Scale   float64 // in [0.9,1]
	Opacity float64 // in [0.6,1]
}

// PulseAt returns the pulse for elapsed time t.
func PulseAt(t time.Duration) Pulse {
	p := (math.Sin(float64(t)/float64(PulsePeriod)) + 1) / 2
	return Pulse{
		Phase:   p,
		Scale:   0.9 + 0.1*p,
		Opacity: 0.6 + 0.4*p,
	}
}

// PulseSnapshot renders the pulse as n band levels rippling outward from the
// center.
func PulseSnapshot(t time.Duration, n int) Snapshot {
	s := make(Snapshot, n)
	center := float64(n-1) / 2
	for i := range s {
		d := math.Abs(float64(i) - center)
		p := PulseAt(t - time.Duration(d*float64(PulsePeriod)/2))
		s[i] = max(0, min(1, 0.3+0.5*p.Phase))
	}
	return s
}
