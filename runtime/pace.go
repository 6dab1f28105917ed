package runtime

import "time"

// paceAlpha is the EWMA smoothing constant for the pace scheduler's
// per-message service-time estimate.
const paceAlpha = 1.0 / 16

// paceState tracks the adaptive batching schedule: an EWMA of
// per-message service time and the next pace deadline, computed as
// now + max(minPace, ewma*qDepth). No teacher file implements adaptive
// batching; this is new code built directly from the formula above.
type paceState struct {
	minPace      time.Duration
	ewma         time.Duration
	nextDeadline time.Time
	armed        bool

	// lastFire is the previous pace callback's timestamp, used only to
	// report the realized pace interval to internal/metrics.
	lastFire time.Time
}

func newPaceState(minPace, seed time.Duration) *paceState {
	return &paceState{minPace: minPace, ewma: seed}
}

// observe folds one message's service time into the EWMA.
func (p *paceState) observe(serviceTime time.Duration) {
	p.ewma = time.Duration(float64(p.ewma)*(1-paceAlpha) + float64(serviceTime)*paceAlpha)
}

// rearm computes the next deadline given the current queue depth. A
// zero queue depth leaves the schedule un-armed; the caller re-arms on
// the next ingress arrival instead of polling.
func (p *paceState) rearm(now time.Time, qDepth int) {
	if qDepth == 0 {
		p.armed = false
		return
	}
	interval := p.minPace
	if scaled := time.Duration(int64(p.ewma) * int64(qDepth)); scaled > interval {
		interval = scaled
	}
	p.nextDeadline = now.Add(interval)
	p.armed = true
}

// due reports whether the pace deadline has elapsed.
func (p *paceState) due(now time.Time) bool {
	return p.armed && !now.Before(p.nextDeadline)
}
