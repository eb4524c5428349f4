package builder

import "fmt"

// Phase is an event's position in construction.
type Phase int

const (
	PhaseUnresolved Phase = iota
	PhaseSegmentsResolved
	PhaseNodesCreated
	PhaseEdgesWired
	PhaseFinalized
	PhaseSkipped
)

var phaseNames = [...]string{"unresolved", "segments-resolved", "nodes-created", "edges-wired", "finalized", "skipped"}

func (p Phase) String() string {
	if p >= 0 && int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Terminal reports whether no transition leaves p.
func (p Phase) Terminal() bool {
	return p == PhaseFinalized || p == PhaseSkipped
}

// next reports whether p may move to q. Phases only move forward, and
// Skipped is reachable from Unresolved alone.
func (p Phase) next(q Phase) bool {
	if q == PhaseSkipped {
		return p == PhaseUnresolved
	}
	return !p.Terminal() && q == p+1
}

// tracker records one event's phase.
type tracker struct {
	event int64
	phase Phase
}

func (t *tracker) advance(q Phase) error {
	if !t.phase.next(q) {
		return fmt.Errorf("event %d: illegal phase transition %s -> %s", t.event, t.phase, q)
	}
	t.phase = q
	return nil
}
