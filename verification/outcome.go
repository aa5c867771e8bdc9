package verification

import (
	"fmt"
	"time"

	"asinpusher/probes"
	"asinpusher/types"
)

// State is the aggregate verification state of one record.
type State int

const (
	StatePending State = iota
	StatePartiallyVerified
	StateVerified
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StatePartiallyVerified:
		return "partially_verified"
	case StateVerified:
		return "verified"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Failure reasons.
const (
	ReasonNotFound   = "not found before timeout"
	ReasonProbeError = "probe error before timeout"
	ReasonExhausted  = "retries exhausted"
	ReasonCancelled  = "cancelled"
)

// BackendState tracks one backend for one record.
type BackendState struct {
	Backend  string
	Last     probes.Status
	Found    bool
	Metadata map[string]string
	// Checks counts every probe call; Errors counts consecutive Error results.
	Checks    int
	Errors    int
	LastError string
	// Exhausted is set once Errors exceeds the retry budget.
	Exhausted bool
	// Expired is set when the backend timeout passed without a Found result.
	Expired bool
}

// settled reports whether the backend will not be probed again for this record.
func (b *BackendState) settled() bool {
	return b.Found || b.Exhausted || b.Expired
}

// Outcome is the per-record aggregate produced by the engine.
type Outcome struct {
	Record types.Record
	State  State
	Reason string
	// ReasonBackend names the backend that caused a Failed or final PartiallyVerified state.
	ReasonBackend string
	Final         bool
	Backends      []BackendState
	// SettledAt is the poll time at which the record reached a final state.
	SettledAt time.Duration
}

// Backend returns the sub-state for name, or nil.
func (o *Outcome) Backend(name string) *BackendState {
	for i := range o.Backends {
		if o.Backends[i].Backend == name {
			return &o.Backends[i]
		}
	}
	return nil
}

func newOutcome(rec types.Record, backends []string) *Outcome {
	o := &Outcome{Record: rec, State: StatePending, Backends: make([]BackendState, len(backends))}
	for i, name := range backends {
		o.Backends[i] = BackendState{Backend: name, Last: probes.StatusNotFound}
	}
	return o
}

// apply merges one probe result. maxRetries is the number of retries allowed after the
// first Error, so the backend is exhausted on the (maxRetries+1)th consecutive error.
func (b *BackendState) apply(res probes.Result, maxRetries int) {
	b.Checks++
	b.Last = res.Status
	switch res.Status {
	case probes.StatusFound:
		b.Found = true
		b.Metadata = res.Metadata
		b.Errors = 0
	case probes.StatusNotFound:
		b.Errors = 0
	case probes.StatusError:
		b.Errors++
		b.LastError = res.Reason()
		if b.Errors > maxRetries {
			b.Exhausted = true
		}
	}
}

// evaluate recomputes State from the backend sub-states and finalizes the record when
// nothing can change it anymore. It reports whether the record became final.
func (o *Outcome) evaluate(at time.Duration) bool {
	if o.Final {
		return false
	}

	found, settled := 0, 0
	var expired, exhausted *BackendState
	for i := range o.Backends {
		b := &o.Backends[i]
		if b.Found {
			found++
		}
		if b.settled() {
			settled++
		}
		if b.Expired && expired == nil {
			expired = b
		}
		if b.Exhausted && exhausted == nil {
			exhausted = b
		}
	}

	switch {
	case found == len(o.Backends):
		o.State = StateVerified
		o.Reason, o.ReasonBackend = "", ""
	case expired != nil:
		o.State = StateFailed
		o.Reason, o.ReasonBackend = ReasonNotFound, expired.Backend
		if expired.Last == probes.StatusError {
			o.Reason = ReasonProbeError
		}
	case settled == len(o.Backends) && found > 0:
		// Some backend confirmed the record but another gave up on errors.
		o.State = StatePartiallyVerified
		o.Reason, o.ReasonBackend = exhaustedReason(exhausted), exhausted.Backend
	case settled == len(o.Backends):
		o.State = StateFailed
		o.Reason, o.ReasonBackend = exhaustedReason(exhausted), exhausted.Backend
	case found > 0:
		o.State = StatePartiallyVerified
		return false
	default:
		o.State = StatePending
		return false
	}

	o.Final = true
	o.SettledAt = at
	return true
}

func exhaustedReason(b *BackendState) string {
	if b.LastError == "" {
		return ReasonExhausted
	}
	return ReasonExhausted + ": " + b.LastError
}
