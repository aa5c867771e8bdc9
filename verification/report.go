package verification

import (
	"errors"
	"fmt"
	"time"

	"asinpusher/exporter"
	"asinpusher/types"
)

// ErrTimeout reports that at least one backend window closed before every record was
// verified. It never aborts a run.
var ErrTimeout = errors.New("verification timed out")

// Report is the result of one verification run.
type Report struct {
	RunID    string
	Backends []string
	Outcomes []Outcome

	Verified          int
	PartiallyVerified int
	Failed            int
	Pending           int

	Ticks     int
	Elapsed   time.Duration
	TimedOut  bool
	Cancelled bool

	// Export is set when the engine exported an all-verified batch.
	Export *exporter.Summary
}

func (r *Report) finish(outcomes []*Outcome, elapsed time.Duration) {
	r.Elapsed = elapsed
	r.Outcomes = make([]Outcome, 0, len(outcomes))
	for _, o := range outcomes {
		if !o.Final {
			// Cancelled before the record settled.
			o.State = StatePending
			o.Reason = ReasonCancelled
		}
		for _, b := range o.Backends {
			if b.Expired {
				r.TimedOut = true
			}
		}
		switch o.State {
		case StateVerified:
			r.Verified++
		case StatePartiallyVerified:
			r.PartiallyVerified++
		case StateFailed:
			r.Failed++
		default:
			r.Pending++
		}
		r.Outcomes = append(r.Outcomes, *o)
	}
}

// Total returns the number of records in the run.
func (r *Report) Total() int { return len(r.Outcomes) }

// AllVerified reports whether every record reached Verified. An empty run is not
// considered verified.
func (r *Report) AllVerified() bool {
	return len(r.Outcomes) > 0 && r.Verified == len(r.Outcomes)
}

// VerifiedRecords returns the verified records in input order.
func (r *Report) VerifiedRecords() []types.Record {
	var out []types.Record
	for _, o := range r.Outcomes {
		if o.State == StateVerified {
			out = append(out, o.Record)
		}
	}
	return out
}

// Err summarizes why the run did not verify every record.
func (r *Report) Err() error {
	switch {
	case r.AllVerified():
		return nil
	case r.Cancelled:
		return fmt.Errorf("verification cancelled with %d of %d records verified", r.Verified, r.Total())
	case r.TimedOut:
		return fmt.Errorf("%w: %d of %d records verified", ErrTimeout, r.Verified, r.Total())
	case r.Total() == 0:
		return nil
	default:
		return fmt.Errorf("verification incomplete: %d of %d records verified", r.Verified, r.Total())
	}
}
