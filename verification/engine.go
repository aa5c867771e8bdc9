package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"asinpusher/exporter"
	"asinpusher/logging"
	"asinpusher/probes"
	"asinpusher/scheduler"
	"asinpusher/types"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Exporter writes artifacts for verified records. *exporter.Exporter satisfies it.
type Exporter interface {
	Export(ctx context.Context, records []types.Record) (exporter.Summary, error)
}

// Options configures an Engine.
type Options struct {
	Probes []probes.Probe
	// Timeouts maps probe name to how long it is polled after the first tick.
	Timeouts      map[string]time.Duration
	CheckInterval time.Duration
	MaxRetries    int
	Workers       int
	ProbeTimeout  time.Duration
	// InitialWait sleeps scheduler.InitialDelay(len(records)) before the first tick.
	InitialWait bool
	Exporter    Exporter
	Clock       scheduler.Clock
	Logger      *slog.Logger
}

// Engine polls every probe for every record until each record is final, the backend
// timeouts elapse or the context is cancelled.
type Engine struct {
	probes   []probes.Probe
	names    []string
	plan     scheduler.Plan
	opts     Options
	clock    scheduler.Clock
	logger   *slog.Logger
	exporter Exporter
}

// New validates opts and returns an Engine.
func New(opts Options) (*Engine, error) {
	if len(opts.Probes) == 0 {
		return nil, errors.New("verification: at least one probe is required")
	}
	if opts.CheckInterval <= 0 {
		return nil, fmt.Errorf("verification: check interval must be positive, got %s", opts.CheckInterval)
	}
	if opts.MaxRetries < 0 {
		return nil, fmt.Errorf("verification: max retries must not be negative, got %d", opts.MaxRetries)
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Clock == nil {
		opts.Clock = scheduler.RealClock{}
	}

	names := make([]string, 0, len(opts.Probes))
	seen := make(map[string]bool, len(opts.Probes))
	for _, p := range opts.Probes {
		name := p.Name()
		if seen[name] {
			return nil, fmt.Errorf("verification: duplicate probe %q", name)
		}
		seen[name] = true
		if opts.Timeouts[name] <= 0 {
			return nil, fmt.Errorf("verification: timeout for %q must be positive", name)
		}
		names = append(names, name)
	}

	return &Engine{
		probes:   opts.Probes,
		names:    names,
		plan:     scheduler.Plan{Interval: opts.CheckInterval, Timeouts: opts.Timeouts},
		opts:     opts,
		clock:    opts.Clock,
		logger:   logging.OrNop(opts.Logger),
		exporter: opts.Exporter,
	}, nil
}

// Backends returns the probe names in evaluation order.
func (e *Engine) Backends() []string {
	return append([]string(nil), e.names...)
}

type job struct {
	outcome int
	backend int
}

// Run verifies records. The returned error is only set when the automatic export of an
// all-verified batch fails; verification problems are described by the Report.
func (e *Engine) Run(ctx context.Context, records []types.Record) (*Report, error) {
	runID := uuid.NewString()
	logger := e.logger.With("run_id", runID)

	outcomes := make([]*Outcome, len(records))
	for i, rec := range records {
		outcomes[i] = newOutcome(rec, e.names)
	}
	report := &Report{RunID: runID, Backends: e.Backends()}

	if e.opts.InitialWait {
		delay := scheduler.InitialDelay(len(records))
		logger.InfoContext(ctx, "waiting for crawler before first check", "records", len(records), "delay", delay)
		if err := e.clock.Sleep(ctx, delay); err != nil {
			report.Cancelled = true
			report.finish(outcomes, 0)
			logger.WarnContext(ctx, "verification cancelled during initial wait")
			return report, nil
		}
	}

	logger.InfoContext(ctx, "polling backends",
		"records", len(records),
		"backends", e.names,
		"interval", e.plan.Interval,
		"horizon", e.plan.Horizon(),
	)
	start := e.clock.Now()
	pending := len(outcomes)
	for {
		elapsed := e.clock.Now().Sub(start)
		pending -= e.expire(ctx, outcomes, elapsed, logger)
		if pending == 0 {
			break
		}
		if ctx.Err() != nil {
			report.Cancelled = true
			break
		}

		jobs := e.schedule(outcomes, elapsed)
		report.Ticks++
		logger.DebugContext(ctx, "verification tick", "tick", report.Ticks, "elapsed", elapsed, "probes", len(jobs), "pending", pending)
		results := e.probe(ctx, outcomes, jobs)

		for i, j := range jobs {
			b := &outcomes[j.outcome].Backends[j.backend]
			b.apply(results[i], e.opts.MaxRetries)
			if results[i].Status == probes.StatusError {
				logger.WarnContext(ctx, "probe error",
					"record", outcomes[j.outcome].Record.String(),
					"backend", b.Backend,
					"consecutive", b.Errors,
					"error", results[i].Reason(),
				)
			}
		}
		for _, o := range outcomes {
			if o.evaluate(elapsed) {
				pending--
				logOutcome(ctx, logger, o)
			}
		}
		if pending == 0 {
			break
		}

		if err := e.clock.Sleep(ctx, e.plan.Interval); err != nil {
			report.Cancelled = true
			break
		}
	}

	report.finish(outcomes, e.clock.Now().Sub(start))
	logger.InfoContext(ctx, "verification finished",
		"verified", report.Verified,
		"partially_verified", report.PartiallyVerified,
		"failed", report.Failed,
		"pending", report.Pending,
		"ticks", report.Ticks,
		"elapsed", report.Elapsed,
		"timed_out", report.TimedOut,
		"cancelled", report.Cancelled,
	)

	if report.AllVerified() && e.exporter != nil {
		summary, err := e.exporter.Export(ctx, report.VerifiedRecords())
		report.Export = &summary
		if err != nil {
			return report, fmt.Errorf("verification: export: %w", err)
		}
	}
	return report, nil
}

// ExportVerified exports whatever the report marks as verified.
func (e *Engine) ExportVerified(ctx context.Context, report *Report) (exporter.Summary, error) {
	if e.exporter == nil {
		return exporter.Summary{}, errors.New("verification: no exporter configured")
	}
	return e.exporter.Export(ctx, report.VerifiedRecords())
}

// expire marks backends whose window closed and finalizes the affected records. It
// returns how many records became final.
func (e *Engine) expire(ctx context.Context, outcomes []*Outcome, elapsed time.Duration, logger *slog.Logger) int {
	finalized := 0
	for _, o := range outcomes {
		if o.Final {
			continue
		}
		for i := range o.Backends {
			b := &o.Backends[i]
			if !b.settled() && !e.plan.Active(b.Backend, elapsed) {
				b.Expired = true
			}
		}
		if o.evaluate(elapsed) {
			finalized++
			logOutcome(ctx, logger, o)
		}
	}
	return finalized
}

func (e *Engine) schedule(outcomes []*Outcome, elapsed time.Duration) []job {
	var jobs []job
	for oi, o := range outcomes {
		if o.Final {
			continue
		}
		for bi := range o.Backends {
			b := &o.Backends[bi]
			if b.settled() || !e.plan.Active(b.Backend, elapsed) {
				continue
			}
			jobs = append(jobs, job{outcome: oi, backend: bi})
		}
	}
	return jobs
}

// probe runs one tick of checks. Each goroutine writes only its own slot. Probe calls
// are detached from ctx cancellation so a started tick always completes.
func (e *Engine) probe(ctx context.Context, outcomes []*Outcome, jobs []job) []probes.Result {
	results := make([]probes.Result, len(jobs))
	base := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.SetLimit(e.opts.Workers)
	for i, j := range jobs {
		g.Go(func() error {
			probeCtx := base
			if e.opts.ProbeTimeout > 0 {
				var cancel context.CancelFunc
				probeCtx, cancel = context.WithTimeout(base, e.opts.ProbeTimeout)
				defer cancel()
			}
			results[i] = e.probes[j.backend].Check(probeCtx, outcomes[j.outcome].Record)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func logOutcome(ctx context.Context, logger *slog.Logger, o *Outcome) {
	attrs := []any{"record", o.Record.String(), "state", o.State.String()}
	if o.Reason != "" {
		attrs = append(attrs, "reason", o.Reason, "backend", o.ReasonBackend)
	}
	if o.State == StateVerified {
		logger.InfoContext(ctx, "record verified", attrs...)
		return
	}
	logger.WarnContext(ctx, "record not verified", attrs...)
}
