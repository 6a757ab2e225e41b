package migrate

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/calleja/cql-migrate/common/go/contexttag"
)

// Options configures a Coordinator.
type Options struct {
	// Lease is the lock lease duration; an abandoned lease expires after it.
	Lease time.Duration
	// AcquireTimeout bounds the lock acquisition backoff.
	AcquireTimeout time.Duration
	// VerifyChecksums makes Up abort when any applied predecessor drifted.
	VerifyChecksums bool
	// DryRun plans and reports without sending statements or writing records.
	DryRun bool
}

const (
	defaultLease          = 30 * time.Second
	defaultAcquireTimeout = time.Minute
)

// Coordinator drives one invocation end to end: it acquires the distributed
// lock, re-reads history under it, verifies, plans, executes each step
// strictly sequentially, records the outcome, and releases the lock.
type Coordinator struct {
	source   *Source
	history  HistoryStore
	executor StatementExecutor
	opts     Options
	holderID string
}

// NewCoordinator returns a Coordinator with a fresh per-invocation holder id.
func NewCoordinator(source *Source, history HistoryStore, executor StatementExecutor, opts Options) *Coordinator {
	if opts.Lease <= 0 {
		opts.Lease = defaultLease
	}
	if opts.AcquireTimeout <= 0 {
		opts.AcquireTimeout = defaultAcquireTimeout
	}
	if opts.DryRun {
		executor = NopExecutor{}
	}
	return &Coordinator{
		source:   source,
		history:  history,
		executor: executor,
		opts:     opts,
		holderID: uuid.NewString(),
	}
}

// HolderID returns this invocation's lock holder id.
func (c *Coordinator) HolderID() string {
	return c.holderID
}

// StepResult reports the outcome of one executed (or simulated) step.
type StepResult struct {
	Version         string `json:"version"`
	Description     string `json:"description"`
	Direction       string `json:"direction"`
	Statements      int    `json:"statements"`
	ExecutionMillis int64  `json:"execution_millis"`
	// Skipped means the statements ran but the record was already
	// present (up) or already gone (down), so this holder's bookkeeping
	// was a no-op.
	Skipped bool `json:"skipped,omitempty"`
	// Forced marks a down step executed without down statements.
	Forced bool `json:"forced,omitempty"`
}

// RunResult is the structured outcome of an up or down invocation.
type RunResult struct {
	DryRun   bool         `json:"dry_run,omitempty"`
	Steps    []StepResult `json:"steps"`
	Warnings []string     `json:"warnings,omitempty"`
}

// Up applies pending migrations in ascending version order, at most limit of
// them when limit > 0.
func (c *Coordinator) Up(ctx context.Context, limit int) (*RunResult, error) {
	scan, err := c.source.Scan()
	if err != nil {
		return nil, err
	}
	result := &RunResult{DryRun: c.opts.DryRun, Warnings: scanWarnings(scan)}

	if c.opts.DryRun {
		applied, err := c.history.ListApplied(ctx)
		if err != nil {
			return nil, err
		}
		plan, err := PlanUp(scan.Migrations, applied, limit)
		if err != nil {
			return nil, err
		}
		return c.simulate(plan, result), nil
	}

	return c.locked(ctx, func(ctx context.Context, lost <-chan struct{}) (*RunResult, error) {
		// The post-lock read is the basis for planning; a cached pre-lock
		// view must never be trusted.
		applied, err := c.history.ListApplied(ctx)
		if err != nil {
			return nil, err
		}
		if c.opts.VerifyChecksums {
			report := Verify(applied, scan.Migrations)
			if drifted := report.Drifted(); len(drifted) > 0 {
				first := drifted[0]
				return nil, &ChecksumMismatchError{
					Version:  first.Version,
					Recorded: first.RecordedChecksum,
					Actual:   first.ActualChecksum,
				}
			}
			for _, version := range report.OutOfOrder {
				warning := fmt.Sprintf("migration %s is pending below the highest applied version", version)
				log.Warn(warning)
				result.Warnings = append(result.Warnings, warning)
			}
		}
		plan, err := PlanUp(scan.Migrations, applied, limit)
		if err != nil {
			return nil, err
		}
		return c.execute(ctx, plan, lost, result)
	})
}

// Down rolls back the most recently applied migrations, at most limit of them
// (default 1). With force, a migration without a down section has its record
// removed without running any reversing statement.
func (c *Coordinator) Down(ctx context.Context, limit int, force bool) (*RunResult, error) {
	scan, err := c.source.Scan()
	if err != nil {
		return nil, err
	}
	result := &RunResult{DryRun: c.opts.DryRun, Warnings: scanWarnings(scan)}

	if c.opts.DryRun {
		applied, err := c.history.ListApplied(ctx)
		if err != nil {
			return nil, err
		}
		plan, err := PlanDown(scan.Migrations, applied, limit, force)
		if err != nil {
			return nil, err
		}
		return c.simulate(plan, result), nil
	}

	return c.locked(ctx, func(ctx context.Context, lost <-chan struct{}) (*RunResult, error) {
		applied, err := c.history.ListApplied(ctx)
		if err != nil {
			return nil, err
		}
		plan, err := PlanDown(scan.Migrations, applied, limit, force)
		if err != nil {
			return nil, err
		}
		return c.execute(ctx, plan, lost, result)
	})
}

// Reset deletes every history record. It bypasses the planner entirely and
// never mutates on-disk files. Confirmation gating happens at the caller.
func (c *Coordinator) Reset(ctx context.Context) (int, error) {
	removed := 0
	_, err := c.locked(ctx, func(ctx context.Context, lost <-chan struct{}) (*RunResult, error) {
		applied, err := c.history.ListApplied(ctx)
		if err != nil {
			return nil, err
		}
		select {
		case <-lost:
			return nil, &LockLostError{HolderID: c.holderID}
		default:
		}
		if err := c.history.Reset(ctx); err != nil {
			return nil, err
		}
		removed = len(applied)
		log.Warnf("Reset migration history, removed %d record(s)", removed)
		return &RunResult{}, nil
	})
	return removed, err
}

// Verify classifies every applied record against the on-disk set and, with
// fix, rewrites the stored checksum of each drifted record. It returns the
// report and the versions fixed.
func (c *Coordinator) Verify(ctx context.Context, fix bool) (*Report, []string, error) {
	scan, err := c.source.Scan()
	if err != nil {
		return nil, nil, err
	}
	applied, err := c.history.ListApplied(ctx)
	if err != nil {
		return nil, nil, err
	}
	report := Verify(applied, scan.Migrations)
	if !fix {
		return report, nil, nil
	}
	fixed, err := FixDrift(ctx, c.history, report)
	return report, fixed, err
}

// locked runs fn while holding the distributed lock, with the lease renewed
// in the background. The lock is released best effort on every path; an
// interrupt cancels fn through ctx and the release still runs.
func (c *Coordinator) locked(ctx context.Context, fn func(ctx context.Context, lost <-chan struct{}) (*RunResult, error)) (*RunResult, error) {
	ctx = contexttag.Tag(ctx, "holder_id", c.holderID)
	lk := &locker{store: c.history, holderID: c.holderID, lease: c.opts.Lease}
	if err := lk.acquire(ctx, c.opts.AcquireTimeout); err != nil {
		return nil, err
	}
	defer lk.release()
	lost, stopRenewal := lk.keepAlive(ctx)
	defer stopRenewal()
	return fn(ctx, lost)
}

// execute consumes the plan in order: one step at a time, one statement at a
// time, recording each step only after its whole block executed.
func (c *Coordinator) execute(ctx context.Context, plan Plan, lost <-chan struct{}, result *RunResult) (*RunResult, error) {
	for _, step := range plan {
		stepResult, err := c.executeStep(ctx, step, lost)
		if err != nil {
			return result, err
		}
		result.Steps = append(result.Steps, stepResult)
	}
	return result, nil
}

func (c *Coordinator) executeStep(ctx context.Context, step Step, lost <-chan struct{}) (StepResult, error) {
	statements := step.Statements()
	stepResult := StepResult{
		Version:     step.Migration.Version,
		Description: step.Migration.Description,
		Direction:   step.Direction.String(),
		Statements:  len(statements),
		Forced:      step.Forced,
	}
	log.Infof("Executing migration %s (%s, %d statement(s))", step.Migration.Version, step.Direction, len(statements))

	started := time.Now()
	for i, statement := range statements {
		// An unrenewed lease means another invocation may already be
		// running; stop before issuing anything else.
		select {
		case <-lost:
			return stepResult, &LockLostError{HolderID: c.holderID}
		default:
		}
		if err := ctx.Err(); err != nil {
			return stepResult, fmt.Errorf("migration %s interrupted: %w", step.Migration.Version, err)
		}
		if err := c.executor.Execute(ctx, statement); err != nil {
			return stepResult, &PartialStepFailureError{
				Version:        step.Migration.Version,
				Direction:      step.Direction,
				StatementIndex: i,
				Err:            err,
			}
		}
	}
	stepResult.ExecutionMillis = time.Since(started).Milliseconds()

	switch step.Direction {
	case DirectionUp:
		created, err := c.history.InsertIfAbsent(ctx, MigrationRecord{
			Version:         step.Migration.Version,
			Checksum:        step.Migration.Checksum,
			AppliedAt:       time.Now().UTC(),
			ExecutionMillis: stepResult.ExecutionMillis,
		})
		if err != nil {
			return stepResult, err
		}
		if !created {
			log.Warnf("Migration %s was already recorded by another invocation", step.Migration.Version)
			stepResult.Skipped = true
		}
	case DirectionDown:
		removed, err := c.history.Delete(ctx, step.Migration.Version)
		if err != nil {
			return stepResult, err
		}
		if !removed {
			log.Warnf("Migration %s record was already removed", step.Migration.Version)
			stepResult.Skipped = true
		}
	}
	return stepResult, nil
}

// simulate fills the result from the plan without touching the store.
func (c *Coordinator) simulate(plan Plan, result *RunResult) *RunResult {
	for _, step := range plan {
		result.Steps = append(result.Steps, StepResult{
			Version:     step.Migration.Version,
			Description: step.Migration.Description,
			Direction:   step.Direction.String(),
			Statements:  len(step.Statements()),
			Forced:      step.Forced,
		})
	}
	return result
}

func scanWarnings(scan *ScanResult) []string {
	if len(scan.Malformed) == 0 {
		return nil
	}
	warnings := make([]string, 0, len(scan.Malformed))
	for _, malformed := range scan.Malformed {
		warnings = append(warnings, malformed.Error())
	}
	return warnings
}
