package migrate

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// DriftStatus classifies one applied record against the on-disk set.
type DriftStatus int

const (
	// StatusConsistent means the recorded and on-disk checksums match.
	StatusConsistent DriftStatus = iota
	// StatusDrifted means the file was edited after being applied.
	StatusDrifted
	// StatusOrphaned means no on-disk file exists for the applied version.
	StatusOrphaned
)

// String implements the fmt.Stringer interface.
func (s DriftStatus) String() string {
	switch s {
	case StatusDrifted:
		return "drifted"
	case StatusOrphaned:
		return "orphaned"
	default:
		return "consistent"
	}
}

// Finding is the classification of one applied migration record.
type Finding struct {
	Version          string
	Status           DriftStatus
	RecordedChecksum string
	ActualChecksum   string
}

// Report is the full verification output: one finding per applied record,
// plus warning-level out-of-order versions (pending migrations below the
// highest applied version).
type Report struct {
	Findings   []Finding
	OutOfOrder []string
}

// Verify classifies every applied record against the scanned migrations.
func Verify(applied []MigrationRecord, migrations []Migration) *Report {
	byVersion := make(map[string]Migration, len(migrations))
	appliedSet := make(map[string]struct{}, len(applied))
	highestApplied := ""
	for _, migration := range migrations {
		byVersion[migration.Version] = migration
	}
	for _, record := range applied {
		appliedSet[record.Version] = struct{}{}
		if record.Version > highestApplied {
			highestApplied = record.Version
		}
	}

	report := &Report{}
	for _, record := range applied {
		finding := Finding{Version: record.Version, RecordedChecksum: record.Checksum}
		migration, ok := byVersion[record.Version]
		switch {
		case !ok:
			finding.Status = StatusOrphaned
		case migration.Checksum != record.Checksum:
			finding.Status = StatusDrifted
			finding.ActualChecksum = migration.Checksum
		default:
			finding.Status = StatusConsistent
			finding.ActualChecksum = migration.Checksum
		}
		report.Findings = append(report.Findings, finding)
	}

	// A pending version below the highest applied one indicates out-of-order
	// application. Version order alone defines the store's total order, so
	// this is a warning rather than an error.
	for _, migration := range migrations {
		if _, ok := appliedSet[migration.Version]; ok {
			continue
		}
		if migration.Version < highestApplied {
			report.OutOfOrder = append(report.OutOfOrder, migration.Version)
		}
	}
	return report
}

// Drifted returns the findings whose files were edited after apply.
func (r *Report) Drifted() []Finding {
	return r.withStatus(StatusDrifted)
}

// Orphaned returns the findings with no on-disk file.
func (r *Report) Orphaned() []Finding {
	return r.withStatus(StatusOrphaned)
}

func (r *Report) withStatus(status DriftStatus) []Finding {
	findings := make([]Finding, 0, len(r.Findings))
	for _, finding := range r.Findings {
		if finding.Status == status {
			findings = append(findings, finding)
		}
	}
	return findings
}

// Clean reports whether every applied record is consistent.
func (r *Report) Clean() bool {
	return len(r.Drifted()) == 0 && len(r.Orphaned()) == 0
}

// Err returns every integrity issue as one aggregated error, or nil when the
// report is clean. Out-of-order warnings do not contribute.
func (r *Report) Err() error {
	var result *multierror.Error
	for _, finding := range r.Findings {
		switch finding.Status {
		case StatusDrifted:
			result = multierror.Append(result, &ChecksumMismatchError{
				Version:  finding.Version,
				Recorded: finding.RecordedChecksum,
				Actual:   finding.ActualChecksum,
			})
		case StatusOrphaned:
			result = multierror.Append(result, &OrphanedMigrationError{Version: finding.Version})
		}
	}
	return result.ErrorOrNil()
}

// FixDrift rewrites the stored checksum of every drifted record to match the
// current on-disk content. Orphaned records are never touched, applied_at is
// preserved, and no statement is re-executed. It returns the fixed versions.
func FixDrift(ctx context.Context, store HistoryStore, report *Report) ([]string, error) {
	fixed := make([]string, 0, len(report.Findings))
	for _, finding := range report.Drifted() {
		if err := store.UpdateChecksum(ctx, finding.Version, finding.ActualChecksum); err != nil {
			return fixed, fmt.Errorf("fixing checksum for %s: %w", finding.Version, err)
		}
		log.Infof("Rewrote stored checksum for migration %s", finding.Version)
		fixed = append(fixed, finding.Version)
	}
	return fixed, nil
}
