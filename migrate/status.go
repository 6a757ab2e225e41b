package migrate

import (
	"context"
)

// PendingMigration is a migration on disk with no history record yet.
type PendingMigration struct {
	Version     string `json:"version"`
	Description string `json:"description"`
}

// AppliedMigration is the reportable view of one history record.
type AppliedMigration struct {
	Version         string `json:"version"`
	Description     string `json:"description,omitempty"`
	Checksum        string `json:"checksum"`
	AppliedAt       string `json:"applied_at"`
	ExecutionMillis int64  `json:"execution_millis"`
}

// StatusReport summarizes history against the migrations directory.
type StatusReport struct {
	CurrentVersion string             `json:"current_version"`
	AppliedCount   int                `json:"applied_count"`
	PendingCount   int                `json:"pending_count"`
	TotalFiles     int                `json:"total_files"`
	Applied        []AppliedMigration `json:"applied_migrations"`
	Pending        []PendingMigration `json:"pending_migrations"`
	Malformed      []string           `json:"malformed_files,omitempty"`
}

// UpToDate reports whether no migration is pending.
func (r *StatusReport) UpToDate() bool {
	return r.PendingCount == 0
}

// Status composes the reader, the history store and the planner into a
// summary. It takes no lock: status is a read-only snapshot.
func (c *Coordinator) Status(ctx context.Context) (*StatusReport, error) {
	scan, err := c.source.Scan()
	if err != nil {
		return nil, err
	}
	applied, err := c.history.ListApplied(ctx)
	if err != nil {
		return nil, err
	}
	plan, err := PlanUp(scan.Migrations, applied, 0)
	if err != nil {
		return nil, err
	}

	report := &StatusReport{
		CurrentVersion: "none",
		AppliedCount:   len(applied),
		PendingCount:   len(plan),
		TotalFiles:     len(scan.Migrations) + len(scan.Malformed),
	}
	// ListApplied sorts ascending, so the last record is the current version.
	if len(applied) > 0 {
		report.CurrentVersion = applied[len(applied)-1].Version
	}
	for _, record := range applied {
		entry := AppliedMigration{
			Version:         record.Version,
			Checksum:        record.Checksum,
			AppliedAt:       record.AppliedAt.UTC().Format("2006-01-02 15:04:05 UTC"),
			ExecutionMillis: record.ExecutionMillis,
		}
		if migration, ok := scan.ByVersion(record.Version); ok {
			entry.Description = migration.Description
		}
		report.Applied = append(report.Applied, entry)
	}
	for _, step := range plan {
		report.Pending = append(report.Pending, PendingMigration{
			Version:     step.Migration.Version,
			Description: step.Migration.Description,
		})
	}
	for _, malformed := range scan.Malformed {
		report.Malformed = append(report.Malformed, malformed.Filename)
	}
	return report, nil
}
