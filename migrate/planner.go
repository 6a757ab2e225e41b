package migrate

import (
	"sort"

	"github.com/scylladb/go-set/strset"
)

// PlanUp selects the migrations whose version is not yet applied, in
// ascending version order, truncated to limit when limit > 0. It never
// validates checksums; that is the verifier's job.
func PlanUp(migrations []Migration, applied []MigrationRecord, limit int) (Plan, error) {
	appliedSet := strset.New()
	for _, record := range applied {
		appliedSet.Add(record.Version)
	}

	plan := make(Plan, 0, len(migrations))
	for _, migration := range migrations {
		if appliedSet.Has(migration.Version) {
			continue
		}
		plan = append(plan, Step{Migration: migration, Direction: DirectionUp})
	}
	sort.Slice(plan, func(i, j int) bool {
		return plan[i].Migration.Version < plan[j].Migration.Version
	})
	if limit > 0 && len(plan) > limit {
		plan = plan[:limit]
	}
	return plan, nil
}

// PlanDown selects the highest-versioned applied records, in descending
// version order, each paired with its on-disk down statements. limit <= 0
// means one step. A step whose down block is empty fails with
// MissingDownSectionError unless force is set, in which case the step carries
// no statements and only its history record is removed.
func PlanDown(migrations []Migration, applied []MigrationRecord, limit int, force bool) (Plan, error) {
	if limit <= 0 {
		limit = 1
	}
	records := make([]MigrationRecord, len(applied))
	copy(records, applied)
	sort.Slice(records, func(i, j int) bool {
		return records[i].Version > records[j].Version
	})
	if len(records) > limit {
		records = records[:limit]
	}

	byVersion := make(map[string]Migration, len(migrations))
	for _, migration := range migrations {
		byVersion[migration.Version] = migration
	}

	plan := make(Plan, 0, len(records))
	for _, record := range records {
		migration, ok := byVersion[record.Version]
		if !ok {
			// An orphaned record cannot be reversed: there is no file to
			// take down statements from.
			return nil, &MigrationNotFoundError{Version: record.Version}
		}
		if !migration.HasDown() {
			if !force {
				return nil, &MissingDownSectionError{Version: record.Version}
			}
			plan = append(plan, Step{Migration: migration, Direction: DirectionDown, Forced: true})
			continue
		}
		plan = append(plan, Step{Migration: migration, Direction: DirectionDown})
	}
	return plan, nil
}
