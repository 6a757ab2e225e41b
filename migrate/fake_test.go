package migrate

import (
	"context"
	"sort"
	"sync"
	"time"
)

// fakeHistory is an in-memory HistoryStore with the same conditional-write
// semantics as the cassandra implementation, including lease expiry.
type fakeHistory struct {
	mu         sync.Mutex
	records    map[string]MigrationRecord
	lockHolder string
	lockExpiry time.Time

	failRenewals bool
	renewals     int
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{records: map[string]MigrationRecord{}}
}

func (h *fakeHistory) ListApplied(ctx context.Context) ([]MigrationRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	records := make([]MigrationRecord, 0, len(h.records))
	for _, record := range h.records {
		records = append(records, record)
	}
	sortRecords(records)
	return records, nil
}

func (h *fakeHistory) InsertIfAbsent(ctx context.Context, record MigrationRecord) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.records[record.Version]; ok {
		return false, nil
	}
	h.records[record.Version] = record
	return true, nil
}

func (h *fakeHistory) Delete(ctx context.Context, version string) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.records[version]; !ok {
		return false, nil
	}
	delete(h.records, version)
	return true, nil
}

func (h *fakeHistory) UpdateChecksum(ctx context.Context, version, checksum string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	record, ok := h.records[version]
	if !ok {
		return &MigrationNotFoundError{Version: version}
	}
	record.Checksum = checksum
	h.records[version] = record
	return nil
}

func (h *fakeHistory) TryAcquireLock(ctx context.Context, holderID string, lease time.Duration) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.lockHolder != "" && time.Now().Before(h.lockExpiry) {
		return false, nil
	}
	h.lockHolder = holderID
	h.lockExpiry = time.Now().Add(lease)
	return true, nil
}

func (h *fakeHistory) RenewLock(ctx context.Context, holderID string, lease time.Duration) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.renewals++
	if h.failRenewals || h.lockHolder != holderID {
		return false, nil
	}
	h.lockExpiry = time.Now().Add(lease)
	return true, nil
}

func (h *fakeHistory) ReleaseLock(ctx context.Context, holderID string) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.lockHolder == "" {
		return true, nil
	}
	if h.lockHolder != holderID {
		return false, nil
	}
	h.lockHolder = ""
	return true, nil
}

func (h *fakeHistory) Reset(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = map[string]MigrationRecord{}
	return nil
}

func (h *fakeHistory) holder() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lockHolder
}

func (h *fakeHistory) appliedVersions() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	versions := make([]string, 0, len(h.records))
	for version := range h.records {
		versions = append(versions, version)
	}
	return versions
}

func sortRecords(records []MigrationRecord) {
	sort.Slice(records, func(i, j int) bool { return records[i].Version < records[j].Version })
}

// fakeExecutor records executed statements and can be told to fail a given
// statement, or to stall so lease-expiry paths can be exercised.
type fakeExecutor struct {
	mu         sync.Mutex
	executed   []string
	failOn     string
	failErr    error
	delayed    time.Duration
	delayAfter int
}

func (e *fakeExecutor) Execute(ctx context.Context, statement string) error {
	e.mu.Lock()
	executed := len(e.executed)
	e.executed = append(e.executed, statement)
	failOn, failErr, delayed, delayAfter := e.failOn, e.failErr, e.delayed, e.delayAfter
	e.mu.Unlock()

	if delayed > 0 && executed >= delayAfter {
		select {
		case <-time.After(delayed):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if failOn != "" && statement == failOn {
		return failErr
	}
	return nil
}

func (e *fakeExecutor) statements() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	statements := make([]string, len(e.executed))
	copy(statements, e.executed)
	return statements
}
