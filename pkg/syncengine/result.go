package syncengine

import (
	"github.com/bcaldwell/plaidsync/pkg/finance"
	"github.com/bcaldwell/plaidsync/pkg/provider"
)

type batchKind int

const (
	batchAdded batchKind = iota
	batchModified
	batchRemoved
)

func (k batchKind) String() string {
	switch k {
	case batchAdded:
		return "added"
	case batchModified:
		return "modified"
	case batchRemoved:
		return "removed"
	}
	return "unknown"
}

// outcome of reconciling one record
type outcome int

const (
	outcomeApplied outcome = iota
	outcomeDuplicate
	outcomeSkipped
	outcomeNoop
	outcomeFailed
)

// Mode is how an incremental sync got its records.
type Mode string

const (
	ModeDelta  Mode = "delta"
	ModeWindow Mode = "window"
)

type InitialSyncResult struct {
	AccountID string `json:"accountId"`
	Created   int    `json:"created"`
	// Skipped counts records dated outside the fetch window.
	Skipped    int `json:"skipped"`
	Duplicates int `json:"duplicates"`
	Errors     int `json:"errors"`
}

type IncrementalSyncResult struct {
	AccountID string `json:"accountId"`
	Mode      Mode   `json:"mode"`
	Added     int    `json:"added"`
	Modified  int    `json:"modified"`
	Removed   int    `json:"removed"`
	// Duplicates are adds for ids already stored.
	Duplicates int `json:"duplicates"`
	// Skipped are modifications for ids never stored.
	Skipped int `json:"skipped"`
	Errors  int `json:"errors"`
}

func (r *IncrementalSyncResult) count(kind batchKind, o outcome) {
	switch o {
	case outcomeApplied:
		switch kind {
		case batchAdded:
			r.Added++
		case batchModified:
			r.Modified++
		case batchRemoved:
			r.Removed++
		}
	case outcomeDuplicate:
		r.Duplicates++
	case outcomeSkipped:
		r.Skipped++
	case outcomeFailed:
		r.Errors++
	}
}

// UserSyncResult collects a multi account sync. Failed accounts are in Failures only.
type UserSyncResult struct {
	UserID   string                  `json:"userId"`
	RunID    string                  `json:"runId"`
	Accounts []IncrementalSyncResult `json:"accounts"`
	Failures []*finance.SyncError    `json:"-"`
}

// Totals sums the per account counts.
func (r UserSyncResult) Totals() IncrementalSyncResult {
	total := IncrementalSyncResult{}
	for _, a := range r.Accounts {
		total.Added += a.Added
		total.Modified += a.Modified
		total.Removed += a.Removed
		total.Duplicates += a.Duplicates
		total.Skipped += a.Skipped
		total.Errors += a.Errors
	}
	return total
}

type LinkResult struct {
	Account          finance.ExternalAccount `json:"-"`
	ProviderAccounts []provider.Account      `json:"providerAccounts"`
	Initial          InitialSyncResult       `json:"initial"`
	// InitialErr is set when the account was linked but the first fetch failed.
	InitialErr error `json:"-"`
}

type PopulateResult struct {
	Accounts []InitialSyncResult `json:"accounts"`
	Failures []error             `json:"-"`
}
