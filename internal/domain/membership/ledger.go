package membership

import (
	"context"
	"sync"

	"github.com/go-faster/errors"
)

// ErrInsufficientAllocation is returned by Consume when the requested
// quantity exceeds the remaining allocation for a category.
var ErrInsufficientAllocation = errors.New("insufficient membership allocation")

// Entry is a per-membership, per-category allocation counter.
type Entry struct {
	MembershipID string
	CategoryID   string
	Allocated    int
	Used         int
}

// Available returns the quantity still drawable from this entry.
func (e Entry) Available() int {
	return e.Allocated - e.Used
}

// Snapshot maps category IDs to available free-unit quantities. It is a
// point-in-time read used for optimistic cart pricing; the ledger itself is
// mutated only at order confirmation.
type Snapshot map[string]int

// Ledger tracks free-unit allocations. Consume and Restore must be atomic at
// the storage layer: two orders confirming concurrently for the same
// membership must not lose updates.
type Ledger interface {
	// Snapshot returns available quantities per category for a membership.
	Snapshot(ctx context.Context, membershipID string) (Snapshot, error)
	// GetAvailable returns the available quantity for a single category.
	// Missing entries report zero.
	GetAvailable(ctx context.Context, membershipID, categoryID string) (int, error)
	// Consume draws n units from the category's allocation. It fails with
	// ErrInsufficientAllocation when n exceeds the available quantity and
	// leaves the entry untouched.
	Consume(ctx context.Context, membershipID, categoryID string, n int) error
	// Restore returns n units to the category's allocation. The result is
	// clamped: used never drops below zero, so restoring more than was
	// consumed (partial or re-entrant cancellations) is safe.
	Restore(ctx context.Context, membershipID, categoryID string, n int) error
}

// Resolver maps a customer to their active membership, if any.
type Resolver interface {
	// MembershipFor returns the customer's active membership ID, or empty
	// string when the customer holds no membership.
	MembershipFor(ctx context.Context, customerID string) (string, error)
}

// MemoryLedger is a mutex-guarded in-memory Ledger. It backs unit tests and
// local development; production uses the PostgreSQL implementation.
type MemoryLedger struct {
	mu      sync.Mutex
	entries map[string]map[string]*Entry // membershipID -> categoryID -> entry
}

// NewMemoryLedger builds a MemoryLedger holding the given entries.
func NewMemoryLedger(entries ...Entry) *MemoryLedger {
	l := &MemoryLedger{entries: make(map[string]map[string]*Entry)}
	for _, e := range entries {
		byCat, ok := l.entries[e.MembershipID]
		if !ok {
			byCat = make(map[string]*Entry)
			l.entries[e.MembershipID] = byCat
		}
		entry := e
		byCat[e.CategoryID] = &entry
	}
	return l
}

func (l *MemoryLedger) Snapshot(_ context.Context, membershipID string) (Snapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	snap := make(Snapshot)
	for cat, e := range l.entries[membershipID] {
		snap[cat] = e.Available()
	}
	return snap, nil
}

func (l *MemoryLedger) GetAvailable(_ context.Context, membershipID, categoryID string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[membershipID][categoryID]
	if !ok {
		return 0, nil
	}
	return e.Available(), nil
}

func (l *MemoryLedger) Consume(_ context.Context, membershipID, categoryID string, n int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[membershipID][categoryID]
	if !ok || n > e.Available() {
		return ErrInsufficientAllocation
	}
	e.Used += n
	return nil
}

func (l *MemoryLedger) Restore(_ context.Context, membershipID, categoryID string, n int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[membershipID][categoryID]
	if !ok {
		return nil
	}
	e.Used -= n
	if e.Used < 0 {
		e.Used = 0
	}
	return nil
}

var _ Ledger = (*MemoryLedger)(nil)
