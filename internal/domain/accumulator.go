package domain

import (
	"fmt"
	"sync"
)

// MergeResult reports what one Merge call did to an accumulator.
type MergeResult struct {
	Appended int
	Dropped  int
	Len      int
	// Kept holds the snapshots appended by this merge, in order.
	Kept []Snapshot
}

// Accumulator is the retained, deduplicated series under construction for one
// variable. It is not safe for concurrent use.
type Accumulator struct {
	identity  VariableIdentity
	ref       *Snapshot
	snapshots []Snapshot
	times     map[ModelTime]struct{}
	released  int
}

// NewAccumulator creates an empty accumulator for id.
func NewAccumulator(id VariableIdentity) *Accumulator {
	return &Accumulator{
		identity: id,
		times:    make(map[ModelTime]struct{}),
	}
}

func (a *Accumulator) Identity() VariableIdentity { return a.identity }

// Len is the number of retained snapshots.
func (a *Accumulator) Len() int { return len(a.snapshots) }

// Contains reports whether a snapshot at t is already retained.
func (a *Accumulator) Contains(t ModelTime) bool {
	_, ok := a.times[t]
	return ok
}

// Snapshots returns the retained snapshots in timestamp order. Snapshots
// released by DropValues come back without values.
func (a *Accumulator) Snapshots() []Snapshot {
	out := make([]Snapshot, len(a.snapshots))
	copy(out, a.snapshots)
	return out
}

// Times returns the retained timestamps in order.
func (a *Accumulator) Times() []ModelTime {
	out := make([]ModelTime, len(a.snapshots))
	for i, s := range a.snapshots {
		out[i] = s.Time
	}
	return out
}

// Merge folds one chunk's batch into the accumulator. The batch is checked for
// identity and structure, its overlap with retained timestamps is resolved, and
// the remainder is appended only if timestamps stay strictly increasing. On
// error the accumulator is unchanged.
func (a *Accumulator) Merge(chunk string, batch []Snapshot) (MergeResult, error) {
	for _, s := range batch {
		if s.Identity != a.identity {
			return MergeResult{}, fmt.Errorf("%w: accumulator for %s offered %s from %s",
				ErrIdentityMismatch, a.identity, s.Identity, s.Provenance)
		}
	}
	if err := a.checkStructure(batch); err != nil {
		return MergeResult{}, err
	}

	res, err := ResolveOverlap(a.identity, chunk, a.Contains, batch)
	if err != nil {
		return MergeResult{}, err
	}
	if err := a.checkOrder(res.Kept); err != nil {
		return MergeResult{}, err
	}

	for _, s := range res.Kept {
		a.times[s.Time] = struct{}{}
	}
	if a.ref == nil && len(res.Kept) > 0 {
		ref := res.Kept[0]
		a.ref = &ref
	}
	a.snapshots = append(a.snapshots, res.Kept...)

	return MergeResult{
		Appended: len(res.Kept),
		Dropped:  len(res.Dropped),
		Len:      len(a.snapshots),
		Kept:     res.Kept,
	}, nil
}

// DropValues releases the field values of every retained snapshot once the
// caller has persisted them. Timestamps, provenance and the structural
// reference are kept, so later merges are checked exactly as before.
func (a *Accumulator) DropValues() {
	for i := a.released; i < len(a.snapshots); i++ {
		a.snapshots[i].Values = nil
	}
	a.released = len(a.snapshots)
}

func (a *Accumulator) checkStructure(batch []Snapshot) error {
	if len(batch) == 0 {
		return nil
	}
	ref := batch[0]
	if a.ref != nil {
		ref = *a.ref
	}
	for _, s := range batch {
		if err := ref.CheckCompatible(s); err != nil {
			return err
		}
	}
	return nil
}

// checkOrder verifies that appending kept to the retained tail keeps
// timestamps strictly increasing. The retained part already satisfies it.
func (a *Accumulator) checkOrder(kept []Snapshot) error {
	prev := a.snapshots
	if len(prev) > 0 {
		prev = prev[len(prev)-1:]
	}
	return VerifyOrder(append(append([]Snapshot(nil), prev...), kept...))
}

// VerifyOrder returns ErrOutOfOrder unless every timestamp is finite and
// timestamps strictly increase.
func VerifyOrder(snapshots []Snapshot) error {
	for i, cur := range snapshots {
		if !cur.Time.Finite() {
			return fmt.Errorf("%w: %s: time %s at %s is not finite",
				ErrOutOfOrder, cur.Identity, cur.Time, cur.Provenance)
		}
		if i == 0 {
			continue
		}
		if prev := snapshots[i-1]; cur.Time <= prev.Time {
			return fmt.Errorf("%w: %s: %s at %s follows %s at %s",
				ErrOutOfOrder, cur.Identity, cur.Time, cur.Provenance, prev.Time, prev.Provenance)
		}
	}
	return nil
}

// Registry holds one accumulator per variable. Different identities may be
// accumulated concurrently; one identity must only be fed from one goroutine.
type Registry struct {
	mu   sync.Mutex
	accs map[VariableIdentity]*Accumulator
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{accs: make(map[VariableIdentity]*Accumulator)}
}

// Accumulate merges batch into the accumulator for id, creating it on first sighting.
func (r *Registry) Accumulate(id VariableIdentity, chunk string, batch []Snapshot) (MergeResult, error) {
	r.mu.Lock()
	acc, ok := r.accs[id]
	if !ok {
		acc = NewAccumulator(id)
		r.accs[id] = acc
	}
	r.mu.Unlock()

	return acc.Merge(chunk, batch)
}

// Get returns the accumulator for id, or nil if id has not been seen.
func (r *Registry) Get(id VariableIdentity) *Accumulator {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.accs[id]
}

// Release forgets the accumulator for id once its series has been written.
func (r *Registry) Release(id VariableIdentity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.accs, id)
}
