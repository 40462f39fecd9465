// Package schedule keeps the time-ordered index of invested deposit
// instances. Membership is exactly the set of instances currently holding a
// yield position; the automation keeper drains matured entries from the head.
package schedule

import (
	"context"
	"sort"
	"sync"
	"time"

	id "rentvault/pkg/domain"
	dErrors "rentvault/pkg/domain-errors"
)

// ManagerGrant is the one-time capability an instance needs to mutate the
// schedule. Only the registry's administrative authority can mint grants, at
// instance-creation time; holding the value is the authorization.
type ManagerGrant struct {
	registry *Registry
	instance id.InstanceID
}

// InstanceID reports which instance the grant was issued for.
func (g ManagerGrant) InstanceID() id.InstanceID { return g.instance }

// Valid reports whether the grant was minted by registry r.
func (g ManagerGrant) valid(r *Registry) bool { return g.registry == r }

type node struct {
	instance id.InstanceID
	maturity time.Time
}

// Registry is the ordered maturity schedule. All structural mutation
// serializes on one mutex, so every reader observes a fully sorted sequence.
type Registry struct {
	authority id.Address

	mu      sync.RWMutex
	nodes   []node
	granted map[id.InstanceID]bool
}

// New builds a schedule whose grants can only be minted by authority (the
// instance registry's administrative account).
func New(authority id.Address) *Registry {
	return &Registry{
		authority: authority,
		granted:   make(map[id.InstanceID]bool),
	}
}

// GrantManager mints the manager capability for an instance. Callable only by
// the registry authority; a second grant for the same instance fails so the
// delegation stays one-time.
func (r *Registry) GrantManager(ctx context.Context, actor id.Address, instance id.InstanceID) (ManagerGrant, error) {
	if actor != r.authority {
		return ManagerGrant{}, dErrors.New(dErrors.CodeRegistryAccess, "caller may not delegate schedule access")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.granted[instance] {
		return ManagerGrant{}, dErrors.New(dErrors.CodeConflict, "schedule access already delegated for this instance")
	}
	r.granted[instance] = true
	_ = ctx
	return ManagerGrant{registry: r, instance: instance}, nil
}

// Register inserts the grant's instance in ascending maturity order. Ties in
// maturity keep insertion order so the keeper processes equal maturities FIFO.
func (r *Registry) Register(_ context.Context, grant ManagerGrant, maturity time.Time) error {
	if !grant.valid(r) {
		return dErrors.New(dErrors.CodeRegistryAccess, "caller does not hold schedule access")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, n := range r.nodes {
		if n.instance == grant.instance {
			return dErrors.New(dErrors.CodeConflict, "instance already registered in the schedule")
		}
	}

	n := node{instance: grant.instance, maturity: maturity}
	// First slot strictly after every node with maturity <= t.
	at := sort.Search(len(r.nodes), func(i int) bool {
		return r.nodes[i].maturity.After(maturity)
	})
	r.nodes = append(r.nodes, node{})
	copy(r.nodes[at+1:], r.nodes[at:])
	r.nodes[at] = n
	return nil
}

// Deregister removes the grant's instance. Removing an absent instance is a
// no-op: a keeper-triggered withdrawal may race a manual one.
func (r *Registry) Deregister(_ context.Context, grant ManagerGrant) error {
	if !grant.valid(r) {
		return dErrors.New(dErrors.CodeRegistryAccess, "caller does not hold schedule access")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, n := range r.nodes {
		if n.instance == grant.instance {
			r.nodes = append(r.nodes[:i], r.nodes[i+1:]...)
			return nil
		}
	}
	return nil
}

// TimeToWithdraw reports an instance's scheduled maturity, or the zero time
// for instances never registered or already removed.
func (r *Registry) TimeToWithdraw(_ context.Context, instance id.InstanceID) time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, n := range r.nodes {
		if n.instance == instance {
			return n.maturity
		}
	}
	return time.Time{}
}

// PeekEarliest returns the instance with the soonest maturity, or ok=false on
// an empty schedule.
func (r *Registry) PeekEarliest(_ context.Context) (id.InstanceID, time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.nodes) == 0 {
		return 0, time.Time{}, false
	}
	return r.nodes[0].instance, r.nodes[0].maturity, true
}

// Len reports the number of registered instances.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nodes)
}

// Snapshot returns the ordered (instance, maturity) sequence. Used by tests
// and the read surface; the slice is a copy.
func (r *Registry) Snapshot() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, len(r.nodes))
	for i, n := range r.nodes {
		out[i] = Entry{Instance: n.instance, Maturity: n.maturity}
	}
	return out
}

// Entry is one schedule position.
type Entry struct {
	Instance id.InstanceID
	Maturity time.Time
}
