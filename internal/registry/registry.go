// Package registry indexes every object created during one migration run by
// identifier and by display name, and resolves group membership once the
// ingest is complete.
//
// The registry has two phases. While ingesting, objects are registered and
// nothing may read group members. Resolve closes the ingest phase; after
// that only range-derived groups may still be added (they carry no raw
// member identifiers), and export or NAT remediation may run.
package registry

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"grimm.is/cpmigrate/internal/logging"
	"grimm.is/cpmigrate/internal/objects"
)

var (
	// ErrResolved is returned by Register once Resolve has run.
	ErrResolved = errors.New("registry already resolved")
	// ErrAlreadyResolved is returned by a second call to Resolve.
	ErrAlreadyResolved = errors.New("resolve must run exactly once")
	// ErrNotResolved is returned by consumers that need resolved groups.
	ErrNotResolved = errors.New("registry not resolved")
)

// Registry owns all objects of a run. Groups reference registry objects by
// pointer, so later changes are visible through every holder.
type Registry struct {
	ids   map[string]objects.Object
	names map[string]objects.Object

	addresses []*objects.Address
	services  []*objects.Service
	groups    []*objects.Group
	natRules  []*objects.NATRule

	resolved bool
	logger   *logging.Logger
}

// New returns an empty registry in the ingest phase.
func New(logger *logging.Logger) *Registry {
	if logger == nil {
		logger = logging.Default()
	}
	return &Registry{
		ids:    make(map[string]objects.Object),
		names:  make(map[string]objects.Object),
		logger: logger.WithComponent("registry"),
	}
}

// Register indexes objs by id and by name and appends each one to its kind
// partition. Later registrations shadow earlier ones with the same id or
// name.
func (r *Registry) Register(objs ...objects.Object) error {
	if r.resolved {
		return ErrResolved
	}
	for _, obj := range objs {
		r.add(obj)
	}
	return nil
}

func (r *Registry) add(obj objects.Object) {
	r.ids[obj.ID()] = obj
	r.names[obj.Name()] = obj

	switch o := obj.(type) {
	case *objects.Address:
		r.addresses = append(r.addresses, o)
	case *objects.Service:
		r.services = append(r.services, o)
	case *objects.Group:
		r.groups = append(r.groups, o)
	case *objects.NATRule:
		r.natRules = append(r.natRules, o)
	}
}

// ByID looks up an object by vendor identifier.
func (r *Registry) ByID(id string) (objects.Object, bool) {
	o, ok := r.ids[id]
	return o, ok
}

// ByName looks up the last object registered under name.
func (r *Registry) ByName(name string) (objects.Object, bool) {
	o, ok := r.names[name]
	return o, ok
}

// AddressByName looks up an address by name.
func (r *Registry) AddressByName(name string) (*objects.Address, bool) {
	o, ok := r.names[name]
	if !ok {
		return nil, false
	}
	a, ok := o.(*objects.Address)
	return a, ok
}

// Names returns the number of distinct names known.
func (r *Registry) Names() int { return len(r.names) }

// NameList returns every known name, sorted.
func (r *Registry) NameList() []string {
	return slices.Sorted(maps.Keys(r.names))
}

func (r *Registry) Addresses() []*objects.Address { return r.addresses }
func (r *Registry) Services() []*objects.Service  { return r.services }
func (r *Registry) Groups() []*objects.Group      { return r.groups }
func (r *Registry) NATRules() []*objects.NATRule  { return r.natRules }

// Resolved reports whether Resolve has run.
func (r *Registry) Resolved() bool { return r.resolved }

// RequireResolved returns ErrNotResolved until Resolve has run.
func (r *Registry) RequireResolved() error {
	if !r.resolved {
		return ErrNotResolved
	}
	return nil
}

// Summary holds per-kind object counts.
type Summary struct {
	Addresses int
	Groups    int
	Services  int
	NATRules  int
}

func (s Summary) String() string {
	return fmt.Sprintf("Addresses: %d Groups: %d Services: %d NAT rules: %d",
		s.Addresses, s.Groups, s.Services, s.NATRules)
}

// Summary returns the partition sizes.
func (r *Registry) Summary() Summary {
	return Summary{
		Addresses: len(r.addresses),
		Groups:    len(r.groups),
		Services:  len(r.services),
		NATRules:  len(r.natRules),
	}
}
