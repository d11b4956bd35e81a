package registry

import (
	"grimm.is/cpmigrate/internal/objects"
)

// Unresolved records a group member identifier that matched no object.
type Unresolved struct {
	Group    string
	MemberID string
}

// Diagnostics collects non-fatal findings from Resolve.
type Diagnostics struct {
	Unresolved []Unresolved
}

// Resolve replaces every group's raw member identifiers with object
// references and closes the ingest phase. Unknown identifiers are dropped
// from the group and reported in the returned diagnostics.
func (r *Registry) Resolve() (*Diagnostics, error) {
	if r.resolved {
		return nil, ErrAlreadyResolved
	}

	diag := &Diagnostics{}
	for _, g := range r.groups {
		for _, id := range g.Resolve(r.ByID) {
			diag.Unresolved = append(diag.Unresolved, Unresolved{Group: g.Name(), MemberID: id})
			r.logger.Warn("dropping unresolved group member", "group", g.Name(), "member", id)
		}
	}
	r.resolved = true
	return diag, nil
}

// AddRangeGroup folds a range-derived group into the registry. When a
// group with the same name exists its members are extended with Combine;
// otherwise g is registered as a new group. The synthetic addresses are
// always added to the address partition so they are exported.
//
// Returns the group that now holds the members.
func (r *Registry) AddRangeGroup(g *objects.Group) (*objects.Group, error) {
	if !r.resolved {
		return nil, ErrNotResolved
	}

	for _, m := range g.Members() {
		if a, ok := m.(*objects.Address); ok {
			r.addresses = append(r.addresses, a)
		}
	}

	if existing, ok := r.names[g.Name()].(*objects.Group); ok {
		r.logger.Debug("merging range group", "group", g.Name(),
			"existing", memberNames(existing), "new", memberNames(g))
		existing.Combine(g.Members())
		return existing, nil
	}

	r.add(g)
	return g, nil
}

func memberNames(g *objects.Group) []string {
	out := make([]string, 0, len(g.Members()))
	for _, m := range g.Members() {
		out = append(out, m.Name())
	}
	return out
}
