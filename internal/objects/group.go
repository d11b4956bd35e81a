package objects

import "fmt"

// Group is a network or service group. Members start out as raw
// identifiers and are replaced by object references in Resolve.
type Group struct {
	base
	members      []Object
	rawMembers   []string
	dominantKind Kind
	fromRanges   bool
}

// NewGroup builds a Group from a group or service-group record. Records
// carrying a ranges field (show-groups show-as-ranges output) are
// summarized into synthetic address members right away.
func NewGroup(rec *Attributes) (*Group, error) {
	g := &Group{
		base:         newBase(rec, "members", "ranges"),
		rawMembers:   rec.References("members", "uid"),
		dominantKind: KindGroup,
	}
	if ranges := rec.Object("ranges"); ranges != nil {
		if err := g.resolveRanges(ranges); err != nil {
			return nil, fmt.Errorf("group %s: %w", g.Name(), err)
		}
	}
	return g, nil
}

func (g *Group) Kind() Kind { return KindGroup }

// Members returns the resolved members in order.
func (g *Group) Members() []Object { return g.members }

// RawMembers returns the member identifiers as read from the export.
func (g *Group) RawMembers() []string { return g.rawMembers }

// DominantKind is the kind of the last non-group member seen, or KindGroup
// when every member is itself a group.
func (g *Group) DominantKind() Kind { return g.dominantKind }

// FromRanges reports whether the members were computed from address ranges.
func (g *Group) FromRanges() bool { return g.fromRanges }

// Resolve replaces the raw member identifiers with the objects lookup
// returns. Identifiers lookup does not know are dropped and returned.
// Resolution is one flat pass; nested groups are referenced, not expanded.
func (g *Group) Resolve(lookup func(id string) (Object, bool)) (unresolved []string) {
	if g.fromRanges {
		return nil
	}
	members := make([]Object, 0, len(g.rawMembers))
	dominant := KindGroup
	for _, id := range g.rawMembers {
		obj, ok := lookup(id)
		if !ok {
			unresolved = append(unresolved, id)
			continue
		}
		members = append(members, obj)
		if obj.Kind() != KindGroup {
			dominant = obj.Kind()
		}
	}
	g.members = members
	g.dominantKind = dominant
	return unresolved
}

// Combine appends members and refreshes the dominant kind from the newly
// added members only. Existing members stay in the group but no longer
// decide its kind; an empty members slice changes nothing.
func (g *Group) Combine(members []Object) {
	if len(members) == 0 {
		return
	}
	dominant := KindGroup
	for _, m := range members {
		g.members = append(g.members, m)
		if m.Kind() != KindGroup {
			dominant = m.Kind()
		}
	}
	g.dominantKind = dominant
}

func (g *Group) resolveRanges(ranges *Attributes) error {
	g.fromRanges = true
	g.dominantKind = KindAddress
	g.members = nil

	// "others" holds shapes we cannot express as prefixes
	if len(ranges.List("others")) > 0 {
		return nil
	}

	for _, item := range ranges.List("ipv4") {
		r, ok := item.(*Attributes)
		if !ok {
			continue
		}
		addrs, err := RangeAddresses(r.String("start"), r.String("end"))
		if err != nil {
			return err
		}
		for _, a := range addrs {
			g.members = append(g.members, a)
		}
	}
	return nil
}
