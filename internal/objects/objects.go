// Package objects holds the typed object model built from Check Point JSON
// exports: addresses, services, groups and NAT rules.
//
// Every object keeps the source fields it does not lift into typed fields in
// an ordered Attributes bag so templates can still reach vendor specifics.
package objects

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"
)

// Kind discriminates the concrete object types.
type Kind int

const (
	KindAddress Kind = iota
	KindService
	KindGroup
	KindNATRule
)

func (k Kind) String() string {
	switch k {
	case KindAddress:
		return "Address"
	case KindService:
		return "Service"
	case KindGroup:
		return "Group"
	case KindNATRule:
		return "NatRule"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

var (
	// ErrAmbiguousAddress is returned when a record carries both the
	// subnet and the host address shape.
	ErrAmbiguousAddress = errors.New("address record has both subnet4 and ipv4-address")
	// ErrMissingAddress is returned when a record carries neither shape.
	ErrMissingAddress = errors.New("address record has neither subnet4 nor ipv4-address")
	// ErrIPv6Only is returned when a record only carries subnet6 or
	// ipv6-address. Such records have nothing to migrate.
	ErrIPv6Only = errors.New("address record is IPv6 only")
)

// Object is implemented by every migrated object.
type Object interface {
	ID() string
	Name() string
	Kind() Kind
	Attrs() *Attributes
}

type base struct {
	id    string
	name  string
	attrs *Attributes
}

func (b *base) ID() string { return b.id }

// Name returns the display name, falling back to the id when the export
// carried no name.
func (b *base) Name() string {
	if b.name != "" {
		return b.name
	}
	return b.id
}

func (b *base) Attrs() *Attributes {
	if b.attrs == nil {
		return &Attributes{}
	}
	return b.attrs
}

func newBase(rec *Attributes, lifted ...string) base {
	lifted = append(lifted, "uid", "name")
	return base{
		id:    rec.String("uid"),
		name:  rec.String("name"),
		attrs: rec.Without(lifted...),
	}
}

// NATKind tells a translated address apart from hide-behind-gateway NAT.
type NATKind int

const (
	NATAddress NATKind = iota
	NATGateway
)

func (k NATKind) String() string {
	if k == NATGateway {
		return "Gateway"
	}
	return "Address"
}

// NATSetting is the automatic NAT descriptor attached to an address.
type NATSetting struct {
	Method      string
	HideBehind  string
	IPv4Address string
	InstallOn   string
}

// Kind reports whether the setting hides behind the gateway.
func (n *NATSetting) Kind() NATKind {
	if strings.EqualFold(n.HideBehind, "gateway") {
		return NATGateway
	}
	return NATAddress
}

// Usable reports whether the setting names a dedicated translated address.
func (n *NATSetting) Usable() bool {
	return n != nil && n.Kind() != NATGateway && n.IPv4Address != ""
}

// TranslatedCIDR returns the translated address in CIDR form.
func (n *NATSetting) TranslatedCIDR() (string, error) {
	return hostCIDR(n.IPv4Address)
}

func parseNATSetting(rec *Attributes) *NATSetting {
	nat := rec.Object("nat-settings")
	if nat == nil {
		return nil
	}
	// auto-rule false is how the export spells "no NAT configured"
	if !nat.Bool("auto-rule", true) {
		return nil
	}
	return &NATSetting{
		Method:      nat.String("method"),
		HideBehind:  nat.String("hide-behind"),
		IPv4Address: nat.String("ipv4-address"),
		InstallOn:   nat.String("install-on"),
	}
}

// Address is a host or network object.
type Address struct {
	base
	// IPv4 is always a CIDR string.
	IPv4    string
	NAT     *NATSetting
	Subtype string
}

// NewAddress builds an Address from a host or network record. The record
// carries either subnet4 with subnet-mask (or mask-length4), or
// ipv4-address, never both.
func NewAddress(rec *Attributes) (*Address, error) {
	a := &Address{
		base: newBase(rec, "subnet4", "subnet-mask", "mask-length4",
			"ipv4-address", "nat-settings", "type"),
		NAT:     parseNATSetting(rec),
		Subtype: rec.String("type"),
	}

	hasSubnet := rec.Has("subnet4")
	hasHost := rec.Has("ipv4-address")

	var err error
	switch {
	case hasSubnet && hasHost:
		return nil, fmt.Errorf("%s: %w", a.Name(), ErrAmbiguousAddress)
	case hasSubnet:
		a.IPv4, err = networkCIDR(rec.String("subnet4"), rec.String("subnet-mask"), rec.String("mask-length4"))
	case hasHost:
		a.IPv4, err = hostCIDR(rec.String("ipv4-address"))
	case rec.Has("subnet6") || rec.Has("ipv6-address"):
		return nil, fmt.Errorf("%s: %w", a.Name(), ErrIPv6Only)
	default:
		return nil, fmt.Errorf("%s: %w", a.Name(), ErrMissingAddress)
	}
	if err != nil {
		return nil, fmt.Errorf("address %s: %w", a.Name(), err)
	}
	return a, nil
}

// NewSyntheticAddress builds an address that has no source record, such as
// the blocks produced from a range or the translated NAT_ objects.
func NewSyntheticAddress(id, name, cidr, subtype string) *Address {
	return &Address{
		base:    base{id: id, name: name},
		IPv4:    cidr,
		Subtype: subtype,
	}
}

func (a *Address) Kind() Kind { return KindAddress }

// HasNAT reports whether the address carries any NAT descriptor.
func (a *Address) HasNAT() bool { return a.NAT != nil }

func networkCIDR(subnet, mask, maskLen string) (string, error) {
	addr, err := netip.ParseAddr(subnet)
	if err != nil {
		return "", fmt.Errorf("invalid subnet4 %q: %w", subnet, err)
	}

	var bits int
	switch {
	case mask != "":
		m, err := netip.ParseAddr(mask)
		if err != nil || !m.Is4() {
			return "", fmt.Errorf("invalid subnet-mask %q", mask)
		}
		ones, size := net.IPMask(m.AsSlice()).Size()
		if size == 0 {
			return "", fmt.Errorf("non-contiguous subnet-mask %q", mask)
		}
		bits = ones
	case maskLen != "":
		if _, err := fmt.Sscanf(maskLen, "%d", &bits); err != nil {
			return "", fmt.Errorf("invalid mask-length4 %q", maskLen)
		}
	default:
		return "", fmt.Errorf("subnet4 %s has no mask", subnet)
	}

	prefix, err := addr.Prefix(bits)
	if err != nil {
		return "", fmt.Errorf("invalid prefix length %d: %w", bits, err)
	}
	return prefix.String(), nil
}

func hostCIDR(s string) (string, error) {
	if strings.Contains(s, "/") {
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return "", fmt.Errorf("invalid address %q: %w", s, err)
		}
		return p.String(), nil
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return "", fmt.Errorf("invalid address %q: %w", s, err)
	}
	return netip.PrefixFrom(addr, addr.BitLen()).String(), nil
}

// Service is a TCP/UDP/other service object.
type Service struct {
	base
	Protocol string
	Port     string
}

// NewService builds a Service. The protocol is taken from the type tag
// after the first "-" (service-udp -> udp); tcp when the tag has none.
func NewService(rec *Attributes) *Service {
	return &Service{
		base:     newBase(rec, "type", "port"),
		Protocol: protocolFromType(rec.String("type")),
		Port:     rec.String("port"),
	}
}

func (s *Service) Kind() Kind { return KindService }

func protocolFromType(tag string) string {
	if tag == "" {
		return "tcp"
	}
	_, proto, ok := strings.Cut(tag, "-")
	if !ok || proto == "" {
		return "tcp"
	}
	return proto
}

// NATRule is a Check Point NAT rule carried through as a passthrough bag.
type NATRule struct {
	base
}

// NewNATRule builds a NATRule from a nat-rule record.
func NewNATRule(rec *Attributes) *NATRule {
	return &NATRule{base: newBase(rec)}
}

// NATRulesFromSection expands a nat-section record into its rules.
func NATRulesFromSection(rec *Attributes) []*NATRule {
	var rules []*NATRule
	for _, item := range rec.List("rulebase") {
		r, ok := item.(*Attributes)
		if !ok {
			continue
		}
		rules = append(rules, NewNATRule(r))
	}
	return rules
}

func (r *NATRule) Kind() Kind { return KindNATRule }

// Method returns the translation method (static, hide).
func (r *NATRule) Method() string { return r.Attrs().String("method") }
