package panos

import (
	"context"
	"encoding/xml"
	"fmt"

	"grimm.is/cpmigrate/internal/objects"
)

const (
	// DefaultVsys is the vsys rulebases are read from.
	DefaultVsys = "vsys1"
	// SharedAddressXPath is where objects are created unless configured
	// otherwise.
	SharedAddressXPath = "/config/shared/address"

	vsysXPath = "/config/devices/entry[@name='localhost.localdomain']/vsys/entry[@name='%s']"
)

// Renderer serializes an object into an XML element.
type Renderer interface {
	Render(obj objects.Object, template string) (string, error)
}

// Device adapts a Client to the operations export and remediation need.
type Device struct {
	client       *Client
	renderer     Renderer
	vsys         string
	addressXPath string
}

// DeviceOption configures a Device.
type DeviceOption func(*Device)

// WithVsys selects the vsys whose rulebases are read and edited.
func WithVsys(vsys string) DeviceOption {
	return func(d *Device) {
		if vsys != "" {
			d.vsys = vsys
		}
	}
}

// WithAddressXPath sets where synthesized addresses are created.
func WithAddressXPath(xpath string) DeviceOption {
	return func(d *Device) {
		if xpath != "" {
			d.addressXPath = xpath
		}
	}
}

// NewDevice wraps c. renderer produces the address elements CreateAddress
// submits.
func NewDevice(c *Client, renderer Renderer, opts ...DeviceOption) *Device {
	d := &Device{
		client:       c,
		renderer:     renderer,
		vsys:         DefaultVsys,
		addressXPath: SharedAddressXPath,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// RulesXPath returns the rules xpath of a rulebase ("nat" or "security").
func (d *Device) RulesXPath(rulebase string) string {
	return fmt.Sprintf(vsysXPath, d.vsys) + "/rulebase/" + rulebase + "/rules"
}

func entryXPath(rules, name string) string {
	return fmt.Sprintf("%s/entry[@name='%s']", rules, name)
}

// Submit sets a batch of serialized elements at xpath.
func (d *Device) Submit(ctx context.Context, xpath, elements string) error {
	return d.client.Set(ctx, xpath, elements)
}

// CreateAddress creates a single address object.
func (d *Device) CreateAddress(ctx context.Context, a *objects.Address) error {
	elem, err := d.renderer.Render(a, "address.xml")
	if err != nil {
		return fmt.Errorf("render address %s: %w", a.Name(), err)
	}
	return d.client.Set(ctx, d.addressXPath, elem)
}

// NATRules fetches the NAT rulebase.
func (d *Device) NATRules(ctx context.Context) ([]*NATRule, error) {
	inner, err := d.client.Get(ctx, d.RulesXPath("nat"))
	if err != nil {
		return nil, err
	}
	return ParseNATRules(inner)
}

// SecurityRules fetches the security rulebase.
func (d *Device) SecurityRules(ctx context.Context) ([]*SecurityRule, error) {
	inner, err := d.client.Get(ctx, d.RulesXPath("security"))
	if err != nil {
		return nil, err
	}
	return ParseSecurityRules(inner)
}

// ApplyNATRule replaces the rule on the device with r.
func (d *Device) ApplyNATRule(ctx context.Context, r *NATRule) error {
	return d.apply(ctx, d.RulesXPath("nat"), r.Name, r)
}

// ApplySecurityRule replaces the rule on the device with r.
func (d *Device) ApplySecurityRule(ctx context.Context, r *SecurityRule) error {
	return d.apply(ctx, d.RulesXPath("security"), r.Name, r)
}

func (d *Device) apply(ctx context.Context, rules, name string, v any) error {
	out, err := xml.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode rule %s: %w", name, err)
	}
	return d.client.Edit(ctx, entryXPath(rules, name), string(out))
}
