// Package remediate rewrites deployed PAN-OS NAT and security rules that
// reference migrated addresses carrying a Check Point NAT setting. Each
// such reference is replaced by a synthesized NAT_<name> address holding
// the translated address. The address is created on the device before any
// rule referencing it is applied.
package remediate

import (
	"context"
	"encoding/xml"
	"fmt"
	"slices"

	"github.com/pmezard/go-difflib/difflib"

	"grimm.is/cpmigrate/internal/journal"
	"grimm.is/cpmigrate/internal/logging"
	"grimm.is/cpmigrate/internal/metrics"
	"grimm.is/cpmigrate/internal/objects"
	"grimm.is/cpmigrate/internal/panos"
	"grimm.is/cpmigrate/internal/registry"
)

// Pass names, used in logs, metrics and the journal.
const (
	PassDynamic     = "dynamic"
	PassStatic      = "static"
	PassDestination = "destination"
	PassSecurity    = "security"
)

// NATPrefix is prepended to the source name of a synthesized address.
const NATPrefix = "NAT_"

// Device is the firewall being remediated.
type Device interface {
	CreateAddress(ctx context.Context, a *objects.Address) error
	NATRules(ctx context.Context) ([]*panos.NATRule, error)
	SecurityRules(ctx context.Context) ([]*panos.SecurityRule, error)
	ApplyNATRule(ctx context.Context, r *panos.NATRule) error
	ApplySecurityRule(ctx context.Context, r *panos.SecurityRule) error
}

// Journal records device changes.
type Journal interface {
	Record(ctx context.Context, e journal.Entry) error
}

// Change is one rewritten rule.
type Change struct {
	Pass   string
	Rule   string
	Before string
	After  string
}

// Diff returns a unified diff of the rule before and after the rewrite.
func (c Change) Diff() string {
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(c.Before),
		B:        difflib.SplitLines(c.After),
		FromFile: c.Rule + " (device)",
		ToFile:   c.Rule + " (remediated)",
		Context:  3,
	}
	text, _ := difflib.GetUnifiedDiffString(diff)
	return text
}

// Run carries the state shared by the passes of one remediation: the
// addresses synthesized so far, keyed by source name, and the changes made.
type Run struct {
	synthesized map[string]*objects.Address
	order       []*objects.Address
	Changes     []Change
}

// NewRun returns an empty run.
func NewRun() *Run {
	return &Run{synthesized: make(map[string]*objects.Address)}
}

// Synthesized returns the addresses created during the run in creation
// order.
func (r *Run) Synthesized() []*objects.Address { return r.order }

func (r *Run) lookup(name string) (*objects.Address, bool) {
	a, ok := r.synthesized[name]
	return a, ok
}

func (r *Run) add(name string, a *objects.Address) {
	r.synthesized[name] = a
	r.order = append(r.order, a)
}

// Remediator runs the passes against one device.
type Remediator struct {
	reg     *registry.Registry
	device  Device
	logger  *logging.Logger
	journal Journal
	metrics *metrics.Registry
	plan    bool
}

// Option configures a Remediator.
type Option func(*Remediator)

// WithLogger sets the remediator logger.
func WithLogger(l *logging.Logger) Option {
	return func(m *Remediator) {
		m.logger = l
	}
}

// WithJournal records every change in j.
func WithJournal(j Journal) Option {
	return func(m *Remediator) {
		m.journal = j
	}
}

// WithMetrics sets the metrics registry.
func WithMetrics(reg *metrics.Registry) Option {
	return func(m *Remediator) {
		m.metrics = reg
	}
}

// WithPlan computes the changes without creating or applying anything.
// Rulebases are still read from the device.
func WithPlan(plan bool) Option {
	return func(m *Remediator) {
		m.plan = plan
	}
}

// New creates a remediator. reg must be resolved before Remediate runs.
func New(reg *registry.Registry, device Device, opts ...Option) *Remediator {
	m := &Remediator{
		reg:     reg,
		device:  device,
		logger:  logging.Default(),
		metrics: metrics.Get(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.WithComponent("remediate")
	return m
}

// Remediate runs the dynamic, static, destination and security passes in
// order. The first error stops the run.
func (m *Remediator) Remediate(ctx context.Context, run *Run) error {
	if err := m.reg.RequireResolved(); err != nil {
		return fmt.Errorf("remediate: %w", err)
	}

	passes := []struct {
		name string
		fn   func(context.Context, *Run) error
	}{
		{PassDynamic, m.DynamicPass},
		{PassStatic, m.StaticPass},
		{PassDestination, m.DestinationPass},
		{PassSecurity, m.SecurityPass},
	}
	for _, p := range passes {
		if err := p.fn(ctx, run); err != nil {
			return fmt.Errorf("%s pass: %w", p.name, err)
		}
	}

	m.logger.Info("remediation complete",
		"synthesized", len(run.order), "rules_rewritten", len(run.Changes), "plan", m.plan)
	return nil
}

// DynamicPass rewrites dynamic-ip-and-port translated addresses.
func (m *Remediator) DynamicPass(ctx context.Context, run *Run) error {
	rules, err := m.device.NATRules(ctx)
	if err != nil {
		return fmt.Errorf("fetch NAT rules: %w", err)
	}
	for _, rule := range rules {
		addrs := rule.TranslatedAddresses()
		if len(addrs) == 0 {
			continue
		}
		before := rule.Clone()
		out, replaced, err := m.rewriteList(ctx, run, PassDynamic, rule.Name, addrs)
		if err != nil {
			return err
		}
		if !replaced {
			continue
		}
		rule.SetTranslatedAddresses(out)
		if err := m.applyNAT(ctx, run, PassDynamic, before, rule); err != nil {
			return err
		}
	}
	return nil
}

// StaticPass rewrites static-ip translated addresses.
func (m *Remediator) StaticPass(ctx context.Context, run *Run) error {
	rules, err := m.device.NATRules(ctx)
	if err != nil {
		return fmt.Errorf("fetch NAT rules: %w", err)
	}
	for _, rule := range rules {
		name := rule.StaticTranslatedAddress()
		if name == "" {
			continue
		}
		syn, ok, err := m.synthesize(ctx, run, PassStatic, name)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		before := rule.Clone()
		rule.SetStaticTranslatedAddress(syn.Name())
		m.logReference(PassStatic, rule.Name, name, syn.Name())
		if err := m.applyNAT(ctx, run, PassStatic, before, rule); err != nil {
			return err
		}
	}
	return nil
}

// DestinationPass rewrites NAT rule destinations.
func (m *Remediator) DestinationPass(ctx context.Context, run *Run) error {
	rules, err := m.device.NATRules(ctx)
	if err != nil {
		return fmt.Errorf("fetch NAT rules: %w", err)
	}
	for _, rule := range rules {
		if len(rule.Destination) == 0 {
			continue
		}
		before := rule.Clone()
		out, replaced, err := m.rewriteList(ctx, run, PassDestination, rule.Name, rule.Destination)
		if err != nil {
			return err
		}
		if !replaced {
			continue
		}
		rule.Destination = out
		if err := m.applyNAT(ctx, run, PassDestination, before, rule); err != nil {
			return err
		}
	}
	return nil
}

// SecurityPass rewrites the destinations of security rules whose source
// includes "any" and whose destination references an address with a NAT
// setting.
func (m *Remediator) SecurityPass(ctx context.Context, run *Run) error {
	rules, err := m.device.SecurityRules(ctx)
	if err != nil {
		return fmt.Errorf("fetch security rules: %w", err)
	}
	for _, rule := range rules {
		if !slices.Contains(rule.Source, "any") || !m.referencesNAT(rule.Destination) {
			continue
		}
		before := rule.Clone()
		out, replaced, err := m.rewriteList(ctx, run, PassSecurity, rule.Name, rule.Destination)
		if err != nil {
			return err
		}
		if !replaced {
			// only gateway NAT behind these destinations
			continue
		}
		rule.Destination = out
		if err := m.applySecurity(ctx, run, before, rule); err != nil {
			return err
		}
	}
	return nil
}

func (m *Remediator) referencesNAT(names []string) bool {
	for _, n := range names {
		if a, ok := m.reg.AddressByName(n); ok && a.HasNAT() {
			return true
		}
	}
	return false
}

// rewriteList replaces every name with a usable NAT setting by its
// synthesized counterpart. Names without one are kept at their position,
// so the rewritten list overwrites the rule's list without dropping
// members; replaced reports whether anything changed.
func (m *Remediator) rewriteList(ctx context.Context, run *Run, pass, rule string, names []string) ([]string, bool, error) {
	out := make([]string, 0, len(names))
	replaced := false
	for _, name := range names {
		syn, ok, err := m.synthesize(ctx, run, pass, name)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			out = append(out, name)
			continue
		}
		m.logReference(pass, rule, name, syn.Name())
		out = append(out, syn.Name())
		replaced = true
	}
	return out, replaced, nil
}

// synthesize returns the NAT_ address for name, creating it on the device
// the first time it is needed in run. ok is false when name is not an
// address with a usable NAT setting.
func (m *Remediator) synthesize(ctx context.Context, run *Run, pass, name string) (*objects.Address, bool, error) {
	if syn, ok := run.lookup(name); ok {
		return syn, true, nil
	}

	src, found := m.reg.AddressByName(name)
	if !found || !src.HasNAT() || !src.NAT.Usable() {
		return nil, false, nil
	}

	cidr, err := src.NAT.TranslatedCIDR()
	if err != nil {
		return nil, false, fmt.Errorf("address %s: %w", name, err)
	}
	syn := objects.NewSyntheticAddress(src.ID(), NATPrefix+name, cidr, "host")

	if !m.plan {
		if err := m.device.CreateAddress(ctx, syn); err != nil {
			return nil, false, fmt.Errorf("create %s: %w", syn.Name(), err)
		}
		m.logger.Audit(journal.ActionCreateAddress, syn.Name(), map[string]any{"ipv4": cidr, "source": name})
	}
	run.add(name, syn)
	m.metrics.NATObjectsSynthesized.Inc()
	m.logger.Info("synthesized NAT address", "pass", pass, "name", syn.Name(), "ipv4", cidr, "source", name)

	return syn, true, m.record(ctx, journal.Entry{
		Pass:    pass,
		Action:  journal.ActionCreateAddress,
		Target:  syn.Name(),
		Details: map[string]any{"ipv4": cidr, "source": name},
	})
}

func (m *Remediator) logReference(pass, rule, from, to string) {
	m.logger.Info("rewrote rule reference", "pass", pass, "rule", rule, "from", from, "to", to)
}

func (m *Remediator) applyNAT(ctx context.Context, run *Run, pass string, before, after *panos.NATRule) error {
	if !m.plan {
		if err := m.device.ApplyNATRule(ctx, after); err != nil {
			return fmt.Errorf("apply NAT rule %s: %w", after.Name, err)
		}
	}
	return m.changed(ctx, run, pass, after.Name, before, after)
}

func (m *Remediator) applySecurity(ctx context.Context, run *Run, before, after *panos.SecurityRule) error {
	if !m.plan {
		if err := m.device.ApplySecurityRule(ctx, after); err != nil {
			return fmt.Errorf("apply security rule %s: %w", after.Name, err)
		}
	}
	return m.changed(ctx, run, PassSecurity, after.Name, before, after)
}

func (m *Remediator) changed(ctx context.Context, run *Run, pass, rule string, before, after any) error {
	c := Change{
		Pass:   pass,
		Rule:   rule,
		Before: indentXML(before),
		After:  indentXML(after),
	}
	run.Changes = append(run.Changes, c)
	m.metrics.RulesRewritten.WithLabelValues(pass).Inc()
	if !m.plan {
		m.logger.Audit(journal.ActionRewriteRule, rule, map[string]any{"pass": pass})
	}
	return m.record(ctx, journal.Entry{
		Pass:    pass,
		Action:  journal.ActionRewriteRule,
		Target:  rule,
		Details: map[string]any{"diff": c.Diff()},
	})
}

func (m *Remediator) record(ctx context.Context, e journal.Entry) error {
	if m.journal == nil {
		return nil
	}
	e.DryRun = m.plan
	if err := m.journal.Record(ctx, e); err != nil {
		return fmt.Errorf("journal: %w", err)
	}
	return nil
}

func indentXML(v any) string {
	out, err := xml.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("<!-- %v -->", err)
	}
	return string(out) + "\n"
}
