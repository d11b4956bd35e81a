package remediate

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"grimm.is/cpmigrate/internal/journal"
	"grimm.is/cpmigrate/internal/logging"
	"grimm.is/cpmigrate/internal/metrics"
	"grimm.is/cpmigrate/internal/objects"
	"grimm.is/cpmigrate/internal/panos"
	"grimm.is/cpmigrate/internal/registry"
)

// MockDevice records calls in order. Rulebase results may be a slice or a
// func returning a fresh slice per fetch.
type MockDevice struct {
	mock.Mock
	calls []string
}

func (m *MockDevice) CreateAddress(ctx context.Context, a *objects.Address) error {
	m.calls = append(m.calls, "create "+a.Name())
	return m.Called(ctx, a).Error(0)
}

func (m *MockDevice) NATRules(ctx context.Context) ([]*panos.NATRule, error) {
	args := m.Called(ctx)
	if fn, ok := args.Get(0).(func() []*panos.NATRule); ok {
		return fn(), args.Error(1)
	}
	rules, _ := args.Get(0).([]*panos.NATRule)
	return rules, args.Error(1)
}

func (m *MockDevice) SecurityRules(ctx context.Context) ([]*panos.SecurityRule, error) {
	args := m.Called(ctx)
	rules, _ := args.Get(0).([]*panos.SecurityRule)
	return rules, args.Error(1)
}

func (m *MockDevice) ApplyNATRule(ctx context.Context, r *panos.NATRule) error {
	m.calls = append(m.calls, "apply "+r.Name)
	return m.Called(ctx, r).Error(0)
}

func (m *MockDevice) ApplySecurityRule(ctx context.Context, r *panos.SecurityRule) error {
	m.calls = append(m.calls, "apply "+r.Name)
	return m.Called(ctx, r).Error(0)
}

type memJournal struct {
	entries []journal.Entry
}

func (j *memJournal) Record(_ context.Context, e journal.Entry) error {
	j.entries = append(j.entries, e)
	return nil
}

func mustAddress(t *testing.T, js string) *objects.Address {
	t.Helper()
	rec, err := objects.ParseAttributes([]byte(js))
	require.NoError(t, err)
	a, err := objects.NewAddress(rec)
	require.NoError(t, err)
	return a
}

// natRegistry holds:
//
//	web01   static NAT to 1.2.3.4
//	pool    hide NAT to 5.5.5.5
//	gwhost  hide behind gateway
//	lan     no NAT
func natRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.New(logging.Discard())
	require.NoError(t, reg.Register(
		mustAddress(t, `{"uid": "u1", "name": "web01", "type": "host", "ipv4-address": "10.0.0.10",
			"nat-settings": {"auto-rule": true, "method": "static", "ipv4-address": "1.2.3.4", "install-on": "All"}}`),
		mustAddress(t, `{"uid": "u2", "name": "pool", "type": "host", "ipv4-address": "10.0.0.20",
			"nat-settings": {"auto-rule": true, "method": "hide", "hide-behind": "ip-address", "ipv4-address": "5.5.5.5"}}`),
		mustAddress(t, `{"uid": "u3", "name": "gwhost", "type": "host", "ipv4-address": "10.0.0.30",
			"nat-settings": {"auto-rule": true, "method": "hide", "hide-behind": "gateway"}}`),
		mustAddress(t, `{"uid": "u4", "name": "lan", "type": "network", "subnet4": "10.1.0.0", "mask-length4": 16}`),
	))
	_, err := reg.Resolve()
	require.NoError(t, err)
	return reg
}

func staticRule(name, translated string) *panos.NATRule {
	r := &panos.NATRule{Name: name}
	r.SetStaticTranslatedAddress(translated)
	return r
}

func newRemediator(t *testing.T, reg *registry.Registry, dev Device, opts ...Option) (*Remediator, *metrics.Registry) {
	t.Helper()
	m := metrics.New()
	opts = append([]Option{WithLogger(logging.Discard()), WithMetrics(m)}, opts...)
	return New(reg, dev, opts...), m
}

func TestRemediate_StaticCreatesBeforeApply(t *testing.T) {
	reg := natRegistry(t)
	dev := new(MockDevice)
	fresh := func() []*panos.NATRule { return []*panos.NATRule{staticRule("web-static", "web01")} }

	var applied *panos.NATRule
	dev.On("NATRules", mock.Anything).Return(fresh, nil)
	dev.On("SecurityRules", mock.Anything).Return(nil, nil)
	dev.On("CreateAddress", mock.Anything, mock.MatchedBy(func(a *objects.Address) bool {
		return a.Name() == "NAT_web01" && a.IPv4 == "1.2.3.4/32"
	})).Return(nil)
	dev.On("ApplyNATRule", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		applied = args.Get(1).(*panos.NATRule)
	}).Return(nil)

	rem, m := newRemediator(t, reg, dev)
	run := NewRun()
	require.NoError(t, rem.Remediate(context.Background(), run))

	assert.Equal(t, []string{"create NAT_web01", "apply web-static"}, dev.calls)
	require.NotNil(t, applied)
	assert.Equal(t, "NAT_web01", applied.StaticTranslatedAddress())
	require.Len(t, run.Synthesized(), 1)
	require.Len(t, run.Changes, 1)
	assert.Equal(t, PassStatic, run.Changes[0].Pass)

	// same run again: the rule is rewritten but nothing is created twice
	require.NoError(t, rem.Remediate(context.Background(), run))
	dev.AssertNumberOfCalls(t, "CreateAddress", 1)
	dev.AssertNumberOfCalls(t, "ApplyNATRule", 2)
	assert.Len(t, run.Synthesized(), 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NATObjectsSynthesized))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RulesRewritten.WithLabelValues(PassStatic)))
}

func TestDynamicPass_ReplacesUsableEntries(t *testing.T) {
	reg := natRegistry(t)
	dev := new(MockDevice)
	rule := &panos.NATRule{Name: "outbound"}
	rule.SetTranslatedAddresses([]string{"pool", "lan", "gwhost", "unknown"})
	untouched := &panos.NATRule{Name: "plain"}
	untouched.SetTranslatedAddresses([]string{"lan"})

	dev.On("NATRules", mock.Anything).Return([]*panos.NATRule{rule, untouched}, nil)
	dev.On("CreateAddress", mock.Anything, mock.Anything).Return(nil)
	dev.On("ApplyNATRule", mock.Anything, rule).Return(nil)

	rem, _ := newRemediator(t, reg, dev)
	run := NewRun()
	require.NoError(t, rem.DynamicPass(context.Background(), run))

	assert.Equal(t, []string{"NAT_pool", "lan", "gwhost", "unknown"}, rule.TranslatedAddresses())
	assert.Equal(t, []string{"lan"}, untouched.TranslatedAddresses())
	assert.Equal(t, []string{"create NAT_pool", "apply outbound"}, dev.calls)
	assert.Equal(t, "5.5.5.5/32", run.Synthesized()[0].IPv4)
}

func TestDestinationPass_SharesRunWithStatic(t *testing.T) {
	reg := natRegistry(t)
	dev := new(MockDevice)
	inbound := &panos.NATRule{Name: "inbound", Destination: []string{"web01", "lan"}}
	static := staticRule("web-static", "web01")

	dev.On("NATRules", mock.Anything).Return([]*panos.NATRule{static, inbound}, nil)
	dev.On("CreateAddress", mock.Anything, mock.Anything).Return(nil)
	dev.On("ApplyNATRule", mock.Anything, mock.Anything).Return(nil)

	rem, _ := newRemediator(t, reg, dev)
	run := NewRun()
	ctx := context.Background()
	require.NoError(t, rem.StaticPass(ctx, run))
	require.NoError(t, rem.DestinationPass(ctx, run))

	assert.Equal(t, []string{"NAT_web01", "lan"}, inbound.Destination)
	assert.Equal(t, []string{"create NAT_web01", "apply web-static", "apply inbound"}, dev.calls)
	dev.AssertNumberOfCalls(t, "CreateAddress", 1)
}

func TestSecurityPass(t *testing.T) {
	reg := natRegistry(t)
	dev := new(MockDevice)
	match := &panos.SecurityRule{Name: "allow-web", Source: []string{"any"}, Destination: []string{"web01", "lan"}}
	zoned := &panos.SecurityRule{Name: "trusted", Source: []string{"trust-net"}, Destination: []string{"web01"}}
	gateway := &panos.SecurityRule{Name: "gw-only", Source: []string{"any"}, Destination: []string{"gwhost"}}
	plain := &panos.SecurityRule{Name: "lan", Source: []string{"any"}, Destination: []string{"lan"}}

	dev.On("SecurityRules", mock.Anything).Return([]*panos.SecurityRule{match, zoned, gateway, plain}, nil)
	dev.On("CreateAddress", mock.Anything, mock.Anything).Return(nil)
	dev.On("ApplySecurityRule", mock.Anything, match).Return(nil)

	rem, _ := newRemediator(t, reg, dev)
	require.NoError(t, rem.SecurityPass(context.Background(), NewRun()))

	assert.Equal(t, []string{"NAT_web01", "lan"}, match.Destination)
	assert.Equal(t, []string{"web01"}, zoned.Destination)
	assert.Equal(t, []string{"gwhost"}, gateway.Destination)
	assert.Equal(t, []string{"create NAT_web01", "apply allow-web"}, dev.calls)
}

func TestRemediate_DeviceErrorHalts(t *testing.T) {
	reg := natRegistry(t)
	dev := new(MockDevice)
	rule := &panos.NATRule{Name: "outbound"}
	rule.SetTranslatedAddresses([]string{"pool"})
	boom := errors.New("commit lock held")

	dev.On("NATRules", mock.Anything).Return([]*panos.NATRule{rule}, nil)
	dev.On("CreateAddress", mock.Anything, mock.Anything).Return(boom)

	rem, _ := newRemediator(t, reg, dev)
	err := rem.Remediate(context.Background(), NewRun())
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "dynamic pass")

	dev.AssertNumberOfCalls(t, "NATRules", 1)
	dev.AssertNotCalled(t, "ApplyNATRule", mock.Anything, mock.Anything)
	dev.AssertNotCalled(t, "SecurityRules", mock.Anything)
}

func TestRemediate_FetchErrorHalts(t *testing.T) {
	reg := natRegistry(t)
	dev := new(MockDevice)
	dev.On("NATRules", mock.Anything).Return(nil, errors.New("timeout"))

	rem, _ := newRemediator(t, reg, dev)
	err := rem.Remediate(context.Background(), NewRun())
	require.Error(t, err)
	dev.AssertNumberOfCalls(t, "NATRules", 1)
}

func TestRemediate_Plan(t *testing.T) {
	reg := natRegistry(t)
	dev := new(MockDevice)
	j := &memJournal{}
	dev.On("NATRules", mock.Anything).Return([]*panos.NATRule{staticRule("web-static", "web01")}, nil)
	dev.On("SecurityRules", mock.Anything).Return(nil, nil)

	rem, _ := newRemediator(t, reg, dev, WithPlan(true), WithJournal(j))
	run := NewRun()
	require.NoError(t, rem.Remediate(context.Background(), run))

	dev.AssertNotCalled(t, "CreateAddress", mock.Anything, mock.Anything)
	dev.AssertNotCalled(t, "ApplyNATRule", mock.Anything, mock.Anything)

	require.Len(t, run.Changes, 1)
	diff := run.Changes[0].Diff()
	assert.Contains(t, diff, "--- web-static (device)")
	assert.Contains(t, diff, "-      <translated-address>web01</translated-address>")
	assert.Contains(t, diff, "+      <translated-address>NAT_web01</translated-address>")

	require.Len(t, j.entries, 2)
	assert.Equal(t, journal.ActionCreateAddress, j.entries[0].Action)
	assert.Equal(t, "NAT_web01", j.entries[0].Target)
	assert.Equal(t, journal.ActionRewriteRule, j.entries[1].Action)
	assert.True(t, j.entries[1].DryRun)
	assert.Equal(t, diff, j.entries[1].Details["diff"])
}

func TestRemediate_RequiresResolved(t *testing.T) {
	rem, _ := newRemediator(t, registry.New(logging.Discard()), new(MockDevice))
	err := rem.Remediate(context.Background(), NewRun())
	assert.ErrorIs(t, err, registry.ErrNotResolved)
}
