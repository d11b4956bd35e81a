package export

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"grimm.is/cpmigrate/internal/logging"
	"grimm.is/cpmigrate/internal/metrics"
	"grimm.is/cpmigrate/internal/objects"
	"grimm.is/cpmigrate/internal/registry"
)

type MockSubmitter struct {
	mock.Mock
}

func (m *MockSubmitter) Submit(ctx context.Context, xpath, elements string) error {
	args := m.Called(ctx, xpath, elements)
	return args.Error(0)
}

func mustAttrs(t *testing.T, js string) *objects.Attributes {
	t.Helper()
	a, err := objects.ParseAttributes([]byte(js))
	require.NoError(t, err)
	return a
}

func mustAddress(t *testing.T, js string) *objects.Address {
	t.Helper()
	a, err := objects.NewAddress(mustAttrs(t, js))
	require.NoError(t, err)
	return a
}

func mustGroup(t *testing.T, js string) *objects.Group {
	t.Helper()
	g, err := objects.NewGroup(mustAttrs(t, js))
	require.NoError(t, err)
	return g
}

func mustRenderer(t *testing.T) *TemplateRenderer {
	t.Helper()
	r, err := NewTemplateRenderer("")
	require.NoError(t, err)
	return r
}

// buildRegistry returns a resolved registry with two same-name addresses,
// an address group, a service group and an empty group.
func buildRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.New(logging.Discard())
	require.NoError(t, reg.Register(
		mustAddress(t, `{"uid": "a1", "name": "web", "ipv4-address": "10.0.0.1"}`),
		mustAddress(t, `{"uid": "a2", "name": "lan", "subnet4": "10.1.0.0", "mask-length4": 16}`),
		mustAddress(t, `{"uid": "a3", "name": "web", "ipv4-address": "10.0.0.2"}`),
		objects.NewService(mustAttrs(t, `{"uid": "s1", "name": "https", "type": "service-tcp", "port": "443"}`)),
		objects.NewService(mustAttrs(t, `{"uid": "s2", "name": "icmp-ish", "type": "service-other"}`)),
		mustGroup(t, `{"uid": "g1", "name": "servers", "members": ["a1", "a2"]}`),
		mustGroup(t, `{"uid": "g2", "name": "svcs", "members": ["s1"]}`),
		mustGroup(t, `{"uid": "g3", "name": "empty", "members": []}`),
		mustGroup(t, `{"uid": "g4", "name": "nested", "members": ["g1"]}`),
	))
	_, err := reg.Resolve()
	require.NoError(t, err)
	return reg
}

func names[T objects.Object](objs []T) []string {
	out := make([]string, 0, len(objs))
	for _, o := range objs {
		out = append(out, o.Name())
	}
	return out
}

func TestDedup_LastWinsFirstOrder(t *testing.T) {
	first := objects.NewSyntheticAddress("1", "dup", "10.0.0.1/32", "host")
	other := objects.NewSyntheticAddress("2", "other", "10.0.0.2/32", "host")
	second := objects.NewSyntheticAddress("3", "dup", "10.0.0.3/32", "host")

	out := Dedup([]*objects.Address{first, other, second})
	require.Len(t, out, 2)
	assert.Same(t, second, out[0])
	assert.Same(t, other, out[1])
}

func TestAddressGroups(t *testing.T) {
	reg := buildRegistry(t)
	assert.Equal(t, []string{"servers", "nested"}, names(AddressGroups(reg.Groups())))
}

func TestTemplateRenderer_Builtins(t *testing.T) {
	r := mustRenderer(t)
	reg := buildRegistry(t)

	web, _ := reg.ByName("web")
	out, err := r.Render(web, AddressTemplate)
	require.NoError(t, err)
	assert.Equal(t, `<entry name="web"><ip-netmask>10.0.0.2/32</ip-netmask></entry>`, out)

	servers, _ := reg.ByName("servers")
	out, err = r.Render(servers, AddressGroupTemplate)
	require.NoError(t, err)
	assert.Equal(t, `<entry name="servers"><static><member>web</member><member>lan</member></static></entry>`, out)

	https, _ := reg.ByName("https")
	out, err = r.Render(https, ServiceTemplate)
	require.NoError(t, err)
	assert.Equal(t, `<entry name="https"><protocol><tcp><port>443</port></tcp></protocol></entry>`, out)
}

func TestTemplateRenderer_Escapes(t *testing.T) {
	r := mustRenderer(t)
	a := objects.NewSyntheticAddress("x", `R&D <lab>`, "10.0.0.0/24", "network")
	out, err := r.Render(a, AddressTemplate)
	require.NoError(t, err)
	assert.Equal(t, `<entry name="R&amp;D &lt;lab&gt;"><ip-netmask>10.0.0.0/24</ip-netmask></entry>`, out)
}

func TestTemplateRenderer_Override(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "address.xml"),
		[]byte(`<entry name="{{x .Name}}"><ip-netmask>{{x .IPv4}}</ip-netmask><description>migrated</description></entry>`), 0o644))

	r, err := NewTemplateRenderer(dir)
	require.NoError(t, err)

	out, err := r.Render(objects.NewSyntheticAddress("x", "a", "10.0.0.1/32", "host"), AddressTemplate)
	require.NoError(t, err)
	assert.Contains(t, out, "<description>migrated</description>")

	_, err = r.Render(objects.NewSyntheticAddress("x", "a", "10.0.0.1/32", "host"), "missing.xml")
	assert.Error(t, err)
}

func TestPublisher_Publish(t *testing.T) {
	reg := buildRegistry(t)
	sub := new(MockSubmitter)
	m := metrics.New()

	sub.On("Submit", mock.Anything, AddressXPath,
		`<entry name="web"><ip-netmask>10.0.0.2/32</ip-netmask></entry><entry name="lan"><ip-netmask>10.1.0.0/16</ip-netmask></entry>`).
		Return(nil).Once()
	sub.On("Submit", mock.Anything, AddressGroupXPath,
		`<entry name="servers"><static><member>web</member><member>lan</member></static></entry><entry name="nested"><static><member>servers</member></static></entry>`).
		Return(nil).Once()

	p := NewPublisher(sub, mustRenderer(t), Options{}, WithLogger(logging.Discard()), WithMetrics(m))
	batches, err := p.Publish(context.Background(), reg)
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Equal(t, 2, batches[0].Count)

	sub.AssertExpectations(t)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ObjectsSubmitted.WithLabelValues(AddressXPath)))
}

func TestPublisher_Services(t *testing.T) {
	reg := buildRegistry(t)
	sub := new(MockSubmitter)
	sub.On("Submit", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	p := NewPublisher(sub, mustRenderer(t), Options{Services: true}, WithLogger(logging.Discard()), WithMetrics(metrics.New()))
	batches, err := p.Publish(context.Background(), reg)
	require.NoError(t, err)
	require.Len(t, batches, 3)
	assert.Equal(t, ServiceXPath, batches[2].XPath)
	assert.Equal(t, 1, batches[2].Count)
	sub.AssertNumberOfCalls(t, "Submit", 3)
}

func TestPublisher_DryRun(t *testing.T) {
	reg := buildRegistry(t)
	p := NewPublisher(nil, mustRenderer(t), Options{DryRun: true}, WithLogger(logging.Discard()), WithMetrics(metrics.New()))

	batches, err := p.Publish(context.Background(), reg)
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Contains(t, batches[0].Payload, `<entry name="lan">`)
}

func TestPublisher_SkipsEmptyBatches(t *testing.T) {
	reg := registry.New(logging.Discard())
	_, err := reg.Resolve()
	require.NoError(t, err)

	sub := new(MockSubmitter)
	p := NewPublisher(sub, mustRenderer(t), Options{Services: true}, WithLogger(logging.Discard()), WithMetrics(metrics.New()))
	batches, err := p.Publish(context.Background(), reg)
	require.NoError(t, err)
	assert.Empty(t, batches)
	sub.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything, mock.Anything)
}

func TestPublisher_SubmitError(t *testing.T) {
	reg := buildRegistry(t)
	sub := new(MockSubmitter)
	boom := errors.New("device unreachable")
	sub.On("Submit", mock.Anything, AddressXPath, mock.Anything).Return(boom).Once()

	p := NewPublisher(sub, mustRenderer(t), Options{}, WithLogger(logging.Discard()), WithMetrics(metrics.New()))
	_, err := p.Publish(context.Background(), reg)
	assert.ErrorIs(t, err, boom)
	sub.AssertNumberOfCalls(t, "Submit", 1)
}

func TestPublisher_RequiresResolved(t *testing.T) {
	p := NewPublisher(nil, mustRenderer(t), Options{DryRun: true}, WithLogger(logging.Discard()))
	_, err := p.Publish(context.Background(), registry.New(logging.Discard()))
	assert.ErrorIs(t, err, registry.ErrNotResolved)
}
