// Package export renders resolved registry objects as PAN-OS XML and
// submits them in batches, one set call per object kind.
package export

import (
	"context"
	"fmt"
	"strings"

	"grimm.is/cpmigrate/internal/logging"
	"grimm.is/cpmigrate/internal/metrics"
	"grimm.is/cpmigrate/internal/objects"
	"grimm.is/cpmigrate/internal/registry"
)

// Default xpaths for shared objects.
const (
	AddressXPath      = "/config/shared/address"
	AddressGroupXPath = "/config/shared/address-group"
	ServiceXPath      = "/config/shared/service"
)

// Dedup keeps one object per name. The last object with a name wins, and
// names keep the order in which they were first seen.
func Dedup[T objects.Object](objs []T) []T {
	index := make(map[string]int, len(objs))
	out := make([]T, 0, len(objs))
	for _, o := range objs {
		if i, ok := index[o.Name()]; ok {
			out[i] = o
			continue
		}
		index[o.Name()] = len(out)
		out = append(out, o)
	}
	return out
}

// AddressGroups returns the groups exportable as address groups: those
// whose dominant kind is Address or Group and that have members.
func AddressGroups(groups []*objects.Group) []*objects.Group {
	var out []*objects.Group
	for _, g := range groups {
		if len(g.Members()) == 0 {
			continue
		}
		switch g.DominantKind() {
		case objects.KindAddress, objects.KindGroup:
			out = append(out, g)
		}
	}
	return out
}

// exportableService reports whether a service maps onto a PAN-OS service
// entry, which only knows tcp, udp and sctp with a port.
func exportableService(s *objects.Service) bool {
	switch s.Protocol {
	case "tcp", "udp", "sctp":
		return s.Port != ""
	}
	return false
}

// Submitter sends a batch of serialized elements to a device xpath.
type Submitter interface {
	Submit(ctx context.Context, xpath, elements string) error
}

// Batch is one set call.
type Batch struct {
	XPath    string
	Template string
	// Count is the number of deduplicated objects in Payload.
	Count   int
	Payload string
}

// Options selects what Publish submits and where.
type Options struct {
	AddressXPath      string
	AddressGroupXPath string
	ServiceXPath      string
	// Services enables the service batch.
	Services bool
	// DryRun renders batches without submitting them.
	DryRun bool
}

// DefaultOptions returns the shared xpaths with services disabled.
func DefaultOptions() Options {
	return Options{
		AddressXPath:      AddressXPath,
		AddressGroupXPath: AddressGroupXPath,
		ServiceXPath:      ServiceXPath,
	}
}

// Publisher renders and submits registry contents.
type Publisher struct {
	submitter Submitter
	renderer  Renderer
	opts      Options
	logger    *logging.Logger
	metrics   *metrics.Registry
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithLogger sets the publisher logger.
func WithLogger(l *logging.Logger) PublisherOption {
	return func(p *Publisher) {
		p.logger = l
	}
}

// WithMetrics sets the metrics registry.
func WithMetrics(m *metrics.Registry) PublisherOption {
	return func(p *Publisher) {
		p.metrics = m
	}
}

// NewPublisher creates a publisher. submitter may be nil when opts.DryRun
// is set.
func NewPublisher(submitter Submitter, renderer Renderer, opts Options, popts ...PublisherOption) *Publisher {
	def := DefaultOptions()
	if opts.AddressXPath == "" {
		opts.AddressXPath = def.AddressXPath
	}
	if opts.AddressGroupXPath == "" {
		opts.AddressGroupXPath = def.AddressGroupXPath
	}
	if opts.ServiceXPath == "" {
		opts.ServiceXPath = def.ServiceXPath
	}
	p := &Publisher{
		submitter: submitter,
		renderer:  renderer,
		opts:      opts,
		logger:    logging.Default(),
		metrics:   metrics.Get(),
	}
	for _, o := range popts {
		o(p)
	}
	p.logger = p.logger.WithComponent("export")
	return p
}

// Batches renders the address, address group and (when enabled) service
// batches of a resolved registry. Empty batches are omitted.
func (p *Publisher) Batches(reg *registry.Registry) ([]Batch, error) {
	if err := reg.RequireResolved(); err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}

	var batches []Batch
	add := func(xpath, tmpl string, objs []objects.Object) error {
		if len(objs) == 0 {
			return nil
		}
		b, err := p.batch(xpath, tmpl, objs)
		if err != nil {
			return err
		}
		batches = append(batches, b)
		return nil
	}

	p.logger.Info("adding address objects", "count", len(reg.Addresses()))
	if err := add(p.opts.AddressXPath, AddressTemplate, toObjects(Dedup(reg.Addresses()))); err != nil {
		return nil, err
	}

	groups := AddressGroups(reg.Groups())
	p.logger.Info("adding group objects", "count", len(groups), "groups", len(reg.Groups()))
	if err := add(p.opts.AddressGroupXPath, AddressGroupTemplate, toObjects(Dedup(groups))); err != nil {
		return nil, err
	}

	if p.opts.Services {
		var svcs []*objects.Service
		for _, s := range reg.Services() {
			if !exportableService(s) {
				p.logger.Debug("skipping service without tcp/udp/sctp port", "service", s.Name(), "protocol", s.Protocol)
				continue
			}
			svcs = append(svcs, s)
		}
		p.logger.Info("adding service objects", "count", len(svcs))
		if err := add(p.opts.ServiceXPath, ServiceTemplate, toObjects(Dedup(svcs))); err != nil {
			return nil, err
		}
	}
	return batches, nil
}

func (p *Publisher) batch(xpath, tmpl string, objs []objects.Object) (Batch, error) {
	var sb strings.Builder
	for _, o := range objs {
		elem, err := p.renderer.Render(o, tmpl)
		if err != nil {
			return Batch{}, err
		}
		sb.WriteString(elem)
	}
	return Batch{XPath: xpath, Template: tmpl, Count: len(objs), Payload: sb.String()}, nil
}

// Publish renders every batch and submits it. In dry-run mode the batches
// are only rendered and returned.
func (p *Publisher) Publish(ctx context.Context, reg *registry.Registry) ([]Batch, error) {
	batches, err := p.Batches(reg)
	if err != nil {
		return nil, err
	}

	for _, b := range batches {
		p.logger.Info(fmt.Sprintf("Adding %d deduped objects", b.Count), "xpath", b.XPath, "dry_run", p.opts.DryRun)
		if p.opts.DryRun {
			continue
		}
		if err := p.submitter.Submit(ctx, b.XPath, b.Payload); err != nil {
			return nil, fmt.Errorf("submit %s: %w", b.XPath, err)
		}
		p.metrics.ObjectsSubmitted.WithLabelValues(b.XPath).Add(float64(b.Count))
	}
	return batches, nil
}

func toObjects[T objects.Object](in []T) []objects.Object {
	out := make([]objects.Object, len(in))
	for i, o := range in {
		out[i] = o
	}
	return out
}
