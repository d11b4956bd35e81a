// Package ingest turns Check Point JSON export records into registry
// objects. Records are dispatched on their type tag; unknown tags are
// skipped. After all records are registered the registry is resolved.
package ingest

import (
	"errors"
	"fmt"

	"grimm.is/cpmigrate/internal/logging"
	"grimm.is/cpmigrate/internal/metrics"
	"grimm.is/cpmigrate/internal/objects"
	"grimm.is/cpmigrate/internal/registry"
)

// Result summarizes one ingest.
type Result struct {
	Summary     registry.Summary
	Skipped     int
	SkippedTags map[string]int
	// IPv6Only names the address records skipped for carrying no IPv4
	// shape. They are included in Skipped.
	IPv6Only    []string
	Diagnostics *registry.Diagnostics
}

// Pipeline feeds records into a registry.
type Pipeline struct {
	reg     *registry.Registry
	logger  *logging.Logger
	metrics *metrics.Registry
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the pipeline logger.
func WithLogger(l *logging.Logger) Option {
	return func(p *Pipeline) {
		p.logger = l
	}
}

// WithMetrics sets the metrics registry counters are recorded in.
func WithMetrics(m *metrics.Registry) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// NewPipeline creates a pipeline writing into reg.
func NewPipeline(reg *registry.Registry, opts ...Option) *Pipeline {
	p := &Pipeline{
		reg:     reg,
		logger:  logging.Default(),
		metrics: metrics.Get(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.WithComponent("ingest")
	return p
}

// Registry returns the registry the pipeline writes into.
func (p *Pipeline) Registry() *registry.Registry { return p.reg }

// Ingest converts and registers every record, then resolves group
// members. It must be given the complete export: the registry cannot take
// more records once resolved.
func (p *Pipeline) Ingest(records []*objects.Attributes) (*Result, error) {
	res := &Result{SkippedTags: make(map[string]int)}

	for i, rec := range records {
		rt, objs, err := build(rec)
		if errors.Is(err, objects.ErrIPv6Only) {
			name := rec.String("name")
			if name == "" {
				name = rec.String("uid")
			}
			res.Skipped++
			res.IPv6Only = append(res.IPv6Only, name)
			p.metrics.RecordsSkipped.WithLabelValues(rt.String()).Inc()
			p.logger.Info("skipping IPv6-only address", "name", name, "uid", rec.String("uid"))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		if rt == TypeUnknown {
			tag := rec.String("type")
			res.Skipped++
			res.SkippedTags[tag]++
			p.metrics.RecordsSkipped.WithLabelValues(tag).Inc()
			p.logger.Debug("skipping record", "type", tag, "uid", rec.String("uid"))
			continue
		}
		if err := p.reg.Register(objs...); err != nil {
			return nil, fmt.Errorf("register record %d: %w", i, err)
		}
		for _, o := range objs {
			p.metrics.ObjectsIngested.WithLabelValues(o.Kind().String()).Inc()
		}
	}

	diag, err := p.reg.Resolve()
	if err != nil {
		return nil, err
	}
	p.metrics.UnresolvedMembers.Add(float64(len(diag.Unresolved)))

	res.Diagnostics = diag
	res.Summary = p.reg.Summary()
	p.logger.Info(res.Summary.String(), "skipped", res.Skipped, "unresolved", len(diag.Unresolved))
	return res, nil
}

// IngestGroupRanges folds the groups of a show-groups show-as-ranges
// document into the resolved registry. Objects without a ranges field are
// ignored. A group whose name is already known is merged into the existing
// group; otherwise it is added as a new group.
func (p *Pipeline) IngestGroupRanges(doc []*objects.Attributes) ([]*objects.Group, error) {
	if err := p.reg.RequireResolved(); err != nil {
		return nil, fmt.Errorf("group ranges: %w", err)
	}

	var groups []*objects.Group
	for _, rec := range doc {
		if !rec.Has("ranges") {
			continue
		}
		g, err := objects.NewGroup(rec)
		if err != nil {
			return nil, err
		}
		p.metrics.RangeBlocks.Add(float64(len(g.Members())))

		held, err := p.reg.AddRangeGroup(g)
		if err != nil {
			return nil, err
		}
		if held != g {
			p.logger.Info("merged range group into existing group", "group", g.Name(), "added", len(g.Members()))
		}
		groups = append(groups, g)
	}

	p.logger.Info(p.reg.Summary().String(), "range_groups", len(groups))
	return groups, nil
}
