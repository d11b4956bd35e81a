package ingest

import (
	"fmt"

	"grimm.is/cpmigrate/internal/objects"
)

// RecordType is the closed set of Check Point object types the pipeline
// knows how to convert.
type RecordType int

const (
	TypeUnknown RecordType = iota
	TypeHost
	TypeNetwork
	TypeClusterMember
	TypeSimpleGateway
	TypeSimpleCluster
	TypeCheckpointHost
	TypeServiceTCP
	TypeServiceUDP
	TypeServiceSCTP
	TypeServiceOther
	TypeGroup
	TypeServiceGroup
	TypeGroupWithExclusion
	TypeNATRule
	TypeNATSection
)

var recordTypes = map[string]RecordType{
	"host":                 TypeHost,
	"network":              TypeNetwork,
	"cluster-member":       TypeClusterMember,
	"simple-gateway":       TypeSimpleGateway,
	"simple-cluster":       TypeSimpleCluster,
	"checkpoint-host":      TypeCheckpointHost,
	"service-tcp":          TypeServiceTCP,
	"service-udp":          TypeServiceUDP,
	"service-sctp":         TypeServiceSCTP,
	"service-other":        TypeServiceOther,
	"group":                TypeGroup,
	"service-group":        TypeServiceGroup,
	"group-with-exclusion": TypeGroupWithExclusion,
	"nat-rule":             TypeNATRule,
	"nat-section":          TypeNATSection,
}

// ParseRecordType maps a type tag to a RecordType, TypeUnknown for tags
// the pipeline does not convert.
func ParseRecordType(tag string) RecordType {
	return recordTypes[tag]
}

func (t RecordType) String() string {
	for tag, rt := range recordTypes {
		if rt == t {
			return tag
		}
	}
	return "unknown"
}

// constructor names the object family a record type is built into.
type constructor int

const (
	buildNone constructor = iota
	buildAddress
	buildService
	buildGroup
	buildNATRule
	buildNATSection
)

func (t RecordType) constructor() constructor {
	switch t {
	case TypeHost, TypeNetwork, TypeClusterMember, TypeSimpleGateway, TypeSimpleCluster, TypeCheckpointHost:
		return buildAddress
	case TypeServiceTCP, TypeServiceUDP, TypeServiceSCTP, TypeServiceOther:
		return buildService
	case TypeGroup, TypeServiceGroup, TypeGroupWithExclusion:
		return buildGroup
	case TypeNATRule:
		return buildNATRule
	case TypeNATSection:
		return buildNATSection
	}
	return buildNone
}

type handlerFunc func(rec *objects.Attributes) ([]objects.Object, error)

var handlers = map[constructor]handlerFunc{
	buildAddress:    parseAddress,
	buildService:    parseService,
	buildGroup:      parseGroup,
	buildNATRule:    parseNATRule,
	buildNATSection: parseNATSection,
}

func parseAddress(rec *objects.Attributes) ([]objects.Object, error) {
	a, err := objects.NewAddress(rec)
	if err != nil {
		return nil, err
	}
	return []objects.Object{a}, nil
}

func parseService(rec *objects.Attributes) ([]objects.Object, error) {
	return []objects.Object{objects.NewService(rec)}, nil
}

func parseGroup(rec *objects.Attributes) ([]objects.Object, error) {
	g, err := objects.NewGroup(rec)
	if err != nil {
		return nil, err
	}
	return []objects.Object{g}, nil
}

func parseNATRule(rec *objects.Attributes) ([]objects.Object, error) {
	return []objects.Object{objects.NewNATRule(rec)}, nil
}

func parseNATSection(rec *objects.Attributes) ([]objects.Object, error) {
	rules := objects.NATRulesFromSection(rec)
	out := make([]objects.Object, 0, len(rules))
	for _, r := range rules {
		out = append(out, r)
	}
	return out, nil
}

// build converts one record. A nil slice with nil error means the record
// type is not converted.
func build(rec *objects.Attributes) (RecordType, []objects.Object, error) {
	rt := ParseRecordType(rec.String("type"))
	h, ok := handlers[rt.constructor()]
	if !ok {
		return rt, nil, nil
	}
	objs, err := h(rec)
	if err != nil {
		return rt, nil, fmt.Errorf("%s record %s: %w", rt, rec.String("uid"), err)
	}
	return rt, objs, nil
}
