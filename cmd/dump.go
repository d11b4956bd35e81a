package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"gopkg.in/yaml.v2"

	"grimm.is/cpmigrate/internal/objects"
	"grimm.is/cpmigrate/internal/registry"
	"grimm.is/cpmigrate/internal/tui"
)

// Dump output formats.
const (
	FormatText = "text"
	FormatYAML = "yaml"
	FormatJSON = "json"
)

// DumpOptions selects what RunDump prints.
type DumpOptions struct {
	Format string
	Name   string // print only the object with this name
	Names  bool   // print every known name
}

type dumpMember struct {
	Name string `yaml:"name" json:"name"`
	Kind string `yaml:"kind" json:"kind"`
}

type dumpGroup struct {
	Name    string       `yaml:"name" json:"name"`
	Kind    string       `yaml:"kind" json:"kind"`
	Ranges  bool         `yaml:"from_ranges,omitempty" json:"from_ranges,omitempty"`
	Members []dumpMember `yaml:"members" json:"members"`
}

// RunDump ingests the export and prints the resolved groups, a single
// object or the list of names. No device is contacted.
func RunDump(o *Options, d DumpOptions) error {
	if d.Format == "" {
		d.Format = FormatText
	}
	switch d.Format {
	case FormatText, FormatYAML, FormatJSON:
	default:
		return fmt.Errorf("unknown format %q (want text, yaml or json)", d.Format)
	}

	cfg, err := loadProfile(o)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	reg, _, err := loadRegistry(o, logger)
	if err != nil {
		return err
	}

	switch {
	case d.Name != "":
		return dumpObject(o, reg, d)
	case d.Names:
		for _, n := range reg.NameList() {
			Printer.Fprintln(o.out(), n)
		}
		return nil
	}
	return dumpGroups(o, reg, d.Format)
}

func groupDoc(reg *registry.Registry) []dumpGroup {
	groups := make([]dumpGroup, 0, len(reg.Groups()))
	for _, g := range reg.Groups() {
		dg := dumpGroup{
			Name:    g.Name(),
			Kind:    g.DominantKind().String(),
			Ranges:  g.FromRanges(),
			Members: make([]dumpMember, 0, len(g.Members())),
		}
		for _, m := range g.Members() {
			dg.Members = append(dg.Members, dumpMember{Name: m.Name(), Kind: m.Kind().String()})
		}
		groups = append(groups, dg)
	}
	return groups
}

func dumpGroups(o *Options, reg *registry.Registry, format string) error {
	groups := groupDoc(reg)
	w := o.out()

	switch format {
	case FormatYAML:
		out, err := yaml.Marshal(map[string][]dumpGroup{"groups": groups})
		if err != nil {
			return err
		}
		_, err = w.Write(out)
		return err
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string][]dumpGroup{"groups": groups})
	}

	Printer.Fprintln(w, tui.Heading("Groups", len(groups)))
	for _, g := range groups {
		Printer.Fprintf(w, " %s : %s\n", g.Name, g.Kind)
		tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
		for _, m := range g.Members {
			Printer.Fprintf(tw, "    %s\t%s\n", m.Name, m.Kind)
		}
		tw.Flush()
	}
	return nil
}

func dumpObject(o *Options, reg *registry.Registry, d DumpOptions) error {
	obj, ok := reg.ByName(d.Name)
	if !ok {
		return fmt.Errorf("no object named %q", d.Name)
	}
	w := o.out()
	desc := describe(obj)

	if d.Format == FormatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(jsonValue(desc))
	}

	out, err := yaml.Marshal(desc)
	if err != nil {
		return err
	}
	if d.Format == FormatText {
		Printer.Fprintln(w, tui.StyleTitle.Render(obj.Name()))
	}
	_, err = w.Write(out)
	return err
}

// describe lists the migrated fields of obj followed by the untouched
// vendor attributes.
func describe(obj objects.Object) yaml.MapSlice {
	desc := yaml.MapSlice{
		{Key: "name", Value: obj.Name()},
		{Key: "uid", Value: obj.ID()},
		{Key: "kind", Value: obj.Kind().String()},
	}
	switch t := obj.(type) {
	case *objects.Address:
		desc = append(desc,
			yaml.MapItem{Key: "ipv4", Value: t.IPv4},
			yaml.MapItem{Key: "subtype", Value: t.Subtype})
		if t.NAT != nil {
			desc = append(desc, yaml.MapItem{Key: "nat", Value: yaml.MapSlice{
				{Key: "method", Value: t.NAT.Method},
				{Key: "hide_behind", Value: t.NAT.HideBehind},
				{Key: "ipv4_address", Value: t.NAT.IPv4Address},
				{Key: "usable", Value: t.NAT.Usable()},
			}})
		}
	case *objects.Service:
		desc = append(desc,
			yaml.MapItem{Key: "protocol", Value: t.Protocol},
			yaml.MapItem{Key: "port", Value: t.Port})
	case *objects.Group:
		members := make([]string, 0, len(t.Members()))
		for _, m := range t.Members() {
			members = append(members, m.Name())
		}
		desc = append(desc,
			yaml.MapItem{Key: "dominant_kind", Value: t.DominantKind().String()},
			yaml.MapItem{Key: "members", Value: members})
	case *objects.NATRule:
		desc = append(desc, yaml.MapItem{Key: "method", Value: t.Method()})
	}
	if a := obj.Attrs(); a != nil && a.Len() > 0 {
		desc = append(desc, yaml.MapItem{Key: "attributes", Value: mapSlice(a)})
	}
	return desc
}

// jsonValue turns MapSlices into maps for encoding/json.
func jsonValue(v any) any {
	switch t := v.(type) {
	case yaml.MapSlice:
		m := make(map[string]any, len(t))
		for _, item := range t {
			m[fmt.Sprint(item.Key)] = jsonValue(item.Value)
		}
		return m
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = jsonValue(e)
		}
		return out
	}
	return v
}

// mapSlice converts attributes to a yaml.MapSlice so key order survives.
func mapSlice(a *objects.Attributes) yaml.MapSlice {
	if a == nil {
		return yaml.MapSlice{}
	}
	ms := make(yaml.MapSlice, 0, a.Len())
	for _, k := range a.Keys() {
		v, _ := a.Get(k)
		ms = append(ms, yaml.MapItem{Key: k, Value: yamlValue(v)})
	}
	return ms
}

func yamlValue(v any) any {
	switch t := v.(type) {
	case *objects.Attributes:
		return mapSlice(t)
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = yamlValue(e)
		}
		return out
	}
	return v
}
