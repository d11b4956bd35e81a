package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"grimm.is/cpmigrate/internal/brand"
	"grimm.is/cpmigrate/internal/config"
	"grimm.is/cpmigrate/internal/ingest"
	"grimm.is/cpmigrate/internal/objects"
	"grimm.is/cpmigrate/internal/registry"
	"grimm.is/cpmigrate/internal/tui"
	"grimm.is/cpmigrate/internal/validation"
)

// RunCheck parses the export, resolves it and prints a summary without
// contacting a device. With showProfile the effective profile is printed
// too, secrets masked.
func RunCheck(o *Options, showProfile bool) error {
	if o.ExportFile == "" {
		return fmt.Errorf("usage: %s check [-profile] [-group-ranges <file>] <export.json>\nExample: %s check export.json", brand.BinaryName, brand.BinaryName)
	}

	cfg, err := loadProfile(o)
	if err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}
	logger := newLogger(cfg)

	reg, res, err := loadRegistry(o, logger)
	if err != nil {
		return err
	}

	w := o.out()
	Printer.Fprintf(w, "Export parsed: %s\n", o.ExportFile)
	printSummary(w, res)
	printInvalidNames(w, reg)

	if showProfile {
		Printer.Fprintln(w)
		Printer.Fprintln(w, "Effective profile:")
		if _, err := w.Write(config.EncodeHCL(cfg.Redacted())); err != nil {
			return err
		}
	}
	return nil
}

// printInvalidNames lists objects the device would reject by name.
func printInvalidNames(out io.Writer, reg *registry.Registry) {
	var names []objects.Object
	for _, a := range reg.Addresses() {
		names = append(names, a)
	}
	for _, g := range reg.Groups() {
		names = append(names, g)
	}
	for _, s := range reg.Services() {
		names = append(names, s)
	}

	var bad [][2]string
	for _, o := range names {
		if err := validation.ValidateObjectName(o.Name()); err != nil {
			bad = append(bad, [2]string{o.Name(), err.Error()})
		}
	}
	if len(bad) == 0 {
		return
	}

	Printer.Fprintln(out)
	Printer.Fprintln(out, tui.StyleStatusWarn.Render(Printer.Sprintf("%d object names will be rejected by PAN-OS", len(bad))))
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	Printer.Fprintln(w, "NAME\tPROBLEM")
	for _, b := range bad {
		Printer.Fprintf(w, "%s\t%s\n", validation.SanitizeString(b[0]), b[1])
	}
	w.Flush()
}

// printSummary prints the object counts of an ingest.
func printSummary(out io.Writer, res *ingest.Result) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	Printer.Fprintln(w, "KIND\tCOUNT")
	Printer.Fprintf(w, "addresses\t%d\n", res.Summary.Addresses)
	Printer.Fprintf(w, "groups\t%d\n", res.Summary.Groups)
	Printer.Fprintf(w, "services\t%d\n", res.Summary.Services)
	Printer.Fprintf(w, "nat rules\t%d\n", res.Summary.NATRules)
	Printer.Fprintf(w, "skipped records\t%d\n", res.Skipped)
	Printer.Fprintf(w, "ipv6-only records\t%d\n", len(res.IPv6Only))
	Printer.Fprintf(w, "unresolved members\t%d\n", len(res.Diagnostics.Unresolved))
	w.Flush()

	if len(res.Diagnostics.Unresolved) == 0 {
		return
	}
	Printer.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	Printer.Fprintln(w, "GROUP\tUNRESOLVED MEMBER")
	for _, u := range res.Diagnostics.Unresolved {
		Printer.Fprintf(w, "%s\t%s\n", u.Group, u.MemberID)
	}
	w.Flush()
}
