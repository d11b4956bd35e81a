package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"

	"grimm.is/cpmigrate/internal/remediate"
	"grimm.is/cpmigrate/internal/tui"
)

// RunRemediate rewrites the device's NAT and security rules so references
// to NAT-carrying addresses point at synthesized NAT_ addresses. With plan
// set the rulebases are read but nothing is written, and the rule diffs are
// printed.
func RunRemediate(ctx context.Context, o *Options, plan bool) error {
	cfg, err := loadProfile(o)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	reg, _, err := loadRegistry(o, logger)
	if err != nil {
		return err
	}

	renderer, err := newRenderer(cfg)
	if err != nil {
		return err
	}
	client, err := connect(ctx, o, cfg, logger)
	if err != nil {
		return err
	}

	opts := []remediate.Option{
		remediate.WithLogger(logger),
		remediate.WithMetrics(o.metrics()),
		remediate.WithPlan(plan),
	}
	store, err := openJournal(cfg)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
		opts = append(opts, remediate.WithJournal(store))
	}

	run := remediate.NewRun()
	err = remediate.New(reg, newDevice(client, renderer, cfg), opts...).Remediate(ctx, run)
	writeTextfile(o, cfg, logger)
	printRun(o, run, plan)
	if err != nil {
		return fmt.Errorf("remediation stopped: %w", err)
	}
	return nil
}

// printRun prints the synthesized addresses and rewritten rules. Partial
// runs are printed too so the operator sees what was already changed.
func printRun(o *Options, run *remediate.Run, plan bool) {
	w := o.out()

	Printer.Fprintln(w, tui.Heading("Synthesized addresses", len(run.Synthesized())))
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	Printer.Fprintln(tw, "NAME\tADDRESS")
	for _, a := range run.Synthesized() {
		Printer.Fprintf(tw, "%s\t%s\n", a.Name(), a.IPv4)
	}
	tw.Flush()

	Printer.Fprintln(w)
	Printer.Fprintln(w, tui.Heading("Rewritten rules", len(run.Changes)))
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	Printer.Fprintln(tw, "PASS\tRULE")
	for _, c := range run.Changes {
		Printer.Fprintf(tw, "%s\t%s\n", c.Pass, c.Rule)
	}
	tw.Flush()

	if !plan {
		return
	}
	for _, c := range run.Changes {
		Printer.Fprintln(w)
		Printer.Fprint(w, tui.ColorDiff(c.Diff()))
	}
}
