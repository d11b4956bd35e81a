package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"

	"grimm.is/cpmigrate/internal/config"
	"grimm.is/cpmigrate/internal/export"
	"grimm.is/cpmigrate/internal/journal"
)

// RunMigrate ingests the export and creates the address, address group
// and (if enabled) service objects on the device. In dry-run mode the
// rendered batches are printed instead and no device is contacted.
func RunMigrate(ctx context.Context, o *Options, dryRun, showPayload bool) error {
	cfg, err := loadProfile(o)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	reg, res, err := loadRegistry(o, logger)
	if err != nil {
		return err
	}
	w := o.out()
	printSummary(w, res)

	renderer, err := newRenderer(cfg)
	if err != nil {
		return err
	}

	var submitter export.Submitter
	if !dryRun {
		client, err := connect(ctx, o, cfg, logger)
		if err != nil {
			return err
		}
		submitter = newDevice(client, renderer, cfg)
	}

	store, err := openJournal(cfg)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	publisher := export.NewPublisher(submitter, renderer, exportOptions(cfg, dryRun),
		export.WithLogger(logger),
		export.WithMetrics(o.metrics()),
	)
	batches, err := publisher.Publish(ctx, reg)
	writeTextfile(o, cfg, logger)
	if err != nil {
		return err
	}

	if store != nil {
		for _, b := range batches {
			e := journal.Entry{
				Action:  journal.ActionSubmitBatch,
				Target:  b.XPath,
				Details: map[string]any{"count": b.Count, "template": b.Template},
				DryRun:  dryRun,
			}
			if err := store.Record(ctx, e); err != nil {
				return fmt.Errorf("journal: %w", err)
			}
		}
	}

	Printer.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	Printer.Fprintln(tw, "XPATH\tOBJECTS\tSTATUS")
	status := "submitted"
	if dryRun {
		status = "dry run"
	}
	for _, b := range batches {
		Printer.Fprintf(tw, "%s\t%d\t%s\n", b.XPath, b.Count, status)
	}
	tw.Flush()

	if showPayload {
		for _, b := range batches {
			Printer.Fprintf(w, "\n# %s\n%s\n", b.XPath, b.Payload)
		}
	}
	return nil
}

func exportOptions(cfg *config.Config, dryRun bool) export.Options {
	return export.Options{
		AddressXPath:      cfg.Export.AddressXPath,
		AddressGroupXPath: cfg.Export.AddressGroupXPath,
		ServiceXPath:      cfg.Export.ServiceXPath,
		Services:          cfg.Export.Services,
		DryRun:            dryRun,
	}
}
