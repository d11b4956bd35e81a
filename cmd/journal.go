package cmd

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v2"

	"grimm.is/cpmigrate/internal/brand"
	"grimm.is/cpmigrate/internal/clock"
	"grimm.is/cpmigrate/internal/journal"
)

// JournalOptions selects the journal subcommand.
type JournalOptions struct {
	Action    string // runs, show or prune
	RunID     string
	Limit     int
	OlderThan time.Duration
	Format    string // text or yaml, for show
}

// RunJournal lists runs, shows a run's entries or prunes old entries of
// the change journal. The journal is read even when recording is disabled
// in the profile.
func RunJournal(ctx context.Context, o *Options, j JournalOptions) error {
	cfg, err := loadProfile(o)
	if err != nil {
		return err
	}
	newLogger(cfg)

	store, err := journal.Open(cfg.Journal.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	w := o.out()
	switch j.Action {
	case "", "runs":
		runs, err := store.Runs(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		Printer.Fprintln(tw, "RUN\tSTARTED\tENTRIES")
		for _, r := range runs {
			Printer.Fprintf(tw, "%s\t%s\t%d\n", r.ID, r.Started.Format(time.RFC3339), r.Entries)
		}
		return tw.Flush()

	case "show":
		entries, err := store.Entries(ctx, j.RunID, j.Limit)
		if err != nil {
			return err
		}
		if j.Format == FormatYAML {
			out, err := yaml.Marshal(entries)
			if err != nil {
				return err
			}
			_, err = w.Write(out)
			return err
		}
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		Printer.Fprintln(tw, "TIME\tPASS\tACTION\tTARGET\tDRY RUN\tDETAILS")
		for _, e := range entries {
			Printer.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\t%s\n",
				e.Timestamp.Format(time.RFC3339), orDash(e.Pass), e.Action, e.Target, e.DryRun, formatDetails(e.Details))
		}
		return tw.Flush()

	case "prune":
		if j.OlderThan <= 0 {
			return fmt.Errorf("prune needs -older-than, e.g. %s journal prune -older-than 720h", brand.BinaryName)
		}
		n, err := store.Prune(ctx, clock.Now().Add(-j.OlderThan))
		if err != nil {
			return err
		}
		Printer.Fprintf(w, "Pruned %d journal entries\n", n)
		return nil
	}
	return fmt.Errorf("unknown journal action %q (want runs, show or prune)", j.Action)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// formatDetails renders details as sorted key=value pairs.
func formatDetails(d map[string]any) string {
	keys := make([]string, 0, len(d))
	for k := range d {
		if k == "diff" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, d[k])
	}
	return strings.Join(parts, " ")
}
