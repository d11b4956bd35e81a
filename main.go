package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"grimm.is/cpmigrate/cmd"
	"grimm.is/cpmigrate/internal/brand"
	"grimm.is/cpmigrate/internal/i18n"
)

var printer = i18n.NewCLIPrinter()

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch os.Args[1] {
	case "migrate":
		fs := flag.NewFlagSet("migrate", flag.ExitOnError)
		opts := commonFlags(fs)
		deviceFlags(fs, opts)
		dryRun := fs.Bool("dry-run", false, "Render the batches without contacting the device")
		fs.BoolVar(dryRun, "n", false, "Dry run (short)")
		payload := fs.Bool("payload", false, "Print the rendered XML of every batch")
		parseWithExport(fs, opts)

		if err := cmd.RunMigrate(ctx, opts, *dryRun, *payload); err != nil {
			printer.Fprintf(os.Stderr, "Migrate failed: %v\n", err)
			os.Exit(1)
		}

	case "remediate":
		fs := flag.NewFlagSet("remediate", flag.ExitOnError)
		opts := commonFlags(fs)
		deviceFlags(fs, opts)
		plan := fs.Bool("plan", false, "Show the rule diffs without changing the device")
		parseWithExport(fs, opts)

		if err := cmd.RunRemediate(ctx, opts, *plan); err != nil {
			printer.Fprintf(os.Stderr, "Remediate failed: %v\n", err)
			os.Exit(1)
		}

	case "check":
		fs := flag.NewFlagSet("check", flag.ExitOnError)
		opts := commonFlags(fs)
		profile := fs.Bool("profile", false, "Print the effective profile (secrets masked)")
		parseWithExport(fs, opts)

		if err := cmd.RunCheck(opts, *profile); err != nil {
			printer.Fprintf(os.Stderr, "Check failed: %v\n", err)
			os.Exit(1)
		}

	case "dump":
		fs := flag.NewFlagSet("dump", flag.ExitOnError)
		opts := commonFlags(fs)
		var d cmd.DumpOptions
		fs.StringVar(&d.Format, "format", cmd.FormatText, "Output format: text, yaml or json")
		fs.StringVar(&d.Name, "name", "", "Print only the object with this name")
		fs.BoolVar(&d.Names, "names", false, "Print every known object name")
		parseWithExport(fs, opts)

		if err := cmd.RunDump(opts, d); err != nil {
			printer.Fprintf(os.Stderr, "Dump failed: %v\n", err)
			os.Exit(1)
		}

	case "journal":
		fs := flag.NewFlagSet("journal", flag.ExitOnError)
		opts := commonFlags(fs)
		fs.StringVar(&opts.JournalPath, "journal", "", "Journal database path")
		var j cmd.JournalOptions
		fs.StringVar(&j.RunID, "run", "", "Only show entries of this run")
		fs.IntVar(&j.Limit, "limit", 0, "Maximum number of entries to show")
		fs.DurationVar(&j.OlderThan, "older-than", 0, "Prune entries older than this duration")
		fs.StringVar(&j.Format, "format", cmd.FormatText, "Output format for show: text or yaml")
		args := os.Args[2:]
		if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
			j.Action, args = args[0], args[1:]
		}
		fs.Parse(args)

		if err := cmd.RunJournal(ctx, opts, j); err != nil {
			printer.Fprintf(os.Stderr, "Journal failed: %v\n", err)
			os.Exit(1)
		}

	case "version":
		printer.Printf("%s version %s (%s)\n", brand.Name, brand.Version, brand.GitCommit)

	case "help", "-h", "--help":
		printUsage()

	default:
		printer.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// commonFlags registers the profile and logging flags.
func commonFlags(fs *flag.FlagSet) *cmd.Options {
	opts := &cmd.Options{}
	fs.StringVar(&opts.ConfigFile, "config", "", "Profile file (default "+brand.DefaultProfilePath()+" if present)")
	fs.StringVar(&opts.ConfigFile, "c", "", "Profile file (short)")
	fs.StringVar(&opts.GroupRanges, "group-ranges", "", `Output of mgmt_cli show groups show-as-ranges "true" --format json`)
	fs.StringVar(&opts.LogLevel, "log-level", "", "Log level: debug, info, warn, error")
	fs.BoolVar(&opts.LogJSON, "log-json", false, "Log as JSON")
	fs.StringVar(&opts.Textfile, "metrics-textfile", "", "Write run metrics to this node_exporter textfile")
	return opts
}

// deviceFlags registers the device connection flags. Each can also be set
// with a CC_<NAME> environment variable, which takes precedence.
func deviceFlags(fs *flag.FlagSet, opts *cmd.Options) {
	fs.StringVar(&opts.Address, "address", "", "Firewall/Panorama address or address:port. Can also use envvar "+brand.EnvVar("ADDRESS"))
	fs.StringVar(&opts.Username, "username", "", "Firewall/Panorama username. Can also use envvar "+brand.EnvVar("USERNAME"))
	fs.StringVar(&opts.APIKey, "api-key", "", "XML API key; skips keygen. Can also use envvar "+brand.EnvVar("API_KEY"))
	fs.StringVar(&opts.Vsys, "vsys", "", "Virtual system holding the rulebases")
	fs.StringVar(&opts.Fingerprint, "fingerprint", "", "Expected SHA-256 fingerprint of the device certificate")
	fs.StringVar(&opts.JournalPath, "journal", "", "Record changes in this journal database")
}

// parseWithExport parses the flags and takes the export file from the
// first positional argument.
func parseWithExport(fs *flag.FlagSet, opts *cmd.Options) {
	fs.Parse(os.Args[2:])
	opts.ExportFile = fs.Arg(0)
}

func printUsage() {
	printer.Printf(`%s - %s

Usage:
  %s <command> [options] <export.json>

Commands:
  migrate    Create address, address group and service objects on the device
             Options: --dry-run (-n), --payload, --group-ranges <file>
  remediate  Rewrite NAT and security rules to use NAT_ translated addresses
             Options: --plan
  check      Parse and resolve the export without contacting a device
             Options: --profile
  dump       Print resolved groups or a single object
             Options: --format text|yaml|json, --name <name>, --names
  journal    Inspect the change journal
             Subcommands: runs, show, prune
  version    Print version

Device options (migrate, remediate):
  --address, --username, --api-key, --vsys, --fingerprint, --journal <db>
  The password is read from %s, the profile, or prompted for.

Examples:
  %s check export.json
  %s migrate -n --payload export.json
  %s migrate --group-ranges ranges.json --address fw1:443 --username admin export.json
  %s remediate --plan export.json
  %s journal show --run <id>
`, brand.Name, brand.Description, brand.BinaryName, brand.EnvVar("PASSWORD"),
		brand.BinaryName, brand.BinaryName, brand.BinaryName, brand.BinaryName, brand.BinaryName)
}
