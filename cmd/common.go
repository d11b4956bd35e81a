// Package cmd implements the cpmigrate subcommands.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"grimm.is/cpmigrate/internal/brand"
	"grimm.is/cpmigrate/internal/clock"
	"grimm.is/cpmigrate/internal/config"
	"grimm.is/cpmigrate/internal/export"
	"grimm.is/cpmigrate/internal/i18n"
	"grimm.is/cpmigrate/internal/ingest"
	"grimm.is/cpmigrate/internal/journal"
	"grimm.is/cpmigrate/internal/logging"
	"grimm.is/cpmigrate/internal/metrics"
	"grimm.is/cpmigrate/internal/panos"
	"grimm.is/cpmigrate/internal/registry"
	"grimm.is/cpmigrate/internal/tui"
)

// Printer is the global message printer for the CLI
var Printer = i18n.NewCLIPrinter()

// Options are the flags shared by every subcommand.
type Options struct {
	ConfigFile  string // profile path; empty uses the default profile if present
	ExportFile  string // Check Point JSON export
	GroupRanges string // optional show-groups show-as-ranges document

	// Device overrides; environment variables win over these.
	Address     string
	Username    string
	APIKey      string
	Vsys        string
	Fingerprint string

	LogLevel string
	LogJSON  bool

	JournalPath string // enables the journal when set
	Textfile    string // node_exporter textfile path

	Out      io.Writer
	Getenv   func(string) string
	Prompter *tui.Prompter
	Metrics  *metrics.Registry
}

func (o *Options) out() io.Writer {
	if o.Out == nil {
		return os.Stdout
	}
	return o.Out
}

func (o *Options) getenv() func(string) string {
	if o.Getenv == nil {
		return os.Getenv
	}
	return o.Getenv
}

func (o *Options) metrics() *metrics.Registry {
	if o.Metrics == nil {
		return metrics.Get()
	}
	return o.Metrics
}

// loadProfile reads the profile and layers flags, then the environment,
// over it.
func loadProfile(o *Options) (*config.Config, error) {
	path := o.ConfigFile
	if path == "" {
		if p := brand.DefaultProfilePath(); fileExists(p) {
			path = p
		}
	}

	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.LoadFile(path); err != nil {
			return nil, fmt.Errorf("profile %s: %w", path, err)
		}
	}

	setIf(&cfg.Device.Address, o.Address)
	setIf(&cfg.Device.Username, o.Username)
	setIf(&cfg.Device.APIKey, o.APIKey)
	setIf(&cfg.Device.Vsys, o.Vsys)
	setIf(&cfg.Device.Fingerprint, o.Fingerprint)
	setIf(&cfg.Log.Level, o.LogLevel)
	setIf(&cfg.Metrics.Textfile, o.Textfile)
	if o.LogJSON {
		cfg.Log.JSON = true
	}
	if o.JournalPath != "" {
		cfg.Journal.Path = o.JournalPath
		cfg.Journal.Enabled = true
	}

	cfg.ApplyEnv(o.getenv())
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setIf(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// newLogger builds the run logger and makes it the default.
func newLogger(cfg *config.Config) *logging.Logger {
	level, _ := logging.ParseLevel(cfg.Log.Level)
	lc := logging.DefaultConfig()
	lc.Level = level
	lc.JSON = cfg.Log.JSON
	logger := logging.New(lc)
	logging.SetDefault(logger)
	return logger
}

// loadRegistry ingests the export and the optional group ranges document.
func loadRegistry(o *Options, logger *logging.Logger) (*registry.Registry, *ingest.Result, error) {
	if o.ExportFile == "" {
		return nil, nil, fmt.Errorf("no export file given")
	}
	records, err := ingest.LoadRecords(o.ExportFile)
	if err != nil {
		return nil, nil, err
	}

	reg := registry.New(logger)
	p := ingest.NewPipeline(reg, ingest.WithLogger(logger), ingest.WithMetrics(o.metrics()))
	res, err := p.Ingest(records)
	if err != nil {
		return nil, nil, fmt.Errorf("ingest %s: %w", o.ExportFile, err)
	}
	if o.GroupRanges != "" {
		doc, err := ingest.LoadRecords(o.GroupRanges)
		if err != nil {
			return nil, nil, err
		}
		if _, err := p.IngestGroupRanges(doc); err != nil {
			return nil, nil, fmt.Errorf("group ranges %s: %w", o.GroupRanges, err)
		}
		res.Summary = reg.Summary()
	}
	return reg, res, nil
}

// connect returns a client holding an API key, prompting for missing
// credentials and generating a key when none is configured.
func connect(ctx context.Context, o *Options, cfg *config.Config, logger *logging.Logger) (*panos.Client, error) {
	creds := &tui.Credentials{
		Address:  cfg.Device.Address,
		Username: cfg.Device.Username,
		Password: cfg.Device.Password,
	}
	prompter := o.Prompter
	if prompter == nil {
		prompter = tui.NewPrompter()
	}
	if err := prompter.Complete(creds, cfg.Device.APIKey != ""); err != nil {
		return nil, err
	}

	timeout, err := cfg.DeviceTimeout()
	if err != nil {
		return nil, err
	}
	client := panos.NewClient(creds.Address,
		panos.WithAPIKey(cfg.Device.APIKey),
		panos.WithFingerprint(cfg.Device.Fingerprint),
		panos.WithTimeout(timeout),
		panos.WithMetrics(o.metrics()),
	)

	log := logger.WithComponent("device")
	if client.APIKey() == "" {
		if _, err := client.Keygen(ctx, creds.Username, creds.Password); err != nil {
			return nil, fmt.Errorf("keygen: %w", err)
		}
		log.Info("generated API key", "device", creds.Address, "user", creds.Username)
	}
	if client.SeenFingerprint != "" && cfg.Device.Fingerprint == "" {
		log.Info("device certificate not pinned", "fingerprint", client.SeenFingerprint)
	}
	return client, nil
}

// newRenderer returns the template renderer for the profile.
func newRenderer(cfg *config.Config) (*export.TemplateRenderer, error) {
	return export.NewTemplateRenderer(cfg.Export.TemplateDir)
}

// newDevice wraps client for the profile's vsys and address location.
func newDevice(client *panos.Client, renderer panos.Renderer, cfg *config.Config) *panos.Device {
	return panos.NewDevice(client, renderer,
		panos.WithVsys(cfg.Device.Vsys),
		panos.WithAddressXPath(cfg.Export.AddressXPath),
	)
}

// openJournal opens the journal when enabled. A nil store means disabled.
func openJournal(cfg *config.Config) (*journal.Store, error) {
	if !cfg.Journal.Enabled {
		return nil, nil
	}
	return journal.Open(cfg.Journal.Path)
}

// writeTextfile writes run metrics for node_exporter if configured.
func writeTextfile(o *Options, cfg *config.Config, logger *logging.Logger) {
	if cfg.Metrics.Textfile == "" {
		return
	}
	m := o.metrics()
	if err := m.WriteTextfile(cfg.Metrics.Textfile, clock.Now()); err != nil {
		logger.WithComponent("metrics").Warn("failed to write metrics textfile", "path", cfg.Metrics.Textfile, "error", err)
	}
}
