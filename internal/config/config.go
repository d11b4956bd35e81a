// Package config loads the cpmigrate profile: device connection, export
// xpaths, journal, metrics and logging settings.
//
// Profiles are HCL (or JSON). HCL profiles can read the environment through
// the env object:
//
//	device {
//	  address  = "fw1.example.net"
//	  username = "admin"
//	  password = env.CC_PASSWORD
//	}
package config

import (
	"fmt"
	"time"

	"grimm.is/cpmigrate/internal/brand"
	"grimm.is/cpmigrate/internal/logging"
	"grimm.is/cpmigrate/internal/validation"
)

// Config is a complete profile.
type Config struct {
	Device  *Device  `hcl:"device,block" json:"device,omitempty"`
	Export  *Export  `hcl:"export,block" json:"export,omitempty"`
	Journal *Journal `hcl:"journal,block" json:"journal,omitempty"`
	Metrics *Metrics `hcl:"metrics,block" json:"metrics,omitempty"`
	Log     *Log     `hcl:"log,block" json:"log,omitempty"`
}

// Device is the PAN-OS firewall or Panorama to configure.
type Device struct {
	Address     string `hcl:"address,optional" json:"address,omitempty"`
	Username    string `hcl:"username,optional" json:"username,omitempty"`
	Password    string `hcl:"password,optional" json:"password,omitempty"`
	APIKey      string `hcl:"api_key,optional" json:"api_key,omitempty"`
	Vsys        string `hcl:"vsys,optional" json:"vsys,omitempty"`
	Fingerprint string `hcl:"fingerprint,optional" json:"fingerprint,omitempty"` // SHA-256 of the device certificate
	Timeout     string `hcl:"timeout,optional" json:"timeout,omitempty"`         // Go duration, e.g. "30s"
}

// Export controls where objects are created.
type Export struct {
	AddressXPath      string `hcl:"address_xpath,optional" json:"address_xpath,omitempty"`
	AddressGroupXPath string `hcl:"group_xpath,optional" json:"group_xpath,omitempty"`
	ServiceXPath      string `hcl:"service_xpath,optional" json:"service_xpath,omitempty"`
	Services          bool   `hcl:"export_services,optional" json:"export_services,omitempty"`
	TemplateDir       string `hcl:"template_dir,optional" json:"template_dir,omitempty"`
}

// Journal is the SQLite change journal.
type Journal struct {
	Path    string `hcl:"path,optional" json:"path,omitempty"`
	Enabled bool   `hcl:"enabled,optional" json:"enabled,omitempty"`
}

// Metrics configures the node_exporter textfile written after a run.
type Metrics struct {
	Textfile string `hcl:"textfile,optional" json:"textfile,omitempty"`
}

// Log configures the logger.
type Log struct {
	Level string `hcl:"level,optional" json:"level,omitempty"`
	JSON  bool   `hcl:"json,optional" json:"json,omitempty"`
}

const (
	DefaultVsys    = "vsys1"
	DefaultTimeout = "30s"
)

// Default returns a profile with every block present and defaults set.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Device == nil {
		c.Device = &Device{}
	}
	if c.Device.Vsys == "" {
		c.Device.Vsys = DefaultVsys
	}
	if c.Device.Timeout == "" {
		c.Device.Timeout = DefaultTimeout
	}

	if c.Export == nil {
		c.Export = &Export{}
	}
	if c.Export.AddressXPath == "" {
		c.Export.AddressXPath = "/config/shared/address"
	}
	if c.Export.AddressGroupXPath == "" {
		c.Export.AddressGroupXPath = "/config/shared/address-group"
	}
	if c.Export.ServiceXPath == "" {
		c.Export.ServiceXPath = "/config/shared/service"
	}

	if c.Journal == nil {
		c.Journal = &Journal{}
	}
	if c.Journal.Path == "" {
		c.Journal.Path = brand.DefaultJournal
	}

	if c.Metrics == nil {
		c.Metrics = &Metrics{}
	}

	if c.Log == nil {
		c.Log = &Log{}
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate checks values that are parsed later.
func (c *Config) Validate() error {
	if _, err := c.DeviceTimeout(); err != nil {
		return err
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	for _, xp := range []string{c.Export.AddressXPath, c.Export.AddressGroupXPath, c.Export.ServiceXPath} {
		if err := validation.ValidateXPath(xp); err != nil {
			return fmt.Errorf("export: %w", err)
		}
	}
	return nil
}

// DeviceTimeout parses the device timeout.
func (c *Config) DeviceTimeout() (time.Duration, error) {
	d, err := time.ParseDuration(c.Device.Timeout)
	if err != nil {
		return 0, fmt.Errorf("device: invalid timeout %q: %w", c.Device.Timeout, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("device: timeout must be positive, got %s", d)
	}
	return d, nil
}

// Env keys read by ApplyEnv, without the brand prefix.
var envKeys = []string{"ADDRESS", "USERNAME", "PASSWORD", "API_KEY", "VSYS", "FINGERPRINT"}

// ApplyEnv overrides device settings from CC_<KEY> variables. Environment
// values take precedence over the profile and flags.
func (c *Config) ApplyEnv(getenv func(string) string) {
	for _, key := range envKeys {
		v := getenv(brand.EnvVar(key))
		if v == "" {
			continue
		}
		switch key {
		case "ADDRESS":
			c.Device.Address = v
		case "USERNAME":
			c.Device.Username = v
		case "PASSWORD":
			c.Device.Password = v
		case "API_KEY":
			c.Device.APIKey = v
		case "VSYS":
			c.Device.Vsys = v
		case "FINGERPRINT":
			c.Device.Fingerprint = v
		}
	}
}

// Redacted returns a copy with secrets masked, for display.
func (c *Config) Redacted() *Config {
	out := *c
	dev := *c.Device
	if dev.Password != "" {
		dev.Password = "********"
	}
	if dev.APIKey != "" {
		dev.APIKey = "********"
	}
	out.Device = &dev
	return &out
}
