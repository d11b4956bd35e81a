package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// LoadFile loads a profile (HCL or JSON), fills in defaults and validates
// it.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg *Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		cfg, err = LoadJSON(data)
	default:
		cfg, err = LoadHCL(data, path, os.Environ())
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadHCL decodes an HCL profile. environ ("KEY=value" pairs) is exposed
// to expressions as the env object.
func LoadHCL(data []byte, filename string, environ []string) (*Config, error) {
	var cfg Config
	if err := hclsimple.Decode(hclFilename(filename), data, evalContext(environ), &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return finish(&cfg)
}

// LoadJSON decodes a JSON profile.
func LoadJSON(data []byte) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode JSON config: %w", err)
	}
	return finish(&cfg)
}

func finish(cfg *Config) (*Config, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// hclsimple picks the syntax from the extension.
func hclFilename(name string) string {
	if strings.EqualFold(filepath.Ext(name), ".hcl") {
		return name
	}
	return name + ".hcl"
}

func evalContext(environ []string) *hcl.EvalContext {
	vars := make(map[string]cty.Value, len(environ))
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || !hclIdentifier(k) {
			continue
		}
		vars[k] = cty.StringVal(v)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"env": cty.ObjectVal(vars),
		},
		Functions: map[string]function.Function{
			"lookup":    stdlib.LookupFunc,
			"coalesce":  stdlib.CoalesceFunc,
			"lower":     stdlib.LowerFunc,
			"upper":     stdlib.UpperFunc,
			"trimspace": stdlib.TrimSpaceFunc,
		},
	}
}

// hclIdentifier reports whether s can be used as env.<s>.
func hclIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && (r == '-' || (r >= '0' && r <= '9')):
		default:
			return false
		}
	}
	return true
}

// EncodeHCL renders cfg as an HCL profile.
func EncodeHCL(cfg *Config) []byte {
	f := hclwrite.NewEmptyFile()
	root := f.Body()

	dev := root.AppendNewBlock("device", nil).Body()
	setString(dev, "address", cfg.Device.Address)
	setString(dev, "username", cfg.Device.Username)
	setString(dev, "password", cfg.Device.Password)
	setString(dev, "api_key", cfg.Device.APIKey)
	setString(dev, "vsys", cfg.Device.Vsys)
	setString(dev, "fingerprint", cfg.Device.Fingerprint)
	setString(dev, "timeout", cfg.Device.Timeout)
	root.AppendNewline()

	exp := root.AppendNewBlock("export", nil).Body()
	setString(exp, "address_xpath", cfg.Export.AddressXPath)
	setString(exp, "group_xpath", cfg.Export.AddressGroupXPath)
	setString(exp, "service_xpath", cfg.Export.ServiceXPath)
	exp.SetAttributeValue("export_services", cty.BoolVal(cfg.Export.Services))
	setString(exp, "template_dir", cfg.Export.TemplateDir)
	root.AppendNewline()

	j := root.AppendNewBlock("journal", nil).Body()
	j.SetAttributeValue("enabled", cty.BoolVal(cfg.Journal.Enabled))
	setString(j, "path", cfg.Journal.Path)
	root.AppendNewline()

	if cfg.Metrics.Textfile != "" {
		m := root.AppendNewBlock("metrics", nil).Body()
		setString(m, "textfile", cfg.Metrics.Textfile)
		root.AppendNewline()
	}

	l := root.AppendNewBlock("log", nil).Body()
	setString(l, "level", cfg.Log.Level)
	l.SetAttributeValue("json", cty.BoolVal(cfg.Log.JSON))

	return hclwrite.Format(f.Bytes())
}

func setString(body *hclwrite.Body, name, value string) {
	if value == "" {
		return
	}
	body.SetAttributeValue(name, cty.StringVal(value))
}
