package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleProfile = `
device {
  address  = "fw1.example.net:8443"
  username = "admin"
  password = env.CC_TEST_SECRET
  api_key  = lookup(env, "CC_TEST_MISSING", "")
  timeout  = "45s"
}

export {
  export_services = true
  template_dir    = "/etc/cpmigrate/templates"
}

journal {
  enabled = true
  path    = "/var/lib/cpmigrate/journal.db"
}

log {
  level = upper("debug")
}
`

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, DefaultVsys, cfg.Device.Vsys)
	assert.Equal(t, "/config/shared/address", cfg.Export.AddressXPath)
	assert.Equal(t, "/config/shared/address-group", cfg.Export.AddressGroupXPath)
	assert.Equal(t, "/config/shared/service", cfg.Export.ServiceXPath)
	assert.False(t, cfg.Export.Services)
	assert.False(t, cfg.Journal.Enabled)
	assert.Equal(t, "cpmigrate-journal.db", cfg.Journal.Path)
	assert.Equal(t, "info", cfg.Log.Level)

	d, err := cfg.DeviceTimeout()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, d)
	assert.NoError(t, cfg.Validate())
}

func TestLoadHCL(t *testing.T) {
	cfg, err := LoadHCL([]byte(sampleProfile), "profile.hcl", []string{"CC_TEST_SECRET=hunter2", "1BAD=x", "PATH=/bin"})
	require.NoError(t, err)

	assert.Equal(t, "fw1.example.net:8443", cfg.Device.Address)
	assert.Equal(t, "admin", cfg.Device.Username)
	assert.Equal(t, "hunter2", cfg.Device.Password)
	assert.Empty(t, cfg.Device.APIKey)
	assert.Equal(t, DefaultVsys, cfg.Device.Vsys)

	d, err := cfg.DeviceTimeout()
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, d)

	assert.True(t, cfg.Export.Services)
	assert.Equal(t, "/config/shared/address", cfg.Export.AddressXPath)
	assert.True(t, cfg.Journal.Enabled)
	assert.Equal(t, "/var/lib/cpmigrate/journal.db", cfg.Journal.Path)
	assert.Equal(t, "DEBUG", cfg.Log.Level)
	require.NotNil(t, cfg.Metrics)
}

func TestLoadHCL_Errors(t *testing.T) {
	_, err := LoadHCL([]byte(`device { address = }`), "bad.hcl", nil)
	assert.Error(t, err)

	_, err = LoadHCL([]byte(`device { password = env.CC_NOT_SET }`), "p.hcl", nil)
	assert.Error(t, err)

	_, err = LoadHCL([]byte(`device { timeout = "soon" }`), "p.hcl", nil)
	assert.ErrorContains(t, err, "invalid timeout")

	_, err = LoadHCL([]byte(`log { level = "loud" }`), "p.hcl", nil)
	assert.ErrorContains(t, err, "unknown log level")

	_, err = LoadHCL([]byte(`export { address_xpath = "shared/address" }`), "p.hcl", nil)
	assert.ErrorContains(t, err, "xpath must start with /config/")

	_, err = LoadHCL([]byte(`unknown_block {}`), "p.hcl", nil)
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()

	hclPath := filepath.Join(dir, "cpmigrate.hcl")
	require.NoError(t, os.WriteFile(hclPath, []byte(`device { address = "fw2" }`), 0o600))
	cfg, err := LoadFile(hclPath)
	require.NoError(t, err)
	assert.Equal(t, "fw2", cfg.Device.Address)

	jsonPath := filepath.Join(dir, "cpmigrate.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"device": {"address": "fw3", "vsys": "vsys2"}, "log": {"json": true}}`), 0o600))
	cfg, err = LoadFile(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, "fw3", cfg.Device.Address)
	assert.Equal(t, "vsys2", cfg.Device.Vsys)
	assert.True(t, cfg.Log.JSON)
	assert.Equal(t, "info", cfg.Log.Level)

	// profiles without an extension are read as HCL
	plainPath := filepath.Join(dir, "profile")
	require.NoError(t, os.WriteFile(plainPath, []byte(`log { json = true }`), 0o600))
	cfg, err = LoadFile(plainPath)
	require.NoError(t, err)
	assert.True(t, cfg.Log.JSON)

	_, err = LoadFile(filepath.Join(dir, "missing.hcl"))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	cfg.Device.Address = "from-profile"
	cfg.Device.Username = "profile-user"

	env := map[string]string{
		"CC_ADDRESS":  "from-env",
		"CC_PASSWORD": "pw",
		"CC_VSYS":     "vsys3",
	}
	cfg.ApplyEnv(func(k string) string { return env[k] })

	assert.Equal(t, "from-env", cfg.Device.Address)
	assert.Equal(t, "profile-user", cfg.Device.Username)
	assert.Equal(t, "pw", cfg.Device.Password)
	assert.Equal(t, "vsys3", cfg.Device.Vsys)
}

func TestRedacted(t *testing.T) {
	cfg := Default()
	cfg.Device.Password = "secret"
	cfg.Device.APIKey = "key"

	r := cfg.Redacted()
	assert.Equal(t, "********", r.Device.Password)
	assert.Equal(t, "********", r.Device.APIKey)
	assert.Equal(t, "secret", cfg.Device.Password)
}

func TestEncodeHCL_RoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Device.Address = "fw1"
	cfg.Device.Username = "admin"
	cfg.Export.Services = true
	cfg.Metrics.Textfile = "/var/lib/node_exporter/cpmigrate.prom"

	out := EncodeHCL(cfg)
	assert.Contains(t, string(out), `address  = "fw1"`)

	back, err := LoadHCL(out, "roundtrip.hcl", nil)
	require.NoError(t, err)
	assert.Equal(t, cfg, back)
}
