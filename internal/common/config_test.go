package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validJSON = `{
  "log": {"level": "debug", "format": "text"},
  "database": {"dsn": "postgres://crm@db:5432/crm", "dial_timeout": "3s"},
  "sftp": {"host": "sftp.example.com", "username": "ovs", "password": "secret"},
  "remote_paths": {"incoming": "/out", "downloaded": "/out/done"},
  "local_paths": {"intake": "data/intake", "processed": "/srv/processed", "report": "data/report"},
  "rpc": {"url": "https://crm.example.com/rpc", "timeout": "15s"}
}`

const validYAML = `
database:
  dsn: postgres://crm@db:5432/crm
sftp:
  host: sftp.example.com
  port: 2222
  username: ovs
  private_key: keys/id_ed25519
remote_paths:
  incoming: /out
  downloaded: /out/done
local_paths:
  intake: intake
  processed: processed
rpc:
  url: http://crm.internal/rpc
  method: RPC.UpdateIBAN
document:
  namespace: urn:example:ovs
`

func writeSettings(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestLoadConfig_JSON(t *testing.T) {
	p := writeSettings(t, "settings.json", validJSON)
	base := filepath.Dir(p)

	cfg, err := LoadConfig(p)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, filepath.Join(base, "log"), cfg.Log.Dir)
	assert.Equal(t, 1, cfg.Log.MaxSizeMB)
	assert.Equal(t, 10, cfg.Log.MaxBackups)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "crm", cfg.Database.Schema)
	assert.Equal(t, 3*time.Second, cfg.Database.DialTimeout.Std())

	assert.Equal(t, "sftp.example.com:22", cfg.SFTPAddr())
	assert.Equal(t, 30*time.Second, cfg.SFTP.Timeout.Std())

	assert.Equal(t, filepath.Join(base, "data", "intake"), cfg.LocalPaths.Intake)
	assert.Equal(t, "/srv/processed", cfg.LocalPaths.Processed)
	assert.Equal(t, filepath.Join(base, "data", "report"), cfg.LocalPaths.Report)

	assert.Equal(t, "RPC.CreateIBAN", cfg.RPC.Method)
	assert.Equal(t, 15*time.Second, cfg.RPC.Timeout.Std())
	assert.Equal(t, "http://www.ing.com/", cfg.Document.Namespace)

	assert.Equal(t, []string{
		cfg.LocalPaths.Intake,
		cfg.LocalPaths.Processed,
		cfg.LocalPaths.Report,
		cfg.Log.Dir,
	}, cfg.LocalDirs())
}

func TestLoadConfig_YAML(t *testing.T) {
	p := writeSettings(t, "settings.yaml", validYAML)
	base := filepath.Dir(p)

	cfg, err := LoadConfig(p)
	require.NoError(t, err)

	assert.Equal(t, "sftp.example.com:2222", cfg.SFTPAddr())
	assert.Equal(t, filepath.Join(base, "keys", "id_ed25519"), cfg.SFTP.PrivateKey)
	assert.Equal(t, "RPC.UpdateIBAN", cfg.RPC.Method)
	assert.Equal(t, "urn:example:ovs", cfg.Document.Namespace)
	assert.Empty(t, cfg.LocalPaths.Report)
	assert.NotContains(t, cfg.LocalDirs(), "")
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("IBANSYNC_DB_DSN", "postgres://override@db/crm")
	t.Setenv("IBANSYNC_SFTP_USERNAME", "envuser")
	t.Setenv("IBANSYNC_SFTP_PASSWORD", "envpass")
	t.Setenv("IBANSYNC_RPC_URL", "https://other.example.com/rpc")
	t.Setenv("IBANSYNC_LOG_LEVEL", "WARN")

	cfg, err := LoadConfig(writeSettings(t, "settings.json", validJSON))
	require.NoError(t, err)

	assert.Equal(t, "postgres://override@db/crm", cfg.Database.DSN)
	assert.Equal(t, "envuser", cfg.SFTP.Username)
	assert.Equal(t, "envpass", cfg.SFTP.Password)
	assert.Equal(t, "https://other.example.com/rpc", cfg.RPC.URL)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{name: "malformed json", file: "settings.json", content: `{"database":`},
		{name: "malformed yaml", file: "settings.yml", content: "database: [unclosed"},
		{name: "unknown key", file: "settings.json", content: `{"database":{},"sftp":{},"remote_paths":{"incoming":"/a","downloaded":"/b"},"local_paths":{"intake":"i","processed":"p"},"rpc":{},"extra":1}`},
		{name: "missing section", file: "settings.json", content: `{"database":{},"sftp":{},"local_paths":{"intake":"i","processed":"p"},"rpc":{}}`},
		{name: "bad duration", file: "settings.json", content: `{"database":{"dial_timeout":"soon"},"sftp":{},"remote_paths":{"incoming":"/a","downloaded":"/b"},"local_paths":{"intake":"i","processed":"p"},"rpc":{}}`},
		{name: "port out of range", file: "settings.json", content: `{"database":{},"sftp":{"port":70000},"remote_paths":{"incoming":"/a","downloaded":"/b"},"local_paths":{"intake":"i","processed":"p"},"rpc":{}}`},
		{name: "fails validation", file: "settings.json", content: `{"database":{},"sftp":{},"remote_paths":{"incoming":"/a","downloaded":"/b"},"local_paths":{"intake":"i","processed":"p"},"rpc":{}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeSettings(t, tt.file, tt.content))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrConfig)
			assert.Equal(t, CodeConfig, KindOf(err))
		})
	}

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json"))
		assert.ErrorIs(t, err, ErrConfig)
	})
}

func validConfig() *Config {
	cfg := defaultConfig()
	cfg.Database.DSN = "postgres://crm@db/crm"
	cfg.SFTP.Host = "sftp.example.com"
	cfg.SFTP.Username = "ovs"
	cfg.SFTP.Password = "secret"
	cfg.RemotePaths = RemotePathsConfig{Incoming: "/out", Downloaded: "/out/done"}
	cfg.LocalPaths = LocalPathsConfig{Intake: "/srv/intake", Processed: "/srv/processed"}
	cfg.RPC.URL = "https://crm.example.com/rpc"
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
		field  string
	}{
		{name: "no credentials", mutate: func(c *Config) { c.SFTP.Password = "" }, field: "sftp.password"},
		{name: "same remote dirs", mutate: func(c *Config) { c.RemotePaths.Downloaded = "/out" }, field: "remote_paths.downloaded"},
		{name: "same local dirs", mutate: func(c *Config) { c.LocalPaths.Processed = "/srv/intake/" }, field: "local_paths.processed"},
		{name: "relative rpc url", mutate: func(c *Config) { c.RPC.URL = "crm/rpc" }, field: "rpc.url"},
		{name: "unknown driver", mutate: func(c *Config) { c.Database.Driver = "mysql" }, field: "database.driver"},
		{name: "empty dsn", mutate: func(c *Config) { c.Database.DSN = " " }, field: "database.dsn"},
		{name: "bad port", mutate: func(c *Config) { c.SFTP.Port = 0 }, field: "sftp.port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			err := c.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrConfig)
			assert.Contains(t, err.Error(), tt.field)
		})
	}

	t.Run("private key alone is enough", func(t *testing.T) {
		c := validConfig()
		c.SFTP.Password = ""
		c.SFTP.PrivateKey = "/keys/id"
		assert.NoError(t, c.Validate())
	})
}

func TestDuration_RoundTrip(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalJSON([]byte(`"1m30s"`)))
	assert.Equal(t, 90*time.Second, d.Std())

	b, err := d.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"1m30s"`, string(b))

	assert.Error(t, d.UnmarshalJSON([]byte(`90`)))
}
