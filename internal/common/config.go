package common

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed settings.schema.json
var settingsSchema []byte

// Config holds all application configuration
type Config struct {
	Log         LogConfig         `json:"log"`
	Database    DatabaseConfig    `json:"database"`
	SFTP        SFTPConfig        `json:"sftp"`
	RemotePaths RemotePathsConfig `json:"remote_paths"`
	LocalPaths  LocalPathsConfig  `json:"local_paths"`
	RPC         RPCConfig         `json:"rpc"`
	Document    DocumentConfig    `json:"document"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level      string `json:"level"`
	Format     string `json:"format"`
	Dir        string `json:"dir"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver      string   `json:"driver"`
	DSN         string   `json:"dsn"`
	Schema      string   `json:"schema"`
	DialTimeout Duration `json:"dial_timeout"`
}

// SFTPConfig holds the remote transfer endpoint configuration
type SFTPConfig struct {
	Host       string   `json:"host"`
	Port       int      `json:"port"`
	Username   string   `json:"username"`
	Password   string   `json:"password"`
	PrivateKey string   `json:"private_key"`
	KnownHosts string   `json:"known_hosts"`
	Timeout    Duration `json:"timeout"`
}

// RemotePathsConfig holds directories on the transfer endpoint
type RemotePathsConfig struct {
	Incoming   string `json:"incoming"`
	Downloaded string `json:"downloaded"`
}

// LocalPathsConfig holds local staging directories
type LocalPathsConfig struct {
	Intake    string `json:"intake"`
	Processed string `json:"processed"`
	Report    string `json:"report"`
}

// RPCConfig holds the update endpoint configuration
type RPCConfig struct {
	URL     string   `json:"url"`
	Method  string   `json:"method"`
	Timeout Duration `json:"timeout"`
}

// DocumentConfig holds notification document settings
type DocumentConfig struct {
	Namespace string `json:"namespace"`
}

// Duration is a time.Duration decoded from strings like "30s".
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func defaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			Dir:        "log",
			MaxSizeMB:  1,
			MaxBackups: 10,
		},
		Database: DatabaseConfig{
			Driver:      "postgres",
			Schema:      "crm",
			DialTimeout: Duration(10 * time.Second),
		},
		SFTP: SFTPConfig{
			Port:    22,
			Timeout: Duration(30 * time.Second),
		},
		RPC: RPCConfig{
			Method: "RPC.CreateIBAN",
		},
		Document: DocumentConfig{
			Namespace: "http://www.ing.com/",
		},
	}
}

// LoadConfig reads the settings document at path, validates it against the
// embedded schema, applies environment overrides and resolves relative local
// paths against the settings file's directory.
func LoadConfig(path string) (*Config, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, NewConfigError("resolve settings path", err)
	}
	raw, err := os.ReadFile(abs)
	if err != nil {
		return nil, NewConfigError("read settings", err)
	}

	doc, err := normalizeDocument(abs, raw)
	if err != nil {
		return nil, NewConfigError("decode settings", err)
	}
	if err := validateAgainstSchema(doc); err != nil {
		return nil, NewConfigError("settings do not match schema", err)
	}

	cfg := defaultConfig()
	if err := json.Unmarshal(doc, cfg); err != nil {
		return nil, NewConfigError("decode settings", err)
	}
	cfg.applyEnv()
	cfg.resolvePaths(filepath.Dir(abs))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// normalizeDocument returns the settings as JSON; YAML input is converted.
func normalizeDocument(path string, raw []byte) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var v any
		if err := yaml.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("yaml: %w", err)
		}
		return json.Marshal(v)
	default:
		return raw, nil
	}
}

func validateAgainstSchema(doc []byte) error {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("settings.schema.json", bytes.NewReader(settingsSchema)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("settings.schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(doc, &v); err != nil {
		return fmt.Errorf("unmarshal settings: %w", err)
	}
	return schema.Validate(v)
}

func (c *Config) applyEnv() {
	c.Database.DSN = getEnv("IBANSYNC_DB_DSN", c.Database.DSN)
	c.SFTP.Username = getEnv("IBANSYNC_SFTP_USERNAME", c.SFTP.Username)
	c.SFTP.Password = getEnv("IBANSYNC_SFTP_PASSWORD", c.SFTP.Password)
	c.RPC.URL = getEnv("IBANSYNC_RPC_URL", c.RPC.URL)
	c.Log.Level = strings.ToLower(getEnv("IBANSYNC_LOG_LEVEL", c.Log.Level))
}

func (c *Config) resolvePaths(base string) {
	for _, p := range []*string{
		&c.LocalPaths.Intake,
		&c.LocalPaths.Processed,
		&c.LocalPaths.Report,
		&c.Log.Dir,
		&c.SFTP.PrivateKey,
		&c.SFTP.KnownHosts,
	} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(base, *p)
		}
	}
}

// LocalDirs lists the local directories that must exist before a run.
func (c *Config) LocalDirs() []string {
	dirs := []string{c.LocalPaths.Intake, c.LocalPaths.Processed}
	if c.LocalPaths.Report != "" {
		dirs = append(dirs, c.LocalPaths.Report)
	}
	if c.Log.Dir != "" {
		dirs = append(dirs, c.Log.Dir)
	}
	return dirs
}

// SFTPAddr returns host:port for the transfer endpoint.
func (c *Config) SFTPAddr() string {
	return fmt.Sprintf("%s:%d", c.SFTP.Host, c.SFTP.Port)
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	v := NewValidator().
		Field("log.level", c.Log.Level, OneOf("debug", "info", "warn", "error")).
		Field("log.format", c.Log.Format, OneOf("json", "text")).
		Field("database.driver", c.Database.Driver, OneOf("postgres", "sqlite")).
		Field("database.dsn", c.Database.DSN, Required).
		Field("sftp.host", c.SFTP.Host, Required).
		Field("sftp.port", c.SFTP.Port, Port).
		Field("sftp.username", c.SFTP.Username, Required).
		Field("remote_paths.incoming", c.RemotePaths.Incoming, Required).
		Field("remote_paths.downloaded", c.RemotePaths.Downloaded, Required).
		Field("local_paths.intake", c.LocalPaths.Intake, Required).
		Field("local_paths.processed", c.LocalPaths.Processed, Required).
		Field("rpc.url", c.RPC.URL, Required, HTTPURL).
		Field("rpc.method", c.RPC.Method, Required).
		Field("document.namespace", c.Document.Namespace, Required)

	if c.SFTP.Password == "" && c.SFTP.PrivateKey == "" {
		v.Field("sftp.password", c.SFTP.Password, func(name string, value interface{}) *FieldError {
			return &FieldError{Field: name, Value: value, Message: "password or private_key is required"}
		})
	}
	if c.RemotePaths.Incoming != "" && c.RemotePaths.Incoming == c.RemotePaths.Downloaded {
		v.Field("remote_paths.downloaded", c.RemotePaths.Downloaded, func(name string, value interface{}) *FieldError {
			return &FieldError{Field: name, Value: value, Message: "must differ from remote_paths.incoming"}
		})
	}
	if c.LocalPaths.Intake != "" && filepath.Clean(c.LocalPaths.Intake) == filepath.Clean(c.LocalPaths.Processed) {
		v.Field("local_paths.processed", c.LocalPaths.Processed, func(name string, value interface{}) *FieldError {
			return &FieldError{Field: name, Value: value, Message: "must differ from local_paths.intake"}
		})
	}

	if v.HasErrors() {
		return NewConfigError("invalid settings", v.Error())
	}
	return nil
}
