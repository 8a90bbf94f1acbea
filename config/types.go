package config

import (
	"fmt"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/mitchellh/mapstructure"
)

//go:generate sh -c "cd .. && go run ./tools/schema-generator/"

// Duration is a time.Duration that reads and writes as a Go duration string
// ("5m", "100ms") in YAML, TOML and JSON.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	*d = Duration(parsed)
	return nil
}

// JSONSchema describes Duration as a duration string.
func (Duration) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:    "string",
		Pattern: `^([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$`,
	}
}

// TrackerConfig holds the session engine settings.
type TrackerConfig struct {
	SnapshotInterval  Duration `yaml:"snapshot_interval" toml:"snapshot_interval" jsonschema:"required,description=Screenshot cadence (e.g. '5m'). Required; there is no built-in default"`
	RollupInterval    Duration `yaml:"rollup_interval,omitempty" toml:"rollup_interval,omitempty" jsonschema:"description=How often session counters are rolled up to disk (default: 1m)"`
	StopGrace         Duration `yaml:"stop_grace,omitempty" toml:"stop_grace,omitempty" jsonschema:"description=Upper bound on waiting for session loops to exit during stop (default: 5s)"`
	Keyboard          *bool    `yaml:"keyboard,omitempty" toml:"keyboard,omitempty" jsonschema:"description=Observe global key-down events (default: true)"`
	Mouse             *bool    `yaml:"mouse,omitempty" toml:"mouse,omitempty" jsonschema:"description=Poll the mouse position (default: true)"`
	MousePollInterval Duration `yaml:"mouse_poll_interval,omitempty" toml:"mouse_poll_interval,omitempty" jsonschema:"description=Mouse poll period (default: 100ms)"`
	ShutterSound      bool     `yaml:"shutter_sound,omitempty" toml:"shutter_sound,omitempty" jsonschema:"description=Play a short sound after each screenshot"`
	TenantID          string   `yaml:"tenant_id,omitempty" toml:"tenant_id,omitempty" jsonschema:"description=Default tenant correlation id for sessions that do not pass one"`
	ProjectID         string   `yaml:"project_id,omitempty" toml:"project_id,omitempty" jsonschema:"description=Default project correlation id for sessions that do not pass one"`
}

// KeyboardEnabled reports whether the keyboard observer should run.
func (t TrackerConfig) KeyboardEnabled() bool { return t.Keyboard == nil || *t.Keyboard }

// MouseEnabled reports whether the mouse observer should run.
func (t TrackerConfig) MouseEnabled() bool { return t.Mouse == nil || *t.Mouse }

// GitConfig bounds the git snapshot reader.
type GitConfig struct {
	Timeout         Duration `yaml:"timeout,omitempty" toml:"timeout,omitempty" jsonschema:"description=Per-command git timeout (default: 10s)"`
	MaxDiffBytes    int      `yaml:"max_diff_bytes,omitempty" toml:"max_diff_bytes,omitempty" jsonschema:"minimum=0,description=Byte ceiling of persisted diff files (default: 1048576)"`
	MaxPreviewChars int      `yaml:"max_preview_chars,omitempty" toml:"max_preview_chars,omitempty" jsonschema:"minimum=0,description=Character ceiling of the diff preview in metadata (default: 4000)"`
	Exclude         []string `yaml:"exclude,omitempty" toml:"exclude,omitempty" jsonschema:"description=Gitignore-style patterns whose file sections are dropped from diffs"`
}

// UploadConfig points at the upload authority.
type UploadConfig struct {
	Endpoint         string   `yaml:"endpoint,omitempty" toml:"endpoint,omitempty" jsonschema:"description=Base URL of the upload authority; uploads are disabled when empty"`
	Token            string   `yaml:"token,omitempty" toml:"token,omitempty" jsonschema:"description=Bearer token sent to the upload authority (supports ${VAR})"`
	AuthorizeTimeout Duration `yaml:"authorize_timeout,omitempty" toml:"authorize_timeout,omitempty" jsonschema:"description=Timeout of the authorize request (default: 30s)"`
	TransferTimeout  Duration `yaml:"transfer_timeout,omitempty" toml:"transfer_timeout,omitempty" jsonschema:"description=Timeout of the byte transfer (default: 60s)"`
}

// StorageConfig locates the local artifact store.
type StorageConfig struct {
	Root string `yaml:"root,omitempty" toml:"root,omitempty" jsonschema:"description=Directory holding captured artifacts and session logs (default: XDG data dir)"`
}

// ServerConfig configures the daemon API.
type ServerConfig struct {
	Socket string `yaml:"socket,omitempty" toml:"socket,omitempty" jsonschema:"description=Unix socket the daemon listens on (default: XDG runtime dir)"`
}

// Config is the merged content of tracker.yml / tracker.toml.
type Config struct {
	Version string        `yaml:"version,omitempty" toml:"version,omitempty" jsonschema:"description=Configuration version (e.g. '1.0')"`
	Tracker TrackerConfig `yaml:"tracker" toml:"tracker" jsonschema:"required,description=Session engine settings"`
	Git     GitConfig     `yaml:"git,omitempty" toml:"git,omitempty" jsonschema:"description=Git snapshot reader settings"`
	Upload  UploadConfig  `yaml:"upload,omitempty" toml:"upload,omitempty" jsonschema:"description=Artifact upload settings"`
	Storage StorageConfig `yaml:"storage,omitempty" toml:"storage,omitempty" jsonschema:"description=Local storage settings"`
	Server  ServerConfig  `yaml:"server,omitempty" toml:"server,omitempty" jsonschema:"description=Daemon API settings"`

	// Extensions captures all other top-level keys for extensibility.
	Extensions map[string]interface{} `yaml:",inline" toml:"-" jsonschema:"-"`
}

// Defaults applied by SetDefaults. Snapshot interval intentionally has none.
const (
	DefaultRollupInterval    = time.Minute
	DefaultStopGrace         = 5 * time.Second
	DefaultMousePollInterval = 100 * time.Millisecond
	DefaultGitTimeout        = 10 * time.Second
	DefaultMaxDiffBytes      = 1 << 20
	DefaultMaxPreviewChars   = 4000
	DefaultAuthorizeTimeout  = 30 * time.Second
	DefaultTransferTimeout   = 60 * time.Second
)

// SetDefaults sets default values for configuration
func (c *Config) SetDefaults() {
	if c.Version == "" {
		c.Version = "1.0"
	}
	setDuration(&c.Tracker.RollupInterval, DefaultRollupInterval)
	setDuration(&c.Tracker.StopGrace, DefaultStopGrace)
	setDuration(&c.Tracker.MousePollInterval, DefaultMousePollInterval)
	setDuration(&c.Git.Timeout, DefaultGitTimeout)
	setDuration(&c.Upload.AuthorizeTimeout, DefaultAuthorizeTimeout)
	setDuration(&c.Upload.TransferTimeout, DefaultTransferTimeout)
	if c.Git.MaxDiffBytes == 0 {
		c.Git.MaxDiffBytes = DefaultMaxDiffBytes
	}
	if c.Git.MaxPreviewChars == 0 {
		c.Git.MaxPreviewChars = DefaultMaxPreviewChars
	}
}

func setDuration(d *Duration, def time.Duration) {
	if *d == 0 {
		*d = Duration(def)
	}
}

// UnmarshalExtension decodes a specific extension's configuration from the
// loaded tracker.yml into the provided target struct. The target must be a pointer.
//
// Example:
//
//	var logCfg logging.Config
//	err := cfg.UnmarshalExtension("logging", &logCfg)
func (c *Config) UnmarshalExtension(key string, target interface{}) error {
	extensionConfig, ok := c.Extensions[key]
	if !ok {
		// It's not an error if the key doesn't exist.
		return nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "yaml",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create mapstructure decoder: %w", err)
	}

	if err := decoder.Decode(extensionConfig); err != nil {
		return fmt.Errorf("failed to decode extension config for '%s': %w", key, err)
	}

	return nil
}
