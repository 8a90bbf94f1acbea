package config

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/grovetools/tracker/errors"
	"github.com/grovetools/tracker/pkg/paths"
)

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// ConfigSource identifies which layer a configuration file belongs to.
type ConfigSource string

const (
	SourceGlobal   ConfigSource = "global"
	SourceProject  ConfigSource = "project"
	SourceOverride ConfigSource = "override"
)

// Layer is one configuration file taking part in a merge.
type Layer struct {
	Source ConfigSource
	Path   string
}

var (
	configNames   = []string{"tracker.yml", "tracker.yaml", ".tracker.yml", ".tracker.yaml", "tracker.toml"}
	overrideNames = []string{"tracker.override.yml", "tracker.override.yaml", "tracker.override.toml"}
)

// Load reads and parses a single tracker configuration file.
func Load(path string) (*Config, error) {
	raw, err := readLayer(path)
	if err != nil {
		return nil, err
	}
	return finalize(raw)
}

// LoadDefault finds and loads the configuration with hierarchical merging:
// 1. Global config ({config}/tracker.yml) - base layer
// 2. Project config (tracker.yml found walking up from cwd) - overrides global
// 3. Local override (tracker.override.yml) - overrides all
func LoadDefault() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to get current directory")
	}
	return LoadFrom(cwd)
}

// LoadFrom loads configuration with hierarchical merging starting from the given directory
func LoadFrom(startDir string) (*Config, error) {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return LoadFromWithLogger(startDir, logger)
}

// LoadFromWithLogger loads configuration with hierarchical merging and logging
func LoadFromWithLogger(startDir string, logger *logrus.Logger) (*Config, error) {
	layers := FindLayers(startDir)
	if len(layers) == 0 {
		return nil, errors.ConfigNotFound(startDir).WithDetail("searchPath", startDir)
	}

	merged := map[string]interface{}{}
	for _, layer := range layers {
		logger.WithField("path", layer.Path).Debugf("Loading %s configuration", layer.Source)
		raw, err := readLayer(layer.Path)
		if err != nil {
			if layer.Source == SourceProject {
				return nil, err
			}
			logger.WithError(err).Warnf("Failed to load %s configuration, continuing without it", layer.Source)
			continue
		}
		merged = mergeMaps(merged, raw)
	}

	cfg, err := finalize(merged)
	if err != nil {
		return nil, err
	}

	if logger.IsLevelEnabled(logrus.DebugLevel) {
		if data, err := yaml.Marshal(cfg); err == nil {
			logger.Debugf("Merged configuration:\n%s", string(data))
		}
	}
	return cfg, nil
}

// LoadFromBytes parses YAML configuration from a byte array
func LoadFromBytes(data []byte) (*Config, error) {
	var raw map[string]interface{}
	if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), &raw); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to parse YAML configuration")
	}
	return finalize(raw)
}

// finalize validates the merged document against the schema, decodes it,
// applies defaults and runs semantic validation.
func finalize(raw map[string]interface{}) (*Config, error) {
	if raw == nil {
		raw = map[string]interface{}{}
	}

	validator, err := NewSchemaValidator()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to create validator")
	}
	if err := validator.Validate(raw); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "schema validation failed")
	}

	data, err := yaml.Marshal(raw)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to re-encode configuration")
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to decode configuration")
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// readLayer reads one file into a generic map, choosing the decoder by extension.
func readLayer(path string) (map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ConfigNotFound(path)
		}
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to read config file").
			WithDetail("path", path)
	}

	expanded := []byte(expandEnvVars(string(data)))
	raw := map[string]interface{}{}
	if strings.HasSuffix(path, ".toml") {
		err = toml.Unmarshal(expanded, &raw)
	} else {
		err = yaml.Unmarshal(expanded, &raw)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to parse config file").
			WithDetail("path", path)
	}
	return raw, nil
}

// FindLayers returns the configuration files that apply to startDir, lowest
// precedence first.
func FindLayers(startDir string) []Layer {
	var layers []Layer

	if global := findIn(paths.ConfigDir(), configNames); global != "" {
		layers = append(layers, Layer{Source: SourceGlobal, Path: global})
	}

	project, err := FindConfigFile(startDir)
	if err != nil {
		return layers
	}
	// A global file found while walking up is not a second layer.
	if len(layers) > 0 && layers[0].Path == project {
		return layers
	}
	layers = append(layers, Layer{Source: SourceProject, Path: project})

	projectDir := filepath.Dir(project)
	for _, name := range overrideNames {
		path := filepath.Join(projectDir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			layers = append(layers, Layer{Source: SourceOverride, Path: path})
		}
	}
	return layers
}

// FindConfigFile searches for a project tracker configuration file from
// startDir up to the filesystem root.
func FindConfigFile(startDir string) (string, error) {
	dir := startDir
	for {
		if path := findIn(dir, configNames); path != "" {
			return path, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", errors.ConfigNotFound(startDir).WithDetail("searchPath", startDir)
}

func findIn(dir string, names []string) string {
	if dir == "" {
		return ""
	}
	for _, name := range names {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}

// expandEnvVars replaces ${VAR} with environment variable values
func expandEnvVars(content string) string {
	return envVarRegex.ReplaceAllStringFunc(content, func(match string) string {
		varName := envVarRegex.FindStringSubmatch(match)[1]

		// Handle default values: ${VAR:-default}
		parts := strings.SplitN(varName, ":-", 2)
		varName = parts[0]
		defaultValue := ""
		if len(parts) > 1 {
			defaultValue = parts[1]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}
