package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

// FileName is the config file looked up inside a config directory.
const FileName = "config.yaml"

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads, verifies and validates the config at configPath. A directory
// is accepted and resolves to its config.yaml. When a .checksums manifest
// sits next to the file, a hash mismatch fails the load.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, FileName)
		if _, err := os.Stat(absPath); err != nil {
			return nil, fmt.Errorf("directory provided but %s not found: %s", FileName, absPath)
		}
	}

	result, err := VerifyIntegrity(absPath)
	if err != nil {
		return nil, err
	}
	if !result.Passed {
		return nil, &IntegrityError{Result: result}
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}
	cfg.SourcePath = absPath
	resolveRelative(cfg, filepath.Dir(absPath))
	return cfg, nil
}

// Parse decodes YAML over Defaults, interpolating ${VAR} references from
// the environment, then validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Defaults()
	dec := yaml.NewDecoder(bytes.NewReader([]byte(interpolateEnv(string(data)))))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		// Left in place; Validate rejects it where it matters.
		return match
	})
}

// resolveRelative anchors relative filesystem paths at the config's directory.
func resolveRelative(cfg *Config, dir string) {
	if cfg.Workspace.Root != "" && !filepath.IsAbs(cfg.Workspace.Root) {
		cfg.Workspace.Root = filepath.Join(dir, cfg.Workspace.Root)
	}
	if cfg.State.Path != "" && !filepath.IsAbs(cfg.State.Path) {
		cfg.State.Path = filepath.Join(dir, cfg.State.Path)
	}
}
