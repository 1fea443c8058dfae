package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Validate checks a decoded config for values the rest of the system
// cannot work with.
func Validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[strings.ToLower(cfg.Service.LogLevel)] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	switch strings.ToLower(cfg.Service.LogFormat) {
	case "json", "text":
	default:
		return fmt.Errorf("service.log_format must be json or text (got %q)", cfg.Service.LogFormat)
	}

	if strings.TrimSpace(cfg.Workspace.Root) == "" {
		return fmt.Errorf("workspace.root is required")
	}
	if err := checkResolved("workspace.root", cfg.Workspace.Root); err != nil {
		return err
	}
	if cfg.Workspace.MaxWorkspaces < 0 {
		return fmt.Errorf("workspace.max_workspaces must not be negative")
	}
	if cfg.Workspace.MaxDiffBytes < 0 {
		return fmt.Errorf("workspace.max_diff_bytes must not be negative")
	}

	for i, p := range cfg.Isolation.AllowedPaths {
		if err := checkPolicyPath(fmt.Sprintf("isolation.allowed_paths[%d]", i), p); err != nil {
			return err
		}
	}
	for i, p := range cfg.Isolation.DeniedPaths {
		if err := checkPolicyPath(fmt.Sprintf("isolation.denied_paths[%d]", i), p); err != nil {
			return err
		}
	}

	if err := checkResolved("state.path", cfg.State.Path); err != nil {
		return err
	}

	if cfg.API.Enabled {
		if strings.TrimSpace(cfg.API.Listen) == "" {
			return fmt.Errorf("api.listen is required when the api is enabled")
		}
		if err := checkResolved("api.api_key", cfg.API.APIKey); err != nil {
			return err
		}
		if cfg.API.APIKey == "" {
			return fmt.Errorf("api.api_key is required when the api is enabled")
		}
		if cfg.State.Path == "" {
			return fmt.Errorf("api requires state.path for run history")
		}
	}
	return nil
}

func checkPolicyPath(field, p string) error {
	if err := checkResolved(field, p); err != nil {
		return err
	}
	if !filepath.IsAbs(p) {
		return fmt.Errorf("%s must be absolute (got %q)", field, p)
	}
	return nil
}

func checkResolved(field, value string) error {
	if matches := envVarPattern.FindStringSubmatch(value); len(matches) > 1 {
		return fmt.Errorf("%s: environment variable ${%s} is not set", field, matches[1])
	}
	return nil
}
