package config

import (
	"os"
	"path/filepath"
)

// EnvConfigPath names the environment variable consulted after --config.
const EnvConfigPath = "LANTRN_CONFIG"

// Discover picks the config file to load. Priority: explicit path, then
// $LANTRN_CONFIG, then ~/.config/lantrn/config.yaml. It returns "" when
// nothing is found and built-in defaults should be used. An explicit path
// is returned as is so a typo surfaces as a load error.
func Discover(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		userConfig := filepath.Join(homeDir, ".config", "lantrn", FileName)
		if fileExists(userConfig) {
			return userConfig
		}
	}
	return ""
}

// LoadOrDefault loads the discovered config, or returns Defaults when there
// is none.
func LoadOrDefault(explicit string) (*Config, error) {
	path := Discover(explicit)
	if path == "" {
		return Defaults(), nil
	}
	return Load(path)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
