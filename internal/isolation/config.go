// Package isolation owns the per-workspace sandbox directory: its fixed
// subdirectory layout, its metadata descriptor, the path-containment policy
// and the explicit working directory and environment handed to tools.
package isolation

// Config is the isolation policy for one context.
type Config struct {
	Enabled        bool     `yaml:"enabled" json:"enabled"`
	PreserveOnExit bool     `yaml:"preserve_on_exit" json:"preserve_on_exit"`
	AllowedPaths   []string `yaml:"allowed_paths" json:"allowed_paths"`
	DeniedPaths    []string `yaml:"denied_paths" json:"denied_paths"`
}

// DefaultConfig returns the stock policy: isolation on, scratch space under
// /tmp and /var/tmp allowed, system and home trees denied.
func DefaultConfig() Config {
	return Config{
		Enabled:      true,
		AllowedPaths: []string{"/tmp", "/var/tmp"},
		DeniedPaths:  []string{"/etc", "/root", "/home"},
	}
}

func (c Config) clone() Config {
	out := c
	out.AllowedPaths = append([]string(nil), c.AllowedPaths...)
	out.DeniedPaths = append([]string(nil), c.DeniedPaths...)
	return out
}
