package isolation

import (
	"context"
	"os"
	"os/exec"
	"sort"
	"strings"
)

// Session is an entered isolation context: the directory and extra
// environment every tool invocation must be launched with.
type Session struct {
	Dir string
	Env map[string]string
}

// Environ returns the process environment with the session variables
// applied on top, in os/exec form.
func (s Session) Environ() []string {
	base := os.Environ()
	out := make([]string, 0, len(base)+len(s.Env))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if _, overridden := s.Env[key]; overridden {
			continue
		}
		out = append(out, kv)
	}

	keys := make([]string, 0, len(s.Env))
	for k := range s.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, k+"="+s.Env[k])
	}
	return out
}

// Command builds a command that runs in the session directory with the
// session environment.
func (s Session) Command(ctx context.Context, name string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = s.Dir
	cmd.Env = s.Environ()
	return cmd
}
