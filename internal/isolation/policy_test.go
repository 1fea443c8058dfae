package isolation

import (
	"os"
	"path/filepath"
	"testing"
)

// policyFixture lays out:
//
//	base/ws/            context root
//	base/allowed/       allowed prefix
//	base/denied/secret  denied prefix
//	base/allowed/escape -> base/denied
func policyFixture(t *testing.T) (*Context, string) {
	t.Helper()
	base, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatalf("EvalSymlinks() error = %v", err)
	}
	for _, dir := range []string{"allowed", "denied"} {
		if err := os.MkdirAll(filepath.Join(base, dir), 0o755); err != nil {
			t.Fatalf("MkdirAll() error = %v", err)
		}
	}
	if err := os.WriteFile(filepath.Join(base, "denied", "secret"), []byte("s"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if err := os.Symlink(filepath.Join(base, "denied"), filepath.Join(base, "allowed", "escape")); err != nil {
		t.Fatalf("Symlink() error = %v", err)
	}

	cfg := Config{
		Enabled:      true,
		AllowedPaths: []string{base},
		DeniedPaths:  []string{filepath.Join(base, "denied")},
	}
	ictx, err := NewContext("ws", filepath.Join(base, "ws"), cfg, nil)
	if err != nil {
		t.Fatalf("NewContext() error = %v", err)
	}
	if _, err := ictx.Setup(); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	return ictx, base
}

func TestIsPathAllowed(t *testing.T) {
	t.Parallel()

	ictx, base := policyFixture(t)
	root := ictx.Root

	tests := []struct {
		name string
		path string
		want bool
	}{
		{"own workspace file", filepath.Join(root, "workspace", "x.txt"), true},
		{"own root", root, true},
		{"nested missing file in workspace", filepath.Join(root, "workspace", "a", "b", "c"), true},
		{"relative path in workspace", "notes/todo.md", true},
		{"allowed prefix", filepath.Join(base, "allowed", "f"), true},
		{"denied prefix", filepath.Join(base, "denied", "secret"), false},
		{"denied prefix itself", filepath.Join(base, "denied"), false},
		{"traversal into denied", root + "/workspace/../../denied/secret", false},
		{"relative traversal into denied", "../../denied/secret", false},
		{"symlink into denied", filepath.Join(base, "allowed", "escape", "secret"), false},
		{"symlink then dotdot", base + "/allowed/escape/../denied/secret", false},
		{"sibling with shared prefix", base + "/deniedx", true},
		{"outside everything", "/definitely/not/allowed", false},
		{"etc passwd by traversal", root + "/workspace/../../../../../../../etc/passwd", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ictx.IsPathAllowed(tt.path); got != tt.want {
				t.Fatalf("IsPathAllowed(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestIsPathAllowedWorkspaceSymlinkOut(t *testing.T) {
	t.Parallel()

	ictx, base := policyFixture(t)
	link := filepath.Join(ictx.WorkspacePath(), "leak")
	if err := os.Symlink(filepath.Join(base, "denied"), link); err != nil {
		t.Fatalf("Symlink() error = %v", err)
	}
	if ictx.IsPathAllowed(filepath.Join(link, "secret")) {
		t.Fatal("a workspace symlink must not grant access to a denied tree")
	}
}

func TestIsPathAllowedDefaultDeny(t *testing.T) {
	t.Parallel()

	ictx, err := NewContext("ws", filepath.Join(t.TempDir(), "ws"), Config{Enabled: true}, nil)
	if err != nil {
		t.Fatalf("NewContext() error = %v", err)
	}
	if ictx.IsPathAllowed("/usr/bin/env") {
		t.Fatal("no allow list should mean default deny outside the root")
	}
}

func TestWithin(t *testing.T) {
	t.Parallel()

	if !within("/a/b", "/a") || !within("/a", "/a") || !within("/x", "/") {
		t.Fatal("expected containment")
	}
	if within("/ab", "/a") {
		t.Fatal("/ab is not under /a")
	}
}
