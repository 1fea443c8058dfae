package isolation

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"
)

func TestServicesLifecycle(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	svc := NewServices(base, nil)

	api, err := svc.CreateService("api", DefaultConfig())
	if err != nil {
		t.Fatalf("CreateService(api) error = %v", err)
	}
	if !regexp.MustCompile(`^api_[0-9a-f]{8}$`).MatchString(api.ID) {
		t.Fatalf("service id = %q", api.ID)
	}
	if api.Root != filepath.Join(base, ServicesDir, "api") {
		t.Fatalf("service root = %q", api.Root)
	}
	if _, err := os.Stat(api.WorkspacePath()); err != nil {
		t.Fatalf("service not set up: %v", err)
	}

	if _, err := svc.CreateService("db", DefaultConfig()); err != nil {
		t.Fatalf("CreateService(db) error = %v", err)
	}
	if _, err := svc.CreateService("api", DefaultConfig()); err == nil {
		t.Fatal("expected duplicate service error")
	}
	if _, err := svc.CreateService("../x", DefaultConfig()); err == nil {
		t.Fatal("expected invalid name error")
	}

	if got, ok := svc.Get("api"); !ok || got != api {
		t.Fatalf("Get(api) = %v, %v", got, ok)
	}
	if _, ok := svc.Get("missing"); ok {
		t.Fatal("Get(missing) should report false")
	}
	names := svc.List()
	if len(names) != 2 || names[0] != "api" || names[1] != "db" {
		t.Fatalf("List() = %v", names)
	}

	svc.CleanupAll()
	if len(svc.List()) != 0 {
		t.Fatal("registry should be empty after CleanupAll")
	}
	if _, err := os.Stat(api.Root); !os.IsNotExist(err) {
		t.Fatalf("service root should be removed, stat err = %v", err)
	}
}

func TestServicesReloadFromDisk(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	api, err := NewServices(base, nil).CreateService("api", DefaultConfig())
	if err != nil {
		t.Fatalf("CreateService(api) error = %v", err)
	}
	if err := os.MkdirAll(filepath.Join(base, ServicesDir, "stray"), 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}

	reopened := NewServices(base, nil)
	names := reopened.List()
	if len(names) != 1 || names[0] != "api" {
		t.Fatalf("List() after reload = %v, want [api]", names)
	}
	got, ok := reopened.Get("api")
	if !ok || got.ID != api.ID || got.Root != api.Root {
		t.Fatalf("Get(api) = %+v, %v; want id %q", got, ok, api.ID)
	}
	if _, err := reopened.CreateService("api", DefaultConfig()); err == nil {
		t.Fatal("expected duplicate error for a service found on disk")
	}
}
