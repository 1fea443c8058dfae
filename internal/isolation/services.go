package isolation

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/mattjoyce/lantrn/internal/fsutil"
	"github.com/mattjoyce/lantrn/internal/log"
)

// ServicesDir holds per-service isolation roots under a base directory.
const ServicesDir = "services"

// Services keeps one isolation context per named service under
// <base>/services/<name>.
type Services struct {
	base   string
	logger *slog.Logger

	mu       sync.Mutex
	contexts map[string]*Context
}

// NewServices creates a registry rooted at base and registers services
// already set up under <base>/services.
func NewServices(base string, logger *slog.Logger) *Services {
	s := &Services{
		base:     base,
		logger:   log.OrComponent(logger, "isolation"),
		contexts: make(map[string]*Context),
	}
	s.load()
	return s
}

func (s *Services) load() {
	dir := filepath.Join(s.base, ServicesDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("read services directory failed", "path", dir, "error", err)
		}
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		root := filepath.Join(dir, entry.Name())
		meta, err := LoadMetadata(root)
		if err != nil {
			s.logger.Warn("skipping unreadable service", "service", entry.Name(), "error", err)
			continue
		}
		ictx, err := NewContext(meta.ID, root, meta.Config, s.logger)
		if err != nil {
			s.logger.Warn("skipping unreadable service", "service", entry.Name(), "error", err)
			continue
		}
		s.contexts[entry.Name()] = ictx
	}
}

// CreateService sets up an isolation context for name. Its id is
// "<name>_<8 hex>".
func (s *Services) CreateService(name string, cfg Config) (*Context, error) {
	if err := fsutil.ValidateName("service name", name); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.contexts[name]; ok {
		return nil, fmt.Errorf("service %q already exists", name)
	}

	id := name + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	ictx, err := NewContext(id, filepath.Join(s.base, ServicesDir, name), cfg, s.logger)
	if err != nil {
		return nil, err
	}
	if _, err := ictx.Setup(); err != nil {
		return nil, fmt.Errorf("set up service %q: %w", name, err)
	}
	s.contexts[name] = ictx
	return ictx, nil
}

// Get returns the context for name.
func (s *Services) Get(name string) (*Context, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ictx, ok := s.contexts[name]
	return ictx, ok
}

// List returns the registered service names, sorted.
func (s *Services) List() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.contexts))
	for name := range s.contexts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CleanupAll cleans up every service context and forgets them all.
func (s *Services) CleanupAll() {
	s.mu.Lock()
	contexts := s.contexts
	s.contexts = make(map[string]*Context)
	s.mu.Unlock()

	for name, ictx := range contexts {
		ictx.Cleanup()
		s.logger.Debug("service cleaned up", "service", name)
	}
}
