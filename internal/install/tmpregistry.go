package install

import (
	"os"
	"sync"
)

// tmpRegistry tracks one install's in-progress temporary files so an
// early abort can sweep them. Each Install owns its own registry;
// concurrent invocations never see each other's paths.
type tmpRegistry struct {
	mu    sync.Mutex
	paths map[string]struct{}
}

func newTmpRegistry() *tmpRegistry {
	return &tmpRegistry{paths: map[string]struct{}{}}
}

func (r *tmpRegistry) register(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths[path] = struct{}{}
}

func (r *tmpRegistry) deregister(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.paths, path)
}

// cleanup removes every still-registered temporary file.
func (r *tmpRegistry) cleanup() {
	r.mu.Lock()
	paths := make([]string, 0, len(r.paths))
	for p := range r.paths {
		paths = append(paths, p)
	}
	r.paths = map[string]struct{}{}
	r.mu.Unlock()

	for _, p := range paths {
		_ = os.Remove(p)
	}
}
