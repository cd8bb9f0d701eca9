package processor

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

type Registry struct {
	steps map[string]Step
	mu    sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{
		steps: make(map[string]Step),
	}
}

// Register adds step under its name, replacing any previous step with the
// same name.
func (r *Registry) Register(step Step) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.steps[step.Name()] = step
}

func (r *Registry) Get(name string) (Step, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.steps[name]
	return s, ok
}

func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.steps))
	for name := range r.steps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) GetOrError(name string) (Step, error) {
	step, exists := r.Get(name)
	if !exists {
		return nil, fmt.Errorf("%w: %s (registered: %s)", ErrStepNotRegistered, name, strings.Join(r.List(), ", "))
	}
	return step, nil
}

// Resolve looks up every name in order and fails on the first missing one.
func (r *Registry) Resolve(names []string) ([]Step, error) {
	steps := make([]Step, 0, len(names))
	for _, name := range names {
		s, err := r.GetOrError(name)
		if err != nil {
			return nil, err
		}
		steps = append(steps, s)
	}
	return steps, nil
}
