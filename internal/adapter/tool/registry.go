package tool

import (
	"log/slog"
	"sync"

	"fcfilter/internal/domain"
)

// Registry holds the validated tool descriptors in registration order.
// It is filled at startup and only read afterwards.
type Registry struct {
	mu     sync.RWMutex
	order  []string
	tools  map[string]*Spec
	logger *slog.Logger
}

// NewRegistry creates an empty tool registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		tools:  make(map[string]*Spec),
		logger: logger,
	}
}

// Register adds a built tool. Names must be unique.
func (r *Registry) Register(s *Spec) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := s.Name()
	if _, exists := r.tools[name]; exists {
		return domain.NewDomainError("Registry.Register", domain.ErrToolDuplicate, name)
	}
	r.tools[name] = s
	r.order = append(r.order, name)
	r.logger.Debug("tool registered", "tool", name, "params", len(s.Params()))
	return nil
}

// Add builds b and registers the result.
func (r *Registry) Add(b *SpecBuilder) error {
	s, err := b.Build()
	if err != nil {
		return err
	}
	return r.Register(s)
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (*Spec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.tools[name]
	if !ok {
		return nil, domain.NewDomainError("Registry.Get", domain.ErrToolNotFound, name)
	}
	return s, nil
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Specs returns all tool specs in registration order. The result is freshly
// built on each call.
func (r *Registry) Specs() []domain.ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	specs := make([]domain.ToolSpec, 0, len(r.order))
	for _, name := range r.order {
		specs = append(specs, r.tools[name].Spec())
	}
	return specs
}
