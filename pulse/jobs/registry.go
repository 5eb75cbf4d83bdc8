package jobs

import (
	"sync"

	"go.uber.org/zap"

	"github.com/teranos/courier/logger"
)

// Registry maps job names to handlers.
//
// It is built once during startup and handed to the Dispatcher; lookups
// after that are read-only. Registering an existing name replaces the
// previous handler and logs a warning. Callers should treat that as a bug.
type Registry struct {
	handlers map[string]Handler
	order    []string
	mu       sync.RWMutex
	logger   *zap.SugaredLogger
}

// NewRegistry creates an empty registry. A nil logger uses the "jobs" component logger.
func NewRegistry(log *zap.SugaredLogger) *Registry {
	if log == nil {
		log = logger.ComponentLogger("jobs")
	}
	return &Registry{
		handlers: make(map[string]Handler),
		logger:   log,
	}
}

// Register adds handler under name. The last registration for a name wins.
func (r *Registry) Register(name string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[name]; exists {
		r.logger.Warnw("Job handler replaced by duplicate registration", logger.FieldJobName, name)
	} else {
		r.order = append(r.order, name)
	}
	r.handlers[name] = handler
}

// Lookup returns the handler for name. A missing name is an expected
// outcome meaning "unknown job", not a failure.
func (r *Registry) Lookup(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Has checks if a handler is registered for a name.
func (r *Registry) Has(name string) bool {
	_, ok := r.Lookup(name)
	return ok
}

// Names returns registered names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}
