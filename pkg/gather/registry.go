package gather

import (
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Registry hands out one Gatherer per router host so that every consumer in
// the process shares the same session. Entries are never evicted.
type Registry struct {
	mu      sync.Mutex
	clients map[string]*Gatherer
	opts    []Option
}

// NewRegistry returns an empty registry; opts apply to every Gatherer it
// creates.
func NewRegistry(opts ...Option) *Registry {
	return &Registry{
		clients: make(map[string]*Gatherer),
		opts:    opts,
	}
}

// GetOrCreate returns the Gatherer for host, creating it on first use. The
// password of the first call wins; later calls for the same host get the
// existing client regardless of the password they pass.
func (r *Registry) GetOrCreate(host, password string) (*Gatherer, error) {
	key := strings.TrimSpace(host)

	r.mu.Lock()
	defer r.mu.Unlock()

	if g, ok := r.clients[key]; ok {
		return g, nil
	}

	g, err := New(key, password, r.opts...)
	if err != nil {
		return nil, err
	}
	r.clients[key] = g

	logrus.WithField("host", key).Debug("registered router client")
	return g, nil
}

// Len returns the number of registered routers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.clients)
}
