package application

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"quota-gateway/middleware/ratelimit/domain"
)

// Registry guarda um Engine por nome de política.
//
// O primeiro GetOrCreate de um nome cria o Engine; os seguintes devolvem o mesmo,
// ignorando o profile recebido. Os nomes devem ser estáveis (nada de sufixo por
// request ou timestamp), senão cada chamada abriria um namespace novo de contadores.
type Registry struct {
	backend domain.Backend
	clock   domain.Clock
	metrics domain.Metrics
	logger  *slog.Logger

	mu      sync.Mutex // serializa criação
	engines sync.Map   // string -> *Engine
}

type RegistryOption func(*Registry)

func WithClock(c domain.Clock) RegistryOption {
	return func(r *Registry) { r.clock = c }
}

func WithMetrics(m domain.Metrics) RegistryOption {
	return func(r *Registry) { r.metrics = m }
}

func WithLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) { r.logger = l }
}

func NewRegistry(backend domain.Backend, opts ...RegistryOption) *Registry {
	r := &Registry{
		backend: backend,
		clock:   domain.SystemClock{},
		metrics: noopMetrics{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) Logger() *slog.Logger { return r.logger }
func (r *Registry) Clock() domain.Clock  { return r.clock }

// GetOrCreate devolve o Engine de `name`, criando-o na primeira chamada.
// Profile inválido na criação retorna *domain.ConfigError.
func (r *Registry) GetOrCreate(name string, p domain.Profile) (*Engine, error) {
	if e, ok := r.Lookup(name); ok {
		return e, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.Lookup(name); ok {
		return e, nil
	}
	if name == "" {
		return nil, &domain.ConfigError{Field: "name", Reason: "must not be empty"}
	}
	if err := p.Validate(); err != nil {
		if ce, ok := err.(*domain.ConfigError); ok {
			ce.Limiter = name
		}
		return nil, err
	}

	e := &Engine{
		name:    name,
		profile: p.Normalize(),
		backend: r.backend,
		clock:   r.clock,
		metrics: r.metrics,
	}
	r.engines.Store(name, e)
	r.logger.Debug("rate limiter registered",
		slog.String("limiter", name),
		slog.Int64("capacity", e.profile.Capacity),
		slog.Duration("window", e.profile.Window),
		slog.Duration("block", e.profile.Block),
	)
	return e, nil
}

func (r *Registry) Lookup(name string) (*Engine, bool) {
	v, ok := r.engines.Load(name)
	if !ok {
		return nil, false
	}
	return v.(*Engine), true
}

// Names devolve os nomes registrados em ordem alfabética.
func (r *Registry) Names() []string {
	var names []string
	r.engines.Range(func(k, _ any) bool {
		names = append(names, k.(string))
		return true
	})
	sort.Strings(names)
	return names
}

// noopMetrics evita checar nil no caminho quente.
type noopMetrics struct{}

func (noopMetrics) ObserveDecision(string, domain.Outcome, time.Duration) {}
