package provider

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/lk2023060901/ai-search-backend/internal/pkg/logger"
	"github.com/lk2023060901/ai-search-backend/internal/websearch/settings"
	"github.com/lk2023060901/ai-search-backend/internal/websearch/types"
)

// Registry holds the providers usable for this process, keyed by ID.
// It is read-only after construction.
type Registry struct {
	order     []types.ProviderID
	providers map[types.ProviderID]Provider
}

// NewRegistry creates a registry from already-built providers
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[types.ProviderID]Provider)}
	for _, p := range providers {
		if p == nil {
			continue
		}
		if _, dup := r.providers[p.GetID()]; !dup {
			r.order = append(r.order, p.GetID())
		}
		r.providers[p.GetID()] = p
	}
	return r
}

// BuildRegistry registers every known provider whose toggle is absent or true
// and whose capability is available. Construction is deferred to first use.
func BuildRegistry(s *settings.Settings, caps Capabilities, factory *Factory, log *logger.Logger) *Registry {
	if log == nil {
		log = logger.L()
	}
	log = log.Named("provider")

	var providers []Provider
	for _, id := range types.KnownProviders() {
		if !s.ProviderEnabled(id) {
			log.Debug("provider disabled by configuration", zap.String("provider", id.String()))
			continue
		}
		if !caps.Available(id) {
			log.Debug("provider not available", zap.String("provider", id.String()))
			continue
		}
		providers = append(providers, newLazyProvider(ConfigFor(s, id), factory))
	}

	r := NewRegistry(providers...)
	log.Info("search providers registered", zap.Strings("providers", idStrings(r.IDs())))
	return r
}

// Get returns the provider for id
func (r *Registry) Get(id types.ProviderID) (Provider, bool) {
	p, ok := r.providers[id]
	return p, ok
}

// IDs returns registered IDs in registration order
func (r *Registry) IDs() []types.ProviderID {
	out := make([]types.ProviderID, len(r.order))
	copy(out, r.order)
	return out
}

func idStrings(ids []types.ProviderID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

// lazyProvider builds the real provider through the factory on first Search
type lazyProvider struct {
	config  *types.ProviderConfig
	factory *Factory

	once     sync.Once
	provider Provider
	err      error
}

func newLazyProvider(config *types.ProviderConfig, factory *Factory) *lazyProvider {
	if factory == nil {
		factory = NewFactory()
	}
	return &lazyProvider{config: config, factory: factory}
}

func (l *lazyProvider) GetID() types.ProviderID { return l.config.ID }

func (l *lazyProvider) GetName() string { return l.config.Name }

func (l *lazyProvider) Search(ctx context.Context, req *types.SearchRequest) (*types.SearchResponse, error) {
	l.once.Do(func() {
		l.provider, l.err = l.factory.Create(l.config)
	})
	if l.err != nil {
		return nil, l.err
	}
	return l.provider.Search(ctx, req)
}
