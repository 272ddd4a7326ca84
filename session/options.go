package session

import "github.com/AltairaLabs/livecoach/providers"

// Factory constructs an adapter by provider name.
type Factory func(name string, cfg providers.Config) (providers.Session, error)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithProviderConfig supplies base adapter settings per provider, such as
// base URL, models and timeouts. The API key and observer are filled in by
// Start.
func WithProviderConfig(fn func(provider string) providers.Config) Option {
	return func(o *Orchestrator) {
		o.providerConfig = fn
	}
}

// WithFactory replaces the provider registry lookup.
func WithFactory(f Factory) Option {
	return func(o *Orchestrator) {
		o.create = f
	}
}

// WithIDGenerator replaces the session id generator.
func WithIDGenerator(fn func() string) Option {
	return func(o *Orchestrator) {
		o.newID = fn
	}
}
