package providers

import (
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

// Descriptor is the static metadata of a registered provider.
type Descriptor struct {
	ID           string       `json:"id"`
	DisplayName  string       `json:"name"`
	Description  string       `json:"description"`
	Capabilities Capabilities `json:"capabilities"`
	// MaxImages caps the pending screenshot queue. Zero for providers that
	// forward images immediately.
	MaxImages    int    `json:"max_images,omitempty"`
	DefaultModel string `json:"default_model"`
	VisionModel  string `json:"vision_model,omitempty"`
	// APIKeyEnv names the environment variable conventionally holding the key.
	APIKeyEnv string `json:"api_key_env,omitempty"`
}

// Config carries the caller-supplied settings for a new adapter. Zero values
// select the descriptor defaults.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	VisionModel string
	MaxImages   int

	// RequestTimeout bounds one batch request including the streamed body.
	RequestTimeout time.Duration
	// DialTimeout bounds the realtime handshake.
	DialTimeout time.Duration
	// SetupTimeout bounds the wait for the realtime setup acknowledgement.
	SetupTimeout time.Duration
	// ConnectAttempts is the number of realtime dial attempts. Defaults to 1.
	ConnectAttempts int

	// AppName and AppURL identify the client to providers that ask for it.
	AppName string
	AppURL  string

	HTTPClient *http.Client
	Observer   Observer
}

// Factory builds an adapter. It must not open any connection.
type Factory func(cfg Config) (Session, error)

type registration struct {
	desc    Descriptor
	factory Factory
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]registration)
)

// RegisterProviderFactory registers a factory under d.ID. Adapter packages
// call it from init.
func RegisterProviderFactory(d Descriptor, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[normalize(d.ID)] = registration{desc: d, factory: f}
}

// Create constructs the adapter registered under name without starting a
// session.
func Create(name string, cfg Config) (Session, error) {
	registryMu.RLock()
	reg, ok := registry[normalize(name)]
	registryMu.RUnlock()
	if !ok {
		return nil, &UnknownProviderError{Name: name}
	}
	if cfg.Observer == nil {
		cfg.Observer = ObserverFuncs{}
	}
	return reg.factory(cfg)
}

// Lookup returns the descriptor registered under name.
func Lookup(name string) (Descriptor, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	reg, ok := registry[normalize(name)]
	return reg.desc, ok
}

// ListAvailable returns every registered descriptor ordered by id.
func ListAvailable() []Descriptor {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]Descriptor, 0, len(registry))
	for _, reg := range registry {
		out = append(out, reg.desc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
