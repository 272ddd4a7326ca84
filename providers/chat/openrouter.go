package chat

import "github.com/AltairaLabs/livecoach/providers"

// OpenRouter defaults.
const (
	OpenRouterID        = "openrouter"
	OpenRouterModel     = "anthropic/claude-3.5-sonnet"
	OpenRouterMaxImages = 10
	OpenRouterBaseURL   = "https://openrouter.ai"

	defaultAppName = "livecoach"
	defaultAppURL  = "https://github.com/AltairaLabs/livecoach"
)

// OpenRouterDialect routes to a single vision-capable model.
var OpenRouterDialect = Dialect{
	Descriptor: providers.Descriptor{
		ID:          OpenRouterID,
		DisplayName: "OpenRouter",
		Description: "Access 100+ models",
		Capabilities: providers.Capabilities{
			SupportsVision:        true,
			SupportsStreaming:     true,
			RequiresTranscription: true,
		},
		MaxImages:    OpenRouterMaxImages,
		DefaultModel: OpenRouterModel,
		APIKeyEnv:    "OPENROUTER_API_KEY",
	},
	DefaultBaseURL: OpenRouterBaseURL,
	Path:           "/api/v1/chat/completions",
	Headers:        openRouterHeaders,
}

func openRouterHeaders(cfg providers.Config) map[string]string {
	name, url := cfg.AppName, cfg.AppURL
	if name == "" {
		name = defaultAppName
	}
	if url == "" {
		url = defaultAppURL
	}
	return map[string]string{"HTTP-Referer": url, "X-Title": name}
}

func init() {
	providers.RegisterProviderFactory(OpenRouterDialect.Descriptor, func(cfg providers.Config) (providers.Session, error) {
		return New(OpenRouterDialect, cfg), nil
	})
}
