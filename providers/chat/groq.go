package chat

import "github.com/AltairaLabs/livecoach/providers"

// Groq defaults.
const (
	GroqID          = "groq"
	GroqTextModel   = "openai/gpt-oss-120b"
	GroqVisionModel = "meta-llama/llama-4-scout-17b-16e-instruct"
	GroqMaxImages   = 5
	GroqBaseURL     = "https://api.groq.com"
)

// GroqDialect serves a fast text model and switches to a vision model for
// turns that carry screenshots.
var GroqDialect = Dialect{
	Descriptor: providers.Descriptor{
		ID:          GroqID,
		DisplayName: "Groq",
		Description: "Ultra-fast inference with vision",
		Capabilities: providers.Capabilities{
			SupportsVision:        true,
			SupportsStreaming:     true,
			SupportsTools:         true,
			RequiresTranscription: true,
		},
		MaxImages:    GroqMaxImages,
		DefaultModel: GroqTextModel,
		VisionModel:  GroqVisionModel,
		APIKeyEnv:    "GROQ_API_KEY",
	},
	DefaultBaseURL:   GroqBaseURL,
	Path:             "/openai/v1/chat/completions",
	CompletionTokens: true,
}

func init() {
	providers.RegisterProviderFactory(GroqDialect.Descriptor, func(cfg providers.Config) (providers.Session, error) {
		return New(GroqDialect, cfg), nil
	})
}
