package logger

import "context"

type contextKey string

// Context keys copied onto every record by ContextHandler.
const (
	ContextKeySessionID contextKey = "session_id"
	ContextKeyProvider  contextKey = "provider"
	ContextKeyModel     contextKey = "model"
	ContextKeyProfile   contextKey = "profile"
	ContextKeyRequestID contextKey = "request_id"
)

var allContextKeys = []contextKey{
	ContextKeySessionID,
	ContextKeyProvider,
	ContextKeyModel,
	ContextKeyProfile,
	ContextKeyRequestID,
}

// WithSessionID returns a context carrying the session id.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ContextKeySessionID, id)
}

// WithProvider returns a context carrying the provider name.
func WithProvider(ctx context.Context, provider string) context.Context {
	return context.WithValue(ctx, ContextKeyProvider, provider)
}

// WithModel returns a context carrying the model name.
func WithModel(ctx context.Context, model string) context.Context {
	return context.WithValue(ctx, ContextKeyModel, model)
}

// WithProfile returns a context carrying the prompt profile.
func WithProfile(ctx context.Context, profile string) context.Context {
	return context.WithValue(ctx, ContextKeyProfile, profile)
}

// WithRequestID returns a context carrying a per-request id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, id)
}

// Fields holds the logging values extracted from a context.
type Fields struct {
	SessionID string
	Provider  string
	Model     string
	Profile   string
	RequestID string
}

// ExtractFields reads every known logging value from ctx.
func ExtractFields(ctx context.Context) Fields {
	get := func(k contextKey) string {
		s, _ := ctx.Value(k).(string)
		return s
	}
	return Fields{
		SessionID: get(ContextKeySessionID),
		Provider:  get(ContextKeyProvider),
		Model:     get(ContextKeyModel),
		Profile:   get(ContextKeyProfile),
		RequestID: get(ContextKeyRequestID),
	}
}
