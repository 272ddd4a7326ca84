// Package providers defines the session contract shared by every LLM backend
// and the registry that maps provider names to adapters.
//
// A Session is either realtime (a persistent bidirectional channel that
// accepts continuous audio) or batch (stateless HTTP turns with an explicit
// transcript). Callers branch on Capabilities, never on provider names.
package providers

import (
	"context"
	"slices"
	"time"
)

// ToolGoogleSearch is the tool name that enables the search clause of the
// system prompt.
const ToolGoogleSearch = "googleSearch"

// Capabilities is the static descriptor of what a provider can do.
type Capabilities struct {
	SupportsRealtimeAudio bool `json:"supports_realtime_audio"`
	SupportsVision        bool `json:"supports_vision"`
	SupportsStreaming     bool `json:"supports_streaming"`
	SupportsTools         bool `json:"supports_tools"`
	RequiresTranscription bool `json:"requires_transcription"`
}

// SessionOptions configures InitializeSession.
type SessionOptions struct {
	SessionID    string
	Profile      string
	Language     string
	CustomPrompt string
	EnabledTools []string
	// Functions are forwarded to batch providers that support tool calls.
	Functions []FunctionTool
}

// FunctionTool is a function declaration in the chat-completions format.
type FunctionTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// SearchEnabled reports whether the search tool is requested.
func (o *SessionOptions) SearchEnabled() bool {
	return slices.Contains(o.EnabledTools, ToolGoogleSearch)
}

// ConversationTurn is one completed exchange. Both sides are non-empty.
type ConversationTurn struct {
	SessionID  string    `json:"session_id"`
	Timestamp  time.Time `json:"timestamp"`
	UserInput  string    `json:"transcription"`
	AIResponse string    `json:"ai_response"`
}

// Observer receives session events. Implementations must not block; they are
// called from the adapter's send or receive goroutine.
type Observer interface {
	// OnStatusUpdate reports a human-readable status line.
	OnStatusUpdate(status string)
	// OnResponse reports the cumulative response text so far.
	OnResponse(text string)
	// OnConversationTurn reports a completed turn.
	OnConversationTurn(turn ConversationTurn)
}

// CloseObserver is implemented by observers that track sessions ended by
// the provider or the network. It is not called for CloseSession.
type CloseObserver interface {
	OnSessionClosed(err error)
}

// NotifyClosed delivers OnSessionClosed when obs implements CloseObserver.
func NotifyClosed(obs Observer, err error) {
	if co, ok := obs.(CloseObserver); ok {
		co.OnSessionClosed(err)
	}
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	Status   func(string)
	Response func(string)
	Turn     func(ConversationTurn)
	Closed   func(error)
}

// OnStatusUpdate implements Observer.
func (f ObserverFuncs) OnStatusUpdate(s string) {
	if f.Status != nil {
		f.Status(s)
	}
}

// OnResponse implements Observer.
func (f ObserverFuncs) OnResponse(s string) {
	if f.Response != nil {
		f.Response(s)
	}
}

// OnConversationTurn implements Observer.
func (f ObserverFuncs) OnConversationTurn(t ConversationTurn) {
	if f.Turn != nil {
		f.Turn(t)
	}
}

// OnSessionClosed implements CloseObserver.
func (f ObserverFuncs) OnSessionClosed(err error) {
	if f.Closed != nil {
		f.Closed(err)
	}
}

// Session is the contract every provider adapter implements.
type Session interface {
	// Name returns the provider id.
	Name() string
	// Capabilities returns the static capability flags.
	Capabilities() Capabilities
	// InitializeSession resolves the system prompt, opens whatever connection
	// the provider needs and marks the session active.
	InitializeSession(ctx context.Context, opts SessionOptions) error
	// SendText forwards user text. Batch providers return the full response;
	// realtime providers return "" and report output through the Observer.
	SendText(ctx context.Context, text string) (string, error)
	// SendImage forwards or queues a base64 encoded image.
	SendImage(ctx context.Context, base64Data, mimeType string) error
	// SendAudio forwards a base64 encoded audio frame.
	SendAudio(ctx context.Context, base64Data, mimeType string) error
	// CloseSession releases the connection. It is idempotent.
	CloseSession(ctx context.Context) error
	// Active reports whether the session is initialized and open.
	Active() bool
	// SystemPrompt returns the resolved prompt of the current session.
	SystemPrompt() string
}
