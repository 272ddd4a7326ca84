// Package gemini implements a realtime session over the Gemini Live API.
//
// The adapter keeps one WebSocket open per session. Audio, images and text
// are written fire-and-forget in call order; a single receive goroutine
// accumulates transcription and response fragments and reports turns when
// the server signals generation-complete.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/AltairaLabs/livecoach/logger"
	"github.com/AltairaLabs/livecoach/media"
	metrics "github.com/AltairaLabs/livecoach/metrics/prometheus"
	"github.com/AltairaLabs/livecoach/prompt"
	"github.com/AltairaLabs/livecoach/providers"
	"github.com/AltairaLabs/livecoach/providers/internal/streaming"
	"github.com/AltairaLabs/livecoach/telemetry"
)

// Provider identity and defaults.
const (
	ProviderID     = "gemini"
	DisplayName    = "Google Gemini"
	DefaultModel   = "gemini-live-2.5-flash-preview"
	DefaultBaseURL = "wss://generativelanguage.googleapis.com/ws/" +
		"google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

	defaultLanguage     = "en-US"
	defaultSetupTimeout = 10 * time.Second
	heartbeatInterval   = 30 * time.Second
	closeWait           = 2 * time.Second
)

// Status lines reported through the observer.
const (
	StatusConnected = "Live session connected"
	StatusListening = "Listening..."
	StatusClosed    = "Session closed"
)

var descriptor = providers.Descriptor{
	ID:          ProviderID,
	DisplayName: DisplayName,
	Description: "Real-time audio + vision support",
	Capabilities: providers.Capabilities{
		SupportsRealtimeAudio: true,
		SupportsVision:        true,
		SupportsStreaming:     true,
		SupportsTools:         true,
	},
	DefaultModel: DefaultModel,
	APIKeyEnv:    "GEMINI_API_KEY",
}

func init() {
	providers.RegisterProviderFactory(descriptor, func(cfg providers.Config) (providers.Session, error) {
		return New(cfg), nil
	})
}

// Session is the realtime adapter. Create it with New.
type Session struct {
	cfg      providers.Config
	model    string
	url      string
	observer providers.Observer

	mu        sync.Mutex
	conn      *streaming.Conn
	cancel    context.CancelFunc
	recvDone  chan struct{}
	sessionID string
	prompt    string
	profile   *prompt.Profile

	transcription strings.Builder
	response      strings.Builder
}

// New creates an adapter. No connection is opened until InitializeSession.
func New(cfg providers.Config) *Session {
	if cfg.Observer == nil {
		cfg.Observer = providers.ObserverFuncs{}
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	url := cfg.BaseURL
	if url == "" {
		url = DefaultBaseURL
	}
	if cfg.SetupTimeout <= 0 {
		cfg.SetupTimeout = defaultSetupTimeout
	}
	return &Session{cfg: cfg, model: model, url: url, observer: cfg.Observer}
}

// Name implements providers.Session.
func (s *Session) Name() string { return ProviderID }

// Capabilities implements providers.Session.
func (s *Session) Capabilities() providers.Capabilities { return descriptor.Capabilities }

// Active implements providers.Session.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// SystemPrompt implements providers.Session.
func (s *Session) SystemPrompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prompt
}

// InitializeSession dials the Live API, sends the setup message and waits for
// the setup acknowledgement. An already open session is closed first.
func (s *Session) InitializeSession(ctx context.Context, opts providers.SessionOptions) (err error) {
	if s.Active() {
		_ = s.CloseSession(ctx)
	}

	ctx = logger.WithProvider(logger.WithSessionID(ctx, opts.SessionID), ProviderID)
	ctx, span := telemetry.StartSpan(ctx, "gemini.initialize",
		attribute.String("model", s.model), attribute.String("profile", opts.Profile))
	defer func() { telemetry.EndSpan(span, err) }()

	profile := prompt.Get(opts.Profile)
	systemPrompt := profile.Render(opts.CustomPrompt, opts.SearchEnabled())
	lang := opts.Language
	if lang == "" {
		lang = defaultLanguage
	}

	headers := http.Header{}
	headers.Set("x-goog-api-key", s.cfg.APIKey)
	conn, err := streaming.Dial(ctx, streaming.Config{
		URL:         s.url,
		Headers:     headers,
		DialTimeout: s.cfg.DialTimeout,
		Attempts:    s.cfg.ConnectAttempts,
		Logger:      wsLogger{},
	})
	if err != nil {
		logger.ProviderError(ctx, ProviderID, "connect", err)
		return wrapDialError(err)
	}

	setup := setupMessage{Setup: setupConfig{
		Model: "models/" + s.model,
		GenerationConfig: generationConfig{
			ResponseModalities: []string{"TEXT"},
			SpeechConfig:       speechConfig{LanguageCode: lang},
		},
		SystemInstruction: content{Parts: []part{{Text: systemPrompt}}},
		Tools:             toolDeclarations(opts.EnabledTools),
		InputAudioTranscription: inputAudioTranscription{
			EnableSpeakerDiarization: true,
			MinSpeakerCount:          2,
			MaxSpeakerCount:          2,
		},
	}}
	if err := conn.SendJSON(setup); err != nil {
		_ = conn.Close()
		return &providers.TransportError{Provider: DisplayName, Err: err}
	}
	if err := s.awaitSetup(ctx, conn); err != nil {
		_ = conn.Close()
		logger.ProviderError(ctx, ProviderID, "setup", err)
		return err
	}

	recvCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})

	s.mu.Lock()
	s.conn = conn
	s.cancel = cancel
	s.recvDone = done
	s.sessionID = opts.SessionID
	s.prompt = systemPrompt
	s.profile = profile
	s.transcription.Reset()
	s.response.Reset()
	s.mu.Unlock()

	conn.StartHeartbeat(recvCtx, heartbeatInterval)
	go s.receiveLoop(recvCtx, conn, done)

	logger.InfoContext(ctx, "Live session connected", "model", s.model, "language", lang)
	s.observer.OnStatusUpdate(StatusConnected)
	return nil
}

func (s *Session) awaitSetup(ctx context.Context, conn *streaming.Conn) error {
	setupCtx, cancel := context.WithTimeout(ctx, s.cfg.SetupTimeout)
	defer cancel()

	for {
		msg, err := readMessage(setupCtx, conn)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return fmt.Errorf("%w: waiting for setup acknowledgement", providers.ErrTimeout)
			}
			return &providers.TransportError{Provider: DisplayName, Err: err}
		}
		if msg.Error != nil {
			return &providers.TransportError{
				Provider:   DisplayName,
				StatusCode: msg.Error.Code,
				Body:       msg.Error.Message,
			}
		}
		if msg.SetupComplete != nil {
			return nil
		}
	}
}

func toolDeclarations(enabled []string) []map[string]any {
	tools := make([]map[string]any, 0, len(enabled))
	for _, name := range enabled {
		if name = strings.TrimSpace(name); name != "" {
			tools = append(tools, map[string]any{name: map[string]any{}})
		}
	}
	return tools
}

func wrapDialError(err error) error {
	var hs *streaming.HandshakeError
	if errors.As(err, &hs) {
		return &providers.TransportError{Provider: DisplayName, StatusCode: hs.StatusCode, Body: hs.Err.Error(), Err: err}
	}
	return &providers.TransportError{Provider: DisplayName, Err: err}
}

// SendText forwards trimmed text. The response arrives through the observer.
func (s *Session) SendText(ctx context.Context, text string) (string, error) {
	if !s.Active() {
		return "", providers.ErrNoActiveSession
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: empty text", providers.ErrInvalidPayload)
	}
	return "", s.send(ctx, "send_text", realtimeInput{Text: &text})
}

// SendImage forwards a base64 image inline.
func (s *Session) SendImage(ctx context.Context, base64Data, mimeType string) error {
	if !s.Active() {
		return providers.ErrNoActiveSession
	}
	if _, err := media.ValidateBase64Image(base64Data); err != nil {
		return fmt.Errorf("%w: %v", providers.ErrInvalidPayload, err)
	}
	if mimeType == "" {
		mimeType = media.MIMETypeJPEG
	}
	if err := s.send(ctx, "send_image", realtimeInput{Media: &blob{Data: base64Data, MimeType: mimeType}}); err != nil {
		return err
	}
	metrics.RecordImage(ProviderID, "sent", 1)
	return nil
}

// SendAudio forwards one base64 PCM frame.
func (s *Session) SendAudio(ctx context.Context, base64Data, mimeType string) error {
	if !s.Active() {
		return providers.ErrNoActiveSession
	}
	if base64Data == "" {
		return fmt.Errorf("%w: empty audio", providers.ErrInvalidPayload)
	}
	if mimeType == "" {
		mimeType = "audio/pcm;rate=24000"
	}
	if err := s.send(ctx, "send_audio", realtimeInput{Audio: &blob{Data: base64Data, MimeType: mimeType}}); err != nil {
		return err
	}
	metrics.RecordAudioFrame(ProviderID)
	return nil
}

func (s *Session) send(ctx context.Context, op string, in realtimeInput) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return providers.ErrNoActiveSession
	}

	if err := conn.SendJSON(realtimeInputMessage{RealtimeInput: in}); err != nil {
		if errors.Is(err, streaming.ErrClosed) {
			return providers.ErrNoActiveSession
		}
		logger.ProviderError(ctx, ProviderID, op, err)
		return &providers.TransportError{Provider: DisplayName, Err: err}
	}
	return nil
}

// CloseSession closes the socket and waits briefly for the receive loop to
// exit. Calling it on a closed session is a no-op.
func (s *Session) CloseSession(ctx context.Context) error {
	s.mu.Lock()
	conn, cancel, done := s.conn, s.cancel, s.recvDone
	s.conn, s.cancel, s.recvDone = nil, nil, nil
	s.transcription.Reset()
	s.response.Reset()
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	cancel()
	err := conn.Close()

	select {
	case <-done:
	case <-ctx.Done():
	case <-time.After(closeWait):
	}
	s.observer.OnStatusUpdate(StatusClosed)
	return err
}

type wsLogger struct{}

func (wsLogger) Debug(msg string, kv ...any) {
	logger.Debug(msg, append([]any{"component", "gemini"}, kv...)...)
}

func (wsLogger) Warn(msg string, kv ...any) {
	logger.Warn(msg, append([]any{"component", "gemini"}, kv...)...)
}
