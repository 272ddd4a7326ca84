// Package chat implements batch sessions over OpenAI-compatible
// chat-completions endpoints. Groq and OpenRouter register dialects of the
// same adapter.
//
// The adapter keeps the transcript locally and replays it on every request.
// Screenshots are queued and only attached to a turn whose text refers to
// something visual, in which case the vision model variant is used.
package chat

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
	"github.com/AltairaLabs/livecoach/telemetry"
)

const (
	defaultRequestTimeout = 60 * time.Second
	defaultTemperature    = 0.7
	defaultMaxTokens      = 2048

	// StatusReady is reported after every successful turn.
	StatusReady = "Ready"
	// StatusProcessing is reported when a text-only turn starts.
	StatusProcessing = "Processing..."
	// StatusImagesCleared is reported by ClearPendingImages.
	StatusImagesCleared = "Pending images cleared"
)

// Dialect describes one chat-completions provider.
type Dialect struct {
	Descriptor     providers.Descriptor
	DefaultBaseURL string
	Path           string
	// CompletionTokens selects max_completion_tokens over max_tokens.
	CompletionTokens bool
	// Headers returns provider-specific request headers.
	Headers func(cfg providers.Config) map[string]string
}

// Adapter is a batch providers.Session.
type Adapter struct {
	dialect     Dialect
	cfg         providers.Config
	client      *http.Client
	endpoint    string
	textModel   string
	visionModel string
	observer    providers.Observer
	images      *media.ImageQueue

	// turnMu serialises turns so history is appended in order.
	turnMu sync.Mutex

	mu         sync.Mutex
	active     bool
	generation uint64
	sessionID  string
	prompt     string
	functions  []providers.FunctionTool
	history    []message
	inflight   context.CancelFunc
}

// New creates an adapter for d. No request is made until SendText.
func New(d Dialect, cfg providers.Config) *Adapter {
	if cfg.Observer == nil {
		cfg.Observer = providers.ObserverFuncs{}
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = d.DefaultBaseURL
	}
	textModel := cfg.Model
	if textModel == "" {
		textModel = d.Descriptor.DefaultModel
	}
	visionModel := cfg.VisionModel
	if visionModel == "" {
		visionModel = d.Descriptor.VisionModel
	}
	if visionModel == "" {
		visionModel = textModel
	}
	maxImages := cfg.MaxImages
	if maxImages <= 0 {
		maxImages = d.Descriptor.MaxImages
	}

	return &Adapter{
		dialect:     d,
		cfg:         cfg,
		client:      telemetry.HTTPClient(cfg.HTTPClient),
		endpoint:    base + d.Path,
		textModel:   textModel,
		visionModel: visionModel,
		observer:    cfg.Observer,
		images:      media.NewImageQueue(maxImages),
	}
}

// Name implements providers.Session.
func (a *Adapter) Name() string { return a.dialect.Descriptor.ID }

// Capabilities implements providers.Session.
func (a *Adapter) Capabilities() providers.Capabilities {
	return a.dialect.Descriptor.Capabilities
}

// Active implements providers.Session.
func (a *Adapter) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

// SystemPrompt implements providers.Session.
func (a *Adapter) SystemPrompt() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.prompt
}

// PendingImages returns the number of queued screenshots.
func (a *Adapter) PendingImages() int { return a.images.Size() }

// ClearPendingImages drops every queued screenshot.
func (a *Adapter) ClearPendingImages() {
	n := a.images.Size()
	a.images.Clear()
	logger.Debug("Cleared pending images", "provider", a.Name(), "count", n)
	a.observer.OnStatusUpdate(StatusImagesCleared)
}

// InitializeSession resets the transcript and renders the system prompt.
// Batch providers cannot run the search tool, so the search clause is never
// included.
func (a *Adapter) InitializeSession(ctx context.Context, opts providers.SessionOptions) error {
	p := prompt.Get(opts.Profile)
	systemPrompt := p.Render(opts.CustomPrompt, false)

	a.mu.Lock()
	if a.inflight != nil {
		a.inflight()
		a.inflight = nil
	}
	a.generation++
	a.active = true
	a.sessionID = opts.SessionID
	a.prompt = systemPrompt
	a.history = nil
	a.functions = nil
	if a.Capabilities().SupportsTools {
		a.functions = opts.Functions
	}
	a.mu.Unlock()
	a.images.Clear()

	ctx = logger.WithProvider(logger.WithSessionID(ctx, opts.SessionID), a.Name())
	logger.InfoContext(ctx, "Batch session ready", "model", a.textModel, "vision_model", a.visionModel, "profile", p.Name)
	a.observer.OnStatusUpdate(a.dialect.Descriptor.DisplayName + " session ready")
	return nil
}

// SendImage queues a screenshot for the next vision-relevant turn. It makes
// no request.
func (a *Adapter) SendImage(ctx context.Context, base64Data, mimeType string) error {
	if !a.Active() {
		return providers.ErrNoActiveSession
	}
	if _, err := media.ValidateBase64Image(base64Data); err != nil {
		return fmt.Errorf("%w: %v", providers.ErrInvalidPayload, err)
	}
	if mimeType == "" {
		mimeType = media.MIMETypeJPEG
	}

	before := a.images.Evicted()
	n := a.images.Push(media.QueuedImage{MIMEType: mimeType, Base64Data: base64Data})
	metrics.RecordImage(a.Name(), "queued", 1)
	if evicted := a.images.Evicted() - before; evicted > 0 {
		metrics.RecordImage(a.Name(), "evicted", evicted)
	}
	logger.DebugContext(ctx, "Image queued", "provider", a.Name(), "pending", n)
	a.observer.OnStatusUpdate(fmt.Sprintf("Image queued (%d pending)", n))
	return nil
}

// SendAudio is unsupported: batch providers need transcribed text.
func (a *Adapter) SendAudio(context.Context, string, string) error {
	return fmt.Errorf("%w: %s requires transcribed text", providers.ErrUnsupportedOperation, a.Name())
}

// SendText runs one turn and returns the full response. Queued screenshots
// are attached only when the text looks like a question about them.
func (a *Adapter) SendText(ctx context.Context, text string) (resp string, err error) {
	if !a.Active() {
		return "", providers.ErrNoActiveSession
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: empty text", providers.ErrInvalidPayload)
	}

	a.turnMu.Lock()
	defer a.turnMu.Unlock()

	t, err := a.beginTurn(ctx, text)
	if err != nil {
		return "", err
	}
	defer t.cancel()

	ctx = logger.WithModel(logger.WithProvider(logger.WithSessionID(ctx, t.sessionID), a.Name()), t.model)
	ctx, span := telemetry.StartSpan(ctx, a.Name()+".send_text",
		attribute.String("model", t.model), attribute.Int("images", t.images))
	defer func() { telemetry.EndSpan(span, err) }()

	if t.images > 0 {
		metrics.RecordImage(a.Name(), "attached", t.images)
		a.observer.OnStatusUpdate(fmt.Sprintf("Processing with %d images...", t.images))
	} else {
		a.observer.OnStatusUpdate(StatusProcessing)
	}
	logger.ProviderCall(ctx, a.Name(), t.model, len(t.req.Messages), t.images)

	start := time.Now()
	full, err := a.stream(t.ctx, t, func(soFar string) {
		if a.current(t.generation) {
			a.observer.OnResponse(soFar)
		}
	})
	status := metrics.StatusSuccess
	if err != nil {
		status = metrics.StatusError
	}
	metrics.RecordProviderRequest(a.Name(), t.model, status, time.Since(start).Seconds())

	return a.finishTurn(ctx, t, text, full, err)
}

type turn struct {
	ctx        context.Context
	cancel     context.CancelFunc
	generation uint64
	sessionID  string
	model      string
	images     int
	req        completionRequest
}

// beginTurn appends the user message and snapshots the request under the
// session lock.
func (a *Adapter) beginTurn(ctx context.Context, text string) (*turn, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.active {
		return nil, providers.ErrNoActiveSession
	}

	model := a.textModel
	var content any = text
	var attached []media.QueuedImage
	if a.images.Size() > 0 && IsVisionQuery(text) {
		attached = a.images.TakeAll()
		model = a.visionModel
		parts := make([]contentPart, 0, len(attached)+1)
		parts = append(parts, contentPart{Type: "text", Text: text})
		for _, img := range attached {
			parts = append(parts, contentPart{
				Type:     "image_url",
				ImageURL: &imageURL{URL: dataURL(img.MIMEType, img.Base64Data)},
			})
		}
		content = parts
	}
	a.history = append(a.history, message{Role: roleUser, Content: content})

	msgs := make([]message, 0, len(a.history)+1)
	msgs = append(msgs, message{Role: roleSystem, Content: a.prompt})
	msgs = append(msgs, a.history...)

	req := completionRequest{
		Model:       model,
		Messages:    msgs,
		Stream:      true,
		Temperature: defaultTemperature,
	}
	if a.dialect.CompletionTokens {
		req.MaxCompletionTokens = defaultMaxTokens
	} else {
		req.MaxTokens = defaultMaxTokens
	}
	for _, fn := range a.functions {
		req.Tools = append(req.Tools, toolDef{Type: "function", Function: toolFunction(fn)})
	}
	if len(req.Tools) > 0 {
		req.ToolChoice = "auto"
	}

	tctx, cancel := context.WithTimeout(ctx, a.cfg.RequestTimeout)
	a.inflight = cancel
	return &turn{
		ctx:        tctx,
		cancel:     cancel,
		generation: a.generation,
		sessionID:  a.sessionID,
		model:      model,
		images:     len(attached),
		req:        req,
	}, nil
}

// finishTurn commits or rolls back the turn. Results of a turn whose session
// was closed or replaced meanwhile are discarded.
func (a *Adapter) finishTurn(ctx context.Context, t *turn, text, full string, err error) (string, error) {
	a.mu.Lock()
	if a.generation != t.generation || !a.active {
		a.mu.Unlock()
		logger.DebugContext(ctx, "Discarding response for closed session")
		return "", providers.ErrNoActiveSession
	}
	a.inflight = nil
	if err != nil || full == "" {
		a.history = a.history[:len(a.history)-1]
		a.mu.Unlock()
		if err == nil {
			a.observer.OnStatusUpdate(StatusReady)
			return "", nil
		}
		err = a.classify(t.ctx, err)
		logger.ProviderError(ctx, a.Name(), "send_text", err)
		a.observer.OnStatusUpdate("Error: " + err.Error())
		return "", err
	}
	a.history = append(a.history, message{Role: roleAssistant, Content: full})
	a.mu.Unlock()

	logger.ProviderResponse(ctx, a.Name(), len(full))
	a.observer.OnStatusUpdate(StatusReady)
	a.observer.OnConversationTurn(providers.ConversationTurn{
		SessionID:  t.sessionID,
		Timestamp:  time.Now(),
		UserInput:  text,
		AIResponse: full,
	})
	return full, nil
}

// classify maps an expired request deadline to ErrTimeout.
func (a *Adapter) classify(reqCtx context.Context, err error) error {
	if errors.Is(reqCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, providers.ErrTimeout) {
		return fmt.Errorf("%w: %s request exceeded %s", providers.ErrTimeout, a.Name(), a.cfg.RequestTimeout)
	}
	return err
}

func (a *Adapter) current(generation uint64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active && a.generation == generation
}

// CloseSession clears local state and abandons any in-flight request.
func (a *Adapter) CloseSession(context.Context) error {
	a.mu.Lock()
	wasActive := a.active
	a.active = false
	a.generation++
	a.history = nil
	if a.inflight != nil {
		a.inflight()
		a.inflight = nil
	}
	a.mu.Unlock()
	a.images.Clear()

	if wasActive {
		logger.Info("Batch session closed", "provider", a.Name())
	}
	return nil
}
