package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AltairaLabs/livecoach/logger"
	metrics "github.com/AltairaLabs/livecoach/metrics/prometheus"
	"github.com/AltairaLabs/livecoach/providers"
	"github.com/AltairaLabs/livecoach/telemetry"
)

// StartRequest selects a provider and configures the new session.
type StartRequest struct {
	Provider     string
	APIKey       string
	Profile      string
	Language     string
	CustomPrompt string
	EnabledTools []string
	Functions    []providers.FunctionTool
}

// Record describes the current session.
type Record struct {
	ID           string
	Provider     string
	Profile      string
	Language     string
	StartedAt    time.Time
	Capabilities providers.Capabilities
}

// Result is the outcome of an orchestrator operation.
type Result struct {
	Success  bool
	Response string
	Error    error
	Kind     providers.ErrorKind
}

func success(response string) Result {
	return Result{Success: true, Response: response, Kind: providers.KindNone}
}

func failure(err error) Result {
	return Result{Error: err, Kind: providers.KindOf(err)}
}

// Orchestrator is safe for concurrent use. Start and Close are serialised.
type Orchestrator struct {
	providerConfig func(string) providers.Config
	create         Factory
	newID          func() string

	lifecycleMu sync.Mutex

	mu      sync.RWMutex
	current providers.Session
	record  Record

	listenersMu sync.RWMutex
	listeners   []listener
	nextID      int
}

type listener struct {
	id  int
	obs providers.Observer
}

// New creates an orchestrator with no active session.
func New(opts ...Option) *Orchestrator {
	o := &Orchestrator{
		providerConfig: func(string) providers.Config { return providers.Config{} },
		create:         providers.Create,
		newID:          uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Subscribe registers obs for status, response and turn events of every
// session. The returned function removes it.
func (o *Orchestrator) Subscribe(obs providers.Observer) (unsubscribe func()) {
	o.listenersMu.Lock()
	defer o.listenersMu.Unlock()
	o.nextID++
	id := o.nextID
	o.listeners = append(o.listeners, listener{id: id, obs: obs})
	return func() {
		o.listenersMu.Lock()
		defer o.listenersMu.Unlock()
		for i, l := range o.listeners {
			if l.id == id {
				o.listeners = append(o.listeners[:i], o.listeners[i+1:]...)
				return
			}
		}
	}
}

func (o *Orchestrator) each(fn func(providers.Observer)) {
	o.listenersMu.RLock()
	ls := append([]listener(nil), o.listeners...)
	o.listenersMu.RUnlock()
	for _, l := range ls {
		fn(l.obs)
	}
}

// Start closes any active session, then creates and initialises a new one.
// On failure no session is left current.
func (o *Orchestrator) Start(ctx context.Context, req StartRequest) (res Result) {
	o.lifecycleMu.Lock()
	defer o.lifecycleMu.Unlock()

	if err := o.closeLocked(ctx); err != nil {
		logger.WarnContext(ctx, "Previous session did not close cleanly", "error", err)
	}

	id := o.newID()
	ctx = logger.WithProvider(logger.WithSessionID(ctx, id), req.Provider)
	ctx = logger.WithProfile(ctx, req.Profile)
	ctx, span := telemetry.StartSpan(ctx, "session.start",
		attribute.String("provider", req.Provider), attribute.String("session_id", id))
	defer func() { telemetry.EndSpan(span, res.Error) }()

	cfg := o.providerConfig(req.Provider)
	if req.APIKey != "" {
		cfg.APIKey = req.APIKey
	}
	rl := &relay{o: o, provider: req.Provider}
	cfg.Observer = rl

	sess, err := o.create(req.Provider, cfg)
	if err != nil {
		metrics.RecordSessionStart(req.Provider, metrics.StatusError)
		logger.ErrorContext(ctx, "Failed to create provider session", "error", err)
		return failure(err)
	}
	rl.provider = sess.Name()
	rl.session = sess

	opts := providers.SessionOptions{
		SessionID:    id,
		Profile:      req.Profile,
		Language:     req.Language,
		CustomPrompt: req.CustomPrompt,
		EnabledTools: req.EnabledTools,
		Functions:    req.Functions,
	}
	if err := sess.InitializeSession(ctx, opts); err != nil {
		_ = sess.CloseSession(ctx)
		metrics.RecordSessionStart(req.Provider, metrics.StatusError)
		logger.ErrorContext(ctx, "Failed to initialize session", "error", err)
		return failure(err)
	}

	o.mu.Lock()
	o.current = sess
	o.record = Record{
		ID:           id,
		Provider:     sess.Name(),
		Profile:      req.Profile,
		Language:     req.Language,
		StartedAt:    time.Now(),
		Capabilities: sess.Capabilities(),
	}
	o.mu.Unlock()

	metrics.RecordSessionStart(sess.Name(), metrics.StatusSuccess)
	logger.InfoContext(ctx, "Session started")
	return success("")
}

// Close tears down the active session. Closing with no session is a no-op.
func (o *Orchestrator) Close(ctx context.Context) error {
	o.lifecycleMu.Lock()
	defer o.lifecycleMu.Unlock()
	return o.closeLocked(ctx)
}

func (o *Orchestrator) closeLocked(ctx context.Context) error {
	o.mu.Lock()
	sess, rec := o.current, o.record
	o.current, o.record = nil, Record{}
	o.mu.Unlock()
	if sess == nil {
		return nil
	}

	err := sess.CloseSession(ctx)
	metrics.RecordSessionEnd(rec.Provider)
	logger.InfoContext(logger.WithSessionID(ctx, rec.ID), "Session closed",
		"provider", rec.Provider, "duration", time.Since(rec.StartedAt).Round(time.Millisecond))
	return err
}

// Current returns the record of the active session.
func (o *Orchestrator) Current() (Record, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.record, o.current != nil
}

// Capabilities reports the active adapter's capabilities.
func (o *Orchestrator) Capabilities() (providers.Capabilities, bool) {
	rec, ok := o.Current()
	return rec.Capabilities, ok
}

// Adapter returns the active adapter, or nil.
func (o *Orchestrator) Adapter() providers.Session {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.current
}

// SendAudio routes one base64 PCM frame to the active session.
func (o *Orchestrator) SendAudio(ctx context.Context, base64Data, mimeType string) Result {
	return o.route(ctx, "send_audio", func(s providers.Session) (string, error) {
		return "", s.SendAudio(ctx, base64Data, mimeType)
	})
}

// SendImage routes one base64 screenshot to the active session.
func (o *Orchestrator) SendImage(ctx context.Context, base64Data, mimeType string) Result {
	return o.route(ctx, "send_image", func(s providers.Session) (string, error) {
		return "", s.SendImage(ctx, base64Data, mimeType)
	})
}

// SendText routes user text to the active session. Batch sessions return
// the full response; realtime sessions answer through the observers.
func (o *Orchestrator) SendText(ctx context.Context, text string) Result {
	return o.route(ctx, "send_text", func(s providers.Session) (string, error) {
		return s.SendText(ctx, text)
	})
}

func (o *Orchestrator) route(ctx context.Context, op string, fn func(providers.Session) (string, error)) Result {
	o.mu.RLock()
	sess, id := o.current, o.record.ID
	o.mu.RUnlock()

	var (
		resp string
		err  error
	)
	if sess == nil {
		err = providers.ErrNoActiveSession
	} else {
		resp, err = fn(sess)
	}
	if err != nil {
		kind := providers.KindOf(err)
		metrics.RecordSendError(op, string(kind))
		logger.DebugContext(logger.WithSessionID(ctx, id), "Send failed", "op", op, "kind", kind, "error", err)
		return failure(err)
	}
	return success(resp)
}

// detach clears sess if it is still current. It reports whether it did.
func (o *Orchestrator) detach(sess providers.Session) bool {
	o.lifecycleMu.Lock()
	defer o.lifecycleMu.Unlock()

	o.mu.Lock()
	if o.current != sess {
		o.mu.Unlock()
		return false
	}
	rec := o.record
	o.current, o.record = nil, Record{}
	o.mu.Unlock()

	metrics.RecordSessionEnd(rec.Provider)
	logger.InfoContext(logger.WithSessionID(context.Background(), rec.ID), "Session ended by provider",
		"provider", rec.Provider, "duration", time.Since(rec.StartedAt).Round(time.Millisecond))
	return true
}

// relay forwards adapter events to subscribers unchanged.
type relay struct {
	o        *Orchestrator
	provider string
	session  providers.Session
}

func (r *relay) OnStatusUpdate(status string) {
	r.o.each(func(obs providers.Observer) { obs.OnStatusUpdate(status) })
}

func (r *relay) OnResponse(text string) {
	r.o.each(func(obs providers.Observer) { obs.OnResponse(text) })
}

func (r *relay) OnConversationTurn(turn providers.ConversationTurn) {
	metrics.RecordConversationTurn(r.provider)
	r.o.each(func(obs providers.Observer) { obs.OnConversationTurn(turn) })
}

// OnSessionClosed drops the adapter when the provider ends the session. The
// event reaches subscribers only if that adapter was still current.
func (r *relay) OnSessionClosed(err error) {
	if !r.o.detach(r.session) {
		return
	}
	r.o.each(func(obs providers.Observer) { providers.NotifyClosed(obs, err) })
}
