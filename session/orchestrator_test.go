package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AltairaLabs/livecoach/providers"
	_ "github.com/AltairaLabs/livecoach/providers/all"
)

// fakeAdapter records calls and echoes text through the observer.
type fakeAdapter struct {
	name     string
	caps     providers.Capabilities
	observer providers.Observer
	initErr  error

	mu       sync.Mutex
	active   bool
	opts     providers.SessionOptions
	audio    int
	images   int
	closed   int
	lastText string
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) Capabilities() providers.Capabilities { return f.caps }

func (f *fakeAdapter) SystemPrompt() string { return "" }

func (f *fakeAdapter) Active() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

func (f *fakeAdapter) InitializeSession(_ context.Context, opts providers.SessionOptions) error {
	if f.initErr != nil {
		return f.initErr
	}
	f.mu.Lock()
	f.active, f.opts = true, opts
	f.mu.Unlock()
	f.observer.OnStatusUpdate(f.name + " ready")
	return nil
}

func (f *fakeAdapter) SendText(_ context.Context, text string) (string, error) {
	f.mu.Lock()
	if !f.active {
		f.mu.Unlock()
		return "", providers.ErrNoActiveSession
	}
	f.lastText = text
	sessionID := f.opts.SessionID
	f.mu.Unlock()

	resp := "echo: " + text
	f.observer.OnResponse(resp)
	f.observer.OnConversationTurn(providers.ConversationTurn{SessionID: sessionID, UserInput: text, AIResponse: resp})
	return resp, nil
}

func (f *fakeAdapter) SendImage(context.Context, string, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.images++
	return nil
}

func (f *fakeAdapter) SendAudio(context.Context, string, string) error {
	if !f.caps.SupportsRealtimeAudio {
		return providers.ErrUnsupportedOperation
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audio++
	return nil
}

func (f *fakeAdapter) CloseSession(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.active {
		f.closed++
	}
	f.active = false
	return nil
}

// fakeRegistry hands out fakeAdapters and remembers them.
type fakeRegistry struct {
	mu       sync.Mutex
	created  []*fakeAdapter
	configs  []providers.Config
	initErrs map[string]error
}

func (r *fakeRegistry) create(name string, cfg providers.Config) (providers.Session, error) {
	if name == "nope" {
		return nil, &providers.UnknownProviderError{Name: name}
	}
	a := &fakeAdapter{
		name:     name,
		caps:     providers.Capabilities{SupportsRealtimeAudio: name == "realtime"},
		observer: cfg.Observer,
		initErr:  r.initErrs[name],
	}
	r.mu.Lock()
	r.created = append(r.created, a)
	r.configs = append(r.configs, cfg)
	r.mu.Unlock()
	return a, nil
}

type collector struct {
	mu       sync.Mutex
	statuses []string
	resps    []string
	turns    []providers.ConversationTurn
	closed   []error
}

func (c *collector) OnStatusUpdate(s string) {
	c.mu.Lock()
	c.statuses = append(c.statuses, s)
	c.mu.Unlock()
}

func (c *collector) OnResponse(s string) {
	c.mu.Lock()
	c.resps = append(c.resps, s)
	c.mu.Unlock()
}

func (c *collector) OnConversationTurn(t providers.ConversationTurn) {
	c.mu.Lock()
	c.turns = append(c.turns, t)
	c.mu.Unlock()
}

func (c *collector) OnSessionClosed(err error) {
	c.mu.Lock()
	c.closed = append(c.closed, err)
	c.mu.Unlock()
}

func (c *collector) closedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.closed)
}

func newTestOrchestrator(reg *fakeRegistry) *Orchestrator {
	n := 0
	return New(
		WithFactory(reg.create),
		WithIDGenerator(func() string { n++; return fmt.Sprintf("sess-%d", n) }),
		WithProviderConfig(func(p string) providers.Config {
			return providers.Config{BaseURL: "http://" + p, APIKey: "default"}
		}),
	)
}

func TestStart_PassesOptions(t *testing.T) {
	reg := &fakeRegistry{}
	o := newTestOrchestrator(reg)

	res := o.Start(context.Background(), StartRequest{
		Provider:     "realtime",
		APIKey:       "k1",
		Profile:      "exam",
		Language:     "fr-FR",
		CustomPrompt: "Physics",
		EnabledTools: []string{providers.ToolGoogleSearch},
	})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, providers.KindNone, res.Kind)

	require.Len(t, reg.created, 1)
	a := reg.created[0]
	assert.Equal(t, "sess-1", a.opts.SessionID)
	assert.Equal(t, "exam", a.opts.Profile)
	assert.Equal(t, "fr-FR", a.opts.Language)
	assert.Equal(t, "Physics", a.opts.CustomPrompt)
	assert.True(t, a.opts.SearchEnabled())
	assert.Equal(t, "k1", reg.configs[0].APIKey)
	assert.Equal(t, "http://realtime", reg.configs[0].BaseURL)

	rec, ok := o.Current()
	require.True(t, ok)
	assert.Equal(t, "sess-1", rec.ID)
	assert.Equal(t, "realtime", rec.Provider)
	caps, ok := o.Capabilities()
	require.True(t, ok)
	assert.True(t, caps.SupportsRealtimeAudio)
}

func TestStart_ReplacesActiveSession(t *testing.T) {
	reg := &fakeRegistry{}
	o := newTestOrchestrator(reg)
	ctx := context.Background()

	require.True(t, o.Start(ctx, StartRequest{Provider: "realtime"}).Success)
	require.True(t, o.Start(ctx, StartRequest{Provider: "batch"}).Success)

	require.Len(t, reg.created, 2)
	assert.False(t, reg.created[0].Active())
	assert.Equal(t, 1, reg.created[0].closed)
	assert.True(t, reg.created[1].Active())
	assert.Same(t, reg.created[1], o.Adapter())
}

func TestStart_FailureLeavesNoSession(t *testing.T) {
	reg := &fakeRegistry{initErrs: map[string]error{"broken": &providers.TransportError{Provider: "Broken", StatusCode: 401, Body: "bad key"}}}
	o := newTestOrchestrator(reg)
	ctx := context.Background()

	require.True(t, o.Start(ctx, StartRequest{Provider: "realtime"}).Success)
	res := o.Start(ctx, StartRequest{Provider: "broken"})
	assert.False(t, res.Success)
	assert.Equal(t, providers.KindTransport, res.Kind)

	_, ok := o.Current()
	assert.False(t, ok)
	assert.Nil(t, o.Adapter())
	assert.False(t, reg.created[0].Active())

	send := o.SendText(ctx, "hello")
	assert.Equal(t, providers.KindNoActiveSession, send.Kind)
}

func TestStart_UnknownProvider(t *testing.T) {
	o := newTestOrchestrator(&fakeRegistry{})
	res := o.Start(context.Background(), StartRequest{Provider: "nope"})
	assert.False(t, res.Success)
	assert.Equal(t, providers.KindUnknownProvider, res.Kind)
}

func TestRouting_NoActiveSession(t *testing.T) {
	o := newTestOrchestrator(&fakeRegistry{})
	ctx := context.Background()

	for name, res := range map[string]Result{
		"audio": o.SendAudio(ctx, "AAAA", ""),
		"image": o.SendImage(ctx, "AAAA", ""),
		"text":  o.SendText(ctx, "hi"),
	} {
		assert.False(t, res.Success, name)
		assert.ErrorIs(t, res.Error, providers.ErrNoActiveSession, name)
		assert.Equal(t, providers.KindNoActiveSession, res.Kind, name)
	}
}

func TestRouting_ToActiveAdapter(t *testing.T) {
	reg := &fakeRegistry{}
	o := newTestOrchestrator(reg)
	ctx := context.Background()
	require.True(t, o.Start(ctx, StartRequest{Provider: "realtime"}).Success)

	assert.True(t, o.SendAudio(ctx, "AAAA", "").Success)
	assert.True(t, o.SendImage(ctx, "BBBB", "").Success)
	res := o.SendText(ctx, "hello")
	assert.True(t, res.Success)
	assert.Equal(t, "echo: hello", res.Response)

	a := reg.created[0]
	assert.Equal(t, 1, a.audio)
	assert.Equal(t, 1, a.images)
	assert.Equal(t, "hello", a.lastText)
}

func TestRouting_UnsupportedAudio(t *testing.T) {
	o := newTestOrchestrator(&fakeRegistry{})
	require.True(t, o.Start(context.Background(), StartRequest{Provider: "batch"}).Success)

	res := o.SendAudio(context.Background(), "AAAA", "")
	assert.Equal(t, providers.KindUnsupportedOperation, res.Kind)
}

func TestEventsRelayedToSubscribers(t *testing.T) {
	o := newTestOrchestrator(&fakeRegistry{})
	c1, c2 := &collector{}, &collector{}
	o.Subscribe(c1)
	unsubscribe := o.Subscribe(c2)
	ctx := context.Background()

	require.True(t, o.Start(ctx, StartRequest{Provider: "realtime"}).Success)
	o.SendText(ctx, "one")
	unsubscribe()
	o.SendText(ctx, "two")

	assert.Equal(t, []string{"realtime ready"}, c1.statuses)
	assert.Equal(t, []string{"echo: one", "echo: two"}, c1.resps)
	require.Len(t, c1.turns, 2)
	assert.Equal(t, "sess-1", c1.turns[0].SessionID)
	assert.Equal(t, []string{"echo: one"}, c2.resps)
}

func TestClose_Idempotent(t *testing.T) {
	reg := &fakeRegistry{}
	o := newTestOrchestrator(reg)
	ctx := context.Background()

	require.NoError(t, o.Close(ctx))
	require.True(t, o.Start(ctx, StartRequest{Provider: "realtime"}).Success)
	require.NoError(t, o.Close(ctx))
	require.NoError(t, o.Close(ctx))

	assert.Equal(t, 1, reg.created[0].closed)
	_, ok := o.Current()
	assert.False(t, ok)
	assert.ErrorIs(t, o.SendText(ctx, "hi").Error, providers.ErrNoActiveSession)
}

func TestConcurrentStartsLeaveOneSession(t *testing.T) {
	reg := &fakeRegistry{}
	o := newTestOrchestrator(reg)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.Start(ctx, StartRequest{Provider: "realtime"})
		}()
	}
	wg.Wait()

	active := 0
	for _, a := range reg.created {
		if a.Active() {
			active++
		}
	}
	assert.Equal(t, 1, active)
	assert.True(t, o.Adapter().(*fakeAdapter).Active())
}

func TestStart_WithRegisteredBatchProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"Use a hash map\"}}]}\n\ndata: [DONE]\n\n"))
	}))
	defer srv.Close()

	o := New(WithProviderConfig(func(string) providers.Config {
		return providers.Config{BaseURL: srv.URL}
	}))
	c := &collector{}
	o.Subscribe(c)
	ctx := context.Background()

	require.True(t, o.Start(ctx, StartRequest{Provider: "groq", APIKey: "gsk"}).Success)
	rec, _ := o.Current()
	assert.Len(t, rec.ID, 36)

	res := o.SendText(ctx, "how do I dedupe a list")
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "Use a hash map", res.Response)
	require.Len(t, c.turns, 1)
	assert.Equal(t, rec.ID, c.turns[0].SessionID)

	audio := o.SendAudio(ctx, "AAAA", "")
	assert.True(t, errors.Is(audio.Error, providers.ErrUnsupportedOperation))
	require.NoError(t, o.Close(ctx))
}

func TestProviderClose_DetachesSession(t *testing.T) {
	reg := &fakeRegistry{}
	o := newTestOrchestrator(reg)
	c := &collector{}
	o.Subscribe(c)
	ctx := context.Background()

	require.True(t, o.Start(ctx, StartRequest{Provider: "realtime"}).Success)
	a := reg.created[0]

	providers.NotifyClosed(a.observer, providers.ErrChannelClosed)

	_, ok := o.Current()
	assert.False(t, ok)
	_, ok = o.Capabilities()
	assert.False(t, ok)
	assert.Equal(t, providers.KindNoActiveSession, o.SendAudio(ctx, "AAAA", "").Kind)
	require.Len(t, c.closed, 1)
	assert.ErrorIs(t, c.closed[0], providers.ErrChannelClosed)

	// A later Close has nothing left to tear down.
	require.NoError(t, o.Close(ctx))
	assert.Equal(t, 0, a.closed)
}

func TestProviderClose_StaleAdapterIgnored(t *testing.T) {
	reg := &fakeRegistry{}
	o := newTestOrchestrator(reg)
	c := &collector{}
	o.Subscribe(c)
	ctx := context.Background()

	require.True(t, o.Start(ctx, StartRequest{Provider: "first"}).Success)
	require.True(t, o.Start(ctx, StartRequest{Provider: "second"}).Success)

	providers.NotifyClosed(reg.created[0].observer, providers.ErrChannelClosed)

	rec, ok := o.Current()
	require.True(t, ok)
	assert.Equal(t, "second", rec.Provider)
	assert.Empty(t, c.closed)
}

func TestProviderClose_RealtimeConnectionDropped(t *testing.T) {
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var setup map[string]any
		if err := conn.ReadJSON(&setup); err != nil {
			return
		}
		if err := conn.WriteJSON(map[string]any{"setupComplete": map[string]any{}}); err != nil {
			return
		}
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "backend restart"))
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	o := New(WithProviderConfig(func(string) providers.Config {
		return providers.Config{BaseURL: "ws" + strings.TrimPrefix(srv.URL, "http")}
	}))
	c := &collector{}
	o.Subscribe(c)
	ctx := context.Background()

	res := o.Start(ctx, StartRequest{Provider: "gemini", APIKey: "key"})
	require.True(t, res.Success, res.Error)

	require.Eventually(t, func() bool { return c.closedCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	_, ok := o.Current()
	assert.False(t, ok)
	caps, ok := o.Capabilities()
	assert.False(t, ok)
	assert.False(t, caps.SupportsRealtimeAudio)
	assert.Equal(t, providers.KindNoActiveSession, o.SendAudio(ctx, "AAAA", "").Kind)
	require.NoError(t, o.Close(ctx))
}
