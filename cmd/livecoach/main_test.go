package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AltairaLabs/livecoach/config"
	"github.com/AltairaLabs/livecoach/history"
	"github.com/AltairaLabs/livecoach/providers"
	"github.com/AltairaLabs/livecoach/session"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(""))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "livecoach version")
}

func TestProvidersCommand_Table(t *testing.T) {
	out, err := execute(t, "providers")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.GreaterOrEqual(t, len(lines), 4)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	for _, id := range []string{"gemini", "groq", "openrouter"} {
		assert.Contains(t, out, id)
	}
	assert.Contains(t, out, "GEMINI_API_KEY")
}

func TestProvidersCommand_JSON(t *testing.T) {
	out, err := execute(t, "providers", "--json")
	require.NoError(t, err)

	var descs []providers.Descriptor
	require.NoError(t, json.Unmarshal([]byte(out), &descs))
	byID := map[string]providers.Descriptor{}
	for _, d := range descs {
		byID[d.ID] = d
	}
	require.Contains(t, byID, "gemini")
	assert.True(t, byID["gemini"].Capabilities.SupportsRealtimeAudio)
	require.Contains(t, byID, "groq")
	assert.True(t, byID["groq"].Capabilities.RequiresTranscription)
	assert.Equal(t, 5, byID["groq"].MaxImages)
}

func TestRunCommand_InvalidConfig(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("LIVECOACH_PROVIDER", "nope")

	out, err := execute(t, "run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown provider: nope")
	assert.Contains(t, out, "invalid configuration")
}

func TestOpenHistory(t *testing.T) {
	store, closeFn, err := openHistory(config.HistoryConfig{Backend: config.HistoryNone})
	require.NoError(t, err)
	assert.Nil(t, store)
	closeFn()

	store, closeFn, err = openHistory(config.HistoryConfig{Backend: config.HistoryMemory, TTL: time.Hour})
	require.NoError(t, err)
	assert.IsType(t, &history.MemoryStore{}, store)
	closeFn()

	mr := miniredis.RunT(t)
	store, closeFn, err = openHistory(config.HistoryConfig{Backend: config.HistoryRedis, RedisAddr: mr.Addr(), TTL: time.Hour})
	require.NoError(t, err)
	require.IsType(t, &history.RedisStore{}, store)
	require.NoError(t, store.Append(context.Background(), "s1", history.Entry{Transcription: "q", AIResponse: "a"}))
	assert.True(t, mr.Exists("livecoach:history:s1"))
	closeFn()

	_, _, err = openHistory(config.HistoryConfig{Backend: "sqlite"})
	assert.Error(t, err)
}

func fakeGroq(t *testing.T, answer string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/openai/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		_, _ = io.Copy(io.Discard, r.Body)
		w.Header().Set("Content-Type", "text/event-stream")
		chunk, _ := json.Marshal(map[string]any{
			"choices": []any{map[string]any{"delta": map[string]any{"content": answer}}},
		})
		fmt.Fprintf(w, "data: %s\n\n", chunk)
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(srv.Close)
	return srv
}

func batchConfig(baseURL string) *config.Config {
	return &config.Config{
		Provider: "groq",
		APIKey:   "test-key",
		Profile:  "interview",
		Language: "en-US",
		LogLevel: "info",
		Providers: map[string]config.ProviderConfig{
			"groq": {BaseURL: baseURL, RequestTimeout: 5 * time.Second},
		},
		Audio:   config.AudioConfig{Channels: 2},
		History: config.HistoryConfig{Backend: config.HistoryMemory, TTL: time.Hour},
	}
}

func TestRunSession_AnswersTypedQuestions(t *testing.T) {
	srv := fakeGroq(t, "Talk about the migration project.")

	in := strings.NewReader("\nwhat should I say about my last project?\n/quit\nignored\n")
	var out, errOut bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	require.NoError(t, runSession(ctx, batchConfig(srv.URL), in, &out, &errOut))

	assert.Equal(t, "Talk about the migration project.\n\n", out.String())
	assert.NotContains(t, out.String(), "ignored")
	assert.Contains(t, errOut.String(), "[Ready]")
}

func TestRunSession_EOFEndsSession(t *testing.T) {
	srv := fakeGroq(t, "ok")
	var out, errOut bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	require.NoError(t, runSession(ctx, batchConfig(srv.URL), strings.NewReader(""), &out, &errOut))
	assert.Empty(t, out.String())
}

func TestRunSession_StartFailure(t *testing.T) {
	srv := fakeGroq(t, "ok")
	cfg := batchConfig(srv.URL)
	cfg.Provider = "nope"

	err := runSession(context.Background(), cfg, strings.NewReader(""), io.Discard, io.Discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to start nope session")
}

func TestReadInput_StopsOnCancel(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- readInput(ctx, pr, session.New()) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("readInput did not return after cancel")
	}
}

func TestConsole_StatusDeduplicated(t *testing.T) {
	var out, errOut bytes.Buffer
	c := newConsole(&out, &errOut)

	c.OnStatusUpdate("Processing...")
	c.OnStatusUpdate("Processing...")
	c.OnStatusUpdate("Ready")

	assert.Equal(t, "[Processing...]\n[Ready]\n", errOut.String())
	assert.Empty(t, out.String())
}

func TestConsole_StreamsCumulativeResponses(t *testing.T) {
	var out, errOut bytes.Buffer
	c := newConsole(&out, &errOut)

	c.OnResponse("Hi")
	c.OnResponse("Hi there")
	c.OnConversationTurn(providers.ConversationTurn{UserInput: "hello", AIResponse: "Hi there"})
	c.OnStatusUpdate("Listening...")

	c.OnResponse("Second")
	c.OnStatusUpdate("Listening...")

	assert.Equal(t, "Hi there\n\nSecond\n\n", out.String())
}

func TestConsole_RestartedResponse(t *testing.T) {
	var out bytes.Buffer
	c := newConsole(&out, io.Discard)

	c.OnResponse("First answer")
	c.OnResponse("Other")
	c.OnStatusUpdate("Ready")

	assert.Equal(t, "First answer\n\nOther\n\n", out.String())
}

func TestConsole_TurnWithoutStreaming(t *testing.T) {
	var out bytes.Buffer
	c := newConsole(&out, io.Discard)

	c.OnConversationTurn(providers.ConversationTurn{UserInput: "q", AIResponse: "a"})
	assert.Equal(t, "\n> q\na\n\n", out.String())
}

// syncBuffer is a bytes.Buffer safe for concurrent writers and readers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// fakeLive serves the Live setup handshake, then runs script on the
// connection.
func fakeLive(t *testing.T, script func(conn *websocket.Conn)) string {
	t.Helper()
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
		script(conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func realtimeConfig(url string) *config.Config {
	cfg := batchConfig("")
	cfg.Provider = "gemini"
	cfg.Providers = map[string]config.ProviderConfig{
		"gemini": {BaseURL: url, DialTimeout: 2 * time.Second, SetupTimeout: 2 * time.Second},
	}
	return cfg
}

func TestRunSession_RealtimeAnswerPrinted(t *testing.T) {
	url := fakeLive(t, func(conn *websocket.Conn) {
		for {
			var msg map[string]any
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			in, _ := msg["realtimeInput"].(map[string]any)
			if _, ok := in["text"]; !ok {
				continue
			}
			for _, reply := range []map[string]any{
				{"serverContent": map[string]any{"modelTurn": map[string]any{"parts": []any{map[string]any{"text": "Mention the"}}}}},
				{"serverContent": map[string]any{"modelTurn": map[string]any{"parts": []any{map[string]any{"text": " migration."}}}}},
				{"serverContent": map[string]any{"generationComplete": true}},
				{"serverContent": map[string]any{"turnComplete": true}},
			} {
				if err := conn.WriteJSON(reply); err != nil {
					return
				}
			}
		}
	})

	pr, pw := io.Pipe()
	defer pw.Close()
	var out, errOut syncBuffer
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- runSession(ctx, realtimeConfig(url), pr, &out, &errOut) }()

	_, err := io.WriteString(pw, "what project should I mention?\n")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "Mention the migration.\n\n")
	}, 5*time.Second, 10*time.Millisecond)

	_, err = io.WriteString(pw, "/quit\n")
	require.NoError(t, err)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runSession did not return after /quit")
	}
	assert.Equal(t, "Mention the migration.\n\n", out.String())
	assert.Contains(t, errOut.String(), "[Listening...]")
}

func TestRunSession_EndsWhenProviderCloses(t *testing.T) {
	url := fakeLive(t, func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "backend restart"))
		_, _, _ = conn.ReadMessage()
	})

	pr, pw := io.Pipe()
	defer pw.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- runSession(ctx, realtimeConfig(url), pr, io.Discard, io.Discard) }()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.ErrorIs(t, err, providers.ErrChannelClosed)
		assert.Contains(t, err.Error(), "session ended by gemini")
	case <-time.After(5 * time.Second):
		t.Fatal("runSession kept running after the provider closed the session")
	}
}
