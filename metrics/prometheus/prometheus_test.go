package prometheus

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordSessionLifecycle(t *testing.T) {
	sessionsActive.Reset()
	sessionStartsTotal.Reset()

	RecordSessionStart("groq", StatusSuccess)
	RecordSessionStart("groq", StatusError)
	assert.Equal(t, 1.0, testutil.ToFloat64(sessionsActive.WithLabelValues("groq")))
	assert.Equal(t, 1.0, testutil.ToFloat64(sessionStartsTotal.WithLabelValues("groq", StatusError)))

	RecordSessionEnd("groq")
	assert.Equal(t, 0.0, testutil.ToFloat64(sessionsActive.WithLabelValues("groq")))
}

func TestRecordProviderRequest(t *testing.T) {
	providerRequestsTotal.Reset()
	providerRequestDuration.Reset()

	RecordProviderRequest("groq", "m", StatusSuccess, 0.5)
	RecordProviderRequest("groq", "m", StatusSuccess, 1.5)
	RecordProviderRequest("groq", "m", StatusError, 0.1)

	assert.Equal(t, 2.0, testutil.ToFloat64(providerRequestsTotal.WithLabelValues("groq", "m", StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(providerRequestsTotal.WithLabelValues("groq", "m", StatusError)))
	assert.Equal(t, 1, testutil.CollectAndCount(providerRequestDuration))
}

func TestRecordCounters(t *testing.T) {
	audioFramesTotal.Reset()
	imagesTotal.Reset()
	conversationTurnsTotal.Reset()
	sendErrorsTotal.Reset()

	RecordAudioFrame("gemini")
	RecordAudioFrame("gemini")
	RecordImage("groq", "queued", 3)
	RecordImage("groq", "attached", 0)
	RecordConversationTurn("groq")
	RecordSendError("send_text", "NoActiveSession")

	before := testutil.ToFloat64(audioBytesDroppedTotal)
	RecordAudioDropped(100)
	RecordAudioDropped(0)

	assert.Equal(t, 2.0, testutil.ToFloat64(audioFramesTotal.WithLabelValues("gemini")))
	assert.Equal(t, 3.0, testutil.ToFloat64(imagesTotal.WithLabelValues("groq", "queued")))
	assert.Equal(t, 1, testutil.CollectAndCount(imagesTotal), "zero counts are not recorded")
	assert.Equal(t, 1.0, testutil.ToFloat64(conversationTurnsTotal.WithLabelValues("groq")))
	assert.Equal(t, 1.0, testutil.ToFloat64(sendErrorsTotal.WithLabelValues("send_text", "NoActiveSession")))
	assert.Equal(t, before+100, testutil.ToFloat64(audioBytesDroppedTotal))
}

func TestCollectors(t *testing.T) {
	assert.Len(t, Collectors(), len(allMetrics))
}

func TestExporterHandler(t *testing.T) {
	RecordConversationTurn("gemini")
	e := NewExporter(":0")

	srv := httptest.NewServer(e.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "livecoach_conversation_turns_total")
	assert.Contains(t, string(body), "go_goroutines")

	resp, err = http.Get(srv.URL + "/health")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, "ok", strings.TrimSpace(string(body)))
}

func TestExporterServeShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	e := NewExporter(ln.Addr().String())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/health")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("exporter did not shut down")
	}
}
