package history

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AltairaLabs/livecoach/providers"
)

func setupRedisStore(t *testing.T, opts ...RedisOption) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, opts...), mr
}

func entry(user, ai string) Entry {
	return Entry{Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), Transcription: user, AIResponse: ai}
}

// storeContract runs the behaviour every Store must share.
func storeContract(t *testing.T, s Store) {
	ctx := context.Background()

	_, err := s.Turns(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Append(ctx, "", entry("a", "b")), ErrInvalidID)

	require.NoError(t, s.Append(ctx, "s1", entry("q1", "a1")))
	require.NoError(t, s.Append(ctx, "s1", entry("q2", "a2")))
	require.NoError(t, s.Append(ctx, "s2", entry("q3", "a3")))

	turns, err := s.Turns(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []Entry{entry("q1", "a1"), entry("q2", "a2")}, turns)

	ids, err := s.Sessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2"}, ids)

	require.NoError(t, s.Delete(ctx, "s1"))
	assert.ErrorIs(t, s.Delete(ctx, "s1"), ErrNotFound)
	_, err = s.Turns(ctx, "s1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, NewMemoryStore(0))
}

func TestRedisStore(t *testing.T) {
	s, _ := setupRedisStore(t)
	storeContract(t, s)
}

func TestMemoryStore_TTL(t *testing.T) {
	s := NewMemoryStore(time.Hour)
	now := time.Now()
	s.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, "s1", entry("q", "a")))
	now = now.Add(2 * time.Hour)

	_, err := s.Turns(ctx, "s1")
	assert.ErrorIs(t, err, ErrNotFound)
	ids, _ := s.Sessions(ctx)
	assert.Empty(t, ids)

	require.NoError(t, s.Append(ctx, "s1", entry("fresh", "start")))
	turns, err := s.Turns(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, turns, 1)
}

func TestRedisStore_TTLRefreshedOnAppend(t *testing.T) {
	s, mr := setupRedisStore(t, WithTTL(time.Hour), WithPrefix("test"))
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, "s1", entry("q", "a")))
	assert.Equal(t, time.Hour, mr.TTL("test:history:s1"))

	mr.FastForward(30 * time.Minute)
	require.NoError(t, s.Append(ctx, "s1", entry("q2", "a2")))
	assert.Equal(t, time.Hour, mr.TTL("test:history:s1"))

	mr.FastForward(2 * time.Hour)
	_, err := s.Turns(ctx, "s1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_StoredFormat(t *testing.T) {
	s, mr := setupRedisStore(t, WithTTL(0))
	require.NoError(t, s.Append(context.Background(), "s1", entry("hi", "hello")))

	items, err := mr.List("livecoach:history:s1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.JSONEq(t, `{"timestamp":"2026-01-02T03:04:05Z","transcription":"hi","ai_response":"hello"}`, items[0])
	assert.Zero(t, mr.TTL("livecoach:history:s1"))
}

func TestRedisStore_CorruptEntry(t *testing.T) {
	s, mr := setupRedisStore(t)
	_, err := mr.Lpush("livecoach:history:bad", "{not json")
	require.NoError(t, err)

	_, err = s.Turns(context.Background(), "bad")
	assert.ErrorContains(t, err, "failed to unmarshal entry")
}

func TestRedisStore_ConnectionError(t *testing.T) {
	s, mr := setupRedisStore(t)
	mr.Close()

	err := s.Append(context.Background(), "s1", entry("q", "a"))
	assert.ErrorContains(t, err, "redis pipeline failed")
}

func TestRecorder_PersistsTurns(t *testing.T) {
	store := NewMemoryStore(0)
	rec := NewRecorder(store, 0)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rec.Run(ctx) }()

	ts := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	rec.OnStatusUpdate("ignored")
	rec.OnResponse("ignored")
	rec.OnConversationTurn(providers.ConversationTurn{SessionID: "s1", Timestamp: ts, UserInput: "  what is 2+2? ", AIResponse: "4\n"})
	rec.OnConversationTurn(providers.ConversationTurn{SessionID: "s1", UserInput: "   ", AIResponse: "skipped"})

	require.Eventually(t, func() bool {
		turns, err := store.Turns(context.Background(), "s1")
		return err == nil && len(turns) == 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	turns, _ := store.Turns(context.Background(), "s1")
	assert.Equal(t, []Entry{{Timestamp: ts, Transcription: "what is 2+2?", AIResponse: "4"}}, turns)
}

func TestRecorder_FlushesOnShutdownAndDropsWhenFull(t *testing.T) {
	store := NewMemoryStore(0)
	rec := NewRecorder(store, 2)

	for i := 0; i < 3; i++ {
		rec.OnConversationTurn(providers.ConversationTurn{SessionID: "s1", UserInput: "q", AIResponse: "a"})
	}
	assert.Equal(t, int64(1), rec.Dropped())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, rec.Run(ctx))

	turns, err := store.Turns(context.Background(), "s1")
	require.NoError(t, err)
	assert.Len(t, turns, 2)
	assert.False(t, turns[0].Timestamp.IsZero())
}
