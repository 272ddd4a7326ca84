package history

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/AltairaLabs/livecoach/logger"
	"github.com/AltairaLabs/livecoach/providers"
)

const (
	defaultBuffer = 64
	writeTimeout  = 5 * time.Second
)

// Recorder persists conversation turns reported by a session. It
// implements providers.Observer without blocking the caller: turns are
// buffered and written by Run.
type Recorder struct {
	store   Store
	turns   chan providers.ConversationTurn
	dropped atomic.Int64
}

// NewRecorder creates a recorder writing to store. buffer bounds the number
// of turns waiting to be written; zero selects a default.
func NewRecorder(store Store, buffer int) *Recorder {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Recorder{store: store, turns: make(chan providers.ConversationTurn, buffer)}
}

// OnStatusUpdate implements providers.Observer.
func (r *Recorder) OnStatusUpdate(string) {}

// OnResponse implements providers.Observer.
func (r *Recorder) OnResponse(string) {}

// OnConversationTurn implements providers.Observer. The turn is dropped if
// the buffer is full.
func (r *Recorder) OnConversationTurn(turn providers.ConversationTurn) {
	select {
	case r.turns <- turn:
	default:
		r.dropped.Add(1)
		logger.Warn("History buffer full, dropping turn", "session_id", turn.SessionID)
	}
}

// Dropped returns the number of turns lost to a full buffer.
func (r *Recorder) Dropped() int64 { return r.dropped.Load() }

// Run writes buffered turns until ctx is done, then flushes what is left.
func (r *Recorder) Run(ctx context.Context) error {
	for {
		select {
		case turn := <-r.turns:
			r.persist(ctx, turn)
		case <-ctx.Done():
			r.flush()
			return nil
		}
	}
}

func (r *Recorder) flush() {
	ctx := context.Background()
	for {
		select {
		case turn := <-r.turns:
			r.persist(ctx, turn)
		default:
			return
		}
	}
}

func (r *Recorder) persist(ctx context.Context, turn providers.ConversationTurn) {
	entry := Entry{
		Timestamp:     turn.Timestamp,
		Transcription: strings.TrimSpace(turn.UserInput),
		AIResponse:    strings.TrimSpace(turn.AIResponse),
	}
	if entry.Transcription == "" || entry.AIResponse == "" {
		return
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()
	if err := r.store.Append(ctx, turn.SessionID, entry); err != nil {
		logger.ErrorContext(logger.WithSessionID(ctx, turn.SessionID), "Failed to save conversation turn", "error", err)
	}
}
