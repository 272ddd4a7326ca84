package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/AltairaLabs/livecoach/logger"
	metrics "github.com/AltairaLabs/livecoach/metrics/prometheus"
	"github.com/AltairaLabs/livecoach/providers"
	"github.com/AltairaLabs/livecoach/providers/internal/streaming"
)

func readMessage(ctx context.Context, conn *streaming.Conn) (*serverMessage, error) {
	data, err := conn.Receive(ctx)
	if err != nil {
		return nil, err
	}
	var msg serverMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to decode server message: %w", err)
	}
	return &msg, nil
}

func (s *Session) receiveLoop(ctx context.Context, conn *streaming.Conn, done chan struct{}) {
	defer close(done)
	for {
		data, err := conn.Receive(ctx)
		if err != nil {
			s.handleChannelClosed(ctx, conn, err)
			return
		}
		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.WarnContext(ctx, "Ignoring undecodable server message", "error", err)
			continue
		}
		s.handleMessage(ctx, conn, &msg)
	}
}

// event is an observer callback collected under the lock and delivered
// after it is released.
type event func(providers.Observer)

func (s *Session) handleMessage(ctx context.Context, conn *streaming.Conn, msg *serverMessage) {
	s.mu.Lock()
	if s.conn != conn {
		// Late message from a connection that has been closed or replaced.
		s.mu.Unlock()
		return
	}
	events := s.apply(msg)
	s.mu.Unlock()

	for _, ev := range events {
		ev(s.observer)
	}
	if msg.Error != nil {
		logger.WarnContext(ctx, "Gemini reported an error", "code", msg.Error.Code, "message", msg.Error.Message)
	}
}

// apply folds one server message into the session buffers. Must be called
// with s.mu held.
func (s *Session) apply(msg *serverMessage) []event {
	var events []event

	if msg.Error != nil {
		status := "Error: " + msg.Error.Message
		events = append(events, func(o providers.Observer) { o.OnStatusUpdate(status) })
	}
	if msg.GoAway != nil {
		status := "Session ending soon"
		if msg.GoAway.TimeLeft != "" {
			status += " (" + msg.GoAway.TimeLeft + " left)"
		}
		events = append(events, func(o providers.Observer) { o.OnStatusUpdate(status) })
	}

	sc := msg.ServerContent
	if sc == nil {
		return events
	}

	if tr := sc.InputTranscription; tr != nil {
		s.transcription.WriteString(tr.Text)
		for _, r := range tr.Results {
			if r.Transcript == "" {
				continue
			}
			if r.SpeakerID > 0 {
				fmt.Fprintf(&s.transcription, "[%s]: %s\n", s.profile.Label(r.SpeakerID), r.Transcript)
			} else {
				s.transcription.WriteString(r.Transcript)
			}
		}
	}

	// A barge-in abandons the partial answer; the next one starts fresh.
	if sc.Interrupted {
		s.response.Reset()
	}

	if sc.ModelTurn != nil {
		for _, p := range sc.ModelTurn.Parts {
			if p.Text == "" {
				continue
			}
			s.response.WriteString(p.Text)
			text := s.response.String()
			events = append(events, func(o providers.Observer) { o.OnResponse(text) })
		}
	}

	if sc.GenerationComplete {
		user, ai := s.transcription.String(), s.response.String()
		s.transcription.Reset()
		s.response.Reset()
		if strings.TrimSpace(user) != "" && strings.TrimSpace(ai) != "" {
			turn := providers.ConversationTurn{
				SessionID:  s.sessionID,
				Timestamp:  time.Now(),
				UserInput:  user,
				AIResponse: ai,
			}
			events = append(events, func(o providers.Observer) { o.OnConversationTurn(turn) })
		}
	}

	if sc.TurnComplete {
		events = append(events, func(o providers.Observer) { o.OnStatusUpdate(StatusListening) })
	}
	return events
}

// handleChannelClosed transitions to closed when the provider or network
// drops the connection. Closes initiated by CloseSession are ignored.
func (s *Session) handleChannelClosed(ctx context.Context, conn *streaming.Conn, err error) {
	s.mu.Lock()
	if s.conn != conn {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	s.conn, s.cancel, s.recvDone = nil, nil, nil
	s.transcription.Reset()
	s.response.Reset()
	s.mu.Unlock()

	cancel()
	_ = conn.Close()

	closeErr := fmt.Errorf("%w: %v", providers.ErrChannelClosed, err)
	if code, reason, ok := streaming.CloseReason(err); ok {
		logger.InfoContext(ctx, "Gemini session closed by provider", "code", code, "reason", reason)
	} else if !errors.Is(err, context.Canceled) {
		logger.ProviderError(ctx, ProviderID, "receive", closeErr)
	}
	metrics.RecordSendError("receive", string(providers.KindChannelClosed))
	s.observer.OnStatusUpdate(StatusClosed)
	providers.NotifyClosed(s.observer, closeErr)
}
