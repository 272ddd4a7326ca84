package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/AltairaLabs/livecoach/logger"
	"github.com/AltairaLabs/livecoach/providers"
)

const maxErrorBody = 64 * 1024

// stream posts the turn and consumes the SSE response, calling onDelta with
// the cumulative text after every content delta.
func (a *Adapter) stream(ctx context.Context, t *turn, onDelta func(string)) (string, error) {
	body, err := json.Marshal(t.req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	headers := map[string]string{
		"Content-Type":  "application/json",
		"Accept":        "text/event-stream",
		"Authorization": "Bearer " + a.cfg.APIKey,
	}
	if a.dialect.Headers != nil {
		for k, v := range a.dialect.Headers(a.cfg) {
			headers[k] = v
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	logger.APIRequest(ctx, a.Name(), http.MethodPost, a.endpoint, headers, json.RawMessage(body))

	resp, err := a.client.Do(req)
	if err != nil {
		return "", a.transportError(0, "", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", a.transportError(resp.StatusCode, strings.TrimSpace(string(msg)), nil)
	}
	return a.readStream(resp.Body, onDelta)
}

func (a *Adapter) readStream(r io.Reader, onDelta func(string)) (string, error) {
	var full strings.Builder
	scanner := providers.NewSSEScanner(r)
	for scanner.Scan() {
		data := scanner.Data()
		if data == providers.SSEDone {
			return full.String(), nil
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return "", a.transportError(0, "", fmt.Errorf("malformed stream chunk: %w", err))
		}
		if chunk.Error != nil {
			return "", a.transportError(0, chunk.Error.Message, nil)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			full.WriteString(delta)
			onDelta(full.String())
		}
	}
	if err := scanner.Err(); err != nil {
		return "", a.transportError(0, "", err)
	}
	return full.String(), nil
}

func (a *Adapter) transportError(status int, body string, err error) error {
	if err == nil && body != "" && status == 0 {
		err = fmt.Errorf("stream error: %s", body)
	}
	return &providers.TransportError{
		Provider:   a.dialect.Descriptor.DisplayName,
		StatusCode: status,
		Body:       body,
		Err:        err,
	}
}
