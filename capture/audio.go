package capture

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/AltairaLabs/livecoach/audio"
	"github.com/AltairaLabs/livecoach/logger"
	metrics "github.com/AltairaLabs/livecoach/metrics/prometheus"
	"github.com/AltairaLabs/livecoach/providers"
	"github.com/AltairaLabs/livecoach/session"
)

const readChunk = 4096

// ErrAudioUnsupported is returned by AudioProcess.Run when the active
// session does not accept realtime audio.
var ErrAudioUnsupported = errors.New("active session does not accept realtime audio")

// AudioSink is the destination of captured frames. *session.Orchestrator
// implements it.
type AudioSink interface {
	Capabilities() (providers.Capabilities, bool)
	SendAudio(ctx context.Context, base64Data, mimeType string) session.Result
}

// AudioConfig describes the helper process and its output format.
type AudioConfig struct {
	Command string
	Args    []string
	// Channels of the helper's output. Defaults to 2.
	Channels int
	// SampleRate of the helper's output. Defaults to 24000.
	SampleRate int
	// DebugDumpDir, when set, receives a WAV copy of every frame sent.
	DebugDumpDir string
}

// AudioProcess turns the helper's PCM byte stream into provider frames.
type AudioProcess struct {
	cfg    AudioConfig
	sink   AudioSink
	buffer *audio.FrameBuffer
}

// NewAudioProcess validates cfg and prepares the frame buffer.
func NewAudioProcess(cfg AudioConfig, sink AudioSink) (*AudioProcess, error) {
	if cfg.Channels == 0 {
		cfg.Channels = 2
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = audio.SampleRate24kHz
	}
	buf, err := audio.NewFrameBuffer(audio.FrameBufferConfig{
		SampleRate: cfg.SampleRate,
		Channels:   cfg.Channels,
	})
	if err != nil {
		return nil, err
	}
	return &AudioProcess{cfg: cfg, sink: sink, buffer: buf}, nil
}

// Run starts the helper and pumps its output until ctx is done or the
// helper exits.
func (p *AudioProcess) Run(ctx context.Context) error {
	if p.cfg.Command == "" {
		return errors.New("audio capture command not configured")
	}
	if caps, ok := p.sink.Capabilities(); !ok || !caps.SupportsRealtimeAudio {
		return ErrAudioUnsupported
	}

	cmd := exec.CommandContext(ctx, p.cfg.Command, p.cfg.Args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open helper stdout: %w", err)
	}
	cmd.Stderr = helperLog{}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start audio helper: %w", err)
	}
	logger.InfoContext(ctx, "Audio capture started", "command", p.cfg.Command, "pid", cmd.Process.Pid)

	pumpErr := p.Pump(ctx, stdout)
	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		return nil
	}
	if pumpErr != nil {
		return pumpErr
	}
	if waitErr != nil {
		return fmt.Errorf("audio helper exited: %w", waitErr)
	}
	return nil
}

// helperLog forwards the helper's stderr to the debug log.
type helperLog struct{}

func (helperLog) Write(p []byte) (int, error) {
	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		logger.Debug("Audio helper", "line", line)
	}
	return len(p), nil
}

// Pump reads PCM from r, frames it and sends every complete frame. It
// returns when r is exhausted or ctx is done.
func (p *AudioProcess) Pump(ctx context.Context, r io.Reader) error {
	var dump *audio.DebugDump
	if p.cfg.DebugDumpDir != "" {
		d, err := audio.NewDebugDump(p.cfg.DebugDumpDir, p.cfg.SampleRate)
		if err != nil {
			return err
		}
		logger.InfoContext(ctx, "Dumping captured audio", "path", d.Path())
		dump = d
		defer func() {
			if err := dump.Close(); err != nil {
				logger.WarnContext(ctx, "Failed to finalise audio dump", "error", err)
			}
		}()
	}

	chunk := make([]byte, readChunk)
	dropped := p.buffer.Dropped()
	for ctx.Err() == nil {
		n, err := r.Read(chunk)
		if n > 0 {
			p.buffer.Append(chunk[:n])
			if d := p.buffer.Dropped(); d > dropped {
				metrics.RecordAudioDropped(d - dropped)
				dropped = d
			}
			p.sendFrames(ctx, dump)
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to read audio: %w", err)
		}
	}
	return nil
}

func (p *AudioProcess) sendFrames(ctx context.Context, dump *audio.DebugDump) {
	for frame := range p.buffer.Drain() {
		if dump != nil {
			if err := dump.WriteFrame(frame); err != nil {
				logger.WarnContext(ctx, "Failed to write audio dump", "error", err)
			}
		}
		res := p.sink.SendAudio(ctx, base64.StdEncoding.EncodeToString(frame.Data), frame.MimeType)
		if !res.Success {
			logger.DebugContext(ctx, "Audio frame not sent", "kind", res.Kind, "error", res.Error)
		}
	}
}
