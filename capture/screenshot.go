package capture

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"golang.org/x/time/rate"

	"github.com/AltairaLabs/livecoach/logger"
	"github.com/AltairaLabs/livecoach/media"
	"github.com/AltairaLabs/livecoach/session"
)

// DefaultScreenshotInterval is used when ScreenshotConfig.Interval is zero.
const DefaultScreenshotInterval = 5 * time.Second

// ImageSink is the destination of normalised screenshots.
type ImageSink interface {
	SendImage(ctx context.Context, base64Data, mimeType string) session.Result
}

// ScreenshotConfig describes the capture command and output shaping.
type ScreenshotConfig struct {
	// Command prints one image (PNG, JPEG or WebP) to stdout per run.
	Command  string
	Args     []string
	Interval time.Duration
	MaxWidth int
	Quality  int
}

// ScreenshotPump captures the screen at a bounded rate and routes each
// capture to the sink.
type ScreenshotPump struct {
	sink    ImageSink
	limiter *rate.Limiter
	shape   media.ScreenshotConfig
	capture func(ctx context.Context) ([]byte, error)
}

// NewScreenshotPump builds a pump that runs cfg.Command for every capture.
func NewScreenshotPump(cfg ScreenshotConfig, sink ImageSink) *ScreenshotPump {
	return newScreenshotPump(cfg, sink, func(ctx context.Context) ([]byte, error) {
		if cfg.Command == "" {
			return nil, errors.New("screenshot command not configured")
		}
		return exec.CommandContext(ctx, cfg.Command, cfg.Args...).Output()
	})
}

func newScreenshotPump(cfg ScreenshotConfig, sink ImageSink, capture func(context.Context) ([]byte, error)) *ScreenshotPump {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultScreenshotInterval
	}
	shape := media.DefaultScreenshotConfig()
	if cfg.MaxWidth > 0 {
		shape.MaxWidth = cfg.MaxWidth
	}
	if cfg.Quality > 0 {
		shape.Quality = cfg.Quality
	}
	return &ScreenshotPump{
		sink:    sink,
		limiter: rate.NewLimiter(rate.Every(cfg.Interval), 1),
		shape:   shape,
		capture: capture,
	}
}

// Run captures until ctx is done. Individual capture failures are logged
// and do not stop the pump.
func (p *ScreenshotPump) Run(ctx context.Context) error {
	for {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil
		}
		if err := p.CaptureOnce(ctx); err != nil && ctx.Err() == nil {
			logger.WarnContext(ctx, "Screenshot skipped", "error", err)
		}
	}
}

// CaptureOnce takes, normalises and sends one screenshot.
func (p *ScreenshotPump) CaptureOnce(ctx context.Context) error {
	raw, err := p.capture(ctx)
	if err != nil {
		return fmt.Errorf("capture failed: %w", err)
	}
	shot, err := media.NormalizeScreenshot(raw, p.shape)
	if err != nil {
		return err
	}
	res := p.sink.SendImage(ctx, shot.Base64(), shot.MIMEType)
	if !res.Success {
		return res.Error
	}
	logger.DebugContext(ctx, "Screenshot sent", "width", shot.Width, "height", shot.Height, "bytes", len(shot.Data))
	return nil
}
