package media

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"strings"

	_ "image/png" // Register PNG decoder

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // Register WebP decoder
)

// MIME types accepted for screenshots.
const (
	MIMETypeJPEG = "image/jpeg"
	MIMETypePNG  = "image/png"
)

// Screenshot defaults.
const (
	// MinImageBytes guards against truncated captures.
	MinImageBytes   = 1000
	DefaultMaxWidth = 1920
	DefaultQuality  = 80
)

// ErrImageTooSmall is returned when decoded image data is below MinImageBytes.
var ErrImageTooSmall = errors.New("image data too small")

// ValidateBase64Image decodes data and checks the minimum size. It returns
// the decoded bytes.
func ValidateBase64Image(data string) ([]byte, error) {
	if strings.TrimSpace(data) == "" {
		return nil, errors.New("empty image data")
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 image: %w", err)
	}
	if len(raw) < MinImageBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrImageTooSmall, len(raw))
	}
	return raw, nil
}

// ScreenshotConfig controls NormalizeScreenshot.
type ScreenshotConfig struct {
	// MaxWidth scales wider captures down, preserving aspect ratio. 0 disables.
	MaxWidth int
	// Quality is the JPEG quality (1-100).
	Quality int
}

// DefaultScreenshotConfig returns the capture defaults.
func DefaultScreenshotConfig() ScreenshotConfig {
	return ScreenshotConfig{MaxWidth: DefaultMaxWidth, Quality: DefaultQuality}
}

// Screenshot is a normalized capture ready to hand to a session.
type Screenshot struct {
	Data     []byte
	MIMEType string
	Width    int
	Height   int
}

// Base64 returns the standard base64 encoding of the JPEG payload.
func (s *Screenshot) Base64() string {
	return base64.StdEncoding.EncodeToString(s.Data)
}

// NormalizeScreenshot decodes a raw capture (PNG, JPEG or WebP), scales it to
// the configured width and re-encodes it as JPEG.
func NormalizeScreenshot(data []byte, cfg ScreenshotConfig) (*Screenshot, error) {
	if len(data) == 0 {
		return nil, errors.New("empty image data")
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if cfg.MaxWidth > 0 && w > cfg.MaxWidth {
		h = int(float64(h) * float64(cfg.MaxWidth) / float64(w))
		if h < 1 {
			h = 1
		}
		w = cfg.MaxWidth
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
		img = dst
	}

	quality := cfg.Quality
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return &Screenshot{Data: buf.Bytes(), MIMEType: MIMETypeJPEG, Width: w, Height: h}, nil
}
