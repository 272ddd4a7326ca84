package audio

import (
	"iter"
	"sync"
)

// Frame is a fixed-duration slice of mono PCM ready for transmission.
type Frame struct {
	Data       []byte
	SampleRate int
	Channels   int
	MimeType   string
}

// ByteLength returns the payload size.
func (f Frame) ByteLength() int { return len(f.Data) }

// FrameBufferConfig describes the capture source feeding a FrameBuffer.
type FrameBufferConfig struct {
	// SampleRate of the source in Hz. Defaults to 24000.
	SampleRate int
	// Channels of the source, 1 or 2. Stereo is downmixed to mono.
	Channels int
	// FrameSeconds is the duration of one emitted frame. Defaults to 0.1.
	FrameSeconds float64
	// MaxBufferSeconds bounds the accumulator. Defaults to 1 second.
	MaxBufferSeconds float64
	// MimeType stamped on every frame. Defaults to MimeTypePCM24k.
	MimeType string
}

func (c *FrameBufferConfig) withDefaults() FrameBufferConfig {
	out := *c
	if out.SampleRate == 0 {
		out.SampleRate = SampleRate24kHz
	}
	if out.Channels == 0 {
		out.Channels = 1
	}
	if out.FrameSeconds <= 0 {
		out.FrameSeconds = DefaultFrameSeconds
	}
	if out.MaxBufferSeconds <= 0 {
		out.MaxBufferSeconds = 1
	}
	if out.MimeType == "" {
		out.MimeType = MimeTypePCM24k
	}
	return out
}

// FrameBuffer accumulates raw capture bytes and yields complete frames.
// Partial trailing data is kept until more bytes arrive; a frame is never
// emitted short.
type FrameBuffer struct {
	mu  sync.Mutex
	buf []byte

	cfg         FrameBufferConfig
	sourceFrame int // source bytes consumed per emitted frame
	block       int // bytes per interleaved sample group
	ceiling     int
	dropped     int64
}

// NewFrameBuffer creates a FrameBuffer for the given source format.
func NewFrameBuffer(cfg FrameBufferConfig) (*FrameBuffer, error) {
	c := cfg.withDefaults()
	if err := validateFormat(c.SampleRate, c.Channels); err != nil {
		return nil, err
	}
	block := BytesPerSample * c.Channels
	ceiling := FrameBytes(c.SampleRate, c.Channels, c.MaxBufferSeconds)
	ceiling -= ceiling % block
	return &FrameBuffer{
		cfg:         c,
		sourceFrame: FrameBytes(c.SampleRate, c.Channels, c.FrameSeconds),
		block:       block,
		ceiling:     ceiling,
	}, nil
}

// FrameSize returns the byte length of every emitted frame.
func (b *FrameBuffer) FrameSize() int {
	return b.sourceFrame / b.cfg.Channels
}

// Append adds raw bytes. When the accumulator grows past the ceiling the
// oldest bytes are dropped, keeping sample alignment.
func (b *FrameBuffer) Append(data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.buf = append(b.buf, data...)
	if excess := len(b.buf) - b.ceiling; excess > 0 {
		if rem := excess % b.block; rem != 0 {
			excess += b.block - rem
		}
		b.buf = append(b.buf[:0], b.buf[excess:]...)
		b.dropped += int64(excess)
	}
}

// Buffered returns the number of source bytes waiting for a full frame.
func (b *FrameBuffer) Buffered() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf)
}

// Dropped returns the total number of bytes discarded by overflow trimming.
func (b *FrameBuffer) Dropped() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Drain returns a sequence over every complete frame currently available.
// Each step removes the frame's bytes from the accumulator, so stopping
// early leaves the rest buffered. The sequence is not restartable.
func (b *FrameBuffer) Drain() iter.Seq[Frame] {
	return func(yield func(Frame) bool) {
		for {
			f, ok := b.next()
			if !ok || !yield(f) {
				return
			}
		}
	}
}

func (b *FrameBuffer) next() (Frame, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.buf) < b.sourceFrame {
		return Frame{}, false
	}
	chunk := b.buf[:b.sourceFrame]
	var data []byte
	if b.cfg.Channels == 2 {
		data = StereoToMono(chunk)
	} else {
		data = make([]byte, len(chunk))
		copy(data, chunk)
	}
	b.buf = append(b.buf[:0], b.buf[b.sourceFrame:]...)

	return Frame{
		Data:       data,
		SampleRate: b.cfg.SampleRate,
		Channels:   1,
		MimeType:   b.cfg.MimeType,
	}, true
}

// Reset discards all buffered bytes.
func (b *FrameBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = b.buf[:0]
}
