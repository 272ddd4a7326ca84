package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const wavHeaderSize = 44

// wavHeader builds a canonical 44-byte PCM WAV header.
func wavHeader(dataSize, sampleRate, channels int) []byte {
	h := make([]byte, wavHeaderSize)
	blockAlign := channels * BytesPerSample
	le := binary.LittleEndian

	copy(h[0:4], "RIFF")
	le.PutUint32(h[4:8], uint32(36+dataSize)) //nolint:gosec // bounded by file size
	copy(h[8:12], "WAVE")
	copy(h[12:16], "fmt ")
	le.PutUint32(h[16:20], 16)
	le.PutUint16(h[20:22], 1)
	le.PutUint16(h[22:24], uint16(channels))              //nolint:gosec // 1 or 2
	le.PutUint32(h[24:28], uint32(sampleRate))            //nolint:gosec // positive
	le.PutUint32(h[28:32], uint32(sampleRate*blockAlign)) //nolint:gosec // positive
	le.PutUint16(h[32:34], uint16(blockAlign))            //nolint:gosec // small
	le.PutUint16(h[34:36], uint16(BytesPerSample*8))      //nolint:gosec // 16
	copy(h[36:40], "data")
	le.PutUint32(h[40:44], uint32(dataSize)) //nolint:gosec // bounded by file size
	return h
}

// WrapPCMAsWAV returns pcm prefixed with a WAV header.
func WrapPCMAsWAV(pcm []byte, sampleRate, channels int) []byte {
	out := wavHeader(len(pcm), sampleRate, channels)
	return append(out, pcm...)
}

// DebugDump records emitted frames to a WAV file so a capture session can be
// replayed. The header sizes are patched on Close.
type DebugDump struct {
	mu         sync.Mutex
	w          io.WriteSeeker
	closer     io.Closer
	path       string
	sampleRate int
	written    int
	closed     bool
}

// NewDebugDump creates a timestamped WAV file under dir.
func NewDebugDump(dir string, sampleRate int) (*DebugDump, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create dump dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("capture-%s.wav", time.Now().UTC().Format("20060102T150405")))
	f, err := os.Create(path) //nolint:gosec // path built from configured dir
	if err != nil {
		return nil, fmt.Errorf("create dump file: %w", err)
	}
	d, err := newDebugDump(f, f, sampleRate)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	d.path = path
	return d, nil
}

func newDebugDump(w io.WriteSeeker, c io.Closer, sampleRate int) (*DebugDump, error) {
	if _, err := w.Write(wavHeader(0, sampleRate, 1)); err != nil {
		return nil, fmt.Errorf("write wav header: %w", err)
	}
	return &DebugDump{w: w, closer: c, sampleRate: sampleRate}, nil
}

// Path returns the file path, empty for non-file dumps.
func (d *DebugDump) Path() string { return d.path }

// WriteFrame appends a frame's payload.
func (d *DebugDump) WriteFrame(f Frame) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return errors.New("debug dump closed")
	}
	n, err := d.w.Write(f.Data)
	d.written += n
	return err
}

// Close rewrites the header with the final sizes and closes the file.
func (d *DebugDump) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true

	var errs []error
	if _, err := d.w.Seek(0, io.SeekStart); err != nil {
		errs = append(errs, err)
	} else if _, err := d.w.Write(wavHeader(d.written, d.sampleRate, 1)); err != nil {
		errs = append(errs, err)
	}
	if d.closer != nil {
		errs = append(errs, d.closer.Close())
	}
	return errors.Join(errs...)
}
