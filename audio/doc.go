// Package audio turns raw PCM captured from the system into fixed-duration
// frames ready for a realtime provider.
//
// The capture source is opaque: it emits 16-bit little-endian PCM at 24 kHz,
// mono or interleaved stereo. FrameBuffer accumulates those bytes, downmixes
// stereo input by keeping the left channel, and bounds memory when the
// consumer falls behind.
package audio
