// Package capture runs the external capture collaborators and feeds their
// output to the active session: an audio helper whose stdout is raw PCM,
// and a screenshot command sampled at a fixed rate.
package capture
