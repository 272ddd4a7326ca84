// Package session owns the single current provider session. It creates
// adapters through the provider registry, routes capture output and user
// text to the active adapter, and relays adapter events to subscribers.
//
// Starting a session while another is active closes the old one first, so
// at most one session is ever reachable. Every failure is reported as a
// Result carrying the error and its kind.
package session
