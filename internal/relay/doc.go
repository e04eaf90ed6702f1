// Package relay streams one upstream completion response to every viewer.
//
// A Relay forwards the caller's request body to the configured completions
// endpoint, reads the response body chunk by chunk as it arrives and hands
// each decoded chunk to a domain.Publisher before reading the next one. The
// relay never buffers the whole response and never retries.
package relay
