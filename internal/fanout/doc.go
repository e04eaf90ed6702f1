// Package fanout implements the subscriber fan-out engine.
//
// A Registry holds one bounded queue per connected viewer. The Broadcaster
// pushes a message to a snapshot of the registry, one goroutine per delivery,
// and ignores individual failures. The Sweeper probes every subscriber on a
// fixed interval and keeps only those that accepted the probe; it is the only
// path that removes subscribers. The registry mutex is held for slice updates
// only, never across a delivery.
package fanout
