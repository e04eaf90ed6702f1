// Package domain defines the core domain types and interfaces.
//
// Messages, sentinel errors and the publisher contract shared by the fan-out
// engine, the relay and the adapters. No implementation code - just contracts.
// Prevents circular imports by keeping interfaces on the consumer side.
package domain
