// Package service orchestrates the core components of the
// engine: order book, strategy, journal, outbox, snapshots and metrics.
//
// It owns the single event loop; everything else is a dependency handed in
// at construction, decoupled from transports and storage details.
package service
