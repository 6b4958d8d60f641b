// Package snapshot persists periodic order-book images so the engine can
// resume from the most recent checkpoint instead of replaying the whole
// journal. Snapshots are keyed by the journal sequence they cover.
package snapshot
