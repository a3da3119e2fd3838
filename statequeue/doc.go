// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package statequeue implements a single-writer, single-reader channel of
// immutable state snapshots, intended for handing configuration from a
// non-real-time goroutine to a real-time one.
//
// # Model
//
// The writer mutates a private scratch value ([Queue.Begin]), then publishes
// it ([Queue.Publish]). Publishing copies the scratch value into one of N
// pool slots and performs a single atomic store of the new generation
// number. That store is the only writer-side write the reader ever observes.
//
// The reader calls [Queue.Poll] once per cycle. It returns the newest
// committed state if it is newer than the last one acknowledged, and nothing
// otherwise. After the reader has finished switching over (and no longer
// references the previous state) it calls [Queue.Acknowledge].
//
// Both reader operations are wait-free and allocation-free: two atomic
// loads, at most one atomic store.
//
// # Slot reuse
//
// Generation g lives in slot g%N. The writer only fills generation g once
// g-N is strictly older than the reader's acknowledged generation, so the
// newest published state may lead the reader by at most N-1 generations
// before the writer waits. The reader holds at most the acknowledged state
// plus whatever it has polled since, all of which lie in a window of N-1
// consecutive generations below g, so no slot the reader can reach is ever
// handed out for writing. N must be at least 3, so the writer can publish
// twice between acknowledgements without waiting.
//
// # Publish modes
//
// [Async] returns as soon as the state is visible to the next poll. [Sync]
// additionally waits until the reader has acknowledged that generation,
// after which any memory referenced only by earlier states may be freed.
// Both waits (for a free slot, or for an acknowledgement) are bounded; when
// the bound is exceeded a [*LivenessError] is returned, meaning the reader is
// stuck or gone.
//
// # Thread Safety
//
// Exactly one goroutine may call the writer methods ([Queue.Begin],
// [Queue.Publish]) and exactly one goroutine may call the reader methods
// ([Queue.Poll], [Queue.Acknowledge]). Accessors documented as such may be
// called from anywhere.
package statequeue
