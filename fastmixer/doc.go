// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package fastmixer implements a periodic, real-time audio render goroutine
// that is reconfigured without locks.
//
// # Architecture
//
// A [RenderThread] owns the reader side of a [statequeue.Queue] of
// [RenderState] values. Once per cycle it polls for a newer state, switches
// to it, acknowledges the switch, then executes the state's [Command]: idle,
// warm up the sink, or mix every enabled [Source] and write the result to
// the [Sink]. The cycle never blocks on, allocates for, or locks against
// the control side.
//
// A [Controller] owns the writer side. Its operations (add or remove a
// source, swap the sink, change geometry, exit) each publish a new state,
// and the ones that release resources wait for the render goroutine to
// acknowledge, after which the released resource may be freed.
//
// # Diagnostics
//
// Every cycle the render goroutine updates a [DumpState]. Its fields are
// individually atomic but mutually unsynchronised. Any goroutine may take a
// [DumpSnapshot] with [DumpState.Read]; [DumpState.ReadConsistent] retries
// around sink writes using the write sequence parity, and
// [DumpSnapshot.Validate] range-checks the result. A [Monitor] does both
// periodically and logs anything notable.
package fastmixer
