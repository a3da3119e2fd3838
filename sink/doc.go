// Package sink provides output sinks for a fastmixer render thread: a
// discarding sink, a nonblocking file descriptor, an in-memory ring drained
// by a device goroutine, and a function adapter.
//
// Every sink accepts interleaved 16-bit frames and reports how many frames
// it took. Sinks that encode to bytes do so as little-endian PCM, into
// buffers allocated at construction.
package sink
