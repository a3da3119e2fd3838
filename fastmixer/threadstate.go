package fastmixer

import (
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// ThreadState represents the lifecycle of a RenderThread.
//
// State Machine:
//
//	ThreadStateNew (0) → ThreadStateRunning (1)     [Run() via CAS]
//	ThreadStateRunning (1) → ThreadStateExited (2)  [CommandExit applied]
//	ThreadStateExited (2) → (terminal)
type ThreadState uint64

const (
	// ThreadStateNew indicates the thread has been created but not run.
	ThreadStateNew ThreadState = iota
	// ThreadStateRunning indicates Run is executing cycles.
	ThreadStateRunning
	// ThreadStateExited indicates Run has returned.
	ThreadStateExited
)

// String returns a human-readable representation of the state.
func (s ThreadState) String() string {
	switch s {
	case ThreadStateNew:
		return "New"
	case ThreadStateRunning:
		return "Running"
	case ThreadStateExited:
		return "Exited"
	default:
		return "Unknown"
	}
}

// threadState is a lock-free lifecycle state with cache-line padding.
type threadState struct { // betteralign:ignore
	_ cpu.CacheLinePad
	v atomic.Uint64
	_ cpu.CacheLinePad
}

// Load returns the current state atomically.
func (s *threadState) Load() ThreadState {
	return ThreadState(s.v.Load())
}

// Store atomically stores a new state. Only for the terminal state.
func (s *threadState) Store(state ThreadState) {
	s.v.Store(uint64(state))
}

// TryTransition attempts to atomically transition from one state to another.
func (s *threadState) TryTransition(from, to ThreadState) bool {
	return s.v.CompareAndSwap(uint64(from), uint64(to))
}
