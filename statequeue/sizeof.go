package statequeue

// Layout of the padded cursors; sizeof_test.go checks both against the
// target platform.
const (
	// cacheLinePad covers the widest cache line of the supported targets,
	// 128 bytes on arm64, so one value serves amd64 too.
	cacheLinePad = 128

	// cursorSize is the size of one cursor word, an atomic.Uint64.
	cursorSize = 8
)
