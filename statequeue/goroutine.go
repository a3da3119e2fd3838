package statequeue

import (
	"bytes"
	"runtime"
	"strconv"
)

// goroutineID identifies the calling goroutine, read from the
// "goroutine N [status]:" line that starts every runtime.Stack trace. It
// returns 0 if the line cannot be parsed.
func goroutineID() uint64 {
	var buf [64]byte
	line := buf[:runtime.Stack(buf[:], false)]
	line, ok := bytes.CutPrefix(line, []byte("goroutine "))
	if !ok {
		return 0
	}
	if i := bytes.IndexByte(line, ' '); i >= 0 {
		line = line[:i]
	}
	id, err := strconv.ParseUint(string(line), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
