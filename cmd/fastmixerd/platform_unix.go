//go:build unix

package main

import (
	"os"
	"os/signal"

	"github.com/joeycumines/go-fastmixer/fastmixer"
	"github.com/joeycumines/go-fastmixer/sink"
	"golang.org/x/sys/unix"
)

func notifyDump(c chan<- os.Signal) {
	signal.Notify(c, unix.SIGUSR1)
}

// newStdoutSink writes raw little-endian PCM to stdout, which is made
// nonblocking.
func newStdoutSink(channels, maxFrames int) (fastmixer.Sink, error) {
	fd := int(os.Stdout.Fd())
	if err := sink.SetNonblock(fd); err != nil {
		return nil, err
	}
	return sink.NewFD(fd, channels, maxFrames), nil
}
