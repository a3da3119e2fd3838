//go:build !unix

package main

import (
	"errors"
	"os"

	"github.com/joeycumines/go-fastmixer/fastmixer"
)

func notifyDump(chan<- os.Signal) {}

func newStdoutSink(int, int) (fastmixer.Sink, error) {
	return nil, errors.New("stdout sink requires a unix platform")
}
