package main

import (
	"bytes"
	"strings"
	"testing"
)

// useBufferWriters swaps stdOut/stdErr with in-memory buffers and feeds input
// to stdIn for the duration of a test, allowing assertions on CLI output
// without polluting test logs.
func useBufferWriters(t *testing.T, input string) {
	t.Helper()

	outBuf := &bytes.Buffer{}
	errBuf := &bytes.Buffer{}

	prevOut := stdOut
	prevErr := stdErr
	prevIn := stdIn

	stdOut = outBuf
	stdErr = errBuf
	stdIn = strings.NewReader(input)

	t.Cleanup(func() {
		stdOut = prevOut
		stdErr = prevErr
		stdIn = prevIn
	})
}

// stdOutBuffer returns the in-use stdout buffer when useBufferWriters is active.
func stdOutBuffer() *bytes.Buffer {
	buf, _ := stdOut.(*bytes.Buffer)
	return buf
}

// stdErrBuffer returns the in-use stderr buffer when useBufferWriters is active.
func stdErrBuffer() *bytes.Buffer {
	buf, _ := stdErr.(*bytes.Buffer)
	return buf
}
