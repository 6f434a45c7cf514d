// Package verify provides fatal assertions used only for conditions that
// indicate a broken environment rather than a recoverable runtime error. A
// failed assertion means a syscall that the platform guarantees to succeed
// (setsockopt, epoll_ctl on a socket we just created, close on an fd we
// own) did not, and continuing would leave the reactor in an inconsistent
// state. It logs and exits the process rather than panicking.
package verify

import (
	"fmt"
	"os"
)

// True aborts the process if cond is false.
func True(cond bool, format string, args ...interface{}) {
	if cond {
		return
	}
	fail(format, args...)
}

// NoError aborts the process if err is non-nil. Go syscalls return their
// errno as the error value directly, so this is the usual call site
// guarding a syscall expected to always succeed.
func NoError(err error, format string, args ...interface{}) {
	if err == nil {
		return
	}
	fail(format+": %s", append(append([]interface{}{}, args...), err)...)
}

func fail(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintf(os.Stderr, "mnet: assertion failed: %s\n", msg)
	os.Exit(2)
}
