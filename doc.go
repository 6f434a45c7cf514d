// Package mnet provides a single-threaded, edge-triggered TCP reactor for
// Linux: ClientSocket for outbound connections, ServerSocket for listening
// and accepting, and an IOManager that drives the epoll-based main loop,
// a relative-time timer service, and a loopback control socket for
// cross-thread wakeup.
//
// All socket and reactor state is owned by the goroutine that calls
// IOManager.RunMainLoop; the only method safe to call from another
// goroutine is IOManager.Interrupt (and Shutdown, which calls it).
//
// Typical use:
//
//	m, err := mnet.NewIOManager()
//	ln := mnet.NewServerSocket(m)
//	ln.Bind(ep)
//	ln.AsyncAccept(mnet.NewSocket(m), onAccept)
//	m.RunMainLoop()
package mnet
