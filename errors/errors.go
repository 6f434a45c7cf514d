// Package errors holds the sentinel errors this module's public API returns
// for programmer-misuse and lifecycle boundary conditions — as opposed to
// netstate.NetState, which carries syscall-level I/O failures through the
// callback chain. Call sites compare against these with errors.Is.
package errors

import "errors"

var (
	// ErrIOManagerShutdown is returned by AsyncRead once Shutdown has been
	// called on the socket's IOManager.
	ErrIOManagerShutdown = errors.New("mnet: io manager is shut down")
	// ErrAlreadyShuttingDown occurs when Shutdown is called more than once.
	ErrAlreadyShuttingDown = errors.New("mnet: io manager is already shutting down")
	// ErrSocketClosed occurs when an operation is attempted on a socket that
	// has already been closed; AsyncWrite and AsyncClose also return it
	// while an AsyncClose is in progress.
	ErrSocketClosed = errors.New("mnet: socket is closed")
	// ErrAlreadyConnecting occurs when AsyncConnect is called on a
	// ClientSocket that is not DISCONNECTED (already connecting or
	// connected).
	ErrAlreadyConnecting = errors.New("mnet: client socket is already connecting")
	// ErrNotConnected is not returned by any function in this module:
	// AsyncRead and AsyncWrite accept a ClientSocket that is still
	// connecting.
	ErrNotConnected = errors.New("mnet: client socket is not connected")
	// ErrInvalidEndpoint is returned by AsyncAccept on a ServerSocket that
	// has not been bound.
	ErrInvalidEndpoint = errors.New("mnet: invalid endpoint")
	// ErrAcceptSocket is not returned by any function in this module:
	// accept failures reach the accept callback as a NetState.
	ErrAcceptSocket = errors.New("mnet: accept a new connection error")
	// ErrOutOfFileDescriptors is not returned by any function in this
	// module: EMFILE/ENFILE on accept is recovered via the listener's dummy
	// fd and reported to the accept callback as a NetState.
	ErrOutOfFileDescriptors = errors.New("mnet: out of file descriptors")
	// ErrTimerCanceled is not returned by any function in this module:
	// canceling a timer only stops it from firing.
	ErrTimerCanceled = errors.New("mnet: timer was canceled")
	// ErrWatermarkExceeded is returned by AsyncWrite when the socket's write
	// buffer refuses the data, which only a fixed-capacity buffer does. The
	// WatermarkHigh option is advisory and never causes it.
	ErrWatermarkExceeded = errors.New("mnet: write buffer exceeded high watermark")
)
