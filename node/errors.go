package node

import (
	"errors"
	"fmt"
)

// Error kinds. Every failure returned by this package wraps exactly one of them.
var (
	// ErrResource: the OS refused a handle (socket, epoll, eventfd) or to listen. Fatal.
	ErrResource = errors.New("resource error")

	// ErrAddress: bind conflict or unusable address. Fatal.
	ErrAddress = errors.New("address error")

	// ErrTransient: a single accept or receive failed. Only the affected connection is dropped.
	ErrTransient = errors.New("transient error")

	// ErrPeerDisconnected: orderly shutdown by the peer, or a failed send.
	ErrPeerDisconnected = errors.New("peer disconnected")

	// ErrSignal: signals can no longer be collected. Fatal.
	ErrSignal = errors.New("signal error")
)

// OpError describes a failed operation on a descriptor.
type OpError struct {
	Op   string
	Fd   int
	Kind error
	Err  error
}

func (e *OpError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s fd %d: %v", e.Op, e.Fd, e.Kind)
	}
	return fmt.Sprintf("%s fd %d: %v: %v", e.Op, e.Fd, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause, so errors.Is matches ErrTransient as well as the
// underlying errno.
func (e *OpError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func opError(op string, fd int, kind, err error) error {
	return &OpError{Op: op, Fd: fd, Kind: kind, Err: err}
}

// IsFatal reports whether err must stop the server.
func IsFatal(err error) bool {
	return errors.Is(err, ErrResource) || errors.Is(err, ErrAddress) || errors.Is(err, ErrSignal)
}
