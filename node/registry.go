//go:build linux
// +build linux

package node

import (
	"fmt"

	"github.com/eapache/queue"
	"github.com/fzft/go-linechat/log"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type Role uint8

const (
	RoleListener Role = iota
	RoleControl
	RoleClient
)

func (r Role) String() string {
	switch r {
	case RoleListener:
		return "listener"
	case RoleControl:
		return "control"
	case RoleClient:
		return "client"
	default:
		return fmt.Sprintf("role(%d)", uint8(r))
	}
}

// Descriptor is one entry of the readiness set. Fd -1 is a detached entry that is never ready.
type Descriptor struct {
	Fd   int
	Role Role
}

// fixedDescriptors is the number of leading entries without a client: listener, control input.
const fixedDescriptors = 2

// ConnectionRegistry keeps the readiness descriptors and the client connections in two parallel,
// ordered lists: descriptors[i+fixedDescriptors] belongs to clients[i]. Every attached descriptor
// is also watched by the Watcher.
//
// Only the event loop touches a registry; there is no locking.
type ConnectionRegistry struct {
	watcher     Watcher
	descriptors []Descriptor
	clients     []*Connection
	onRemove    func(index int)
}

// NewConnectionRegistry seeds the two fixed entries. A negative control fd means there is no
// control input.
func NewConnectionRegistry(w Watcher, listenerFd, controlFd int) (*ConnectionRegistry, error) {
	r := &ConnectionRegistry{
		watcher: w,
		descriptors: []Descriptor{
			{Fd: listenerFd, Role: RoleListener},
			{Fd: controlFd, Role: RoleControl},
		},
	}
	for i, d := range r.descriptors {
		if d.Fd < 0 {
			continue
		}
		if err := w.Watch(d.Fd); err != nil {
			for _, prev := range r.descriptors[:i] {
				if prev.Fd >= 0 {
					_ = w.Unwatch(prev.Fd)
				}
			}
			return nil, err
		}
	}
	return r, nil
}

// OnRemove registers f to be told the descriptor index of every removed client, before the
// lists shift. The event loop uses it to keep its cursor on the right entry.
func (r *ConnectionRegistry) OnRemove(f func(index int)) {
	r.onRemove = f
}

// Len is the number of descriptors, fixed entries included.
func (r *ConnectionRegistry) Len() int {
	return len(r.descriptors)
}

func (r *ConnectionRegistry) Descriptor(i int) Descriptor {
	return r.descriptors[i]
}

// Descriptors returns a copy of the descriptor list.
func (r *ConnectionRegistry) Descriptors() []Descriptor {
	return append([]Descriptor(nil), r.descriptors...)
}

func (r *ConnectionRegistry) ClientCount() int {
	return len(r.clients)
}

// Clients returns a copy of the client list in insertion order.
func (r *ConnectionRegistry) Clients() []*Connection {
	return append([]*Connection(nil), r.clients...)
}

// Client returns the client registered under fd, or nil.
func (r *ConnectionRegistry) Client(fd int) *Connection {
	if i := r.clientIndex(fd); i >= 0 {
		return r.clients[i-fixedDescriptors]
	}
	return nil
}

func (r *ConnectionRegistry) clientIndex(fd int) int {
	if fd < 0 {
		return -1
	}
	for i := fixedDescriptors; i < len(r.descriptors); i++ {
		if r.descriptors[i].Fd == fd {
			return i
		}
	}
	return -1
}

// AddClient appends c and watches its descriptor. On error nothing is registered and c is left
// to the caller.
func (r *ConnectionRegistry) AddClient(c *Connection) error {
	if err := r.watcher.Watch(c.Fd()); err != nil {
		return err
	}
	r.descriptors = append(r.descriptors, Descriptor{Fd: c.Fd(), Role: RoleClient})
	r.clients = append(r.clients, c)
	return nil
}

// RemoveByDescriptor unwatches, closes and removes the client registered under fd, keeping the
// order of the others. It returns the removed descriptor index, or -1 when fd is not a client.
//
// The lookup goes through the descriptor list, so a client whose connection was already closed
// by a failed send is still found.
func (r *ConnectionRegistry) RemoveByDescriptor(fd int) int {
	idx := r.clientIndex(fd)
	if idx < 0 {
		return -1
	}
	c := r.clients[idx-fixedDescriptors]

	if err := r.watcher.Unwatch(fd); err != nil {
		log.Logger.Debug("Failed to unwatch client", zap.Int("fd", fd), zap.Error(err))
	}
	if err := c.Close(); err != nil {
		log.Logger.Debug("Failed to close client", zap.Int("fd", fd), zap.Error(err))
	}
	if r.onRemove != nil {
		r.onRemove(idx)
	}

	r.descriptors = append(r.descriptors[:idx], r.descriptors[idx+1:]...)
	r.clients = append(r.clients[:idx-fixedDescriptors], r.clients[idx-fixedDescriptors+1:]...)
	return idx
}

// Broadcast sends payload to every client but exclude (nil excludes nobody) and returns how many
// got it. Clients whose send fails are queued and removed once the pass is over, never while
// the list is being walked.
func (r *ConnectionRegistry) Broadcast(payload []byte, exclude *Connection) int {
	failed := queue.New()
	delivered := 0

	for i, c := range r.clients {
		if c == exclude {
			continue
		}
		fd := r.descriptors[i+fixedDescriptors].Fd
		if err := c.Send(payload); err != nil {
			log.Logger.Warn("send to client failed", zap.Int("fd", fd), zap.Error(err))
			failed.Add(fd)
			continue
		}
		delivered++
	}

	for failed.Length() > 0 {
		fd := failed.Remove().(int)
		if r.RemoveByDescriptor(fd) >= 0 {
			log.Logger.Info("client disconnected", zap.Int("fd", fd))
		}
	}
	return delivered
}

// Detach unwatches the fixed entry for role and marks it -1. Its connection is not closed.
func (r *ConnectionRegistry) Detach(role Role) {
	for i := 0; i < fixedDescriptors; i++ {
		d := &r.descriptors[i]
		if d.Role != role || d.Fd < 0 {
			continue
		}
		if err := r.watcher.Unwatch(d.Fd); err != nil {
			log.Logger.Debug("Failed to unwatch descriptor", zap.Stringer("role", role), zap.Int("fd", d.Fd), zap.Error(err))
		}
		d.Fd = -1
	}
}

// CloseAll unwatches and closes every client and clears both lists.
func (r *ConnectionRegistry) CloseAll() error {
	var errs error
	for i, c := range r.clients {
		fd := r.descriptors[i+fixedDescriptors].Fd
		if err := r.watcher.Unwatch(fd); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("unwatch fd %d: %w", fd, err))
		}
		if err := c.Close(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("close fd %d: %w", fd, err))
		}
	}
	r.descriptors = r.descriptors[:fixedDescriptors]
	r.clients = nil
	return errs
}
