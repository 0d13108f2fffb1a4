//go:build linux
// +build linux

package node

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"unsafe"

	"github.com/fzft/go-linechat/log"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// https://copyconstruct.medium.com/the-method-to-epolls-madness-d9d2d6378642

var errPollerClosed = errors.New("poller closed")

// ReadySet maps each ready descriptor to its epoll event mask.
type ReadySet map[int]uint32

// Readable reports whether fd has something to read, including end-of-stream and errors: those
// surface as a zero-length or failed read.
func (r ReadySet) Readable(fd int) bool {
	if fd < 0 {
		return false
	}
	ev, ok := r[fd]
	return ok && ev&(unix.EPOLLIN|unix.EPOLLPRI|unix.EPOLLRDHUP|unix.EPOLLHUP|unix.EPOLLERR) != 0
}

// Poller is a level triggered epoll instance plus an eventfd used to interrupt Wait. The eventfd
// never shows up in a ReadySet.
type Poller struct {
	*interestSet
	epollFd int
	wakeFd  int
	events  []unix.EpollEvent

	mu     sync.Mutex // guards wakeFd against Close
	closed bool
}

func NewPoller(maxEvents int) (*Poller, error) {
	if maxEvents <= 0 {
		maxEvents = 1024
	}

	// Create a new epoll instance
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		log.Logger.Error("Failed to create epoll", zap.Error(err))
		return nil, opError("epoll_create1", -1, ErrResource, os.NewSyscallError("epoll_create1", err))
	}

	r := newInterestSet(epfd)

	efd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		log.Logger.Error("Failed to create eventfd", zap.Error(err))
		_ = unix.Close(epfd)
		return nil, opError("eventfd", -1, ErrResource, os.NewSyscallError("eventfd", err))
	}

	// Register the eventfd to epoll for read events
	if err := r.AddRead(efd); err != nil {
		log.Logger.Error("Failed to add eventfd to epoll", zap.Error(err))
		_ = unix.Close(efd)
		_ = unix.Close(epfd)
		return nil, opError("epoll_ctl", efd, ErrResource, err)
	}

	return &Poller{
		interestSet: r,
		epollFd:     epfd,
		wakeFd:      efd,
		events:      make([]unix.EpollEvent, maxEvents),
	}, nil
}

// Watch adds fd to the readiness set for read events.
func (p *Poller) Watch(fd int) error {
	if err := p.registerRead(fd); err != nil {
		return opError("watch", fd, ErrResource, err)
	}
	return nil
}

func (p *Poller) Unwatch(fd int) error {
	return p.unregister(fd)
}

// Wait blocks until a watched descriptor is ready, Wake is called, or msec elapses (-1 waits
// forever). An interrupted wait or a wake-up returns an empty set.
func (p *Poller) Wait(msec int) (ReadySet, error) {
	n, err := unix.EpollWait(p.epollFd, p.events, msec)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return ReadySet{}, nil
		}
		log.Logger.Error("epoll wait error", zap.Error(err))
		return nil, opError("epoll_wait", p.epollFd, ErrResource, os.NewSyscallError("epoll_wait", err))
	}

	ready := make(ReadySet, n)
	for i := 0; i < n; i++ {
		ev := &p.events[i]
		fd := int(ev.Fd)
		if fd == p.wakeFd {
			p.drainWake()
			continue
		}
		ready[fd] = ev.Events
	}
	return ready, nil
}

// Wake makes a pending or the next Wait return. Safe for concurrent use.
func (p *Poller) Wake() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errPollerClosed
	}

	var one uint64 = 1
	_, err := unix.Write(p.wakeFd, (*(*[8]byte)(unsafe.Pointer(&one)))[:])
	// EAGAIN: the counter is saturated, a wake-up is already pending
	if err != nil && !errors.Is(err, unix.EAGAIN) {
		log.Logger.Error("Failed to write to event fd", zap.Error(err))
		return err
	}
	return nil
}

func (p *Poller) drainWake() {
	var buf uint64
	_, err := unix.Read(p.wakeFd, (*(*[8]byte)(unsafe.Pointer(&buf)))[:])
	if err != nil && !errors.Is(err, unix.EAGAIN) {
		log.Logger.Error("Failed to read from event fd", zap.Error(err))
	}
}

// Close order: eventfd, epoll. Watched descriptors belong to their owners and stay open.
func (p *Poller) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	var errs error
	if err := p.Delete(p.wakeFd); err != nil {
		log.Logger.Debug("Failed to delete eventfd from epoll", zap.Error(err))
	}
	if err := CloseFd(p.wakeFd); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("close eventfd %d: %w", p.wakeFd, err))
	}
	if err := CloseFd(p.epollFd); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("close epoll %d: %w", p.epollFd, err))
	}
	p.epollSet = map[int]uint32{}
	return errs
}
