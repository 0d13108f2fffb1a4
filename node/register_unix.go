//go:build linux
// +build linux

package node

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

const readEvents = unix.EPOLLPRI | unix.EPOLLIN | unix.EPOLLRDHUP

// interestSet is a wrapper around epoll. It keeps track of the fds that are registered to epoll.
type interestSet struct {
	epollFd  int
	epollSet map[int]uint32
}

func newInterestSet(epollFd int) *interestSet {
	return &interestSet{
		epollFd:  epollFd,
		epollSet: make(map[int]uint32),
	}
}

// registerRead registers fd to epoll for read events.
func (r *interestSet) registerRead(fd int) (err error) {
	if _, ok := r.epollSet[fd]; ok {
		err = r.ModRead(fd)
	} else {
		err = r.AddRead(fd)
	}
	if err != nil {
		return err
	}

	r.epollSet[fd] = readEvents
	return nil
}

// unregister removes fd from epoll. A descriptor that was already closed has left the epoll set
// on its own, so EBADF and ENOENT count as done.
func (r *interestSet) unregister(fd int) error {
	if _, ok := r.epollSet[fd]; !ok {
		return nil
	}
	delete(r.epollSet, fd)

	err := r.Delete(fd)
	if errors.Is(err, unix.EBADF) || errors.Is(err, unix.ENOENT) {
		return nil
	}
	return err
}

func (r *interestSet) watched(fd int) bool {
	_, ok := r.epollSet[fd]
	return ok
}

func (r *interestSet) AddRead(fd int) error {
	return os.NewSyscallError("epoll_ctl add",
		unix.EpollCtl(r.epollFd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{Fd: int32(fd), Events: readEvents}))
}

func (r *interestSet) ModRead(fd int) error {
	return os.NewSyscallError("epoll_ctl mod",
		unix.EpollCtl(r.epollFd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{Fd: int32(fd), Events: readEvents}))
}

func (r *interestSet) Delete(fd int) error {
	return os.NewSyscallError("epoll_ctl del", unix.EpollCtl(r.epollFd, unix.EPOLL_CTL_DEL, fd, nil))
}
