//go:build linux
// +build linux

package node

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// socketPair returns a Connection and the other end of a connected unix stream socket.
func socketPair(t *testing.T) (*Connection, *os.File) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	require.NoError(t, err)

	conn := newConnectionFd(fds[0], "pair", 0)
	peer := os.NewFile(uintptr(fds[1]), "peer")
	t.Cleanup(func() {
		_ = conn.Close()
		_ = peer.Close()
	})
	return conn, peer
}

// pending reads what is waiting on f without blocking; nothing waiting gives "".
func pending(t *testing.T, f *os.File) string {
	t.Helper()
	buf := make([]byte, 4096)
	n, _, err := unix.Recvfrom(int(f.Fd()), buf, unix.MSG_DONTWAIT)
	if err == unix.EAGAIN {
		return ""
	}
	require.NoError(t, err)
	return string(buf[:n])
}

type fakeWatcher struct {
	watched   map[int]bool
	unwatched []int
	failOn    int
}

func newFakeWatcher() *fakeWatcher {
	return &fakeWatcher{watched: map[int]bool{}, failOn: -100}
}

func (w *fakeWatcher) Watch(fd int) error {
	if fd == w.failOn {
		return unix.EPERM
	}
	w.watched[fd] = true
	return nil
}

func (w *fakeWatcher) Unwatch(fd int) error {
	delete(w.watched, fd)
	w.unwatched = append(w.unwatched, fd)
	return nil
}
