//go:build linux
// +build linux

package node

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func newTestPoller(t *testing.T) *Poller {
	t.Helper()
	p, err := NewPoller(16)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func pipe(t *testing.T) (r, w int) {
	t.Helper()
	var fds [2]int
	require.NoError(t, unix.Pipe2(fds[:], unix.O_CLOEXEC))
	t.Cleanup(func() {
		_ = CloseFd(fds[0])
		_ = CloseFd(fds[1])
	})
	return fds[0], fds[1]
}

func TestPollerReportsReadableDescriptor(t *testing.T) {
	p := newTestPoller(t)
	r, w := pipe(t)
	require.NoError(t, p.Watch(r))
	assert.True(t, p.watched(r))

	ready, err := p.Wait(0)
	require.NoError(t, err)
	assert.Empty(t, ready)

	_, err = unix.Write(w, []byte("x"))
	require.NoError(t, err)

	ready, err = p.Wait(1000)
	require.NoError(t, err)
	assert.True(t, ready.Readable(r))
	assert.False(t, ready.Readable(w))

	// level triggered: still ready until read
	ready, err = p.Wait(0)
	require.NoError(t, err)
	assert.True(t, ready.Readable(r))

	require.NoError(t, p.Unwatch(r))
	assert.False(t, p.watched(r))
	ready, err = p.Wait(0)
	require.NoError(t, err)
	assert.Empty(t, ready)
}

func TestPollerWatchTwice(t *testing.T) {
	p := newTestPoller(t)
	r, _ := pipe(t)
	require.NoError(t, p.Watch(r))
	assert.NoError(t, p.Watch(r))
}

func TestPollerWatchRegularFile(t *testing.T) {
	p := newTestPoller(t)
	f, err := unix.Open(t.TempDir()+"/plain", unix.O_CREAT|unix.O_RDWR|unix.O_CLOEXEC, 0o600)
	require.NoError(t, err)
	defer unix.Close(f)

	err = p.Watch(f)
	assert.ErrorIs(t, err, unix.EPERM)
	assert.ErrorIs(t, err, ErrResource)
}

func TestPollerUnwatchClosedDescriptor(t *testing.T) {
	p := newTestPoller(t)
	r, _ := pipe(t)
	require.NoError(t, p.Watch(r))
	require.NoError(t, unix.Close(r))

	assert.NoError(t, p.Unwatch(r))
	assert.NoError(t, p.Unwatch(12345))
}

func TestPollerWake(t *testing.T) {
	p := newTestPoller(t)

	require.NoError(t, p.Wake())
	ready, err := p.Wait(-1)
	require.NoError(t, err)
	assert.Empty(t, ready)

	// drained: the wake-up does not repeat
	ready, err = p.Wait(0)
	require.NoError(t, err)
	assert.Empty(t, ready)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = p.Wake()
	}()
	start := time.Now()
	_, err = p.Wait(-1)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestPollerClose(t *testing.T) {
	p, err := NewPoller(0)
	require.NoError(t, err)
	assert.Len(t, p.events, 1024)

	assert.NoError(t, p.Close())
	assert.NoError(t, p.Close())
	assert.Error(t, p.Wake())
}

func TestReadySetReadable(t *testing.T) {
	ready := ReadySet{
		3: unix.EPOLLIN,
		4: unix.EPOLLHUP,
		5: unix.EPOLLOUT,
	}
	assert.True(t, ready.Readable(3))
	assert.True(t, ready.Readable(4))
	assert.False(t, ready.Readable(5))
	assert.False(t, ready.Readable(6))
	assert.False(t, ready.Readable(-1))
}
