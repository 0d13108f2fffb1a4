//go:build linux
// +build linux

package node

import (
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func newTestControl(t *testing.T) (*ControlInput, *os.File) {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = r.Close()
		_ = w.Close()
	})
	in := NewControlInput(r)
	require.NoError(t, in.setNonblock(true))
	assert.Equal(t, int(r.Fd()), in.Fd())
	return in, w
}

func TestControlInputKeepsUnfinishedLine(t *testing.T) {
	in, w := newTestControl(t)

	lines, err := in.ReadLines()
	require.NoError(t, err)
	assert.Empty(t, lines)

	_, err = w.WriteString("hel")
	require.NoError(t, err)
	lines, err = in.ReadLines()
	require.NoError(t, err)
	assert.Empty(t, lines)

	_, err = w.WriteString("lo\r\nworld\n\npart")
	require.NoError(t, err)
	lines, err = in.ReadLines()
	require.NoError(t, err)
	assert.Equal(t, []string{"hello", "world", ""}, lines)

	require.NoError(t, w.Close())
	lines, err = in.ReadLines()
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, []string{"part"}, lines)

	lines, err = in.ReadLines()
	assert.ErrorIs(t, err, io.EOF)
	assert.Empty(t, lines)
}

func TestControlInputReadError(t *testing.T) {
	dir, err := os.Open(t.TempDir())
	require.NoError(t, err)
	defer dir.Close()

	lines, err := NewControlInput(dir).ReadLines()
	assert.Empty(t, lines)
	assert.ErrorIs(t, err, ErrTransient)
	assert.ErrorIs(t, err, unix.EISDIR)
}
