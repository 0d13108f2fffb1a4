//go:build linux
// +build linux

package node

import (
	"bytes"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

const controlReadSize = 4096

// ControlInput reads operator commands from a file such as stdin. Reads never block: whatever is
// available is appended to a pending buffer, complete lines are handed out and an unfinished line
// waits there for the rest of its bytes.
type ControlInput struct {
	file    *os.File
	fd      int
	pending []byte
}

func NewControlInput(f *os.File) *ControlInput {
	return &ControlInput{
		file: f,
		fd:   int(f.Fd()),
	}
}

func (c *ControlInput) Fd() int {
	return c.fd
}

func (c *ControlInput) setNonblock(nonblock bool) error {
	if err := unix.SetNonblock(c.fd, nonblock); err != nil {
		return opError("fcntl", c.fd, ErrResource, os.NewSyscallError("fcntl", err))
	}
	return nil
}

// ReadLines does one read and returns every complete line buffered so far, without its "\n" or
// "\r\n". Nothing to read yet is not an error. At end of input an unfinished last line is
// returned as is, together with io.EOF.
func (c *ControlInput) ReadLines() ([]string, error) {
	buf := make([]byte, controlReadSize)
	n, err := unix.Read(c.fd, buf)
	switch {
	case err != nil && IsTemporaryError(err):
		return nil, nil
	case err != nil:
		return c.lines(), opError("read", c.fd, ErrTransient, os.NewSyscallError("read", err))
	case n == 0:
		lines := c.lines()
		if len(c.pending) > 0 {
			lines = append(lines, string(bytes.TrimSuffix(c.pending, []byte("\r"))))
			c.pending = nil
		}
		return lines, io.EOF
	}
	c.pending = append(c.pending, buf[:n]...)
	return c.lines(), nil
}

func (c *ControlInput) lines() []string {
	var lines []string
	for {
		i := bytes.IndexByte(c.pending, '\n')
		if i < 0 {
			break
		}
		line := bytes.TrimSuffix(c.pending[:i], []byte("\r"))
		lines = append(lines, string(line))
		c.pending = c.pending[i+1:]
	}
	if len(c.pending) == 0 {
		c.pending = nil
	}
	return lines
}
