//go:build linux
// +build linux

package node

import (
	"os"

	"golang.org/x/sys/unix"
)

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func (c *Connection) getsockopt(level, opt int) (int, error) {
	v, err := unix.GetsockoptInt(c.fd, level, opt)
	if err != nil {
		return 0, opError("getsockopt", c.fd, ErrResource, os.NewSyscallError("getsockopt", err))
	}
	return v, nil
}

func (c *Connection) setsockopt(level, opt, value int) error {
	if err := unix.SetsockoptInt(c.fd, level, opt, value); err != nil {
		return opError("setsockopt", c.fd, ErrResource, os.NewSyscallError("setsockopt", err))
	}
	return nil
}

// AcceptConn reports whether the socket is listening.
func (c *Connection) AcceptConn() (bool, error) {
	v, err := c.getsockopt(unix.SOL_SOCKET, unix.SO_ACCEPTCONN)
	return v != 0, err
}

func (c *Connection) KeepAlive() (bool, error) {
	v, err := c.getsockopt(unix.SOL_SOCKET, unix.SO_KEEPALIVE)
	return v != 0, err
}

func (c *Connection) SetKeepAlive(enable bool) error {
	return c.setsockopt(unix.SOL_SOCKET, unix.SO_KEEPALIVE, boolToInt(enable))
}

func (c *Connection) ReuseAddr() (bool, error) {
	v, err := c.getsockopt(unix.SOL_SOCKET, unix.SO_REUSEADDR)
	return v != 0, err
}

func (c *Connection) SetReuseAddr(enable bool) error {
	return c.setsockopt(unix.SOL_SOCKET, unix.SO_REUSEADDR, boolToInt(enable))
}

// SendBuffer returns SO_SNDBUF. Linux reports twice the requested size.
func (c *Connection) SendBuffer() (int, error) {
	return c.getsockopt(unix.SOL_SOCKET, unix.SO_SNDBUF)
}

func (c *Connection) SetSendBuffer(n int) error {
	return c.setsockopt(unix.SOL_SOCKET, unix.SO_SNDBUF, n)
}

func (c *Connection) RecvBuffer() (int, error) {
	return c.getsockopt(unix.SOL_SOCKET, unix.SO_RCVBUF)
}

func (c *Connection) SetRecvBuffer(n int) error {
	return c.setsockopt(unix.SOL_SOCKET, unix.SO_RCVBUF, n)
}
