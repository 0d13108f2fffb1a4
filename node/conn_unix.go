//go:build linux
// +build linux

package node

import (
	"io"
	"net"
	"os"
	"strconv"

	"golang.org/x/sys/unix"
)

// ReceiveBufferSize is the most a single Receive returns.
const ReceiveBufferSize = 1024

// Connection owns one stream socket: the listening socket or an accepted client.
// fd is -1 while unbound.
type Connection struct {
	fd      int
	addr    string
	bufSize int
}

func NewConnection() *Connection {
	return &Connection{fd: -1, bufSize: ReceiveBufferSize}
}

func newConnectionFd(fd int, addr string, bufSize int) *Connection {
	if bufSize <= 0 {
		bufSize = ReceiveBufferSize
	}
	return &Connection{fd: fd, addr: addr, bufSize: bufSize}
}

// Fd returns the descriptor, or -1 once closed.
func (c *Connection) Fd() int {
	return c.fd
}

// Addr returns the peer address of an accepted connection.
func (c *Connection) Addr() string {
	return c.addr
}

// SetReceiveBufferSize changes how much a single Receive reads. Accepted connections inherit it.
func (c *Connection) SetReceiveBufferSize(n int) {
	if n > 0 {
		c.bufSize = n
	}
}

// Create allocates the socket. It is a no-op on a bound connection.
func (c *Connection) Create() error {
	if c.fd >= 0 {
		return nil
	}
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return opError("socket", -1, ErrResource, os.NewSyscallError("socket", err))
	}
	c.fd = fd
	return nil
}

// Bind binds to an IPv4 literal and port. An empty address means any.
func (c *Connection) Bind(addr string, port int) error {
	if c.fd < 0 {
		return opError("bind", c.fd, ErrResource, unix.EBADF)
	}
	ip := net.IPv4zero
	if addr != "" {
		ip = net.ParseIP(addr)
	}
	if ip == nil || ip.To4() == nil || port < 0 || port > 65535 {
		return opError("bind", c.fd, ErrAddress, &net.AddrError{Err: "invalid IPv4 endpoint", Addr: net.JoinHostPort(addr, strconv.Itoa(port))})
	}

	sa := &unix.SockaddrInet4{Port: port}
	copy(sa.Addr[:], ip.To4())
	if err := unix.Bind(c.fd, sa); err != nil {
		return opError("bind", c.fd, ErrAddress, os.NewSyscallError("bind", err))
	}
	return nil
}

func (c *Connection) Listen(backlog int) error {
	if err := unix.Listen(c.fd, backlog); err != nil {
		return opError("listen", c.fd, ErrResource, os.NewSyscallError("listen", err))
	}
	return nil
}

// LocalAddr returns the bound IPv4 address and port.
func (c *Connection) LocalAddr() (string, int, error) {
	sa, err := unix.Getsockname(c.fd)
	if err != nil {
		return "", 0, opError("getsockname", c.fd, ErrResource, os.NewSyscallError("getsockname", err))
	}
	in4, ok := sa.(*unix.SockaddrInet4)
	if !ok {
		return "", 0, opError("getsockname", c.fd, ErrAddress, unix.EAFNOSUPPORT)
	}
	return net.IP(in4.Addr[:]).String(), in4.Port, nil
}

// Accept takes one pending peer off the listening socket.
func (c *Connection) Accept() (*Connection, error) {
	fd, sa, err := unix.Accept4(c.fd, unix.SOCK_CLOEXEC)
	if err != nil {
		return nil, opError("accept", c.fd, ErrTransient, os.NewSyscallError("accept4", err))
	}
	return newConnectionFd(fd, sockaddrString(sa), c.bufSize), nil
}

// Send writes all of p. A short or failed write closes the connection and reports
// ErrPeerDisconnected; the caller drops the client like any other disconnect.
func (c *Connection) Send(p []byte) error {
	fd := c.fd
	if fd < 0 {
		return opError("send", fd, ErrPeerDisconnected, unix.EBADF)
	}
	// MSG_NOSIGNAL: a vanished peer is an EPIPE here, not a process wide SIGPIPE.
	n, err := unix.SendmsgN(fd, p, nil, nil, unix.MSG_NOSIGNAL)
	if err == nil && n < len(p) {
		err = io.ErrShortWrite
	}
	if err != nil {
		_ = c.Close()
		return opError("send", fd, ErrPeerDisconnected, err)
	}
	return nil
}

// Receive reads whatever is available, up to the receive buffer size. A zero-length read is the
// peer's orderly shutdown: the connection is closed and ErrPeerDisconnected returned.
func (c *Connection) Receive() ([]byte, error) {
	fd := c.fd
	if fd < 0 {
		return nil, opError("recv", fd, ErrPeerDisconnected, unix.EBADF)
	}
	buf := make([]byte, c.bufSize)
	n, err := unix.Read(fd, buf)
	if err != nil {
		return nil, opError("recv", fd, ErrTransient, os.NewSyscallError("read", err))
	}
	if n == 0 {
		_ = c.Close()
		return nil, opError("recv", fd, ErrPeerDisconnected, io.EOF)
	}
	return buf[:n], nil
}

// Close releases the descriptor. Closing twice is fine.
func (c *Connection) Close() error {
	if c.fd < 0 {
		return nil
	}
	fd := c.fd
	c.fd = -1
	if err := unix.Close(fd); err != nil {
		return os.NewSyscallError("close", err)
	}
	return nil
}

func (c *Connection) setNonblock(nonblock bool) error {
	if err := unix.SetNonblock(c.fd, nonblock); err != nil {
		return opError("fcntl", c.fd, ErrResource, os.NewSyscallError("fcntl", err))
	}
	return nil
}
