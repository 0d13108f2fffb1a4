//go:build linux
// +build linux

package node

import (
	"context"
	"errors"
	"os"
	"sync/atomic"

	"github.com/fzft/go-linechat/config"
	"github.com/fzft/go-linechat/log"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// lineTerminator ends every line broadcast from the control input.
const lineTerminator = "\r\n"

// ChatServer is the event loop. One goroutine runs it; each cycle first collects at most one
// lifecycle signal, then waits on the listener, the control input and every client, and
// services the ready ones in registration order.
type ChatServer struct {
	cfg     config.Config
	control *os.File
	handler MessageHandler

	listener *Connection
	poller   *Poller
	bridge   *SignalBridge
	registry *ConnectionRegistry
	input    *ControlInput

	quitting bool
	// cursor is the descriptor index being serviced; removals at or before it pull it back.
	cursor int

	connCnt atomic.Int64
	addr    string
	port    int
	ready   chan struct{}
}

type Option func(*ChatServer)

// WithControlInput reads operator commands from f. Without it the server has no control input.
func WithControlInput(f *os.File) Option {
	return func(s *ChatServer) {
		s.control = f
	}
}

// WithHandler overrides what happens to client messages. By default the config's Relay flag
// picks RelayHandler or LogHandler.
func WithHandler(h MessageHandler) Option {
	return func(s *ChatServer) {
		s.handler = h
	}
}

func NewChatServer(cfg config.Config, opts ...Option) *ChatServer {
	s := &ChatServer{
		cfg:   cfg,
		ready: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.handler == nil {
		if cfg.Relay {
			s.handler = RelayHandler{}
		} else {
			s.handler = LogHandler{}
		}
	}
	return s
}

// Ready is closed once the server is listening.
func (s *ChatServer) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the bound address and port. Valid after Ready.
func (s *ChatServer) Addr() (string, int) {
	return s.addr, s.port
}

// ClientCount is the number of connected clients as of the end of the last cycle. Safe to call
// from any goroutine.
func (s *ChatServer) ClientCount() int {
	return int(s.connCnt.Load())
}

// Run listens and serves until a quit command, a shutdown signal or ctx cancellation. It returns
// nil on a clean shutdown and a fatal error otherwise; all sockets are closed either way.
func (s *ChatServer) Run(ctx context.Context) error {
	defer s.teardown()

	if err := s.setup(); err != nil {
		log.Logger.Error("setup failed", zap.Error(err))
		return err
	}

	stop := context.AfterFunc(ctx, func() {
		_ = s.poller.Wake()
	})
	defer stop()

	log.Logger.Info("listening", zap.String("addr", s.addr), zap.Int("port", s.port))
	close(s.ready)

	for !s.quitting {
		if ctx.Err() != nil {
			log.Logger.Info("context done", zap.Error(ctx.Err()))
			s.quit()
			break
		}

		handled, err := s.bridge.PollContext(ctx, s.cfg.SignalTimeout())
		if err != nil {
			return err
		}
		if handled {
			continue
		}

		ready, err := s.poller.Wait(-1)
		if err != nil {
			return err
		}
		s.dispatch(ready)
		s.connCnt.Store(int64(s.registry.ClientCount()))
	}

	log.Logger.Info("shutting down server")
	return nil
}

func (s *ChatServer) setup() error {
	s.listener = NewConnection()
	s.listener.SetReceiveBufferSize(s.cfg.ReceiveBufferSize)
	if err := s.listener.Create(); err != nil {
		return err
	}
	if err := s.listener.SetReuseAddr(true); err != nil {
		return err
	}
	if err := s.listener.Bind(s.cfg.Address, s.cfg.Port); err != nil {
		return err
	}
	if err := s.listener.Listen(s.cfg.Backlog); err != nil {
		return err
	}
	// a peer that resets before accept must not block the loop
	if err := s.listener.setNonblock(true); err != nil {
		return err
	}
	addr, port, err := s.listener.LocalAddr()
	if err != nil {
		return err
	}
	s.addr, s.port = addr, port

	if s.poller, err = NewPoller(s.cfg.MaxEvents); err != nil {
		return err
	}

	controlFd := -1
	if s.control != nil {
		s.input = NewControlInput(s.control)
		if err := s.input.setNonblock(true); err != nil {
			return err
		}
		controlFd = s.input.Fd()
	}
	s.registry, err = NewConnectionRegistry(s.poller, s.listener.Fd(), controlFd)
	if errors.Is(err, unix.EPERM) {
		// regular files and /dev/null cannot be polled
		log.Logger.Warn("control input is not pollable, operator commands disabled", zap.Int("fd", controlFd))
		_ = s.input.setNonblock(false)
		s.input = nil
		s.registry, err = NewConnectionRegistry(s.poller, s.listener.Fd(), -1)
	}
	if err != nil {
		return err
	}
	s.registry.OnRemove(s.clientRemoved)

	s.bridge = NewSignalBridge(s, WithWaker(s.poller))
	return nil
}

// clientRemoved keeps the dispatch cursor on the entry after the one it was servicing.
func (s *ChatServer) clientRemoved(index int) {
	if index <= s.cursor {
		s.cursor--
	}
}

func (s *ChatServer) teardown() {
	var errs error
	if s.registry != nil {
		errs = multierr.Append(errs, s.registry.CloseAll())
	}
	if s.listener != nil {
		errs = multierr.Append(errs, s.listener.Close())
	}
	if s.input != nil {
		// O_NONBLOCK is shared with whoever else holds stdin
		errs = multierr.Append(errs, s.input.setNonblock(false))
	}
	if s.bridge != nil {
		s.bridge.Close()
	}
	if s.poller != nil {
		errs = multierr.Append(errs, s.poller.Close())
	}
	if errs != nil {
		log.Logger.Warn("teardown", zap.Error(errs))
	}
	s.connCnt.Store(0)
}

// dispatch services ready descriptors in registration order. The walk is by explicit index:
// entries appended by accept are visited (and skipped, they are not in ready) and removals
// move the cursor back through the OnRemove hook.
func (s *ChatServer) dispatch(ready ReadySet) {
	for s.cursor = 0; s.cursor < s.registry.Len(); s.cursor++ {
		if s.quitting {
			return
		}
		d := s.registry.Descriptor(s.cursor)
		if !ready.Readable(d.Fd) {
			continue
		}
		switch d.Role {
		case RoleListener:
			s.handleAccept()
		case RoleControl:
			s.handleControl()
		case RoleClient:
			s.handleClient(d.Fd)
		}
	}
}

func (s *ChatServer) handleAccept() {
	c, err := s.listener.Accept()
	if err != nil {
		log.Logger.Warn("accept error", zap.Error(err))
		return
	}
	if err := s.registry.AddClient(c); err != nil {
		log.Logger.Error("register client error", zap.Int("fd", c.Fd()), zap.Error(err))
		_ = c.Close()
		return
	}
	log.Logger.Info("new client connected", zap.Int("fd", c.Fd()), zap.String("addr", c.Addr()))
}

func (s *ChatServer) handleControl() {
	if s.input == nil {
		return
	}
	lines, err := s.input.ReadLines()
	for _, line := range lines {
		s.command(line)
		if s.quitting {
			return
		}
	}
	if err != nil {
		log.Logger.Warn("error reading control input", zap.Error(err))
		// level triggered: a closed or broken input would be ready forever
		s.registry.Detach(RoleControl)
	}
}

// command runs one operator line: the quit keyword stops the server, anything else non-empty
// goes to every client.
func (s *ChatServer) command(line string) {
	switch {
	case line == s.cfg.QuitKeyword:
		s.quit()
	case line != "":
		n := s.registry.Broadcast([]byte(line+lineTerminator), nil)
		log.Logger.Debug("broadcast", zap.String("line", line), zap.Int("recipients", n))
	}
}

func (s *ChatServer) handleClient(fd int) {
	c := s.registry.Client(fd)
	if c == nil {
		return
	}

	data, err := c.Receive()
	if err != nil {
		if IsTemporaryError(err) {
			return
		}
		if errors.Is(err, ErrPeerDisconnected) {
			log.Logger.Info("client disconnected", zap.Int("fd", fd))
		} else {
			log.Logger.Warn("client receive error", zap.Int("fd", fd), zap.Error(err))
		}
		s.registry.RemoveByDescriptor(fd)
		return
	}
	s.handler.OnMessage(s.registry, c, data)
}

// quit closes the listener and every client and raises the shutdown flag. Idempotent.
func (s *ChatServer) quit() {
	if s.quitting {
		return
	}
	log.Logger.Info("quit requested")
	if s.registry != nil {
		s.registry.Detach(RoleListener)
		if err := s.registry.CloseAll(); err != nil {
			log.Logger.Warn("Failed to close clients", zap.Error(err))
		}
	}
	if err := s.listener.Close(); err != nil {
		log.Logger.Warn("Failed to close listener", zap.Error(err))
	}
	s.connCnt.Store(0)
	s.quitting = true
}

func (s *ChatServer) cont() {
	log.Logger.Debug("continue")
}

func (s *ChatServer) OnHangup()      { s.quit() }
func (s *ChatServer) OnInterrupt()   { s.quit() }
func (s *ChatServer) OnTerminate()   { s.quit() }
func (s *ChatServer) OnBrokenPipe()  { s.quit() }
func (s *ChatServer) OnChildExited() { s.quit() }
func (s *ChatServer) OnAlarm()       { s.cont() }
func (s *ChatServer) OnUser1()       { s.cont() }
func (s *ChatServer) OnUser2()       { s.cont() }
