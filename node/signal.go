//go:build linux
// +build linux

package node

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fzft/go-linechat/log"
	"go.uber.org/zap"
)

// SignalListener receives lifecycle signals collected by SignalBridge.Poll, one method per
// signal. Embed NopSignalListener to implement only the ones you care about.
type SignalListener interface {
	OnHangup()
	OnInterrupt()
	OnTerminate()
	OnBrokenPipe()
	OnChildExited()
	OnAlarm()
	OnUser1()
	OnUser2()
}

// NopSignalListener ignores every signal.
type NopSignalListener struct{}

func (NopSignalListener) OnHangup()      {}
func (NopSignalListener) OnInterrupt()   {}
func (NopSignalListener) OnTerminate()   {}
func (NopSignalListener) OnBrokenPipe()  {}
func (NopSignalListener) OnChildExited() {}
func (NopSignalListener) OnAlarm()       {}
func (NopSignalListener) OnUser1()       {}
func (NopSignalListener) OnUser2()       {}

// lifecycleSignals is the fixed set the bridge collects.
var lifecycleSignals = []os.Signal{
	syscall.SIGHUP,
	syscall.SIGINT,
	syscall.SIGTERM,
	syscall.SIGPIPE,
	syscall.SIGCHLD,
	syscall.SIGALRM,
	syscall.SIGUSR1,
	syscall.SIGUSR2,
}

// pendingSignals bounds how many signals may wait for collection. Past that, repeats are
// dropped, the same way the kernel coalesces a standard signal that is already pending.
const pendingSignals = 16

var errBridgeClosed = errors.New("signal bridge closed")

// SignalBridge turns asynchronous signals into events collected synchronously by Poll.
//
// The runtime's handler (signal.Notify) only makes a signal eligible for collection: a
// forwarder moves it to the pending queue and nudges the waker so a blocked readiness wait
// returns. Listener callbacks run only inside Poll, on the caller's goroutine.
type SignalBridge struct {
	listener SignalListener
	waker    Waker
	notify   func(c chan<- os.Signal, sig ...os.Signal)
	stop     func(c chan<- os.Signal)

	raw     chan os.Signal
	pending chan os.Signal
	done    chan struct{}
	once    sync.Once
}

type SignalBridgeOption func(*SignalBridge)

// WithWaker registers w to be woken whenever a signal becomes pending.
func WithWaker(w Waker) SignalBridgeOption {
	return func(b *SignalBridge) {
		b.waker = w
	}
}

// withNotify replaces the os/signal subscription, for tests.
func withNotify(notify func(c chan<- os.Signal, sig ...os.Signal), stop func(c chan<- os.Signal)) SignalBridgeOption {
	return func(b *SignalBridge) {
		b.notify = notify
		b.stop = stop
	}
}

// NewSignalBridge subscribes the lifecycle signals and arms the bridge. From here on those
// signals no longer trigger their default action.
func NewSignalBridge(l SignalListener, opts ...SignalBridgeOption) *SignalBridge {
	if l == nil {
		l = NopSignalListener{}
	}
	b := &SignalBridge{
		listener: l,
		notify:   signal.Notify,
		stop:     signal.Stop,
		raw:      make(chan os.Signal, len(lifecycleSignals)),
		pending:  make(chan os.Signal, pendingSignals),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}

	b.notify(b.raw, lifecycleSignals...)
	go b.forward()
	return b
}

func (b *SignalBridge) forward() {
	for {
		select {
		case <-b.done:
			return
		case sig := <-b.raw:
			select {
			case b.pending <- sig:
			default:
				log.Logger.Warn("signal dropped, too many pending", zap.Stringer("signal", sig))
			}
			if b.waker != nil {
				_ = b.waker.Wake()
			}
		}
	}
}

// Poll waits up to timeout for one pending signal. It returns true after delivering it to the
// listener, false when nothing arrived in time. A timeout <= 0 only checks.
func (b *SignalBridge) Poll(timeout time.Duration) (bool, error) {
	return b.PollContext(context.Background(), timeout)
}

// PollContext is Poll with an interruption source: a cancelled ctx ends the wait and reports
// that nothing happened, it is not an error.
func (b *SignalBridge) PollContext(ctx context.Context, timeout time.Duration) (bool, error) {
	select {
	case <-b.done:
		return false, opError("sigwait", -1, ErrSignal, errBridgeClosed)
	case sig := <-b.pending:
		b.dispatch(sig)
		return true, nil
	default:
	}
	if timeout <= 0 {
		return false, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case sig := <-b.pending:
		b.dispatch(sig)
		return true, nil
	case <-timer.C:
		return false, nil
	case <-ctx.Done():
		return false, nil
	case <-b.done:
		return false, opError("sigwait", -1, ErrSignal, errBridgeClosed)
	}
}

func (b *SignalBridge) dispatch(sig os.Signal) {
	log.Logger.Info("signal received", zap.Stringer("signal", sig))

	switch sig {
	case syscall.SIGHUP:
		b.listener.OnHangup()
	case syscall.SIGINT:
		b.listener.OnInterrupt()
	case syscall.SIGTERM:
		b.listener.OnTerminate()
	case syscall.SIGPIPE:
		b.listener.OnBrokenPipe()
	case syscall.SIGCHLD:
		b.listener.OnChildExited()
	case syscall.SIGALRM:
		b.listener.OnAlarm()
	case syscall.SIGUSR1:
		b.listener.OnUser1()
	case syscall.SIGUSR2:
		b.listener.OnUser2()
	}
}

// Close unsubscribes and disarms the bridge. Later polls fail with ErrSignal.
func (b *SignalBridge) Close() {
	b.once.Do(func() {
		b.stop(b.raw)
		close(b.done)
	})
}
