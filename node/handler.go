//go:build linux
// +build linux

package node

import (
	"bytes"

	"github.com/fzft/go-linechat/log"
	"go.uber.org/zap"
)

// MessageHandler decides what happens to bytes a client sends.
type MessageHandler interface {
	OnMessage(r *ConnectionRegistry, from *Connection, data []byte)
}

// MessageHandlerFunc adapts a function to MessageHandler.
type MessageHandlerFunc func(r *ConnectionRegistry, from *Connection, data []byte)

func (f MessageHandlerFunc) OnMessage(r *ConnectionRegistry, from *Connection, data []byte) {
	f(r, from, data)
}

// LogHandler only records what was received. Nothing is forwarded to other clients.
type LogHandler struct{}

func (LogHandler) OnMessage(_ *ConnectionRegistry, from *Connection, data []byte) {
	log.Logger.Info("message from client",
		zap.Int("fd", from.Fd()),
		zap.String("addr", from.Addr()),
		zap.ByteString("data", bytes.TrimRight(data, "\r\n")))
}

// RelayHandler logs like LogHandler and then forwards the bytes, unchanged, to every other
// client.
type RelayHandler struct{}

func (RelayHandler) OnMessage(r *ConnectionRegistry, from *Connection, data []byte) {
	LogHandler{}.OnMessage(r, from, data)
	n := r.Broadcast(data, from)
	log.Logger.Debug("relayed client message", zap.Int("fd", from.Fd()), zap.Int("recipients", n))
}
