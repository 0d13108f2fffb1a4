package cmd

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"net"
	"strings"
	"testing"

	"github.com/peterh/liner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCli() *ChatCli {
	return NewChatCli(ChatCliCfg{NoColor: true})
}

func TestNewChatCliDefaults(t *testing.T) {
	cli := newTestCli()
	assert.Equal(t, "127.0.0.1", cli.config.HostIp)
	assert.Equal(t, 1976, cli.config.HostPort)
	assert.Equal(t, "127.0.0.1:1976> ", cli.prompt())
}

func TestReplSendsLinesUntilQuit(t *testing.T) {
	cli := newTestCli()
	in := scannerSource{bufio.NewScanner(strings.NewReader("hello\n\nworld\nQUIT\nignored\n"))}
	var sent bytes.Buffer

	require.NoError(t, cli.repl(in, &sent))
	assert.Equal(t, "hello\nworld\n", sent.String())
}

func TestReplStopsAtEndOfInput(t *testing.T) {
	cli := newTestCli()
	in := scannerSource{bufio.NewScanner(strings.NewReader("one\ntwo"))}
	var sent bytes.Buffer

	require.NoError(t, cli.repl(in, &sent))
	assert.Equal(t, "one\ntwo\n", sent.String())
}

func TestReplClearIsLocal(t *testing.T) {
	cli := newTestCli()
	var screen, sent bytes.Buffer
	cli.out = &screen
	in := scannerSource{bufio.NewScanner(strings.NewReader("before\n/clear\nafter\n"))}

	require.NoError(t, cli.repl(in, &sent))
	assert.Equal(t, "before\nafter\n", sent.String())
	assert.Equal(t, "\x1b[H\x1b[2J", screen.String())
}

type abortingSource struct{}

func (abortingSource) ReadLine(string) (string, error) {
	return "", liner.ErrPromptAborted
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, io.ErrClosedPipe
}

func TestReplErrors(t *testing.T) {
	cli := newTestCli()
	assert.NoError(t, cli.repl(abortingSource{}, io.Discard))

	in := scannerSource{bufio.NewScanner(strings.NewReader("hello\n"))}
	err := cli.repl(in, failingWriter{})
	assert.True(t, errors.Is(err, io.ErrClosedPipe))
}

func TestReceivePrintsServerLines(t *testing.T) {
	cli := newTestCli()
	var out bytes.Buffer

	require.NoError(t, cli.receive(strings.NewReader("hello\r\nworld\r\n"), &out))
	assert.Equal(t, "hello\nworld\nconnection closed\n", out.String())
}

func TestReceiveOverConnection(t *testing.T) {
	cli := newTestCli()
	server, client := net.Pipe()

	var out bytes.Buffer
	done := make(chan error, 1)
	go func() { done <- cli.receive(client, &out) }()

	_, err := server.Write([]byte("from server\r\n"))
	require.NoError(t, err)
	require.NoError(t, server.Close())
	require.NoError(t, <-done)
	assert.Equal(t, "from server\nconnection closed\n", out.String())
}

func TestGetDotfilePath(t *testing.T) {
	t.Setenv(ChatCliHisFileEnv, "/tmp/custom_history")
	assert.Equal(t, "/tmp/custom_history", getDotfilePath(ChatCliHisFileEnv, ChatCliHisFileDefault))

	t.Setenv(ChatCliHisFileEnv, "/dev/null")
	assert.Equal(t, "", getDotfilePath(ChatCliHisFileEnv, ChatCliHisFileDefault))

	t.Setenv(ChatCliHisFileEnv, "")
	t.Setenv("HOME", "/home/chat")
	assert.Equal(t, "/home/chat/.linechat_cli_history", getDotfilePath(ChatCliHisFileEnv, ChatCliHisFileDefault))
}
