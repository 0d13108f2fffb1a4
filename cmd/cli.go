// Package cmd is an interactive line client for the chat server: what the server broadcasts is
// printed, what is typed is sent.
package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/fzft/go-linechat/deps/linenoise"
	"github.com/mattn/go-isatty"
	"github.com/peterh/liner"
)

// clearCommand clears the screen locally; it is never sent.
const clearCommand = "/clear"

var (
	ChatCliHisFileEnv     = "LINECHAT_CLI_HISTFILE"
	ChatCliHisFileDefault = ".linechat_cli_history"
)

type ChatCliCfg struct {
	HostIp   string
	HostPort int
	NoColor  bool
}

type ChatCli struct {
	config *ChatCliCfg
	conn   net.Conn
	out    io.Writer
	paint  func(a ...interface{}) string
}

func NewChatCli(cfg ChatCliCfg) *ChatCli {
	if cfg.HostIp == "" {
		cfg.HostIp = "127.0.0.1"
	}
	if cfg.HostPort == 0 {
		cfg.HostPort = 1976
	}
	c := color.New(color.FgCyan)
	if cfg.NoColor {
		c.DisableColor()
	}
	return &ChatCli{
		config: &cfg,
		out:    os.Stdout,
		paint:  c.SprintFunc(),
	}
}

// LineSource yields what the user types.
type LineSource interface {
	ReadLine(prompt string) (string, error)
}

type scannerSource struct {
	*bufio.Scanner
}

func (s scannerSource) ReadLine(string) (string, error) {
	if s.Scan() {
		return s.Text(), nil
	}
	if err := s.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

type linenoiseSource struct {
	ln          *linenoise.LineNoise
	historyFile string
}

func (s linenoiseSource) ReadLine(prompt string) (string, error) {
	line, err := s.ln.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if line != "" {
		s.ln.AppendHistory(line)
		if s.historyFile != "" {
			_ = s.ln.HistorySave(s.historyFile)
		}
	}
	return line, nil
}

func (cli *ChatCli) prompt() string {
	return net.JoinHostPort(cli.config.HostIp, strconv.Itoa(cli.config.HostPort)) + "> "
}

// connect to the chat server
func (cli *ChatCli) connect() error {
	conn, err := net.Dial("tcp", net.JoinHostPort(cli.config.HostIp, strconv.Itoa(cli.config.HostPort)))
	if err != nil {
		return err
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		if err := tcp.SetKeepAlive(true); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to set SO_KEEPALIVE: %s\n", err.Error())
		}
	}
	cli.conn = conn
	return nil
}

// Run connects and keeps going until the user leaves (quit, exit, Ctrl-C, end of input).
func (cli *ChatCli) Run() error {
	if err := cli.connect(); err != nil {
		return err
	}

	received := make(chan error, 1)
	go func() {
		received <- cli.receive(cli.conn, cli.out)
	}()

	var src LineSource
	if isatty.IsTerminal(os.Stdin.Fd()) {
		ln := linenoise.New()
		defer ln.Close()
		historyFile := getDotfilePath(ChatCliHisFileEnv, ChatCliHisFileDefault)
		if historyFile != "" {
			_ = ln.HistoryLoad(historyFile)
		}
		src = linenoiseSource{ln: ln, historyFile: historyFile}
	} else {
		src = scannerSource{bufio.NewScanner(os.Stdin)}
	}

	err := cli.repl(src, cli.conn)
	cli.conn.Close()
	<-received
	return err
}

// repl sends every non-empty line until the user leaves. /clear is handled locally.
func (cli *ChatCli) repl(src LineSource, w io.Writer) error {
	for {
		line, err := src.ReadLine(cli.prompt())
		if err != nil {
			if err == io.EOF || errors.Is(err, liner.ErrPromptAborted) {
				return nil
			}
			return err
		}

		if strings.EqualFold(line, "quit") || strings.EqualFold(line, "exit") {
			return nil
		}
		if line == clearCommand {
			if err := linenoise.ClearScreen(cli.out); err != nil {
				return err
			}
			continue
		}
		if line == "" {
			continue
		}
		if _, err := io.WriteString(w, line+"\n"); err != nil {
			return fmt.Errorf("send: %w", err)
		}
	}
}

// receive prints every line the server sends until the connection ends.
func (cli *ChatCli) receive(r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		fmt.Fprintln(w, cli.paint(line))
	}
	err := scanner.Err()
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	fmt.Fprintln(w, "connection closed")
	return nil
}

func getDotfilePath(envOverride, dotFilename string) string {
	var dotPath string

	path := os.Getenv(envOverride)
	if path != "" {
		if path == "/dev/null" {
			return ""
		}
		dotPath = path
	} else {
		home := os.Getenv("HOME")
		if home != "" {
			dotPath = fmt.Sprintf("%s/%s", home, dotFilename)
		}
	}
	return dotPath
}
