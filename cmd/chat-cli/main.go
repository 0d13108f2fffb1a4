package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fzft/go-linechat/cmd"
	"github.com/scott-cotton/cli"
)

func main() {
	cli.MainContext(context.Background(), MainCommand())
}

type cliConfig struct {
	*cli.Command
	Host    string `cli:"name=h desc='server hostname (default 127.0.0.1)'"`
	Port    int    `cli:"name=p desc='server port (default 1976)'"`
	NoColor bool   `cli:"name=no-color desc='do not colour received lines'"`
}

func MainCommand() *cli.Command {
	cfg := &cliConfig{}
	opts, err := cli.StructOpts(cfg)
	if err != nil {
		panic(err)
	}
	return cli.NewCommandAt(&cfg.Command, "chat-cli").
		WithSynopsis("chat-cli [-h host] [-p port]").
		WithDescription("Interactive client for linechat: prints what the server broadcasts, sends what you type.").
		WithOpts(opts...).
		WithRun(cfg.run)
}

func (cfg *cliConfig) run(cc *cli.Context, args []string) error {
	if _, err := cfg.Parse(cc, args); err != nil {
		return err
	}
	c := cmd.NewChatCli(cmd.ChatCliCfg{HostIp: cfg.Host, HostPort: cfg.Port, NoColor: cfg.NoColor})
	if err := c.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return cli.ExitCodeErr(1)
	}
	return nil
}
