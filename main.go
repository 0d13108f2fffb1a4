package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fzft/go-linechat/config"
	"github.com/fzft/go-linechat/log"
	"github.com/fzft/go-linechat/node"
	"github.com/scott-cotton/cli"
)

func main() {
	cli.MainContext(context.Background(), MainCommand())
}

// serveConfig holds the command line. Zero values (and -1 for the port) leave the config file
// and environment in charge.
type serveConfig struct {
	*cli.Command
	ConfigFile string `cli:"name=config desc='YAML config file'"`
	EnvFile    string `cli:"name=env desc='.env file with LINECHAT_* overrides'"`
	Address    string `cli:"name=addr desc='IPv4 address to listen on (default any)'"`
	Port       int    `cli:"name=port desc='TCP port to listen on (default 1976)'"`
	Backlog    int    `cli:"name=backlog desc='listen backlog (default 5)'"`
	Relay      bool   `cli:"name=relay desc='forward client messages to the other clients'"`
	LogLevel   string `cli:"name=log desc='log level: debug, info, warn, error'"`
	Version    bool   `cli:"name=version desc='print version and exit'"`
}

func MainCommand() *cli.Command {
	cfg := &serveConfig{Port: -1, EnvFile: ".env"}
	opts, err := cli.StructOpts(cfg)
	if err != nil {
		panic(err)
	}
	return cli.NewCommandAt(&cfg.Command, "linechat").
		WithSynopsis("linechat [opts]").
		WithDescription("TCP line broadcast server. Lines typed on stdin go to every client; 'quit' stops the server.").
		WithOpts(opts...).
		WithRun(cfg.run)
}

func (cfg *serveConfig) run(cc *cli.Context, args []string) error {
	args, err := cfg.Parse(cc, args)
	if err != nil {
		return err
	}
	if len(args) != 0 {
		return fmt.Errorf("%w: unexpected arguments %v", cli.ErrUsage, args)
	}
	if cfg.Version {
		fmt.Fprintln(cc.Out, versionString())
		return nil
	}

	c, err := cfg.load()
	if err != nil {
		return fail(err)
	}
	if err := log.InitLogger(c.LogLevel); err != nil {
		return fail(err)
	}
	defer log.Logger.Sync()

	srv := node.NewChatServer(c, node.WithControlInput(os.Stdin))
	if err := srv.Run(context.Background()); err != nil {
		return fail(err)
	}
	return nil
}

func (cfg *serveConfig) load() (config.Config, error) {
	c, err := config.Load(cfg.ConfigFile, cfg.EnvFile)
	if err != nil {
		return c, err
	}
	if cfg.Address != "" {
		c.Address = cfg.Address
	}
	if cfg.Port >= 0 {
		c.Port = cfg.Port
	}
	if cfg.Backlog > 0 {
		c.Backlog = cfg.Backlog
	}
	if cfg.Relay {
		c.Relay = true
	}
	if cfg.LogLevel != "" {
		c.LogLevel = cfg.LogLevel
	}
	return c, c.Validate()
}

func fail(err error) error {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	return cli.ExitCodeErr(1)
}
