// Command chatctl is an operator and developer tool for the realtime chat
// service: it mints tokens, migrates the database and talks to a running
// server over WebSocket.
package main

import (
	"os"

	"github.com/urfave/cli/v2"

	pkglog "github.com/weiawesome/wes-io-chat/pkg/log"
)

var opts struct {
	Config   string
	LogLevel string
	URL      string
	Token    string
}

var configFlag = &cli.StringFlag{
	Name:        "config",
	Usage:       "path to config.yaml",
	EnvVars:     []string{"CHAT_CONFIG"},
	Destination: &opts.Config,
}

var urlFlag = &cli.StringFlag{
	Name:        "url",
	Usage:       "WebSocket endpoint of the realtime service",
	Value:       "ws://localhost:3001/ws",
	EnvVars:     []string{"CHAT_URL"},
	Destination: &opts.URL,
}

var tokenFlag = &cli.StringFlag{
	Name:        "token",
	Usage:       "access token",
	Required:    true,
	EnvVars:     []string{"CHAT_TOKEN"},
	Destination: &opts.Token,
}

func main() {
	app := &cli.App{
		Name:                 "chatctl",
		Usage:                "realtime chat tooling",
		EnableBashCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "log-level",
				Value:       "info",
				EnvVars:     []string{"LOG_LEVEL"},
				Destination: &opts.LogLevel,
			},
		},
		Before: func(c *cli.Context) error {
			pkglog.Init(pkglog.Config{Level: opts.LogLevel, Pretty: true, ServiceName: "chatctl"})
			return nil
		},
		Commands: []*cli.Command{
			tokenCommand(),
			migrateCommand(),
			listenCommand(),
			sendCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("chatctl failed")
	}
}
