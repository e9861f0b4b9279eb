package main

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/weiawesome/wes-io-chat/internal/config"
	pkgconfig "github.com/weiawesome/wes-io-chat/pkg/config"
	"github.com/weiawesome/wes-io-chat/pkg/jwt"
)

func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:      "token",
		Usage:     "mint an access token signed with the configured secret",
		ArgsUsage: "<user-id>",
		Flags: []cli.Flag{
			configFlag,
			&cli.StringFlag{Name: "email"},
			&cli.StringFlag{Name: "username"},
			&cli.StringSliceFlag{Name: "role", Usage: "role name, repeatable"},
			&cli.DurationFlag{Name: "ttl", Usage: "token lifetime, defaults to jwt.access_ttl"},
		},
		Action: func(c *cli.Context) error {
			userID := c.Args().First()
			if userID == "" {
				return cli.Exit("user id is required", 2)
			}

			cfg, err := config.Load(pkgconfig.WithConfigFile(opts.Config))
			if err != nil {
				return err
			}
			manager, err := jwt.NewManager(cfg.JWT)
			if err != nil {
				return err
			}

			ttl := c.Duration("ttl")
			if ttl <= 0 {
				ttl = cfg.JWT.AccessTTL
			}
			token, exp, err := manager.GenerateWithTTL(userID, c.String("email"), c.String("username"), c.StringSlice("role"), ttl)
			if err != nil {
				return err
			}

			fmt.Fprintln(c.App.Writer, token)
			fmt.Fprintf(c.App.ErrWriter, "expires %s\n", exp.Format(time.RFC3339))
			return nil
		},
	}
}
