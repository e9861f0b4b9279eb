package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/weiawesome/wes-io-chat/pkg/chatclient"
	pkglog "github.com/weiawesome/wes-io-chat/pkg/log"
	"github.com/weiawesome/wes-io-chat/pkg/protocol"
)

func newClient() *chatclient.Client {
	return chatclient.New(chatclient.Config{
		URL:    opts.URL,
		Logger: pkglog.L(),
	})
}

func listenCommand() *cli.Command {
	return &cli.Command{
		Name:  "listen",
		Usage: "join rooms and print everything the server sends until interrupted",
		Flags: []cli.Flag{
			urlFlag,
			tokenFlag,
			&cli.StringSliceFlag{Name: "room", Usage: "room to join, repeatable"},
		},
		Action: func(c *cli.Context) error {
			l := pkglog.L()
			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			client := newClient()
			client.OnStatus(func(s chatclient.Status) {
				l.Info().Str("status", string(s)).Msg("connection status")
				if s == chatclient.StatusConnectionLost {
					stop()
				}
			})
			client.OnMessage(func(m chatclient.Message) {
				l.Info().Str(pkglog.FieldRoomID, m.RoomID).Str(pkglog.FieldUserID, m.SenderID).Str(pkglog.FieldMessageID, m.ID).Msg(m.Content)
			})
			client.OnPresence(func(p chatclient.PresenceChange) {
				l.Info().Str(pkglog.FieldUserID, p.UserID).Bool("online", p.Online).Msg("presence")
			})
			client.OnTyping(func(t chatclient.TypingChange) {
				l.Debug().Str(pkglog.FieldRoomID, t.RoomID).Str(pkglog.FieldUserID, t.UserID).Bool("typing", t.Typing).Msg("typing")
			})
			client.OnRoomEvent(func(e chatclient.RoomEvent) {
				l.Info().Str(pkglog.FieldRoomID, e.RoomID).Str("action", string(e.Action)).Msg("room")
			})
			client.OnEvent(func(e *protocol.ServerEvent) {
				evt := l.Info().Str("event", e.Event)
				if len(e.Payload) > 0 {
					evt = evt.RawJSON("payload", e.Payload)
				}
				evt.Msg("server event")
			})
			client.OnError(func(e *protocol.ErrorMessage) {
				l.Warn().Str("code", e.Code).Str("ref", e.Ref).Msg(e.Message)
			})

			if err := client.Connect(ctx, opts.Token); err != nil {
				return err
			}
			defer client.Disconnect()

			for _, room := range c.StringSlice("room") {
				if err := client.JoinRoom(room); err != nil {
					return err
				}
			}

			<-ctx.Done()
			return nil
		},
	}
}

func sendCommand() *cli.Command {
	return &cli.Command{
		Name:      "send",
		Usage:     "join a room, send one message and wait for it to be delivered",
		ArgsUsage: "<message>",
		Flags: []cli.Flag{
			urlFlag,
			tokenFlag,
			&cli.StringFlag{Name: "room", Required: true},
			&cli.StringFlag{Name: "type", Value: "text"},
			&cli.StringFlag{Name: "reply-to"},
			&cli.DurationFlag{Name: "wait", Value: 10 * time.Second},
		},
		Action: func(c *cli.Context) error {
			content := c.Args().First()
			if content == "" {
				return cli.Exit("message is required", 2)
			}
			room := c.String("room")
			ref := uuid.New().String()

			ctx, cancel := context.WithTimeout(c.Context, c.Duration("wait"))
			defer cancel()

			client := newClient()
			done := make(chan error, 4)
			client.OnRoomEvent(func(e chatclient.RoomEvent) {
				if e.RoomID == room && e.Action == chatclient.RoomActionJoined {
					done <- client.SendMessage(room, content,
						chatclient.WithRef(ref),
						chatclient.WithMessageType(c.String("type")),
						chatclient.WithReplyTo(c.String("reply-to")))
				}
			})
			client.OnMessage(func(m chatclient.Message) {
				if m.Ref == ref {
					fmt.Fprintln(c.App.Writer, m.ID)
					done <- nil
				}
			})
			client.OnError(func(e *protocol.ErrorMessage) {
				done <- fmt.Errorf("%s: %s", e.Code, e.Message)
			})

			if err := client.Connect(ctx, opts.Token); err != nil {
				return err
			}
			defer client.Disconnect()

			if err := client.JoinRoom(room); err != nil {
				return err
			}

			// join ack, then delivery
			for i := 0; i < 2; i++ {
				select {
				case err := <-done:
					if err != nil {
						return err
					}
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return nil
		},
	}
}
