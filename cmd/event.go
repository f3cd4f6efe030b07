package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/frahmantamala/membership-portal/internal/core/events"
	"github.com/spf13/cobra"
)

var eventCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect assignment events",
}

var listenEventCmd = &cobra.Command{
	Use:   "listen",
	Short: "Print assignment events published on the Redis channel",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		client, err := events.NewRedisClient(ctx, cfg.Events.RedisAddr)
		if err != nil {
			return err
		}
		defer client.Close()

		channel := cfg.Events.Channel
		if channel == "" {
			channel = events.DefaultChannel
		}

		sub := client.Subscribe(ctx, channel)
		defer sub.Close()

		fmt.Fprintf(cmd.ErrOrStderr(), "listening on %s\n", channel)
		for {
			msg, err := sub.ReceiveMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg.Payload)
		}
	},
}

func init() {
	eventCmd.AddCommand(listenEventCmd)
}
