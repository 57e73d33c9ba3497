package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"NetSentinel/internal/model"
	"NetSentinel/internal/notification"

	"github.com/spf13/cobra"
)

// newTailCmd prints the alerts other sentinels publish on the NATS subject.
func newTailCmd(opts *runOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tail",
		Short: "Print alerts published on the NATS alert subject",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(opts.configPath)
			if err != nil {
				return err
			}
			defer logger.Sync()

			sub, err := notification.NewSubscriber(cfg.Sinks.NATS, logger)
			if err != nil {
				return err
			}
			defer sub.Close()

			out := cmd.OutOrStdout()
			if err := sub.Start(func(ev model.AlertEvent) {
				fmt.Fprintf(out, "[ALERT] %s - %s\n", ev.Title, ev.Detail)
			}); err != nil {
				return err
			}

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			<-sigChan
			fmt.Fprintln(out, "[+] tail stopped.")
			return nil
		},
	}
}
