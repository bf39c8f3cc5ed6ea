// Command checkinctl holds operator tooling for the check-in service.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"checkin/internal/config"
	"checkin/internal/logging"
)

func main() {
	cfg := config.Load()
	log := logging.NewWithWriter(os.Stderr, "checkinctl")
	for _, w := range cfg.Warnings {
		log.Warn().Msg(w)
	}
	if err := rootCommand(cfg).Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCommand(cfg config.App) *cobra.Command {
	root := &cobra.Command{
		Use:          "checkinctl",
		Short:        "Operator tools for the check-in service",
		SilenceUsage: true,
	}
	root.AddCommand(photosCommand(cfg), tokenCommand(cfg))
	return root
}
