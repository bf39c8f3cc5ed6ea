package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"checkin/internal/config"
	"checkin/internal/reportclient"
)

func photosCommand(cfg config.App) *cobra.Command {
	var (
		baseURL string
		token   string
		timeout time.Duration
		details bool
	)
	cmd := &cobra.Command{
		Use:   "photos",
		Short: "Report which students have a photo on file",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			client := reportclient.New(baseURL, token, timeout)
			cmd.PrintErrln("Checking student photos...")
			res, err := client.CheckPhotos(ctx, details)
			if err != nil {
				return err
			}
			reportclient.WriteReport(cmd.OutOrStdout(), res, details)
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "url", "http://localhost:"+cfg.HTTPPort, "check-in API base URL")
	cmd.Flags().StringVar(&token, "token", "", "operator token (see checkinctl token)")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "request timeout")
	cmd.Flags().BoolVar(&details, "details", false, "list students with and without photos")
	return cmd
}
