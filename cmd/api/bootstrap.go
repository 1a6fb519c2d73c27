package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/go-email-verification/internal/config"
	"github.com/go-email-verification/internal/infrastructure/dynamo"
	"github.com/spf13/cobra"
)

func newBootstrapCommand(cfg func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "bootstrap",
		Short: "Create the DynamoDB table if it does not exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := cfg()
			if c.StoreDriver != "dynamo" {
				return errors.New("bootstrap requires STORE_DRIVER=dynamo")
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			client, err := dynamo.NewClient(ctx, c)
			if err != nil {
				return err
			}
			if err := dynamo.Bootstrap(ctx, client, c.DynamoTables); err != nil {
				return err
			}
			slog.Info("dynamodb tables ready", "table", c.DynamoTables.EmailVerifications)
			return nil
		},
	}
}
