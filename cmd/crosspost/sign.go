package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"crosspost/internal/config"
	"crosspost/internal/webhook"
)

// sign is a local testing aid: it prints the header a genuine Notion
// delivery of the same body would carry.
func newSignCmd(f *rootFlags) *cobra.Command {
	var (
		secret   string
		bodyFile string
	)
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Print the X-Notion-Signature value for a webhook body",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(secret) == "" {
				if err := config.LoadDotEnv(f.envFiles...); err != nil {
					return err
				}
				cfg, err := config.NewConfigManager(f.configPath).Parse()
				if err != nil {
					return err
				}
				secret = cfg.Server.WebhookSecret
			}
			if strings.TrimSpace(secret) == "" {
				return errors.New("no secret: pass --secret or set server.webhook_secret")
			}

			var (
				body []byte
				err  error
			)
			if bodyFile == "" || bodyFile == "-" {
				body, err = io.ReadAll(cmd.InOrStdin())
			} else {
				body, err = os.ReadFile(bodyFile)
			}
			if err != nil {
				return fmt.Errorf("read body: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", webhook.SignatureHeader, webhook.Sign(secret, body))
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", "", "verification token (default: server.webhook_secret)")
	cmd.Flags().StringVarP(&bodyFile, "body", "b", "-", "file holding the exact request body; - reads stdin")
	return cmd
}
