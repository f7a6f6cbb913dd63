// Command botctl manages the bots of a running server through its JSON API.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"gowa-multibot/internal/helper"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newRootCmd() *cobra.Command {
	var baseURL string
	var client *BotClient

	root := &cobra.Command{
		Use:          "botctl",
		Short:        "Manage WhatsApp bots of a running server",
		SilenceUsage: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			client = NewBotClient(baseURL, os.Getenv("BOTCTL_USER"), os.Getenv("BOTCTL_PASS"))
		},
	}
	root.PersistentFlags().StringVar(&baseURL, "url", envOr("BOTCTL_URL", "http://localhost:3000"), "server base URL (BOTCTL_URL)")

	root.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List bots and their status",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				bots, err := client.ListBots(cmd.Context())
				if err != nil {
					return err
				}
				printBots(cmd.OutOrStdout(), bots)
				return nil
			},
		},
		&cobra.Command{
			Use:   "new",
			Short: "Create a bot and print its id",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				bot, err := client.CreateBot(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s created, run `botctl qr %s` to pair it\n", bot.BotID, bot.BotID)
				return nil
			},
		},
		newQRCmd(func() *BotClient { return client }),
		&cobra.Command{
			Use:   "hash-password <password>",
			Short: "Print a bcrypt hash for ADMIN_PASSWORD_HASH",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				hash, err := helper.HashPassword(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), hash)
				return nil
			},
		},
		&cobra.Command{
			Use:   "logout <bot-id>",
			Short: "Unlink a bot's device and request a new QR code",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := client.Logout(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s logged out\n", args[0])
				return nil
			},
		},
		&cobra.Command{
			Use:   "delete <bot-id>",
			Short: "Unlink and remove a bot",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := client.DeleteBot(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s deleted\n", args[0])
				return nil
			},
		},
		&cobra.Command{
			Use:   "send <bot-id> <to> <text...>",
			Short: "Send a text message from a bot",
			Args:  cobra.MinimumNArgs(3),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := client.SendMessage(cmd.Context(), args[0], args[1], strings.Join(args[2:], " "))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "sent %s\n", id)
				return nil
			},
		},
	)
	return root
}

func newQRCmd(client func() *BotClient) *cobra.Command {
	var wait time.Duration

	cmd := &cobra.Command{
		Use:   "qr <bot-id>",
		Short: "Print the pairing QR code in the terminal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			deadline := time.Now().Add(wait)
			for {
				code, err := client().QRCode(ctx, args[0])
				if err == nil {
					helper.PrintQR(cmd.OutOrStdout(), code)
					fmt.Fprintln(cmd.OutOrStdout(), "Scan from WhatsApp > Linked devices")
					return nil
				}
				// the QR shows up a moment after the bot starts
				var apiErr *APIError
				if !errors.As(err, &apiErr) || apiErr.Code != "QR_NOT_AVAILABLE" || time.Now().After(deadline) {
					return err
				}
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(time.Second):
				}
			}
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", 10*time.Second, "how long to wait for a QR code to appear")
	return cmd
}

func printBots(w io.Writer, bots []BotInfo) {
	if len(bots) == 0 {
		fmt.Fprintln(w, "no bots")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "BOT ID\tSTATUS\tPHONE\tCREATED")
	for _, b := range bots {
		phone := b.PhoneNumber
		if phone == "" {
			phone = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", b.BotID, b.StatusLabel, phone, b.CreatedAt.Local().Format(time.DateTime))
	}
	tw.Flush()
}
