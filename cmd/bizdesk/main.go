package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alexjbarnes/bizdesk/internal/app"
	"github.com/alexjbarnes/bizdesk/internal/config"
	"github.com/alexjbarnes/bizdesk/internal/logging"
	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand(openApp).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// opener builds the application for one command invocation.
type opener func() (*app.App, error)

func openApp() (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger := logging.NewLogger(cfg.Environment)
	logger.Debug("bizdesk starting",
		slog.String("version", Version),
		slog.String("api", cfg.APIBase()),
	)

	return app.New(cfg, logger)
}

func newRootCommand(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "bizdesk",
		Short:         "Command line client for the bizdesk business API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newLoginCommand(open))
	cmd.AddCommand(newExchangeCommand(open))
	cmd.AddCommand(newWhoamiCommand(open))
	cmd.AddCommand(newProfileCommand(open))
	cmd.AddCommand(newLogoutCommand(open))
	cmd.AddCommand(newOpenCommand(open))
	cmd.AddCommand(newSearchCommand(open))
	cmd.AddCommand(newRecentCommand(open))
	cmd.AddCommand(newGetCommand(open))
	cmd.AddCommand(newVersionCommand())

	return cmd
}

// withApp opens the application, runs fn and closes it again.
func withApp(cmd *cobra.Command, open opener, fn func(ctx context.Context, a *app.App) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := open()
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the client version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), Version)
			return nil
		},
	}
}
