package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/alexjbarnes/bizdesk/internal/api"
	"github.com/alexjbarnes/bizdesk/internal/app"
	bizerrors "github.com/alexjbarnes/bizdesk/internal/errors"
	"github.com/alexjbarnes/bizdesk/internal/models"
	"github.com/spf13/cobra"
)

// sessionError turns the session's last error into a command error.
func sessionError(a *app.App, fallback string) error {
	if msg := a.Session.LastError(); msg != "" {
		return errors.New(msg)
	}

	return errors.New(fallback)
}

// requireAuth rehydrates the stored session for commands that need a user.
func requireAuth(ctx context.Context, a *app.App) error {
	if a.Auth.CheckAuth(ctx) {
		return nil
	}

	return fmt.Errorf("%w: run `bizdesk login <email>` first", bizerrors.ErrNotAuthenticated)
}

func newLoginCommand(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "login <email>",
		Short: "Email a one-time sign-in link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, open, func(ctx context.Context, a *app.App) error {
				if !a.Auth.RequestMagicLink(ctx, args[0]) {
					return sessionError(a, "Failed to send magic link")
				}

				fmt.Fprintln(cmd.OutOrStdout(), "Magic link sent. Run `bizdesk exchange <token>` with the token from the email.")

				return nil
			})
		},
	}
}

func newExchangeCommand(open opener) *cobra.Command {
	var redirect string

	cmd := &cobra.Command{
		Use:   "exchange <token>",
		Short: "Exchange a magic link token for a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, open, func(ctx context.Context, a *app.App) error {
				if redirect != "" {
					// Arrive at login the way a guarded navigation would.
					if _, err := a.Router.Push(ctx, a.Router.Table().Login+"?redirect="+url.QueryEscape(redirect)); err != nil {
						return err
					}
				}

				loc, ok := a.CompleteLogin(ctx, args[0])
				if !ok {
					return sessionError(a, "Invalid or expired token")
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Signed in as %s\n", a.Session.UserEmail())
				fmt.Fprintf(out, "location: %s\n", loc.FullPath())

				return nil
			})
		},
	}

	cmd.Flags().StringVar(&redirect, "redirect", "", "Path to open after signing in")

	return cmd
}

func newWhoamiCommand(open opener) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateFormat(output); err != nil {
				return err
			}

			return withApp(cmd, open, func(ctx context.Context, a *app.App) error {
				if err := requireAuth(ctx, a); err != nil {
					return err
				}

				return writeValue(cmd.OutOrStdout(), output, a.Session.User())
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", formatJSON, "Output format (json or yaml)")

	return cmd
}

func newProfileCommand(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Profile operations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newProfileUpdateCommand(open))

	return cmd
}

func newProfileUpdateCommand(open opener) *cobra.Command {
	var fullName, phone, businessType string

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update profile fields",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var update models.ProfileUpdate

			flags := cmd.Flags()
			if flags.Changed("full-name") {
				update.FullName = &fullName
			}

			if flags.Changed("phone") {
				update.Phone = &phone
			}

			if flags.Changed("business-type") {
				update.BusinessType = &businessType
			}

			if update.Empty() {
				return errors.New("nothing to update: pass --full-name, --phone or --business-type")
			}

			return withApp(cmd, open, func(ctx context.Context, a *app.App) error {
				if err := requireAuth(ctx, a); err != nil {
					return err
				}

				if !a.Auth.UpdateProfile(ctx, update) {
					return sessionError(a, "Failed to update profile")
				}

				return writeValue(cmd.OutOrStdout(), formatJSON, a.Session.User())
			})
		},
	}

	cmd.Flags().StringVar(&fullName, "full-name", "", "Full name")
	cmd.Flags().StringVar(&phone, "phone", "", "Phone number")
	cmd.Flags().StringVar(&businessType, "business-type", "", "Business type")

	return cmd
}

func newLogoutCommand(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session and forget stored tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, open, func(ctx context.Context, a *app.App) error {
				a.Auth.Logout(ctx)
				fmt.Fprintln(cmd.OutOrStdout(), "Signed out")

				return nil
			})
		},
	}
}

func newOpenCommand(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "open <path>",
		Short: "Navigate to a screen and print where navigation ended up",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, open, func(ctx context.Context, a *app.App) error {
				loc, err := a.Router.Push(ctx, args[0])
				if err != nil {
					return err
				}

				fmt.Fprintln(cmd.OutOrStdout(), loc.FullPath())

				return nil
			})
		},
	}
}

func newSearchCommand(open opener) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search across all business data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, open, func(ctx context.Context, a *app.App) error {
				raw, err := a.Client.Search(ctx, args[0], limit)
				if err != nil {
					return err
				}

				return writeRaw(cmd.OutOrStdout(), raw)
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", api.DefaultSearchLimit, "Maximum number of results")

	return cmd
}

func newRecentCommand(open opener) *cobra.Command {
	var days, limit int

	cmd := &cobra.Command{
		Use:   "recent",
		Short: "Show recent activity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, open, func(ctx context.Context, a *app.App) error {
				raw, err := a.Client.RecentActivity(ctx, days, limit)
				if err != nil {
					return err
				}

				return writeRaw(cmd.OutOrStdout(), raw)
			})
		},
	}

	cmd.Flags().IntVar(&days, "days", 7, "How many days back to look")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of entries")

	return cmd
}

func newGetCommand(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "get <path>",
		Short: "Authenticated GET against the API, e.g. /tasks/tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, query, err := splitPath(args[0])
			if err != nil {
				return err
			}

			return withApp(cmd, open, func(ctx context.Context, a *app.App) error {
				raw, err := a.Client.Get(ctx, path, query)
				if err != nil {
					return err
				}

				return writeRaw(cmd.OutOrStdout(), raw)
			})
		},
	}
}

func splitPath(raw string) (string, url.Values, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", nil, fmt.Errorf("parsing path: %w", err)
	}

	if u.IsAbs() || u.Host != "" {
		return "", nil, fmt.Errorf("expected an API path, got %q", raw)
	}

	return u.Path, u.Query(), nil
}
