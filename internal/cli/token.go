package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"kanban/api/internal/session"
)

type TokenOptions struct {
	*RootOptions
	UserID      string
	DisplayName string
	Email       string
	TTL         time.Duration
}

// NewTokenCommand mints bearer tokens for the Redis session store. It is an
// operator tool; end-user sign-in lives outside this service.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TokenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage API session tokens",
	}

	issue := &cobra.Command{
		Use:     "issue",
		Short:   "Issue a bearer token for a user",
		Example: `  kanban-api token issue --user-id u_42 --name "Ada" --ttl 24h`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(opts.Config.RedisURL) == "" {
				return errors.New("REDIS_URL is not set")
			}
			if strings.TrimSpace(opts.UserID) == "" {
				return errors.New("--user-id is required")
			}
			sessions, err := session.NewRedisStore(opts.Config.RedisURL)
			if err != nil {
				return fmt.Errorf("redis connection failed: %w", err)
			}
			defer sessions.Close()

			token, err := sessions.Issue(cmd.Context(), session.Actor{
				UserID:      strings.TrimSpace(opts.UserID),
				DisplayName: strings.TrimSpace(opts.DisplayName),
				Email:       strings.TrimSpace(opts.Email),
			}, opts.TTL)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	issue.Flags().StringVar(&opts.UserID, "user-id", "", "user the token acts as")
	issue.Flags().StringVar(&opts.DisplayName, "name", "", "display name stored with the session")
	issue.Flags().StringVar(&opts.Email, "email", "", "email stored with the session")
	issue.Flags().DurationVar(&opts.TTL, "ttl", 30*24*time.Hour, "token lifetime")

	cmd.AddCommand(issue)
	return cmd
}
