package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	httpmiddleware "github.com/wolfman30/botdesk/internal/http/middleware"
)

func newTokenCmd(a *app) *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an admin API token",
		Long: `Sign a bearer token for the /admin routes with ADMIN_JWT_SECRET.

Example:
  curl -H "Authorization: Bearer $(botctl token --ttl 15m)" localhost:8080/admin/bots/acme`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg == nil || a.cfg.AdminJWTSecret == "" {
				return errors.New("ADMIN_JWT_SECRET is required")
			}
			token, err := httpmiddleware.IssueAdminToken(a.cfg.AdminJWTSecret, subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "botctl", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}
