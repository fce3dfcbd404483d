package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"campusattend/config"
	"campusattend/internal/adapters/auth"
	"campusattend/internal/domain"
)

// NewDevTokenCommand issues a bearer token signed with the configured secret,
// for exercising the API locally.
func NewDevTokenCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		userID string
		email  string
		role   string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:          "dev-token",
		Short:        "Issue a signed API bearer token",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch domain.Role(role) {
			case domain.RoleStudent, domain.RoleAdmin:
			default:
				return NewExitError(ExitCommandError, fmt.Sprintf("unknown role %q", role))
			}
			cfg, err := config.Load()
			if err != nil {
				return WrapExitError(ExitCommandError, "load config", err)
			}
			issuer, _ := auth.NewJWTAuthority(cfg.JWTSecret)
			tok, err := issuer.Issue(userID, email, []string{role}, ttl)
			if err != nil {
				return WrapExitError(ExitFailure, "issue token", err)
			}
			out := struct {
				Token     string    `json:"token"`
				ExpiresAt time.Time `json:"expires_at"`
			}{tok, time.Now().Add(ttl).UTC()}
			return writeResult(cmd.OutOrStdout(), rootOpts.Format, out, func(w io.Writer) {
				fmt.Fprintln(w, tok)
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "subject user ID")
	cmd.Flags().StringVar(&email, "email", "", "email claim")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleStudent), "role claim (student|admin)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
