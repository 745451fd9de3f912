package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/quizrun-api/internal/service/auth"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// SecretEnv is the server's signing secret variable, shared with quizctl.
const SecretEnv = "QUIZ_AUTH_JWT_SECRET"

// TokenResult is the output of the token command.
type TokenResult struct {
	Token     string    `json:"token"`
	UserID    uuid.UUID `json:"userId"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// NewTokenCommand creates the token command. It signs locally with the
// server's secret and never contacts the server.
func NewTokenCommand(opts *RootOptions) *cobra.Command {
	v := viper.New()
	var (
		userID   string
		role     string
		lifetime time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an access token with the server's signing secret",
		Long: `Mint an access token signed with the server's JWT secret. The secret
comes from --secret or ` + SecretEnv + `.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := v.GetString("secret")
			if secret == "" {
				return WrapExitError(ExitCommandError, "missing secret",
					fmt.Errorf("set --secret or %s", SecretEnv))
			}
			if role != auth.RoleAdmin && role != auth.RoleUser {
				return WrapExitError(ExitCommandError, "invalid role",
					fmt.Errorf("%q: must be %s or %s", role, auth.RoleAdmin, auth.RoleUser))
			}
			uid := uuid.New()
			if userID != "" {
				var err error
				if uid, err = uuid.Parse(userID); err != nil {
					return WrapExitError(ExitCommandError, "invalid user id", err)
				}
			}

			svc, err := auth.NewJWTService(secret, lifetime)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid signing configuration", err)
			}
			token, err := svc.GenerateToken(cmd.Context(), uid, role)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to sign token", err)
			}

			result := TokenResult{
				Token:     token,
				UserID:    uid,
				Role:      role,
				ExpiresAt: time.Now().UTC().Add(lifetime).Truncate(time.Second),
			}
			return opts.formatter(cmd).Success(&result, func(w io.Writer) error {
				_, err := fmt.Fprintln(w, result.Token)
				return err
			})
		},
	}

	cmd.Flags().String("secret", "", "JWT signing secret (default $"+SecretEnv+")")
	cmd.Flags().StringVar(&userID, "user-id", "", "User id to embed (random when empty)")
	cmd.Flags().StringVar(&role, "role", auth.RoleAdmin, "Role claim (admin|user)")
	cmd.Flags().DurationVar(&lifetime, "lifetime", time.Hour, "Token lifetime")
	_ = v.BindPFlag("secret", cmd.Flags().Lookup("secret"))
	_ = v.BindEnv("secret", SecretEnv)

	return cmd
}
