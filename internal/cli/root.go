// Package cli implements quizctl, the operator command line for the quizrun
// API. Every command except token talks to a running server over HTTP.
package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of the environment variables quizctl reads.
const EnvPrefix = "QUIZCTL"

// RootOptions holds the global flags shared by all commands.
type RootOptions struct {
	Server  string
	Token   string
	Format  string
	Timeout time.Duration

	v *viper.Viper
}

// NewRootCommand creates the quizctl root command with all subcommands.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{v: viper.New()}

	cmd := &cobra.Command{
		Use:   "quizctl",
		Short: "Operate a quizrun API server",
		Long: `quizctl submits and inspects background tasks and runs the operator
controls of a quizrun API server.

Settings come from flags or QUIZCTL_* environment variables
(QUIZCTL_SERVER, QUIZCTL_TOKEN, QUIZCTL_FORMAT, QUIZCTL_TIMEOUT).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.resolve()
		},
	}

	flags := cmd.PersistentFlags()
	flags.String("server", "http://localhost:8080", "Base URL of the quizrun API")
	flags.String("token", "", "Bearer token for the API")
	flags.String("format", FormatText, "Output format (text|json)")
	flags.Duration("timeout", 30*time.Second, "HTTP request timeout")
	for _, name := range []string{"server", "token", "format", "timeout"} {
		_ = opts.v.BindPFlag(name, flags.Lookup(name))
	}
	opts.v.SetEnvPrefix(EnvPrefix)
	opts.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	opts.v.AutomaticEnv()

	cmd.AddCommand(
		NewSubmitCommand(opts),
		NewStatusCommand(opts),
		NewListCommand(opts),
		NewCancelCommand(opts),
		NewDeleteCommand(opts),
		NewCleanupCommand(opts),
		NewReapCommand(opts),
		NewHealthCommand(opts),
		NewTokenCommand(opts),
	)

	return cmd
}

func (o *RootOptions) resolve() error {
	o.Server = o.v.GetString("server")
	o.Token = o.v.GetString("token")
	o.Format = o.v.GetString("format")
	o.Timeout = o.v.GetDuration("timeout")

	if !ValidFormat(o.Format) {
		return WrapExitError(ExitCommandError, "invalid format",
			fmt.Errorf("%q: must be text or json", o.Format))
	}
	if o.Timeout <= 0 {
		return WrapExitError(ExitCommandError, "invalid timeout",
			fmt.Errorf("%s: must be positive", o.Timeout))
	}
	return nil
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{Format: o.Format, Writer: cmd.OutOrStdout()}
}

// runRequest performs one API call and writes its result.
func runRequest[T any](
	cmd *cobra.Command,
	opts *RootOptions,
	request func(ctx context.Context, c *Client, out *T) error,
	render func(w io.Writer, out *T) error,
) error {
	client, err := NewClient(opts.Server, opts.Token, opts.Timeout)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	var out T
	f := opts.formatter(cmd)
	if err := request(cmd.Context(), client, &out); err != nil {
		if apiErr, ok := asAPIError(err); ok {
			return f.Failure(apiErr, nil)
		}
		return WrapExitError(ExitCommandError, "request failed", err)
	}
	return f.Success(&out, func(w io.Writer) error { return render(w, &out) })
}
