package cli

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"sort"
	"text/tabwriter"

	"github.com/phrazzld/quizrun-api/internal/provider"
	"github.com/spf13/cobra"
)

// NewHealthCommand creates the health command.
func NewHealthCommand(opts *RootOptions) *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Show AI provider availability",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var query url.Values
			if refresh {
				query = url.Values{"refresh": []string{"true"}}
			}
			return runRequest(cmd, opts,
				func(ctx context.Context, c *Client, out *provider.Snapshot) error {
					return c.Get(ctx, "/api/providers/health", query, out)
				},
				renderStatus,
			)
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "Re-probe providers instead of using the cached status")

	return cmd
}

func renderStatus(w io.Writer, s *provider.Snapshot) error {
	names := make([]string, 0, len(s.Providers))
	for name := range s.Providers {
		names = append(names, name)
	}
	sort.Strings(names)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "PROVIDER\tCONFIGURED\tAVAILABLE\tMODEL\tERROR")
	for _, name := range names {
		p := s.Providers[name]
		_, _ = fmt.Fprintf(tw, "%s\t%t\t%t\t%s\t%s\n", name, p.Configured, p.Available, p.Model, p.Error)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	primary := s.PrimaryProvider
	if primary == "" {
		primary = "none"
	}
	_, err := fmt.Fprintf(w, "primary: %s\n%s\n", primary, s.Message)
	return err
}
