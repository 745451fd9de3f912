package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/quizrun-api/internal/api"
	"github.com/phrazzld/quizrun-api/internal/task"
	"github.com/spf13/cobra"
)

// NewSubmitCommand creates the submit command.
func NewSubmitCommand(opts *RootOptions) *cobra.Command {
	var (
		taskType    string
		payload     string
		label       string
		description string
	)

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a background task",
		Long: `Submit a task and print its id. The payload is a JSON object, or
@path to read it from a file.

Example:
  quizctl submit --type question_generation --payload '{"topic":"volcanoes","count":5}'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := readPayload(payload)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid payload", err)
			}
			req := api.CreateTaskRequest{
				TaskType:    taskType,
				Payload:     body,
				Label:       label,
				Description: description,
			}
			return runSubmit(cmd, opts, req)
		},
	}

	cmd.Flags().StringVarP(&taskType, "type", "t", "", "Task type, e.g. question_generation")
	cmd.Flags().StringVarP(&payload, "payload", "p", "{}", "JSON payload or @file")
	cmd.Flags().StringVar(&label, "label", "", "Human-readable label")
	cmd.Flags().StringVar(&description, "description", "", "Longer description")
	_ = cmd.MarkFlagRequired("type")

	return cmd
}

func runSubmit(cmd *cobra.Command, opts *RootOptions, req api.CreateTaskRequest) error {
	client, err := NewClient(opts.Server, opts.Token, opts.Timeout)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	f := opts.formatter(cmd)

	var resp api.TaskResponse
	err = client.Post(cmd.Context(), "/api/tasks", req, &resp)
	if err == nil {
		return f.Success(&resp, func(w io.Writer) error {
			_, err := fmt.Fprintf(w, "submitted %s (%s)\n", resp.TaskID, resp.Status)
			return err
		})
	}

	apiErr, ok := asAPIError(err)
	if !ok {
		return WrapExitError(ExitCommandError, "request failed", err)
	}

	// The task is stored even when dispatch fails; surface its id.
	var stored api.TaskResponse
	if len(apiErr.Body) > 0 && json.Unmarshal(apiErr.Body, &stored) == nil && stored.TaskID != uuid.Nil {
		if f.Format == FormatText {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "task %s stored as %s but not dispatched\n", stored.TaskID, stored.Status)
		}
		return f.Failure(apiErr, &stored)
	}
	return f.Failure(apiErr, nil)
}

func readPayload(raw string) (json.RawMessage, error) {
	data := []byte(raw)
	if strings.HasPrefix(raw, "@") {
		var err error
		data, err = os.ReadFile(strings.TrimPrefix(raw, "@"))
		if err != nil {
			return nil, err
		}
	}
	if !json.Valid(data) {
		return nil, errors.New("payload is not valid JSON")
	}
	return json.RawMessage(data), nil
}

// NewStatusCommand creates the status command.
func NewStatusCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <task-id>",
		Short: "Show the status, progress and result of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid task id", err)
			}
			return runRequest(cmd, opts,
				func(ctx context.Context, c *Client, out *api.TaskResponse) error {
					return c.Get(ctx, "/api/tasks/"+id.String(), nil, out)
				},
				renderTask,
			)
		},
	}
}

func renderTask(w io.Writer, t *api.TaskResponse) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "id:\t%s\n", t.TaskID)
	_, _ = fmt.Fprintf(tw, "type:\t%s\n", t.TaskType)
	_, _ = fmt.Fprintf(tw, "status:\t%s\n", t.Status)
	if t.Label != "" {
		_, _ = fmt.Fprintf(tw, "label:\t%s\n", t.Label)
	}
	_, _ = fmt.Fprintf(tw, "progress:\t%s\n", formatProgress(t))
	_, _ = fmt.Fprintf(tw, "created:\t%s\n", t.CreatedAt.Format(time.RFC3339))
	if t.FinishedAt != nil {
		_, _ = fmt.Fprintf(tw, "finished:\t%s\n", t.FinishedAt.Format(time.RFC3339))
	}
	if t.Error != "" {
		_, _ = fmt.Fprintf(tw, "error:\t%s\n", t.Error)
	}
	if len(t.Result) > 0 {
		_, _ = fmt.Fprintf(tw, "result:\t%s\n", t.Result)
	}
	return tw.Flush()
}

func formatProgress(t *api.TaskResponse) string {
	p := t.Progress
	s := p.Phase
	if p.Total > 0 {
		s = fmt.Sprintf("%s %d/%d", s, p.Completed, p.Total)
	}
	if p.Details != "" {
		s = fmt.Sprintf("%s (%s)", s, p.Details)
	}
	return strings.TrimSpace(s)
}

// NewListCommand creates the list command.
func NewListCommand(opts *RootOptions) *cobra.Command {
	var (
		taskType string
		statuses []string
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			query := url.Values{}
			if taskType != "" {
				query.Set("type", taskType)
			}
			if len(statuses) > 0 {
				query.Set("status", strings.Join(statuses, ","))
			}
			if limit > 0 {
				query.Set("limit", strconv.Itoa(limit))
			}
			return runRequest(cmd, opts,
				func(ctx context.Context, c *Client, out *api.TaskListResponse) error {
					return c.Get(ctx, "/api/tasks", query, out)
				},
				func(w io.Writer, out *api.TaskListResponse) error {
					if len(out.Tasks) == 0 {
						_, err := fmt.Fprintln(w, "no tasks")
						return err
					}
					tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
					_, _ = fmt.Fprintln(tw, "ID\tTYPE\tSTATUS\tPROGRESS\tCREATED")
					for i := range out.Tasks {
						t := &out.Tasks[i]
						_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
							t.TaskID, t.TaskType, t.Status, formatProgress(t), t.CreatedAt.Format(time.RFC3339))
					}
					return tw.Flush()
				},
			)
		},
	}

	cmd.Flags().StringVarP(&taskType, "type", "t", "", "Only tasks of this type")
	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Only tasks in these statuses")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of tasks (server default when 0)")

	return cmd
}

// NewCancelCommand creates the cancel command.
func NewCancelCommand(opts *RootOptions) *cobra.Command {
	return newBulkCommand(opts, "cancel", "Cancel tasks that have not finished", "/api/admin/tasks/cancel")
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(opts *RootOptions) *cobra.Command {
	return newBulkCommand(opts, "delete", "Delete tasks regardless of status", "/api/admin/tasks/delete")
}

func newBulkCommand(opts *RootOptions, name, short, path string) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <task-id>...",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid task id", err)
			}
			return runRequest(cmd, opts,
				func(ctx context.Context, c *Client, out *task.OperationResult) error {
					return c.Post(ctx, path, api.TaskIDsRequest{IDs: ids}, out)
				},
				renderOperation,
			)
		},
	}
}

func parseIDs(args []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(args))
	for _, arg := range args {
		id, err := uuid.Parse(arg)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", arg, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func renderOperation(w io.Writer, r *task.OperationResult) error {
	_, err := fmt.Fprintf(w, "requested %d, affected %d, skipped %d, not found %d\n",
		r.Requested, r.Affected, r.Skipped, r.NotFound)
	return err
}

// NewCleanupCommand creates the cleanup command.
func NewCleanupCommand(opts *RootOptions) *cobra.Command {
	var hours int

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete tasks created more than N hours ago",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if hours <= 0 {
				return WrapExitError(ExitCommandError, "invalid --older-than-hours",
					fmt.Errorf("%d: must be positive", hours))
			}
			return runRequest(cmd, opts,
				func(ctx context.Context, c *Client, out *task.OperationResult) error {
					return c.Post(ctx, "/api/admin/tasks/cleanup", api.CleanupRequest{OlderThanHours: hours}, out)
				},
				renderOperation,
			)
		},
	}

	cmd.Flags().IntVar(&hours, "older-than-hours", 0, "Age threshold in hours")
	_ = cmd.MarkFlagRequired("older-than-hours")

	return cmd
}

// NewReapCommand creates the reap command.
func NewReapCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reap",
		Short: "Fail tasks that have been stuck too long",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRequest(cmd, opts,
				func(ctx context.Context, c *Client, out *api.ReapResponse) error {
					return c.Post(ctx, "/api/admin/tasks/reap", struct{}{}, out)
				},
				func(w io.Writer, out *api.ReapResponse) error {
					_, err := fmt.Fprintf(w, "reaped %d (pending %d, queued %d, processing %d)\n",
						out.Total, out.Pending, out.Queued, out.Processing)
					return err
				},
			)
		},
	}
}
