package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/foyerhq/foyer/internal/queue"
	"github.com/foyerhq/foyer/internal/request"
)

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "status",
		Short:         "Show backend reachability and queue depth",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(rootOpts, cmd)
		},
	}
}

// statusView is the JSON shape of the status report.
type statusView struct {
	Backend     string `json:"backend"`
	Reachable   bool   `json:"reachable"`
	Error       string `json:"error,omitempty"`
	Pending     int    `json:"pending"`
	DeadLetters int    `json:"dead_letters"`
}

func runStatus(opts *RootOptions, cmd *cobra.Command) error {
	c, err := openComponents(opts, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx := cmd.Context()
	pending, err := c.queue.Len(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "count pending actions", err)
	}
	dead, err := c.queue.DeadLetters(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "list dead letters", err)
	}

	out := c.exec.Execute(ctx, request.Request{Method: "GET", Path: queue.PathStats})

	view := statusView{
		Backend:     c.cfg.Backend.BaseURL,
		Reachable:   out.OK,
		Pending:     pending,
		DeadLetters: len(dead),
	}
	if out.Err != nil {
		view.Error = out.Err.Error()
	}

	var text strings.Builder
	if out.OK {
		fmt.Fprintf(&text, "Backend:      %s (reachable)\n", view.Backend)
	} else {
		fmt.Fprintf(&text, "Backend:      %s (unreachable: %s)\n", view.Backend, view.Error)
	}
	fmt.Fprintf(&text, "Pending:      %d\n", view.Pending)
	fmt.Fprintf(&text, "Dead letters: %d\n", view.DeadLetters)

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return f.Success(view, text.String())
}
