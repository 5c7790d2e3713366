package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/foyerhq/foyer/internal/queue"
)

// NewQueueCommand creates the queue command.
func NewQueueCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "queue",
		Short: "List pending and dead-lettered actions",
		Long: `List every action waiting for replay, in the order it will reach the
backend, plus the dead-letter set of actions that exhausted their
attempt budget.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueue(rootOpts, cmd)
		},
	}
}

// queueView is the JSON shape of the queue listing.
type queueView struct {
	Pending     []actionView `json:"pending"`
	DeadLetters []actionView `json:"dead_letters"`
}

type actionView struct {
	Seq       int64  `json:"seq"`
	Kind      string `json:"kind"`
	LocalRef  string `json:"local_ref"`
	Attempts  int    `json:"attempts"`
	CreatedAt string `json:"created_at"`
	LastError string `json:"last_error,omitempty"`
}

func runQueue(opts *RootOptions, cmd *cobra.Command) error {
	c, err := openComponents(opts, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx := cmd.Context()
	pending, err := c.queue.List(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "list pending actions", err)
	}
	dead, err := c.queue.DeadLetters(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "list dead letters", err)
	}

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	view := queueView{
		Pending:     toActionViews(pending),
		DeadLetters: toActionViews(dead),
	}

	var text strings.Builder
	renderQueueText(&text, pending, dead)
	return f.Success(view, text.String())
}

func toActionViews(actions []queue.Action) []actionView {
	out := make([]actionView, 0, len(actions))
	for _, a := range actions {
		out = append(out, actionView{
			Seq:       a.Seq,
			Kind:      a.Kind,
			LocalRef:  a.LocalRef,
			Attempts:  a.Attempts,
			CreatedAt: a.CreatedAt.UTC().Format(time.RFC3339),
			LastError: a.LastError,
		})
	}
	return out
}

func renderQueueText(w io.Writer, pending, dead []queue.Action) {
	fmt.Fprintf(w, "Pending actions: %d\n", len(pending))
	for _, a := range pending {
		renderAction(w, a)
	}
	fmt.Fprintf(w, "Dead letters: %d\n", len(dead))
	for _, a := range dead {
		renderAction(w, a)
	}
}

func renderAction(w io.Writer, a queue.Action) {
	fmt.Fprintf(w, "  %4d  %-18s  attempts=%d  created=%s  ref=%s\n",
		a.Seq, a.Kind, a.Attempts, a.CreatedAt.UTC().Format(time.RFC3339), a.LocalRef)
	if a.LastError != "" {
		fmt.Fprintf(w, "        last error: %s\n", a.LastError)
	}
}
