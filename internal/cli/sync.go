package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Drain the offline queue once",
		Long: `Replay every pending action against the backend in queue order and
exit. A retriable failure halts the pass and exits non-zero; rejected
actions are reported and removed.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(rootOpts, cmd)
		},
	}
}

// syncView is the JSON shape of a drain report.
type syncView struct {
	Processed []actionView `json:"processed"`
	Failed    []actionView `json:"failed"`
	Halted    bool         `json:"halted"`
	HaltError string       `json:"halt_error,omitempty"`
	Remaining int          `json:"remaining"`
}

func runSync(opts *RootOptions, cmd *cobra.Command) error {
	c, err := openComponents(opts, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	res, err := c.queue.Drain(cmd.Context(), c.execFunc())
	if err != nil {
		return WrapExitError(ExitCommandError, "drain queue", err)
	}

	view := syncView{
		Processed: toActionViews(res.Processed),
		Failed:    toActionViews(res.Failed),
		Halted:    res.Halted,
		Remaining: res.Remaining,
	}
	if res.HaltError != nil {
		view.HaltError = res.HaltError.Error()
	}

	text := fmt.Sprintf("Replayed %d action(s), %d rejected, %d remaining.\n",
		len(res.Processed), len(res.Failed), res.Remaining)

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	if err := f.Success(view, text); err != nil {
		return err
	}

	if res.Halted {
		msg := "sync halted"
		if res.HaltError != nil {
			msg = "sync halted: " + res.HaltError.Error()
		}
		return NewExitError(ExitFailure, msg)
	}
	return nil
}
