package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/foyerhq/foyer/internal/cell"
	"github.com/foyerhq/foyer/internal/queue"
	"github.com/foyerhq/foyer/internal/syncer"
)

// CheckinOptions holds flags for the checkin command.
type CheckinOptions struct {
	*RootOptions
	Host  string
	Email string
}

// NewCheckinCommand creates the checkin command.
func NewCheckinCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CheckinOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "checkin <visitor-name>",
		Short: "Check a visitor in",
		Long: `Check a visitor in. The check-in is attempted against the backend
immediately; if the backend is unreachable it is queued for replay and
the command still succeeds.

Example:
  foyer checkin "Jane Doe" --host "Sam Lee"`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheckin(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Host, "host", "", "name of the host being visited")
	cmd.Flags().StringVar(&opts.Email, "email", "", "visitor email")

	return cmd
}

// checkinView is the JSON shape of a check-in result.
type checkinView struct {
	Name     string `json:"name"`
	Queued   bool   `json:"queued"`
	Response any    `json:"response,omitempty"`
}

func runCheckin(opts *CheckinOptions, name string, cmd *cobra.Command) error {
	c, err := openComponents(opts.RootOptions, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	payload := map[string]any{"name": name}
	if opts.Host != "" {
		payload["host"] = opts.Host
	}
	if opts.Email != "" {
		payload["email"] = opts.Email
	}

	// The coordinator's Submit gives the same immediate-or-queued decision
	// the long-running agent makes, without starting the drain loop.
	cells := cell.NewStore()
	coord := syncer.New(syncer.Config{}, cells, c.queue, c.exec, nil, nil)

	out, queued, err := coord.Submit(cmd.Context(), queue.KindVisitorCreate, payload)
	if err != nil {
		return WrapExitError(ExitCommandError, "check in", err)
	}

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	switch {
	case queued:
		text := fmt.Sprintf("Check-in for %s queued for replay.\n", name)
		return f.Success(checkinView{Name: name, Queued: true}, text)

	case out.OK:
		text := fmt.Sprintf("Checked in %s.\n", name)
		return f.Success(checkinView{Name: name, Response: string(out.Data)}, text)

	default:
		// Terminal rejection: the backend answered and said no.
		_ = f.Error(out.Err.Error())
		return NewExitError(ExitFailure, "check-in rejected: "+out.Err.Error())
	}
}
