package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	applog "finanzapp/internal/log"
	"finanzapp/internal/services"
)

var (
	flagCatchUpUser string
	flagCatchUpAll  bool
)

var catchupCmd = &cobra.Command{
	Use:   "catchup",
	Short: "Materialize due recurring charges",
	Long: "Records every recurring charge that fell due up to now and was not yet in the ledger. " +
		"Safe to repeat; reads through the API catch up on their own.",
	RunE: runCatchUp,
}

func init() {
	catchupCmd.Flags().StringVarP(&flagCatchUpUser, "user", "u", "", "username to catch up")
	catchupCmd.Flags().BoolVar(&flagCatchUpAll, "all", false, "catch up every user")
	catchupCmd.MarkFlagsMutuallyExclusive("user", "all")
	catchupCmd.MarkFlagsOneRequired("user", "all")
	rootCmd.AddCommand(catchupCmd)
}

func runCatchUp(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := bootstrap(ctx, applog.ComponentCatchUp)
	if err != nil {
		return err
	}
	defer a.Close()

	ev, err := a.connectEvents(ctx)
	if err != nil {
		return err
	}
	defer ev.Close()

	sweep := &catchUpSweep{
		app:       a,
		generator: services.NewChargeGenerator(a.repo, ev.genOpts...),
		out:       cmd.OutOrStdout(),
		username:  flagCatchUpUser,
	}
	return sweep.run(ctx)
}

type catchUpSweep struct {
	app       *app
	generator *services.ChargeGenerator
	out       io.Writer
	// username limits the sweep to one user; empty means all users
	username string
}

// run catches up the selected users. A failing user does not stop the
// others; their errors are joined.
func (s *catchUpSweep) run(ctx context.Context) error {
	usernames := []string{s.username}
	if s.username == "" {
		users, err := s.app.repo.ListUsers(ctx)
		if err != nil {
			return err
		}
		usernames = usernames[:0]
		for _, u := range users {
			usernames = append(usernames, u.Username)
		}
	}

	var errs []error
	total := 0
	for _, name := range usernames {
		user, err := s.app.lookupUser(ctx, name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		n, err := s.generator.EnsureChargesUpToNow(ctx, user.ID)
		if err != nil {
			s.app.logger.ErrorContext(ctx, "Catch-up failed",
				applog.FieldUserID, user.ID,
				applog.FieldError, err)
			errs = append(errs, fmt.Errorf("catch up %s: %w", user.Username, err))
			continue
		}
		total += n
		fmt.Fprintf(s.out, "  %s recorded %s\n",
			headerStyle.Render(user.Username),
			valueStyle.Render(fmt.Sprintf("%d charge(s)", n)))
	}
	s.app.logger.Info("Catch-up sweep finished",
		applog.FieldOperation, applog.OpCatchUp,
		"users", len(usernames),
		"charges", total)
	return errors.Join(errs...)
}
