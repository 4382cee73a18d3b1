package cli

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"finanzapp/internal/core"
	applog "finanzapp/internal/log"
	"finanzapp/internal/services"
)

var (
	flagStatusUser  string
	flagStatusMonth string
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show how a user's resolutions stand for a month",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringVarP(&flagStatusUser, "user", "u", "", "username")
	statusCmd.Flags().StringVarP(&flagStatusMonth, "month", "m", "", "month key YYYY-MM (default current month)")
	_ = statusCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := bootstrap(ctx, applog.ComponentCLI)
	if err != nil {
		return err
	}
	defer a.Close()

	user, err := a.lookupUser(ctx, flagStatusUser)
	if err != nil {
		return err
	}
	month := flagStatusMonth
	if month == "" {
		month = core.MonthKey(a.now())
	}

	svc := services.NewResolutionService(a.repo, services.NewChargeGenerator(a.repo), a.loc)
	resolutions, err := svc.List(ctx, user.ID, month)
	if err != nil {
		return err
	}
	statuses, err := svc.Statuses(ctx, user.ID, month)
	if err != nil {
		return err
	}
	writeStatus(cmd.OutOrStdout(), user.Username, month, resolutions, statuses)
	return nil
}

func writeStatus(w io.Writer, username, month string, resolutions []core.Resolution, statuses []core.ResolutionStatus) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, renderTitle(fmt.Sprintf("RESOLUTIONS %s · %s", month, username)))
	fmt.Fprintln(w)
	if len(statuses) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("  No resolutions for this month."))
		fmt.Fprintln(w)
		return
	}
	fmt.Fprint(w, renderTable(statusTable(resolutions, statuses)))

	met := 0
	for _, st := range statuses {
		if st.IsMet {
			met++
		}
	}
	fmt.Fprintf(w, "\n  %s %s\n\n", mutedStyle.Render("met"),
		valueStyle.Render(fmt.Sprintf("%d/%d", met, len(statuses))))
}

// statusTable lays out one row per status in the order given.
func statusTable(resolutions []core.Resolution, statuses []core.ResolutionStatus) Table {
	types := make(map[string]core.ResolutionType, len(resolutions))
	for _, r := range resolutions {
		types[r.ID] = r.Type
	}
	t := Table{Headers: []string{"Resolution", "Current", "Target", "Met", "Detail"}}
	for _, st := range statuses {
		state := missedStyle.Render("no")
		if st.IsMet {
			state = metStyle.Render("yes")
		}
		t.Rows = append(t.Rows, []string{
			resolutionLabel(types[st.ResolutionID]),
			formatNumber(st.Current),
			formatNumber(st.Target),
			state,
			st.Description,
		})
	}
	return t
}

func resolutionLabel(t core.ResolutionType) string {
	if t == "" {
		return "unknown"
	}
	return strings.ToLower(strings.ReplaceAll(string(t), "_", " "))
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
}
