package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"finanzapp/internal/core"
	applog "finanzapp/internal/log"
	"finanzapp/internal/services"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users and their API keys",
}

var userCreateCmd = &cobra.Command{
	Use:   "create <username>",
	Short: "Create a user and print its API key",
	Args:  cobra.ExactArgs(1),
	RunE:  runUserCreate,
}

var userRotateKeyCmd = &cobra.Command{
	Use:   "rotate-key <username>",
	Short: "Replace a user's API key",
	Args:  cobra.ExactArgs(1),
	RunE:  runUserRotateKey,
}

func init() {
	userCmd.AddCommand(userCreateCmd, userRotateKeyCmd)
	rootCmd.AddCommand(userCmd)
}

func runUserCreate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := bootstrap(ctx, applog.ComponentAuth)
	if err != nil {
		return err
	}
	defer a.Close()

	u, err := services.NewUserService(a.repo).CreateUser(ctx, args[0])
	if err != nil {
		return err
	}
	printUserKey(cmd.OutOrStdout(), "User created", u)
	return nil
}

func runUserRotateKey(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := bootstrap(ctx, applog.ComponentAuth)
	if err != nil {
		return err
	}
	defer a.Close()

	u, err := services.NewUserService(a.repo).RotateAPIKey(ctx, args[0])
	if err != nil {
		return err
	}
	printUserKey(cmd.OutOrStdout(), "API key rotated", u)
	return nil
}

func printUserKey(w io.Writer, title string, u core.User) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, renderTitle(title))
	fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("username"), valueStyle.Render(u.Username))
	fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("id      "), valueStyle.Render(u.ID))
	fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("api key "), headerStyle.Render(u.APIKey))
	fmt.Fprintln(w)
	fmt.Fprintln(w, dimStyle.Render("  The key is shown once. Send it as X-API-Key."))
}
