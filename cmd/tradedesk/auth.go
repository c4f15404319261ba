package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/newthinker/tradedesk/internal/core"
	"github.com/newthinker/tradedesk/internal/session"
	"github.com/spf13/cobra"
)

var (
	authUsername string
	authEmail    string
	authPassword string
)

var signupCmd = &cobra.Command{
	Use:   "signup",
	Short: "Create an account",
	Long:  "Register a new account. Signing up does not log in; run login afterwards.",
	Args:  cobra.NoArgs,
	RunE:  runSignup,
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and keep the session",
	Long: `Log in with username and password. The token is stored so later commands
run as the same user. The password is read from stdin when --password is not set.`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored session",
	Args:  cobra.NoArgs,
	RunE:  runLogout,
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the logged-in user",
	Args:  cobra.NoArgs,
	RunE:  runWhoami,
}

func init() {
	for _, c := range []*cobra.Command{signupCmd, loginCmd} {
		c.Flags().StringVarP(&authUsername, "username", "u", "", "account username (required)")
		c.Flags().StringVarP(&authPassword, "password", "p", "", "account password (read from stdin if empty)")
		c.MarkFlagRequired("username")
	}
	signupCmd.Flags().StringVarP(&authEmail, "email", "e", "", "account email (required)")
	signupCmd.MarkFlagRequired("email")

	rootCmd.AddCommand(signupCmd, loginCmd, logoutCmd, whoamiCmd)
}

func runSignup(cmd *cobra.Command, args []string) error {
	password, err := passwordFrom(cmd)
	if err != nil {
		return err
	}

	a, cleanup, err := startApp(cmd, nil)
	if err != nil {
		return err
	}
	defer cleanup()

	// A restored session blocks signup; sign up as a fresh client.
	if a.Sessions().State() == session.StateLoggedIn {
		return fmt.Errorf("already logged in as %s, run logout first", a.Sessions().Session().Username)
	}

	creds := core.Credentials{Username: authUsername, Email: authEmail, Password: password}
	if err := a.Sessions().Signup(cmd.Context(), creds); err != nil {
		return fmt.Errorf("signup failed: %s", core.UserMessage(err))
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Signup successful! Please login.")
	return nil
}

func runLogin(cmd *cobra.Command, args []string) error {
	password, err := passwordFrom(cmd)
	if err != nil {
		return err
	}

	a, cleanup, err := startApp(cmd, nil)
	if err != nil {
		return err
	}
	defer cleanup()

	// A stored session is only replaced after an explicit logout.
	if a.Sessions().State() == session.StateLoggedIn {
		return fmt.Errorf("already logged in as %s, run logout first", a.Sessions().Session().Username)
	}

	creds := core.Credentials{Username: authUsername, Password: password}
	if err := a.Sessions().Login(cmd.Context(), creds); err != nil {
		return fmt.Errorf("login failed: %s", core.UserMessage(err))
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Welcome, %s!\n", a.Sessions().Session().Username)
	if err := a.Orchestrator().CatalogError(); err != nil {
		fmt.Fprintf(out, "Failed to fetch strategies: %s\n", core.UserMessage(err))
	} else {
		fmt.Fprintf(out, "%d strategies available\n", len(a.Orchestrator().Catalog()))
	}
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	a, cleanup, err := startApp(cmd, nil)
	if err != nil {
		return err
	}
	defer cleanup()

	a.Sessions().Logout(cmd.Context())
	fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
	return nil
}

func runWhoami(cmd *cobra.Command, args []string) error {
	a, cleanup, err := startApp(cmd, nil)
	if err != nil {
		return err
	}
	defer cleanup()

	s := a.Sessions().Session()
	if !s.LoggedIn {
		if err := a.RestoreError(); err != nil {
			return fmt.Errorf("%w: stored session unreadable, run logout to reset it: %s", core.ErrNotLoggedIn, core.UserMessage(err))
		}
		return core.ErrNotLoggedIn
	}
	fmt.Fprintln(cmd.OutOrStdout(), s.Username)
	return nil
}

// passwordFrom returns the --password flag, or the first line of stdin.
func passwordFrom(cmd *cobra.Command) (string, error) {
	if authPassword != "" {
		return authPassword, nil
	}
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
