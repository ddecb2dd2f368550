package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/usememos/saaskit/internal/auth"
)

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed in user",
	RunE: func(cmd *cobra.Command, _ []string) error {
		p, err := loadProfile()
		if err != nil {
			return err
		}
		setLogger(p, os.Stderr, false)

		client, err := newAuthClient(p, "")
		if err != nil {
			return err
		}
		session, err := client.GetSession(cmd.Context())
		if err != nil {
			return err
		}
		user := auth.UserFromSession(session)
		if user == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "Not signed in. Run saaskit to sign in.")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s <%s>\nid: %s\n", user.DisplayName(), user.Email, user.ID)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and forget the stored session",
	RunE: func(cmd *cobra.Command, _ []string) error {
		p, err := loadProfile()
		if err != nil {
			return err
		}
		setLogger(p, os.Stderr, false)

		client, err := newAuthClient(p, "")
		if err != nil {
			return err
		}
		if err := client.SignOut(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
		return nil
	},
}
