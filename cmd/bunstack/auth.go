package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"bunstack/internal/api"
)

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login <email> <password>",
		Short: "Log in and store the session tokens",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			user, err := a.api.Login(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Printf("Logged in as %s <%s>\n", user.Name, user.Email)
			return nil
		},
	}
}

func newRegisterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "register <email> <password> <name>",
		Short: "Create an account and log in",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			user, err := a.api.Register(cmd.Context(), args[0], args[1], args[2])
			if err != nil {
				return err
			}
			fmt.Printf("Registered %s <%s>\n", user.Name, user.Email)
			return nil
		},
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Log out and flush the session, including the saved builder",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			if err := a.api.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("Logged out")
			return nil
		},
	}
}

func newUserCmd() *cobra.Command {
	var (
		email    string
		name     string
		password string
	)

	cmd := &cobra.Command{
		Use:   "user",
		Short: "Show or update the account profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			if err := a.requireAuth(); err != nil {
				return err
			}

			var user api.User
			if email != "" || name != "" || password != "" {
				user, err = a.api.UpdateUser(cmd.Context(), api.UserUpdate{
					Email:    email,
					Name:     name,
					Password: password,
				})
			} else {
				user, err = a.api.GetUser(cmd.Context())
			}
			if err != nil {
				return err
			}
			fmt.Printf("%s <%s>\n", user.Name, user.Email)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "new email")
	cmd.Flags().StringVar(&name, "name", "", "new display name")
	cmd.Flags().StringVar(&password, "password", "", "new password")
	return cmd
}

func newForgotPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "forgot-password <email>",
		Short: "Request a password reset code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			if err := a.api.ForgotPassword(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Println("Reset code sent, complete with: bunstack reset-password <new-password> <code>")
			return nil
		},
	}
}

func newResetPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset-password <new-password> <code>",
		Short: "Complete a password reset with the emailed code",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			if err := a.api.ResetPassword(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Println("Password reset")
			return nil
		},
	}
}
