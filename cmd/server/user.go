package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sakif/postboard/internal/auth"
	"github.com/sakif/postboard/internal/service"
)

func newUserCmd(a *app) *cobra.Command {
	user := &cobra.Command{
		Use:   "user",
		Short: "Manage accounts",
	}

	var username, email string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an account and print its id and an access token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := openDB(a.cfg.DBPath)
			if err != nil {
				return err
			}
			defer db.Close()

			tokens, err := auth.NewTokenService(a.cfg.JWTSecret, a.cfg.TokenTTL)
			if err != nil {
				return err
			}

			u, err := service.NewUserService(db, a.logger).Create(cmd.Context(), username, email)
			if err != nil {
				return err
			}
			token, err := tokens.Generate(u.ID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "id:    %s\n", u.ID)
			fmt.Fprintf(out, "token: %s\n", token)
			return nil
		},
	}
	create.Flags().StringVar(&username, "username", "", "unique username (3-32 characters, no @)")
	create.Flags().StringVar(&email, "email", "", "unique email address")
	_ = create.MarkFlagRequired("username")
	_ = create.MarkFlagRequired("email")

	user.AddCommand(create)
	return user
}
