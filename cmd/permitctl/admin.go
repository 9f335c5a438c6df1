package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/linesmerrill/commute-permit-api/databases"
	"github.com/linesmerrill/commute-permit-api/models"
)

func hashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print a bcrypt hash for a password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := bcrypt.GenerateFromPassword([]byte(args[0]), bcrypt.DefaultCost)
			if err != nil {
				return fmt.Errorf("error generating hash: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(hash))
			return nil
		},
	}
}

func adminCmd() *cobra.Command {
	var name, password string
	cmd := &cobra.Command{
		Use:   "create-admin [email]",
		Short: "Register an admin, or promote and reset the password of an existing employee",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(password) < 8 {
				return errors.New("password must be at least 8 characters")
			}
			hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
			if err != nil {
				return fmt.Errorf("error generating hash: %w", err)
			}

			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			employees := databases.NewEmployeeDatabase(a.Store)
			email := strings.TrimSpace(strings.ToLower(args[0]))
			existing, err := employees.FindByEmail(ctx, email)
			switch {
			case err == nil:
				err = employees.UpdateOne(ctx, existing.ID, databases.Fields{
					"role":          models.RoleAdmin,
					"password_hash": string(hash),
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "updated admin %s\n", existing.ID)
			case errors.Is(err, databases.ErrNotFound):
				if name == "" {
					name = email
				}
				id, err := employees.InsertOne(ctx, models.Employee{
					Name:         models.FlexibleName(name),
					Email:        email,
					Role:         models.RoleAdmin,
					PasswordHash: string(hash),
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created admin %s\n", id)
			default:
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "Display name of a new admin")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password to sign in with")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
