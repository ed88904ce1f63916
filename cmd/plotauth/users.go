package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/adeilh/plot-auth/auth"
	"github.com/adeilh/plot-auth/config"
	"github.com/adeilh/plot-auth/db/sql/postgres"
	"github.com/adeilh/plot-auth/logging"
	"github.com/spf13/cobra"
)

var errMissingEmail = errors.New("--email is required")

type createUserFlags struct {
	email         string
	name          string
	role          string
	passwordStdin bool
}

func newCreateUserCommand() *cobra.Command {
	var f createUserFlags
	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Provision an account with a one-time password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			user, password, err := prepareUser(cmd, f)
			if err != nil {
				return err
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			hash, err := auth.NewBcryptHasher(auth.WithBcryptCost(cfg.Auth.BcryptCost)).Hash(cmd.Context(), []byte(password))
			if err != nil {
				return err
			}
			user.PasswordHash = hash

			db, err := openDatabase(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer db.Close()
			dir, err := postgres.NewUserDirectory(db)
			if err != nil {
				return err
			}
			id, err := dir.CreateUser(cmd.Context(), user)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created user id=%d email=%s role=%s\n", id, user.Email, user.Role)
			if !f.passwordStdin {
				fmt.Fprintf(cmd.OutOrStdout(), "one-time password: %s\n", password)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&f.email, "email", "", "Account email.")
	cmd.Flags().StringVar(&f.name, "name", "", "Display name.")
	cmd.Flags().StringVar(&f.role, "role", string(auth.RoleEmployee), "Role: Owner, Manager or Employee.")
	cmd.Flags().BoolVar(&f.passwordStdin, "password-stdin", false, "Read the initial password from stdin instead of generating one.")
	return cmd
}

// prepareUser validates flags and resolves the initial password before any
// database work happens.
func prepareUser(cmd *cobra.Command, f createUserFlags) (postgres.NewUser, string, error) {
	email := strings.ToLower(strings.TrimSpace(f.email))
	if email == "" {
		return postgres.NewUser{}, "", errMissingEmail
	}
	if !auth.ValidateEmail(email) {
		return postgres.NewUser{}, "", postgres.ErrInvalidInput
	}
	role, ok := auth.ParseRole(f.role)
	if !ok {
		return postgres.NewUser{}, "", auth.ErrInvalidRole
	}

	var (
		password string
		err      error
	)
	if f.passwordStdin {
		password, err = readPassword(cmd.InOrStdin())
		if err != nil {
			return postgres.NewUser{}, "", err
		}
		if err := auth.ValidatePasswordStrength([]byte(password), auth.DefaultPasswordValidation()); err != nil {
			return postgres.NewUser{}, "", err
		}
	} else {
		password, err = auth.GenerateOneTimePassword(16)
		if err != nil {
			return postgres.NewUser{}, "", err
		}
	}
	return postgres.NewUser{Email: email, Name: strings.TrimSpace(f.name), Role: role}, password, nil
}
