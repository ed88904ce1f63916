package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/adeilh/plot-auth/auth"
	"github.com/spf13/cobra"
)

var errEmptyPassword = errors.New("no password read from stdin")

func newHashPasswordCommand() *cobra.Command {
	var (
		algorithm string
		cost      int
		allowWeak bool
	)
	cmd := &cobra.Command{
		Use:   "hash-password",
		Short: "Hash a password read from stdin",
		Long:  "Reads a single line from stdin and prints its password hash. The password is never echoed.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readPassword(cmd.InOrStdin())
			if err != nil {
				return err
			}
			if !allowWeak {
				if err := auth.ValidatePasswordStrength([]byte(password), auth.DefaultPasswordValidation()); err != nil {
					return err
				}
			}
			hasher, err := newHasher(algorithm, cost)
			if err != nil {
				return err
			}
			hash, err := hasher.Hash(cmd.Context(), []byte(password))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
	cmd.Flags().StringVar(&algorithm, "algorithm", auth.AlgorithmBcrypt, "Hash algorithm: bcrypt or argon2id.")
	cmd.Flags().IntVar(&cost, "cost", 12, "bcrypt cost factor.")
	cmd.Flags().BoolVar(&allowWeak, "allow-weak", false, "Skip password strength validation.")
	return cmd
}

func newGenPasswordCommand() *cobra.Command {
	var length int
	cmd := &cobra.Command{
		Use:   "gen-password",
		Short: "Generate a random one-time password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := auth.GenerateOneTimePassword(length)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), pw)
			return nil
		},
	}
	cmd.Flags().IntVar(&length, "length", 16, "Password length.")
	return cmd
}

func newHasher(algorithm string, cost int) (auth.PasswordHasher, error) {
	switch strings.ToLower(algorithm) {
	case auth.AlgorithmBcrypt:
		return auth.NewBcryptHasher(auth.WithBcryptCost(cost)), nil
	case auth.AlgorithmArgon2id:
		return auth.NewArgon2idHasher(), nil
	default:
		return nil, fmt.Errorf("unsupported algorithm %q", algorithm)
	}
}

func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errEmptyPassword
	}
	return line, nil
}
