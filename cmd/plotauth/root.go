package main

import "github.com/spf13/cobra"

var BuildVersion = "dev"

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "plotauth",
		Short:         "Plot authentication service",
		Long:          "Serves login, password reset and role-gated authorization for Plot, plus account tooling.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(
		&cobra.Command{
			Use:   "version",
			Short: "Print the version number of plotauth",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				cmd.Printf("%s\n", BuildVersion)
			},
		},
		newServeCommand(),
		newMigrateCommand(),
		newHashPasswordCommand(),
		newGenPasswordCommand(),
		newCreateUserCommand(),
	)
	return root
}
