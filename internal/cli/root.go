// Package cli implements the pushdeck command line interface.
package cli

import (
	"github.com/spf13/cobra"
)

// Execute runs the root command.
func Execute(version string) error {
	return newRootCmd(version).Execute()
}

func newRootCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "pushdeck",
		Short:         "Notification client for ntfy relay servers",
		Long:          "pushdeck subscribes to topics on ntfy relay servers, caches notifications locally, and keeps them in sync.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
	}
	cmd.PersistentFlags().String("config", "", "config file (default is $HOME/.config/pushdeck/config.yaml)")

	cmd.AddCommand(
		newRunCmd(),
		newServersCmd(),
		newSubscribeCmd(),
		newUnsubscribeCmd(),
		newMuteCmd(),
		newTopicsCmd(),
		newInboxCmd(),
		newReadCmd(),
		newShowCmd(),
		newDeleteCmd(),
		newFavoriteCmd(),
		newSettingsCmd(),
	)

	return cmd
}
