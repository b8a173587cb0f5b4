package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMuteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mute [topic]",
		Short: "Toggle a topic's muted state",
		Long:  "Mute toggles whether a topic counts toward the global unread total.",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runMute,
	}
	cmd.Flags().String("server", "", "server URL, when the topic exists on several")
	return cmd
}

func runMute(cmd *cobra.Command, args []string) error {
	app, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	serverURL, _ := cmd.Flags().GetString("server")
	sub, err := app.selectedTopic(cmd.Context(), args, serverURL)
	if err != nil {
		return err
	}

	muted, err := app.Backend.ToggleMute(cmd.Context(), sub.ID)
	if err != nil {
		return err
	}

	if muted {
		fmt.Fprintf(cmd.OutOrStdout(), "Muted %s\n", sub.Name())
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "Unmuted %s\n", sub.Name())
	}
	return nil
}
