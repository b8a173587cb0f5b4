package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newUnsubscribeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unsubscribe [topic]",
		Short: "Unsubscribe from a topic and drop its notifications",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runUnsubscribe,
	}
	cmd.Flags().String("server", "", "server URL, when the topic exists on several")
	return cmd
}

func runUnsubscribe(cmd *cobra.Command, args []string) error {
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

	if err := app.Backend.RemoveSubscription(cmd.Context(), sub.ID); err != nil {
		return err
	}

	// Drop the saved selection when it pointed at the removed topic.
	if cliCtx, err := app.Contexts.Load(); err == nil && cliCtx.TopicID == sub.ID {
		if err := app.Contexts.Clear(); err != nil {
			return err
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Unsubscribed from %s\n", describeTopic(sub))
	return nil
}
