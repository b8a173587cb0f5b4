package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pkoenig/pushdeck/internal/backend"
)

func newSubscribeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subscribe <topic>",
		Short: "Subscribe to a topic",
		Args:  cobra.ExactArgs(1),
		RunE:  runSubscribe,
	}
	cmd.Flags().String("server", "", "server URL (default: the default server)")
	cmd.Flags().String("name", "", "display name for the topic")
	cmd.Flags().Bool("use", false, "select the topic after subscribing")
	return cmd
}

func runSubscribe(cmd *cobra.Command, args []string) error {
	app, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	serverURL, _ := cmd.Flags().GetString("server")
	displayName, _ := cmd.Flags().GetString("name")

	sub, err := app.Backend.AddSubscription(cmd.Context(), backend.AddSubscriptionParams{
		Topic:       args[0],
		ServerURL:   serverURL,
		DisplayName: displayName,
	})
	if err != nil {
		return err
	}

	if use, _ := cmd.Flags().GetBool("use"); use {
		if err := saveTopicContext(app, sub); err != nil {
			return err
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Subscribed to %s\n", describeTopic(sub))
	return nil
}
