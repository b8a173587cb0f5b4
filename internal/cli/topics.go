package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/pkoenig/pushdeck/internal/config"
	"github.com/pkoenig/pushdeck/internal/models"
)

func newTopicsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "topics",
		Short: "List and select subscribed topics",
		Args:  cobra.NoArgs,
		RunE:  runTopicsList,
	}
	cmd.AddCommand(
		newTopicsUseCmd(),
		newTopicsCurrentCmd(),
		newTopicsClearCmd(),
	)
	return cmd
}

func runTopicsList(cmd *cobra.Command, args []string) error {
	app, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	subs, err := app.Backend.Subscriptions(cmd.Context())
	if err != nil {
		return err
	}
	if len(subs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No subscriptions. Add one with \"pushdeck subscribe <topic>\".")
		return nil
	}

	selected := ""
	if cliCtx, err := app.Contexts.Load(); err == nil {
		selected = cliCtx.TopicID
	}

	rows := make([][]string, 0, len(subs))
	for _, sub := range subs {
		name := sub.Name()
		if sub.ID == selected {
			name = "* " + name
		}
		rows = append(rows, []string{
			name,
			sub.ServerURL,
			strconv.Itoa(sub.UnreadCount),
			formatYesNo(sub.Muted),
			sub.ID,
		})
	}
	return writeTable(cmd.OutOrStdout(), []string{"TOPIC", "SERVER", "UNREAD", "MUTED", "ID"}, rows)
}

func newTopicsUseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "use <topic>",
		Short: "Select the topic other commands default to",
		Args:  cobra.ExactArgs(1),
		RunE:  runTopicsUse,
	}
	cmd.Flags().String("server", "", "server URL, when the topic exists on several")
	return cmd
}

func runTopicsUse(cmd *cobra.Command, args []string) error {
	app, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	serverURL, _ := cmd.Flags().GetString("server")
	sub, err := app.resolveTopicRef(cmd.Context(), args[0], serverURL)
	if err != nil {
		return err
	}

	if err := saveTopicContext(app, sub); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Selected %s\n", describeTopic(sub))
	return nil
}

func newTopicsCurrentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "current",
		Short: "Show the selected topic",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := contextStore(cmd)
			if err != nil {
				return err
			}
			cliCtx, err := store.Load()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cliCtx.String())
			return nil
		},
	}
}

func newTopicsClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Clear the selected topic",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := contextStore(cmd)
			if err != nil {
				return err
			}
			if err := store.Clear(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Cleared topic selection")
			return nil
		},
	}
}

func saveTopicContext(app *App, sub models.Subscription) error {
	cliCtx := &config.Context{}
	cliCtx.SetTopic(sub.ID, sub.Topic, sub.ServerURL)
	return app.Contexts.Save(cliCtx)
}

func describeTopic(sub models.Subscription) string {
	return fmt.Sprintf("%s @ %s", sub.Name(), sub.ServerURL)
}
