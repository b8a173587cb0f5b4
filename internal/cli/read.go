package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pkoenig/pushdeck/internal/inbox"
	"github.com/pkoenig/pushdeck/internal/logging"
	"github.com/pkoenig/pushdeck/internal/models"
)

func newReadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "read [notification-id]",
		Short: "Mark notifications as read",
		Long:  "Read marks one notification as read, the selected topic without arguments, or everything with --all.",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runRead,
	}
	cmd.Flags().String("topic", "", "mark a whole topic as read")
	cmd.Flags().Bool("all", false, "mark every topic as read")
	cmd.Flags().String("server", "", "server URL, when the topic exists on several")
	return cmd
}

func runRead(cmd *cobra.Command, args []string) error {
	app, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	svc, err := inbox.New(cmd.Context(), inbox.Options{Backend: app.Backend, Publisher: app.Publisher})
	if err != nil {
		return err
	}
	defer svc.Close()

	markAll, _ := cmd.Flags().GetBool("all")
	topicFlag, _ := cmd.Flags().GetString("topic")
	serverURL, _ := cmd.Flags().GetString("server")

	switch {
	case markAll:
		if err := <-svc.MarkAllRead(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Marked everything as read")

	case len(args) == 1 && strings.TrimSpace(args[0]) != "":
		id := strings.TrimSpace(args[0])
		if _, err := findNotification(cmd.Context(), svc, id); err != nil {
			return err
		}
		if err := <-svc.MarkRead(id); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Marked as read")

	default:
		var topicArgs []string
		if strings.TrimSpace(topicFlag) != "" {
			topicArgs = []string{topicFlag}
		}
		sub, err := app.selectedTopic(cmd.Context(), topicArgs, serverURL)
		if err != nil {
			return err
		}
		if err := <-svc.MarkTopicRead(sub.ID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Marked %s as read\n", sub.Name())
	}

	return nil
}

// findNotification loads all topics and locates one record by id.
func findNotification(ctx context.Context, svc *inbox.Service, id string) (models.Notification, error) {
	if err := svc.LoadAll(ctx); err != nil {
		logging.Warn().Err(err).Msg("Some topics failed to load")
	}
	for _, n := range svc.All() {
		if n.ID == id {
			return n, nil
		}
	}
	return models.Notification{}, fmt.Errorf("no notification with id %q", id)
}
