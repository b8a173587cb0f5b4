package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pkoenig/pushdeck/internal/db"
	"github.com/pkoenig/pushdeck/internal/events"
	"github.com/pkoenig/pushdeck/internal/models"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the sync daemon",
		Long:  "Run polls subscribed topics, mirrors account subscriptions from logged-in servers, and holds live streams open until interrupted.",
		Args:  cobra.NoArgs,
		RunE:  runRun,
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	app, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	announce, err := db.NewSettingsRepository(app.DB).GetBool(ctx, db.SettingNotificationsEnabled, true)
	if err != nil {
		return err
	}
	if announce {
		if err := announceNotifications(cmd, app); err != nil {
			return err
		}
	}

	fmt.Fprintln(cmd.OutOrStdout(), "pushdeck daemon started, press Ctrl+C to stop")
	return app.Backend.Run(ctx)
}

// announceNotifications prints arriving notifications to stdout, the
// closest a terminal gets to a desktop toast.
func announceNotifications(cmd *cobra.Command, app *App) error {
	topicNames := make(map[string]string)
	if subs, err := app.Backend.Subscriptions(cmd.Context()); err == nil {
		for _, sub := range subs {
			topicNames[sub.ID] = sub.Name()
		}
	}

	filter := events.Filter{Types: []models.EventType{models.EventTypeNotificationNew}}
	return app.Publisher.Subscribe("cli-announce", filter, func(e *models.Event) {
		n, err := e.Notification()
		if err != nil {
			return
		}
		topic := topicNames[n.TopicID]
		if topic == "" {
			topic = n.TopicID
		}
		line := n.Message
		if n.Title != "" {
			line = n.Title + ": " + n.Message
		}
		fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s\n", topic, line)
	})
}
