package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pkoenig/pushdeck/internal/db"
	"github.com/pkoenig/pushdeck/internal/inbox"
	"github.com/pkoenig/pushdeck/internal/logging"
	"github.com/pkoenig/pushdeck/internal/models"
)

const messageColumnWidth = 48

func newInboxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inbox [topic]",
		Short: "Show cached notifications",
		Long:  "Inbox shows the selected topic's notifications, or all topics with --all.",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runInbox,
	}
	cmd.Flags().Bool("all", false, "show every topic")
	cmd.Flags().Bool("favorites", false, "show only starred notifications")
	cmd.Flags().Bool("unread", false, "show only unread notifications")
	cmd.Flags().Int("limit", 50, "maximum notifications to show")
	cmd.Flags().Bool("json", false, "output JSON")
	cmd.Flags().String("server", "", "server URL, when the topic exists on several")
	return cmd
}

func runInbox(cmd *cobra.Command, args []string) error {
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

	showAll, _ := cmd.Flags().GetBool("all")
	favoritesOnly, _ := cmd.Flags().GetBool("favorites")
	unreadOnly, _ := cmd.Flags().GetBool("unread")
	limit, _ := cmd.Flags().GetInt("limit")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	serverURL, _ := cmd.Flags().GetString("server")

	var list []models.Notification
	footer := ""
	switch {
	case favoritesOnly:
		enabled, err := db.NewSettingsRepository(app.DB).GetBool(cmd.Context(), db.SettingFavoritesEnabled, true)
		if err != nil {
			return err
		}
		if !enabled {
			return fmt.Errorf("favorites are disabled; enable with \"pushdeck settings set favorites_enabled on\"")
		}
		if err := svc.LoadAll(cmd.Context()); err != nil {
			logging.Warn().Err(err).Msg("Some topics failed to load")
		}
		list = svc.Favorites()
	case showAll:
		if err := svc.LoadAll(cmd.Context()); err != nil {
			logging.Warn().Err(err).Msg("Some topics failed to load")
		}
		list = svc.All()
		footer = fmt.Sprintf("%d unread across all topics", svc.TotalUnread())
	default:
		sub, err := app.selectedTopic(cmd.Context(), args, serverURL)
		if err != nil {
			return err
		}
		if err := svc.LoadTopic(cmd.Context(), sub.ID); err != nil {
			return fmt.Errorf("failed to load %s: %w", sub.Name(), err)
		}
		list = svc.ForTopic(sub.ID)
		footer = fmt.Sprintf("%d unread in %s", svc.UnreadCount(sub.ID), sub.Name())
	}

	if unreadOnly {
		filtered := list[:0]
		for _, n := range list {
			if !n.Read {
				filtered = append(filtered, n)
			}
		}
		list = filtered
	}
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}

	if jsonOutput {
		payload, err := json.MarshalIndent(list, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(payload))
		return nil
	}

	if len(list) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No notifications.")
		return nil
	}

	rows := make([][]string, 0, len(list))
	for _, n := range list {
		rows = append(rows, []string{
			n.ID,
			time.UnixMilli(n.Timestamp).Format("2006-01-02 15:04"),
			n.Priority.String(),
			truncateCell(n.Title, 24),
			truncateCell(n.Message, messageColumnWidth),
			formatYesNo(n.Read),
			formatYesNo(n.Favorite),
		})
	}
	if err := writeTable(cmd.OutOrStdout(), []string{"ID", "RECEIVED", "PRIORITY", "TITLE", "MESSAGE", "READ", "FAV"}, rows); err != nil {
		return err
	}

	if footer != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "\n%s\n", footer)
	}
	return nil
}
