package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pkoenig/pushdeck/internal/inbox"
)

func newFavoriteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "favorite <notification-id>",
		Short: "Star or unstar a notification",
		Args:  cobra.ExactArgs(1),
		RunE:  runFavorite,
	}
}

func runFavorite(cmd *cobra.Command, args []string) error {
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

	id := strings.TrimSpace(args[0])
	before, err := findNotification(cmd.Context(), svc, id)
	if err != nil {
		return err
	}
	if err := <-svc.ToggleFavorite(id); err != nil {
		return err
	}

	if before.Favorite {
		fmt.Fprintln(cmd.OutOrStdout(), "Removed star")
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), "Starred")
	}
	return nil
}
