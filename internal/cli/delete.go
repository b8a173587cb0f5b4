package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pkoenig/pushdeck/internal/inbox"
)

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <notification-id>",
		Short: "Delete a notification",
		Args:  cobra.ExactArgs(1),
		RunE:  runDelete,
	}
}

func runDelete(cmd *cobra.Command, args []string) error {
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
	if _, err := findNotification(cmd.Context(), svc, id); err != nil {
		return err
	}
	if err := <-svc.Delete(id); err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Deleted")
	return nil
}
