package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pkoenig/pushdeck/internal/inbox"
)

func newShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <notification-id>",
		Short: "Show one notification in full",
		Args:  cobra.ExactArgs(1),
		RunE:  runShow,
	}
	cmd.Flags().Bool("json", false, "output JSON")
	return cmd
}

func runShow(cmd *cobra.Command, args []string) error {
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

	n, err := findNotification(cmd.Context(), svc, strings.TrimSpace(args[0]))
	if err != nil {
		return err
	}

	// Viewing the full record is what expanding means here; remember it
	// like the card view would.
	if err := <-svc.SetExpanded(n.ID, true); err == nil {
		n.Expanded = true
	}

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		payload, err := json.MarshalIndent(n, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(payload))
		return nil
	}

	out := cmd.OutOrStdout()
	if n.Title != "" {
		fmt.Fprintf(out, "Title:     %s\n", n.Title)
	}
	fmt.Fprintf(out, "Message:   %s\n", n.Message)
	fmt.Fprintf(out, "Received:  %s\n", time.UnixMilli(n.Timestamp).Format(time.RFC1123))
	fmt.Fprintf(out, "Priority:  %s\n", n.Priority)
	if len(n.Tags) > 0 {
		fmt.Fprintf(out, "Tags:      %s\n", strings.Join(n.Tags, ", "))
	}
	fmt.Fprintf(out, "Read:      %s\n", formatYesNo(n.Read))
	fmt.Fprintf(out, "Favorite:  %s\n", formatYesNo(n.Favorite))
	for _, action := range n.Actions {
		fmt.Fprintf(out, "Action:    [%s] %s %s\n", action.Action, action.Label, action.URL)
	}
	for _, attachment := range n.Attachments {
		fmt.Fprintf(out, "Attached:  %s (%s, %d bytes) %s\n", attachment.Name, attachment.Type, attachment.Size, attachment.URL)
	}
	fmt.Fprintf(out, "ID:        %s\n", n.ID)
	return nil
}
