package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/pkoenig/pushdeck/internal/credentials"
	"github.com/pkoenig/pushdeck/internal/db"
	"github.com/pkoenig/pushdeck/internal/models"
)

func newServersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "servers",
		Short: "Manage relay servers",
	}
	cmd.AddCommand(
		newServersAddCmd(),
		newServersListCmd(),
		newServersRemoveCmd(),
		newServersDefaultCmd(),
		newServersLoginCmd(),
		newServersLogoutCmd(),
	)
	return cmd
}

func newServersAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <url>",
		Short: "Add a relay server",
		Args:  cobra.ExactArgs(1),
		RunE:  runServersAdd,
	}
	cmd.Flags().String("username", "", "store credentials for this server")
	cmd.Flags().String("password", "", "password (prompted when --username is set and this is empty)")
	cmd.Flags().Bool("default", false, "make this the default server")
	return cmd
}

func runServersAdd(cmd *cobra.Command, args []string) error {
	app, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	url := models.NormalizeURL(args[0])
	if err := models.ValidateServerURL(url); err != nil {
		return err
	}

	servers := db.NewServerRepository(app.DB)
	server := &models.Server{URL: url}
	if err := servers.Create(cmd.Context(), server); err != nil {
		if errors.Is(err, db.ErrDuplicateServer) {
			return fmt.Errorf("server %s is already registered", url)
		}
		return err
	}

	if makeDefault, _ := cmd.Flags().GetBool("default"); makeDefault {
		if err := servers.SetDefault(cmd.Context(), server.ID); err != nil {
			return err
		}
	}

	if username, _ := cmd.Flags().GetString("username"); username != "" {
		if err := storeLogin(cmd, app, url, username); err != nil {
			return err
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Added server %s\n", url)
	return nil
}

func newServersListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered servers",
		Args:  cobra.NoArgs,
		RunE:  runServersList,
	}
}

func runServersList(cmd *cobra.Command, args []string) error {
	app, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	servers, err := db.NewServerRepository(app.DB).List(cmd.Context())
	if err != nil {
		return err
	}
	if len(servers) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No servers registered. Add one with \"pushdeck servers add <url>\".")
		return nil
	}

	rows := make([][]string, 0, len(servers))
	for _, server := range servers {
		login := "anonymous"
		if _, err := app.Credentials.Get(server.URL); err == nil {
			login = "stored"
		}
		rows = append(rows, []string{server.URL, formatYesNo(server.IsDefault), login, server.ID})
	}
	return writeTable(cmd.OutOrStdout(), []string{"URL", "DEFAULT", "LOGIN", "ID"}, rows)
}

func newServersRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <url>",
		Short: "Remove a server and its subscriptions",
		Args:  cobra.ExactArgs(1),
		RunE:  runServersRemove,
	}
}

func runServersRemove(cmd *cobra.Command, args []string) error {
	app, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	servers := db.NewServerRepository(app.DB)
	server, err := findServer(cmd.Context(), servers, args[0])
	if err != nil {
		return err
	}

	if err := servers.Delete(cmd.Context(), server.ID); err != nil {
		return err
	}
	if err := app.Credentials.Delete(server.URL); err != nil {
		return fmt.Errorf("server removed, but deleting its credentials failed: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Removed server %s\n", server.URL)
	return nil
}

func newServersDefaultCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-default <url>",
		Short: "Make a server the default for new subscriptions",
		Args:  cobra.ExactArgs(1),
		RunE:  runServersDefault,
	}
}

func runServersDefault(cmd *cobra.Command, args []string) error {
	app, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	servers := db.NewServerRepository(app.DB)
	server, err := findServer(cmd.Context(), servers, args[0])
	if err != nil {
		return err
	}
	if err := servers.SetDefault(cmd.Context(), server.ID); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Default server is now %s\n", server.URL)
	return nil
}

func newServersLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login <url>",
		Short: "Store credentials for a server",
		Args:  cobra.ExactArgs(1),
		RunE:  runServersLogin,
	}
	cmd.Flags().String("username", "", "account username")
	cmd.Flags().String("password", "", "password (prompted when empty)")
	return cmd
}

func runServersLogin(cmd *cobra.Command, args []string) error {
	app, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	server, err := findServer(cmd.Context(), db.NewServerRepository(app.DB), args[0])
	if err != nil {
		return err
	}

	username, _ := cmd.Flags().GetString("username")
	if strings.TrimSpace(username) == "" {
		return fmt.Errorf("--username is required")
	}
	if err := storeLogin(cmd, app, server.URL, username); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Stored credentials for %s on %s\n", username, server.URL)
	return nil
}

func newServersLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout <url>",
		Short: "Remove stored credentials for a server",
		Args:  cobra.ExactArgs(1),
		RunE:  runServersLogout,
	}
}

func runServersLogout(cmd *cobra.Command, args []string) error {
	app, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	url := models.NormalizeURL(args[0])
	if err := app.Credentials.Delete(url); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Removed credentials for %s\n", url)
	return nil
}

// findServer resolves a server by id or URL.
func findServer(ctx context.Context, servers *db.ServerRepository, ref string) (models.Server, error) {
	ref = strings.TrimSpace(ref)
	if server, err := servers.Get(ctx, ref); err == nil {
		return server, nil
	}
	server, err := servers.GetByURL(ctx, ref)
	if err != nil {
		if errors.Is(err, db.ErrServerNotFound) {
			return models.Server{}, fmt.Errorf("no server matches %q", ref)
		}
		return models.Server{}, err
	}
	return server, nil
}

// storeLogin saves credentials, prompting for the password when the
// flag is empty.
func storeLogin(cmd *cobra.Command, app *App, serverURL, username string) error {
	password, _ := cmd.Flags().GetString("password")
	if password == "" {
		var err error
		password, err = readPassword(cmd, fmt.Sprintf("Password for %s: ", username))
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
	}
	if password == "" {
		return fmt.Errorf("password must not be empty")
	}

	return app.Credentials.Set(serverURL, credentials.Credentials{
		Username: username,
		Password: password,
	})
}

// readPassword reads a password without echo on a terminal, or a plain
// line when stdin is piped.
func readPassword(cmd *cobra.Command, prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		reader := bufio.NewReader(cmd.InOrStdin())
		line, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	fmt.Fprint(cmd.OutOrStdout(), prompt)
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.OutOrStdout())
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
